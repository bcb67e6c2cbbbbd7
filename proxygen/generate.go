package proxygen

import (
	"bytes"
	"fmt"
	"go/types"
	"strconv"

	"github.com/dave/jennifer/jen"
)

const (
	proxyPath   = "github.com/chazu/ducktape/proxy"
	reflectPath = "reflect"
)

// Options controls code generation.
type Options struct {
	// ImportPath and Package name the package the file is generated into.
	// Empty means the introspected package itself.
	ImportPath string
	Package    string

	// Func names the generated function returning every adapter as a
	// proxy.Preload. Empty means "Adapters".
	Func string
}

// Generate renders adapter types for every interface of model, plus a
// function listing them for proxy.Projector.PreLoadAll.
func Generate(model *PackageModel, opts Options) ([]byte, error) {
	if opts.ImportPath == "" {
		opts.ImportPath = model.ImportPath
	}
	if opts.Package == "" {
		opts.Package = model.Name
	}
	if opts.Func == "" {
		opts.Func = "Adapters"
	}

	f := jen.NewFilePathName(opts.ImportPath, opts.Package)
	f.HeaderComment("Code generated by ducktape gen. DO NOT EDIT.")

	var entries []jen.Code
	for _, im := range model.Interfaces {
		if err := generateAdapter(f, model.ImportPath, im); err != nil {
			return nil, fmt.Errorf("%s: %w", im.Name, err)
		}
		entries = append(entries, preloadEntry(model.ImportPath, im))
	}

	f.Commentf("%s returns the generated adapters for proxy.Projector.PreLoadAll.", opts.Func)
	f.Func().Id(opts.Func).Params().Index().Qual(proxyPath, "Preload").Block(
		jen.Return(jen.Index().Qual(proxyPath, "Preload").ValuesFunc(func(g *jen.Group) {
			for _, e := range entries {
				g.Line().Add(e)
			}
			if len(entries) > 0 {
				g.Line()
			}
		})),
	)

	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func preloadEntry(importPath string, im InterfaceModel) jen.Code {
	adapter := jen.Qual(reflectPath, "TypeFor").Types(jen.Op("*").Id(AdapterName(im.Name))).Call()
	iface := jen.Qual(reflectPath, "TypeFor").Types(jen.Qual(importPath, im.Name)).Call()
	return jen.Values(jen.Dict{
		jen.Id("Adapter"): adapter,
		jen.Id("Attribute"): jen.Qual(proxyPath, "Attribute").Values(jen.Dict{
			jen.Id("Interfaces"): jen.Index().Qual(reflectPath, "Type").Values(iface),
		}),
	})
}

func generateAdapter(f *jen.File, importPath string, im InterfaceModel) error {
	name := AdapterName(im.Name)
	f.Commentf("%s forwards %s to a duck-typed target.", name, im.Name)
	f.Type().Id(name).Struct(jen.Qual(proxyPath, "Base"))
	f.Var().Id("_").Qual(importPath, im.Name).Op("=").Parens(jen.Op("*").Id(name)).Parens(jen.Nil())

	for _, mm := range im.Methods {
		if err := generateMethod(f, name, mm); err != nil {
			return fmt.Errorf("method %s: %w", mm.Name, err)
		}
	}
	return nil
}

func generateMethod(f *jen.File, adapter string, mm MethodModel) error {
	var params, args []jen.Code
	args = append(args, jen.Lit(mm.Name))
	for i, p := range mm.Params {
		id := "a" + strconv.Itoa(i)
		var t types.Type = p.GoType
		var code *jen.Statement
		if mm.Variadic && i == len(mm.Params)-1 {
			elem, err := typeCode(t.(*types.Slice).Elem())
			if err != nil {
				return err
			}
			code = jen.Op("...").Add(elem)
		} else {
			c, err := typeCode(t)
			if err != nil {
				return err
			}
			code = c
		}
		params = append(params, jen.Id(id).Add(code))
		args = append(args, jen.Id(id))
	}

	var results []jen.Code
	var resultTypes []*jen.Statement
	for i, r := range mm.Results {
		c, err := typeCode(r.GoType)
		if err != nil {
			return err
		}
		resultTypes = append(resultTypes, c)
		if len(mm.Results) > 1 {
			results = append(results, jen.Id("r"+strconv.Itoa(i)).Add(c.Clone()))
		} else {
			results = append(results, c.Clone())
		}
	}
	if mm.ReturnsErr {
		if len(mm.Results) > 1 {
			results = append(results, jen.Id("err").Error())
		} else {
			results = append(results, jen.Error())
		}
	}

	call := jen.Id("p").Dot("Forward").Call(args...)
	var body []jen.Code
	switch n := len(mm.Results); {
	case n == 0 && !mm.ReturnsErr:
		body = append(body, jen.Qual(proxyPath, "Void").Call(call))
	case n == 0:
		body = append(body, jen.Return(jen.Qual(proxyPath, "VoidErr").Call(call)))
	case n == 1 && !mm.ReturnsErr:
		body = append(body, jen.Return(jen.Qual(proxyPath, "Value").Types(resultTypes[0]).Call(call)))
	case n == 1:
		body = append(body, jen.Return(jen.Qual(proxyPath, "ValueErr").Types(resultTypes[0]).Call(call)))
	default:
		body = append(body, jen.Id("res").Op(":=").Add(call))
		if mm.ReturnsErr {
			body = append(body, jen.If(
				jen.Id("err").Op("=").Id("res").Dot("Err").Call(),
				jen.Id("err").Op("!=").Nil(),
			).Block(jen.Return()))
		}
		var vals []jen.Code
		for i, t := range resultTypes {
			vals = append(vals, jen.Qual(proxyPath, "Nth").Types(t).Call(jen.Id("res"), jen.Lit(i)))
		}
		if mm.ReturnsErr {
			vals = append(vals, jen.Nil())
		}
		body = append(body, jen.Return(vals...))
	}

	f.Func().Params(jen.Id("p").Op("*").Id(adapter)).Id(mm.Name).
		Params(params...).Params(results...).Block(body...)
	return nil
}

// typeCode renders t, qualifying named types by package path.
func typeCode(t types.Type) (*jen.Statement, error) {
	switch t := t.(type) {
	case *types.Basic:
		if t.Kind() == types.UnsafePointer {
			return jen.Qual("unsafe", "Pointer"), nil
		}
		return jen.Id(t.Name()), nil
	case *types.Alias:
		obj := t.Obj()
		if obj.Pkg() == nil {
			return jen.Id(obj.Name()), nil
		}
		return jen.Qual(obj.Pkg().Path(), obj.Name()), nil
	case *types.Named:
		obj := t.Obj()
		var s *jen.Statement
		if obj.Pkg() == nil {
			s = jen.Id(obj.Name())
		} else {
			s = jen.Qual(obj.Pkg().Path(), obj.Name())
		}
		if targs := t.TypeArgs(); targs.Len() > 0 {
			codes := make([]jen.Code, targs.Len())
			for i := range codes {
				c, err := typeCode(targs.At(i))
				if err != nil {
					return nil, err
				}
				codes[i] = c
			}
			s = s.Types(codes...)
		}
		return s, nil
	case *types.Pointer:
		return wrap(t.Elem(), func(e *jen.Statement) *jen.Statement { return jen.Op("*").Add(e) })
	case *types.Slice:
		return wrap(t.Elem(), func(e *jen.Statement) *jen.Statement { return jen.Index().Add(e) })
	case *types.Array:
		return wrap(t.Elem(), func(e *jen.Statement) *jen.Statement { return jen.Index(jen.Lit(int(t.Len()))).Add(e) })
	case *types.Map:
		k, err := typeCode(t.Key())
		if err != nil {
			return nil, err
		}
		return wrap(t.Elem(), func(e *jen.Statement) *jen.Statement { return jen.Map(k).Add(e) })
	case *types.Chan:
		return wrap(t.Elem(), func(e *jen.Statement) *jen.Statement {
			switch t.Dir() {
			case types.SendOnly:
				return jen.Chan().Op("<-").Add(e)
			case types.RecvOnly:
				return jen.Op("<-").Chan().Add(e)
			}
			return jen.Chan().Add(e)
		})
	case *types.Signature:
		return funcCode(t)
	case *types.Interface:
		if t.Empty() {
			return jen.Any(), nil
		}
	case *types.Struct:
		if t.NumFields() == 0 {
			return jen.Struct(), nil
		}
	}
	return nil, fmt.Errorf("unsupported type %s", t)
}

func wrap(elem types.Type, f func(*jen.Statement) *jen.Statement) (*jen.Statement, error) {
	e, err := typeCode(elem)
	if err != nil {
		return nil, err
	}
	return f(e), nil
}

func funcCode(sig *types.Signature) (*jen.Statement, error) {
	var params, results []jen.Code
	for i := 0; i < sig.Params().Len(); i++ {
		t := sig.Params().At(i).Type()
		if sig.Variadic() && i == sig.Params().Len()-1 {
			e, err := typeCode(t.(*types.Slice).Elem())
			if err != nil {
				return nil, err
			}
			params = append(params, jen.Op("...").Add(e))
			continue
		}
		c, err := typeCode(t)
		if err != nil {
			return nil, err
		}
		params = append(params, c)
	}
	for i := 0; i < sig.Results().Len(); i++ {
		c, err := typeCode(sig.Results().At(i).Type())
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return jen.Func().Params(params...).Params(results...), nil
}
