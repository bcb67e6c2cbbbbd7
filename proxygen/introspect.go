package proxygen

import (
	"fmt"
	"go/types"

	"github.com/tliron/commonlog"
	"golang.org/x/tools/go/packages"
)

var log = commonlog.GetLogger("ducktape.proxygen")

// Load loads a Go package by import path or directory pattern and returns
// its interfaces. The includeFilter, if non-nil, restricts which exported
// names are considered.
func Load(pattern string, includeFilter map[string]bool) (*PackageModel, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedTypes,
	}

	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", pattern, err)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages found for %s", pattern)
	}
	if len(pkgs[0].Errors) > 0 {
		return nil, fmt.Errorf("package errors: %v", pkgs[0].Errors)
	}

	pkg := pkgs[0]
	if pkg.Types == nil {
		return nil, fmt.Errorf("type information not available for %s", pattern)
	}
	return FromTypes(pkg.PkgPath, pkg.Types, includeFilter), nil
}

// FromTypes collects the interfaces of a type-checked package.
func FromTypes(importPath string, pkg *types.Package, includeFilter map[string]bool) *PackageModel {
	model := &PackageModel{
		ImportPath: importPath,
		Name:       pkg.Name(),
	}

	scope := pkg.Scope()
	for _, name := range scope.Names() {
		if includeFilter != nil && !includeFilter[name] {
			continue
		}
		tn, ok := scope.Lookup(name).(*types.TypeName)
		if !ok || !tn.Exported() || tn.IsAlias() {
			continue
		}
		named, ok := tn.Type().(*types.Named)
		if !ok {
			continue
		}
		iface, ok := named.Underlying().(*types.Interface)
		if !ok {
			continue
		}

		im, reason := extractInterface(tn, named, iface)
		if reason != "" {
			log.Debugf("skipping %s.%s: %s", pkg.Name(), name, reason)
			model.Skipped = append(model.Skipped, Skipped{Name: name, Reason: reason})
			continue
		}
		model.Interfaces = append(model.Interfaces, im)
	}
	return model
}

func extractInterface(tn *types.TypeName, named *types.Named, iface *types.Interface) (InterfaceModel, string) {
	im := InterfaceModel{Name: tn.Name(), GoType: named}
	switch {
	case named.TypeParams().Len() > 0:
		return im, "generic interface"
	case !iface.IsMethodSet():
		return im, "constraint interface"
	case iface.NumMethods() == 0:
		return im, "no methods"
	}

	for i := 0; i < iface.NumMethods(); i++ {
		fn := iface.Method(i)
		if !fn.Exported() {
			return im, "unexported method " + fn.Name()
		}
		im.Methods = append(im.Methods, methodModel(fn.Name(), fn.Type().(*types.Signature)))
	}
	return im, ""
}

func methodModel(name string, sig *types.Signature) MethodModel {
	mm := MethodModel{Name: name, Variadic: sig.Variadic()}

	params := sig.Params()
	for i := 0; i < params.Len(); i++ {
		p := params.At(i)
		mm.Params = append(mm.Params, ParamModel{
			Name:    p.Name(),
			GoType:  p.Type(),
			TypeStr: p.Type().String(),
		})
	}

	results := sig.Results()
	n := results.Len()
	if n > 0 && isErrorType(results.At(n-1).Type()) {
		mm.ReturnsErr = true
		n--
	}
	for i := 0; i < n; i++ {
		r := results.At(i)
		mm.Results = append(mm.Results, ParamModel{
			Name:    r.Name(),
			GoType:  r.Type(),
			TypeStr: r.Type().String(),
		})
	}
	return mm
}

func isErrorType(t types.Type) bool {
	return types.Identical(t, types.Universe.Lookup("error").Type())
}
