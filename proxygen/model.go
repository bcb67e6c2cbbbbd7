// Package proxygen introspects Go interfaces and generates proxy adapters
// for them.
package proxygen

import "go/types"

// PackageModel is the set of interfaces found in a Go package.
type PackageModel struct {
	ImportPath string
	Name       string // short package name (e.g., "io")
	Interfaces []InterfaceModel
	Skipped    []Skipped
}

// InterfaceModel is an exported interface that can be proxied.
type InterfaceModel struct {
	Name    string
	GoType  types.Type
	Methods []MethodModel // embedded methods included, ordered by name
}

// MethodModel is one method of an interface.
type MethodModel struct {
	Name       string
	Params     []ParamModel
	Results    []ParamModel // value results only; see ReturnsErr
	Variadic   bool
	ReturnsErr bool // true if the last result is error
}

// ParamModel is a parameter or result.
type ParamModel struct {
	Name    string
	GoType  types.Type
	TypeStr string
}

// Skipped records an interface that cannot be proxied.
type Skipped struct {
	Name   string
	Reason string
}
