package main

// PackageNode represents a Go package that declares indexed types.
type PackageNode struct {
	ImportPath string
	Name       string
	Dir        string
}

// TypeNode represents a concrete named type that may implement interfaces.
type TypeNode struct {
	Name     string
	Package  string
	Kind     string // struct, type (any other non-interface underlying type)
	File     string
	Line     int
	Exported bool
}

// Key returns the canonical path of the type, package.Name.
func (t *TypeNode) Key() string {
	return t.Package + "." + t.Name
}

// InterfaceNode represents a Go interface type.
type InterfaceNode struct {
	Name     string
	Package  string // empty for universe interfaces such as error
	File     string
	Line     int
	Exported bool
	Methods  int
	Extern   bool // declared outside the analysed module
}

// Key returns the canonical path of the interface.
func (i *InterfaceNode) Key() string {
	if i.Package == "" {
		return i.Name
	}
	return i.Package + "." + i.Name
}

// ImplementsEdge represents a concrete type implementing an interface.
type ImplementsEdge struct {
	Type       string // key of the TypeNode
	Interface  string // key of the InterfaceNode
	ViaPointer bool   // only *T satisfies the interface
	Synthetic  bool   // satisfied through methods promoted from embedded fields
}
