package main

import (
	"fmt"
	"go/types"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/types/typeutil"
)

// Collector gathers type declarations and interface implementation data
// from Go packages using static analysis.
type Collector struct {
	RootModule string
	RootDir    string

	IncludeUnexported bool

	Packages   map[string]*PackageNode
	Types      map[string]*TypeNode
	Interfaces map[string]*InterfaceNode
	Implements []ImplementsEdge

	log     *slog.Logger
	named   map[string]types.Type
	ifaces  map[string]*types.Interface
	msets   typeutil.MethodSetCache
	skipped int
}

// NewCollector creates a Collector scoped to the given root module path.
// rootDir is used to report file positions relative to the project.
func NewCollector(rootModule, rootDir string, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		RootModule: rootModule,
		RootDir:    rootDir,
		Packages:   make(map[string]*PackageNode),
		Types:      make(map[string]*TypeNode),
		Interfaces: make(map[string]*InterfaceNode),
		log:        logger.With("component", "collector"),
		named:      make(map[string]types.Type),
		ifaces:     make(map[string]*types.Interface),
	}
}

// isProjectPackage reports whether pkgPath belongs to the analysed module.
func (c *Collector) isProjectPackage(pkgPath string) bool {
	return pkgPath == c.RootModule || strings.HasPrefix(pkgPath, c.RootModule+"/")
}

// relPath returns a file path relative to the project root, or the path
// unchanged when it lies outside it.
func (c *Collector) relPath(fullPath string) string {
	if c.RootDir == "" || fullPath == "" {
		return fullPath
	}
	rel, err := filepath.Rel(c.RootDir, fullPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fullPath
	}
	return filepath.ToSlash(rel)
}

// relDir strips the module prefix from a package path.
func (c *Collector) relDir(pkgPath string) string {
	rest := strings.TrimPrefix(pkgPath, c.RootModule)
	return strings.TrimPrefix(rest, "/")
}

// CollectTypes walks all project packages and extracts named types and
// interfaces. Generic declarations are counted but not indexed.
func (c *Collector) CollectTypes(pkgs []*packages.Package) {
	packages.Visit(pkgs, nil, func(pkg *packages.Package) {
		if !c.isProjectPackage(pkg.PkgPath) || pkg.Types == nil {
			return
		}

		c.Packages[pkg.PkgPath] = &PackageNode{
			ImportPath: pkg.PkgPath,
			Name:       pkg.Name,
			Dir:        c.relDir(pkg.PkgPath),
		}

		scope := pkg.Types.Scope()
		for _, name := range scope.Names() {
			tn, ok := scope.Lookup(name).(*types.TypeName)
			if !ok || tn.IsAlias() {
				continue
			}
			if !tn.Exported() && !c.IncludeUnexported {
				continue
			}
			named, ok := tn.Type().(*types.Named)
			if !ok {
				continue
			}
			if named.TypeParams().Len() > 0 {
				c.skipped++
				continue
			}
			pos := pkg.Fset.Position(tn.Pos())
			key := pkg.PkgPath + "." + name

			switch t := named.Underlying().(type) {
			case *types.Interface:
				if t.NumMethods() == 0 || !t.IsMethodSet() {
					continue // empty interfaces and constraints
				}
				c.Interfaces[key] = &InterfaceNode{
					Name:     name,
					Package:  pkg.PkgPath,
					File:     c.relPath(pos.Filename),
					Line:     pos.Line,
					Exported: tn.Exported(),
					Methods:  t.NumMethods(),
				}
				c.ifaces[key] = t
			default:
				kind := "type"
				if _, ok := t.(*types.Struct); ok {
					kind = "struct"
				}
				c.Types[key] = &TypeNode{
					Name:     name,
					Package:  pkg.PkgPath,
					Kind:     kind,
					File:     c.relPath(pos.Filename),
					Line:     pos.Line,
					Exported: tn.Exported(),
				}
				c.named[key] = named
			}
		}
	})
	if c.skipped > 0 {
		c.log.Debug("skipped generic declarations", "count", c.skipped)
	}
}

// ResolveExtern registers interfaces declared outside the module, such as
// error or io.Reader, so project types are checked against them too. Names
// that cannot be found in the loaded import graph are returned.
func (c *Collector) ResolveExtern(pkgs []*packages.Package, names []string) []string {
	byPath := make(map[string]*types.Package)
	packages.Visit(pkgs, nil, func(pkg *packages.Package) {
		if pkg.Types != nil {
			byPath[pkg.PkgPath] = pkg.Types
		}
	})

	var missing []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		node, iface, ok := lookupExtern(byPath, name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		key := node.Key()
		if _, exists := c.Interfaces[key]; exists {
			continue
		}
		c.Interfaces[key] = node
		c.ifaces[key] = iface
	}
	if len(missing) > 0 {
		c.log.Warn("extern interfaces not found in import graph", "names", missing)
	}
	return missing
}

func lookupExtern(byPath map[string]*types.Package, name string) (*InterfaceNode, *types.Interface, bool) {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		obj, ok := types.Universe.Lookup(name).(*types.TypeName)
		if !ok {
			return nil, nil, false
		}
		iface, ok := obj.Type().Underlying().(*types.Interface)
		if !ok || iface.NumMethods() == 0 {
			return nil, nil, false
		}
		return &InterfaceNode{Name: name, Exported: true, Methods: iface.NumMethods(), Extern: true}, iface, true
	}

	pkg, ok := byPath[name[:idx]]
	if !ok {
		return nil, nil, false
	}
	obj, ok := pkg.Scope().Lookup(name[idx+1:]).(*types.TypeName)
	if !ok {
		return nil, nil, false
	}
	named, ok := obj.Type().(*types.Named)
	if !ok || named.TypeParams().Len() > 0 {
		return nil, nil, false
	}
	iface, ok := named.Underlying().(*types.Interface)
	if !ok || iface.NumMethods() == 0 {
		return nil, nil, false
	}
	return &InterfaceNode{
		Name:     obj.Name(),
		Package:  pkg.Path(),
		Exported: obj.Exported(),
		Methods:  iface.NumMethods(),
		Extern:   true,
	}, iface, true
}

// CollectImplements checks which collected types implement which collected
// interfaces. Must run after CollectTypes and ResolveExtern.
func (c *Collector) CollectImplements() {
	typeKeys := sortedKeys(c.named)
	ifaceKeys := sortedKeys(c.ifaces)

	// Check implements with O(1) duplicate detection.
	seen := make(map[string]bool)
	for _, tk := range typeKeys {
		concrete := c.named[tk]
		for _, ik := range ifaceKeys {
			edgeKey := tk + "->" + ik
			if seen[edgeKey] {
				continue
			}
			iface := c.ifaces[ik]

			var recv types.Type
			viaPointer := false
			switch {
			case types.Implements(concrete, iface):
				recv = concrete
			case types.Implements(types.NewPointer(concrete), iface):
				recv = types.NewPointer(concrete)
				viaPointer = true
			default:
				continue
			}
			seen[edgeKey] = true
			c.Implements = append(c.Implements, ImplementsEdge{
				Type:       tk,
				Interface:  ik,
				ViaPointer: viaPointer,
				Synthetic:  c.promoted(recv, iface),
			})
		}
	}
}

// promoted reports whether any method of iface is satisfied by recv only
// through a field embedding.
func (c *Collector) promoted(recv types.Type, iface *types.Interface) bool {
	mset := c.msets.MethodSet(recv)
	for i := 0; i < iface.NumMethods(); i++ {
		m := iface.Method(i)
		sel := mset.Lookup(m.Pkg(), m.Name())
		if sel != nil && len(sel.Index()) > 1 {
			return true
		}
	}
	return false
}

// Stats returns a one-line summary of the collected data.
func (c *Collector) Stats() string {
	return fmt.Sprintf("%d packages, %d types, %d interfaces, %d implements",
		len(c.Packages), len(c.Types), len(c.Interfaces), len(c.Implements))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
