package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shapesModule = "example.com/shapes"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func collectShapes(t *testing.T, includeUnexported bool, extern ...string) *Collector {
	t.Helper()

	dir, err := filepath.Abs(filepath.Join("testdata", "shapes"))
	require.NoError(t, err)
	pkgs, err := loadPackages(context.Background(), dir, []string{"./..."}, quietLogger())
	require.NoError(t, err)

	c := NewCollector(shapesModule, dir, quietLogger())
	c.IncludeUnexported = includeUnexported
	c.CollectTypes(pkgs)
	c.ResolveExtern(pkgs, extern)
	c.CollectImplements()
	return c
}

func edgesOf(c *Collector, iface string) map[string]ImplementsEdge {
	out := make(map[string]ImplementsEdge)
	for _, e := range c.Implements {
		if e.Interface == iface {
			out[e.Type] = e
		}
	}
	return out
}

func TestCollector_Types(t *testing.T) {
	c := collectShapes(t, false)

	assert.Contains(t, c.Packages, shapesModule)
	assert.Contains(t, c.Packages, shapesModule+"/solid")
	assert.Equal(t, "solid", c.Packages[shapesModule+"/solid"].Dir)

	circle := c.Types[shapesModule+".Circle"]
	require.NotNil(t, circle)
	assert.Equal(t, "struct", circle.Kind)
	assert.Equal(t, "shapes.go", circle.File)
	assert.Positive(t, circle.Line)

	assert.Equal(t, "type", c.Types[shapesModule+".Meters"].Kind)
	assert.NotContains(t, c.Types, shapesModule+".Box", "generic types are skipped")
	assert.NotContains(t, c.Types, shapesModule+".hidden")

	shape := c.Interfaces[shapesModule+".Shape"]
	require.NotNil(t, shape)
	assert.Equal(t, 2, shape.Methods)
	assert.False(t, shape.Extern)
}

func TestCollector_Implements(t *testing.T) {
	c := collectShapes(t, false)
	edges := edgesOf(c, shapesModule+".Shape")

	tests := []struct {
		typ        string
		viaPointer bool
		synthetic  bool
	}{
		{typ: shapesModule + ".Circle"},
		{typ: shapesModule + ".Square", viaPointer: true},
		{typ: shapesModule + ".Labeled", synthetic: true},
		{typ: shapesModule + "/solid.Cube", viaPointer: true, synthetic: true},
		{typ: shapesModule + "/solid.Ball"},
	}
	require.Len(t, edges, len(tests))
	for _, tt := range tests {
		e, ok := edges[tt.typ]
		require.True(t, ok, tt.typ)
		assert.Equal(t, tt.viaPointer, e.ViaPointer, tt.typ)
		assert.Equal(t, tt.synthetic, e.Synthetic, tt.typ)
	}
}

func TestCollector_UnexportedOptIn(t *testing.T) {
	c := collectShapes(t, true)

	assert.Contains(t, c.Types, shapesModule+".hidden")
	assert.Contains(t, edgesOf(c, shapesModule+".Shape"), shapesModule+".hidden")
}

func TestCollector_Extern(t *testing.T) {
	c := NewCollector(shapesModule, "", quietLogger())
	dir, err := filepath.Abs(filepath.Join("testdata", "shapes"))
	require.NoError(t, err)
	pkgs, err := loadPackages(context.Background(), dir, []string{"./..."}, quietLogger())
	require.NoError(t, err)

	c.CollectTypes(pkgs)
	missing := c.ResolveExtern(pkgs, []string{"error", "fmt.Stringer", "net/http.Handler", "fmt.Nope", " "})
	assert.Equal(t, []string{"net/http.Handler", "fmt.Nope"}, missing)

	require.Contains(t, c.Interfaces, "error")
	assert.True(t, c.Interfaces["error"].Extern)
	assert.Equal(t, "fmt", c.Interfaces["fmt.Stringer"].Package)

	c.CollectImplements()
	errEdges := edgesOf(c, "error")
	require.Len(t, errEdges, 1)
	assert.True(t, errEdges[shapesModule+".ParseError"].ViaPointer)

	stringers := edgesOf(c, "fmt.Stringer")
	require.Len(t, stringers, 1)
	assert.Contains(t, stringers, shapesModule+".Meters")
}

func TestCollector_BuildIndex(t *testing.T) {
	c := collectShapes(t, false, "error")
	index := Build(c, BuildOptions{})

	assert.Equal(t, []string{"error", shapesModule + ".Shape"}, index.Traits())

	shape := index[shapesModule+".Shape"]
	require.NoError(t, shape.Validate())
	assert.Equal(t, []string{shapesModule, shapesModule + "/solid"}, shape.Packages())

	var names []string
	for _, imp := range shape[shapesModule] {
		names = append(names, PlainText(imp.Text))
	}
	assert.Equal(t, []string{
		"impl Shape for Circle",
		"impl Shape for *Square",
		"impl Shape for Labeled",
	}, names)

	solid := shape[shapesModule+"/solid"]
	require.Len(t, solid, 2)
	assert.Equal(t, []string{shapesModule + "/solid.Cube"}, solid[0].Types)
	assert.True(t, solid[0].Synthetic)
	assert.Equal(t, "impl Shape for Ball", PlainText(solid[1].Text))
}
