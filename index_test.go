package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func imp(text, typ string) Implementor {
	return Implementor{Text: text, Types: []string{typ}}
}

func TestTable_MergeReplacesPerPackage(t *testing.T) {
	t.Parallel()

	table := Table{
		"a": {imp("impl X for A1", "a.A1")},
		"b": {imp("impl X for B1", "b.B1")},
	}
	table.Merge(Table{
		"b": {imp("impl X for B2", "b.B2")},
		"c": {imp("impl X for C1", "c.C1")},
	})

	assert.Equal(t, []string{"a", "b", "c"}, table.Packages())
	assert.Equal(t, "a.A1", table["a"][0].Types[0])
	require.Len(t, table["b"], 1)
	assert.Equal(t, "b.B2", table["b"][0].Types[0])
	assert.Equal(t, 3, table.Len())
}

func TestTable_MergeCopiesLists(t *testing.T) {
	t.Parallel()

	src := Table{"a": {imp("impl X for A", "a.A")}}
	dst := make(Table)
	dst.Merge(src)
	src["a"][0].Text = "changed"

	assert.Equal(t, "impl X for A", dst["a"][0].Text)
}

func TestTable_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		table   Table
		wantErr bool
	}{
		{name: "ok", table: Table{"a": {imp("impl X for A", "a.A")}}},
		{name: "empty table", table: Table{}},
		{name: "empty key", table: Table{" ": {imp("impl X for A", "a.A")}}, wantErr: true},
		{name: "empty text", table: Table{"a": {imp("", "a.A")}}, wantErr: true},
		{name: "no types", table: Table{"a": {{Text: "impl X for A"}}}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.table.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTable)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestIndex_MergeAndLookup(t *testing.T) {
	t.Parallel()

	index := Index{"io.Reader": {"a": {imp("impl Reader for A", "a.A")}}}
	index.Merge(Index{
		"io.Reader": {"b": {imp("impl Reader for B", "b.B")}},
		"error":     {"a": {imp("impl error for *E", "a.E")}},
	})

	assert.Equal(t, []string{"error", "io.Reader"}, index.Traits())
	reader, err := index.Lookup("io.Reader")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, reader.Packages())

	_, err = index.Lookup("io.Writer")
	assert.ErrorIs(t, err, ErrUnknownTrait)
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	iface := &InterfaceNode{Name: "Reader", Package: "io"}
	typ := &TypeNode{Name: "File", Package: "example.com/fs", Kind: "struct"}

	got := describe(iface, typ, true, DefaultLinkBase)
	assert.Equal(t,
		`impl <a class="interface" href="https://pkg.go.dev/io#Reader" title="interface io.Reader">Reader</a>`+
			` for <a class="struct" href="https://pkg.go.dev/example.com/fs#File" title="struct example.com/fs.File">*File</a>`,
		got)
	assert.Equal(t, "impl Reader for *File", PlainText(got))
}

func TestDescribe_UniverseAndEscaping(t *testing.T) {
	t.Parallel()

	iface := &InterfaceNode{Name: "error"}
	typ := &TypeNode{Name: "E", Package: "x", Kind: "type"}

	got := describe(iface, typ, false, "https://docs.example/?q=1&p=")
	assert.Contains(t, got, `href="https://docs.example/?q=1&amp;p=builtin#error"`)
	assert.Contains(t, got, `title="interface error"`)
	assert.Equal(t, "impl error for E", PlainText(got))
}

func TestPlainText_RustdocEntities(t *testing.T) {
	t.Parallel()

	text := `impl&lt;T:&nbsp;<a class="trait" href="x">Send</a>&gt; <a class="trait" href="y">Error</a> for <a class="struct" href="z">SendError</a>&lt;T&gt;`
	assert.Equal(t, "impl<T: Send> Error for SendError<T>", PlainText(text))
}

func TestBuild_GroupsAndOrders(t *testing.T) {
	t.Parallel()

	c := NewCollector("example.com/m", "", nil)
	c.Types["example.com/m.B"] = &TypeNode{Name: "B", Package: "example.com/m", Kind: "struct", File: "a.go", Line: 20}
	c.Types["example.com/m.A"] = &TypeNode{Name: "A", Package: "example.com/m", Kind: "struct", File: "a.go", Line: 10}
	c.Types["example.com/m/sub.C"] = &TypeNode{Name: "C", Package: "example.com/m/sub", Kind: "type", File: "sub/c.go", Line: 3}
	c.Interfaces["example.com/m.I"] = &InterfaceNode{Name: "I", Package: "example.com/m"}
	c.Interfaces["error"] = &InterfaceNode{Name: "error", Extern: true}
	c.Implements = []ImplementsEdge{
		{Type: "example.com/m.B", Interface: "example.com/m.I", Synthetic: true},
		{Type: "example.com/m.A", Interface: "example.com/m.I"},
		{Type: "example.com/m/sub.C", Interface: "example.com/m.I", ViaPointer: true},
		{Type: "example.com/m/sub.C", Interface: "error"},
		{Type: "example.com/m.Missing", Interface: "error"},
	}

	index := Build(c, BuildOptions{})
	assert.Equal(t, []string{"error", "example.com/m.I"}, index.Traits())

	table := index["example.com/m.I"]
	require.NoError(t, table.Validate())
	assert.Equal(t, []string{"example.com/m", "example.com/m/sub"}, table.Packages())
	require.Len(t, table["example.com/m"], 2)
	assert.Equal(t, []string{"example.com/m.A"}, table["example.com/m"][0].Types)
	assert.False(t, table["example.com/m"][0].Synthetic)
	assert.Equal(t, []string{"example.com/m.B"}, table["example.com/m"][1].Types)
	assert.True(t, table["example.com/m"][1].Synthetic)
	assert.Equal(t, "impl I for *C", PlainText(table["example.com/m/sub"][0].Text))

	assert.Equal(t, 1, index["error"].Len())
}
