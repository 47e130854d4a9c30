package main

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
)

var (
	// ErrUnknownTrait is returned when a trait has no table.
	ErrUnknownTrait = errors.New("unknown trait")
	// ErrInvalidTable is returned by Table.Validate.
	ErrInvalidTable = errors.New("invalid implementors table")
)

// DefaultLinkBase is where generated descriptions point to.
const DefaultLinkBase = "https://pkg.go.dev/"

// Implementor is one entry of an implementors table.
type Implementor struct {
	Text      string   `json:"text"`
	Synthetic bool     `json:"synthetic"`
	Types     []string `json:"types"`
}

// Table maps a declaring package to its ordered implementor list.
type Table map[string][]Implementor

// Packages returns the package keys in sorted order.
func (t Table) Packages() []string {
	return sortedKeys(t)
}

// Len returns the number of implementors across all packages.
func (t Table) Len() int {
	n := 0
	for _, list := range t {
		n += len(list)
	}
	return n
}

// Merge applies other onto t. The incoming list for a package replaces the
// existing one; packages absent from other are kept.
func (t Table) Merge(other Table) {
	for pkg, list := range other {
		t[pkg] = append([]Implementor(nil), list...)
	}
}

// Clone returns a deep copy of the table.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	out.Merge(t)
	return out
}

// Validate checks the table shape.
func (t Table) Validate() error {
	for pkg, list := range t {
		if strings.TrimSpace(pkg) == "" {
			return fmt.Errorf("%w: empty package key", ErrInvalidTable)
		}
		for i, imp := range list {
			if strings.TrimSpace(imp.Text) == "" {
				return fmt.Errorf("%w: %s[%d]: empty text", ErrInvalidTable, pkg, i)
			}
			if len(imp.Types) == 0 {
				return fmt.Errorf("%w: %s[%d]: no type path", ErrInvalidTable, pkg, i)
			}
		}
	}
	return nil
}

// Index maps a trait path to its implementors table.
type Index map[string]Table

// Traits returns the trait paths in sorted order.
func (x Index) Traits() []string {
	return sortedKeys(x)
}

// Lookup returns the table for trait.
func (x Index) Lookup(trait string) (Table, error) {
	t, ok := x[trait]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTrait, trait)
	}
	return t, nil
}

// Merge applies every table of other onto x.
func (x Index) Merge(other Index) {
	for trait, table := range other {
		existing, ok := x[trait]
		if !ok {
			existing = make(Table)
			x[trait] = existing
		}
		existing.Merge(table)
	}
}

// BuildOptions controls description rendering.
type BuildOptions struct {
	LinkBase string
}

// Build groups the collector's implements edges into an Index keyed by
// interface path, with entries grouped by the implementing type's package
// and ordered by declaration position.
func Build(c *Collector, opts BuildOptions) Index {
	if opts.LinkBase == "" {
		opts.LinkBase = DefaultLinkBase
	}

	type entry struct {
		typ *TypeNode
		imp Implementor
	}
	grouped := make(map[string]map[string][]entry)

	for _, e := range c.Implements {
		typ, ok := c.Types[e.Type]
		if !ok {
			continue
		}
		iface, ok := c.Interfaces[e.Interface]
		if !ok {
			continue
		}
		trait := iface.Key()
		if grouped[trait] == nil {
			grouped[trait] = make(map[string][]entry)
		}
		grouped[trait][typ.Package] = append(grouped[trait][typ.Package], entry{
			typ: typ,
			imp: Implementor{
				Text:      describe(iface, typ, e.ViaPointer, opts.LinkBase),
				Synthetic: e.Synthetic,
				Types:     []string{typ.Key()},
			},
		})
	}

	index := make(Index, len(grouped))
	for trait, pkgs := range grouped {
		table := make(Table, len(pkgs))
		for pkg, entries := range pkgs {
			sort.SliceStable(entries, func(i, j int) bool {
				a, b := entries[i].typ, entries[j].typ
				if a.File != b.File {
					return a.File < b.File
				}
				if a.Line != b.Line {
					return a.Line < b.Line
				}
				return a.Name < b.Name
			})
			list := make([]Implementor, len(entries))
			for i, en := range entries {
				list[i] = en.imp
			}
			table[pkg] = list
		}
		index[trait] = table
	}
	return index
}

// describe renders the HTML description of one implementation, e.g.
// impl <a class="interface" …>Reader</a> for <a class="struct" …>*File</a>.
func describe(iface *InterfaceNode, typ *TypeNode, viaPointer bool, linkBase string) string {
	ifacePkg := iface.Package
	if ifacePkg == "" {
		ifacePkg = "builtin"
	}
	name := typ.Name
	if viaPointer {
		name = "*" + name
	}
	var b strings.Builder
	b.WriteString("impl ")
	writeLink(&b, "interface", linkBase+ifacePkg+"#"+iface.Name, iface.Key(), iface.Name)
	b.WriteString(" for ")
	writeLink(&b, typ.Kind, linkBase+typ.Package+"#"+typ.Name, typ.Key(), name)
	return b.String()
}

func writeLink(b *strings.Builder, class, href, path, label string) {
	fmt.Fprintf(b, `<a class="%s" href="%s" title="%s %s">%s</a>`,
		html.EscapeString(class), html.EscapeString(href),
		html.EscapeString(class), html.EscapeString(path), html.EscapeString(label))
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// PlainText strips markup from a description, e.g. "impl Reader for *File".
func PlainText(text string) string {
	plain := html.UnescapeString(tagPattern.ReplaceAllString(text, ""))
	return strings.ReplaceAll(plain, "\u00a0", " ")
}
