package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrMalformed is returned when an implementors file does not match the
// expected layout.
var ErrMalformed = errors.New("malformed implementors file")

const (
	implementorsDir = "implementors"

	tableHeader = "(function() {var implementors = {};"
	tableFooter = "if (window.register_implementors) {window.register_implementors(implementors);} else {window.pending_implementors = implementors;}})()"
	entryPrefix = "implementors["
)

// EncodeTable writes t in the self-registering script layout a documentation
// page loads: the table is handed to window.register_implementors when the
// page has installed it, and parked in window.pending_implementors otherwise.
func EncodeTable(w io.Writer, t Table) error {
	var buf bytes.Buffer
	buf.WriteString(tableHeader)
	buf.WriteByte('\n')
	for _, pkg := range t.Packages() {
		key, err := marshalNoEscape(pkg)
		if err != nil {
			return err
		}
		list := t[pkg]
		if list == nil {
			list = []Implementor{}
		}
		value, err := marshalNoEscape(list)
		if err != nil {
			return fmt.Errorf("encode %s: %w", pkg, err)
		}
		buf.WriteString(entryPrefix)
		buf.Write(key)
		buf.WriteString("] = ")
		buf.Write(value)
		buf.WriteString(";\n")
	}
	buf.WriteString(tableFooter)
	_, err := w.Write(buf.Bytes())
	return err
}

// EncodeTableJSON writes t as a plain JSON object.
func EncodeTableJSON(w io.Writer, t Table) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(t)
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// DecodeTable parses a table written by EncodeTable or by rustdoc.
func DecodeTable(r io.Reader) (Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	lines := strings.Split(text, "\n")

	table := make(Table)
	sawHeader, sawFooter := false, false
	for i, line := range lines {
		lineNo := i + 1
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case sawFooter:
			return nil, fmt.Errorf("%w: line %d: content after footer", ErrMalformed, lineNo)
		case !sawHeader:
			if line != tableHeader {
				return nil, fmt.Errorf("%w: line %d: missing header", ErrMalformed, lineNo)
			}
			sawHeader = true
		case strings.HasPrefix(line, entryPrefix):
			pkg, list, err := parseEntry(line)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, lineNo, err)
			}
			table[pkg] = list
		case line == tableFooter:
			sawFooter = true
		default:
			return nil, fmt.Errorf("%w: line %d: unexpected content", ErrMalformed, lineNo)
		}
	}
	if !sawHeader {
		return nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}
	if !sawFooter {
		return nil, fmt.Errorf("%w: missing footer", ErrMalformed)
	}
	return table, nil
}

// parseEntry parses `implementors["pkg"] = [...];`.
func parseEntry(line string) (string, []Implementor, error) {
	rest := strings.TrimPrefix(line, entryPrefix)
	idx := strings.Index(rest, "] = ")
	if idx < 0 {
		return "", nil, errors.New("missing assignment")
	}
	var pkg string
	if err := json.Unmarshal([]byte(rest[:idx]), &pkg); err != nil {
		return "", nil, fmt.Errorf("package key: %w", err)
	}
	value := strings.TrimSuffix(strings.TrimSpace(rest[idx+len("] = "):]), ";")
	var list []Implementor
	if err := json.Unmarshal([]byte(value), &list); err != nil {
		return "", nil, fmt.Errorf("implementors of %s: %w", pkg, err)
	}
	if list == nil {
		list = []Implementor{}
	}
	return pkg, list, nil
}

// TraitFile returns the slash-separated path of a trait's table relative to
// the documentation root. Rust traits (std::error::Error) map to
// implementors/std/error/trait.Error<ext>; Go interfaces (io.Reader) map to
// implementors/io/interface.Reader<ext>, and universe interfaces to
// implementors/builtin/interface.error<ext>.
func TraitFile(trait, ext string) string {
	if strings.Contains(trait, "::") {
		segs := strings.Split(trait, "::")
		dir := path.Join(segs[:len(segs)-1]...)
		return path.Join(implementorsDir, dir, "trait."+segs[len(segs)-1]+ext)
	}
	idx := strings.LastIndex(trait, ".")
	if idx < 0 {
		return path.Join(implementorsDir, "builtin", "interface."+trait+ext)
	}
	return path.Join(implementorsDir, trait[:idx], "interface."+trait[idx+1:]+ext)
}

// TraitFromFile is the inverse of TraitFile. rel may omit the leading
// implementors directory.
func TraitFromFile(rel string) (string, bool) {
	rel = strings.TrimPrefix(filepath.ToSlash(rel), implementorsDir+"/")
	dir, base := path.Split(rel)
	dir = strings.TrimSuffix(dir, "/")
	base = strings.TrimSuffix(base, path.Ext(base))

	switch {
	case strings.HasPrefix(base, "trait."):
		name := strings.TrimPrefix(base, "trait.")
		if dir == "" || name == "" {
			return "", false
		}
		return strings.ReplaceAll(dir, "/", "::") + "::" + name, true
	case strings.HasPrefix(base, "interface."):
		name := strings.TrimPrefix(base, "interface.")
		if dir == "" || name == "" {
			return "", false
		}
		if dir == "builtin" {
			return name, true
		}
		return dir + "." + name, true
	}
	return "", false
}

// ReadDir loads every implementors table under root. root may be either a
// documentation root or its implementors directory.
func ReadDir(root string) (Index, error) {
	base := root
	if info, err := os.Stat(filepath.Join(root, implementorsDir)); err == nil && info.IsDir() {
		base = filepath.Join(root, implementorsDir)
	}

	index := make(Index)
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(p)
		if ext != ".js" && ext != ".json" {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		trait, ok := TraitFromFile(rel)
		if !ok {
			return nil
		}
		table, err := readTableFile(p)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		index.Merge(Index{trait: table})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return index, nil
}

// ReadFile loads a single table file, returning the trait it belongs to.
func ReadFile(p string) (string, Table, error) {
	slashed := filepath.ToSlash(p)
	rel := path.Join(path.Base(path.Dir(slashed)), path.Base(slashed))
	if idx := strings.LastIndex(slashed, implementorsDir+"/"); idx >= 0 {
		rel = slashed[idx:]
	}
	trait, ok := TraitFromFile(rel)
	if !ok {
		trait = path.Base(slashed)
	}
	table, err := readTableFile(p)
	if err != nil {
		return "", nil, err
	}
	return trait, table, nil
}

func readTableFile(p string) (Table, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if filepath.Ext(p) == ".json" {
		var t Table
		if err := json.NewDecoder(f).Decode(&t); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return t, nil
	}
	return DecodeTable(f)
}
