package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/zeebo/blake3"
)

// Output formats understood by the Emitter.
const (
	FormatJS   = "js"
	FormatJSON = "json"
)

const manifestFile = "manifest.json"

// ManifestFile describes one emitted file.
type ManifestFile struct {
	Path   string `json:"path"`
	Digest string `json:"digest"`
	Size   int    `json:"size"`
}

// ManifestEntry describes the files emitted for one trait.
type ManifestEntry struct {
	Implementors int            `json:"implementors"`
	Packages     int            `json:"packages"`
	Files        []ManifestFile `json:"files"`
}

// Emitter writes implementors tables below a documentation root. Files are
// replaced atomically and left untouched when their content is unchanged.
type Emitter struct {
	root    string
	formats []string
	gzip    bool
	log     *slog.Logger

	mu        sync.Mutex
	manifest  map[string]ManifestEntry
	written   int
	unchanged int
}

// NewEmitter returns an Emitter writing the given formats below root.
func NewEmitter(root string, formats []string, precompress bool, logger *slog.Logger) (*Emitter, error) {
	if root == "" {
		return nil, errors.New("emitter: output directory is required")
	}
	if len(formats) == 0 {
		formats = []string{FormatJS}
	}
	for _, f := range formats {
		if f != FormatJS && f != FormatJSON {
			return nil, fmt.Errorf("emitter: unknown format %q", f)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		root:     root,
		formats:  formats,
		gzip:     precompress,
		log:      logger.With("component", "emitter"),
		manifest: make(map[string]ManifestEntry),
	}, nil
}

// Handle writes the table of one trait in every configured format.
func (e *Emitter) Handle(trait string, t Table) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%s: %w", trait, err)
	}

	entry := ManifestEntry{Implementors: t.Len(), Packages: len(t)}
	for _, format := range e.formats {
		var buf bytes.Buffer
		var err error
		switch format {
		case FormatJS:
			err = EncodeTable(&buf, t)
		case FormatJSON:
			err = EncodeTableJSON(&buf, t)
		}
		if err != nil {
			return fmt.Errorf("encode %s: %w", trait, err)
		}

		rel := TraitFile(trait, "."+format)
		digest, changed, err := e.writeIfChanged(rel, buf.Bytes())
		if err != nil {
			return err
		}
		entry.Files = append(entry.Files, ManifestFile{Path: rel, Digest: digest, Size: buf.Len()})

		if e.gzip && (changed || !e.exists(rel+".gz")) {
			compressed, err := gzipBytes(buf.Bytes())
			if err != nil {
				return fmt.Errorf("compress %s: %w", rel, err)
			}
			if _, _, err := e.writeIfChanged(rel+".gz", compressed); err != nil {
				return err
			}
		}
	}

	e.mu.Lock()
	e.manifest[trait] = entry
	e.mu.Unlock()
	return nil
}

// Close writes the manifest of every trait handled so far.
func (e *Emitter) Close() error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	e.mu.Lock()
	err := enc.Encode(e.manifest)
	traits := len(e.manifest)
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if _, _, err := e.writeIfChanged(implementorsDir+"/"+manifestFile, buf.Bytes()); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.log.Info("emitted implementors tables",
		"traits", traits, "written", e.written, "unchanged", e.unchanged)
	return nil
}

func (e *Emitter) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(e.root, filepath.FromSlash(rel)))
	return err == nil
}

// writeIfChanged atomically replaces rel with data unless the file already
// holds the same bytes. It returns the hex BLAKE3 digest of data.
func (e *Emitter) writeIfChanged(rel string, data []byte) (string, bool, error) {
	sum := blake3.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	target := filepath.Join(e.root, filepath.FromSlash(rel))

	existing, err := os.ReadFile(target)
	switch {
	case err == nil:
		if blake3.Sum256(existing) == sum {
			e.mu.Lock()
			e.unchanged++
			e.mu.Unlock()
			e.log.Debug("unchanged", "path", rel)
			return digest, false, nil
		}
	case !errors.Is(err, fs.ErrNotExist):
		return "", false, fmt.Errorf("read %s: %w", rel, err)
	}

	if err := writeAtomic(target, data); err != nil {
		return "", false, err
	}
	e.mu.Lock()
	e.written++
	e.mu.Unlock()
	e.log.Debug("wrote", "path", rel, "bytes", len(data))
	return digest, true, nil
}

func writeAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".implindex-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", target, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("rename %s: %w", target, err)
	}
	return nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
