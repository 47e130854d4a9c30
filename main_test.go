package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_BuildThenInspect(t *testing.T) {
	ctx := context.Background()
	out := t.TempDir()
	db := filepath.Join(t.TempDir(), "index.db")

	var stdout, stderr bytes.Buffer
	err := run(ctx, []string{
		"build",
		"--dir", filepath.Join("testdata", "shapes"),
		"--out", out,
		"--format", "js,json",
		"--sqlite", db,
		"--extern", "error,fmt.Stringer",
		"--merge", filepath.Join("testdata", "rustdoc"),
		"--log-level", "debug",
	}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())
	assert.Contains(t, stderr.String(), "module=example.com/shapes")

	for _, rel := range []string{
		"implementors/example.com/shapes/interface.Shape.js",
		"implementors/example.com/shapes/interface.Shape.json",
		"implementors/builtin/interface.error.js",
		"implementors/fmt/interface.Stringer.js",
		"implementors/core/hash/trait.Hash.js",
		"implementors/manifest.json",
	} {
		assert.FileExists(t, filepath.Join(out, filepath.FromSlash(rel)))
	}

	index, err := ReadDir(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"core::hash::Hash", "error", "example.com/shapes.Shape", "fmt.Stringer"}, index.Traits())
	assert.Equal(t, 5, index["example.com/shapes.Shape"].Len())

	stdout.Reset()
	require.NoError(t, run(ctx, []string{"inspect", "--sqlite", db, "--type", "example.com/shapes.ParseError"}, &stdout, &stderr))
	assert.Equal(t, "error\n", stdout.String())

	stdout.Reset()
	require.NoError(t, run(ctx, []string{"inspect", "-v", out}, &stdout, &stderr))
	summary := stdout.String()
	assert.Contains(t, summary, "core::hash::Hash")
	assert.Contains(t, summary, "impl Hash for PodCastError")
	assert.Contains(t, summary, "impl Shape for *Square")
	assert.True(t, strings.HasPrefix(summary, "TRAIT"))
}

func TestRun_InspectMalformed(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "interface.Reader.js")
	require.NoError(t, os.WriteFile(p, []byte("garbage"), 0o644))

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"inspect", p}, &stdout, &stderr)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestRun_InspectFixtureFile(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"inspect", hashFixture}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "bytemuck")
	assert.Contains(t, stdout.String(), "byteorder")
}

func TestRun_InspectTypeRequiresSQLite(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"inspect", "--type", "example.com/shapes.Circle", hashFixture}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--type requires --sqlite")
	assert.Empty(t, stdout.String())
}

func TestRun_UnknownCommand(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	assert.Error(t, run(context.Background(), nil, &stdout, &stderr))
	assert.Error(t, run(context.Background(), []string{"frobnicate"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage: implindex")

	require.NoError(t, run(context.Background(), []string{"help"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "inspect")
}

func TestDetectModulePath(t *testing.T) {
	t.Parallel()

	path, err := detectModulePath(filepath.Join("testdata", "shapes"))
	require.NoError(t, err)
	assert.Equal(t, "example.com/shapes", path)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("go 1.22\n"), 0o644))
	_, err = detectModulePath(dir)
	assert.Error(t, err)

	_, err = detectModulePath(t.TempDir())
	assert.Error(t, err)
}
