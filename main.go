// Command implindex builds implementor indexes: for every interface it lists
// the concrete types implementing it, grouped by declaring package, and
// writes the result as static tables a documentation browser loads on page
// view. Tables can also be loaded into SQLite or Neo4j.
//
//	implindex build   [--dir .] [--out doc] [--sqlite idx.db] [--neo4j-uri ...]
//	implindex inspect [--verbose] [--sqlite idx.db] [--type pkg.T] [path ...]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/pflag"
	"golang.org/x/mod/modfile"
	"golang.org/x/tools/go/packages"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stderr)
		return errors.New("missing command")
	}
	switch args[0] {
	case "build":
		cfg, err := LoadConfig(args[1:], nil)
		if err != nil {
			return err
		}
		return runBuild(ctx, cfg, NewLogger(cfg.Log, stderr))
	case "inspect":
		return runInspect(ctx, args[1:], stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		printUsage(stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: implindex <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  build    collect interface implementations and write implementors tables")
	fmt.Fprintln(w, "  inspect  summarize existing implementors tables")
}

func runBuild(ctx context.Context, cfg Config, logger *slog.Logger) error {
	// Resolve absolute path and module name.
	absDir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return err
	}
	modulePath, err := detectModulePath(absDir)
	if err != nil {
		return fmt.Errorf("cannot detect Go module: %w", err)
	}
	logger.Info("starting build", "module", modulePath, "dir", absDir)

	pkgs, err := loadPackages(ctx, absDir, cfg.Patterns, logger)
	if err != nil {
		return err
	}

	collector := NewCollector(modulePath, absDir, logger)
	collector.IncludeUnexported = cfg.IncludeUnexported
	collector.CollectTypes(pkgs)
	collector.ResolveExtern(pkgs, cfg.Extern)
	collector.CollectImplements()
	logger.Info("collected", "stats", collector.Stats())

	registry := NewRegistry()
	for _, dir := range cfg.Merge {
		prior, err := ReadDir(dir)
		if err != nil {
			return fmt.Errorf("merge %s: %w", dir, err)
		}
		logger.Info("merging existing tables", "dir", dir, "traits", len(prior))
		if err := registry.PublishIndex(prior); err != nil {
			return err
		}
	}
	if err := registry.PublishIndex(Build(collector, BuildOptions{LinkBase: cfg.LinkBase})); err != nil {
		return err
	}

	sinks, closeSinks, err := openSinks(ctx, cfg, collector, logger)
	if err != nil {
		return err
	}
	attachErr := registry.Attach(Fanout(sinks...))
	if err := errors.Join(attachErr, closeSinks()); err != nil {
		return err
	}

	logger.Info("done", "traits", len(registry.Snapshot()))
	return nil
}

// openSinks opens every configured output and returns their handlers along
// with a function releasing them. The Neo4j sink is seeded with the
// collected packages and interfaces before any table arrives.
func openSinks(ctx context.Context, cfg Config, c *Collector, logger *slog.Logger) ([]Handler, func() error, error) {
	var (
		handlers []Handler
		closers  []func() error
	)
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	if cfg.OutDir != "" {
		emitter, err := NewEmitter(cfg.OutDir, cfg.Formats, cfg.Gzip, logger)
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, emitter.Handle)
		closers = append(closers, emitter.Close)
	}

	if cfg.SQLite != "" {
		store, err := OpenSQLite(cfg.SQLite)
		if err != nil {
			return nil, nil, errors.Join(err, closeAll())
		}
		handlers = append(handlers, func(trait string, t Table) error {
			return store.ReplaceTable(ctx, trait, t)
		})
		closers = append(closers, store.Close)
	}

	if cfg.Neo4j.URI != "" {
		loader, err := NewNeo4jLoader(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Pass, logger)
		if err != nil {
			return nil, nil, errors.Join(err, closeAll())
		}
		closers = append(closers, func() error { loader.Close(); return nil })
		if cfg.Neo4j.Clean {
			if err := loader.CleanGraph(); err != nil {
				return nil, nil, errors.Join(err, closeAll())
			}
		}
		if err := loader.CreateIndexes(); err != nil {
			return nil, nil, errors.Join(err, closeAll())
		}
		if err := loader.LoadPackages(c.Packages); err != nil {
			return nil, nil, errors.Join(err, closeAll())
		}
		if err := loader.LoadInterfaces(c.Interfaces); err != nil {
			return nil, nil, errors.Join(err, closeAll())
		}
		handlers = append(handlers, loader.LoadTable)
	}

	return handlers, closeAll, nil
}

func loadPackages(ctx context.Context, dir string, patterns []string, logger *slog.Logger) ([]*packages.Package, error) {
	logger.Info("loading packages", "patterns", patterns)
	cfg := &packages.Config{
		Context: ctx,
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedCompiledGoFiles |
			packages.NeedImports | packages.NeedDeps | packages.NeedTypes |
			packages.NeedSyntax | packages.NeedTypesInfo | packages.NeedTypesSizes,
		Dir: dir,
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load packages: %w", err)
	}
	if n := packages.PrintErrors(pkgs); n > 0 {
		logger.Warn("package errors, continuing anyway", "count", n)
	}
	logger.Info("loaded packages", "count", len(pkgs))
	return pkgs, nil
}

// detectModulePath reads the go.mod file in dir and returns the module path.
func detectModulePath(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "go.mod"))
	if err != nil {
		return "", fmt.Errorf("cannot read go.mod: %w", err)
	}
	path := modfile.ModulePath(data)
	if path == "" {
		return "", errors.New("module directive not found in go.mod")
	}
	return path, nil
}

func runInspect(ctx context.Context, args []string, stdout io.Writer) error {
	var (
		verbose    bool
		sqlitePath string
		typePath   string
	)
	flagSet := pflag.NewFlagSet("implindex inspect", pflag.ContinueOnError)
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "list every implementor")
	flagSet.StringVar(&sqlitePath, "sqlite", "", "read tables from this SQLite database instead of files")
	flagSet.StringVar(&typePath, "type", "", "with --sqlite, list the traits this type path implements")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if typePath != "" && sqlitePath == "" {
		return errors.New("--type requires --sqlite")
	}

	index := make(Index)
	if sqlitePath != "" {
		store, err := OpenSQLite(sqlitePath)
		if err != nil {
			return err
		}
		defer store.Close()

		if typePath != "" {
			traits, err := store.Implementations(ctx, typePath)
			if err != nil {
				return err
			}
			for _, trait := range traits {
				fmt.Fprintln(stdout, trait)
			}
			return nil
		}
		traits, err := store.Traits(ctx)
		if err != nil {
			return err
		}
		for _, trait := range traits {
			t, err := store.Table(ctx, trait)
			if err != nil {
				return err
			}
			index[trait] = t
		}
	}

	for _, p := range flagSet.Args() {
		info, err := os.Stat(p)
		if err != nil {
			return err
		}
		if info.IsDir() {
			x, err := ReadDir(p)
			if err != nil {
				return err
			}
			index.Merge(x)
			continue
		}
		trait, t, err := ReadFile(p)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		index.Merge(Index{trait: t})
	}

	return writeSummary(stdout, index, verbose)
}

// writeSummary prints one row per trait and package. Tables that fail
// validation abort the summary.
func writeSummary(w io.Writer, index Index, verbose bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRAIT\tPACKAGE\tIMPLEMENTORS\tSYNTHETIC")
	for _, trait := range index.Traits() {
		t := index[trait]
		if err := t.Validate(); err != nil {
			tw.Flush()
			return fmt.Errorf("%s: %w", trait, err)
		}
		for _, pkg := range t.Packages() {
			synthetic := 0
			for _, imp := range t[pkg] {
				if imp.Synthetic {
					synthetic++
				}
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", trait, pkg, len(t[pkg]), synthetic)
			if verbose {
				for _, imp := range t[pkg] {
					fmt.Fprintf(tw, "\t\t%s\t\n", PlainText(imp.Text))
				}
			}
		}
	}
	return tw.Flush()
}
