package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// envPrefix namespaces every environment variable read by LoadConfig.
const envPrefix = "IMPLINDEX_"

// Config holds the settings of a build run.
type Config struct {
	Dir               string   `yaml:"dir" env:"DIR"`
	Patterns          []string `yaml:"patterns" env:"PATTERNS"`
	OutDir            string   `yaml:"out_dir" env:"OUT_DIR"`
	Formats           []string `yaml:"formats" env:"FORMATS"`
	Gzip              bool     `yaml:"gzip" env:"GZIP"`
	Extern            []string `yaml:"extern" env:"EXTERN"`
	IncludeUnexported bool     `yaml:"include_unexported" env:"INCLUDE_UNEXPORTED"`
	LinkBase          string   `yaml:"link_base" env:"LINK_BASE"`
	Merge             []string `yaml:"merge" env:"MERGE"`
	SQLite            string   `yaml:"sqlite" env:"SQLITE"`

	Neo4j Neo4jConfig `yaml:"neo4j" envPrefix:"NEO4J_"`
	Log   LogConfig   `yaml:"log" envPrefix:"LOG_"`
}

// Neo4jConfig configures the optional graph sink.
type Neo4jConfig struct {
	URI   string `yaml:"uri" env:"URI"`
	User  string `yaml:"user" env:"USER"`
	Pass  string `yaml:"pass" env:"PASS"`
	Clean bool   `yaml:"clean" env:"CLEAN"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() Config {
	return Config{
		Dir:      ".",
		Patterns: []string{"./..."},
		OutDir:   "doc",
		Formats:  []string{FormatJS},
		Extern:   []string{"error", "fmt.Stringer"},
		LinkBase: DefaultLinkBase,
		Neo4j:    Neo4jConfig{User: "neo4j"},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig layers defaults, the YAML file named by --config, environment
// variables and explicitly set flags, in that order. environ may be nil to
// read the process environment.
func LoadConfig(args []string, environ map[string]string) (Config, error) {
	cfg := DefaultConfig()

	var (
		configPath string
		flagCfg    Config
	)
	flagSet := pflag.NewFlagSet("implindex build", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "YAML configuration file")
	flagSet.StringVar(&flagCfg.Dir, "dir", cfg.Dir, "project root directory")
	flagSet.StringSliceVar(&flagCfg.Patterns, "pattern", cfg.Patterns, "package patterns to load")
	flagSet.StringVar(&flagCfg.OutDir, "out", cfg.OutDir, "documentation root to write implementors tables to (empty disables)")
	flagSet.StringSliceVar(&flagCfg.Formats, "format", cfg.Formats, "output formats: js, json")
	flagSet.BoolVar(&flagCfg.Gzip, "gzip", false, "also write precompressed .gz files")
	flagSet.StringSliceVar(&flagCfg.Extern, "extern", cfg.Extern, "interfaces outside the module to index (error, io.Reader, ...)")
	flagSet.BoolVar(&flagCfg.IncludeUnexported, "include-unexported", false, "index unexported types and interfaces")
	flagSet.StringVar(&flagCfg.LinkBase, "link-base", cfg.LinkBase, "URL prefix of documentation links")
	flagSet.StringSliceVar(&flagCfg.Merge, "merge", nil, "existing documentation roots whose tables are merged in")
	flagSet.StringVar(&flagCfg.SQLite, "sqlite", "", "SQLite database to store tables in")
	flagSet.StringVar(&flagCfg.Neo4j.URI, "neo4j-uri", "", "Neo4j bolt URI")
	flagSet.StringVar(&flagCfg.Neo4j.User, "neo4j-user", cfg.Neo4j.User, "Neo4j username")
	flagSet.StringVar(&flagCfg.Neo4j.Pass, "neo4j-pass", "", "Neo4j password")
	flagSet.BoolVar(&flagCfg.Neo4j.Clean, "clean", false, "clean existing implementor graph data before loading")
	flagSet.StringVar(&flagCfg.Log.Level, "log-level", cfg.Log.Level, "debug, info, warn or error")
	flagSet.StringVar(&flagCfg.Log.Format, "log-format", cfg.Log.Format, "text or json")

	if err := flagSet.Parse(args); err != nil {
		return cfg, err
	}
	if flagSet.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected arguments: %s", strings.Join(flagSet.Args(), " "))
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", configPath, err)
		}
	}

	opts := env.Options{Prefix: envPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	overrides := map[string]func(){
		"dir":                func() { cfg.Dir = flagCfg.Dir },
		"pattern":            func() { cfg.Patterns = flagCfg.Patterns },
		"out":                func() { cfg.OutDir = flagCfg.OutDir },
		"format":             func() { cfg.Formats = flagCfg.Formats },
		"gzip":               func() { cfg.Gzip = flagCfg.Gzip },
		"extern":             func() { cfg.Extern = flagCfg.Extern },
		"include-unexported": func() { cfg.IncludeUnexported = flagCfg.IncludeUnexported },
		"link-base":          func() { cfg.LinkBase = flagCfg.LinkBase },
		"merge":              func() { cfg.Merge = flagCfg.Merge },
		"sqlite":             func() { cfg.SQLite = flagCfg.SQLite },
		"neo4j-uri":          func() { cfg.Neo4j.URI = flagCfg.Neo4j.URI },
		"neo4j-user":         func() { cfg.Neo4j.User = flagCfg.Neo4j.User },
		"neo4j-pass":         func() { cfg.Neo4j.Pass = flagCfg.Neo4j.Pass },
		"clean":              func() { cfg.Neo4j.Clean = flagCfg.Neo4j.Clean },
		"log-level":          func() { cfg.Log.Level = flagCfg.Log.Level },
		"log-format":         func() { cfg.Log.Format = flagCfg.Log.Format },
	}
	flagSet.Visit(func(f *pflag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply()
		}
	})

	return cfg, cfg.Validate()
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []error
	if c.OutDir == "" && c.SQLite == "" && c.Neo4j.URI == "" {
		errs = append(errs, errors.New("no output configured: set out, sqlite or neo4j-uri"))
	}
	for _, f := range c.Formats {
		if f != FormatJS && f != FormatJSON {
			errs = append(errs, fmt.Errorf("unknown format %q", f))
		}
	}
	if c.Neo4j.URI != "" && c.Neo4j.Pass == "" {
		errs = append(errs, errors.New("neo4j-pass is required with neo4j-uri"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// NewLogger builds the slog logger described by c.
func NewLogger(c LogConfig, w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
