// Package config handles configuration loading from TOML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"symscope/internal/graph"
	"symscope/internal/pkgmgr"
	"symscope/internal/project"
	"symscope/internal/query"
)

// Config is the root configuration structure.
type Config struct {
	Analyzer AnalyzerConfig `toml:"analyzer"`
	Search   SearchConfig   `toml:"search"`
	Project  ProjectConfig  `toml:"project"`
	Log      LogConfig      `toml:"log"`
}

// AnalyzerConfig selects and locates language analyzers.
type AnalyzerConfig struct {
	// Name pins one analyzer for every file. Empty picks by language.
	Name string `toml:"name"`
	// Binary overrides the analyzer's entry point file name.
	Binary string `toml:"binary"`
	// PackagesDir overrides $SYMSCOPE_HOME/packages.
	PackagesDir string `toml:"packages_dir"`
	// PathFallback allows analyzers found on $PATH.
	PathFallback bool `toml:"path_fallback"`
}

// SearchConfig tunes library searches.
type SearchConfig struct {
	// MinAccess is the accessibility floor for library members.
	MinAccess        string `toml:"min_access"`
	IncludeSynthetic bool   `toml:"include_synthetic"`
	// MaxResults caps results when a query passes no limit. Zero disables the cap.
	MaxResults int `toml:"max_results"`
}

// ProjectConfig tunes project loading.
type ProjectConfig struct {
	Exclude         []string `toml:"exclude"`
	IncludeIndirect bool     `toml:"include_indirect"`
	NuGetPackages   string   `toml:"nuget_packages"`
	ModCache        string   `toml:"mod_cache"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Analyzer: AnalyzerConfig{PathFallback: true},
		Search:   SearchConfig{MinAccess: "protected", MaxResults: 200},
		Project:  ProjectConfig{Exclude: []string{"**/bin/**", "**/obj/**", "**/node_modules/**"}},
		Log:      LogConfig{Level: "info"},
	}
}

// DefaultPath is config.toml under the symscope home directory.
func DefaultPath() (string, error) {
	home, err := pkgmgr.Home()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "config.toml"), nil
}

// Load reads configuration from a TOML file and applies environment variable
// overrides. An empty path reads DefaultPath when it exists; a missing
// explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if _, err := os.Stat(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	} else if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	var errs []error

	if _, err := graph.ParseAccessibility(c.Search.MinAccess); err != nil {
		errs = append(errs, fmt.Errorf("search.min_access=%q must be one of private, internal, protected, public", c.Search.MinAccess))
	}
	if c.Search.MaxResults < 0 {
		errs = append(errs, fmt.Errorf("search.max_results=%d must not be negative", c.Search.MaxResults))
	}
	for _, pattern := range c.Project.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, fmt.Errorf("project.exclude pattern %q is invalid", pattern))
		}
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level=%q is invalid: %v", c.Log.Level, err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	for _, setter := range []struct {
		env   string
		apply func(string)
	}{
		{"SYMSCOPE_ANALYZER", func(v string) { cfg.Analyzer.Name = v }},
		{"SYMSCOPE_ANALYZER_BINARY", func(v string) { cfg.Analyzer.Binary = v }},
		{"SYMSCOPE_LOG_LEVEL", func(v string) { cfg.Log.Level = v }},
	} {
		if v := os.Getenv(setter.env); v != "" {
			setter.apply(v)
		}
	}
}

// QueryOptions converts the search and project sections. Call after Validate.
func (c *Config) QueryOptions() query.Options {
	opts := query.DefaultOptions()
	if access, err := graph.ParseAccessibility(c.Search.MinAccess); err == nil {
		opts.External.MinAccess = access
	}
	opts.External.IncludeSynthetic = c.Search.IncludeSynthetic
	opts.MaxResults = c.Search.MaxResults
	opts.Project = project.Options{
		Exclude:         c.Project.Exclude,
		IncludeIndirect: c.Project.IncludeIndirect,
		NuGetPackages:   c.Project.NuGetPackages,
		ModCache:        c.Project.ModCache,
	}
	return opts
}

// LogLevel returns the configured level, info when unparsable.
func (c *Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// Manager returns the analyzer package manager described by the analyzer section.
func (c *Config) Manager() (*pkgmgr.Manager, error) {
	return pkgmgr.NewManager(c.Analyzer.PackagesDir, c.Analyzer.PathFallback)
}
