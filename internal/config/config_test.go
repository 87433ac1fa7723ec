package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symscope/internal/graph"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("SYMSCOPE_HOME", t.TempDir())
	t.Setenv("SYMSCOPE_ANALYZER", "")
	t.Setenv("SYMSCOPE_ANALYZER_BINARY", "")
	t.Setenv("SYMSCOPE_LOG_LEVEL", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	opts := cfg.QueryOptions()
	assert.Equal(t, graph.AccessProtected, opts.External.MinAccess)
	assert.Equal(t, 200, opts.MaxResults)
	assert.Contains(t, opts.Project.Exclude, "**/obj/**")
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel())
}

func TestLoadFile(t *testing.T) {
	t.Setenv("SYMSCOPE_ANALYZER", "")
	t.Setenv("SYMSCOPE_ANALYZER_BINARY", "")
	t.Setenv("SYMSCOPE_LOG_LEVEL", "")
	path := writeConfig(t, `
[analyzer]
name = "csharp-ls"
packages_dir = "/opt/analyzers"
path_fallback = false

[search]
min_access = "public"
include_synthetic = true
max_results = 0

[project]
exclude = ["generated/**"]
include_indirect = true
mod_cache = "/cache/mod"

[log]
level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "csharp-ls", cfg.Analyzer.Name)
	assert.False(t, cfg.Analyzer.PathFallback)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel())

	opts := cfg.QueryOptions()
	assert.Equal(t, graph.AccessPublic, opts.External.MinAccess)
	assert.True(t, opts.External.IncludeSynthetic)
	assert.Zero(t, opts.MaxResults)
	assert.Equal(t, []string{"generated/**"}, opts.Project.Exclude)
	assert.True(t, opts.Project.IncludeIndirect)
	assert.Equal(t, "/cache/mod", opts.Project.ModCache)

	m, err := cfg.Manager()
	require.NoError(t, err)
	assert.Equal(t, "/opt/analyzers", m.PackagesDir())
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "[analyzer]\nname = \"gopls\"\n[log]\nlevel = \"warn\"\n")
	t.Setenv("SYMSCOPE_ANALYZER", "pyright")
	t.Setenv("SYMSCOPE_ANALYZER_BINARY", "pyright-langserver-dev")
	t.Setenv("SYMSCOPE_LOG_LEVEL", "error")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pyright", cfg.Analyzer.Name)
	assert.Equal(t, "pyright-langserver-dev", cfg.Analyzer.Binary)
	assert.Equal(t, zerolog.ErrorLevel, cfg.LogLevel())
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("SYMSCOPE_LOG_LEVEL", "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")

	_, err = Load(writeConfig(t, "[search\nmin_access = 1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Search.MinAccess = "friends"
	cfg.Search.MaxResults = -1
	cfg.Project.Exclude = []string{"[unclosed"}
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"search.min_access", "search.max_results", "project.exclude", "log.level"} {
		assert.Contains(t, err.Error(), want)
	}

	assert.NoError(t, Default().Validate())
}
