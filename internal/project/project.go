// Package project reads project manifests and resolves the source files of a
// project and of the libraries it references.
package project

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"symscope/internal/apperr"
	"symscope/internal/graph"
)

// RefKind says where a referenced library comes from.
type RefKind string

const (
	RefProject RefKind = "project"
	RefPackage RefKind = "package"
	RefModule  RefKind = "module"
)

// Reference is one library the project depends on. Dir and Files are empty
// when the library could not be resolved to sources on disk.
type Reference struct {
	Name    string
	Kind    RefKind
	Version string
	Dir     string
	Files   []string
}

// Resolved reports whether the reference has sources to analyze.
func (r Reference) Resolved() bool {
	return len(r.Files) > 0
}

// Project is a loaded manifest with its sources and references.
type Project struct {
	Name        string
	Root        string
	Manifest    string
	Language    string
	Files       []string
	References  []Reference
	Diagnostics []graph.Diagnostic
}

// Libraries returns the resolved references sorted by name.
func (p *Project) Libraries() []Reference {
	var out []Reference
	for _, r := range p.References {
		if r.Resolved() {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (p *Project) warn(format string, args ...any) {
	p.Diagnostics = append(p.Diagnostics, graph.Diagnostic{
		Severity: graph.SeverityWarning,
		Location: graph.Location{File: p.Manifest},
		Message:  fmt.Sprintf(format, args...),
	})
}

// Options tunes project loading.
type Options struct {
	// Exclude holds doublestar globs matched against slash-separated paths
	// relative to the project root.
	Exclude []string
	// IncludeIndirect also resolves indirect Go module requirements.
	IncludeIndirect bool
	// NuGetPackages overrides the NuGet global packages folder.
	NuGetPackages string
	// ModCache overrides the Go module cache.
	ModCache string
}

// Load reads the manifest at path. path may name a .csproj, a go.mod or a
// directory holding one of them.
func Load(ctx context.Context, path string, opts Options) (*Project, error) {
	manifest, err := findManifest(path)
	if err != nil {
		return nil, err
	}
	switch {
	case strings.EqualFold(filepath.Ext(manifest), ".csproj"):
		return loadCSProj(ctx, manifest, opts)
	case filepath.Base(manifest) == "go.mod":
		return loadGoMod(ctx, manifest, opts)
	}
	return nil, fmt.Errorf("%w: unsupported project file %s", apperr.ErrInvalidQuery, path)
}

func findManifest(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty project path", apperr.ErrInvalidQuery)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrInvalidQuery, err)
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: project not found: %s", apperr.ErrInvalidQuery, path)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrParse, err)
	}
	if !info.IsDir() {
		return abs, nil
	}

	csprojs, _ := filepath.Glob(filepath.Join(abs, "*.csproj"))
	sort.Strings(csprojs)
	if len(csprojs) > 0 {
		return csprojs[0], nil
	}
	if _, err := os.Stat(filepath.Join(abs, "go.mod")); err == nil {
		return filepath.Join(abs, "go.mod"), nil
	}
	return "", fmt.Errorf("%w: no .csproj or go.mod in %s", apperr.ErrInvalidQuery, path)
}
