package pkgmgr

import (
	"fmt"
	"sort"

	"symscope/internal/apperr"
)

// Analyzer describes how to start a language analyzer.
type Analyzer struct {
	// Name is the package directory under packages/.
	Name string
	// Binary is the default entry point file name.
	Binary string
	Args   []string
	// Languages are the scanner language names the analyzer serves.
	Languages []string
}

var analyzers = map[string]*Analyzer{
	"csharp-ls": {
		Name:      "csharp-ls",
		Binary:    "csharp-ls",
		Languages: []string{"csharp"},
	},
	"gopls": {
		Name:      "gopls",
		Binary:    "gopls",
		Args:      []string{"serve"},
		Languages: []string{"go"},
	},
	"pyright": {
		Name:      "pyright",
		Binary:    "pyright-langserver",
		Args:      []string{"--stdio"},
		Languages: []string{"python"},
	},
	"typescript-language-server": {
		Name:      "typescript-language-server",
		Binary:    "typescript-language-server",
		Args:      []string{"--stdio"},
		Languages: []string{"typescript", "javascript"},
	},
}

// Lookup returns a known analyzer by name.
func Lookup(name string) (*Analyzer, error) {
	a, ok := analyzers[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown analyzer %q", apperr.ErrBackendNotFound, name)
	}
	return a, nil
}

// ForLanguage returns the default analyzer of a scanner language.
func ForLanguage(lang string) (*Analyzer, error) {
	for _, name := range Names() {
		for _, l := range analyzers[name].Languages {
			if l == lang {
				return analyzers[name], nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no analyzer for language %q", apperr.ErrBackendNotFound, lang)
}

// Names lists the known analyzers in sorted order.
func Names() []string {
	names := make([]string, 0, len(analyzers))
	for name := range analyzers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Binaries maps every known analyzer to its default entry point.
func Binaries() map[string]string {
	out := make(map[string]string, len(analyzers))
	for name, a := range analyzers {
		out[name] = a.Binary
	}
	return out
}
