// Package query routes symbol queries to graph roots: one source file, one
// project, or every library a project references.
package query

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"symscope/internal/apperr"
	"symscope/internal/graph"
	"symscope/internal/project"
	"symscope/internal/scanner"
	"symscope/internal/search"
)

// Options configures a Dispatcher.
type Options struct {
	Project project.Options
	// External is applied to every per-library search.
	External search.Options
	// MaxResults caps results when the caller passes no limit. Zero means no cap.
	MaxResults int
}

// DefaultOptions searches libraries for their public and protected surface.
func DefaultOptions() Options {
	return Options{External: search.DefaultOptions(), MaxResults: 200}
}

// Dispatcher answers queries. It holds no per-query state and is safe for
// concurrent use.
type Dispatcher struct {
	opts Options
}

func New(opts Options) *Dispatcher {
	return &Dispatcher{opts: opts}
}

// Listing is a flat list of types.
type Listing struct {
	Source      string
	Filter      string
	Types       []*graph.Symbol
	Diagnostics []graph.Diagnostic
}

// ListSymbols lists the types declared in path, sorted by qualified name.
func (d *Dispatcher) ListSymbols(ctx context.Context, path, filter string) (*Listing, error) {
	g, err := d.load(ctx, path)
	if err != nil {
		return nil, err
	}
	types, err := search.Types(ctx, g.Root, filter)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(types, func(i, j int) bool {
		return types[i].QualifiedName < types[j].QualifiedName
	})
	logQuery("list", path, filter, len(types))
	return &Listing{Source: path, Filter: filter, Types: types, Diagnostics: g.Diagnostics}, nil
}

// SymbolResult is the outcome of a name search over one graph.
type SymbolResult struct {
	Source  string
	Term    string
	Symbols []*graph.Symbol
	// Total counts matches before the limit was applied.
	Total       int
	Diagnostics []graph.Diagnostic
}

// FindSymbol searches the graph of path for term. Local source is searched
// down to private members.
func (d *Dispatcher) FindSymbol(ctx context.Context, path, term string, limit int) (*SymbolResult, error) {
	if strings.TrimSpace(term) == "" {
		return nil, fmt.Errorf("%w: empty search term", apperr.ErrInvalidQuery)
	}
	g, err := d.load(ctx, path)
	if err != nil {
		return nil, err
	}
	found, err := search.Search(ctx, g.Root, term, search.Options{MinAccess: graph.AccessPrivate})
	if err != nil {
		return nil, err
	}
	logQuery("find", path, term, len(found))
	return &SymbolResult{
		Source:      path,
		Term:        term,
		Symbols:     search.Limit(found, d.limit(limit)),
		Total:       len(found),
		Diagnostics: g.Diagnostics,
	}, nil
}

// MethodResult lists the overloads of a method.
type MethodResult struct {
	Source   string
	Method   string
	TypeName string
	Methods  []*graph.Symbol
}

// FindMethod looks a method up by exact name, optionally inside one type.
// "Type.Method" is accepted when typeName is empty.
func (d *Dispatcher) FindMethod(ctx context.Context, path, method, typeName string) (*MethodResult, error) {
	method = strings.TrimSpace(method)
	typeName = strings.TrimSpace(typeName)
	if typeName == "" {
		if i := strings.LastIndexByte(method, '.'); i > 0 && i < len(method)-1 {
			typeName, method = method[:i], method[i+1:]
		}
	}
	if method == "" {
		return nil, fmt.Errorf("%w: empty method name", apperr.ErrInvalidQuery)
	}

	g, err := d.load(ctx, path)
	if err != nil {
		return nil, err
	}
	root := g.Root
	if typeName != "" {
		if root, err = findType(g, typeName); err != nil {
			return nil, err
		}
	}
	found, err := search.Search(ctx, root, method, search.Options{
		MinAccess:        graph.AccessPrivate,
		IncludeSynthetic: true,
		Kinds:            []graph.Kind{graph.KindMethod},
		ExactName:        true,
	})
	if err != nil {
		return nil, err
	}

	res := &MethodResult{Source: path, Method: method, TypeName: typeName}
	for _, s := range found {
		// A type named like the method pulls in all of its members.
		if s.Kind() != graph.KindMethod || !strings.EqualFold(s.Name, method) {
			continue
		}
		if typeName != "" && s.Parent != root {
			continue
		}
		res.Methods = append(res.Methods, s)
	}
	logQuery("method", path, method, len(res.Methods))
	return res, nil
}

func (d *Dispatcher) limit(n int) int {
	if n > 0 {
		return n
	}
	return d.opts.MaxResults
}

// load builds the graph of a source file, or of a project's own sources when
// path names a manifest or a directory.
func (d *Dispatcher) load(ctx context.Context, path string) (*graph.Graph, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty path", apperr.ErrInvalidQuery)
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: file not found: %s", apperr.ErrInvalidQuery, path)
	}
	if err == nil && !info.IsDir() && !isManifest(path) {
		return scanner.ParseFile(ctx, path)
	}

	p, err := project.Load(ctx, path, d.opts.Project)
	if err != nil {
		return nil, err
	}
	g, err := scanner.ParseFiles(ctx, "", p.Files)
	if err != nil {
		return nil, err
	}
	g.Diagnostics = append(p.Diagnostics, g.Diagnostics...)
	return g, nil
}

func isManifest(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".csproj") || filepath.Base(path) == "go.mod"
}

func logQuery(op, target, term string, results int) {
	log.Debug().Str("op", op).Str("target", target).Str("term", term).Int("results", results).Msg("query done")
}
