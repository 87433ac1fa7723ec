package query

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"symscope/internal/apperr"
	"symscope/internal/graph"
	"symscope/internal/project"
	"symscope/internal/scanner"
	"symscope/internal/search"
)

// ExternalGroup holds the matches found in one referenced library.
type ExternalGroup struct {
	Library string
	Kind    project.RefKind
	Version string
	Symbols []*graph.Symbol
	// Total counts matches before the per-group limit was applied.
	Total int
}

// ExternalResult is the outcome of a search across referenced libraries.
type ExternalResult struct {
	Project string
	Term    string
	Groups  []ExternalGroup
	// Searched is the number of libraries that had sources to search.
	Searched    int
	Unresolved  []project.Reference
	Diagnostics []graph.Diagnostic
}

// FindExternal searches every referenced library of a project independently
// and groups the matches by library name. limit caps each group.
func (d *Dispatcher) FindExternal(ctx context.Context, projectPath, term string, limit int) (*ExternalResult, error) {
	if strings.TrimSpace(term) == "" {
		return nil, fmt.Errorf("%w: empty search term", apperr.ErrInvalidQuery)
	}
	p, err := project.Load(ctx, projectPath, d.opts.Project)
	if err != nil {
		return nil, err
	}

	libs := p.Libraries()
	groups := make([]ExternalGroup, len(libs))
	diags := make([][]graph.Diagnostic, len(libs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, lib := range libs {
		g.Go(func() error {
			lg, err := scanner.ParseFiles(gctx, lib.Name, lib.Files)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				diags[i] = []graph.Diagnostic{{
					Severity: graph.SeverityWarning,
					Message:  fmt.Sprintf("library %s: %v", lib.Name, err),
				}}
				return nil
			}
			found, err := search.Search(gctx, lg.Root, term, d.opts.External)
			if err != nil {
				return err
			}
			groups[i] = ExternalGroup{
				Library: lib.Name,
				Kind:    lib.Kind,
				Version: lib.Version,
				Symbols: search.Limit(found, d.limit(limit)),
				Total:   len(found),
			}
			diags[i] = lg.Diagnostics
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &ExternalResult{
		Project:     p.Name,
		Term:        term,
		Searched:    len(libs),
		Diagnostics: p.Diagnostics,
	}
	for i := range groups {
		if groups[i].Total > 0 {
			res.Groups = append(res.Groups, groups[i])
		}
		res.Diagnostics = append(res.Diagnostics, diags[i]...)
	}
	sort.SliceStable(res.Groups, func(i, j int) bool {
		return res.Groups[i].Library < res.Groups[j].Library
	})
	for _, ref := range p.References {
		if !ref.Resolved() {
			res.Unresolved = append(res.Unresolved, ref)
		}
	}
	log.Debug().
		Str("project", p.Name).
		Str("term", term).
		Int("libraries", len(libs)).
		Int("groups", len(res.Groups)).
		Msg("external search done")
	return res, nil
}

// Analysis summarizes a project and the diagnostics of its sources.
type Analysis struct {
	Project     *project.Project
	Types       int
	Errors      int
	Warnings    int
	Diagnostics []graph.Diagnostic
	// Matches is set when a search term was given.
	Term    string
	Matches []*graph.Symbol
}

// AnalyzeProject builds the graph of a project's own sources. Diagnostics are
// reported independently of the optional in-source search.
func (d *Dispatcher) AnalyzeProject(ctx context.Context, projectPath, term string) (*Analysis, error) {
	p, err := project.Load(ctx, projectPath, d.opts.Project)
	if err != nil {
		return nil, err
	}
	g, err := scanner.ParseFiles(ctx, "", p.Files)
	if err != nil {
		return nil, err
	}
	g.Diagnostics = append(append([]graph.Diagnostic(nil), p.Diagnostics...), g.Diagnostics...)

	a := &Analysis{
		Project:     p,
		Types:       len(g.Types()),
		Errors:      g.Count(graph.SeverityError),
		Warnings:    g.Count(graph.SeverityWarning),
		Diagnostics: g.Diagnostics,
		Term:        strings.TrimSpace(term),
	}
	if a.Term != "" {
		found, err := search.Search(ctx, g.Root, a.Term, search.Options{MinAccess: graph.AccessPrivate})
		if err != nil {
			return nil, err
		}
		a.Matches = search.Limit(found, d.opts.MaxResults)
	}
	logQuery("analyze", projectPath, a.Term, len(a.Matches))
	return a, nil
}
