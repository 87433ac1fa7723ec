// Package scanner builds symbol graphs from source files with tree-sitter.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"sort"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"symscope/internal/apperr"
	"symscope/internal/graph"
)

// ParseFile builds the graph of a single source file. Symbols are local, so
// the graph has no assembly.
func ParseFile(ctx context.Context, path string) (*graph.Graph, error) {
	return ParseFiles(ctx, "", []string{path})
}

// ParseFiles parses paths concurrently and merges them into one graph owned
// by assembly. The merge follows sorted path order so the result does not
// depend on scheduling.
func ParseFiles(ctx context.Context, assembly string, paths []string) (*graph.Graph, error) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	results := make([]*fileResult, len(sorted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range sorted {
		g.Go(func() error {
			res, err := parsePath(gctx, path)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := graph.New(assembly)
	for i, res := range results {
		out.Merge(res.root)
		out.Diagnostics = append(out.Diagnostics, res.diags...)
		out.Files = append(out.Files, sorted[i])
	}
	log.Debug().
		Str("assembly", assembly).
		Int("files", len(sorted)).
		Int("diagnostics", len(out.Diagnostics)).
		Msg("symbol graph built")
	return out, nil
}

// ParseSource builds the graph of in-memory source. The language is chosen
// from the extension of path.
func ParseSource(ctx context.Context, path string, src []byte) (*graph.Graph, error) {
	res, err := parseSource(ctx, path, src)
	if err != nil {
		return nil, err
	}
	out := graph.New("")
	out.Merge(res.root)
	out.Diagnostics = res.diags
	out.Files = []string{path}
	return out, nil
}

type fileResult struct {
	root  *graph.Symbol
	diags []graph.Diagnostic
}

func parsePath(ctx context.Context, path string) (*fileResult, error) {
	if ForPath(path) == nil {
		return nil, fmt.Errorf("%w: unsupported language for %s", apperr.ErrParse, path)
	}
	src, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: file not found: %s", apperr.ErrInvalidQuery, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", apperr.ErrParse, path, err)
	}
	return parseSource(ctx, path, src)
}

func parseSource(ctx context.Context, path string, src []byte) (*fileResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lang := ForPath(path)
	if lang == nil {
		return nil, fmt.Errorf("%w: unsupported language for %s", apperr.ErrParse, path)
	}

	parser, err := lang.newParser()
	if err != nil {
		return nil, fmt.Errorf("%w: load %s grammar: %v", apperr.ErrParse, lang.Name, err)
	}
	defer parser.Close()

	tree := parser.Parse(src, nil)
	if tree == nil {
		return nil, fmt.Errorf("%w: %s: parser returned no tree", apperr.ErrParse, path)
	}
	defer tree.Close()

	b := newBuilder(path, src)
	root := tree.RootNode()
	b.collectSyntaxErrors(root)
	lang.extract(b, root)
	return &fileResult{root: b.root, diags: b.diags}, nil
}
