// Package search walks a symbol graph and collects the symbols matching a
// name term.
//
// A type whose name matches the term is treated as matched as a whole: the
// type is emitted followed by its usable surface, that is every member above
// the accessibility floor that is not compiler generated. For a type that does
// not match, only the members whose own name matches are emitted. Nested
// types are always visited. The result is in traversal order (pre-order, a
// type before its members, members in declaration order) and contains every
// symbol identity at most once.
package search

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"symscope/internal/apperr"
	"symscope/internal/graph"
)

// Options controls which members a search may emit.
type Options struct {
	// MinAccess is the accessibility floor for emitted members.
	MinAccess graph.Accessibility
	// IncludeSynthetic keeps constructors and accessors in the result.
	IncludeSynthetic bool
	// Kinds restricts emitted members to the listed kinds. Empty means all.
	Kinds []graph.Kind
	// ExactName compares whole names instead of substrings.
	ExactName bool
}

// DefaultOptions keeps public and protected members and drops synthetic ones.
func DefaultOptions() Options {
	return Options{MinAccess: graph.AccessProtected}
}

// Search returns the symbols under root that match term.
func Search(ctx context.Context, root *graph.Symbol, term string, opts Options) ([]*graph.Symbol, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("%w: empty search term", apperr.ErrInvalidQuery)
	}
	if root == nil {
		return nil, nil
	}

	v := &visitor{
		term:    strings.ToLower(term),
		opts:    opts,
		visited: make(map[graph.Key]struct{}),
	}
	if err := v.run(ctx, root); err != nil {
		return nil, err
	}
	return v.found, nil
}

type visitor struct {
	term    string
	opts    Options
	visited map[graph.Key]struct{}
	found   []*graph.Symbol
}

func (v *visitor) run(ctx context.Context, root *graph.Symbol) error {
	stack := []*graph.Symbol{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		sym := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		var next []*graph.Symbol
		switch sym.Kind() {
		case graph.KindNamespace:
			next = sym.Children
		case graph.KindType:
			v.visitType(sym)
			next = sym.NestedTypes()
		case graph.KindMethod, graph.KindProperty, graph.KindField:
			if v.matches(sym) && v.admits(sym) {
				v.emit(sym)
			}
		default:
			return fmt.Errorf("search: unhandled symbol kind %s", sym.Kind())
		}
		for i := len(next) - 1; i >= 0; i-- {
			stack = append(stack, next[i])
		}
	}
	return nil
}

func (v *visitor) visitType(t *graph.Symbol) {
	typeMatches := v.matches(t)
	if typeMatches {
		v.emit(t)
	}
	for _, m := range t.Members() {
		if !v.admits(m) {
			continue
		}
		if typeMatches || v.matches(m) {
			v.emit(m)
		}
	}
}

func (v *visitor) matches(s *graph.Symbol) bool {
	name := strings.ToLower(s.Name)
	if v.opts.ExactName {
		return name == v.term
	}
	return strings.Contains(name, v.term)
}

func (v *visitor) admits(m *graph.Symbol) bool {
	if m.Access < v.opts.MinAccess {
		return false
	}
	if len(v.opts.Kinds) > 0 && !slices.Contains(v.opts.Kinds, m.Kind()) {
		return false
	}
	return v.opts.IncludeSynthetic || !m.IsSynthetic()
}

func (v *visitor) emit(s *graph.Symbol) {
	key := s.Key()
	if _, seen := v.visited[key]; seen {
		return
	}
	v.visited[key] = struct{}{}
	v.found = append(v.found, s)
}

// Limit caps an ordered result. The traversal itself is never cut short, so
// the first n entries are the same for every cap.
func Limit(results []*graph.Symbol, n int) []*graph.Symbol {
	if n <= 0 || n >= len(results) {
		return results
	}
	return results[:n]
}

// Types lists every type under root whose qualified name contains filter
// (case-insensitive). An empty filter lists all types.
func Types(ctx context.Context, root *graph.Symbol, filter string) ([]*graph.Symbol, error) {
	filter = strings.ToLower(strings.TrimSpace(filter))
	var out []*graph.Symbol
	stack := []*graph.Symbol{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sym := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		var next []*graph.Symbol
		switch sym.Kind() {
		case graph.KindNamespace:
			next = sym.Children
		case graph.KindType:
			if filter == "" || strings.Contains(strings.ToLower(sym.QualifiedName), filter) {
				out = append(out, sym)
			}
			next = sym.NestedTypes()
		}
		for i := len(next) - 1; i >= 0; i-- {
			stack = append(stack, next[i])
		}
	}
	return out, nil
}
