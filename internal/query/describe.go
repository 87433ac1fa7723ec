package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"symscope/internal/apperr"
	"symscope/internal/graph"
)

// TypeInfo describes one type and its public surface.
type TypeInfo struct {
	Source     string
	Type       *graph.Symbol
	Methods    []*graph.Symbol
	Properties []*graph.Symbol
	Fields     []*graph.Symbol
	Nested     []*graph.Symbol
}

// DescribeType finds a type by qualified or simple name and groups its public
// members by kind. Compiler generated members are left out.
func (d *Dispatcher) DescribeType(ctx context.Context, path, name string) (*TypeInfo, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: empty type name", apperr.ErrInvalidQuery)
	}
	g, err := d.load(ctx, path)
	if err != nil {
		return nil, err
	}
	t, err := findType(g, name)
	if err != nil {
		return nil, err
	}

	info := &TypeInfo{Source: path, Type: t, Nested: t.NestedTypes()}
	for _, m := range t.Members() {
		if m.Access != graph.AccessPublic || m.IsSynthetic() {
			continue
		}
		switch m.Kind() {
		case graph.KindMethod:
			info.Methods = append(info.Methods, m)
		case graph.KindProperty:
			info.Properties = append(info.Properties, m)
		case graph.KindField:
			info.Fields = append(info.Fields, m)
		}
	}
	logQuery("describe", path, name, len(info.Methods)+len(info.Properties)+len(info.Fields))
	return info, nil
}

// findType resolves name against the types of g: exact qualified name, exact
// simple name, then the same two ignoring case.
func findType(g *graph.Graph, name string) (*graph.Symbol, error) {
	name = strings.TrimSpace(name)
	types := g.Types()
	matchers := []func(*graph.Symbol) bool{
		func(s *graph.Symbol) bool { return s.QualifiedName == name },
		func(s *graph.Symbol) bool { return s.Name == name },
		func(s *graph.Symbol) bool { return strings.EqualFold(s.QualifiedName, name) },
		func(s *graph.Symbol) bool { return strings.EqualFold(s.Name, name) },
	}
	for _, match := range matchers {
		for _, t := range types {
			if match(t) {
				return t, nil
			}
		}
	}

	err := fmt.Errorf("%w: type %q not found", apperr.ErrInvalidQuery, name)
	if s := suggest(name, types, 3); len(s) > 0 {
		err = fmt.Errorf("%w: type %q not found, did you mean %s?", apperr.ErrInvalidQuery, name, strings.Join(s, ", "))
	}
	return nil, err
}

// minSimilarity is the Jaro-Winkler score a name needs to be suggested.
const minSimilarity = 0.7

// suggest returns up to n qualified type names that look like name.
func suggest(name string, types []*graph.Symbol, n int) []string {
	type candidate struct {
		name  string
		score float32
	}
	want := strings.ToLower(name)
	if i := strings.LastIndexByte(want, '.'); i >= 0 {
		want = want[i+1:]
	}

	var cands []candidate
	seen := make(map[string]bool)
	for _, t := range types {
		if seen[t.QualifiedName] {
			continue
		}
		seen[t.QualifiedName] = true
		score, err := edlib.StringsSimilarity(want, strings.ToLower(t.Name), edlib.JaroWinkler)
		if err != nil || score < minSimilarity {
			continue
		}
		cands = append(cands, candidate{t.QualifiedName, score})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].name < cands[j].name
	})

	var out []string
	for _, c := range cands {
		if len(out) == n {
			break
		}
		out = append(out, c.name)
	}
	return out
}
