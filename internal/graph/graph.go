package graph

import (
	"slices"
	"strings"
)

// Graph is a symbol containment tree plus what was learnt while building it.
// A graph is immutable once returned by a provider.
type Graph struct {
	Root        *Symbol
	Diagnostics []Diagnostic
	Files       []string
}

// New returns an empty graph whose root is the global namespace of assembly.
func New(assembly string) *Graph {
	return &Graph{Root: NewNamespace("", "", assembly)}
}

// EnsureNamespace returns the namespace with the given dotted name, creating
// the missing segments under the root.
func (g *Graph) EnsureNamespace(qualified string) *Symbol {
	return EnsureNamespace(g.Root, qualified)
}

// EnsureNamespace resolves a dotted namespace name relative to parent.
func EnsureNamespace(parent *Symbol, dotted string) *Symbol {
	if dotted == "" {
		return parent
	}
	cur := parent
	for _, seg := range strings.Split(dotted, ".") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		next := childNamespace(cur, seg)
		if next == nil {
			next = NewNamespace(seg, JoinName(cur.QualifiedName, seg), parent.Assembly)
			_ = cur.AddChild(next)
		}
		cur = next
	}
	return cur
}

func childNamespace(parent *Symbol, name string) *Symbol {
	for _, c := range parent.Children {
		if c.Kind() == KindNamespace && c.Name == name {
			return c
		}
	}
	return nil
}

// Merge moves the children of fragment into the graph. Namespaces with the
// same name are merged, and so are same-named types when either side is
// partial. Everything else is appended in order.
func (g *Graph) Merge(fragment *Symbol) {
	mergeInto(g.Root, fragment)
	Walk(g.Root, func(s *Symbol) bool {
		s.Assembly = g.Root.Assembly
		return true
	})
}

func mergeInto(dst, src *Symbol) {
	for _, c := range src.Children {
		switch c.Kind() {
		case KindNamespace:
			if existing := childNamespace(dst, c.Name); existing != nil {
				mergeInto(existing, c)
				continue
			}
		case KindType:
			if existing := partialType(dst, c); existing != nil {
				completeType(existing, c)
				mergeInto(existing, c)
				continue
			}
		}
		_ = dst.AddChild(c)
	}
	src.Children = nil
}

func partialType(parent, t *Symbol) *Symbol {
	for _, c := range parent.Children {
		if c.Kind() != KindType || c.Name != t.Name {
			continue
		}
		if c.Detail.(TypeDetail).Partial || t.Detail.(TypeDetail).Partial {
			return c
		}
	}
	return nil
}

// completeType lets a full declaration replace a placeholder that only
// carried members, e.g. Go methods declared away from their type.
func completeType(dst, src *Symbol) {
	dd, sd := dst.Detail.(TypeDetail), src.Detail.(TypeDetail)
	if dst.Location.File == "" && src.Location.File != "" {
		dst.Location = src.Location
		dst.Access = src.Access
		dd.Kind = sd.Kind
	}
	if dd.Base == "" {
		dd.Base = sd.Base
	}
	for _, iface := range sd.Interfaces {
		if !slices.Contains(dd.Interfaces, iface) {
			dd.Interfaces = append(dd.Interfaces, iface)
		}
	}
	dd.Partial = dd.Partial && sd.Partial
	dst.Detail = dd
	dst.IsStatic = dst.IsStatic || src.IsStatic
	dst.IsAbstract = dst.IsAbstract || src.IsAbstract
}

// AddDiagnostic records a diagnostic.
func (g *Graph) AddDiagnostic(d Diagnostic) {
	g.Diagnostics = append(g.Diagnostics, d)
}

// Count returns the number of diagnostics with the given severity.
func (g *Graph) Count(sev Severity) int {
	n := 0
	for _, d := range g.Diagnostics {
		if d.Severity == sev {
			n++
		}
	}
	return n
}

// Types returns every type in the graph in pre-order.
func (g *Graph) Types() []*Symbol {
	var out []*Symbol
	Walk(g.Root, func(s *Symbol) bool {
		if s.Kind() == KindType {
			out = append(out, s)
		}
		return s.Kind() == KindNamespace || s.Kind() == KindType
	})
	return out
}

// JoinName joins a container's qualified name and a simple name.
func JoinName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
