package graph

import (
	"fmt"
	"strconv"
	"strings"

	"symscope/util"
)

// Symbol is a node of the containment tree. Namespaces contain types and
// namespaces, types contain members and nested types, members are leaves.
type Symbol struct {
	Name          string
	QualifiedName string
	Access        Accessibility
	IsStatic      bool
	IsAbstract    bool
	// Assembly is the owning library, empty for symbols under direct analysis.
	Assembly string
	Detail   Detail
	Location Location

	Children []*Symbol
	Parent   *Symbol
	// Ordinal is the index of the symbol within Parent.Children.
	Ordinal int
}

// Key identifies a symbol independently of the pointer that reached it.
type Key uint64

// NewNamespace returns a namespace symbol. An empty name denotes the global namespace.
func NewNamespace(name, qualified, assembly string) *Symbol {
	return &Symbol{
		Name:          name,
		QualifiedName: qualified,
		Access:        AccessPublic,
		Assembly:      assembly,
		Detail:        NamespaceDetail{},
	}
}

// Kind derives the symbol kind from its detail.
func (s *Symbol) Kind() Kind {
	switch s.Detail.(type) {
	case NamespaceDetail:
		return KindNamespace
	case TypeDetail:
		return KindType
	case MethodDetail:
		return KindMethod
	case PropertyDetail:
		return KindProperty
	case FieldDetail:
		return KindField
	}
	panic(fmt.Sprintf("graph: symbol %q has no detail", s.QualifiedName))
}

// IsSynthetic reports whether s is a compiler-generated member such as a
// constructor or an accessor.
func (s *Symbol) IsSynthetic() bool {
	if m, ok := s.Detail.(MethodDetail); ok {
		return m.Kind.Synthetic()
	}
	return false
}

// IsMember reports whether s is a method, property or field.
func (s *Symbol) IsMember() bool {
	switch s.Kind() {
	case KindMethod, KindProperty, KindField:
		return true
	}
	return false
}

// Key returns the identity of s: (qualified name, kind, ordinal within parent).
func (s *Symbol) Key() Key {
	return Key(util.HashParts(s.QualifiedName, s.Kind().String(), strconv.Itoa(s.Ordinal)))
}

// Label is a short human description, e.g. "class", "property", "constructor".
func (s *Symbol) Label() string {
	switch d := s.Detail.(type) {
	case NamespaceDetail:
		return "namespace"
	case TypeDetail:
		return d.Kind.String()
	case MethodDetail:
		return d.Kind.String()
	case PropertyDetail:
		return "property"
	case FieldDetail:
		if d.IsEvent {
			return "event"
		}
		if d.IsConst {
			return "const"
		}
		return "field"
	}
	return "symbol"
}

// AddChild appends c to s, enforcing the containment rules.
func (s *Symbol) AddChild(c *Symbol) error {
	parent, child := s.Kind(), c.Kind()
	switch parent {
	case KindNamespace:
		if child != KindNamespace && child != KindType {
			return fmt.Errorf("namespace %q cannot contain %s %q", s.QualifiedName, child, c.Name)
		}
	case KindType:
		if child == KindNamespace {
			return fmt.Errorf("type %q cannot contain namespace %q", s.QualifiedName, c.Name)
		}
	default:
		return fmt.Errorf("%s %q cannot have children", parent, s.QualifiedName)
	}
	c.Parent = s
	c.Ordinal = len(s.Children)
	s.Children = append(s.Children, c)
	return nil
}

// Members returns the method, property and field children of a type.
func (s *Symbol) Members() []*Symbol {
	var out []*Symbol
	for _, c := range s.Children {
		if c.IsMember() {
			out = append(out, c)
		}
	}
	return out
}

// NestedTypes returns the type children of s.
func (s *Symbol) NestedTypes() []*Symbol {
	var out []*Symbol
	for _, c := range s.Children {
		if c.Kind() == KindType {
			out = append(out, c)
		}
	}
	return out
}

// Namespace returns the nearest enclosing namespace name, or "" for the global one.
func (s *Symbol) Namespace() string {
	for p := s.Parent; p != nil; p = p.Parent {
		if p.Kind() == KindNamespace {
			return p.QualifiedName
		}
	}
	return ""
}

// Signature renders the declaration of s in a language-neutral form.
func (s *Symbol) Signature() string {
	var b strings.Builder
	switch d := s.Detail.(type) {
	case MethodDetail:
		if d.Returns != "" {
			b.WriteString(d.Returns)
			b.WriteByte(' ')
		}
		b.WriteString(s.Name)
		b.WriteByte('(')
		for i, p := range d.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(FormatParam(p))
		}
		b.WriteByte(')')
	case PropertyDetail:
		if d.Type != "" {
			b.WriteString(d.Type)
			b.WriteByte(' ')
		}
		b.WriteString(s.Name)
		b.WriteString(" {")
		if d.HasGetter {
			b.WriteString(" get;")
		}
		if d.HasSetter {
			b.WriteString(" set;")
		}
		b.WriteString(" }")
	case FieldDetail:
		if d.Type != "" {
			b.WriteString(d.Type)
			b.WriteByte(' ')
		}
		b.WriteString(s.Name)
	case TypeDetail:
		b.WriteString(d.Kind.String())
		b.WriteByte(' ')
		b.WriteString(s.Name)
	default:
		b.WriteString(s.Name)
	}
	return b.String()
}

// Modifiers lists accessibility and storage modifiers in declaration order.
func (s *Symbol) Modifiers() string {
	mods := []string{s.Access.String()}
	if s.IsStatic {
		mods = append(mods, "static")
	}
	if s.IsAbstract {
		mods = append(mods, "abstract")
	}
	return strings.Join(mods, " ")
}

// FormatParam renders "type name = default".
func FormatParam(p Param) string {
	out := p.Name
	if p.Type != "" {
		out = strings.TrimSpace(p.Type + " " + p.Name)
	}
	if p.Default != "" {
		out += " = " + p.Default
	}
	return out
}

// ParamTypes renders "(int, int)" for qualified method names.
func ParamTypes(params []Param) string {
	types := make([]string, len(params))
	for i, p := range params {
		types[i] = p.Type
	}
	return "(" + strings.Join(types, ", ") + ")"
}

// Walk visits root and its descendants in pre-order. Returning false from fn
// skips the children of that symbol.
func Walk(root *Symbol, fn func(*Symbol) bool) {
	if root == nil || !fn(root) {
		return
	}
	for _, c := range root.Children {
		Walk(c, fn)
	}
}
