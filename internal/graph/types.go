package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the top-level classification of a symbol.
type Kind int

const (
	KindNamespace Kind = iota + 1
	KindType
	KindMethod
	KindProperty
	KindField
)

func (k Kind) String() string {
	switch k {
	case KindNamespace:
		return "Namespace"
	case KindType:
		return "Type"
	case KindMethod:
		return "Method"
	case KindProperty:
		return "Property"
	case KindField:
		return "Field"
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Accessibility is ordered by visibility breadth: Private < Internal < Protected < Public.
type Accessibility int

const (
	AccessPrivate Accessibility = iota
	AccessInternal
	AccessProtected
	AccessPublic
)

func (a Accessibility) String() string {
	switch a {
	case AccessPrivate:
		return "private"
	case AccessInternal:
		return "internal"
	case AccessProtected:
		return "protected"
	case AccessPublic:
		return "public"
	}
	return "access(" + strconv.Itoa(int(a)) + ")"
}

// ParseAccessibility parses the lower-case names produced by String.
func ParseAccessibility(s string) (Accessibility, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "private":
		return AccessPrivate, nil
	case "internal":
		return AccessInternal, nil
	case "protected":
		return AccessProtected, nil
	case "public":
		return AccessPublic, nil
	}
	return 0, fmt.Errorf("unknown accessibility %q", s)
}

// TypeKind distinguishes the flavours of a named type.
type TypeKind int

const (
	TypeClass TypeKind = iota
	TypeInterface
	TypeEnum
	TypeStruct
)

func (k TypeKind) String() string {
	switch k {
	case TypeClass:
		return "class"
	case TypeInterface:
		return "interface"
	case TypeEnum:
		return "enum"
	case TypeStruct:
		return "struct"
	}
	return "type(" + strconv.Itoa(int(k)) + ")"
}

// MethodKind separates ordinary methods from compiler-generated ones.
type MethodKind int

const (
	MethodOrdinary MethodKind = iota
	MethodConstructor
	MethodStaticConstructor
	MethodPropertyGet
	MethodPropertySet
	MethodEventAdd
	MethodEventRemove
)

func (k MethodKind) String() string {
	switch k {
	case MethodOrdinary:
		return "method"
	case MethodConstructor:
		return "constructor"
	case MethodStaticConstructor:
		return "static constructor"
	case MethodPropertyGet:
		return "property getter"
	case MethodPropertySet:
		return "property setter"
	case MethodEventAdd:
		return "event adder"
	case MethodEventRemove:
		return "event remover"
	}
	return "method(" + strconv.Itoa(int(k)) + ")"
}

// Synthetic reports whether methods of this kind duplicate the type or
// property they belong to.
func (k MethodKind) Synthetic() bool {
	return k != MethodOrdinary
}

// Detail is the kind-specific payload of a Symbol. The set of
// implementations is closed: NamespaceDetail, TypeDetail, MethodDetail,
// PropertyDetail and FieldDetail.
type Detail interface {
	detail()
}

type NamespaceDetail struct{}

type TypeDetail struct {
	Kind       TypeKind
	Base       string
	Interfaces []string
	// Partial marks a declaration that may be completed by another file.
	Partial bool
}

// Param is one formal parameter of a method.
type Param struct {
	Type    string `json:"type,omitempty"`
	Name    string `json:"name"`
	Default string `json:"default,omitempty"`
}

type MethodDetail struct {
	Kind    MethodKind
	Params  []Param
	Returns string
}

type PropertyDetail struct {
	Type      string
	HasGetter bool
	HasSetter bool
}

type FieldDetail struct {
	Type    string
	IsConst bool
	IsEvent bool
}

func (NamespaceDetail) detail() {}
func (TypeDetail) detail()      {}
func (MethodDetail) detail()    {}
func (PropertyDetail) detail()  {}
func (FieldDetail) detail()     {}

// Location is a zero-based position inside a source file.
type Location struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

func (l Location) String() string {
	if l.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line+1, l.Column+1)
}

// Severity of a diagnostic collected while building a graph.
type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	}
	return "severity(" + strconv.Itoa(int(s)) + ")"
}

// Diagnostic is a compiler-style message attached to a graph.
type Diagnostic struct {
	Severity Severity
	Location Location
	Message  string
}

func (d Diagnostic) String() string {
	if loc := d.Location.String(); loc != "" {
		return fmt.Sprintf("%s %s: %s", d.Severity, loc, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Severity, d.Message)
}
