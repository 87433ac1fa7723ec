package scanner

import (
	"strings"
	"unicode"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"symscope/internal/graph"
)

type csharpWalker struct {
	b *builder
}

func extractCSharp(b *builder, root *sitter.Node) {
	w := &csharpWalker{b: b}
	w.declarations(b.root, root)
}

// declarations handles the members of a compilation unit or namespace body.
func (w *csharpWalker) declarations(ns *graph.Symbol, list *sitter.Node) {
	for _, c := range namedChildren(list) {
		switch c.Kind() {
		case "namespace_declaration":
			inner := graph.EnsureNamespace(ns, w.b.text(field(c, "name")))
			w.declarations(inner, field(c, "body"))
		case "file_scoped_namespace_declaration":
			// Declarations after "namespace X;" belong to X whether the
			// grammar nests them or leaves them as siblings.
			ns = graph.EnsureNamespace(ns, w.b.text(field(c, "name")))
			w.declarations(ns, c)
		case "declaration_list":
			w.declarations(ns, c)
		default:
			if isCSharpTypeDecl(c.Kind()) {
				w.typeDecl(ns, graph.AccessInternal, c)
			}
		}
	}
}

func isCSharpTypeDecl(kind string) bool {
	switch kind {
	case "class_declaration", "struct_declaration", "interface_declaration", "enum_declaration",
		"record_declaration", "record_struct_declaration", "delegate_declaration":
		return true
	}
	return false
}

func (w *csharpWalker) typeDecl(parent *graph.Symbol, defaultAccess graph.Accessibility, n *sitter.Node) {
	nameNode := field(n, "name")
	if nameNode == nil {
		return
	}
	mods := csharpModifiers(w.b, n)

	var d graph.TypeDetail
	switch n.Kind() {
	case "struct_declaration", "record_struct_declaration":
		d.Kind = graph.TypeStruct
	case "interface_declaration":
		d.Kind = graph.TypeInterface
	case "enum_declaration":
		d.Kind = graph.TypeEnum
	default:
		d.Kind = graph.TypeClass
	}
	if n.Kind() == "record_declaration" && childOfKind(n, "struct") != nil {
		d.Kind = graph.TypeStruct
	}
	d.Partial = hasWord(mods, "partial")
	w.bases(n, &d)

	typ := w.b.addType(parent, w.b.text(nameNode), csharpAccess(mods, defaultAccess), d, nameNode)
	if typ == nil {
		return
	}
	typ.IsStatic = hasWord(mods, "static")
	typ.IsAbstract = hasWord(mods, "abstract") || d.Kind == graph.TypeInterface

	switch n.Kind() {
	case "delegate_declaration":
		w.b.addMethod(typ, "Invoke", memberOpts{access: graph.AccessPublic}, graph.MethodDetail{
			Params:  w.params(field(n, "parameters")),
			Returns: w.b.squash(field(n, "returns", "type")),
		}, nameNode)
		return
	case "record_declaration", "record_struct_declaration":
		w.positionalRecord(typ, n)
	}

	body := field(n, "body")
	if body == nil {
		body = childOfKind(n, "declaration_list", "enum_member_declaration_list")
	}
	memberDefault := graph.AccessPrivate
	if d.Kind == graph.TypeInterface || d.Kind == graph.TypeEnum {
		memberDefault = graph.AccessPublic
	}
	for _, c := range namedChildren(body) {
		w.member(typ, memberDefault, c)
	}
}

// bases splits the base list. For classes the first entry is the base class
// unless it follows the IName interface convention.
func (w *csharpWalker) bases(n *sitter.Node, d *graph.TypeDetail) {
	list := field(n, "bases")
	if list == nil {
		list = childOfKind(n, "base_list")
	}
	var names []string
	for _, c := range namedChildren(list) {
		name := w.b.squash(c)
		if i := strings.IndexByte(name, '('); i >= 0 {
			name = strings.TrimSpace(name[:i])
		}
		if name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return
	}
	switch d.Kind {
	case graph.TypeEnum:
		d.Base = names[0]
	case graph.TypeClass:
		if !looksLikeInterface(names[0]) {
			d.Base, names = names[0], names[1:]
		}
		d.Interfaces = names
	default:
		d.Interfaces = names
	}
}

func looksLikeInterface(name string) bool {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	r := []rune(name)
	return len(r) > 1 && r[0] == 'I' && unicode.IsUpper(r[1])
}

func (w *csharpWalker) member(typ *graph.Symbol, defaultAccess graph.Accessibility, n *sitter.Node) {
	if isCSharpTypeDecl(n.Kind()) {
		nested := graph.AccessPrivate
		if typ.Detail.(graph.TypeDetail).Kind == graph.TypeInterface {
			nested = graph.AccessPublic
		}
		w.typeDecl(typ, nested, n)
		return
	}

	mods := csharpModifiers(w.b, n)
	opts := memberOpts{
		access:   csharpAccess(mods, defaultAccess),
		static:   hasWord(mods, "static"),
		abstract: hasWord(mods, "abstract"),
	}
	isInterface := typ.Detail.(graph.TypeDetail).Kind == graph.TypeInterface

	switch n.Kind() {
	case "method_declaration":
		nameNode := field(n, "name")
		if nameNode == nil {
			return
		}
		if isInterface && field(n, "body") == nil && childOfKind(n, "arrow_expression_clause") == nil {
			opts.abstract = true
		}
		w.b.addMethod(typ, w.b.text(nameNode), opts, graph.MethodDetail{
			Params:  w.params(field(n, "parameters")),
			Returns: w.b.squash(field(n, "returns", "type")),
		}, nameNode)

	case "constructor_declaration":
		d := graph.MethodDetail{Kind: graph.MethodConstructor, Params: w.params(field(n, "parameters"))}
		name := ".ctor"
		if opts.static {
			d.Kind, name = graph.MethodStaticConstructor, ".cctor"
			opts.access = graph.AccessPrivate
		}
		w.b.addMethod(typ, name, opts, d, field(n, "name"))

	case "property_declaration":
		nameNode := field(n, "name")
		if nameNode == nil {
			return
		}
		if isInterface && !hasWord(mods, "static") {
			opts.abstract = true
		}
		w.property(typ, w.b.text(nameNode), "", nil, opts, n, nameNode)

	case "indexer_declaration":
		w.property(typ, "this[]", "Item", w.params(field(n, "parameters")), opts, n, n)

	case "field_declaration":
		decl := childOfKind(n, "variable_declaration")
		typeName := w.b.squash(field(decl, "type"))
		for _, v := range w.declarators(decl) {
			w.b.addField(typ, w.b.text(v), opts, graph.FieldDetail{Type: typeName, IsConst: hasWord(mods, "const")}, v)
		}

	case "event_field_declaration":
		decl := childOfKind(n, "variable_declaration")
		typeName := w.b.squash(field(decl, "type"))
		for _, v := range w.declarators(decl) {
			w.event(typ, w.b.text(v), typeName, opts, v)
		}

	case "event_declaration":
		nameNode := field(n, "name")
		if nameNode == nil {
			return
		}
		w.event(typ, w.b.text(nameNode), w.b.squash(field(n, "type")), opts, nameNode)

	case "enum_member_declaration":
		nameNode := field(n, "name")
		if nameNode == nil {
			nameNode = childOfKind(n, "identifier")
		}
		if nameNode == nil {
			return
		}
		w.b.addField(typ, w.b.text(nameNode), memberOpts{access: graph.AccessPublic},
			graph.FieldDetail{Type: typ.Name, IsConst: true}, nameNode)
	}
}

// property adds a property with one synthetic method per accessor. Accessor
// methods follow the get_Name / set_Name convention; init counts as a setter.
func (w *csharpWalker) property(typ *graph.Symbol, name, accessorName string, index []graph.Param, opts memberOpts, n, at *sitter.Node) {
	if accessorName == "" {
		accessorName = name
	}
	typeName := w.b.squash(field(n, "type"))
	d := graph.PropertyDetail{Type: typeName}

	type accessor struct {
		kind   graph.MethodKind
		access graph.Accessibility
		at     *sitter.Node
	}
	var accessors []accessor

	list := field(n, "accessors")
	if list == nil {
		list = childOfKind(n, "accessor_list")
	}
	if list == nil {
		// Expression-bodied: int X => 1;
		d.HasGetter = true
		accessors = append(accessors, accessor{graph.MethodPropertyGet, opts.access, at})
	}
	for _, acc := range namedChildren(list) {
		if acc.Kind() != "accessor_declaration" {
			continue
		}
		keyword := w.accessorKeyword(acc)
		access := csharpAccess(csharpModifiers(w.b, acc), opts.access)
		switch keyword {
		case "get":
			d.HasGetter = true
			accessors = append(accessors, accessor{graph.MethodPropertyGet, access, acc})
		case "set", "init":
			d.HasSetter = true
			accessors = append(accessors, accessor{graph.MethodPropertySet, access, acc})
		}
	}

	if w.b.addProperty(typ, name, opts, d, at) == nil {
		return
	}
	for _, a := range accessors {
		md := graph.MethodDetail{Kind: a.kind, Params: index}
		prefix := "get_"
		if a.kind == graph.MethodPropertySet {
			prefix = "set_"
			md.Params = append(append([]graph.Param(nil), index...), graph.Param{Type: typeName, Name: "value"})
			md.Returns = "void"
		} else {
			md.Returns = typeName
		}
		w.b.addMethod(typ, prefix+accessorName, memberOpts{access: a.access, static: opts.static, abstract: opts.abstract}, md, a.at)
	}
}

func (w *csharpWalker) accessorKeyword(acc *sitter.Node) string {
	if n := field(acc, "name"); n != nil {
		return w.b.text(n)
	}
	for _, c := range children(acc) {
		switch c.Kind() {
		case "get", "set", "init", "add", "remove":
			return c.Kind()
		}
	}
	return ""
}

func (w *csharpWalker) event(typ *graph.Symbol, name, typeName string, opts memberOpts, at *sitter.Node) {
	if w.b.addField(typ, name, opts, graph.FieldDetail{Type: typeName, IsEvent: true}, at) == nil {
		return
	}
	value := []graph.Param{{Type: typeName, Name: "value"}}
	w.b.addMethod(typ, "add_"+name, opts, graph.MethodDetail{Kind: graph.MethodEventAdd, Params: value, Returns: "void"}, at)
	w.b.addMethod(typ, "remove_"+name, opts, graph.MethodDetail{Kind: graph.MethodEventRemove, Params: value, Returns: "void"}, at)
}

func (w *csharpWalker) declarators(decl *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for _, c := range namedChildren(decl) {
		if c.Kind() != "variable_declarator" {
			continue
		}
		name := field(c, "name")
		if name == nil {
			name = childOfKind(c, "identifier")
		}
		if name != nil {
			out = append(out, name)
		}
	}
	return out
}

// positionalRecord adds the properties generated by record R(int A, ...).
func (w *csharpWalker) positionalRecord(typ *graph.Symbol, n *sitter.Node) {
	list := field(n, "parameters")
	if list == nil {
		list = childOfKind(n, "parameter_list")
	}
	for _, p := range w.params(list) {
		opts := memberOpts{access: graph.AccessPublic}
		if w.b.addProperty(typ, p.Name, opts, graph.PropertyDetail{Type: p.Type, HasGetter: true, HasSetter: true}, n) == nil {
			continue
		}
		w.b.addMethod(typ, "get_"+p.Name, opts, graph.MethodDetail{Kind: graph.MethodPropertyGet, Returns: p.Type}, n)
		w.b.addMethod(typ, "set_"+p.Name, opts, graph.MethodDetail{
			Kind:    graph.MethodPropertySet,
			Params:  []graph.Param{{Type: p.Type, Name: "value"}},
			Returns: "void",
		}, n)
	}
}

func (w *csharpWalker) params(list *sitter.Node) []graph.Param {
	var out []graph.Param
	for _, p := range namedChildren(list) {
		if p.Kind() != "parameter" {
			continue
		}
		param := graph.Param{
			Type: w.b.squash(field(p, "type")),
			Name: w.b.text(field(p, "name")),
		}
		var prefix []string
		kids := children(p)
		for i, c := range kids {
			switch c.Kind() {
			case "parameter_modifier", "modifier", "ref", "out", "in", "params", "this":
				prefix = append(prefix, w.b.text(c))
			case "equals_value_clause":
				if v := namedChildren(c); len(v) > 0 {
					param.Default = w.b.squash(v[0])
				}
			case "=":
				if i+1 < len(kids) {
					param.Default = w.b.squash(kids[i+1])
				}
			}
		}
		if len(prefix) > 0 {
			param.Type = strings.TrimSpace(strings.Join(prefix, " ") + " " + param.Type)
		}
		out = append(out, param)
	}
	return out
}

func csharpModifiers(b *builder, n *sitter.Node) []string {
	var mods []string
	for _, c := range children(n) {
		if c.Kind() == "modifier" {
			mods = append(mods, strings.Fields(b.text(c))...)
		}
	}
	return mods
}

// csharpAccess maps declared modifiers to an accessibility. "protected
// internal" is treated as protected and "private protected" as private.
func csharpAccess(mods []string, def graph.Accessibility) graph.Accessibility {
	switch {
	case hasWord(mods, "public"):
		return graph.AccessPublic
	case hasWord(mods, "protected") && hasWord(mods, "private"):
		return graph.AccessPrivate
	case hasWord(mods, "protected"):
		return graph.AccessProtected
	case hasWord(mods, "internal"):
		return graph.AccessInternal
	case hasWord(mods, "private"):
		return graph.AccessPrivate
	}
	return def
}

func hasWord(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}
