// Package report renders query and session results as plain text.
package report

import (
	"fmt"
	"path/filepath"
	"strings"

	"symscope/internal/graph"
	"symscope/internal/lsp"
	"symscope/internal/pkgmgr"
	"symscope/internal/query"
	"symscope/util"
)

// maxDiagnostics caps the diagnostics printed under a result.
const maxDiagnostics = 20

// Symbols renders a find_symbol result.
func Symbols(r *query.SymbolResult) string {
	var b strings.Builder
	if len(r.Symbols) == 0 {
		fmt.Fprintf(&b, "No symbols matching %q in %s.\n", r.Term, r.Source)
	} else {
		fmt.Fprintf(&b, "%s matching %q in %s", count(r.Total, "symbol"), r.Term, r.Source)
		if r.Total > len(r.Symbols) {
			fmt.Fprintf(&b, " (showing %d)", len(r.Symbols))
		}
		b.WriteString(":\n\n")
		for _, s := range r.Symbols {
			writeSymbol(&b, s, "")
		}
	}
	writeDiagnostics(&b, r.Diagnostics)
	return b.String()
}

// Types renders a list_types result.
func Types(l *query.Listing) string {
	var b strings.Builder
	if len(l.Types) == 0 {
		b.WriteString("No types")
		if l.Filter != "" {
			fmt.Fprintf(&b, " matching %q", l.Filter)
		}
		fmt.Fprintf(&b, " in %s.\n", l.Source)
		writeDiagnostics(&b, l.Diagnostics)
		return b.String()
	}

	fmt.Fprintf(&b, "%s in %s", count(len(l.Types), "type"), l.Source)
	if l.Filter != "" {
		fmt.Fprintf(&b, " matching %q", l.Filter)
	}
	b.WriteString(":\n\n")
	for _, t := range l.Types {
		fmt.Fprintf(&b, "  %-10s %s", t.Label(), t.QualifiedName)
		if d, ok := t.Detail.(graph.TypeDetail); ok {
			writeBases(&b, d)
		}
		b.WriteByte('\n')
	}
	writeDiagnostics(&b, l.Diagnostics)
	return b.String()
}

// TypeInfo renders a get_type_info result.
func TypeInfo(info *query.TypeInfo) string {
	var b strings.Builder
	t := info.Type
	fmt.Fprintf(&b, "%s %s %s", t.Modifiers(), t.Label(), t.QualifiedName)
	if d, ok := t.Detail.(graph.TypeDetail); ok {
		writeBases(&b, d)
	}
	b.WriteByte('\n')
	if loc := t.Location.String(); loc != "" {
		fmt.Fprintf(&b, "Defined at %s\n", loc)
	}
	if t.Assembly != "" {
		fmt.Fprintf(&b, "Library %s\n", t.Assembly)
	}

	section := func(title string, members []*graph.Symbol) {
		if len(members) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s (%d):\n", title, len(members))
		for _, m := range members {
			fmt.Fprintf(&b, "  %s\n", declaration(m))
		}
	}
	section("Methods", info.Methods)
	section("Properties", info.Properties)
	section("Fields", info.Fields)
	if len(info.Nested) > 0 {
		fmt.Fprintf(&b, "\nNested types (%d):\n", len(info.Nested))
		for _, n := range info.Nested {
			fmt.Fprintf(&b, "  %s %s\n", n.Label(), n.Name)
		}
	}
	if len(info.Methods)+len(info.Properties)+len(info.Fields)+len(info.Nested) == 0 {
		b.WriteString("\nNo public members.\n")
	}
	return b.String()
}

// Methods renders a get_method_signature result.
func Methods(r *query.MethodResult) string {
	var b strings.Builder
	target := r.Method
	if r.TypeName != "" {
		target = r.TypeName + "." + r.Method
	}
	if len(r.Methods) == 0 {
		fmt.Fprintf(&b, "No method %s in %s.\n", target, r.Source)
		return b.String()
	}
	fmt.Fprintf(&b, "%s for %s:\n\n", count(len(r.Methods), "overload"), target)
	for _, m := range r.Methods {
		fmt.Fprintf(&b, "  %s\n", declaration(m))
		fmt.Fprintf(&b, "    %s%s", m.QualifiedName, paramTypes(m))
		if loc := m.Location.String(); loc != "" {
			fmt.Fprintf(&b, "  %s", loc)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// External renders a find_external_symbol result.
func External(r *query.ExternalResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Searched %s of %s for %q.\n", count(r.Searched, "library"), filepath.Base(r.Project), r.Term)
	if len(r.Groups) == 0 {
		b.WriteString("No matches.\n")
	}
	for _, g := range r.Groups {
		fmt.Fprintf(&b, "\n%s", g.Library)
		if g.Version != "" {
			fmt.Fprintf(&b, " %s", g.Version)
		}
		fmt.Fprintf(&b, " (%s, %s", g.Kind, count(g.Total, "match"))
		if g.Total > len(g.Symbols) {
			fmt.Fprintf(&b, ", showing %d", len(g.Symbols))
		}
		b.WriteString("):\n")
		for _, s := range g.Symbols {
			writeSymbol(&b, s, "  ")
		}
	}
	if len(r.Unresolved) > 0 {
		fmt.Fprintf(&b, "\nNot searched (no sources found):\n")
		for _, ref := range r.Unresolved {
			fmt.Fprintf(&b, "  %s %s (%s)\n", ref.Name, ref.Version, ref.Kind)
		}
	}
	writeDiagnostics(&b, r.Diagnostics)
	return b.String()
}

// Analysis renders an analyze_project result.
func Analysis(a *query.Analysis) string {
	var b strings.Builder
	p := a.Project
	fmt.Fprintf(&b, "Project %s (%s)\n", p.Name, p.Language)
	fmt.Fprintf(&b, "Manifest %s\n", p.Manifest)
	fmt.Fprintf(&b, "%s, %s, %s, %s\n",
		count(len(p.Files), "source file"), count(a.Types, "type"),
		count(a.Errors, "error"), count(a.Warnings, "warning"))

	if len(p.References) > 0 {
		fmt.Fprintf(&b, "\nReferences (%d):\n", len(p.References))
		for _, ref := range p.References {
			state := count(len(ref.Files), "file")
			if !ref.Resolved() {
				state = "unresolved"
			}
			fmt.Fprintf(&b, "  %-8s %s", ref.Kind, ref.Name)
			if ref.Version != "" {
				fmt.Fprintf(&b, " %s", ref.Version)
			}
			fmt.Fprintf(&b, " (%s)\n", state)
		}
	}

	if a.Term != "" {
		fmt.Fprintf(&b, "\n%s matching %q:\n", count(len(a.Matches), "symbol"), a.Term)
		for _, s := range a.Matches {
			writeSymbol(&b, s, "  ")
		}
	}
	writeDiagnostics(&b, a.Diagnostics)
	return b.String()
}

// DocumentSymbols renders an analyzer outline as an indented tree.
func DocumentSymbols(path string, symbols []lsp.DocumentSymbol) string {
	if len(symbols) == 0 {
		return fmt.Sprintf("No symbols reported for %s.\n", path)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Symbols in %s:\n", path)
	var walk func([]lsp.DocumentSymbol, int)
	walk = func(list []lsp.DocumentSymbol, depth int) {
		for _, s := range list {
			indent := strings.Repeat("  ", depth+1)
			fmt.Fprintf(&b, "%s%s %s", indent, s.Kind, s.Name)
			if s.Detail != "" {
				fmt.Fprintf(&b, "  %s", s.Detail)
			}
			fmt.Fprintf(&b, "  line %d\n", s.SelectionRange.Start.Line+1)
			walk(s.Children, depth+1)
		}
	}
	walk(symbols, 0)
	return b.String()
}

// Hover renders hover text; a nil hover means the analyzer had nothing.
func Hover(h *lsp.Hover) string {
	text := strings.TrimSpace(h.Text())
	if text == "" {
		return "No hover information.\n"
	}
	return text + "\n"
}

// Locations renders references or definitions as path:line:column lines.
func Locations(title string, locs []lsp.Location) string {
	if len(locs) == 0 {
		return fmt.Sprintf("No %s found.\n", strings.ToLower(title))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d):\n", title, len(locs))
	for _, l := range locs {
		fmt.Fprintf(&b, "  %s:%d:%d\n", util.URIToPath(l.URI), l.Range.Start.Line+1, l.Range.Start.Character+1)
	}
	return b.String()
}

// WorkspaceSymbols renders a workspace/symbol reply.
func WorkspaceSymbols(term string, symbols []lsp.SymbolInformation) string {
	if len(symbols) == 0 {
		return fmt.Sprintf("No workspace symbols matching %q.\n", term)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s matching %q:\n", count(len(symbols), "workspace symbol"), term)
	for _, s := range symbols {
		name := s.Name
		if s.ContainerName != "" {
			name = s.ContainerName + "." + s.Name
		}
		fmt.Fprintf(&b, "  %s %s  %s:%d\n", s.Kind, name, util.URIToPath(s.Location.URI), s.Location.Range.Start.Line+1)
	}
	return b.String()
}

// Sessions renders session snapshots.
func Sessions(infos []lsp.Info) string {
	if len(infos) == 0 {
		return "No analyzer sessions.\n"
	}
	var b strings.Builder
	for _, info := range infos {
		fmt.Fprintf(&b, "%s: %s", info.Analyzer, info.State)
		if info.Server != nil {
			fmt.Fprintf(&b, " (%s %s)", info.Server.Name, info.Server.Version)
		}
		fmt.Fprintf(&b, ", %s, %s open\n", count(int(info.Spawns), "spawn"), count(info.OpenDocuments, "document"))
	}
	return b.String()
}

// Installations renders the analyzers found on disk.
func Installations(dir string, list []pkgmgr.Installation) string {
	if len(list) == 0 {
		return fmt.Sprintf("No analyzers installed under %s.\n", dir)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Analyzers under %s:\n", dir)
	for _, inst := range list {
		state := "ok"
		if !inst.Present {
			state = "missing entry point"
		}
		fmt.Fprintf(&b, "  %s %s  %s  (%s)\n", inst.Name, inst.Version, inst.Binary, state)
	}
	return b.String()
}

func writeSymbol(b *strings.Builder, s *graph.Symbol, indent string) {
	fmt.Fprintf(b, "%s  %s\n", indent, declaration(s))
	fmt.Fprintf(b, "%s    %s", indent, s.QualifiedName)
	if s.Assembly != "" {
		fmt.Fprintf(b, " [%s]", s.Assembly)
	}
	if loc := s.Location.String(); loc != "" {
		fmt.Fprintf(b, "  %s", loc)
	}
	b.WriteByte('\n')
}

// declaration is "modifiers label signature", e.g. "public method int Add(int a)".
func declaration(s *graph.Symbol) string {
	if s.Kind() == graph.KindType {
		return s.Modifiers() + " " + s.Signature()
	}
	return s.Modifiers() + " " + s.Label() + " " + s.Signature()
}

func writeBases(b *strings.Builder, d graph.TypeDetail) {
	bases := d.Interfaces
	if d.Base != "" {
		bases = append([]string{d.Base}, bases...)
	}
	if len(bases) > 0 {
		fmt.Fprintf(b, " : %s", strings.Join(bases, ", "))
	}
}

func paramTypes(m *graph.Symbol) string {
	if d, ok := m.Detail.(graph.MethodDetail); ok {
		return graph.ParamTypes(d.Params)
	}
	return ""
}

func writeDiagnostics(b *strings.Builder, diags []graph.Diagnostic) {
	if len(diags) == 0 {
		return
	}
	fmt.Fprintf(b, "\nDiagnostics (%d):\n", len(diags))
	for i, d := range diags {
		if i == maxDiagnostics {
			fmt.Fprintf(b, "  ... and %d more\n", len(diags)-maxDiagnostics)
			break
		}
		fmt.Fprintf(b, "  %s\n", d)
	}
}

func count(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	switch {
	case strings.HasSuffix(noun, "y"):
		noun = strings.TrimSuffix(noun, "y") + "ies"
	case strings.HasSuffix(noun, "ch"):
		noun += "es"
	default:
		noun += "s"
	}
	return fmt.Sprintf("%d %s", n, noun)
}
