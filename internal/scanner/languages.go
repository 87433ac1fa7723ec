package scanner

import (
	"path/filepath"
	"sort"
	"strings"
	"unsafe"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_csharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// Language binds a grammar to the extractor that turns its syntax tree into symbols.
type Language struct {
	// Name is the short name used in config and logs.
	Name string
	// LSPID is the languageId announced in textDocument/didOpen.
	LSPID   string
	grammar func() unsafe.Pointer
	extract extractFunc
}

var languages = map[string]*Language{
	".cs":  {Name: "csharp", LSPID: "csharp", grammar: tree_sitter_csharp.Language, extract: extractCSharp},
	".go":  {Name: "go", LSPID: "go", grammar: tree_sitter_go.Language, extract: extractGo},
	".py":  {Name: "python", LSPID: "python", grammar: tree_sitter_python.Language, extract: extractPython},
	".pyi": {Name: "python", LSPID: "python", grammar: tree_sitter_python.Language, extract: extractPython},
	".ts":  {Name: "typescript", LSPID: "typescript", grammar: tree_sitter_typescript.LanguageTypescript, extract: extractTypeScript},
	".mts": {Name: "typescript", LSPID: "typescript", grammar: tree_sitter_typescript.LanguageTypescript, extract: extractTypeScript},
	".tsx": {Name: "typescript", LSPID: "typescriptreact", grammar: tree_sitter_typescript.LanguageTSX, extract: extractTypeScript},
	".js":  {Name: "javascript", LSPID: "javascript", grammar: tree_sitter_javascript.Language, extract: extractTypeScript},
	".mjs": {Name: "javascript", LSPID: "javascript", grammar: tree_sitter_javascript.Language, extract: extractTypeScript},
	".cjs": {Name: "javascript", LSPID: "javascript", grammar: tree_sitter_javascript.Language, extract: extractTypeScript},
	".jsx": {Name: "javascript", LSPID: "javascriptreact", grammar: tree_sitter_javascript.Language, extract: extractTypeScript},
}

// ForPath returns the language registered for the extension of path, or nil.
func ForPath(path string) *Language {
	return languages[strings.ToLower(filepath.Ext(path))]
}

// Supported reports whether path has a registered grammar.
func Supported(path string) bool {
	return ForPath(path) != nil
}

// LanguageID returns the LSP languageId for path, "plaintext" when unknown.
func LanguageID(path string) string {
	if l := ForPath(path); l != nil {
		return l.LSPID
	}
	return "plaintext"
}

// Extensions lists the extensions handled by the named language, sorted.
func Extensions(name string) []string {
	var out []string
	for ext, l := range languages {
		if l.Name == name {
			out = append(out, ext)
		}
	}
	sort.Strings(out)
	return out
}

func (l *Language) newParser() (*sitter.Parser, error) {
	p := sitter.NewParser()
	if err := p.SetLanguage(sitter.NewLanguage(l.grammar())); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}
