package lsp

import (
	"bytes"
	"context"
	"encoding/json"
)

// DocumentSymbols returns the symbol outline of a file. Flat
// SymbolInformation replies are converted to childless DocumentSymbols.
func (s *Session) DocumentSymbols(ctx context.Context, path string) ([]DocumentSymbol, error) {
	uri, err := s.prepare(ctx, path)
	if err != nil {
		return nil, err
	}
	const method = "textDocument/documentSymbol"
	raw, gen, err := s.call(ctx, method, DocumentSymbolParams{TextDocument: TextDocumentIdentifier{URI: uri}})
	if err != nil {
		return nil, err
	}
	symbols, err := parseDocumentSymbols(raw)
	if err != nil {
		return nil, s.malformed(gen, method, err)
	}
	return symbols, nil
}

// Hover returns the hover at pos, or nil when the analyzer has nothing.
func (s *Session) Hover(ctx context.Context, path string, pos Position) (*Hover, error) {
	uri, err := s.prepare(ctx, path)
	if err != nil {
		return nil, err
	}
	const method = "textDocument/hover"
	raw, gen, err := s.call(ctx, method, TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
		Position:     pos,
	})
	if err != nil || isNull(raw) {
		return nil, err
	}
	var h Hover
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, s.malformed(gen, method, err)
	}
	if isNull(h.Contents) {
		return nil, nil
	}
	return &h, nil
}

// References returns every reference to the symbol at pos.
func (s *Session) References(ctx context.Context, path string, pos Position, includeDeclaration bool) ([]Location, error) {
	uri, err := s.prepare(ctx, path)
	if err != nil {
		return nil, err
	}
	const method = "textDocument/references"
	raw, gen, err := s.call(ctx, method, ReferenceParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
		Position:     pos,
		Context:      ReferenceContext{IncludeDeclaration: includeDeclaration},
	})
	if err != nil {
		return nil, err
	}
	locs, err := ParseLocations(raw)
	if err != nil {
		return nil, s.malformed(gen, method, err)
	}
	return locs, nil
}

// Definition returns the definition sites of the symbol at pos.
func (s *Session) Definition(ctx context.Context, path string, pos Position) ([]Location, error) {
	uri, err := s.prepare(ctx, path)
	if err != nil {
		return nil, err
	}
	const method = "textDocument/definition"
	raw, gen, err := s.call(ctx, method, TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
		Position:     pos,
	})
	if err != nil {
		return nil, err
	}
	locs, err := ParseLocations(raw)
	if err != nil {
		return nil, s.malformed(gen, method, err)
	}
	return locs, nil
}

// WorkspaceSymbols searches the analyzer's whole workspace.
func (s *Session) WorkspaceSymbols(ctx context.Context, query string) ([]SymbolInformation, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return nil, err
	}
	const method = "workspace/symbol"
	raw, gen, err := s.call(ctx, method, WorkspaceSymbolParams{Query: query})
	if err != nil || isNull(raw) {
		return nil, err
	}
	var out []SymbolInformation
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, s.malformed(gen, method, err)
	}
	return out, nil
}

func (s *Session) prepare(ctx context.Context, path string) (string, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return "", err
	}
	return s.SyncFile(ctx, path)
}

// ParseLocations normalizes a Location, Location[], LocationLink[] or null
// reply to a slice.
func ParseLocations(raw json.RawMessage) ([]Location, error) {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return nil, nil
	}
	if raw[0] != '[' {
		var loc Location
		if err := json.Unmarshal(raw, &loc); err != nil {
			return nil, err
		}
		return []Location{loc}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]Location, 0, len(items))
	for _, item := range items {
		var shape struct {
			URI       string `json:"uri"`
			TargetURI string `json:"targetUri"`
		}
		if err := json.Unmarshal(item, &shape); err != nil {
			return nil, err
		}
		if shape.TargetURI != "" {
			var link LocationLink
			if err := json.Unmarshal(item, &link); err != nil {
				return nil, err
			}
			out = append(out, Location{URI: link.TargetURI, Range: link.TargetSelectionRange})
			continue
		}
		var loc Location
		if err := json.Unmarshal(item, &loc); err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, nil
}

func parseDocumentSymbols(raw json.RawMessage) ([]DocumentSymbol, error) {
	if isNull(raw) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]DocumentSymbol, 0, len(items))
	for _, item := range items {
		var shape struct {
			Location *Location `json:"location"`
		}
		if err := json.Unmarshal(item, &shape); err != nil {
			return nil, err
		}
		if shape.Location != nil {
			var info SymbolInformation
			if err := json.Unmarshal(item, &info); err != nil {
				return nil, err
			}
			out = append(out, DocumentSymbol{
				Name:           info.Name,
				Detail:         info.ContainerName,
				Kind:           info.Kind,
				Range:          info.Location.Range,
				SelectionRange: info.Location.Range,
			})
			continue
		}
		var sym DocumentSymbol
		if err := json.Unmarshal(item, &sym); err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, nil
}
