package lsp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"symscope/internal/apperr"
	"symscope/internal/scanner"
	"symscope/util"
)

// document is the analyzer's view of one open file.
type document struct {
	version int
	hash    uint64
}

// SyncFile reads path from disk and brings the analyzer's copy up to date.
// It returns the document URI.
func (s *Session) SyncFile(ctx context.Context, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", apperr.ErrInvalidQuery, path, err)
	}
	text, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: no such file %s", apperr.ErrInvalidQuery, path)
		}
		return "", fmt.Errorf("%w: %s: %v", apperr.ErrInvalidQuery, path, err)
	}
	return s.SyncDocument(ctx, abs, text)
}

// SyncDocument sends didOpen the first time a path is seen in this session
// and a full-text didChange when text differs from what was last sent.
// Unchanged text sends nothing.
func (s *Session) SyncDocument(ctx context.Context, path string, text []byte) (string, error) {
	uri := util.PathToURI(path)
	hash := util.HashContent(text)

	s.docMu.Lock()
	defer s.docMu.Unlock()

	s.mu.Lock()
	if s.docs == nil {
		state := s.state
		s.mu.Unlock()
		return "", fmt.Errorf("%w: cannot sync %s: session is %s", apperr.ErrSessionTerminated, path, state)
	}
	doc, open := s.docs[uri]
	switch {
	case !open:
		doc = &document{version: 1, hash: hash}
		s.docs[uri] = doc
	case doc.hash != hash:
		doc.version++
		doc.hash = hash
	default:
		s.mu.Unlock()
		return uri, nil
	}
	version := doc.version
	s.mu.Unlock()

	if !open {
		log.Debug().Str("uri", uri).Msg("didOpen")
		err := s.notify(ctx, "textDocument/didOpen", DidOpenTextDocumentParams{
			TextDocument: TextDocumentItem{
				URI:        uri,
				LanguageID: scanner.LanguageID(path),
				Version:    version,
				Text:       string(text),
			},
		})
		return uri, err
	}

	log.Debug().Str("uri", uri).Int("version", version).Msg("didChange")
	err := s.notify(ctx, "textDocument/didChange", DidChangeTextDocumentParams{
		TextDocument:   VersionedTextDocumentIdentifier{URI: uri, Version: version},
		ContentChanges: []TextDocumentContentChangeEvent{{Text: string(text)}},
	})
	return uri, err
}

// CloseDocument sends didClose for an open document and forgets it.
func (s *Session) CloseDocument(ctx context.Context, path string) error {
	uri := util.PathToURI(path)

	s.docMu.Lock()
	defer s.docMu.Unlock()

	s.mu.Lock()
	_, open := s.docs[uri]
	delete(s.docs, uri)
	s.mu.Unlock()
	if !open {
		return nil
	}
	return s.notify(ctx, "textDocument/didClose", DidCloseTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
	})
}
