package lsp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"symscope/internal/apperr"
	"symscope/internal/pkgmgr"
	"symscope/internal/scanner"
	"symscope/util"
)

// Resolver picks the launcher for a file and the workspace root it belongs to.
type Resolver func(path string) (Launcher, string, error)

// Pool keeps one session per analyzer and workspace root.
type Pool struct {
	resolve Resolver
	opts    Options

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewPool returns an empty pool. opts.RootDir is replaced per session.
func NewPool(resolve Resolver, opts Options) *Pool {
	return &Pool{resolve: resolve, opts: opts, sessions: make(map[string]*Session)}
}

// ForFile returns the session serving path, creating it on first use. The
// session is not started; requests start it.
func (p *Pool) ForFile(path string) (*Session, error) {
	launcher, root, err := p.resolve(path)
	if err != nil {
		return nil, err
	}
	key := launcher.Name() + "@" + root

	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[key]; ok {
		return s, nil
	}
	opts := p.opts
	opts.RootDir = root
	s := NewSession(launcher, opts)
	p.sessions[key] = s
	log.Debug().Str("analyzer", launcher.Name()).Str("root", root).Msg("session created")
	return s, nil
}

// Sessions lists the pooled sessions ordered by analyzer and root.
func (p *Pool) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.sessions))
	for k := range p.sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Session, 0, len(keys))
	for _, k := range keys {
		out = append(out, p.sessions[k])
	}
	return out
}

// Close closes every session and empties the pool.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*Session)
	p.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ExecResolver resolves files to installed analyzers by language. A
// non-empty analyzer name pins one analyzer for every file; binary
// overrides its entry point.
func ExecResolver(m *pkgmgr.Manager, analyzer, binary string) Resolver {
	return func(path string) (Launcher, string, error) {
		a, err := analyzerFor(path, analyzer)
		if err != nil {
			return nil, "", err
		}
		root, err := util.FindProjectRoot(path)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %s: %v", apperr.ErrInvalidQuery, path, err)
		}
		return &ExecLauncher{Manager: m, Analyzer: a, Binary: binary, Dir: root}, root, nil
	}
}

func analyzerFor(path, pinned string) (*pkgmgr.Analyzer, error) {
	if pinned != "" {
		if a, err := pkgmgr.Lookup(pinned); err == nil {
			return a, nil
		}
		// Unregistered analyzers speak LSP on stdio with no arguments.
		return &pkgmgr.Analyzer{Name: pinned, Binary: pinned}, nil
	}
	lang := scanner.ForPath(path)
	if lang == nil {
		return nil, fmt.Errorf("%w: no analyzer handles %s files", apperr.ErrInvalidQuery, filepath.Ext(path))
	}
	return pkgmgr.ForLanguage(lang.Name)
}
