package lsp_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"symscope/internal/apperr"
	"symscope/internal/lsp"
	"symscope/internal/lsp/lsptest"
	"symscope/internal/pkgmgr"
	"symscope/util"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const source = "class Calculator\n    void Add()\n    void Multiply()\n\nclass Parser\n    void Parse()\n"

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

func newSession(t *testing.T, fake *lsptest.Analyzer) (*lsp.Session, string) {
	t.Helper()
	dir := t.TempDir()
	s := lsp.NewSession(fake, lsp.Options{RootDir: dir})
	t.Cleanup(func() {
		assert.NoError(t, s.Close(context.Background()))
		fake.Close()
	})
	return s, dir
}

func writeFile(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestEnsureReadyConcurrent(t *testing.T) {
	fake := lsptest.New()
	fake.Gate = make(chan struct{})
	s, dir := newSession(t, fake)
	ctx := context.Background()

	const callers = 8
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.EnsureReady(ctx)
		}()
	}

	require.Eventually(t, func() bool { return len(fake.Initializes()) == 1 }, waitFor, tick)
	assert.Equal(t, lsp.Handshaking, s.State())
	close(fake.Gate)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 1, fake.Launches())
	assert.Equal(t, lsp.Ready, s.State())

	init := fake.Initializes()[0]
	assert.Equal(t, util.PathToURI(dir), init.RootURI)
	assert.Equal(t, "symscope", init.ClientInfo.Name)
	require.Len(t, init.WorkspaceFolders, 1)
	assert.True(t, init.Capabilities.TextDocument.DocumentSymbol.HierarchicalDocumentSymbolSupport)

	info := s.Info()
	assert.Equal(t, "ready", info.State)
	require.NotNil(t, info.Server)
	assert.Equal(t, "fake-analyzer", info.Server.Name)

	// workspace/configuration is answered with one null per item.
	require.Eventually(t, func() bool { return len(fake.Replies()) == 1 }, waitFor, tick)
	assert.JSONEq(t, `[null]`, string(fake.Replies()[0]))
}

func TestDocumentSync(t *testing.T) {
	fake := lsptest.New()
	s, dir := newSession(t, fake)
	ctx := context.Background()
	path := writeFile(t, dir, "Calc.cs", source)
	uri := util.PathToURI(path)

	symbols, err := s.DocumentSymbols(ctx, path)
	require.NoError(t, err)
	require.Len(t, symbols, 2)
	assert.Equal(t, "Calculator", symbols[0].Name)
	assert.Equal(t, lsp.SymbolKindClass, symbols[0].Kind)
	require.Len(t, symbols[0].Children, 2)
	assert.Equal(t, "Multiply", symbols[0].Children[1].Name)
	assert.Equal(t, "Parser", symbols[1].Name)

	_, err = s.DocumentSymbols(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []lsptest.Event{
		{Method: "textDocument/didOpen", URI: uri, Version: 1},
	}, fake.Events())

	writeFile(t, dir, "Calc.cs", source+"class Extra\n")
	symbols, err = s.DocumentSymbols(ctx, path)
	require.NoError(t, err)
	assert.Len(t, symbols, 3)

	// Same content again: nothing to send.
	_, err = s.Hover(ctx, path, lsp.Position{Line: 0})
	require.NoError(t, err)

	require.NoError(t, s.CloseDocument(ctx, path))
	_, err = s.Hover(ctx, path, lsp.Position{Line: 0})
	require.NoError(t, err)

	assert.Equal(t, []lsptest.Event{
		{Method: "textDocument/didOpen", URI: uri, Version: 1},
		{Method: "textDocument/didChange", URI: uri, Version: 2},
		{Method: "textDocument/didClose", URI: uri},
		{Method: "textDocument/didOpen", URI: uri, Version: 1},
	}, fake.Events())
	assert.Equal(t, 1, s.Info().OpenDocuments)
}

func TestFlatDocumentSymbols(t *testing.T) {
	fake := lsptest.New()
	fake.FlatSymbols = true
	s, dir := newSession(t, fake)
	path := writeFile(t, dir, "Calc.cs", source)

	symbols, err := s.DocumentSymbols(context.Background(), path)
	require.NoError(t, err)
	var names []string
	for _, sym := range symbols {
		names = append(names, sym.Name)
		assert.Empty(t, sym.Children)
	}
	assert.Equal(t, []string{"Calculator", "Add", "Multiply", "Parser", "Parse"}, names)
	assert.Equal(t, "Calculator", symbols[1].Detail)
}

func TestHover(t *testing.T) {
	fake := lsptest.New()
	s, dir := newSession(t, fake)
	ctx := context.Background()
	path := writeFile(t, dir, "Calc.cs", source)

	h, err := s.Hover(ctx, path, lsp.Position{Line: 1, Character: 9})
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "`void Add()`", h.Text())

	for _, line := range []int{3, 99} {
		h, err = s.Hover(ctx, path, lsp.Position{Line: line})
		require.NoError(t, err)
		assert.Nil(t, h, "line %d", line)
	}

	_, err = s.Hover(ctx, filepath.Join(dir, "Missing.cs"), lsp.Position{})
	require.ErrorIs(t, err, apperr.ErrInvalidQuery)
	assert.Equal(t, lsp.Ready, s.State())
}

func TestReferencesAndDefinition(t *testing.T) {
	fake := lsptest.New()
	s, dir := newSession(t, fake)
	ctx := context.Background()
	path := writeFile(t, dir, "Calc.cs", source)
	uri := util.PathToURI(path)

	refs, err := s.References(ctx, path, lsp.Position{Line: 2}, true)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, uri, refs[0].URI)
	assert.Equal(t, 2, refs[0].Range.Start.Line)
	assert.Equal(t, 0, refs[1].Range.Start.Line)

	refs, err = s.References(ctx, path, lsp.Position{Line: 2}, false)
	require.NoError(t, err)
	assert.Len(t, refs, 1)

	refs, err = s.References(ctx, path, lsp.Position{Line: 50}, false)
	require.NoError(t, err)
	assert.Empty(t, refs)

	defs, err := s.Definition(ctx, path, lsp.Position{Line: 1})
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, lsp.Location{URI: uri, Range: lsp.Range{End: lsp.Position{Character: 1}}}, defs[0])

	defs, err = s.Definition(ctx, path, lsp.Position{Line: 50})
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestDefinitionLinks(t *testing.T) {
	fake := lsptest.New()
	fake.LocationLinks = true
	s, dir := newSession(t, fake)
	path := writeFile(t, dir, "Calc.cs", source)

	defs, err := s.Definition(context.Background(), path, lsp.Position{Line: 1})
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, util.PathToURI(path), defs[0].URI)
	// Links resolve to their selection range.
	assert.Equal(t, 1, defs[0].Range.Start.Line)
}

func TestWorkspaceSymbols(t *testing.T) {
	fake := lsptest.New()
	s, _ := newSession(t, fake)
	ctx := context.Background()

	symbols, err := s.WorkspaceSymbols(ctx, "Calculator")
	require.NoError(t, err)
	require.Len(t, symbols, 1)
	assert.Equal(t, "Calculator", symbols[0].Name)
	assert.Equal(t, "Workspace", symbols[0].ContainerName)

	symbols, err = s.WorkspaceSymbols(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, symbols)
}

func TestRespawnAfterCrash(t *testing.T) {
	fake := lsptest.New()
	s, dir := newSession(t, fake)
	ctx := context.Background()
	path := writeFile(t, dir, "Calc.cs", source)
	uri := util.PathToURI(path)

	fake.FailNext("textDocument/hover", lsptest.Crash)
	_, err := s.Hover(ctx, path, lsp.Position{Line: 0})
	require.ErrorIs(t, err, apperr.ErrSessionTerminated)
	assert.True(t, apperr.Retryable(err))
	assert.Equal(t, lsp.Terminated, s.State())
	assert.Equal(t, 1, s.Info().Terminations)

	h, err := s.Hover(ctx, path, lsp.Position{Line: 0})
	require.NoError(t, err)
	assert.Equal(t, "`class Calculator`", h.Text())
	assert.Equal(t, 2, fake.Launches())
	assert.Len(t, fake.Initializes(), 2)
	assert.Equal(t, 0, s.Info().Terminations)

	// The new analyzer has never seen the document.
	assert.Equal(t, []lsptest.Event{
		{Method: "textDocument/didOpen", URI: uri, Version: 1},
		{Method: "textDocument/didOpen", URI: uri, Version: 1},
	}, fake.Events())
}

func TestTerminatedTwice(t *testing.T) {
	fake := lsptest.New()
	s, dir := newSession(t, fake)
	ctx := context.Background()
	path := writeFile(t, dir, "Calc.cs", source)

	fake.FailNext("textDocument/hover", lsptest.Crash)
	fake.FailNext("textDocument/hover", lsptest.Crash)

	_, err := s.Hover(ctx, path, lsp.Position{})
	require.ErrorIs(t, err, apperr.ErrSessionTerminated)
	_, err = s.Hover(ctx, path, lsp.Position{})
	require.ErrorIs(t, err, apperr.ErrSessionTerminated)
	assert.Equal(t, 2, fake.Launches())

	err = s.EnsureReady(ctx)
	require.ErrorIs(t, err, apperr.ErrSessionTerminated)
	assert.Contains(t, err.Error(), "2 times in a row")
	assert.Equal(t, 2, fake.Launches())
	assert.Equal(t, lsp.Terminated, s.State())

	// The refusal is reported once; the next call starts a fresh analyzer.
	_, err = s.Hover(ctx, path, lsp.Position{})
	require.NoError(t, err)
	assert.Equal(t, 3, fake.Launches())
	assert.Equal(t, lsp.Ready, s.State())
}

func TestTerminatedTwiceThenClose(t *testing.T) {
	fake := lsptest.New()
	s, dir := newSession(t, fake)
	ctx := context.Background()
	path := writeFile(t, dir, "Calc.cs", source)

	fake.FailNext("textDocument/hover", lsptest.Crash)
	fake.FailNext("textDocument/hover", lsptest.Crash)
	for range 2 {
		_, err := s.Hover(ctx, path, lsp.Position{})
		require.ErrorIs(t, err, apperr.ErrSessionTerminated)
	}

	require.NoError(t, s.Close(ctx))
	assert.Equal(t, lsp.Uninitialized, s.State())
	assert.Zero(t, s.Info().Terminations)

	_, err := s.Hover(ctx, path, lsp.Position{})
	require.NoError(t, err)
	assert.Equal(t, 3, fake.Launches())
}

func TestCrashDuringHandshake(t *testing.T) {
	fake := lsptest.New()
	s, _ := newSession(t, fake)
	ctx := context.Background()

	fake.FailNext("initialize", lsptest.Crash)
	require.ErrorIs(t, s.EnsureReady(ctx), apperr.ErrSessionTerminated)
	assert.Equal(t, lsp.Terminated, s.State())

	require.NoError(t, s.EnsureReady(ctx))
	assert.Equal(t, lsp.Ready, s.State())
	assert.Equal(t, 2, fake.Launches())
}

func TestMalformedReply(t *testing.T) {
	fake := lsptest.New()
	s, dir := newSession(t, fake)
	path := writeFile(t, dir, "Calc.cs", source)

	fake.FailNext("textDocument/documentSymbol", lsptest.Malformed)
	_, err := s.DocumentSymbols(context.Background(), path)
	require.ErrorIs(t, err, apperr.ErrSessionTerminated)
	assert.Equal(t, lsp.Terminated, s.State())
}

func TestLateMalformedReplySparesNewGeneration(t *testing.T) {
	fake := lsptest.New()
	s, dir := newSession(t, fake)
	ctx := context.Background()
	path := writeFile(t, dir, "Calc.cs", source)

	require.NoError(t, s.EnsureReady(ctx))
	stale := s.Generation()

	fake.FailNext("textDocument/hover", lsptest.Crash)
	_, err := s.Hover(ctx, path, lsp.Position{})
	require.ErrorIs(t, err, apperr.ErrSessionTerminated)
	_, err = s.Hover(ctx, path, lsp.Position{})
	require.NoError(t, err)
	require.Equal(t, 2, fake.Launches())

	// A reply from the first analyzer that only now fails to decode.
	err = s.Malformed(stale, "textDocument/hover", errors.New("unexpected token"))
	require.ErrorIs(t, err, apperr.ErrSessionTerminated)
	assert.Equal(t, lsp.Ready, s.State())

	_, err = s.Hover(ctx, path, lsp.Position{})
	require.NoError(t, err)
	assert.Equal(t, 2, fake.Launches())
}

func TestServerRequestsDuringQueries(t *testing.T) {
	fake := lsptest.New()
	fake.Chatty = true
	s, dir := newSession(t, fake)
	ctx := context.Background()
	path := writeFile(t, dir, "Calc.cs", source)
	require.NoError(t, s.EnsureReady(ctx))

	const (
		workers = 8
		rounds  = 25
	)
	errs := make(chan error, workers*rounds)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range rounds {
				_, err := s.Hover(ctx, path, lsp.Position{Line: 1})
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, lsp.Ready, s.State())
	assert.Equal(t, 1, fake.Launches())

	// One configuration reply for the handshake and one per hover.
	require.Eventually(t, func() bool {
		return len(fake.Replies()) == 1+workers*rounds
	}, waitFor, tick)
}

func TestDegradedRecovers(t *testing.T) {
	fake := lsptest.New()
	s, dir := newSession(t, fake)
	ctx := context.Background()
	path := writeFile(t, dir, "Calc.cs", source)

	fake.FailNext("textDocument/hover", lsptest.Fail)
	_, err := s.Hover(ctx, path, lsp.Position{})
	var reqErr *lsp.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "textDocument/hover", reqErr.Method)
	assert.EqualValues(t, lsp.CodeInternalError, reqErr.Code)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Equal(t, lsp.Degraded, s.State())

	// Degraded sessions keep serving.
	require.NoError(t, s.EnsureReady(ctx))
	_, err = s.Hover(ctx, path, lsp.Position{})
	require.NoError(t, err)
	assert.Equal(t, lsp.Ready, s.State())
	assert.Equal(t, 1, fake.Launches())
}

func TestRequestErrorKinds(t *testing.T) {
	tests := []struct {
		code int64
		kind apperr.Kind
	}{
		{lsp.CodeInvalidParams, apperr.KindInvalidQuery},
		{lsp.CodeRequestFailed, apperr.KindInvalidQuery},
		{lsp.CodeInternalError, apperr.KindInternal},
		{lsp.CodeContentModified, apperr.KindInternal},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			err := fmt.Errorf("query: %w", &lsp.RequestError{Method: "m", Code: tt.code, Message: "x"})
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestCancelSendsCancelRequest(t *testing.T) {
	fake := lsptest.New()
	s, dir := newSession(t, fake)
	path := writeFile(t, dir, "Calc.cs", source)

	fake.FailNext("textDocument/references", lsptest.Hang)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		_, err := s.References(ctx, path, lsp.Position{Line: 1}, true)
		errc <- err
	}()

	require.Eventually(t, func() bool { return fake.Requests("textDocument/references") == 1 }, waitFor, tick)
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)
	require.Eventually(t, func() bool { return len(fake.Cancelled()) == 1 }, waitFor, tick)
	assert.Equal(t, lsp.Ready, s.State())

	refs, err := s.References(context.Background(), path, lsp.Position{Line: 1}, true)
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}

func TestCloseIdempotent(t *testing.T) {
	fake := lsptest.New()
	s, _ := newSession(t, fake)
	ctx := context.Background()

	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.EnsureReady(ctx))
	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))
	assert.Equal(t, lsp.Uninitialized, s.State())

	require.Eventually(t, func() bool { return fake.Requests("exit") == 1 }, waitFor, tick)
	assert.Equal(t, 1, fake.Requests("shutdown"))
	assert.Equal(t, 1, fake.Launches())
}

func TestLaunchError(t *testing.T) {
	fake := lsptest.New()
	fake.LaunchErr = fmt.Errorf("%w: nothing installed", apperr.ErrBackendNotFound)
	s, _ := newSession(t, fake)

	err := s.EnsureReady(context.Background())
	require.ErrorIs(t, err, apperr.ErrBackendNotFound)
	assert.Equal(t, lsp.Uninitialized, s.State())
	assert.Zero(t, s.Info().Spawns)
}

func TestPool(t *testing.T) {
	fake := lsptest.New()
	defer fake.Close()
	pool := lsp.NewPool(func(path string) (lsp.Launcher, string, error) {
		return fake, filepath.Dir(path), nil
	}, lsp.Options{})

	a, err := pool.ForFile("/work/one/A.cs")
	require.NoError(t, err)
	b, err := pool.ForFile("/work/one/B.cs")
	require.NoError(t, err)
	c, err := pool.ForFile("/work/two/C.cs")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Len(t, pool.Sessions(), 2)

	require.NoError(t, a.EnsureReady(context.Background()))
	require.NoError(t, pool.Close(context.Background()))
	assert.Equal(t, lsp.Uninitialized, a.State())
	assert.Empty(t, pool.Sessions())
}

func TestExecResolver(t *testing.T) {
	m, err := pkgmgr.NewManager(t.TempDir(), false)
	require.NoError(t, err)
	dir := t.TempDir()
	cs := writeFile(t, dir, "A.cs", "class A {}")

	launcher, root, err := lsp.ExecResolver(m, "", "")(cs)
	require.NoError(t, err)
	assert.Equal(t, "csharp-ls", launcher.Name())
	assert.Equal(t, dir, root)

	// A missing installation surfaces when the session starts.
	s := lsp.NewSession(launcher, lsp.Options{RootDir: root})
	require.ErrorIs(t, s.EnsureReady(context.Background()), apperr.ErrBackendNotFound)
	require.NoError(t, s.Close(context.Background()))

	launcher, _, err = lsp.ExecResolver(m, "my-ls", "")(cs)
	require.NoError(t, err)
	assert.Equal(t, "my-ls", launcher.Name())

	_, _, err = lsp.ExecResolver(m, "", "")(filepath.Join(dir, "notes.txt"))
	require.ErrorIs(t, err, apperr.ErrInvalidQuery)
	assert.False(t, errors.Is(err, apperr.ErrBackendNotFound))
}

func TestExecLauncherKeepsOutputAfterExit(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no sh on PATH")
	}
	m, err := pkgmgr.NewManager(t.TempDir(), true)
	require.NoError(t, err)
	l := &lsp.ExecLauncher{
		Manager:  m,
		Analyzer: &pkgmgr.Analyzer{Name: "printf-ls", Binary: "sh", Args: []string{"-c", "printf 'Content-Length: 2\\r\\n\\r\\n{}'"}},
		Dir:      t.TempDir(),
	}

	stream, err := l.Launch(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	// Let the child exit and be reaped before anything is read.
	time.Sleep(200 * time.Millisecond)
	out, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "Content-Length: 2\r\n\r\n{}", string(out))
}
