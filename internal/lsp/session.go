// Package lsp keeps one long-lived language analyzer per session and
// forwards positional queries to it over JSON-RPC.
package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/jsonrpc2"

	"symscope/internal/apperr"
	"symscope/util"
)

// State is the lifecycle state of a Session.
type State int

const (
	Uninitialized State = iota
	Spawning
	Handshaking
	Ready
	Degraded
	Terminated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Spawning:
		return "spawning"
	case Handshaking:
		return "handshaking"
	case Ready:
		return "ready"
	case Degraded:
		return "degraded"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// maxTerminations is how many terminations in a row EnsureReady tolerates
// before it refuses one respawn.
const maxTerminations = 2

// Options configures a Session.
type Options struct {
	// RootDir is announced as rootUri and the single workspace folder.
	RootDir string
	// ClientName and ClientVersion fill clientInfo.
	ClientName    string
	ClientVersion string
	// InitializationOptions is passed through to the analyzer verbatim.
	InitializationOptions any
}

// Info is a snapshot of a session for status reports.
type Info struct {
	Analyzer      string      `json:"analyzer"`
	State         string      `json:"state"`
	Spawns        int64       `json:"spawns"`
	Terminations  int         `json:"consecutiveTerminations"`
	OpenDocuments int         `json:"openDocuments"`
	Server        *ServerInfo `json:"server,omitempty"`
}

// Session owns one analyzer process. It is safe for concurrent use.
type Session struct {
	launcher Launcher
	opts     Options

	// life serializes spawn, handshake and teardown.
	life sync.Mutex
	// docMu orders document notifications ahead of the requests that need them.
	docMu sync.Mutex

	mu     sync.Mutex
	state  State
	conn   *jsonrpc2.Conn
	stream io.ReadWriteCloser
	// gen identifies the current connection; stale watchers compare against it.
	gen          uint64
	terminations int
	init         *InitializeResult
	docs         map[string]*document

	nextID atomic.Uint64
	spawns atomic.Int64
	wg     sync.WaitGroup
}

// NewSession returns an Uninitialized session. Nothing is started until the
// first EnsureReady.
func NewSession(launcher Launcher, opts Options) *Session {
	if opts.ClientName == "" {
		opts.ClientName = "symscope"
	}
	return &Session{launcher: launcher, opts: opts}
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info returns a status snapshot.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		Analyzer:      s.launcher.Name(),
		State:         s.state.String(),
		Spawns:        s.spawns.Load(),
		Terminations:  s.terminations,
		OpenDocuments: len(s.docs),
	}
	if s.init != nil {
		info.Server = s.init.ServerInfo
	}
	return info
}

// EnsureReady starts and initializes the analyzer unless the session is
// already usable. Concurrent callers wait for the same handshake.
func (s *Session) EnsureReady(ctx context.Context) error {
	s.life.Lock()
	defer s.life.Unlock()

	s.mu.Lock()
	state, terminations := s.state, s.terminations
	s.mu.Unlock()

	switch state {
	case Ready, Degraded:
		return nil
	case Terminated:
		if terminations >= maxTerminations {
			// Surfaced once; the call after this one spawns again.
			s.mu.Lock()
			s.terminations = 0
			s.mu.Unlock()
			return fmt.Errorf("%w: %s terminated %d times in a row; not restarting it for this call",
				apperr.ErrSessionTerminated, s.launcher.Name(), terminations)
		}
		log.Info().Str("analyzer", s.launcher.Name()).Msg("respawning analyzer")
	}
	return s.start(ctx)
}

// start runs Spawning and Handshaking. Callers hold s.life.
func (s *Session) start(ctx context.Context) error {
	s.setState(Spawning)
	stream, err := s.launcher.Launch(ctx)
	if err != nil {
		s.setState(Uninitialized)
		return err
	}
	s.spawns.Add(1)

	conn := jsonrpc2.NewConn(context.Background(),
		jsonrpc2.NewBufferedStream(stream, jsonrpc2.VSCodeObjectCodec{}),
		jsonrpc2.AsyncHandler(jsonrpc2.HandlerWithError(s.handle).SuppressErrClosed()),
		jsonrpc2.SetLogger(rpcLogger{analyzer: s.launcher.Name()}))

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.conn, s.stream = conn, stream
	s.state = Handshaking
	s.docs = make(map[string]*document)
	s.init = nil
	s.mu.Unlock()

	s.wg.Add(1)
	go s.watch(conn, gen)

	result, err := s.handshake(ctx, conn)
	if err != nil {
		if ctx.Err() != nil {
			s.teardown(gen, Uninitialized)
			return ctx.Err()
		}
		s.terminate(gen, "initialize", err)
		return terminated("initialize", err)
	}

	s.mu.Lock()
	if s.gen == gen && s.state == Handshaking {
		s.state = Ready
		s.init = result
	}
	state := s.state
	s.mu.Unlock()
	if state != Ready {
		return fmt.Errorf("%w: %s exited during initialization", apperr.ErrSessionTerminated, s.launcher.Name())
	}

	log.Info().Str("analyzer", s.launcher.Name()).Str("root", s.opts.RootDir).Msg("analyzer ready")
	return nil
}

func (s *Session) handshake(ctx context.Context, conn *jsonrpc2.Conn) (*InitializeResult, error) {
	params := InitializeParams{
		ProcessID:             os.Getpid(),
		ClientInfo:            ClientInfo{Name: s.opts.ClientName, Version: s.opts.ClientVersion},
		Capabilities:          DefaultClientCapabilities(),
		InitializationOptions: s.opts.InitializationOptions,
	}
	if s.opts.RootDir != "" {
		root := util.PathToURI(s.opts.RootDir)
		params.RootURI = root
		params.WorkspaceFolders = []WorkspaceFolder{{URI: root, Name: filepath.Base(s.opts.RootDir)}}
	}

	var result InitializeResult
	id := jsonrpc2.ID{Num: s.nextID.Add(1)}
	if err := conn.Call(ctx, "initialize", params, &result, jsonrpc2.PickID(id)); err != nil {
		return nil, err
	}
	if err := conn.Notify(ctx, "initialized", struct{}{}); err != nil {
		return nil, err
	}
	return &result, nil
}

// watch marks the session Terminated when the connection drops on its own.
func (s *Session) watch(conn *jsonrpc2.Conn, gen uint64) {
	defer s.wg.Done()
	<-conn.DisconnectNotify()
	s.terminate(gen, "", errors.New("connection closed"))
}

// terminate moves the connection gen to Terminated, counting it once.
func (s *Session) terminate(gen uint64, method string, cause error) {
	s.mu.Lock()
	if s.gen != gen || (s.state != Handshaking && s.state != Ready && s.state != Degraded) {
		s.mu.Unlock()
		return
	}
	s.state = Terminated
	s.terminations++
	terminations := s.terminations
	conn, stream := s.conn, s.stream
	s.conn, s.stream, s.docs, s.init = nil, nil, nil, nil
	s.mu.Unlock()

	log.Warn().
		Str("analyzer", s.launcher.Name()).
		Str("method", method).
		Int("terminations", terminations).
		Err(cause).
		Msg("analyzer session terminated")
	_ = conn.Close()
	_ = stream.Close()
}

// teardown drops connection gen without counting a termination.
func (s *Session) teardown(gen uint64, next State) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.state = next
	conn, stream := s.conn, s.stream
	s.conn, s.stream, s.docs, s.init = nil, nil, nil, nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
		_ = stream.Close()
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Close shuts the analyzer down and returns the session to Uninitialized.
// ctx bounds the shutdown request; the process is stopped either way.
// Calling it again is a no-op.
func (s *Session) Close(ctx context.Context) error {
	s.life.Lock()
	defer s.life.Unlock()

	s.mu.Lock()
	conn, state, gen := s.conn, s.state, s.gen
	s.terminations = 0
	if conn == nil {
		s.state = Uninitialized
	}
	s.mu.Unlock()

	if conn != nil && (state == Ready || state == Degraded) {
		id := jsonrpc2.ID{Num: s.nextID.Add(1)}
		if err := conn.Call(ctx, "shutdown", nil, nil, jsonrpc2.PickID(id)); err != nil {
			log.Debug().Str("analyzer", s.launcher.Name()).Err(err).Msg("shutdown failed")
		} else {
			_ = conn.Notify(ctx, "exit", nil)
		}
	}
	if conn != nil {
		s.teardown(gen, Uninitialized)
		log.Info().Str("analyzer", s.launcher.Name()).Msg("analyzer session closed")
	}
	s.wg.Wait()
	return nil
}

// handle answers requests the analyzer sends to the client. Each runs on its
// own goroutine so a reply never holds up the read loop.
func (s *Session) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	switch req.Method {
	case "window/logMessage", "window/showMessage":
		var p LogMessageParams
		if req.Params != nil && json.Unmarshal(*req.Params, &p) == nil {
			log.Debug().Str("analyzer", s.launcher.Name()).Int("type", p.Type).Msg(p.Message)
		}
		return nil, nil
	case "workspace/configuration":
		var p ConfigurationParams
		if req.Params != nil {
			_ = json.Unmarshal(*req.Params, &p)
		}
		return make([]any, len(p.Items)), nil
	case "client/registerCapability", "client/unregisterCapability", "window/workDoneProgress/create":
		return nil, nil
	}
	if req.Notif {
		return nil, nil
	}
	return nil, &jsonrpc2.Error{Code: CodeMethodNotFound, Message: "unsupported method " + req.Method}
}

// call sends one request on the current connection and returns the raw
// result with the generation it ran on. It never respawns.
func (s *Session) call(ctx context.Context, method string, params any) (json.RawMessage, uint64, error) {
	s.mu.Lock()
	conn, gen, state := s.conn, s.gen, s.state
	s.mu.Unlock()
	if conn == nil || (state != Ready && state != Degraded) {
		return nil, gen, fmt.Errorf("%w: %s: session is %s", apperr.ErrSessionTerminated, method, state)
	}

	var result json.RawMessage
	id := jsonrpc2.ID{Num: s.nextID.Add(1)}
	err := conn.Call(ctx, method, params, &result, jsonrpc2.PickID(id))
	if err == nil {
		s.succeeded(gen)
		return result, gen, nil
	}
	if ctx.Err() != nil {
		if nerr := conn.Notify(context.Background(), "$/cancelRequest", CancelParams{ID: id.Num}); nerr != nil {
			log.Debug().Str("method", method).Err(nerr).Msg("cancel not delivered")
		}
		return nil, gen, ctx.Err()
	}

	var rpcErr *jsonrpc2.Error
	if errors.As(err, &rpcErr) {
		s.degrade(gen)
		return nil, gen, &RequestError{Method: method, Code: rpcErr.Code, Message: rpcErr.Message}
	}
	s.terminate(gen, method, err)
	return nil, gen, terminated(method, err)
}

// malformed treats an undecodable reply on connection gen as a broken analyzer.
func (s *Session) malformed(gen uint64, method string, err error) error {
	err = fmt.Errorf("malformed reply: %w", err)
	s.terminate(gen, method, err)
	return terminated(method, err)
}

func (s *Session) succeeded(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.terminations = 0
	if s.state == Degraded {
		s.state = Ready
		log.Info().Str("analyzer", s.launcher.Name()).Msg("analyzer recovered")
	}
}

func (s *Session) degrade(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen && s.state == Ready {
		s.state = Degraded
	}
}

func (s *Session) notify(ctx context.Context, method string, params any) error {
	s.mu.Lock()
	conn, gen := s.conn, s.gen
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: %s: no connection", apperr.ErrSessionTerminated, method)
	}
	if err := conn.Notify(ctx, method, params); err != nil {
		s.terminate(gen, method, err)
		return terminated(method, err)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// rpcLogger routes jsonrpc2 diagnostics into zerolog.
type rpcLogger struct {
	analyzer string
}

func (l rpcLogger) Printf(format string, v ...any) {
	log.Debug().Str("analyzer", l.analyzer).Msgf(format, v...)
}
