// Package lsptest provides an in-process language analyzer for session tests.
package lsptest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"symscope/internal/lsp"
)

// Fault is a misbehavior injected into the next reply to a method.
type Fault int

const (
	// Crash drops the connection when the request arrives.
	Crash Fault = iota + 1
	// Malformed replies with a body that is not JSON.
	Malformed
	// Fail replies with a JSON-RPC internal error.
	Fail
	// Hang never replies.
	Hang
)

// Event is a document notification the analyzer received.
type Event struct {
	Method  string
	URI     string
	Version int
}

// Analyzer is a fake analyzer. It implements lsp.Launcher; every Launch
// starts a fresh analyzer instance on an in-memory pipe.
type Analyzer struct {
	// Gate, when non-nil, holds the initialize reply until it is closed.
	Gate chan struct{}
	// LaunchErr is returned from Launch when set.
	LaunchErr error
	// LocationLinks makes definition reply with LocationLink[] instead of a
	// single Location.
	LocationLinks bool
	// FlatSymbols makes documentSymbol reply with SymbolInformation[].
	FlatSymbols bool
	// Chatty sends a workspace/configuration request ahead of every reply.
	Chatty bool

	mu           sync.Mutex
	faults       map[string][]Fault
	requests     map[string]int
	events       []Event
	cancelled    []uint64
	replies      []json.RawMessage
	launches     int
	initializeAt []lsp.InitializeParams
	conns        map[net.Conn]struct{}
	wg           sync.WaitGroup
}

func New() *Analyzer {
	return &Analyzer{
		faults:   make(map[string][]Fault),
		requests: make(map[string]int),
		conns:    make(map[net.Conn]struct{}),
	}
}

func (a *Analyzer) Name() string { return "fake-analyzer" }

func (a *Analyzer) Launch(ctx context.Context) (io.ReadWriteCloser, error) {
	if a.LaunchErr != nil {
		return nil, a.LaunchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, server := net.Pipe()

	a.mu.Lock()
	a.launches++
	a.conns[server] = struct{}{}
	a.mu.Unlock()

	a.wg.Add(1)
	go a.serve(server)
	return client, nil
}

// FailNext queues f for the next request or notification named method.
func (a *Analyzer) FailNext(method string, f Fault) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.faults[method] = append(a.faults[method], f)
}

// Close drops every connection and waits for the instances to stop.
func (a *Analyzer) Close() {
	a.mu.Lock()
	for c := range a.conns {
		_ = c.Close()
	}
	a.mu.Unlock()
	a.wg.Wait()
}

func (a *Analyzer) Launches() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.launches
}

// Initializes returns the initialize params received so far.
func (a *Analyzer) Initializes() []lsp.InitializeParams {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]lsp.InitializeParams(nil), a.initializeAt...)
}

// Requests counts messages received for method, faulted ones included.
func (a *Analyzer) Requests(method string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requests[method]
}

func (a *Analyzer) Events() []Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Event(nil), a.events...)
}

// Cancelled lists the request ids named by $/cancelRequest.
func (a *Analyzer) Cancelled() []uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]uint64(nil), a.cancelled...)
}

// Replies lists the results the client sent back to server requests.
func (a *Analyzer) Replies() []json.RawMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]json.RawMessage(nil), a.replies...)
}

func (a *Analyzer) serve(conn net.Conn) {
	in := &instance{Analyzer: a, conn: conn, docs: make(map[string]string)}
	in.ready = sync.NewCond(&in.outMu)

	a.wg.Add(1)
	go in.write()

	defer a.wg.Done()
	defer func() {
		in.stop()
		_ = conn.Close()
		a.mu.Lock()
		delete(a.conns, conn)
		a.mu.Unlock()
	}()

	r := bufio.NewReader(conn)
	for {
		body, err := lsp.ReadMessage(r)
		if err != nil {
			return
		}
		var msg lsp.Message
		if err := json.Unmarshal(body, &msg); err != nil {
			return
		}
		if msg.Method == "" {
			a.mu.Lock()
			a.replies = append(a.replies, msg.Result)
			a.mu.Unlock()
			continue
		}

		switch a.take(msg.Method) {
		case Crash:
			return
		case Malformed:
			in.sendRaw([]byte("{not json"))
			continue
		case Fail:
			in.reply(msg.ID, nil, &lsp.RPCError{Code: lsp.CodeInternalError, Message: "injected failure"})
			continue
		case Hang:
			continue
		}

		if msg.Method == "exit" {
			return
		}
		result, rpcErr := in.handle(msg)
		if msg.ID == nil {
			continue
		}
		if in.Chatty && msg.Method != "initialize" {
			in.askConfiguration(fmt.Sprintf("config-%s", *msg.ID))
		}
		in.reply(msg.ID, result, rpcErr)
		if msg.Method == "initialize" {
			in.greet()
		}
	}
}

// take records the message and pops its next fault, if any.
func (a *Analyzer) take(method string) Fault {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests[method]++
	q := a.faults[method]
	if len(q) == 0 {
		return 0
	}
	a.faults[method] = q[1:]
	return q[0]
}

// instance is the per-connection state of one analyzer process. Outgoing
// messages are queued and written by their own goroutine, so reading never
// waits on the client.
type instance struct {
	*Analyzer
	conn net.Conn
	docs map[string]string

	outMu   sync.Mutex
	ready   *sync.Cond
	outbox  [][]byte
	stopped bool
}

func (in *instance) reply(id *json.RawMessage, result any, rpcErr *lsp.RPCError) {
	// A response carries exactly one of result and error.
	resp := map[string]any{"jsonrpc": "2.0", "id": id}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	in.send(resp)
}

func (in *instance) send(msg any) {
	var buf bytes.Buffer
	if err := lsp.WriteMessage(&buf, msg); err != nil {
		panic(err)
	}
	in.enqueue(buf.Bytes())
}

func (in *instance) sendRaw(body []byte) {
	var buf bytes.Buffer
	if err := lsp.WriteRaw(&buf, body); err != nil {
		panic(err)
	}
	in.enqueue(buf.Bytes())
}

func (in *instance) enqueue(frame []byte) {
	in.outMu.Lock()
	defer in.outMu.Unlock()
	if in.stopped {
		return
	}
	in.outbox = append(in.outbox, frame)
	in.ready.Signal()
}

// stop discards queued messages and ends the writer.
func (in *instance) stop() {
	in.outMu.Lock()
	in.stopped = true
	in.outbox = nil
	in.outMu.Unlock()
	in.ready.Broadcast()
}

func (in *instance) write() {
	defer in.wg.Done()
	for {
		in.outMu.Lock()
		for len(in.outbox) == 0 && !in.stopped {
			in.ready.Wait()
		}
		if in.stopped {
			in.outMu.Unlock()
			return
		}
		frame := in.outbox[0]
		in.outbox = in.outbox[1:]
		in.outMu.Unlock()

		if _, err := in.conn.Write(frame); err != nil {
			_ = in.conn.Close()
			return
		}
	}
}

// greet exercises the client's handlers for server-initiated traffic.
func (in *instance) greet() {
	in.send(map[string]any{
		"jsonrpc": "2.0",
		"method":  "window/logMessage",
		"params":  lsp.LogMessageParams{Type: 3, Message: "fake analyzer started"},
	})
	in.askConfiguration("config-1")
}

func (in *instance) askConfiguration(id string) {
	in.send(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "workspace/configuration",
		"params":  map[string]any{"items": []map[string]string{{"section": "fake"}}},
	})
}

func (in *instance) handle(msg lsp.Message) (any, *lsp.RPCError) {
	switch msg.Method {
	case "initialize":
		var p lsp.InitializeParams
		_ = json.Unmarshal(msg.Params, &p)
		in.mu.Lock()
		in.initializeAt = append(in.initializeAt, p)
		in.mu.Unlock()
		if in.Gate != nil {
			<-in.Gate
		}
		return map[string]any{
			"capabilities": map[string]any{
				"hoverProvider":           true,
				"definitionProvider":      true,
				"referencesProvider":      true,
				"documentSymbolProvider":  true,
				"workspaceSymbolProvider": true,
				"textDocumentSync":        1,
			},
			"serverInfo": lsp.ServerInfo{Name: "fake-analyzer", Version: "0.1.0"},
		}, nil

	case "initialized", "shutdown":
		return nil, nil

	case "$/cancelRequest":
		var p lsp.CancelParams
		_ = json.Unmarshal(msg.Params, &p)
		in.mu.Lock()
		in.cancelled = append(in.cancelled, p.ID)
		in.mu.Unlock()
		return nil, nil

	case "textDocument/didOpen":
		var p lsp.DidOpenTextDocumentParams
		_ = json.Unmarshal(msg.Params, &p)
		in.docs[p.TextDocument.URI] = p.TextDocument.Text
		in.record(Event{Method: msg.Method, URI: p.TextDocument.URI, Version: p.TextDocument.Version})
		return nil, nil

	case "textDocument/didChange":
		var p lsp.DidChangeTextDocumentParams
		_ = json.Unmarshal(msg.Params, &p)
		if n := len(p.ContentChanges); n > 0 {
			in.docs[p.TextDocument.URI] = p.ContentChanges[n-1].Text
		}
		in.record(Event{Method: msg.Method, URI: p.TextDocument.URI, Version: p.TextDocument.Version})
		return nil, nil

	case "textDocument/didClose":
		var p lsp.DidCloseTextDocumentParams
		_ = json.Unmarshal(msg.Params, &p)
		delete(in.docs, p.TextDocument.URI)
		in.record(Event{Method: msg.Method, URI: p.TextDocument.URI})
		return nil, nil

	case "textDocument/documentSymbol":
		var p lsp.DocumentSymbolParams
		_ = json.Unmarshal(msg.Params, &p)
		if _, ok := in.docs[p.TextDocument.URI]; !ok {
			return nil, &lsp.RPCError{Code: lsp.CodeInvalidParams, Message: "document not open"}
		}
		return in.symbols(p.TextDocument.URI), nil

	case "textDocument/hover":
		var p lsp.TextDocumentPositionParams
		_ = json.Unmarshal(msg.Params, &p)
		line, ok := in.line(p.TextDocument.URI, p.Position.Line)
		if !ok || strings.TrimSpace(line) == "" {
			return nil, nil
		}
		return lsp.Hover{Contents: mustJSON(lsp.MarkupContent{Kind: "markdown", Value: "`" + strings.TrimSpace(line) + "`"})}, nil

	case "textDocument/references":
		var p lsp.ReferenceParams
		_ = json.Unmarshal(msg.Params, &p)
		if _, ok := in.line(p.TextDocument.URI, p.Position.Line); !ok {
			return nil, nil
		}
		refs := []lsp.Location{{URI: p.TextDocument.URI, Range: lineRange(0)}}
		if p.Context.IncludeDeclaration {
			refs = append([]lsp.Location{{URI: p.TextDocument.URI, Range: lineRange(p.Position.Line)}}, refs...)
		}
		return refs, nil

	case "textDocument/definition":
		var p lsp.TextDocumentPositionParams
		_ = json.Unmarshal(msg.Params, &p)
		if _, ok := in.line(p.TextDocument.URI, p.Position.Line); !ok {
			return nil, nil
		}
		if in.LocationLinks {
			return []lsp.LocationLink{{
				TargetURI:            p.TextDocument.URI,
				TargetRange:          lineRange(0),
				TargetSelectionRange: lineRange(1),
			}}, nil
		}
		return lsp.Location{URI: p.TextDocument.URI, Range: lineRange(0)}, nil

	case "workspace/symbol":
		var p lsp.WorkspaceSymbolParams
		_ = json.Unmarshal(msg.Params, &p)
		if p.Query == "" {
			return nil, nil
		}
		return []lsp.SymbolInformation{{
			Name:          p.Query,
			Kind:          lsp.SymbolKindClass,
			Location:      lsp.Location{URI: "file:///workspace/" + p.Query + ".cs", Range: lineRange(0)},
			ContainerName: "Workspace",
		}}, nil
	}
	if msg.ID == nil {
		return nil, nil
	}
	return nil, &lsp.RPCError{Code: lsp.CodeMethodNotFound, Message: fmt.Sprintf("unknown method %s", msg.Method)}
}

func (in *instance) record(e Event) {
	in.mu.Lock()
	in.events = append(in.events, e)
	in.mu.Unlock()
}

func (in *instance) line(uri string, n int) (string, bool) {
	text, ok := in.docs[uri]
	if !ok {
		return "", false
	}
	lines := strings.Split(text, "\n")
	if n < 0 || n >= len(lines) {
		return "", false
	}
	return lines[n], true
}

// symbols outlines the document: every line starting with "class " is a
// class and every following indented "void " line is one of its methods.
func (in *instance) symbols(uri string) any {
	var classes []lsp.DocumentSymbol
	var flat []lsp.SymbolInformation
	for i, line := range strings.Split(in.docs[uri], "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "class "):
			name := strings.Fields(trimmed)[1]
			classes = append(classes, lsp.DocumentSymbol{
				Name: name, Kind: lsp.SymbolKindClass, Range: lineRange(i), SelectionRange: lineRange(i),
			})
			flat = append(flat, lsp.SymbolInformation{
				Name: name, Kind: lsp.SymbolKindClass, Location: lsp.Location{URI: uri, Range: lineRange(i)},
			})
		case strings.HasPrefix(trimmed, "void ") && len(classes) > 0:
			name := strings.TrimSuffix(strings.Fields(trimmed)[1], "()")
			parent := &classes[len(classes)-1]
			parent.Children = append(parent.Children, lsp.DocumentSymbol{
				Name: name, Kind: lsp.SymbolKindMethod, Range: lineRange(i), SelectionRange: lineRange(i),
			})
			flat = append(flat, lsp.SymbolInformation{
				Name: name, Kind: lsp.SymbolKindMethod, Location: lsp.Location{URI: uri, Range: lineRange(i)},
				ContainerName: parent.Name,
			})
		}
	}
	if in.FlatSymbols {
		return flat
	}
	return classes
}

func lineRange(line int) lsp.Range {
	return lsp.Range{Start: lsp.Position{Line: line}, End: lsp.Position{Line: line, Character: 1}}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
