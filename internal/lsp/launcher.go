package lsp

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"symscope/internal/apperr"
	"symscope/internal/pkgmgr"
)

// Launcher starts an analyzer and returns its stdio stream. Closing the
// stream stops the analyzer.
type Launcher interface {
	Launch(ctx context.Context) (io.ReadWriteCloser, error)
	// Name identifies the analyzer in logs.
	Name() string
}

// ExecLauncher runs an installed analyzer as a child process.
type ExecLauncher struct {
	Manager  *pkgmgr.Manager
	Analyzer *pkgmgr.Analyzer
	// Binary overrides the analyzer's default entry point name.
	Binary string
	// Dir is the working directory of the child.
	Dir string
}

func (l *ExecLauncher) Name() string { return l.Analyzer.Name }

func (l *ExecLauncher) Launch(ctx context.Context) (io.ReadWriteCloser, error) {
	binary := l.Binary
	if binary == "" {
		binary = l.Analyzer.Binary
	}
	inst, err := l.Manager.Locate(l.Analyzer.Name, binary)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Not CommandContext: the child outlives the request that started it.
	cmd := exec.Command(inst.Binary, l.Analyzer.Args...)
	cmd.Dir = l.Dir
	cmd.Stderr = stderrLog{analyzer: l.Analyzer.Name}

	// Own pipes instead of StdinPipe/StdoutPipe: Wait runs while stdout is
	// still being read and must not close it.
	stdinR, stdin, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", apperr.ErrProcessLaunchFailed, err)
	}
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdin)
		return nil, fmt.Errorf("%w: stdout pipe: %v", apperr.ErrProcessLaunchFailed, err)
	}
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	err = cmd.Start()
	// The child holds its own copies of these ends.
	closeAll(stdinR, stdoutW)
	if err != nil {
		closeAll(stdin, stdout)
		return nil, fmt.Errorf("%w: %s: %v", apperr.ErrProcessLaunchFailed, inst.Binary, err)
	}

	log.Info().
		Str("analyzer", l.Analyzer.Name).
		Str("version", inst.Version).
		Int("pid", cmd.Process.Pid).
		Msg("analyzer started")

	p := &process{cmd: cmd, stdin: stdin, stdout: stdout, done: make(chan struct{})}
	go p.wait()
	return p, nil
}

const exitGrace = 2 * time.Second

type process struct {
	cmd    *exec.Cmd
	stdin  *os.File
	stdout *os.File

	done      chan struct{}
	closeOnce sync.Once
}

func (p *process) wait() {
	err := p.cmd.Wait()
	log.Debug().Int("pid", p.cmd.Process.Pid).Err(err).Msg("analyzer exited")
	close(p.done)
}

func (p *process) Read(b []byte) (int, error)  { return p.stdout.Read(b) }
func (p *process) Write(b []byte) (int, error) { return p.stdin.Write(b) }

// Close closes stdin and kills the child if it has not exited within exitGrace.
func (p *process) Close() error {
	p.closeOnce.Do(func() {
		_ = p.stdin.Close()
		select {
		case <-p.done:
		case <-time.After(exitGrace):
			_ = p.cmd.Process.Kill()
			<-p.done
		}
		_ = p.stdout.Close()
	})
	return nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

type stderrLog struct {
	analyzer string
}

func (w stderrLog) Write(b []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(b), "\n"), "\n") {
		if line != "" {
			log.Debug().Str("analyzer", w.analyzer).Msg(line)
		}
	}
	return len(b), nil
}
