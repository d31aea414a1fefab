package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"switchyard/internal/api"
	"switchyard/pkg/logging"
)

// Process is a running worker process.
type Process interface {
	Pid() int
	// Signal delivers sig; it is a no-op error once the process has exited.
	Signal(sig os.Signal) error
	Kill() error
	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}
	// ExitErr is the wait error; only meaningful after Done is closed.
	ExitErr() error
}

// Launcher spawns worker processes.
type Launcher interface {
	Launch(ctx context.Context, desc api.ServerDescriptor) (Process, error)
}

// ExecLauncher spawns workers as child processes. The working directory is the
// worker's WorkDir, or the directory holding its executable.
type ExecLauncher struct {
	// ForwardOutput logs worker stdout/stderr lines at debug level.
	ForwardOutput bool
}

// ResolveExecutable returns the absolute path of the worker executable or an error
// wrapping os.ErrNotExist if it cannot be found.
func ResolveExecutable(desc api.ServerDescriptor) (string, error) {
	path := desc.ExecutablePath
	if path == "" {
		return "", fmt.Errorf("no executable configured: %w", os.ErrNotExist)
	}
	if !strings.ContainsRune(path, filepath.Separator) && !strings.ContainsRune(path, '/') {
		resolved, err := exec.LookPath(path)
		if err != nil {
			return "", fmt.Errorf("executable %q not found in PATH: %w", path, os.ErrNotExist)
		}
		return resolved, nil
	}
	if !filepath.IsAbs(path) && desc.WorkDir != "" {
		path = filepath.Join(desc.WorkDir, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve executable %q: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("executable %s: %w", abs, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("executable %s is a directory: %w", abs, os.ErrNotExist)
	}
	return abs, nil
}

// Launch implements Launcher. The process is deliberately not bound to ctx: it
// outlives the start call and is stopped through Supervisor.Stop.
func (l ExecLauncher) Launch(_ context.Context, desc api.ServerDescriptor) (Process, error) {
	path, err := ResolveExecutable(desc)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(path, desc.Args...)
	cmd.Dir = desc.WorkDir
	if cmd.Dir == "" {
		cmd.Dir = filepath.Dir(path)
	}
	cmd.Env = append(os.Environ(),
		"SWITCHYARD_SERVER_NAME="+desc.Name,
		"SWITCHYARD_ENDPOINT="+desc.Endpoint,
	)
	for k, v := range desc.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if l.ForwardOutput {
		cmd.Stdout = newLineLogger(desc.Name, "stdout")
		cmd.Stderr = newLineLogger(desc.Name, "stderr")
	}
	configureProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", path, err)
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.exitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd     *exec.Cmd
	done    chan struct{}
	exitErr error
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *execProcess) Kill() error {
	return p.cmd.Process.Kill()
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

func (p *execProcess) ExitErr() error {
	select {
	case <-p.done:
		return p.exitErr
	default:
		return nil
	}
}

// lineLogger forwards complete output lines of a worker to the debug log.
type lineLogger struct {
	mu     sync.Mutex
	buf    []byte
	server string
	stream string
}

func newLineLogger(server, stream string) *lineLogger {
	return &lineLogger{server: server, stream: stream}
}

func (l *lineLogger) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf = append(l.buf, b...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		logging.Debug("Worker", "[%s %s] %s", l.server, l.stream, strings.TrimRight(string(l.buf[:i]), "\r"))
		l.buf = l.buf[i+1:]
	}
	return len(b), nil
}
