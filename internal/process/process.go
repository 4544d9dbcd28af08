package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// State represents the lifecycle state of a process.
type State int

const (
	// StateNotStarted indicates the process has been configured but not spawned.
	StateNotStarted State = iota
	// StateRunning indicates the process is currently running.
	StateRunning
	// StateExited indicates the process terminated, normally or by a signal.
	StateExited
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not started"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Exit describes how a process terminated.
type Exit struct {
	// Code is the exit code, or -1 when the process was killed by a signal.
	Code int

	// Signal is the name of the terminating signal, empty for a normal exit.
	Signal string
}

// Signaled reports whether the process was terminated by a signal.
func (e Exit) Signaled() bool {
	return e.Signal != ""
}

// String returns a short description such as "exit 0" or "signal killed".
func (e Exit) String() string {
	if e.Signaled() {
		return "signal " + e.Signal
	}
	return fmt.Sprintf("exit %d", e.Code)
}

// Default values for Config.
const (
	DefaultExitTimeout = 5 * time.Second
	DefaultChunkSize   = 32 * 1024
)

// Config describes how to spawn the process.
type Config struct {
	// Command is the executable to run.
	Command string

	// Args are command-line arguments.
	Args []string

	// Env are additional environment variables appended to os.Environ().
	Env map[string]string

	// WorkDir is the working directory. Empty means the current directory.
	WorkDir string

	// WaitForExit makes Stop block until the process has exited.
	WaitForExit bool

	// ExitTimeout bounds the wait in Stop before the process is killed.
	ExitTimeout time.Duration

	// ChunkSize is the read buffer size of the output pumps.
	ChunkSize int
}

// Process is a managed child process with piped standard streams.
//
// Output, Stderr and Exited are meant to be drained by one goroutine.
// Write and Stop are safe for concurrent use. Write never blocks on the
// child: a writer goroutine copies the outbound queue to stdin, so a server
// that stops reading its input cannot stall the goroutine draining Output.
type Process struct {
	// ID uniquely identifies this process instance in logs.
	ID string

	config Config
	cmd    *exec.Cmd
	stdin  io.WriteCloser

	output chan []byte
	stderr chan []byte
	exited chan Exit

	state   atomic.Int32
	dropped atomic.Int64

	// mu protects queue, writing, closing, writeErr and exit.
	mu       sync.Mutex
	queue    [][]byte
	writing  int
	closing  bool
	writeErr error
	exit     Exit

	wake    chan struct{}
	flushed chan struct{}

	pumps    sync.WaitGroup
	done     chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a process that is not yet started.
func New(config Config) *Process {
	if config.ExitTimeout <= 0 {
		config.ExitTimeout = DefaultExitTimeout
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}

	p := &Process{
		ID:     uuid.New().String(),
		config: config,
		output: make(chan []byte, 16),
		stderr: make(chan []byte, 16),
		exited: make(chan Exit, 1),
		done:    make(chan struct{}),
		stopCh:  make(chan struct{}),
		wake:    make(chan struct{}, 1),
		flushed: make(chan struct{}),
	}
	p.state.Store(int32(StateNotStarted))
	return p
}

// State returns the current lifecycle state.
func (p *Process) State() State {
	return State(p.state.Load())
}

// IsRunning returns true while the process is running.
func (p *Process) IsRunning() bool {
	return p.State() == StateRunning
}

// Config returns the spawn configuration.
func (p *Process) Config() Config {
	return p.config
}

// PID returns the OS process ID, or -1 if not started.
func (p *Process) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

// Output delivers chunks read from the process's stdout.
// The channel is closed when stdout reaches EOF.
func (p *Process) Output() <-chan []byte {
	return p.output
}

// Stderr delivers chunks read from the process's stderr.
// The channel is closed when stderr reaches EOF.
func (p *Process) Stderr() <-chan []byte {
	return p.stderr
}

// Exited delivers exactly one Exit record once the process has terminated.
func (p *Process) Exited() <-chan Exit {
	return p.exited
}

// Done returns a channel that is closed when the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitStatus returns the exit record and true once the process has exited.
func (p *Process) ExitStatus() (Exit, bool) {
	if p.State() != StateExited {
		return Exit{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exit, true
}

// Dropped returns the number of writes discarded because the process had exited.
func (p *Process) Dropped() int64 {
	return p.dropped.Load()
}

// Pending returns the number of frames not yet written to stdin.
func (p *Process) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) + p.writing
}

// Start spawns the process.
func (p *Process) Start() error {
	if p.State() != StateNotStarted {
		return ErrAlreadyStarted
	}

	cmd := exec.Command(p.config.Command, p.config.Args...)
	cmd.Env = os.Environ()
	for k, v := range p.config.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if p.config.WorkDir != "" {
		cmd.Dir = p.config.WorkDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &SpawnError{Command: p.config.Command, Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return &SpawnError{Command: p.config.Command, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return &SpawnError{Command: p.config.Command, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return &SpawnError{Command: p.config.Command, Err: err}
	}

	p.mu.Lock()
	p.cmd = cmd
	p.stdin = stdin
	p.state.Store(int32(StateRunning))
	p.mu.Unlock()

	p.pumps.Add(2)
	go p.pump(stdout, p.output)
	go p.pump(stderr, p.stderr)
	go p.writeLoop()
	go p.waitLoop()

	return nil
}

// pump forwards chunks from r to out until EOF or Stop.
func (p *Process) pump(r io.Reader, out chan<- []byte) {
	defer p.pumps.Done()
	defer close(out)

	buf := make([]byte, p.config.ChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case out <- chunk:
			case <-p.stopCh:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// waitLoop reaps the process once its output pipes are drained.
func (p *Process) waitLoop() {
	// exec.Cmd.Wait closes the pipes, so every read must finish first.
	p.pumps.Wait()
	err := p.cmd.Wait()

	exit := Exit{}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exit.Code = exitErr.ExitCode()
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				exit.Signal = status.Signal().String()
			}
		} else {
			exit.Code = -1
		}
	}

	p.mu.Lock()
	p.exit = exit
	p.state.Store(int32(StateExited))
	dropped := len(p.queue)
	p.queue = nil
	p.mu.Unlock()
	p.dropped.Add(int64(dropped))

	p.exited <- exit
	close(p.done)
}

// Write queues a pre-framed message for the writer goroutine.
//
// Frames written before Start stay queued until the first write after Start.
// Frames written after the process exited, or after Stop, are discarded and
// counted in Dropped. Once a write to stdin has failed, every later Write
// returns that error.
func (p *Process) Write(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.State() == StateExited || p.closing:
		p.dropped.Add(1)
		return nil
	case p.State() == StateNotStarted:
		p.queue = append(p.queue, frame)
		return nil
	case p.writeErr != nil:
		p.dropped.Add(1)
		return fmt.Errorf("write stdin: %w", p.writeErr)
	}

	p.queue = append(p.queue, frame)
	p.notify()
	return nil
}

// notify wakes the writer goroutine without blocking.
func (p *Process) notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// writeLoop copies queued frames to stdin in order. It closes stdin once
// Stop was requested and the queue is empty.
func (p *Process) writeLoop() {
	defer close(p.flushed)
	for {
		select {
		case <-p.wake:
		case <-p.done:
			return
		}
		if !p.flush() {
			return
		}
	}
}

// flush writes until the queue is empty. It reports false once stdin has
// been closed.
func (p *Process) flush() bool {
	for {
		p.mu.Lock()
		frames := p.queue
		p.queue = nil
		if len(frames) == 0 {
			closing := p.closing
			if closing {
				_ = p.stdin.Close()
			}
			p.mu.Unlock()
			return !closing
		}
		p.writing = len(frames)
		failed := p.writeErr != nil
		p.mu.Unlock()

		written := 0
		var err error
		if !failed {
			for _, f := range frames {
				if _, err = p.stdin.Write(f); err != nil {
					break
				}
				written++
			}
		}

		p.mu.Lock()
		p.writing = 0
		if err != nil && p.writeErr == nil {
			p.writeErr = err
		}
		p.mu.Unlock()
		p.dropped.Add(int64(len(frames) - written))
	}
}

// Stop requests termination of the process.
//
// Frames already queued are written first and stdin is then closed, so a
// well-behaved server reads its last messages and sees EOF. With WaitForExit
// the call blocks until the process has exited, bounded by ExitTimeout and
// ctx, and kills the process when the bound is hit. Without WaitForExit the
// process is sent SIGTERM once the queue is flushed.
func (p *Process) Stop(ctx context.Context) error {
	switch p.State() {
	case StateNotStarted:
		p.stopOnce.Do(func() { close(p.stopCh) })
		return nil
	case StateExited:
		p.stopOnce.Do(func() { close(p.stopCh) })
		return nil
	}

	p.mu.Lock()
	p.closing = true
	p.notify()
	p.mu.Unlock()

	timer := time.NewTimer(p.config.ExitTimeout)
	defer timer.Stop()

	expired := false
	select {
	case <-p.flushed:
	case <-p.done:
	case <-timer.C:
		expired = true
	case <-ctx.Done():
		expired = true
	}

	if !expired {
		if !p.config.WaitForExit {
			return p.signal(syscall.SIGTERM)
		}
		select {
		case <-p.done:
			return nil
		case <-timer.C:
		case <-ctx.Done():
		}
	}

	// Unblock pumps so the wait loop can reap the killed process.
	p.stopOnce.Do(func() { close(p.stopCh) })
	if err := p.signal(syscall.SIGKILL); err != nil {
		return err
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// signal sends sig to a running process.
func (p *Process) signal(sig os.Signal) error {
	if !p.IsRunning() {
		return nil
	}
	if err := p.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal %v: %w", sig, err)
	}
	return nil
}
