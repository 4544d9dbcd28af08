package lsp

import (
	"context"
	"errors"
	"sync"
)

// Reactor runs a Session on a single goroutine.
//
// Run owns the session: it feeds server output, stderr and exit events to it
// and executes calls submitted through the mailbox. Every other method is
// safe for concurrent use.
type Reactor struct {
	session *Session
	conn    Conn

	mu      sync.Mutex
	mailbox []func(*Session)
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

// NewReactor creates a reactor for session. Call Run to start it.
func NewReactor(session *Session) *Reactor {
	return &Reactor{
		session: session,
		conn:    session.conn,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Done is closed when Run has returned.
func (r *Reactor) Done() <-chan struct{} {
	return r.done
}

// Run processes events until ctx is cancelled or the server exit has been
// delivered. It returns ctx.Err() on cancellation and nil after an exit.
func (r *Reactor) Run(ctx context.Context) error {
	defer r.close()

	output := r.conn.Output()
	stderr := r.conn.Stderr()
	exited := r.conn.Exited()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-r.wake:
			r.drainMailbox()

		case chunk, ok := <-output:
			if !ok {
				output = nil
				continue
			}
			r.session.HandleOutput(chunk)

		case chunk, ok := <-stderr:
			if !ok {
				stderr = nil
				continue
			}
			r.session.HandleStderr(chunk)

		case exit := <-exited:
			// Output buffered before the exit still belongs to this session.
			r.drainStreams(output, stderr)
			r.drainMailbox()
			r.session.HandleExit(exit)
			return nil
		}
	}
}

// drainStreams consumes whatever is already buffered on the output channels.
func (r *Reactor) drainStreams(output, stderr <-chan []byte) {
	for output != nil || stderr != nil {
		select {
		case chunk, ok := <-output:
			if !ok {
				output = nil
				continue
			}
			r.session.HandleOutput(chunk)
		case chunk, ok := <-stderr:
			if !ok {
				stderr = nil
				continue
			}
			r.session.HandleStderr(chunk)
		default:
			return
		}
	}
}

func (r *Reactor) drainMailbox() {
	for {
		r.mu.Lock()
		calls := r.mailbox
		r.mailbox = nil
		r.mu.Unlock()

		if len(calls) == 0 {
			return
		}
		for _, fn := range calls {
			fn(r.session)
		}
	}
}

func (r *Reactor) close() {
	r.mu.Lock()
	r.closed = true
	r.mailbox = nil
	r.mu.Unlock()
	close(r.done)
}

// Post queues fn to run on the reactor goroutine and returns immediately.
// It is safe to call from Listener callbacks.
func (r *Reactor) Post(fn func(*Session)) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrReactorClosed
	}
	r.mailbox = append(r.mailbox, fn)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return nil
}

// Do runs fn on the reactor goroutine and waits for its result.
// Calling Do from a Listener callback deadlocks; use Post there.
func (r *Reactor) Do(ctx context.Context, fn func(*Session) error) error {
	result := make(chan error, 1)
	if err := r.Post(func(s *Session) { result <- fn(s) }); err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		select {
		case err := <-result:
			return err
		default:
			return ErrReactorClosed
		}
	}
}

// Start initializes the server and opens the document.
func (r *Reactor) Start(ctx context.Context, rootURI DocumentURI) error {
	return r.Do(ctx, func(s *Session) error { return s.Start(rootURI) })
}

// FileChanged pushes the full replacement text of the document.
func (r *Reactor) FileChanged(ctx context.Context, text string) error {
	return r.Do(ctx, func(s *Session) error { return s.Edit(text) })
}

// ChangeCursor records the cursor, requesting completion at boundaries.
func (r *Reactor) ChangeCursor(ctx context.Context, line, col int) error {
	return r.Do(ctx, func(s *Session) error { return s.MoveCursor(line, col) })
}

// RequestCompletion explicitly requests completion at the position.
func (r *Reactor) RequestCompletion(ctx context.Context, line, col int) error {
	return r.Do(ctx, func(s *Session) error { return s.RequestCompletion(line, col) })
}

// Stop sends the shutdown sequence and stops the server process.
// Run returns once the process exit has been delivered.
func (r *Reactor) Stop(ctx context.Context) error {
	err := r.Do(ctx, func(s *Session) error { return s.Stop() })
	if errors.Is(err, ErrReactorClosed) {
		err = nil
	}
	return errors.Join(err, r.conn.Stop(ctx))
}
