package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/dshills/baton/internal/process"
)

// fakeConn records frames written by a session and lets tests inject
// server output.
type fakeConn struct {
	mu       sync.Mutex
	state    process.State
	startErr error
	starts   int
	stops    int
	frames   [][]byte

	output chan []byte
	stderr chan []byte
	exited chan process.Exit
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		output: make(chan []byte, 64),
		stderr: make(chan []byte, 64),
		exited: make(chan process.Exit, 1),
	}
}

func (c *fakeConn) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	if c.startErr != nil {
		return c.startErr
	}
	c.state = process.StateRunning
	return nil
}

func (c *fakeConn) State() process.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) Write(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, append([]byte(nil), frame...))
	return nil
}

func (c *fakeConn) Output() <-chan []byte       { return c.output }
func (c *fakeConn) Stderr() <-chan []byte       { return c.stderr }
func (c *fakeConn) Exited() <-chan process.Exit { return c.exited }

func (c *fakeConn) Stop(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return nil
}

// sent decodes every frame written so far.
func (c *fakeConn) sent(t *testing.T) []Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	f := NewFramer()
	var msgs []Message
	for _, frame := range c.frames {
		payloads, err := f.Feed(frame)
		if err != nil {
			t.Fatalf("session wrote a bad frame: %v", err)
		}
		for _, p := range payloads {
			msgs = append(msgs, Classify(p))
		}
	}
	return msgs
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

// methods returns the method names of msgs.
func methods(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Method
	}
	return out
}

// serverFrame frames a JSON payload written by the fake server.
func serverFrame(format string, args ...any) []byte {
	return EncodeFrame([]byte(fmt.Sprintf(format, args...)))
}

// recorder is a Listener that keeps every event.
type recorder struct {
	mu          sync.Mutex
	completions []SuggestionList
	diagnostics [][]Diagnostic
	uris        []DocumentURI
	stderr      []string
	errors      []error
	exits       []process.Exit
}

func (r *recorder) CompletionReady(s SuggestionList) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completions = append(r.completions, s)
}

func (r *recorder) DiagnosticsReady(uri DocumentURI, d []Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uris = append(r.uris, uri)
	r.diagnostics = append(r.diagnostics, d)
}

func (r *recorder) ServerStderr(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stderr = append(r.stderr, text)
}

func (r *recorder) ServerError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

func (r *recorder) ServerExited(exit process.Exit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exits = append(r.exits, exit)
}

const testURI DocumentURI = "file:///work/main.cpp"

// newTestSession creates a session over a fake conn with a discarded logger.
func newTestSession(t *testing.T, text string, opts ...SessionOption) (*Session, *fakeConn, *recorder, *logtest.Hook) {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	conn := newFakeConn()
	rec := &recorder{}
	opts = append([]SessionOption{
		WithLogger(logrus.NewEntry(logger)),
		WithListener(rec),
		WithProcessID(4242),
	}, opts...)
	s := NewSession(conn, DocumentConfig{URI: testURI, Text: text}, opts...)
	return s, conn, rec, hook
}

// paramsField extracts a field from a message's params.
func paramsField(t *testing.T, msg Message, field string) any {
	t.Helper()
	var params map[string]any
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		t.Fatalf("params of %s: %v", msg.Method, err)
	}
	return params[field]
}
