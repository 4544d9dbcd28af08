package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/dshills/baton/internal/process"
)

// Protocol method names.
const (
	MethodInitialize         = "initialize"
	MethodInitialized        = "initialized"
	MethodShutdown           = "shutdown"
	MethodExit               = "exit"
	MethodDidOpen            = "textDocument/didOpen"
	MethodDidChange          = "textDocument/didChange"
	MethodDidClose           = "textDocument/didClose"
	MethodCompletion         = "textDocument/completion"
	MethodPublishDiagnostics = "textDocument/publishDiagnostics"
	MethodFormatting         = "textDocument/formatting"
	MethodRangeFormatting    = "textDocument/rangeFormatting"
	MethodCodeAction         = "textDocument/codeAction"
	MethodFoldingRange       = "textDocument/foldingRange"
	MethodSelectionRange     = "textDocument/selectionRange"
	MethodLogMessage         = "window/logMessage"
	MethodShowMessage        = "window/showMessage"
)

// Conn is the byte-level connection to a language server process.
// *process.Process implements it.
type Conn interface {
	Start() error
	State() process.State
	Write(frame []byte) error
	Output() <-chan []byte
	Stderr() <-chan []byte
	Exited() <-chan process.Exit
	Stop(ctx context.Context) error
}

// Correlation selects how request ids are chosen.
type Correlation int

const (
	// CorrelationSequential numbers requests with a monotonic counter.
	CorrelationSequential Correlation = iota

	// CorrelationMethod uses the method name as the id. At most one request
	// per method can be outstanding; a newer one replaces the older entry.
	CorrelationMethod
)

// String returns the configuration name of the mode.
func (c Correlation) String() string {
	switch c {
	case CorrelationSequential:
		return "sequential"
	case CorrelationMethod:
		return "method"
	default:
		return fmt.Sprintf("correlation(%d)", int(c))
	}
}

// ParseCorrelation parses "sequential" or "method".
func ParseCorrelation(s string) (Correlation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sequential":
		return CorrelationSequential, nil
	case "method":
		return CorrelationMethod, nil
	default:
		return CorrelationSequential, fmt.Errorf("unknown correlation mode %q", s)
	}
}

// ResponseHandler receives the result of a request exactly once.
// err is an *RPCError when the server answered with an error.
type ResponseHandler func(result json.RawMessage, err error)

// pendingRequest is an entry of the correlation table.
type pendingRequest struct {
	method  string
	handler ResponseHandler
}

// Session speaks the protocol for one document against one server.
//
// A Session is not safe for concurrent use. It is normally owned by a
// Reactor; tests drive it directly.
type Session struct {
	conn        Conn
	doc         *Document
	framer      *Framer
	dispatcher  *Dispatcher
	completion  *CompletionPipeline
	listener    Listener
	logger      *logrus.Entry
	correlation Correlation

	pending     map[string]pendingRequest
	nextID      int64
	initialized bool
	processID   int
	diagnostics []Diagnostic

	completionOpts []CompletionOption
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the log entry used by the session.
func WithLogger(logger *logrus.Entry) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithListener sets the receiver of session events.
func WithListener(l Listener) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.listener = l
		}
	}
}

// WithCorrelation selects the request id scheme.
func WithCorrelation(c Correlation) SessionOption {
	return func(s *Session) {
		s.correlation = c
	}
}

// WithCompletion configures the completion pipeline.
func WithCompletion(opts ...CompletionOption) SessionOption {
	return func(s *Session) {
		s.completionOpts = append(s.completionOpts, opts...)
	}
}

// WithProcessID overrides the processId sent in initialize.
func WithProcessID(pid int) SessionOption {
	return func(s *Session) {
		s.processID = pid
	}
}

// NewSession creates a closed session for the document described by doc.
func NewSession(conn Conn, doc DocumentConfig, opts ...SessionOption) *Session {
	s := &Session{
		conn:       conn,
		doc:        newDocument(doc),
		framer:     NewFramer(),
		dispatcher: NewDispatcher(),
		listener:   ListenerFuncs{},
		logger:     logrus.NewEntry(logrus.StandardLogger()),
		pending:    make(map[string]pendingRequest),
		processID:  os.Getpid(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithField("uri", s.doc.URI)
	s.completion = NewCompletionPipeline(s.logger, s.completionOpts...)
	s.registerHandlers()
	return s
}

// registerHandlers wires the dispatcher to the session.
func (s *Session) registerHandlers() {
	s.dispatcher.OnRequest(s.handleServerRequest)
	s.dispatcher.OnResponse(s.handleResponse)
	s.dispatcher.OnNotification(MethodPublishDiagnostics, s.handleDiagnostics)
	s.dispatcher.OnNotification(MethodLogMessage, s.handleLogMessage)
	s.dispatcher.OnNotification(MethodShowMessage, s.handleLogMessage)
	s.dispatcher.OnUnhandledNotification(func(method string, _ json.RawMessage) {
		s.logger.WithField("method", method).Debug("ignoring notification")
	})
}

// Document returns a copy of the document state.
func (s *Session) Document() Document {
	return *s.doc
}

// Diagnostics returns the last diagnostics published for the document.
func (s *Session) Diagnostics() []Diagnostic {
	return s.diagnostics
}

// Initialized reports whether initialize has been sent.
func (s *Session) Initialized() bool {
	return s.initialized
}

// Pending returns the number of unanswered requests.
func (s *Session) Pending() int {
	return len(s.pending)
}

// Stats returns the dispatcher counters.
func (s *Session) Stats() DispatchStats {
	return s.dispatcher.Stats()
}

// Start spawns the server if needed, initializes it and opens the document.
// A second call returns ErrAlreadyInitialized and sends nothing.
func (s *Session) Start(rootURI DocumentURI) error {
	if s.initialized {
		return ErrAlreadyInitialized
	}

	if s.conn.State() == process.StateNotStarted {
		if err := s.conn.Start(); err != nil {
			s.logger.WithError(err).Error("failed to start language server")
			s.listener.ServerError(err)
			return err
		}
	}

	params := InitializeParams{
		ProcessID:    s.processID,
		RootURI:      rootURI,
		Capabilities: DefaultClientCapabilities(),
	}
	if err := s.Call(MethodInitialize, params, s.handleInitializeResult); err != nil {
		return err
	}
	s.initialized = true

	if err := s.Notify(MethodInitialized, InitializedParams{}); err != nil {
		return err
	}

	s.doc.Version = 1
	s.doc.Open = true
	return s.Notify(MethodDidOpen, DidOpenTextDocumentParams{TextDocument: s.doc.item()})
}

func (s *Session) handleInitializeResult(result json.RawMessage, err error) {
	if err != nil {
		s.logger.WithError(err).Error("initialize failed")
		s.listener.ServerError(fmt.Errorf("initialize: %w", err))
		return
	}
	info := gjson.GetBytes(result, "serverInfo")
	s.logger.WithFields(logrus.Fields{
		"server":  info.Get("name").String(),
		"version": info.Get("version").String(),
	}).Info("language server initialized")
}

// Edit replaces the document text and sends it in full.
func (s *Session) Edit(text string) error {
	if !s.doc.Open {
		return ErrDocumentNotOpen
	}
	s.doc.Text = text
	s.doc.Version++

	return s.Notify(MethodDidChange, DidChangeTextDocumentParams{
		TextDocument: VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: s.doc.identifier(),
			Version:                s.doc.Version,
		},
		ContentChanges:  []TextDocumentContentChangeEvent{{Text: text}},
		WantDiagnostics: true,
	})
}

// MoveCursor records the cursor and requests completion when the character
// after it is a completion boundary. col is in UTF-16 code units.
func (s *Session) MoveCursor(line, col int) error {
	if !s.doc.moveCursor(Position{Line: line, Character: col}) {
		return nil
	}
	return s.RequestCompletion(line, col)
}

// RequestCompletion asks for completions at the position. The result is
// delivered through Listener.CompletionReady.
func (s *Session) RequestCompletion(line, col int) error {
	if !s.doc.Open {
		return ErrDocumentNotOpen
	}

	params := CompletionParams{
		TextDocumentPositionParams: TextDocumentPositionParams{
			TextDocument: s.doc.identifier(),
			Position:     Position{Line: line, Character: col},
		},
	}
	return s.Call(MethodCompletion, params, s.handleCompletionResult)
}

func (s *Session) handleCompletionResult(result json.RawMessage, err error) {
	if err != nil {
		s.logger.WithError(err).Warn("completion request failed")
		return
	}
	list, err := s.completion.Process(result)
	if err != nil {
		s.logger.WithError(err).Warn("discarding completion result")
		return
	}
	s.listener.CompletionReady(list)
}

// Stop closes the document and shuts the server down.
//
// didClose, shutdown and exit are always sent in that order, whatever the
// current state. The first write error is returned after all three were tried.
func (s *Session) Stop() error {
	var errs []error

	if err := s.Notify(MethodDidClose, DidCloseTextDocumentParams{TextDocument: s.doc.identifier()}); err != nil {
		errs = append(errs, err)
	}
	if err := s.Call(MethodShutdown, nil, s.handleShutdownResult); err != nil {
		errs = append(errs, err)
	}
	if err := s.Notify(MethodExit, nil); err != nil {
		errs = append(errs, err)
	}

	s.initialized = false
	s.doc.Open = false
	return errors.Join(errs...)
}

func (s *Session) handleShutdownResult(_ json.RawMessage, err error) {
	if err != nil {
		s.logger.WithError(err).Warn("shutdown request failed")
	}
}

// Format requests edits formatting the whole document.
func (s *Session) Format(cb func([]TextEdit, error)) error {
	if !s.doc.Open {
		return ErrDocumentNotOpen
	}
	params := DocumentFormattingParams{
		TextDocument: s.doc.identifier(),
		Options:      DefaultFormattingOptions(),
	}
	return s.Call(MethodFormatting, params, decodeInto(cb))
}

// FormatRange requests edits formatting rng.
func (s *Session) FormatRange(rng Range, cb func([]TextEdit, error)) error {
	if !s.doc.Open {
		return ErrDocumentNotOpen
	}
	params := DocumentRangeFormattingParams{
		TextDocument: s.doc.identifier(),
		Range:        rng,
		Options:      DefaultFormattingOptions(),
	}
	return s.Call(MethodRangeFormatting, params, decodeInto(cb))
}

// CodeActions requests the code actions available for rng.
func (s *Session) CodeActions(rng Range, diags []Diagnostic, cb func([]CodeAction, error)) error {
	if !s.doc.Open {
		return ErrDocumentNotOpen
	}
	if diags == nil {
		diags = []Diagnostic{}
	}
	params := CodeActionParams{
		TextDocument: s.doc.identifier(),
		Range:        rng,
		Context:      CodeActionContext{Diagnostics: diags},
	}
	return s.Call(MethodCodeAction, params, func(result json.RawMessage, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		cb(decodeCodeActions(result))
	})
}

// FoldingRanges requests the foldable regions of the document.
func (s *Session) FoldingRanges(cb func([]FoldingRange, error)) error {
	if !s.doc.Open {
		return ErrDocumentNotOpen
	}
	params := FoldingRangeParams{TextDocument: s.doc.identifier()}
	return s.Call(MethodFoldingRange, params, decodeInto(cb))
}

// SelectionRanges requests the nested selection ranges around positions.
func (s *Session) SelectionRanges(positions []Position, cb func([]SelectionRange, error)) error {
	if !s.doc.Open {
		return ErrDocumentNotOpen
	}
	params := SelectionRangeParams{TextDocument: s.doc.identifier(), Positions: positions}
	return s.Call(MethodSelectionRange, params, decodeInto(cb))
}

// decodeInto adapts a typed callback to a ResponseHandler.
// A null result decodes to the zero value.
func decodeInto[T any](cb func(T, error)) ResponseHandler {
	return func(result json.RawMessage, err error) {
		var v T
		if err != nil {
			cb(v, err)
			return
		}
		if len(result) > 0 {
			if uerr := json.Unmarshal(result, &v); uerr != nil {
				cb(v, fmt.Errorf("%w: %v", ErrInvalidResponse, uerr))
				return
			}
		}
		cb(v, nil)
	}
}

// decodeCodeActions accepts both CodeAction literals and bare Commands.
func decodeCodeActions(result json.RawMessage) ([]CodeAction, error) {
	root := gjson.ParseBytes(result)
	if root.Type == gjson.Null {
		return nil, nil
	}
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: code actions are not an array", ErrInvalidResponse)
	}

	var actions []CodeAction
	for _, item := range root.Array() {
		action := CodeAction{
			Title: item.Get("title").String(),
			Kind:  item.Get("kind").String(),
		}
		cmd := item.Get("command")
		if cmd.IsObject() {
			action.Command = cmd.Get("command").String()
		} else {
			action.Command = cmd.String()
		}
		actions = append(actions, action)
	}
	return actions, nil
}

// Call sends a request and registers handler for its reply.
func (s *Session) Call(method string, params any, handler ResponseHandler) error {
	id, key := s.nextRequestID(method)

	data, err := newRequest(id, method, params)
	if err != nil {
		return err
	}

	if old, ok := s.pending[key]; ok {
		s.logger.WithFields(logrus.Fields{"id": key, "method": old.method}).
			Warn("replacing unanswered request with the same id")
	}
	s.pending[key] = pendingRequest{method: method, handler: handler}

	if err := s.send(data); err != nil {
		delete(s.pending, key)
		return fmt.Errorf("send %s: %w", method, err)
	}
	s.logger.WithFields(logrus.Fields{"id": key, "method": method}).Debug("sent request")
	return nil
}

// Notify sends a notification.
func (s *Session) Notify(method string, params any) error {
	data, err := newNotification(method, params)
	if err != nil {
		return err
	}
	if err := s.send(data); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}
	s.logger.WithField("method", method).Debug("sent notification")
	return nil
}

// nextRequestID returns the wire id and the correlation key for a request.
func (s *Session) nextRequestID(method string) (any, string) {
	if s.correlation == CorrelationMethod {
		return method, method
	}
	s.nextID++
	return s.nextID, strconv.FormatInt(s.nextID, 10)
}

func (s *Session) send(data []byte) error {
	return s.conn.Write(EncodeFrame(data))
}

// HandleOutput feeds server stdout into the framer and dispatches every
// complete message. Framing errors are logged and the stream continues.
func (s *Session) HandleOutput(chunk []byte) {
	payloads, err := s.framer.Feed(chunk)
	if err != nil {
		s.logger.WithError(err).Warn("dropped malformed frame")
	}
	for _, payload := range payloads {
		msg := s.dispatcher.Dispatch(payload)
		if msg.Kind == KindInvalid {
			s.logger.WithError(&ProtocolViolation{Payload: truncateBody(payload)}).Debug("dropped message")
		}
	}
}

// HandleStderr forwards server stderr to the listener.
func (s *Session) HandleStderr(chunk []byte) {
	text := string(chunk)
	s.logger.WithField("stderr", strings.TrimRight(text, "\n")).Debug("server stderr")
	s.listener.ServerStderr(text)
}

// HandleExit reports server termination. Pending requests stay unresolved
// and a partially received frame is discarded.
func (s *Session) HandleExit(exit process.Exit) {
	fields := logrus.Fields{"exit": exit.String(), "pending": len(s.pending)}
	if n := s.framer.Buffered(); n > 0 {
		fields["truncated"] = n
		s.framer.Reset()
	}
	if exit.Code != 0 || exit.Signaled() {
		s.logger.WithFields(fields).Warn("language server exited")
	} else {
		s.logger.WithFields(fields).Info("language server exited")
	}
	s.listener.ServerExited(exit)
}

// handleResponse resolves the matching pending request, if any.
func (s *Session) handleResponse(msg Message) {
	key := msg.IDKey()
	req, ok := s.pending[key]
	if !ok {
		s.logger.WithField("id", key).Debug("dropping response to unknown request")
		return
	}
	delete(s.pending, key)

	if msg.Kind == KindError {
		req.handler(nil, msg.Error)
		return
	}
	req.handler(msg.Result, nil)
}

// handleServerRequest answers the few server-to-client requests the client
// knows and rejects the rest with MethodNotFound.
func (s *Session) handleServerRequest(msg Message) {
	var (
		data []byte
		err  error
	)

	switch msg.Method {
	case "window/workDoneProgress/create", "client/registerCapability", "client/unregisterCapability":
		data, err = newResponse(msg.ID, nil)
	case "workspace/configuration":
		items := gjson.GetBytes(msg.Params, "items").Array()
		data, err = newResponse(msg.ID, make([]any, len(items)))
	default:
		s.logger.WithField("method", msg.Method).Debug("rejecting unsupported server request")
		data, err = newErrorResponse(msg.ID, CodeMethodNotFound, "method not found: "+msg.Method)
	}
	if err == nil {
		err = s.send(data)
	}
	if err != nil {
		s.logger.WithError(err).WithField("method", msg.Method).Warn("failed to answer server request")
	}
}

func (s *Session) handleDiagnostics(_ string, params json.RawMessage) {
	uri, diags, err := DecodeDiagnostics(params)
	if err != nil {
		s.logger.WithError(err).Warn("discarding diagnostics")
		return
	}
	if uri == s.doc.URI {
		s.diagnostics = diags
	}
	s.listener.DiagnosticsReady(uri, diags)
}

func (s *Session) handleLogMessage(method string, params json.RawMessage) {
	p := gjson.ParseBytes(params)
	entry := s.logger.WithField("method", method)
	text := p.Get("message").String()

	switch MessageType(p.Get("type").Int()) {
	case MessageTypeError:
		entry.Error(text)
	case MessageTypeWarning:
		entry.Warn(text)
	case MessageTypeInfo:
		entry.Info(text)
	default:
		entry.Debug(text)
	}
}
