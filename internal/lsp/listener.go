package lsp

import "github.com/dshills/baton/internal/process"

// Listener receives the events a session raises toward the editor.
// All methods are called on the goroutine driving the session.
type Listener interface {
	// CompletionReady delivers a filtered suggestion list, possibly empty.
	CompletionReady(suggestions SuggestionList)

	// DiagnosticsReady delivers a diagnostics batch. An empty batch clears
	// the diagnostics of uri.
	DiagnosticsReady(uri DocumentURI, diagnostics []Diagnostic)

	// ServerStderr delivers raw text the server wrote to stderr.
	ServerStderr(text string)

	// ServerError reports a failure the editor should surface, such as a
	// server that could not be spawned.
	ServerError(err error)

	// ServerExited reports that the server process terminated.
	ServerExited(exit process.Exit)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are ignored.
type ListenerFuncs struct {
	OnCompletion  func(SuggestionList)
	OnDiagnostics func(DocumentURI, []Diagnostic)
	OnStderr      func(string)
	OnError       func(error)
	OnExit        func(process.Exit)
}

// CompletionReady implements Listener.
func (f ListenerFuncs) CompletionReady(suggestions SuggestionList) {
	if f.OnCompletion != nil {
		f.OnCompletion(suggestions)
	}
}

// DiagnosticsReady implements Listener.
func (f ListenerFuncs) DiagnosticsReady(uri DocumentURI, diagnostics []Diagnostic) {
	if f.OnDiagnostics != nil {
		f.OnDiagnostics(uri, diagnostics)
	}
}

// ServerStderr implements Listener.
func (f ListenerFuncs) ServerStderr(text string) {
	if f.OnStderr != nil {
		f.OnStderr(text)
	}
}

// ServerError implements Listener.
func (f ListenerFuncs) ServerError(err error) {
	if f.OnError != nil {
		f.OnError(err)
	}
}

// ServerExited implements Listener.
func (f ListenerFuncs) ServerExited(exit process.Exit) {
	if f.OnExit != nil {
		f.OnExit(exit)
	}
}
