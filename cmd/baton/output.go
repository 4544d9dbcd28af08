package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/dshills/baton/internal/lsp"
	"github.com/dshills/baton/internal/process"
)

// printer writes session events for a terminal. It implements lsp.Listener.
type printer struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
	dir    string

	// wantCompletion makes Ready wait for suggestions rather than diagnostics.
	wantCompletion bool
	ready          chan struct{}
	readyOnce      sync.Once
	exit           *process.Exit
}

func newPrinter(out, errOut io.Writer, path string, wantCompletion bool) *printer {
	return &printer{
		out:            out,
		errOut:         errOut,
		dir:            filepath.Dir(path),
		wantCompletion: wantCompletion,
		ready:          make(chan struct{}),
	}
}

// Ready is closed once the result the user asked for has been printed.
func (p *printer) Ready() <-chan struct{} {
	return p.ready
}

func (p *printer) markReady() {
	p.readyOnce.Do(func() { close(p.ready) })
}

func (p *printer) CompletionReady(suggestions lsp.SuggestionList) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range suggestions {
		fmt.Fprintln(p.out, s)
	}
	if p.wantCompletion {
		p.markReady()
	}
}

func (p *printer) DiagnosticsReady(uri lsp.DocumentURI, diagnostics []lsp.Diagnostic) {
	p.mu.Lock()
	defer p.mu.Unlock()
	name := p.displayPath(uri)
	for _, d := range diagnostics {
		fmt.Fprintln(p.out, formatDiagnostic(name, d))
	}
	if !p.wantCompletion {
		p.markReady()
	}
}

func (p *printer) ServerStderr(string) {}

func (p *printer) ServerError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.errOut, "server error: %v\n", err)
}

func (p *printer) ServerExited(exit process.Exit) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exit = &exit
}

// ExitError reports an unclean server exit.
func (p *printer) ExitError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exit == nil || (p.exit.Code == 0 && !p.exit.Signaled()) {
		return nil
	}
	return fmt.Errorf("language server exited unexpectedly (%s)", p.exit)
}

// displayPath shortens uri to a path relative to the document's directory
// when it lies below it.
func (p *printer) displayPath(uri lsp.DocumentURI) string {
	path := lsp.URIToFilePath(uri)
	if rel, err := filepath.Rel(p.dir, path); err == nil && filepath.IsLocal(rel) {
		return rel
	}
	return path
}

// formatDiagnostic renders d in the usual file:line:col form, 1-based.
func formatDiagnostic(name string, d lsp.Diagnostic) string {
	s := fmt.Sprintf("%s:%d:%d: %s: %s", name,
		d.Range.Start.Line+1, d.Range.Start.Character+1, d.Severity, d.Message)
	if d.Category != "" {
		s += " [" + d.Category + "]"
	}
	return s
}

var _ lsp.Listener = (*printer)(nil)
