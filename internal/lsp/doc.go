// Package lsp implements the protocol side of a language server client for a
// single document: wire framing, JSON-RPC classification and dispatch,
// request correlation, document synchronization and the completion and
// diagnostics pipelines.
//
// # Architecture
//
// The package is organized around these components:
//
//   - Framer: Content-Length framing over an arbitrarily chunked byte stream
//   - Dispatcher: classifies payloads by key presence and routes them
//   - Session: the document state machine and the correlation table
//   - CompletionPipeline: turns completion results into short suggestion lists
//   - Reactor: runs a Session on one goroutine and accepts calls from others
//
// The server process itself lives in package process; a Session only needs
// the Conn interface it implements.
//
// # Quick Start
//
//	proc := process.New(process.Config{Command: "clangd", WaitForExit: true})
//	session := lsp.NewSession(proc, lsp.DocumentConfig{Path: "main.cpp", Text: src},
//	    lsp.WithListener(lsp.ListenerFuncs{
//	        OnCompletion:  func(s lsp.SuggestionList) { fmt.Println(s) },
//	        OnDiagnostics: func(uri lsp.DocumentURI, d []lsp.Diagnostic) { show(d) },
//	    }),
//	)
//	reactor := lsp.NewReactor(session)
//	go reactor.Run(ctx)
//
//	reactor.Start(ctx, lsp.FilePathToURI("."))
//	reactor.FileChanged(ctx, newText)
//	reactor.ChangeCursor(ctx, line, col)
//	reactor.Stop(ctx)
//
// # Document Lifecycle
//
// A session starts Closed. Start sends initialize, initialized and didOpen
// and moves it to Open. Edit always sends the full text. Stop sends didClose,
// shutdown and exit, in that order, whatever the state.
//
// # Correlation
//
// Requests are numbered sequentially by default. CorrelationMethod uses the
// method name as the id instead, which allows one outstanding request per
// method. Requests are never timed out or cancelled; replies to unknown ids
// are dropped.
//
// # Thread Safety
//
// Session, Framer and Dispatcher are not safe for concurrent use. The
// Reactor serializes all access and its methods may be called from any
// goroutine. Listener callbacks run on the reactor goroutine and must use
// Reactor.Post rather than Reactor.Do.
package lsp
