// Package process owns the language server child process.
//
// A Process spawns the configured executable with piped standard streams and
// exposes them as channels: stdout chunks on Output, stderr chunks on Stderr
// and a single termination record on Exited. Writes go through an outbound
// queue that a writer goroutine copies to stdin while the process is running,
// so Write returns without waiting for the server to read.
//
//	proc := process.New(process.Config{Command: "clangd"})
//	if err := proc.Start(); err != nil {
//	    var spawnErr *process.SpawnError
//	    if errors.As(err, &spawnErr) { ... }
//	}
//	defer proc.Stop(ctx)
//
//	for chunk := range proc.Output() {
//	    // feed chunk to a framer
//	}
//
// The channels are meant to be consumed by a single event loop goroutine.
// The read pumps only forward bytes and never interpret them.
package process
