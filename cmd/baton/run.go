package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dshills/baton/internal/config"
	"github.com/dshills/baton/internal/logging"
	"github.com/dshills/baton/internal/lsp"
	"github.com/dshills/baton/internal/plugin/lua"
	"github.com/dshills/baton/internal/process"
	"github.com/dshills/baton/internal/watcher"
)

const defaultTimeout = 10 * time.Second

// options holds the parsed command line.
type options struct {
	file       string
	configPath string
	server     string
	root       string
	complete   string
	logLevel   string
	watch      bool
	timeout    time.Duration

	// changed reports whether a flag was given explicitly.
	changed func(name string) bool
}

func run(ctx context.Context, opts options, out, errOut io.Writer) error {
	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.FromConfig(cfg.Logging())
	if err != nil {
		return err
	}
	defer closeLog()
	log := logging.WithComponent(logger, "cli")
	if file := cfg.File(); file != "" {
		log.WithField("file", file).Debug("loaded config")
	}

	cursor, hasCursor, err := parseCursor(opts.complete)
	if err != nil {
		return err
	}

	path, err := filepath.Abs(opts.file)
	if err != nil {
		return err
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	rootPath := opts.root
	if rootPath == "" {
		rootPath = filepath.Dir(path)
	}

	sessionOpts, closeHook, err := sessionOptions(cfg, logger)
	if err != nil {
		return err
	}
	defer closeHook()

	srv := cfg.Server()
	proc := process.New(process.Config{
		Command:     srv.Command,
		Args:        srv.Args,
		Env:         srv.Env,
		WorkDir:     srv.WorkDir,
		WaitForExit: srv.WaitForExit,
		ExitTimeout: srv.ExitTimeout,
		ChunkSize:   srv.ChunkSize,
	})

	p := newPrinter(out, errOut, path, hasCursor)
	session := lsp.NewSession(proc,
		lsp.DocumentConfig{Path: path, LanguageID: cfg.Document().LanguageID, Text: string(text)},
		append(sessionOpts,
			lsp.WithLogger(logging.WithComponent(logger, "session").WithField("process_id", proc.ID)),
			lsp.WithListener(p),
		)...,
	)
	reactor := lsp.NewReactor(session)

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	runErr := make(chan error, 1)
	go func() { runErr <- reactor.Run(runCtx) }()

	log.WithFields(logrus.Fields{"server": srv.Command, "root": rootPath}).Info("starting language server")
	if err := reactor.Start(ctx, lsp.FilePathToURI(rootPath)); err != nil {
		cancelRun()
		<-runErr
		return fmt.Errorf("starting %s: %w", srv.Command, err)
	}

	requestCompletion := func() {
		if !hasCursor {
			return
		}
		if err := reactor.RequestCompletion(ctx, cursor.Line, cursor.Character); err != nil {
			log.WithError(err).Warn("completion request failed")
		}
	}
	requestCompletion()

	watch := cfg.Watch()
	var events <-chan watcher.Event
	var watchErrs <-chan error
	if watch.Enabled {
		w, err := watcher.New(path,
			watcher.WithDebounce(watch.Debounce),
			watcher.WithLogger(logging.WithComponent(logger, "watcher")),
		)
		if err != nil {
			_ = shutdown(reactor, srv.ExitTimeout, runErr, cancelRun)
			return fmt.Errorf("watching %s: %w", path, err)
		}
		defer w.Close()
		events, watchErrs = w.Events(), w.Errors()
	}

	var deadline <-chan time.Time
	if !watch.Enabled && opts.timeout > 0 {
		timer := time.NewTimer(opts.timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	ready := p.Ready()
	if watch.Enabled {
		ready = nil
	}

	for {
		select {
		case <-ctx.Done():
			log.Debug("interrupted")
			return shutdown(reactor, srv.ExitTimeout, runErr, cancelRun)

		case <-deadline:
			log.WithField("timeout", opts.timeout).Warn("timed out waiting for the server")
			return shutdown(reactor, srv.ExitTimeout, runErr, cancelRun)

		case <-ready:
			return shutdown(reactor, srv.ExitTimeout, runErr, cancelRun)

		case <-reactor.Done():
			<-runErr
			return p.ExitError()

		case ev := <-events:
			if !ev.Exists() {
				log.WithField("op", ev.Op).Warn("file disappeared; waiting for it to come back")
				continue
			}
			data, err := os.ReadFile(ev.Path)
			if err != nil {
				log.WithError(err).Warn("failed to read changed file")
				continue
			}
			if err := reactor.FileChanged(ctx, string(data)); err != nil {
				log.WithError(err).Warn("failed to send change")
				continue
			}
			requestCompletion()

		case err := <-watchErrs:
			log.WithError(err).Warn("watch error")
		}
	}
}

// loadConfig loads the layered config and applies explicit flags on top.
// An explicit --watch overrides watch.enabled from the file or environment.
func loadConfig(ctx context.Context, opts options) (*config.Config, error) {
	cfg := config.New(config.WithFile(opts.configPath))

	changed := opts.changed
	if changed == nil {
		changed = func(string) bool { return false }
	}
	var flags []error
	if changed("server") {
		fields := strings.Fields(opts.server)
		if len(fields) == 0 {
			return nil, errors.New("--server must not be empty")
		}
		flags = append(flags,
			cfg.Set("server.command", fields[0]),
			cfg.Set("server.args", fields[1:]),
		)
	}
	if changed("log-level") {
		flags = append(flags, cfg.Set("logging.level", opts.logLevel))
	}
	if changed("watch") {
		flags = append(flags, cfg.Set("watch.enabled", opts.watch))
	}
	if err := errors.Join(flags...); err != nil {
		return nil, fmt.Errorf("applying flags: %w", err)
	}

	if err := cfg.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// sessionOptions builds the protocol and completion options from cfg. The
// returned function closes the suggestion hook, if one was loaded.
func sessionOptions(cfg *config.Config, logger *logrus.Logger) ([]lsp.SessionOption, func() error, error) {
	noop := func() error { return nil }

	correlation, err := lsp.ParseCorrelation(cfg.Protocol().Correlation)
	if err != nil {
		return nil, noop, err
	}

	comp := cfg.Completion()
	completion := []lsp.CompletionOption{lsp.WithMaxSuggestions(comp.MaxSuggestions)}
	closeHook := noop
	if comp.HookScript != "" {
		hook, err := lua.LoadSuggestionHook(comp.HookScript, logging.WithComponent(logger, "hook"))
		if err != nil {
			return nil, noop, err
		}
		completion = append(completion, lsp.WithSuggestionHook(hook))
		closeHook = hook.Close
	}

	return []lsp.SessionOption{
		lsp.WithCorrelation(correlation),
		lsp.WithCompletion(completion...),
	}, closeHook, nil
}

// shutdown stops the session and the server, then waits for the reactor.
func shutdown(reactor *lsp.Reactor, exitTimeout time.Duration, runErr <-chan error, cancelRun context.CancelFunc) error {
	ctx, cancel := context.WithTimeout(context.Background(), exitTimeout+time.Second)
	defer cancel()

	err := reactor.Stop(ctx)
	cancelRun()
	if runErr := <-runErr; runErr != nil && !errors.Is(runErr, context.Canceled) {
		err = errors.Join(err, runErr)
	}
	return err
}

// parseCursor parses a 1-based LINE:COL into a 0-based position.
func parseCursor(s string) (lsp.Position, bool, error) {
	if s == "" {
		return lsp.Position{}, false, nil
	}
	lineStr, colStr, ok := strings.Cut(s, ":")
	if !ok {
		return lsp.Position{}, false, fmt.Errorf("invalid position %q: want LINE:COL", s)
	}
	line, err := strconv.Atoi(lineStr)
	if err != nil || line < 1 {
		return lsp.Position{}, false, fmt.Errorf("invalid line in %q", s)
	}
	col, err := strconv.Atoi(colStr)
	if err != nil || col < 1 {
		return lsp.Position{}, false, fmt.Errorf("invalid column in %q", s)
	}
	return lsp.Position{Line: line - 1, Character: col - 1}, true, nil
}
