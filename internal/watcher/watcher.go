// Package watcher reports changes to a single file on disk.
//
// The file's directory is watched rather than the file itself, so editors
// that save by writing a temporary file and renaming it over the original
// are still seen. Bursts of events are coalesced into one Event per
// debounce window.
package watcher

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Errors returned by the watcher.
var (
	ErrPathNotExist = errors.New("path does not exist")
	ErrIsDirectory  = errors.New("path is a directory")
)

// Op represents the type of file system operation.
type Op uint32

const (
	// OpCreate indicates the file was created.
	OpCreate Op = 1 << iota
	// OpWrite indicates the file was written.
	OpWrite
	// OpRemove indicates the file was removed.
	OpRemove
	// OpRename indicates the file was renamed away.
	OpRename
)

// String returns the operation names joined with "|".
func (op Op) String() string {
	var names []string
	if op.Has(OpCreate) {
		names = append(names, "create")
	}
	if op.Has(OpWrite) {
		names = append(names, "write")
	}
	if op.Has(OpRemove) {
		names = append(names, "remove")
	}
	if op.Has(OpRename) {
		names = append(names, "rename")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Has reports whether op includes o.
func (op Op) Has(o Op) bool {
	return op&o != 0
}

// Event is a coalesced change to the watched file.
type Event struct {
	// Path is the absolute path of the file.
	Path string
	// Op holds every operation seen during the debounce window.
	Op Op
	// Time is when the last operation was seen.
	Time time.Time
}

// Exists reports whether the file was present after the last operation.
func (e Event) Exists() bool {
	_, err := os.Stat(e.Path)
	return err == nil
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long the file must be quiet before an event is sent.
// Zero sends every operation as it arrives.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// Watcher watches one file.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *logrus.Entry

	fsw    *fsnotify.Watcher
	events chan Event
	errors chan error

	// pending accumulates operations until the debounce timer fires.
	pending     Op
	pendingTime time.Time

	dropped atomic.Int64

	closeOnce sync.Once
	closeCh   chan struct{}
	wg        sync.WaitGroup
}

// New starts watching path. The file itself may not exist yet, but its
// directory must.
func New(path string, opts ...Option) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(absPath); err == nil && info.IsDir() {
		return nil, ErrIsDirectory
	}
	dir := filepath.Dir(absPath)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPathNotExist
		}
		return nil, err
	}

	w := &Watcher{
		path:     absPath,
		debounce: 100 * time.Millisecond,
		events:   make(chan Event, 16),
		errors:   make(chan error, 16),
		closeCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		w.logger = logrus.NewEntry(discard)
	}
	w.logger = w.logger.WithField("path", absPath)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w.fsw = fsw

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string { return w.path }

// Events returns the channel of coalesced events. It is closed by Close.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns the channel of watch errors. It is closed by Close.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Dropped returns the number of events dropped because Events was full.
func (w *Watcher) Dropped() int64 { return w.dropped.Load() }

// Close stops watching. Pending operations are discarded. Closing twice
// is a no-op.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closeCh)
		w.wg.Wait()
		err = w.fsw.Close()
		close(w.events)
		close(w.errors)
	})
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			op := convertOp(ev.Op)
			if op == 0 {
				continue
			}
			w.logger.WithField("op", op).Trace("file event")
			w.pending |= op
			w.pendingTime = time.Now()
			if w.debounce == 0 {
				w.flush()
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			w.flush()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("watch error")
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

// flush sends the pending operations as one event.
func (w *Watcher) flush() {
	if w.pending == 0 {
		return
	}
	event := Event{Path: w.path, Op: w.pending, Time: w.pendingTime}
	w.pending = 0

	select {
	case w.events <- event:
	default:
		w.dropped.Add(1)
		w.logger.WithField("op", event.Op).Warn("event channel full, dropping event")
	}
}

func convertOp(fsOp fsnotify.Op) Op {
	var op Op
	if fsOp.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if fsOp.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if fsOp.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if fsOp.Has(fsnotify.Rename) {
		op |= OpRename
	}
	return op
}
