// Package watcher hosts the Event Source collaborator: a debounced stream
// of filesystem events for a watched subtree, built on fsnotify.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// EventKind is one of the four filesystem event variants the core
// understands (spec.md §2.2, §4.6).
type EventKind int

const (
	Created EventKind = iota
	MetadataChanged
	Removed
	Renamed
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	switch k {
	case Created:
		return "Created"
	case MetadataChanged:
		return "MetadataChanged"
	case Removed:
		return "Removed"
	case Renamed:
		return "Renamed"
	default:
		return "Unknown"
	}
}

// Event represents a single filesystem change, already debounced and
// coalesced. OldPath is only set for Renamed.
type Event struct {
	Kind    EventKind
	Path    string
	OldPath string
	Time    time.Time
}

// Config holds configuration for the file system watcher.
type Config struct {
	Paths             []string
	ExcludePatterns   []string
	GitIgnorePatterns []string
	DebounceWindow    time.Duration
}

// Watcher watches file system paths for changes and emits debounced,
// causally-ordered-per-path events.
type Watcher struct {
	cfg     Config
	matcher *ExcludeMatcher
	log     logrus.FieldLogger
	fsw     *fsnotify.Watcher
	mu      sync.Mutex
	closed  bool
}

// New creates a new file system watcher with the given configuration.
func New(cfg Config, log logrus.FieldLogger) (*Watcher, error) {
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = 100 * time.Millisecond
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	allPatterns := make([]string, 0, len(cfg.ExcludePatterns)+len(cfg.GitIgnorePatterns))
	allPatterns = append(allPatterns, cfg.ExcludePatterns...)
	allPatterns = append(allPatterns, cfg.GitIgnorePatterns...)

	matcher := NewExcludeMatcher(cfg.Paths, allPatterns)
	if err := matcher.LoadPatterns(); err != nil {
		return nil, err
	}

	return &Watcher{
		cfg:     cfg,
		matcher: matcher,
		log:     log,
	}, nil
}

// Start begins watching configured paths and returns a channel of
// debounced events. It returns once the watch set is established; events
// are delivered asynchronously until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) (<-chan Event, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()

	for _, root := range w.cfg.Paths {
		if err := w.addRecursive(root); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	out := make(chan Event, 100)
	go w.eventLoop(ctx, fsw, out)
	return out, nil
}

// Close shuts down the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip inaccessible entries
		}
		if !info.IsDir() {
			return nil
		}
		if w.matcher.Match(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// pendingRename is a Rename half-event waiting to be paired with the
// Create that fsnotify emits for the new path, per §9 ("move vs rename
// disambiguation"). If no Create shows up before the timeout, it
// degrades to a plain Removed.
type pendingRename struct {
	oldPath string
	timer   *time.Timer
}

func (w *Watcher) eventLoop(ctx context.Context, fsw *fsnotify.Watcher, out chan<- Event) {
	defer close(out)

	type pendingEvent struct {
		evt   Event
		timer *time.Timer
	}
	pending := make(map[string]*pendingEvent)
	var pendingRenameOut *pendingRename
	var mu sync.Mutex

	emit := func(evt Event) {
		select {
		case out <- evt:
		case <-ctx.Done():
		}
	}

	flushRenameAsRemove := func() {
		mu.Lock()
		pr := pendingRenameOut
		pendingRenameOut = nil
		mu.Unlock()
		if pr != nil {
			pr.timer.Stop()
			emit(Event{Kind: Removed, Path: pr.oldPath, Time: time.Now()})
		}
	}

	schedule := func(path string, evt Event) {
		mu.Lock()
		defer mu.Unlock()
		if p, exists := pending[path]; exists {
			p.timer.Stop()
			// A write or chmod right after a create or rename-in must not
			// hide the entry's arrival from the consumer.
			if evt.Kind == MetadataChanged && (p.evt.Kind == Created || p.evt.Kind == Renamed) {
				evt = p.evt
			}
		}
		p := &pendingEvent{evt: evt}
		p.timer = time.AfterFunc(w.cfg.DebounceWindow, func() {
			mu.Lock()
			e := pending[path]
			delete(pending, path)
			mu.Unlock()
			if e != nil {
				emit(e.evt)
			}
		})
		pending[path] = p
	}

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			for _, p := range pending {
				p.timer.Stop()
			}
			if pendingRenameOut != nil {
				pendingRenameOut.timer.Stop()
			}
			mu.Unlock()
			return

		case fsEvent, ok := <-fsw.Events:
			if !ok {
				return
			}

			if w.matcher.Match(fsEvent.Name) {
				continue
			}

			switch {
			case fsEvent.Op.Has(fsnotify.Create):
				if info, err := os.Stat(fsEvent.Name); err == nil && info.IsDir() {
					_ = w.addRecursive(fsEvent.Name)
				}

				mu.Lock()
				pr := pendingRenameOut
				pendingRenameOut = nil
				mu.Unlock()
				if pr != nil {
					pr.timer.Stop()
					schedule(fsEvent.Name, Event{
						Kind:    Renamed,
						Path:    fsEvent.Name,
						OldPath: pr.oldPath,
						Time:    time.Now(),
					})
					continue
				}
				schedule(fsEvent.Name, Event{Kind: Created, Path: fsEvent.Name, Time: time.Now()})

			case fsEvent.Op.Has(fsnotify.Write), fsEvent.Op.Has(fsnotify.Chmod):
				schedule(fsEvent.Name, Event{Kind: MetadataChanged, Path: fsEvent.Name, Time: time.Now()})

			case fsEvent.Op.Has(fsnotify.Remove):
				schedule(fsEvent.Name, Event{Kind: Removed, Path: fsEvent.Name, Time: time.Now()})

			case fsEvent.Op.Has(fsnotify.Rename):
				// fsnotify reports only the old path for a rename; wait for
				// the paired Create of the new path before emitting.
				flushRenameAsRemove()
				mu.Lock()
				pendingRenameOut = &pendingRename{oldPath: fsEvent.Name}
				pendingRenameOut.timer = time.AfterFunc(w.cfg.DebounceWindow, flushRenameAsRemove)
				mu.Unlock()
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.log.WithField("component", "watcher").WithError(err).Warn("fsnotify error")
		}
	}
}
