// Package supervisor owns collaborator startup and the single-writer event
// loop: it starts the tag adapter and event source, performs the initial
// bootstrap, launches the IPC server, then applies the event stream to the
// graph in source order for as long as the process runs.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tagfsd/tagfsd/internal/config"
	"github.com/tagfsd/tagfsd/internal/debugdump"
	"github.com/tagfsd/tagfsd/internal/graph"
	"github.com/tagfsd/tagfsd/internal/ipc"
	"github.com/tagfsd/tagfsd/internal/pathutil"
	"github.com/tagfsd/tagfsd/internal/tagadapter"
	"github.com/tagfsd/tagfsd/internal/watcher"
)

// Supervisor wires the adapter, the graph, the event source and the IPC
// server together and runs them for the lifetime of ctx.
type Supervisor struct {
	cfg     *config.Config
	adapter tagadapter.Adapter
	graph   *graph.Graph
	log     logrus.FieldLogger
}

// New returns a Supervisor ready to Run. cfg must already be Validate'd.
func New(cfg *config.Config, adapter tagadapter.Adapter, log logrus.FieldLogger) *Supervisor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Supervisor{
		cfg:     cfg,
		adapter: adapter,
		graph:   graph.New(adapter, log),
		log:     log,
	}
}

// Run performs the initial bootstrap, then launches the IPC server and the
// watcher's event loop concurrently, returning when ctx is cancelled or
// either sub-task fails. A socket bind failure is fatal, per spec §7.
func (s *Supervisor) Run(ctx context.Context) error {
	root := filepath.Clean(s.cfg.WatchedRoot)

	s.log.WithField("path", root).Info("bootstrapping graph")
	bootStart := time.Now()
	if err := s.graph.Bootstrap(root); err != nil {
		return fmt.Errorf("supervisor: bootstrap: %w", err)
	}
	dirs, files, tags := s.graph.Counts()
	s.log.WithFields(logrus.Fields{
		"directories": dirs,
		"files":       files,
		"tags":        tags,
		"elapsed":     time.Since(bootStart),
	}).Info("bootstrap complete")

	wcfg := watcher.Config{
		Paths:             []string{root},
		ExcludePatterns:   s.cfg.ExcludePatterns,
		GitIgnorePatterns: nil,
		DebounceWindow:    time.Duration(s.cfg.DebounceMillis) * time.Millisecond,
	}
	w, err := watcher.New(wcfg, s.log)
	if err != nil {
		return fmt.Errorf("supervisor: create watcher: %w", err)
	}
	defer w.Close()

	events, err := w.Start(ctx)
	if err != nil {
		return fmt.Errorf("supervisor: start watcher: %w", err)
	}

	socketPath := s.cfg.ResolveSocketPath("")
	server := ipc.NewServer(socketPath, s.graph, s.log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.WithField("socket", socketPath).Info("ipc server listening")
		if err := server.Serve(gctx); err != nil {
			return fmt.Errorf("ipc server: %w", err)
		}
		return nil
	})

	if s.cfg.Debug {
		g.Go(func() error {
			debugdump.RunPeriodicSnapshot(gctx, s.graph, s.log)
			return nil
		})
	}

	g.Go(func() error {
		s.eventLoop(gctx, events)
		return nil
	})

	return g.Wait()
}

// Graph exposes the underlying graph, for callers (tests, --debug dump
// commands) that need direct access outside of Run.
func (s *Supervisor) Graph() *graph.Graph {
	return s.graph
}

// eventLoop applies the watcher's event stream to the graph in order,
// per the dispatch table in spec §4.6, until events closes or ctx is done.
func (s *Supervisor) eventLoop(ctx context.Context, events <-chan watcher.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			s.dispatch(evt)
		}
	}
}

func (s *Supervisor) dispatch(evt watcher.Event) {
	base := s.graph.Base()
	log := s.log.WithFields(logrus.Fields{"component": "supervisor", "event": evt.Kind.String(), "path": evt.Path})

	switch evt.Kind {
	case watcher.Created:
		s.addTree(evt.Path, base)

	case watcher.MetadataChanged:
		local := pathutil.SplitLocal(evt.Path, base)
		entry, err := s.graph.Resolve(local)
		if err != nil {
			log.WithError(err).Warn("metadata changed for unresolvable entry, dropping")
			return
		}
		if err := s.graph.RefreshTags(entry); err != nil {
			log.WithError(err).Warn("refresh_tags failed")
		}

	case watcher.Removed:
		local := pathutil.SplitLocal(evt.Path, base)
		entry, err := s.graph.Resolve(local)
		if err != nil {
			log.WithError(err).Warn("removed path unresolvable, dropping")
			return
		}
		if err := s.graph.RemoveSubtree(entry); err != nil {
			log.WithError(err).Warn("remove_subtree failed")
		}

	case watcher.Renamed:
		oldLocal := pathutil.SplitLocal(evt.OldPath, base)
		entry, err := s.graph.Resolve(oldLocal)
		if err != nil {
			// §9: the source path isn't in the graph, most likely a
			// directory moved in from outside the watched root. Treat the
			// destination as a fresh Created and walk it instead of
			// misrouting the event.
			log.WithField("new_path", evt.Path).Info("rename source unresolvable, treating destination as created")
			s.addTree(evt.Path, base)
			return
		}
		newLocal := pathutil.SplitLocal(evt.Path, base)
		if err := s.graph.MoveEntry(entry, newLocal); err != nil {
			log.WithError(err).Warn("move_entry failed, dropping")
		}
	}
}

// addTree adds absPath and, if it is a directory, every descendant beneath
// it. A plain Created for a file is a single add_subpath call; a directory
// that already contains entries (e.g. moved in from outside the watched
// root) needs each of those entries added too.
func (s *Supervisor) addTree(absPath, base string) {
	log := s.log.WithFields(logrus.Fields{"component": "supervisor", "path": absPath})

	info, err := os.Lstat(absPath)
	if err != nil {
		log.WithError(err).Warn("created path vanished before it could be indexed")
		return
	}

	local := pathutil.SplitLocal(absPath, base)
	if err := s.graph.AddSubpath(local); err != nil {
		log.WithError(err).Warn("add_subpath failed")
		return
	}
	if !info.IsDir() {
		return
	}

	_ = filepath.Walk(absPath, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			log.WithField("child", path).WithError(walkErr).Warn("skipping unreadable entry during subtree walk")
			return nil
		}
		if path == absPath {
			return nil
		}
		childLocal := pathutil.SplitLocal(path, base)
		if err := s.graph.AddSubpath(childLocal); err != nil {
			log.WithField("child", path).WithError(err).Warn("add_subpath failed during subtree walk")
		}
		return nil
	})
}
