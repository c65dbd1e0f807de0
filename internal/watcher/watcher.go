package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/chunkerbatch/chunkerbatch/internal/domain"
	"github.com/chunkerbatch/chunkerbatch/internal/worlds"
)

const defaultDebounce = 2 * time.Second

// Watcher monitors an input directory for newly arrived worlds.
//
// Copying a world into the watched directory produces a burst of create and
// write events. A directory is offered on the arrivals channel only once it
// has been quiet for the debounce window and passes the world detection
// check, and each directory is offered at most once per watcher lifetime.
type Watcher struct {
	root     string
	fs       *fsnotify.Watcher
	arrivals chan domain.WorldEntry
	debounce time.Duration

	mu         sync.Mutex
	pending    map[string]time.Time
	dispatched map[string]struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the quiet period a directory must observe before it
// is checked and offered.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher for the given input root. The root must already
// exist and be a directory.
func New(root string, opts ...Option) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", root)
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:       filepath.Clean(root),
		fs:         fs,
		arrivals:   make(chan domain.WorldEntry, 8),
		debounce:   defaultDebounce,
		pending:    make(map[string]time.Time),
		dispatched: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Worlds returns the channel on which settled worlds are delivered. It is
// closed when the watch loop stops.
func (w *Watcher) Worlds() <-chan domain.WorldEntry {
	return w.arrivals
}

// MarkSeen excludes a directory from future dispatch. The watch command uses
// it for worlds that were already present at startup.
func (w *Watcher) MarkSeen(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dispatched[filepath.Clean(dir)] = struct{}{}
}

// Start registers the filesystem watches and launches the watch loop. The
// loop runs until ctx is cancelled, then closes the arrivals channel.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.fs.Add(w.root); err != nil {
		w.fs.Close()
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}

	// fsnotify is not recursive: files landing inside a half-copied world
	// only raise events in the subdirectory itself, so watch those too.
	entries, err := os.ReadDir(w.root)
	if err != nil {
		w.fs.Close()
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			w.fs.Add(filepath.Join(w.root, entry.Name()))
		}
	}

	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.arrivals)
	defer w.fs.Close()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case _, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			// Overflow or transient error; keep watching.
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			w.forget(event.Name)
		}
		return
	}

	candidate, ok := w.candidateDir(event.Name)
	if !ok {
		return
	}

	// A new directory under the root needs its own watch so the rest of
	// the copy stays visible.
	if event.Op&fsnotify.Create != 0 && candidate == filepath.Clean(event.Name) {
		w.fs.Add(candidate)
	}

	w.mu.Lock()
	if _, done := w.dispatched[candidate]; !done {
		w.pending[candidate] = time.Now()
	}
	w.mu.Unlock()
}

// candidateDir maps an event path to the immediate child of the watch root
// that contains it.
func (w *Watcher) candidateDir(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	first := strings.SplitN(rel, string(filepath.Separator), 2)[0]
	return filepath.Join(w.root, first), true
}

// forget clears state for a removed directory so a later re-copy is offered
// again.
func (w *Watcher) forget(path string) {
	candidate, ok := w.candidateDir(path)
	if !ok || candidate != filepath.Clean(path) {
		return
	}
	w.mu.Lock()
	delete(w.pending, candidate)
	delete(w.dispatched, candidate)
	w.mu.Unlock()
}

func (w *Watcher) flush(ctx context.Context) {
	now := time.Now()

	w.mu.Lock()
	var ready []string
	for dir, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			delete(w.pending, dir)
			ready = append(ready, dir)
		}
	}
	w.mu.Unlock()

	sort.Strings(ready)
	for _, dir := range ready {
		// Incomplete copies fail the check here and get re-queued by
		// their next write event.
		if !worlds.IsWorld(dir) {
			continue
		}

		w.mu.Lock()
		if _, done := w.dispatched[dir]; done {
			w.mu.Unlock()
			continue
		}
		w.dispatched[dir] = struct{}{}
		w.mu.Unlock()

		entry := domain.WorldEntry{
			Name: filepath.Base(dir),
			Path: dir,
			Kind: worlds.Kind(dir),
		}
		select {
		case w.arrivals <- entry:
		case <-ctx.Done():
			return
		}
	}
}
