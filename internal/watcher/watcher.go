// Package watcher watches workspace notes directories with fsnotify and triggers a
// debounced callback per workspace when matching notes change.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyperjump/tsunagu/internal/fileid"
	"go.uber.org/zap"
)

const defaultDebounce = 2 * time.Second

// Root is one workspace directory to watch.
type Root struct {
	Workspace string
	Dir       string
	Include   []string
}

// Watcher invokes onChange(workspace) once a burst of note changes in that workspace settles.
type Watcher struct {
	roots     map[string]Root // workspace -> root
	onChange  func(workspace string)
	debounce  time.Duration
	watcher   *fsnotify.Watcher
	mu        sync.Mutex
	timers    map[string]*time.Timer // workspace -> pending trigger
	rootPaths map[string][]string    // workspace -> directories added to fsnotify
	done      chan struct{}
	started   bool
	stopOnce  sync.Once
	logger    *zap.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets the quiet period before onChange fires. d <= 0 keeps the default.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher over roots.
func NewWatcher(roots []Root, onChange func(workspace string), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		roots:     make(map[string]Root, len(roots)),
		onChange:  onChange,
		debounce:  defaultDebounce,
		timers:    make(map[string]*time.Timer),
		rootPaths: make(map[string][]string),
		done:      make(chan struct{}),
		logger:    zap.NewNop(),
	}
	for _, r := range roots {
		r.Dir = filepath.Clean(r.Dir)
		w.roots[r.Workspace] = r
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start starts watching. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	for _, ws := range w.workspacesLocked() {
		if err := w.addRootLocked(w.roots[ws]); err != nil {
			_ = w.watcher.Close()
			w.watcher = nil
			w.started = false
			w.mu.Unlock()
			return fmt.Errorf("watch %s: %w", ws, err)
		}
	}
	w.logger.Debug("watcher started", zap.Strings("directories", w.directoriesLocked()))
	w.mu.Unlock()
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	w.mu.Lock()
	events, errs := w.watcher.Events, w.watcher.Errors
	w.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-errs:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	root, ok := w.rootFor(ev.Name)
	if !ok {
		return
	}
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.addDirectory(root.Workspace, ev.Name)
			w.schedule(root.Workspace)
			return
		}
	}
	rel, ok := fileid.Rel(root.Dir, ev.Name)
	if !ok || hidden(rel) {
		return
	}
	// A removed directory can't be stat'd; treat any unmatched removal as possibly one.
	if !fileid.Matches(rel, root.Include) && !ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
		return
	}
	w.logger.Debug("note change", zap.String("workspace", root.Workspace), zap.String("op", ev.Op.String()), zap.String("path", rel))
	w.schedule(root.Workspace)
}

// rootFor returns the root whose directory contains path.
func (w *Watcher) rootFor(path string) (Root, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	clean := filepath.Clean(path)
	for _, r := range w.roots {
		if r.Dir == clean || inDir(r.Dir, clean) {
			return r, true
		}
	}
	return Root{}, false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// hidden reports whether any segment of the slash path starts with a dot.
func hidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

func (w *Watcher) schedule(workspace string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if t, ok := w.timers[workspace]; ok {
		t.Stop()
	}
	w.timers[workspace] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, workspace)
		onChange := w.onChange
		w.mu.Unlock()
		w.logger.Debug("notes changed, triggering analysis", zap.String("workspace", workspace))
		if onChange != nil {
			onChange(workspace)
		}
	})
}

// addDirectory watches a directory created under a workspace root.
func (w *Watcher) addDirectory(workspace, dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Debug("watcher failed to add directory", zap.String("path", path), zap.Error(err))
			return nil
		}
		w.rootPaths[workspace] = append(w.rootPaths[workspace], path)
		return nil
	})
}

// AddRoot starts watching another workspace directory.
func (w *Watcher) AddRoot(root Root) error {
	root.Dir = filepath.Clean(root.Dir)
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.roots[root.Workspace]; ok {
		return fmt.Errorf("workspace %s is already watched", root.Workspace)
	}
	if w.watcher != nil {
		if err := w.addRootLocked(root); err != nil {
			return err
		}
	}
	w.roots[root.Workspace] = root
	w.logger.Debug("watcher root added", zap.String("workspace", root.Workspace), zap.String("dir", root.Dir))
	return nil
}

func (w *Watcher) addRootLocked(root Root) error {
	if err := os.MkdirAll(root.Dir, 0755); err != nil {
		return err
	}
	var paths []string
	err := filepath.WalkDir(root.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root.Dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return err
	}
	w.rootPaths[root.Workspace] = paths
	return nil
}

// RemoveRoot stops watching the workspace and drops any pending trigger for it.
func (w *Watcher) RemoveRoot(workspace string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.roots[workspace]; !ok {
		return
	}
	if w.watcher != nil {
		for _, p := range w.rootPaths[workspace] {
			_ = w.watcher.Remove(p)
		}
	}
	if t, ok := w.timers[workspace]; ok {
		t.Stop()
		delete(w.timers, workspace)
	}
	delete(w.rootPaths, workspace)
	delete(w.roots, workspace)
	w.logger.Debug("watcher root removed", zap.String("workspace", workspace))
}

// Directories returns the watched workspace directories, sorted.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.directoriesLocked()
}

func (w *Watcher) directoriesLocked() []string {
	dirs := make([]string, 0, len(w.roots))
	for _, r := range w.roots {
		dirs = append(dirs, r.Dir)
	}
	sort.Strings(dirs)
	return dirs
}

func (w *Watcher) workspacesLocked() []string {
	ids := make([]string, 0, len(w.roots))
	for id := range w.roots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stop stops the watcher and cancels pending triggers.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for ws, t := range w.timers {
		t.Stop()
		delete(w.timers, ws)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
