// Package watcher turns file-system activity under a project root into
// debounced batches of changed paths.
//
// Only one watcher per project runs at a time; the others notice the lock
// and stand down without error.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0x5457/code-index/internal/constants"
	"github.com/0x5457/code-index/internal/ignore"
	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

type State int32

const (
	StateIdle State = iota
	StateAcquiringLock
	StateActive
	StateSkippedAlreadyWatched
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiringLock:
		return "acquiring-lock"
	case StateActive:
		return "active"
	case StateSkippedAlreadyWatched:
		return "skipped-already-watched"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// WatchError reports a failure to set up or run the watcher.
type WatchError struct {
	Op   string
	Path string
	Err  error
}

func (e *WatchError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("watch %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("watch %s: %v", e.Op, e.Err)
}

func (e *WatchError) Unwrap() error { return e.Err }

type Options struct {
	Root string
	// MetadataDir is relative to Root and never reported.
	MetadataDir  string
	Debounce     time.Duration
	PollInterval time.Duration
	Matcher      *ignore.Matcher
	Logger       *zap.Logger
}

type Watcher struct {
	opts   Options
	logger *zap.Logger
	state  atomic.Int32

	lock *flock.Flock
	fsw  *fsnotify.Watcher

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func New(opts Options) *Watcher {
	if opts.MetadataDir == "" {
		opts.MetadataDir = constants.DefaultMetadataDir
	}
	if opts.Debounce <= 0 {
		opts.Debounce = constants.DefaultDebounce
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = constants.DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Watcher{
		opts:   opts,
		logger: opts.Logger.Named("watcher"),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (w *Watcher) State() State { return State(w.state.Load()) }

// LockPath is the file whose lock marks a project as watched.
func (w *Watcher) LockPath() string {
	return filepath.Join(w.metadataPath(), constants.WatcherLockFile)
}

func (w *Watcher) metadataPath() string {
	if filepath.IsAbs(w.opts.MetadataDir) {
		return w.opts.MetadataDir
	}
	return filepath.Join(w.opts.Root, w.opts.MetadataDir)
}

// Start acquires the project lock and begins watching. When another
// watcher holds the lock it returns an already-closed channel and no error.
// Batches stop when ctx is cancelled or Stop is called; the channel is
// then closed.
func (w *Watcher) Start(ctx context.Context) (<-chan []string, error) {
	if !w.state.CompareAndSwap(int32(StateIdle), int32(StateAcquiringLock)) {
		return nil, &WatchError{Op: "start", Err: fmt.Errorf("watcher is %s", w.State())}
	}
	if err := os.MkdirAll(w.metadataPath(), 0o755); err != nil {
		return nil, w.fail(&WatchError{Op: "mkdir", Path: w.metadataPath(), Err: err})
	}
	w.lock = flock.New(w.LockPath())
	locked, err := w.lock.TryLock()
	if err != nil {
		return nil, w.fail(&WatchError{Op: "lock", Path: w.LockPath(), Err: err})
	}
	if !locked {
		w.logger.Info("project already watched by another process", zap.String("root", w.opts.Root))
		w.state.Store(int32(StateSkippedAlreadyWatched))
		close(w.done)
		out := make(chan []string)
		close(out)
		return out, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		_ = w.lock.Unlock()
		return nil, w.fail(&WatchError{Op: "init", Err: err})
	}
	w.fsw = fsw
	if err := w.addTree(w.opts.Root, nil); err != nil {
		_ = fsw.Close()
		_ = w.lock.Unlock()
		return nil, w.fail(err)
	}

	w.state.Store(int32(StateActive))
	w.logger.Info("watching project", zap.String("root", w.opts.Root))
	out := make(chan []string)
	go w.run(ctx, out)
	return out, nil
}

func (w *Watcher) fail(err error) error {
	w.state.Store(int32(StateStopped))
	close(w.done)
	return err
}

// Stop ends watching and waits for the loop to release the lock. It is
// safe to call more than once and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	if w.State() == StateIdle {
		return
	}
	<-w.done
}

func (w *Watcher) run(ctx context.Context, out chan<- []string) {
	d := newDebouncer(w.opts.Debounce)
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	var queue [][]string
	defer func() {
		_ = w.fsw.Close()
		if err := w.lock.Unlock(); err != nil {
			w.logger.Warn("release watcher lock", zap.Error(err))
		}
		close(out)
		w.state.Store(int32(StateStopped))
		close(w.done)
		w.logger.Info("watcher stopped", zap.Int("pending", d.len()+len(queue)))
	}()

	for {
		var send chan<- []string
		var head []string
		if len(queue) > 0 {
			send, head = out, queue[0]
		}
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev, d)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fsnotify error", zap.Error(err))
		case now := <-ticker.C:
			if batch := d.ready(now); batch != nil {
				queue = append(queue, batch)
			}
		case send <- head:
			queue = queue[1:]
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event, d *debouncer) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	rel, ok := w.relative(ev.Name)
	if !ok || w.internal(rel) {
		return
	}
	if ignore.IsRuleFile(rel) && w.opts.Matcher != nil {
		if err := w.opts.Matcher.Invalidate(rel); err != nil {
			w.logger.Warn("reload ignore rules", zap.String("path", rel), zap.Error(err))
		}
		return
	}

	info, err := os.Stat(ev.Name)
	if err == nil && info.IsDir() {
		if ev.Has(fsnotify.Create) && !w.ignored(rel, true) {
			// Files may land in the directory before it is watched.
			if err := w.addTree(ev.Name, func(p string) { d.add(p, time.Now()) }); err != nil {
				w.logger.Warn("watch new directory", zap.String("path", rel), zap.Error(err))
			}
		}
		return
	}
	if w.ignored(rel, false) {
		return
	}
	d.add(rel, time.Now())
}

// addTree watches dir and its non-ignored subdirectories, reporting each
// regular file found to onFile when it is non-nil.
func (w *Watcher) addTree(dir string, onFile func(rel string)) error {
	return filepath.WalkDir(dir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p != dir {
				return nil
			}
			return &WatchError{Op: "walk", Path: p, Err: err}
		}
		rel, ok := w.relative(p)
		if !ok {
			return nil
		}
		if entry.IsDir() {
			if rel != "." && (w.internal(rel) || w.ignored(rel, true)) {
				return filepath.SkipDir
			}
			if err := w.fsw.Add(p); err != nil {
				return &WatchError{Op: "add", Path: p, Err: err}
			}
			return nil
		}
		if onFile != nil && entry.Type().IsRegular() && !w.ignored(rel, false) {
			onFile(rel)
		}
		return nil
	})
}

func (w *Watcher) relative(p string) (string, bool) {
	rel, err := filepath.Rel(w.opts.Root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// internal reports paths the watcher never forwards: the metadata
// directory, its lock file and .git.
func (w *Watcher) internal(rel string) bool {
	meta := filepath.ToSlash(filepath.Clean(w.opts.MetadataDir))
	if rel == meta || strings.HasPrefix(rel, meta+"/") {
		return true
	}
	for _, part := range strings.Split(rel, "/") {
		if part == ".git" {
			return true
		}
	}
	return false
}

func (w *Watcher) ignored(rel string, isDir bool) bool {
	return w.opts.Matcher != nil && w.opts.Matcher.Match(rel, isDir)
}
