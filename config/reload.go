package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay lets a writer finish before the file is read again.
const settleDelay = 100 * time.Millisecond

// watcher reloads the configuration when a watched file changes. It
// watches the parent directories so that files replaced by rename (as
// editors and configuration tools do) keep being followed.
type watcher struct {
	fs        *fsnotify.Watcher
	files     map[string]bool
	trees     map[string]bool
	reload    func() error
	callbacks []func(error)
	cancel    context.CancelFunc
	done      chan struct{}
	mu        sync.Mutex
}

func newWatcher(paths []string, reload func() error) (*watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &watcher{fs: fs, files: map[string]bool{}, trees: map[string]bool{}, reload: reload}

	dirs := map[string]bool{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			_ = fs.Close()
			return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			w.trees[abs] = true
			dirs[abs] = true
			continue
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fs.Add(dir); err != nil {
			_ = fs.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return w, nil
}

func (w *watcher) start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return errors.New("watcher already started")
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.run(ctx)
	return nil
}

func (w *watcher) stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	_ = w.fs.Close()
}

func (w *watcher) onChange(callback func(error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

func (w *watcher) notify(err error) {
	w.mu.Lock()
	callbacks := append(([]func(error))(nil), w.callbacks...)
	w.mu.Unlock()
	for _, cb := range callbacks {
		if cb != nil {
			cb(err)
		}
	}
}

func (w *watcher) watches(name string) bool {
	name = filepath.Clean(name)
	return w.files[name] || w.trees[filepath.Dir(name)]
}

func (w *watcher) run(ctx context.Context) {
	defer close(w.done)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.watches(event.Name) || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Coalesce the bursts of events a single save produces.
			if timer == nil {
				timer = time.NewTimer(settleDelay)
			} else {
				timer.Reset(settleDelay)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := w.reload(); err != nil {
				w.notify(fmt.Errorf("configuration reload failed: %w", err))
			} else {
				w.notify(nil)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.notify(fmt.Errorf("file watcher error: %w", err))
		}
	}
}
