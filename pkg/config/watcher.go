package config

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc is invoked with the freshly loaded, validated config whenever
// the watched file changes. An error return is logged by the caller but
// does not stop the watcher.
type ReloadFunc func(*Config) error

// Watcher reloads a Config from disk whenever its backing file changes,
// debouncing rapid successive writes (editors often emit several events per
// save).
type Watcher struct {
	watcher      *fsnotify.Watcher
	path         string
	onReload     ReloadFunc
	debounce     time.Duration
	mu           sync.Mutex
	debounceTimer *time.Timer
	ctx          context.Context
	cancel       context.CancelFunc
	errCh        chan error
}

// NewWatcher starts watching path for changes. onReload fires (from a
// background goroutine) after each debounced change once the file re-parses
// and validates successfully.
func NewWatcher(path string, onReload ReloadFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		watcher:  fsw,
		path:     path,
		onReload: onReload,
		debounce: 250 * time.Millisecond,
		ctx:      ctx,
		cancel:   cancel,
		errCh:    make(chan error, 10),
	}
	if err := fsw.Add(path); err != nil {
		cancel()
		fsw.Close()
		return nil, err
	}
	go w.eventLoop()
	return w, nil
}

// Errors returns a channel of reload errors (bad JSON, failed validation).
func (w *Watcher) Errors() <-chan error {
	return w.errCh
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errCh <- err:
			default:
			}
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		select {
		case w.errCh <- err:
		default:
		}
		return
	}
	if w.onReload != nil {
		if err := w.onReload(cfg); err != nil {
			select {
			case w.errCh <- err:
			default:
			}
		}
	}
}

// Close stops the watcher and releases the underlying fsnotify handle.
func (w *Watcher) Close() error {
	w.cancel()
	return w.watcher.Close()
}
