package reload

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/leshy-dns/leshy/internal/logging"
)

// debounceWindow coalesces the burst of write/chmod/rename events most
// editors produce for a single logical save into one reload.
const debounceWindow = 250 * time.Millisecond

// Watcher triggers fn whenever the config file (or its config.d/
// directory) changes on disk.
type Watcher struct {
	fsw *fsnotify.Watcher
	fn  func()
	stop chan struct{}
}

// WatchConfig starts watching configPath and its sibling config.d/
// directory (if present), calling fn after each debounced change. Call
// Close to stop.
func WatchConfig(configPath string, fn func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsw.Add(filepath.Dir(configPath)); err != nil {
		fsw.Close()
		return nil, err
	}
	configDDir := filepath.Join(filepath.Dir(configPath), "config.d")
	_ = fsw.Add(configDDir) // best-effort: config.d/ may not exist yet

	w := &Watcher{fsw: fsw, fn: fn, stop: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	log := logging.With("reload-watcher")
	var timer *time.Timer

	for {
		select {
		case <-w.stop:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(debounceWindow, w.fn)
			} else {
				timer.Reset(debounceWindow)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("config watch error")
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.stop)
	return w.fsw.Close()
}
