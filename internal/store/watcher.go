package store

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// RunWatcher surfaces manifest rewrites to observability consumers (progress
// UIs, debugging tools) without those consumers polling the run directory.
type RunWatcher struct {
	Events  chan string // run's report ID, one send per manifest rewrite
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchRun starts watching a run directory for manifest rewrites. Callers
// must Close the watcher when done.
func (r *Run) WatchRun() (*RunWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create run watcher: %w", err)
	}
	if err := w.Add(r.Dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch run directory: %w", err)
	}

	rw := &RunWatcher{
		Events:  make(chan string, 16),
		watcher: w,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(rw.Events)
		for {
			select {
			case <-rw.done:
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != manifestFile {
					continue
				}
				// Atomic writes surface as Create (rename into place).
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				select {
				case rw.Events <- r.ReportID:
				default:
					// Consumer lagging; drop rather than block the run.
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				r.logger.Warn("run watcher error", zap.Error(err))
			}
		}
	}()

	return rw, nil
}

// Close stops the watcher and closes the Events channel.
func (rw *RunWatcher) Close() error {
	close(rw.done)
	return rw.watcher.Close()
}
