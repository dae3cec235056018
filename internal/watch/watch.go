// Package watch reloads configuration files when they change on
// disk.
package watch

import (
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloader watches a single file and invokes a callback after
// changes settle. The parent directory is watched rather than the
// file itself, so atomic rename-in-place saves are seen too.
type Reloader struct {
	path     string
	onChange func()
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu       sync.Mutex
	dirty    bool
	lastSeen time.Time

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewReloader creates a reloader for path that calls onChange after
// the debounce period elapses without further writes.
func NewReloader(
	path string, debounce time.Duration, onChange func(),
) (*Reloader, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	r := &Reloader{
		path:     path,
		onChange: onChange,
		watcher:  fsw,
		debounce: debounce,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go r.loop()
	return r, nil
}

// Stop stops the reloader and waits for it to finish.
func (r *Reloader) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
		<-r.done
		r.watcher.Close()
	})
}

func (r *Reloader) loop() {
	defer close(r.done)
	ticker := time.NewTicker(r.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return

		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(r.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			r.mu.Lock()
			r.dirty = true
			r.lastSeen = time.Now()
			r.mu.Unlock()

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("watch %s: %v", r.path, err)

		case <-ticker.C:
			r.flush()
		}
	}
}

func (r *Reloader) flush() {
	r.mu.Lock()
	ready := r.dirty && time.Since(r.lastSeen) >= r.debounce
	if ready {
		r.dirty = false
	}
	r.mu.Unlock()
	if ready {
		r.onChange()
	}
}
