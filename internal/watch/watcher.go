// Package watch reports edits to files and directories made outside the
// process, such as a diagram code file saved from an editor.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// DefaultDebounce coalesces the burst of events one save produces.
const DefaultDebounce = 200 * time.Millisecond

// Change describes one debounced change.
type Change struct {
	// Key is the caller's name for the watch, e.g. a diagram id.
	Key string
	// Path is the file that changed.
	Path string
	// Content is the file's trimmed content. It is empty for directory
	// watches and removed files.
	Content string
}

// ChangeHandler is called from the watcher's timer goroutines.
type ChangeHandler func(Change)

// Watcher maps watched paths to keys. fsnotify only watches directories
// reliably across editors that replace files on save, so the parent
// directory is watched and events are filtered by path.
type Watcher struct {
	watcher  *fsnotify.Watcher
	onChange ChangeHandler
	debounce time.Duration

	mu     sync.Mutex
	files  map[string]string // abs file path -> key
	dirs   map[string]string // abs dir path -> key
	timers map[string]*time.Timer
	closed bool
}

// New starts a watcher. A zero debounce uses DefaultDebounce.
func New(onChange ChangeHandler, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{
		watcher:  fw,
		onChange: onChange,
		debounce: debounce,
		files:    make(map[string]string),
		dirs:     make(map[string]string),
		timers:   make(map[string]*time.Timer),
	}

	go w.watchLoop()

	return w, nil
}

// WatchFile reports writes to path under key.
func (w *Watcher) WatchFile(key, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.files[absPath] = key
	w.mu.Unlock()

	return w.watcher.Add(filepath.Dir(absPath))
}

// WatchDir reports any file created, written, removed or renamed directly
// inside dir under key.
func (w *Watcher) WatchDir(key, dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return fmt.Errorf("create watched dir: %w", err)
	}

	w.mu.Lock()
	w.dirs[absDir] = key
	w.mu.Unlock()

	return w.watcher.Add(absDir)
}

// Stop forgets every path registered under key.
func (w *Watcher) Stop(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for path, k := range w.files {
		if k == key {
			delete(w.files, path)
		}
	}
	for dir, k := range w.dirs {
		if k == key {
			delete(w.dirs, dir)
		}
	}
}

// Close stops the watcher and any pending notifications.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("watch: watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	absPath, _ := filepath.Abs(event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	if key, ok := w.files[absPath]; ok && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
		w.schedule(absPath, Change{Key: key, Path: absPath}, true)
		return
	}
	if key, ok := w.dirs[filepath.Dir(absPath)]; ok {
		w.schedule(filepath.Dir(absPath), Change{Key: key, Path: absPath}, false)
	}
}

// schedule restarts the debounce timer for id. Callers hold w.mu.
func (w *Watcher) schedule(id string, c Change, readContent bool) {
	if t, exists := w.timers[id]; exists {
		t.Stop()
	}
	w.timers[id] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		closed := w.closed
		delete(w.timers, id)
		w.mu.Unlock()
		if closed {
			return
		}

		if readContent {
			content, err := os.ReadFile(c.Path)
			if err != nil {
				log.WithError(err).WithField("path", c.Path).Warn("watch: read file")
				return
			}
			c.Content = strings.TrimSpace(string(content))
		}
		log.WithFields(log.Fields{"key": c.Key, "path": c.Path}).Debug("watch: change")
		if w.onChange != nil {
			w.onChange(c)
		}
	})
}
