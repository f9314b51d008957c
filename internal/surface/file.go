// Package surface provides the display surface the CLI edits through: the
// open document is mirrored into a local file, external edits to that file
// are detected with fsnotify, and recomposed content is written back.
package surface

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/WINOT/wide.py/internal/domain/ports"
)

// DefaultDebounce coalesces the burst of write events editors produce when
// saving a file.
const DefaultDebounce = 100 * time.Millisecond

// FileSurface implements ports.Display backed by a mirror file on disk.
// The user edits the mirror with any editor; each settled write triggers
// the edit callback. Writes made through SetContent leave the mirror equal
// to the rendered snapshot, so they do not surface as user edits.
type FileSurface struct {
	path    string
	onEdit  func()
	window  time.Duration
	watcher *fsnotify.Watcher

	mu       sync.Mutex
	text     string
	cursor   int
	rendered string
	timer    *time.Timer
	running  bool
}

// Option configures a FileSurface.
type Option func(*FileSurface)

// WithDebounce sets the settling window for write events.
func WithDebounce(d time.Duration) Option {
	return func(f *FileSurface) {
		f.window = d
	}
}

// New creates a surface mirroring the document into path. onEdit is invoked
// once per settled burst of writes that left the mirror different from the
// last rendered snapshot.
func New(path string, onEdit func(), opts ...Option) (*FileSurface, error) {
	f := &FileSurface{
		path:   path,
		onEdit: onEdit,
		window: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(f)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors replace files on save, which drops a
	// watch installed on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	f.watcher = watcher
	f.running = true

	go f.eventLoop()

	log.Debug().Str("path", path).Msg("mirror surface created")
	return f, nil
}

// Path returns the mirror file location.
func (f *FileSurface) Path() string {
	return f.path
}

// Text returns the current mirror content.
func (f *FileSurface) Text() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readLocked()
}

func (f *FileSurface) readLocked() string {
	data, err := os.ReadFile(f.path)
	if err != nil {
		log.Warn().Str("path", f.path).Err(err).Msg("mirror read failed")
		return f.text
	}
	f.text = string(data)
	return f.text
}

// CursorPos returns the tracked cursor offset. A file on disk has no caret;
// the cursor only moves when the session repositions it.
func (f *FileSurface) CursorPos() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursor
}

// SetContent rewrites the mirror and repositions the cursor.
func (f *FileSurface) SetContent(text string, cursor int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.text = text
	f.cursor = cursor
	if err := os.WriteFile(f.path, []byte(text), 0o644); err != nil {
		log.Error().Str("path", f.path).Err(err).Msg("mirror write failed")
	}
}

// LastRendered returns the snapshot recorded by the last SaveRendered.
func (f *FileSurface) LastRendered() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rendered
}

// SaveRendered records the snapshot future edits are diffed against.
func (f *FileSurface) SaveRendered(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rendered = text
}

// Close stops watching and removes the mirror file.
func (f *FileSurface) Close() error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = false
	if f.timer != nil {
		f.timer.Stop()
	}
	f.mu.Unlock()

	err := f.watcher.Close()
	_ = os.Remove(f.path)
	return err
}

func (f *FileSurface) eventLoop() {
	for {
		select {
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != f.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			f.scheduleCallback()
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Str("path", f.path).Err(err).Msg("mirror watch error")
		}
	}
}

// scheduleCallback debounces write events: the callback fires once the
// mirror stopped changing for the settling window.
func (f *FileSurface) scheduleCallback() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.running {
		return
	}
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.window, f.fire)
}

// fire invokes the edit callback unless the mirror still matches the last
// rendered snapshot, which is the signature of our own SetContent write.
func (f *FileSurface) fire() {
	f.mu.Lock()
	running := f.running
	changed := f.readLocked() != f.rendered
	f.mu.Unlock()

	if !running || !changed {
		return
	}
	if f.onEdit != nil {
		f.onEdit()
	}
}

var _ ports.Display = (*FileSurface)(nil)
