package connectivity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// ParseStatus interprets the contents of a status file. The second return
// value is false when the contents are not recognised.
func ParseStatus(contents string) (online bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(contents)) {
	case "online", "up", "1", "true":
		return true, true
	case "offline", "down", "0", "false":
		return false, true
	default:
		return false, false
	}
}

// FileSignal feeds a Monitor from a status file written by the host, for
// example a network dispatcher hook writing "online" or "offline". A missing
// file reports offline, both at startup and after removal.
type FileSignal struct {
	path    string
	monitor *Monitor
	logger  *slog.Logger
}

// NewFileSignal creates a FileSignal for path. A nil logger discards output.
func NewFileSignal(path string, monitor *Monitor, logger *slog.Logger) *FileSignal {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FileSignal{path: filepath.Clean(path), monitor: monitor, logger: logger}
}

// Run applies the current file contents, then watches the parent directory
// until ctx is cancelled. Watching the directory keeps working when the host
// replaces the file atomically by rename.
func (f *FileSignal) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(f.path), err)
	}

	f.apply(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			switch {
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				f.apply(ctx)
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				f.apply(ctx)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.WarnContext(ctx, "connectivity file watcher error", "error", err)
		}
	}
}

func (f *FileSignal) apply(ctx context.Context) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			f.monitor.Set(false)
			return
		}
		f.logger.WarnContext(ctx, "failed to read connectivity file", "path", f.path, "error", err)
		return
	}
	online, ok := ParseStatus(string(data))
	if !ok {
		f.logger.WarnContext(ctx, "unrecognised connectivity status", "path", f.path, "contents", strings.TrimSpace(string(data)))
		return
	}
	f.monitor.Set(online)
}
