// Package servicedir maintains the catalog of installed print services. A
// Directory reads one JSON descriptor per file from a directory and keeps
// the catalog current by watching the directory, so service installs and
// removals show up without restarting the spooler.
package servicedir

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/spoolworks/printspool-go/print"
)

// Directory is a live view of the service descriptors under one directory.
// Construct with New; methods are safe for concurrent use.
type Directory struct {
	log  *slog.Logger
	root string

	mu       sync.RWMutex
	services map[string]print.ServiceInfo

	watching atomic.Bool
}

// Option customizes a Directory.
type Option func(*Directory)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(d *Directory) { d.log = log }
}

// New loads the catalog from root. The directory must exist; an empty
// directory is a spooler with no installed services.
func New(root string, opts ...Option) (*Directory, error) {
	d := &Directory{root: root, services: make(map[string]print.ServiceInfo)}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	fi, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("service directory: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("service directory: %s is not a directory", root)
	}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload rescans the directory now. Unreadable or malformed descriptors are
// skipped with a warning; they never fail the whole catalog.
func (d *Directory) Reload() error {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return fmt.Errorf("read service directory: %w", err)
	}

	next := make(map[string]print.ServiceInfo)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(d.root, e.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			d.log.Warn("servicedir.read_failed", slog.String("file", path), slog.String("err", err.Error()))
			continue
		}
		var info print.ServiceInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			d.log.Warn("servicedir.parse_failed", slog.String("file", path), slog.String("err", err.Error()))
			continue
		}
		if info.ID == "" {
			d.log.Warn("servicedir.missing_id", slog.String("file", path))
			continue
		}
		next[info.ID] = info
	}

	d.mu.Lock()
	d.services = next
	d.mu.Unlock()
	return nil
}

// Services returns the current catalog sorted by service ID.
func (d *Directory) Services() []print.ServiceInfo {
	d.mu.RLock()
	out := make([]print.ServiceInfo, 0, len(d.services))
	for _, s := range d.services {
		out = append(out, s)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Lookup returns one service by ID.
func (d *Directory) Lookup(id string) (print.ServiceInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.services[id]
	return s, ok
}

// Watch blocks, reloading the catalog whenever descriptor files change,
// until ctx is cancelled. Only one Watch runs per Directory; extra calls
// return immediately.
func (d *Directory) Watch(ctx context.Context) error {
	if !d.watching.CompareAndSwap(false, true) {
		return nil
	}
	defer d.watching.Store(false)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch service directory: %w", err)
	}
	defer w.Close()
	if err := w.Add(d.root); err != nil {
		return fmt.Errorf("watch service directory: %w", err)
	}

	// Normalize state in case files changed between New and Watch.
	if err := d.Reload(); err != nil {
		d.log.Warn("servicedir.reload_failed", slog.String("err", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, ".json") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := d.Reload(); err != nil {
				d.log.Warn("servicedir.reload_failed", slog.String("err", err.Error()))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			d.log.Debug("servicedir.watch_error", slog.String("err", err.Error()))
		}
	}
}
