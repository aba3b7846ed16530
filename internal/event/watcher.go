package event

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/murachan/murachan/internal/blob"
	"github.com/murachan/murachan/internal/log"
)

const (
	// DefaultRetryDelay is how long a retried notification waits before
	// redelivery.
	DefaultRetryDelay = 5 * time.Second

	// DefaultMaxAttempts bounds redelivery of one notification. After
	// this many failed attempts the notification is dropped; a later
	// manual sync reconciles the index.
	DefaultMaxAttempts = 3
)

// WatcherConfig tunes the local delivery loop. Zero values take defaults.
type WatcherConfig struct {
	RetryDelay  time.Duration
	MaxAttempts int
}

func (c WatcherConfig) withDefaults() WatcherConfig {
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// Watcher turns filesystem changes under a Dir bucket into notifications
// and delivers them to a Handler, emulating at-least-once delivery locally:
// a Retry disposition requeues the notification with a delay, up to a
// bounded attempt count.
//
// A file write may surface as separate create and write events; both map to
// a create-type notification, and handling is idempotent, so the duplicate
// work is wasted effort at worst.
type Watcher struct {
	dir     *blob.Dir
	handler Handler
	cfg     WatcherConfig
	logger  log.Logger

	fsw     *fsnotify.Watcher
	retries []attempt
}

type attempt struct {
	notification Notification
	tries        int
	next         time.Time
}

// NewWatcher creates a watcher over the bucket directory. Call Run to start
// delivering; Close releases the underlying filesystem watches.
func NewWatcher(dir *blob.Dir, handler Handler, cfg WatcherConfig, logger log.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNop()
	}
	w := &Watcher{
		dir:     dir,
		handler: handler,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		fsw:     fsw,
	}
	if err := w.addRecursive(dir.Root()); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Close stops watching. Safe to call after Run returns.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run delivers notifications until the context is canceled or the watcher
// is closed. It owns the retry queue; do not call from more than one
// goroutine.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.RetryDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFsEvent(ctx, ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watch error", "error", err)

		case now := <-ticker.C:
			w.flushRetries(ctx, now)
		}
	}
}

// handleFsEvent translates one fsnotify event and dispatches it.
func (w *Watcher) handleFsEvent(ctx context.Context, ev fsnotify.Event) {
	if ev.Op.Has(fsnotify.Create) {
		// New directories need their own watches; their contents arrive
		// as further create events.
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				w.logger.Warn("watching new directory failed", "path", ev.Name, "error", err)
			}
			return
		}
	}

	n, ok := w.notificationFor(ev)
	if !ok {
		return
	}
	w.dispatch(ctx, n, 1)
}

// notificationFor maps a filesystem event onto a storage notification.
func (w *Watcher) notificationFor(ev fsnotify.Event) (Notification, bool) {
	rel, err := filepath.Rel(w.dir.Root(), ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return Notification{}, false
	}
	key := filepath.ToSlash(rel)
	if strings.HasPrefix(filepath.Base(key), ".") {
		return Notification{}, false
	}

	switch {
	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		obj := Object{Key: key}
		if info, err := os.Stat(ev.Name); err == nil {
			obj.Size = info.Size()
		}
		return Notification{Action: ActionPutObject, Object: obj}, true

	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		// A rename away from the bucket is a deletion for this key; if
		// the file moved within the bucket, its new path raises its own
		// create event.
		return Notification{Action: ActionDeleteObject, Object: Object{Key: key}}, true
	}
	return Notification{}, false
}

// dispatch runs the handler and requeues on Retry until the attempt budget
// is spent.
func (w *Watcher) dispatch(ctx context.Context, n Notification, tries int) {
	if w.handler.Handle(ctx, n) == Ack {
		return
	}
	if tries >= w.cfg.MaxAttempts {
		w.logger.Error("dropping notification after max attempts",
			"notification", n.String(), "attempts", tries)
		return
	}
	w.retries = append(w.retries, attempt{
		notification: n,
		tries:        tries,
		next:         time.Now().Add(w.cfg.RetryDelay),
	})
}

// flushRetries redelivers every due retry.
func (w *Watcher) flushRetries(ctx context.Context, now time.Time) {
	due := w.retries
	w.retries = nil
	for _, a := range due {
		if a.next.After(now) {
			w.retries = append(w.retries, a)
			continue
		}
		w.logger.Debug("redelivering notification",
			"notification", a.notification.String(), "attempt", a.tries+1)
		w.dispatch(ctx, a.notification, a.tries+1)
	}
}

// addRecursive watches a directory tree, skipping hidden directories.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(entry.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}
