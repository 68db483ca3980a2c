package sync

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rjeczalik/notify"

	"github.com/savebox/savebox/internal/utils"
	"github.com/savebox/savebox/internal/vault"
)

const (
	DefaultSuppressTimeout = 2 * time.Second
	defaultCleanupInterval = 15 * time.Second
	eventBufferSize        = 64
	defaultDebounceTimeout = 50 * time.Millisecond
)

// WatchRoot ties a filesystem subtree to the save it belongs to.
type WatchRoot struct {
	Save      string
	WatchPath string // what notify watches
	MatchPath string // non-empty: only this exact path belongs to the save
	Recursive bool
}

// RootsForSaves derives watch roots from registry entries. Directory saves
// watch their own tree; file saves watch the parent directory and match the
// exact file, since most games replace save files wholesale.
func RootsForSaves(saves []vault.Save) []WatchRoot {
	roots := make([]WatchRoot, 0, len(saves))
	for _, save := range saves {
		loc := strings.TrimSuffix(save.Location, string(os.PathSeparator))
		if save.IsDir() {
			roots = append(roots, WatchRoot{Save: save.Name, WatchPath: loc, Recursive: true})
		} else {
			roots = append(roots, WatchRoot{Save: save.Name, WatchPath: filepath.Dir(loc), MatchPath: loc})
		}
	}
	return roots
}

// SaveWatcher turns raw filesystem events under registered save locations
// into debounced dirty notifications, one save name per burst of writes.
type SaveWatcher struct {
	roots     []WatchRoot
	ignore    *IgnoreList
	events    chan string
	rawEvents chan notify.EventInfo

	suppress        map[string]time.Time
	suppressMu      sync.RWMutex
	cleanupInterval time.Duration

	done chan struct{}
	wg   sync.WaitGroup

	// Debouncing fields
	pendingSaves    map[string]struct{}
	eventTimers     map[string]*time.Timer
	debounceMu      sync.Mutex
	debounceTimeout time.Duration
}

func NewSaveWatcher(roots []WatchRoot, ignore *IgnoreList) *SaveWatcher {
	return &SaveWatcher{
		roots:           roots,
		ignore:          ignore,
		suppress:        make(map[string]time.Time),
		cleanupInterval: defaultCleanupInterval,
		done:            make(chan struct{}),
		pendingSaves:    make(map[string]struct{}),
		eventTimers:     make(map[string]*time.Timer),
		debounceTimeout: defaultDebounceTimeout,
	}
}

func (w *SaveWatcher) SetCleanupInterval(interval time.Duration) {
	w.cleanupInterval = interval
}

// SetDebounceTimeout sets how long a save must stay quiet before its dirty
// notification fires.
func (w *SaveWatcher) SetDebounceTimeout(timeout time.Duration) {
	w.debounceTimeout = timeout
}

// Start registers the watch roots and begins filtering events. Roots that
// cannot be watched, typically saves whose location is gone, are skipped
// with a warning.
func (w *SaveWatcher) Start(ctx context.Context) error {
	slog.Info("save watcher start", "roots", len(w.roots))

	w.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	w.events = make(chan string, eventBufferSize)

	watched := 0
	for _, root := range w.roots {
		target := root.WatchPath
		if root.Recursive {
			target = root.WatchPath + "/..."
		}
		if err := notify.Watch(target, w.rawEvents, notify.Write, notify.Create, notify.Remove, notify.Rename); err != nil {
			slog.Warn("save watcher cannot watch", "save", root.Save, "path", root.WatchPath, "error", err)
			continue
		}
		watched++
	}
	slog.Debug("save watcher watching", "watched", watched, "skipped", len(w.roots)-watched)

	w.wg.Add(1)
	go w.filterEvents(ctx)

	w.wg.Add(1)
	go w.cleanupExpiredEntries(ctx)

	return nil
}

func (w *SaveWatcher) Stop() {
	slog.Info("save watcher stopping")

	close(w.done)

	if w.rawEvents != nil {
		notify.Stop(w.rawEvents)
	}

	w.wg.Wait()

	slog.Info("save watcher stopped")
}

// Events yields names of saves whose location changed on disk.
func (w *SaveWatcher) Events() <-chan string {
	return w.events
}

// SuppressFor swallows events for a save for the given window. Pull calls
// this before rewriting a location so its own writes do not read as dirty.
func (w *SaveWatcher) SuppressFor(save string, timeout time.Duration) {
	w.suppressMu.Lock()
	defer w.suppressMu.Unlock()
	w.suppress[save] = time.Now().Add(timeout)
}

func (w *SaveWatcher) isSuppressed(save string) bool {
	w.suppressMu.Lock()
	defer w.suppressMu.Unlock()

	expiry, exists := w.suppress[save]
	if !exists {
		return false
	}
	if time.Now().After(expiry) {
		delete(w.suppress, save)
		return false
	}
	return true
}

// classify maps an event path to its owning save and the path relative to
// the watch root, which is what the ignore rules match against.
func (w *SaveWatcher) classify(path string) (save string, rel string, ok bool) {
	sep := string(os.PathSeparator)
	for _, root := range w.roots {
		if root.MatchPath != "" {
			if path == root.MatchPath {
				return root.Save, filepath.Base(path), true
			}
			continue
		}
		if path == root.WatchPath {
			return root.Save, ".", true
		}
		if utils.PathContains(root.WatchPath+sep, path) {
			return root.Save, strings.TrimPrefix(path, root.WatchPath+sep), true
		}
	}
	return "", "", false
}

// filterEvents maps raw events to saves, drops ignored paths and debounces
// the rest.
func (w *SaveWatcher) filterEvents(ctx context.Context) {
	defer func() {
		slog.Debug("save watcher filter events done")

		// Cancel pending timers and flush pending saves
		w.debounceMu.Lock()
		for save, timer := range w.eventTimers {
			timer.Stop()
			if _, exists := w.pendingSaves[save]; exists {
				select {
				case w.events <- save:
					slog.Debug("save watcher flushing pending save on exit", "save", save)
				default:
					slog.Warn("save watcher channel full during exit, dropping", "save", save)
				}
			}
		}
		// a timer that already fired is parked on the mutex; emptied maps
		// make its flush a no-op instead of a send on the closed channel
		clear(w.pendingSaves)
		clear(w.eventTimers)
		w.debounceMu.Unlock()

		w.wg.Done()
		close(w.events)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.rawEvents:
			if !ok {
				return
			}

			save, rel, ok := w.classify(event.Path())
			if !ok {
				continue
			}
			if w.ignore != nil && w.ignore.ShouldIgnore(rel) {
				continue
			}

			// Writes arrive in bursts while the game flushes a save, so
			// collapse them per save before notifying.
			w.debounceEvent(save)
		}
	}
}

func (w *SaveWatcher) debounceEvent(save string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, exists := w.eventTimers[save]; exists {
		timer.Stop()
		delete(w.eventTimers, save)
	}

	w.pendingSaves[save] = struct{}{}

	timer := time.AfterFunc(w.debounceTimeout, func() {
		w.flushEvent(save)
	})
	w.eventTimers[save] = timer
}

// flushEvent emits the pending notification for a save, unless the save is
// currently suppressed.
func (w *SaveWatcher) flushEvent(save string) {
	w.debounceMu.Lock()
	_, exists := w.pendingSaves[save]
	if !exists {
		w.debounceMu.Unlock()
		return
	}
	delete(w.pendingSaves, save)
	delete(w.eventTimers, save)
	w.debounceMu.Unlock()

	if w.isSuppressed(save) {
		return
	}

	select {
	case w.events <- save:
		slog.Debug("save watcher dirty", "save", save)
	default:
		slog.Warn("save watcher dropped", "reason", "channel full", "save", save)
	}
}

// cleanupExpiredEntries periodically sweeps expired suppressions.
func (w *SaveWatcher) cleanupExpiredEntries(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			w.suppressMu.Lock()
			now := time.Now()
			for save, expiry := range w.suppress {
				if now.After(expiry) {
					delete(w.suppress, save)
				}
			}
			w.suppressMu.Unlock()
		}
	}
}
