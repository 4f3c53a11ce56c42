package store

import (
	"path/filepath"
	"sync"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"minerva/internal/events"
	"minerva/internal/logger"
)

// Watcher watches the store document file for writes made by other processes
// and publishes a store-changed event for each, so open instances converge
// on the latest saved document. Convergence is best-effort: conflicting
// writes remain last-write-wins.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	store       *Store
	bus         *events.Bus
	log         *charmlog.Logger
	lastEvent   time.Time
	debounceDur time.Duration
	pending     *time.Timer
	pendingName string
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewWatcher creates a Watcher over the store's document file.
func NewWatcher(s *Store, bus *events.Bus) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:     fsw,
		store:       s,
		bus:         bus,
		log:         logger.NewStyledLogger("Store"),
		debounceDur: 500 * time.Millisecond, // Collapse rapid save bursts
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching the document's directory. Non-blocking; events are
// dispatched from a goroutine until Stop is called.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Watch the directory, not the file: atomic saves replace the file via
	// rename, which drops a direct file watch on most platforms.
	dir := filepath.Dir(w.store.Path())
	if err := w.watcher.Add(dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}

	go w.loop()
	w.log.Debug("Store watcher started", "dir", dir)
	return nil
}

// Stop terminates the watch loop and releases the underlying watcher. A
// deferred trailing event that has not fired yet is cancelled.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	_ = w.watcher.Close()
}

func (w *Watcher) loop() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("Store watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.store.Path()) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	now := time.Now()
	if now.Sub(w.lastEvent) < w.debounceDur {
		// Inside the debounce window: defer a trailing event rather than
		// dropping it, so the last write of a save burst still surfaces.
		w.pendingName = event.Name
		if w.pending == nil {
			w.pending = time.AfterFunc(w.debounceDur, w.firePending)
		}
		w.mu.Unlock()
		return
	}
	w.lastEvent = now
	w.mu.Unlock()

	w.publish(event.Name, event.Op.String())
}

// firePending publishes the event deferred by the debounce window.
func (w *Watcher) firePending() {
	w.mu.Lock()
	if !w.running || w.pending == nil {
		w.mu.Unlock()
		return
	}
	name := w.pendingName
	w.pending = nil
	w.lastEvent = time.Now()
	w.mu.Unlock()

	w.publish(name, "deferred")
}

func (w *Watcher) publish(name, op string) {
	w.log.Debug("Store document changed on disk", "path", name, "op", op)
	w.bus.Publish(events.TopicStoreChanged, name)
}
