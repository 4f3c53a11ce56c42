package store

import (
	"sync"
	"time"

	"minerva/internal/logger"
)

// Autosaver periodically invokes a flush callback as a durability safety net.
// Repositories persist explicitly after every mutation; the autosaver only
// covers the window where an explicit save failed or was skipped. Flushes are
// fire-and-forget: failures are logged and never block callers.
type Autosaver struct {
	mu       sync.Mutex
	interval time.Duration
	flush    func() error
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// NewAutosaver creates an Autosaver with the given interval and flush
// callback.
func NewAutosaver(interval time.Duration, flush func() error) *Autosaver {
	return &Autosaver{
		interval: interval,
		flush:    flush,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the periodic flush loop. Calling Start twice is a no-op.
func (a *Autosaver) Start() {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return
	}
	a.running = true
	a.mu.Unlock()

	go a.loop()
	logger.Debug("Autosaver started", "interval", a.interval.String())
}

// Stop terminates the flush loop after completing any in-progress flush.
func (a *Autosaver) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.mu.Unlock()

	close(a.stopCh)
	<-a.doneCh
}

func (a *Autosaver) loop() {
	defer close(a.doneCh)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			if err := a.flush(); err != nil {
				logger.Warn("Periodic flush failed", "error", err)
			}
		}
	}
}
