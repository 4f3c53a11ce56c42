package services

import (
	"sync"

	"minerva/internal/store"
	"minerva/pkg/minervatypes"
)

// WorkingSet is the mutable in-memory copy of the store document shared by
// the conversation and project repositories. Repositories mutate it and
// persist explicitly; the autosaver flushes it periodically as a safety net.
// No mutation is durable until one of those two happens.
//
// A single coarse mutex serializes repository operations against the
// autosave flush; contention is negligible at this scale.
type WorkingSet struct {
	mu    sync.Mutex
	doc   *minervatypes.StoreDocument
	store *store.Store
}

// NewWorkingSet loads the persisted document into a fresh working set.
func NewWorkingSet(st *store.Store) *WorkingSet {
	return &WorkingSet{
		doc:   st.Load(),
		store: st,
	}
}

// Doc returns the underlying document. Intended for read-only inspection in
// tests and renderers; repositories go through their own methods.
func (w *WorkingSet) Doc() *minervatypes.StoreDocument {
	return w.doc
}

// Flush persists the current working set. Used by the autosaver.
func (w *WorkingSet) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.persistLocked()
}

// Reload replaces the working set with the on-disk document. Called when the
// watcher reports an external write; in-memory changes not yet persisted are
// discarded (last-write-wins).
func (w *WorkingSet) Reload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.doc = w.store.Load()
}

func (w *WorkingSet) lock() {
	w.mu.Lock()
}

func (w *WorkingSet) unlock() {
	w.mu.Unlock()
}

// persistLocked saves the document. Callers must hold the mutex.
func (w *WorkingSet) persistLocked() error {
	return w.store.Save(w.doc)
}
