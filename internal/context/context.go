// Package context provides the runtime context shared by Minerva services.
// The context carries process-wide mode flags; all other state is owned by
// the store document and passed to services explicitly.
package context

import "sync"

// AppContext implements minervatypes.Context. It is constructed once in main
// (or per test) and handed to services that need mode information, rather
// than living in a global namespace.
type AppContext struct {
	mu       sync.RWMutex
	testMode bool
}

// New creates a new AppContext with test mode disabled.
func New() *AppContext {
	return &AppContext{}
}

// SetTestMode enables or disables deterministic test mode.
func (c *AppContext) SetTestMode(testMode bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.testMode = testMode
}

// IsTestMode reports whether deterministic test mode is enabled.
func (c *AppContext) IsTestMode() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.testMode
}
