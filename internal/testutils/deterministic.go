// Package testutils provides deterministic generators and utility functions for Minerva testing.
// These utilities ensure consistent test output while maintaining production format compatibility.
package testutils

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"minerva/pkg/minervatypes"

	"github.com/google/uuid"
)

var (
	// Thread-safe counter for deterministic ID generation
	idCounter uint64
	idMutex   sync.Mutex

	// Thread-safe counter for deterministic timestamp generation
	timeCounter int64
	timeMutex   sync.Mutex
)

// testEpochMillis is the fixed millisecond timestamp embedded in
// deterministic conversation and project IDs (2025-01-01T00:00:00Z).
const testEpochMillis = 1735689600000

// GenerateUUID generates a UUID that is deterministic in test mode but random in production.
// In test mode, returns UUIDs in format: 00000001-0000-4000-8000-000000000001, etc.
func GenerateUUID(ctx minervatypes.Context) string {
	if ctx.IsTestMode() {
		n := nextID()
		return fmt.Sprintf("%08x-0000-4000-8000-%012x", n, n)
	}
	return uuid.New().String()
}

// GenerateConversationID generates a timestamp-derived conversation id.
// Production format: conv_<unix_millis>_<8 hex chars>. Test mode substitutes
// the fixed test epoch and a counter so ids sort and compare deterministically.
func GenerateConversationID(ctx minervatypes.Context) string {
	if ctx.IsTestMode() {
		return fmt.Sprintf("conv_%d_%08d", testEpochMillis, nextID())
	}
	return fmt.Sprintf("conv_%d_%s", time.Now().UnixMilli(), shortToken())
}

// GenerateProjectID generates a timestamp-derived project id, same scheme as
// conversation ids with a proj_ prefix.
func GenerateProjectID(ctx minervatypes.Context) string {
	if ctx.IsTestMode() {
		return fmt.Sprintf("proj_%d_%08d", testEpochMillis, nextID())
	}
	return fmt.Sprintf("proj_%d_%s", time.Now().UnixMilli(), shortToken())
}

// GetCurrentTime returns the current time, deterministic in test mode but real in production.
// In test mode, returns incrementing time starting from 2025-01-01T00:00:00Z so
// that successive calls sort correctly.
func GetCurrentTime(ctx minervatypes.Context) time.Time {
	if ctx.IsTestMode() {
		timeMutex.Lock()
		defer timeMutex.Unlock()
		timeCounter++
		baseTime := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		return baseTime.Add(time.Duration(timeCounter) * time.Second)
	}
	return time.Now()
}

// shortToken returns the first 8 hex characters of a random UUID.
func shortToken() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

func nextID() uint64 {
	idMutex.Lock()
	defer idMutex.Unlock()
	idCounter++
	return idCounter
}

// ResetTestCounters resets the deterministic counters for testing.
// This should only be called from test code to ensure consistent test runs.
func ResetTestCounters() {
	idMutex.Lock()
	timeMutex.Lock()
	defer idMutex.Unlock()
	defer timeMutex.Unlock()

	idCounter = 0
	timeCounter = 0
}
