// Package ratelimit backs the advisory outbound bandwidth throttle from
// spec §6 (set_bandwidth_throttle). Each category gets its own token
// bucket sized in bytes, which is the shape golang.org/x/time/rate was
// built for — a better fit than the teacher's hand-rolled sliding-window
// counters (internal/ws/client.go, allowCommandRateLimit), which only ever
// needed to count events, not shape a byte budget.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Category names an outbound method class a host can throttle
// independently, mirroring the original SDK's throttle_* enum
// (original_source/Tests/Tests.cpp: throttle_participant_leave, throttle_input).
type Category string

const (
	CategoryInput             Category = "input"
	CategoryParticipantUpdate Category = "participant_update"
	CategoryParticipantLeave  Category = "participant_leave"
)

// Table holds one limiter per category. A category with no configured
// limiter is unthrottled (AllowN always returns true).
type Table struct {
	mu       sync.Mutex
	limiters map[Category]*rate.Limiter
}

// NewTable builds an empty, fully-unthrottled Table.
func NewTable() *Table {
	return &Table{limiters: make(map[Category]*rate.Limiter)}
}

// Set configures category with a token bucket of maxBytes capacity,
// refilling at bytesPerSec. maxBytes<=0 clears any existing limiter for the
// category (unthrottled), mirroring interactive_set_bandwidth_throttle(...,
// 0, 0) in the original SDK.
func (t *Table) Set(category Category, maxBytes int, bytesPerSec float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if maxBytes <= 0 {
		delete(t.limiters, category)
		return
	}
	t.limiters[category] = rate.NewLimiter(rate.Limit(bytesPerSec), maxBytes)
}

// AllowN reports whether n bytes may be sent now for category, consuming
// from its bucket if so. Categories with no configured limiter always
// allow.
func (t *Table) AllowN(category Category, n int) bool {
	t.mu.Lock()
	limiter, ok := t.limiters[category]
	t.mu.Unlock()
	if !ok {
		return true
	}
	return limiter.AllowN(timeNow(), n)
}

// timeNow is a seam so tests can swap in a deterministic clock if needed;
// production always uses wall-clock time.
var timeNow = defaultNow
