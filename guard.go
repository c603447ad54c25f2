package main

import (
	"log"
	"sync"
	"time"
)

// PrintGuard is the advisory mutual-exclusion flag shared between the print
// pipeline and the readiness monitor. While the guard is held the monitor
// skips its poll cycles, so a printer that is busy feeding paper is not
// reported as missing mid-job. The window self-expires as a safety net
// against a release path that never ran; Release is still the primary
// mechanism on every normal path.
type PrintGuard struct {
	mutex     sync.Mutex
	active    bool
	expiresAt time.Time
	now       func() time.Time
}

// NewPrintGuard creates a guard. now may be nil, in which case time.Now is
// used; tests inject a fake clock to simulate expiry deterministically.
func NewPrintGuard(now func() time.Time) *PrintGuard {
	if now == nil {
		now = time.Now
	}
	return &PrintGuard{now: now}
}

// Acquire marks the guard active until now+window. A second Acquire while
// active overwrites the window (last-writer-wins); there is no queueing and
// no blocking, callers that find the guard active skip their work instead
// of waiting.
func (g *PrintGuard) Acquire(window time.Duration) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.active = true
	g.expiresAt = g.now().Add(window)
}

// Release clears the guard immediately.
func (g *PrintGuard) Release() {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.active = false
	g.expiresAt = time.Time{}
}

// Active reports whether the guard is currently held. An expired window is
// treated as released: the first caller to observe it clears the flag and
// logs a warning, since an expiry means a print path never released the
// guard (agent hung or crashed mid-job).
func (g *PrintGuard) Active() bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if !g.active {
		return false
	}
	if g.now().After(g.expiresAt) {
		log.Printf("Print guard expired without release (deadline was %s), clearing", g.expiresAt.Format(time.RFC3339))
		g.active = false
		g.expiresAt = time.Time{}
		return false
	}
	return true
}
