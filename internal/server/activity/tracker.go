// Package activity tracks recent client requests so that background work can
// be gated on whether anyone is using the service.
package activity

import (
	"sync"
	"time"
)

const DefaultThreshold = 30 * time.Minute

// Tracker is safe for concurrent use. The zero value is not usable; call
// NewTracker.
type Tracker struct {
	threshold time.Duration
	now       func() time.Time

	mu           sync.Mutex
	lastActivity time.Time
	requests     uint64
}

// Snapshot is a point-in-time view of the tracker.
type Snapshot struct {
	LastActivity time.Time `json:"lastActivity"`
	RequestCount uint64    `json:"requestCount"`
	Active       bool      `json:"active"`
}

// NewTracker returns a tracker with no recorded activity. A non-positive
// threshold means DefaultThreshold.
func NewTracker(threshold time.Duration) *Tracker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Tracker{threshold: threshold, now: time.Now}
}

// Record stamps the current time and increments the request counter.
func (t *Tracker) Record() {
	now := t.now()
	t.mu.Lock()
	t.lastActivity = now
	t.requests++
	t.mu.Unlock()
}

// IsActive reports whether the last recorded activity is younger than the
// threshold. A tracker that never recorded anything is inactive.
func (t *Tracker) IsActive() bool {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeLocked(now)
}

func (t *Tracker) activeLocked(now time.Time) bool {
	if t.lastActivity.IsZero() {
		return false
	}
	return now.Sub(t.lastActivity) < t.threshold
}

func (t *Tracker) Threshold() time.Duration { return t.threshold }

func (t *Tracker) Snapshot() Snapshot {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		LastActivity: t.lastActivity,
		RequestCount: t.requests,
		Active:       t.activeLocked(now),
	}
}
