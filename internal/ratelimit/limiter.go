package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a per-user sliding-window counter.
type Limiter struct {
	mu          sync.Mutex
	maxMessages int
	window      time.Duration
	now         func() time.Time
	sent        map[string][]time.Time
}

// New builds a Limiter allowing maxMessages per window.
func New(maxMessages int, window time.Duration) *Limiter {
	return NewWithClock(maxMessages, window, time.Now)
}

// NewWithClock builds a Limiter reading time from now.
func NewWithClock(maxMessages int, window time.Duration, now func() time.Time) *Limiter {
	if maxMessages < 1 {
		maxMessages = 1
	}
	if window <= 0 {
		window = time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		maxMessages: maxMessages,
		window:      window,
		now:         now,
		sent:        make(map[string][]time.Time),
	}
}

// CheckLimit records a send for userID and reports whether it fits in the window.
// Rejected calls are not recorded.
func (l *Limiter) CheckLimit(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.prune(userID, now)
	if len(kept) >= l.maxMessages {
		return false
	}
	l.sent[userID] = append(kept, now)
	return true
}

// MessageCount returns the number of sends still inside the window.
func (l *Limiter) MessageCount(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(userID, l.now()))
}

// Reset clears the given users' windows, or every window when called without arguments.
func (l *Limiter) Reset(userIDs ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(userIDs) == 0 {
		l.sent = make(map[string][]time.Time)
		return
	}
	for _, id := range userIDs {
		delete(l.sent, id)
	}
}

// prune drops timestamps at or before now-window. Caller holds l.mu.
func (l *Limiter) prune(userID string, now time.Time) []time.Time {
	events, ok := l.sent[userID]
	if !ok {
		return nil
	}
	cutoff := now.Add(-l.window)
	kept := events[:0]
	for _, ts := range events {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(l.sent, userID)
		return nil
	}
	l.sent[userID] = kept
	return kept
}
