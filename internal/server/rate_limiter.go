package server

import (
	"sync"
	"time"
)

// uploadRateLimiter caps mutating operations per user over a sliding
// window. A nil limiter allows everything, which keeps the call sites
// free of enabled/disabled branching.
type uploadRateLimiter struct {
	mu            sync.Mutex
	entries       map[string]uploadRateLimitEntry
	maxOps        int
	window        time.Duration
	staleAfter    time.Duration
	opCount       int
	cleanupEveryN int
}

type uploadRateLimitEntry struct {
	ops           int
	windowStartAt time.Time
	lastSeenAt    time.Time
}

func newUploadRateLimiter(maxOps int, window time.Duration) *uploadRateLimiter {
	if maxOps <= 0 || window <= 0 {
		return nil
	}
	staleAfter := 2 * window
	if staleAfter < 10*time.Minute {
		staleAfter = 10 * time.Minute
	}
	return &uploadRateLimiter{
		entries:       make(map[string]uploadRateLimitEntry),
		maxOps:        maxOps,
		window:        window,
		staleAfter:    staleAfter,
		cleanupEveryN: 64,
	}
}

// Allow records one operation for key and reports whether it fits inside
// the current window.
func (l *uploadRateLimiter) Allow(key string, now time.Time) bool {
	if l == nil || key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.entries[key]
	if entry.windowStartAt.IsZero() || now.Sub(entry.windowStartAt) > l.window {
		entry.ops = 0
		entry.windowStartAt = now
	}
	entry.ops++
	entry.lastSeenAt = now
	l.entries[key] = entry
	l.maybeCleanupLocked(now)

	return entry.ops <= l.maxOps
}

func (l *uploadRateLimiter) Reset(key string) {
	if l == nil || key == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

func (l *uploadRateLimiter) maybeCleanupLocked(now time.Time) {
	l.opCount++
	if l.cleanupEveryN <= 0 {
		l.cleanupEveryN = 64
	}
	if l.opCount%l.cleanupEveryN != 0 {
		return
	}
	for key, entry := range l.entries {
		if entry.lastSeenAt.IsZero() || now.Sub(entry.lastSeenAt) > l.staleAfter {
			delete(l.entries, key)
		}
	}
}
