// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ratelimit implements fixed-window admission control keyed by
// client identifier.
//
// The limiter protects a downstream API with a published rate ceiling: its
// configured limit must stay at or below that ceiling, because exceeding it
// risks the whole service being blocked upstream. State lives entirely in
// process memory; nothing is persisted.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

const (
	// DefaultLimit is the default number of requests admitted per window,
	// matching the published trade API ceiling of 45 requests per minute.
	DefaultLimit = 45

	// DefaultWindow is the default admission window.
	DefaultWindow = time.Minute
)

// Decision is the outcome of one admission check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Remaining is the number of requests left in the current window.
	// Only meaningful when Allowed is true.
	Remaining int

	// RetryAfter is how long until the window resets, rounded up to whole
	// seconds, never less than one second. Only meaningful when Allowed is
	// false.
	RetryAfter time.Duration
}

// RetryAfterSeconds returns RetryAfter as whole seconds for wire use.
func (d Decision) RetryAfterSeconds() int {
	return int(d.RetryAfter / time.Second)
}

// entry tracks one client key's current window.
type entry struct {
	windowStart time.Time
	count       int
}

// Limiter is a fixed-window counter keyed by client identifier.
//
// All state changes happen under one lock acquisition per Admit call, so two
// concurrent requests can never both observe a stale count and slip past the
// limit. The lock is never held across I/O.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry

	limit  int
	window time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Limiter admitting at most limit requests per window per key.
func New(limit int, window time.Duration) *Limiter {
	l := &Limiter{
		entries: make(map[string]*entry),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}

	go l.cleanup()

	return l
}

// Admit records one request for the given client key and decides whether it
// may proceed. The count is charged before the decision and is never rolled
// back: a request that is later cancelled has still spent its admission.
func (l *Limiter) Admit(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	e, ok := l.entries[key]
	if !ok || now.Sub(e.windowStart) >= l.window {
		// New key, or the previous window elapsed: start a fresh window.
		e = &entry{windowStart: now}
		l.entries[key] = e
	}

	e.count++

	if e.count > l.limit {
		remaining := e.windowStart.Add(l.window).Sub(now)
		secs := math.Ceil(remaining.Seconds())
		if secs < 1 {
			secs = 1
		}
		return Decision{
			Allowed:    false,
			RetryAfter: time.Duration(secs) * time.Second,
		}
	}

	return Decision{
		Allowed:   true,
		Remaining: l.limit - e.count,
	}
}

// Limit returns the configured per-window maximum.
func (l *Limiter) Limit() int {
	return l.limit
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// cleanup periodically evicts keys whose window has long elapsed, so idle
// clients do not grow the map forever.
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		now := l.now()
		for key, e := range l.entries {
			if now.Sub(e.windowStart) >= l.window {
				delete(l.entries, key)
			}
		}
		l.mu.Unlock()
	}
}
