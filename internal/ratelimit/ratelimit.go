// Package ratelimit defines the fixed-window limiter used in front of public
// endpoints. The in-memory store suits a single instance; the Redis store in
// infrastructure/redis shares counters across instances.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration // 0 if allowed
	ResetAt    time.Time     // window end (best-effort)
	Count      int
}

// Limiter decides whether one more request for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type window struct {
	start time.Time
	count int
}

// Memory is a per-process fixed-window counter map.
type Memory struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]*window
	now     func() time.Time

	lastSweep time.Time
}

func NewMemory(limit int, win time.Duration) *Memory {
	if win <= 0 {
		win = time.Minute
	}
	return &Memory{
		limit:   limit,
		window:  win,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// WithClock swaps the time source. Tests only.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Allow(ctx context.Context, key string) (Decision, error) {
	if m.limit <= 0 {
		return Decision{Allowed: true, Limit: m.limit, Remaining: m.limit}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)

	w, ok := m.windows[key]
	if !ok || !now.Before(w.start.Add(m.window)) {
		w = &window{start: now}
		m.windows[key] = w
	}
	w.count++

	resetAt := w.start.Add(m.window)
	d := Decision{
		Allowed:   w.count <= m.limit,
		Limit:     m.limit,
		Remaining: max(0, m.limit-w.count),
		ResetAt:   resetAt,
		Count:     w.count,
	}
	if !d.Allowed {
		d.RetryAfter = resetAt.Sub(now)
	}
	return d, nil
}

// sweep drops elapsed windows at most once per window so the map stays
// bounded by the number of active sources.
func (m *Memory) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < m.window {
		return
	}
	m.lastSweep = now
	for k, w := range m.windows {
		if !now.Before(w.start.Add(m.window)) {
			delete(m.windows, k)
		}
	}
}

// Len reports the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}
