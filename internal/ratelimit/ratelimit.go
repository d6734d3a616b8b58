// Package ratelimit bounds call frequency per (server, tool) key using
// fixed windows.
//
// Each key gets an independent window; admission is a single
// increment-and-check under one mutex so the background sweep can
// never race a concurrent increment. The sweep runs on its own
// interval regardless of traffic, which keeps the key map bounded
// even under bursty, then-idle load.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultLimit         = 50
	DefaultWindow        = 10 * time.Second
	DefaultSweepInterval = 5 * time.Minute
)

// Error reports a rejected call. Not a fault: it carries the duration
// after which the key's next window opens.
type Error struct {
	Key        string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Key, e.RetryAfter)
}

// Config configures a Limiter. Zero values fall back to the defaults.
type Config struct {
	Limit         int
	Window        time.Duration
	SweepInterval time.Duration
}

type window struct {
	start time.Time
	count int
}

// Limiter admits up to Limit calls per key per Window.
type Limiter struct {
	limit  int
	window time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	windows map[string]*window

	done     chan struct{}
	stopOnce sync.Once

	// now is swappable in tests.
	now func() time.Time
}

// New creates a Limiter and starts its background sweep. Call Stop to
// release the sweep goroutine.
func New(cfg Config, logger *zap.Logger) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Limiter{
		limit:   cfg.Limit,
		window:  cfg.Window,
		logger:  logger.Named("ratelimit"),
		windows: make(map[string]*window),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go l.sweepLoop(cfg.SweepInterval)
	return l
}

// Allow admits or rejects one call for key. Returns nil on admission
// or *Error carrying the retry-after duration.
func (l *Limiter) Allow(key string) error {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[key]
	if w == nil || now.Sub(w.start) >= l.window {
		l.windows[key] = &window{start: now, count: 1}
		return nil
	}

	w.count++
	if w.count > l.limit {
		return &Error{Key: key, RetryAfter: w.start.Add(l.window).Sub(now)}
	}
	return nil
}

// Len reports the number of tracked keys. Probe for tests and
// telemetry.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Stop halts the background sweep. Safe to call multiple times.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
}

func (l *Limiter) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep(l.now())
		case <-l.done:
			return
		}
	}
}

// sweep removes windows whose start has aged out of the rate window.
func (l *Limiter) sweep(now time.Time) {
	l.mu.Lock()
	removed := 0
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.window {
			delete(l.windows, key)
			removed++
		}
	}
	remaining := len(l.windows)
	l.mu.Unlock()

	if removed > 0 {
		l.logger.Debug("swept stale rate limit windows",
			zap.Int("removed", removed),
			zap.Int("remaining", remaining),
		)
	}
}
