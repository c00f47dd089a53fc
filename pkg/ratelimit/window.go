// Package ratelimit provides a fixed-window request limiter keyed by client
// address. It protects the widget refresh endpoint from being hammered, so
// the accounting favors simplicity over smoothness: each client gets a
// counter that resets when its window expires.
package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Default limiter values, used when no spec is configured or the configured
// spec does not parse.
const (
	DefaultLimit  = 10
	DefaultWindow = 60 * time.Second
)

// maxTrackedClients is the bucket count above which stale entries are swept
// on the next check.
const maxTrackedClients = 1000

// Spec is a parsed rate-limit configuration: at most Limit requests per
// client per Window.
type Spec struct {
	Limit  int
	Window time.Duration
}

// DefaultSpec returns the fallback limiter configuration.
func DefaultSpec() Spec {
	return Spec{Limit: DefaultLimit, Window: DefaultWindow}
}

// ParseSpec parses a "<count>/<window>" limiter spec, e.g. "10/60s" or
// "5/1m". The window unit must be seconds or minutes.
func ParseSpec(s string) (Spec, error) {
	countPart, windowPart, ok := strings.Cut(s, "/")
	if !ok {
		return Spec{}, fmt.Errorf("rate limit spec %q: want <count>/<window>", s)
	}

	count, err := strconv.Atoi(countPart)
	if err != nil || count <= 0 {
		return Spec{}, fmt.Errorf("rate limit spec %q: count must be a positive integer", s)
	}

	var unit time.Duration
	var numPart string
	switch {
	case strings.HasSuffix(windowPart, "s"):
		unit = time.Second
		numPart = strings.TrimSuffix(windowPart, "s")
	case strings.HasSuffix(windowPart, "m"):
		unit = time.Minute
		numPart = strings.TrimSuffix(windowPart, "m")
	default:
		return Spec{}, fmt.Errorf("rate limit spec %q: window must end in s or m", s)
	}

	n, err := strconv.Atoi(numPart)
	if err != nil || n <= 0 {
		return Spec{}, fmt.Errorf("rate limit spec %q: window must be a positive integer duration", s)
	}

	return Spec{Limit: count, Window: time.Duration(n) * unit}, nil
}

// window is the counter for a single client address.
type window struct {
	start time.Time
	count int
}

// FixedWindow is a per-client fixed-window limiter. All state sits behind one
// mutex; the expected client population is tiny (operators and deploy hooks
// hitting an admin endpoint), so contention is not a concern.
type FixedWindow struct {
	limit  int
	span   time.Duration
	mu     sync.Mutex
	active map[string]*window
}

// NewFixedWindow creates a limiter from the given spec. Non-positive values
// fall back to the defaults.
func NewFixedWindow(spec Spec) *FixedWindow {
	if spec.Limit <= 0 {
		spec.Limit = DefaultLimit
	}
	if spec.Window <= 0 {
		spec.Window = DefaultWindow
	}
	return &FixedWindow{
		limit:  spec.Limit,
		span:   spec.Window,
		active: make(map[string]*window),
	}
}

// Limit returns the maximum requests allowed per window.
func (l *FixedWindow) Limit() int { return l.limit }

// Window returns the window duration.
func (l *FixedWindow) Window() time.Duration { return l.span }

// Allow records a request from addr and reports whether it is within the
// limit. When rejected, retryAfter is the time until the client's window
// resets, never less than one second.
func (l *FixedWindow) Allow(addr string) (ok bool, retryAfter time.Duration) {
	return l.allowAt(addr, time.Now())
}

func (l *FixedWindow) allowAt(addr string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.active) > maxTrackedClients {
		l.sweepLocked(now)
	}

	w, exists := l.active[addr]
	if !exists || now.Sub(w.start) >= l.span {
		l.active[addr] = &window{start: now, count: 1}
		return true, 0
	}

	if w.count < l.limit {
		w.count++
		return true, 0
	}

	retryAfter := l.span - now.Sub(w.start)
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return false, retryAfter
}

// sweepLocked drops entries whose window expired at least one full window
// ago. Caller must hold l.mu.
func (l *FixedWindow) sweepLocked(now time.Time) {
	for addr, w := range l.active {
		if now.Sub(w.start) >= 2*l.span {
			delete(l.active, addr)
		}
	}
}
