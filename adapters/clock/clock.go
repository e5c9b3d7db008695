// Package clock provides Clock implementations.
package clock

import (
	"sync"
	"time"

	"github.com/artpar/wakeacct/ports"
)

// Real reports monotonic milliseconds elapsed since it was created.
type Real struct {
	start time.Time
}

// NewReal creates a clock anchored at the current monotonic instant.
func NewReal() *Real {
	return &Real{start: time.Now()}
}

// UptimeMillis returns milliseconds since the clock was created.
func (r *Real) UptimeMillis() int64 {
	return time.Since(r.start).Milliseconds()
}

// Fake provides a controllable clock for testing.
type Fake struct {
	mu      sync.RWMutex
	current int64
}

// NewFake creates a fake clock set to ms.
func NewFake(ms int64) *Fake {
	return &Fake{current: ms}
}

// UptimeMillis returns the fake current time.
func (f *Fake) UptimeMillis() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Set sets the fake current time.
func (f *Fake) Set(ms int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = ms
}

// Advance moves the fake time forward by d, truncated to milliseconds.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current += d.Milliseconds()
}

// Ensure interface compliance.
var (
	_ ports.Clock = (*Real)(nil)
	_ ports.Clock = (*Fake)(nil)
)
