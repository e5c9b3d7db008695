// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/ and app/.
package ports

import (
	"io"

	"github.com/artpar/wakeacct/domain/wakelock"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts monotonic uptime for testability.
type Clock interface {
	// UptimeMillis returns milliseconds of monotonic time since boot.
	UptimeMillis() int64
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Accounting Ports
// -----------------------------------------------------------------------------

// Tracker is the dispatcher-facing side of wakelock accounting.
// None of these calls fail; anomalies are logged and observed.
type Tracker interface {
	// StartTracking records a new outstanding request for clientID.
	// outstanding is the number of requests now outstanding on the wakelock.
	StartTracking(clientID string, kind, token, outstanding int, nowMs int64)

	// StopTracking completes the matching outstanding request.
	StopTracking(clientID string, kind, token, outstanding int, nowMs int64)

	// StopTrackingAll completes every outstanding request of every client.
	StopTrackingAll(nowMs int64)

	// IsClientActive reports whether clientID has outstanding requests.
	IsClientActive(clientID string) bool
}

// StatsSource is the statistics-consumer side of wakelock accounting.
type StatsSource interface {
	// AllClientStats returns one snapshot per known client.
	AllClientStats() []wakelock.ClientStats

	// ClientStats returns the snapshot for one client.
	ClientStats(clientID string) wakelock.ClientStats

	// Report returns an identified snapshot of every known client.
	Report() wakelock.Report

	// Dump writes a human-readable description of all accounting state.
	Dump(w io.Writer) error
}

// AccountingObserver receives accounting events, typically for metrics.
// Implementations must be safe for concurrent use and must not block.
type AccountingObserver interface {
	RequestStarted(clientID string, kind int)
	RequestCompleted(clientID string, kind int, attributedMs int64)
	UnmatchedStop(clientID string, kind int)
	DuplicateStart(clientID string, kind int)
	InvalidConcurrency(level int)
	ActiveClients(n int)
}

// NopObserver discards all accounting events.
type NopObserver struct{}

func (NopObserver) RequestStarted(string, int)          {}
func (NopObserver) RequestCompleted(string, int, int64) {}
func (NopObserver) UnmatchedStop(string, int)           {}
func (NopObserver) DuplicateStart(string, int)          {}
func (NopObserver) InvalidConcurrency(int)              {}
func (NopObserver) ActiveClients(int)                   {}
