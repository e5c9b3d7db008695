// Package wakelock provides the value types used to attribute wakelock hold
// time to the clients whose requests kept the wakelock held.
// Nothing in this package locks or performs I/O; callers serialize access.
package wakelock

import "fmt"

// RequestKey identifies an in-flight request within one client.
type RequestKey struct {
	Kind  int // Command code sent to the radio
	Token int // Correlation token, unique among a client's outstanding requests
}

func (k RequestKey) String() string {
	return fmt.Sprintf("%d/%d", k.Kind, k.Token)
}

// PendingRequest tracks one in-flight wakelock hold and the share of its
// elapsed time charged to the owning client so far.
type PendingRequest struct {
	key                RequestKey
	initialConcurrency int
	concurrency        int
	createdAtMs        int64
	lastUpdatedAtMs    int64
	attributedMs       int64
	completedAtMs      int64
	completed          bool
}

// NewPendingRequest creates a request started at nowMs with the given
// concurrency level. Levels below 1 are treated as 1.
func NewPendingRequest(kind, token, concurrency int, nowMs int64) *PendingRequest {
	level := NormalizeConcurrency(concurrency)
	return &PendingRequest{
		key:                RequestKey{Kind: kind, Token: token},
		initialConcurrency: level,
		concurrency:        level,
		createdAtMs:        nowMs,
		lastUpdatedAtMs:    nowMs,
	}
}

// NormalizeConcurrency clamps a reported concurrency level to at least 1.
// A request is always concurrent with itself.
// This is a PURE function.
func NormalizeConcurrency(level int) int {
	if level < 1 {
		return 1
	}
	return level
}

// FairShare returns the milliseconds of [fromMs, toMs] charged to one of
// level concurrent requests. Negative intervals yield 0 and the division
// truncates.
// This is a PURE function.
func FairShare(fromMs, toMs int64, level int) int64 {
	elapsed := toMs - fromMs
	if elapsed <= 0 {
		return 0
	}
	return elapsed / int64(NormalizeConcurrency(level))
}

// Key returns the request's (kind, token) identity.
func (r *PendingRequest) Key() RequestKey { return r.key }

// Kind returns the command code.
func (r *PendingRequest) Kind() int { return r.key.Kind }

// Token returns the correlation token.
func (r *PendingRequest) Token() int { return r.key.Token }

// Concurrency returns the level currently used as the fair-share divisor.
func (r *PendingRequest) Concurrency() int { return r.concurrency }

// InitialConcurrency returns the level in effect when the request started.
func (r *PendingRequest) InitialConcurrency() int { return r.initialConcurrency }

// CreatedAtMs returns the start timestamp.
func (r *PendingRequest) CreatedAtMs() int64 { return r.createdAtMs }

// LastUpdatedAtMs returns the end of the last attributed interval.
func (r *PendingRequest) LastUpdatedAtMs() int64 { return r.lastUpdatedAtMs }

// IsCompleted reports whether SetResponseTime has been called.
func (r *PendingRequest) IsCompleted() bool { return r.completed }

// CompletedAtMs returns the completion timestamp, or 0 while pending.
func (r *PendingRequest) CompletedAtMs() int64 { return r.completedAtMs }

// UpdateTime closes the interval [lastUpdatedAt, nowMs] at the current
// concurrency level. Timestamps at or before lastUpdatedAt add nothing.
func (r *PendingRequest) UpdateTime(nowMs int64) {
	if r.completed || nowMs <= r.lastUpdatedAtMs {
		return
	}
	r.attributedMs += FairShare(r.lastUpdatedAtMs, nowMs, r.concurrency)
	r.lastUpdatedAtMs = nowMs
}

// UpdateConcurrentRequests attributes time up to nowMs at the old level and
// then switches to level for the time that follows.
func (r *PendingRequest) UpdateConcurrentRequests(level int, nowMs int64) {
	if r.completed {
		return
	}
	r.UpdateTime(nowMs)
	r.concurrency = NormalizeConcurrency(level)
}

// SetResponseTime performs a final UpdateTime and marks the request
// completed. Later calls are ignored.
func (r *PendingRequest) SetResponseTime(nowMs int64) {
	if r.completed {
		return
	}
	r.UpdateTime(nowMs)
	r.completed = true
	r.completedAtMs = nowMs
}

// AttributedTimeMs returns the fair-share milliseconds accumulated so far.
func (r *PendingRequest) AttributedTimeMs() int64 { return r.attributedMs }

// String describes the request for diagnostic dumps.
func (r *PendingRequest) String() string {
	state := "pending"
	if r.completed {
		state = fmt.Sprintf("completed@%d", r.completedAtMs)
	}
	return fmt.Sprintf("PendingRequest{kind=%d, token=%d, initialConcurrency=%d, concurrency=%d, createdAt=%d, lastUpdatedAt=%d, attributedMs=%d, %s}",
		r.key.Kind, r.key.Token, r.initialConcurrency, r.concurrency,
		r.createdAtMs, r.lastUpdatedAtMs, r.attributedMs, state)
}
