package app

import (
	"fmt"
	"strings"
	"sync"

	"github.com/artpar/wakeacct/domain/wakelock"
	"github.com/artpar/wakeacct/ports"
	"github.com/rs/zerolog"
)

// Accountant owns one client's pending requests and aggregate statistics.
// A single mutex guards both so the pending set and the exposed pending
// count never disagree.
type Accountant struct {
	clientID string
	logger   zerolog.Logger
	observer ports.AccountingObserver

	mu      sync.Mutex
	pending []*wakelock.PendingRequest
	stats   *wakelock.Stats
}

// NewAccountant creates an accountant for clientID.
func NewAccountant(clientID string, cfg wakelock.HistogramConfig, logger zerolog.Logger, observer ports.AccountingObserver) *Accountant {
	if observer == nil {
		observer = ports.NopObserver{}
	}
	return &Accountant{
		clientID: clientID,
		logger:   logger.With().Str("client", clientID).Logger(),
		observer: observer,
		stats:    wakelock.NewStats(clientID, cfg),
	}
}

// ClientID returns the client this accountant charges.
func (a *Accountant) ClientID() string { return a.clientID }

// StartRequest begins attributing wakelock time to a new request.
// A duplicate (kind, token) is logged and ignored.
func (a *Accountant) StartRequest(kind, token, concurrency int, nowMs int64) {
	if concurrency < 1 {
		a.logger.Warn().
			Int("kind", kind).
			Int("token", token).
			Int("concurrency", concurrency).
			Msg("invalid concurrency level on start, using 1")
		a.observer.InvalidConcurrency(concurrency)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := wakelock.RequestKey{Kind: kind, Token: token}
	if a.indexOf(key) >= 0 {
		a.logger.Warn().
			Int("kind", kind).
			Int("token", token).
			Msg("duplicate start for pending request, ignoring")
		a.observer.DuplicateStart(a.clientID, kind)
		return
	}

	a.pending = append(a.pending, wakelock.NewPendingRequest(kind, token, concurrency, nowMs))
	a.stats.SetPending(len(a.pending), a.pendingTimeLocked())
	a.observer.RequestStarted(a.clientID, kind)

	a.logger.Debug().
		Int("kind", kind).
		Int("token", token).
		Int("concurrency", concurrency).
		Int64("at_ms", nowMs).
		Msg("request started")
}

// StopRequest completes the pending request matching (kind, token) and folds
// its attributed time into the aggregate. An unmatched stop is a no-op.
func (a *Accountant) StopRequest(kind, token int, nowMs int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	i := a.indexOf(wakelock.RequestKey{Kind: kind, Token: token})
	if i < 0 {
		a.logger.Warn().
			Int("kind", kind).
			Int("token", token).
			Int64("at_ms", nowMs).
			Msg("stop without matching pending request")
		a.observer.UnmatchedStop(a.clientID, kind)
		return
	}

	req := a.pending[i]
	a.pending = append(a.pending[:i], a.pending[i+1:]...)
	a.completeLocked(req, nowMs)
	a.stats.SetPending(len(a.pending), a.pendingTimeLocked())
}

// StopAllPending completes every pending request at nowMs.
func (a *Accountant) StopAllPending(nowMs int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.pending) == 0 {
		return
	}

	n := len(a.pending)
	for _, req := range a.pending {
		a.completeLocked(req, nowMs)
	}
	a.pending = nil
	a.stats.SetPending(0, 0)

	a.logger.Info().Int("count", n).Int64("at_ms", nowMs).Msg("stopped all pending requests")
}

// OnConcurrencyChanged re-prices every pending request at the new level
// from nowMs forward.
func (a *Accountant) OnConcurrencyChanged(level int, nowMs int64) {
	if level < 1 {
		a.logger.Warn().Int("concurrency", level).Msg("invalid concurrency level, using 1")
		a.observer.InvalidConcurrency(level)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, req := range a.pending {
		req.UpdateConcurrentRequests(level, nowMs)
	}
}

// PendingCount returns the number of pending requests.
func (a *Accountant) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// ProjectPendingTime brings every pending request up to nowMs and returns
// their summed attributed time. The projection is durable.
func (a *Accountant) ProjectPendingTime(nowMs int64) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.projectLocked(nowMs)
}

// Snapshot projects pending time to nowMs and returns a copy of the stats.
func (a *Accountant) Snapshot(nowMs int64) wakelock.ClientStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.projectLocked(nowMs)
	return a.stats.Snapshot()
}

// PendingDescriptions describes each pending request in start order.
func (a *Accountant) PendingDescriptions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]string, len(a.pending))
	for i, req := range a.pending {
		out[i] = req.String()
	}
	return out
}

// String describes the accountant without projecting pending time.
func (a *Accountant) String() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Accountant{stats=%s, pending=[", a.stats.Snapshot())
	for i, req := range a.pending {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(req.String())
	}
	b.WriteString("]}")
	return b.String()
}

// indexOf returns the most recently started pending request with key, or -1.
func (a *Accountant) indexOf(key wakelock.RequestKey) int {
	for i := len(a.pending) - 1; i >= 0; i-- {
		if a.pending[i].Key() == key {
			return i
		}
	}
	return -1
}

func (a *Accountant) completeLocked(req *wakelock.PendingRequest, nowMs int64) {
	req.SetResponseTime(nowMs)
	attributed := req.AttributedTimeMs()
	a.stats.AddCompleted(req.Kind(), attributed)
	a.observer.RequestCompleted(a.clientID, req.Kind(), attributed)

	a.logger.Debug().
		Int("kind", req.Kind()).
		Int("token", req.Token()).
		Int64("attributed_ms", attributed).
		Int64("at_ms", nowMs).
		Msg("request completed")
}

func (a *Accountant) projectLocked(nowMs int64) int64 {
	for _, req := range a.pending {
		req.UpdateTime(nowMs)
	}
	total := a.pendingTimeLocked()
	a.stats.SetPending(len(a.pending), total)
	return total
}

func (a *Accountant) pendingTimeLocked() int64 {
	var total int64
	for _, req := range a.pending {
		total += req.AttributedTimeMs()
	}
	return total
}
