package wakelock

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// HistogramConfig sizes the per-kind histograms.
type HistogramConfig struct {
	BucketCount int
	MinSamples  int
}

// DefaultHistogramConfig returns the default histogram sizing.
func DefaultHistogramConfig() HistogramConfig {
	return HistogramConfig{BucketCount: DefaultBucketCount, MinSamples: DefaultMinSamples}
}

// Stats is the running aggregate for one client.
// It is mutated only by its owner, which provides locking.
type Stats struct {
	clientID  string
	histogram HistogramConfig

	completedCount  int64
	completedTimeMs int64
	pendingCount    int64
	pendingTimeMs   int64
	histograms      map[int]*Histogram
}

// NewStats creates an empty aggregate for clientID.
func NewStats(clientID string, cfg HistogramConfig) *Stats {
	return &Stats{
		clientID:   clientID,
		histogram:  cfg,
		histograms: make(map[int]*Histogram),
	}
}

// ClientID returns the owning client identifier.
func (s *Stats) ClientID() string { return s.clientID }

// AddCompleted folds one finished request into the totals.
func (s *Stats) AddCompleted(kind int, attributedMs int64) {
	if attributedMs < 0 {
		attributedMs = 0
	}
	s.completedCount++
	s.completedTimeMs += attributedMs

	h, ok := s.histograms[kind]
	if !ok {
		h = NewHistogram(kind, s.histogram.BucketCount, s.histogram.MinSamples)
		s.histograms[kind] = h
	}
	h.Add(attributedMs)
}

// SetPending records the current pending request count and projected time.
func (s *Stats) SetPending(count int, timeMs int64) {
	s.pendingCount = int64(count)
	s.pendingTimeMs = timeMs
}

// Snapshot returns an immutable copy of the aggregate.
func (s *Stats) Snapshot() ClientStats {
	hs := make([]HistogramSnapshot, 0, len(s.histograms))
	for _, h := range s.histograms {
		hs = append(hs, h.Snapshot())
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i].Kind < hs[j].Kind })

	return ClientStats{
		ClientID:                  s.clientID,
		CompletedRequestCount:     s.completedCount,
		CompletedAttributedTimeMs: s.completedTimeMs,
		PendingRequestCount:       s.pendingCount,
		PendingAttributedTimeMs:   s.pendingTimeMs,
		Histograms:                hs,
	}
}

// ClientStats is the statistics snapshot for one client (value type).
type ClientStats struct {
	ClientID                  string              `json:"client_id"`
	CompletedRequestCount     int64               `json:"completed_request_count"`
	CompletedAttributedTimeMs int64               `json:"completed_attributed_time_ms"`
	PendingRequestCount       int64               `json:"pending_request_count"`
	PendingAttributedTimeMs   int64               `json:"pending_attributed_time_ms"`
	Histograms                []HistogramSnapshot `json:"histograms"`
}

// CumulativeAttributedTimeMs is completed plus projected pending time.
func (s ClientStats) CumulativeAttributedTimeMs() int64 {
	return s.CompletedAttributedTimeMs + s.PendingAttributedTimeMs
}

// MarshalJSON adds the derived cumulative_attributed_time_ms field.
func (s ClientStats) MarshalJSON() ([]byte, error) {
	type fields ClientStats
	return json.Marshal(struct {
		fields
		CumulativeAttributedTimeMs int64 `json:"cumulative_attributed_time_ms"`
	}{fields(s), s.CumulativeAttributedTimeMs()})
}

// Histogram returns the histogram for kind, if any request of that kind
// has completed.
func (s ClientStats) Histogram(kind int) (HistogramSnapshot, bool) {
	for _, h := range s.Histograms {
		if h.Kind == kind {
			return h, true
		}
	}
	return HistogramSnapshot{}, false
}

func (s ClientStats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ClientStats{client=%s, completed=%d, completedMs=%d, pending=%d, pendingMs=%d",
		s.ClientID, s.CompletedRequestCount, s.CompletedAttributedTimeMs,
		s.PendingRequestCount, s.PendingAttributedTimeMs)
	for _, h := range s.Histograms {
		b.WriteString(", ")
		b.WriteString(h.String())
	}
	b.WriteString("}")
	return b.String()
}

// Totals sums counts and times across clients.
// This is a PURE function.
func Totals(clients []ClientStats) ClientStats {
	var t ClientStats
	for _, c := range clients {
		t.CompletedRequestCount += c.CompletedRequestCount
		t.CompletedAttributedTimeMs += c.CompletedAttributedTimeMs
		t.PendingRequestCount += c.PendingRequestCount
		t.PendingAttributedTimeMs += c.PendingAttributedTimeMs
	}
	return t
}

// Report is one reporting pass over every known client (value type).
type Report struct {
	ID        string        `json:"id"`
	TakenAtMs int64         `json:"taken_at_ms"`
	Clients   []ClientStats `json:"clients"`
}
