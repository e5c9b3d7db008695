package wakelock

import (
	"fmt"
	"math"
)

// Histogram defaults.
const (
	DefaultBucketCount = 5
	DefaultMinSamples  = 10
)

// Histogram accumulates attributed durations for one request kind.
//
// The first MinSamples values are buffered so bucket end points can be derived
// from the observed range; after that each value is placed directly.
type Histogram struct {
	Kind        int
	bucketCount int
	minSamples  int

	minMs       int64
	maxMs       int64
	avgMs       int64
	sampleCount int64

	initial   []int64
	endPoints []int64
	counters  []int64
}

// NewHistogram creates an empty histogram. Non-positive sizes fall back to
// the defaults; bucketCount is at least 2 and minSamples at least bucketCount.
func NewHistogram(kind, bucketCount, minSamples int) *Histogram {
	if bucketCount < 2 {
		bucketCount = DefaultBucketCount
	}
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	if minSamples < bucketCount {
		minSamples = bucketCount
	}
	return &Histogram{
		Kind:        kind,
		bucketCount: bucketCount,
		minSamples:  minSamples,
		initial:     make([]int64, 0, minSamples),
		endPoints:   make([]int64, bucketCount-1),
		counters:    make([]int64, bucketCount),
	}
}

// Add records one sample in milliseconds.
func (h *Histogram) Add(ms int64) {
	if h.sampleCount == 0 || h.sampleCount == math.MaxInt64 {
		h.reset(ms)
		return
	}

	if ms < h.minMs {
		h.minMs = ms
	}
	if ms > h.maxMs {
		h.maxMs = ms
	}
	total := h.avgMs*h.sampleCount + ms
	h.sampleCount++
	h.avgMs = total / h.sampleCount

	switch {
	case h.sampleCount < int64(h.minSamples):
		h.initial = append(h.initial, ms)
	case h.sampleCount == int64(h.minSamples):
		h.initial = append(h.initial, ms)
		h.endPoints = BucketEndPoints(h.minMs, h.maxMs, h.bucketCount)
		for _, v := range h.initial {
			h.counters[BucketIndex(h.endPoints, v)]++
		}
		h.initial = nil
	default:
		h.counters[BucketIndex(h.endPoints, ms)]++
	}
}

func (h *Histogram) reset(ms int64) {
	h.minMs, h.maxMs, h.avgMs = ms, ms, ms
	h.sampleCount = 1
	h.initial = append(make([]int64, 0, h.minSamples), ms)
	for i := range h.endPoints {
		h.endPoints[i] = 0
	}
	for i := range h.counters {
		h.counters[i] = 0
	}
}

// BucketEndPoints splits [minMs, maxMs] into bucketCount equal ranges and
// returns the bucketCount-1 inner end points.
// This is a PURE function.
func BucketEndPoints(minMs, maxMs int64, bucketCount int) []int64 {
	if bucketCount < 2 {
		return nil
	}
	points := make([]int64, bucketCount-1)
	span := maxMs - minMs
	for i := range points {
		points[i] = minMs + int64(i+1)*span/int64(bucketCount)
	}
	return points
}

// BucketIndex returns the first bucket whose end point is >= ms, or the last
// bucket when ms exceeds every end point.
// This is a PURE function.
func BucketIndex(endPoints []int64, ms int64) int {
	for i, p := range endPoints {
		if ms <= p {
			return i
		}
	}
	return len(endPoints)
}

// Snapshot returns an immutable copy of the histogram.
// While fewer than MinSamples values have been seen, bucket end points and
// counters are all zero.
func (h *Histogram) Snapshot() HistogramSnapshot {
	return HistogramSnapshot{
		Kind:           h.Kind,
		MinTimeMs:      h.minMs,
		MaxTimeMs:      h.maxMs,
		AverageTimeMs:  h.avgMs,
		SampleCount:    h.sampleCount,
		BucketCount:    h.bucketCount,
		BucketEndPoint: append([]int64(nil), h.endPoints...),
		BucketCounters: append([]int64(nil), h.counters...),
	}
}

// HistogramSnapshot is a read-only copy of a Histogram (value type).
type HistogramSnapshot struct {
	Kind           int     `json:"kind"`
	MinTimeMs      int64   `json:"min_time_ms"`
	MaxTimeMs      int64   `json:"max_time_ms"`
	AverageTimeMs  int64   `json:"average_time_ms"`
	SampleCount    int64   `json:"sample_count"`
	BucketCount    int     `json:"bucket_count"`
	BucketEndPoint []int64 `json:"bucket_end_points"`
	BucketCounters []int64 `json:"bucket_counters"`
}

func (s HistogramSnapshot) String() string {
	return fmt.Sprintf("Histogram{kind=%d, min=%d, max=%d, avg=%d, samples=%d, endPoints=%v, counters=%v}",
		s.Kind, s.MinTimeMs, s.MaxTimeMs, s.AverageTimeMs, s.SampleCount, s.BucketEndPoint, s.BucketCounters)
}
