package wakelock_test

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/artpar/wakeacct/domain/wakelock"
)

func TestHistogram_BuffersUntilMinSamples(t *testing.T) {
	h := wakelock.NewHistogram(3, 5, 10)
	for i := int64(1); i <= 9; i++ {
		h.Add(i * 10)
	}

	s := h.Snapshot()
	if s.SampleCount != 9 {
		t.Errorf("SampleCount = %d, want 9", s.SampleCount)
	}
	if s.MinTimeMs != 10 || s.MaxTimeMs != 90 {
		t.Errorf("min/max = %d/%d, want 10/90", s.MinTimeMs, s.MaxTimeMs)
	}
	if s.AverageTimeMs != 50 {
		t.Errorf("AverageTimeMs = %d, want 50", s.AverageTimeMs)
	}
	for i, c := range s.BucketCounters {
		if c != 0 {
			t.Errorf("BucketCounters[%d] = %d, want 0 before bucketing", i, c)
		}
	}
}

func TestHistogram_Buckets(t *testing.T) {
	h := wakelock.NewHistogram(3, 5, 10)
	// 0..90 in steps of 10
	for i := int64(0); i < 10; i++ {
		h.Add(i * 10)
	}

	s := h.Snapshot()
	wantEnd := []int64{18, 36, 54, 72}
	if !reflect.DeepEqual(s.BucketEndPoint, wantEnd) {
		t.Fatalf("BucketEndPoint = %v, want %v", s.BucketEndPoint, wantEnd)
	}
	wantCounters := []int64{2, 2, 2, 2, 2}
	if !reflect.DeepEqual(s.BucketCounters, wantCounters) {
		t.Errorf("BucketCounters = %v, want %v", s.BucketCounters, wantCounters)
	}

	h.Add(1000)
	s = h.Snapshot()
	if s.BucketCounters[4] != 3 {
		t.Errorf("BucketCounters[4] = %d, want 3", s.BucketCounters[4])
	}
	if s.MaxTimeMs != 1000 {
		t.Errorf("MaxTimeMs = %d, want 1000", s.MaxTimeMs)
	}
}

func TestHistogram_DefaultsForBadSizes(t *testing.T) {
	h := wakelock.NewHistogram(1, 0, 0)
	s := h.Snapshot()
	if s.BucketCount != wakelock.DefaultBucketCount {
		t.Errorf("BucketCount = %d, want %d", s.BucketCount, wakelock.DefaultBucketCount)
	}
	if len(s.BucketCounters) != wakelock.DefaultBucketCount {
		t.Errorf("len(BucketCounters) = %d, want %d", len(s.BucketCounters), wakelock.DefaultBucketCount)
	}
}

func TestBucketIndex(t *testing.T) {
	ends := []int64{10, 20, 30}
	tests := []struct {
		ms   int64
		want int
	}{
		{0, 0},
		{10, 0},
		{11, 1},
		{30, 2},
		{31, 3},
	}
	for _, tt := range tests {
		if got := wakelock.BucketIndex(ends, tt.ms); got != tt.want {
			t.Errorf("BucketIndex(%d) = %d, want %d", tt.ms, got, tt.want)
		}
	}
}

func TestStats_SnapshotIsCopy(t *testing.T) {
	s := wakelock.NewStats("com.example.app", wakelock.DefaultHistogramConfig())
	s.AddCompleted(5, 100)
	s.AddCompleted(2, 40)
	s.SetPending(1, 30)

	snap := s.Snapshot()
	if snap.CompletedRequestCount != 2 {
		t.Errorf("CompletedRequestCount = %d, want 2", snap.CompletedRequestCount)
	}
	if snap.CompletedAttributedTimeMs != 140 {
		t.Errorf("CompletedAttributedTimeMs = %d, want 140", snap.CompletedAttributedTimeMs)
	}
	if snap.CumulativeAttributedTimeMs() != 170 {
		t.Errorf("CumulativeAttributedTimeMs() = %d, want 170", snap.CumulativeAttributedTimeMs())
	}
	if len(snap.Histograms) != 2 || snap.Histograms[0].Kind != 2 || snap.Histograms[1].Kind != 5 {
		t.Fatalf("Histograms not sorted by kind: %+v", snap.Histograms)
	}

	s.AddCompleted(5, 100)
	if snap.CompletedRequestCount != 2 {
		t.Error("snapshot changed after further updates")
	}
	h, ok := snap.Histogram(5)
	if !ok || h.SampleCount != 1 {
		t.Errorf("Histogram(5) = %+v, %v; want one sample", h, ok)
	}
	if _, ok := snap.Histogram(99); ok {
		t.Error("Histogram(99) should not exist")
	}
	if !strings.Contains(snap.String(), "client=com.example.app") {
		t.Errorf("String() = %q, missing client id", snap.String())
	}
}

func TestTotals(t *testing.T) {
	got := wakelock.Totals([]wakelock.ClientStats{
		{CompletedRequestCount: 1, CompletedAttributedTimeMs: 10, PendingRequestCount: 2, PendingAttributedTimeMs: 5},
		{CompletedRequestCount: 3, CompletedAttributedTimeMs: 30},
	})
	if got.CompletedRequestCount != 4 || got.CompletedAttributedTimeMs != 40 {
		t.Errorf("completed totals = %d/%d, want 4/40", got.CompletedRequestCount, got.CompletedAttributedTimeMs)
	}
	if got.PendingRequestCount != 2 || got.PendingAttributedTimeMs != 5 {
		t.Errorf("pending totals = %d/%d, want 2/5", got.PendingRequestCount, got.PendingAttributedTimeMs)
	}
}

func TestClientStats_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(wakelock.ClientStats{
		ClientID:                  "a",
		CompletedRequestCount:     2,
		CompletedAttributedTimeMs: 300,
		PendingRequestCount:       1,
		PendingAttributedTimeMs:   50,
	})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if fields["client_id"] != "a" || fields["completed_attributed_time_ms"] != float64(300) {
		t.Errorf("stored fields = %v", fields)
	}
	if fields["cumulative_attributed_time_ms"] != float64(350) {
		t.Errorf("cumulative_attributed_time_ms = %v, want 350", fields["cumulative_attributed_time_ms"])
	}
}
