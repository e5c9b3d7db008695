package wakelock_test

import (
	"testing"

	"github.com/artpar/wakeacct/domain/wakelock"
)

func TestPendingRequest_SingleLevel(t *testing.T) {
	r := wakelock.NewPendingRequest(12, 1, 1, 1000)
	r.SetResponseTime(1250)

	if got := r.AttributedTimeMs(); got != 250 {
		t.Errorf("AttributedTimeMs() = %d, want 250", got)
	}
	if !r.IsCompleted() {
		t.Error("request should be completed")
	}
	if r.CompletedAtMs() != 1250 {
		t.Errorf("CompletedAtMs() = %d, want 1250", r.CompletedAtMs())
	}
}

func TestPendingRequest_MidFlightRepricing(t *testing.T) {
	r := wakelock.NewPendingRequest(12, 1, 1, 0)
	r.UpdateConcurrentRequests(4, 100)
	r.SetResponseTime(200)

	// 100 at level 1, then 100/4
	if got := r.AttributedTimeMs(); got != 125 {
		t.Errorf("AttributedTimeMs() = %d, want 125", got)
	}
	if r.InitialConcurrency() != 1 {
		t.Errorf("InitialConcurrency() = %d, want 1", r.InitialConcurrency())
	}
	if r.Concurrency() != 4 {
		t.Errorf("Concurrency() = %d, want 4", r.Concurrency())
	}
}

func TestPendingRequest_UpdateTimeIdempotent(t *testing.T) {
	r := wakelock.NewPendingRequest(1, 1, 2, 0)
	r.UpdateTime(100)
	r.UpdateTime(100)

	if got := r.AttributedTimeMs(); got != 50 {
		t.Errorf("AttributedTimeMs() = %d, want 50", got)
	}
}

func TestPendingRequest_ClockGoesBackwards(t *testing.T) {
	r := wakelock.NewPendingRequest(1, 1, 1, 500)
	r.UpdateTime(400)
	if got := r.AttributedTimeMs(); got != 0 {
		t.Errorf("AttributedTimeMs() = %d, want 0", got)
	}
	if r.LastUpdatedAtMs() != 500 {
		t.Errorf("LastUpdatedAtMs() = %d, want 500", r.LastUpdatedAtMs())
	}

	r.UpdateTime(600)
	if got := r.AttributedTimeMs(); got != 100 {
		t.Errorf("AttributedTimeMs() = %d, want 100", got)
	}
}

func TestPendingRequest_ZeroConcurrencyTreatedAsOne(t *testing.T) {
	r := wakelock.NewPendingRequest(1, 1, 0, 0)
	if r.Concurrency() != 1 {
		t.Fatalf("Concurrency() = %d, want 1", r.Concurrency())
	}

	r.UpdateConcurrentRequests(-3, 10)
	r.SetResponseTime(30)
	if got := r.AttributedTimeMs(); got != 30 {
		t.Errorf("AttributedTimeMs() = %d, want 30", got)
	}
}

func TestPendingRequest_NoMutationAfterCompletion(t *testing.T) {
	r := wakelock.NewPendingRequest(1, 1, 1, 0)
	r.SetResponseTime(100)

	r.UpdateTime(500)
	r.UpdateConcurrentRequests(5, 600)
	r.SetResponseTime(700)

	if got := r.AttributedTimeMs(); got != 100 {
		t.Errorf("AttributedTimeMs() = %d, want 100", got)
	}
	if r.CompletedAtMs() != 100 {
		t.Errorf("CompletedAtMs() = %d, want 100", r.CompletedAtMs())
	}
	if r.Concurrency() != 1 {
		t.Errorf("Concurrency() = %d, want 1", r.Concurrency())
	}
}

func TestFairShare(t *testing.T) {
	tests := []struct {
		name  string
		from  int64
		to    int64
		level int
		want  int64
	}{
		{"single", 0, 100, 1, 100},
		{"split in two", 0, 100, 2, 50},
		{"truncates", 0, 100, 3, 33},
		{"negative interval", 100, 0, 1, 0},
		{"empty interval", 100, 100, 1, 0},
		{"zero level", 0, 100, 0, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := wakelock.FairShare(tt.from, tt.to, tt.level); got != tt.want {
				t.Errorf("FairShare(%d, %d, %d) = %d, want %d", tt.from, tt.to, tt.level, got, tt.want)
			}
		})
	}
}

func TestRequestKey_String(t *testing.T) {
	k := wakelock.RequestKey{Kind: 7, Token: 42}
	if k.String() != "7/42" {
		t.Errorf("String() = %q, want %q", k.String(), "7/42")
	}
}
