package app_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/artpar/wakeacct/app"
	"github.com/rs/zerolog"
)

func TestReporter_RunOnce(t *testing.T) {
	r, clk := newTestRegistry(&mockObserver{})
	r.StartTracking("a", 1, 1, 1, 0)
	clk.Set(500)

	var buf bytes.Buffer
	rep := app.NewReporter(r, zerolog.New(&buf))

	if _, ok := rep.Last(); ok {
		t.Error("Last() should be empty before the first report")
	}

	report := rep.RunOnce()
	if report.ID != "report-1" {
		t.Errorf("ID = %q, want report-1", report.ID)
	}
	if report.TakenAtMs != 500 {
		t.Errorf("TakenAtMs = %d, want 500", report.TakenAtMs)
	}
	if len(report.Clients) != 1 || report.Clients[0].PendingAttributedTimeMs != 500 {
		t.Errorf("Clients = %+v", report.Clients)
	}

	last, ok := rep.Last()
	if !ok || last.ID != report.ID {
		t.Errorf("Last() = %+v, %v", last, ok)
	}

	out := buf.String()
	if !strings.Contains(out, `"client":"a"`) || !strings.Contains(out, "wakelock report") {
		t.Errorf("log output missing report lines: %s", out)
	}
	if !strings.Contains(out, `"cumulative_ms":500`) {
		t.Errorf("log output missing cumulative time: %s", out)
	}
}

func TestReporter_Schedule(t *testing.T) {
	r, _ := newTestRegistry(&mockObserver{})
	rep := app.NewReporter(r, zerolog.Nop())

	if err := rep.Start("not a schedule"); err == nil {
		t.Fatal("expected error for invalid schedule")
	}

	if err := rep.Start(""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if got := rep.Schedule(); got != app.DefaultReportSchedule {
		t.Errorf("Schedule() = %q, want %q", got, app.DefaultReportSchedule)
	}

	if err := rep.Reschedule("@every 2h"); err != nil {
		t.Fatalf("Reschedule() error: %v", err)
	}
	if err := rep.Reschedule("bogus"); err == nil {
		t.Error("expected error for invalid reschedule")
	}
	if got := rep.Schedule(); got != "@every 2h" {
		t.Errorf("Schedule() = %q after failed reschedule, want @every 2h", got)
	}

	select {
	case <-rep.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("Stop() did not finish")
	}
}
