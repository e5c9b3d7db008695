package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/artpar/wakeacct/domain/wakelock"
	"github.com/artpar/wakeacct/ports"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultReportSchedule takes a report every minute.
const DefaultReportSchedule = "@every 1m"

// Reporter periodically takes a statistics report and logs it.
type Reporter struct {
	source ports.StatsSource
	logger zerolog.Logger

	mu       sync.Mutex
	cron     *cron.Cron
	entry    cron.EntryID
	schedule string
	running  bool

	last atomic.Pointer[wakelock.Report]
}

// NewReporter creates a reporter reading from source.
func NewReporter(source ports.StatsSource, logger zerolog.Logger) *Reporter {
	return &Reporter{
		source: source,
		logger: logger.With().Str("component", "reporter").Logger(),
		cron:   cron.New(),
	}
}

// Start schedules periodic reports and starts the scheduler.
func (r *Reporter) Start(schedule string) error {
	if err := r.Reschedule(schedule); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		r.cron.Start()
		r.running = true
		r.logger.Info().Str("schedule", r.schedule).Msg("reporter started")
	}
	return nil
}

// Reschedule replaces the report schedule. An invalid schedule leaves the
// current one in place.
func (r *Reporter) Reschedule(schedule string) error {
	if schedule == "" {
		schedule = DefaultReportSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid report schedule %q: %w", schedule, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if schedule == r.schedule && r.entry != 0 {
		return nil
	}

	id, err := r.cron.AddFunc(schedule, func() { r.RunOnce() })
	if err != nil {
		return fmt.Errorf("schedule report: %w", err)
	}
	if r.entry != 0 {
		r.cron.Remove(r.entry)
	}
	r.entry = id
	r.schedule = schedule
	return nil
}

// Schedule returns the active schedule.
func (r *Reporter) Schedule() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.schedule
}

// Stop stops the scheduler. The returned context is done once any
// running report finishes.
func (r *Reporter) Stop() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	return r.cron.Stop()
}

// RunOnce takes a report, logs it and stores it as the latest.
func (r *Reporter) RunOnce() wakelock.Report {
	report := r.source.Report()
	r.last.Store(&report)

	for _, s := range report.Clients {
		r.logger.Info().
			Str("report_id", report.ID).
			Str("client", s.ClientID).
			Int64("completed_requests", s.CompletedRequestCount).
			Int64("completed_ms", s.CompletedAttributedTimeMs).
			Int64("pending_requests", s.PendingRequestCount).
			Int64("pending_ms", s.PendingAttributedTimeMs).
			Int64("cumulative_ms", s.CumulativeAttributedTimeMs()).
			Msg("client wakelock stats")
	}

	total := wakelock.Totals(report.Clients)
	r.logger.Info().
		Str("report_id", report.ID).
		Int64("uptime_ms", report.TakenAtMs).
		Int("clients", len(report.Clients)).
		Int64("completed_requests", total.CompletedRequestCount).
		Int64("completed_ms", total.CompletedAttributedTimeMs).
		Int64("pending_requests", total.PendingRequestCount).
		Int64("pending_ms", total.PendingAttributedTimeMs).
		Int64("cumulative_ms", total.CumulativeAttributedTimeMs()).
		Msg("wakelock report")

	return report
}

// Last returns the most recent report, if any.
func (r *Reporter) Last() (wakelock.Report, bool) {
	p := r.last.Load()
	if p == nil {
		return wakelock.Report{}, false
	}
	return *p, true
}
