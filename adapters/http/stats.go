package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/artpar/wakeacct/domain/trace"
	"github.com/artpar/wakeacct/domain/wakelock"
	"github.com/artpar/wakeacct/pkg/jsonapi"
	"github.com/artpar/wakeacct/ports"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// MaxEventBatchBytes bounds the body of an ingest request.
const MaxEventBatchBytes = 1 << 20

const resourceType = "client_stats"

// StatsHandler serves statistics snapshots and accepts dispatcher events.
type StatsHandler struct {
	source  ports.StatsSource
	tracker ports.Tracker
	clock   ports.Clock
	logger  zerolog.Logger
}

// NewStatsHandler creates a statistics handler.
func NewStatsHandler(source ports.StatsSource, tracker ports.Tracker, clock ports.Clock, logger zerolog.Logger) *StatsHandler {
	return &StatsHandler{
		source:  source,
		tracker: tracker,
		clock:   clock,
		logger:  logger.With().Str("component", "stats-api").Logger(),
	}
}

// Report returns a fresh report: one resource per client plus totals.
func (h *StatsHandler) Report(w http.ResponseWriter, r *http.Request) {
	report := h.source.Report()
	total := wakelock.Totals(report.Clients)

	jsonapi.WriteCollection(w, http.StatusOK, clientResources(report.Clients), jsonapi.Meta{
		"report_id":   report.ID,
		"taken_at_ms": report.TakenAtMs,
		"totals":      statsAttributes(total),
	})
}

// ListClients returns per-client statistics without allocating a report ID.
func (h *StatsHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	jsonapi.WriteCollection(w, http.StatusOK, clientResources(h.source.AllClientStats()), nil)
}

// GetClient returns one client's statistics. Unknown clients are 404 so that
// lookups never register a client.
func (h *StatsHandler) GetClient(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")

	for _, s := range h.source.AllClientStats() {
		if s.ClientID == clientID {
			jsonapi.WriteResource(w, http.StatusOK, clientResource(s), nil)
			return
		}
	}
	jsonapi.WriteError(w, jsonapi.ErrNotFoundWithID("client", clientID))
}

// Dump writes the human-readable diagnostic dump.
func (h *StatsHandler) Dump(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := h.source.Dump(w); err != nil {
		h.logger.Error().Err(err).Msg("write dump")
	}
}

// Ingest applies a JSON array of dispatcher events in order. Events without
// at_ms are stamped with the current uptime. The whole batch is validated
// before any event is applied.
func (h *StatsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var events []trace.Event
	body := http.MaxBytesReader(w, r.Body, MaxEventBatchBytes)
	if err := json.NewDecoder(body).Decode(&events); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonapi.WriteError(w, jsonapi.ErrBadRequest(fmt.Sprintf("body exceeds %d bytes", MaxEventBatchBytes)))
			return
		}
		if errors.Is(err, io.EOF) {
			jsonapi.WriteError(w, jsonapi.ErrBadRequest("empty body"))
			return
		}
		jsonapi.WriteError(w, jsonapi.ErrBadRequest("body must be a JSON array of events: "+err.Error()))
		return
	}

	var errs []jsonapi.Error
	for i, e := range events {
		if err := e.Validate(); err != nil {
			errs = append(errs, jsonapi.ErrValidation("/"+strconv.Itoa(i), err.Error()))
		}
	}
	if len(errs) > 0 {
		jsonapi.WriteError(w, errs...)
		return
	}

	now := h.clock.UptimeMillis()
	for _, e := range events {
		at := e.AtMs
		if at == 0 {
			at = now
		}
		switch e.Type {
		case trace.EventStart:
			h.tracker.StartTracking(e.Client, e.Kind, e.Token, e.Outstanding, at)
		case trace.EventStop:
			h.tracker.StopTracking(e.Client, e.Kind, e.Token, e.Outstanding, at)
		case trace.EventStopAll:
			h.tracker.StopTrackingAll(at)
		}
	}

	h.logger.Debug().Int("events", len(events)).Msg("ingested dispatcher events")
	jsonapi.WriteAccepted(w, jsonapi.Meta{"applied": len(events)})
}

func clientResources(stats []wakelock.ClientStats) []jsonapi.Resource {
	out := make([]jsonapi.Resource, len(stats))
	for i, s := range stats {
		out[i] = clientResource(s)
	}
	return out
}

func clientResource(s wakelock.ClientStats) jsonapi.Resource {
	attrs := statsAttributes(s)
	attrs["histograms"] = s.Histograms
	return jsonapi.Resource{
		Type:       resourceType,
		ID:         s.ClientID,
		Attributes: attrs,
	}
}

func statsAttributes(s wakelock.ClientStats) map[string]any {
	return map[string]any{
		"completed_request_count":       s.CompletedRequestCount,
		"completed_attributed_time_ms":  s.CompletedAttributedTimeMs,
		"pending_request_count":         s.PendingRequestCount,
		"pending_attributed_time_ms":    s.PendingAttributedTimeMs,
		"cumulative_attributed_time_ms": s.CumulativeAttributedTimeMs(),
	}
}
