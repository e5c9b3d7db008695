package app

import (
	"context"

	"github.com/artpar/wakeacct/domain/trace"
	"github.com/artpar/wakeacct/ports"
	"github.com/rs/zerolog"
)

// Replayer feeds recorded dispatcher events into a tracker in trace order.
// Every start and stop re-prices all active clients, so events are never
// reordered across clients.
type Replayer struct {
	tracker ports.Tracker
	logger  zerolog.Logger
}

// ReplayResult summarizes a replay run.
type ReplayResult struct {
	Applied  int
	Segments int
	Clients  int
}

// NewReplayer creates a replayer.
func NewReplayer(tracker ports.Tracker, logger zerolog.Logger) *Replayer {
	return &Replayer{
		tracker: tracker,
		logger:  logger.With().Str("component", "replay").Logger(),
	}
}

// Run replays events. It stops early only when ctx is cancelled.
func (r *Replayer) Run(ctx context.Context, events []trace.Event) (ReplayResult, error) {
	var res ReplayResult
	clients := make(map[string]struct{})
	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		r.apply(e)
		res.Applied++
		if e.Type == trace.EventStopAll {
			res.Segments++
		} else {
			clients[e.Client] = struct{}{}
		}
	}
	res.Clients = len(clients)
	r.logger.Debug().Int("applied", res.Applied).Int("clients", res.Clients).Msg("replay finished")
	return res, nil
}

func (r *Replayer) apply(e trace.Event) {
	switch e.Type {
	case trace.EventStart:
		r.tracker.StartTracking(e.Client, e.Kind, e.Token, e.Outstanding, e.AtMs)
	case trace.EventStop:
		r.tracker.StopTracking(e.Client, e.Kind, e.Token, e.Outstanding, e.AtMs)
	case trace.EventStopAll:
		r.tracker.StopTrackingAll(e.AtMs)
	default:
		r.logger.Warn().Str("type", string(e.Type)).Msg("skipping unknown event")
	}
}
