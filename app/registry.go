package app

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/artpar/wakeacct/domain/wakelock"
	"github.com/artpar/wakeacct/ports"
	"github.com/destel/rill"
	"github.com/rs/zerolog"
)

// Registry maps client identifiers to accountants and tracks which clients
// currently hold pending requests.
//
// Lock order: clientsMu or activeMu, then an accountant's own lock. An
// accountant never calls back into the registry.
type Registry struct {
	clock    ports.Clock
	idGen    ports.IDGenerator
	observer ports.AccountingObserver
	logger   zerolog.Logger
	fanOut   int

	histogram atomic.Pointer[wakelock.HistogramConfig]

	clientsMu sync.RWMutex
	clients   map[string]*Accountant
	order     []*Accountant

	activeMu sync.RWMutex
	active   []*Accountant
}

// RegistryDeps contains dependencies for Registry.
type RegistryDeps struct {
	Clock    ports.Clock
	IDGen    ports.IDGenerator
	Observer ports.AccountingObserver // optional
	Logger   zerolog.Logger
}

// RegistryConfig contains configuration for Registry.
type RegistryConfig struct {
	Histogram wakelock.HistogramConfig

	// FanOut bounds how many accountants a concurrency broadcast re-prices
	// in parallel. Values below 2 re-price them one by one.
	FanOut int
}

// NewRegistry creates an empty registry.
func NewRegistry(deps RegistryDeps, cfg RegistryConfig) *Registry {
	observer := deps.Observer
	if observer == nil {
		observer = ports.NopObserver{}
	}
	r := &Registry{
		clock:    deps.Clock,
		idGen:    deps.IDGen,
		observer: observer,
		logger:   deps.Logger.With().Str("component", "wakelock-registry").Logger(),
		clients:  make(map[string]*Accountant),
		fanOut:   cfg.FanOut,
	}
	r.SetHistogramConfig(cfg.Histogram)
	return r
}

// SetHistogramConfig changes histogram sizing for clients seen from now on.
// Existing clients keep their histograms.
func (r *Registry) SetHistogramConfig(cfg wakelock.HistogramConfig) {
	r.histogram.Store(&cfg)
}

// accountant resolves clientID, creating its accountant on first use.
func (r *Registry) accountant(clientID string) *Accountant {
	r.clientsMu.RLock()
	a, ok := r.clients[clientID]
	r.clientsMu.RUnlock()
	if ok {
		return a
	}

	r.clientsMu.Lock()
	defer r.clientsMu.Unlock()
	if a, ok := r.clients[clientID]; ok {
		return a
	}
	a = NewAccountant(clientID, *r.histogram.Load(), r.logger, r.observer)
	r.clients[clientID] = a
	r.order = append(r.order, a)
	r.logger.Info().Str("client", clientID).Msg("new wakelock client")
	return a
}

// StartTracking records a new outstanding request for clientID and re-prices
// every active client at the new global concurrency level.
func (r *Registry) StartTracking(clientID string, kind, token, outstanding int, nowMs int64) {
	a := r.accountant(clientID)

	r.activeMu.Lock()
	a.StartRequest(kind, token, outstanding, nowMs)
	r.syncActiveLocked(a)
	r.activeMu.Unlock()

	r.BroadcastConcurrencyChange(outstanding, nowMs)
}

// StopTracking completes the matching request for clientID and re-prices
// every active client at the new global concurrency level.
func (r *Registry) StopTracking(clientID string, kind, token, outstanding int, nowMs int64) {
	a := r.accountant(clientID)

	r.activeMu.Lock()
	a.StopRequest(kind, token, nowMs)
	r.syncActiveLocked(a)
	r.activeMu.Unlock()

	r.BroadcastConcurrencyChange(outstanding, nowMs)
}

// StopTrackingAll completes every pending request of every active client.
// Historical totals are kept.
func (r *Registry) StopTrackingAll(nowMs int64) {
	r.activeMu.Lock()
	defer r.activeMu.Unlock()

	for _, a := range r.active {
		a.StopAllPending(nowMs)
	}
	n := len(r.active)
	r.active = nil
	r.observer.ActiveClients(0)

	r.logger.Info().Int("clients", n).Int64("at_ms", nowMs).Msg("stopped tracking all clients")
}

// BroadcastConcurrencyChange applies a new global concurrency level to every
// active client. Level 0 is ignored and negative levels are rejected.
func (r *Registry) BroadcastConcurrencyChange(level int, nowMs int64) {
	if level == 0 {
		return
	}
	if level < 0 {
		r.logger.Warn().Int("concurrency", level).Msg("rejecting negative concurrency level")
		r.observer.InvalidConcurrency(level)
		return
	}

	r.activeMu.RLock()
	targets := make([]*Accountant, len(r.active))
	copy(targets, r.active)
	r.activeMu.RUnlock()

	if r.fanOut < 2 || len(targets) < 2 {
		for _, a := range targets {
			a.OnConcurrencyChanged(level, nowMs)
		}
		return
	}

	// Accountants re-price independently; the broadcast returns only after
	// every target has seen the new level.
	in := make(chan *Accountant, len(targets))
	for _, a := range targets {
		in <- a
	}
	close(in)
	_ = rill.ForEach(rill.FromChan(in, nil), r.fanOut, func(a *Accountant) error {
		a.OnConcurrencyChanged(level, nowMs)
		return nil
	})
}

// IsClientActive reports whether clientID currently has pending requests.
func (r *Registry) IsClientActive(clientID string) bool {
	a := r.accountant(clientID)

	r.activeMu.RLock()
	defer r.activeMu.RUnlock()
	return r.activeIndexLocked(a) >= 0
}

// ActiveClientCount returns the number of clients with pending requests.
func (r *Registry) ActiveClientCount() int {
	r.activeMu.RLock()
	defer r.activeMu.RUnlock()
	return len(r.active)
}

// ClientIDs returns every known client in order of first appearance.
func (r *Registry) ClientIDs() []string {
	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()

	ids := make([]string, len(r.order))
	for i, a := range r.order {
		ids[i] = a.ClientID()
	}
	return ids
}

// AllClientStats snapshots every known client at the current uptime.
func (r *Registry) AllClientStats() []wakelock.ClientStats {
	return r.AllClientStatsAt(r.clock.UptimeMillis())
}

// AllClientStatsAt snapshots every known client, projecting pending time to
// nowMs, in order of first appearance.
func (r *Registry) AllClientStatsAt(nowMs int64) []wakelock.ClientStats {
	accountants := r.snapshotClients()

	stats := make([]wakelock.ClientStats, len(accountants))
	for i, a := range accountants {
		stats[i] = a.Snapshot(nowMs)
	}
	return stats
}

// ClientStats snapshots one client at the current uptime.
func (r *Registry) ClientStats(clientID string) wakelock.ClientStats {
	return r.accountant(clientID).Snapshot(r.clock.UptimeMillis())
}

// Report snapshots every known client under a fresh report ID.
func (r *Registry) Report() wakelock.Report {
	now := r.clock.UptimeMillis()
	return wakelock.Report{
		ID:        r.idGen.New(),
		TakenAtMs: now,
		Clients:   r.AllClientStatsAt(now),
	}
}

// Dump writes a human-readable description of every client, its pending
// requests and the active set. The format is not stable.
func (r *Registry) Dump(w io.Writer) error {
	now := r.clock.UptimeMillis()

	if _, err := fmt.Fprintf(w, "-------wakelock clients (uptime %dms)---------\n", now); err != nil {
		return err
	}
	for _, a := range r.snapshotClients() {
		if _, err := fmt.Fprintln(w, a.Snapshot(now)); err != nil {
			return err
		}
		for _, desc := range a.PendingDescriptions() {
			if _, err := fmt.Fprintf(w, "  %s\n", desc); err != nil {
				return err
			}
		}
	}

	r.activeMu.RLock()
	active := make([]string, len(r.active))
	for i, a := range r.active {
		active[i] = a.ClientID()
	}
	r.activeMu.RUnlock()

	if _, err := fmt.Fprintf(w, "-------active clients (%d)---------\n", len(active)); err != nil {
		return err
	}
	for _, id := range active {
		if _, err := fmt.Fprintln(w, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) snapshotClients() []*Accountant {
	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()

	out := make([]*Accountant, len(r.order))
	copy(out, r.order)
	return out
}

// syncActiveLocked makes a's membership in the active set match its pending
// count. Caller holds activeMu.
func (r *Registry) syncActiveLocked(a *Accountant) {
	i := r.activeIndexLocked(a)
	pending := a.PendingCount() > 0

	switch {
	case pending && i < 0:
		r.active = append(r.active, a)
	case !pending && i >= 0:
		r.active = append(r.active[:i], r.active[i+1:]...)
	default:
		return
	}
	r.observer.ActiveClients(len(r.active))
}

func (r *Registry) activeIndexLocked(a *Accountant) int {
	for i, x := range r.active {
		if x == a {
			return i
		}
	}
	return -1
}

// Ensure interface compliance.
var (
	_ ports.Tracker     = (*Registry)(nil)
	_ ports.StatsSource = (*Registry)(nil)
)
