// Package mutator owns the aggregator and route manager pair behind one
// long-lived lock. A live auto_reload and every query's route
// observation touch the same shadow state; a fresh per-Handler mutex
// built on each reload would guard it against itself but not against
// the Handler instance a concurrent reload just swapped in. The
// Coordinator builds exactly one Mutator for the process lifetime and
// hands the same pointer to every Handler it produces.
package mutator

import (
	"net/netip"
	"sync"

	"github.com/rs/zerolog"

	"github.com/leshy-dns/leshy/internal/aggregator"
	"github.com/leshy-dns/leshy/internal/logging"
	"github.com/leshy-dns/leshy/internal/routemanager"
	"github.com/leshy-dns/leshy/internal/zone"
)

// queueCapacity bounds the backlog of observations queued for the
// background worker. A full queue drops the newest observation rather
// than block the query goroutine that tried to enqueue it.
const queueCapacity = 256

type observation struct {
	zoneID string
	addrs  []netip.Addr
}

// Mutator serializes every access to an Aggregator/Manager pair behind
// mu, and runs a background worker that drains queued observations so
// route_failure_mode=fallback queries never wait on one.
type Mutator struct {
	mu  sync.Mutex
	agg *aggregator.Aggregator
	rm  *routemanager.Manager

	queue chan observation
	log   zerolog.Logger
}

// New starts the background worker and returns a ready Mutator.
func New(agg *aggregator.Aggregator, rm *routemanager.Manager) *Mutator {
	m := &Mutator{
		agg:   agg,
		rm:    rm,
		queue: make(chan observation, queueCapacity),
		log:   logging.With("mutator"),
	}
	go m.drain()
	return m
}

func (m *Mutator) drain() {
	for obs := range m.queue {
		m.Observe(obs.zoneID, obs.addrs)
	}
}

// FailureMode reports the wrapped Manager's route_failure_mode, set at
// construction and never changed, so it needs no locking.
func (m *Mutator) FailureMode() routemanager.FailureMode {
	return m.rm.FailureMode()
}

// Observe feeds addrs through the aggregator and route manager for
// zoneID under the shared lock. It returns false if any resulting
// route action failed under route_failure_mode=servfail — the caller
// must answer SERVFAIL instead of the reply that triggered this call.
func (m *Mutator) Observe(zoneID string, addrs []netip.Addr) bool {
	if len(addrs) == 0 {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	z, ok := m.rm.ZonePolicy(zoneID)
	if !ok {
		return true
	}

	ok = true
	for _, addr := range addrs {
		bits := z.Policy.AggregationPrefix4
		if addr.Is6() {
			bits = z.Policy.AggregationPrefix6
		}
		actions := m.agg.Observe(zoneID, addr, bits)
		if failures := m.rm.Apply(actions); len(failures) > 0 {
			ok = false
		}
	}
	return ok
}

// ObserveAsync enqueues the same work without blocking the caller,
// dropping it on a full queue. route_failure_mode=fallback's
// fire-and-forget guarantee means a dropped observation is picked up
// again on the next answer for the same name; nothing is lost for long.
func (m *Mutator) ObserveAsync(zoneID string, addrs []netip.Addr) {
	if len(addrs) == 0 {
		return
	}
	select {
	case m.queue <- observation{zoneID: zoneID, addrs: addrs}:
	default:
		m.log.Warn().Str("zone", zoneID).Msg("route observation queue full, dropping")
	}
}

// SetZones, ActivateZone, DeactivateZone and WithdrawAll are the Reload
// Coordinator's entry points into the same locked state Observe uses,
// so a reload in progress and an in-flight query's observation never
// interleave on the underlying maps.

func (m *Mutator) SetZones(zones map[string]zone.Zone) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rm.SetZones(zones)
}

func (m *Mutator) ActivateZone(z zone.Zone) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rm.ActivateZone(z, m.agg)
}

func (m *Mutator) DeactivateZone(zoneID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rm.DeactivateZone(zoneID, m.agg)
}

func (m *Mutator) WithdrawAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rm.WithdrawAll()
}
