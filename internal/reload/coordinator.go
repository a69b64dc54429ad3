// Package reload implements the Reload Coordinator: applying a freshly
// loaded zone set against the currently running one while preserving
// cache and route state for zones that did not change.
package reload

import (
	"sync"
	"time"

	"github.com/leshy-dns/leshy/internal/aggregator"
	"github.com/leshy-dns/leshy/internal/cache"
	"github.com/leshy-dns/leshy/internal/forwarder"
	"github.com/leshy-dns/leshy/internal/handler"
	"github.com/leshy-dns/leshy/internal/logging"
	"github.com/leshy-dns/leshy/internal/mutator"
	"github.com/leshy-dns/leshy/internal/route"
	"github.com/leshy-dns/leshy/internal/routemanager"
	"github.com/leshy-dns/leshy/internal/zone"
)

// Coordinator owns the long-lived state that survives a reload: the
// per-zone caches and a Mutator wrapping the CIDR aggregator and route
// manager's shadow table. Handler instances are rebuilt fresh on every
// reload, but they all share the same Mutator, so a reload in progress
// and a query against the handler it is about to replace serialize
// against each other instead of racing on two independent locks.
type Coordinator struct {
	// reloadMu serializes Reload against itself only — two debounced
	// file-watch events landing close enough together could otherwise
	// race on current/defaultUpstream. It has nothing to do with the
	// aggregator/route-manager state, which mut.mu guards on its own.
	reloadMu sync.Mutex

	caches *cache.Registry
	fwd    *forwarder.Forwarder
	mut    *mutator.Mutator

	current         map[string]zone.Zone
	defaultUpstream []zone.Endpoint
}

// New builds a Coordinator with empty state, ready for its first Reload.
func New(cacheCapacity int, attemptTimeout time.Duration, failureMode routemanager.FailureMode, backend route.Backend) *Coordinator {
	return &Coordinator{
		caches:  cache.NewRegistry(cacheCapacity),
		fwd:     forwarder.New(attemptTimeout),
		mut:     mutator.New(aggregator.New(), routemanager.New(backend, failureMode)),
		current: make(map[string]zone.Zone),
	}
}

// Handler returns a Handler wired to the Coordinator's current cache
// registry, forwarder, and shared Mutator, without applying any zone
// changes the way Reload does.
func (c *Coordinator) Handler(zones []zone.Zone, defaultUpstream []zone.Endpoint) (*handler.Handler, error) {
	return handler.New(zones, defaultUpstream, c.caches, c.fwd, c.mut)
}

// Reload applies newZones/newDefaultUpstream against the Coordinator's
// current state:
//   - unchanged zones (identical name and policy) keep their cache and
//     route state untouched
//   - modified zones are torn down then reactivated
//   - removed zones are torn down
//   - added zones are freshly activated
//
// It returns a Handler built over the new zone set, wired to the
// preserved cache registry, forwarder, and Mutator.
func (c *Coordinator) Reload(newZones []zone.Zone, newDefaultUpstream []zone.Endpoint) (*handler.Handler, error) {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	log := logging.With("reload")

	newByID := make(map[string]zone.Zone, len(newZones))
	for _, z := range newZones {
		newByID[z.ID] = z
	}

	c.mut.SetZones(newByID)

	for id, old := range c.current {
		nz, stillExists := newByID[id]
		switch {
		case !stillExists:
			log.Info().Str("zone", id).Msg("zone removed, tearing down")
			c.mut.DeactivateZone(id)
			c.caches.Drop(id)
		case !zone.SameMatchAndPolicy(old, nz):
			log.Info().Str("zone", id).Msg("zone modified, reactivating")
			c.mut.DeactivateZone(id)
			c.caches.Drop(id)
			c.mut.ActivateZone(nz)
		default:
			// Unchanged: cache and shadow state carry over untouched.
		}
	}

	for id, nz := range newByID {
		if _, existed := c.current[id]; !existed {
			log.Info().Str("zone", id).Msg("zone added, activating")
			c.mut.ActivateZone(nz)
		}
	}

	c.current = newByID
	c.defaultUpstream = newDefaultUpstream

	return handler.New(newZones, newDefaultUpstream, c.caches, c.fwd, c.mut)
}

// Shutdown withdraws every route in the route manager's shadow table,
// dynamic and static alike. It is the last
// step before process exit; callers must already have stopped accepting
// new queries.
func (c *Coordinator) Shutdown() {
	c.mut.WithdrawAll()
}
