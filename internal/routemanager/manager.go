// Package routemanager owns the shadow routing table and serializes
// all calls into the Route Backend.
package routemanager

import (
	"errors"
	"net/netip"

	"github.com/rs/zerolog"

	"github.com/leshy-dns/leshy/internal/logging"
	"github.com/leshy-dns/leshy/internal/route"
	"github.com/leshy-dns/leshy/internal/zone"
)

// FailureMode selects what happens to a query when a device-targeted
// zone's route_target file is unavailable.
type FailureMode string

const (
	FailureModeFallback FailureMode = "fallback"
	FailureModeServfail FailureMode = "servfail"
)

// ShadowEntry exactly mirrors what has been pushed to the backend for
// one prefix.
type ShadowEntry struct {
	Prefix netip.Prefix
	Target route.Target
	ZoneID string
}

// Manager is not safe for concurrent use; callers serialize access (the
// mutator package holds one lock around it).
type Manager struct {
	backend     route.Backend
	failureMode FailureMode
	zones       map[string]zone.Zone
	shadow      map[netip.Prefix]ShadowEntry
	log         zerolog.Logger
}

// New returns a Manager bound to backend with the given default failure
// mode.
func New(backend route.Backend, failureMode FailureMode) *Manager {
	return &Manager{
		backend:     backend,
		failureMode: failureMode,
		zones:       make(map[string]zone.Zone),
		shadow:      make(map[netip.Prefix]ShadowEntry),
		log:         logging.With("routemanager"),
	}
}

// SetZones replaces the manager's view of zone policy, used at startup and
// by the Reload Coordinator.
func (m *Manager) SetZones(zones map[string]zone.Zone) {
	m.zones = zones
}

// ZonePolicy returns the currently known policy for zoneID, if any.
func (m *Manager) ZonePolicy(zoneID string) (zone.Zone, bool) {
	z, ok := m.zones[zoneID]
	return z, ok
}

// FailureMode reports the Manager's configured route_failure_mode.
func (m *Manager) FailureMode() FailureMode {
	return m.failureMode
}

// Failure describes a device-targeted action that could not be resolved
// to a target, keyed by the zone that failed.
type Failure struct {
	ZoneID string
	Err    error
}

// Apply drains a batch of aggregator actions into the backend. It
// returns the set of zones for which a device-file resolution failed
// under route_failure_mode=servfail — the DNS handler uses this to
// decide whether to answer SERVFAIL for the query that triggered this
// batch.
func (m *Manager) Apply(actions []route.Action) []Failure {
	var failures []Failure

	for _, act := range actions {
		if act.Kind == route.Remove {
			// Remove uses the target already recorded in the shadow entry,
			// not a freshly resolved one and not the zone's current policy;
			// a vanished device file or a zone already dropped from the
			// zone set must not block tearing down a route that is going
			// away anyway.
			m.applyRemove(act)
			continue
		}

		z, ok := m.zones[act.ZoneID]
		if !ok || !z.Policy.HasRoutePolicy() {
			// Zone carries no route policy (e.g. the default zone) or is
			// not in the current zone set; nothing to push to the backend.
			continue
		}

		target, err := m.resolveTarget(z)
		if err != nil {
			m.log.Debug().Err(err).Str("zone", act.ZoneID).Msg("route target unavailable")
			if m.failureMode == FailureModeServfail {
				failures = append(failures, Failure{ZoneID: act.ZoneID, Err: err})
			}
			// fallback (default): drop the action silently, shadow stays
			// clean so a later observation can retry.
			continue
		}

		m.applyAdd(act, target)
	}

	return failures
}

func (m *Manager) applyAdd(act route.Action, target route.Target) {
	if _, exists := m.shadow[act.Prefix]; exists {
		// Duplicate Add: silently dropped.
		return
	}

	if err := m.backend.Install(act.Prefix, target); err != nil {
		if errors.Is(err, route.ErrAlreadyExists) {
			m.shadow[act.Prefix] = ShadowEntry{Prefix: act.Prefix, Target: target, ZoneID: act.ZoneID}
			return
		}
		// Other errors bubble up as a log only; shadow entry is not
		// recorded on install failure so a future observation can retry.
		m.log.Error().Err(err).Str("zone", act.ZoneID).Str("prefix", act.Prefix.String()).Msg("route install failed")
		return
	}

	m.shadow[act.Prefix] = ShadowEntry{Prefix: act.Prefix, Target: target, ZoneID: act.ZoneID}
}

func (m *Manager) applyRemove(act route.Action) {
	entry, exists := m.shadow[act.Prefix]
	if !exists {
		// Orphan Remove: silently dropped.
		return
	}

	err := m.backend.Withdraw(act.Prefix, entry.Target)
	// Regardless of backend error, the state machine transitions to
	// desired-absent/installed-absent: orphan removes are benign.
	delete(m.shadow, act.Prefix)
	if err != nil && !errors.Is(err, route.ErrNotFound) {
		m.log.Warn().Err(err).Str("zone", act.ZoneID).Str("prefix", act.Prefix.String()).Msg("route withdraw failed")
	}
}

// resolveTarget resolves a zone's route policy to a concrete next-hop
// descriptor, reading the device file on demand for device-targeted
// zones.
func (m *Manager) resolveTarget(z zone.Zone) (route.Target, error) {
	switch z.Policy.TargetType {
	case zone.TargetDevice:
		dev, err := readDeviceFile(z.Policy.TargetValue)
		if err != nil {
			return route.Target{}, err
		}
		return route.Target{Device: dev}, nil
	case zone.TargetGateway:
		addr, err := netip.ParseAddr(z.Policy.TargetValue)
		if err != nil {
			// Config validation should have rejected this already.
			return route.Target{}, err
		}
		return route.Target{Gateway: addr}, nil
	default:
		return route.Target{}, errors.New("routemanager: zone has no route policy")
	}
}

// Shadow returns a snapshot of the shadow state, for tests and
// diagnostics.
func (m *Manager) Shadow() map[netip.Prefix]ShadowEntry {
	out := make(map[netip.Prefix]ShadowEntry, len(m.shadow))
	for k, v := range m.shadow {
		out[k] = v
	}
	return out
}
