package routemanager

import (
	"errors"

	"github.com/leshy-dns/leshy/internal/aggregator"
	"github.com/leshy-dns/leshy/internal/route"
	"github.com/leshy-dns/leshy/internal/zone"
)

// ActivateZone installs a zone's static CIDRs: it synthesizes
// Add(zone-id, prefix) for every static CIDR and drives them through the
// same path as dynamically observed routes. Failure to install a static
// route is logged but never prevents startup.
func (m *Manager) ActivateZone(z zone.Zone, agg *aggregator.Aggregator) {
	if !z.Policy.HasRoutePolicy() || len(z.Policy.StaticCIDRs) == 0 {
		return
	}
	var actions []route.Action
	for _, cidr := range z.Policy.StaticCIDRs {
		actions = append(actions, agg.AddStatic(z.ID, cidr)...)
	}
	if failures := m.Apply(actions); len(failures) > 0 {
		for _, f := range failures {
			m.log.Warn().Err(f.Err).Str("zone", f.ZoneID).Msg("static route activation failed, continuing startup")
		}
	}
}

// DeactivateZone withdraws every route (static and dynamic) owned by a
// zone being torn down.
func (m *Manager) DeactivateZone(zoneID string, agg *aggregator.Aggregator) {
	actions := agg.RemoveZone(zoneID)
	m.Apply(actions)
}

// WithdrawAll withdraws every prefix currently in the shadow table, as
// the last step of a graceful shutdown; the shadow state is treated as
// authoritative. It is a no-op on abrupt termination, which never calls
// it.
func (m *Manager) WithdrawAll() {
	for prefix, entry := range m.shadow {
		if err := m.backend.Withdraw(prefix, entry.Target); err != nil && !errors.Is(err, route.ErrNotFound) {
			m.log.Warn().Err(err).Str("zone", entry.ZoneID).Str("prefix", prefix.String()).Msg("route withdraw failed during shutdown")
		}
		delete(m.shadow, prefix)
	}
}
