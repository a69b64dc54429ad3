// Package aggregator maintains, per zone, the set of installed CIDR
// prefixes, compressing observed host addresses into wider prefixes and
// resolving cross-zone conflicts by splitting.
package aggregator

import (
	"net/netip"
	"sort"

	"github.com/leshy-dns/leshy/internal/route"
)

// installedPrefix is one entry of the aggregator's per-zone prefix set.
type installedPrefix struct {
	zoneID       string
	prefix       netip.Prefix
	contributors map[netip.Addr]struct{}
	static       bool
}

// Aggregator is not safe for concurrent use; callers serialize access
// (the mutator package holds one lock around it).
type Aggregator struct {
	// zones maps zone-id -> prefix -> entry.
	zones map[string]map[netip.Prefix]*installedPrefix
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{zones: make(map[string]map[netip.Prefix]*installedPrefix)}
}

func (a *Aggregator) zoneMap(zoneID string) map[netip.Prefix]*installedPrefix {
	m, ok := a.zones[zoneID]
	if !ok {
		m = make(map[netip.Prefix]*installedPrefix)
		a.zones[zoneID] = m
	}
	return m
}

// findOwnZoneCover returns the installed prefix in zoneID that covers ip,
// if any.
func (a *Aggregator) findOwnZoneCover(zoneID string, ip netip.Addr) *installedPrefix {
	for _, e := range a.zones[zoneID] {
		if e.prefix.Contains(ip) {
			return e
		}
	}
	return nil
}

// otherZoneOverlaps returns every installed prefix, in zones other than
// zoneID, that overlaps c.
func (a *Aggregator) otherZoneOverlaps(zoneID string, c netip.Prefix) []*installedPrefix {
	var out []*installedPrefix
	for zid, prefixes := range a.zones {
		if zid == zoneID {
			continue
		}
		for _, e := range prefixes {
			if e.prefix.Overlaps(c) {
				out = append(out, e)
			}
		}
	}
	// Deterministic order: helps tests and keeps action ordering stable.
	sort.Slice(out, func(i, j int) bool {
		if out[i].zoneID != out[j].zoneID {
			return out[i].zoneID < out[j].zoneID
		}
		return out[i].prefix.String() < out[j].prefix.String()
	})
	return out
}

// Observe implements the observe(zone-id, ip) operation. Resolved-address
// TTLs govern cache eviction only; dynamic routes are not TTL-evicted,
// so no TTL is threaded through here.
func (a *Aggregator) Observe(zoneID string, ip netip.Addr, aggBits int) []route.Action {
	if existing := a.findOwnZoneCover(zoneID, ip); existing != nil {
		existing.contributors[ip] = struct{}{}
		return nil
	}

	c := canonicalPrefix(ip, aggBits)
	overlaps := a.otherZoneOverlaps(zoneID, c)

	var super *installedPrefix
	var subs []*installedPrefix
	for _, e := range overlaps {
		if isSuperOrEqual(e.prefix, c) {
			super = e
			break
		}
		if isStrictSub(c, e.prefix) {
			subs = append(subs, e)
		}
	}

	var actions []route.Action

	switch {
	case super != nil:
		// C collides with a super (or equal) prefix owned by another
		// zone. Split that zone's block around C, re-homed to the same
		// (other) zone, then claim C for zoneID.
		actions = append(actions, route.Action{Kind: route.Remove, ZoneID: super.zoneID, Prefix: super.prefix})
		delete(a.zones[super.zoneID], super.prefix)

		tiles := tileExcluding(super.prefix, []netip.Prefix{c})
		for _, t := range tiles {
			entry := &installedPrefix{zoneID: super.zoneID, prefix: t, contributors: redistribute(super.contributors, t)}
			a.zoneMap(super.zoneID)[t] = entry
			actions = append(actions, route.Action{Kind: route.Add, ZoneID: super.zoneID, Prefix: t})
		}

		a.install(zoneID, c, map[netip.Addr]struct{}{ip: {}}, false)
		actions = append(actions, route.Action{Kind: route.Add, ZoneID: zoneID, Prefix: c})

	case len(subs) > 0:
		// One or more narrower prefixes owned by other zones already live
		// inside C. Keep them in place; install zoneID at the smaller
		// granularity required to tile C around them.
		excludes := make([]netip.Prefix, len(subs))
		for i, s := range subs {
			excludes[i] = s.prefix
		}
		tiles := tileExcluding(c, excludes)
		for _, t := range tiles {
			a.install(zoneID, t, map[netip.Addr]struct{}{ip: {}}, false)
			actions = append(actions, route.Action{Kind: route.Add, ZoneID: zoneID, Prefix: t})
		}

	default:
		a.install(zoneID, c, map[netip.Addr]struct{}{ip: {}}, false)
		actions = append(actions, route.Action{Kind: route.Add, ZoneID: zoneID, Prefix: c})
	}

	return actions
}

func (a *Aggregator) install(zoneID string, prefix netip.Prefix, contributors map[netip.Addr]struct{}, static bool) {
	a.zoneMap(zoneID)[prefix] = &installedPrefix{zoneID: zoneID, prefix: prefix, contributors: contributors, static: static}
}

// redistribute partitions a contributor set by membership in t. IPs
// that no longer fall in any retained tile (the ceded address) are
// simply dropped.
func redistribute(contributors map[netip.Addr]struct{}, t netip.Prefix) map[netip.Addr]struct{} {
	out := make(map[netip.Addr]struct{})
	for ip := range contributors {
		if t.Contains(ip) {
			out[ip] = struct{}{}
		}
	}
	return out
}

// AddStatic installs a zone's unconditional static CIDR. Static routes
// bypass cross-zone conflict resolution: they are operator-declared and
// assumed disjoint; an overlap is the operator's responsibility, not a
// case the aggregator will try to resolve.
func (a *Aggregator) AddStatic(zoneID string, prefix netip.Prefix) []route.Action {
	if e, ok := a.zoneMap(zoneID)[prefix]; ok {
		e.static = true
		return nil
	}
	a.install(zoneID, prefix, map[netip.Addr]struct{}{}, true)
	return []route.Action{{Kind: route.Add, ZoneID: zoneID, Prefix: prefix}}
}

// RemoveZone tears down every prefix (dynamic and static) owned by
// zoneID: full teardown on removal.
func (a *Aggregator) RemoveZone(zoneID string) []route.Action {
	prefixes := a.zones[zoneID]
	if len(prefixes) == 0 {
		delete(a.zones, zoneID)
		return nil
	}
	actions := make([]route.Action, 0, len(prefixes))
	// Deterministic order for tests/logging.
	keys := make([]netip.Prefix, 0, len(prefixes))
	for p := range prefixes {
		keys = append(keys, p)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	for _, p := range keys {
		actions = append(actions, route.Action{Kind: route.Remove, ZoneID: zoneID, Prefix: p})
	}
	delete(a.zones, zoneID)
	return actions
}

// InstalledPrefixes returns a snapshot of every prefix currently owned by
// zoneID, for tests and diagnostics.
func (a *Aggregator) InstalledPrefixes(zoneID string) []netip.Prefix {
	prefixes := a.zones[zoneID]
	out := make([]netip.Prefix, 0, len(prefixes))
	for p := range prefixes {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
