// Package zone defines the zone data model shared across the resolution
// pipeline: upstream lists, route policy, and match rules.
package zone

import (
	"fmt"
	"net/netip"
	"path/filepath"
)

// Mode is a zone's match-to-route polarity.
type Mode string

const (
	// ModeInclusive routes names that match the zone's domains/patterns.
	ModeInclusive Mode = "inclusive"
	// ModeExclusive routes every name the zone does NOT match; a match
	// excludes the name from routing (the default upstream still answers it).
	ModeExclusive Mode = "exclusive"
)

// TargetType selects how a zone's route policy names its next hop.
type TargetType string

const (
	TargetDevice  TargetType = "device"
	TargetGateway TargetType = "gateway"
)

// PatternKind selects how Patterns are matched against a query name.
type PatternKind string

const (
	PatternSubstring PatternKind = "substring"
	PatternRegex     PatternKind = "regex"
)

// Endpoint is one upstream DNS server in a zone's server list.
type Endpoint struct {
	Address     string // host:port
	CacheMinTTL uint32 // floor, seconds; 0 = no floor
	CacheMaxTTL uint32 // ceiling, seconds; 0 = no ceiling
}

// Policy is a zone's route installation policy. The zero value (no
// Target) means the zone does not install routes at all — queries are
// still forwarded and cached, but extracted addresses are discarded.
type Policy struct {
	Mode               Mode
	TargetType         TargetType
	TargetValue        string // device file path, or gateway IP literal
	StaticCIDRs        []netip.Prefix
	AggregationPrefix4 int // 0 = unset -> host routes (/32)
	AggregationPrefix6 int // 0 = unset -> host routes (/128)
}

// HasRoutePolicy reports whether a zone installs routes at all.
func (p Policy) HasRoutePolicy() bool {
	return p.TargetType != ""
}

// Zone is a named policy bundle: matcher rules, upstream DNS, route target.
type Zone struct {
	Name     string
	ID       string // stable identifier used by the aggregator/manager; equals Name
	Upstream []Endpoint
	// InheritDefaultUpstream, when true, means Upstream is ignored and the
	// server's default_upstream list is used instead.
	InheritDefaultUpstream bool
	Policy                 Policy

	Domains  []string // exact or suffix match, lowercase, no trailing dot
	Patterns []string
	PatternKind PatternKind
}

// Validate checks the structural invariants a single zone must satisfy
// (names, well-formed target). Uniqueness across zones is checked by the
// config loader, not here.
func (z Zone) Validate() error {
	if z.Name == "" {
		return fmt.Errorf("zone: name must not be empty")
	}
	if z.Policy.HasRoutePolicy() {
		switch z.Policy.TargetType {
		case TargetDevice:
			if !filepath.IsAbs(z.Policy.TargetValue) {
				return fmt.Errorf("zone %s: device route_target must be an absolute path", z.Name)
			}
		case TargetGateway:
			if _, err := netip.ParseAddr(z.Policy.TargetValue); err != nil {
				return fmt.Errorf("zone %s: gateway route_target %q is not a valid IP: %w", z.Name, z.Policy.TargetValue, err)
			}
		default:
			return fmt.Errorf("zone %s: route_type must be %q or %q", z.Name, TargetDevice, TargetGateway)
		}
		if z.Policy.AggregationPrefix4 < 0 || z.Policy.AggregationPrefix4 > 32 {
			return fmt.Errorf("zone %s: route_aggregation_prefix must be between 0 and 32, got %d", z.Name, z.Policy.AggregationPrefix4)
		}
		if z.Policy.AggregationPrefix6 < 0 || z.Policy.AggregationPrefix6 > 128 {
			return fmt.Errorf("zone %s: route_aggregation_prefix (v6) must be between 0 and 128, got %d", z.Name, z.Policy.AggregationPrefix6)
		}
	}
	return nil
}

// EffectiveUpstream resolves a zone's upstream endpoint list against the
// server's default, following InheritDefaultUpstream.
func (z Zone) EffectiveUpstream(defaultUpstream []Endpoint) []Endpoint {
	if z.InheritDefaultUpstream || len(z.Upstream) == 0 {
		return defaultUpstream
	}
	return z.Upstream
}

// SameMatchAndPolicy reports whether two zone definitions are identical
// in every field the Reload Coordinator treats as significant for
// deciding whether to preserve live state: same name and all policy
// fields.
func SameMatchAndPolicy(a, b Zone) bool {
	if a.Name != b.Name || a.PatternKind != b.PatternKind {
		return false
	}
	if !stringSliceEqual(a.Domains, b.Domains) || !stringSliceEqual(a.Patterns, b.Patterns) {
		return false
	}
	if a.InheritDefaultUpstream != b.InheritDefaultUpstream {
		return false
	}
	if !endpointsEqual(a.Upstream, b.Upstream) {
		return false
	}
	return policyEqual(a.Policy, b.Policy)
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func endpointsEqual(a, b []Endpoint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func policyEqual(a, b Policy) bool {
	if a.Mode != b.Mode || a.TargetType != b.TargetType || a.TargetValue != b.TargetValue {
		return false
	}
	if a.AggregationPrefix4 != b.AggregationPrefix4 || a.AggregationPrefix6 != b.AggregationPrefix6 {
		return false
	}
	if len(a.StaticCIDRs) != len(b.StaticCIDRs) {
		return false
	}
	for i := range a.StaticCIDRs {
		if a.StaticCIDRs[i] != b.StaticCIDRs[i] {
			return false
		}
	}
	return true
}

// DefaultZoneID is the pseudo zone-id used for queries that match no
// configured zone.
const DefaultZoneID = "default"
