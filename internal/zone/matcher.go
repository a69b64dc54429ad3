package zone

import (
	"regexp"
	"strings"
)

// Matcher classifies query names against a fixed, ordered set of zones.
// It is stateless given the zone set it was built with: the same
// (name, zones) pair always yields the same result.
type Matcher struct {
	zones   []Zone
	regexes []*regexp.Regexp // parallel to zones; nil entry if not regex-kind or unused
}

// NewMatcher compiles regex patterns once and returns a Matcher ready to
// classify names against zones in declared order.
func NewMatcher(zones []Zone) (*Matcher, error) {
	m := &Matcher{zones: zones, regexes: make([]*regexp.Regexp, len(zones))}
	for i, z := range zones {
		if z.PatternKind != PatternRegex || len(z.Patterns) == 0 {
			continue
		}
		combined := "(?:" + strings.Join(z.Patterns, ")|(?:") + ")"
		re, err := regexp.Compile(combined)
		if err != nil {
			return nil, err
		}
		m.regexes[i] = re
	}
	return m, nil
}

// Classify returns the matched zone-id (or DefaultZoneID) and whether
// the match is route-relevant for that zone's policy.
func (m *Matcher) Classify(name string) (zoneID string, routeRelevant bool) {
	name = normalize(name)
	if name == "" {
		return DefaultZoneID, false
	}

	for i, z := range m.zones {
		matched := m.zoneMatches(i, z, name)
		switch z.Policy.Mode {
		case ModeExclusive:
			if matched {
				// Matched an exclusive-mode zone: excluded from routing,
				// default upstream answers it. Exclusivity short-circuits;
				// no other zone is consulted.
				return DefaultZoneID, false
			}
			// A non-match against an exclusive zone means the name belongs
			// to that zone for routing purposes.
			return z.ID, true
		default: // ModeInclusive (and empty, which defaults to inclusive)
			if matched {
				return z.ID, true
			}
		}
	}

	return DefaultZoneID, false
}

func (m *Matcher) zoneMatches(i int, z Zone, name string) bool {
	for _, d := range z.Domains {
		d = normalize(d)
		if name == d || strings.HasSuffix(name, "."+d) {
			return true
		}
	}
	if len(z.Patterns) == 0 {
		return false
	}
	switch z.PatternKind {
	case PatternRegex:
		if re := m.regexes[i]; re != nil {
			return re.MatchString(name)
		}
		return false
	default: // PatternSubstring
		for _, p := range z.Patterns {
			if strings.Contains(name, p) {
				return true
			}
		}
		return false
	}
}

// normalize lowercases a DNS name and strips a trailing root dot.
func normalize(name string) string {
	name = strings.ToLower(name)
	return strings.TrimSuffix(name, ".")
}
