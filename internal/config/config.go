// Package config loads and validates leshy's TOML configuration into
// the zone.Zone model the rest of the server consumes, including the
// config.d/ directory overlay merge and unknown-key rejection. The TOML
// syntax itself is parsed by github.com/BurntSushi/toml.
package config

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/leshy-dns/leshy/internal/zone"
	"github.com/leshy-dns/leshy/pkg/resolvers"
)

// RouteFailureMode mirrors routemanager.FailureMode without importing
// that package, keeping config free of a dependency on the runtime.
type RouteFailureMode string

const (
	RouteFailureFallback RouteFailureMode = "fallback"
	RouteFailureServfail RouteFailureMode = "servfail"
)

// LogSection configures the process logger (SPEC_FULL.md §6.2).
type LogSection struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

// file is the raw shape of a single TOML document — either the main
// config file or one config.d/*.toml overlay.
type file struct {
	ListenAddress         string        `toml:"listen_address"`
	DefaultUpstream       []interface{} `toml:"default_upstream"`
	RouteFailureMode      string        `toml:"route_failure_mode"`
	AutoReload            bool          `toml:"auto_reload"`
	CacheSize             int           `toml:"cache_size"`
	CacheMinTTL           int           `toml:"cache_min_ttl"`
	CacheMaxTTL           int           `toml:"cache_max_ttl"`
	RouteAggregationPrefix int          `toml:"route_aggregation_prefix"`
	Log                   LogSection    `toml:"log"`
	Zones                 []zoneSection `toml:"zones"`
}

type zoneSection struct {
	Name                   string        `toml:"name"`
	DNSServers             []interface{} `toml:"dns_servers"`
	Mode                   string        `toml:"mode"`
	RouteType              string        `toml:"route_type"`
	RouteTarget            string        `toml:"route_target"`
	Domains                []string      `toml:"domains"`
	Patterns               []string      `toml:"patterns"`
	PatternType            string        `toml:"pattern_type"`
	StaticRoutes           []string      `toml:"static_routes"`
	RouteAggregationPrefix int           `toml:"route_aggregation_prefix"`
}

// Config is the fully parsed, not-yet-validated server configuration.
type Config struct {
	ListenAddress          string
	DefaultUpstream        []zone.Endpoint
	RouteFailureMode       RouteFailureMode
	AutoReload             bool
	CacheSize              int
	CacheMinTTL            uint32
	CacheMaxTTL            uint32
	RouteAggregationPrefix int
	Log                    LogSection
	Zones                  []zone.Zone
}

// Load reads and merges the main config file plus any config.d/*.toml
// overlay.
func Load(path string) (*Config, error) {
	main, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	overlayPaths, err := overlayFiles(path)
	if err != nil {
		return nil, err
	}
	for _, op := range overlayPaths {
		overlay, err := decodeFile(op)
		if err != nil {
			return nil, err
		}
		mergeOverlay(main, overlay, op)
	}

	cfg, err := build(main)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string) (*file, error) {
	var f file
	meta, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			// Keys of rich endpoint tables are decoded into []interface{}
			// and read by decodeEndpoints, so the decoder never marks them.
			if n := len(k); n >= 2 && (k[n-2] == "default_upstream" || k[n-2] == "dns_servers") {
				switch k[n-1] {
				case "address", "cache_min_ttl", "cache_max_ttl":
					continue
				}
			}
			keys = append(keys, k.String())
		}
		if len(keys) > 0 {
			sort.Strings(keys)
			return nil, fmt.Errorf("config: %s: unknown key(s): %s", path, strings.Join(keys, ", "))
		}
	}
	return &f, nil
}

// build converts the raw TOML shape into the zone.Zone domain model.
func build(f *file) (*Config, error) {
	cfg := &Config{
		ListenAddress:          f.ListenAddress,
		RouteFailureMode:       RouteFailureMode(defaultString(f.RouteFailureMode, string(RouteFailureFallback))),
		AutoReload:             f.AutoReload,
		CacheSize:              defaultInt(f.CacheSize, 1024),
		CacheMinTTL:            uint32(f.CacheMinTTL),
		CacheMaxTTL:            uint32(f.CacheMaxTTL),
		RouteAggregationPrefix: f.RouteAggregationPrefix,
		Log:                    f.Log,
	}

	defaultUpstream, err := decodeEndpoints(f.DefaultUpstream)
	if err != nil {
		return nil, fmt.Errorf("config: default_upstream: %w", err)
	}
	if len(defaultUpstream) == 0 {
		// No default_upstream key at all: fail safe to a small set of
		// well-known public resolvers rather than leave every
		// default-zone query unanswerable.
		defaultUpstream = resolvers.Fallback()
	}
	applyTTLDefaults(defaultUpstream, cfg.CacheMinTTL, cfg.CacheMaxTTL)
	cfg.DefaultUpstream = defaultUpstream

	seen := make(map[string]bool, len(f.Zones))
	for _, zs := range f.Zones {
		z, err := buildZone(zs, cfg.RouteAggregationPrefix)
		if err != nil {
			return nil, err
		}
		applyTTLDefaults(z.Upstream, cfg.CacheMinTTL, cfg.CacheMaxTTL)
		if seen[z.Name] {
			return nil, fmt.Errorf("config: duplicate zone name %q", z.Name)
		}
		seen[z.Name] = true
		cfg.Zones = append(cfg.Zones, z)
	}

	return cfg, nil
}

func buildZone(zs zoneSection, globalAggPrefix int) (zone.Zone, error) {
	if zs.Name == "" {
		return zone.Zone{}, fmt.Errorf("config: zone with empty name")
	}

	endpoints, err := decodeEndpoints(zs.DNSServers)
	if err != nil {
		return zone.Zone{}, fmt.Errorf("config: zone %s: dns_servers: %w", zs.Name, err)
	}

	z := zone.Zone{
		Name:                   zs.Name,
		ID:                     zs.Name,
		Upstream:               endpoints,
		InheritDefaultUpstream: len(endpoints) == 0,
		Domains:                lowerAll(zs.Domains),
		Patterns:               zs.Patterns,
		PatternKind:            zone.PatternKind(defaultString(zs.PatternType, string(zone.PatternSubstring))),
	}

	mode := zone.Mode(defaultString(zs.Mode, string(zone.ModeInclusive)))

	aggV4 := zs.RouteAggregationPrefix
	aggV6 := 0
	if aggV4 == 0 {
		aggV4 = globalAggPrefix
	}

	if zs.RouteType != "" || zs.RouteTarget != "" {
		var targetType zone.TargetType
		switch zs.RouteType {
		case "dev":
			targetType = zone.TargetDevice
		case "via":
			targetType = zone.TargetGateway
		default:
			return zone.Zone{}, fmt.Errorf("config: zone %s: route_type must be %q or %q", zs.Name, "dev", "via")
		}

		staticCIDRs, err := parseCIDRs(zs.StaticRoutes)
		if err != nil {
			return zone.Zone{}, fmt.Errorf("config: zone %s: static_routes: %w", zs.Name, err)
		}

		z.Policy = zone.Policy{
			Mode:               mode,
			TargetType:         targetType,
			TargetValue:        zs.RouteTarget,
			StaticCIDRs:        staticCIDRs,
			AggregationPrefix4: aggV4,
			AggregationPrefix6: aggV6,
		}
	} else {
		z.Policy = zone.Policy{Mode: mode}
	}

	if err := z.Validate(); err != nil {
		return zone.Zone{}, err
	}

	return z, nil
}

// applyTTLDefaults fills in an endpoint's cache_min_ttl/cache_max_ttl
// from the server-wide defaults when the endpoint didn't set its own;
// per-endpoint values always win over the server-wide default.
func applyTTLDefaults(endpoints []zone.Endpoint, minTTL, maxTTL uint32) {
	for i := range endpoints {
		if endpoints[i].CacheMinTTL == 0 {
			endpoints[i].CacheMinTTL = minTTL
		}
		if endpoints[i].CacheMaxTTL == 0 {
			endpoints[i].CacheMaxTTL = maxTTL
		}
	}
}

// decodeEndpoints accepts a dns_servers / default_upstream array whose
// elements are either bare "host:port" strings or rich
// {address, cache_min_ttl, cache_max_ttl} tables.
func decodeEndpoints(raw []interface{}) ([]zone.Endpoint, error) {
	out := make([]zone.Endpoint, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			out = append(out, zone.Endpoint{Address: v})
		case map[string]interface{}:
			ep := zone.Endpoint{}
			if addr, ok := v["address"].(string); ok {
				ep.Address = addr
			} else {
				return nil, fmt.Errorf("endpoint table missing string 'address'")
			}
			if min, ok := toInt(v["cache_min_ttl"]); ok {
				ep.CacheMinTTL = uint32(min)
			}
			if max, ok := toInt(v["cache_max_ttl"]); ok {
				ep.CacheMaxTTL = uint32(max)
			}
			out = append(out, ep)
		default:
			return nil, fmt.Errorf("endpoint entry must be a string or table, got %T", item)
		}
	}
	return out, nil
}

func toInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

func parseCIDRs(raw []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(raw))
	for _, s := range raw {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", s, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimSuffix(s, "."))
	}
	return out
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func defaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
