package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

const baseConfig = `
listen_address = "0.0.0.0:53"
default_upstream = ["1.1.1.1:53", "8.8.8.8:53"]
route_failure_mode = "fallback"
cache_size = 4096

[[zones]]
name = "corp-vpn"
dns_servers = ["10.10.0.1:53"]
mode = "inclusive"
route_type = "dev"
route_target = "/etc/leshy/corp-vpn.device"
domains = ["corp.example.com"]
`

func TestLoadBaseConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "leshy.toml", baseConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddress != "0.0.0.0:53" {
		t.Fatalf("got listen_address %q", cfg.ListenAddress)
	}
	if len(cfg.DefaultUpstream) != 2 {
		t.Fatalf("want 2 default upstreams, got %d", len(cfg.DefaultUpstream))
	}
	if len(cfg.Zones) != 1 || cfg.Zones[0].Name != "corp-vpn" {
		t.Fatalf("unexpected zones: %+v", cfg.Zones)
	}
	if !cfg.Zones[0].Policy.HasRoutePolicy() {
		t.Fatalf("expected corp-vpn to have a route policy")
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "leshy.toml", baseConfig+"\nbogus_key = true\n")

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown top-level key")
	}
}

func TestLoadMergesConfigD(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "leshy.toml", baseConfig)
	writeFile(t, dir, "config.d/10-extra-zone.toml", `
[[zones]]
name = "streaming"
dns_servers = ["9.9.9.9:53"]
mode = "inclusive"
domains = ["video.example.net"]
`)
	writeFile(t, dir, "config.d/20-override.toml", `
cache_size = 8192
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Zones) != 2 {
		t.Fatalf("want 2 zones after config.d merge, got %d", len(cfg.Zones))
	}
	if cfg.CacheSize != 8192 {
		t.Fatalf("want config.d override to win, got cache_size=%d", cfg.CacheSize)
	}
}

func TestLoadRejectsDuplicateZoneNames(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "leshy.toml", baseConfig+`
[[zones]]
name = "corp-vpn"
dns_servers = ["10.10.0.2:53"]
mode = "inclusive"
domains = ["other.example.com"]
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for duplicate zone name")
	}
}

func TestLoadRejectsOutOfRangeAggregationPrefix(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "leshy.toml", `
listen_address = "0.0.0.0:53"
default_upstream = ["1.1.1.1:53"]

[[zones]]
name = "corp-vpn"
dns_servers = ["10.10.0.1:53"]
route_type = "via"
route_target = "10.0.0.1"
route_aggregation_prefix = 33
domains = ["corp.example.com"]
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for route_aggregation_prefix out of range")
	}
}

func TestLoadRichEndpointObject(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "leshy.toml", `
listen_address = "0.0.0.0:53"
default_upstream = [{ address = "1.1.1.1:53", cache_min_ttl = 60, cache_max_ttl = 3600 }]
route_failure_mode = "servfail"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.DefaultUpstream) != 1 {
		t.Fatalf("want 1 default upstream, got %d", len(cfg.DefaultUpstream))
	}
	ep := cfg.DefaultUpstream[0]
	if ep.Address != "1.1.1.1:53" || ep.CacheMinTTL != 60 || ep.CacheMaxTTL != 3600 {
		t.Fatalf("unexpected endpoint: %+v", ep)
	}
}

func TestLoadAppliesServerWideTTLDefaultsToEndpointsMissingTheirOwn(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "leshy.toml", `
listen_address = "0.0.0.0:53"
route_failure_mode = "fallback"
cache_min_ttl = 30
cache_max_ttl = 600
default_upstream = ["1.1.1.1:53", { address = "8.8.8.8:53", cache_max_ttl = 3600 }]

[[zones]]
name = "corp-vpn"
dns_servers = ["10.10.0.1:53"]
mode = "inclusive"
domains = ["corp.example.com"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	bare := cfg.DefaultUpstream[0]
	if bare.CacheMinTTL != 30 || bare.CacheMaxTTL != 600 {
		t.Fatalf("expected server-wide TTL defaults on bare endpoint, got %+v", bare)
	}

	rich := cfg.DefaultUpstream[1]
	if rich.CacheMinTTL != 30 || rich.CacheMaxTTL != 3600 {
		t.Fatalf("expected per-endpoint cache_max_ttl to win over server default, got %+v", rich)
	}

	zoneEp := cfg.Zones[0].Upstream[0]
	if zoneEp.CacheMinTTL != 30 || zoneEp.CacheMaxTTL != 600 {
		t.Fatalf("expected server-wide TTL defaults on zone endpoint, got %+v", zoneEp)
	}
}

func TestLoadMissingDefaultUpstreamFallsBackToWellKnownResolvers(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "leshy.toml", `
listen_address = "0.0.0.0:53"
route_failure_mode = "fallback"

[[zones]]
name = "orphan"
mode = "inclusive"
domains = ["example.org"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.DefaultUpstream) == 0 {
		t.Fatalf("expected a fallback default_upstream when none is configured")
	}
}
