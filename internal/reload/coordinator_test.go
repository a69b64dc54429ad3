package reload

import (
	"net/netip"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/leshy-dns/leshy/internal/cache"
	"github.com/leshy-dns/leshy/internal/route"
	"github.com/leshy-dns/leshy/internal/routemanager"
	"github.com/leshy-dns/leshy/internal/zone"
)

func cacheKeyFor(name string) cache.Key {
	return cache.Key{Name: name, Qtype: dns.TypeA, Qclass: dns.ClassINET}
}

func sampleAnswer() *dns.Msg {
	m := new(dns.Msg)
	m.Answer = append(m.Answer, &dns.A{Hdr: dns.RR_Header{Ttl: 60}})
	return m
}

type mockBackend struct {
	installs  []netip.Prefix
	withdraws []netip.Prefix
}

func (b *mockBackend) Install(prefix netip.Prefix, target route.Target) error {
	b.installs = append(b.installs, prefix)
	return nil
}

func (b *mockBackend) Withdraw(prefix netip.Prefix, target route.Target) error {
	b.withdraws = append(b.withdraws, prefix)
	return nil
}

func gatewayZone(name, gateway string, statics ...string) zone.Zone {
	var cidrs []netip.Prefix
	for _, s := range statics {
		cidrs = append(cidrs, netip.MustParsePrefix(s))
	}
	return zone.Zone{
		Name:     name,
		ID:       name,
		Upstream: []zone.Endpoint{{Address: "127.0.0.1:5300"}},
		Domains:  []string{name + ".example.com"},
		Policy: zone.Policy{
			Mode:               zone.ModeInclusive,
			TargetType:         zone.TargetGateway,
			TargetValue:        gateway,
			StaticCIDRs:        cidrs,
			AggregationPrefix4: 24,
		},
	}
}

func TestReloadActivatesNewZoneStaticRoutes(t *testing.T) {
	b := &mockBackend{}
	c := New(64, 500*time.Millisecond, routemanager.FailureModeFallback, b)

	z := gatewayZone("corp", "10.0.0.1", "192.168.50.0/24")
	if _, err := c.Reload([]zone.Zone{z}, nil); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if len(b.installs) != 1 || b.installs[0].String() != "192.168.50.0/24" {
		t.Fatalf("expected static route install, got %+v", b.installs)
	}
}

func TestReloadRemovesDroppedZone(t *testing.T) {
	b := &mockBackend{}
	c := New(64, 500*time.Millisecond, routemanager.FailureModeFallback, b)

	z := gatewayZone("corp", "10.0.0.1", "192.168.50.0/24")
	if _, err := c.Reload([]zone.Zone{z}, nil); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if _, err := c.Reload(nil, nil); err != nil {
		t.Fatalf("second Reload: %v", err)
	}
	if len(b.withdraws) != 1 || b.withdraws[0].String() != "192.168.50.0/24" {
		t.Fatalf("expected static route withdrawn on zone removal, got %+v", b.withdraws)
	}
}

func TestReloadUnchangedZoneKeepsCacheState(t *testing.T) {
	b := &mockBackend{}
	c := New(64, 500*time.Millisecond, routemanager.FailureModeFallback, b)

	z := gatewayZone("corp", "10.0.0.1")
	if _, err := c.Reload([]zone.Zone{z}, nil); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	// Populate the zone's cache directly through the shared registry.
	key := cacheKeyFor("host.corp.example.com.")
	c.caches.For("corp", "127.0.0.1:5300").Set(key, sampleAnswer(), 60)

	// Reload with the identical zone definition: cache must survive.
	if _, err := c.Reload([]zone.Zone{z}, nil); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if _, _, ok := c.caches.For("corp", "127.0.0.1:5300").Get(key); !ok {
		t.Fatalf("expected cache entry to survive an unchanged-zone reload")
	}
}

func TestReloadModifiedZoneDropsCacheAndRoutes(t *testing.T) {
	b := &mockBackend{}
	c := New(64, 500*time.Millisecond, routemanager.FailureModeFallback, b)

	z := gatewayZone("corp", "10.0.0.1", "192.168.50.0/24")
	if _, err := c.Reload([]zone.Zone{z}, nil); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	key := cacheKeyFor("host.corp.example.com.")
	c.caches.For("corp", "127.0.0.1:5300").Set(key, sampleAnswer(), 60)

	modified := gatewayZone("corp", "10.0.0.2", "192.168.50.0/24")
	if _, err := c.Reload([]zone.Zone{modified}, nil); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if _, _, ok := c.caches.For("corp", "127.0.0.1:5300").Get(key); ok {
		t.Fatalf("expected cache to be dropped for a modified zone")
	}
	if len(b.withdraws) != 1 {
		t.Fatalf("expected old static route withdrawn on modification, got %+v", b.withdraws)
	}
	if len(b.installs) != 2 {
		t.Fatalf("expected static route reinstalled under new policy, got %+v", b.installs)
	}
}

func TestShutdownWithdrawsAllRoutes(t *testing.T) {
	b := &mockBackend{}
	c := New(64, 500*time.Millisecond, routemanager.FailureModeFallback, b)

	corp := gatewayZone("corp", "10.0.0.1", "192.168.50.0/24")
	sales := gatewayZone("sales", "10.0.0.2", "192.168.60.0/24")
	if _, err := c.Reload([]zone.Zone{corp, sales}, nil); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	c.Shutdown()

	if len(b.withdraws) != 2 {
		t.Fatalf("expected both static routes withdrawn on shutdown, got %+v", b.withdraws)
	}
}
