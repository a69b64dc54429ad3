package cache

import (
	"testing"
	"time"

	"github.com/miekg/dns"
)

func sampleMsg() *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion("example.com.", dns.TypeA)
	m.Answer = append(m.Answer, &dns.A{
		Hdr: dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
	})
	return m
}

func TestCacheHitWithinTTL(t *testing.T) {
	c := New(16)
	key := Key{Name: "example.com.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	c.Set(key, sampleMsg(), 60)

	entry, remaining, ok := c.Get(key)
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if entry == nil {
		t.Fatalf("expected non-nil entry")
	}
	if remaining == 0 || remaining > 60 {
		t.Fatalf("remaining TTL %d out of expected (0, 60] range", remaining)
	}
}

func TestCacheMissUnknownKey(t *testing.T) {
	c := New(16)
	_, _, ok := c.Get(Key{Name: "nope.example.", Qtype: dns.TypeA, Qclass: dns.ClassINET})
	if ok {
		t.Fatalf("expected miss for unknown key")
	}
}

func TestCacheExpiredEntryNeverServed(t *testing.T) {
	c := New(16)
	key := Key{Name: "example.com.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	// Insert with a 1s TTL, then sleep past it.
	c.Set(key, sampleMsg(), 1)
	time.Sleep(1200 * time.Millisecond)

	_, _, ok := c.Get(key)
	if ok {
		t.Fatalf("expired entry must never be served")
	}
}

func TestRegistryPerZoneIsolation(t *testing.T) {
	r := NewRegistry(16)
	key := Key{Name: "example.com.", Qtype: dns.TypeA, Qclass: dns.ClassINET}

	cA := r.For("zoneA", "10.0.0.2:53")
	cA.Set(key, sampleMsg(), 60)

	cB := r.For("zoneB", "10.0.0.2:53")
	if _, _, ok := cB.Get(key); ok {
		t.Fatalf("zoneB must not see zoneA's cache entry for the same upstream")
	}
}

func TestRegistryDropRemovesZoneCaches(t *testing.T) {
	r := NewRegistry(16)
	key := Key{Name: "example.com.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	c := r.For("zoneA", "10.0.0.2:53")
	c.Set(key, sampleMsg(), 60)

	r.Drop("zoneA")

	fresh := r.For("zoneA", "10.0.0.2:53")
	if _, _, ok := fresh.Get(key); ok {
		t.Fatalf("expected a fresh cache after Drop")
	}
}
