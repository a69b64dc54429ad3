package forwarder

import (
	"github.com/miekg/dns"

	"github.com/leshy-dns/leshy/internal/zone"
)

// DefaultNegativeTTL is used for NXDOMAIN responses that carry no SOA
// record to source a minimum TTL from.
const DefaultNegativeTTL = 30

// AnswerTTL computes the TTL to store a positive answer under: the
// minimum TTL across the answer section, clamped by the endpoint's
// configured floor/ceiling.
func AnswerTTL(msg *dns.Msg, ep zone.Endpoint) uint32 {
	if len(msg.Answer) == 0 {
		return clamp(DefaultNegativeTTL, ep)
	}
	min := msg.Answer[0].Header().Ttl
	for _, rr := range msg.Answer[1:] {
		if t := rr.Header().Ttl; t < min {
			min = t
		}
	}
	return clamp(min, ep)
}

// NegativeTTL computes the TTL to store an NXDOMAIN answer under, per
// RFC 2308: the SOA record's MINIMUM field if present, else
// DefaultNegativeTTL, both still subject to the endpoint's clamp.
func NegativeTTL(msg *dns.Msg, ep zone.Endpoint) uint32 {
	for _, rr := range msg.Ns {
		if soa, ok := rr.(*dns.SOA); ok {
			return clamp(soa.Minttl, ep)
		}
	}
	return clamp(DefaultNegativeTTL, ep)
}

func clamp(ttl uint32, ep zone.Endpoint) uint32 {
	if ep.CacheMinTTL > 0 && ttl < ep.CacheMinTTL {
		ttl = ep.CacheMinTTL
	}
	if ep.CacheMaxTTL > 0 && ttl > ep.CacheMaxTTL {
		ttl = ep.CacheMaxTTL
	}
	if ttl == 0 {
		ttl = 1
	}
	return ttl
}
