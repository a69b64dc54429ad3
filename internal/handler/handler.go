// Package handler implements the per-query pipeline: classify, check
// cache, forward with failover, extract addresses, feed the aggregator
// and route manager, answer the client.
package handler

import (
	"context"
	"net/netip"
	"strings"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"

	"github.com/leshy-dns/leshy/internal/cache"
	"github.com/leshy-dns/leshy/internal/forwarder"
	"github.com/leshy-dns/leshy/internal/logging"
	"github.com/leshy-dns/leshy/internal/mutator"
	"github.com/leshy-dns/leshy/internal/routemanager"
	"github.com/leshy-dns/leshy/internal/zone"
)

// Handler implements dns.Handler, wiring the classify -> cache ->
// forward -> observe pipeline together. mut is shared by every Handler
// instance the Reload Coordinator builds over the life of the process —
// never rebuilt per reload — so a reload and a query against the
// handler it is replacing always serialize on the same lock.
type Handler struct {
	matcher         *zone.Matcher
	zonesByID       map[string]zone.Zone
	defaultUpstream []zone.Endpoint

	caches *cache.Registry
	fwd    *forwarder.Forwarder
	mut    *mutator.Mutator

	log zerolog.Logger
}

// New builds a Handler over a fixed zone set. Callers rebuild a Handler
// (via the Reload Coordinator) rather than mutating one in place; mut
// is the Coordinator's long-lived Mutator, shared across every Handler
// it ever builds.
func New(zones []zone.Zone, defaultUpstream []zone.Endpoint, caches *cache.Registry, fwd *forwarder.Forwarder, mut *mutator.Mutator) (*Handler, error) {
	matcher, err := zone.NewMatcher(zones)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]zone.Zone, len(zones))
	for _, z := range zones {
		byID[z.ID] = z
	}

	return &Handler{
		matcher:         matcher,
		zonesByID:       byID,
		defaultUpstream: defaultUpstream,
		caches:          caches,
		fwd:             fwd,
		mut:             mut,
		log:             logging.With("handler"),
	}, nil
}

// ServeDNS implements dns.Handler.
func (h *Handler) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	if len(r.Question) != 1 {
		h.servfail(w, r)
		return
	}
	q := r.Question[0]

	if len(q.Name) > 253 {
		m := new(dns.Msg)
		m.SetRcode(r, dns.RcodeFormatError)
		w.WriteMsg(m)
		return
	}

	zoneID, routeRelevant := h.matcher.Classify(q.Name)
	z, hasZone := h.zonesByID[zoneID]
	endpoints := h.effectiveUpstream(z, hasZone)
	if len(endpoints) == 0 {
		h.log.Warn().Str("zone", zoneID).Msg("no upstream configured for zone")
		h.servfail(w, r)
		return
	}

	key := cache.Key{Name: normalizeName(q.Name), Qtype: q.Qtype, Qclass: q.Qclass}
	primary := endpoints[0].Address

	var resp *dns.Msg
	if entry, remaining, ok := h.caches.For(zoneID, primary).Get(key); ok {
		resp = entry.Msg.Copy()
		resp.SetReply(r)
		setTTL(resp, remaining)
	} else {
		fwdResp, ep, err := h.fwd.Forward(context.Background(), r, endpoints)
		if err != nil {
			h.log.Debug().Err(err).Str("zone", zoneID).Str("name", q.Name).Msg("all upstreams failed")
			h.servfail(w, r)
			return
		}
		ttl := answerTTL(fwdResp, *ep)
		h.caches.For(zoneID, ep.Address).Set(key, fwdResp, ttl)
		resp = fwdResp
	}

	if !routeRelevant || !hasZone || !z.Policy.HasRoutePolicy() {
		w.WriteMsg(resp)
		return
	}

	addrs := extractAddresses(resp)

	// route_failure_mode=servfail needs the outcome before it can answer:
	// a failed resolution there must become a SERVFAIL, not the normal
	// reply. route_failure_mode=fallback (the default) never lets route
	// bookkeeping delay or fail the DNS reply, so the wire write happens
	// first and the observation is posted to the background worker.
	if h.mut.FailureMode() == routemanager.FailureModeServfail {
		if ok := h.mut.Observe(zoneID, addrs); !ok {
			h.servfail(w, r)
			return
		}
		w.WriteMsg(resp)
		return
	}

	w.WriteMsg(resp)
	h.mut.ObserveAsync(zoneID, addrs)
}

func (h *Handler) effectiveUpstream(z zone.Zone, hasZone bool) []zone.Endpoint {
	if !hasZone {
		return h.defaultUpstream
	}
	return z.EffectiveUpstream(h.defaultUpstream)
}

// extractAddresses pulls every A/AAAA record's address out of a
// response's answer section.
func extractAddresses(msg *dns.Msg) []netip.Addr {
	var out []netip.Addr
	for _, rr := range msg.Answer {
		switch rec := rr.(type) {
		case *dns.A:
			if a, ok := netip.AddrFromSlice(rec.A.To4()); ok {
				out = append(out, a)
			}
		case *dns.AAAA:
			if a, ok := netip.AddrFromSlice(rec.AAAA.To16()); ok {
				out = append(out, a)
			}
		}
	}
	return out
}

func (h *Handler) servfail(w dns.ResponseWriter, r *dns.Msg) {
	m := new(dns.Msg)
	m.SetRcode(r, dns.RcodeServerFailure)
	w.WriteMsg(m)
}

func normalizeName(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".")
}

func setTTL(msg *dns.Msg, ttl uint32) {
	for _, rr := range msg.Answer {
		rr.Header().Ttl = ttl
	}
}

func answerTTL(resp *dns.Msg, ep zone.Endpoint) uint32 {
	if resp.Rcode == dns.RcodeNameError || resp.Rcode == dns.RcodeSuccess && len(resp.Answer) == 0 {
		return forwarder.NegativeTTL(resp, ep)
	}
	return forwarder.AnswerTTL(resp, ep)
}
