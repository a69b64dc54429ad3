// Package forwarder implements ordered failover across a zone's
// upstream DNS server list.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/miekg/dns"

	"github.com/leshy-dns/leshy/internal/logging"
	"github.com/leshy-dns/leshy/internal/zone"
)

// DefaultAttemptTimeout is the default per-upstream timeout.
const DefaultAttemptTimeout = 2 * time.Second

// ErrAllUpstreamsFailed is returned when every upstream in the ordered
// list timed out, errored, or answered SERVFAIL.
var ErrAllUpstreamsFailed = errors.New("forwarder: all upstreams failed")

// Forwarder sends a query to each of a zone's upstreams in declared
// order, stopping at the first success. No timeout budget is shared
// across attempts: worst-case handler latency is the sum of every
// upstream's per-attempt timeout.
type Forwarder struct {
	client         *dns.Client
	attemptTimeout time.Duration
}

// New returns a Forwarder with the given per-attempt timeout (0 uses
// DefaultAttemptTimeout).
func New(attemptTimeout time.Duration) *Forwarder {
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}
	return &Forwarder{
		client:         &dns.Client{Timeout: attemptTimeout},
		attemptTimeout: attemptTimeout,
	}
}

// Forward tries each upstream in order. A SERVFAIL
// response counts as a failure and advances to the next upstream; an
// NXDOMAIN response counts as success. ctx governs the whole call; each
// individual attempt additionally carries its own timeout.
func (f *Forwarder) Forward(ctx context.Context, req *dns.Msg, upstreams []zone.Endpoint) (*dns.Msg, *zone.Endpoint, error) {
	log := logging.With("forwarder")

	for i := range upstreams {
		ep := upstreams[i]
		attemptCtx, cancel := context.WithTimeout(ctx, f.attemptTimeout)
		resp, _, err := f.client.ExchangeContext(attemptCtx, req, ep.Address)
		cancel()

		if err != nil {
			log.Debug().Str("upstream", ep.Address).Err(err).Msg("upstream attempt failed")
			continue
		}
		if resp == nil {
			continue
		}
		if resp.Rcode == dns.RcodeServerFailure {
			log.Debug().Str("upstream", ep.Address).Msg("upstream returned SERVFAIL, trying next")
			continue
		}

		return resp, &ep, nil
	}

	return nil, nil, fmt.Errorf("%w: tried %d upstream(s)", ErrAllUpstreamsFailed, len(upstreams))
}
