// Package resolvers lists well-known public DNS resolvers, used as a
// last-resort default_upstream when an operator's configuration omits
// one. leshy always needs a default upstream to exist, but an operator
// shouldn't have to spell one out by hand for a quick trial config.
package resolvers

import "github.com/leshy-dns/leshy/internal/zone"

// WellKnown maps a provider name to its published recursive resolvers.
var WellKnown = map[string][]zone.Endpoint{
	"cloudflare": {
		{Address: "1.1.1.1:53"},
		{Address: "1.0.0.1:53"},
	},
	"google": {
		{Address: "8.8.8.8:53"},
		{Address: "8.8.4.4:53"},
	},
	"quad9": {
		{Address: "9.9.9.9:53"},
		{Address: "149.112.112.112:53"},
	},
	"opendns": {
		{Address: "208.67.222.222:53"},
		{Address: "208.67.220.220:53"},
	},
}

// Provider returns the endpoint list for a named provider, or nil if
// unknown.
func Provider(name string) []zone.Endpoint {
	return WellKnown[name]
}

// Fallback returns one endpoint from each of a small, diverse set of
// providers — used when the server starts with no default_upstream
// configured at all, so it fails safe rather than refusing every query.
func Fallback() []zone.Endpoint {
	return []zone.Endpoint{
		WellKnown["cloudflare"][0],
		WellKnown["google"][0],
		WellKnown["quad9"][0],
	}
}
