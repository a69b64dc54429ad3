package config

import "fmt"

// Validate checks whole-config invariants that span zones (per-zone
// invariants are already checked during build).
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("config: listen_address is required")
	}
	if c.RouteFailureMode != RouteFailureFallback && c.RouteFailureMode != RouteFailureServfail {
		return fmt.Errorf("config: route_failure_mode must be %q or %q, got %q", RouteFailureFallback, RouteFailureServfail, c.RouteFailureMode)
	}

	seen := make(map[string]bool, len(c.Zones))
	for _, z := range c.Zones {
		if seen[z.Name] {
			return fmt.Errorf("config: duplicate zone name %q", z.Name)
		}
		seen[z.Name] = true

		if z.InheritDefaultUpstream && len(c.DefaultUpstream) == 0 && len(z.Upstream) == 0 {
			return fmt.Errorf("config: zone %q has no dns_servers and no default_upstream is configured", z.Name)
		}
	}

	return nil
}
