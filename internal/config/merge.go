package config

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/leshy-dns/leshy/internal/logging"
)

// overlayFiles returns config.d/*.toml next to the main config file,
// sorted lexicographically (applied in that order).
func overlayFiles(mainPath string) ([]string, error) {
	dir := filepath.Join(filepath.Dir(mainPath), "config.d")
	matches, err := filepath.Glob(filepath.Join(dir, "*.toml"))
	if err != nil {
		return nil, fmt.Errorf("config: glob %s: %w", dir, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// mergeOverlay folds overlay into main: zone lists accumulate, and any
// server-section scalar the overlay sets non-zero overrides main's,
// logging a warning so a config.d mistake is visible rather than silent.
func mergeOverlay(main, overlay *file, sourcePath string) {
	log := logging.With("config")

	if overlay.ListenAddress != "" && overlay.ListenAddress != main.ListenAddress {
		log.Warn().Str("file", sourcePath).Str("key", "listen_address").Msg("overlay overrides server setting")
		main.ListenAddress = overlay.ListenAddress
	}
	if len(overlay.DefaultUpstream) > 0 {
		log.Warn().Str("file", sourcePath).Str("key", "default_upstream").Msg("overlay overrides server setting")
		main.DefaultUpstream = overlay.DefaultUpstream
	}
	if overlay.RouteFailureMode != "" && overlay.RouteFailureMode != main.RouteFailureMode {
		log.Warn().Str("file", sourcePath).Str("key", "route_failure_mode").Msg("overlay overrides server setting")
		main.RouteFailureMode = overlay.RouteFailureMode
	}
	if overlay.AutoReload && !main.AutoReload {
		log.Warn().Str("file", sourcePath).Str("key", "auto_reload").Msg("overlay overrides server setting")
		main.AutoReload = true
	}
	if overlay.CacheSize != 0 && overlay.CacheSize != main.CacheSize {
		log.Warn().Str("file", sourcePath).Str("key", "cache_size").Msg("overlay overrides server setting")
		main.CacheSize = overlay.CacheSize
	}
	if overlay.CacheMinTTL != 0 && overlay.CacheMinTTL != main.CacheMinTTL {
		log.Warn().Str("file", sourcePath).Str("key", "cache_min_ttl").Msg("overlay overrides server setting")
		main.CacheMinTTL = overlay.CacheMinTTL
	}
	if overlay.CacheMaxTTL != 0 && overlay.CacheMaxTTL != main.CacheMaxTTL {
		log.Warn().Str("file", sourcePath).Str("key", "cache_max_ttl").Msg("overlay overrides server setting")
		main.CacheMaxTTL = overlay.CacheMaxTTL
	}
	if overlay.RouteAggregationPrefix != 0 && overlay.RouteAggregationPrefix != main.RouteAggregationPrefix {
		log.Warn().Str("file", sourcePath).Str("key", "route_aggregation_prefix").Msg("overlay overrides server setting")
		main.RouteAggregationPrefix = overlay.RouteAggregationPrefix
	}
	if overlay.Log.Level != "" {
		main.Log.Level = overlay.Log.Level
	}
	if overlay.Log.Format != "" {
		main.Log.Format = overlay.Log.Format
	}
	if overlay.Log.Output != "" {
		main.Log.Output = overlay.Log.Output
	}

	main.Zones = append(main.Zones, overlay.Zones...)
}
