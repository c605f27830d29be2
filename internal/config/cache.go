package config

import (
	"strings"
	"time"
)

// CacheConfig drives the Redis response cache applied to the
// authenticated GET routes (amendment listings, endpoint stats).  The
// middleware always scopes keys by tenant on top of the KeyStrategy,
// so one tenant can never be served another's cached body.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration
	KeyStrategy  string // route or route_query
	Prefix       string
	MaxBodyBytes int
}

// LoadCacheConfig reads the CACHE_* environment.  The default TTL is
// short so freshly decided amendments show up in the review tooling
// without manual invalidation.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		Methods:      cacheMethods(envStr("CACHE_METHODS", "GET")),
		TTL:          envDur("CACHE_TTL", 15*time.Second),
		KeyStrategy:  envStr("CACHE_KEY_STRATEGY", "route_query"),
		Prefix:       envStr("CACHE_PREFIX", "otab"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 512*1024),
	}
}

func cacheMethods(csv string) map[string]bool {
	methods := make(map[string]bool)
	for _, m := range strings.Split(csv, ",") {
		if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
			methods[m] = true
		}
	}
	return methods
}
