package config

import "github.com/revittco/swcache/internal/strategy"

// Built-in worker settings used when the config file omits them.
const (
	DefaultCachePrefix        = "simple-vue-project"
	DefaultNavigationFallback = "/index.html"
)

const (
	week  = 7 * 24 * 60 * 60
	month = 30 * 24 * 60 * 60
)

// DefaultRoutes returns the built-in rule table in registration order.
// Rules without a cache name use the worker's runtime cache.
func DefaultRoutes() []RouteConfig {
	swr := string(strategy.KindStaleWhileRevalidate)
	cf := string(strategy.KindCacheFirst)
	nf := string(strategy.KindNetworkFirst)

	return []RouteConfig{
		{
			ID:         "google-fonts",
			Match:      MatchConfig{Pattern: `.*(?:googleapis|gstatic)\.com.*$`},
			Strategy:   swr,
			CacheName:  "google-fonts",
			Expiration: &ExpirationConfig{MaxEntries: 3, MaxAgeSeconds: month},
		},
		{
			ID:        "material-icons",
			Match:     MatchConfig{Exact: "https://cdn.jsdelivr.net/npm/@mdi/font@latest/css/materialdesignicons.min.css"},
			Strategy:  swr,
			CacheName: "material-icons",
		},
		{
			ID:         "cache-images",
			Match:      MatchConfig{Pattern: `\.(?:png|jpg|jpeg|svg|gif)$`},
			Strategy:   cf,
			CacheName:  "cache-images",
			Expiration: &ExpirationConfig{MaxEntries: 60, MaxAgeSeconds: week},
		},
		{
			ID:        "cache-js-css",
			Match:     MatchConfig{Pattern: `\.(?:js|css)$`},
			Strategy:  swr,
			CacheName: "cache-js-css",
		},
		{
			ID:       "scripts",
			Match:    MatchConfig{Pattern: `.*\.js`},
			Strategy: nf,
		},
		{
			ID:        "css-cache",
			Match:     MatchConfig{Pattern: `.*\.css`},
			Strategy:  swr,
			CacheName: "css-cache",
		},
		{
			ID:         "image-cache",
			Match:      MatchConfig{Pattern: `.*\.(?:png|jpg|jpeg|svg|gif)`},
			Strategy:   cf,
			CacheName:  "image-cache",
			Expiration: &ExpirationConfig{MaxEntries: 20, MaxAgeSeconds: week},
		},
		{
			ID:         "googleapis",
			Match:      MatchConfig{Pattern: `https://fonts.(?:googleapis|gstatic).com/(.*)`},
			Strategy:   cf,
			CacheName:  "googleapis",
			Expiration: &ExpirationConfig{MaxEntries: 30},
		},
		{
			ID:       "geojs-country",
			Match:    MatchConfig{Pattern: `https:\/\/get\.geojs\.io\/v1\/ip\/country\.json`},
			Strategy: cf,
		},
	}
}

// Default returns the config used when no file is given.
func Default() *FileConfig {
	cfg := &FileConfig{}
	cfg.applyDefaults()
	return cfg
}
