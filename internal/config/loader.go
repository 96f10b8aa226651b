package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/revittco/swcache/internal/precache"
	"github.com/revittco/swcache/internal/routing"
	"github.com/revittco/swcache/internal/strategy"
	"github.com/revittco/swcache/internal/worker"
)

// FileConfig represents the top-level swcache.yaml structure.
type FileConfig struct {
	// CachePrefix and NavigationFallback fall back to the built-in values
	// when omitted; an explicit empty string disables them.
	CachePrefix         *string        `yaml:"cache_prefix"`
	Origin              string         `yaml:"origin"`
	NavigationFallback  *string        `yaml:"navigation_fallback"`
	NavigationAllowlist []string       `yaml:"navigation_allowlist,omitempty"`
	NavigationDenylist  []string       `yaml:"navigation_denylist,omitempty"`
	CleanURLs           bool           `yaml:"clean_urls,omitempty"`
	Precache            PrecacheConfig `yaml:"precache"`
	// Routes replaces the built-in table when present, even if empty.
	Routes []RouteConfig `yaml:"routes"`

	dir string
}

// PrecacheConfig lists build-time assets inline, from a manifest file, or
// both (file entries first).
type PrecacheConfig struct {
	Manifest string            `yaml:"manifest,omitempty"`
	Entries  precache.Manifest `yaml:"entries,omitempty"`
}

// RouteConfig is one rule. Exactly one matcher field must be set.
type RouteConfig struct {
	ID                    string            `yaml:"id"`
	Match                 MatchConfig       `yaml:"match"`
	Method                string            `yaml:"method,omitempty"`
	Strategy              string            `yaml:"strategy"`
	CacheName             string            `yaml:"cache_name,omitempty"`
	Expiration            *ExpirationConfig `yaml:"expiration,omitempty"`
	NetworkTimeoutSeconds float64           `yaml:"network_timeout_seconds,omitempty"`
	CacheableStatuses     []int             `yaml:"cacheable_statuses,omitempty"`
}

// MatchConfig is the tagged matcher union.
type MatchConfig struct {
	Exact   string `yaml:"exact,omitempty"`
	Prefix  string `yaml:"prefix,omitempty"`
	Pattern string `yaml:"pattern,omitempty"`
	Glob    string `yaml:"glob,omitempty"`
	Script  string `yaml:"script,omitempty"`
}

// ExpirationConfig limits a route's cache. Zero means no limit.
type ExpirationConfig struct {
	MaxEntries    int   `yaml:"max_entries,omitempty"`
	MaxAgeSeconds int64 `yaml:"max_age_seconds,omitempty"`
}

// set returns the kind and expression of every populated matcher field.
func (m MatchConfig) set() (kinds []routing.MatcherKind, exprs []string) {
	for _, f := range []struct {
		kind routing.MatcherKind
		expr string
	}{
		{routing.MatchExact, m.Exact},
		{routing.MatchPrefix, m.Prefix},
		{routing.MatchPattern, m.Pattern},
		{routing.MatchGlob, m.Glob},
		{routing.MatchScript, m.Script},
	} {
		if f.expr != "" {
			kinds = append(kinds, f.kind)
			exprs = append(exprs, f.expr)
		}
	}
	return kinds, exprs
}

// LoadFile reads, parses, and validates a YAML config file. A relative
// precache manifest path resolves against the file's directory.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// Parse parses and validates YAML config data. Omitted routes get the
// built-in table and routes without an id get a generated one.
func Parse(data []byte) (*FileConfig, error) {
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *FileConfig) applyDefaults() {
	if c.CachePrefix == nil {
		c.CachePrefix = ptr(DefaultCachePrefix)
	}
	if c.NavigationFallback == nil {
		c.NavigationFallback = ptr(DefaultNavigationFallback)
	}
	if c.Routes == nil {
		c.Routes = DefaultRoutes()
	}
	for i := range c.Routes {
		if c.Routes[i].ID == "" {
			c.Routes[i].ID = uuid.NewString()
		}
	}
}

func ptr(s string) *string { return &s }

// Manifest returns the precache manifest: file entries, then inline ones.
func (c *FileConfig) Manifest() (precache.Manifest, error) {
	var m precache.Manifest
	if c.Precache.Manifest != "" {
		path := c.Precache.Manifest
		if !filepath.IsAbs(path) && c.dir != "" {
			path = filepath.Join(c.dir, path)
		}
		fromFile, err := precache.LoadManifest(path)
		if err != nil {
			return nil, err
		}
		m = append(m, fromFile...)
	}
	return append(m, c.Precache.Entries...), nil
}

// WorkerConfig converts the file into the worker's configuration. origin
// overrides the file's origin when non-empty.
func (c *FileConfig) WorkerConfig(origin string) (worker.Config, error) {
	if origin == "" {
		origin = c.Origin
	}
	var o *url.URL
	if origin != "" {
		var err error
		if o, err = parseOrigin(origin); err != nil {
			return worker.Config{}, err
		}
	}
	m, err := c.Manifest()
	if err != nil {
		return worker.Config{}, err
	}
	return worker.Config{
		CachePrefix:         deref(c.CachePrefix),
		Origin:              o,
		NavigationFallback:  deref(c.NavigationFallback),
		NavigationAllowlist: c.NavigationAllowlist,
		NavigationDenylist:  c.NavigationDenylist,
		Manifest:            m,
		CleanURLs:           c.CleanURLs,
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func parseOrigin(s string) (*url.URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("origin %q must be an absolute URL", s)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}, nil
}

// Apply registers the configured routes on w in file order.
func Apply(w *worker.Worker, routes []RouteConfig) error {
	for _, rc := range routes {
		rt, err := BuildRoute(w, rc)
		if err != nil {
			return fmt.Errorf("route %s: %w", rc.ID, err)
		}
		if err := w.Register(rt); err != nil {
			return fmt.Errorf("route %s: %w", rc.ID, err)
		}
	}
	return nil
}

// BuildRoute compiles one rule against w's origin and dependencies.
func BuildRoute(w *worker.Worker, rc RouteConfig) (*routing.Route, error) {
	kinds, exprs := rc.Match.set()
	if len(kinds) != 1 {
		return nil, fmt.Errorf("exactly one matcher is required, got %d", len(kinds))
	}
	m, err := routing.NewMatcher(kinds[0], exprs[0], w.Config().Origin)
	if err != nil {
		return nil, err
	}
	kind, err := strategy.ParseKind(rc.Strategy)
	if err != nil {
		return nil, err
	}
	sc := strategy.Config{
		CacheName:         rc.CacheName,
		NetworkTimeout:    seconds(rc.NetworkTimeoutSeconds),
		CacheableStatuses: rc.CacheableStatuses,
	}
	if rc.Expiration != nil {
		sc.Expiration = strategy.Expiration{
			MaxEntries: rc.Expiration.MaxEntries,
			MaxAge:     seconds(float64(rc.Expiration.MaxAgeSeconds)),
		}
	}
	s, err := w.NewStrategy(kind, sc)
	if err != nil {
		return nil, err
	}
	return &routing.Route{ID: rc.ID, Matcher: m, Method: strings.ToUpper(rc.Method), Handler: s}, nil
}
