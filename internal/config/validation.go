package config

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/revittco/swcache/internal/routing"
	"github.com/revittco/swcache/internal/strategy"
)

// ValidationError holds all validation failures for a config file.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: %s", strings.Join(e.Errors, "; "))
}

// validate checks the parsed config for correctness.
func validate(cfg *FileConfig) error {
	var errs []string

	if cfg.Origin != "" {
		if _, err := parseOrigin(cfg.Origin); err != nil {
			errs = append(errs, err.Error())
		}
	}
	for i, expr := range cfg.NavigationAllowlist {
		if err := validateRegexp(expr); err != nil {
			errs = append(errs, fmt.Sprintf("navigation_allowlist[%d]: %v", i, err))
		}
	}
	for i, expr := range cfg.NavigationDenylist {
		if err := validateRegexp(expr); err != nil {
			errs = append(errs, fmt.Sprintf("navigation_denylist[%d]: %v", i, err))
		}
	}
	for i, e := range cfg.Precache.Entries {
		if e.URL == "" {
			errs = append(errs, fmt.Sprintf("precache.entries[%d]: url is required", i))
		}
	}

	ids := make(map[string]bool, len(cfg.Routes))
	for i, r := range cfg.Routes {
		prefix := fmt.Sprintf("routes[%d]", i)
		if ids[r.ID] {
			errs = append(errs, fmt.Sprintf("%s: duplicate id %q", prefix, r.ID))
		}
		ids[r.ID] = true

		kinds, exprs := r.Match.set()
		switch len(kinds) {
		case 0:
			errs = append(errs, prefix+": match needs one of exact, prefix, pattern, glob or script")
		case 1:
			// Origin is not needed to check well-formedness.
			if _, err := routing.NewMatcher(kinds[0], exprs[0], nil); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", prefix, err))
			}
		default:
			errs = append(errs, fmt.Sprintf("%s: match sets %d matchers, want exactly one", prefix, len(kinds)))
		}

		if _, err := strategy.ParseKind(r.Strategy); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", prefix, err))
		}
		if err := validateMethod(r.Method); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", prefix, err))
		}
		if x := r.Expiration; x != nil {
			if x.MaxEntries < 0 {
				errs = append(errs, fmt.Sprintf("%s: expiration.max_entries must be >= 0", prefix))
			}
			if x.MaxAgeSeconds < 0 {
				errs = append(errs, fmt.Sprintf("%s: expiration.max_age_seconds must be >= 0", prefix))
			}
		}
		if r.NetworkTimeoutSeconds < 0 {
			errs = append(errs, fmt.Sprintf("%s: network_timeout_seconds must be >= 0", prefix))
		}
		for _, s := range r.CacheableStatuses {
			if s < 0 || s > 599 {
				errs = append(errs, fmt.Sprintf("%s: invalid cacheable status %d", prefix, s))
			}
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func validateRegexp(expr string) error {
	if _, err := regexp.Compile(expr); err != nil {
		return fmt.Errorf("invalid pattern %q: %w", expr, err)
	}
	return nil
}

func validateMethod(m string) error {
	switch strings.ToUpper(m) {
	case "", routing.MethodAny, http.MethodGet, http.MethodHead, http.MethodPost,
		http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return nil
	default:
		return fmt.Errorf("invalid method %q", m)
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
