package strategy

import (
	"net/url"
	"strings"

	"github.com/revittco/swcache/internal/network"
)

// CacheKey is the store key for u: the absolute URL with the scheme and
// host lowercased and the fragment removed. Relative URLs resolve against
// origin.
func CacheKey(u *url.URL, origin *url.URL) string {
	abs := network.ResolveURL(u, origin)
	if abs == nil {
		return ""
	}
	abs.Scheme = strings.ToLower(abs.Scheme)
	abs.Host = strings.ToLower(abs.Host)
	return abs.String()
}
