package main

import (
	"net"
	"strings"

	"github.com/revittco/swcache/internal/api"
)

// adminURL returns the browser URL of an admin API path for the proxy
// listening on addr. Wildcard and empty hosts are reached via localhost.
//
//	:8080, "health"          -> http://localhost:8080/_swcache/api/v1/health
//	0.0.0.0:8080, "routes"   -> http://localhost:8080/_swcache/api/v1/routes
//	[::1]:8080, ""           -> http://[::1]:8080/_swcache/api/v1/
func adminURL(addr, path string) string {
	return proxyURL(addr) + api.AdminPrefix + "api/v1/" + strings.TrimLeft(path, "/")
}

// proxyURL converts a listen address into the proxy's base URL.
func proxyURL(addr string) string {
	a := strings.TrimSpace(addr)
	if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
		return strings.TrimRight(a, "/")
	}
	if a == "" {
		return "http://localhost"
	}

	host, port, err := net.SplitHostPort(a)
	if err != nil {
		return "http://" + a
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}
