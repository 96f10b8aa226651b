package routing

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/revittco/swcache/internal/strategy"
)

// Request is the part of an intercepted request that matchers see.
type Request struct {
	URL        *url.URL // absolute
	Method     string
	SameOrigin bool
	Navigate   bool
}

// Href is the normalized absolute URL.
func (r *Request) Href() string {
	return strategy.CacheKey(r.URL, nil)
}

// MatcherKind tags a Matcher variant.
type MatcherKind string

const (
	MatchExact   MatcherKind = "exact"
	MatchPrefix  MatcherKind = "prefix"
	MatchPattern MatcherKind = "pattern"
	MatchGlob    MatcherKind = "glob"
	MatchScript  MatcherKind = "script"
)

// Matcher decides whether a route applies to a request.
type Matcher interface {
	Kind() MatcherKind
	// Expr is the source expression the matcher was compiled from.
	Expr() string
	Matches(r *Request) bool
}

// NewMatcher compiles expr as the given kind. origin resolves relative
// exact and prefix literals; it may be nil.
func NewMatcher(kind MatcherKind, expr string, origin *url.URL) (Matcher, error) {
	if expr == "" {
		return nil, fmt.Errorf("%s matcher: empty expression", kind)
	}
	switch kind {
	case MatchExact:
		return NewExact(expr, origin)
	case MatchPrefix:
		return NewPrefix(expr, origin), nil
	case MatchPattern:
		return NewPattern(expr)
	case MatchGlob:
		return NewGlob(expr), nil
	case MatchScript:
		return NewScript(expr)
	default:
		return nil, fmt.Errorf("unknown matcher kind %q", kind)
	}
}

// Exact matches one URL.
type Exact struct {
	expr   string
	target string
	// relative literals without an origin compare against same-origin paths
	pathOnly bool
}

func NewExact(expr string, origin *url.URL) (*Exact, error) {
	u, err := url.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("exact matcher %q: %w", expr, err)
	}
	if !u.IsAbs() && origin == nil {
		return &Exact{expr: expr, target: u.RequestURI(), pathOnly: true}, nil
	}
	return &Exact{expr: expr, target: strategy.CacheKey(u, origin)}, nil
}

func (m *Exact) Kind() MatcherKind { return MatchExact }
func (m *Exact) Expr() string      { return m.expr }

func (m *Exact) Matches(r *Request) bool {
	if m.pathOnly {
		return r.SameOrigin && r.URL.RequestURI() == m.target
	}
	return r.Href() == m.target
}

// Prefix matches URLs starting with a literal.
type Prefix struct {
	expr     string
	prefix   string
	pathOnly bool
}

func NewPrefix(expr string, origin *url.URL) *Prefix {
	if strings.HasPrefix(expr, "/") && !strings.HasPrefix(expr, "//") {
		if origin == nil {
			return &Prefix{expr: expr, prefix: expr, pathOnly: true}
		}
		return &Prefix{expr: expr, prefix: strings.TrimSuffix(origin.Scheme+"://"+origin.Host, "/") + expr}
	}
	return &Prefix{expr: expr, prefix: expr}
}

func (m *Prefix) Kind() MatcherKind { return MatchPrefix }
func (m *Prefix) Expr() string      { return m.expr }

func (m *Prefix) Matches(r *Request) bool {
	if m.pathOnly {
		return r.SameOrigin && strings.HasPrefix(r.URL.RequestURI(), m.prefix)
	}
	return strings.HasPrefix(r.Href(), m.prefix)
}

// Pattern matches the full URL against a regular expression. A
// cross-origin URL only matches when the match starts at its first
// character, so an unanchored suffix pattern such as `\.png$` never
// catches third-party assets.
type Pattern struct {
	re *regexp.Regexp
}

func NewPattern(expr string) (*Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("pattern matcher: %w", err)
	}
	return &Pattern{re: re}, nil
}

func (m *Pattern) Kind() MatcherKind { return MatchPattern }
func (m *Pattern) Expr() string      { return m.re.String() }

func (m *Pattern) Matches(r *Request) bool {
	loc := m.re.FindStringIndex(r.Href())
	if loc == nil {
		return false
	}
	return r.SameOrigin || loc[0] == 0
}

// Glob matches the URL path. It only applies to same-origin requests
// unless the expression names a host ("example.com/**").
type Glob struct {
	expr string
	host string
	path string
}

func NewGlob(expr string) *Glob {
	g := &Glob{expr: expr, path: strings.TrimPrefix(expr, "/")}
	if !strings.HasPrefix(expr, "/") {
		if host, rest, ok := strings.Cut(expr, "/"); ok && strings.Contains(host, ".") {
			g.host, g.path = strings.ToLower(host), rest
		}
	}
	return g
}

func (m *Glob) Kind() MatcherKind { return MatchGlob }
func (m *Glob) Expr() string      { return m.expr }

func (m *Glob) Matches(r *Request) bool {
	if m.host != "" {
		if !HostMatch(m.host, r.URL.Hostname()) {
			return false
		}
	} else if !r.SameOrigin {
		return false
	}
	return GlobMatch(m.path, strings.TrimPrefix(r.URL.EscapedPath(), "/"))
}
