package routing

import (
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"
)

var testOrigin = mustURL("https://app.example.com")

func mustURL(s string) *url.URL {
	u, err := url.Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// req builds a GET request, same-origin when the host matches testOrigin.
func req(raw string) *Request {
	u := mustURL(raw)
	if !u.IsAbs() {
		u = testOrigin.ResolveReference(u)
	}
	return &Request{
		URL:        u,
		Method:     http.MethodGet,
		SameOrigin: u.Host == testOrigin.Host,
	}
}

func TestPatternMatcher_CrossOriginAnchoring(t *testing.T) {
	suffix, err := NewPattern(`\.(?:png|jpg|jpeg|svg|gif)$`)
	if err != nil {
		t.Fatal(err)
	}
	leading, err := NewPattern(`.*\.(?:png|jpg|jpeg|svg|gif)`)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		m       Matcher
		url     string
		want    bool
	}{
		{"suffix same-origin", suffix, "/img/a.png", true},
		{"suffix cross-origin", suffix, "https://cdn.test/a.png", false},
		{"leading same-origin", leading, "/img/a.png", true},
		{"leading cross-origin", leading, "https://cdn.test/a.png", true},
		{"leading query", leading, "https://cdn.test/a.png?v=1", true},
		{"suffix query", suffix, "/img/a.png?v=1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.Matches(req(tt.url)); got != tt.want {
				t.Errorf("%s.Matches(%q) = %v, want %v", tt.m.Expr(), tt.url, got, tt.want)
			}
		})
	}
}

func TestPatternMatcher_EscapedSlashes(t *testing.T) {
	m, err := NewPattern(`https:\/\/get\.geojs\.io\/v1\/ip\/country\.json`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !m.Matches(req("https://get.geojs.io/v1/ip/country.json")) {
		t.Error("expected geojs match")
	}
	if m.Matches(req("https://get.geojs.io/v1/ip/geo.json")) {
		t.Error("unexpected match")
	}
}

func TestPatternMatcher_Invalid(t *testing.T) {
	if _, err := NewPattern(`(unclosed`); err == nil {
		t.Error("expected compile error")
	}
}

func TestExactMatcher(t *testing.T) {
	abs, err := NewExact("https://cdn.jsdelivr.net/npm/@mdi/font@latest/css/materialdesignicons.min.css", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !abs.Matches(req("https://cdn.jsdelivr.net/npm/@mdi/font@latest/css/materialdesignicons.min.css")) {
		t.Error("exact absolute should match")
	}
	if !abs.Matches(req("https://CDN.jsdelivr.net/npm/@mdi/font@latest/css/materialdesignicons.min.css#x")) {
		t.Error("host case and fragment should not matter")
	}
	if abs.Matches(req("https://cdn.jsdelivr.net/npm/@mdi/font@latest/css/materialdesignicons.css")) {
		t.Error("different path should not match")
	}

	rel, err := NewExact("/index.html", testOrigin)
	if err != nil {
		t.Fatal(err)
	}
	if !rel.Matches(req("/index.html")) {
		t.Error("relative literal should resolve against origin")
	}

	pathOnly, err := NewExact("/index.html", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !pathOnly.Matches(req("/index.html")) {
		t.Error("path literal should match same-origin request")
	}
	if pathOnly.Matches(req("https://other.test/index.html")) {
		t.Error("path literal should not match cross-origin request")
	}
}

func TestPrefixMatcher(t *testing.T) {
	tests := []struct {
		expr   string
		origin *url.URL
		url    string
		want   bool
	}{
		{"https://fonts.googleapis.com/", nil, "https://fonts.googleapis.com/css?family=Roboto", true},
		{"https://fonts.googleapis.com/", nil, "https://fonts.gstatic.com/x.woff2", false},
		{"/api/", testOrigin, "/api/items", true},
		{"/api/", testOrigin, "https://other.test/api/items", false},
		{"/api/", nil, "/api/items", true},
		{"/api/", nil, "https://other.test/api/items", false},
	}
	for _, tt := range tests {
		m := NewPrefix(tt.expr, tt.origin)
		if got := m.Matches(req(tt.url)); got != tt.want {
			t.Errorf("prefix %q Matches(%q) = %v, want %v", tt.expr, tt.url, got, tt.want)
		}
	}
}

func TestGlobMatcher(t *testing.T) {
	tests := []struct {
		expr string
		url  string
		want bool
	}{
		{"/assets/**/*.js", "/assets/js/app.js", true},
		{"/assets/**/*.js", "https://cdn.test/assets/js/app.js", false},
		{"**/*.css", "/css/site.css", true},
		{"*.gstatic.com/**", "https://fonts.gstatic.com/s/roboto.woff2", true},
		{"*.gstatic.com/**", "/s/roboto.woff2", false},
	}
	for _, tt := range tests {
		m := NewGlob(tt.expr)
		if got := m.Matches(req(tt.url)); got != tt.want {
			t.Errorf("glob %q Matches(%q) = %v, want %v", tt.expr, tt.url, got, tt.want)
		}
	}
}

func TestScriptMatcher(t *testing.T) {
	m, err := NewScript(`({url, request}) => url.pathname.startsWith("/api/") && request.method === "GET"`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !m.Matches(req("/api/items")) {
		t.Error("expected match")
	}
	if m.Matches(req("/static/app.js")) {
		t.Error("unexpected match")
	}

	nav, err := NewScript(`({request, sameOrigin}) => request.mode === "navigate" && sameOrigin`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	r := req("/dashboard")
	r.Navigate = true
	if !nav.Matches(r) {
		t.Error("expected navigation match")
	}
}

func TestScriptMatcher_Errors(t *testing.T) {
	if _, err := NewScript(`({url}) =>`); err == nil {
		t.Error("expected syntax error")
	}
	if _, err := NewScript(`42`); err == nil {
		t.Error("expected non-function error")
	}

	throws, err := NewScript(`() => { throw new Error("boom") }`)
	if err != nil {
		t.Fatal(err)
	}
	if throws.Matches(req("/x")) {
		t.Error("throwing script must not match")
	}

	loops, err := NewScript(`() => { for (;;) {} }`)
	if err != nil {
		t.Fatal(err)
	}
	if loops.Matches(req("/x")) {
		t.Error("timed out script must not match")
	}
	// The runtime stays usable after an interrupt.
	if throws.Matches(req("/x")) || loops.Kind() != MatchScript {
		t.Error("unexpected state after interrupt")
	}
}

func TestScriptMatcher_TimeoutDoesNotLeakIntoNextCall(t *testing.T) {
	// Busy-waits straddle the timeout so some calls finish just as the
	// timer fires.
	m, err := NewScript(`({url}) => {
		const ms = Number(url.search.slice(1));
		const end = Date.now() + ms;
		while (Date.now() < end) {}
		return true;
	}`)
	if err != nil {
		t.Fatal(err)
	}
	limit := int(scriptTimeout / time.Millisecond)
	for i := range 12 {
		m.Matches(req(fmt.Sprintf("/slow?%d", limit-6+i)))
		if !m.Matches(req("/fast?0")) {
			t.Fatalf("call after a %dms script was interrupted", limit-6+i)
		}
	}
}

func TestNewMatcher(t *testing.T) {
	for _, kind := range []MatcherKind{MatchExact, MatchPrefix, MatchPattern, MatchGlob} {
		m, err := NewMatcher(kind, "/a", testOrigin)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if m.Kind() != kind {
			t.Errorf("kind = %s, want %s", m.Kind(), kind)
		}
	}
	if _, err := NewMatcher("regex", "/a", nil); err == nil {
		t.Error("expected unknown kind error")
	}
	if _, err := NewMatcher(MatchPattern, "", nil); err == nil {
		t.Error("expected empty expression error")
	}
}
