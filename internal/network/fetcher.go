package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/revittco/swcache/internal/store"
)

// DefaultMaxBodyBytes caps how much of an upstream body is buffered.
const DefaultMaxBodyBytes = 32 << 20 // 32 MiB

// Fetcher performs the single network attempt for a request.
type Fetcher interface {
	Fetch(ctx context.Context, r *http.Request) (*store.Entry, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, r *http.Request) (*store.Entry, error)

func (f FetcherFunc) Fetch(ctx context.Context, r *http.Request) (*store.Entry, error) {
	return f(ctx, r)
}

// NetworkError reports a fetch that produced no response at all.
// HTTP error statuses are responses, not NetworkErrors.
type NetworkError struct {
	URL     string
	Timeout bool
	Err     error
}

func (e *NetworkError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("fetch %s: timed out: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ErrBodyTooLarge is returned when an upstream body exceeds the size limit.
var ErrBodyTooLarge = errors.New("response body too large")

// hop-by-hop headers are never forwarded in either direction.
var hopHeaders = []string{
	"Connection", "Proxy-Connection", "Keep-Alive", "Proxy-Authenticate",
	"Proxy-Authorization", "Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// conditionalHeaders make upstream answer 304 or 412 instead of a full body.
var conditionalHeaders = []string{
	"If-None-Match", "If-Modified-Since", "If-Match", "If-Unmodified-Since", "If-Range",
}

// StripConditionalHeaders removes the client's validators from h in place.
// Fetches whose response is stored must carry none.
func StripConditionalHeaders(h http.Header) {
	for _, k := range conditionalHeaders {
		h.Del(k)
	}
}

// StripHopHeaders removes hop-by-hop headers from h in place.
func StripHopHeaders(h http.Header) {
	for _, f := range h.Values("Connection") {
		h.Del(f)
	}
	for _, k := range hopHeaders {
		h.Del(k)
	}
}

// HTTPFetcher fetches over HTTP, resolving origin-form request URLs against
// Origin.
type HTTPFetcher struct {
	client       *http.Client
	origin       *url.URL
	maxBodyBytes int64
	userAgent    string
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithClient replaces the default HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithMaxBodyBytes sets the body size limit.
func WithMaxBodyBytes(n int64) Option {
	return func(f *HTTPFetcher) { f.maxBodyBytes = n }
}

// WithUserAgent sets the User-Agent sent when the client did not send one.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) { f.userAgent = ua }
}

// NewHTTPFetcher creates a fetcher for the given origin. origin may be nil
// when every request carries an absolute URL.
func NewHTTPFetcher(origin *url.URL, opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client: &http.Client{
			Timeout: 60 * time.Second,
			// Redirects are followed like a browser fetch would.
		},
		origin:       origin,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Client returns the underlying HTTP client.
func (f *HTTPFetcher) Client() *http.Client {
	return f.client
}

// Fetch sends r upstream and buffers the response. The client's
// Accept-Encoding is never forwarded.
func (f *HTTPFetcher) Fetch(ctx context.Context, r *http.Request) (*store.Entry, error) {
	target := ResolveURL(r.URL, f.origin)
	if target == nil || !target.IsAbs() {
		return nil, &NetworkError{URL: r.URL.String(), Err: errors.New("request URL is not absolute and no origin is configured")}
	}

	out, err := http.NewRequestWithContext(ctx, r.Method, target.String(), r.Body)
	if err != nil {
		return nil, &NetworkError{URL: target.String(), Err: err}
	}
	out.Header = r.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	StripHopHeaders(out.Header)
	// The transport negotiates gzip itself and decodes it, so stored and
	// returned bodies are always identity-encoded.
	out.Header.Del("Accept-Encoding")
	out.ContentLength = r.ContentLength
	if out.Header.Get("User-Agent") == "" && f.userAgent != "" {
		out.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(out)
	if err != nil {
		return nil, &NetworkError{URL: target.String(), Timeout: isTimeout(ctx, err), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return nil, &NetworkError{URL: target.String(), Timeout: isTimeout(ctx, err), Err: err}
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, &NetworkError{URL: target.String(), Err: ErrBodyTooLarge}
	}

	header := resp.Header.Clone()
	StripHopHeaders(header)
	header.Del("Content-Length")

	return &store.Entry{
		URL:    target.String(),
		Status: resp.StatusCode,
		Header: header,
		Body:   body,
	}, nil
}

// ResolveURL returns u as an absolute URL, resolving origin-form paths
// against origin. The fragment is always dropped.
func ResolveURL(u *url.URL, origin *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	out := *u
	if !out.IsAbs() && origin != nil {
		out = *origin.ResolveReference(u)
	}
	out.Fragment = ""
	out.RawFragment = ""
	return &out
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
