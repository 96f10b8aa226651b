package routing

import (
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// scriptTimeout bounds one predicate evaluation.
const scriptTimeout = 50 * time.Millisecond

// Script matches with a JavaScript callback of the form
//
//	({url, request, sameOrigin}) => url.pathname.startsWith("/api/")
//
// url carries href, origin, protocol, host, hostname, pathname and search;
// request carries method and mode ("navigate" for navigations). A script
// that throws, times out or returns a falsy value does not match.
type Script struct {
	expr string

	mu sync.Mutex
	vm *goja.Runtime
	fn goja.Callable
}

func NewScript(expr string) (*Script, error) {
	prog, err := goja.Compile("matcher", "("+expr+")", true)
	if err != nil {
		return nil, fmt.Errorf("script matcher: %w", err)
	}
	vm := goja.New()
	v, err := vm.RunProgram(prog)
	if err != nil {
		return nil, fmt.Errorf("script matcher: %w", err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("script matcher: expression is not a function")
	}
	return &Script{expr: expr, vm: vm, fn: fn}, nil
}

func (m *Script) Kind() MatcherKind { return MatchScript }
func (m *Script) Expr() string      { return m.expr }

func (m *Script) Matches(r *Request) bool {
	mode := "cors"
	if r.Navigate {
		mode = "navigate"
	} else if r.SameOrigin {
		mode = "same-origin"
	}
	arg := map[string]any{
		"url": map[string]any{
			"href":     r.Href(),
			"origin":   r.URL.Scheme + "://" + r.URL.Host,
			"protocol": r.URL.Scheme + ":",
			"host":     r.URL.Host,
			"hostname": r.URL.Hostname(),
			"pathname": r.URL.EscapedPath(),
			"search":   search(r.URL.RawQuery),
		},
		"request": map[string]any{
			"method": r.Method,
			"mode":   mode,
		},
		"sameOrigin": r.SameOrigin,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fired := make(chan struct{})
	timer := time.AfterFunc(scriptTimeout, func() {
		m.vm.Interrupt("matcher timed out")
		close(fired)
	})
	defer func() {
		// A timer that already started must finish interrupting before the
		// flag is cleared, or the next call inherits it.
		if !timer.Stop() {
			<-fired
		}
		m.vm.ClearInterrupt()
	}()

	res, err := m.fn(goja.Undefined(), m.vm.ToValue(arg))
	if err != nil {
		return false
	}
	return res.ToBoolean()
}

func search(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	return "?" + rawQuery
}
