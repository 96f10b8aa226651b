package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/revittco/swcache/internal/store/memory"
	"github.com/revittco/swcache/internal/worker"
)

func cmdDryRun(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rest := applyFlags(cfg, args)

	method := http.MethodGet
	navigate := false
	var target string
	for _, a := range rest {
		switch {
		case a == "--navigate":
			navigate = true
		case strings.HasPrefix(a, "--method="):
			method = strings.ToUpper(strings.TrimPrefix(a, "--method="))
		case target == "":
			target = a
		default:
			return fmt.Errorf("unexpected argument %q", a)
		}
	}
	if target == "" {
		return fmt.Errorf("usage: swcache dry-run <url> [--method=GET] [--navigate]")
	}

	fc, err := loadFileConfig(cfg.ConfigFile)
	if err != nil {
		return err
	}
	// Resolution never reads the store, so the real one is not opened.
	w, err := buildWorker(cfg, fc, workerDeps{store: memory.New()})
	if err != nil {
		return err
	}

	r, err := http.NewRequest(method, target, nil)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if navigate {
		r.Header.Set("Sec-Fetch-Mode", "navigate")
	}
	printDecision(os.Stdout, w.Explain(r))
	return nil
}

func printDecision(out io.Writer, d worker.Decision) {
	fmt.Fprintf(out, "Dry-run: %s %s\n", d.Method, d.URL)
	fmt.Fprintf(out, "  key:          %s\n", d.Key)
	fmt.Fprintf(out, "  same_origin:  %t\n", d.SameOrigin)
	fmt.Fprintf(out, "  navigate:     %t\n", d.Navigate)
	fmt.Fprintf(out, "  handler:      %s\n", d.Handler)
	switch d.Handler {
	case worker.HandlerRoute:
		fmt.Fprintf(out, "  route:        %s\n", d.RouteID)
		fmt.Fprintf(out, "  strategy:     %s\n", d.Strategy)
		fmt.Fprintf(out, "  cache:        %s\n", d.CacheName)
	case worker.HandlerPrecache:
		fmt.Fprintf(out, "  cache:        %s\n", d.CacheName)
		fmt.Fprintf(out, "  precache_key: %s\n", d.PrecacheKey)
	case worker.HandlerNavigation:
		fmt.Fprintf(out, "  fallback:     %s\n", d.FallbackURL)
	}
}
