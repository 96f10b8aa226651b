package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/revittco/swcache/internal/store"
)

func cmdStatus(args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyFlags(cfg, args)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	fc, err := loadFileConfig(cfg.ConfigFile)
	if err != nil {
		return err
	}

	caches, err := st.ListCaches(ctx)
	if err != nil {
		return fmt.Errorf("list caches: %w", err)
	}

	fmt.Printf("swcache status (db: %s)\n", cfg.DBPath)
	fmt.Printf("  Config:  %s\n", cfg.ConfigFile)
	fmt.Printf("  Routes:  %d\n", len(fc.Routes))
	fmt.Printf("  Caches:  %d\n\n", len(caches))
	return printCaches(os.Stdout, caches)
}

func printCaches(out io.Writer, caches []store.CacheInfo) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CACHE\tENTRIES\tBYTES\tNEWEST")
	for _, c := range caches {
		newest := "-"
		if !c.Newest.IsZero() {
			newest = c.Newest.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", c.Name, c.Entries, c.Bytes, newest)
	}
	return tw.Flush()
}
