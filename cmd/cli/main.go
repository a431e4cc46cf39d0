// Command cli runs one liveness cycle from the terminal. With domain
// arguments it probes just those; without, it discovers sites the same way
// the daemon does and probes all of them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/config"
	"github.com/hamed0406/sitemonitor/internal/discovery"
	"github.com/hamed0406/sitemonitor/internal/domain"
	"github.com/hamed0406/sitemonitor/internal/probe"
	"github.com/hamed0406/sitemonitor/internal/scheduler"
	"github.com/hamed0406/sitemonitor/internal/status"
)

func main() {
	verbose := flag.Bool("v", false, "log probe attempts to stderr")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	logger := zap.NewNop()
	if *verbose {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	prober := probe.NewProber(logger, cfg.ProbeTimeout, cfg.UserAgent)
	ctx := context.Background()

	var sites []domain.Site
	if flag.NArg() > 0 {
		for _, arg := range flag.Args() {
			sites = append(sites, domain.Site{ID: "-", Domain: discovery.NormalizeDomain(arg)})
		}
	} else {
		scanner := discovery.NewScanner(logger, cfg.BaseDir, cfg.ExcludeDirs, cfg.EnvFile, cfg.DomainKey)
		sites, err = scanner.Discover(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "discovery:", err)
			os.Exit(2)
		}
	}

	sum := scheduler.NewBatch(logger, prober, status.NewTable(), cfg.ChunkSize, cfg.ChunkPause).Run(ctx, sites)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DIRECTORY\tDOMAIN\tSTATUS\tVIA\tCODE\tLATENCY")
	for _, r := range sum.Results {
		code := "-"
		if r.StatusCode != 0 {
			code = fmt.Sprint(r.StatusCode)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.SiteID, r.Domain, r.Status(), r.Transport, code, r.Latency.Round(time.Millisecond))
	}
	_ = tw.Flush()
	fmt.Printf("\n%d checked, %d down, took %s\n", sum.Total, len(sum.Down), sum.Duration.Round(time.Millisecond))

	if len(sum.Down) > 0 {
		os.Exit(1)
	}
}
