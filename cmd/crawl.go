// Package cmd defines and implements the CLI commands for the catalog
// executable.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xrdtools/catalog/internal/clock"
	"github.com/xrdtools/catalog/internal/crawl"
	"github.com/xrdtools/catalog/internal/hash/sha256"
	"github.com/xrdtools/catalog/internal/metrics"
	"github.com/xrdtools/catalog/internal/report"
	"github.com/xrdtools/catalog/internal/xroad"
)

// newCrawlCmd creates and configures the 'crawl' subcommand. It walks
// every registered subsystem, archives service descriptions and writes
// the report snapshot.
func newCrawlCmd() *cobra.Command {
	var (
		allowed bool
		openAPI bool
		workers int
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Collects service descriptions for every registered subsystem",
		Long: `Downloads the directory document, walks every registered subsystem
with a bounded worker pool, archives WSDL (and optionally OpenAPI)
descriptions under the output directory and refreshes the HTML/JSON
report with a history entry.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			return runCrawl(cmd, rt, allowed, openAPI, workers)
		},
	}
	cmd.Flags().BoolVar(&allowed, "allowed", false, "discover via allowedMethods instead of listMethods")
	cmd.Flags().BoolVar(&openAPI, "openapi", false, "also archive OpenAPI descriptions of REST services")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker pool size (overrides config)")
	return cmd
}

func runCrawl(cmd *cobra.Command, rt *runtime, allowed, openAPI bool, workers int) error {
	ctx := cmd.Context()

	if rt.cfg.Metrics.Enabled {
		metrics.Init()
		go func() {
			if err := metrics.Serve(ctx, rt.cfg.Metrics.Addr); err != nil {
				rt.log.Warn("metrics listener failed", zap.Error(err))
			}
		}()
	}

	clientID, err := rt.clientParts()
	if err != nil {
		return err
	}

	idx, err := rt.fetchDirectory(ctx)
	if err != nil {
		return err
	}
	subsystems := idx.RegisteredSubsystems()
	rt.log.Info("directory loaded",
		zap.String("instance", idx.Instance()),
		zap.Int("subsystems", len(subsystems)))

	discovery := xroad.ServiceListMethods
	if allowed {
		discovery = xroad.ServiceAllowedMethods
	}
	if workers <= 0 {
		workers = rt.cfg.Crawler.Workers
	}

	hasher := sha256.New()
	engine, err := crawl.NewEngine(rt.client, hasher, crawl.Config{
		ServerURL:    rt.cfg.XRoad.ServerURL,
		Client:       clientID,
		Discovery:    discovery,
		Workers:      workers,
		OutputDir:    rt.cfg.Output.Dir,
		FetchOpenAPI: openAPI || rt.cfg.Crawler.FetchOpenAPI,
	}, rt.log.Named("crawl"))
	if err != nil {
		return err
	}

	results, err := engine.Run(ctx, subsystems)
	if err != nil {
		return fmt.Errorf("run crawl: %w", err)
	}

	gen := report.NewGenerator(rt.cfg.Output.Dir, idx.Instance(), clock.System{}, rt.log.Named("report"))
	snap, err := gen.Write(results)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	rt.log.Info("crawl finished",
		zap.Int("subsystems", len(results)),
		zap.String("report", snap.HTMLFile))
	return nil
}
