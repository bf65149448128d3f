package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xrdtools/catalog/internal/config"
	"github.com/xrdtools/catalog/internal/directory"
	"github.com/xrdtools/catalog/internal/logging"
	"github.com/xrdtools/catalog/internal/xroad"
)

var cfgFile string

// runtimeKeyType is the key for storing the runtime in the context.
type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

// runtime carries the services every subcommand needs.
type runtime struct {
	cfg    config.Config
	log    *zap.Logger
	client *xroad.Client
}

// newRuntime is the runtime factory. It's a variable so tests can replace
// it with one that injects fakes.
var newRuntime = func() (*runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	client, err := xroad.NewClient(xroad.Options{
		Timeout:           cfg.Timeout(),
		CACert:            cfg.TLS.CACert,
		Cert:              cfg.TLS.Cert,
		Key:               cfg.TLS.Key,
		RequestsPerSecond: cfg.Crawler.RateLimitRPS,
	}, log.Named("xroad"))
	if err != nil {
		return nil, fmt.Errorf("build protocol client: %w", err)
	}
	return &runtime{cfg: cfg, log: log, client: client}, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Collects service descriptions from an X-Road instance.",
		Long: `catalog walks every registered subsystem of an X-Road instance,
collects WSDL and OpenAPI service descriptions through a security server
and publishes deduplicated documents with an HTML/JSON report.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime()
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey, rt))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(runtimeKey).(*runtime); ok && rt != nil {
				_ = rt.log.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is env-only)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newMethodsCmd())
	cmd.AddCommand(newWSDLCmd())
	cmd.AddCommand(newOpenAPICmd())
	cmd.AddCommand(newEndpointsCmd())
	cmd.AddCommand(newSubsystemsCmd())
	cmd.AddCommand(newServersCmd())
	cmd.AddCommand(newMembersCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	root := newRootCmd()
	root.SilenceUsage = true
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "catalog: %v\n", err)
		os.Exit(1)
	}
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("services not initialized")
	}
	return rt, nil
}

// clientParts decodes the configured requesting party identifier.
func (rt *runtime) clientParts() ([]string, error) {
	if rt.cfg.XRoad.Client == "" {
		return nil, errors.New("xroad.client must be set")
	}
	parts, err := xroad.ParseIdentifier(rt.cfg.XRoad.Client)
	if err != nil {
		return nil, fmt.Errorf("parse client identifier: %w", err)
	}
	return parts, nil
}

// fetchDirectory downloads and parses the shared directory document from
// the configured discovery source.
func (rt *runtime) fetchDirectory(ctx context.Context) (*directory.Index, error) {
	fetcher := directory.NewFetcher(rt.client, rt.log.Named("directory"))

	var (
		doc string
		err error
	)
	switch rt.cfg.Crawler.Discovery {
	case config.DiscoveryCentralServer:
		doc, err = fetcher.FromCentralServer(ctx, rt.cfg.XRoad.ServerURL)
	default:
		doc, err = fetcher.FromSecurityServer(ctx, rt.cfg.XRoad.ServerURL, rt.cfg.XRoad.Instance)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch directory: %w", err)
	}
	idx, err := directory.Parse(doc)
	if err != nil {
		return nil, err
	}
	return idx, nil
}
