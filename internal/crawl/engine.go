package crawl

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/xrdtools/catalog/internal/directory"
	"github.com/xrdtools/catalog/internal/metrics"
	"github.com/xrdtools/catalog/internal/store"
	"github.com/xrdtools/catalog/internal/xroad"
)

// parseCacheSize bounds the per-run WSDL parse memo.
const parseCacheSize = 512

// Config controls one crawl run.
type Config struct {
	// ServerURL is the security server accepting X-Road requests.
	ServerURL string
	// Client is the identifier the crawl queries as (3 or 4 parts).
	Client []string
	// Discovery selects listMethods or allowedMethods.
	Discovery string
	// Workers is the crawl pool size.
	Workers int
	// OutputDir is the root of the document store and reports.
	OutputDir string
	// FetchOpenAPI also discovers REST services and archives their
	// OpenAPI descriptions.
	FetchOpenAPI bool
}

// Engine fans a set of subsystems out over a bounded worker pool. Results
// flow over a channel to a single collector, so no shared map lock exists.
type Engine struct {
	client     Client
	hasher     store.Hasher
	cfg        Config
	log        *zap.Logger
	parseCache *lru.Cache[string, []xroad.WSDLOperation]
}

// NewEngine validates the configuration and builds an Engine.
func NewEngine(client Client, hasher store.Hasher, cfg Config, log *zap.Logger) (*Engine, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Discovery == "" {
		cfg.Discovery = xroad.ServiceListMethods
	}
	if cfg.Discovery != xroad.ServiceListMethods && cfg.Discovery != xroad.ServiceAllowedMethods {
		return nil, fmt.Errorf("unsupported discovery service %q", cfg.Discovery)
	}
	if len(cfg.Client) != xroad.MemberParts && len(cfg.Client) != xroad.SubsystemParts {
		return nil, fmt.Errorf("client identifier must have %d or %d parts",
			xroad.MemberParts, xroad.SubsystemParts)
	}
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	cache, err := lru.New[string, []xroad.WSDLOperation](parseCacheSize)
	if err != nil {
		return nil, fmt.Errorf("build parse cache: %w", err)
	}
	return &Engine{client: client, hasher: hasher, cfg: cfg, log: log, parseCache: cache}, nil
}

// Run crawls the given subsystems and returns the result map keyed by
// subsystem identifier. The run always completes: per-subsystem failures
// are recorded, never propagated.
func (e *Engine) Run(ctx context.Context, subsystems []directory.Subsystem) (map[string]SubsystemResult, error) {
	metrics.Init()

	queue := NewQueue(len(subsystems))
	for _, sub := range subsystems {
		if err := queue.Enqueue(ctx, sub); err != nil {
			return nil, err
		}
	}
	// The queue is populated once and drained to empty; closing it is the
	// workers' shutdown signal.
	queue.Close()

	results := make(chan SubsystemResult)
	collected := make(chan map[string]SubsystemResult)
	go func() {
		out := make(map[string]SubsystemResult, len(subsystems))
		for res := range results {
			out[res.Subsystem.String()] = res
		}
		collected <- out
	}()

	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(ctx, queue, results)
		}()
	}
	wg.Wait()
	close(results)

	out := <-collected
	e.log.Info("crawl complete",
		zap.Int("subsystems", len(subsystems)),
		zap.Int("results", len(out)))
	return out, nil
}
