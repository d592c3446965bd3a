package initialization

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"streamhub/pkg/addon"
	"streamhub/pkg/aggregate"
	"streamhub/pkg/config"
	"streamhub/pkg/engine"
	"streamhub/pkg/logger"
	"streamhub/pkg/metrics"
	"streamhub/pkg/paths"
	"streamhub/pkg/persistence"
	"streamhub/pkg/playback"
	"streamhub/pkg/probe"
	"streamhub/pkg/progress"
)

// InitializedComponents holds all the components initialized during bootstrap
type InitializedComponents struct {
	Config   *config.Config
	State    *persistence.StateManager
	Registry *addon.Registry
	Engine   *engine.Engine
	Metrics  *prometheus.Registry
}

// WaitForInputAndExit prints an error and waits for user input before exiting
func WaitForInputAndExit(err error) {
	fmt.Printf("\nCRITICAL ERROR: %v\n", err)
	fmt.Println("\nPress Enter to exit...")
	var input string
	fmt.Scanln(&input)
	os.Exit(1)
}

// Bootstrap coordinates the application startup sequence
func Bootstrap() (*InitializedComponents, error) {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	// 2. Persisted state
	state, err := persistence.GetManager(paths.GetDataDir())
	if err != nil {
		return nil, fmt.Errorf("state file: %w", err)
	}
	return Build(cfg, state)
}

// Build wires every component from cfg on top of state
func Build(cfg *config.Config, state *persistence.StateManager) (*InitializedComponents, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)

	// Provider registry
	registry, err := addon.NewRegistry(addon.NewStateStore(state))
	if err != nil {
		return nil, fmt.Errorf("addon registry: %w", err)
	}
	logger.Info("Loaded addon registry", "addons", registry.Snapshot().Len(), "state", state.Path())

	progressStore, err := progress.NewStateStore(state)
	if err != nil {
		return nil, fmt.Errorf("progress store: %w", err)
	}

	// Aggregation and routing
	manifests := addon.NewClient(cfg.ProviderTimeout())
	aggregator := aggregate.New(registry, aggregate.NewHTTPFetcher(), cfg.StillFetchingAfter())

	prober := probe.New(cfg.ProbeCacheSize, time.Duration(cfg.ProbeCacheTTLSeconds)*time.Second)
	router := playback.NewRouter(playback.Options{
		Platform:    playback.StaticPlatform{Name: cfg.PlatformOS, Tablet: cfg.PlatformTablet},
		Formats:     playback.StaticFormats(cfg.ProviderFormats),
		Prober:      prober,
		ProbeBudget: cfg.ProbeBudget(),
		Launcher:    playback.NewDesktopLauncher(),
	})
	logger.Info("Playback router ready", "platform", cfg.PlatformOS, "tablet", cfg.PlatformTablet, "probe_budget", cfg.ProbeBudget())

	eng := engine.New(engine.Options{
		Registry:   registry,
		Manifests:  manifests,
		Aggregator: aggregator,
		Router:     router,
		Progress:   progressStore,
		Settings:   cfg.Snapshot(),
	})

	if cfg.SecurityToken == "" {
		logger.Warn("!! SECURITY WARNING: SECURITY_TOKEN is not set. The API is accessible without authentication !!")
	}

	return &InitializedComponents{
		Config:   cfg,
		State:    state,
		Registry: registry,
		Engine:   eng,
		Metrics:  reg,
	}, nil
}
