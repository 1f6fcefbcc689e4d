package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rcliao/tiermem/internal/config"
	"github.com/rcliao/tiermem/internal/embedding"
	"github.com/rcliao/tiermem/internal/observability"
	"github.com/rcliao/tiermem/internal/snapshot"
	"github.com/rcliao/tiermem/internal/store"
)

// runtime is everything a command needs: a loaded store plus the gateway to
// write it back.
type runtime struct {
	cfg     config.Config
	logger  *log.Logger
	metrics *observability.Metrics
	adapter *embedding.Adapter
	store   *store.Store
	gateway *snapshot.Gateway
}

func newLogger(level string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "tiermem",
	})
}

// openRuntime wires config, embedding, store and persistence, then restores
// the last snapshot.
func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log.Level)
	metrics := observability.NewMetrics(cfg.Stats.Namespace)

	e, err := embedding.NewFromConfig(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	adapter := embedding.NewAdapter(e, e.Dims(),
		embedding.WithLogger(logger),
		embedding.WithTimeout(cfg.Embedding.Timeout),
		embedding.WithCache(cfg.Embedding.CacheSize),
		embedding.WithMaxInputChars(cfg.Embedding.MaxInputChars),
		embedding.WithFallbackHook(metrics.ObserveFallback),
	)

	st := store.New(adapter,
		store.WithSettings(store.SettingsFromConfig(cfg)),
		store.WithLogger(logger),
		store.WithMetrics(metrics),
	)

	backend, err := snapshot.Open(ctx, cfg.Persistence, logger)
	if err != nil {
		adapter.Close()
		return nil, fmt.Errorf("open persistence: %w", err)
	}
	gw := snapshot.NewGateway(backend,
		snapshot.WithLogger(logger),
		snapshot.WithSaveHook(metrics.ObserveSave),
	)
	gw.Load(ctx, st)

	return &runtime{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		adapter: adapter,
		store:   st,
		gateway: gw,
	}, nil
}

func (rt *runtime) save(ctx context.Context) error {
	return rt.gateway.Save(ctx, rt.store)
}

func (rt *runtime) Close() error {
	rt.adapter.Close()
	return rt.gateway.Close()
}

// mustOpen opens the runtime or exits.
func mustOpen(ctx context.Context) *runtime {
	rt, err := openRuntime(ctx)
	if err != nil {
		exitErr("open store", err)
	}
	return rt
}

// mustSave persists the store or exits.
func (rt *runtime) mustSave(ctx context.Context) {
	if err := rt.save(ctx); err != nil {
		exitErr("save", err)
	}
}
