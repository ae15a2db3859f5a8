package api

import (
	"context"
	"fmt"
	"time"

	"github.com/cordum/playground/core/configsvc"
	"github.com/cordum/playground/core/infra/buildinfo"
	"github.com/cordum/playground/core/infra/bus"
	"github.com/cordum/playground/core/infra/config"
	"github.com/cordum/playground/core/infra/locks"
	"github.com/cordum/playground/core/infra/logging"
	infraMetrics "github.com/cordum/playground/core/infra/metrics"
	"github.com/cordum/playground/core/session"
	"github.com/cordum/playground/sdk/client"
	"golang.org/x/sync/errgroup"
)

const metricsNamespace = "playground"

// Run wires the playground api from cfg and serves until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config required")
	}
	initial, tool, err := sessionDefaults(cfg)
	if err != nil {
		return err
	}
	remote := client.New(cfg.APIURL, cfg.APIKey, client.WithTimeout(cfg.APITimeout))

	var lockStore locks.Store = locks.NewMemoryStore()
	if cfg.RedisURL != "" {
		rs, err := locks.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis lock store: %w", err)
		}
		defer rs.Close()
		lockStore = rs
		logging.Info("api", "guard locks in redis")
	}

	var publisher bus.Publisher = bus.Noop{}
	var busStatus BusStatus
	if cfg.NatsURL != "" {
		nb, err := bus.NewNatsBus(cfg.NatsURL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer nb.Close()
		publisher = nb
		busStatus = nb
		logging.Info("api", "session events on nats", "url", nb.ConnectedURL())
	}

	sessions := session.NewManager(session.Options{
		Gateway:        remote,
		TTL:            cfg.SessionTTL,
		MaxSessions:    cfg.MaxSessions,
		Initial:        initial,
		InitialTool:    tool,
		Locks:          lockStore,
		Publisher:      publisher,
		Metrics:        infraMetrics.NewProm(metricsNamespace),
		SessionMetrics: infraMetrics.NewSessionProm(metricsNamespace),
	})
	defer sessions.Close()

	srv, err := New(Options{
		Sessions:       sessions,
		Remote:         remote,
		Bus:            busStatus,
		Metrics:        infraMetrics.NewGatewayProm(metricsNamespace),
		AllowedOrigins: cfg.AllowedOrigins,
		WriteTimeout:   cfg.APITimeout + 30*time.Second,
		Version:        buildinfo.Version,
	})
	if err != nil {
		return err
	}

	logging.Info("api", "remote guardrail service", "url", cfg.APIURL, "timeout", cfg.APITimeout)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx, cfg.HTTPAddr) })
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return ServeMetrics(gctx, cfg.MetricsAddr) })
	}
	return g.Wait()
}

// sessionDefaults builds the configuration every new session starts from:
// the preset when one is configured, then LLM settings from the environment.
func sessionDefaults(cfg *config.Config) (func() configsvc.Aggregate, string, error) {
	base := configsvc.Defaults()
	tool := ""
	if cfg.PresetPath != "" {
		preset, err := config.LoadPreset(cfg.PresetPath)
		if err != nil {
			return nil, "", err
		}
		base = configsvc.Merge(base, preset.Config)
		tool = preset.Tool
		logging.Info("api", "preset loaded", "name", preset.Name, "path", cfg.PresetPath, "tool", tool)
	}
	llm := config.LLMDefaultsFromEnv()
	if llm.FromEnv {
		logging.Info("api", "llm defaults from environment", "provider", llm.Provider, "model", llm.Model)
	}
	return func() configsvc.Aggregate { return llm.Seed(base) }, tool, nil
}
