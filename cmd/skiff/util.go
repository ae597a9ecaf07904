package main

import (
	"context"
	"fmt"
	"time"

	"github.com/skiffcloud/skiff/internal/cache"
	"github.com/skiffcloud/skiff/internal/compiler"
	"github.com/skiffcloud/skiff/internal/config"
	"github.com/skiffcloud/skiff/internal/db"
	"github.com/skiffcloud/skiff/internal/engine"
	"github.com/skiffcloud/skiff/internal/logging"
	"github.com/skiffcloud/skiff/internal/metrics"
	"github.com/skiffcloud/skiff/internal/provision"
	"github.com/skiffcloud/skiff/internal/store"
	"github.com/skiffcloud/skiff/internal/tenant"
)

func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", configPath, err)
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)

	if logLevel != "" {
		cfg.Daemon.LogLevel = logLevel
	}
	logging.SetLevelFromString(cfg.Daemon.LogLevel)
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	database, err := db.OpenPostgres(ctx, cfg.SystemDB.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect system store: %w", err)
	}
	s, err := store.New(ctx, database)
	if err != nil {
		database.Close()
		return nil, err
	}
	return s, nil
}

func newCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	if cfg.Redis.Addr == "" {
		return cache.NewInMemory(), nil
	}
	return cache.NewRedis(ctx, cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// platform bundles the wired components a command needs. close tears down
// everything that was opened.
type platform struct {
	cfg         *config.Config
	store       *store.Store
	registry    *tenant.Registry
	provisioner *provision.Provisioner
	engine      *engine.Engine
	cache       cache.Cache
}

func newPlatform(ctx context.Context, m *metrics.Metrics) (*platform, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	s, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	c, err := newCache(ctx, cfg)
	if err != nil {
		s.DB().Close()
		return nil, fmt.Errorf("connect cache: %w", err)
	}

	registry := tenant.NewRegistry(s, cfg.TenantDB.BaseURI, c)
	provisioner := provision.New(cfg.TenantDB.AdminDSN)
	eng := engine.New(
		s,
		registry,
		engine.ProvisionerOpener{Provisioner: provisioner},
		compiler.NewScript(),
		engine.ParsePolicy(cfg.Publish.CompilePolicy),
		m,
	)

	return &platform{
		cfg:         cfg,
		store:       s,
		registry:    registry,
		provisioner: provisioner,
		engine:      eng,
		cache:       c,
	}, nil
}

func (p *platform) close() {
	p.cache.Close()
	p.store.DB().Close()
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
