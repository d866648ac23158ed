package main

import (
	"context"
	"fmt"

	"github.com/smallnest/researchcanvas/campaign"
	"github.com/smallnest/researchcanvas/canvas"
	"github.com/smallnest/researchcanvas/config"
	"github.com/smallnest/researchcanvas/log"
	"github.com/smallnest/researchcanvas/models"
	"github.com/smallnest/researchcanvas/store"
	"github.com/smallnest/researchcanvas/store/memory"
	"github.com/smallnest/researchcanvas/store/postgres"
	"github.com/smallnest/researchcanvas/store/redis"
	"github.com/smallnest/researchcanvas/store/sqlite"
	"github.com/smallnest/researchcanvas/tool"
)

// app holds the components shared by serve and chat.
type app struct {
	cfg       *config.Config
	runner    *canvas.Runner
	campaigns *campaign.Client
	close     func()
}

// newApp wires the agent from cfg. onToolCall may be nil.
func newApp(ctx context.Context, cfg *config.Config, onToolCall func(string)) (*app, error) {
	log.SetLogLevel(log.ParseLevel(cfg.Log.Level))

	cs, closeStore, err := openStore(ctx, cfg.Checkpoint)
	if err != nil {
		return nil, err
	}

	var searcher tool.Searcher
	if cfg.Search.BraveAPIKey != "" {
		brave, err := tool.NewBraveSearch(cfg.Search.BraveAPIKey, tool.WithBraveCount(cfg.Search.Count))
		if err != nil {
			closeStore()
			return nil, err
		}
		searcher = brave
	} else {
		log.Warn("BRAVE_API_KEY is not set, web search is disabled")
	}

	campaigns := campaign.NewClient(cfg.Campaign.APIURL, cfg.Campaign.Timeout)
	if !campaigns.Enabled() {
		log.Info("campaign service URL is empty, replication is disabled")
	}

	agent, err := canvas.New(canvas.Options{
		Models:        models.NewFactory(cfg.Model.Credentials()),
		EnvModel:      cfg.Model.Default,
		Fetcher:       tool.NewResourceFetcher(cfg.Fetch.Timeout),
		Searcher:      searcher,
		Replicator:    campaigns,
		MaxToolRounds: cfg.Agent.MaxToolRounds,
		OnToolCall:    onToolCall,
	})
	if err != nil {
		closeStore()
		return nil, err
	}

	runner, err := canvas.NewRunner(agent, cs)
	if err != nil {
		closeStore()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		runner:    runner,
		campaigns: campaigns,
		close: func() {
			campaigns.Wait()
			closeStore()
		},
	}, nil
}

// defaultProvider is the provider bound to requests for the default agent.
func (a *app) defaultProvider() models.Provider {
	p, err := models.Resolve("", "", a.cfg.Model.Default)
	if err != nil {
		return models.DefaultProvider
	}
	return p
}

// openStore opens the configured checkpoint backend.
func openStore(ctx context.Context, cfg config.CheckpointConfig) (store.CheckpointStore, func(), error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return memory.NewMemoryCheckpointStore(), func() {}, nil

	case config.BackendRedis:
		s := redis.NewRedisCheckpointStore(redis.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTL,
		})
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("redis connection failed (%s): %w", cfg.Redis.Addr, err)
		}
		return s, func() { _ = s.Close() }, nil

	case config.BackendPostgres:
		s, err := postgres.NewPostgresCheckpointStore(ctx, postgres.PostgresOptions{
			ConnString: cfg.Postgres.DSN,
			TableName:  cfg.Postgres.Table,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := s.InitSchema(ctx); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("failed to create checkpoint table: %w", err)
		}
		return s, s.Close, nil

	case config.BackendSQLite:
		s, err := sqlite.NewSqliteCheckpointStore(sqlite.SqliteOptions{
			Path:      cfg.SQLite.Path,
			TableName: cfg.SQLite.Table,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}
