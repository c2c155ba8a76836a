// Package app wires configuration, storage, adapters, and the HTTP
// surface into a runnable service.
package app

import (
	"context"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ctisec/ctihub/internal/api"
	"github.com/ctisec/ctihub/internal/clock/system"
	"github.com/ctisec/ctihub/internal/config"
	"github.com/ctisec/ctihub/internal/fetch"
	"github.com/ctisec/ctihub/internal/intel"
	"github.com/ctisec/ctihub/internal/normalize"
	"github.com/ctisec/ctihub/internal/orchestrator"
	"github.com/ctisec/ctihub/internal/publisher/memory"
	pubsubpub "github.com/ctisec/ctihub/internal/publisher/pubsub"
	"github.com/ctisec/ctihub/internal/scheduler"
	"github.com/ctisec/ctihub/internal/source"
	"github.com/ctisec/ctihub/internal/storage/postgres"
	"github.com/ctisec/ctihub/internal/tasks"
)

// App holds the assembled service.
type App struct {
	Config       config.Config
	Logger       *zap.Logger
	Server       *api.Server
	Scheduler    *scheduler.Scheduler
	Orchestrator *orchestrator.Orchestrator
	Tasks        *tasks.Manager

	pool         *pgxpool.Pool
	pubsubClient *gcppubsub.Client
}

// New assembles the service from configuration.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, err
	}
	if cfg.DB.EnsureSchema {
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	clock := system.Clock{}
	recordStore := postgres.NewRecordStore(pool, logger)
	subStore := postgres.NewSubscriptionStore(pool, logger)
	feedItemStore := postgres.NewFeedItemStore(pool, logger)
	guard := postgres.NewOnceGuard(pool, logger)
	locker := postgres.NewAdvisoryLock(pool, postgres.LockOptions{
		Retry:          time.Duration(cfg.Lock.RetryMs) * time.Millisecond,
		MaxRetry:       time.Duration(cfg.Lock.MaxRetryMs) * time.Millisecond,
		AcquireTimeout: time.Duration(cfg.Lock.AcquireTimeout) * time.Second,
	}, logger)

	pages := fetch.New(fetch.Config{UserAgent: cfg.HTTP.UserAgent, Timeout: cfg.HTTPTimeout()})
	feeds := fetch.NewFeedClient(cfg.HTTP.UserAgent, cfg.HTTPTimeout())
	jsonClient := fetch.NewJSONClient(cfg.HTTP.UserAgent, cfg.HTTPTimeout())

	budget := source.Budget{MaxChars: cfg.Summary.MaxChars, MaxSentences: cfg.Summary.MaxSentences}
	adapters := []intel.Adapter{
		source.NewCatalogAdapter(cfg.Sources.Catalog.URLs, cfg.Sources.Catalog.PageURL,
			cfg.Sources.Catalog.Limit, jsonClient, source.Budget{MaxSentences: cfg.Summary.MaxSentences}, logger),
		source.NewKrebsAdapter(cfg.Sources.Krebs.FeedURL, cfg.Sources.Krebs.Limit, feeds, pages, budget, logger),
		source.NewMSRCAdapter(cfg.Sources.MSRC.FeedURL, cfg.Sources.MSRC.Limit, feeds, pages, budget, logger),
		source.NewVulnDBAdapter(cfg.Sources.VulnDB.BaseURL, cfg.Sources.VulnDB.APIKey,
			cfg.Sources.VulnDB.Days, cfg.Sources.VulnDB.MaxItems, cfg.Sources.VulnDB.PageSize,
			jsonClient, clock, budget, logger),
		source.NewExploitAdapter(cfg.Sources.Exploit.FeedURL, cfg.Sources.Exploit.Limit, feeds, budget, logger),
	}
	userFetcher := source.NewUserFeedFetcher(feeds, pages, cfg.Sources.User.MaxItemsPerFeed, budget, logger)

	var (
		pub          intel.Publisher
		pubsubClient *gcppubsub.Client
	)
	if cfg.PubSub.Enabled {
		pubsubClient, err = gcppubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		pub = pubsubpub.New(pubsubClient)
	} else {
		pub = memory.New()
	}

	orch := orchestrator.New(
		orchestrator.Config{
			LockName:       cfg.Lock.Name,
			Topic:          cfg.PubSub.TopicName,
			MaxSubs:        cfg.Sources.User.MaxSources,
			PublishEnabled: cfg.PubSub.Enabled,
		},
		adapters,
		userFetcher,
		normalize.NewBuilder(clock),
		recordStore,
		feedItemStore,
		subStore,
		locker,
		pub,
		clock,
		logger,
	)

	tm := tasks.NewManager(map[string]tasks.RunFunc{
		tasks.OpFetchAll:          orch.FetchAll,
		tasks.OpFetchAndRecommend: orch.FetchAndRecommend,
	}, clock, 0, logger)
	server := api.NewServer(tm, orch, subStore, logger)

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(cfg.Scheduler.Interval(), cfg.Scheduler.KickoffTTL(),
			guard, orch.FetchAndRecommend, logger)
	}

	return &App{
		Config:       cfg,
		Logger:       logger,
		Server:       server,
		Scheduler:    sched,
		Orchestrator: orch,
		Tasks:        tm,
		pool:         pool,
		pubsubClient: pubsubClient,
	}, nil
}

// Close releases pooled resources.
func (a *App) Close() {
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.Logger.Warn("closing pubsub client failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
