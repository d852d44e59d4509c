package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cardlens/benefit-cli/internal/aggregate"
	"github.com/cardlens/benefit-cli/internal/cache"
	"github.com/cardlens/benefit-cli/internal/chunker"
	"github.com/cardlens/benefit-cli/internal/crawl"
	"github.com/cardlens/benefit-cli/internal/dispatch"
	"github.com/cardlens/benefit-cli/internal/pipeline"
	"github.com/cardlens/benefit-cli/internal/registry"
	"github.com/cardlens/benefit-cli/internal/resilience"
	"github.com/cardlens/benefit-cli/internal/session"
	"github.com/cardlens/benefit-cli/internal/store"
	anthropicpkg "github.com/cardlens/benefit-cli/pkg/anthropic"
	"github.com/cardlens/benefit-cli/pkg/webfetch"
)

// env holds the wired collaborators behind the serve/run/export commands.
type env struct {
	Store    store.Store
	Cache    cache.PageCache
	Fetcher  webfetch.Client
	Registry *registry.Registry
	Manager  *session.Manager

	// RedisCache is set only when a Redis address is configured; monitoring
	// probes it.
	RedisCache *cache.RedisCache
}

// Close releases resources held by the environment.
func (e *env) Close() {
	if e.Fetcher != nil {
		_ = e.Fetcher.Close()
	}
	if e.Cache != nil {
		_ = e.Cache.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv builds the store, cache, fetch client, registries, and the session
// manager. Callers should defer env.Close().
func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var pageCache cache.PageCache = cache.Noop{}
	var redisCache *cache.RedisCache
	if cfg.Cache.Addr != "" {
		redisCache = cache.NewRedis(cache.Config{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      time.Duration(cfg.Cache.TTLHours) * time.Hour,
		})
		pageCache = redisCache
		zap.L().Info("page cache enabled", zap.String("addr", cfg.Cache.Addr))
	} else {
		zap.L().Debug("BENEFIT_CACHE_ADDR not set, page caching disabled")
	}

	fetcher, err := initFetcher()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	reg, err := registry.Load(cfg.Registry.Dir)
	if err != nil {
		_ = fetcher.Close()
		_ = st.Close()
		return nil, eris.Wrap(err, "load registry")
	}
	zap.L().Info("registry loaded",
		zap.Int("banks", len(reg.BankKeys())),
		zap.Int("categories", len(reg.Categories())),
	)

	discoverer := crawl.New(fetcher, pageCache,
		crawl.WithConcurrency(cfg.Crawl.Concurrency),
		crawl.WithMaxPages(cfg.Crawl.MaxPages),
	)

	chk := chunker.New(chunker.Config{
		MinChars: cfg.Chunker.MinChars,
		MaxChars: cfg.Chunker.MaxChars,
		Overlap:  cfg.Chunker.Overlap,
	}, reg.Categories())

	merger := aggregate.NewMerger(
		aggregate.ValueConflictPolicy(cfg.Aggregate.ConflictPolicy),
		aggregate.Thresholds{High: cfg.Aggregate.HighThreshold, Medium: cfg.Aggregate.MediumThreshold},
	)

	preg, err := pipeline.Builtin()
	if err != nil {
		_ = fetcher.Close()
		_ = st.Close()
		return nil, eris.Wrap(err, "build pipeline registry")
	}

	var modelClient anthropicpkg.Client
	if cfg.Anthropic.APIKey != "" {
		modelClient = anthropicpkg.NewClient(cfg.Anthropic.APIKey)
		zap.L().Info("model extraction enabled", zap.String("model", cfg.Anthropic.Model))
	} else {
		zap.L().Warn("BENEFIT_ANTHROPIC_API_KEY not set, pipelines run pattern-only")
	}

	modelCfg := pipeline.DefaultModelConfig()
	modelCfg.Model = cfg.Anthropic.Model
	modelCfg.MaxTokens = cfg.Anthropic.MaxTokens

	runner := pipeline.NewRunner(preg, modelClient, merger,
		pipeline.WithModelConfig(modelCfg),
		pipeline.WithMinRelevance(cfg.Pipeline.MinRelevance),
		pipeline.WithMaxSources(cfg.Pipeline.MaxSources),
		pipeline.WithParallelism(cfg.Pipeline.Parallelism),
	)

	manager := session.NewManager(session.Deps{
		Registry:   reg,
		Discoverer: discoverer,
		Fetcher:    fetcher,
		PageCache:  pageCache,
		Store:      st,
		Chunker:    chk,
		Dispatcher: dispatch.New(reg.PipelineMap()),
		Runner:     runner,
		Merger:     merger,
	},
		session.WithApprovalThreshold(cfg.Approval.MinContentChars),
		session.WithFetchConcurrency(cfg.Crawl.Concurrency),
		session.WithIdleTTL(time.Duration(cfg.Session.IdleTTLMins)*time.Minute),
	)

	return &env{
		Store:      st,
		Cache:      pageCache,
		Fetcher:    fetcher,
		Registry:   reg,
		Manager:    manager,
		RedisCache: redisCache,
	}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.PostgresURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "connect postgres")
		}
		return st, nil
	default:
		st, err := store.NewSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, eris.Wrap(err, "open sqlite")
		}
		return st, nil
	}
}

func initFetcher() (webfetch.Client, error) {
	opts := []webfetch.Option{
		webfetch.WithUserAgent(cfg.Fetch.UserAgent),
		webfetch.WithTimeout(time.Duration(cfg.Fetch.TimeoutSecs) * time.Second),
		webfetch.WithPerHostRate(rate.Limit(cfg.Fetch.PerHostRate), cfg.Fetch.PerHostBurst),
		webfetch.WithMaxBodyBytes(cfg.Fetch.MaxBodyMB * 1024 * 1024),
		webfetch.WithRetryPolicy(resilience.Policy{
			Attempts:  cfg.Fetch.RetryAttempts,
			BaseDelay: 500 * time.Millisecond,
			MaxDelay:  20 * time.Second,
			Factor:    2.0,
			Jitter:    0.25,
		}),
		webfetch.WithBreakers(resilience.NewBreakerSet(resilience.BreakerConfig{
			Trip:     cfg.Fetch.BreakerTrips,
			Cooldown: time.Duration(cfg.Fetch.BreakerCooloff) * time.Second,
		})),
	}

	if cfg.Fetch.RenderEnabled {
		renderer, err := webfetch.NewChromeRenderer(cfg.Fetch.UserAgent, 2*time.Second)
		if err != nil {
			return nil, eris.Wrap(err, "start chrome renderer")
		}
		opts = append(opts, webfetch.WithRenderer(renderer))
		zap.L().Info("javascript rendering enabled")
	}

	return webfetch.New(opts...), nil
}
