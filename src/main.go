package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"budgee-sync/src/api"
	"budgee-sync/src/categories"
	"budgee-sync/src/config"
	"budgee-sync/src/db"
	dbsql "budgee-sync/src/db/sql"
	"budgee-sync/src/ids"
	"budgee-sync/src/jobs"
	"budgee-sync/src/logger"
	"budgee-sync/src/models"
	"budgee-sync/src/plaid"
	"budgee-sync/src/rules"
	"budgee-sync/src/spending"
	"budgee-sync/src/store"
	"budgee-sync/src/store/memory"
	"budgee-sync/src/txsync"
	"budgee-sync/src/util"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", false)
		boot.Fatal().Err(err).Msg("Invalid configuration")
	}
	log := logger.New(cfg.LogLevel, cfg.LogPretty)
	ctx := logger.WithContext(context.Background(), log)

	st, closeStore := openStore(ctx, log, cfg)
	defer closeStore()

	mapping := categories.DefaultMapping()
	if cfg.CategoryMapPath != "" {
		mapping, err = categories.LoadMappingFile(cfg.CategoryMapPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.CategoryMapPath).Msg("Failed to load category mapping")
		}
	}

	var agg txsync.Aggregator = unconfiguredAggregator{}
	var deps api.Deps
	if cfg.PlaidEnabled() {
		client, err := plaid.NewPlaidClient(cfg.PlaidClientID, cfg.PlaidSecret, cfg.PlaidEnv)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Plaid client")
		}
		agg = plaid.NewAggregator(client)
		deps.Plaid = client
		deps.PlaidWebhookURL = cfg.PlaidWebhookURL
		deps.Verifier = util.NewWebhookVerifier(util.PlaidKeyFunc(client))
	} else {
		log.Warn().Msg("No Plaid credentials configured - syncs will fail until they are set")
	}

	jobStore := jobs.NewMemoryStore()
	queue := jobs.NewQueue(cfg.JobBuffer, cfg.JobWorkers, jobStore)

	spend := spending.NewService(st)
	engine := txsync.New(st, agg,
		txsync.WithRetryDelay(cfg.SyncRetryDelay),
		txsync.WithWorkers(cfg.SyncWorkers),
		txsync.WithResolver(categories.NewResolver(mapping)),
		txsync.WithGenerator(ids.NewGenerator(st, ids.WithMaxAttempts(cfg.IDMaxAttempts))),
		txsync.WithPublisher(queue),
		txsync.WithSpending(spend),
	)

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	if err := queue.Start(workerCtx, engine.HandleJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	deps.Log = log
	deps.Store = st
	deps.Engine = engine
	deps.Rules = rules.NewService(st)
	deps.Spending = spend
	deps.Queue = queue
	deps.Jobs = jobStore
	deps.JWTSecret = cfg.JWTSecret
	deps.AllowedOrigins = cfg.AllowedOrigins
	deps.Demo = cfg.Demo

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Bool("demo", cfg.Demo).Msg("API server running")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Job queue shutdown failed")
	}
}

// openStore connects to Postgres, or falls back to the in-memory store in demo mode.
func openStore(ctx context.Context, log zerolog.Logger, cfg config.Config) (store.Store, func()) {
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("No DATABASE_URL - using the in-memory store")
		return memory.New(), func() {}
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("DB connection failed")
	}
	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("DB migration failed")
	}
	cache, err := db.NewCategoryCache()
	if err != nil {
		log.Fatal().Err(err).Msg("Cache initialization failed")
	}
	return dbsql.New(pool, cache), func() {
		cache.Close()
		pool.Close()
	}
}

type unconfiguredAggregator struct{}

var errNoAggregator = errors.New("plaid is not configured")

func (unconfiguredAggregator) FetchChanges(ctx context.Context, accessToken, cursor string) (*models.ChangePage, error) {
	return nil, errNoAggregator
}

func (unconfiguredAggregator) Enrich(ctx context.Context, accessToken string, txns []models.RawTransaction) ([]models.RawTransaction, error) {
	return nil, errNoAggregator
}
