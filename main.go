package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/epeers/marketsync/config"
	_ "github.com/epeers/marketsync/docs"
	"github.com/epeers/marketsync/internal/alphavantage"
	"github.com/epeers/marketsync/internal/cache"
	"github.com/epeers/marketsync/internal/database"
	"github.com/epeers/marketsync/internal/embedding"
	"github.com/epeers/marketsync/internal/handlers"
	"github.com/epeers/marketsync/internal/marketdata"
	"github.com/epeers/marketsync/internal/middleware"
	"github.com/epeers/marketsync/internal/models"
	"github.com/epeers/marketsync/internal/repository"
	"github.com/epeers/marketsync/internal/scheduler"
	"github.com/epeers/marketsync/internal/services"
	"github.com/epeers/marketsync/internal/util"
	"github.com/epeers/marketsync/internal/yahoo"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const usage = `usage: marketsync [command]

commands:
  serve          run the HTTP API (default); runs sync on SYNC_CRON when set
  sync           run one incremental sync and print the run report
  verify         print row counts and sample rows for each table
  query <text>   run a similarity search and print the result
`

// @title MarketSync API
// @version 1.0
// @description Incremental market data and embedding synchronizer with similarity search.
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := setupLogging(cfg); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := "serve"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}

	switch cmd {
	case "serve":
		err = runServe(ctx, cfg)
	case "sync":
		err = runSync(ctx, cfg)
	case "verify":
		err = runVerify(ctx, cfg)
	case "query":
		err = runQuery(ctx, cfg, strings.Join(flag.Args()[1:], " "))
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		stop()
		log.Fatalf("%s failed: %v", cmd, err)
	}
}

func setupLogging(cfg *config.Config) error {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: LOG_LEVEL: %v", config.ErrConfig, err)
	}
	log.SetLevel(level)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// app wires every component from one Config
type app struct {
	store     repository.Store
	memCache  *cache.MemoryCache
	syncSvc   *services.SyncService
	searchSvc *services.SearchService
	statusSvc *services.StatusService
	closers   []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	tables := repository.Tables{
		Companies:  cfg.Tables.Companies,
		Prices:     cfg.Tables.Prices,
		Embeddings: cfg.Tables.Embeddings,
	}

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := database.New(ctx, cfg.PGURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.store = repository.NewPostgresStore(db.Pool, tables)
	case config.DriverSQLite:
		s, err := repository.NewSQLiteStore(cfg.SQLitePath, tables)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = s.Close() })
		a.store = s
	}

	retry := util.RetryPolicy{MaxRetries: cfg.MaxRetries, CallTimeout: cfg.CallTimeout}

	var source marketdata.PriceSource
	switch cfg.PriceSource {
	case config.SourceAlphaVantage:
		source = alphavantage.NewClient(cfg.AVKey, retry)
	default:
		source = yahoo.NewClient(retry)
	}

	var embedder embedding.Embedder
	switch cfg.Embedder.Type {
	case config.EmbedderHash:
		embedder = embedding.NewHashEmbedder(cfg.Embedder.Dimension)
	default:
		client, err := embedding.NewOpenAIClient(embedding.OpenAIConfig{
			BaseURL: cfg.Embedder.BaseURL,
			APIKey:  cfg.Embedder.APIKey,
			Model:   cfg.Embedder.Model,
			Retry:   retry,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrConfig, err)
		}
		embedder = client
	}

	a.memCache = cache.NewMemoryCache(cfg.QueryCacheTTL)
	var vectors cache.VectorCache = a.memCache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warnf("Redis unavailable at %s, using in-memory query cache only: %v", cfg.Redis.Addr, err)
			_ = rdb.Close()
		} else {
			a.closers = append(a.closers, func() { _ = rdb.Close() })
			vectors = &cache.Tiered{L1: a.memCache, L2: cache.NewRedisCache(rdb, cfg.QueryCacheTTL)}
		}
	}

	generator := embedding.NewGenerator(embedder, cfg.Embedder.BatchSize, cfg.Embedder.IncludeProfile)
	writer := services.NewSynchronizer(a.store, tables, cfg.BatchSize, retry)

	a.syncSvc = services.NewSyncService(a.store, source, generator, writer, retry, a.memCache, services.SyncOptions{
		SymbolsPath:  cfg.SymbolsPath,
		ProfilesPath: cfg.ProfilesPath,
		FieldMapPath: cfg.FieldMapPath,
		HorizonDays:  cfg.HorizonDays,
		Workers:      cfg.Workers,
	})
	a.searchSvc = services.NewSearchService(a.store, embedder, vectors, a.memCache, cfg.TopK, cfg.HistoryLimit)
	a.statusSvc = services.NewStatusService(a.store, embedder.Model())

	log.WithFields(log.Fields{
		"store":    cfg.StoreDriver,
		"source":   source.Name(),
		"embedder": cfg.Embedder.Type,
		"model":    embedder.Model(),
	}).Info("Components initialized")
	return a, nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	queryHandler := handlers.NewQueryHandler(a.searchSvc)
	adminHandler := handlers.NewAdminHandler(a.syncSvc, a.statusSvc)

	// Setup Gin router
	router := gin.Default()

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.POST("/query", queryHandler.Query)
	router.GET("/prices/:symbol", queryHandler.GetPrices)

	admin := router.Group("/admin", middleware.RequireAPIKey(cfg.AdminAPIKey))
	{
		admin.POST("/sync", adminHandler.Sync)
		admin.GET("/status", adminHandler.Status)
	}

	if cfg.SyncCron != "" {
		if err := cfg.RequireReferenceFiles(); err != nil {
			return err
		}
		sched, err := scheduler.New(ctx, a.syncSvc, cfg.SyncCron)
		if err != nil {
			return fmt.Errorf("%w: %v", config.ErrConfig, err)
		}
		sched.Start()
		defer sched.Stop()
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}
	log.Info("Shutting down server...")

	// Give outstanding requests 5 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("Server exited")
	return nil
}

func runSync(ctx context.Context, cfg *config.Config) error {
	if err := cfg.RequireReferenceFiles(); err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.syncSvc.Run(ctx)
	if report != nil {
		if perr := printJSON(report); perr != nil {
			return perr
		}
	}
	return err
}

func runVerify(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	status, err := a.statusSvc.Status(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("embedding model: %s\n", status.Model)
	for _, t := range status.Tables {
		fmt.Printf("\n%s: %d rows\n", t.Table, t.Rows)
		for _, row := range t.Preview {
			b, err := json.Marshal(row)
			if err != nil {
				return err
			}
			fmt.Printf("  %s\n", b)
		}
	}
	return nil
}

func runQuery(ctx context.Context, cfg *config.Config, text string) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.searchSvc.Search(ctx, text, 0)
	if err != nil {
		return err
	}
	if resp.Status == models.SearchEmpty {
		fmt.Fprintln(os.Stderr, resp.Message)
	}
	return printJSON(resp)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
