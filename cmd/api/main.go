package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ordena/pizzabot/cmd/mainconfig"
	"github.com/ordena/pizzabot/internal/api/router"
	"github.com/ordena/pizzabot/internal/cache"
	"github.com/ordena/pizzabot/internal/catalog"
	appconfig "github.com/ordena/pizzabot/internal/config"
	"github.com/ordena/pizzabot/internal/customers"
	"github.com/ordena/pizzabot/internal/engine"
	"github.com/ordena/pizzabot/internal/http/handlers"
	"github.com/ordena/pizzabot/internal/nlu"
	"github.com/ordena/pizzabot/internal/observability/metrics"
	"github.com/ordena/pizzabot/internal/orders"
	"github.com/ordena/pizzabot/internal/session"
	"github.com/ordena/pizzabot/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting pizzabot API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	cacheMetrics := metrics.NewCacheMetrics(nil)
	convMetrics := metrics.NewConversationMetrics(nil)

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)

	// Without a database the bot runs fully in-memory. Useful for local
	// development; sessions and orders do not survive a restart.
	var (
		db      *sql.DB
		durable cache.DurableStore
		menu    catalog.Provider
		repo    customers.Repository
		ledger  orders.Ledger
	)
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		if err := db.Ping(); err != nil {
			logger.Error("failed to reach database", "error", err)
			os.Exit(1)
		}
		durable = cache.NewPostgresStore(db)
		menu = catalog.NewPostgresCatalog(db, time.Minute)
		repo = customers.NewPostgresRepository(db)
		ledger = orders.NewPostgresLedger(db)
	} else {
		logger.Warn("DATABASE_URL not set, running with in-memory storage")
		durable = cache.NewMemoryStore()
		menu = &catalog.StaticCatalog{Pizzas: catalog.DefaultMenu()}
		repo = customers.NewMemoryRepository()
		ledger = orders.NewMemoryLedger()
	}

	tiered := cache.New(redisClient, durable, logger,
		cache.WithTTL(cfg.SessionTTL),
		cache.WithSweepInterval(cfg.CacheSweepInterval),
		cache.WithMetrics(cacheMetrics),
	)
	store := session.NewStore(tiered, logger,
		session.WithRetryInterval(cfg.WritebackInterval),
		session.WithCacheMetrics(cacheMetrics),
	)

	engineOpts := []engine.Option{
		engine.WithMetrics(convMetrics),
		engine.WithNLUTimeout(cfg.NLUTimeout),
	}
	if interpreter := buildInterpreter(cfg, logger); interpreter != nil {
		engineOpts = append(engineOpts, engine.WithInterpreter(interpreter))
	} else {
		logger.Warn("no LLM provider configured, delegated messages use rules only")
	}

	eng := engine.New(store, menu, repo, ledger, logger, engineOpts...)

	webhook := handlers.NewWebhookHandler(eng, logger)
	r := router.New(&router.Config{
		Logger:         logger,
		Webhook:        webhook,
		MetricsHandler: promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	if err := eng.Close(ctx); err != nil {
		logger.Error("engine shutdown left pending work", "error", err)
	}
	tiered.Close()
	if err := redisClient.Close(); err != nil {
		logger.Warn("redis close failed", "error", err)
	}
	if db != nil {
		if err := db.Close(); err != nil {
			logger.Warn("database close failed", "error", err)
		}
	}
	logger.Info("server stopped")
}

// buildInterpreter assembles the LLM stack: Bedrock primary, Gemini fallback.
// Either provider alone is enough; with neither configured the engine runs on
// rules only.
func buildInterpreter(cfg *appconfig.Config, logger *logging.Logger) nlu.Interpreter {
	ctx := context.Background()

	var primary, fallback nlu.LLMClient
	if cfg.BedrockModelID != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
		} else {
			primary = nlu.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
		}
	}
	if cfg.GeminiAPIKey != "" {
		gemini, err := nlu.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("failed to create gemini client", "error", err)
		} else if primary == nil {
			primary = gemini
		} else {
			fallback = gemini
		}
	}
	if primary == nil {
		return nil
	}

	client := nlu.NewFallbackLLMClient(primary, fallback, logger)
	return nlu.NewLLMInterpreter(client, cfg.BedrockModelID, int32(cfg.InterpreterMaxTokens), logger)
}
