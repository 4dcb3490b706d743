package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"coinsignals/config"
	"coinsignals/metrics"
	"coinsignals/models"
	"coinsignals/routes"
	"coinsignals/scanner"
	"coinsignals/services/cache"
	"coinsignals/services/credentials"
	"coinsignals/services/exchange"
	"coinsignals/services/marketdata"
	"coinsignals/services/notify"
	"coinsignals/services/signals"
	"coinsignals/services/tradelock"
	"coinsignals/services/trading"
)

func main() {
	log.Println("==============================================")
	log.Println("  Coin Signals API - Starting...")
	log.Println("==============================================")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Config load failed: %v", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.InitDB()
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}

	log.Println("Running database migrations...")
	if err := runMigrations(); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Database migrations completed successfully")

	store := buildStore(cfg)
	defer store.Close()

	archive, err := marketdata.NewArchive(context.Background(), cfg.MongoURI)
	if err != nil {
		log.Printf("Warning: candle archive unavailable: %v", err)
	}

	promRegistry := prometheus.NewRegistry()
	m := metrics.New(promRegistry)

	registry := exchange.NewRegistry(exchange.NewBinanceClient(cfg.ExchangeTimeout))

	creds, err := credentials.NewService(db, credentialsKey(cfg))
	if err != nil {
		log.Fatalf("Credentials service: %v", err)
	}

	generator := signals.NewGenerator(db, store, buildNotifier(cfg), m, signals.Config{
		SignalTTL:     cfg.SignalTTL,
		MinConfidence: cfg.MinConfidence,
		StopLossPct:   cfg.StopLossPct,
		TakeProfitPct: cfg.TakeProfitPct,
	})

	executor := trading.NewExecutor(db, store, tradelock.NewManager(store), registry, creds, m, cfg.TradeLockTTL)

	marketScanner := scanner.New(db, store, registry, generator, archive, m, scanner.Config{
		ScanInterval:    cfg.ScanInterval,
		MarketRefresh:   cfg.MarketRefresh,
		MarketDataTTL:   cfg.MarketDataTTL,
		ExpirySweep:     cfg.ExpirySweep,
		MaxPairsPerTick: cfg.MaxPairsPerTick,
		ScanConcurrency: cfg.ScanConcurrency,
		ExchangeTimeout: cfg.ExchangeTimeout,
	})
	marketScanner.Start()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	routes.SetupRoutes(router, routes.Deps{
		DB:        db,
		Executor:  executor,
		Creds:     creds,
		Exchanges: registry,
		Metrics:   promRegistry,
		JWTSecret: cfg.JWTSecret,
	})

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	gracefulShutdown(server, marketScanner, archive)
}

// runMigrations runs all database migrations
func runMigrations() error {
	db := config.DB

	if err := models.MigrateSignalModels(db); err != nil {
		return err
	}
	if err := models.MigrateTradeModels(db); err != nil {
		return err
	}
	if err := models.MigratePairModels(db); err != nil {
		return err
	}
	return models.MigrateCredentialModels(db)
}

// buildStore picks redis when configured, otherwise the in-process store
func buildStore(cfg *config.Config) cache.Store {
	if cfg.RedisAddr == "" {
		log.Println("REDIS_ADDR not set, using in-memory cache store")
		return cache.NewMemoryStore()
	}
	store, err := cache.NewRedisStore(cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Fatalf("Redis connection failed: %v", err)
	}
	log.Printf("Connected to redis at %s", cfg.RedisAddr)
	return store
}

// buildNotifier uses the push gateway when an API key is configured
func buildNotifier(cfg *config.Config) notify.Notifier {
	if cfg.PushAPIKey == "" {
		log.Println("PUSH_API_KEY not set, push notifications are logged only")
		return notify.NewLogNotifier()
	}
	return notify.NewPushClient(cfg.PushAPIURL, cfg.PushAPIKey, 10*time.Second)
}

// credentialsKey returns the configured sealing key, or a fresh ephemeral
// one. Ephemeral keys make stored exchange secrets unreadable after a
// restart, so they are only acceptable outside production.
func credentialsKey(cfg *config.Config) string {
	if cfg.CredentialsKey != "" {
		return cfg.CredentialsKey
	}
	if cfg.Environment == "production" {
		log.Fatal("CREDENTIALS_KEY is required in production")
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		log.Fatalf("Generate ephemeral credentials key: %v", err)
	}
	log.Println("CREDENTIALS_KEY not set, using an ephemeral key; stored exchange secrets will not survive a restart")
	return hex.EncodeToString(buf)
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for probes to reduce noise
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" || path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		if c.Writer.Status() >= 400 || duration > 1*time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

// gracefulShutdown stops the scanner, drains the server and closes
// external connections on SIGINT/SIGTERM.
func gracefulShutdown(server *http.Server, marketScanner *scanner.Scanner, archive *marketdata.Archive) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	marketScanner.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if err := archive.Close(ctx); err != nil {
		log.Printf("Archive close: %v", err)
	}

	if config.DB != nil {
		sqlDB, err := config.DB.DB()
		if err == nil {
			sqlDB.Close()
			log.Println("Database connection closed")
		}
	}

	log.Println("Server shutdown completed")
}
