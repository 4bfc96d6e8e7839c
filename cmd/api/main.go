package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"aiaxstock/internal/cache"
	"aiaxstock/internal/config"
	"aiaxstock/internal/handler"
	"aiaxstock/internal/logging"
	"aiaxstock/internal/middleware"
	"aiaxstock/internal/repository"
	"aiaxstock/internal/router"
	"aiaxstock/internal/service"
	"aiaxstock/internal/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	logging.Setup(cfg.App.LogLevel, cfg.App.IsProduction())
	log := logging.Component("main")
	log.WithFields(logrus.Fields{
		"environment": cfg.App.Environment,
		"version":     cfg.App.Version,
	}).Info("starting aiaxstock")

	shutdownTracer, err := telemetry.InitTracer(context.Background(), cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName, cfg.App.Version)
	if err != nil {
		log.WithError(err).Warn("tracing disabled")
		shutdownTracer = func(context.Context) error { return nil }
	}

	// Initialize store based on config
	store, err := openStore(&cfg.Store)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize store")
	}
	defer store.Close()
	log.WithField("store", cfg.Store.Type).Info("store initialized")

	fallback := service.StaticCatalog(cfg.Catalog.Products)
	if seeder, ok := store.(repository.CatalogSeeder); ok && len(fallback.Products) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := seeder.SeedCatalog(ctx, fallback); err != nil {
			log.WithError(err).Warn("failed to seed catalog")
		}
		cancel()
	}

	// Initialize cache (catalog and sessions)
	var c cache.Cache
	switch strings.ToLower(cfg.Cache.Type) {
	case "redis":
		redisCache, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:      cfg.Cache.RedisAddress(),
			Password:  cfg.Cache.RedisPassword,
			DB:        cfg.Cache.RedisDB,
			KeyPrefix: cfg.Cache.RedisPrefix,
		})
		if err != nil {
			log.WithError(err).Warn("redis unavailable, using in-memory cache")
			c = cache.NewMemoryCache()
		} else {
			c = redisCache
			log.Info("redis cache initialized")
		}
	default:
		c = cache.NewMemoryCache()
	}
	defer c.Close()

	// Initialize services
	var proc repository.CheckoutProcedure
	if p, ok := store.(repository.CheckoutProcedure); ok {
		proc = p
	}
	auth := service.NewAuthenticator(cfg.Auth.OwnerIDs, cfg.Auth.AdminIDs)
	sessions := service.NewSessionService(c, cfg.Auth.SessionTTL)
	inventory := service.NewInventoryService(store)
	ledger := service.NewLedgerService(store)
	checkout := service.NewCheckoutService(store, store, proc, service.CheckoutConfig{
		Atomic:      cfg.Checkout.Atomic,
		MaxAttempts: cfg.Checkout.MaxAttempts,
	})
	catalog := service.NewCatalogService(store, c, fallback, cfg.Catalog.Timeout, cfg.Cache.TTL)

	var purger *service.PurgeScheduler
	if cfg.Checkout.PurgeInterval > 0 {
		purger = service.NewPurgeScheduler(inventory, auth.OwnerIDs(), cfg.Checkout.PurgeInterval)
		purger.Start()
	}

	loginLimiter := middleware.NewRateLimiter(cfg.RateLimit.LoginPerMinute, cfg.RateLimit.LoginBurst)
	defer loginLimiter.Stop()

	// Create router
	r := router.New(router.Config{
		Handler:          handler.New(store, cfg.App.Version),
		AuthHandler:      handler.NewAuthHandler(auth, sessions),
		CatalogHandler:   handler.NewCatalogHandler(catalog),
		InventoryHandler: handler.NewInventoryHandler(inventory),
		CheckoutHandler:  handler.NewCheckoutHandler(checkout, inventory, ledger),
		SalesHandler:     handler.NewSalesHandler(ledger),
		SystemHandler:    handler.NewSystemHandler(store, sessions, cfg.Store.Type, cfg.Cache.Type),
		AuthMiddleware:   middleware.NewSessionMiddleware(sessions),
		LoginLimiter:     loginLimiter.Handler,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.WithField("addr", cfg.Server.Address()).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if purger != nil {
		purger.Stop()
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server shutdown error")
	}
	if err := shutdownTracer(ctx); err != nil {
		log.WithError(err).Warn("tracer shutdown error")
	}

	log.Info("server stopped")
}

// openStore connects the backend named by cfg.Type.
func openStore(cfg *config.StoreConfig) (repository.Store, error) {
	switch strings.ToLower(cfg.Type) {
	case "rest":
		return repository.NewRESTStore(cfg.URL, cfg.Key, cfg.Timeout), nil
	case "mongodb", "mongo":
		return repository.NewMongoStore(cfg.MongoURI, cfg.MongoDatabase)
	case "postgres", "postgresql":
		return repository.NewPostgresStore(cfg.PostgresDSN())
	case "mysql":
		return repository.NewMySQLStore(cfg.MySQLDSN())
	case "sqlite", "":
		return repository.NewSQLiteStore(cfg.Path)
	}
	return nil, fmt.Errorf("unknown store type %q", cfg.Type)
}
