package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/relaypanel/go-relay-backend/internal/api"
	"github.com/relaypanel/go-relay-backend/internal/certbot"
	"github.com/relaypanel/go-relay-backend/internal/endpoint"
	"github.com/relaypanel/go-relay-backend/internal/proxy"
	"github.com/relaypanel/go-relay-backend/internal/storage"
	"github.com/relaypanel/go-relay-backend/internal/storage/memory"
	"github.com/relaypanel/go-relay-backend/internal/storage/mongodb"
	"github.com/relaypanel/go-relay-backend/internal/supervisor"
	"github.com/relaypanel/go-relay-backend/pkg/config"
	"github.com/relaypanel/go-relay-backend/pkg/logging"
	"github.com/relaypanel/go-relay-backend/pkg/middleware"
)

var (
	configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")
	version    = "dev"
	buildTime  = "unknown"
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting Relay Backend",
		zap.String("version", version),
		zap.String("build_time", buildTime),
	)

	// Initialize storage
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := newStore(ctx, cfg)
	cancel()
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	logger.Info("Storage initialized", zap.String("type", cfg.Storage.Type))

	// Ping storage to verify connection
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	err = store.Ping(ctx)
	cancel()
	if err != nil {
		logger.Fatal("Failed to ping storage", zap.Error(err))
	}

	// Wire collaborators and the supervisor
	recorder := supervisor.NewRecorder(store, logger)
	prox := proxy.NewManager(cfg.Proxy, logger)
	cb := certbot.NewService(cfg.Certbot, logger)
	sup := supervisor.New(store, prox, recorder, endpoint.Options{
		Host:      cfg.Endpoints.Host,
		LogBuffer: cfg.Endpoints.LogBuffer,
	}, logger)

	// Restore the prior running topology before serving management
	// requests, so the API never sees a half-reconciled registry
	ctx, cancel = context.WithTimeout(context.Background(), 60*time.Second)
	err = sup.ReconcileStartup(ctx)
	cancel()
	if err != nil {
		logger.Fatal("Failed to reconcile running servers", zap.Error(err))
	}

	// Build the management API router
	router := setupRouter(cfg, sup, store, prox, cb, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Management API listening", zap.String("address", cfg.Server.Address()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start management API", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Management API shutdown error", zap.Error(err))
	}

	// Close runtimes without touching durable status so the reconciler
	// can restore the same topology on the next start
	sup.Shutdown()
	recorder.Close()

	logger.Info("Shutdown complete")
}

func newStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Type {
	case "mongodb":
		return mongodb.NewStore(ctx, &cfg.Storage.MongoDB)
	default:
		return memory.NewStore(), nil
	}
}

func setupRouter(cfg *config.Config, sup *supervisor.Supervisor, store storage.Store, prox *proxy.Manager, cb *certbot.Service, logger *zap.Logger) *gin.Engine {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}))

	if cfg.Server.AdminToken != "" {
		router.Use(middleware.AdminAuthMiddleware(cfg.Server.AdminToken, logger))
	}

	handlers := api.NewHandlers(sup, store, prox, cb, cfg, logger)
	handlers.RegisterRoutes(router)

	return router
}
