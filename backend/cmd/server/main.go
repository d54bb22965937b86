package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"peoplegraph/backend/internal/api"
	"peoplegraph/backend/internal/ingest"
	"peoplegraph/backend/internal/metrics"
	"peoplegraph/backend/internal/mutation"
	"peoplegraph/backend/internal/recommend"
	"peoplegraph/backend/pkg/config"
	"peoplegraph/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting people graph service...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open graph store", zap.Error(err), zap.String("backend", cfg.StoreBackend))
	}
	defer closeStore()
	metrics.SetGraphStats(store.Stats())

	// Initialize dependencies
	mutations := mutation.NewService(store)
	queries := recommend.NewEngine(store, recommend.WithTimeout(cfg.QueryTimeout))
	syncer := ingest.NewAdapter(mutations)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Deps{
		Store:          store,
		Mutations:      mutations,
		Queries:        queries,
		Sync:           syncer,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("backend", cfg.StoreBackend),
		zap.Any("graph", store.Stats()),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
