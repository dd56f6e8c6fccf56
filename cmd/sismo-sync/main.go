package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/dquispe/sismo-sync/internal/api"
	"github.com/dquispe/sismo-sync/internal/config"
	"github.com/dquispe/sismo-sync/internal/igp"
	"github.com/dquispe/sismo-sync/internal/logging"
	"github.com/dquispe/sismo-sync/internal/observability"
	"github.com/dquispe/sismo-sync/internal/refresh"
	"github.com/dquispe/sismo-sync/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path, cfg.Refresh.BatchSize)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()
	fetcher := igp.NewClient(cfg.Source.BaseURL, cfg.Source.FetchTimeout)
	runner := refresh.NewRunner(fetcher, db, metrics, cfg.Refresh.ScanPageSize)

	// Optional built-in periodic refresh; REFRESH_INTERVAL=0 leaves triggering
	// to the HTTP endpoint alone.
	scheduler := refresh.NewScheduler(runner, cfg.Refresh.Interval,
		cfg.Refresh.DefaultStartYear, cfg.Refresh.DefaultEndYear)
	scheduler.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimitRPS, cfg.Server.RateLimitRPS))

	handler := api.NewHandler(runner, db,
		cfg.Refresh.DefaultStartYear, cfg.Refresh.DefaultEndYear)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
