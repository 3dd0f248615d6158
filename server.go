package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/maresto/inventory_backend/catalogsync"
	"github.com/maresto/inventory_backend/config"
	"github.com/maresto/inventory_backend/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := config.GetLogger()

	settings, err := config.LoadSettings(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "settings"}).Fatal(err.Error())
	}
	port := settings.Port
	if v := os.Getenv("PORT"); v != "" {
		// Cloud Run standard env var.
		port = v
	}
	if settings.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	if settings.Otel.Enabled {
		shutdownTracing, err := config.InitTracing(sigCtx, settings.Otel.ServiceName)
		if err != nil {
			logger.WithFields(logrus.Fields{"field": "otel"}).Warn("otel init failed (continuing): " + err.Error())
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdownTracing(ctx)
			}()
		}
	}

	dispatcher, closeDispatcher, err := catalogsync.NewDispatcher(sigCtx, settings)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "catalog"}).Fatal(err.Error())
	}
	defer closeDispatcher()
	svc := catalogsync.NewService(catalogsync.NewClient(settings.Catalog.BaseURL, settings.Catalog.RateLimitPerMin), dispatcher)

	// Start the HTTP server ASAP; app endpoints answer 503 until DB is migrated.
	var ready atomic.Bool
	r := newRouter(settings, svc, ready.Load)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		config.ConnectDatabaseWithRetry()
		return nil
	})
	g.Go(func() error {
		config.ConnectRedisWithRetry(gctx)
		return nil
	})
	_ = g.Wait()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running it as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.AutoMigrate(sigCtx, db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}
	ready.Store(true)

	logger.WithFields(logrus.Fields{
		"info":      "Connection Established",
		"dialect":   config.Dialect(),
		"transport": settings.Catalog.Transport,
	}).Info("listening on port ", port)

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
	// Drain queued catalog syncs while the DB is still open.
	closeDispatcher()

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
