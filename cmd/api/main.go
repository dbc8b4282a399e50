package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/emilythestrangee/tripshare/backend/internal/config"
	"github.com/emilythestrangee/tripshare/backend/internal/server"
)

func configureLogging(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warnf("Unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	if level < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
}

func gracefulShutdown(apiServer *http.Server, srv *server.Server, done chan<- struct{}) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info("shutting down gracefully, press Ctrl+C again to force")
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown with error: %v", err)
	}
	if err := srv.Close(); err != nil {
		log.Errorf("Error releasing backends: %v", err)
	}

	log.Info("Server exiting")
	close(done)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	configureLogging(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	srv, err := server.Open(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}

	apiServer := srv.HTTPServer()
	done := make(chan struct{})
	go gracefulShutdown(apiServer, srv, done)

	log.WithFields(log.Fields{"port": cfg.Port, "backend": cfg.Backend}).Info("Server starting")
	if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("http server error: %v", err)
	}

	<-done
	log.Info("Graceful shutdown complete.")
}
