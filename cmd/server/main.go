package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/midiview/midiview/internal/config"
	"github.com/midiview/midiview/internal/logging"
	"github.com/midiview/midiview/internal/server"
)

func main() {
	cfg := config.LoadOrDefault()

	// Flags override environment for development convenience.
	port := flag.String("port", cfg.Server.Port, "Server port")
	storage := flag.String("storage", cfg.Storage.Path, "Durable storage directory")
	flag.Parse()
	cfg.Server.Port = *port
	cfg.Storage.Path = *storage

	log, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		log = logging.NewDefault()
	}
	defer log.Sync()

	srv, err := server.New(cfg, log)
	if err != nil {
		log.Fatal("failed to create server", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	select {
	case <-sigChan:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("shutdown failed", zap.Error(err))
		}
		if err := <-errChan; err != nil {
			log.Error("server error during shutdown", zap.Error(err))
		}
	case err := <-errChan:
		log.Fatal("server error", zap.Error(err))
	}
}
