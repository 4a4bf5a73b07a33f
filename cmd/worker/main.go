package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/neoxmeet/meet-backend/internal/bootstrap"
	"github.com/neoxmeet/meet-backend/internal/config"
	"github.com/neoxmeet/meet-backend/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log, cfg.IsProduction())
	if cfg.Queue.Driver == "memory" {
		log.Fatal("QUEUE_DRIVER=memory only works with the inline worker of the server")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize runtime")
	}
	defer rt.Close()

	rt.ListenForJobs(ctx)
	if err := rt.Worker().Run(ctx); err != nil {
		log.WithError(err).Error("Worker stopped")
	}
}
