package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/neoxmeet/meet-backend/internal/api"
	"github.com/neoxmeet/meet-backend/internal/auth"
	"github.com/neoxmeet/meet-backend/internal/bootstrap"
	"github.com/neoxmeet/meet-backend/internal/config"
	"github.com/neoxmeet/meet-backend/internal/livekit"
	"github.com/neoxmeet/meet-backend/internal/logging"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log, cfg.IsProduction())
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

	svc, err := rt.Services(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize services")
	}

	// Initialize Fiber app. The body limit leaves room for multipart overhead
	// on top of the largest accepted clip.
	app := fiber.New(fiber.Config{
		AppName:      "NeoxMeet Backend",
		ErrorHandler: api.ErrorHandler,
		BodyLimit:    int(cfg.AI.MaxFileBytes()) + 1024*1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api.SetupRoutes(app, api.Dependencies{
		Services: svc,
		Tokens:   auth.NewJWTService(cfg.Auth.AccessSecret),
		Webhooks: livekit.NewWebhookVerifier(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret),
		Hub:      rt.Hub,
		Logger:   log,
	})

	g, ctx := errgroup.WithContext(ctx)

	rt.ListenForEvents(ctx)

	if cfg.Worker.Inline {
		rt.ListenForJobs(ctx)
		w := rt.Worker()
		g.Go(func() error {
			return w.Run(ctx)
		})
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	g.Go(func() error {
		log.WithField("addr", addr).Info("NeoxMeet backend starting")
		return app.Listen(addr)
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("Server stopped")
	}
}
