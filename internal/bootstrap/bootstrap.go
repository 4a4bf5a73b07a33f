// Package bootstrap builds the runtime shared by the server and worker
// binaries from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/neoxmeet/meet-backend/internal/broadcast"
	"github.com/neoxmeet/meet-backend/internal/config"
	"github.com/neoxmeet/meet-backend/internal/database"
	"github.com/neoxmeet/meet-backend/internal/db"
	"github.com/neoxmeet/meet-backend/internal/livekit"
	"github.com/neoxmeet/meet-backend/internal/media"
	"github.com/neoxmeet/meet-backend/internal/providers"
	"github.com/neoxmeet/meet-backend/internal/providers/openai"
	"github.com/neoxmeet/meet-backend/internal/queue"
	"github.com/neoxmeet/meet-backend/internal/repository"
	"github.com/neoxmeet/meet-backend/internal/repository/memory"
	"github.com/neoxmeet/meet-backend/internal/repository/postgres"
	"github.com/neoxmeet/meet-backend/internal/services"
	"github.com/neoxmeet/meet-backend/internal/storage"
	"github.com/neoxmeet/meet-backend/internal/worker"
	"github.com/sirupsen/logrus"
)

// Runtime holds the long-lived collaborators of a process
type Runtime struct {
	Config      *config.Config
	Logger      *logrus.Logger
	DB          *database.DB
	Store       *repository.Store
	Queue       queue.Queue
	Hub         *broadcast.Hub
	Broadcaster broadcast.Broadcaster

	listen      func(ctx context.Context)
	transport   broadcast.Transport
	eventSource func(ctx context.Context) <-chan string
	relay       *broadcast.Relay
	closers     []func()
}

// New connects the store and the queue selected by cfg
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Logger: logger, Hub: broadcast.NewHub(logger.WithField("component", "hub"))}

	if err := rt.openStore(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.openQueue(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	lkBroadcaster, err := livekit.NewBroadcaster(cfg.LiveKit.URL, cfg.LiveKit.APIKey, cfg.LiveKit.APISecret)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("livekit broadcaster: %w", err)
	}

	// Without a shared transport (memory queue) the worker runs inline and
	// the hub sees every event directly.
	var local broadcast.Broadcaster = rt.Hub
	if rt.transport != nil {
		rt.relay = broadcast.NewRelay(rt.Hub, rt.transport, logger.WithField("component", "relay"))
		local = rt.relay
	}
	rt.Broadcaster = broadcast.NewMulti(logger.WithField("component", "broadcast"), lkBroadcaster, local)

	return rt, nil
}

func (rt *Runtime) openStore(ctx context.Context) error {
	switch rt.Config.Store.Driver {
	case "memory":
		rt.Logger.Warn("using the in-memory store; data is lost on restart")
		rt.Store = memory.New().Store
		return nil
	default:
		conn, err := database.NewConnection(ctx, rt.Config.Database)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, func() { conn.Close() })
		rt.DB = conn

		if err := database.RunMigrations(rt.Config.Database); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		rt.Store = &repository.Store{
			Rooms:     postgres.NewRoomRepository(conn.DB),
			Sessions:  postgres.NewSessionRepository(conn.DB),
			Segments:  postgres.NewSegmentRepository(conn.DB),
			Artifacts: postgres.NewArtifactRepository(conn.DB),
		}
		return nil
	}
}

func (rt *Runtime) openQueue(ctx context.Context) error {
	opts := queue.Options{
		MaxAttempts: rt.Config.Worker.MaxAttempts,
		Visibility:  rt.Config.Worker.Visibility,
		Logger:      rt.Logger.WithField("component", "queue"),
	}

	switch rt.Config.Queue.Driver {
	case "memory":
		rt.Queue = queue.NewMemoryQueue(opts)

	case "redis":
		client, err := queue.NewRedisClient(ctx, rt.Config.Queue.RedisURL)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, func() { client.Close() })
		q := queue.NewRedisQueue(client, opts)
		rt.Queue = q
		rt.listen = q.Listen

		transport := broadcast.NewRedisTransport(client)
		rt.transport = transport
		rt.eventSource = transport.Subscribe

	default:
		if rt.DB == nil {
			return errors.New("postgres queue requires the postgres store")
		}
		q := queue.NewPostgresQueue(rt.DB.DB, opts)
		rt.Queue = q

		pool, err := db.Connect(ctx, database.GetDSN(rt.Config.Database))
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, pool.Close)
		logger := rt.Logger.WithField("component", "queue")
		rt.listen = func(ctx context.Context) {
			q.Forward(pool.Listen(ctx, queue.NotifyChannel, logger))
		}

		rt.transport = broadcast.NewPostgresTransport(rt.DB.DB)
		rt.eventSource = func(ctx context.Context) <-chan string {
			return pool.Listen(ctx, broadcast.EventsChannel, rt.Logger.WithField("component", "relay"))
		}
	}
	return nil
}

// ListenForJobs starts the queue wake-up listener, when the driver has one
func (rt *Runtime) ListenForJobs(ctx context.Context) {
	if rt.listen != nil {
		rt.listen(ctx)
	}
}

// ListenForEvents feeds the local hub with events broadcast by other
// processes, such as transcriber status from a standalone worker
func (rt *Runtime) ListenForEvents(ctx context.Context) {
	if rt.relay == nil || rt.eventSource == nil {
		return
	}
	go rt.relay.Receive(ctx, rt.eventSource(ctx))
}

// Services builds the service layer
func (rt *Runtime) Services(ctx context.Context) (*services.Services, error) {
	cfg := rt.Config

	ffmpeg := media.NewFFmpeg()
	if err := ffmpeg.CheckBinaries(); err != nil {
		rt.Logger.WithError(err).Warn("ffmpeg not available; audio uploads will fail")
	}

	var provs services.Providers
	provider, err := openai.NewProvider(cfg.AI)
	switch {
	case errors.Is(err, providers.ErrNotConfigured):
		rt.Logger.Warn("OPENAI_API_KEY is not set; AI endpoints are disabled")
	case err != nil:
		return nil, fmt.Errorf("openai provider: %w", err)
	default:
		breaker := providers.NewCircuitBreaker(providers.BreakerConfig{}, rt.Logger.WithField("component", "providers"))
		guarded := providers.NewGuarded(provider, breaker)
		provs = services.Providers{
			Transcriber: guarded,
			Summarizer:  guarded,
			Translator:  guarded,
			Synthesizer: guarded,
		}
	}

	var archiver storage.Archiver
	if cfg.Archive.S3Bucket != "" {
		s3Archiver, err := storage.NewS3Archiver(ctx, cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("s3 archive: %w", err)
		}
		archiver = s3Archiver
	}

	return services.NewServices(services.Options{
		Store:       rt.Store,
		Queue:       rt.Queue,
		Minter:      livekit.NewTokenMinter(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret),
		Broadcaster: rt.Broadcaster,
		Media:       ffmpeg,
		Archiver:    archiver,
		Providers:   provs,
		Limits: services.IngestionLimits{
			MaxFileBytes:    cfg.AI.MaxFileBytes(),
			MaxAudioSeconds: cfg.AI.MaxAudioSeconds,
			WorkDir:         cfg.AI.WorkDir,
		},
		LiveKitURL: cfg.LiveKit.URL,
	}, rt.Logger), nil
}

// Worker builds the transcription worker
func (rt *Runtime) Worker() *worker.Worker {
	cfg := rt.Config.Worker
	logger := rt.Logger.WithField("component", "worker")
	handler := worker.NewTranscriptionHandler(rt.Store.Segments, rt.Broadcaster, logger)
	return worker.New(rt.Queue, handler, worker.Config{
		Concurrency:  cfg.Concurrency,
		PollInterval: cfg.PollInterval,
		RetryBase:    cfg.RetryBase,
		RetryMax:     cfg.RetryMax,
	}, logger)
}

// Close releases connections in reverse order
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
