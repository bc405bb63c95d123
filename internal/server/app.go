// Package server wires the chatkeeper components together: storage backend
// selection, activity tracking, the backup scheduler, the gRPC transport
// and the ops HTTP endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/chatkeeper/internal/logging"
	"github.com/dmitrijs2005/chatkeeper/internal/server/activity"
	"github.com/dmitrijs2005/chatkeeper/internal/server/archive"
	"github.com/dmitrijs2005/chatkeeper/internal/server/backup"
	"github.com/dmitrijs2005/chatkeeper/internal/server/config"
	"github.com/dmitrijs2005/chatkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/chatkeeper/internal/server/repositories/conversations"
	"github.com/dmitrijs2005/chatkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/chatkeeper/internal/server/services"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/chatkeeper/internal/server/grpc"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	repo      conversations.Repository
	decision  repomanager.Decision
	tracker   *activity.Tracker
	metrics   *metrics.Metrics
	scheduler *backup.Scheduler
	grpc      *gs.GRPCServer
	ops       *http.Server
}

// newArchive picks the snapshot destination: S3 when a bucket is set,
// otherwise a local directory, otherwise none.
func newArchive(ctx context.Context, c *config.Config) (archive.Client, error) {
	switch {
	case c.S3Bucket != "":
		return archive.NewS3Client(ctx, archive.S3Options{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
			Bucket:       c.S3Bucket,
			Folder:       c.ArchiveFolder,
		})
	case c.ArchiveDir != "":
		return archive.NewDirClient(c.ArchiveDir)
	default:
		return nil, nil
	}
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	arch, err := newArchive(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("archive init error: %w", err)
	}

	repo, decision := repomanager.SelectBackend(ctx, repomanager.Options{
		DatabaseDSN: c.DatabaseDSN,
		Embedded: conversations.EmbeddedOptions{
			Dir:           c.DataDir,
			FlushInterval: c.FlushInterval,
		},
	}, logger)

	tracker := activity.NewTracker(c.ActivityThreshold)
	m := metrics.New()

	scheduler := backup.NewScheduler(repo, arch, tracker, m, backup.Options{
		Prefix:          c.BackupPrefix,
		Compress:        c.BackupCompression,
		Interval:        c.BackupInterval,
		MinGap:          c.MinBackupGap,
		MaxHourly:       c.MaxHourlySnapshots,
		MaxDaily:        c.MaxDailySnapshots,
		ShutdownTimeout: c.ShutdownTimeout,
	}, logger)

	cs := services.NewConversationService(repo)
	grpcServer := gs.NewGRPCServer(c.EndpointAddrGRPC, logger, cs, scheduler, tracker, m)

	router := metrics.NewRouter(m, map[string]metrics.StatusFunc{
		"backup":   func(*http.Request) (any, error) { return scheduler.Status(), nil },
		"activity": func(*http.Request) (any, error) { return tracker.Snapshot(), nil },
		"storage":  func(*http.Request) (any, error) { return decision, nil },
	})

	return &App{
		config:    c,
		logger:    logger,
		repo:      repo,
		decision:  decision,
		tracker:   tracker,
		metrics:   m,
		scheduler: scheduler,
		grpc:      grpcServer,
		ops:       &http.Server{Addr: c.OpsAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second},
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) runOps(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.config.ShutdownTimeout)
		defer cancel()
		if err := app.ops.Shutdown(shutdownCtx); err != nil {
			app.logger.Warn(ctx, "ops server shutdown", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting ops HTTP server", "address", app.ops.Addr)
	if err := app.ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ops server: %w", err)
	}
	return nil
}

// Run starts every component and blocks until ctx is cancelled, a
// termination signal arrives or one component fails. The store is closed
// after all components have stopped.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "storage_backend", app.decision.ChosenBackend)

	app.initSignalHandler(cancelFunc)

	g, gctx := errgroup.WithContext(ctx)

	if er, ok := app.repo.(*conversations.EmbeddedRepository); ok {
		g.Go(func() error {
			er.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		app.scheduler.Run(gctx)
		return nil
	})

	g.Go(func() error {
		if err := app.grpc.Run(gctx); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return app.runOps(gctx)
	})

	runErr := g.Wait()

	// The embedded store skips this flush when its Run already wrote the
	// shutdown generation.
	if err := app.repo.Close(); err != nil {
		app.logger.Error(ctx, "close store", "error", err)
		runErr = errors.Join(runErr, err)
	}

	app.logger.Info(context.WithoutCancel(ctx), "App stopped")
	return runErr
}
