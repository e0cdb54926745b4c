// Package server wires the loadgate control plane together: storage, the
// services, the JSON API, the gRPC health endpoint and background loops.
package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/loadgate/internal/logging"
	"github.com/dmitrijs2005/loadgate/internal/server/archive"
	"github.com/dmitrijs2005/loadgate/internal/server/auth"
	"github.com/dmitrijs2005/loadgate/internal/server/config"
	"github.com/dmitrijs2005/loadgate/internal/server/executor"
	"github.com/dmitrijs2005/loadgate/internal/server/httpapi"
	"github.com/dmitrijs2005/loadgate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/loadgate/internal/server/services"
	"github.com/dmitrijs2005/loadgate/internal/server/throttle"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/loadgate/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	repos   repomanager.RepositoryManager
	limiter *throttle.MemoryLimiter
	jobs    *services.JobService
	http    *httpapi.Server
	health  *gs.HealthServer
}

// newArchive is a seam for tests.
var newArchive = func(ctx context.Context, c *config.Config) (archive.Store, error) {
	if c.S3Bucket == "" {
		return archive.Noop{}, nil
	}
	return archive.NewS3Store(ctx, archive.Options{
		AccessKey:    c.S3AccessKey,
		SecretKey:    c.S3SecretKey,
		Bucket:       c.S3Bucket,
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
	})
}

// NewApp builds every component from c. It fails with
// common.ErrConfiguration when required settings are missing.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenService(c.SecretKey, c.TokenValidityDuration)
	if err != nil {
		return nil, err
	}

	exec, err := executor.NewClient(c.ExecutorBaseURL, c.ExecutorAPIKey, c.ExecutorTimeout)
	if err != nil {
		return nil, err
	}

	store, err := newArchive(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("archive init error: %w", err)
	}

	repos, err := repomanager.New(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	limiter := throttle.NewMemoryLimiter(c.ThrottleLimit, c.ThrottleWindow)
	policy := auth.Policy{MinPasswordLength: c.PasswordMinLength}

	users := services.NewUserService(repos.Users(), repos.Jobs(), auth.NewHasher(bcrypt.DefaultCost), policy, tokens, limiter, logger)
	jobs := services.NewJobService(services.NewAdmission(repos.Jobs(), repos.Targets()), repos.Jobs(), exec, store, logger, c.ExecutorTimeout)
	targets := services.NewTargetService(repos.Targets(), net.DefaultResolver, nil, logger)

	httpServer := httpapi.NewServer(httpapi.Options{
		Address:                   c.HTTPAddr,
		Users:                     users,
		Jobs:                      jobs,
		Targets:                   targets,
		Tokens:                    tokens,
		Storage:                   repos,
		Logger:                    logger,
		AdminToken:                c.AdminToken,
		AllowLegacyIdentityHeader: c.AllowLegacyIdentityHeader,
		TokenValidity:             c.TokenValidityDuration,
		Debug:                     c.LogLevel == "debug",
	})

	return &App{
		config:  c,
		logger:  logger,
		repos:   repos,
		limiter: limiter,
		jobs:    jobs,
		http:    httpServer,
		health:  gs.NewHealthServer(c.GRPCHealthAddr, repos, 10*time.Second, logger),
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

// every runs fn each interval until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (app *App) reconcile(ctx context.Context) {
	if _, err := app.jobs.Reconcile(ctx); err != nil {
		app.logger.Warn(ctx, "reconcile failed", "error", err)
	}
}

func (app *App) sweep(ctx context.Context) {
	if n := app.limiter.Sweep(); n > 0 {
		app.logger.Debug(ctx, "throttle keys swept", "count", n)
	}
}

// Run migrates storage and serves until ctx is cancelled or a signal
// arrives. The first component to fail stops the others.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	defer func() {
		if err := app.repos.Close(); err != nil {
			app.logger.Error(ctx, "db close error", "error", err)
		}
	}()

	if err := app.repos.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrations error: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.http.Run(gctx) })
	g.Go(func() error { return app.health.Run(gctx) })
	g.Go(func() error { return every(gctx, app.config.ReconcileInterval, app.reconcile) })
	g.Go(func() error { return every(gctx, app.config.ThrottleWindow, app.sweep) })

	err := g.Wait()
	app.logger.Info(context.Background(), "App stopped")
	return err
}
