// Package httpapi is the JSON API of loadgate, built on gin.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/loadgate/internal/logging"
	"github.com/dmitrijs2005/loadgate/internal/server/auth"
	"github.com/dmitrijs2005/loadgate/internal/server/services"
	"github.com/gin-gonic/gin"
)

// Pinger reports whether storage is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the server to its services.
type Options struct {
	Address                   string
	Users                     *services.UserService
	Jobs                      *services.JobService
	Targets                   *services.TargetService
	Tokens                    auth.Verifier
	Storage                   Pinger
	Logger                    logging.Logger
	AdminToken                string
	AllowLegacyIdentityHeader bool
	TokenValidity             time.Duration
	Debug                     bool
}

type Server struct {
	address             string
	router              *gin.Engine
	users               *services.UserService
	jobs                *services.JobService
	targets             *services.TargetService
	tokens              auth.Verifier
	storage             Pinger
	logger              logging.Logger
	adminToken          string
	allowLegacyIdentity bool
	tokenValidity       time.Duration
}

func NewServer(o Options) *Server {
	if o.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		address:             o.Address,
		users:               o.Users,
		jobs:                o.Jobs,
		targets:             o.Targets,
		tokens:              o.Tokens,
		storage:             o.Storage,
		logger:              o.Logger.With("module", "http"),
		adminToken:          o.AdminToken,
		allowLegacyIdentity: o.AllowLegacyIdentityHeader,
		tokenValidity:       o.TokenValidity,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(s.accessLog())
	router.Use(cors())

	router.GET("/health", s.health)

	api := router.Group("/api")
	{
		api.GET("/plans", s.listPlans)

		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", s.register)
			authGroup.POST("/login", s.login)
		}

		private := api.Group("")
		private.Use(s.authenticate())
		{
			private.GET("/me", s.me)
			private.POST("/settings/password", s.changePassword)

			private.GET("/jobs", s.listJobs)
			private.POST("/jobs", s.startJob)
			private.POST("/jobs/:id/stop", s.stopJob)

			private.GET("/targets", s.listTargets)
			private.POST("/targets", s.addTarget)
			private.POST("/targets/:id/verify", s.verifyTarget)
		}

		admin := api.Group("/admin")
		admin.Use(s.adminAuth())
		{
			admin.GET("/users", s.adminListUsers)
			admin.POST("/users/:id/active", s.adminSetActive)
			admin.POST("/users/:id/plan", s.adminSetPlan)
		}
	}

	return router
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown error", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
