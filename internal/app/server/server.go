package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/snaplink/snaplink/internal/app/service"
	inthttp "github.com/snaplink/snaplink/internal/http/handler"
	"github.com/snaplink/snaplink/internal/http/middleware"
	httpUtil "github.com/snaplink/snaplink/internal/http/util"
	"go.uber.org/zap"
)

// Dependencies bundles everything the HTTP server needs.
type Dependencies struct {
	Logger    *zap.Logger
	Redis     *redis.Client
	Links     service.LinkService
	Analytics service.AnalyticsService
	Secret    []byte
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with default routes.
func New(deps Dependencies) *Server {
	app := fiber.New()

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerRoutes()
	return s
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// ownerTokenTTL bounds how long an issued owner token stays valid.
const ownerTokenTTL = 30 * 24 * time.Hour

func (s *Server) registerRoutes() {
	signer := httpUtil.NewTokenSigner(s.deps.Secret, ownerTokenTTL)

	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.Logger(s.deps.Logger))
	s.app.Use(middleware.CORS())
	s.app.Use(middleware.OwnerAuth(signer))
	if s.deps.Redis != nil {
		s.app.Use("/api", middleware.RateLimit(s.deps.Redis, middleware.DefaultRateLimitConfig(), s.deps.Logger))
	}

	apiHandler := inthttp.NewAPIHandler(inthttp.APIDeps{
		Logger:      s.deps.Logger,
		LinkService: s.deps.Links,
		Analytics:   s.deps.Analytics,
	})
	apiHandler.Register(s.app)

	// Registered last so /:code does not shadow /api and /health.
	redirectHandler := inthttp.NewRedirectHandler(inthttp.RedirectDeps{
		Logger: s.deps.Logger,
		Links:  s.deps.Links,
	})
	redirectHandler.Register(s.app)
}
