package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/snaplink/snaplink/internal/app/repository"
	"github.com/snaplink/snaplink/internal/app/service"
	"go.uber.org/zap"
)

// RedirectDeps groups dependencies required by redirect handlers.
type RedirectDeps struct {
	Logger *zap.Logger
	Links  service.LinkService
}

// RedirectHandler implements the public redirect flow.
type RedirectHandler struct {
	logger *zap.Logger
	links  service.LinkService
}

// NewRedirectHandler creates a redirect handler with the provided dependencies.
func NewRedirectHandler(deps RedirectDeps) *RedirectHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectHandler{
		logger: logger,
		links:  deps.Links,
	}
}

// Register wires redirect routes onto the provided router. The code
// route must be registered last so it does not shadow /api and /health.
func (h *RedirectHandler) Register(router fiber.Router) {
	router.Get("/", h.Health)
	router.Get("/health", h.Health)
	router.Get("/:code", h.Resolve)
}

// Health is a simple root endpoint so we know the service is running.
func (h *RedirectHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "SnapLink",
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Resolve handles GET /:code and issues the redirect. Click recording
// happens inside the service, off the response path.
func (h *RedirectHandler) Resolve(c *fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing link code",
		})
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := h.links.Resolve(ctx, code, service.ClickMeta{
		IP:        c.IP(),
		UserAgent: c.Get("User-Agent"),
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrLinkNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "short link not found",
			})
		case errors.Is(err, service.ErrLinkExpired):
			return c.Status(fiber.StatusGone).JSON(fiber.Map{
				"error": "link expired",
			})
		case errors.Is(err, service.ErrResolveUnavailable),
			errors.Is(err, context.DeadlineExceeded):
			// Transient: tell the caller to retry rather than letting
			// it cache a false not-found.
			c.Set(fiber.HeaderRetryAfter, "1")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "temporarily unavailable, retry",
			})
		default:
			h.logger.Error("resolve failed", zap.Error(err), zap.String("code", code))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "internal server error",
			})
		}
	}

	h.logger.Debug("redirecting short link",
		zap.String("code", code), zap.String("target", res.TargetURL))
	return c.Redirect(res.TargetURL, fiber.StatusFound)
}
