package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/snaplink/snaplink/internal/app/model"
	"github.com/snaplink/snaplink/internal/app/repository"
	"github.com/snaplink/snaplink/internal/app/service"
	"github.com/snaplink/snaplink/internal/http/middleware"
	"go.uber.org/zap"
)

// APIDeps groups dependencies required by API handlers.
type APIDeps struct {
	Logger      *zap.Logger
	LinkService service.LinkService
	Analytics   service.AnalyticsService
}

// APIHandler implements the management API endpoints.
type APIHandler struct {
	logger    *zap.Logger
	links     service.LinkService
	analytics service.AnalyticsService
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		logger:    logger,
		links:     deps.LinkService,
		analytics: deps.Analytics,
	}
}

// Register wires API routes onto the provided router.
func (h *APIHandler) Register(router fiber.Router) {
	api := router.Group("/api")
	{
		links := api.Group("/links")
		{
			links.Post("/", h.CreateLink)
			links.Get("/", h.ListLinks)
		}
		analytics := api.Group("/analytics")
		{
			analytics.Get("/", h.OwnerAnalytics)
			analytics.Get("/:code", h.CodeAnalytics)
		}
	}
}

// CreateLinkRequest represents the request body for creating a link.
type CreateLinkRequest struct {
	TargetURL  string `json:"target_url"`
	CustomCode string `json:"custom_code,omitempty"`
	TTLSeconds int64  `json:"ttl_seconds,omitempty"`
}

// LinkResponse represents a link in API responses.
type LinkResponse struct {
	Code       string     `json:"code"`
	TargetURL  string     `json:"target_url"`
	ClickCount int64      `json:"click_count"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toLinkResponse(link *model.Link) LinkResponse {
	return LinkResponse{
		Code:       link.Code,
		TargetURL:  link.TargetURL,
		ClickCount: link.ClickCount,
		ExpiresAt:  link.ExpiresAt,
		CreatedAt:  link.CreatedAt,
	}
}

// CreateLink handles POST /api/links
func (h *APIHandler) CreateLink(c *fiber.Ctx) error {
	var req CreateLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if req.TargetURL == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "target_url is required",
		})
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	link, err := h.links.Shorten(ctx, service.ShortenInput{
		TargetURL:  req.TargetURL,
		OwnerID:    middleware.OwnerID(c),
		CustomCode: req.CustomCode,
		TTL:        time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidTargetURL):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": "target_url must be an absolute http or https URL",
			})
		case errors.Is(err, service.ErrInvalidCustomCode):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": "custom_code must be 4-32 alphanumeric characters",
			})
		case errors.Is(err, service.ErrInvalidTTL):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": "ttl_seconds must not be negative",
			})
		case errors.Is(err, repository.ErrCodeTaken):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "code already taken",
			})
		case errors.Is(err, service.ErrGenerationExhausted):
			c.Set(fiber.HeaderRetryAfter, "1")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "could not allocate a code, retry",
			})
		default:
			h.logger.Error("failed to create link", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to create link",
			})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(toLinkResponse(link))
}

// ListLinks handles GET /api/links
func (h *APIHandler) ListLinks(c *fiber.Ctx) error {
	ownerID := middleware.OwnerID(c)
	if ownerID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}

	limit := 20
	offset := 0
	if parsed := c.QueryInt("limit"); parsed > 0 && parsed <= 100 {
		limit = parsed
	}
	if parsed := c.QueryInt("offset"); parsed > 0 {
		offset = parsed
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	links, err := h.links.ListByOwner(ctx, ownerID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list links", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list links",
		})
	}

	// Owners with no links get an empty list, not an error.
	response := make([]LinkResponse, len(links))
	for i := range links {
		response[i] = toLinkResponse(&links[i])
	}

	return c.JSON(fiber.Map{
		"links":  response,
		"limit":  limit,
		"offset": offset,
		"count":  len(response),
	})
}

// OwnerAnalytics handles GET /api/analytics?start&end
func (h *APIHandler) OwnerAnalytics(c *fiber.Ctx) error {
	ownerID := middleware.OwnerID(c)
	if ownerID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}

	start, end, err := parseRange(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	series, err := h.analytics.TotalsByOwner(ctx, ownerID, start, end)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRange) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "end must not precede start",
			})
		}
		if errors.Is(err, service.ErrRangeTooWide) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "range must not exceed 400 days",
			})
		}
		h.logger.Error("failed to aggregate owner analytics", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to aggregate analytics",
		})
	}

	return c.JSON(fiber.Map{"totals": series})
}

// CodeAnalytics handles GET /api/analytics/:code?start&end
func (h *APIHandler) CodeAnalytics(c *fiber.Ctx) error {
	ownerID := middleware.OwnerID(c)
	if ownerID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}

	code := c.Params("code")
	start, end, err := parseRange(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	series, err := h.analytics.TotalsByCode(ctx, ownerID, code, start, end)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRange):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "end must not precede start",
			})
		case errors.Is(err, service.ErrRangeTooWide):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "range must not exceed 400 days",
			})
		case errors.Is(err, repository.ErrLinkNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "link not found",
			})
		default:
			h.logger.Error("failed to aggregate code analytics",
				zap.Error(err), zap.String("code", code))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to aggregate analytics",
			})
		}
	}

	return c.JSON(fiber.Map{"code": code, "totals": series})
}

func parseRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	startRaw := c.Query("start")
	endRaw := c.Query("end")

	now := time.Now().UTC()
	start := now.AddDate(0, 0, -29)
	end := now

	if startRaw != "" {
		t, err := time.Parse(time.DateOnly, startRaw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("start must be YYYY-MM-DD")
		}
		start = t
	}
	if endRaw != "" {
		t, err := time.Parse(time.DateOnly, endRaw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("end must be YYYY-MM-DD")
		}
		end = t
	}
	return start, end, nil
}
