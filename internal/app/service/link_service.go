package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/snaplink/snaplink/internal/app/model"
	"github.com/snaplink/snaplink/internal/app/repository"
	"github.com/snaplink/snaplink/internal/infra/prometheus"
	"go.uber.org/zap"
)

const resolveTimeout = 2 * time.Second

var (
	// ErrInvalidTargetURL signals a target that is not an absolute
	// http/https URL. Schemes like javascript: and data: land here.
	ErrInvalidTargetURL = errors.New("invalid target url")
	// ErrInvalidTTL signals a negative time-to-live.
	ErrInvalidTTL = errors.New("invalid ttl")
	// ErrLinkExpired signals a link past its expiry. The redirect is
	// refused and the click is not counted.
	ErrLinkExpired = errors.New("link expired")
	// ErrResolveUnavailable signals a transient store failure during
	// resolution, distinct from not-found so callers never cache a
	// false negative.
	ErrResolveUnavailable = errors.New("resolve temporarily unavailable")
)

// Generator yields a free short code or ErrGenerationExhausted.
type Generator interface {
	Generate(ctx context.Context) (string, error)
}

// ClickSink receives click events for asynchronous recording.
type ClickSink interface {
	Publish(event model.ClickEvent) error
}

// ShortenInput captures data required to create a link.
type ShortenInput struct {
	TargetURL  string
	OwnerID    string
	CustomCode string
	TTL        time.Duration
}

// ClickMeta carries request metadata attached to a click event.
type ClickMeta struct {
	IP        string
	UserAgent string
}

// Resolution is the outcome of a successful resolve.
type Resolution struct {
	TargetURL  string
	ClickCount int64
}

// LinkService is the facade the HTTP layer talks to: it owns URL
// validation, code assignment, and the redirect/click pipeline.
type LinkService interface {
	Shorten(ctx context.Context, input ShortenInput) (*model.Link, error)
	Resolve(ctx context.Context, code string, meta ClickMeta) (*Resolution, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]model.Link, error)
}

// LinkServiceDeps groups collaborators of the link service. Cache,
// filter, and clicks are optional; a nil value disables that path.
type LinkServiceDeps struct {
	Logger    *zap.Logger
	Repo      repository.LinkRepository
	Generator Generator
	Cache     *LinkCache
	Filter    *CodeFilter
	Clicks    ClickSink
}

type linkService struct {
	logger *zap.Logger
	repo   repository.LinkRepository
	gen    Generator
	cache  *LinkCache
	filter *CodeFilter
	clicks ClickSink
}

// NewLinkService returns a service implementation backed by the given
// dependencies.
func NewLinkService(deps LinkServiceDeps) LinkService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &linkService{
		logger: logger,
		repo:   deps.Repo,
		gen:    deps.Generator,
		cache:  deps.Cache,
		filter: deps.Filter,
		clicks: deps.Clicks,
	}
}

func (s *linkService) Shorten(ctx context.Context, input ShortenInput) (*model.Link, error) {
	if err := validateTargetURL(input.TargetURL); err != nil {
		return nil, err
	}
	if input.TTL < 0 {
		return nil, ErrInvalidTTL
	}

	var expiresAt *time.Time
	if input.TTL > 0 {
		t := time.Now().Add(input.TTL)
		expiresAt = &t
	}

	if input.CustomCode != "" {
		return s.createWithCode(ctx, input.CustomCode, input, expiresAt)
	}

	// A fresh draw can still lose the insert race to a concurrent
	// creator, so collisions at the store get a new draw too.
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		code, err := s.gen.Generate(ctx)
		if err != nil {
			return nil, err
		}

		link, err := s.createWithCode(ctx, code, input, expiresAt)
		if errors.Is(err, repository.ErrCodeTaken) {
			continue
		}
		return link, err
	}
	return nil, ErrGenerationExhausted
}

func (s *linkService) createWithCode(ctx context.Context, code string, input ShortenInput, expiresAt *time.Time) (*model.Link, error) {
	if err := ValidateCustomCode(code); err != nil {
		return nil, err
	}

	link := &model.Link{
		Code:      code,
		TargetURL: input.TargetURL,
		OwnerID:   input.OwnerID,
		ExpiresAt: expiresAt,
	}

	if err := s.repo.CreateIfAbsent(ctx, link); err != nil {
		if errors.Is(err, repository.ErrCodeTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create link: %w", err)
	}

	if s.filter != nil {
		s.filter.Add(link.Code)
	}
	if s.cache != nil {
		s.cache.Set(ctx, link)
	}
	prometheus.LinksCreatedTotal.Inc()

	return link, nil
}

// Resolve looks the code up, counts the click, and returns the target.
// Click recording is best-effort: a failed increment or publish is
// logged and the redirect still succeeds.
func (s *linkService) Resolve(ctx context.Context, code string, meta ClickMeta) (*Resolution, error) {
	if s.filter != nil && !s.filter.MightContain(code) {
		prometheus.RedirectsTotal.WithLabelValues("not_found").Inc()
		return nil, repository.ErrLinkNotFound
	}

	lookupCtx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	link, err := s.loadLink(lookupCtx, code)
	if err != nil {
		return nil, err
	}

	if link.Expired(time.Now()) {
		prometheus.RedirectsTotal.WithLabelValues("expired").Inc()
		return nil, ErrLinkExpired
	}

	counted := true
	count, err := s.repo.IncrementClick(lookupCtx, code)
	if err != nil {
		// Counting must never block the redirect. The event is not
		// published either: the log may lag the counter but must
		// never hold clicks the counter missed.
		s.logger.Warn("click increment failed", zap.String("code", code), zap.Error(err))
		count = link.ClickCount
		counted = false
	}

	if counted && s.clicks != nil {
		event := model.ClickEvent{
			Code:      link.Code,
			OwnerID:   link.OwnerID,
			IP:        meta.IP,
			UserAgent: meta.UserAgent,
			Timestamp: time.Now(),
		}
		go s.publishClick(event)
	}

	prometheus.RedirectsTotal.WithLabelValues("ok").Inc()
	return &Resolution{TargetURL: link.TargetURL, ClickCount: count}, nil
}

func (s *linkService) loadLink(ctx context.Context, code string) (*model.Link, error) {
	if s.cache != nil {
		if link := s.cache.Get(ctx, code); link != nil {
			prometheus.LinkCacheHitsTotal.Inc()
			return link, nil
		}
		prometheus.LinkCacheMissesTotal.Inc()
	}

	link, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			prometheus.RedirectsTotal.WithLabelValues("not_found").Inc()
			return nil, err
		}
		prometheus.RedirectsTotal.WithLabelValues("unavailable").Inc()
		s.logger.Error("link lookup failed", zap.String("code", code), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrResolveUnavailable, err)
	}

	if s.cache != nil {
		s.cache.Set(ctx, link)
	}
	return link, nil
}

func (s *linkService) publishClick(event model.ClickEvent) {
	if err := s.clicks.Publish(event); err != nil {
		s.logger.Error("failed to publish click event",
			zap.String("code", event.Code), zap.Error(err))
		return
	}
	prometheus.ClickEventsPublishedTotal.Inc()
}

func (s *linkService) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]model.Link, error) {
	links, err := s.repo.ListByOwner(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	return links, nil
}

// validateTargetURL accepts only absolute http/https URLs so a
// redirect can never smuggle javascript: or data: payloads.
func validateTargetURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidTargetURL
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrInvalidTargetURL
	}
	if u.Host == "" {
		return ErrInvalidTargetURL
	}
	return nil
}
