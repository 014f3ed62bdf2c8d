package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/snaplink/snaplink/internal/app/model"
	"github.com/snaplink/snaplink/internal/app/repository"
)

type mockLinkRepository struct {
	createFn    func(ctx context.Context, link *model.Link) error
	getFn       func(ctx context.Context, code string) (*model.Link, error)
	listFn      func(ctx context.Context, ownerID string, limit, offset int) ([]model.Link, error)
	incrementFn func(ctx context.Context, code string) (int64, error)
	existsFn    func(ctx context.Context, code string) (bool, error)
}

func (m *mockLinkRepository) CreateIfAbsent(ctx context.Context, link *model.Link) error {
	if m.createFn != nil {
		return m.createFn(ctx, link)
	}
	return nil
}

func (m *mockLinkRepository) GetByCode(ctx context.Context, code string) (*model.Link, error) {
	if m.getFn != nil {
		return m.getFn(ctx, code)
	}
	return nil, repository.ErrLinkNotFound
}

func (m *mockLinkRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]model.Link, error) {
	if m.listFn != nil {
		return m.listFn(ctx, ownerID, limit, offset)
	}
	return nil, nil
}

func (m *mockLinkRepository) IncrementClick(ctx context.Context, code string) (int64, error) {
	if m.incrementFn != nil {
		return m.incrementFn(ctx, code)
	}
	return 0, repository.ErrLinkNotFound
}

func (m *mockLinkRepository) Exists(ctx context.Context, code string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, code)
	}
	return false, nil
}

func (m *mockLinkRepository) AllCodes(ctx context.Context) ([]string, error) {
	return nil, nil
}

// memoryLinkRepository backs concurrency tests with real mutex-guarded
// state so races on the same code behave like the database would.
type memoryLinkRepository struct {
	mu    sync.Mutex
	links map[string]*model.Link
}

func newMemoryLinkRepository() *memoryLinkRepository {
	return &memoryLinkRepository{links: make(map[string]*model.Link)}
}

func (m *memoryLinkRepository) CreateIfAbsent(ctx context.Context, link *model.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.links[link.Code]; ok {
		return repository.ErrCodeTaken
	}
	cp := *link
	cp.CreatedAt = time.Now()
	m.links[link.Code] = &cp
	return nil
}

func (m *memoryLinkRepository) GetByCode(ctx context.Context, code string) (*model.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[code]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	cp := *link
	return &cp, nil
}

func (m *memoryLinkRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]model.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Link
	for _, link := range m.links {
		if link.OwnerID == ownerID {
			out = append(out, *link)
		}
	}
	return out, nil
}

func (m *memoryLinkRepository) IncrementClick(ctx context.Context, code string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[code]
	if !ok {
		return 0, repository.ErrLinkNotFound
	}
	link.ClickCount++
	return link.ClickCount, nil
}

func (m *memoryLinkRepository) Exists(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.links[code]
	return ok, nil
}

func (m *memoryLinkRepository) AllCodes(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	codes := make([]string, 0, len(m.links))
	for code := range m.links {
		codes = append(codes, code)
	}
	return codes, nil
}

func newTestService(repo repository.LinkRepository) LinkService {
	return NewLinkService(LinkServiceDeps{
		Repo:      repo,
		Generator: NewCodeGenerator(repo),
		Cache:     NewLinkCache(nil, nil),
	})
}

func TestShorten_RoundTrip(t *testing.T) {
	repo := newMemoryLinkRepository()
	svc := newTestService(repo)

	const target = "https://example.com/a/b?c=1"
	link, err := svc.Shorten(context.Background(), ShortenInput{TargetURL: target})
	if err != nil {
		t.Fatalf("Shorten returned error: %v", err)
	}
	if len(link.Code) != generatedCodeLength {
		t.Fatalf("expected %d char code, got %q", generatedCodeLength, link.Code)
	}

	res, err := svc.Resolve(context.Background(), link.Code, ClickMeta{})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if res.TargetURL != target {
		t.Fatalf("expected %q, got %q", target, res.TargetURL)
	}
	if res.ClickCount != 1 {
		t.Fatalf("expected click count 1, got %d", res.ClickCount)
	}

	res, err = svc.Resolve(context.Background(), link.Code, ClickMeta{})
	if err != nil {
		t.Fatalf("second Resolve returned error: %v", err)
	}
	if res.ClickCount != 2 {
		t.Fatalf("expected click count 2, got %d", res.ClickCount)
	}
}

func TestShorten_RejectsBadTargets(t *testing.T) {
	svc := newTestService(newMemoryLinkRepository())

	bad := []string{
		"",
		"not a url",
		"example.com/no-scheme",
		"ftp://example.com/file",
		"javascript:alert(1)",
		"data:text/html;base64,AAAA",
		"https://",
	}
	for _, target := range bad {
		if _, err := svc.Shorten(context.Background(), ShortenInput{TargetURL: target}); !errors.Is(err, ErrInvalidTargetURL) {
			t.Errorf("Shorten(%q): expected ErrInvalidTargetURL, got %v", target, err)
		}
	}
}

func TestShorten_CustomCode(t *testing.T) {
	repo := newMemoryLinkRepository()
	svc := newTestService(repo)

	link, err := svc.Shorten(context.Background(), ShortenInput{
		TargetURL:  "https://x.com",
		CustomCode: "promo",
	})
	if err != nil {
		t.Fatalf("Shorten returned error: %v", err)
	}
	if link.Code != "promo" {
		t.Fatalf("expected code promo, got %q", link.Code)
	}

	_, err = svc.Shorten(context.Background(), ShortenInput{
		TargetURL:  "https://y.com",
		CustomCode: "promo",
	})
	if !errors.Is(err, repository.ErrCodeTaken) {
		t.Fatalf("expected ErrCodeTaken, got %v", err)
	}

	// The original binding must be untouched.
	res, err := svc.Resolve(context.Background(), "promo", ClickMeta{})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if res.TargetURL != "https://x.com" {
		t.Fatalf("expected original target, got %q", res.TargetURL)
	}
}

func TestShorten_InvalidCustomCode(t *testing.T) {
	svc := newTestService(newMemoryLinkRepository())

	for _, code := range []string{"ab", "has space", "semi;colon", "../admin"} {
		_, err := svc.Shorten(context.Background(), ShortenInput{
			TargetURL:  "https://example.com",
			CustomCode: code,
		})
		if !errors.Is(err, ErrInvalidCustomCode) {
			t.Errorf("Shorten custom %q: expected ErrInvalidCustomCode, got %v", code, err)
		}
	}
}

func TestShorten_RetriesLostInsertRace(t *testing.T) {
	attempts := 0
	repo := &mockLinkRepository{
		createFn: func(ctx context.Context, link *model.Link) error {
			attempts++
			if attempts < 3 {
				return repository.ErrCodeTaken
			}
			return nil
		},
	}
	svc := newTestService(repo)

	if _, err := svc.Shorten(context.Background(), ShortenInput{TargetURL: "https://example.com"}); err != nil {
		t.Fatalf("Shorten returned error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 create attempts, got %d", attempts)
	}
}

func TestShorten_GenerationExhausted(t *testing.T) {
	repo := &mockLinkRepository{
		createFn: func(ctx context.Context, link *model.Link) error {
			return repository.ErrCodeTaken
		},
	}
	svc := newTestService(repo)

	_, err := svc.Shorten(context.Background(), ShortenInput{TargetURL: "https://example.com"})
	if !errors.Is(err, ErrGenerationExhausted) {
		t.Fatalf("expected ErrGenerationExhausted, got %v", err)
	}
}

func TestResolve_NotFound(t *testing.T) {
	svc := newTestService(newMemoryLinkRepository())

	_, err := svc.Resolve(context.Background(), "missing", ClickMeta{})
	if !errors.Is(err, repository.ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
}

func TestResolve_Expired(t *testing.T) {
	repo := newMemoryLinkRepository()
	svc := newTestService(repo)

	past := time.Now().Add(-time.Hour)
	repo.links["old1234"] = &model.Link{
		Code:      "old1234",
		TargetURL: "https://example.com",
		ExpiresAt: &past,
	}

	_, err := svc.Resolve(context.Background(), "old1234", ClickMeta{})
	if !errors.Is(err, ErrLinkExpired) {
		t.Fatalf("expected ErrLinkExpired, got %v", err)
	}

	link, _ := repo.GetByCode(context.Background(), "old1234")
	if link.ClickCount != 0 {
		t.Fatalf("expired resolve must not count clicks, got %d", link.ClickCount)
	}
}

func TestResolve_StoreFailureIsTransient(t *testing.T) {
	repo := &mockLinkRepository{
		getFn: func(ctx context.Context, code string) (*model.Link, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := newTestService(repo)

	_, err := svc.Resolve(context.Background(), "abc1234", ClickMeta{})
	if !errors.Is(err, ErrResolveUnavailable) {
		t.Fatalf("expected ErrResolveUnavailable, got %v", err)
	}
	if errors.Is(err, repository.ErrLinkNotFound) {
		t.Fatal("transient failure must not look like not-found")
	}
}

func TestResolve_IncrementFailureStillRedirects(t *testing.T) {
	repo := &mockLinkRepository{
		getFn: func(ctx context.Context, code string) (*model.Link, error) {
			return &model.Link{Code: code, TargetURL: "https://example.com", ClickCount: 7}, nil
		},
		incrementFn: func(ctx context.Context, code string) (int64, error) {
			return 0, errors.New("store unavailable")
		},
	}
	svc := newTestService(repo)

	res, err := svc.Resolve(context.Background(), "abc1234", ClickMeta{})
	if err != nil {
		t.Fatalf("Resolve must survive a failed increment, got %v", err)
	}
	if res.TargetURL != "https://example.com" {
		t.Fatalf("unexpected target %q", res.TargetURL)
	}
}

func TestResolve_NoEventWhenIncrementFails(t *testing.T) {
	repo := &mockLinkRepository{
		getFn: func(ctx context.Context, code string) (*model.Link, error) {
			return &model.Link{Code: code, TargetURL: "https://example.com", ClickCount: 7}, nil
		},
		incrementFn: func(ctx context.Context, code string) (int64, error) {
			return 0, errors.New("store unavailable")
		},
	}
	sink := &channelClickSink{events: make(chan model.ClickEvent, 1)}
	svc := NewLinkService(LinkServiceDeps{
		Repo:      repo,
		Generator: NewCodeGenerator(repo),
		Clicks:    sink,
	})

	res, err := svc.Resolve(context.Background(), "abc1234", ClickMeta{})
	if err != nil {
		t.Fatalf("Resolve must survive a failed increment, got %v", err)
	}
	if res.TargetURL != "https://example.com" {
		t.Fatalf("unexpected target %q", res.TargetURL)
	}

	// An uncounted click must not reach the event log, or bucket sums
	// could exceed the link's counter.
	select {
	case event := <-sink.events:
		t.Fatalf("event %q published although the click was never counted", event.Code)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCreateIfAbsent_ConcurrentClaimants(t *testing.T) {
	repo := newMemoryLinkRepository()
	svc := newTestService(repo)

	const n = 32
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Shorten(context.Background(), ShortenInput{
				TargetURL:  "https://example.com",
				CustomCode: "contested",
			})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, repository.ErrCodeTaken):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestResolve_ConcurrentClicksAllCounted(t *testing.T) {
	repo := newMemoryLinkRepository()
	svc := newTestService(repo)

	link, err := svc.Shorten(context.Background(), ShortenInput{TargetURL: "https://example.com"})
	if err != nil {
		t.Fatalf("Shorten returned error: %v", err)
	}

	const k = 64
	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Resolve(context.Background(), link.Code, ClickMeta{}); err != nil {
				t.Errorf("Resolve returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	stored, err := repo.GetByCode(context.Background(), link.Code)
	if err != nil {
		t.Fatalf("GetByCode returned error: %v", err)
	}
	if stored.ClickCount != k {
		t.Fatalf("expected %d clicks, got %d (lost updates)", k, stored.ClickCount)
	}
}

type channelClickSink struct {
	events chan model.ClickEvent
}

func (s *channelClickSink) Publish(event model.ClickEvent) error {
	s.events <- event
	return nil
}

func TestResolve_PublishesClickEvent(t *testing.T) {
	repo := newMemoryLinkRepository()
	sink := &channelClickSink{events: make(chan model.ClickEvent, 1)}
	svc := NewLinkService(LinkServiceDeps{
		Repo:      repo,
		Generator: NewCodeGenerator(repo),
		Clicks:    sink,
	})

	link, err := svc.Shorten(context.Background(), ShortenInput{
		TargetURL: "https://example.com",
		OwnerID:   "owner-1",
	})
	if err != nil {
		t.Fatalf("Shorten returned error: %v", err)
	}

	if _, err := svc.Resolve(context.Background(), link.Code, ClickMeta{IP: "10.1.2.3", UserAgent: "test-agent"}); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	select {
	case event := <-sink.events:
		if event.Code != link.Code {
			t.Fatalf("expected code %q, got %q", link.Code, event.Code)
		}
		if event.OwnerID != "owner-1" {
			t.Fatalf("expected owner-1, got %q", event.OwnerID)
		}
		if event.IP != "10.1.2.3" || event.UserAgent != "test-agent" {
			t.Fatalf("unexpected click metadata: %+v", event)
		}
		if event.Timestamp.IsZero() {
			t.Fatal("expected event timestamp to be set")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("click event was never published")
	}
}

func TestShorten_TTLSetsExpiry(t *testing.T) {
	repo := newMemoryLinkRepository()
	svc := newTestService(repo)

	before := time.Now()
	link, err := svc.Shorten(context.Background(), ShortenInput{
		TargetURL: "https://example.com",
		TTL:       time.Hour,
	})
	if err != nil {
		t.Fatalf("Shorten returned error: %v", err)
	}
	if link.ExpiresAt == nil {
		t.Fatal("expected expiry to be set")
	}
	if link.ExpiresAt.Before(before.Add(time.Hour - time.Minute)) {
		t.Fatalf("expiry too early: %v", link.ExpiresAt)
	}

	if _, err := svc.Shorten(context.Background(), ShortenInput{
		TargetURL: "https://example.com",
		TTL:       -time.Second,
	}); !errors.Is(err, ErrInvalidTTL) {
		t.Fatalf("expected ErrInvalidTTL, got %v", err)
	}
}

func TestListByOwner(t *testing.T) {
	repo := &mockLinkRepository{
		listFn: func(ctx context.Context, ownerID string, limit, offset int) ([]model.Link, error) {
			if ownerID != "owner-1" {
				t.Fatalf("expected owner-1, got %q", ownerID)
			}
			return []model.Link{{Code: "a1b2c3d"}, {Code: "e4f5g6h"}}, nil
		},
	}
	svc := newTestService(repo)

	list, err := svc.ListByOwner(context.Background(), "owner-1", 10, 0)
	if err != nil {
		t.Fatalf("ListByOwner error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 links, got %d", len(list))
	}
}
