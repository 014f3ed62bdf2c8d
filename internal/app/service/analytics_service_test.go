package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/snaplink/snaplink/internal/app/model"
	"github.com/snaplink/snaplink/internal/app/repository"
)

type mockClickEventRepository struct {
	createFn  func(ctx context.Context, event *model.ClickEvent) error
	byCodeFn  func(ctx context.Context, code string, start, end time.Time) ([]repository.DailyCount, error)
	byOwnerFn func(ctx context.Context, ownerID string, start, end time.Time) ([]repository.DailyCount, error)
}

func (m *mockClickEventRepository) Create(ctx context.Context, event *model.ClickEvent) error {
	if m.createFn != nil {
		return m.createFn(ctx, event)
	}
	return nil
}

func (m *mockClickEventRepository) CountByCodePerDay(ctx context.Context, code string, start, end time.Time) ([]repository.DailyCount, error) {
	if m.byCodeFn != nil {
		return m.byCodeFn(ctx, code, start, end)
	}
	return nil, nil
}

func (m *mockClickEventRepository) CountByOwnerPerDay(ctx context.Context, ownerID string, start, end time.Time) ([]repository.DailyCount, error) {
	if m.byOwnerFn != nil {
		return m.byOwnerFn(ctx, ownerID, start, end)
	}
	return nil, nil
}

func (m *mockClickEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func ownedLinkRepo(owner string) *mockLinkRepository {
	return &mockLinkRepository{
		getFn: func(ctx context.Context, code string) (*model.Link, error) {
			return &model.Link{Code: code, OwnerID: owner}, nil
		},
	}
}

func TestTotalsByCode_DenseSeries(t *testing.T) {
	clicks := &mockClickEventRepository{
		byCodeFn: func(ctx context.Context, code string, start, end time.Time) ([]repository.DailyCount, error) {
			return []repository.DailyCount{
				{Day: day("2026-08-02"), Count: 5},
				{Day: day("2026-08-05"), Count: 2},
			}, nil
		},
	}
	svc := NewAnalyticsService(ownedLinkRepo("owner-1"), clicks)

	series, err := svc.TotalsByCode(context.Background(), "owner-1", "abc1234", day("2026-08-01"), day("2026-08-07"))
	if err != nil {
		t.Fatalf("TotalsByCode returned error: %v", err)
	}

	if len(series) != 7 {
		t.Fatalf("expected 7 buckets, got %d", len(series))
	}
	want := map[string]int64{
		"2026-08-01": 0,
		"2026-08-02": 5,
		"2026-08-03": 0,
		"2026-08-04": 0,
		"2026-08-05": 2,
		"2026-08-06": 0,
		"2026-08-07": 0,
	}
	prev := ""
	for _, bucket := range series {
		if bucket.Date <= prev {
			t.Fatalf("series not chronologically ordered at %q", bucket.Date)
		}
		prev = bucket.Date
		if want[bucket.Date] != bucket.Count {
			t.Errorf("bucket %s: expected %d, got %d", bucket.Date, want[bucket.Date], bucket.Count)
		}
	}
}

func TestTotalsByCode_SingleDayRange(t *testing.T) {
	svc := NewAnalyticsService(ownedLinkRepo("owner-1"), &mockClickEventRepository{})

	series, err := svc.TotalsByCode(context.Background(), "owner-1", "abc1234", day("2026-08-10"), day("2026-08-10"))
	if err != nil {
		t.Fatalf("TotalsByCode returned error: %v", err)
	}
	if len(series) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(series))
	}
	if series[0].Date != "2026-08-10" || series[0].Count != 0 {
		t.Fatalf("unexpected bucket %+v", series[0])
	}
}

func TestTotalsByCode_InvalidRange(t *testing.T) {
	svc := NewAnalyticsService(ownedLinkRepo("owner-1"), &mockClickEventRepository{})

	_, err := svc.TotalsByCode(context.Background(), "owner-1", "abc1234", day("2026-08-10"), day("2026-08-01"))
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestTotalsByOwner_RangeTooWide(t *testing.T) {
	svc := NewAnalyticsService(&mockLinkRepository{}, &mockClickEventRepository{})
	start := day("2026-01-01")

	// Exactly maxRangeDays buckets is the widest a query may get.
	series, err := svc.TotalsByOwner(context.Background(), "owner-1", start, start.AddDate(0, 0, maxRangeDays-1))
	if err != nil {
		t.Fatalf("TotalsByOwner at the cap returned error: %v", err)
	}
	if len(series) != maxRangeDays {
		t.Fatalf("expected %d buckets, got %d", maxRangeDays, len(series))
	}

	_, err = svc.TotalsByOwner(context.Background(), "owner-1", start, start.AddDate(0, 0, maxRangeDays))
	if !errors.Is(err, ErrRangeTooWide) {
		t.Fatalf("expected ErrRangeTooWide past the cap, got %v", err)
	}

	_, err = svc.TotalsByCode(context.Background(), "owner-1", "abc1234", start, start.AddDate(0, 0, maxRangeDays))
	if !errors.Is(err, ErrRangeTooWide) {
		t.Fatalf("expected ErrRangeTooWide past the cap, got %v", err)
	}
}

func TestTotalsByCode_ForeignCodeLooksMissing(t *testing.T) {
	svc := NewAnalyticsService(ownedLinkRepo("somebody-else"), &mockClickEventRepository{})

	_, err := svc.TotalsByCode(context.Background(), "owner-1", "abc1234", day("2026-08-01"), day("2026-08-07"))
	if !errors.Is(err, repository.ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
}

func TestTotalsByCode_AnonymousLinkHasNoAnalytics(t *testing.T) {
	svc := NewAnalyticsService(ownedLinkRepo(""), &mockClickEventRepository{})

	_, err := svc.TotalsByCode(context.Background(), "owner-1", "abc1234", day("2026-08-01"), day("2026-08-07"))
	if !errors.Is(err, repository.ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
}

func TestTotalsByOwner_QueryWindowCoversFullDays(t *testing.T) {
	var gotStart, gotEnd time.Time
	clicks := &mockClickEventRepository{
		byOwnerFn: func(ctx context.Context, ownerID string, start, end time.Time) ([]repository.DailyCount, error) {
			gotStart, gotEnd = start, end
			return nil, nil
		},
	}
	svc := NewAnalyticsService(&mockLinkRepository{}, clicks)

	// Mid-day inputs must widen to whole UTC days.
	start := time.Date(2026, 8, 1, 15, 30, 0, 0, time.UTC)
	end := time.Date(2026, 8, 3, 4, 0, 0, 0, time.UTC)
	series, err := svc.TotalsByOwner(context.Background(), "owner-1", start, end)
	if err != nil {
		t.Fatalf("TotalsByOwner returned error: %v", err)
	}
	if len(series) != 3 {
		t.Fatalf("expected 3 buckets, got %d", len(series))
	}
	if !gotStart.Equal(day("2026-08-01")) {
		t.Fatalf("query start not aligned to day: %v", gotStart)
	}
	if !gotEnd.Equal(day("2026-08-04")) {
		t.Fatalf("query end must be the exclusive day after the range: %v", gotEnd)
	}
}

func TestDayBucket_UsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	event := model.ClickEvent{
		// 02:00 on the 5th in UTC+9 is still the 4th in UTC.
		Timestamp: time.Date(2026, 8, 5, 2, 0, 0, 0, loc),
	}
	if got := event.DayBucket(); !got.Equal(day("2026-08-04")) {
		t.Fatalf("expected 2026-08-04 bucket, got %v", got)
	}
}
