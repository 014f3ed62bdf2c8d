package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/snaplink/snaplink/internal/app/repository"
)

// maxRangeDays bounds how many day buckets one query materializes.
const maxRangeDays = 400

var (
	// ErrInvalidRange signals an analytics query whose end precedes its start.
	ErrInvalidRange = errors.New("invalid date range")
	// ErrRangeTooWide signals a query window wider than maxRangeDays.
	ErrRangeTooWide = errors.New("date range too wide")
)

// DailyTotal is one day of click totals, shaped for direct charting.
type DailyTotal struct {
	Date  string `json:"date"` // YYYY-MM-DD, UTC
	Count int64  `json:"count"`
}

// AnalyticsService answers time-bucketed click queries. Totals are
// recomputed from the raw event log per query, so they are exact for
// whatever the log still retains; retention pruning can only shrink
// buckets, never inflate them past the link's click counter.
type AnalyticsService interface {
	TotalsByCode(ctx context.Context, ownerID, code string, start, end time.Time) ([]DailyTotal, error)
	TotalsByOwner(ctx context.Context, ownerID string, start, end time.Time) ([]DailyTotal, error)
}

type analyticsService struct {
	links  repository.LinkRepository
	clicks repository.ClickEventRepository
}

// NewAnalyticsService returns an aggregator over the given repositories.
func NewAnalyticsService(links repository.LinkRepository, clicks repository.ClickEventRepository) AnalyticsService {
	return &analyticsService{links: links, clicks: clicks}
}

// TotalsByCode returns a dense day series for one code. Codes that do
// not exist or belong to someone else both report ErrLinkNotFound, so
// analytics never leak whether a foreign code is in use.
func (s *analyticsService) TotalsByCode(ctx context.Context, ownerID, code string, start, end time.Time) ([]DailyTotal, error) {
	startDay, endDay, err := normalizeRange(start, end)
	if err != nil {
		return nil, err
	}

	link, err := s.links.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if link.OwnerID == "" || link.OwnerID != ownerID {
		return nil, repository.ErrLinkNotFound
	}

	buckets, err := s.clicks.CountByCodePerDay(ctx, code, startDay, endDay.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("aggregate clicks by code: %w", err)
	}
	return denseSeries(startDay, endDay, buckets), nil
}

// TotalsByOwner returns a dense day series across all of the owner's links.
func (s *analyticsService) TotalsByOwner(ctx context.Context, ownerID string, start, end time.Time) ([]DailyTotal, error) {
	startDay, endDay, err := normalizeRange(start, end)
	if err != nil {
		return nil, err
	}

	buckets, err := s.clicks.CountByOwnerPerDay(ctx, ownerID, startDay, endDay.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("aggregate clicks by owner: %w", err)
	}
	return denseSeries(startDay, endDay, buckets), nil
}

func normalizeRange(start, end time.Time) (time.Time, time.Time, error) {
	startDay := truncateToDay(start)
	endDay := truncateToDay(end)
	if endDay.Before(startDay) {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	if endDay.Sub(startDay) > (maxRangeDays-1)*24*time.Hour {
		return time.Time{}, time.Time{}, ErrRangeTooWide
	}
	return startDay, endDay, nil
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// denseSeries emits one entry per calendar day from startDay through
// endDay inclusive, filling days without events with zero. Callers get
// a chart-ready sequence with no client-side gap handling.
func denseSeries(startDay, endDay time.Time, buckets []repository.DailyCount) []DailyTotal {
	counts := make(map[string]int64, len(buckets))
	for _, b := range buckets {
		counts[b.Day.UTC().Format(time.DateOnly)] = b.Count
	}

	days := int(endDay.Sub(startDay).Hours()/24) + 1
	series := make([]DailyTotal, 0, days)
	for day := startDay; !day.After(endDay); day = day.Add(24 * time.Hour) {
		key := day.Format(time.DateOnly)
		series = append(series, DailyTotal{Date: key, Count: counts[key]})
	}
	return series
}
