package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/snaplink/snaplink/internal/app/model"
)

// DailyCount is one calendar-day bucket of click totals.
type DailyCount struct {
	Day   time.Time
	Count int64
}

// ClickEventRepository defines the data access contract for the
// append-only click-event log.
type ClickEventRepository interface {
	Create(ctx context.Context, event *model.ClickEvent) error
	CountByCodePerDay(ctx context.Context, code string, start, end time.Time) ([]DailyCount, error)
	CountByOwnerPerDay(ctx context.Context, ownerID string, start, end time.Time) ([]DailyCount, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type clickEventRepository struct {
	pool *pgxpool.Pool
}

// NewClickEventRepository returns a pgx-backed ClickEventRepository.
// The event log is write-once and queried with aggregate scans, so it
// talks to the pool directly instead of going through GORM.
func NewClickEventRepository(pool *pgxpool.Pool) ClickEventRepository {
	return &clickEventRepository{pool: pool}
}

func (r *clickEventRepository) Create(ctx context.Context, event *model.ClickEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO click_events (id, code, owner_id, ip, user_agent, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		event.ID, event.Code, event.OwnerID, event.IP, event.UserAgent, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert click event: %w", err)
	}
	return nil
}

// CountByCodePerDay groups events for one code into UTC day buckets.
// Days with no events are absent from the result; the aggregator is
// responsible for gap filling.
func (r *clickEventRepository) CountByCodePerDay(ctx context.Context, code string, start, end time.Time) ([]DailyCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT date_trunc('day', timestamp AT TIME ZONE 'UTC') AS day, COUNT(*)
		 FROM click_events
		 WHERE code = $1 AND timestamp >= $2 AND timestamp < $3
		 GROUP BY day
		 ORDER BY day`,
		code, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("count clicks by code: %w", err)
	}
	defer rows.Close()
	return scanDailyCounts(rows)
}

// CountByOwnerPerDay groups events across all of an owner's codes.
func (r *clickEventRepository) CountByOwnerPerDay(ctx context.Context, ownerID string, start, end time.Time) ([]DailyCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT date_trunc('day', timestamp AT TIME ZONE 'UTC') AS day, COUNT(*)
		 FROM click_events
		 WHERE owner_id = $1 AND timestamp >= $2 AND timestamp < $3
		 GROUP BY day
		 ORDER BY day`,
		ownerID, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("count clicks by owner: %w", err)
	}
	defer rows.Close()
	return scanDailyCounts(rows)
}

// DeleteOlderThan prunes events past the retention window. Buckets may
// shrink as a result; link counters never do.
func (r *clickEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM click_events WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune click events: %w", err)
	}
	return tag.RowsAffected(), nil
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanDailyCounts(rows pgxRows) ([]DailyCount, error) {
	var out []DailyCount
	for rows.Next() {
		var dc DailyCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, fmt.Errorf("scan daily count: %w", err)
		}
		dc.Day = dc.Day.UTC()
		out = append(out, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily counts: %w", err)
	}
	return out, nil
}
