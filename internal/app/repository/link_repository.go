package repository

import (
	"context"
	"errors"

	"github.com/snaplink/snaplink/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrLinkNotFound signals that the requested short link does not exist.
	ErrLinkNotFound = errors.New("link not found")
	// ErrCodeTaken signals that the code is already bound to a target URL.
	ErrCodeTaken = errors.New("code already taken")
)

// LinkRepository defines the data access contract for short links.
//
// CreateIfAbsent and IncrementClick are the two operations that carry
// the store's correctness burden: both are single Postgres statements,
// so concurrent callers racing on the same code are serialized by the
// database and never observe lost updates or silent overwrites.
type LinkRepository interface {
	CreateIfAbsent(ctx context.Context, link *model.Link) error
	GetByCode(ctx context.Context, code string) (*model.Link, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]model.Link, error)
	IncrementClick(ctx context.Context, code string) (int64, error)
	Exists(ctx context.Context, code string) (bool, error)
	AllCodes(ctx context.Context) ([]string, error)
}

type linkRepository struct {
	db *gorm.DB
}

// NewLinkRepository returns a GORM-backed LinkRepository.
func NewLinkRepository(db *gorm.DB) LinkRepository {
	return &linkRepository{db: db}
}

// CreateIfAbsent claims the code with INSERT ... ON CONFLICT DO NOTHING.
// Exactly one of any number of concurrent claimants succeeds; the rest
// get ErrCodeTaken.
func (r *linkRepository) CreateIfAbsent(ctx context.Context, link *model.Link) error {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoNothing: true,
		}).
		Create(link)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCodeTaken
	}
	return nil
}

func (r *linkRepository) GetByCode(ctx context.Context, code string) (*model.Link, error) {
	var link model.Link
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (r *linkRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]model.Link, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var result []model.Link
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&result).Error; err != nil {
		return nil, err
	}

	return result, nil
}

// IncrementClick bumps the counter in a single UPDATE and returns the
// new value. Postgres serializes the row update, so k concurrent
// resolutions always land at +k.
func (r *linkRepository) IncrementClick(ctx context.Context, code string) (int64, error) {
	var newCount int64
	result := r.db.WithContext(ctx).
		Raw(`UPDATE links SET click_count = click_count + 1, updated_at = NOW()
		     WHERE code = ? RETURNING click_count`, code).
		Scan(&newCount)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, ErrLinkNotFound
	}
	return newCount, nil
}

func (r *linkRepository) Exists(ctx context.Context, code string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&model.Link{}).
		Where("code = ?", code).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// AllCodes returns every assigned code. Used once at startup to warm
// the resolver's bloom filter.
func (r *linkRepository) AllCodes(ctx context.Context) ([]string, error) {
	var codes []string
	if err := r.db.WithContext(ctx).
		Model(&model.Link{}).
		Pluck("code", &codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}
