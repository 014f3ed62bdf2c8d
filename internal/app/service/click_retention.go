package service

import (
	"context"
	"time"

	apprepository "github.com/snaplink/snaplink/internal/app/repository"
	"github.com/snaplink/snaplink/internal/infra/prometheus"
	"go.uber.org/zap"
)

// ClickRetention periodically deletes click events older than the
// retention window. Link click counters are untouched, so pruning can
// only lower bucket sums relative to a link's total, never raise them.
type ClickRetention struct {
	logger    *zap.Logger
	repo      apprepository.ClickEventRepository
	retention time.Duration
	interval  time.Duration
	stopChan  chan struct{}
}

// NewClickRetention creates a pruner keeping events for the given window.
func NewClickRetention(logger *zap.Logger, repo apprepository.ClickEventRepository, retention time.Duration) *ClickRetention {
	return &ClickRetention{
		logger:    logger,
		repo:      repo,
		retention: retention,
		interval:  time.Hour,
		stopChan:  make(chan struct{}),
	}
}

// Start begins periodic pruning in the background.
func (c *ClickRetention) Start() {
	go c.run()
}

// Stop stops the pruner.
func (c *ClickRetention) Stop() {
	close(c.stopChan)
}

func (c *ClickRetention) run() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.prune()
		case <-c.stopChan:
			c.logger.Info("click retention pruner stopped")
			return
		}
	}
}

func (c *ClickRetention) prune() {
	ctx := context.Background()
	cutoff := time.Now().Add(-c.retention)

	affected, err := c.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		c.logger.Error("failed to prune click events", zap.Error(err))
		return
	}

	if affected > 0 {
		prometheus.ClickEventsPrunedTotal.Add(float64(affected))
		c.logger.Info("pruned click events past retention",
			zap.Int64("count", affected),
			zap.Time("cutoff", cutoff),
		)
	}
}
