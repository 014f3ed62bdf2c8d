package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/snaplink/snaplink/internal/app/model"
	apprepository "github.com/snaplink/snaplink/internal/app/repository"
	"github.com/snaplink/snaplink/internal/infra/prometheus"
	"go.uber.org/zap"
)

const fetchErrorBackoff = 2 * time.Second

// ClickConsumer drains click events from NATS JetStream into the
// Postgres event log. The stream absorbs bursts and store outages so
// the redirect path never waits on analytics durability.
type ClickConsumer struct {
	js       nats.JetStreamContext
	logger   *zap.Logger
	repo     apprepository.ClickEventRepository
	backoff  time.Duration
	stopChan chan struct{}
}

// NewClickConsumer creates a new click event consumer.
func NewClickConsumer(js nats.JetStreamContext, logger *zap.Logger, repo apprepository.ClickEventRepository) *ClickConsumer {
	return &ClickConsumer{
		js:       js,
		logger:   logger,
		repo:     repo,
		backoff:  fetchErrorBackoff,
		stopChan: make(chan struct{}),
	}
}

// Start ensures the stream and durable consumer exist and begins
// consuming in the background.
func (c *ClickConsumer) Start() error {
	_, err := c.js.StreamInfo(model.ClickStreamName)
	if err != nil {
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:     model.ClickStreamName,
			Subjects: []string{model.ClickStreamSubject},
			MaxBytes: model.ClickStreamMaxBytes,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	_, err = c.js.ConsumerInfo(model.ClickStreamName, model.ClickConsumerName)
	if err != nil {
		_, err = c.js.AddConsumer(model.ClickStreamName, &nats.ConsumerConfig{
			Durable:   model.ClickConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.ClickStreamSubject, model.ClickConsumerName)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go c.consume(func() ([]*nats.Msg, error) {
		return sub.Fetch(10, nats.MaxWait(5*time.Second))
	})
	return nil
}

// Stop terminates the consume loop.
func (c *ClickConsumer) Stop() {
	close(c.stopChan)
}

func (c *ClickConsumer) consume(fetch func() ([]*nats.Msg, error)) {
	ctx := context.Background()
	for {
		select {
		case <-c.stopChan:
			c.logger.Info("click consumer stopped")
			return
		default:
		}

		msgs, err := fetch()
		if err != nil && err != nats.ErrTimeout {
			// Back off instead of spinning when the connection stays
			// broken.
			c.logger.Error("failed to fetch messages", zap.Error(err))
			select {
			case <-c.stopChan:
				c.logger.Info("click consumer stopped")
				return
			case <-time.After(c.backoff):
			}
			continue
		}

		for _, msg := range msgs {
			var event model.ClickEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				c.logger.Error("failed to unmarshal click event", zap.Error(err))
				msg.Nak()
				continue
			}

			// Insert is idempotent on the event id, so redelivered
			// messages never double-count a click in the log.
			if err := c.repo.Create(ctx, &event); err != nil {
				c.logger.Error("failed to store click event",
					zap.String("id", event.ID),
					zap.String("code", event.Code),
					zap.Error(err))
				msg.Nak()
				continue
			}

			prometheus.ClickEventsStoredTotal.Inc()
			c.logger.Debug("click event stored",
				zap.String("id", event.ID),
				zap.String("code", event.Code),
				zap.Time("timestamp", event.Timestamp),
			)

			msg.Ack()
		}
	}
}
