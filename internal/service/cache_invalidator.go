package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/fieldops/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// QueryInvalidator drops cached read models.
type QueryInvalidator interface {
	InvalidateQueries(ctx context.Context) error
}

// CacheInvalidator listens for import events from every instance and drops
// cached work order queries when new rows were written.
type CacheInvalidator struct {
	consumer    queue.Consumer
	invalidator QueryInvalidator
	queues      []string
	logger      *zap.Logger
}

func NewCacheInvalidator(consumer queue.Consumer, invalidator QueryInvalidator, logger *zap.Logger) (*CacheInvalidator, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if invalidator == nil {
		return nil, fmt.Errorf("query invalidator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CacheInvalidator{
		consumer:    consumer,
		invalidator: invalidator,
		queues:      queue.WorkQueueNames(),
		logger:      logger,
	}, nil
}

func (c *CacheInvalidator) Start(ctx context.Context) error {
	g, groupCtx := errgroup.WithContext(ctx)
	for _, queueName := range c.queues {
		g.Go(func() error {
			c.logger.Info("cache invalidator started", zap.String("queue", queueName))

			if err := c.consumer.Consume(groupCtx, queueName, c.handleEvent); err != nil {
				c.logger.Error("cache invalidator stopped with error",
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			c.logger.Info("cache invalidator stopped", zap.String("queue", queueName))
			return nil
		})
	}

	return g.Wait()
}

func (c *CacheInvalidator) handleEvent(ctx context.Context, event queue.ImportEvent) error {
	if !event.HasNewOrders() {
		return nil
	}
	if err := c.invalidator.InvalidateQueries(ctx); err != nil {
		return fmt.Errorf("failed to invalidate queries for run %s: %w", event.RunID, err)
	}

	c.logger.Debug("work order queries invalidated",
		zap.String("runId", event.RunID),
		zap.String("correlationId", event.CorrelationID),
		zap.Int("imported", event.Imported),
	)
	return nil
}
