package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/fieldops/internal/domain"
	"github.com/kursadbilgin/fieldops/internal/observability"
	"github.com/kursadbilgin/fieldops/internal/ordersearch"
	"github.com/kursadbilgin/fieldops/internal/retry"
	"go.uber.org/zap"
)

// Driver fetches one page at a time through the retry controller. It keeps
// no state between calls; the continuation token travels in the request.
type Driver struct {
	source  ordersearch.Searcher
	retry   *retry.Controller
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewDriver(
	source ordersearch.Searcher,
	controller *retry.Controller,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*Driver, error) {
	if source == nil {
		return nil, fmt.Errorf("order search source is required")
	}
	if controller == nil {
		controller = retry.New(retry.DefaultMaxRetries, retry.DefaultRetryDelay)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Driver{
		source:  source,
		retry:   controller,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}, nil
}

// NewRetryController builds the fetch retry policy. Every error is retried
// unless failFast is set, in which case permanent order search errors
// surface on the first attempt.
func NewRetryController(maxRetries int, retryDelay time.Duration, failFast bool) *retry.Controller {
	controller := retry.New(maxRetries, retryDelay)
	if failFast {
		controller.SetClassifier(ordersearch.IsTransient)
	}
	return controller
}

// FetchBatch returns the page for req. A response that cannot be followed
// (no continuation token) comes back with IsComplete set and a nil token.
func (d *Driver) FetchBatch(ctx context.Context, req domain.BatchRequest, onRetry retry.Func) (*domain.BatchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	logger := observability.WithContextLogger(d.logger, ctx)
	start := d.now()

	var resp *domain.BatchResponse
	err := d.retry.Do(ctx, func(ctx context.Context) error {
		page, err := d.source.SearchOrders(ctx, req)
		if err != nil {
			return err
		}
		resp = page
		return nil
	}, func(attempt, maxRetries int, err error) {
		d.metrics.IncFetchRetry()
		logger.Warn("batch fetch failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("maxRetries", maxRetries),
			zap.Duration("backoff", d.retry.Delay(attempt)),
			zap.Error(err),
		)
		if onRetry != nil {
			onRetry(attempt, maxRetries, err)
		}
	})
	d.metrics.ObserveBatch(err, d.now().Sub(start))
	if err != nil {
		return nil, err
	}

	if resp != nil && !resp.IsComplete && !resp.HasMore() {
		logger.Warn("page has no continuation token, treating fetch as complete",
			zap.Int("orders", len(resp.Orders)),
		)
	}
	return settle(resp), nil
}

// settle copies resp so the caller's view is consistent: IsComplete is
// true exactly when no continuation token remains.
func settle(resp *domain.BatchResponse) *domain.BatchResponse {
	if resp == nil {
		return &domain.BatchResponse{IsComplete: true}
	}

	out := *resp
	if !resp.HasMore() {
		out.IsComplete = true
		out.ContinuationToken = nil
	}
	return &out
}
