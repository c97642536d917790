// Package pipeline drives a paged order fetch from the routing API and
// tracks its progress.
//
// A Pipeline runs at most one fetch at a time. Batches are requested strictly
// one after another on a single goroutine, each carrying the continuation
// token returned by the previous page. Every run is tagged with an epoch;
// Reset and a fresh LoadData advance it and anything still in flight for an
// older epoch is discarded when it returns.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/fieldops/internal/domain"
	"github.com/kursadbilgin/fieldops/internal/normalizer"
	"github.com/kursadbilgin/fieldops/internal/observability"
	"github.com/kursadbilgin/fieldops/internal/retry"
	"go.uber.org/zap"
)

const DefaultBatchDelay = 300 * time.Millisecond

// ErrRunInProgress is returned by LoadData while a fetch is loading.
var ErrRunInProgress = fmt.Errorf("%w: a fetch is already in progress", domain.ErrConflict)

// BatchFetcher fetches a single page. *Driver is the production implementation.
type BatchFetcher interface {
	FetchBatch(ctx context.Context, req domain.BatchRequest, onRetry retry.Func) (*domain.BatchResponse, error)
}

// Run is what a completed fetch hands to OnComplete. The pipeline keeps no
// reference to Orders afterwards.
type Run struct {
	ID     string
	Params domain.FetchParams
	Orders []domain.WorkOrder
}

type Options struct {
	BatchDelay time.Duration
	OnComplete func(ctx context.Context, run Run)
	OnError    func(ctx context.Context, runID string, err error)
}

type Pipeline struct {
	fetcher    BatchFetcher
	normalizer *normalizer.Normalizer
	logger     *zap.Logger
	metrics    *observability.Metrics
	batchDelay time.Duration
	onComplete func(ctx context.Context, run Run)
	onError    func(ctx context.Context, runID string, err error)
	sleep      func(ctx context.Context, d time.Duration) error
	newID      func() string

	mu      sync.Mutex
	state   domain.ProgressState
	orders  []domain.WorkOrder
	params  *domain.FetchParams
	epoch   uint64
	running bool
	runCtx  context.Context
	cancel  context.CancelFunc
}

func New(
	fetcher BatchFetcher,
	norm *normalizer.Normalizer,
	logger *zap.Logger,
	metrics *observability.Metrics,
	opts Options,
) (*Pipeline, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("batch fetcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if norm == nil {
		norm = normalizer.New(logger)
	}
	if opts.BatchDelay <= 0 {
		opts.BatchDelay = DefaultBatchDelay
	}

	return &Pipeline{
		fetcher:    fetcher,
		normalizer: norm,
		logger:     logger,
		metrics:    metrics,
		batchDelay: opts.BatchDelay,
		onComplete: opts.OnComplete,
		onError:    opts.OnError,
		sleep:      sleepWithContext,
		newID:      uuid.NewString,
	}, nil
}

// LoadData starts a fetch of the given range from the first page. Calling it
// while paused with the same parameters resumes instead. While loading it
// changes nothing and returns ErrRunInProgress.
func (p *Pipeline) LoadData(ctx context.Context, params domain.FetchParams) (domain.ProgressState, error) {
	if err := params.Request(nil).Validate(); err != nil {
		return domain.ProgressState{}, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.IsLoading {
		return p.snapshotLocked(), ErrRunInProgress
	}
	if p.state.IsPaused && p.params != nil && reflect.DeepEqual(*p.params, params) {
		p.resumeLocked()
		return p.snapshotLocked(), nil
	}

	p.clearLocked()

	stored := params
	stored.ValidStatuses = append([]string(nil), params.ValidStatuses...)
	p.params = &stored

	runID := p.newID()
	// The run outlives the request that started it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.runCtx = observability.WithRunID(runCtx, runID)
	p.cancel = cancel

	p.state = domain.ProgressState{RunID: runID, IsLoading: true}
	p.startLocked(nil)

	observability.WithContextLogger(p.logger, p.runCtx).Info("fetch started",
		zap.String("startDate", params.StartDate),
		zap.String("endDate", params.EndDate),
		zap.Strings("validStatuses", params.ValidStatuses),
	)

	return p.snapshotLocked(), nil
}

// Pause stops scheduling after the in-flight batch. The batch itself is not
// cancelled and its response is still applied. It reports whether the state
// changed.
func (p *Pipeline) Pause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.state.IsLoading || p.state.IsComplete {
		return false
	}
	p.state.IsLoading = false
	p.state.IsPaused = true
	return true
}

// Resume continues a paused fetch from the remembered continuation token.
func (p *Pipeline) Resume() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.state.IsPaused || p.params == nil {
		return false
	}
	p.resumeLocked()
	return true
}

// Reset returns to idle, abandoning the remembered request and any batch
// still in flight.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.IsLoading || p.state.IsPaused {
		p.metrics.IncPipelineRun("reset")
	}
	p.clearLocked()
}

// Close cancels any running fetch. The pipeline stays usable.
func (p *Pipeline) Close() {
	p.Reset()
}

func (p *Pipeline) Snapshot() domain.ProgressState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.snapshotLocked()
}

// Orders returns a copy of the orders accumulated by the current run.
func (p *Pipeline) Orders() []domain.WorkOrder {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.WorkOrder, len(p.orders))
	copy(out, p.orders)
	return out
}

func (p *Pipeline) resumeLocked() {
	p.state.IsPaused = false
	p.state.IsLoading = true
	if !p.running {
		p.startLocked(cloneString(p.state.ContinuationToken))
	}
}

func (p *Pipeline) clearLocked() {
	p.epoch++
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = nil
	p.runCtx = nil
	p.state = domain.ProgressState{}
	p.orders = nil
	p.params = nil
	p.running = false
}

func (p *Pipeline) startLocked(token *string) {
	p.running = true
	go p.run(p.runCtx, p.epoch, token)
}

func (p *Pipeline) run(ctx context.Context, epoch uint64, token *string) {
	p.metrics.IncPipelineActive()
	defer p.metrics.DecPipelineActive()

	logger := observability.WithContextLogger(p.logger, ctx)

	for {
		req, ok := p.nextRequest(epoch, token)
		if !ok {
			return
		}

		resp, err := p.fetcher.FetchBatch(ctx, req, func(attempt, maxRetries int, err error) {
			p.noteRetry(epoch, retry.Message(attempt, maxRetries, err))
		})
		if err != nil {
			p.fail(ctx, epoch, err)
			return
		}

		orders := p.normalizer.NormalizeAll(resp.Orders)
		next, more := p.apply(ctx, epoch, resp, orders)
		if !more {
			return
		}
		token = next

		if err := p.sleep(ctx, p.batchDelay); err != nil {
			logger.Debug("fetch run cancelled between batches")
			return
		}
	}
}

// nextRequest builds the next page request, or reports false when the run
// should stop because it was paused or superseded.
func (p *Pipeline) nextRequest(epoch uint64, token *string) (domain.BatchRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.epoch != epoch || p.params == nil {
		return domain.BatchRequest{}, false
	}
	if !p.state.IsLoading {
		p.running = false
		return domain.BatchRequest{}, false
	}
	return p.params.Request(token), true
}

func (p *Pipeline) noteRetry(epoch uint64, msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.epoch != epoch {
		return
	}
	p.state.Error = &msg
}

// apply records one page. It returns the token for the next page and
// whether another batch should be scheduled.
func (p *Pipeline) apply(ctx context.Context, epoch uint64, resp *domain.BatchResponse, orders []domain.WorkOrder) (*string, bool) {
	logger := observability.WithContextLogger(p.logger, ctx)

	p.mu.Lock()
	if p.epoch != epoch {
		p.mu.Unlock()
		logger.Debug("discarding batch from a superseded run", zap.Int("orders", len(orders)))
		return nil, false
	}

	p.orders = append(p.orders, orders...)
	st := &p.state
	st.ProcessedOrders += len(orders)
	if resp.CurrentPage != nil && *resp.CurrentPage > st.CurrentPage {
		st.CurrentPage = *resp.CurrentPage
	} else {
		st.CurrentPage++
	}
	if resp.TotalPages != nil {
		st.TotalPages = cloneInt(resp.TotalPages)
	}
	if resp.TotalOrders != nil {
		st.TotalOrders = cloneInt(resp.TotalOrders)
	}
	if st.TotalOrders != nil && *st.TotalOrders > 0 {
		st.Progress = clampProgress(float64(st.ProcessedOrders) / float64(*st.TotalOrders) * 100)
	}
	st.ContinuationToken = cloneString(resp.ContinuationToken)
	st.Error = nil

	p.metrics.AddOrdersProcessed(len(orders))
	logger.Info("batch applied",
		zap.Int("page", st.CurrentPage),
		zap.Int("orders", len(orders)),
		zap.Int("processedOrders", st.ProcessedOrders),
	)

	if resp.IsComplete {
		st.IsLoading = false
		st.IsPaused = false
		st.IsComplete = true
		// A known total keeps processed/total; only an unknown one jumps to 100.
		if st.TotalOrders == nil || *st.TotalOrders <= 0 {
			st.Progress = 100
		}
		p.running = false

		run := Run{ID: st.RunID, Params: *p.params, Orders: p.orders}
		p.orders = nil
		p.mu.Unlock()

		p.metrics.IncPipelineRun("complete")
		logger.Info("fetch complete", zap.Int("processedOrders", len(run.Orders)))
		if p.onComplete != nil {
			p.onComplete(ctx, run)
		}
		return nil, false
	}

	if st.IsPaused {
		p.running = false
		processed := st.ProcessedOrders
		p.mu.Unlock()
		logger.Info("fetch paused", zap.Int("processedOrders", processed))
		return nil, false
	}

	next := cloneString(st.ContinuationToken)
	p.mu.Unlock()
	return next, true
}

func (p *Pipeline) fail(ctx context.Context, epoch uint64, err error) {
	logger := observability.WithContextLogger(p.logger, ctx)

	p.mu.Lock()
	if p.epoch != epoch {
		p.mu.Unlock()
		logger.Debug("discarding failure from a superseded run", zap.Error(err))
		return
	}

	msg := err.Error()
	p.state.IsLoading = false
	p.state.IsPaused = false
	p.state.Error = &msg
	p.running = false
	runID := p.state.RunID
	p.mu.Unlock()

	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		logger.Error("fetch failed after retries", zap.Int("attempts", exhausted.Attempts), zap.Error(err))
	} else {
		logger.Error("fetch failed", zap.Error(err))
	}
	p.metrics.IncPipelineRun("failed")
	if p.onError != nil {
		p.onError(ctx, runID, err)
	}
}

func (p *Pipeline) snapshotLocked() domain.ProgressState {
	out := p.state
	out.TotalPages = cloneInt(p.state.TotalPages)
	out.TotalOrders = cloneInt(p.state.TotalOrders)
	out.ContinuationToken = cloneString(p.state.ContinuationToken)
	out.Error = cloneString(p.state.Error)
	return out
}

func clampProgress(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
