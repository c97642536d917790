package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/fieldops/internal/domain"
	"github.com/kursadbilgin/fieldops/internal/observability"
	"github.com/kursadbilgin/fieldops/internal/queue"
	"github.com/kursadbilgin/fieldops/internal/repository"
	"go.uber.org/zap"
)

const maxImportSize = 10000

// ImportService writes canonical work orders to the store, deduplicating
// on order number. Per-order failures are counted, never returned.
type ImportService struct {
	orders    repository.WorkOrderRepository
	runs      repository.ImportRunRepository
	publisher queue.Publisher
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewImportService(
	orders repository.WorkOrderRepository,
	runs repository.ImportRunRepository,
	publisher queue.Publisher,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*ImportService, error) {
	if orders == nil {
		return nil, fmt.Errorf("work order repository is required")
	}
	if runs == nil {
		return nil, fmt.Errorf("import run repository is required")
	}
	if publisher == nil {
		publisher = queue.NoopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ImportService{
		orders:    orders,
		runs:      runs,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (s *ImportService) Import(ctx context.Context, req domain.ImportRequest) (*domain.ImportResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validateImportRequest(req); err != nil {
		return nil, err
	}

	runID := strings.TrimSpace(req.RunID)
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := observability.WithContextLogger(s.logger, ctx).With(zap.String("runId", runID))

	run := &domain.ImportRun{
		ID:        runID,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Total:     len(req.Orders),
		Status:    domain.ImportRunStatusProcessing,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record import run: %w", err)
	}

	result := domain.ImportResult{RunID: runID, Total: len(req.Orders)}
	for i := range req.Orders {
		if ctx.Err() != nil {
			// Orders never attempted still count against the run.
			result.Errors += len(req.Orders) - i
			logger.Warn("import interrupted", zap.Error(ctx.Err()), zap.Int("remaining", len(req.Orders)-i))
			break
		}

		order := req.Orders[i]
		if err := order.Validate(); err != nil {
			result.Errors++
			logger.Warn("skipping invalid work order", zap.Int("index", i), zap.Error(err))
			continue
		}

		created, err := s.orders.CreateIfAbsent(ctx, &order, runID)
		switch {
		case err != nil:
			result.Errors++
			logger.Warn("failed to store work order",
				zap.String("orderNumber", order.OrderNumber),
				zap.Error(err),
			)
		case created:
			result.Imported++
		default:
			result.Duplicates++
		}
	}
	result.Success = result.RunStatus() != domain.ImportRunStatusFailed

	// The run row is bookkeeping; a failure here does not undo stored orders.
	finishCtx := context.WithoutCancel(ctx)
	if err := s.runs.Finish(finishCtx, runID, result); err != nil {
		logger.Error("failed to finish import run", zap.Error(err))
	}
	s.metrics.ObserveImport(result.Imported, result.Duplicates, result.Errors)

	correlationID, _ := observability.CorrelationIDFromContext(ctx)
	event := queue.NewImportEvent(req, result, correlationID, s.now())
	if err := s.publisher.Publish(finishCtx, event); err != nil {
		logger.Error("failed to publish import event", zap.Error(err))
	}

	logger.Info("import finished",
		zap.Int("total", result.Total),
		zap.Int("imported", result.Imported),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("errors", result.Errors),
		zap.String("status", result.RunStatus().String()),
	)

	return &result, nil
}

// GetRun returns a recorded import run.
func (s *ImportService) GetRun(ctx context.Context, id string) (*domain.ImportRun, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: run id is required", domain.ErrValidation)
	}
	return s.runs.GetByID(ctx, id)
}

func validateImportRequest(req domain.ImportRequest) error {
	if len(req.Orders) > maxImportSize {
		return fmt.Errorf("%w: import exceeds %d orders", domain.ErrValidation, maxImportSize)
	}
	for _, date := range []string{req.StartDate, req.EndDate} {
		if date == "" {
			continue
		}
		if _, err := time.Parse(domain.DateLayout, date); err != nil {
			return fmt.Errorf("%w: date %q must be YYYY-MM-DD", domain.ErrValidation, date)
		}
	}
	return nil
}
