package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/fieldops/internal/domain"
	"github.com/kursadbilgin/fieldops/internal/pipeline"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RunStarter starts a fetch run.
type RunStarter interface {
	Start(ctx context.Context, params domain.FetchParams) (pipeline.Status, error)
}

// Scheduler triggers a fetch of the previous day's orders on a cron schedule.
type Scheduler struct {
	starter   RunStarter
	schedule  cron.Schedule
	spec      string
	statuses  []string
	batchSize int
	location  *time.Location
	logger    *zap.Logger
	now       func() time.Time
}

func NewScheduler(
	starter RunStarter,
	spec string,
	statuses []string,
	batchSize int,
	logger *zap.Logger,
) (*Scheduler, error) {
	if starter == nil {
		return nil, fmt.Errorf("run starter is required")
	}
	spec = strings.TrimSpace(spec)
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid import schedule %q: %w", spec, err)
	}
	if len(statuses) == 0 {
		statuses = []string{domain.CompletionStatusSuccess, domain.CompletionStatusFailed}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		starter:   starter,
		schedule:  schedule,
		spec:      spec,
		statuses:  statuses,
		batchSize: batchSize,
		location:  time.UTC,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Start runs the schedule until ctx ends and waits for a running trigger.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New(cron.WithLocation(s.location))
	c.Schedule(s.schedule, cron.FuncJob(func() { s.trigger(ctx) }))
	c.Start()
	s.logger.Info("import scheduler started", zap.String("schedule", s.spec))

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("import scheduler stopped")
	return nil
}

func (s *Scheduler) trigger(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	params := s.paramsFor(s.now())
	status, err := s.starter.Start(ctx, params)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		s.logger.Info("scheduled import skipped: run in progress",
			zap.String("startDate", params.StartDate),
		)
	case err != nil:
		s.logger.Error("scheduled import failed to start",
			zap.String("startDate", params.StartDate),
			zap.Error(err),
		)
	default:
		s.logger.Info("scheduled import started",
			zap.String("runId", status.Progress.RunID),
			zap.String("startDate", params.StartDate),
		)
	}
}

// paramsFor covers the full calendar day before now.
func (s *Scheduler) paramsFor(now time.Time) domain.FetchParams {
	day := now.In(s.location).AddDate(0, 0, -1).Format(domain.DateLayout)
	statuses := make([]string, len(s.statuses))
	copy(statuses, s.statuses)

	return domain.FetchParams{
		StartDate:     day,
		EndDate:       day,
		ValidStatuses: statuses,
		BatchSize:     s.batchSize,
	}
}
