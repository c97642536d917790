package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kursadbilgin/fieldops/internal/domain"
	"github.com/kursadbilgin/fieldops/internal/normalizer"
	"github.com/kursadbilgin/fieldops/internal/observability"
	"go.uber.org/zap"
)

const defaultImportTimeout = 2 * time.Minute

// Importer stores the orders of a finished run.
type Importer interface {
	Import(ctx context.Context, req domain.ImportRequest) (*domain.ImportResult, error)
}

// Archiver keeps a copy of a finished run's orders. Failures are logged only.
type Archiver interface {
	ArchiveRun(ctx context.Context, run Run) (string, error)
}

// Status is what the API reports about the service's fetch pipeline.
type Status struct {
	Phase       domain.Phase         `json:"phase"`
	Progress    domain.ProgressState `json:"progress"`
	LastImport  *domain.ImportResult `json:"lastImport,omitempty"`
	ImportError *string              `json:"importError,omitempty"`
	ArchiveKey  string               `json:"archiveKey,omitempty"`
}

// Manager owns the service's pipeline and hands completed runs to storage.
type Manager struct {
	pipeline      *Pipeline
	importer      Importer
	archiver      Archiver
	logger        *zap.Logger
	metrics       *observability.Metrics
	importTimeout time.Duration

	mu          sync.RWMutex
	lastImport  *domain.ImportResult
	importError *string
	archiveKey  string
}

func NewManager(
	fetcher BatchFetcher,
	norm *normalizer.Normalizer,
	importer Importer,
	logger *zap.Logger,
	metrics *observability.Metrics,
	batchDelay time.Duration,
) (*Manager, error) {
	if importer == nil {
		return nil, fmt.Errorf("importer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		importer:      importer,
		logger:        logger,
		metrics:       metrics,
		importTimeout: defaultImportTimeout,
	}

	p, err := New(fetcher, norm, logger, metrics, Options{
		BatchDelay: batchDelay,
		OnComplete: m.handleComplete,
		OnError:    m.handleError,
	})
	if err != nil {
		return nil, err
	}
	m.pipeline = p

	return m, nil
}

// SetArchiver enables archiving of completed runs.
func (m *Manager) SetArchiver(archiver Archiver) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.archiver = archiver
}

func (m *Manager) Start(ctx context.Context, params domain.FetchParams) (Status, error) {
	previousRunID := m.pipeline.Snapshot().RunID

	progress, err := m.pipeline.LoadData(ctx, params)
	if err != nil {
		return m.Status(), err
	}

	// Resuming a paused run keeps the last import.
	if progress.RunID != previousRunID {
		m.mu.Lock()
		m.lastImport = nil
		m.importError = nil
		m.archiveKey = ""
		m.mu.Unlock()
	}
	return m.Status(), nil
}

func (m *Manager) Pause() (Status, bool) {
	changed := m.pipeline.Pause()
	return m.Status(), changed
}

func (m *Manager) Resume() (Status, bool) {
	changed := m.pipeline.Resume()
	return m.Status(), changed
}

func (m *Manager) Reset() Status {
	m.pipeline.Reset()

	m.mu.Lock()
	m.lastImport = nil
	m.importError = nil
	m.archiveKey = ""
	m.mu.Unlock()

	return m.Status()
}

func (m *Manager) Close() {
	m.pipeline.Close()
}

func (m *Manager) Status() Status {
	progress := m.pipeline.Snapshot()

	m.mu.RLock()
	defer m.mu.RUnlock()

	status := Status{
		Phase:      progress.Phase(),
		Progress:   progress,
		ArchiveKey: m.archiveKey,
	}
	if m.lastImport != nil {
		result := *m.lastImport
		status.LastImport = &result
	}
	if m.importError != nil {
		msg := *m.importError
		status.ImportError = &msg
	}
	return status
}

func (m *Manager) handleComplete(ctx context.Context, run Run) {
	logger := observability.WithContextLogger(m.logger, ctx)

	m.mu.RLock()
	archiver := m.archiver
	m.mu.RUnlock()

	if archiver != nil {
		key, err := archiver.ArchiveRun(ctx, run)
		if err != nil {
			logger.Warn("failed to archive run", zap.Error(err))
		} else {
			m.mu.Lock()
			m.archiveKey = key
			m.mu.Unlock()
		}
	}

	importCtx, cancel := context.WithTimeout(ctx, m.importTimeout)
	defer cancel()

	result, err := m.importer.Import(importCtx, domain.ImportRequest{
		RunID:     run.ID,
		StartDate: run.Params.StartDate,
		EndDate:   run.Params.EndDate,
		Orders:    run.Orders,
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		msg := err.Error()
		m.importError = &msg
		m.lastImport = nil
		logger.Error("import of fetched orders failed", zap.Int("orders", len(run.Orders)), zap.Error(err))
		return
	}

	m.lastImport = result
	m.importError = nil
	logger.Info("fetched orders imported",
		zap.Int("total", result.Total),
		zap.Int("imported", result.Imported),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("errors", result.Errors),
	)
}

func (m *Manager) handleError(ctx context.Context, runID string, err error) {
	logger := observability.WithContextLogger(m.logger, ctx)
	if _, ok := observability.RunIDFromContext(ctx); !ok {
		logger = logger.With(zap.String("runId", runID))
	}
	logger.Warn("fetch run stopped", zap.Error(err))
}
