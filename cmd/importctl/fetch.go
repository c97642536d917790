package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kursadbilgin/fieldops/internal/config"
	"github.com/kursadbilgin/fieldops/internal/domain"
	"github.com/kursadbilgin/fieldops/internal/infra/postgresql"
	"github.com/kursadbilgin/fieldops/internal/infra/postgresql/migrations"
	"github.com/kursadbilgin/fieldops/internal/normalizer"
	"github.com/kursadbilgin/fieldops/internal/observability"
	"github.com/kursadbilgin/fieldops/internal/ordersearch"
	"github.com/kursadbilgin/fieldops/internal/pipeline"
	"github.com/kursadbilgin/fieldops/internal/queue"
	"github.com/kursadbilgin/fieldops/internal/ratelimit"
	"github.com/kursadbilgin/fieldops/internal/repository"
	"github.com/kursadbilgin/fieldops/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const pollInterval = 500 * time.Millisecond

type fetchOptions struct {
	from      string
	to        string
	statuses  []string
	batchSize int
	dryRun    bool
}

func newFetchCmd() *cobra.Command {
	opts := &fetchOptions{}
	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format(domain.DateLayout)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch orders for a date range and import them",
		Long: `Fetches every page of completed orders for the date range, normalizes them
and imports the result into the work order store. With --dry-run the orders
are fetched and counted but nothing is written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.from, "from", yesterday, "first service date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.to, "to", yesterday, "last service date (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&opts.statuses, "status", nil, "completion statuses to fetch (default from FETCH_VALID_STATUSES)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "orders per page (default from FETCH_BATCH_SIZE)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "fetch and normalize without importing")

	return cmd
}

func runFetch(ctx context.Context, out io.Writer, opts *fetchOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	client, err := ordersearch.NewClient(cfg.OrderSearchURL, cfg.OrderSearchAPIKey, cfg.OrderSearchTimeout)
	if err != nil {
		return err
	}
	client.SetRateLimiter(ratelimit.NewLocalRateLimiter(cfg.RateLimitPerSec))

	controller := pipeline.NewRetryController(cfg.FetchMaxRetries, cfg.FetchRetryDelay, cfg.FetchFailFast)

	driver, err := pipeline.NewDriver(client, controller, logger, nil)
	if err != nil {
		return err
	}

	importer, closeImporter, err := newImporter(cfg, logger, opts.dryRun)
	if err != nil {
		return err
	}
	defer closeImporter()

	manager, err := pipeline.NewManager(driver, normalizer.New(logger), importer, logger, nil, cfg.FetchBatchDelay)
	if err != nil {
		return err
	}
	defer manager.Close()

	params := opts.params(cfg)
	if _, err := manager.Start(ctx, params); err != nil {
		return err
	}
	fmt.Fprintf(out, "fetching %s..%s statuses=%s\n", params.StartDate, params.EndDate, strings.Join(params.ValidStatuses, ","))

	status, err := waitForRun(ctx, manager, out, pollInterval)
	if err != nil {
		return err
	}
	return reportResult(out, status, opts.dryRun)
}

func (o *fetchOptions) params(cfg *config.Config) domain.FetchParams {
	statuses := o.statuses
	if len(statuses) == 0 {
		statuses = cfg.FetchValidStatuses
	}
	batchSize := o.batchSize
	if batchSize == 0 {
		batchSize = cfg.FetchBatchSize
	}

	return domain.FetchParams{
		StartDate:     strings.TrimSpace(o.from),
		EndDate:       strings.TrimSpace(o.to),
		ValidStatuses: statuses,
		BatchSize:     batchSize,
	}
}

func newImporter(cfg *config.Config, logger *zap.Logger, dryRun bool) (pipeline.Importer, func(), error) {
	if dryRun {
		return dryRunImporter{}, func() {}, nil
	}

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres initialization failed: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return nil, nil, fmt.Errorf("database migrations failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}

	importer, err := service.NewImportService(
		repository.NewGormWorkOrderRepo(db),
		repository.NewGormImportRunRepo(db),
		queue.NoopPublisher{},
		nil,
		logger,
	)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}
	return importer, func() { _ = sqlDB.Close() }, nil
}

// dryRunImporter counts what would have been imported.
type dryRunImporter struct{}

func (dryRunImporter) Import(_ context.Context, req domain.ImportRequest) (*domain.ImportResult, error) {
	result := &domain.ImportResult{RunID: req.RunID, Total: len(req.Orders)}
	for i := range req.Orders {
		if err := req.Orders[i].Validate(); err != nil {
			result.Errors++
			continue
		}
		result.Imported++
	}
	result.Success = result.RunStatus() != domain.ImportRunStatusFailed
	return result, nil
}

type statusSource interface {
	Status() pipeline.Status
}

// waitForRun prints a line per page until the run fails or its import lands.
func waitForRun(ctx context.Context, src statusSource, out io.Writer, interval time.Duration) (pipeline.Status, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastPage := -1
	lastError := ""
	for {
		status := src.Status()
		progress := status.Progress

		if progress.CurrentPage != lastPage {
			lastPage = progress.CurrentPage
			fmt.Fprintln(out, progressLine(progress))
		}
		if progress.Error != nil && *progress.Error != lastError {
			lastError = *progress.Error
			fmt.Fprintln(out, lastError)
		}

		switch {
		case status.Phase == domain.PhaseFailed:
			return status, fmt.Errorf("fetch failed: %s", lastError)
		case status.Phase == domain.PhaseComplete && (status.LastImport != nil || status.ImportError != nil):
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}

func progressLine(p domain.ProgressState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "page %d", p.CurrentPage)
	if p.TotalPages != nil {
		fmt.Fprintf(&b, "/%d", *p.TotalPages)
	}
	fmt.Fprintf(&b, " orders %d", p.ProcessedOrders)
	if p.TotalOrders != nil {
		fmt.Fprintf(&b, "/%d", *p.TotalOrders)
	}
	fmt.Fprintf(&b, " (%.0f%%)", p.Progress)
	return b.String()
}

func reportResult(out io.Writer, status pipeline.Status, dryRun bool) error {
	if status.ImportError != nil {
		return errors.New("import failed: " + *status.ImportError)
	}

	r := status.LastImport
	verb := "imported"
	if dryRun {
		verb = "would import"
	}
	fmt.Fprintf(out, "run %s: %s %d of %d (duplicates %d, errors %d)\n",
		r.RunID, verb, r.Imported, r.Total, r.Duplicates, r.Errors)
	if !r.Success {
		return fmt.Errorf("import run %s failed", r.RunID)
	}
	return nil
}
