package service

import (
	"context"
	"errors"
	"testing"

	"github.com/kursadbilgin/fieldops/internal/domain"
	"github.com/kursadbilgin/fieldops/internal/observability"
	"github.com/kursadbilgin/fieldops/internal/queue"
)

func order(number string) domain.WorkOrder {
	return domain.WorkOrder{OrderNumber: number, Status: domain.WorkOrderStatusImported}
}

func TestImportServiceCountsOutcomes(t *testing.T) {
	t.Parallel()

	orders := &fakeWorkOrderRepo{
		createIfAbsentFn: func(ctx context.Context, w *domain.WorkOrder, importRunID string) (bool, error) {
			if importRunID != "run-1" {
				t.Errorf("importRunID = %q, want run-1", importRunID)
			}
			switch w.OrderNumber {
			case "NEW":
				return true, nil
			case "DUP":
				return false, nil
			default:
				return false, errors.New("connection reset")
			}
		},
	}

	var created *domain.ImportRun
	var finished domain.ImportResult
	runs := &fakeImportRunRepo{
		createFn: func(ctx context.Context, run *domain.ImportRun) error {
			created = run
			return nil
		},
		finishFn: func(ctx context.Context, id string, result domain.ImportResult) error {
			if id != "run-1" {
				t.Errorf("Finish id = %q, want run-1", id)
			}
			finished = result
			return nil
		},
	}

	var published []queue.ImportEvent
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, event queue.ImportEvent) error {
			published = append(published, event)
			return nil
		},
	}

	svc, err := NewImportService(orders, runs, publisher, observability.NewMetrics(), nil)
	if err != nil {
		t.Fatalf("NewImportService() error = %v", err)
	}

	ctx := observability.WithCorrelationID(context.Background(), "corr-1")
	result, err := svc.Import(ctx, domain.ImportRequest{
		RunID:     "run-1",
		StartDate: "2024-01-01",
		EndDate:   "2024-01-02",
		Orders:    []domain.WorkOrder{order("NEW"), order("DUP"), order(""), order("BROKEN")},
	})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	want := domain.ImportResult{RunID: "run-1", Success: true, Total: 4, Imported: 1, Duplicates: 1, Errors: 2}
	if *result != want {
		t.Fatalf("result = %+v, want %+v", *result, want)
	}
	if created == nil || created.Status != domain.ImportRunStatusProcessing || created.Total != 4 {
		t.Fatalf("created run = %+v", created)
	}
	if finished != want || finished.RunStatus() != domain.ImportRunStatusPartialFailure {
		t.Fatalf("finished = %+v", finished)
	}
	if len(published) != 1 {
		t.Fatalf("published %d events, want 1", len(published))
	}
	if published[0].CorrelationID != "corr-1" || published[0].Imported != 1 || published[0].StartDate != "2024-01-01" {
		t.Fatalf("event = %+v", published[0])
	}
}

func TestImportServiceAllFailedIsUnsuccessful(t *testing.T) {
	t.Parallel()

	orders := &fakeWorkOrderRepo{
		createIfAbsentFn: func(ctx context.Context, w *domain.WorkOrder, importRunID string) (bool, error) {
			return false, errors.New("disk full")
		},
	}

	svc, err := NewImportService(orders, &fakeImportRunRepo{}, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewImportService() error = %v", err)
	}

	result, err := svc.Import(context.Background(), domain.ImportRequest{Orders: []domain.WorkOrder{order("A"), order("B")}})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if result.Success || result.Errors != 2 {
		t.Fatalf("result = %+v, want 2 errors and success=false", *result)
	}
	if result.RunID == "" {
		t.Fatal("RunID should be generated")
	}
}

func TestImportServiceEmptyImportSucceeds(t *testing.T) {
	t.Parallel()

	svc, err := NewImportService(&fakeWorkOrderRepo{}, &fakeImportRunRepo{}, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewImportService() error = %v", err)
	}

	result, err := svc.Import(context.Background(), domain.ImportRequest{})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if !result.Success || result.Total != 0 {
		t.Fatalf("result = %+v, want empty success", *result)
	}
}

func TestImportServiceRunCreateFailureIsReturned(t *testing.T) {
	t.Parallel()

	storeCalled := false
	orders := &fakeWorkOrderRepo{
		createIfAbsentFn: func(ctx context.Context, w *domain.WorkOrder, importRunID string) (bool, error) {
			storeCalled = true
			return true, nil
		},
	}
	runs := &fakeImportRunRepo{
		createFn: func(ctx context.Context, run *domain.ImportRun) error {
			return errors.New("db down")
		},
	}

	svc, err := NewImportService(orders, runs, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewImportService() error = %v", err)
	}

	if _, err := svc.Import(context.Background(), domain.ImportRequest{Orders: []domain.WorkOrder{order("A")}}); err == nil {
		t.Fatal("Import() expected error")
	}
	if storeCalled {
		t.Fatal("orders should not be stored without a run record")
	}
}

func TestImportServicePublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, event queue.ImportEvent) error {
			return errors.New("broker unavailable")
		},
	}

	svc, err := NewImportService(&fakeWorkOrderRepo{}, &fakeImportRunRepo{}, publisher, nil, nil)
	if err != nil {
		t.Fatalf("NewImportService() error = %v", err)
	}

	result, err := svc.Import(context.Background(), domain.ImportRequest{Orders: []domain.WorkOrder{order("A")}})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if result.Imported != 1 {
		t.Fatalf("Imported = %d, want 1", result.Imported)
	}
}

func TestImportServiceCanceledContextCountsRemainingAsErrors(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	orders := &fakeWorkOrderRepo{
		createIfAbsentFn: func(ctx context.Context, w *domain.WorkOrder, importRunID string) (bool, error) {
			cancel()
			return true, nil
		},
	}

	svc, err := NewImportService(orders, &fakeImportRunRepo{}, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewImportService() error = %v", err)
	}

	result, err := svc.Import(ctx, domain.ImportRequest{Orders: []domain.WorkOrder{order("A"), order("B"), order("C")}})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if result.Imported != 1 || result.Errors != 2 {
		t.Fatalf("result = %+v, want 1 imported 2 errors", *result)
	}
}

func TestImportServiceValidation(t *testing.T) {
	t.Parallel()

	svc, err := NewImportService(&fakeWorkOrderRepo{}, &fakeImportRunRepo{}, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewImportService() error = %v", err)
	}

	_, err = svc.Import(context.Background(), domain.ImportRequest{StartDate: "01/01/2024"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Import() error = %v, want ErrValidation", err)
	}

	_, err = svc.GetRun(context.Background(), " ")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("GetRun() error = %v, want ErrValidation", err)
	}

	if _, err := NewImportService(nil, &fakeImportRunRepo{}, nil, nil, nil); err == nil {
		t.Fatal("expected error for nil order repository")
	}
}
