package service

import (
	"context"
	"errors"
	"testing"

	"github.com/kursadbilgin/fieldops/internal/queue"
)

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

type invalidatorFunc func(ctx context.Context) error

func (f invalidatorFunc) InvalidateQueries(ctx context.Context) error { return f(ctx) }

func TestCacheInvalidatorHandlesImportEvents(t *testing.T) {
	t.Parallel()

	invalidations := 0
	var handlerErrs []error
	consumer := &fakeConsumer{
		consumeFn: func(ctx context.Context, queueName string, handler queue.MessageHandler) error {
			if queueName != queue.CacheInvalidationQueue {
				t.Errorf("queue = %q, want %q", queueName, queue.CacheInvalidationQueue)
			}
			handlerErrs = append(handlerErrs,
				handler(ctx, queue.ImportEvent{RunID: "r1", Total: 2, Imported: 2}),
				handler(ctx, queue.ImportEvent{RunID: "r2", Total: 2, Duplicates: 2}),
			)
			return nil
		},
	}

	ci, err := NewCacheInvalidator(consumer, invalidatorFunc(func(ctx context.Context) error {
		invalidations++
		return nil
	}), nil)
	if err != nil {
		t.Fatalf("NewCacheInvalidator() error = %v", err)
	}

	if err := ci.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if invalidations != 1 {
		t.Fatalf("invalidations = %d, want 1 (duplicate-only runs skip)", invalidations)
	}
	for _, err := range handlerErrs {
		if err != nil {
			t.Fatalf("handler error = %v", err)
		}
	}
}

func TestCacheInvalidatorReturnsInvalidationErrors(t *testing.T) {
	t.Parallel()

	ci, err := NewCacheInvalidator(&fakeConsumer{}, invalidatorFunc(func(ctx context.Context) error {
		return errors.New("redis down")
	}), nil)
	if err != nil {
		t.Fatalf("NewCacheInvalidator() error = %v", err)
	}

	if err := ci.handleEvent(context.Background(), queue.ImportEvent{RunID: "r1", Total: 1, Imported: 1}); err == nil {
		t.Fatal("expected invalidation error so the event is requeued")
	}
}

func TestCacheInvalidatorStopsOnCancel(t *testing.T) {
	t.Parallel()

	ci, err := NewCacheInvalidator(&fakeConsumer{}, invalidatorFunc(func(ctx context.Context) error { return nil }), nil)
	if err != nil {
		t.Fatalf("NewCacheInvalidator() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ci.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}

func TestNewCacheInvalidatorValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewCacheInvalidator(nil, invalidatorFunc(nil), nil); err == nil {
		t.Fatal("expected error for nil consumer")
	}
	if _, err := NewCacheInvalidator(&fakeConsumer{}, nil, nil); err == nil {
		t.Fatal("expected error for nil invalidator")
	}
}
