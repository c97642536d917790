package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/kursadbilgin/fieldops/internal/domain"
	"github.com/kursadbilgin/fieldops/internal/queue"
	"github.com/kursadbilgin/fieldops/internal/repository"
)

type fakeWorkOrderRepo struct {
	createIfAbsentFn   func(ctx context.Context, w *domain.WorkOrder, importRunID string) (bool, error)
	getByOrderNumberFn func(ctx context.Context, orderNumber string) (*domain.WorkOrder, error)
	listFn             func(ctx context.Context, params repository.WorkOrderListParams) ([]domain.WorkOrder, int64, error)
	updateStatusFn     func(ctx context.Context, orderNumber string, status domain.WorkOrderStatus) error
	statusSummaryFn    func(ctx context.Context) ([]domain.StatusCount, error)
}

func (f *fakeWorkOrderRepo) CreateIfAbsent(ctx context.Context, w *domain.WorkOrder, importRunID string) (bool, error) {
	if f.createIfAbsentFn != nil {
		return f.createIfAbsentFn(ctx, w, importRunID)
	}
	return true, nil
}

func (f *fakeWorkOrderRepo) GetByOrderNumber(ctx context.Context, orderNumber string) (*domain.WorkOrder, error) {
	if f.getByOrderNumberFn != nil {
		return f.getByOrderNumberFn(ctx, orderNumber)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeWorkOrderRepo) List(ctx context.Context, params repository.WorkOrderListParams) ([]domain.WorkOrder, int64, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, 0, nil
}

func (f *fakeWorkOrderRepo) UpdateStatus(ctx context.Context, orderNumber string, status domain.WorkOrderStatus) error {
	if f.updateStatusFn != nil {
		return f.updateStatusFn(ctx, orderNumber, status)
	}
	return nil
}

func (f *fakeWorkOrderRepo) StatusSummary(ctx context.Context) ([]domain.StatusCount, error) {
	if f.statusSummaryFn != nil {
		return f.statusSummaryFn(ctx)
	}
	return nil, nil
}

type fakeImportRunRepo struct {
	createFn  func(ctx context.Context, run *domain.ImportRun) error
	getByIDFn func(ctx context.Context, id string) (*domain.ImportRun, error)
	finishFn  func(ctx context.Context, id string, result domain.ImportResult) error
}

func (f *fakeImportRunRepo) Create(ctx context.Context, run *domain.ImportRun) error {
	if f.createFn != nil {
		return f.createFn(ctx, run)
	}
	return nil
}

func (f *fakeImportRunRepo) GetByID(ctx context.Context, id string) (*domain.ImportRun, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeImportRunRepo) Finish(ctx context.Context, id string, result domain.ImportResult) error {
	if f.finishFn != nil {
		return f.finishFn(ctx, id, result)
	}
	return nil
}

type fakePublisher struct {
	publishFn func(ctx context.Context, event queue.ImportEvent) error
}

func (f *fakePublisher) Publish(ctx context.Context, event queue.ImportEvent) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, event)
	}
	return nil
}

func (f *fakePublisher) Close() error { return nil }

// mapCache is an in-memory cache.QueryCache that stores JSON like the redis adapter.
type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	err     error
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]byte)}
}

func (c *mapCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(ctx context.Context, key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

func (c *mapCache) Invalidate(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
	return c.err
}

func (c *mapCache) InvalidatePrefix(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return c.err
}

func (c *mapCache) Patch(ctx context.Context, key string, update func(raw []byte) ([]byte, error)) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	updated, err := update(raw)
	if err != nil {
		return false, err
	}
	c.entries[key] = updated
	return true, nil
}

func (c *mapCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}
