package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kursadbilgin/fieldops/internal/cache"
	"github.com/kursadbilgin/fieldops/internal/domain"
	"github.com/kursadbilgin/fieldops/internal/observability"
	"github.com/kursadbilgin/fieldops/internal/repository"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

const (
	cacheScopeOrders = "workorders"
	cacheQueryGet    = "get"
	cacheQueryList   = "list"
	cacheQuerySum    = "summary"
)

// reviewStatuses are the statuses a reviewer may set.
var reviewStatuses = map[domain.WorkOrderStatus]struct{}{
	domain.WorkOrderStatusPendingReview: {},
	domain.WorkOrderStatusApproved:      {},
	domain.WorkOrderStatusFlagged:       {},
	domain.WorkOrderStatusRejected:      {},
}

type WorkOrderPage struct {
	Items    []domain.WorkOrder `json:"items"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"pageSize"`
}

// WorkOrderService serves the quality-control views over stored work orders.
// Reads go through the query cache; cache failures fall back to the store.
type WorkOrderService struct {
	orders  repository.WorkOrderRepository
	cache   cache.QueryCache
	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewWorkOrderService(
	orders repository.WorkOrderRepository,
	queryCache cache.QueryCache,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*WorkOrderService, error) {
	if orders == nil {
		return nil, fmt.Errorf("work order repository is required")
	}
	if queryCache == nil {
		queryCache = cache.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkOrderService{
		orders:  orders,
		cache:   queryCache,
		metrics: metrics,
		logger:  logger,
	}, nil
}

func (s *WorkOrderService) Get(ctx context.Context, orderNumber string) (*domain.WorkOrder, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return nil, fmt.Errorf("%w: order number is required", domain.ErrValidation)
	}

	key := orderCacheKey(orderNumber)
	var cached domain.WorkOrder
	if s.lookup(ctx, cacheQueryGet, key, &cached) {
		return &cached, nil
	}

	order, err := s.orders.GetByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, order)
	return order, nil
}

func (s *WorkOrderService) List(ctx context.Context, params repository.WorkOrderListParams) (*WorkOrderPage, error) {
	params = params.Normalize()
	if params.From != nil && params.To != nil && params.From.After(*params.To) {
		return nil, fmt.Errorf("%w: from must not be after to", domain.ErrValidation)
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, fmt.Errorf("%w: invalid status %q", domain.ErrValidation, *params.Status)
	}

	key := listCacheKey(params)
	var cached WorkOrderPage
	if s.lookup(ctx, cacheQueryList, key, &cached) {
		return &cached, nil
	}

	items, total, err := s.orders.List(ctx, params)
	if err != nil {
		return nil, err
	}

	page := &WorkOrderPage{
		Items:    items,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}
	s.store(ctx, key, page)
	return page, nil
}

func (s *WorkOrderService) Summary(ctx context.Context) ([]domain.StatusCount, error) {
	key := summaryCacheKey()
	var cached []domain.StatusCount
	if s.lookup(ctx, cacheQuerySum, key, &cached) {
		return cached, nil
	}

	summary, err := s.orders.StatusSummary(ctx)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, summary)
	return summary, nil
}

// UpdateStatus records a review decision. The cached order is patched in
// place and every list and summary entry is dropped.
func (s *WorkOrderService) UpdateStatus(ctx context.Context, orderNumber string, rawStatus string) (*domain.WorkOrder, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return nil, fmt.Errorf("%w: order number is required", domain.ErrValidation)
	}
	status, err := domain.ParseWorkOrderStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	if _, ok := reviewStatuses[status]; !ok {
		return nil, fmt.Errorf("%w: status %q cannot be set by review", domain.ErrValidation, status)
	}

	if err := s.orders.UpdateStatus(ctx, orderNumber, status); err != nil {
		return nil, err
	}

	key := orderCacheKey(orderNumber)
	if _, err := s.cache.Patch(ctx, key, func(raw []byte) ([]byte, error) {
		return sjson.SetBytes(raw, "status", status)
	}); err != nil {
		s.logger.Warn("failed to patch cached work order", zap.String("orderNumber", orderNumber), zap.Error(err))
		if invErr := s.cache.Invalidate(ctx, key); invErr != nil {
			s.logger.Warn("failed to drop cached work order", zap.String("orderNumber", orderNumber), zap.Error(invErr))
		}
	}
	if err := s.InvalidateQueries(ctx); err != nil {
		s.logger.Warn("failed to invalidate work order queries", zap.Error(err))
	}

	return s.Get(ctx, orderNumber)
}

// InvalidateQueries drops cached list and summary results.
func (s *WorkOrderService) InvalidateQueries(ctx context.Context) error {
	return errors.Join(
		s.cache.InvalidatePrefix(ctx, cache.Key(cacheScopeOrders, cacheQueryList)),
		s.cache.Invalidate(ctx, summaryCacheKey()),
	)
}

func (s *WorkOrderService) lookup(ctx context.Context, query string, key string, dest any) bool {
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		s.logger.Warn("query cache read failed", zap.String("key", key), zap.Error(err))
		hit = false
	}
	s.metrics.ObserveCacheLookup(query, hit)
	return hit
}

func (s *WorkOrderService) store(ctx context.Context, key string, value any) {
	if err := s.cache.Set(ctx, key, value); err != nil {
		s.logger.Warn("query cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func orderCacheKey(orderNumber string) string {
	return cache.Key(cacheScopeOrders, cacheQueryGet, orderNumber)
}

func summaryCacheKey() string {
	return cache.Key(cacheScopeOrders, cacheQuerySum)
}

func listCacheKey(p repository.WorkOrderListParams) string {
	status, driver := "", ""
	if p.Status != nil {
		status = p.Status.String()
	}
	if p.DriverID != nil {
		driver = *p.DriverID
	}

	return cache.Key(
		cacheScopeOrders, cacheQueryList,
		"s="+status,
		"d="+driver,
		"f="+formatCacheTime(p.From),
		"t="+formatCacheTime(p.To),
		"p="+strconv.Itoa(p.Page),
		"n="+strconv.Itoa(p.PageSize),
	)
}

func formatCacheTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return strconv.FormatInt(t.Unix(), 10)
}
