package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/fieldops/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

type WorkOrderListParams struct {
	Status   *domain.WorkOrderStatus
	DriverID *string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// Normalize clamps paging to the supported range.
func (p WorkOrderListParams) Normalize() WorkOrderListParams {
	p.Page = max(p.Page, 1)
	if p.PageSize < 1 {
		p.PageSize = defaultPageSize
	}
	p.PageSize = min(p.PageSize, maxPageSize)
	return p
}

type WorkOrderRepository interface {
	// CreateIfAbsent inserts w unless its order number is already stored and
	// reports whether a row was written.
	CreateIfAbsent(ctx context.Context, w *domain.WorkOrder, importRunID string) (bool, error)
	GetByOrderNumber(ctx context.Context, orderNumber string) (*domain.WorkOrder, error)
	List(ctx context.Context, params WorkOrderListParams) ([]domain.WorkOrder, int64, error)
	UpdateStatus(ctx context.Context, orderNumber string, status domain.WorkOrderStatus) error
	StatusSummary(ctx context.Context) ([]domain.StatusCount, error)
}

type GormWorkOrderRepo struct {
	db *gorm.DB
}

func NewGormWorkOrderRepo(db *gorm.DB) *GormWorkOrderRepo {
	return &GormWorkOrderRepo{db: db}
}

func (r *GormWorkOrderRepo) CreateIfAbsent(ctx context.Context, w *domain.WorkOrder, importRunID string) (bool, error) {
	model := workOrderModelFromDomain(w)
	if model == nil {
		return false, nil
	}
	model.ID = uuid.NewString()
	if runID := strings.TrimSpace(importRunID); runID != "" {
		model.ImportRunID = &runID
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_number"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	*w = *workOrderModelToDomain(model)
	return true, nil
}

func (r *GormWorkOrderRepo) GetByOrderNumber(ctx context.Context, orderNumber string) (*domain.WorkOrder, error) {
	var model WorkOrderModel
	err := r.db.WithContext(ctx).First(&model, "order_number = ?", orderNumber).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return workOrderModelToDomain(&model), nil
}

func (r *GormWorkOrderRepo) List(ctx context.Context, params WorkOrderListParams) ([]domain.WorkOrder, int64, error) {
	params = params.Normalize()
	query := r.db.WithContext(ctx).Model(&WorkOrderModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.DriverID != nil {
		query = query.Where("driver_id = ?", *params.DriverID)
	}
	if params.From != nil {
		query = query.Where("service_date >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("service_date <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []WorkOrderModel
	err := query.
		Order("service_date DESC NULLS LAST").
		Order("order_number ASC").
		Offset((params.Page - 1) * params.PageSize).
		Limit(params.PageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	orders := make([]domain.WorkOrder, 0, len(models))
	for i := range models {
		orders = append(orders, *workOrderModelToDomain(&models[i]))
	}

	return orders, total, nil
}

func (r *GormWorkOrderRepo) UpdateStatus(ctx context.Context, orderNumber string, status domain.WorkOrderStatus) error {
	result := r.db.WithContext(ctx).
		Model(&WorkOrderModel{}).
		Where("order_number = ?", orderNumber).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormWorkOrderRepo) StatusSummary(ctx context.Context) ([]domain.StatusCount, error) {
	var rows []struct {
		Status domain.WorkOrderStatus `gorm:"column:status"`
		Count  int                    `gorm:"column:count"`
	}
	err := r.db.WithContext(ctx).
		Model(&WorkOrderModel{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Order("status ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	summary := make([]domain.StatusCount, 0, len(rows))
	for _, row := range rows {
		summary = append(summary, domain.StatusCount{Status: row.Status, Count: row.Count})
	}
	return summary, nil
}
