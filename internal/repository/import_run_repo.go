package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/fieldops/internal/domain"
	"gorm.io/gorm"
)

type ImportRunRepository interface {
	Create(ctx context.Context, run *domain.ImportRun) error
	GetByID(ctx context.Context, id string) (*domain.ImportRun, error)
	Finish(ctx context.Context, id string, result domain.ImportResult) error
}

type GormImportRunRepo struct {
	db *gorm.DB
}

func NewGormImportRunRepo(db *gorm.DB) *GormImportRunRepo {
	return &GormImportRunRepo{db: db}
}

func (r *GormImportRunRepo) Create(ctx context.Context, run *domain.ImportRun) error {
	model := importRunModelFromDomain(run)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if run != nil {
		*run = *importRunModelToDomain(model)
	}
	return nil
}

func (r *GormImportRunRepo) GetByID(ctx context.Context, id string) (*domain.ImportRun, error) {
	var model ImportRunModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return importRunModelToDomain(&model), nil
}

// Finish stores the final counts and derived status of a run.
func (r *GormImportRunRepo) Finish(ctx context.Context, id string, result domain.ImportResult) error {
	res := r.db.WithContext(ctx).
		Model(&ImportRunModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"total":      result.Total,
			"imported":   result.Imported,
			"duplicates": result.Duplicates,
			"errors":     result.Errors,
			"status":     result.RunStatus(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
