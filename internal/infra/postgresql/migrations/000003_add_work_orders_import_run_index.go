package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func addWorkOrdersImportRunIndex() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_add_work_orders_import_run_index",
		Migrate: func(tx *gorm.DB) error {
			statements := []string{
				`CREATE INDEX IF NOT EXISTS idx_work_orders_import_run_id ON work_orders (import_run_id) WHERE import_run_id IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_work_orders_pending_review ON work_orders (service_date) WHERE status = 'pending_review'`,
			}
			for _, sql := range statements {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			statements := []string{
				`DROP INDEX IF EXISTS idx_work_orders_pending_review`,
				`DROP INDEX IF EXISTS idx_work_orders_import_run_id`,
			}
			for _, sql := range statements {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
	}
}
