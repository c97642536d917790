package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/fieldops/internal/repository"
	"gorm.io/gorm"
)

func createWorkOrdersTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_work_orders",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.WorkOrderModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_work_orders_status ON work_orders (status)`,
				`CREATE INDEX IF NOT EXISTS idx_work_orders_service_date ON work_orders (service_date DESC NULLS LAST)`,
				`CREATE INDEX IF NOT EXISTS idx_work_orders_driver_id ON work_orders (driver_id) WHERE driver_id <> ''`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.WorkOrderModel{})
		},
	}
}
