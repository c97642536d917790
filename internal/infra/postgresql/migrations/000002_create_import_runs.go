package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/fieldops/internal/repository"
	"gorm.io/gorm"
)

func createImportRunsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_import_runs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ImportRunModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_import_runs_created_at ON import_runs (created_at DESC)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ImportRunModel{})
		},
	}
}
