package repository

import (
	"encoding/json"
	"time"

	"github.com/kursadbilgin/fieldops/internal/domain"
)

// WorkOrderModel is the persistence model for the work_orders table.
type WorkOrderModel struct {
	ID                 string                 `gorm:"type:uuid;primaryKey"`
	OrderNumber        string                 `gorm:"type:varchar(100);not null;uniqueIndex"`
	Status             domain.WorkOrderStatus `gorm:"type:varchar(20);not null"`
	ImportRunID        *string                `gorm:"type:uuid"`
	ServiceDate        *time.Time             `gorm:"type:timestamptz"`
	EndTime            *time.Time             `gorm:"type:timestamptz"`
	ServiceNotes       string                 `gorm:"type:text;not null;default:''"`
	TechNotes          string                 `gorm:"type:text;not null;default:''"`
	LocationName       string                 `gorm:"type:varchar(255);not null;default:''"`
	Address            string                 `gorm:"type:varchar(255);not null;default:''"`
	City               string                 `gorm:"type:varchar(100);not null;default:''"`
	State              string                 `gorm:"type:varchar(50);not null;default:''"`
	Zip                string                 `gorm:"type:varchar(20);not null;default:''"`
	DriverID           string                 `gorm:"type:varchar(100);not null;default:''"`
	DriverName         string                 `gorm:"type:varchar(255);not null;default:''"`
	HasImages          bool                   `gorm:"not null;default:false"`
	SignatureURL       string                 `gorm:"type:text;not null;default:''"`
	TrackingURL        string                 `gorm:"type:text;not null;default:''"`
	CompletionStatus   string                 `gorm:"type:varchar(20);not null;default:''"`
	SearchResponse     json.RawMessage        `gorm:"type:jsonb"`
	CompletionResponse json.RawMessage        `gorm:"type:jsonb"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (WorkOrderModel) TableName() string {
	return "work_orders"
}

// ImportRunModel is the persistence model for import_runs.
type ImportRunModel struct {
	ID         string                 `gorm:"type:uuid;primaryKey"`
	StartDate  string                 `gorm:"type:varchar(10);not null"`
	EndDate    string                 `gorm:"type:varchar(10);not null"`
	Total      int                    `gorm:"not null;default:0"`
	Imported   int                    `gorm:"not null;default:0"`
	Duplicates int                    `gorm:"not null;default:0"`
	Errors     int                    `gorm:"not null;default:0"`
	Status     domain.ImportRunStatus `gorm:"type:varchar(20);not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (ImportRunModel) TableName() string {
	return "import_runs"
}

func workOrderModelFromDomain(w *domain.WorkOrder) *WorkOrderModel {
	if w == nil {
		return nil
	}

	return &WorkOrderModel{
		OrderNumber:        w.OrderNumber,
		Status:             w.Status,
		ServiceDate:        w.ServiceDate,
		EndTime:            w.EndTime,
		ServiceNotes:       w.ServiceNotes,
		TechNotes:          w.TechNotes,
		LocationName:       w.Location.Name,
		Address:            w.Location.Address,
		City:               w.Location.City,
		State:              w.Location.State,
		Zip:                w.Location.Zip,
		DriverID:           w.Driver.ID,
		DriverName:         w.Driver.Name,
		HasImages:          w.HasImages,
		SignatureURL:       w.SignatureURL,
		TrackingURL:        w.TrackingURL,
		CompletionStatus:   w.CompletionStatus,
		SearchResponse:     nullableJSON(w.SearchResponse),
		CompletionResponse: nullableJSON(w.CompletionResponse),
	}
}

func workOrderModelToDomain(m *WorkOrderModel) *domain.WorkOrder {
	if m == nil {
		return nil
	}

	importedAt := m.CreatedAt
	updatedAt := m.UpdatedAt

	return &domain.WorkOrder{
		OrderNumber:  m.OrderNumber,
		Status:       m.Status,
		ServiceDate:  m.ServiceDate,
		EndTime:      m.EndTime,
		ServiceNotes: m.ServiceNotes,
		TechNotes:    m.TechNotes,
		Location: domain.Location{
			Name:    m.LocationName,
			Address: m.Address,
			City:    m.City,
			State:   m.State,
			Zip:     m.Zip,
		},
		Driver: domain.Driver{
			ID:   m.DriverID,
			Name: m.DriverName,
		},
		HasImages:          m.HasImages,
		SignatureURL:       m.SignatureURL,
		TrackingURL:        m.TrackingURL,
		CompletionStatus:   m.CompletionStatus,
		SearchResponse:     m.SearchResponse,
		CompletionResponse: m.CompletionResponse,
		ImportedAt:         &importedAt,
		UpdatedAt:          &updatedAt,
	}
}

func importRunModelFromDomain(r *domain.ImportRun) *ImportRunModel {
	if r == nil {
		return nil
	}

	return &ImportRunModel{
		ID:         r.ID,
		StartDate:  r.StartDate,
		EndDate:    r.EndDate,
		Total:      r.Total,
		Imported:   r.Imported,
		Duplicates: r.Duplicates,
		Errors:     r.Errors,
		Status:     r.Status,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func importRunModelToDomain(m *ImportRunModel) *domain.ImportRun {
	if m == nil {
		return nil
	}

	return &domain.ImportRun{
		ID:         m.ID,
		StartDate:  m.StartDate,
		EndDate:    m.EndDate,
		Total:      m.Total,
		Imported:   m.Imported,
		Duplicates: m.Duplicates,
		Errors:     m.Errors,
		Status:     m.Status,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// nullableJSON stores empty or "null" payloads as SQL NULL.
func nullableJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}
