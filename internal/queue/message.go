package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/fieldops/internal/domain"
)

// ImportEvent announces that a batch of work orders has been written.
type ImportEvent struct {
	RunID         string    `json:"runId"`
	CorrelationID string    `json:"correlationId,omitempty"`
	StartDate     string    `json:"startDate"`
	EndDate       string    `json:"endDate"`
	Total         int       `json:"total"`
	Imported      int       `json:"imported"`
	Duplicates    int       `json:"duplicates"`
	Errors        int       `json:"errors"`
	OccurredAt    time.Time `json:"occurredAt"`
}

func NewImportEvent(req domain.ImportRequest, result domain.ImportResult, correlationID string, at time.Time) ImportEvent {
	return ImportEvent{
		RunID:         result.RunID,
		CorrelationID: correlationID,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		Total:         result.Total,
		Imported:      result.Imported,
		Duplicates:    result.Duplicates,
		Errors:        result.Errors,
		OccurredAt:    at.UTC(),
	}
}

func (e ImportEvent) Validate() error {
	if strings.TrimSpace(e.RunID) == "" {
		return fmt.Errorf("runId is required")
	}
	if e.Total < 0 || e.Imported < 0 || e.Duplicates < 0 || e.Errors < 0 {
		return fmt.Errorf("counts must not be negative")
	}
	if e.Imported+e.Duplicates+e.Errors > e.Total {
		return fmt.Errorf("counts exceed total %d", e.Total)
	}
	return nil
}

// HasNewOrders reports whether readers of cached queries need to refresh.
func (e ImportEvent) HasNewOrders() bool {
	return e.Imported > 0
}
