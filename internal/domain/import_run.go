package domain

import "time"

// ImportRunStatus represents the outcome of a storage import.
type ImportRunStatus string

const (
	ImportRunStatusProcessing     ImportRunStatus = "PROCESSING"
	ImportRunStatusCompleted      ImportRunStatus = "COMPLETED"
	ImportRunStatusPartialFailure ImportRunStatus = "PARTIAL_FAILURE"
	ImportRunStatusFailed         ImportRunStatus = "FAILED"
)

func (s ImportRunStatus) String() string { return string(s) }

func (s ImportRunStatus) IsValid() bool {
	switch s {
	case ImportRunStatusProcessing, ImportRunStatusCompleted, ImportRunStatusPartialFailure, ImportRunStatusFailed:
		return true
	}
	return false
}

// ImportRun records one hand-off of accumulated work orders to storage.
type ImportRun struct {
	ID         string
	StartDate  string
	EndDate    string
	Total      int
	Imported   int
	Duplicates int
	Errors     int
	Status     ImportRunStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ImportResult is the storage collaborator's answer to an import.
type ImportResult struct {
	RunID      string `json:"runId,omitempty"`
	Success    bool   `json:"success"`
	Total      int    `json:"total"`
	Imported   int    `json:"imported"`
	Duplicates int    `json:"duplicates"`
	Errors     int    `json:"errors"`
}

// RunStatus derives the persisted run status from the import counts.
func (r ImportResult) RunStatus() ImportRunStatus {
	switch {
	case r.Errors == 0:
		return ImportRunStatusCompleted
	case r.Errors < r.Total:
		return ImportRunStatusPartialFailure
	default:
		return ImportRunStatusFailed
	}
}

// ImportRequest hands accumulated work orders to storage. RunID is optional;
// when set the import run is recorded under it.
type ImportRequest struct {
	RunID     string      `json:"runId,omitempty"`
	StartDate string      `json:"startDate"`
	EndDate   string      `json:"endDate"`
	Orders    []WorkOrder `json:"orders"`
}
