package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WorkOrderStatus is the quality-control state of a work order.
type WorkOrderStatus string

const (
	WorkOrderStatusImported      WorkOrderStatus = "imported"
	WorkOrderStatusPendingReview WorkOrderStatus = "pending_review"
	WorkOrderStatusCompleted     WorkOrderStatus = "completed"
	WorkOrderStatusApproved      WorkOrderStatus = "approved"
	WorkOrderStatusFlagged       WorkOrderStatus = "flagged"
	WorkOrderStatusRejected      WorkOrderStatus = "rejected"
)

func (s WorkOrderStatus) String() string { return string(s) }

func (s WorkOrderStatus) IsValid() bool {
	switch s {
	case WorkOrderStatusImported, WorkOrderStatusPendingReview, WorkOrderStatusCompleted,
		WorkOrderStatusApproved, WorkOrderStatusFlagged, WorkOrderStatusRejected:
		return true
	}
	return false
}

func ParseWorkOrderStatus(s string) (WorkOrderStatus, error) {
	st := WorkOrderStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid work order status %q", ErrValidation, s)
	}
	return st, nil
}

// Completion statuses reported by the routing API.
const (
	CompletionStatusSuccess = "success"
	CompletionStatusFailed  = "failed"
)

// StatusFromCompletion maps an upstream completion status onto the QC enumeration.
func StatusFromCompletion(completionStatus string) WorkOrderStatus {
	switch strings.ToLower(strings.TrimSpace(completionStatus)) {
	case CompletionStatusSuccess:
		return WorkOrderStatusCompleted
	case CompletionStatusFailed:
		return WorkOrderStatusRejected
	default:
		return WorkOrderStatusImported
	}
}

// Location is the service address of a work order.
type Location struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
}

// Driver identifies the technician that serviced the order.
type Driver struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// WorkOrder is the canonical record produced from a raw routing API order.
type WorkOrder struct {
	OrderNumber        string          `json:"order_number"`
	Status             WorkOrderStatus `json:"status"`
	ServiceDate        *time.Time      `json:"service_date"`
	EndTime            *time.Time      `json:"end_time"`
	ServiceNotes       string          `json:"service_notes"`
	TechNotes          string          `json:"tech_notes"`
	Location           Location        `json:"location"`
	Driver             Driver          `json:"driver"`
	HasImages          bool            `json:"has_images"`
	SignatureURL       string          `json:"signature_url"`
	TrackingURL        string          `json:"tracking_url"`
	CompletionStatus   string          `json:"completion_status"`
	SearchResponse     json.RawMessage `json:"search_response"`
	CompletionResponse json.RawMessage `json:"completion_response"`
	ImportedAt         *time.Time      `json:"imported_at,omitempty"`
	UpdatedAt          *time.Time      `json:"updated_at,omitempty"`
}

func (w *WorkOrder) Validate() error {
	if strings.TrimSpace(w.OrderNumber) == "" {
		return fmt.Errorf("%w: order number is required", ErrValidation)
	}
	if !w.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, w.Status)
	}
	return nil
}

// StatusCount is one row of the work-order KPI summary.
type StatusCount struct {
	Status WorkOrderStatus `json:"status"`
	Count  int             `json:"count"`
}
