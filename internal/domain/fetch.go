package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of fetch date bounds.
const DateLayout = "2006-01-02"

// BatchRequest holds the parameters of a single page fetch.
type BatchRequest struct {
	StartDate         string   `json:"startDate"`
	EndDate           string   `json:"endDate"`
	ValidStatuses     []string `json:"validStatuses"`
	BatchSize         int      `json:"batchSize,omitempty"`
	ContinuationToken *string  `json:"continuationToken"`
}

func (r BatchRequest) Validate() error {
	start, err := time.Parse(DateLayout, strings.TrimSpace(r.StartDate))
	if err != nil {
		return fmt.Errorf("%w: startDate must be YYYY-MM-DD", ErrValidation)
	}
	end, err := time.Parse(DateLayout, strings.TrimSpace(r.EndDate))
	if err != nil {
		return fmt.Errorf("%w: endDate must be YYYY-MM-DD", ErrValidation)
	}
	if start.After(end) {
		return fmt.Errorf("%w: startDate %s is after endDate %s", ErrValidation, r.StartDate, r.EndDate)
	}

	hasStatus := false
	for _, s := range r.ValidStatuses {
		if strings.TrimSpace(s) != "" {
			hasStatus = true
			break
		}
	}
	if !hasStatus {
		return fmt.Errorf("%w: at least one valid status is required", ErrValidation)
	}
	if r.BatchSize < 0 {
		return fmt.Errorf("%w: batchSize must be positive", ErrValidation)
	}
	return nil
}

// BatchResponse is one page returned by the order-search API. Orders keep
// their raw JSON so the normalizer sees the upstream shape untouched.
type BatchResponse struct {
	Orders            [][]byte
	TotalOrders       *int
	CurrentPage       *int
	TotalPages        *int
	ContinuationToken *string
	IsComplete        bool
}

// HasMore reports whether another page can be requested. A response
// without a continuation token cannot be followed, whatever IsComplete says.
func (r *BatchResponse) HasMore() bool {
	if r == nil || r.IsComplete {
		return false
	}
	return r.ContinuationToken != nil && strings.TrimSpace(*r.ContinuationToken) != ""
}

// FetchParams are the user-facing inputs of a pipeline run.
type FetchParams struct {
	StartDate     string   `json:"startDate"`
	EndDate       string   `json:"endDate"`
	ValidStatuses []string `json:"validStatuses"`
	BatchSize     int      `json:"batchSize,omitempty"`
}

// Request builds the batch request for the given continuation token.
func (p FetchParams) Request(token *string) BatchRequest {
	statuses := make([]string, len(p.ValidStatuses))
	copy(statuses, p.ValidStatuses)

	return BatchRequest{
		StartDate:         p.StartDate,
		EndDate:           p.EndDate,
		ValidStatuses:     statuses,
		BatchSize:         p.BatchSize,
		ContinuationToken: token,
	}
}
