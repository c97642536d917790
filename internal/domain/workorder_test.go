package domain

import (
	"errors"
	"testing"
)

func TestParseWorkOrderStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    WorkOrderStatus
		wantErr bool
	}{
		{name: "valid lowercase", input: "approved", want: WorkOrderStatusApproved},
		{name: "valid uppercase with spaces", input: " FLAGGED ", want: WorkOrderStatusFlagged},
		{name: "invalid", input: "archived", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseWorkOrderStatus(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseWorkOrderStatus() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseWorkOrderStatus() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseWorkOrderStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestStatusFromCompletion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  WorkOrderStatus
	}{
		{input: "", want: WorkOrderStatusImported},
		{input: "success", want: WorkOrderStatusCompleted},
		{input: "SUCCESS", want: WorkOrderStatusCompleted},
		{input: "failed", want: WorkOrderStatusRejected},
		{input: "attempted", want: WorkOrderStatusImported},
	}

	for _, tt := range tests {
		if got := StatusFromCompletion(tt.input); got != tt.want {
			t.Errorf("StatusFromCompletion(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestBatchRequestValidate(t *testing.T) {
	t.Parallel()

	base := BatchRequest{
		StartDate:     "2024-01-01",
		EndDate:       "2024-01-02",
		ValidStatuses: []string{"success"},
	}

	tests := []struct {
		name    string
		mutate  func(*BatchRequest)
		wantErr bool
	}{
		{name: "valid request", mutate: func(r *BatchRequest) {}},
		{name: "same day range", mutate: func(r *BatchRequest) { r.EndDate = r.StartDate }},
		{name: "start after end", mutate: func(r *BatchRequest) { r.StartDate = "2024-02-01" }, wantErr: true},
		{name: "malformed date", mutate: func(r *BatchRequest) { r.EndDate = "01/02/2024" }, wantErr: true},
		{name: "no statuses", mutate: func(r *BatchRequest) { r.ValidStatuses = nil }, wantErr: true},
		{name: "blank statuses", mutate: func(r *BatchRequest) { r.ValidStatuses = []string{" "} }, wantErr: true},
		{name: "negative batch size", mutate: func(r *BatchRequest) { r.BatchSize = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			current := base
			current.ValidStatuses = append([]string(nil), base.ValidStatuses...)
			tt.mutate(&current)

			err := current.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Validate() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestBatchResponseHasMore(t *testing.T) {
	t.Parallel()

	token := "tok1"
	empty := " "

	tests := []struct {
		name string
		resp *BatchResponse
		want bool
	}{
		{name: "nil response", resp: nil, want: false},
		{name: "token and not complete", resp: &BatchResponse{ContinuationToken: &token}, want: true},
		{name: "complete wins over token", resp: &BatchResponse{ContinuationToken: &token, IsComplete: true}, want: false},
		{name: "missing token stalls", resp: &BatchResponse{}, want: false},
		{name: "blank token stalls", resp: &BatchResponse{ContinuationToken: &empty}, want: false},
	}

	for _, tt := range tests {
		if got := tt.resp.HasMore(); got != tt.want {
			t.Errorf("%s: HasMore() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestProgressStatePhase(t *testing.T) {
	t.Parallel()

	msg := "boom"
	tests := []struct {
		name  string
		state ProgressState
		want  Phase
	}{
		{name: "idle", state: ProgressState{}, want: PhaseIdle},
		{name: "loading", state: ProgressState{IsLoading: true}, want: PhaseLoading},
		{name: "loading with retry message", state: ProgressState{IsLoading: true, Error: &msg}, want: PhaseLoading},
		{name: "paused", state: ProgressState{IsPaused: true}, want: PhasePaused},
		{name: "complete", state: ProgressState{IsComplete: true}, want: PhaseComplete},
		{name: "failed", state: ProgressState{Error: &msg}, want: PhaseFailed},
	}

	for _, tt := range tests {
		if got := tt.state.Phase(); got != tt.want {
			t.Errorf("%s: Phase() = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestImportResultRunStatus(t *testing.T) {
	t.Parallel()

	if got := (ImportResult{Total: 3, Imported: 3}).RunStatus(); got != ImportRunStatusCompleted {
		t.Fatalf("RunStatus() = %s, want COMPLETED", got)
	}
	if got := (ImportResult{Total: 3, Imported: 2, Errors: 1}).RunStatus(); got != ImportRunStatusPartialFailure {
		t.Fatalf("RunStatus() = %s, want PARTIAL_FAILURE", got)
	}
	if got := (ImportResult{Total: 2, Errors: 2}).RunStatus(); got != ImportRunStatusFailed {
		t.Fatalf("RunStatus() = %s, want FAILED", got)
	}
}
