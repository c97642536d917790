package domain

// Phase is the derived state of a pipeline run.
type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhaseLoading  Phase = "LOADING"
	PhasePaused   Phase = "PAUSED"
	PhaseComplete Phase = "COMPLETE"
	PhaseFailed   Phase = "FAILED"
)

func (p Phase) String() string { return string(p) }

// ProgressState is a snapshot of a pipeline run.
type ProgressState struct {
	RunID             string  `json:"runId,omitempty"`
	IsLoading         bool    `json:"isLoading"`
	IsPaused          bool    `json:"isPaused"`
	IsComplete        bool    `json:"isComplete"`
	CurrentPage       int     `json:"currentPage"`
	TotalPages        *int    `json:"totalPages"`
	ProcessedOrders   int     `json:"processedOrders"`
	TotalOrders       *int    `json:"totalOrders"`
	Progress          float64 `json:"progress"`
	ContinuationToken *string `json:"continuationToken"`
	Error             *string `json:"error"`
}

// Phase derives the state-machine position from the status flags.
func (s ProgressState) Phase() Phase {
	switch {
	case s.IsComplete:
		return PhaseComplete
	case s.IsPaused:
		return PhasePaused
	case s.IsLoading:
		return PhaseLoading
	case s.Error != nil:
		return PhaseFailed
	default:
		return PhaseIdle
	}
}
