package capture

// Status is the lifecycle state of a capture record.
type Status string

const (
	StatusProcessing     Status = "processing"
	StatusAnalyzed       Status = "analyzed"
	StatusCompleted      Status = "completed"
	StatusPartialFailure Status = "partial_failure"
	StatusFailed         Status = "failed"
)

// Rank orders statuses; transitions only move to a strictly higher rank.
func (s Status) Rank() int {
	switch s {
	case StatusProcessing:
		return 0
	case StatusAnalyzed:
		return 1
	case StatusCompleted, StatusPartialFailure, StatusFailed:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool { return s.Rank() == 2 }

func (s Status) Valid() bool { return s.Rank() >= 0 }

// CanTransition reports whether from -> to is a legal forward move.
// partial_failure is only reachable from analyzed.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	if to == StatusPartialFailure && from != StatusAnalyzed {
		return false
	}
	return to.Rank() > from.Rank()
}
