package enums

import "fmt"

// SagaStatus tracks the lifecycle of a saga transaction.
type SagaStatus string

const (
	SagaStatusPending      SagaStatus = "Pending"
	SagaStatusCompleted    SagaStatus = "Completed"
	SagaStatusFailed       SagaStatus = "Failed"
	SagaStatusCompensating SagaStatus = "Compensating"
	SagaStatusCompensated  SagaStatus = "Compensated"
)

var validSagaStatuses = []SagaStatus{
	SagaStatusPending,
	SagaStatusCompleted,
	SagaStatusFailed,
	SagaStatusCompensating,
	SagaStatusCompensated,
}

// sagaTransitions lists the statuses reachable from each state. Completed and
// Compensated have no outgoing edges.
var sagaTransitions = map[SagaStatus][]SagaStatus{
	SagaStatusPending:      {SagaStatusCompleted, SagaStatusCompensating},
	SagaStatusCompensating: {SagaStatusCompensated, SagaStatusFailed},
	SagaStatusFailed:       {SagaStatusCompensated},
}

// String implements fmt.Stringer.
func (s SagaStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SagaStatus.
func (s SagaStatus) IsValid() bool {
	for _, candidate := range validSagaStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s SagaStatus) IsTerminal() bool {
	return s == SagaStatusCompleted || s == SagaStatusCompensated
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
func (s SagaStatus) CanTransitionTo(next SagaStatus) bool {
	for _, candidate := range sagaTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseSagaStatus converts raw input into a SagaStatus.
func ParseSagaStatus(value string) (SagaStatus, error) {
	for _, candidate := range validSagaStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid saga status %q", value)
}
