package enums

import (
	"fmt"
	"strings"
)

// ParticipantStatus is the outcome a participant reports for its step.
type ParticipantStatus string

const (
	ParticipantStatusSuccess     ParticipantStatus = "Success"
	ParticipantStatusFailed      ParticipantStatus = "Failed"
	ParticipantStatusCompensated ParticipantStatus = "Compensated"
)

var validParticipantStatuses = []ParticipantStatus{
	ParticipantStatusSuccess,
	ParticipantStatusFailed,
	ParticipantStatusCompensated,
}

// String implements fmt.Stringer.
func (p ParticipantStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ParticipantStatus.
func (p ParticipantStatus) IsValid() bool {
	for _, candidate := range validParticipantStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseParticipantStatus converts raw input into a ParticipantStatus. Matching
// ignores case since participants are not consistent about it.
func ParseParticipantStatus(value string) (ParticipantStatus, error) {
	for _, candidate := range validParticipantStatuses {
		if strings.EqualFold(string(candidate), strings.TrimSpace(value)) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid participant status %q", value)
}
