package sagas

import (
	"github.com/angelmondragon/saga-coordinator/pkg/db/models"
	"github.com/angelmondragon/saga-coordinator/pkg/enums"
)

type eventDecision struct {
	changed         bool
	transitioned    bool
	compensate      bool
	ignoredTerminal bool
	unexpected      bool
}

// applyEvent records a participant outcome on s and advances its status.
//
//	Pending       + any failure                    -> Compensating (compensate)
//	Pending       + every expected success          -> Completed
//	Compensating  + every expected compensated      -> Compensated
//	Failed        + every expected compensated      -> Compensated
func applyEvent(s *models.SagaTransaction, participant string, status enums.ParticipantStatus) eventDecision {
	if s.Status.IsTerminal() {
		return eventDecision{ignoredTerminal: true}
	}
	if !s.ExpectedParticipants.Has(participant) {
		return eventDecision{unexpected: true}
	}

	var d eventDecision
	switch status {
	case enums.ParticipantStatusSuccess:
		d.changed = s.CompletedParticipants.Add(participant)
	case enums.ParticipantStatusFailed:
		d.changed = s.FailedParticipants.Add(participant)
	case enums.ParticipantStatusCompensated:
		d.changed = s.CompensatedParticipants.Add(participant)
	}

	switch s.Status {
	case enums.SagaStatusPending:
		if len(s.FailedParticipants) > 0 {
			d.transitioned = transition(s, enums.SagaStatusCompensating)
			d.compensate = d.transitioned
		} else if s.CompletedParticipants.ContainsAll(s.ExpectedParticipants) {
			d.transitioned = transition(s, enums.SagaStatusCompleted)
		}
	case enums.SagaStatusCompensating, enums.SagaStatusFailed:
		if s.CompensatedParticipants.ContainsAll(s.ExpectedParticipants) {
			d.transitioned = transition(s, enums.SagaStatusCompensated)
		}
	}
	d.changed = d.changed || d.transitioned
	return d
}
