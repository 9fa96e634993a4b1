package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSagaStatusTransitions(t *testing.T) {
	tests := []struct {
		from SagaStatus
		to   SagaStatus
		ok   bool
	}{
		{SagaStatusPending, SagaStatusCompleted, true},
		{SagaStatusPending, SagaStatusCompensating, true},
		{SagaStatusPending, SagaStatusCompensated, false},
		{SagaStatusCompensating, SagaStatusCompensated, true},
		{SagaStatusCompensating, SagaStatusFailed, true},
		{SagaStatusCompensating, SagaStatusCompleted, false},
		{SagaStatusFailed, SagaStatusCompensated, true},
		{SagaStatusFailed, SagaStatusPending, false},
		{SagaStatusCompleted, SagaStatusCompensating, false},
		{SagaStatusCompensated, SagaStatusPending, false},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.ok, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestSagaStatusTerminal(t *testing.T) {
	assert.True(t, SagaStatusCompleted.IsTerminal())
	assert.True(t, SagaStatusCompensated.IsTerminal())
	assert.False(t, SagaStatusPending.IsTerminal())
	assert.False(t, SagaStatusCompensating.IsTerminal())
	assert.False(t, SagaStatusFailed.IsTerminal())
}

func TestParseParticipantStatusIgnoresCase(t *testing.T) {
	status, err := ParseParticipantStatus("success")
	require.NoError(t, err)
	assert.Equal(t, ParticipantStatusSuccess, status)

	_, err = ParseParticipantStatus("done")
	require.Error(t, err)
}

func TestFlowForBusinessType(t *testing.T) {
	assert.Equal(t, SagaFlowBuyIn, FlowForBusinessType(BusinessTypeBuyIn))
	assert.Equal(t, SagaFlowCashOut, FlowForBusinessType(BusinessTypeCashOut))
	assert.Equal(t, SagaFlowGeneric, FlowForBusinessType(""))

	parsed, err := ParseBusinessType("buyin")
	require.NoError(t, err)
	assert.Equal(t, BusinessTypeBuyIn, parsed)
}
