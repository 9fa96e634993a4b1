package sagas

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	ParticipantCTA         = "service-cta"
	ParticipantGenesis     = "service-genesis"
	ParticipantPerfectCage = "service-perfectcage"
)

// TransactionRequest starts a saga. TransactionID is generated when empty.
type TransactionRequest struct {
	TransactionID string          `json:"transactionId" validate:"omitempty,max=128"`
	BusinessID    string          `json:"businessId" validate:"required,max=128"`
	BusinessType  string          `json:"businessType,omitempty" validate:"omitempty,max=32"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// SagaEvent is the outcome a participant reports for its step. Older
// participants send serviceName instead of participantName.
type SagaEvent struct {
	TransactionID   string    `json:"transactionId" validate:"required"`
	ParticipantName string    `json:"participantName,omitempty"`
	ServiceName     string    `json:"serviceName,omitempty"`
	Status          string    `json:"status" validate:"required"`
	Message         string    `json:"message,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Participant returns the reporting participant id.
func (e SagaEvent) Participant() string {
	if name := strings.TrimSpace(e.ParticipantName); name != "" {
		return name
	}
	return strings.TrimSpace(e.ServiceName)
}

type participantRequest struct {
	TransactionID string          `json:"transactionId"`
	BusinessID    string          `json:"businessId"`
	BusinessType  string          `json:"businessType,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

type compensationRequest struct {
	TransactionID string `json:"transactionId"`
}
