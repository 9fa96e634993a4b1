package enums

import "fmt"

// OutboxStatus tracks whether an outbox row has been relayed to the broker.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "Pending"
	OutboxStatusSent    OutboxStatus = "Sent"
)

var validOutboxStatuses = []OutboxStatus{
	OutboxStatusPending,
	OutboxStatusSent,
}

// IsValid reports whether the value matches a known outbox status.
func (s OutboxStatus) IsValid() bool {
	for _, candidate := range validOutboxStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOutboxStatus converts raw input into OutboxStatus.
func ParseOutboxStatus(value string) (OutboxStatus, error) {
	for _, candidate := range validOutboxStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox status %q", value)
}

// EventType names the kind of business fact stored in the event log.
type EventType string

const (
	EventSagaInit         EventType = "SagaInit"
	EventBuyInRequested   EventType = "BuyInRequested"
	EventCashOutRequested EventType = "CashOutRequested"
)

var validEventTypes = []EventType{
	EventSagaInit,
	EventBuyInRequested,
	EventCashOutRequested,
}

// IsValid reports whether the value matches a known event type.
func (e EventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEventType converts raw input into EventType.
func ParseEventType(value string) (EventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
