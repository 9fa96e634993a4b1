package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/saga-coordinator/pkg/enums"
)

// EventRecord is an append-only business fact written alongside its outbox row.
type EventRecord struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	EventType    enums.EventType    `gorm:"column:event_type;not null" json:"eventType"`
	BusinessType enums.BusinessType `gorm:"column:business_type" json:"businessType,omitempty"`
	AggregateID  string             `gorm:"column:aggregate_id;not null" json:"aggregateId"`
	EventData    json.RawMessage    `gorm:"column:event_data;type:jsonb;not null" json:"eventData"`
	Timestamp    time.Time          `gorm:"column:timestamp;not null" json:"timestamp"`
}

func (EventRecord) TableName() string { return "event_records" }

func (e *EventRecord) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return nil
}
