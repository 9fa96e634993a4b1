package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/saga-coordinator/pkg/enums"
)

// OutboxMessage is a broker message waiting to be relayed. An empty Topic
// defers routing to the relay, which resolves it from BusinessType.
type OutboxMessage struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Topic        string             `gorm:"column:topic;not null;default:''"`
	BusinessType enums.BusinessType `gorm:"column:business_type"`
	Payload      json.RawMessage    `gorm:"column:payload;type:jsonb;not null"`
	Status       enums.OutboxStatus `gorm:"column:status;not null"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
	SentAt       *time.Time         `gorm:"column:sent_at"`
	AttemptCount int                `gorm:"column:attempt_count;not null;default:0"`
	LastError    *string            `gorm:"column:last_error"`
}

func (OutboxMessage) TableName() string { return "outbox_messages" }

func (m *OutboxMessage) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Status == "" {
		m.Status = enums.OutboxStatusPending
	}
	return nil
}
