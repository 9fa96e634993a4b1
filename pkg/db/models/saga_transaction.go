package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/saga-coordinator/pkg/db/types"
	"github.com/angelmondragon/saga-coordinator/pkg/enums"
)

// SagaTransaction is the coordinator's authoritative record of one saga.
type SagaTransaction struct {
	ID                      uuid.UUID         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TransactionID           string            `gorm:"column:transaction_id;not null;uniqueIndex" json:"transactionId"`
	BusinessID              string            `gorm:"column:business_id" json:"businessId,omitempty"`
	Flow                    enums.SagaFlow    `gorm:"column:flow;not null" json:"flow"`
	Status                  enums.SagaStatus  `gorm:"column:status;not null" json:"status"`
	ExpectedParticipants    dbtypes.StringSet `gorm:"column:expected_participants;type:jsonb;not null" json:"expectedParticipants"`
	CompletedParticipants   dbtypes.StringSet `gorm:"column:completed_participants;type:jsonb;not null" json:"completedParticipants"`
	FailedParticipants      dbtypes.StringSet `gorm:"column:failed_participants;type:jsonb;not null" json:"failedParticipants"`
	CompensatedParticipants dbtypes.StringSet `gorm:"column:compensated_participants;type:jsonb;not null" json:"compensatedParticipants"`
	Version                 int               `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt               time.Time         `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt               time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (SagaTransaction) TableName() string { return "saga_transactions" }

func (s *SagaTransaction) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Version == 0 {
		s.Version = 1
	}
	return nil
}
