package outbox

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/saga-coordinator/pkg/db/models"
)

// EventRepository persists the append-only event log.
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// InsertTx writes event inside the caller's transaction.
func (r *EventRepository) InsertTx(tx *gorm.DB, event *models.EventRecord) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if event == nil {
		return errors.New("event record required")
	}
	return tx.Create(event).Error
}

// ListByAggregate returns the events recorded for a transaction, oldest first.
func (r *EventRepository) ListByAggregate(ctx context.Context, aggregateID string) ([]models.EventRecord, error) {
	var rows []models.EventRecord
	err := r.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("timestamp ASC").
		Find(&rows).Error
	return rows, err
}
