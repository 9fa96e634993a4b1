package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/saga-coordinator/pkg/db/models"
	"github.com/angelmondragon/saga-coordinator/pkg/enums"
)

const maxLastErrorLen = 1024

// Repository persists outbox messages.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// InsertTx writes msg inside the caller's transaction.
func (r *Repository) InsertTx(tx *gorm.DB, msg *models.OutboxMessage) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if msg == nil {
		return errors.New("outbox message required")
	}
	msg.Status = enums.OutboxStatusPending
	return tx.Create(msg).Error
}

// FetchPending returns up to limit messages still waiting to be relayed. No
// ordering is promised to consumers; rows come oldest first for fairness.
func (r *Repository) FetchPending(ctx context.Context, limit int) ([]models.OutboxMessage, error) {
	var rows []models.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.OutboxStatusPending).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkSent flips a Pending row to Sent. It reports false when the row was no
// longer Pending, which happens when two relays raced on the same batch.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OutboxMessage{}).
		Where("id = ? AND status = ?", id, enums.OutboxStatusPending).
		Updates(map[string]any{
			"status":  enums.OutboxStatusSent,
			"sent_at": sentAt.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkFailed records a failed publish attempt. The row stays Pending.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if len(msg) > maxLastErrorLen {
		msg = msg[:maxLastErrorLen]
	}
	return r.db.WithContext(ctx).
		Model(&models.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    msg,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}
