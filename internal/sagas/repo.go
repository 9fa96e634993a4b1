package sagas

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/saga-coordinator/pkg/db"
	"github.com/angelmondragon/saga-coordinator/pkg/db/models"
)

var (
	ErrNotFound        = errors.New("saga not found")
	ErrAlreadyExists   = errors.New("saga already exists")
	ErrVersionConflict = errors.New("saga version conflict")
)

const transactionIDConstraint = "transaction_id"

// Repository persists saga transactions. Updates are compare-and-swap on the
// version column.
type Repository interface {
	Create(ctx context.Context, saga *models.SagaTransaction) error
	GetByTransactionID(ctx context.Context, transactionID string) (*models.SagaTransaction, error)
	UpdateIfVersion(ctx context.Context, saga *models.SagaTransaction, expectedVersion int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a saga repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) Create(ctx context.Context, saga *models.SagaTransaction) error {
	if err := r.db.WithContext(ctx).Create(saga).Error; err != nil {
		if db.IsUniqueViolation(err, transactionIDConstraint) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *repository) GetByTransactionID(ctx context.Context, transactionID string) (*models.SagaTransaction, error) {
	var saga models.SagaTransaction
	if err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		First(&saga).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &saga, nil
}

// UpdateIfVersion writes the mutable columns only when the stored version still
// equals expectedVersion. On success saga.Version is bumped to match the row.
func (r *repository) UpdateIfVersion(ctx context.Context, saga *models.SagaTransaction, expectedVersion int) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.SagaTransaction{}).
		Where("transaction_id = ? AND version = ?", saga.TransactionID, expectedVersion).
		Updates(map[string]any{
			"status":                   saga.Status,
			"completed_participants":   saga.CompletedParticipants,
			"failed_participants":      saga.FailedParticipants,
			"compensated_participants": saga.CompensatedParticipants,
			"version":                  expectedVersion + 1,
			"updated_at":               now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	saga.Version = expectedVersion + 1
	saga.UpdatedAt = now
	return nil
}
