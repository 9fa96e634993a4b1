package outbox

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/saga-coordinator/pkg/db/models"
	"github.com/angelmondragon/saga-coordinator/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventInserter interface {
	InsertTx(tx *gorm.DB, event *models.EventRecord) error
}

type messageInserter interface {
	InsertTx(tx *gorm.DB, msg *models.OutboxMessage) error
}

// Writer stores a business event and its outbound message atomically.
type Writer struct {
	db       txRunner
	events   eventInserter
	messages messageInserter
	logg     *logger.Logger
}

func NewWriter(db txRunner, events eventInserter, messages messageInserter, logg *logger.Logger) (*Writer, error) {
	if db == nil {
		return nil, errors.New("database client is required")
	}
	if events == nil {
		return nil, errors.New("event repository is required")
	}
	if messages == nil {
		return nil, errors.New("outbox repository is required")
	}
	return &Writer{db: db, events: events, messages: messages, logg: logg}, nil
}

// SaveEventWithOutbox inserts both rows in one transaction. Either both are
// committed or neither is; the error is returned without retrying.
func (w *Writer) SaveEventWithOutbox(ctx context.Context, event *models.EventRecord, msg *models.OutboxMessage) error {
	if event == nil || msg == nil {
		return errors.New("event and outbox message are required")
	}
	err := w.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := w.events.InsertTx(tx, event); err != nil {
			return fmt.Errorf("insert event record: %w", err)
		}
		if err := w.messages.InsertTx(tx, msg); err != nil {
			return fmt.Errorf("insert outbox message: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if w.logg != nil {
		logCtx := w.logg.WithFields(ctx, map[string]any{
			"event_id":      event.ID.String(),
			"event_type":    event.EventType,
			"aggregate_id":  event.AggregateID,
			"outbox_id":     msg.ID.String(),
			"business_type": msg.BusinessType,
			"topic":         msg.Topic,
		})
		w.logg.Info(logCtx, "outbox message queued")
	}
	return nil
}
