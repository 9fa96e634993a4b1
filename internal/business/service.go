// Package business accepts buy-in and cash-out requests and queues their saga
// initiation through the transactional outbox.
package business

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/saga-coordinator/internal/sagas"
	"github.com/angelmondragon/saga-coordinator/pkg/db/models"
	"github.com/angelmondragon/saga-coordinator/pkg/enums"
	pkgerrors "github.com/angelmondragon/saga-coordinator/pkg/errors"
)

const (
	StatusAccepted    = "Accepted"
	StatusEventQueued = "EventQueued"
)

type outboxWriter interface {
	SaveEventWithOutbox(ctx context.Context, event *models.EventRecord, msg *models.OutboxMessage) error
}

// Receipt is returned once a request is durably queued.
type Receipt struct {
	TransactionID string `json:"transactionId"`
	BusinessID    string `json:"businessId,omitempty"`
	Status        string `json:"status"`
}

// Service turns business requests into paired event and outbox rows.
type Service interface {
	BuyIn(ctx context.Context, payload json.RawMessage) (Receipt, error)
	CashOut(ctx context.Context, payload json.RawMessage) (Receipt, error)
	TriggerSagaInit(ctx context.Context, req sagas.TransactionRequest) (Receipt, error)
}

type service struct {
	writer    outboxWriter
	initTopic string
}

// NewService builds the business coordinator. initTopic receives generic saga
// init messages queued by TriggerSagaInit.
func NewService(writer outboxWriter, initTopic string) (Service, error) {
	if writer == nil {
		return nil, errors.New("outbox writer is required")
	}
	if strings.TrimSpace(initTopic) == "" {
		return nil, errors.New("init topic is required")
	}
	return &service{writer: writer, initTopic: initTopic}, nil
}

func (s *service) BuyIn(ctx context.Context, payload json.RawMessage) (Receipt, error) {
	return s.queueBusiness(ctx, enums.BusinessTypeBuyIn, enums.EventBuyInRequested, payload)
}

func (s *service) CashOut(ctx context.Context, payload json.RawMessage) (Receipt, error) {
	return s.queueBusiness(ctx, enums.BusinessTypeCashOut, enums.EventCashOutRequested, payload)
}

// queueBusiness leaves the outbox topic empty so the relay routes by business type.
func (s *service) queueBusiness(ctx context.Context, businessType enums.BusinessType, eventType enums.EventType, payload json.RawMessage) (Receipt, error) {
	if _, err := sagas.DecodePayload(businessType, payload); err != nil {
		return Receipt{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payload does not match a "+string(businessType)+" request")
	}
	req := sagas.TransactionRequest{
		TransactionID: uuid.NewString(),
		BusinessID:    uuid.NewString(),
		BusinessType:  string(businessType),
		Payload:       payload,
	}
	if err := s.save(ctx, eventType, businessType, "", req); err != nil {
		return Receipt{}, err
	}
	return Receipt{TransactionID: req.TransactionID, BusinessID: req.BusinessID, Status: StatusAccepted}, nil
}

// TriggerSagaInit queues a generic saga through the outbox instead of starting
// it inline.
func (s *service) TriggerSagaInit(ctx context.Context, req sagas.TransactionRequest) (Receipt, error) {
	if strings.TrimSpace(req.TransactionID) == "" {
		req.TransactionID = uuid.NewString()
	}
	req.BusinessType = ""
	if err := s.save(ctx, enums.EventSagaInit, "", s.initTopic, req); err != nil {
		return Receipt{}, err
	}
	return Receipt{TransactionID: req.TransactionID, BusinessID: req.BusinessID, Status: StatusEventQueued}, nil
}

func (s *service) save(ctx context.Context, eventType enums.EventType, businessType enums.BusinessType, topic string, req sagas.TransactionRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode transaction request")
	}
	event := &models.EventRecord{
		EventType:    eventType,
		BusinessType: businessType,
		AggregateID:  req.TransactionID,
		EventData:    body,
	}
	msg := &models.OutboxMessage{
		Topic:        topic,
		BusinessType: businessType,
		Payload:      body,
	}
	if err := s.writer.SaveEventWithOutbox(ctx, event, msg); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue saga request")
	}
	return nil
}
