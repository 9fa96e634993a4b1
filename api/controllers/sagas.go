package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/saga-coordinator/api/responses"
	"github.com/angelmondragon/saga-coordinator/api/validators"
	"github.com/angelmondragon/saga-coordinator/internal/sagas"
	"github.com/angelmondragon/saga-coordinator/pkg/db/models"
	"github.com/angelmondragon/saga-coordinator/pkg/enums"
	pkgerrors "github.com/angelmondragon/saga-coordinator/pkg/errors"
	"github.com/angelmondragon/saga-coordinator/pkg/logger"
)

type sagaService interface {
	InitSaga(ctx context.Context, flow enums.SagaFlow, req sagas.TransactionRequest) (string, error)
	GetSaga(ctx context.Context, transactionID string) (*models.SagaTransaction, error)
}

type deliveryHandler interface {
	HandleStatus(ctx context.Context, d sagas.Delivery) error
	HandleInit(ctx context.Context, flow enums.SagaFlow, d sagas.Delivery) error
}

type initResponse struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}

// SagaInit starts a saga inline. A businessType selects the buy-in or
// cash-out flow; otherwise the generic flow runs.
func SagaInit(svc sagaService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sagas.TransactionRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		flow := enums.SagaFlowGeneric
		if req.BusinessType != "" {
			bt, err := enums.ParseBusinessType(req.BusinessType)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported businessType"))
				return
			}
			flow = enums.FlowForBusinessType(bt)
		}

		txID, err := svc.InitSaga(r.Context(), flow, req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, mapSagaError(err, req.TransactionID))
			return
		}
		responses.WriteSuccess(w, initResponse{TransactionID: txID, Status: string(enums.SagaStatusPending)})
	}
}

// SagaGet returns the persisted saga. Asynchronous compensation is only
// visible here.
func SagaGet(svc sagaService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		txID := strings.TrimSpace(chi.URLParam(r, "transactionId"))
		if txID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "transactionId is required"))
			return
		}
		saga, err := svc.GetSaga(r.Context(), txID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, mapSagaError(err, txID))
			return
		}
		responses.WriteSuccess(w, saga)
	}
}

// SagaStatusHandler ingests participant status events pushed by the broker.
func SagaStatusHandler(h deliveryHandler, logg *logger.Logger) http.HandlerFunc {
	return pushHandler(logg, func(ctx context.Context, d sagas.Delivery) error {
		return h.HandleStatus(ctx, d)
	})
}

// SagaInitHandler ingests saga initiation messages for flow.
func SagaInitHandler(h deliveryHandler, flow enums.SagaFlow, logg *logger.Logger) http.HandlerFunc {
	return pushHandler(logg, func(ctx context.Context, d sagas.Delivery) error {
		return h.HandleInit(ctx, flow, d)
	})
}

// pushHandler acks with 204. Malformed push deliveries are acked too so the
// broker stops redelivering them; direct callers get a 400 instead.
func pushHandler(logg *logger.Logger, handle func(context.Context, sagas.Delivery) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := validators.ReadBody(w, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		d, err := sagas.DecodeDelivery(body)
		if err == nil {
			err = handle(r.Context(), d)
		}
		switch {
		case err == nil:
			responses.WriteAck(w)
		case errors.Is(err, sagas.ErrMalformedMessage):
			if d.Subscription != "" {
				if logg != nil {
					logg.Error(logg.WithField(r.Context(), "message_id", d.MessageID), "dropping malformed push message", err)
				}
				responses.WriteAck(w)
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed message"))
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "message not processed"))
		}
	}
}

func mapSagaError(err error, transactionID string) error {
	switch {
	case errors.Is(err, sagas.ErrNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "saga not found")
	case errors.Is(err, sagas.ErrAlreadyExists):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "saga already exists").
			WithDetails(map[string]any{"transactionId": transactionID})
	case errors.Is(err, sagas.ErrUnknownFlow):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown saga flow")
	case errors.Is(err, sagas.ErrVersionConflict):
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "saga is being updated concurrently")
	default:
		return err
	}
}
