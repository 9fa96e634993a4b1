package controllers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/angelmondragon/saga-coordinator/api/responses"
	"github.com/angelmondragon/saga-coordinator/api/validators"
	"github.com/angelmondragon/saga-coordinator/internal/business"
	"github.com/angelmondragon/saga-coordinator/internal/sagas"
	pkgerrors "github.com/angelmondragon/saga-coordinator/pkg/errors"
	"github.com/angelmondragon/saga-coordinator/pkg/logger"
)

func BusinessBuyIn(svc business.Service, logg *logger.Logger) http.HandlerFunc {
	return businessRequest(logg, svc.BuyIn)
}

func BusinessCashOut(svc business.Service, logg *logger.Logger) http.HandlerFunc {
	return businessRequest(logg, svc.CashOut)
}

func businessRequest(logg *logger.Logger, queue func(context.Context, json.RawMessage) (business.Receipt, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := validators.ReadBody(w, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !json.Valid(body) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid request body"))
			return
		}
		receipt, err := queue(r.Context(), json.RawMessage(body))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, receipt)
	}
}

// TriggerViaEventStore queues a generic saga through the outbox so the whole
// relay path can be exercised end to end.
func TriggerViaEventStore(svc business.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sagas.TransactionRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		receipt, err := svc.TriggerSagaInit(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, receipt)
	}
}
