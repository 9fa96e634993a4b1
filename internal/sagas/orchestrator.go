// Package sagas drives saga transactions from initiation through completion
// or compensation.
package sagas

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/saga-coordinator/pkg/db/models"
	dbtypes "github.com/angelmondragon/saga-coordinator/pkg/db/types"
	"github.com/angelmondragon/saga-coordinator/pkg/enums"
	"github.com/angelmondragon/saga-coordinator/pkg/logger"
	"github.com/angelmondragon/saga-coordinator/pkg/metrics"
)

const maxUpdateAttempts = 5

// ErrUnknownFlow is returned for a flow no orchestrator is registered for.
var ErrUnknownFlow = errors.New("unknown saga flow")

// Invoker delivers one command to a participant and reports acceptance.
type Invoker interface {
	Invoke(ctx context.Context, participantID, method string, payload any) bool
}

// Orchestrator owns every saga mutation. Each write is a version CAS, so
// concurrent events for one saga re-read and re-decide instead of overwriting.
type Orchestrator struct {
	repo    Repository
	invoker Invoker
	flows   map[enums.SagaFlow]Flow
	logg    *logger.Logger
	metrics *metrics.SagaMetrics
}

func NewOrchestrator(repo Repository, invoker Invoker, logg *logger.Logger, m *metrics.SagaMetrics, flows ...Flow) (*Orchestrator, error) {
	if repo == nil {
		return nil, errors.New("saga repository is required")
	}
	if invoker == nil {
		return nil, errors.New("invoker is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if len(flows) == 0 {
		flows = DefaultFlows()
	}
	registry := make(map[enums.SagaFlow]Flow, len(flows))
	for _, f := range flows {
		registry[f.Name()] = f
	}
	return &Orchestrator{repo: repo, invoker: invoker, flows: registry, logg: logg, metrics: m}, nil
}

// GetSaga returns the saga or ErrNotFound.
func (o *Orchestrator) GetSaga(ctx context.Context, transactionID string) (*models.SagaTransaction, error) {
	return o.repo.GetByTransactionID(ctx, transactionID)
}

// InitSaga persists a Pending saga for the flow and invokes every expected
// participant in parallel. When any invocation is not accepted the saga moves
// to Compensating and every participant is compensated.
func (o *Orchestrator) InitSaga(ctx context.Context, flowName enums.SagaFlow, req TransactionRequest) (string, error) {
	flow, ok := o.flows[flowName]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownFlow, flowName)
	}

	req.TransactionID = strings.TrimSpace(req.TransactionID)
	if req.TransactionID == "" {
		req.TransactionID = uuid.NewString()
	}
	logCtx := o.logg.WithFields(o.logg.WithTransactionID(ctx, req.TransactionID), map[string]any{
		"flow":        flowName,
		"business_id": req.BusinessID,
	})

	participants, err := flow.Participants(req)
	if err != nil {
		o.logg.WarnErr(logCtx, "payload not routable; using default participants", err)
	}

	saga := &models.SagaTransaction{
		TransactionID:           req.TransactionID,
		BusinessID:              req.BusinessID,
		Flow:                    flowName,
		Status:                  enums.SagaStatusPending,
		ExpectedParticipants:    dbtypes.StringSet(participants).Clone(),
		CompletedParticipants:   dbtypes.StringSet{},
		FailedParticipants:      dbtypes.StringSet{},
		CompensatedParticipants: dbtypes.StringSet{},
	}
	if err := o.repo.Create(ctx, saga); err != nil {
		return "", err
	}
	o.metrics.IncStarted(string(flowName))
	o.logg.Info(o.logg.WithField(logCtx, "participants", participants), "saga created")

	// Fan-out and compensation run to completion even if the caller goes away.
	driveCtx := context.WithoutCancel(logCtx)
	body := participantRequest{
		TransactionID: req.TransactionID,
		BusinessID:    req.BusinessID,
		BusinessType:  req.BusinessType,
		Payload:       req.Payload,
	}
	if err := o.fanOut(driveCtx, participants, flow.ForwardMethod, body); err != nil {
		o.logg.WarnErr(driveCtx, "participant invocation failed; compensating", err)
		if err := o.startCompensation(driveCtx, flow, req.TransactionID); err != nil {
			return req.TransactionID, err
		}
	}
	return req.TransactionID, nil
}

// HandleEvent folds one participant outcome into its saga. Unknown sagas and
// terminal sagas are logged and ignored.
func (o *Orchestrator) HandleEvent(ctx context.Context, evt SagaEvent) error {
	participant := evt.Participant()
	status, err := enums.ParseParticipantStatus(evt.Status)
	if err != nil {
		return err
	}
	logCtx := o.logg.WithParticipant(o.logg.WithTransactionID(ctx, evt.TransactionID), participant)
	logCtx = o.logg.WithField(logCtx, "event_status", status)

	var decision eventDecision
	saga, written, err := o.mutate(logCtx, evt.TransactionID, func(s *models.SagaTransaction) bool {
		decision = applyEvent(s, participant, status)
		return decision.changed
	})
	switch {
	case errors.Is(err, ErrNotFound):
		o.logg.Warn(logCtx, "saga not found for event; ignoring")
		return nil
	case err != nil:
		return err
	case decision.ignoredTerminal:
		o.logg.Warn(o.logg.WithField(logCtx, "status", saga.Status), "event for terminal saga ignored")
		return nil
	case decision.unexpected:
		o.logg.Warn(logCtx, "event from participant outside expected set ignored")
		return nil
	case !written:
		o.logg.Debug(logCtx, "duplicate event")
		return nil
	}

	if decision.transitioned {
		o.logg.Info(o.logg.WithField(logCtx, "status", saga.Status), "saga transitioned")
	}
	if decision.compensate {
		flow, ok := o.flows[saga.Flow]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownFlow, saga.Flow)
		}
		// The delivery may be acked or cancelled before every participant is reached.
		o.compensate(context.WithoutCancel(logCtx), flow, saga)
	}
	return nil
}

// startCompensation moves a Pending saga to Compensating and, if this caller
// won the transition, issues compensation.
func (o *Orchestrator) startCompensation(ctx context.Context, flow Flow, transactionID string) error {
	saga, written, err := o.mutate(ctx, transactionID, func(s *models.SagaTransaction) bool {
		return transition(s, enums.SagaStatusCompensating)
	})
	if err != nil {
		return err
	}
	if written {
		o.compensate(ctx, flow, saga)
	}
	return nil
}

// compensate calls the compensate method on every expected participant,
// including the ones that succeeded. Undeliverable compensation parks the saga
// in Failed until acknowledgements arrive.
func (o *Orchestrator) compensate(ctx context.Context, flow Flow, saga *models.SagaTransaction) {
	body := compensationRequest{TransactionID: saga.TransactionID}
	err := o.fanOut(ctx, saga.ExpectedParticipants, flow.CompensateMethod, body)
	if err == nil {
		o.logg.Info(ctx, "compensation issued")
		return
	}
	o.logg.Error(ctx, "compensation delivery failed", err)
	_, _, markErr := o.mutate(ctx, saga.TransactionID, func(s *models.SagaTransaction) bool {
		return transition(s, enums.SagaStatusFailed)
	})
	if markErr != nil {
		o.logg.Error(ctx, "failed to mark saga failed", markErr)
	}
}

func (o *Orchestrator) fanOut(ctx context.Context, participants []string, method func(string) string, body any) error {
	var g errgroup.Group
	for _, p := range participants {
		g.Go(func() error {
			m := method(p)
			if !o.invoker.Invoke(o.logg.WithParticipant(ctx, p), p, m, body) {
				return fmt.Errorf("participant %s did not accept %s", p, m)
			}
			return nil
		})
	}
	return g.Wait()
}

// mutate re-reads the saga, applies fn and writes it back under a version
// check. It reports whether a write happened.
func (o *Orchestrator) mutate(ctx context.Context, transactionID string, fn func(s *models.SagaTransaction) bool) (*models.SagaTransaction, bool, error) {
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		saga, err := o.repo.GetByTransactionID(ctx, transactionID)
		if err != nil {
			return nil, false, err
		}
		observed, before := saga.Version, saga.Status
		if !fn(saga) {
			return saga, false, nil
		}
		err = o.repo.UpdateIfVersion(ctx, saga, observed)
		if errors.Is(err, ErrVersionConflict) {
			o.logg.Debug(o.logg.WithField(ctx, "attempt", attempt), "saga version conflict; retrying")
			continue
		}
		if err != nil {
			return nil, false, err
		}
		if saga.Status != before {
			o.metrics.ObserveTransition(string(saga.Flow), string(saga.Status), saga.Status.IsTerminal(), time.Since(saga.CreatedAt))
		}
		return saga, true, nil
	}
	return nil, false, fmt.Errorf("update saga %s: %w", transactionID, ErrVersionConflict)
}

// transition applies next when the edge is legal.
func transition(s *models.SagaTransaction, next enums.SagaStatus) bool {
	if !s.Status.CanTransitionTo(next) {
		return false
	}
	s.Status = next
	return true
}
