package sagas

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/saga-coordinator/pkg/enums"
	"github.com/angelmondragon/saga-coordinator/pkg/logger"
)

// ErrMalformedMessage marks a delivery that can never be processed. Callers
// acknowledge it instead of asking for redelivery.
var ErrMalformedMessage = errors.New("malformed saga message")

type idempotencyGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, messageID string) (bool, error)
	Delete(ctx context.Context, consumer, messageID string) error
}

// Delivery is one broker message after transport framing is removed.
type Delivery struct {
	MessageID    string
	Subscription string
	Data         []byte
}

type pushEnvelope struct {
	Message *struct {
		Data       string            `json:"data"`
		MessageID  string            `json:"messageId"`
		Attributes map[string]string `json:"attributes"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type cloudEvent struct {
	ID          string          `json:"id"`
	SpecVersion string          `json:"specversion"`
	Data        json.RawMessage `json:"data"`
}

// DecodeDelivery unwraps a Pub/Sub push envelope or a CloudEvent. Any other
// body is taken as the raw message, keyed by its content hash.
func DecodeDelivery(body []byte) (Delivery, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return Delivery{}, fmt.Errorf("%w: empty body", ErrMalformedMessage)
	}

	var push pushEnvelope
	if err := json.Unmarshal([]byte(trimmed), &push); err == nil && push.Message != nil {
		data, err := base64.StdEncoding.DecodeString(push.Message.Data)
		if err != nil {
			return Delivery{}, fmt.Errorf("%w: push data: %v", ErrMalformedMessage, err)
		}
		return Delivery{MessageID: push.Message.MessageID, Subscription: push.Subscription, Data: data}, nil
	}

	var ce cloudEvent
	if err := json.Unmarshal([]byte(trimmed), &ce); err == nil && ce.SpecVersion != "" && len(ce.Data) > 0 {
		return Delivery{MessageID: ce.ID, Data: ce.Data}, nil
	}

	sum := sha256.Sum256([]byte(trimmed))
	return Delivery{MessageID: hex.EncodeToString(sum[:]), Data: []byte(trimmed)}, nil
}

// Ingestor turns broker deliveries into orchestrator calls with redelivery
// deduplication.
type Ingestor struct {
	orch  *Orchestrator
	guard idempotencyGuard
	logg  *logger.Logger
}

// NewIngestor builds an ingestor. A nil guard disables message deduplication;
// saga-level dedupe still applies.
func NewIngestor(orch *Orchestrator, guard idempotencyGuard, logg *logger.Logger) (*Ingestor, error) {
	if orch == nil {
		return nil, errors.New("orchestrator is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Ingestor{orch: orch, guard: guard, logg: logg}, nil
}

// HandleStatus applies a participant SagaEvent delivery.
func (i *Ingestor) HandleStatus(ctx context.Context, d Delivery) error {
	return i.once(ctx, "saga-status", d, func(ctx context.Context) error {
		var evt SagaEvent
		if err := json.Unmarshal(d.Data, &evt); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if evt.TransactionID == "" || evt.Participant() == "" {
			return fmt.Errorf("%w: transactionId and participantName are required", ErrMalformedMessage)
		}
		if _, err := enums.ParseParticipantStatus(evt.Status); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return i.orch.HandleEvent(ctx, evt)
	})
}

// HandleInit starts a saga of flow unless one already exists for the
// transaction id.
func (i *Ingestor) HandleInit(ctx context.Context, flow enums.SagaFlow, d Delivery) error {
	return i.once(ctx, "saga-init-"+string(flow), d, func(ctx context.Context) error {
		var req TransactionRequest
		if err := json.Unmarshal(d.Data, &req); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		logCtx := i.logg.WithTransactionID(i.logg.WithField(ctx, "flow", flow), req.TransactionID)
		if req.TransactionID != "" {
			if _, err := i.orch.GetSaga(ctx, req.TransactionID); err == nil {
				i.logg.Info(logCtx, "saga already exists; skipping init")
				return nil
			} else if !errors.Is(err, ErrNotFound) {
				return err
			}
		}
		_, err := i.orch.InitSaga(ctx, flow, req)
		if errors.Is(err, ErrAlreadyExists) {
			i.logg.Info(logCtx, "saga created concurrently; skipping init")
			return nil
		}
		return err
	})
}

func (i *Ingestor) once(ctx context.Context, consumer string, d Delivery, fn func(ctx context.Context) error) error {
	logCtx := i.logg.WithMessage(ctx, consumer, d.MessageID)
	guarded := i.guard != nil && d.MessageID != ""
	if guarded {
		already, err := i.guard.CheckAndMarkProcessed(ctx, consumer, d.MessageID)
		if err != nil {
			return fmt.Errorf("idempotency check: %w", err)
		}
		if already {
			i.logg.Info(logCtx, "message already processed")
			return nil
		}
	}

	err := fn(logCtx)
	if err == nil || errors.Is(err, ErrMalformedMessage) {
		return err
	}
	if guarded {
		if delErr := i.guard.Delete(ctx, consumer, d.MessageID); delErr != nil {
			i.logg.Error(logCtx, "failed to release idempotency key", delErr)
		}
	}
	return err
}
