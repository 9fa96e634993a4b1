// Package invoke delivers saga commands to participant services over a
// pluggable transport with failover and bounded retries.
package invoke

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/saga-coordinator/pkg/logger"
	"github.com/angelmondragon/saga-coordinator/pkg/metrics"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Transport is one way of reaching a participant. Implementations report
// success only when the participant acknowledged the call.
type Transport interface {
	Name() string
	Send(ctx context.Context, participantID, method string, payload []byte) error
}

// Failover tries each transport in order and stops at the first success.
type Failover struct {
	transports []Transport
	logg       *logger.Logger
	metrics    *metrics.SagaMetrics
}

// NewFailover builds a failover chain. Nil transports are skipped.
func NewFailover(logg *logger.Logger, m *metrics.SagaMetrics, transports ...Transport) (*Failover, error) {
	chain := make([]Transport, 0, len(transports))
	for _, t := range transports {
		if t != nil {
			chain = append(chain, t)
		}
	}
	if len(chain) == 0 {
		return nil, errors.New("at least one transport is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Failover{transports: chain, logg: logg, metrics: m}, nil
}

func (f *Failover) Name() string { return "failover" }

// Send walks the chain. The returned error joins every path's failure.
func (f *Failover) Send(ctx context.Context, participantID, method string, payload []byte) error {
	var errs []error
	for _, t := range f.transports {
		err := t.Send(ctx, participantID, method, payload)
		if err == nil {
			f.metrics.IncInvocation(participantID, t.Name(), outcomeSuccess)
			return nil
		}
		f.metrics.IncInvocation(participantID, t.Name(), outcomeFailure)
		logCtx := f.logg.WithFields(ctx, map[string]any{
			"participant": participantID,
			"method":      method,
			"transport":   t.Name(),
		})
		f.logg.Debug(logCtx, fmt.Sprintf("transport failed: %v", err))
		errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return errors.Join(errs...)
}
