package invoke

import (
	"context"
	"net/http"

	"github.com/angelmondragon/saga-coordinator/pkg/config"
	"github.com/angelmondragon/saga-coordinator/pkg/discovery"
	"github.com/angelmondragon/saga-coordinator/pkg/logger"
	"github.com/angelmondragon/saga-coordinator/pkg/metrics"
	"github.com/angelmondragon/saga-coordinator/pkg/sidecar"
)

// Stack is a configured Client together with the transports behind it.
// Resolver and Sidecar are nil when the matching path is disabled or failed
// to start.
type Stack struct {
	Client   *Client
	Resolver *discovery.ConsulResolver
	Sidecar  *sidecar.Client

	direct *DiscoveryTransport
}

// NewStack wires discovery first and the sidecar mesh second. A path that
// cannot start is logged and left out; NewStack fails only when no path is left.
func NewStack(ctx context.Context, cfg *config.Config, logg *logger.Logger, m *metrics.SagaMetrics) (*Stack, error) {
	stack := &Stack{}
	transports := []Transport{}
	policy := PolicyFromConfig(cfg.Retry).normalized()

	if cfg.Discovery.Enabled {
		resolver, err := discovery.NewConsulResolver(cfg.Discovery)
		if err != nil {
			logg.Error(ctx, "service discovery unavailable", err)
		} else {
			dt, err := NewDiscoveryTransport(resolver, &http.Client{Timeout: policy.AttemptTimeout})
			if err != nil {
				return nil, err
			}
			stack.Resolver = resolver
			stack.direct = dt
			transports = append(transports, dt)
		}
	}

	if cfg.Sidecar.Enabled {
		sc, err := sidecar.New(cfg.Sidecar)
		if err != nil {
			logg.Error(ctx, "sidecar unavailable", err)
		} else {
			if err := sc.Wait(ctx, cfg.Sidecar.StartupWait); err != nil {
				logg.WarnErr(ctx, "sidecar not ready yet", err)
			}
			mt, err := NewMeshTransport(sc)
			if err != nil {
				_ = sc.Close()
				return nil, err
			}
			stack.Sidecar = sc
			transports = append(transports, mt)
		}
	}

	failover, err := NewFailover(logg, m, transports...)
	if err != nil {
		_ = stack.Close()
		return nil, err
	}
	client, err := NewClient(failover, policy, logg)
	if err != nil {
		_ = stack.Close()
		return nil, err
	}
	stack.Client = client
	return stack, nil
}

func (s *Stack) Close() error {
	if s == nil {
		return nil
	}
	return s.Sidecar.Close()
}
