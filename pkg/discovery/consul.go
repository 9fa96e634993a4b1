// Package discovery resolves participant services to healthy instances
// registered in Consul.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strconv"
	"strings"

	"github.com/hashicorp/consul/api"

	"github.com/angelmondragon/saga-coordinator/pkg/config"
)

// ErrNoHealthyInstance is returned when the registry knows no passing instance.
var ErrNoHealthyInstance = errors.New("no healthy instance")

// Instance is one resolved service endpoint.
type Instance struct {
	ID      string
	Address string
	Port    int
	Scheme  string
}

// BaseURL renders the instance as scheme://host:port.
func (i Instance) BaseURL() string {
	scheme := i.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(i.Address, strconv.Itoa(i.Port)))
}

type healthAPI interface {
	Service(service, tag string, passingOnly bool, q *api.QueryOptions) ([]*api.ServiceEntry, *api.QueryMeta, error)
}

type statusAPI interface {
	Leader() (string, error)
}

// ConsulResolver picks one passing instance per lookup.
type ConsulResolver struct {
	health healthAPI
	status statusAPI
	tag    string
	scheme string
	pick   func(n int) int
}

// NewConsulResolver builds a resolver against the configured agent.
func NewConsulResolver(cfg config.DiscoveryConfig) (*ConsulResolver, error) {
	consulCfg := api.DefaultConfig()
	if addr := strings.TrimSpace(cfg.ConsulAddress); addr != "" {
		consulCfg.Address = addr
	}
	if cfg.Datacenter != "" {
		consulCfg.Datacenter = cfg.Datacenter
	}
	if cfg.Token != "" {
		consulCfg.Token = cfg.Token
	}
	client, err := api.NewClient(consulCfg)
	if err != nil {
		return nil, fmt.Errorf("creating consul client: %w", err)
	}
	return &ConsulResolver{
		health: client.Health(),
		status: client.Status(),
		tag:    cfg.Tag,
		scheme: cfg.ServiceScheme,
		pick:   rand.IntN,
	}, nil
}

// Resolve returns a healthy instance of service.
func (r *ConsulResolver) Resolve(ctx context.Context, service string) (Instance, error) {
	q := (&api.QueryOptions{}).WithContext(ctx)
	entries, _, err := r.health.Service(service, r.tag, true, q)
	if err != nil {
		return Instance{}, fmt.Errorf("consul lookup %s: %w", service, err)
	}

	candidates := make([]Instance, 0, len(entries))
	for _, entry := range entries {
		if entry == nil || entry.Service == nil {
			continue
		}
		addr := entry.Service.Address
		if addr == "" && entry.Node != nil {
			addr = entry.Node.Address
		}
		if addr == "" || entry.Service.Port <= 0 {
			continue
		}
		candidates = append(candidates, Instance{
			ID:      entry.Service.ID,
			Address: addr,
			Port:    entry.Service.Port,
			Scheme:  r.scheme,
		})
	}
	if len(candidates) == 0 {
		return Instance{}, fmt.Errorf("%s: %w", service, ErrNoHealthyInstance)
	}
	return candidates[r.pick(len(candidates))], nil
}

// Ping checks that the agent can reach a cluster leader.
func (r *ConsulResolver) Ping(context.Context) error {
	leader, err := r.status.Leader()
	if err != nil {
		return fmt.Errorf("consul leader: %w", err)
	}
	if leader == "" {
		return errors.New("consul has no leader")
	}
	return nil
}
