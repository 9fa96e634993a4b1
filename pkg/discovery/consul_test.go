package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/saga-coordinator/pkg/config"
)

type fakeHealth struct {
	entries []*api.ServiceEntry
	err     error
	service string
	passing bool
}

func (f *fakeHealth) Service(service, tag string, passingOnly bool, q *api.QueryOptions) ([]*api.ServiceEntry, *api.QueryMeta, error) {
	f.service = service
	f.passing = passingOnly
	return f.entries, &api.QueryMeta{}, f.err
}

func TestResolvePicksPassingInstance(t *testing.T) {
	health := &fakeHealth{entries: []*api.ServiceEntry{
		{Node: &api.Node{Address: "10.0.0.1"}, Service: &api.AgentService{ID: "cta-1", Port: 8080}},
		{Node: &api.Node{Address: "10.0.0.2"}, Service: &api.AgentService{ID: "cta-2", Address: "10.0.1.2", Port: 9090}},
	}}
	r := &ConsulResolver{health: health, scheme: "http", pick: func(int) int { return 1 }}

	inst, err := r.Resolve(context.Background(), "service-cta")
	require.NoError(t, err)
	assert.Equal(t, "service-cta", health.service)
	assert.True(t, health.passing)
	assert.Equal(t, "cta-2", inst.ID)
	assert.Equal(t, "http://10.0.1.2:9090", inst.BaseURL())
}

func TestResolveFallsBackToNodeAddress(t *testing.T) {
	health := &fakeHealth{entries: []*api.ServiceEntry{
		{Node: &api.Node{Address: "10.0.0.1"}, Service: &api.AgentService{ID: "cta-1", Port: 8080}},
	}}
	r := &ConsulResolver{health: health, pick: func(int) int { return 0 }}

	inst, err := r.Resolve(context.Background(), "service-cta")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.1:8080", inst.BaseURL())
}

func TestResolveWithoutInstances(t *testing.T) {
	r := &ConsulResolver{health: &fakeHealth{}, pick: func(int) int { return 0 }}
	_, err := r.Resolve(context.Background(), "service-genesis")
	assert.ErrorIs(t, err, ErrNoHealthyInstance)

	r = &ConsulResolver{health: &fakeHealth{err: errors.New("agent down")}, pick: func(int) int { return 0 }}
	_, err = r.Resolve(context.Background(), "service-genesis")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoHealthyInstance)
}

func TestResolveAgainstAgentAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/health/service/service-perfectcage":
			assert.True(t, r.URL.Query().Has("passing"))
			_ = json.NewEncoder(w).Encode([]map[string]any{{
				"Node":    map[string]any{"Node": "n1", "Address": "127.0.0.1"},
				"Service": map[string]any{"ID": "pc-1", "Service": "service-perfectcage", "Address": "192.168.1.7", "Port": 7001},
			}})
		case "/v1/status/leader":
			_ = json.NewEncoder(w).Encode("10.0.0.9:8300")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	r, err := NewConsulResolver(config.DiscoveryConfig{ConsulAddress: srv.URL, ServiceScheme: "http"})
	require.NoError(t, err)

	inst, err := r.Resolve(context.Background(), "service-perfectcage")
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.1.7:7001", inst.BaseURL())
	assert.NoError(t, r.Ping(context.Background()))
}
