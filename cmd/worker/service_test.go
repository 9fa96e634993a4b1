package main

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/saga-coordinator/pkg/config"
	"github.com/angelmondragon/saga-coordinator/pkg/logger"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubPubSub struct {
	stubPinger
	ensureErr error
}

func (s stubPubSub) EnsureSubscriptions(context.Context) error { return s.ensureErr }

type stubConsumer struct {
	name    string
	err     error
	started atomic.Bool
}

func (c *stubConsumer) Name() string { return c.name }

func (c *stubConsumer) Run(ctx context.Context) error {
	c.started.Store(true)
	if c.err != nil {
		return c.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func newTestService(t *testing.T, ps stubPubSub, consumers ...consumer) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config:    &config.Config{},
		Logger:    logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard}),
		DB:        stubPinger{},
		Redis:     stubPinger{},
		PubSub:    ps,
		Consumers: consumers,
	})
	require.NoError(t, err)
	return svc
}

func TestRunStartsEveryConsumerUntilCanceled(t *testing.T) {
	status := &stubConsumer{name: "saga-status"}
	initC := &stubConsumer{name: "saga-init-generic"}
	svc := newTestService(t, stubPubSub{}, status, initC)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := svc.Run(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, status.started.Load())
	assert.True(t, initC.started.Load())
}

func TestRunStopsWhenAConsumerFails(t *testing.T) {
	healthy := &stubConsumer{name: "saga-status"}
	broken := &stubConsumer{name: "saga-init-buy_in", err: errors.New("receive failed")}
	svc := newTestService(t, stubPubSub{}, healthy, broken)

	err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "saga-init-buy_in")
}

func TestRunRequiresSubscriptions(t *testing.T) {
	c := &stubConsumer{name: "saga-status"}
	svc := newTestService(t, stubPubSub{ensureErr: errors.New(`subscription "x" does not exist`)}, c)

	err := svc.Run(context.Background())
	require.Error(t, err)
	assert.False(t, c.started.Load())
}

func TestNewServiceValidates(t *testing.T) {
	_, err := NewService(ServiceParams{
		Config: &config.Config{},
		Logger: logger.New(logger.Options{Output: io.Discard}),
		DB:     stubPinger{},
		PubSub: stubPubSub{},
	})
	assert.Error(t, err)
}
