package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/saga-coordinator/pkg/config"
	"github.com/angelmondragon/saga-coordinator/pkg/db/dbtest"
	"github.com/angelmondragon/saga-coordinator/pkg/db/models"
	"github.com/angelmondragon/saga-coordinator/pkg/enums"
	"github.com/angelmondragon/saga-coordinator/pkg/logger"
	"github.com/angelmondragon/saga-coordinator/pkg/metrics"
	"github.com/angelmondragon/saga-coordinator/pkg/outbox"
)

type fakePublisher struct {
	mu       sync.Mutex
	failFor  map[string]error
	messages map[string][]*gcppubsub.Message
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{failFor: map[string]error{}, messages: map[string][]*gcppubsub.Message{}}
}

func (f *fakePublisher) factory(topic string) publisher {
	return &topicHandle{parent: f, topic: topic}
}

type topicHandle struct {
	parent *fakePublisher
	topic  string
}

func (h *topicHandle) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	h.parent.mu.Lock()
	defer h.parent.mu.Unlock()
	if err := h.parent.failFor[h.topic]; err != nil {
		return fakeResult{err: err}
	}
	h.parent.messages[h.topic] = append(h.parent.messages[h.topic], msg)
	return fakeResult{id: "srv-1"}
}

type fakeResult struct {
	id  string
	err error
}

func (r fakeResult) Get(context.Context) (string, error) { return r.id, r.err }

type failingRepo struct{ outboxRepository }

func (failingRepo) FetchPending(context.Context, int) ([]models.OutboxMessage, error) {
	return nil, errors.New("db down")
}

func newTestService(t *testing.T, repo outboxRepository, pub *fakePublisher, reg *prometheus.Registry) *Service {
	t.Helper()
	cfg := &config.Config{
		PubSub: config.PubSubConfig{
			InitTopic:        "saga-init",
			BuyInInitTopic:   "saga-buyin-init",
			CashOutInitTopic: "saga-cashout-init",
		},
		Outbox: config.OutboxConfig{BatchSize: 10, PollIntervalMS: 5, PublishTimeout: time.Second},
	}
	topics, err := outbox.NewTopicRegistry(cfg.PubSub)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Config:           cfg,
		Logger:           logger.New(logger.Options{ServiceName: "outbox-test", Output: io.Discard}),
		Metrics:          metrics.NewSagaMetrics(reg),
		Repository:       repo,
		Topics:           topics,
		PublisherFactory: pub.factory,
	})
	require.NoError(t, err)
	return svc
}

func insertRow(t *testing.T, conn *gorm.DB, topic string, bt enums.BusinessType) uuid.UUID {
	t.Helper()
	row := &models.OutboxMessage{
		Topic:        topic,
		BusinessType: bt,
		Payload:      json.RawMessage(`{"transactionId":"` + uuid.NewString() + `"}`),
	}
	require.NoError(t, conn.Create(row).Error)
	return row.ID
}

func loadRow(t *testing.T, conn *gorm.DB, id uuid.UUID) models.OutboxMessage {
	t.Helper()
	var row models.OutboxMessage
	require.NoError(t, conn.First(&row, "id = ?", id).Error)
	return row
}

func TestProcessBatchRoutesAndMarksSent(t *testing.T) {
	conn := dbtest.Open(t)
	pub := newFakePublisher()
	reg := prometheus.NewRegistry()
	svc := newTestService(t, outbox.NewRepository(conn), pub, reg)

	buyIn := insertRow(t, conn, "", enums.BusinessTypeBuyIn)
	explicit := insertRow(t, conn, "saga-status", "")
	generic := insertRow(t, conn, "", "")

	n, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Len(t, pub.messages["saga-buyin-init"], 1)
	assert.Len(t, pub.messages["saga-status"], 1)
	assert.Len(t, pub.messages["saga-init"], 1)
	assert.Equal(t, "BuyIn", pub.messages["saga-buyin-init"][0].Attributes["business_type"])

	for _, id := range []uuid.UUID{buyIn, explicit, generic} {
		row := loadRow(t, conn, id)
		assert.Equal(t, enums.OutboxStatusSent, row.Status)
		assert.NotNil(t, row.SentAt)
	}
	assert.Equal(t, float64(1), counterValue(t, reg, "outbox_published_total", "saga-init"))

	n, err = svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessBatchContinuesAfterFailure(t *testing.T) {
	conn := dbtest.Open(t)
	pub := newFakePublisher()
	pub.failFor["saga-cashout-init"] = errors.New("broker unavailable")
	reg := prometheus.NewRegistry()
	svc := newTestService(t, outbox.NewRepository(conn), pub, reg)

	failing := insertRow(t, conn, "", enums.BusinessTypeCashOut)
	ok := insertRow(t, conn, "", "")

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)

	failed := loadRow(t, conn, failing)
	assert.Equal(t, enums.OutboxStatusPending, failed.Status)
	assert.Equal(t, 1, failed.AttemptCount)
	require.NotNil(t, failed.LastError)
	assert.Contains(t, *failed.LastError, "broker unavailable")
	assert.Equal(t, enums.OutboxStatusSent, loadRow(t, conn, ok).Status)

	delete(pub.failFor, "saga-cashout-init")
	_, err = svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, enums.OutboxStatusSent, loadRow(t, conn, failing).Status)
	assert.Equal(t, float64(1), counterValue(t, reg, "outbox_publish_failures_total", "saga-cashout-init"))
}

func TestRunSkipsFailedPollsAndStopsOnCancel(t *testing.T) {
	pub := newFakePublisher()
	svc := newTestService(t, failingRepo{}, pub, prometheus.NewRegistry())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := svc.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, pub.messages)
}

func TestNextBackoffCaps(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, 200*time.Millisecond, nextBackoff(0, base, time.Second))
	assert.Equal(t, time.Second, nextBackoff(800*time.Millisecond, base, time.Second))
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, topic string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "topic" && lp.GetValue() == topic {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s{topic=%q} not found", name, topic)
	return 0
}
