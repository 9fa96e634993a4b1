package routes

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/saga-coordinator/api/controllers"
	"github.com/angelmondragon/saga-coordinator/internal/business"
	"github.com/angelmondragon/saga-coordinator/internal/sagas"
	"github.com/angelmondragon/saga-coordinator/pkg/config"
	"github.com/angelmondragon/saga-coordinator/pkg/db"
	"github.com/angelmondragon/saga-coordinator/pkg/db/dbtest"
	"github.com/angelmondragon/saga-coordinator/pkg/db/models"
	"github.com/angelmondragon/saga-coordinator/pkg/enums"
	"github.com/angelmondragon/saga-coordinator/pkg/logger"
	"github.com/angelmondragon/saga-coordinator/pkg/metrics"
	"github.com/angelmondragon/saga-coordinator/pkg/outbox"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type acceptAll struct {
	mu      sync.Mutex
	methods []string
}

func (a *acceptAll) Invoke(ctx context.Context, participantID, method string, payload any) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.methods = append(a.methods, method)
	return true
}

func newTestRouter(t *testing.T, env string, readiness map[string]controllers.Pinger) (http.Handler, *acceptAll, *sagas.Orchestrator) {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard})
	reg := prometheus.NewRegistry()
	m := metrics.NewSagaMetrics(reg)

	inv := &acceptAll{}
	orch, err := sagas.NewOrchestrator(sagas.NewRepository(conn), inv, logg, m)
	require.NoError(t, err)
	ing, err := sagas.NewIngestor(orch, nil, logg)
	require.NoError(t, err)
	writer, err := outbox.NewWriter(db.NewFromGorm(conn), outbox.NewEventRepository(conn), outbox.NewRepository(conn), logg)
	require.NoError(t, err)
	biz, err := business.NewService(writer, "saga-init")
	require.NoError(t, err)

	cfg := &config.Config{App: config.AppConfig{Env: env}}
	h := NewRouter(cfg, logg, readiness, orch, ing, biz, nil, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return h, inv, orch
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthRoutes(t *testing.T) {
	h, _, _ := newTestRouter(t, "dev", map[string]controllers.Pinger{"db": stubPinger{}})
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health/ready", "").Code)

	h, _, _ = newTestRouter(t, "dev", map[string]controllers.Pinger{"redis": stubPinger{err: errors.New("down")}})
	w := do(t, h, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "redis")
}

func TestSagaInitAndGet(t *testing.T) {
	h, inv, _ := newTestRouter(t, "dev", nil)

	w := do(t, h, http.MethodPost, "/api/saga/init", `{"transactionId":"tx-http","businessId":"b-1","payload":{"k":"v"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var created struct {
		Data struct {
			TransactionID string `json:"transactionId"`
			Status        string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "tx-http", created.Data.TransactionID)
	assert.Equal(t, "Pending", created.Data.Status)
	assert.Len(t, inv.methods, 3)

	w = do(t, h, http.MethodGet, "/api/saga/tx-http", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Data models.SagaTransaction `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, enums.SagaStatusPending, got.Data.Status)
	assert.Len(t, got.Data.ExpectedParticipants, 3)

	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/saga/init", `{"transactionId":"tx-http","businessId":"b-1"}`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/saga/missing", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/saga/init", `{"transactionId":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/saga/init", `{"businessId":"b","businessType":"Lottery"}`).Code)
}

func TestStatusHandlerAcceptsPushEnvelope(t *testing.T) {
	h, _, orch := newTestRouter(t, "dev", nil)
	_, err := orch.InitSaga(context.Background(), enums.SagaFlowCashOut, sagas.TransactionRequest{
		TransactionID: "tx-push",
		BusinessID:    "b",
		Payload:       json.RawMessage(`{"inputType":"cash"}`),
	})
	require.NoError(t, err)

	evt := `{"transactionId":"tx-push","participantName":"service-cta","status":"Success"}`
	push := `{"message":{"data":"` + base64.StdEncoding.EncodeToString([]byte(evt)) + `","messageId":"1"},"subscription":"projects/p/subscriptions/saga-status"}`
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodPost, "/api/saga/status-handler", push).Code)

	saga, err := orch.GetSaga(context.Background(), "tx-push")
	require.NoError(t, err)
	assert.Equal(t, enums.SagaStatusCompleted, saga.Status)

	badPush := `{"message":{"data":"` + base64.StdEncoding.EncodeToString([]byte(`{"status":"Success"}`)) + `","messageId":"2"},"subscription":"s"}`
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodPost, "/api/saga/status-handler", badPush).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/saga/status-handler", `{"status":"Success"}`).Code)
}

func TestInitHandlersDedupe(t *testing.T) {
	h, inv, orch := newTestRouter(t, "dev", nil)
	body := `{"transactionId":"tx-buy","businessId":"b","businessType":"BuyIn","payload":{"input":{"inputType":["cash"]},"currency":"HKD"}}`

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodPost, "/api/saga/buy-in/init-handler", body).Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodPost, "/api/saga/buy-in/init-handler", body).Code)
	assert.Equal(t, []string{"api/cta/deposit"}, inv.methods)

	saga, err := orch.GetSaga(context.Background(), "tx-buy")
	require.NoError(t, err)
	assert.Equal(t, enums.SagaFlowBuyIn, saga.Flow)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodPost, "/api/saga/cash-out/init-handler", `{"transactionId":"tx-cash","businessId":"b","payload":{"inputType":"cheque","currency":"HKD"}}`).Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodPost, "/api/saga/init-handler", `{"transactionId":"tx-gen","businessId":"b"}`).Code)
	assert.Len(t, inv.methods, 1+2+3)
}

func TestBusinessEndpoints(t *testing.T) {
	h, _, _ := newTestRouter(t, "dev", nil)

	w := do(t, h, http.MethodPost, "/api/business/buy-in", `{"input":{"inputType":["chips"],"inputAmount":5},"output":{"outputType":["CC"],"outputAmount":5},"currency":"HKD"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"status":"Accepted"`)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/business/cash-out", `{"nothing":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/business/cash-out", `{oops`).Code)

	w = do(t, h, http.MethodPost, "/api/test/trigger-via-eventstore", `{"businessId":"b"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"EventQueued"`)
}

func TestTriggerRouteHiddenInProd(t *testing.T) {
	h, _, _ := newTestRouter(t, "prod", nil)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/test/trigger-via-eventstore", `{"businessId":"b"}`).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _, _ := newTestRouter(t, "dev", nil)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/saga/init", `{"businessId":"b"}`).Code)

	w := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "saga_started_total")
}
