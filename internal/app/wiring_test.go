package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderledger/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/orderledger/internal/health"
	"github.com/vladislavdragonenkov/orderledger/internal/service/overdue"
	"github.com/vladislavdragonenkov/orderledger/internal/storage/memory"
)

func TestLogPublisher_AlwaysSucceeds(t *testing.T) {
	publisher := newLogPublisher(log.WithField("test", "log-publisher"))
	err := publisher.Publish(domain.OutboxMessage{ID: "evt-1", AggregateID: "order-1", EventType: domain.EventOrderCreated})
	assert.NoError(t, err)
}

func TestRegisterHealthCheckers_OutboxDegraded(t *testing.T) {
	outboxRepo := memory.NewOutboxRepository()
	for i := 0; i < 8; i++ {
		_, err := outboxRepo.Enqueue(domain.OutboxMessage{AggregateID: "order-1", EventType: domain.EventOrderCreated, Payload: []byte("{}")})
		require.NoError(t, err)
	}

	h := healthcheck.NewHandler("test")
	registerHealthCheckers(h, Config{OutboxMaxPending: 10}, &runtimeDependencies{outboxRepo: outboxRepo})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"degraded"`)

	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterHealthCheckers_OverdueSweepHeartbeat(t *testing.T) {
	repo := memory.NewOrderRepository()
	deps := &runtimeDependencies{
		repo:    repo,
		sweeper: overdue.NewSweeper(repo, nil, overdue.WithInterval(time.Minute)),
	}

	h := healthcheck.NewHandler("test")
	registerHealthCheckers(h, Config{}, deps)

	resp := h.Evaluate()
	require.Contains(t, resp.Checks, "overdue_sweep")
	assert.Equal(t, healthcheck.StatusHealthy, resp.Checks["overdue_sweep"].Status)
	assert.NotContains(t, resp.Checks, "outbox")
}
