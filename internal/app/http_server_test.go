package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderledger/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/orderledger/internal/health"
	"github.com/vladislavdragonenkov/orderledger/internal/httpapi"
	"github.com/vladislavdragonenkov/orderledger/internal/metrics"
	"github.com/vladislavdragonenkov/orderledger/internal/service/ledger"
	"github.com/vladislavdragonenkov/orderledger/internal/storage/memory"
)

var opsTestNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newOpsLedger(t *testing.T) (*ledger.Service, *runtimeDependencies) {
	t.Helper()
	deps := &runtimeDependencies{
		repo:            memory.NewOrderRepository(),
		outboxRepo:      memory.NewOutboxRepository(),
		timelineRepo:    memory.NewTimelineRepository(),
		idempotencyRepo: memory.NewIdempotencyRepository(),
	}
	svc := ledger.NewService(deps.repo, deps.outboxRepo, deps.timelineRepo,
		ledger.WithClock(func() time.Time { return opsTestNow }),
		ledger.WithMetrics(metrics.NewLedgerMetrics()),
	)
	return svc, deps
}

func waitForHTTP(t *testing.T, url string) *http.Response {
	t.Helper()
	var lastErr error
	for i := 0; i < 50; i++ {
		resp, err := http.Get(url)
		if err == nil {
			return resp
		}
		lastErr = err
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("%s is not reachable: %v", url, lastErr)
	return nil
}

func TestStartMetricsServer_LedgerMetricsAndHealth(t *testing.T) {
	svc, deps := newOpsLedger(t)
	_, err := svc.CreateOrder(context.Background(), ledger.CreateOrderCommand{
		OrderID:         "order-ops",
		CustomerID:      "customer-1",
		ProductID:       "product-1",
		QuantityOrdered: 10,
		SellingPrice:    decimal.NewFromInt(100),
		DeliveryDate:    opsTestNow,
	})
	require.NoError(t, err)

	port := findFreePort(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := healthcheck.NewHandler("test")
	registerHealthCheckers(h, Config{OutboxMaxPending: 100}, deps)
	startMetricsServer(ctx, fmt.Sprintf("127.0.0.1:%d", port), log.WithField("test", "ops"), h)

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	resp := waitForHTTP(t, base+"/metrics")
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ledger_reconciliations_total")

	resp, err = http.Get(base + "/healthz")
	require.NoError(t, err)
	var health healthcheck.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	_ = resp.Body.Close()
	assert.Equal(t, healthcheck.StatusHealthy, health.Status)
	require.Contains(t, health.Checks, "outbox")
	assert.Equal(t, healthcheck.StatusHealthy, health.Checks["outbox"].Status)

	resp, err = http.Get(base + "/livez")
	require.NoError(t, err)
	live, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(live))

	resp, err = http.Get(base + "/readyz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStartHTTPServer_ServesLedgerAPIUntilCancel(t *testing.T) {
	svc, _ := newOpsLedger(t)
	port := findFreePort(t)
	base := fmt.Sprintf("http://127.0.0.1:%d/api/v1/orders", port)

	ctx, cancel := context.WithCancel(context.Background())
	router := httpapi.NewRouter(svc, log.WithField("test", "rest"), httpapi.Config{})
	srv := startHTTPServer(ctx, "rest api", fmt.Sprintf("127.0.0.1:%d", port), router, log.WithField("test", "rest"))
	require.NotNil(t, srv)

	resp := waitForHTTP(t, base+"/missing")
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	payload, err := json.Marshal(map[string]any{
		"order_id":         "order-rest",
		"customer_id":      "customer-1",
		"product_id":       "product-1",
		"quantity_ordered": 4,
		"selling_price":    "250",
		"delivery_cost":    "0",
		"delivery_date":    opsTestNow,
	})
	require.NoError(t, err)
	resp, err = http.Post(base, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	order, err := svc.GetOrder(context.Background(), "order-rest")
	require.NoError(t, err)
	assert.True(t, order.Totals.TotalOrderValue.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, domain.FinancialStatusPending, order.FinancialStatus)

	cancel()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/order-rest")
		if err != nil {
			return true
		}
		_ = resp.Body.Close()
		return false
	}, 2*time.Second, 20*time.Millisecond, "rest api must stop after cancel")
}

func TestShutdownHTTP_NilServer(_ *testing.T) {
	shutdownHTTP(nil, log.WithField("test", "http-nil"))
}

// findFreePort находит свободный порт для тестов
func findFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}
