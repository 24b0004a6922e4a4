package httpapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledgerv1 "github.com/vladislavdragonenkov/orderledger/api/ledger/v1"
	"github.com/vladislavdragonenkov/orderledger/internal/httpapi"
	"github.com/vladislavdragonenkov/orderledger/internal/service/ledger"
	"github.com/vladislavdragonenkov/orderledger/internal/storage/memory"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestAPI(t *testing.T, cfg httpapi.Config) *httptest.Server {
	t.Helper()

	logger := log.New()
	logger.SetOutput(io.Discard)
	entry := log.NewEntry(logger)

	svc := ledger.NewService(
		memory.NewOrderRepository(),
		memory.NewOutboxRepository(),
		memory.NewTimelineRepository(),
		ledger.WithClock(func() time.Time { return testNow }),
		ledger.WithLogger(entry),
	)

	srv := httptest.NewServer(httpapi.NewRouter(svc, entry, cfg))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeOrder(t *testing.T, resp *http.Response) *ledgerv1.Order {
	t.Helper()
	var out ledgerv1.OrderResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Order)
	return out.Order
}

func decodeProblem(t *testing.T, resp *http.Response) httpapi.Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
	var p httpapi.Problem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	return p
}

func createOrderBody(id string) map[string]any {
	return map[string]any{
		"order_id":         id,
		"customer_id":      "customer-1",
		"product_id":       "product-1",
		"quantity_ordered": 100,
		"selling_price":    "50",
		"delivery_cost":    "200",
		"delivery_date":    testNow.AddDate(0, 0, 7),
		"payment_terms": map[string]any{
			"credit_period_days": 30,
		},
	}
}

func TestOrdersAPI_Lifecycle(t *testing.T) {
	srv := newTestAPI(t, httpapi.Config{})
	base := srv.URL + "/api/v1/orders"

	resp := doJSON(t, http.MethodPost, base, createOrderBody("order-1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "/api/v1/orders/order-1", resp.Header.Get("Location"))
	created := decodeOrder(t, resp)
	assert.Equal(t, "pending", created.FinancialStatus)
	assert.True(t, created.Totals.TotalOrderValue.Equal(decimal.NewFromInt(5200)))

	resp = doJSON(t, http.MethodPut, base+"/order-1/advance-payment", map[string]any{
		"amount": "1000",
		"date":   testNow,
		"mode":   "rtgs",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "advance_received", decodeOrder(t, resp).FinancialStatus)

	resp = doJSON(t, http.MethodPost, base+"/order-1/payments", map[string]any{
		"amount":         "4200",
		"date":           testNow,
		"mode":           "upi",
		"transaction_id": "tx-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	paid := decodeOrder(t, resp)
	assert.Equal(t, "fully_paid", paid.FinancialStatus)
	assert.True(t, paid.Totals.PendingAmount.IsZero())

	resp = doJSON(t, http.MethodPatch, base+"/order-1/delivery", map[string]any{
		"quantity_delivered": 100,
		"delivery_date":      testNow.AddDate(0, 0, 5),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(100), decodeOrder(t, resp).QuantityDelivered)

	resp = doJSON(t, http.MethodPatch, base+"/order-1/status", map[string]any{"status": "completed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", decodeOrder(t, resp).Status)

	resp = doJSON(t, http.MethodPatch, base+"/order-1/raw-material", map[string]any{
		"status":            "fully_consumed",
		"consumed_quantity": 98,
		"locked":            true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeOrder(t, resp).RawMaterialConsumption.Locked)

	resp = doJSON(t, http.MethodGet, base+"/order-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeOrder(t, resp)
	assert.Len(t, got.Payments, 1)
	require.NotNil(t, got.AdvancePayment)

	resp = doJSON(t, http.MethodGet, base+"/order-1/timeline", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var timeline ledgerv1.GetTimelineResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&timeline))
	assert.NotEmpty(t, timeline.Events)

	resp = doJSON(t, http.MethodGet, base+"?customer_id=customer-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list ledgerv1.ListOrdersResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Orders, 1)
	assert.Equal(t, "order-1", list.Orders[0].ID)
}

func TestOrdersAPI_CreditNotes(t *testing.T) {
	srv := newTestAPI(t, httpapi.Config{})
	base := srv.URL + "/api/v1/orders"

	require.Equal(t, http.StatusCreated, doJSON(t, http.MethodPost, base, createOrderBody("order-cn")).StatusCode)

	resp := doJSON(t, http.MethodPost, base+"/order-cn/credit-notes", map[string]any{
		"credit_note_id": "cn-1",
		"amount":         "200",
		"reason":         "quality_issue",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "credit_note_pending", decodeOrder(t, resp).FinancialStatus)

	resp = doJSON(t, http.MethodPost, base+"/order-cn/credit-notes", map[string]any{
		"credit_note_id": "cn-1",
		"amount":         "200",
		"reason":         "quality_issue",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Already Exists", decodeProblem(t, resp).Title)

	resp = doJSON(t, http.MethodPost, base+"/order-cn/credit-notes/cn-1/transition", map[string]any{"to": "refunded"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	order := decodeOrder(t, resp)
	require.Len(t, order.CreditNotes, 1)
	assert.Equal(t, "refunded", order.CreditNotes[0].Status)
	// Возвращённая нота продолжает уменьшать остаток к оплате.
	assert.True(t, order.Totals.PendingAmount.Equal(decimal.NewFromInt(5000)))

	resp = doJSON(t, http.MethodPost, base+"/order-cn/credit-notes/cn-1/transition", map[string]any{"to": "adjusted"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "State Conflict", decodeProblem(t, resp).Title)
}

func TestOrdersAPI_Problems(t *testing.T) {
	srv := newTestAPI(t, httpapi.Config{})
	base := srv.URL + "/api/v1/orders"

	require.Equal(t, http.StatusCreated, doJSON(t, http.MethodPost, base, createOrderBody("order-p")).StatusCode)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{name: "malformed json", method: http.MethodPost, path: "", body: "{", status: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPost, path: "/order-p/payments", body: `{"amount":"1","unexpected":true}`, status: http.StatusBadRequest},
		{name: "bad limit", method: http.MethodGet, path: "?limit=abc", status: http.StatusBadRequest},
		{name: "unknown order", method: http.MethodGet, path: "/missing", status: http.StatusNotFound},
		{name: "duplicate order", method: http.MethodPost, path: "", body: createOrderBody("order-p"), status: http.StatusConflict},
		{
			name:   "invalid payment",
			method: http.MethodPost,
			path:   "/order-p/payments",
			body:   map[string]any{"amount": "-5", "date": testNow, "mode": "bitcoin"},
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "delivered more than ordered",
			method: http.MethodPatch,
			path:   "/order-p/delivery",
			body:   map[string]any{"quantity_delivered": 101, "delivery_date": testNow},
			status: http.StatusUnprocessableEntity,
		},
		{name: "unknown route", method: http.MethodGet, path: "/order-p/unknown", status: http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, tc.method, base+tc.path, tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
			p := decodeProblem(t, resp)
			assert.Equal(t, tc.status, p.Status)
		})
	}
}

func TestOrdersAPI_ValidationListsEveryProblem(t *testing.T) {
	srv := newTestAPI(t, httpapi.Config{})

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/orders", map[string]any{
		"quantity_ordered": 0,
		"selling_price":    "10",
		"delivery_cost":    "0",
		"delivery_date":    testNow,
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	p := decodeProblem(t, resp)
	assert.GreaterOrEqual(t, len(p.Errors), 2)
}

func TestOrdersAPI_RateLimit(t *testing.T) {
	srv := newTestAPI(t, httpapi.Config{RateLimit: 2})
	url := srv.URL + "/api/v1/orders/missing"

	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodGet, url, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodGet, url, nil).StatusCode)

	resp := doJSON(t, http.MethodGet, url, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, decodeProblem(t, resp).Status)
}
