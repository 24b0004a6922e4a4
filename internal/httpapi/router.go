// Package httpapi реализует REST-фасад над сервисом сверки заказов.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderledger/internal/domain"
	"github.com/vladislavdragonenkov/orderledger/internal/service/ledger"
)

const (
	defaultRequestTimeout = 10 * time.Second
	maxBodyBytes          = 1 << 20
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total number of REST requests",
	}, []string{"method", "route", "code"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "REST request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Ledger описывает операции сервиса сверки, доступные по REST.
type Ledger interface {
	CreateOrder(ctx context.Context, cmd ledger.CreateOrderCommand) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context, q ledger.ListOrdersQuery) ([]domain.Order, error)
	RecordPayment(ctx context.Context, cmd ledger.RecordPaymentCommand) (domain.Order, error)
	SetAdvancePayment(ctx context.Context, cmd ledger.SetAdvancePaymentCommand) (domain.Order, error)
	IssueCreditNote(ctx context.Context, cmd ledger.IssueCreditNoteCommand) (domain.Order, error)
	TransitionCreditNote(ctx context.Context, cmd ledger.TransitionCreditNoteCommand) (domain.Order, error)
	UpdateDelivery(ctx context.Context, cmd ledger.UpdateDeliveryCommand) (domain.Order, error)
	UpdateStatus(ctx context.Context, cmd ledger.UpdateStatusCommand) (domain.Order, error)
	UpdateRawMaterialConsumption(ctx context.Context, cmd ledger.UpdateRawMaterialCommand) (domain.Order, error)
	Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)
}

// Config описывает REST-роутер.
type Config struct {
	// RateLimit ограничивает число запросов в минуту с одного IP; 0 отключает ограничение.
	RateLimit      int
	RequestTimeout time.Duration
}

// NewRouter собирает chi-роутер /api/v1.
func NewRouter(svc Ledger, logger *log.Entry, cfg Config) http.Handler {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	h := &Handler{ledger: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	if cfg.RateLimit > 0 {
		r.Use(httprate.Limit(cfg.RateLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				writeProblem(w, Problem{Title: "Too Many Requests", Status: http.StatusTooManyRequests})
			}),
		))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeProblem(w, Problem{Title: "Not Found", Status: http.StatusNotFound})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeProblem(w, Problem{Title: "Method Not Allowed", Status: http.StatusMethodNotAllowed})
	})

	r.Route("/api/v1/orders", h.MountRoutes)
	return r
}

// requestLogger пишет строку access-лога и метрики по шаблону маршрута chi.
func requestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			code := ww.Status()
			if code == 0 {
				code = http.StatusOK
			}
			elapsed := time.Since(start)

			httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(code)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

			entry := logger.WithFields(log.Fields{
				"method":      r.Method,
				"route":       route,
				"status":      code,
				"duration_ms": elapsed.Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			})
			if code >= http.StatusInternalServerError {
				entry.Warn("http request failed")
				return
			}
			entry.Debug("http request")
		})
	}
}
