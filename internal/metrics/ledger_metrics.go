package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты операций для label result.
const (
	ResultOK              = "ok"
	ResultValidationError = "validation_error"
	ResultConflict        = "conflict"
	ResultNotFound        = "not_found"
	ResultError           = "error"
)

// LedgerMetrics содержит метрики операций над заказами.
// Все методы безопасны для nil-получателя, чтобы сервис работал без метрик.
type LedgerMetrics struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	reconciliations   *prometheus.CounterVec
	statusChanges     *prometheus.CounterVec
	versionRetries    *prometheus.CounterVec
	recordedAmount    *prometheus.CounterVec
	timelineEvents    prometheus.Counter
	outboxEvents      prometheus.Counter
	inFlight          prometheus.Gauge
}

// NewLedgerMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewLedgerMetrics() *LedgerMetrics {
	return NewLedgerMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewLedgerMetricsWithRegisterer регистрирует метрики в переданном registry.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewLedgerMetricsWithRegisterer(registerer prometheus.Registerer) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &LedgerMetrics{
		operations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Total number of ledger operations grouped by operation and result.",
		}, []string{"operation", "result"}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"operation"}),
		reconciliations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ledger_reconciliations_total",
			Help: "Total number of reconciliations grouped by resulting financial status.",
		}, []string{"status"}),
		statusChanges: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ledger_financial_status_changes_total",
			Help: "Total number of financial status changes grouped by source and target status.",
		}, []string{"from", "to"}),
		versionRetries: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ledger_version_conflict_retries_total",
			Help: "Total number of optimistic locking retries grouped by operation.",
		}, []string{"operation"}),
		recordedAmount: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ledger_recorded_amount_total",
			Help: "Sum of recorded money movements grouped by kind and currency.",
		}, []string{"kind", "currency"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_timeline_events_total",
			Help: "Total number of timeline events recorded.",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_outbox_events_total",
			Help: "Total number of events enqueued to outbox.",
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "ledger_operations_in_flight",
			Help: "Number of ledger mutations currently in progress.",
		}),
	}
}

// ObserveOperation учитывает завершённую операцию.
func (m *LedgerMetrics) ObserveOperation(operation, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, result).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordReconciliation учитывает сверку с итоговым статусом.
func (m *LedgerMetrics) RecordReconciliation(status string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(status).Inc()
}

// RecordStatusChange учитывает смену финансового статуса.
func (m *LedgerMetrics) RecordStatusChange(from, to string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(from, to).Inc()
}

// RecordVersionRetry учитывает повтор после конфликта версий.
func (m *LedgerMetrics) RecordVersionRetry(operation string) {
	if m == nil {
		return
	}
	m.versionRetries.WithLabelValues(operation).Inc()
}

// RecordAmount добавляет сумму движения денег. Точность float64 здесь достаточна.
func (m *LedgerMetrics) RecordAmount(kind, currency string, amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.recordedAmount.WithLabelValues(kind, currency).Add(amount)
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *LedgerMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *LedgerMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}

// InFlightStarted отмечает начало мутации.
func (m *LedgerMetrics) InFlightStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// InFlightFinished отмечает окончание мутации.
func (m *LedgerMetrics) InFlightFinished() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

func register[T prometheus.Collector](registerer prometheus.Registerer, name string, collector T) T {
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(T)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", name))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector %q: %v", name, err))
	}
	return collector
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	return register[prometheus.Counter](registerer, opts.Name, prometheus.NewCounter(opts))
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	return register[prometheus.Gauge](registerer, opts.Name, prometheus.NewGauge(opts))
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	return register(registerer, opts.Name, prometheus.NewCounterVec(opts, labels))
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	return register(registerer, opts.Name, prometheus.NewHistogramVec(opts, labels))
}
