// Package health отдаёт состояние компонентов order-ledger для /healthz и /readyz.
package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Status представляет статус компонента
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// severity упорядочивает статусы для свёртки в общий.
func (s Status) severity() int {
	switch s {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// Check представляет проверку здоровья компонента
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`

	Duration time.Duration `json:"-"`
}

// Response представляет ответ health check
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет один компонент: хранилище заказов, Redis, outbox, sweeper.
type Checker interface {
	Check() Check
}

// Handler собирает проверки и отдаёт их в /healthz и /readyz.
type Handler struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	version   string
	startTime time.Time
	now       func() time.Time
}

// NewHandler создаёт новый health handler
func NewHandler(version string) *Handler {
	return &Handler{
		checkers:  make(map[string]Checker),
		version:   version,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// RegisterChecker регистрирует проверку компонента; повторная регистрация имени заменяет проверку.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// Evaluate выполняет все проверки и сворачивает их в общий статус.
func (h *Handler) Evaluate() Response {
	h.mu.RLock()
	checkers := make(map[string]Checker, len(h.checkers))
	for name, checker := range h.checkers {
		checkers[name] = checker
	}
	h.mu.RUnlock()

	resp := Response{
		Status:        StatusHealthy,
		Timestamp:     h.now(),
		Checks:        make(map[string]Check, len(checkers)),
		Version:       h.version,
		UptimeSeconds: int64(h.now().Sub(h.startTime).Seconds()),
	}
	for name, checker := range checkers {
		check := checker.Check()
		resp.Checks[name] = check
		if check.Status.severity() > resp.Status.severity() {
			resp.Status = check.Status
		}
	}
	return resp
}

// ServeHTTP отдаёт JSON со всеми проверками. Degraded не снимает сервис с балансировки: 200.
func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	resp := h.Evaluate()

	statusCode := http.StatusOK
	if resp.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// LivenessHandler отвечает 200, пока процесс жив.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler возвращает 503 и список unhealthy компонентов, если хотя бы один из них недоступен.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	resp := h.Evaluate()

	var failing []string
	for name, check := range resp.Checks {
		if check.Status == StatusUnhealthy {
			failing = append(failing, name)
		}
	}
	if len(failing) > 0 {
		sort.Strings(failing)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready: " + strings.Join(failing, ", ")))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func timed(name string, fn func(check *Check)) Check {
	start := time.Now()
	check := Check{Name: name, Status: StatusHealthy}
	fn(&check)
	check.Duration = time.Since(start)
	check.DurationMs = check.Duration.Milliseconds()
	return check
}

// ThresholdChecker переводит компонент в degraded, когда значение достигает порога.
// Ошибка получения значения делает компонент unhealthy.
type ThresholdChecker struct {
	name       string
	valueFn    func() (int, error)
	degradedAt int
}

// NewThresholdChecker создаёт проверку по порогу; degradedAt <= 0 отключает degraded.
func NewThresholdChecker(name string, valueFn func() (int, error), degradedAt int) *ThresholdChecker {
	return &ThresholdChecker{
		name:       name,
		valueFn:    valueFn,
		degradedAt: degradedAt,
	}
}

func (c *ThresholdChecker) Check() Check {
	return timed(c.name, func(check *Check) {
		value, err := c.valueFn()
		switch {
		case err != nil:
			check.Status = StatusUnhealthy
			check.Message = err.Error()
		case c.degradedAt > 0 && value >= c.degradedAt:
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("value %d reached threshold %d", value, c.degradedAt)
		}
	})
}

// HeartbeatChecker следит за периодическим воркером: если последний успешный проход
// старше maxAge, компонент degraded. До первого прохода отсчёт идёт от создания проверки.
type HeartbeatChecker struct {
	name    string
	lastRun func() time.Time
	maxAge  time.Duration
	now     func() time.Time
	created time.Time
}

// NewHeartbeatChecker создаёт проверку свежести; now == nil означает time.Now.
func NewHeartbeatChecker(name string, lastRun func() time.Time, maxAge time.Duration, now func() time.Time) *HeartbeatChecker {
	if now == nil {
		now = time.Now
	}
	return &HeartbeatChecker{
		name:    name,
		lastRun: lastRun,
		maxAge:  maxAge,
		now:     now,
		created: now(),
	}
}

func (c *HeartbeatChecker) Check() Check {
	return timed(c.name, func(check *Check) {
		last := c.lastRun()
		since := c.created
		if !last.IsZero() {
			since = last
		}
		age := c.now().Sub(since)
		if c.maxAge <= 0 || age <= c.maxAge {
			return
		}
		check.Status = StatusDegraded
		if last.IsZero() {
			check.Message = fmt.Sprintf("no completed run in %s", age.Round(time.Second))
			return
		}
		check.Message = fmt.Sprintf("last run %s ago, expected within %s", age.Round(time.Second), c.maxAge)
	})
}
