// Package overdue периодически пересверяет заказы, у которых истёк срок оплаты,
// чтобы сохранённый финансовый статус перешёл в overdue без новой мутации.
package overdue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderledger/internal/domain"
)

const (
	defaultSweepInterval  = time.Minute
	defaultSweepBatchSize = 200
	// stuckSweepPasses задаёт, сколько проходов пропускается заказ, Refresh которого не сдвинул статус.
	stuckSweepPasses = 10
)

var (
	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_overdue_sweep_runs_total",
		Help: "Overdue sweep runs grouped by result.",
	}, []string{"result"})
	sweepRefreshedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_overdue_sweep_refreshes_total",
		Help: "Orders refreshed by the overdue sweep grouped by outcome.",
	}, []string{"outcome"})
	sweepLastCandidates = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_overdue_sweep_last_candidates",
		Help: "Number of overdue candidates found during the last sweep.",
	})
)

// Refresher пересверяет заказ на момент asOf; реализуется ledger.Service.
type Refresher interface {
	RefreshAt(ctx context.Context, orderID string, asOf time.Time) (domain.Order, bool, error)
}

// Options задаёт параметры sweeper.
type Options struct {
	Logger    *log.Entry
	Interval  time.Duration
	BatchSize int
	Now       func() time.Time
}

// Option настраивает Sweeper.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithInterval задаёт интервал между проходами.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.Interval = interval
	}
}

// WithBatchSize ограничивает число кандидатов за проход.
func WithBatchSize(batchSize int) Option {
	return func(opts *Options) {
		opts.BatchSize = batchSize
	}
}

// WithClock подменяет часы.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		opts.Now = now
	}
}

// SweepResult подводит итог одного прохода.
type SweepResult struct {
	Candidates int
	Changed    int
	Unchanged  int
	Failed     int
	Skipped    int
}

// Sweeper находит заказы с истёкшей отсрочкой и вызывает для них Refresh.
type Sweeper struct {
	orders    domain.OrderRepository
	refresher Refresher
	logger    *log.Entry
	interval  time.Duration
	batchSize int
	now       func() time.Time

	mu sync.Mutex
	// stuck хранит заказы, пропускаемые до указанного момента.
	stuck map[string]time.Time

	lastSweep atomic.Int64
}

// NewSweeper создаёт sweeper.
func NewSweeper(orders domain.OrderRepository, refresher Refresher, options ...Option) *Sweeper {
	opts := Options{
		Interval:  defaultSweepInterval,
		BatchSize: defaultSweepBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "overdue-sweeper")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultSweepInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultSweepBatchSize
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Sweeper{
		orders:    orders,
		refresher: refresher,
		logger:    logger,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		now:       opts.Now,
		stuck:     make(map[string]time.Time),
	}
}

// Run выполняет проходы до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.orders == nil || s.refresher == nil {
		s.logger.Warn("overdue sweeper is disabled: repo or refresher is nil")
		return
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	result, err := s.SweepOnce(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		sweepRunsTotal.WithLabelValues("error").Inc()
		s.logger.WithError(err).Warn("overdue sweep failed")
		return
	}

	sweepRunsTotal.WithLabelValues("ok").Inc()
	if result.Changed > 0 || result.Failed > 0 {
		s.logger.WithFields(log.Fields{
			"candidates": result.Candidates,
			"changed":    result.Changed,
			"failed":     result.Failed,
		}).Info("overdue sweep completed")
	}
}

// SweepOnce выполняет один проход. Ошибка Refresh по одному заказу не прерывает проход.
// Заказы, которые не удалось перевести в overdue, временно пропускаются,
// чтобы не занимать голову списка кандидатов на каждом проходе.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	if err := ctx.Err(); err != nil {
		return result, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	asOf := s.now()
	for id, until := range s.stuck {
		if !asOf.Before(until) {
			delete(s.stuck, id)
		}
	}

	candidates, err := s.orders.ListOverdueCandidates(asOf, s.batchSize+len(s.stuck))
	if err != nil {
		return result, err
	}

	processed := 0
	for _, order := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, skip := s.stuck[order.ID]; skip {
			result.Skipped++
			continue
		}
		if processed == s.batchSize {
			break
		}
		processed++

		refreshed, changed, err := s.refresher.RefreshAt(ctx, order.ID, asOf)
		switch {
		case err != nil:
			result.Failed++
			s.stuck[order.ID] = asOf.Add(stuckSweepPasses * s.interval)
			sweepRefreshedTotal.WithLabelValues("failed").Inc()
			s.logger.WithError(err).WithField("order_id", order.ID).Warn("overdue refresh failed")
		case changed:
			result.Changed++
			sweepRefreshedTotal.WithLabelValues("changed").Inc()
			s.logger.WithFields(log.Fields{
				"order_id":         order.ID,
				"financial_status": refreshed.FinancialStatus,
			}).Debug("order marked overdue")
		default:
			result.Unchanged++
			s.stuck[order.ID] = asOf.Add(stuckSweepPasses * s.interval)
			sweepRefreshedTotal.WithLabelValues("unchanged").Inc()
		}
	}
	result.Candidates = processed
	sweepLastCandidates.Set(float64(processed))
	s.lastSweep.Store(asOf.UnixNano())

	return result, nil
}

// LastSweep возвращает момент последнего завершённого прохода; нулевое время, если проходов не было.
func (s *Sweeper) LastSweep() time.Time {
	nanos := s.lastSweep.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos).UTC()
}

// Interval возвращает интервал между проходами.
func (s *Sweeper) Interval() time.Duration {
	return s.interval
}
