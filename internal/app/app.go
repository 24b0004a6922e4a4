package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	ledgerv1 "github.com/vladislavdragonenkov/orderledger/api/ledger/v1"
	"github.com/vladislavdragonenkov/orderledger/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/orderledger/internal/health"
	"github.com/vladislavdragonenkov/orderledger/internal/httpapi"
	"github.com/vladislavdragonenkov/orderledger/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orderledger/internal/metrics"
	grpcsvc "github.com/vladislavdragonenkov/orderledger/internal/service/grpc"
	"github.com/vladislavdragonenkov/orderledger/internal/service/idempotency"
	"github.com/vladislavdragonenkov/orderledger/internal/service/ledger"
	"github.com/vladislavdragonenkov/orderledger/internal/service/outbox"
	"github.com/vladislavdragonenkov/orderledger/internal/service/overdue"
	"github.com/vladislavdragonenkov/orderledger/internal/version"
)

const (
	shutdownTimeout = 5 * time.Second
	// sweepStaleAfter задаёт, после скольких пропущенных интервалов sweeper считается degraded.
	sweepStaleAfter = 3
	// outboxDegradedPercent задаёт процент OutboxMaxPending, с которого /healthz сообщает degraded.
	outboxDegradedPercent = 80
)

// Run поднимает gRPC, REST и ops HTTP серверы, фоновые воркеры и Kafka.
// Возвращает ctx.Err() после штатной остановки.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger.WithField("layer", "storage"))
	if err != nil {
		return err
	}
	defer closeRuntimeDependencies(deps, logger)

	svc := ledger.NewService(deps.repo, deps.outboxRepo, deps.timelineRepo,
		ledger.WithLogger(logger.WithField("layer", "ledger")),
		ledger.WithMetrics(metrics.NewLedgerMetrics()),
		ledger.WithMaxOutboxPending(cfg.OutboxMaxPending),
	)

	// Kafka опциональна: без брокеров события outbox только логируются.
	kafkaProducer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		kafkaProducer = nil
	}
	var publisher domain.OutboxPublisher = newLogPublisher(logger.WithField("layer", "outbox"))
	var dlqPublisher domain.OutboxPublisher
	if kafkaProducer != nil {
		publisher = kafka.NewOutboxPublisher(kafkaProducer, cfg.KafkaEventsTopic)
		dlqPublisher = kafka.NewOutboxPublisher(kafkaProducer, cfg.KafkaDLQTopic)
	}

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	workersDone := startWorkers(workerCtx, cfg, deps, svc, publisher, dlqPublisher, logger)

	commandConsumer, err := initCommandConsumer(workerCtx, cfg, svc, kafkaProducer, logger)
	if err != nil {
		logger.WithError(err).Warn("failed to start kafka command consumer, continuing without it")
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	registerHealthCheckers(healthHandler, cfg, deps)

	ledgerService := grpcsvc.NewLedgerService(svc, deps.idempotencyRepo, logger.WithField("layer", "grpc"),
		grpcsvc.WithIdempotencyTTL(cfg.IdempotencyTTL),
	)
	grpcMetrics := promgrpc.NewServerMetrics()
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	ledgerv1.RegisterLedgerServiceServer(grpcServer, ledgerService)
	grpcMetrics.InitializeMetrics(grpcServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ledgerv1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	// Reflection нужна grpcurl и loadtest.
	reflection.Register(grpcServer)

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	apiSrv := startHTTPServer(ctx, "rest api", cfg.HTTPAddr, httpapi.NewRouter(svc, logger.WithField("layer", "http"), httpapi.Config{
		RateLimit: cfg.HTTPRateLimit,
	}), logger)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		stopKafkaConsumer(commandConsumer, logger)
		shutdownWorkers(cancelWorkers, workersDone, logger)
		closeKafkaProducer(kafkaProducer, logger)
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC сервер слушает %s", cfg.GRPCAddr)
		errCh <- grpcServer.Serve(lis)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем gRPC сервер")
		healthServer.Shutdown()
		stoppedCh := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stoppedCh)
		}()
		select {
		case <-stoppedCh:
		case <-time.After(shutdownTimeout):
			logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
			grpcServer.Stop()
		}
		runErr = ctx.Err()
	case err := <-errCh:
		if !errors.Is(err, grpc.ErrServerStopped) {
			runErr = err
		}
	}

	shutdownHTTP(apiSrv, logger)
	shutdownHTTP(metricsSrv, logger)
	stopKafkaConsumer(commandConsumer, logger)
	shutdownWorkers(cancelWorkers, workersDone, logger)
	closeKafkaProducer(kafkaProducer, logger)
	return runErr
}

// startWorkers запускает outbox, очистку идемпотентности и overdue sweep.
// Возвращённый канал закрывается, когда все воркеры завершились.
func startWorkers(
	ctx context.Context,
	cfg Config,
	deps *runtimeDependencies,
	svc *ledger.Service,
	publisher domain.OutboxPublisher,
	dlqPublisher domain.OutboxPublisher,
	logger *log.Entry,
) <-chan struct{} {
	outboxOpts := []outbox.Option{
		outbox.WithLogger(logger.WithField("worker", "outbox")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if dlqPublisher != nil {
		outboxOpts = append(outboxOpts, outbox.WithDLQPublisher(dlqPublisher))
	}

	deps.sweeper = overdue.NewSweeper(deps.repo, svc,
		overdue.WithLogger(logger.WithField("worker", "overdue-sweep")),
		overdue.WithInterval(cfg.OverdueSweepInterval),
		overdue.WithBatchSize(cfg.OverdueSweepBatchSize),
	)

	runners := []func(context.Context){
		outbox.NewWorker(deps.outboxRepo, publisher, outboxOpts...).Run,
		idempotency.NewCleanupWorker(deps.idempotencyRepo,
			idempotency.WithLogger(logger.WithField("worker", "idempotency-cleanup")),
			idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
			idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		).Run,
		deps.sweeper.Run,
	}

	var wg sync.WaitGroup
	for _, run := range runners {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(run)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

func registerHealthCheckers(h *healthcheck.Handler, cfg Config, deps *runtimeDependencies) {
	if deps.storageChecker != nil {
		h.RegisterChecker("storage", deps.storageChecker)
	}
	if deps.redisChecker != nil {
		h.RegisterChecker("redis", deps.redisChecker)
	}
	if deps.outboxRepo != nil {
		degradedAt := cfg.OutboxMaxPending * outboxDegradedPercent / 100
		h.RegisterChecker("outbox", healthcheck.NewThresholdChecker("outbox", func() (int, error) {
			stats, err := deps.outboxRepo.Stats()
			if err != nil {
				return 0, err
			}
			return stats.PendingCount, nil
		}, degradedAt))
	}
	if deps.sweeper != nil {
		h.RegisterChecker("overdue_sweep", healthcheck.NewHeartbeatChecker("overdue_sweep",
			deps.sweeper.LastSweep, sweepStaleAfter*deps.sweeper.Interval(), nil))
	}
}

// startMetricsServer запускает ops HTTP: /metrics, /healthz, /livez, /readyz.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
	return startHTTPServer(ctx, "metrics", addr, mux, logger)
}

// startHTTPServer слушает addr в фоне и останавливает сервер по ctx.Done().
func startHTTPServer(ctx context.Context, name, addr string, handler http.Handler, logger *log.Entry) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	entry := logger.WithField("server", name)

	go func() {
		entry.Infof("http сервер слушает %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			entry.WithError(err).Warn("http server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, entry)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

// shutdownWorkers отменяет контекст воркеров и ждёт их завершения не дольше shutdownTimeout.
func shutdownWorkers(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info("background workers stopped")
	case <-time.After(shutdownTimeout):
		logger.Warn("background workers did not stop in time")
	}
}

func closeRuntimeDependencies(deps *runtimeDependencies, logger *log.Entry) {
	if deps == nil || deps.closeFn == nil {
		return
	}
	if err := deps.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}
