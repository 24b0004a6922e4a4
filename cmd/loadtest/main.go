package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	ledgerv1 "github.com/vladislavdragonenkov/orderledger/api/ledger/v1"
	"github.com/vladislavdragonenkov/orderledger/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/orderledger/internal/service/grpc"
)

const (
	scenarioMethod = "scenario"
	// settlementCheck учитывается как отдельный метод: сверка статуса заказа после последнего платежа.
	settlementCheck = "SettlementCheck"
)

// errNotSettled означает, что заказ не стал fully_paid после оплаты полной суммы.
var errNotSettled = errors.New("order is not settled after full payment")

type loadMode string

const (
	modeCreate          loadMode = "create"
	modeCreatePay       loadMode = "create-pay"
	modeCreatePayCredit loadMode = "create-pay-credit"
)

type config struct {
	addr         string
	total        int
	totalSet     bool
	duration     time.Duration
	concurrency  int
	connections  int
	timeout      time.Duration
	mode         loadMode
	installments int
	creditRate   int
	currency     string
	product      string
	quantity     int64
	price        decimal.Decimal
	deliveryCost decimal.Decimal
	customerTag  string
	outputPath   string
}

func parseConfig(args []string) (config, error) {
	var (
		cfg         config
		modeRaw     string
		priceRaw    string
		deliveryRaw string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC address of order-ledger")
	fs.IntVar(&cfg.total, "total", 400, "orders to drive in count mode; caps duration mode when set explicitly")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "concurrent scenario workers")
	fs.IntVar(&cfg.connections, "connections", 20, "gRPC client connections")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-RPC timeout")
	fs.StringVar(&modeRaw, "mode", string(modeCreate), "scenario: create | create-pay | create-pay-credit")
	fs.IntVar(&cfg.installments, "installments", 2, "payments per order in create-pay modes")
	fs.IntVar(&cfg.creditRate, "credit-rate", 0, "percent of create-pay orders that also get an adjusted credit note")
	fs.StringVar(&cfg.currency, "currency", domain.DefaultCurrency, "order currency")
	fs.StringVar(&cfg.product, "product", "PRODUCT-LOAD", "order product id")
	fs.Int64Var(&cfg.quantity, "quantity", 10, "ordered quantity")
	fs.StringVar(&priceRaw, "price", "100.00", "selling price per unit")
	fs.StringVar(&deliveryRaw, "delivery-cost", "50.00", "delivery cost per order")
	fs.StringVar(&cfg.customerTag, "customer-tag", "load", "customer id prefix")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	var err error
	if cfg.mode, err = parseMode(modeRaw); err != nil {
		return cfg, err
	}
	if cfg.price, err = decimal.NewFromString(strings.TrimSpace(priceRaw)); err != nil {
		return cfg, fmt.Errorf("parse price: %w", err)
	}
	if cfg.deliveryCost, err = decimal.NewFromString(strings.TrimSpace(deliveryRaw)); err != nil {
		return cfg, fmt.Errorf("parse delivery-cost: %w", err)
	}
	return cfg, cfg.validate()
}

func (cfg config) validate() error {
	switch {
	case cfg.duration < 0:
		return errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return errors.New("timeout must be > 0")
	case cfg.installments <= 0:
		return errors.New("installments must be > 0")
	case cfg.creditRate < 0 || cfg.creditRate > 100:
		return errors.New("credit-rate must be between 0 and 100")
	case cfg.quantity <= 0:
		return errors.New("quantity must be > 0")
	case !cfg.price.IsPositive():
		return errors.New("price must be > 0")
	case cfg.deliveryCost.IsNegative():
		return errors.New("delivery-cost must be >= 0")
	case strings.TrimSpace(cfg.currency) == "":
		return errors.New("currency is required")
	case strings.TrimSpace(cfg.product) == "":
		return errors.New("product is required")
	case strings.TrimSpace(cfg.customerTag) == "":
		return errors.New("customer-tag is required")
	}
	return nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCreate, modeCreatePay, modeCreatePayCredit:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	clients := make([]ledgerv1.LedgerServiceClient, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		conn, dialErr := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to create grpc client connection: %v\n", dialErr)
			os.Exit(1)
		}
		conns = append(conns, conn)
		clients = append(clients, ledgerv1.NewLedgerServiceClient(conn))
	}
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := run(ctx, cfg, clients)
	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// run раздаёт сценарии воркерам поверх clients и собирает отчёт.
func run(ctx context.Context, cfg config, clients []ledgerv1.LedgerServiceClient) report {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for worker := 0; worker < cfg.concurrency; worker++ {
		wg.Add(1)
		go func(client ledgerv1.LedgerServiceClient) {
			defer wg.Done()
			for index := range jobs {
				s := &scenario{client: client, cfg: cfg, runID: runID, index: index, col: col}
				_ = s.run(ctx)
			}
		}(clients[worker%len(clients)])
	}

	dispatchJobs(ctx, jobs, cfg)
	wg.Wait()

	return col.buildReport(startedAt, time.Since(startedAt))
}

func dispatchJobs(ctx context.Context, jobs chan<- int, cfg config) {
	defer close(jobs)

	var deadline <-chan time.Time
	if cfg.duration > 0 {
		timer := time.NewTimer(cfg.duration)
		defer timer.Stop()
		deadline = timer.C
	}
	bounded := cfg.duration <= 0 || cfg.totalSet

	for i := 0; !bounded || i < cfg.total; i++ {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case jobs <- i:
		}
	}
}

// scenario проводит один заказ через создание, оплату частями и, по режиму, кредит-ноту.
// Ключи идемпотентности и transaction_id уникальны в пределах runID.
type scenario struct {
	client ledgerv1.LedgerServiceClient
	cfg    config
	runID  string
	index  int
	col    *collector
}

func (s *scenario) key(step string, n int) string {
	if n < 0 {
		return fmt.Sprintf("lt-%s-%s-%d", step, s.runID, s.index)
	}
	return fmt.Sprintf("lt-%s-%s-%d-%d", step, s.runID, s.index, n)
}

// call выполняет RPC с ключом идемпотентности и записывает код и латентность.
func (s *scenario) call(ctx context.Context, method, key string, fn func(context.Context) (*ledgerv1.OrderResponse, error)) (*ledgerv1.OrderResponse, error) {
	started := time.Now()
	rpcCtx, cancel := context.WithTimeout(ctx, s.cfg.timeout)
	defer cancel()

	resp, err := fn(metadata.AppendToOutgoingContext(rpcCtx, grpcsvc.IdempotencyKeyHeader, key))
	s.col.record(method, time.Since(started), grpcCode(err))
	return resp, err
}

func (s *scenario) run(ctx context.Context) (err error) {
	started := time.Now()
	defer func() {
		code := grpcCode(err)
		if errors.Is(err, errNotSettled) {
			code = codes.FailedPrecondition
		}
		s.col.record(scenarioMethod, time.Since(started), code)
	}()

	created, err := s.call(ctx, "CreateOrder", s.key("create", -1), func(ctx context.Context) (*ledgerv1.OrderResponse, error) {
		return s.client.CreateOrder(ctx, &ledgerv1.CreateOrderRequest{
			CustomerID:      fmt.Sprintf("%s-%s-%d", s.cfg.customerTag, s.runID, s.index),
			ProductID:       s.cfg.product,
			Currency:        s.cfg.currency,
			QuantityOrdered: s.cfg.quantity,
			SellingPrice:    s.cfg.price,
			DeliveryCost:    s.cfg.deliveryCost,
			DeliveryDate:    time.Now().UTC().AddDate(0, 0, 7),
		})
	})
	if err != nil {
		return err
	}
	if created.Order == nil || created.Order.ID == "" {
		return status.Error(codes.Internal, "create response returned empty order id")
	}
	orderID := created.Order.ID
	if s.cfg.mode == modeCreate {
		return nil
	}

	var last *ledgerv1.OrderResponse
	for i, amount := range splitInstallments(created.Order.Totals.TotalOrderValue, s.cfg.installments) {
		req := &ledgerv1.RecordPaymentRequest{
			OrderID:       orderID,
			Amount:        amount,
			Date:          time.Now().UTC(),
			TransactionID: s.key("tx", i),
			Mode:          string(domain.PaymentModeNEFT),
		}
		last, err = s.call(ctx, "RecordPayment", s.key("pay", i), func(ctx context.Context) (*ledgerv1.OrderResponse, error) {
			return s.client.RecordPayment(ctx, req)
		})
		if err != nil {
			return err
		}
	}
	if err := s.checkSettled(last); err != nil {
		return err
	}

	if s.cfg.mode == modeCreatePayCredit || (s.cfg.mode == modeCreatePay && shouldIssueCredit(s.index, s.cfg.creditRate)) {
		return s.adjustWithCreditNote(ctx, orderID)
	}
	return nil
}

// checkSettled сверяет ответ последнего платежа: pending 0 и статус fully_paid.
func (s *scenario) checkSettled(resp *ledgerv1.OrderResponse) error {
	code := codes.OK
	var err error
	if resp == nil || resp.Order == nil ||
		resp.Order.FinancialStatus != string(domain.FinancialStatusFullyPaid) ||
		!resp.Order.Totals.PendingAmount.IsZero() {
		code = codes.FailedPrecondition
		err = errNotSettled
		if resp != nil && resp.Order != nil {
			err = fmt.Errorf("%w: order %s status=%s pending=%s", errNotSettled,
				resp.Order.ID, resp.Order.FinancialStatus, resp.Order.Totals.PendingAmount)
		}
	}
	s.col.record(settlementCheck, 0, code)
	return err
}

func (s *scenario) adjustWithCreditNote(ctx context.Context, orderID string) error {
	noteID := s.key("cn", -1)
	_, err := s.call(ctx, "IssueCreditNote", s.key("issue", -1), func(ctx context.Context) (*ledgerv1.OrderResponse, error) {
		return s.client.IssueCreditNote(ctx, &ledgerv1.IssueCreditNoteRequest{
			OrderID:      orderID,
			CreditNoteID: noteID,
			Amount:       s.cfg.price,
			Reason:       string(domain.CreditNoteReasonRateDifference),
			Date:         time.Now().UTC(),
		})
	})
	if err != nil {
		return err
	}
	_, err = s.call(ctx, "TransitionCreditNote", s.key("adjust", -1), func(ctx context.Context) (*ledgerv1.OrderResponse, error) {
		return s.client.TransitionCreditNote(ctx, &ledgerv1.TransitionCreditNoteRequest{
			OrderID:      orderID,
			CreditNoteID: noteID,
			To:           string(domain.CreditNoteStatusAdjusted),
		})
	})
	return err
}

// splitInstallments делит сумму на n платежей по 2 знака; остаток округления уходит в последний.
func splitInstallments(total decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 || !total.IsPositive() {
		return nil
	}
	part := total.Div(decimal.NewFromInt(int64(n))).RoundDown(2)
	out := make([]decimal.Decimal, n)
	rest := total
	for i := 0; i < n-1; i++ {
		out[i] = part
		rest = rest.Sub(part)
	}
	out[n-1] = rest
	return out
}

func shouldIssueCredit(index, creditRate int) bool {
	return creditRate > 0 && (creditRate >= 100 || index%100 < creditRate)
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	UnsettledOrders   int64                   `json:"unsettled_orders"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

type methodStats struct {
	calls     int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

func (m *methodStats) report() methodReport {
	codesCopy := make(map[string]int64, len(m.codes))
	for code, count := range m.codes {
		codesCopy[code] = count
	}
	return methodReport{
		Calls:     m.calls,
		Success:   m.calls - m.failed,
		Failed:    m.failed,
		ErrorRate: ratio(m.failed, m.calls),
		Codes:     codesCopy,
		LatencyMs: buildLatencySummary(m.latencies),
	}
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
}

func newCollector() *collector {
	return &collector{methods: make(map[string]*methodStats)}
}

func (c *collector) record(method string, latency time.Duration, code codes.Code) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[method]
	if !ok {
		stats = &methodStats{codes: make(map[string]int64)}
		c.methods[method] = stats
	}
	stats.calls++
	if code != codes.OK {
		stats.failed++
	}
	stats.codes[code.String()]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) snapshot(method string) (methodReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[method]
	if !ok {
		return methodReport{}, false
	}
	return stats.report(), true
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Methods:         make(map[string]methodReport, len(c.methods)),
	}
	for name, stats := range c.methods {
		result.Methods[name] = stats.report()
	}

	if scenarios, ok := result.Methods[scenarioMethod]; ok {
		result.TotalScenarios = scenarios.Calls
		result.SuccessScenarios = scenarios.Success
		result.FailedScenarios = scenarios.Failed
		result.ErrorRate = scenarios.ErrorRate
		result.ScenarioLatencyMs = scenarios.LatencyMs
	}
	result.UnsettledOrders = result.Methods[settlementCheck].Failed
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}
	return result
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- путь к отчёту задаётся флагом -output.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(w io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintln(w, "Load test summary")
	_, _ = fmt.Fprintf(w, "mode=%s run=%s total=%d success=%d failed=%d unsettled=%d error_rate=%.4f\n",
		cfg.mode, runTarget(cfg),
		result.TotalScenarios, result.SuccessScenarios, result.FailedScenarios, result.UnsettledOrders,
		result.ErrorRate,
	)
	_, _ = fmt.Fprintf(w, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	lat := result.ScenarioLatencyMs
	_, _ = fmt.Fprintf(w, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		lat.Min, lat.Avg, lat.P50, lat.P95, lat.P99, lat.Max)

	names := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name != scenarioMethod {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		m := result.Methods[name]
		_, _ = fmt.Fprintf(w, "%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name, m.Calls, m.Success, m.Failed, m.ErrorRate, m.LatencyMs.P95)
	}
}

func runTarget(cfg config) string {
	switch {
	case cfg.duration <= 0:
		return fmt.Sprintf("count:%d", cfg.total)
	case cfg.totalSet:
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	default:
		return fmt.Sprintf("duration:%s", cfg.duration)
	}
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}
	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

// percentile считает линейную интерполяцию между соседними рангами.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p / 100.0) * float64(len(sorted)-1)
	lower, upper := int(math.Floor(rank)), int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	return sorted[lower] + (sorted[upper]-sorted[lower])*(rank-float64(lower))
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
