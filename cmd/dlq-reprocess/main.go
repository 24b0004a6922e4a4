package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderledger/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orderledger/internal/version"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second

	envKafkaBrokers = "LEDGER_KAFKA_BROKERS"

	// headerReplayedFrom помечает сообщения, повторно отправленные из DLQ.
	headerReplayedFrom = "x-replayed-from"
)

// errNotDeadLetter возвращается, когда сообщение в DLQ не похоже ни на один известный формат.
var errNotDeadLetter = errors.New("not a ledger dead letter")

type options struct {
	brokers     []string
	dlqTopic    string
	eventsTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
	orderID     string
	// kinds задаёт типы команд или событий, пустой набор пропускает всё.
	kinds map[string]struct{}
}

// replayCandidate хранит команду или событие, восстановленное из DLQ.
type replayCandidate struct {
	kind    string
	orderID string
	topic   string
	key     string
	value   []byte
	headers []sarama.RecordHeader
	reason  string
}

// outboxDeadLetter повторяет payload, который outbox worker кладёт в DLQ после исчерпания попыток.
type outboxDeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type replayProducer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

var newReplayDependencies = func(opts options) (offsetClient, partitionConsumerSource, replayProducer, error) {
	clientID := version.KafkaClientID("dlq-reprocess")

	consumerConfig := sarama.NewConfig()
	consumerConfig.ClientID = clientID
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(opts.brokers, consumerConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}
	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	consumer := saramaConsumerAdapter{consumer: rawConsumer}

	if !opts.execute {
		return client, consumer, nil, nil
	}

	producerConfig := sarama.NewConfig()
	producerConfig.ClientID = clientID
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Retry.Max = 5
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Compression = sarama.CompressionSnappy
	producerConfig.Producer.Idempotent = true
	producerConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(opts.brokers, producerConfig)
	if err != nil {
		_ = consumer.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return client, consumer, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("failed to load .env")
	}

	opts, err := parseOptions(os.Args[1:], os.LookupEnv)
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func parseOptions(args []string, lookup func(string) (string, bool)) (options, error) {
	var (
		brokersRaw string
		kindsRaw   string
		opts       options
	)

	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: "+envKafkaBrokers+")")
	fs.StringVar(&opts.dlqTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ topic to scan")
	fs.StringVar(&opts.eventsTopic, "target-topic", kafka.TopicOrderEvents, "topic for replayed outbox events")
	fs.IntVar(&opts.limit, "limit", defaultReplayLimit, "max number of DLQ messages to scan")
	fs.BoolVar(&opts.execute, "execute", false, "publish replayed messages; default is dry-run")
	fs.BoolVar(&opts.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	fs.DurationVar(&opts.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	fs.StringVar(&opts.orderID, "order-id", "", "replay only dead letters of this order")
	fs.StringVar(&kindsRaw, "kind", "", "comma-separated command or event types, e.g. payment.record,FinancialStatusChanged")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw, _ = lookup(envKafkaBrokers)
	}
	opts.brokers = splitList(brokersRaw)
	if len(opts.brokers) == 0 {
		return options{}, fmt.Errorf("kafka brokers are required (-brokers or %s)", envKafkaBrokers)
	}
	opts.dlqTopic = strings.TrimSpace(opts.dlqTopic)
	opts.eventsTopic = strings.TrimSpace(opts.eventsTopic)
	if opts.dlqTopic == "" {
		return options{}, errors.New("source-topic is required")
	}
	if opts.eventsTopic == "" {
		return options{}, errors.New("target-topic is required")
	}
	if opts.dlqTopic == opts.eventsTopic {
		return options{}, fmt.Errorf("source-topic and target-topic must differ, both are %q", opts.dlqTopic)
	}
	if opts.limit <= 0 {
		return options{}, errors.New("limit must be > 0")
	}
	if opts.idleTimeout <= 0 {
		return options{}, errors.New("idle-timeout must be > 0")
	}
	opts.orderID = strings.TrimSpace(opts.orderID)
	if kinds := splitList(kindsRaw); len(kinds) > 0 {
		opts.kinds = make(map[string]struct{}, len(kinds))
		for _, kind := range kinds {
			opts.kinds[kind] = struct{}{}
		}
	}
	return opts, nil
}

func splitList(raw string) []string {
	var out []string
	for _, chunk := range strings.Split(raw, ",") {
		if item := strings.TrimSpace(chunk); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func run(ctx context.Context, opts options) error {
	client, consumer, producer, err := newReplayDependencies(opts)
	if err != nil {
		return err
	}
	defer func() {
		if producer != nil {
			_ = producer.Close()
		}
		if consumer != nil {
			_ = consumer.Close()
		}
		if client != nil {
			_ = client.Close()
		}
	}()

	r := &replayer{opts: opts, client: client, consumer: consumer, producer: producer, now: time.Now}
	summary, err := r.run(ctx)
	if err != nil {
		return err
	}
	summary.log(opts)
	return nil
}

// replaySummary подводит итог прохода по DLQ.
type replaySummary struct {
	scanned  int
	replayed int
	filtered int
	skipped  int
	byKind   map[string]int
}

func (s replaySummary) log(opts options) {
	mode := "dry-run"
	if opts.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":     mode,
		"order_id": opts.orderID,
		"scanned":  s.scanned,
		"replayed": s.replayed,
		"filtered": s.filtered,
		"skipped":  s.skipped,
		"by_kind":  s.byKind,
	}).Info("dlq replay finished")
}

type replayer struct {
	opts     options
	client   offsetClient
	consumer partitionConsumerSource
	producer replayProducer
	now      func() time.Time

	summary replaySummary
}

func (r *replayer) run(ctx context.Context) (replaySummary, error) {
	r.summary = replaySummary{byKind: make(map[string]int)}
	if r.client == nil || r.consumer == nil {
		return r.summary, errors.New("kafka client and consumer are required")
	}
	if r.opts.execute && r.producer == nil {
		return r.summary, errors.New("producer is required in execute mode")
	}
	if r.now == nil {
		r.now = time.Now
	}

	partitions, err := r.client.Partitions(r.opts.dlqTopic)
	if err != nil {
		return r.summary, fmt.Errorf("get partitions for topic %s: %w", r.opts.dlqTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", r.opts.dlqTopic).Warn("dlq topic has no partitions")
		return r.summary, nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		budget := r.opts.limit - r.summary.scanned
		if budget <= 0 {
			break
		}
		if err := r.scanPartition(ctx, partition, budget); err != nil {
			return r.summary, err
		}
	}
	return r.summary, nil
}

func (r *replayer) scanPartition(ctx context.Context, partition int32, budget int) error {
	oldest, err := r.client.GetOffset(r.opts.dlqTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(r.opts.dlqTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return nil
	}

	start := oldest
	if r.opts.fromNewest && newest-int64(budget) > oldest {
		start = newest - int64(budget)
	}

	pc, err := r.consumer.ConsumePartition(r.opts.dlqTopic, partition, start)
	if err != nil {
		return fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.opts.idleTimeout)
	defer idle.Stop()

	for scanned := 0; scanned < budget; {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle.C:
			return nil
		case cerr := <-pc.Errors():
			if cerr != nil {
				return fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(r.opts.idleTimeout)

			scanned++
			r.summary.scanned++
			if err := r.handle(msg); err != nil {
				return err
			}
			if msg.Offset+1 >= newest {
				return nil
			}
		}
	}
	return nil
}

func (r *replayer) handle(msg *sarama.ConsumerMessage) error {
	entry := log.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	candidate, err := decodeDeadLetter(msg.Value, r.opts.eventsTopic)
	if err != nil {
		r.summary.skipped++
		if !errors.Is(err, errNotDeadLetter) {
			entry.WithError(err).Warn("skip malformed dead letter")
		}
		return nil
	}
	if !r.matches(candidate) {
		r.summary.filtered++
		return nil
	}

	entry = entry.WithFields(log.Fields{
		"kind":         candidate.kind,
		"order_id":     candidate.orderID,
		"target_topic": candidate.topic,
		"reason":       candidate.reason,
	})
	if r.opts.execute {
		if _, _, err := r.producer.SendMessage(candidate.producerMessage(msg, r.now())); err != nil {
			return fmt.Errorf("replay %s for order %s: %w", candidate.kind, candidate.orderID, err)
		}
		entry.Debug("dead letter replayed")
	} else {
		entry.Info("dlq replay candidate")
	}
	r.summary.replayed++
	r.summary.byKind[candidate.kind]++
	return nil
}

func (r *replayer) matches(c replayCandidate) bool {
	if r.opts.orderID != "" && c.orderID != r.opts.orderID {
		return false
	}
	if len(r.opts.kinds) > 0 {
		if _, ok := r.opts.kinds[c.kind]; !ok {
			return false
		}
	}
	return true
}

func (c replayCandidate) producerMessage(source *sarama.ConsumerMessage, now time.Time) *sarama.ProducerMessage {
	headers := append([]sarama.RecordHeader{{
		Key:   []byte(headerReplayedFrom),
		Value: []byte(fmt.Sprintf("%s/%d/%d", source.Topic, source.Partition, source.Offset)),
	}}, c.headers...)
	return &sarama.ProducerMessage{
		Topic:     c.topic,
		Key:       sarama.StringEncoder(c.key),
		Value:     sarama.ByteEncoder(c.value),
		Headers:   headers,
		Timestamp: now.UTC(),
	}
}

// decodeDeadLetter распознаёт два формата DLQ: kafka.DeadLetter с командой
// payment.record или credit_note.transition и outbox-конверт с событием заказа.
func decodeDeadLetter(value []byte, eventsTopic string) (replayCandidate, error) {
	var dead kafka.DeadLetter
	if err := json.Unmarshal(value, &dead); err == nil && dead.OriginalValue != "" {
		return decodeCommandDeadLetter(dead)
	}

	var envelope kafka.OutboxEnvelope
	if err := json.Unmarshal(value, &envelope); err != nil || len(envelope.Payload) == 0 {
		return replayCandidate{}, errNotDeadLetter
	}
	return decodeOutboxDeadLetter(envelope, eventsTopic)
}

func decodeCommandDeadLetter(dead kafka.DeadLetter) (replayCandidate, error) {
	cmd, err := kafka.ParseCommand(&sarama.ConsumerMessage{Value: []byte(dead.OriginalValue)})
	if err != nil {
		return replayCandidate{}, fmt.Errorf("decode dead command: %w", err)
	}
	if cmd.Type == "" || strings.TrimSpace(cmd.OrderID) == "" {
		return replayCandidate{}, fmt.Errorf("dead command has no type or order_id")
	}

	topic := strings.TrimSpace(dead.OriginalTopic)
	if topic == "" {
		topic = kafka.TopicCommands
	}
	key := dead.OriginalKey
	if key == "" {
		key = cmd.OrderID
	}
	return replayCandidate{
		kind:    string(cmd.Type),
		orderID: cmd.OrderID,
		topic:   topic,
		key:     key,
		value:   []byte(dead.OriginalValue),
		headers: []sarama.RecordHeader{{Key: []byte(kafka.HeaderCommandType), Value: []byte(cmd.Type)}},
		reason:  dead.ErrorMessage,
	}, nil
}

func decodeOutboxDeadLetter(envelope kafka.OutboxEnvelope, eventsTopic string) (replayCandidate, error) {
	var dead outboxDeadLetter
	if err := json.Unmarshal(envelope.Payload, &dead); err != nil {
		return replayCandidate{}, fmt.Errorf("decode outbox dead letter: %w", err)
	}
	if len(dead.Payload) == 0 || string(dead.Payload) == "null" {
		return replayCandidate{}, errors.New("outbox dead letter has no event payload")
	}

	event := kafka.OutboxEnvelope{
		ID:            firstNonEmpty(dead.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(dead.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(dead.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(dead.EventType, envelope.EventType),
		Payload:       dead.Payload,
		PublishedAt:   envelope.PublishedAt,
	}
	encoded, err := json.Marshal(event)
	if err != nil {
		return replayCandidate{}, fmt.Errorf("encode replayed event: %w", err)
	}

	return replayCandidate{
		kind:    event.EventType,
		orderID: event.AggregateID,
		topic:   eventsTopic,
		key:     firstNonEmpty(event.AggregateID, event.ID),
		value:   encoded,
		reason:  dead.PublishError,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
