package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/linqan85-spec/spendo-sub000/pkg/metrics"
	"github.com/linqan85-spec/spendo-sub000/pkg/tracing"
)

// EventSyncCompleted is published after a sync persisted its timestamp
const EventSyncCompleted = "sync.completed"

// DefaultPublishTimeout bounds a publish that runs inside a request
const DefaultPublishTimeout = 2 * time.Second

// Config holds Kafka configuration
type Config struct {
	Brokers   []string
	SyncTopic string
	// PublishTimeout caps one publish including retries
	PublishTimeout time.Duration
}

// ParseConfig parses a comma-separated broker string
func ParseConfig(brokers string, syncTopic string) Config {
	var brokerList []string
	for _, broker := range strings.Split(brokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokerList = append(brokerList, broker)
		}
	}

	return Config{
		Brokers:        brokerList,
		SyncTopic:      syncTopic,
		PublishTimeout: DefaultPublishTimeout,
	}
}

// MessageWriter is the part of kafka.Writer the producer uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes sync lifecycle events
type Producer struct {
	writer  MessageWriter
	logger  ectologger.Logger
	topic   string
	timeout time.Duration
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.SyncTopic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		// one attempt; the sync has already committed and a lost event is only logged
		MaxAttempts:  1,
		WriteTimeout: cfg.PublishTimeout,
		// Dev brokers may not have the topic yet
		AllowAutoTopicCreation: true,
	}

	producer := NewProducerWithWriter(writer, cfg.SyncTopic, logger)
	producer.timeout = cfg.PublishTimeout
	return producer
}

// NewProducerWithWriter builds a producer over any writer
func NewProducerWithWriter(writer MessageWriter, topic string, logger ectologger.Logger) *Producer {
	return &Producer{
		writer:  writer,
		logger:  logger,
		topic:   topic,
		timeout: DefaultPublishTimeout,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// SyncEvent summarizes one finished sync
type SyncEvent struct {
	Type            string    `json:"type"`
	TenantID        string    `json:"tenant_id"`
	Provider        string    `json:"provider"`
	InvoicesFetched int       `json:"invoices_fetched"`
	VendorsCreated  int       `json:"vendors_created"`
	ExpensesCreated int       `json:"expenses_created"`
	ExpensesUpdated int       `json:"expenses_updated"`
	Timestamp       time.Time `json:"timestamp"`
	TraceID         string    `json:"trace_id,omitempty"`
}

// PublishSyncEvent publishes evt keyed by tenant so a tenant's events stay ordered
func (p *Producer) PublishSyncEvent(ctx context.Context, evt *SyncEvent) error {
	if evt == nil {
		return fmt.Errorf("sync event is nil")
	}

	ctx, span := tracing.StartSpan(ctx, "Kafka.PublishSyncEvent",
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.topic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("tenant_id", evt.TenantID),
		attribute.String("provider", evt.Provider),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if evt.Type == "" {
		evt.Type = EventSyncCompleted
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	evt.TraceID = tracing.GetTraceID(ctx)

	data, err := json.Marshal(evt)
	if err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("failed to marshal sync event: %w", err)
	}

	headers := []kafka.Header{
		{Key: "tenant_id", Value: []byte(evt.TenantID)},
		{Key: "provider", Value: []byte(evt.Provider)},
		{Key: "type", Value: []byte(evt.Type)},
	}
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(evt.TenantID),
		Value:   data,
		Headers: headers,
	}); err != nil {
		tracing.RecordError(span, err)
		metrics.RecordKafkaPublish(p.topic, "error")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish sync event to Kafka topic %s", p.topic)
		return err
	}

	metrics.RecordKafkaPublish(p.topic, "success")
	p.logger.WithContext(ctx).Debugf("Published %s for tenant %s provider %s", evt.Type, evt.TenantID, evt.Provider)
	return nil
}
