package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func silentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestParseConfig(t *testing.T) {
	cfg := ParseConfig(" broker-1:9092, broker-2:9092 ,", "expense-syncs")
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Brokers)
	assert.Equal(t, "expense-syncs", cfg.SyncTopic)
}

func TestProducer_PublishSyncEvent(t *testing.T) {
	writer := &recordingWriter{}
	producer := NewProducerWithWriter(writer, "expense-syncs", silentLogger())

	err := producer.PublishSyncEvent(context.Background(), &SyncEvent{
		TenantID:        "company-1",
		Provider:        "fortnox",
		InvoicesFetched: 2,
		VendorsCreated:  2,
		ExpensesCreated: 2,
	})
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "company-1", string(msg.Key))

	var evt SyncEvent
	require.NoError(t, json.Unmarshal(msg.Value, &evt))
	assert.Equal(t, EventSyncCompleted, evt.Type)
	assert.Equal(t, 2, evt.ExpensesCreated)
	assert.False(t, evt.Timestamp.IsZero())

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "fortnox", headers["provider"])
	assert.Equal(t, EventSyncCompleted, headers["type"])
}

func TestProducer_PublishSyncEventError(t *testing.T) {
	writer := &recordingWriter{err: errors.New("leader not available")}
	producer := NewProducerWithWriter(writer, "expense-syncs", silentLogger())

	err := producer.PublishSyncEvent(context.Background(), &SyncEvent{TenantID: "company-1"})
	assert.EqualError(t, err, "leader not available")

	assert.Error(t, producer.PublishSyncEvent(context.Background(), nil))
}

type blockingWriter struct{}

func (blockingWriter) WriteMessages(ctx context.Context, _ ...kafka.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingWriter) Close() error { return nil }

func TestProducer_PublishIsBounded(t *testing.T) {
	producer := NewProducerWithWriter(blockingWriter{}, "expense-syncs", silentLogger())
	producer.timeout = 20 * time.Millisecond

	start := time.Now()
	err := producer.PublishSyncEvent(context.Background(), &SyncEvent{TenantID: "company-1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestParseConfigDefaultsPublishTimeout(t *testing.T) {
	assert.Equal(t, DefaultPublishTimeout, ParseConfig("broker:9092", "expense-syncs").PublishTimeout)
}
