package kafka

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/couchcryptid/fishtank-etl/internal/config"
	"github.com/couchcryptid/fishtank-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Dead-letter header keys.
const (
	HeaderError           = "dlq_error"
	HeaderSourceTopic     = "dlq_source_topic"
	HeaderSourcePartition = "dlq_source_partition"
	HeaderSourceOffset    = "dlq_source_offset"
	HeaderFailedAt        = "dlq_failed_at"
)

// DeadLetterWriter republishes rejected messages to a dead-letter topic.
// It implements pipeline.DeadLetterer.
type DeadLetterWriter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewDeadLetterWriter creates a producer for the configured dead-letter topic.
func NewDeadLetterWriter(cfg *config.Config, logger *slog.Logger) *DeadLetterWriter {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.DeadLetterTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &DeadLetterWriter{writer: w, logger: logger}
}

// Publish writes the original message with headers describing the failure.
func (w *DeadLetterWriter) Publish(ctx context.Context, raw domain.RawEvent, cause error) error {
	return w.writer.WriteMessages(ctx, deadLetterMessage(raw, cause, time.Now().UTC()))
}

func (w *DeadLetterWriter) Close() error {
	return w.writer.Close()
}

// deadLetterMessage keeps the original key, value and headers and appends the
// failure context.
func deadLetterMessage(raw domain.RawEvent, cause error, failedAt time.Time) kafkago.Message {
	keys := make([]string, 0, len(raw.Headers))
	for k := range raw.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	headers := make([]kafkago.Header, 0, len(keys)+5)
	for _, k := range keys {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(raw.Headers[k])})
	}
	headers = append(headers,
		kafkago.Header{Key: HeaderError, Value: []byte(cause.Error())},
		kafkago.Header{Key: HeaderSourceTopic, Value: []byte(raw.Topic)},
		kafkago.Header{Key: HeaderSourcePartition, Value: []byte(strconv.Itoa(raw.Partition))},
		kafkago.Header{Key: HeaderSourceOffset, Value: []byte(strconv.FormatInt(raw.Offset, 10))},
		kafkago.Header{Key: HeaderFailedAt, Value: []byte(failedAt.Format(time.RFC3339))},
	)
	return kafkago.Message{Key: raw.Key, Value: raw.Value, Headers: headers}
}
