package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/vk/mdsweep/internal/ctxlog"
)

// MessageWriter is the slice of kafka.Writer the emitter needs. The
// indirection allows unit tests to capture messages without a broker.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEmitter publishes events as JSON messages keyed by node ID, so all
// events for one node land in the same partition in order.
type KafkaEmitter struct {
	writer MessageWriter
}

// NewKafkaEmitter connects a writer to the given brokers and topic.
func NewKafkaEmitter(brokers []string, topic string) *KafkaEmitter {
	return &KafkaEmitter{writer: &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
		// Lifecycle events are small and frequent; don't batch them for
		// a full second (the library default) before flushing.
		BatchTimeout: 50 * time.Millisecond,
	}}
}

// NewKafkaEmitterWith wraps an existing writer; used by tests.
func NewKafkaEmitterWith(w MessageWriter) *KafkaEmitter {
	return &KafkaEmitter{writer: w}
}

// Emit implements Emitter. Failures are logged and dropped.
func (e *KafkaEmitter) Emit(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		ctxlog.FromContext(ctx).Error("Failed to encode run event.", "kind", ev.Kind, "error", err)
		return
	}
	msg := kafka.Message{Key: []byte(ev.NodeID), Value: payload}
	if ev.NodeID == "" {
		msg.Key = []byte(ev.RunID)
	}
	if err := e.writer.WriteMessages(ctx, msg); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to publish run event.", "kind", ev.Kind, "error", err)
	}
}

// Close flushes and closes the underlying writer.
func (e *KafkaEmitter) Close() error {
	return e.writer.Close()
}
