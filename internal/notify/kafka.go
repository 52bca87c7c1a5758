package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-dispatch/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink publishes events keyed by ride id so one ride's events stay ordered.
type KafkaSink struct {
	writer  messageWriter
	timeout time.Duration
	logger  *slog.Logger
}

func NewKafkaSink(brokers []string, topic string, logger *slog.Logger) *KafkaSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaSink(w, logger)
}

func newKafkaSink(w messageWriter, logger *slog.Logger) *KafkaSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaSink{writer: w, timeout: 2 * time.Second, logger: logger}
}

func (k *KafkaSink) Notify(ctx context.Context, userID string, e models.Event) {
	b, err := json.Marshal(Message{UserID: userID, Event: e})
	if err != nil {
		k.logger.ErrorContext(ctx, "kafka marshal event", "error", err)
		return
	}
	// detached from the request so a finished HTTP call does not abort delivery
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.timeout)
	defer cancel()
	msg := kafka.Message{
		Key:     []byte(e.RideID),
		Value:   b,
		Headers: []kafka.Header{{Key: "routing_key", Value: []byte(routingKey(e))}},
	}
	if err := k.writer.WriteMessages(wctx, msg); err != nil {
		k.logger.WarnContext(ctx, "kafka publish event failed", "user_id", userID, "ride_id", e.RideID, "error", err)
	}
}

func (k *KafkaSink) Close() error {
	if c, ok := k.writer.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
