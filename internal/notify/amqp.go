package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/example/ride-dispatch/internal/models"
)

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes events to a topic exchange with routing keys
// ride.created and ride.status.<status>.
type AMQPSink struct {
	conn     *amqp.Connection
	ch       amqpPublisher
	exchange string
	timeout  time.Duration
	logger   *slog.Logger
}

func DialAMQPSink(url, exchange string, logger *slog.Logger) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	s := newAMQPSink(ch, exchange, logger)
	s.conn = conn
	return s, nil
}

func newAMQPSink(ch amqpPublisher, exchange string, logger *slog.Logger) *AMQPSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPSink{ch: ch, exchange: exchange, timeout: 5 * time.Second, logger: logger}
}

func (a *AMQPSink) Notify(ctx context.Context, userID string, e models.Event) {
	body, err := json.Marshal(Message{UserID: userID, Event: e})
	if err != nil {
		a.logger.ErrorContext(ctx, "amqp marshal event", "error", err)
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()
	key := routingKey(e)
	err = a.ch.PublishWithContext(pctx, a.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.At,
	})
	if err != nil {
		a.logger.WarnContext(ctx, "amqp publish event failed", "routing_key", key, "ride_id", e.RideID, "error", err)
	}
}

func (a *AMQPSink) Close() error {
	if a.conn == nil {
		return nil
	}
	return a.conn.Close()
}
