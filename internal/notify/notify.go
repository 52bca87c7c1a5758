// Package notify delivers ride events to riders and drivers. Every Sink is
// fire-and-forget: delivery failures are logged, never returned to the caller.
package notify

import (
	"context"
	"log/slog"

	"github.com/example/ride-dispatch/internal/models"
)

type Sink interface {
	Notify(ctx context.Context, userID string, e models.Event)
}

// Message is the envelope written to brokers.
type Message struct {
	UserID string       `json:"user_id"`
	Event  models.Event `json:"event"`
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, string, models.Event) {}

type LogSink struct {
	Logger *slog.Logger
}

func (l LogSink) Notify(ctx context.Context, userID string, e models.Event) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notify", "user_id", userID, "event", string(e.Type), "ride_id", e.RideID, "to_status", string(e.ToStatus))
}

// Multi fans an event out to every sink in order.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, userID string, e models.Event) {
	for _, s := range m {
		if s != nil {
			s.Notify(ctx, userID, e)
		}
	}
}

func routingKey(e models.Event) string {
	switch e.Type {
	case models.EventRideCreated:
		return "ride.created"
	case models.EventRideStatusChanged:
		return "ride.status." + string(e.ToStatus)
	default:
		return "ride.event"
	}
}
