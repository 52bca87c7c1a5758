// Package ingest carries driver location updates over Kafka.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-dispatch/internal/models"
)

// LocationUpdate is the wire form of one driver position report.
type LocationUpdate struct {
	DriverID string       `json:"driver_id"`
	Location models.Coord `json:"location"`
	At       time.Time    `json:"at"`
}

var ErrMalformedUpdate = errors.New("malformed location update")

// DecodeLocation parses and validates a message value.
func DecodeLocation(b []byte) (LocationUpdate, error) {
	var u LocationUpdate
	if err := json.Unmarshal(b, &u); err != nil {
		return LocationUpdate{}, fmt.Errorf("%w: %v", ErrMalformedUpdate, err)
	}
	if u.DriverID == "" {
		return LocationUpdate{}, fmt.Errorf("%w: missing driver_id", ErrMalformedUpdate)
	}
	if err := models.ValidateCoord(u.Location); err != nil {
		return LocationUpdate{}, fmt.Errorf("%w: %v", ErrMalformedUpdate, err)
	}
	return u, nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaProducer struct {
	writer messageWriter
	now    func() time.Time
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: topic, Balancer: &kafka.LeastBytes{}}
	return &KafkaProducer{writer: w, now: time.Now}
}

// PublishLocation writes one update keyed by driver id so a driver's
// reports stay ordered within a partition.
func (k *KafkaProducer) PublishLocation(ctx context.Context, driverID string, c models.Coord) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := json.Marshal(LocationUpdate{DriverID: driverID, Location: c, At: k.now().UTC()})
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(driverID), Value: b})
}

func (k *KafkaProducer) Close() error {
	if c, ok := k.writer.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
