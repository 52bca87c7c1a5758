package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/directory"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/lifecycle"
	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/models"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total driver location messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid or rejected messages",
	})
	locationUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_location_updates_total",
		Help: "Total driver locations applied",
	})
	locationErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_location_errors_total",
		Help: "Total location updates that failed after retries",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, locationUpdates, locationErrors)
}

func main() {
	cfg, err := config.LoadConsumerConfig()
	logger := logging.NewLogger("location-consumer", cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// flag overrides env for local runs
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address to serve prometheus metrics on")
	flag.Parse()

	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	manager := &lifecycle.Manager{Directory: directory.NewRedisDirectory(rc, cfg.RedisKeyPrefix), Logger: logger}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaLocationTopic, GroupID: cfg.KafkaGroup, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	logger.Info("consumer listening", "topic", cfg.KafkaLocationTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff.String())
			if !sleepCtx(ctx, backoff) {
				logger.Info("shutting down consumer")
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
		msgsConsumed.Inc()

		u, err := ingest.DecodeLocation(m.Value)
		if err != nil {
			msgsInvalid.Inc()
			logger.Warn("invalid message", "offset", m.Offset, "error", err)
			continue
		}
		switch err := applyWithRetry(ctx, manager, u, cfg.RetryAttempts, cfg.RetryDelay); {
		case err == nil:
			locationUpdates.Inc()
		case isPermanent(err):
			msgsInvalid.Inc()
			logger.Warn("location rejected", "driver_id", u.DriverID, "error", err)
		default:
			locationErrors.Inc()
			logger.Error("location update failed", "driver_id", u.DriverID, "error", err)
		}
	}
}

// LocationApplier is the part of the lifecycle manager the consumer drives.
type LocationApplier interface {
	UpdateDriverLocation(ctx context.Context, driverID string, c models.Coord) error
}

// applyWithRetry retries collaborator failures with doubling delay. Domain
// rejections are returned immediately.
func applyWithRetry(ctx context.Context, a LocationApplier, u ingest.LocationUpdate, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = a.UpdateDriverLocation(ctx, u.DriverID, u.Location)
		if err == nil || isPermanent(err) || i == attempts-1 {
			return err
		}
		if !sleepCtx(ctx, delay) {
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func isPermanent(err error) bool {
	return errors.Is(err, models.ErrDriverNotFound) ||
		errors.Is(err, models.ErrNotADriver) ||
		errors.Is(err, models.ErrInvalidCoordinate)
}

