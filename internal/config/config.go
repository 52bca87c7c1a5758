package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are loaded from environment variables with defaults so the binary
// runs locally on in-memory stores without any setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr      string
	RedisPassword  string
	RedisKeyPrefix string

	// DirectorySeedFile is a JSON array of users loaded at startup.
	DirectorySeedFile string

	PGDSN         string
	RunMigrations bool
	// MigrationsDir holds the *.sql files applied when RunMigrations is set.
	MigrationsDir string

	KafkaBrokers       []string
	KafkaLocationTopic string
	KafkaEventTopic    string

	AMQPURL      string
	AMQPExchange string

	OSRMURL     string
	OSRMProfile string
	ETACacheTTL time.Duration

	Dispatch DispatchConfig
	Fare     FareConfig

	LogLevel string
}

type DispatchConfig struct {
	RadiusKm       float64
	MaxActiveRides int
}

type FareConfig struct {
	BaseFare    float64
	PerKm       float64
	AvgSpeedKmh float64
	MaxSurge    float64
}

// ConsumerConfig is the location consumer's configuration.
type ConsumerConfig struct {
	MetricsAddr string

	KafkaBrokers       []string
	KafkaLocationTopic string
	KafkaGroup         string

	RedisAddr      string
	RedisPassword  string
	RedisKeyPrefix string

	RetryAttempts int
	RetryDelay    time.Duration

	LogLevel string
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:           ":8080",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       10 * time.Second,
		IdleTimeout:        120 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		RedisKeyPrefix:     "dispatch:",
		KafkaLocationTopic: "driver-locations",
		KafkaEventTopic:    "ride-events",
		AMQPExchange:       "ride_events",
		OSRMProfile:        "driving",
		ETACacheTTL:        30 * time.Second,
		MigrationsDir:      "migrations",
		Dispatch: DispatchConfig{
			RadiusKm:       5,
			MaxActiveRides: 3,
		},
		Fare: FareConfig{
			BaseFare:    2.50,
			PerKm:       1.50,
			AvgSpeedKmh: 30,
			MaxSurge:    3.0,
		},
		LogLevel: "info",
	}
}

func defaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		MetricsAddr:        ":2112",
		KafkaBrokers:       []string{"localhost:9092"},
		KafkaLocationTopic: "driver-locations",
		KafkaGroup:         "ride-dispatch-locations",
		RedisAddr:          "localhost:6379",
		RedisKeyPrefix:     "dispatch:",
		RetryAttempts:      3,
		RetryDelay:         200 * time.Millisecond,
		LogLevel:           "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisKeyPrefix, "REDIS_KEY_PREFIX")
	cfg.DirectorySeedFile = strings.TrimSpace(os.Getenv("DIRECTORY_SEED_FILE"))

	cfg.PGDSN = os.Getenv("PG_DSN")
	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")
	setStringFromEnv(&cfg.MigrationsDir, "MIGRATIONS_DIR")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaLocationTopic, "KAFKA_LOCATION_TOPIC")
	setStringFromEnv(&cfg.KafkaEventTopic, "KAFKA_EVENT_TOPIC")

	cfg.AMQPURL = strings.TrimSpace(os.Getenv("AMQP_URL"))
	setStringFromEnv(&cfg.AMQPExchange, "AMQP_EXCHANGE")

	cfg.OSRMURL = strings.TrimSpace(os.Getenv("OSRM_URL"))
	setStringFromEnv(&cfg.OSRMProfile, "OSRM_PROFILE")
	setDurationFromEnv(&cfg.ETACacheTTL, "ETA_CACHE_TTL", &errs)

	setFloatFromEnv(&cfg.Dispatch.RadiusKm, "DISPATCH_RADIUS_KM", &errs)
	setIntFromEnv(&cfg.Dispatch.MaxActiveRides, "DISPATCH_MAX_ACTIVE_RIDES", &errs)
	setFloatFromEnv(&cfg.Fare.BaseFare, "FARE_BASE", &errs)
	setFloatFromEnv(&cfg.Fare.PerKm, "FARE_PER_KM", &errs)
	setFloatFromEnv(&cfg.Fare.AvgSpeedKmh, "FARE_AVG_SPEED_KMH", &errs)
	setFloatFromEnv(&cfg.Fare.MaxSurge, "FARE_MAX_SURGE", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.Dispatch.RadiusKm <= 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_RADIUS_KM must be > 0"))
	}
	if cfg.Dispatch.MaxActiveRides <= 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_MAX_ACTIVE_RIDES must be > 0"))
	}
	if cfg.Fare.BaseFare < 0 || cfg.Fare.PerKm < 0 {
		errs = append(errs, fmt.Errorf("FARE_BASE and FARE_PER_KM must be >= 0"))
	}
	if cfg.Fare.AvgSpeedKmh <= 0 {
		errs = append(errs, fmt.Errorf("FARE_AVG_SPEED_KMH must be > 0"))
	}
	if cfg.Fare.MaxSurge < 1 {
		errs = append(errs, fmt.Errorf("FARE_MAX_SURGE must be >= 1"))
	}

	return cfg, errors.Join(errs...)
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	cfg := defaultConsumerConfig()
	var errs []error

	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaLocationTopic, "KAFKA_LOCATION_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")

	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisKeyPrefix, "REDIS_KEY_PREFIX")

	setIntFromEnv(&cfg.RetryAttempts, "CONSUMER_RETRY_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.RetryDelay, "CONSUMER_RETRY_DELAY", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, fmt.Errorf("KAFKA_BROKERS must list at least one broker"))
	}
	if cfg.RetryAttempts <= 0 {
		errs = append(errs, fmt.Errorf("CONSUMER_RETRY_ATTEMPTS must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
