package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/directory"
	"github.com/example/ride-dispatch/internal/eta"
	"github.com/example/ride-dispatch/internal/fare"
	httpapi "github.com/example/ride-dispatch/internal/http"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/lifecycle"
	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/matcher"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger("dispatch-api", cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}()

	dir, err := openDirectory(ctx, cfg, logger)
	if err != nil {
		logger.Error("directory init failed", "error", err)
		os.Exit(1)
	}
	closers = append(closers, dir.close)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("ride store init failed", "error", err)
		os.Exit(1)
	}
	if c, ok := store.(interface{ Close() error }); ok {
		closers = append(closers, c.Close)
	}

	wsreg := notify.NewWSRegistry(logger)
	sinks := notify.Multi{notify.LogSink{Logger: logger}, wsreg}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaEventTopic != "" {
		ks := notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaEventTopic, logger)
		sinks = append(sinks, ks)
		closers = append(closers, ks.Close)
	}
	if cfg.AMQPURL != "" {
		as, err := notify.DialAMQPSink(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			// events still reach the other sinks
			logger.Warn("amqp sink disabled", "error", err)
		} else {
			sinks = append(sinks, as)
			closers = append(closers, as.Close)
		}
	}

	estimator := &eta.Estimator{Cache: eta.NewCache(cfg.ETACacheTTL), SpeedMps: cfg.Fare.AvgSpeedKmh * 1000 / 3600}
	if cfg.OSRMURL != "" {
		osrm := eta.NewOSRMClient(cfg.OSRMURL)
		osrm.Profile = cfg.OSRMProfile
		estimator.Client = osrm
	}

	locator := &matcher.Locator{Directory: dir, DefaultRadiusKm: cfg.Dispatch.RadiusKm}
	dispatcher := &matcher.Service{
		Locator: locator,
		Gate:    &matcher.Gate{Store: store, MaxActive: cfg.Dispatch.MaxActiveRides},
		Store:   store,
		Fare: fare.NewCalculator(fare.Config{
			BaseFare:     cfg.Fare.BaseFare,
			PerKm:        cfg.Fare.PerKm,
			AvgSpeedKmh:  cfg.Fare.AvgSpeedKmh,
			MaxSurge:     cfg.Fare.MaxSurge,
			SurgePerUnit: fare.DefaultSurgePerUnit,
		}),
		ETA:      estimator,
		Notifier: sinks,
		Logger:   logger,
	}
	manager := &lifecycle.Manager{
		Store:     store,
		Directory: dir,
		Notifier:  sinks,
		Logger:    logger,
		MaxActive: cfg.Dispatch.MaxActiveRides,
	}

	deps := httpapi.Deps{
		Dispatcher: dispatcher,
		Lifecycle:  manager,
		Finder:     locator,
		Rides:      store,
		WSReg:      wsreg,
		Logger:     logger,
	}
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaLocationTopic)
		deps.Locations = kp
		closers = append(closers, kp.Close)
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(deps),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ride-dispatch listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
		}
		return
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

type seededDirectory struct {
	directory.Directory
	close func() error
}

func openDirectory(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (seededDirectory, error) {
	var seed []models.User
	if cfg.DirectorySeedFile != "" {
		f, err := os.Open(cfg.DirectorySeedFile)
		if err != nil {
			return seededDirectory{}, err
		}
		seed, err = directory.ReadSeed(f)
		_ = f.Close()
		if err != nil {
			return seededDirectory{}, err
		}
	}

	if cfg.RedisAddr == "" {
		mem := directory.NewMemoryDirectory()
		for _, u := range seed {
			mem.Upsert(u)
		}
		logger.Info("using in-memory directory", "seeded", len(seed))
		return seededDirectory{Directory: mem, close: func() error { return nil }}, nil
	}

	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return seededDirectory{}, err
	}
	rd := directory.NewRedisDirectory(rc, cfg.RedisKeyPrefix)
	for _, u := range seed {
		if err := rd.Upsert(ctx, u); err != nil {
			_ = rc.Close()
			return seededDirectory{}, err
		}
	}
	logger.Info("using redis directory", "addr", cfg.RedisAddr, "seeded", len(seed))
	return seededDirectory{Directory: rd, close: rc.Close}, nil
}

func openStore(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (storage.RideStore, error) {
	if cfg.PGDSN == "" {
		logger.Info("using in-memory ride store")
		return storage.NewMemoryStore(), nil
	}
	ps, err := storage.NewPostgresStore(cfg.PGDSN)
	if err != nil {
		return nil, err
	}
	if cfg.RunMigrations {
		applied, err := ps.Migrate(ctx, cfg.MigrationsDir)
		if err != nil {
			_ = ps.Close()
			return nil, err
		}
		logger.Info("migrations applied", "files", applied)
	}
	return ps, nil
}
