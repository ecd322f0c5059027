package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"
	"time"

	"machine_monitor/internal/config"
	"machine_monitor/internal/events"
	"machine_monitor/internal/handlers"
	"machine_monitor/internal/ingest"
	"machine_monitor/internal/lock"
	"machine_monitor/internal/logger"
	"machine_monitor/internal/repository"
	"machine_monitor/internal/repository/db"
	"machine_monitor/internal/server"
	"machine_monitor/internal/service"
	"machine_monitor/internal/status"

	"github.com/go-redis/redis/v8"
	"github.com/heptiolabs/healthcheck"
	"golang.org/x/sync/errgroup"
)

const configDir = "configs"

func main() {
	v := config.New(configDir)
	cfg, err := config.Load(v)
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	// init logger
	log := logger.Get(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = log.Sync() }()

	conn, err := openDB(cfg.DB)
	if err != nil {
		log.Fatalw("failed to open database", "driver", cfg.DB.Driver, "err", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close database", "err", cerr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// wire dependencies
	repos := repository.NewRepository(conn, db.Dialect(cfg.DB.Driver))
	resolver := status.NewResolver(repos.StatusConfigs, cfg.Status, cfg.Cache.StatusTTL, log)
	config.Watch(v, log, resolver.Apply)

	locker, closeLocker := newLocker(cfg, log)
	defer closeLocker()

	services := service.NewService(repos, locker, resolver, service.Options{
		LockLease:    cfg.Lock.Lease,
		LockWait:     cfg.Lock.Wait,
		OfflineAfter: cfg.Offline.After,
	}, log)

	// repair leftovers from earlier crashes before accepting traffic
	if report, err := services.HealAll(ctx); err != nil {
		log.Warnw("startup_heal_incomplete", "machines", report.Machines, "closed", report.Closed, "err", err)
	} else if report.Closed > 0 {
		log.Infow("startup_heal_done", "machines", report.Machines, "closed", report.Closed)
	}

	hub := events.NewHub(log)
	var sink events.Sink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
		defer func() { _ = kafkaSink.Close() }()
		sink = kafkaSink
	}
	dispatcher := events.NewDispatcher(repos.Outbox, sink, hub, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize, log)

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	health.AddReadinessCheck("database", healthcheck.DatabasePingCheck(conn, time.Second))

	apiHandler := handlers.NewHandler(services, health, hub, log)
	srv := server.New(cfg.Port, apiHandler.InitRoutes())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("http_server_started", "addr", srv.Addr())
		return srv.Run(gctx)
	})
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		dispatcher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		services.Sweeper.Run(gctx, cfg.Offline.SweepInterval)
		return nil
	})
	if len(cfg.Kafka.Brokers) > 0 {
		reader := ingest.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.SignalsTopic, cfg.Kafka.GroupID)
		consumer := ingest.NewConsumer(reader, services, log)
		g.Go(func() error {
			defer func() { _ = reader.Close() }()
			return consumer.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Errorw("shutdown_with_error", "err", err)
		return
	}
	log.Infow("shutdown_complete")
}

func openDB(cfg config.DBConfig) (*sql.DB, error) {
	dsn := cfg.DSN
	if cfg.Driver == string(db.SQLite) {
		dsn = cfg.Path
	}
	return db.Open(db.Dialect(cfg.Driver), dsn)
}

// newLocker returns the configured lock backend and its cleanup.
func newLocker(cfg config.Config, log *logger.Logger) (lock.Locker, func()) {
	if cfg.Lock.Backend != "redis" {
		return lock.NewMapLocker(), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	log.Infow("using redis lock backend", "addr", cfg.Redis.Addr)
	return lock.NewRedisLocker(client), func() { _ = client.Close() }
}
