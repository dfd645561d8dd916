package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nysenate/openleg-sync/internal/importer"
	"github.com/nysenate/openleg-sync/internal/importer/agendas"
	"github.com/nysenate/openleg-sync/internal/importer/bills"
	"github.com/nysenate/openleg-sync/internal/importer/calendars"
	"github.com/nysenate/openleg-sync/internal/importer/transcripts"
	"github.com/nysenate/openleg-sync/internal/openleg"
	"github.com/nysenate/openleg-sync/internal/reference"
	"github.com/nysenate/openleg-sync/internal/scheduler"
	"github.com/nysenate/openleg-sync/internal/store"
	"github.com/nysenate/openleg-sync/internal/store/memory"
	"github.com/nysenate/openleg-sync/internal/store/sqlstore"
	"github.com/nysenate/openleg-sync/pkg/config"
	"github.com/nysenate/openleg-sync/pkg/health"
	"github.com/nysenate/openleg-sync/pkg/kafka"
	"github.com/nysenate/openleg-sync/pkg/logger"
	"github.com/nysenate/openleg-sync/pkg/metrics"
	"github.com/nysenate/openleg-sync/pkg/postgres"
	"github.com/nysenate/openleg-sync/pkg/redis"
	"github.com/nysenate/openleg-sync/pkg/resilience"
)

// app holds everything a command needs. Fields for disabled backends stay
// nil.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	checker *health.Checker

	docs  store.DocumentStore
	sql   *sqlstore.Store
	refs  store.ReferenceResolver
	cache *reference.Cached

	runner   *scheduler.Runner
	producer *kafka.Producer

	closers []func() error
}

// newApp loads configuration and connects the document store. The API
// runner is only built by withRunner.
func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	a := &app{
		cfg:     cfg,
		logger:  logger.WithComponent("openleg"),
		metrics: metrics.New(),
		checker: health.NewChecker(),
	}
	if err := a.openStore(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openCache(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStore() error {
	switch a.cfg.Store.Driver {
	case "memory":
		mem := memory.New()
		a.docs, a.refs = mem, mem
		a.logger.Warn("using the in-memory store; nothing will persist")
		return nil
	case "sqlite":
		db, err := sqlstore.OpenSQLite(a.cfg.SQLite.Path)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		a.sql = sqlstore.New(db, sqlstore.SQLite)
	case "postgres":
		pg, err := postgres.New(a.cfg.Postgres)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pg.Close)
		a.sql = sqlstore.New(pg.DB, sqlstore.Postgres)
	default:
		return fmt.Errorf("unsupported store driver %q", a.cfg.Store.Driver)
	}
	a.docs, a.refs = a.sql, a.sql
	a.checker.Require("store", a.sql.Ping)
	a.logger.Info("document store ready", "driver", a.cfg.Store.Driver)
	return nil
}

func (a *app) openCache() error {
	if !a.cfg.Redis.Enabled {
		return nil
	}
	rc, err := redis.NewClient(a.cfg.Redis, "openleg:")
	if err != nil {
		return err
	}
	a.closers = append(a.closers, rc.Close)
	a.checker.Optional("redis", rc.Ping)
	a.cache = reference.NewCached(a.refs, rc, a.cfg.Redis.CacheTTL, a.metrics)
	a.refs = a.cache
	return nil
}

// withRunner builds the API client, the processors and the scheduler.
func (a *app) withRunner() {
	loc, err := time.LoadLocation(a.cfg.OpenLeg.TimeZone)
	if err != nil {
		a.logger.Warn("unknown time zone, using UTC", "timeZone", a.cfg.OpenLeg.TimeZone, "error", err)
		loc = time.UTC
	}

	client := openleg.NewClient(openleg.Config{
		Scheme:            a.cfg.OpenLeg.Scheme,
		Host:              a.cfg.OpenLeg.Host,
		Version:           a.cfg.OpenLeg.Version,
		PathPrefix:        openleg.P(a.cfg.OpenLeg.PathPrefix...),
		APIKey:            a.cfg.OpenLeg.APIKey,
		Timeout:           a.cfg.OpenLeg.Timeout,
		RequestsPerSecond: a.cfg.OpenLeg.RequestsPerSecond,
		Burst:             a.cfg.OpenLeg.Burst,
		UserAgent:         a.cfg.OpenLeg.UserAgent,
	}, a.metrics)

	var publisher scheduler.EventPublisher
	if a.cfg.Kafka.Enabled {
		a.producer = kafka.NewProducer(a.cfg.Kafka, a.cfg.Kafka.Topics.RecordImported, a.logger)
		a.closers = append(a.closers, a.producer.Close)
		publisher = a.producer
	}

	sc := a.cfg.Scheduler
	a.runner = scheduler.New(client, openleg.DefaultRegistry(a.metrics, loc), scheduler.Config{
		PageSize: sc.PageSize,
		Location: loc,
		Retry:    a.retryConfig(),
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: sc.FailureThreshold,
			ResetTimeout:     sc.ResetTimeout,
		},
	}, publisher, a.metrics, a.logger)

	deps := importer.Deps{Store: a.docs, References: a.refs, Logger: a.logger, Metrics: a.metrics}
	a.runner.Register(importer.New[bills.Version](bills.New(loc), deps))
	a.runner.Register(importer.New[agendas.Addendum](agendas.New(loc), deps))
	a.runner.Register(importer.New[calendars.Calendar](calendars.New(loc), deps))
	a.runner.Register(importer.New[transcripts.Transcript](transcripts.New(loc), deps))
	a.runner.Register(importer.New[transcripts.Hearing](transcripts.NewHearings(), deps))
}

// retryConfig is the backoff shared by API fetches and import requests.
func (a *app) retryConfig() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:  a.cfg.Scheduler.RetryAttempts,
		InitialDelay: a.cfg.Scheduler.RetryDelay,
	}
}

// serveMetrics starts the metrics and health server when enabled. The
// returned function stops it.
func (a *app) serveMetrics() func() {
	if !a.cfg.Metrics.Enabled {
		return func() {}
	}
	shutdown := metrics.StartServer(a.cfg.Metrics.Port, a.metrics, a.checker)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			a.logger.Warn("metrics server shutdown", "error", err)
		}
	}
}

// requireSQL reports an error for commands that need a persistent store.
func (a *app) requireSQL() error {
	if a.sql == nil {
		return errors.New("this command needs the postgres or sqlite store driver")
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}
