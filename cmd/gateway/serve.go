package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	gwhandler "github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/gateway/handler"
	gwmw "github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/gateway/middleware"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/gateway/router"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay/cache"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay/client"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay/events"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay/materializer"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay/pipeline"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/uploads"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/paramstore"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// loadConfig reads the config, resolves SSM-backed secrets and validates
// the result.
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)

	if paramstore.NeedsResolve(cfg) {
		ps, err := paramstore.NewFromConfig(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("creating parameter store client: %w", err)
		}
		if err := paramstore.ResolveSecrets(ctx, ps, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// runServe wires every collaborator, then runs the API and metrics servers
// until SIGINT/SIGTERM.
func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	slog.Info("starting gateway",
		"port", cfg.Server.Port,
		"relay_url", cfg.Relay.URL,
		"url_strategy", cfg.Relay.URLStrategy,
	)

	m := metrics.New(prometheus.DefaultRegisterer)
	checker := health.NewChecker(0)

	var pipeOpts []pipeline.Option

	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		checker.Register("redis", health.Ping(rdb.Ping))
		pipeOpts = append(pipeOpts, pipeline.WithCache(cache.New(rdb, cfg.Redis.CacheTTL, m)))
		slog.Info("answer cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		pipeOpts = append(pipeOpts, pipeline.WithEvents(events.NewRecorder(producer)))
		slog.Info("run events enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	svc, closeUploads, err := buildUploads(ctx, cfg, m, checker)
	if err != nil {
		return err
	}
	defer closeUploads()

	var p *pipeline.Pipeline
	if cfg.Relay.URL != "" {
		p = pipeline.New(
			materializer.NewUpload(cfg.Upload),
			urlMaterializer(cfg),
			client.New(cfg.Relay, relayOptions(cfg, m)...),
			m,
			pipeOpts...,
		)
	} else {
		slog.Warn("relay url not configured, run requests are acknowledged only")
	}
	checker.Register("relay", health.Configured(p != nil, "relay url not configured"))

	handler := router.New(gwhandler.New(p, svc, cfg.Upload), router.Config{
		Token:   cfg.Auth.Token,
		Health:  checker,
		Metrics: m,
		CORS:    gwmw.DefaultCORSConfig(),
		Logger:  slog.Default(),
	})

	api := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	servers := []*http.Server{api}
	if cfg.Metrics.Enabled {
		servers = append(servers, m.NewServer(cfg.Metrics.Port))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			slog.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutting down %s: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("gateway stopped")
	return nil
}

func urlMaterializer(cfg *config.Config) materializer.Materializer {
	if cfg.Relay.URLStrategy == config.URLStrategyFetch {
		return materializer.NewFetch(cfg.Fetch, cfg.Upload.MaxBytes, nil)
	}
	return materializer.NewPassthrough()
}

// relayOptions attaches the circuit breaker unless it is disabled.
func relayOptions(cfg *config.Config, m *metrics.Metrics) []client.Option {
	if cfg.Relay.Breaker.FailureThreshold <= 0 {
		return nil
	}
	cb := resilience.NewCircuitBreaker("relay", resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.Relay.Breaker.FailureThreshold,
		ResetTimeout:     cfg.Relay.Breaker.ResetTimeout,
		OnStateChange: func(name string, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	m.CircuitBreakerState.WithLabelValues(cb.Name()).Set(float64(resilience.StateClosed))
	return []client.Option{client.WithBreaker(cb)}
}

// buildUploads connects object storage and the optional registry. It
// returns a nil service when no bucket is configured.
func buildUploads(ctx context.Context, cfg *config.Config, m *metrics.Metrics, checker *health.Checker) (*uploads.Service, func(), error) {
	noop := func() {}
	checker.Register("storage", health.Configured(cfg.Storage.Enabled(), "object storage not configured"))
	if !cfg.Storage.Enabled() {
		return nil, noop, nil
	}
	store, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		return nil, noop, fmt.Errorf("creating s3 client: %w", err)
	}

	if !cfg.Postgres.Enabled {
		return uploads.NewService(store, nil, cfg.Storage.Limits(), m), noop, nil
	}
	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, noop, err
	}
	registry := uploads.NewPostgresRegistry(db)
	if err := registry.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, noop, err
	}
	checker.Register("postgres", health.Ping(db.Ping))
	slog.Info("upload registry enabled", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	return uploads.NewService(store, registry, cfg.Storage.Limits(), m), func() { db.Close() }, nil
}
