package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/gatherhq/gather/pkg/api"
	"github.com/gatherhq/gather/pkg/audit"
	"github.com/gatherhq/gather/pkg/auth"
	"github.com/gatherhq/gather/pkg/communities"
	"github.com/gatherhq/gather/pkg/config"
	"github.com/gatherhq/gather/pkg/observability"
	"github.com/gatherhq/gather/pkg/ratelimit"
	"github.com/gatherhq/gather/pkg/realtime"
	"github.com/gatherhq/gather/pkg/storage/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("version", observability.Version).Info("starting gatherd")

	ctx := context.Background()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialize OpenTelemetry")
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promRegistry)

	db, err := postgres.NewDB(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("failed to connect to postgres")
		os.Exit(1)
	}
	postgres.StartPoolMetrics(ctx, db, metrics, 15*time.Second)

	// The counter store is optional. Running without it keeps the product
	// up with rate limiting failing open, so a connection failure here is
	// a warning, not a startup error.
	var redisConn *redis.Client
	if cfg.Storage.RedisURL != "" {
		redisClient, err := postgres.NewRedisClient(cfg.Storage)
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, rate limiting will fail open")
		} else {
			redisClient.InstrumentCommands(metrics)
			redisClient.StartPoolMetrics(ctx, metrics, 15*time.Second)
			redisConn = redisClient.GetClient()
		}
	} else {
		logger.Warn("no redis URL configured, rate limiting will fail open")
	}

	policies := ratelimit.DefaultPolicies()
	if cfg.RateLimit.PolicyFile != "" {
		policies, err = ratelimit.LoadPolicyFile(cfg.RateLimit.PolicyFile)
		if err != nil {
			logger.WithError(err).Error("failed to load rate limit policy file")
			os.Exit(1)
		}
		logger.WithField("path", cfg.RateLimit.PolicyFile).Info("loaded rate limit policy overrides")
	}

	var store ratelimit.Store
	if redisConn != nil {
		store = ratelimit.NewRedisStore(redisConn)
	}
	registry := ratelimit.NewRegistry(policies, store, cfg.RateLimit.FailOpen, logger, metrics)

	var sink audit.Logger
	if cfg.Audit.Enabled {
		dbLogger, err := audit.NewDBLogger(db)
		if err != nil {
			logger.WithError(err).Error("failed to initialize audit logger")
			os.Exit(1)
		}
		sink = dbLogger
	}
	emitter := audit.NewEmitter(sink, logger, metrics)

	// Put the one-per-process fail-open transition on the audit trail
	// alongside the log warning.
	registry.OnFailOpen(func(action ratelimit.Action, cause error) {
		emitter.RateLimitFailOpen(context.Background(), string(action), cause)
	})

	sessions := auth.NewSessionStore(db, cfg.Auth.SessionTTL, metrics)
	users := auth.NewUserDirectory(db)

	var identity api.IdentityProvider
	if cfg.Auth.OIDCIssuer != "" {
		authenticator, err := auth.NewOIDCAuthenticator(ctx, auth.OIDCConfig{
			IssuerURL:    cfg.Auth.OIDCIssuer,
			ClientID:     cfg.Auth.OIDCClientID,
			ClientSecret: cfg.Auth.OIDCClientSecret,
			RedirectURL:  cfg.Auth.OIDCRedirectURL,
		})
		if err != nil {
			logger.WithError(err).Error("failed to initialize OIDC authenticator")
			os.Exit(1)
		}
		identity = authenticator
	} else {
		logger.Warn("no OIDC issuer configured, sign-in is disabled")
	}

	issuer := realtime.NewIssuer(
		communities.NewResolver(db),
		[]byte(cfg.Realtime.SigningKey),
		cfg.Realtime.Issuer,
		cfg.Realtime.TokenTTL,
		metrics,
	)

	// Mirror the domain counters onto the OTLP pipeline when it is up.
	if otelProviders != nil {
		otelMetrics, err := observability.NewOTelMetrics()
		if err != nil {
			logger.WithError(err).Error("failed to create OTel instruments")
			os.Exit(1)
		}
		registry.AttachOTel(otelMetrics)
		sessions.AttachOTel(otelMetrics)
		issuer.AttachOTel(otelMetrics)
	}

	checker := observability.NewHealthChecker(db, redisConn)
	if cfg.Auth.OIDCIssuer != "" {
		checker.WithOIDCIssuer(cfg.Auth.OIDCIssuer)
	}

	var metricsRegistry *prometheus.Registry
	if cfg.Observability.MetricsEnabled {
		metricsRegistry = promRegistry
	}

	apiServer := api.NewServer(api.Dependencies{
		Logger:         logger,
		Metrics:        metrics,
		Registry:       metricsRegistry,
		Health:         checker,
		Sessions:       sessions,
		Users:          users,
		Identity:       identity,
		Issuer:         issuer,
		Limits:         registry,
		Emitter:        emitter,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Probes and metrics get their own listener so the orchestrator can
	// reach them when the API port is saturated.
	opsMux := http.NewServeMux()
	observability.RegisterHealthRoutes(opsMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(opsMux, promRegistry)
	}
	opsServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      opsMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc("ops server", opsServer.Shutdown)
	shutdown.RegisterShutdownFunc("audit emitter", func(context.Context) error {
		return emitter.Close()
	})
	shutdown.RegisterShutdownFunc("database", func(context.Context) error {
		return db.Close()
	})
	if redisConn != nil {
		shutdown.RegisterShutdownFunc("redis", func(context.Context) error {
			return redisConn.Close()
		})
	}
	if otelProviders != nil {
		shutdown.RegisterShutdownFunc("opentelemetry", func(shutdownCtx context.Context) error {
			return observability.ShutdownOTel(shutdownCtx, otelProviders, logger)
		})
	}

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", httpServer.Addr).Info("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.WithField("addr", opsServer.Addr).Info("ops server listening")
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigChan:
			logger.Infof("Received signal %s, starting graceful shutdown", sig)
		case <-groupCtx.Done():
			// A listener failed; tear the rest down.
		}
		return shutdown.Shutdown()
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("gatherd exited with error")
		os.Exit(1)
	}
	logger.Info("gatherd stopped")
}
