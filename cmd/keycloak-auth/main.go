package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/platinummonkey/keycloak-auth/pkg/config"
	"github.com/platinummonkey/keycloak-auth/pkg/httputil"
	"github.com/platinummonkey/keycloak-auth/pkg/keycloak"
	"github.com/platinummonkey/keycloak-auth/pkg/observability"
)

func main() {
	checkConfig := flag.Bool("check-config", false, "Validate the Keycloak provider configuration and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)

	source, closeSettings, err := openSettings(cfg.Settings, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open settings")
	}

	if *checkConfig {
		provider := keycloak.NewIdentityProvider(source, keycloak.WithLogger(log))
		if err := provider.CheckConfig(); err != nil {
			log.WithError(err).Fatal("Keycloak configuration is invalid")
		}
		log.Info("Keycloak configuration is valid")
		return
	}

	ctx := context.Background()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize OpenTelemetry")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	recorders := observability.Recorders{metrics}
	if otelProviders != nil {
		otelMetrics, err := observability.NewOTelMetrics(otel.Meter("github.com/platinummonkey/keycloak-auth"))
		if err != nil {
			log.WithError(err).Fatal("Failed to create OpenTelemetry instruments")
		}
		recorders = append(recorders, otelMetrics)
	}

	states, redisClient, err := openStateStore(ctx, cfg.State)
	if err != nil {
		log.WithError(err).Fatal("Failed to open state store")
	}
	log.WithField("type", cfg.State.Type).Info("State store ready")

	host := newExtensionList(log)
	provider := keycloak.Register(host, source,
		keycloak.WithLogger(log),
		keycloak.WithMetrics(recorders),
	)
	if provider.IsEnabled() {
		if err := provider.CheckConfig(); err != nil {
			log.WithError(err).Warn("Keycloak login is enabled but misconfigured")
		}
	}

	sessions := newSessionManager(newUserDirectory(), strings.HasPrefix(cfg.Server.BaseURL, "https://"), log)
	handlers := keycloak.NewHandlers(provider, states, sessions, cfg.Server.BaseURL, log)

	health := observability.NewHealthChecker(cfg.Observability.OTelServiceVersion, redisClient)
	health.AddCheck("keycloak_config", false, func(context.Context) error {
		if !provider.IsEnabled() {
			return nil
		}
		return provider.CheckConfig()
	})

	router := mux.NewRouter()
	router.Use(httputil.NoStoreMiddleware, sessions.middleware)
	if cfg.Observability.MetricsEnabled {
		router.Use(observability.HTTPMetricsMiddleware(metrics))
		observability.RegisterMetricsEndpoint(router, registry)
	}
	observability.RegisterHealthRoutes(router, health)
	handlers.RegisterRoutes(router)
	router.HandleFunc("/", sessions.whoami).Methods("GET")
	router.HandleFunc("/logout", sessions.logout).Methods("POST")

	var handler http.Handler = router
	if otelProviders != nil {
		handler = otelhttp.NewHandler(handler, "keycloak-auth")
	}
	handler = httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(log),
		httputil.RecoveryMiddleware(log),
	)(handler)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(log, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc("deployments", func(context.Context) error {
		provider.Deployments().Invalidate()
		return nil
	})
	shutdown.RegisterShutdownFunc("settings", func(context.Context) error {
		return closeSettings()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc("redis", func(context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.RegisterShutdownFunc("opentelemetry", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, log)
	})

	go func() {
		defer observability.RecoverPanic(log, "http server")
		log.WithFields(logrus.Fields{
			"addr":     server.Addr,
			"base_url": cfg.Server.BaseURL,
			"enabled":  provider.IsEnabled(),
		}).Info("Starting Keycloak auth server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		log.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
	log.Info("Server stopped")
}

// openSettings returns the configured settings source and a function that
// releases it
func openSettings(cfg config.SettingsConfig, log *logrus.Logger) (keycloak.SettingsSource, func() error, error) {
	if cfg.Source != "file" {
		return config.NewEnvSettings(), func() error { return nil }, nil
	}

	settings, err := config.NewFileSettings(cfg.File, log)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Watch {
		if err := settings.Watch(); err != nil {
			return nil, nil, err
		}
	}
	return settings, settings.Close, nil
}

// openStateStore returns the configured state store. The redis client is nil
// for the in-memory store.
func openStateStore(ctx context.Context, cfg config.StateConfig) (keycloak.StateStore, *redis.Client, error) {
	if cfg.Type != "redis" {
		return keycloak.NewMemoryStateStore(cfg.MemorySize, cfg.TTL), nil, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB != 0 {
		opts.DB = cfg.RedisDB
	}
	if cfg.RedisPoolSize > 0 {
		opts.PoolSize = cfg.RedisPoolSize
	}

	client := redis.NewClient(opts)
	store := keycloak.NewRedisStateStore(client, cfg.TTL)
	if err := store.Ping(ctx); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return store, client, nil
}
