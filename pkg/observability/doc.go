// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown.
//
// # Structured Logging
//
//	log := observability.NewLogger(logrus.InfoLevel, "json", nil)
//	observability.WithTraceContext(ctx, log).Info("Callback handled")
//
// # Prometheus Metrics
//
// Metrics implements keycloak.MetricsRecorder and can be passed straight to
// the provider:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	provider := keycloak.NewIdentityProvider(settings, keycloak.WithMetrics(metrics))
//	observability.RegisterMetricsEndpoint(router, registry)
//
// When OpenTelemetry is enabled, combine it with OTelMetrics:
//
//	otelMetrics, _ := observability.NewOTelMetrics(otel.Meter("keycloak-auth"))
//	recorder := observability.Recorders{metrics, otelMetrics}
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version, redisClient)
//	checker.AddCheck("keycloak_config", false, func(context.Context) error {
//		return provider.CheckConfig()
//	})
//	observability.RegisterHealthRoutes(router, checker)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/keycloak: Emits the flow events recorded here
package observability
