package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/platinummonkey/keycloak-auth/pkg/keycloak"
)

// OTelMetrics records the login flow through OpenTelemetry instruments
type OTelMetrics struct {
	loginsInitiated  metric.Int64Counter
	callbacks        metric.Int64Counter
	callbackDuration metric.Float64Histogram
	tokenExchanges   metric.Int64Counter
	tokenDuration    metric.Float64Histogram
	deploymentBuilds metric.Int64Counter
}

var _ keycloak.MetricsRecorder = (*OTelMetrics)(nil)

// NewOTelMetrics creates the instruments on meter, usually otel.Meter(...)
func NewOTelMetrics(meter metric.Meter) (*OTelMetrics, error) {
	m := &OTelMetrics{}
	var err error

	m.loginsInitiated, err = meter.Int64Counter(
		"keycloak.logins.initiated",
		metric.WithDescription("Redirects to the Keycloak login page"),
		metric.WithUnit("{login}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create logins_initiated counter: %w", err)
	}

	m.callbacks, err = meter.Int64Counter(
		"keycloak.callbacks",
		metric.WithDescription("Completed callbacks by outcome"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create callbacks counter: %w", err)
	}

	m.callbackDuration, err = meter.Float64Histogram(
		"keycloak.callback.duration",
		metric.WithDescription("Callback handling duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create callback_duration histogram: %w", err)
	}

	m.tokenExchanges, err = meter.Int64Counter(
		"keycloak.token.exchanges",
		metric.WithDescription("Authorization code exchanges"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token_exchanges counter: %w", err)
	}

	m.tokenDuration, err = meter.Float64Histogram(
		"keycloak.token.duration",
		metric.WithDescription("Token endpoint round trip in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token_duration histogram: %w", err)
	}

	m.deploymentBuilds, err = meter.Int64Counter(
		"keycloak.deployment.builds",
		metric.WithDescription("Client deployment builds"),
		metric.WithUnit("{build}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create deployment_builds counter: %w", err)
	}

	return m, nil
}

// LoginInitiated implements keycloak.MetricsRecorder
func (m *OTelMetrics) LoginInitiated() {
	m.loginsInitiated.Add(context.Background(), 1)
}

// CallbackFinished implements keycloak.MetricsRecorder
func (m *OTelMetrics) CallbackFinished(state keycloak.AttemptState, kind keycloak.ErrorKind, duration time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("state", state.String()),
		attribute.String("error.kind", errorKindLabel(state, kind)),
	)
	m.callbacks.Add(ctx, 1, attrs)
	m.callbackDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("state", state.String())))
}

// TokenExchanged implements keycloak.MetricsRecorder
func (m *OTelMetrics) TokenExchanged(duration time.Duration, err error) {
	ctx := context.Background()
	m.tokenExchanges.Add(ctx, 1, metric.WithAttributes(attribute.String("status", statusLabel(err))))
	m.tokenDuration.Record(ctx, duration.Seconds())
}

// DeploymentBuilt implements keycloak.MetricsRecorder
func (m *OTelMetrics) DeploymentBuilt(err error) {
	m.deploymentBuilds.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", statusLabel(err))))
}

// Recorders fans flow events out to several recorders
type Recorders []keycloak.MetricsRecorder

func (rs Recorders) LoginInitiated() {
	for _, r := range rs {
		r.LoginInitiated()
	}
}

func (rs Recorders) CallbackFinished(state keycloak.AttemptState, kind keycloak.ErrorKind, duration time.Duration) {
	for _, r := range rs {
		r.CallbackFinished(state, kind, duration)
	}
}

func (rs Recorders) TokenExchanged(duration time.Duration, err error) {
	for _, r := range rs {
		r.TokenExchanged(duration, err)
	}
}

func (rs Recorders) DeploymentBuilt(err error) {
	for _, r := range rs {
		r.DeploymentBuilt(err)
	}
}
