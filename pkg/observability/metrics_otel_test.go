package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/platinummonkey/keycloak-auth/pkg/keycloak"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s is %T, want Sum[int64]", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestOTelMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	m, err := NewOTelMetrics(provider.Meter("test"))
	if err != nil {
		t.Fatalf("NewOTelMetrics() error = %v", err)
	}

	m.LoginInitiated()
	m.CallbackFinished(keycloak.StateFailed, keycloak.KindMissingLogin, time.Millisecond)
	m.TokenExchanged(time.Millisecond, errors.New("timeout"))
	m.DeploymentBuilt(nil)
	m.DeploymentBuilt(nil)

	got := collect(t, reader)
	if v := sumOf(t, got["keycloak.logins.initiated"]); v != 1 {
		t.Errorf("logins = %d, want 1", v)
	}
	if v := sumOf(t, got["keycloak.callbacks"]); v != 1 {
		t.Errorf("callbacks = %d, want 1", v)
	}
	if v := sumOf(t, got["keycloak.deployment.builds"]); v != 2 {
		t.Errorf("builds = %d, want 2", v)
	}
	if _, ok := got["keycloak.token.duration"]; !ok {
		t.Error("token duration histogram missing")
	}
}

type countingRecorder struct {
	logins, callbacks, exchanges, builds int
}

func (c *countingRecorder) LoginInitiated() { c.logins++ }
func (c *countingRecorder) CallbackFinished(keycloak.AttemptState, keycloak.ErrorKind, time.Duration) {
	c.callbacks++
}
func (c *countingRecorder) TokenExchanged(time.Duration, error) { c.exchanges++ }
func (c *countingRecorder) DeploymentBuilt(error)               { c.builds++ }

func TestRecorders_FanOut(t *testing.T) {
	a, b := &countingRecorder{}, &countingRecorder{}
	rs := Recorders{a, b}

	rs.LoginInitiated()
	rs.CallbackFinished(keycloak.StateCompleted, 0, 0)
	rs.TokenExchanged(0, nil)
	rs.DeploymentBuilt(nil)

	for i, c := range []*countingRecorder{a, b} {
		if c.logins != 1 || c.callbacks != 1 || c.exchanges != 1 || c.builds != 1 {
			t.Errorf("recorder %d = %+v, want one of each", i, *c)
		}
	}
}
