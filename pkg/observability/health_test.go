package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
)

func TestHealthChecker_Check(t *testing.T) {
	t.Run("no dependencies is healthy", func(t *testing.T) {
		status := NewHealthChecker("1.0.0", nil).Check(context.Background())
		if status.Status != StatusHealthy {
			t.Errorf("Status = %s, want healthy", status.Status)
		}
		if status.Version != "1.0.0" {
			t.Errorf("Version = %s, want 1.0.0", status.Version)
		}
	})

	t.Run("redis up", func(t *testing.T) {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("Failed to start miniredis: %v", err)
		}
		defer mr.Close()

		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		status := NewHealthChecker("", client).Check(context.Background())
		if status.Status != StatusHealthy {
			t.Errorf("Status = %s, want healthy", status.Status)
		}
		if _, ok := status.Dependencies["redis"]; !ok {
			t.Error("redis dependency missing")
		}
	})

	t.Run("redis down is unhealthy", func(t *testing.T) {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("Failed to start miniredis: %v", err)
		}
		client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		defer client.Close()
		mr.Close()

		status := NewHealthChecker("", client).Check(context.Background())
		if status.Status != StatusUnhealthy {
			t.Errorf("Status = %s, want unhealthy", status.Status)
		}
		if status.Dependencies["redis"].Message == "" {
			t.Error("expected an error message for redis")
		}
	})

	t.Run("non-critical failure degrades", func(t *testing.T) {
		checker := NewHealthChecker("", nil)
		checker.AddCheck("keycloak_config", false, func(context.Context) error {
			return errors.New("resource is required")
		})

		status := checker.Check(context.Background())
		if status.Status != StatusDegraded {
			t.Errorf("Status = %s, want degraded", status.Status)
		}
	})
}

func TestHealthRoutes(t *testing.T) {
	checker := NewHealthChecker("", nil)
	checker.AddCheck("always_down", true, func(context.Context) error {
		return errors.New("down")
	})

	router := mux.NewRouter()
	RegisterHealthRoutes(router, checker)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/health/live = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/health/ready = %d, want 503", rec.Code)
	}

	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Dependencies["always_down"].Status != StatusUnhealthy {
		t.Errorf("always_down = %+v", status.Dependencies["always_down"])
	}
}
