package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	return NewLogger(logrus.DebugLevel, "text", &bytes.Buffer{})
}

func TestNewShutdownManager_DefaultTimeout(t *testing.T) {
	sm := NewShutdownManager(testLogger(), nil, 0)
	if sm.shutdownTimeout != 30*time.Second {
		t.Errorf("shutdownTimeout = %v, want 30s", sm.shutdownTimeout)
	}
}

func TestShutdownManager_RunsFuncs(t *testing.T) {
	sm := NewShutdownManager(testLogger(), &http.Server{}, time.Second)

	var ran atomic.Int32
	sm.RegisterShutdownFunc("a", func(context.Context) error { ran.Add(1); return nil })
	sm.RegisterShutdownFunc("b", func(context.Context) error { ran.Add(1); return nil })

	if err := sm.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if ran.Load() != 2 {
		t.Errorf("ran = %d, want 2", ran.Load())
	}
}

func TestShutdownManager_ReportsErrors(t *testing.T) {
	sm := NewShutdownManager(testLogger(), nil, time.Second)
	sm.RegisterShutdownFunc("redis", func(context.Context) error { return errors.New("close failed") })

	err := sm.Shutdown()
	if err == nil || err.Error() != "shutdown completed with 1 errors" {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestShutdownManager_Timeout(t *testing.T) {
	sm := NewShutdownManager(testLogger(), nil, 50*time.Millisecond)
	sm.RegisterShutdownFunc("slow", func(ctx context.Context) error {
		time.Sleep(time.Second)
		return nil
	})

	if err := sm.Shutdown(); err == nil {
		t.Error("expected timeout error")
	}
}

func TestShutdownManager_WaitForSignal(t *testing.T) {
	sm := NewShutdownManager(testLogger(), nil, time.Second)

	done := make(chan error, 1)
	go func() { done <- sm.WaitForShutdown() }()

	sm.signals <- syscall.SIGTERM

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WaitForShutdown() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForShutdown did not return")
	}
}
