package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewShutdownManager(t *testing.T) {
	tests := []struct {
		name            string
		timeout         time.Duration
		expectedTimeout time.Duration
	}{
		{"with custom timeout", 10 * time.Second, 10 * time.Second},
		{"with zero timeout uses default", 0, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(InfoLevel, &bytes.Buffer{})
			sm := NewShutdownManager(logger, &http.Server{}, tt.timeout)

			if sm == nil {
				t.Fatal("Expected non-nil shutdown manager")
			}
			if sm.shutdownTimeout != tt.expectedTimeout {
				t.Errorf("Expected timeout %v, got %v", tt.expectedTimeout, sm.shutdownTimeout)
			}
		})
	}
}

func TestShutdownRunsAllFuncs(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})
	sm := NewShutdownManager(logger, nil, 5*time.Second)

	var calls int32
	sm.RegisterShutdownFunc("database", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	sm.RegisterShutdownFunc("redis", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	if err := sm.Shutdown(); err != nil {
		t.Fatalf("Expected clean shutdown, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("Expected 2 shutdown funcs called, got %d", calls)
	}
}

func TestShutdownCollectsErrors(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})
	sm := NewShutdownManager(logger, nil, 5*time.Second)

	sm.RegisterShutdownFunc("audit", func(ctx context.Context) error {
		return errors.New("flush failed")
	})
	sm.RegisterShutdownFunc("redis", func(ctx context.Context) error {
		return nil
	})

	err := sm.Shutdown()
	if err == nil {
		t.Fatal("Expected error from failing shutdown func")
	}
}

func TestShutdownTimeout(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})
	sm := NewShutdownManager(logger, nil, 50*time.Millisecond)

	sm.RegisterShutdownFunc("slow", func(ctx context.Context) error {
		select {
		case <-time.After(5 * time.Second):
			return nil
		case <-ctx.Done():
			// Keep blocking past cancellation to force the timeout path
			time.Sleep(5 * time.Second)
			return ctx.Err()
		}
	})

	start := time.Now()
	err := sm.Shutdown()
	if err == nil {
		t.Fatal("Expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Expected shutdown to give up at the timeout, not wait for the func")
	}
}

func TestShutdownHTTPServer(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})
	server := &http.Server{Addr: "127.0.0.1:0"}
	sm := NewShutdownManager(logger, server, 5*time.Second)

	// Shutdown on a never-started server returns nil
	if err := sm.Shutdown(); err != nil {
		t.Fatalf("Expected clean shutdown of idle server, got %v", err)
	}
}
