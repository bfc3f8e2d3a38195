package remote

import (
	"context"
	"errors"
	"testing"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"driver bad connection", errors.New("driver: bad connection"), true},
		{"case insensitive", errors.New("Driver: Bad Connection"), true},
		{"invalid connection", errors.New("invalid connection"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"database is read only", errors.New("cannot commit: database is read only"), true},
		{"lost connection", errors.New("Error 2013: Lost connection to MySQL server during query"), true},
		{"server gone away", errors.New("Error 2006: MySQL server has gone away"), true},
		{"i/o timeout", errors.New("read tcp 127.0.0.1:3306: i/o timeout"), true},
		{"unknown database", errors.New("Error 1049 (42000): Unknown database 'tmcore_test'"), true},
		{"syntax error - not retryable", errors.New("Error 1064: You have an error in your SQL syntax"), false},
		{"table not found - not retryable", errors.New("Error 1146: Table 'tmcore.foo' doesn't exist"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isRetryableError(tt.err)
			if got != tt.expected {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

// flakyOp simulates a dependency that fails with a transient error a fixed
// number of times before succeeding, so retryingConn.withRetry can be
// exercised without sleeping in real time or dialing a real Dolt server.
type flakyOp struct {
	failures int
	calls    int
	errText  string
}

func (f *flakyOp) run() error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New(f.errText)
	}
	return nil
}

func TestRetryingConn_WithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	c := &retryingConn{}
	op := &flakyOp{failures: 2, errText: "driver: bad connection"}
	err := c.withRetry(context.Background(), op.run)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.calls != 3 {
		t.Errorf("expected 3 calls (2 retries + success), got %d", op.calls)
	}
}

func TestRetryingConn_WithRetry_NonRetryableFailsImmediately(t *testing.T) {
	c := &retryingConn{}
	op := &flakyOp{failures: 100, errText: "Error 1064: You have an error in your SQL syntax"}
	err := c.withRetry(context.Background(), op.run)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if op.calls != 1 {
		t.Errorf("expected 1 call for non-retryable error, got %d", op.calls)
	}
}

func TestRetryingConn_WithRetry_SuccessOnFirstAttempt(t *testing.T) {
	c := &retryingConn{}
	op := &flakyOp{failures: 0, errText: "unused"}
	err := c.withRetry(context.Background(), op.run)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.calls != 1 {
		t.Errorf("expected 1 call on success, got %d", op.calls)
	}
}

func TestRetryingConn_WithRetry_ContextCancelStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &retryingConn{}
	op := &flakyOp{failures: 1_000_000, errText: "driver: bad connection"}
	err := c.withRetry(ctx, op.run)
	if err == nil {
		t.Fatal("expected error once the context is already cancelled, got nil")
	}
	if op.calls > 1 {
		t.Errorf("expected at most 1 call with an already-cancelled context, got %d", op.calls)
	}
}
