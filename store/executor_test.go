package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/rotisserie/eris"
)

// busyError mimics the driver error for SQLITE_BUSY.
type busyError struct{ code int }

func (e busyError) Error() string { return fmt.Sprintf("database is locked (%d)", e.code) }
func (e busyError) Code() int     { return e.code }

func TestIsBusy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"busy code", busyError{5}, true},
		{"locked code", busyError{6}, true},
		{"extended busy", busyError{5 | 2<<8}, true},
		{"constraint", busyError{19}, false},
		{"wrapped busy", fmt.Errorf("query: %w", busyError{5}), true},
		{"message only", errors.New("SQLITE_BUSY: database is locked"), true},
		{"plain", errors.New("no such table"), false},
		{"unavailable", eris.Wrap(ErrStorageUnavailable, "database is locked"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBusy(tt.err); got != tt.want {
				t.Errorf("IsBusy(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestExecuteWithRetryRecoversFromBusy(t *testing.T) {
	m, _ := setupTestManager(t)
	calls := 0
	got, err := ExecuteWithRetry(context.Background(), m, func(ctx context.Context, db *sql.DB) (string, error) {
		calls++
		if calls <= 2 {
			return "", busyError{5}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithRetry: %v", err)
	}
	if got != "ok" {
		t.Errorf("result = %q, want ok", got)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestExecuteWithRetryExhausted(t *testing.T) {
	m, _ := setupTestManager(t)
	calls := 0
	_, err := ExecuteWithRetry(context.Background(), m, func(ctx context.Context, db *sql.DB) (int, error) {
		calls++
		return 0, busyError{5}
	})
	if !eris.Is(err, ErrStorageUnavailable) {
		t.Fatalf("err = %v, want ErrStorageUnavailable", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestExecuteWithRetryPassesThroughOtherErrors(t *testing.T) {
	m, _ := setupTestManager(t)
	boom := errors.New("boom")
	calls := 0
	_, err := ExecuteWithRetry(context.Background(), m, func(ctx context.Context, db *sql.DB) (int, error) {
		calls++
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
