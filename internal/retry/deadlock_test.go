package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"deadlock", &mysql.MySQLError{Number: mysqlDeadlock, Message: "Deadlock found"}, true},
		{"lock wait timeout", &mysql.MySQLError{Number: mysqlLockWaitTimeout, Message: "Lock wait timeout exceeded"}, true},
		{"other mysql error", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, false},
		{"non-mysql error", errors.New("boom"), false},
		{"nil error", nil, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := IsRetryable(c.err); got != c.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", c.err, got, c.want)
			}
		})
	}
}

func TestDoSucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxRetries: 3, MinBackoff: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDoRetriesRetryableErrorThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxRetries: 3, MinBackoff: time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &mysql.MySQLError{Number: mysqlDeadlock}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoGivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	wantErr := &mysql.MySQLError{Number: mysqlDeadlock}
	err := Do(context.Background(), Policy{MaxRetries: 2, MinBackoff: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected the deadlock error to surface unchanged, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected MaxRetries+1 = 3 calls, got %d", calls)
	}
}

func TestDoStopsImmediatelyOnNonRetryableError(t *testing.T) {
	calls := 0
	wantErr := errors.New("business rule violation")
	err := Do(context.Background(), Policy{MaxRetries: 5, MinBackoff: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected the original error unchanged, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call for a non-retryable error, got %d", calls)
	}
}
