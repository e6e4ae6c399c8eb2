// Package retry wraps MySQL deadlock and lock-wait-timeout errors in a
// bounded exponential-backoff retry, using cenkalti/backoff/v4. This is new
// infrastructure the teacher repo has no equivalent of: its single-table
// seat holds rarely deadlocked under its access patterns, but the stock
// reservation engine's product-row-then-hold-row lock ordering across
// concurrent checkouts makes InnoDB deadlocks routine at flash-sale
// concurrency, so every transactional use-case funnels through here.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
)

// mysqlDeadlock is InnoDB's "Deadlock found when trying to get lock".
const mysqlDeadlock = 1213

// mysqlLockWaitTimeout is InnoDB's "Lock wait timeout exceeded".
const mysqlLockWaitTimeout = 1205

// IsRetryable reports whether err is a MySQL error this package's retry
// wrapper should retry: a deadlock victim or a lock-wait timeout. Any other
// error, including a context cancellation, is returned to the caller as-is.
func IsRetryable(err error) bool {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return false
	}
	return mysqlErr.Number == mysqlDeadlock || mysqlErr.Number == mysqlLockWaitTimeout
}

// Policy configures the retry wrapper.
type Policy struct {
	MaxRetries  int
	MinBackoff  time.Duration
}

// Do runs fn, retrying up to p.MaxRetries times with exponential backoff
// whenever fn returns a retryable deadlock/lock-wait error. The first
// non-retryable error, success, or context cancellation stops the loop
// immediately.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.MinBackoff
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0 // bounded by MaxRetries, not wall-clock
	withCtx := backoff.WithContext(bo, ctx)

	attempt := 0
	operation := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt > p.MaxRetries || !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(operation, withCtx)
	if err == nil {
		return nil
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Unwrap()
	}
	return err
}
