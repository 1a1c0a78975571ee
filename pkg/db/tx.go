package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/gorm"
)

// ErrRetryExhausted is returned when a retryable transaction kept failing
// after the configured number of attempts. This indicates abnormal
// contention and must surface to an operator, never be swallowed.
var ErrRetryExhausted = errors.New("tx_retry_exhausted")

// RetryConfig bounds the serializable transaction retry loop.
type RetryConfig struct {
	MaxAttempts int
	Backoff     time.Duration

	// OnRetry, when set, runs before each re-execution of the block.
	OnRetry func()
}

// RunSerializable executes fn inside a transaction at serializable
// isolation. On a serialization failure or a unique-constraint violation
// the ENTIRE block is re-executed, so any read fn performed is redone
// against a fresh snapshot; a cached read from the failed attempt is
// exactly the bug this combinator exists to prevent.
func RunSerializable(ctx context.Context, conn *gorm.DB, cfg RetryConfig, fn func(tx *gorm.DB) error) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	initial := cfg.Backoff
	if initial <= 0 {
		initial = 25 * time.Millisecond
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx)

	op := func() error {
		err := conn.WithContext(ctx).Transaction(fn, txOptions(conn))
		if err == nil {
			return nil
		}
		if IsRetryableTxErr(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(error, time.Duration) {
		if cfg.OnRetry != nil {
			cfg.OnRetry()
		}
	}

	err := backoff.RetryNotify(op, policy, notify)
	if err != nil && IsRetryableTxErr(err) {
		return fmt.Errorf("%w: %v", ErrRetryExhausted, err)
	}
	return err
}

func txOptions(conn *gorm.DB) *sql.TxOptions {
	// SQLite transactions are serializable by definition and its driver
	// rejects explicit isolation levels.
	if conn.Dialector.Name() == "sqlite" {
		return &sql.TxOptions{}
	}
	return &sql.TxOptions{Isolation: sql.LevelSerializable}
}
