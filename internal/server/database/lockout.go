package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// LockoutStore persists per-address authentication failure state.
// No row for an address means the address is clear.
type LockoutStore struct {
	db *DB
}

// NewLockoutStore creates a new LockoutStore.
func NewLockoutStore(db *DB) *LockoutStore {
	return &LockoutStore{db: db}
}

// Get returns the attempt record for an address, or (nil, nil) when absent.
func (s *LockoutStore) Get(ctx context.Context, address string) (*LoginAttempt, error) {
	attempt := &LoginAttempt{}
	err := s.db.Pool.QueryRow(ctx, `
		SELECT address, failure_count, lockout_until
		FROM login_attempts WHERE address = $1
	`, address).Scan(&attempt.Address, &attempt.FailureCount, &attempt.LockoutUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get login attempt: %w", err)
	}
	return attempt, nil
}

// Put upserts the attempt record for an address.
func (s *LockoutStore) Put(ctx context.Context, attempt *LoginAttempt) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO login_attempts (address, failure_count, lockout_until)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE
		SET failure_count = EXCLUDED.failure_count,
		    lockout_until = EXCLUDED.lockout_until
	`, attempt.Address, attempt.FailureCount, attempt.LockoutUntil)
	if err != nil {
		return fmt.Errorf("failed to store login attempt: %w", err)
	}
	return nil
}

// Delete removes the record for an address, resetting it to clear.
// Deleting an absent record is not an error.
func (s *LockoutStore) Delete(ctx context.Context, address string) error {
	if _, err := s.db.Pool.Exec(ctx, "DELETE FROM login_attempts WHERE address = $1", address); err != nil {
		return fmt.Errorf("failed to delete login attempt: %w", err)
	}
	return nil
}
