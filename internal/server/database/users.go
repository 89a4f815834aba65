package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository provides account persistence.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Any reports whether at least one account exists. The setup endpoint is
// only available while this is false.
func (r *UserRepository) Any(ctx context.Context) (bool, error) {
	var exists bool
	if err := r.db.Pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users)").Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check for users: %w", err)
	}
	return exists, nil
}

// Create inserts a new account and fills in its generated ID.
func (r *UserRepository) Create(ctx context.Context, user *User) error {
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, is_admin)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, user.Username, user.PasswordHash, user.IsAdmin).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByUsername retrieves an account by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx, `
		SELECT id, username, password_hash, is_admin, created_at
		FROM users WHERE username = $1
	`, username))
}

// GetByID retrieves an account by ID.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*User, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx, `
		SELECT id, username, password_hash, is_admin, created_at
		FROM users WHERE id = $1
	`, id))
}

// UpdateUsername changes an account's username.
func (r *UserRepository) UpdateUsername(ctx context.Context, id int64, username string) error {
	tag, err := r.db.Pool.Exec(ctx, "UPDATE users SET username = $1 WHERE id = $2", username, id)
	if err != nil {
		return fmt.Errorf("failed to update username: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdatePassword changes an account's password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	tag, err := r.db.Pool.Exec(ctx, "UPDATE users SET password_hash = $1 WHERE id = $2", passwordHash, id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) scanOne(row pgx.Row) (*User, error) {
	user := &User{}
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.IsAdmin, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
