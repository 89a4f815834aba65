package database

import "time"

// Track is one catalog entry: the metadata for a stored music file.
type Track struct {
	ID             int64
	DisplayName    string
	SearchName     string
	SearchInitials string
	StoredName     string
	ContentHash    string
	Duration       int // seconds
	UploadedAt     time.Time
	OwnerID        *int64 // nil when the uploader account was removed
}

// User is an account row. The system runs with a single admin account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}

// LoginAttempt tracks authentication failures for one source address.
// Absence of a row means the address is clear.
type LoginAttempt struct {
	Address      string
	FailureCount int
	LockoutUntil *time.Time // nil when no lockout window is active
}
