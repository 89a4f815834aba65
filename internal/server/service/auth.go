package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"
	"unicode/utf8"

	"melodex/internal/server/database"
	"melodex/internal/server/notify"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAdminExists  = errors.New("admin account already exists")
	ErrInvalidToken = errors.New("invalid session token")
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	passwordPattern = regexp.MustCompile(`^[\x21-\x7E]+$`)
)

const (
	sessionTTL         = 12 * time.Hour
	rememberSessionTTL = 30 * 24 * time.Hour
)

// LockoutRecords persists per-address failure state. No record means clear.
type LockoutRecords interface {
	Get(ctx context.Context, address string) (*database.LoginAttempt, error)
	Put(ctx context.Context, attempt *database.LoginAttempt) error
	Delete(ctx context.Context, address string) error
}

// LockoutGuard escalates lockout windows per source address as consecutive
// authentication failures accumulate. The read-increment-write is unguarded
// on purpose: interleaved failures may miscount slightly, but repeated
// failures still lock the address, which is the property that matters.
type LockoutGuard struct {
	records  LockoutRecords
	schedule map[int]time.Duration
	now      func() time.Time
}

// NewLockoutGuard creates a guard with the given failure-count schedule.
func NewLockoutGuard(records LockoutRecords, schedule map[int]time.Duration) *LockoutGuard {
	return &LockoutGuard{records: records, schedule: schedule, now: time.Now}
}

// Check reports whether an address may attempt authentication. When locked,
// it returns the remaining window; credentials must not be consulted.
// Expiry is lazy: an elapsed window allows the attempt without deleting
// the record, so the failure count survives until a success clears it.
func (g *LockoutGuard) Check(ctx context.Context, address string) (allowed bool, remaining time.Duration, err error) {
	rec, err := g.records.Get(ctx, address)
	if err != nil {
		return false, 0, err
	}
	if rec != nil && rec.LockoutUntil != nil {
		if left := rec.LockoutUntil.Sub(g.now()); left > 0 {
			return false, left, nil
		}
	}
	return true, 0, nil
}

// RecordFailure counts one failed attempt. When the new count has an entry
// in the schedule, a fresh lockout window opens; counts past the schedule's
// last key keep growing without applying a new lock.
func (g *LockoutGuard) RecordFailure(ctx context.Context, address string) error {
	rec, err := g.records.Get(ctx, address)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &database.LoginAttempt{Address: address}
	}

	rec.FailureCount++
	if duration, ok := g.schedule[rec.FailureCount]; ok {
		until := g.now().Add(duration)
		rec.LockoutUntil = &until
		slog.Warn("address locked out",
			"address", address,
			"failures", rec.FailureCount,
			"until", until,
		)
	}
	return g.records.Put(ctx, rec)
}

// RecordSuccess resets an address to clear by deleting its record.
func (g *LockoutGuard) RecordSuccess(ctx context.Context, address string) error {
	return g.records.Delete(ctx, address)
}

// UserStore is the slice of the user repository the auth service needs.
type UserStore interface {
	Any(ctx context.Context) (bool, error)
	Create(ctx context.Context, user *database.User) error
	GetByUsername(ctx context.Context, username string) (*database.User, error)
	GetByID(ctx context.Context, id int64) (*database.User, error)
	UpdateUsername(ctx context.Context, id int64, username string) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

// LoginResult is the outcome of one authentication attempt.
type LoginResult struct {
	OK                bool
	Token             string
	TokenTTL          time.Duration
	RetryAfterSeconds int // >0 when the address is locked out
	Message           string
}

// Auth implements admin-account management and the authentication flow the
// LockoutGuard sits beside.
type Auth struct {
	users  UserStore
	guard  *LockoutGuard
	secret []byte
}

// NewAuth creates the auth service.
func NewAuth(users UserStore, guard *LockoutGuard, secret []byte) *Auth {
	return &Auth{users: users, guard: guard, secret: secret}
}

// HasAdmin reports whether the admin account has been created yet.
func (a *Auth) HasAdmin(ctx context.Context) (bool, error) {
	return a.users.Any(ctx)
}

// validateUsername returns the field problems with a proposed username.
// Expected validation failures are data, not control flow.
func validateUsername(username string) []Message {
	var msgs []Message
	if n := utf8.RuneCountInString(username); n < 4 || n > 20 {
		msgs = append(msgs, Message{Message: "Username must be 4 to 20 characters long.", Category: notify.CategoryDanger})
	}
	if username != "" && !usernamePattern.MatchString(username) {
		msgs = append(msgs, Message{Message: "Username may only contain letters, digits and underscores.", Category: notify.CategoryDanger})
	}
	return msgs
}

func validatePassword(password, confirm string) []Message {
	var msgs []Message
	if utf8.RuneCountInString(password) < 6 {
		msgs = append(msgs, Message{Message: "Password must be at least 6 characters long.", Category: notify.CategoryDanger})
	}
	if password != "" && !passwordPattern.MatchString(password) {
		msgs = append(msgs, Message{Message: "Password may only contain letters, digits and common symbols.", Category: notify.CategoryDanger})
	}
	if password != confirm {
		msgs = append(msgs, Message{Message: "The two passwords do not match.", Category: notify.CategoryDanger})
	}
	return msgs
}

// SetupAdmin creates the single admin account. Only available while no
// account exists. A non-empty message slice means validation failed.
func (a *Auth) SetupAdmin(ctx context.Context, username, password, confirm string) ([]Message, error) {
	exists, err := a.users.Any(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAdminExists
	}

	msgs := append(validateUsername(username), validatePassword(password, confirm)...)
	if len(msgs) > 0 {
		return msgs, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &database.User{
		Username:     username,
		PasswordHash: string(hash),
		IsAdmin:      true,
	}
	if err := a.users.Create(ctx, user); err != nil {
		return nil, err
	}
	slog.Info("admin account created", "username", username)
	return nil, nil
}

// Login authenticates the admin account. The lockout guard is consulted
// before credentials and updated after.
func (a *Auth) Login(ctx context.Context, address, username, password string, remember bool) (*LoginResult, error) {
	allowed, remaining, err := a.guard.Check(ctx, address)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return &LoginResult{
			RetryAfterSeconds: int(remaining.Seconds()) + 1,
			Message:           "Too many failed attempts. Try again later.",
		}, nil
	}

	user, err := a.users.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, database.ErrUserNotFound) {
		return nil, err
	}

	if user != nil && user.IsAdmin &&
		bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil {
		if err := a.guard.RecordSuccess(ctx, address); err != nil {
			slog.Error("failed to clear lockout record", "address", address, "error", err)
		}

		ttl := sessionTTL
		if remember {
			ttl = rememberSessionTTL
		}
		token, err := a.issueToken(user, ttl)
		if err != nil {
			return nil, err
		}
		slog.Info("admin logged in", "username", username, "address", address)
		return &LoginResult{OK: true, Token: token, TokenTTL: ttl}, nil
	}

	if err := a.guard.RecordFailure(ctx, address); err != nil {
		slog.Error("failed to record login failure", "address", address, "error", err)
	}
	slog.Warn("failed login attempt", "username", username, "address", address)
	return &LoginResult{Message: "Invalid admin account or password."}, nil
}

// ChangeUsername renames the admin account. The new name must differ from
// the current one.
func (a *Auth) ChangeUsername(ctx context.Context, userID int64, newUsername string) ([]Message, error) {
	if msgs := validateUsername(newUsername); len(msgs) > 0 {
		return msgs, nil
	}

	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Username == newUsername {
		return []Message{{Message: "The new username must differ from the current one.", Category: notify.CategoryDanger}}, nil
	}

	if err := a.users.UpdateUsername(ctx, userID, newUsername); err != nil {
		return nil, err
	}
	slog.Info("admin username changed", "username", newUsername)
	return nil, nil
}

// ChangePassword rotates the admin password after verifying the current one.
func (a *Auth) ChangePassword(ctx context.Context, userID int64, current, newPassword, confirm string) ([]Message, error) {
	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return []Message{{Message: "Current password is incorrect.", Category: notify.CategoryDanger}}, nil
	}
	if msgs := validatePassword(newPassword, confirm); len(msgs) > 0 {
		return msgs, nil
	}
	if newPassword == current {
		return []Message{{Message: "The new password must differ from the current one.", Category: notify.CategoryDanger}}, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	if err := a.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return nil, err
	}
	slog.Info("admin password changed", "user_id", userID)
	return nil, nil
}

// issueToken signs a session token for the user.
func (a *Auth) issueToken(user *database.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   strconv.FormatInt(user.ID, 10),
		"admin": user.IsAdmin,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

// ParseToken validates a session token and returns the user ID and admin
// flag embedded in it.
func (a *Auth) ParseToken(tokenString string) (userID int64, isAdmin bool, err error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, false, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, false, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, false, ErrInvalidToken
	}
	admin, _ := claims["admin"].(bool)
	return id, admin, nil
}
