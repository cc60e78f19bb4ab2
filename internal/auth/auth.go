// Package auth resolves opaque bearer session tokens to user identities for the
// gateway, and provides the password hashing and credential validation helpers
// session creation relies on elsewhere in the platform.
package auth

import (
	"context"
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/alexedwards/argon2id"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amityvox/amityvox/internal/models"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{2,32}$`)

func validateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("username must be 2-32 characters of letters, digits, '.', '_' or '-'")
	}
	return nil
}

func validatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	if n > 128 {
		return fmt.Errorf("password must be at most 128 characters")
	}
	return nil
}

// HashPassword hashes a plaintext password with Argon2id using the package's
// default parameters.
func HashPassword(password string) (string, error) {
	if err := validatePassword(password); err != nil {
		return "", err
	}
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return hash, nil
}

// VerifyPassword reports whether password matches the given Argon2id hash.
func VerifyPassword(password, hash string) (bool, error) {
	match, _, err := argon2id.CheckHash(password, hash)
	if err != nil {
		return false, fmt.Errorf("verifying password: %w", err)
	}
	return match, nil
}

// AuthError is a typed error distinguishing why a session token failed to
// validate (missing, unknown, or expired) from an underlying storage error.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// Config configures a Service.
type Config struct {
	SessionDuration time.Duration
}

// Service resolves bearer session tokens against the user_sessions table,
// where the session token itself is the row's primary key.
type Service struct {
	pool   *pgxpool.Pool
	config Config
}

// NewService constructs a Service backed by the given connection pool.
func NewService(pool *pgxpool.Pool, cfg Config) *Service {
	return &Service{pool: pool, config: cfg}
}

// ValidateSession resolves a bearer token to a user id, returning an *AuthError
// when the token is missing, expired, or unknown.
func (s *Service) ValidateSession(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", &AuthError{Code: "missing_token", Message: "session token is required"}
	}

	var session models.UserSession
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, created_at, last_active_at, expires_at
		 FROM user_sessions WHERE id = $1`,
		token,
	).Scan(&session.ID, &session.UserID, &session.CreatedAt, &session.LastActiveAt, &session.ExpiresAt)
	if err == pgx.ErrNoRows {
		return "", &AuthError{Code: "invalid_token", Message: "session token is invalid"}
	}
	if err != nil {
		return "", fmt.Errorf("querying session: %w", err)
	}

	if session.ExpiresAt.Before(time.Now()) {
		return "", &AuthError{Code: "session_expired", Message: "session has expired"}
	}

	return session.UserID, nil
}
