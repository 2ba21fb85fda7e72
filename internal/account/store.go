package account

import (
	"context"
	"time"
)

// Store persists learners and their sessions. Sessions are keyed by the
// SHA-256 hash of the token; the plaintext is never stored.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	SetProviderKey(ctx context.Context, id, encrypted string) error

	CreateSession(ctx context.Context, s *Session) error
	GetSessionUser(ctx context.Context, tokenHash string, now time.Time) (*User, error)
	DeleteSession(ctx context.Context, tokenHash string) error
	CleanExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}
