package exam

import "context"

// Store persists exam sessions. Update is a compare-and-swap on Version:
// it fails with ErrConflict when the stored version differs, and bumps
// s.Version on success.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, s *Session) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Session, error)
}
