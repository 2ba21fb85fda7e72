package account

import (
	"context"

	"github.com/eduvoice/eduvoice/internal/auth"
)

// LookupSession resolves a session token to an auth.User, so Service
// satisfies auth.SessionLookup.
func (s *Service) LookupSession(ctx context.Context, token string) (*auth.User, error) {
	u, err := s.store.GetSessionUser(ctx, auth.HashToken(token), s.now())
	if err != nil {
		return nil, err
	}
	return &auth.User{ID: u.ID, Email: u.Email, Name: u.Name}, nil
}
