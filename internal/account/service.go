package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/eduvoice/eduvoice/internal/auth"
	"github.com/eduvoice/eduvoice/internal/crypto"
	"github.com/eduvoice/eduvoice/internal/ledger"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// SessionDuration is how long a login stays valid.
const SessionDuration = 7 * 24 * time.Hour

// AccountOpener creates the token account that goes with a new learner.
type AccountOpener interface {
	Open(ctx context.Context, userID string, bonus int64) (*ledger.Account, error)
}

// Service handles sign-up, login and the learner's stored provider key.
type Service struct {
	store       Store
	cipher      *crypto.Cipher
	ledger      AccountOpener
	signupBonus int64
	bcryptCost  int
	now         func() time.Time
}

// NewService creates an account service. cipher may be nil, in which case
// provider keys are stored as given.
func NewService(store Store, cipher *crypto.Cipher, opener AccountOpener, signupBonus int64) *Service {
	return &Service{
		store:       store,
		cipher:      cipher,
		ledger:      opener,
		signupBonus: signupBonus,
		bcryptCost:  bcrypt.DefaultCost,
		now:         time.Now,
	}
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup registers a learner, opens their token account with the sign-up
// bonus and logs them in.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*User, string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("hashing password: %w", err)
	}
	u := &User{
		ID:           uuid.NewString(),
		Email:        NormalizeEmail(in.Email),
		PasswordHash: string(hash),
		Name:         strings.TrimSpace(in.Name),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, "", err
	}
	if err := s.openAccount(ctx, u.ID); err != nil {
		// Without a token account the learner can do nothing, so the email
		// is released for another attempt.
		delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if derr := s.store.DeleteUser(delCtx, u.ID); derr != nil {
			slog.Error("failed to roll back user after account open failure", "user_id", u.ID, "error", derr)
		}
		return nil, "", err
	}
	token, err := s.newSession(ctx, u.ID)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// openAccount opens the learner's token account with the sign-up bonus. An
// existing account is left untouched, so it also repairs a sign-up whose
// account was never opened.
func (s *Service) openAccount(ctx context.Context, userID string) error {
	_, err := s.ledger.Open(ctx, userID, s.signupBonus)
	if err != nil && !errors.Is(err, ledger.ErrAccountExists) {
		return fmt.Errorf("opening token account: %w", err)
	}
	return nil
}

// Login checks credentials and returns a new session token. Unknown emails
// and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, in LoginInput) (*User, string, error) {
	u, err := s.store.GetByEmail(ctx, NormalizeEmail(in.Email))
	if errors.Is(err, ErrNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		return nil, "", ErrInvalidCredentials
	}
	if err := s.openAccount(ctx, u.ID); err != nil {
		return nil, "", err
	}
	token, err := s.newSession(ctx, u.ID)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// Logout revokes a session token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.store.DeleteSession(ctx, auth.HashToken(token))
}

// Get returns a learner by ID.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.store.GetByID(ctx, id)
}

// SetProviderKey stores the learner's personal provider key, encrypted and
// bound to their ID. An empty key removes it.
func (s *Service) SetProviderKey(ctx context.Context, userID, key string) error {
	key = strings.TrimSpace(key)
	enc := ""
	if key != "" {
		var err error
		if enc, err = s.cipher.Encrypt(key, userID); err != nil {
			return fmt.Errorf("encrypting provider key: %w", err)
		}
	}
	return s.store.SetProviderKey(ctx, userID, enc)
}

// ProviderKey returns the learner's decrypted provider key, or "" when none
// is stored.
func (s *Service) ProviderKey(ctx context.Context, userID string) (string, error) {
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if u.ProviderKeyEnc == "" {
		return "", nil
	}
	key, err := s.cipher.Decrypt(u.ProviderKeyEnc, userID)
	if err != nil {
		return "", fmt.Errorf("decrypting provider key: %w", err)
	}
	return key, nil
}

// CleanExpiredSessions deletes expired sessions and logs how many went.
func (s *Service) CleanExpiredSessions(ctx context.Context) error {
	n, err := s.store.CleanExpiredSessions(ctx, s.now())
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("expired sessions removed", "count", n)
	}
	return nil
}

func (s *Service) newSession(ctx context.Context, userID string) (string, error) {
	token, err := auth.GenerateToken()
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	err = s.store.CreateSession(ctx, &Session{
		TokenHash: auth.HashToken(token),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(SessionDuration),
	})
	if err != nil {
		return "", err
	}
	return token, nil
}
