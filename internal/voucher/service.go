package voucher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/eduvoice/eduvoice/internal/ledger"
	"github.com/eduvoice/eduvoice/internal/metering"
	"github.com/google/uuid"
)

// Ledger is the part of the token gate a redemption touches.
type Ledger interface {
	Balance(ctx context.Context, userID string) (*ledger.Account, error)
	Grant(ctx context.Context, userID string, amount int64, description string) (*ledger.Account, error)
	Note(ctx context.Context, userID, kind, description string) error
}

// MetricsRecorder is an optional interface for recording redemption metrics.
type MetricsRecorder interface {
	IncVoucherRedemption(result string)
}

// Plan prices the paid plan and sizes the free one.
type Plan struct {
	FreeTokens int64
	PriceCents int64
}

// Service creates and redeems vouchers.
type Service struct {
	store   Store
	ledger  Ledger
	plan    Plan
	metrics MetricsRecorder
	now     func() time.Time
}

// NewService creates a voucher service.
func NewService(store Store, l Ledger, plan Plan) *Service {
	return &Service{store: store, ledger: l, plan: plan, now: time.Now}
}

// SetMetrics sets the optional metrics recorder.
func (s *Service) SetMetrics(m MetricsRecorder) {
	s.metrics = m
}

// NormalizeCode upper-cases and trims a voucher code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Create stores a new voucher.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Voucher, error) {
	code := NormalizeCode(in.Code)
	if code == "" {
		return nil, fmt.Errorf("%w: code is required", ErrInvalid)
	}
	if in.DiscountPercent < 1 || in.DiscountPercent > 100 {
		return nil, fmt.Errorf("%w: discount_percent must be between 1 and 100", ErrInvalid)
	}
	if in.MaxUses != nil && *in.MaxUses < 1 {
		return nil, fmt.Errorf("%w: max_uses must be at least 1", ErrInvalid)
	}
	v := &Voucher{
		ID:              uuid.NewString(),
		Code:            code,
		DiscountPercent: in.DiscountPercent,
		ExpiresAt:       in.ExpiresAt,
		MaxUses:         in.MaxUses,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.store.Create(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// List returns all vouchers, newest first.
func (s *Service) List(ctx context.Context) ([]*Voucher, error) {
	return s.store.List(ctx)
}

// Redeem applies a voucher for userID. Expiry, remaining uses and prior
// redemption are checked at this moment, atomically with the use-count
// increment. A free voucher grants the free plan's tokens; a discount voucher
// returns the discounted price and records a zero-delta transaction.
func (s *Service) Redeem(ctx context.Context, userID, code string) (*Redemption, error) {
	code = NormalizeCode(code)
	if code == "" {
		s.inc("not_found")
		return nil, ErrNotFound
	}
	acct, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		s.inc("error")
		return nil, err
	}

	v, err := s.store.Redeem(ctx, code, userID, s.now())
	if err != nil {
		s.inc(resultFor(err))
		return nil, err
	}

	out := &Redemption{Voucher: v, Balance: acct.Balance}
	if v.Free() && s.plan.FreeTokens > 0 {
		acct, err := s.ledger.Grant(ctx, userID, s.plan.FreeTokens, "voucher "+code)
		if err != nil {
			s.release(ctx, v, userID, err)
			s.inc("error")
			return nil, fmt.Errorf("granting voucher tokens: %w", err)
		}
		out.TokensGranted = s.plan.FreeTokens
		out.Balance = acct.Balance
	} else {
		out.PriceCents = s.plan.PriceCents * int64(100-v.DiscountPercent) / 100
		desc := fmt.Sprintf("voucher %s: %d%% off", code, v.DiscountPercent)
		if err := s.ledger.Note(ctx, userID, metering.KindVoucher, desc); err != nil {
			slog.Warn("failed to note voucher redemption", "user_id", userID, "code", code, "error", err)
		}
	}
	s.inc("redeemed")
	return out, nil
}

// release gives back a redemption whose grant failed. It runs even when ctx
// is done; if it still fails the redemption stands and is logged for an admin
// grant.
func (s *Service) release(ctx context.Context, v *Voucher, userID string, cause error) {
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.Release(relCtx, v.ID, userID); err != nil {
		slog.Error("voucher redeemed but grant failed and release failed",
			"user_id", userID, "code", v.Code, "grant_error", cause, "error", err)
		return
	}
	slog.Warn("voucher grant failed; redemption released", "user_id", userID, "code", v.Code, "error", cause)
}

func resultFor(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrExhausted):
		return "exhausted"
	case errors.Is(err, ErrAlreadyRedeemed):
		return "already_redeemed"
	default:
		return "error"
	}
}

func (s *Service) inc(result string) {
	if s.metrics != nil {
		s.metrics.IncVoucherRedemption(result)
	}
}
