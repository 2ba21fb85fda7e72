package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eduvoice/eduvoice/internal/metering"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TransactionRecorder is the interface for appending transaction records.
type TransactionRecorder interface {
	Record(tx metering.Transaction)
}

// MetricsRecorder is an optional interface for recording ledger metrics.
type MetricsRecorder interface {
	IncLedgerCharge(result string)
}

// Gate charges accounts before paid AI operations. The check-and-deduct is
// delegated to the Store, which performs it atomically; the transaction
// record is appended afterwards and is best-effort.
type Gate struct {
	store    Store
	recorder TransactionRecorder
	metrics  MetricsRecorder
	tracer   trace.Tracer
	now      func() time.Time
}

// NewGate creates a gate over store. recorder may be nil.
func NewGate(store Store, recorder TransactionRecorder) *Gate {
	return &Gate{
		store:    store,
		recorder: recorder,
		tracer:   otel.Tracer("github.com/eduvoice/eduvoice/internal/ledger"),
		now:      time.Now,
	}
}

// SetMetrics sets the optional metrics recorder.
func (g *Gate) SetMetrics(m MetricsRecorder) {
	g.metrics = m
}

// ChargeOrSkip deducts cost from userID's balance unless a subscription is
// active. It fails with ErrAccountNotFound or *InsufficientTokensError, in
// which case nothing was deducted.
func (g *Gate) ChargeOrSkip(ctx context.Context, userID string, cost int64, description string) (Charge, error) {
	ctx, span := g.tracer.Start(ctx, "ledger.ChargeOrSkip", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.Int64("ledger.cost", cost),
	))
	defer span.End()

	if cost <= 0 {
		return Charge{}, ErrInvalidCost
	}

	acct, err := g.store.Debit(ctx, userID, cost)
	switch {
	case errors.Is(err, ErrSubscriptionActive):
		g.inc("skipped")
		span.SetAttributes(attribute.Bool("ledger.charged", false))
		return Charge{Charged: false, NewBalance: acct.Balance}, nil
	case errors.Is(err, ErrInsufficientTokens):
		g.inc("insufficient")
		span.SetStatus(codes.Error, "insufficient tokens")
		return Charge{}, err
	case errors.Is(err, ErrAccountNotFound):
		g.inc("not_found")
		span.SetStatus(codes.Error, "account not found")
		return Charge{}, err
	case err != nil:
		g.inc("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Charge{}, fmt.Errorf("charging account: %w", err)
	}

	g.inc("charged")
	span.SetAttributes(attribute.Bool("ledger.charged", true), attribute.Int64("ledger.balance", acct.Balance))
	g.record(metering.Transaction{
		UserID:           userID,
		Kind:             metering.KindCharge,
		Delta:            -cost,
		ResultingBalance: acct.Balance,
		Description:      description,
	})
	return Charge{Charged: true, NewBalance: acct.Balance}, nil
}

// Grant credits amount tokens and appends a grant record.
func (g *Gate) Grant(ctx context.Context, userID string, amount int64, description string) (*Account, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	acct, err := g.store.Credit(ctx, userID, amount)
	if err != nil {
		return nil, err
	}
	g.record(metering.Transaction{
		UserID:           userID,
		Kind:             metering.KindGrant,
		Delta:            amount,
		ResultingBalance: acct.Balance,
		Description:      description,
	})
	return acct, nil
}

// SetSubscription turns the subscription on or off. Activation may come with
// a token grant, recorded in the same transaction entry.
func (g *Gate) SetSubscription(ctx context.Context, userID string, active bool, grant int64) (*Account, error) {
	if grant < 0 {
		return nil, ErrInvalidAmount
	}
	acct, err := g.store.SetSubscription(ctx, userID, active)
	if err != nil {
		return nil, err
	}
	if active && grant > 0 {
		if acct, err = g.store.Credit(ctx, userID, grant); err != nil {
			return nil, err
		}
	}

	desc := "subscription deactivated"
	var delta int64
	if active {
		desc = "subscription activated"
		delta = grant
	}
	g.record(metering.Transaction{
		UserID:           userID,
		Kind:             metering.KindSubscription,
		Delta:            delta,
		ResultingBalance: acct.Balance,
		Description:      desc,
	})
	return acct, nil
}

// Open creates a token account with a sign-up bonus.
func (g *Gate) Open(ctx context.Context, userID string, bonus int64) (*Account, error) {
	acct, err := g.store.Open(ctx, userID, bonus)
	if err != nil {
		return nil, err
	}
	if bonus > 0 {
		g.record(metering.Transaction{
			UserID:           userID,
			Kind:             metering.KindGrant,
			Delta:            bonus,
			ResultingBalance: bonus,
			Description:      "sign-up bonus",
		})
	}
	return acct, nil
}

// Balance returns the current account.
func (g *Gate) Balance(ctx context.Context, userID string) (*Account, error) {
	return g.store.Get(ctx, userID)
}

// Note appends a zero-delta record against the current balance, for events
// such as a discount voucher that do not move tokens.
func (g *Gate) Note(ctx context.Context, userID, kind, description string) error {
	acct, err := g.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	g.record(metering.Transaction{
		UserID:           userID,
		Kind:             kind,
		ResultingBalance: acct.Balance,
		Description:      description,
	})
	return nil
}

func (g *Gate) record(tx metering.Transaction) {
	if g.recorder == nil {
		return
	}
	tx.Timestamp = g.now().UTC()
	g.recorder.Record(tx)
	slog.Debug("token transaction recorded", "user_id", tx.UserID, "kind", tx.Kind, "delta", tx.Delta)
}

func (g *Gate) inc(result string) {
	if g.metrics != nil {
		g.metrics.IncLedgerCharge(result)
	}
}
