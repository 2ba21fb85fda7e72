package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/eduvoice/eduvoice/internal/metering"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	mu   sync.Mutex
	txns []metering.Transaction
}

func (f *fakeRecorder) Record(tx metering.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txns = append(f.txns, tx)
}

func (f *fakeRecorder) all() []metering.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]metering.Transaction(nil), f.txns...)
}

type fakeMetrics struct {
	mu      sync.Mutex
	results map[string]int
}

func (f *fakeMetrics) IncLedgerCharge(result string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.results == nil {
		f.results = map[string]int{}
	}
	f.results[result]++
}

func newGate(t *testing.T, balance int64) (*Gate, *fakeRecorder, string) {
	t.Helper()
	store := NewMemoryStore()
	_, err := store.Open(context.Background(), "u1", balance)
	require.NoError(t, err)
	rec := &fakeRecorder{}
	return NewGate(store, rec), rec, "u1"
}

func TestChargeOrSkipDeducts(t *testing.T) {
	g, rec, id := newGate(t, 100)
	m := &fakeMetrics{}
	g.SetMetrics(m)

	c, err := g.ChargeOrSkip(context.Background(), id, 30, "lecture")
	require.NoError(t, err)
	assert.Equal(t, Charge{Charged: true, NewBalance: 70}, c)

	txns := rec.all()
	require.Len(t, txns, 1)
	assert.Equal(t, int64(-30), txns[0].Delta)
	assert.Equal(t, int64(70), txns[0].ResultingBalance)
	assert.Equal(t, metering.KindCharge, txns[0].Kind)
	assert.Equal(t, "lecture", txns[0].Description)
	assert.Equal(t, 1, m.results["charged"])
}

func TestChargeOrSkipInsufficient(t *testing.T) {
	g, rec, id := newGate(t, 5)

	_, err := g.ChargeOrSkip(context.Background(), id, 6, "quiz")
	var insufficient *InsufficientTokensError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, int64(5), insufficient.Balance)
	assert.Equal(t, int64(6), insufficient.Required)
	assert.Empty(t, rec.all())

	a, err := g.Balance(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(5), a.Balance)
}

func TestChargeOrSkipSubscriptionSkips(t *testing.T) {
	g, rec, id := newGate(t, 2)
	_, err := g.SetSubscription(context.Background(), id, true, 0)
	require.NoError(t, err)

	c, err := g.ChargeOrSkip(context.Background(), id, 50, "lecture")
	require.NoError(t, err)
	assert.Equal(t, Charge{Charged: false, NewBalance: 2}, c)

	// Only the activation was recorded.
	txns := rec.all()
	require.Len(t, txns, 1)
	assert.Equal(t, metering.KindSubscription, txns[0].Kind)
}

func TestChargeOrSkipErrors(t *testing.T) {
	g, _, id := newGate(t, 10)

	_, err := g.ChargeOrSkip(context.Background(), id, 0, "x")
	assert.ErrorIs(t, err, ErrInvalidCost)
	_, err = g.ChargeOrSkip(context.Background(), id, -3, "x")
	assert.ErrorIs(t, err, ErrInvalidCost)
	_, err = g.ChargeOrSkip(context.Background(), "missing", 1, "x")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestGrantAndSubscription(t *testing.T) {
	g, rec, id := newGate(t, 0)
	ctx := context.Background()

	a, err := g.Grant(ctx, id, 40, "admin grant")
	require.NoError(t, err)
	assert.Equal(t, int64(40), a.Balance)

	_, err = g.Grant(ctx, id, 0, "nothing")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	a, err = g.SetSubscription(ctx, id, true, 500)
	require.NoError(t, err)
	assert.True(t, a.SubscriptionActive)
	assert.Equal(t, int64(540), a.Balance)

	a, err = g.SetSubscription(ctx, id, false, 0)
	require.NoError(t, err)
	assert.False(t, a.SubscriptionActive)

	txns := rec.all()
	require.Len(t, txns, 3)
	assert.Equal(t, int64(40), txns[0].Delta)
	assert.Equal(t, int64(500), txns[1].Delta)
	assert.Equal(t, int64(540), txns[1].ResultingBalance)
	assert.Equal(t, int64(0), txns[2].Delta)
}

func TestOpenRecordsBonusAndNote(t *testing.T) {
	store := NewMemoryStore()
	rec := &fakeRecorder{}
	g := NewGate(store, rec)
	ctx := context.Background()

	_, err := g.Open(ctx, "new", 20)
	require.NoError(t, err)
	require.NoError(t, g.Note(ctx, "new", metering.KindVoucher, "voucher SAVE10 redeemed"))

	txns := rec.all()
	require.Len(t, txns, 2)
	assert.Equal(t, int64(20), txns[0].Delta)
	assert.Equal(t, int64(0), txns[1].Delta)
	assert.Equal(t, int64(20), txns[1].ResultingBalance)

	assert.ErrorIs(t, g.Note(ctx, "missing", metering.KindVoucher, "x"), ErrAccountNotFound)
}

func TestChargeWithoutRecorder(t *testing.T) {
	store := NewMemoryStore()
	_, _ = store.Open(context.Background(), "u", 3)
	g := NewGate(store, nil)

	c, err := g.ChargeOrSkip(context.Background(), "u", 3, "x")
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.NewBalance)
}

func TestGateProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("inactive subscription deducts exactly C or fails with (B, C)", prop.ForAll(
		func(balance, cost int64) bool {
			store := NewMemoryStore()
			_, _ = store.Open(context.Background(), "u", balance)
			g := NewGate(store, nil)

			c, err := g.ChargeOrSkip(context.Background(), "u", cost, "p")
			after, _ := store.Get(context.Background(), "u")

			if balance >= cost {
				return err == nil && c.Charged && c.NewBalance == balance-cost && after.Balance == balance-cost
			}
			var insufficient *InsufficientTokensError
			return errors.As(err, &insufficient) &&
				insufficient.Balance == balance && insufficient.Required == cost &&
				after.Balance == balance
		},
		gen.Int64Range(0, 10_000), gen.Int64Range(1, 10_000),
	))

	properties.Property("active subscription never mutates balance", prop.ForAll(
		func(balance, cost int64) bool {
			store := NewMemoryStore()
			_, _ = store.Open(context.Background(), "u", balance)
			_, _ = store.SetSubscription(context.Background(), "u", true)
			g := NewGate(store, nil)

			c, err := g.ChargeOrSkip(context.Background(), "u", cost, "p")
			after, _ := store.Get(context.Background(), "u")
			return err == nil && !c.Charged && c.NewBalance == balance && after.Balance == balance
		},
		gen.Int64Range(0, 10_000), gen.Int64Range(1, 100_000),
	))

	properties.TestingRun(t)
}

func TestGateConcurrentCharges(t *testing.T) {
	const (
		n    = 50
		cost = 7
	)
	for name, factory := range map[string]storeFactory{"memory": newMemory, "redis": newRedis} {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			id := openTestAccount(t, s, n*cost-1)
			rec := &fakeRecorder{}
			g := NewGate(s, rec)

			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := g.ChargeOrSkip(context.Background(), id, cost, "concurrent")
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)

			var ok, insufficient int
			for err := range errs {
				switch {
				case err == nil:
					ok++
				case errors.Is(err, ErrInsufficientTokens):
					insufficient++
				default:
					t.Fatalf("unexpected error: %v", err)
				}
			}
			assert.Equal(t, n-1, ok)
			assert.Equal(t, 1, insufficient)
			assert.Len(t, rec.all(), ok)
		})
	}
}
