package metering

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryStorePaging(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	var txns []Transaction
	for i := 0; i < 5; i++ {
		txns = append(txns, Transaction{
			ID:        fmt.Sprintf("tx-%d", i),
			UserID:    "u1",
			Kind:      KindCharge,
			Delta:     -10,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}
	txns = append(txns, Transaction{ID: "other", UserID: "u2", Kind: KindGrant, Delta: 50, Timestamp: base})
	if err := m.BatchInsert(ctx, txns); err != nil {
		t.Fatal(err)
	}
	// A retried batch adds nothing.
	if err := m.BatchInsert(ctx, txns[:2]); err != nil {
		t.Fatal(err)
	}

	page, cursor, err := m.ListTransactions(ctx, Query{UserID: "u1", Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 3 || page[0].ID != "tx-4" || cursor == "" {
		t.Fatalf("unexpected first page: %d items, first %s, cursor %q", len(page), page[0].ID, cursor)
	}

	rest, cursor, err := m.ListTransactions(ctx, Query{UserID: "u1", Limit: 3, Cursor: cursor})
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 2 || rest[0].ID != "tx-1" || cursor != "" {
		t.Fatalf("unexpected second page: %d items, cursor %q", len(rest), cursor)
	}

	sum, err := m.GetSummary(ctx, Query{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Count != 5 || sum.TokensSpent != 50 || sum.TokensGained != 0 {
		t.Errorf("unexpected summary %+v", sum)
	}
}
