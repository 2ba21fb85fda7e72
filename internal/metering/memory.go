package metering

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps the transaction log in process, for the memory backend
// and tests. It orders and pages like Store.
type MemoryStore struct {
	mu   sync.Mutex
	txns []Transaction
	ids  map[string]struct{}
}

// NewMemoryStore creates an empty log.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[string]struct{})}
}

// BatchInsert appends txns, skipping ids already present.
func (m *MemoryStore) BatchInsert(_ context.Context, txns []Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range txns {
		if _, dup := m.ids[tx.ID]; dup {
			continue
		}
		m.ids[tx.ID] = struct{}{}
		m.txns = append(m.txns, tx)
	}
	return nil
}

func (m *MemoryStore) matching(q Query) []Transaction {
	var out []Transaction
	for _, tx := range m.txns {
		if q.UserID != "" && tx.UserID != q.UserID {
			continue
		}
		if q.Kind != "" && tx.Kind != q.Kind {
			continue
		}
		if !q.From.IsZero() && tx.Timestamp.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && tx.Timestamp.After(q.To) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// GetSummary returns aggregate figures matching the query filters.
func (m *MemoryStore) GetSummary(_ context.Context, q Query) (*Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s Summary
	for _, tx := range m.matching(q) {
		s.Count++
		if tx.Delta < 0 {
			s.TokensSpent -= tx.Delta
		} else {
			s.TokensGained += tx.Delta
		}
	}
	return &s, nil
}

// ListTransactions returns a page ordered by timestamp DESC, id DESC.
func (m *MemoryStore) ListTransactions(_ context.Context, q Query) ([]*Transaction, string, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	m.mu.Lock()
	txns := m.matching(q)
	m.mu.Unlock()

	sort.Slice(txns, func(i, j int) bool {
		if !txns[i].Timestamp.Equal(txns[j].Timestamp) {
			return txns[i].Timestamp.After(txns[j].Timestamp)
		}
		return txns[i].ID > txns[j].ID
	})

	if q.Cursor != "" {
		ts, id, err := decodeCursor(q.Cursor)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %w", ErrInvalidCursor, err)
		}
		start := len(txns)
		for i, tx := range txns {
			if tx.Timestamp.Before(ts) || (tx.Timestamp.Equal(ts) && tx.ID < id) {
				start = i
				break
			}
		}
		txns = txns[start:]
	}

	var nextCursor string
	if len(txns) > limit {
		last := txns[limit-1]
		nextCursor = encodeCursor(last.Timestamp, last.ID)
		txns = txns[:limit]
	}

	out := make([]*Transaction, len(txns))
	for i := range txns {
		out[i] = &txns[i]
	}
	return out, nextCursor, nil
}
