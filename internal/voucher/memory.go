package voucher

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps vouchers in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	byCode   map[string]*Voucher
	redeemed map[string]map[string]bool // voucher ID -> user IDs
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byCode:   make(map[string]*Voucher),
		redeemed: make(map[string]map[string]bool),
	}
}

func (m *MemoryStore) Create(_ context.Context, v *Voucher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byCode[v.Code]; ok {
		return ErrCodeTaken
	}
	c := *v
	m.byCode[v.Code] = &c
	return nil
}

func (m *MemoryStore) GetByCode(_ context.Context, code string) (*Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	c := *v
	return &c, nil
}

func (m *MemoryStore) List(_ context.Context) ([]*Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Voucher, 0, len(m.byCode))
	for _, v := range m.byCode {
		c := *v
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Redeem(_ context.Context, code, userID string, now time.Time) (*Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	if v.Expired(now) {
		return nil, ErrExpired
	}
	if m.redeemed[v.ID][userID] {
		return nil, ErrAlreadyRedeemed
	}
	if v.Exhausted() {
		return nil, ErrExhausted
	}
	if m.redeemed[v.ID] == nil {
		m.redeemed[v.ID] = make(map[string]bool)
	}
	m.redeemed[v.ID][userID] = true
	v.UsesSoFar++
	c := *v
	return &c, nil
}

func (m *MemoryStore) Release(_ context.Context, voucherID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.redeemed[voucherID][userID] {
		return nil
	}
	delete(m.redeemed[voucherID], userID)
	for _, v := range m.byCode {
		if v.ID == voucherID && v.UsesSoFar > 0 {
			v.UsesSoFar--
		}
	}
	return nil
}
