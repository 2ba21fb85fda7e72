package ledger

import (
	"context"
	"sync"
	"time"
)

type memAccount struct {
	mu   sync.Mutex
	acct Account
}

// MemoryStore keeps accounts in process memory. Each account has its own
// mutex, so charges against one account are serialized while different
// accounts proceed in parallel.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*memAccount
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*memAccount),
		now:      time.Now,
	}
}

func (s *MemoryStore) lookup(userID string) (*memAccount, error) {
	s.mu.RLock()
	a, ok := s.accounts[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrAccountNotFound
	}
	return a, nil
}

func (s *MemoryStore) Open(_ context.Context, userID string, balance int64) (*Account, error) {
	if balance < 0 {
		return nil, ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[userID]; ok {
		return nil, ErrAccountExists
	}
	a := &memAccount{acct: Account{UserID: userID, Balance: balance, UpdatedAt: s.now().UTC()}}
	s.accounts[userID] = a
	out := a.acct
	return &out, nil
}

func (s *MemoryStore) Get(_ context.Context, userID string) (*Account, error) {
	a, err := s.lookup(userID)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	out := a.acct
	a.mu.Unlock()
	return &out, nil
}

func (s *MemoryStore) Debit(_ context.Context, userID string, cost int64) (*Account, error) {
	a, err := s.lookup(userID)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.acct.SubscriptionActive {
		out := a.acct
		return &out, ErrSubscriptionActive
	}
	if a.acct.Balance < cost {
		return nil, &InsufficientTokensError{Balance: a.acct.Balance, Required: cost}
	}
	a.acct.Balance -= cost
	a.acct.Version++
	a.acct.UpdatedAt = s.now().UTC()
	out := a.acct
	return &out, nil
}

func (s *MemoryStore) Credit(_ context.Context, userID string, amount int64) (*Account, error) {
	a, err := s.lookup(userID)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acct.Balance += amount
	a.acct.Version++
	a.acct.UpdatedAt = s.now().UTC()
	out := a.acct
	return &out, nil
}

func (s *MemoryStore) SetSubscription(_ context.Context, userID string, active bool) (*Account, error) {
	a, err := s.lookup(userID)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acct.SubscriptionActive = active
	a.acct.Version++
	a.acct.UpdatedAt = s.now().UTC()
	out := a.acct
	return &out, nil
}
