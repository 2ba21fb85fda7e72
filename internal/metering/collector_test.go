package metering

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockStore records all batches that were inserted.
type mockStore struct {
	mu       sync.Mutex
	batches  [][]Transaction
	insertFn func(ctx context.Context, txns []Transaction) error
}

func (m *mockStore) BatchInsert(ctx context.Context, txns []Transaction) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, txns)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Transaction, len(txns))
	copy(cp, txns)
	m.batches = append(m.batches, cp)
	return nil
}

func (m *mockStore) totalInserted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func sampleTx(delta int64) Transaction {
	return Transaction{
		UserID:           "user-1",
		Kind:             KindCharge,
		Delta:            delta,
		ResultingBalance: 100 + delta,
		Description:      "lecture",
	}
}

func TestCollector_RecordAddsToBuffer(t *testing.T) {
	ms := &mockStore{}
	c := NewCollector(ms, 100, time.Hour)

	c.Record(sampleTx(-5))
	c.Record(sampleTx(-10))

	c.mu.Lock()
	bufLen := len(c.buffer)
	first := c.buffer[0]
	c.mu.Unlock()

	if bufLen != 2 || c.Buffered() != 2 {
		t.Fatalf("expected buffer length 2, got %d (Buffered %d)", bufLen, c.Buffered())
	}
	if first.ID == "" {
		t.Error("expected Record to assign an id")
	}
	if first.Timestamp.IsZero() {
		t.Error("expected Record to assign a timestamp")
	}
	if ms.totalInserted() != 0 {
		t.Fatalf("expected 0 inserted before flush, got %d", ms.totalInserted())
	}
}

func TestCollector_RecordKeepsExplicitID(t *testing.T) {
	ms := &mockStore{}
	c := NewCollector(ms, 1, time.Hour)

	tx := sampleTx(-1)
	tx.ID = "fixed"
	c.Record(tx)

	if len(ms.batches) != 1 || ms.batches[0][0].ID != "fixed" {
		t.Fatalf("expected explicit id to survive, got %+v", ms.batches)
	}
}

func TestCollector_FlushOnBatchSize(t *testing.T) {
	tests := []struct {
		name      string
		batchSize int
		records   int
		wantFlush int
	}{
		{"exact batch size triggers flush", 3, 3, 3},
		{"under batch size does not flush", 5, 3, 0},
		{"double batch size triggers two flushes", 2, 4, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := &mockStore{}
			c := NewCollector(ms, tt.batchSize, time.Hour)

			for i := 0; i < tt.records; i++ {
				c.Record(sampleTx(-1))
			}

			got := ms.totalInserted()
			if got != tt.wantFlush {
				t.Errorf("expected %d flushed transactions, got %d", tt.wantFlush, got)
			}
		})
	}
}

func TestCollector_FlushErrorIsObservedNotReturned(t *testing.T) {
	ms := &mockStore{insertFn: func(context.Context, []Transaction) error {
		return errors.New("db down")
	}}
	c := NewCollector(ms, 1, time.Hour)

	var gotCount int
	var gotErr error
	c.SetFlushObserver(func(count int, err error) {
		gotCount, gotErr = count, err
	})

	c.Record(sampleTx(-3))

	if gotCount != 1 || gotErr == nil {
		t.Fatalf("expected observer to see failed flush of 1, got %d %v", gotCount, gotErr)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buffer) != 0 {
		t.Errorf("expected failed batch to be dropped, buffer has %d", len(c.buffer))
	}
}

func TestCollector_StopDoFinalFlush(t *testing.T) {
	ms := &mockStore{}
	c := NewCollector(ms, 100, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()

	c.Record(sampleTx(-1))
	c.Record(sampleTx(-2))
	c.Record(sampleTx(-3))

	c.Stop()
	c.Stop() // second Stop must not panic
	<-done

	got := ms.totalInserted()
	if got != 3 {
		t.Fatalf("expected 3 transactions after Stop, got %d", got)
	}
}

func TestCollector_TimerFlush(t *testing.T) {
	ms := &mockStore{}
	c := NewCollector(ms, 100, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.Start(ctx)

	c.Record(sampleTx(-1))

	time.Sleep(200 * time.Millisecond)

	got := ms.totalInserted()
	if got != 1 {
		t.Fatalf("expected 1 transaction after timer flush, got %d", got)
	}

	c.Stop()
}

func TestCollector_ConcurrentRecords(t *testing.T) {
	ms := &mockStore{}
	c := NewCollector(ms, 10, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Record(sampleTx(-1))
		}()
	}
	wg.Wait()

	c.Stop()
	<-done

	got := ms.totalInserted()
	if got != 50 {
		t.Fatalf("expected 50 transactions, got %d", got)
	}
}
