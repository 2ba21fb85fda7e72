package metering

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// BatchInserter is the interface used by Collector to persist transactions.
// It exists to allow testing without a real database.
type BatchInserter interface {
	BatchInsert(ctx context.Context, txns []Transaction) error
}

// FlushObserver is told the outcome of every non-empty flush.
type FlushObserver func(count int, err error)

// Collector buffers transactions in memory and periodically flushes them to the
// store in batches. It is safe for concurrent use.
//
// Writes are best-effort: a failed flush is logged and the batch is dropped.
// Balance mutations are never rolled back because their record was lost.
type Collector struct {
	store         BatchInserter
	buffer        []Transaction
	mu            sync.Mutex
	batchSize     int
	flushInterval time.Duration
	observer      FlushObserver
	done          chan struct{}
	stopOnce      sync.Once
}

// NewCollector creates a new Collector that flushes to the given store when the
// buffer reaches batchSize or every flushInterval, whichever comes first.
func NewCollector(store BatchInserter, batchSize int, flushInterval time.Duration) *Collector {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Collector{
		store:         store,
		buffer:        make([]Transaction, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}
}

// SetFlushObserver sets the optional flush observer, typically for metrics.
func (c *Collector) SetFlushObserver(o FlushObserver) {
	c.observer = o
}

// Start begins a background goroutine that flushes buffered transactions on a
// timer. It blocks until Stop is called or the context is cancelled.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Flush()
		case <-ctx.Done():
			c.Flush()
			return
		case <-c.done:
			c.Flush()
			return
		}
	}
}

// Record adds a transaction to the buffer, filling in ID and Timestamp when
// unset. If the buffer reaches batchSize, a flush is triggered immediately.
func (c *Collector) Record(tx Transaction) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now().UTC()
	}

	c.mu.Lock()
	c.buffer = append(c.buffer, tx)
	shouldFlush := len(c.buffer) >= c.batchSize
	c.mu.Unlock()

	if shouldFlush {
		c.Flush()
	}
}

// Flush drains all buffered transactions and writes them to the store. It logs
// errors rather than returning them so callers are not blocked.
func (c *Collector) Flush() {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]Transaction, 0, c.batchSize)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := c.store.BatchInsert(ctx, batch)
	if err != nil {
		slog.Error("failed to flush token transactions", "count", len(batch), "error", err)
	}
	if c.observer != nil {
		c.observer(len(batch), err)
	}
}

// Stop signals the background goroutine to exit and performs a final flush.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// Buffered returns the number of transactions waiting to be flushed.
func (c *Collector) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}
