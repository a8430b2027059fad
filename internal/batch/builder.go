// Package batch implements the periodic micro-batch builder: it drains the
// mempool at a fixed cadence into small, merkle-committed batches and
// publishes them for the finality tracker to pick up.
package batch

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nicolocarcagni/fulmine/internal/chain"
)

// DefaultInterval and DefaultMaxBatchSize are the builder's defaults.
const (
	DefaultInterval     = 10 * time.Millisecond
	DefaultMaxBatchSize = 1000
)

// Batch is a transient, finality-tracked unit produced from the mempool.
type Batch struct {
	ID           string
	BatchNumber  uint64
	Timestamp    int64
	Transactions []*chain.Transaction
	MerkleRoot   string
}

// EventType enumerates the events the builder publishes.
type EventType string

const (
	EventBatchCreated EventType = "batch-created"
	EventStopped      EventType = "stopped"
)

// Event is the sum type of everything a builder subscriber may observe.
type Event struct {
	Type  EventType
	Batch *Batch
}

// Subscriber receives builder events. Subscribers are invoked synchronously,
// on the tick goroutine or on the goroutine that called ForceBatch or Stop —
// they must not block.
type Subscriber func(Event)

// PendingSource is the slice of Mempool the builder depends on.
type PendingSource interface {
	GetPendingByPriority(n int) []*chain.Transaction
}

// Builder is the micro-batch builder. All mutable state is
// gated by mu, the single logical owner.
type Builder struct {
	mu           sync.Mutex
	mempool      PendingSource
	interval     time.Duration
	maxBatchSize int
	batchNumber  uint64
	running      bool
	stopCh       chan struct{}
	doneCh       chan struct{}
	subscribers  []Subscriber
	nowFunc      func() int64
	idFunc       func() string
}

// New constructs a Builder draining mempool at interval, capped to
// maxBatchSize transactions per tick.
func New(mempool PendingSource, interval time.Duration, maxBatchSize int) *Builder {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	return &Builder{
		mempool:      mempool,
		interval:     interval,
		maxBatchSize: maxBatchSize,
		nowFunc:      func() int64 { return time.Now().UnixMilli() },
		idFunc:       func() string { return uuid.NewString() },
	}
}

// Subscribe registers a subscriber for builder events.
func (b *Builder) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, s)
}

func (b *Builder) publish(ev Event) {
	for _, s := range b.subscribers {
		s(ev)
	}
}

// Start schedules a repeating tick every interval. Idempotent: calling
// Start while already running is a no-op.
func (b *Builder) Start() {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	interval := b.interval
	b.mu.Unlock()

	go b.run(interval)
}

func (b *Builder) run(interval time.Duration) {
	defer close(b.doneCh)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.tick()
		}
	}
}

// Stop cancels the timer. Idempotent; emits EventStopped.
func (b *Builder) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	stopCh := b.stopCh
	doneCh := b.doneCh
	b.mu.Unlock()

	close(stopCh)
	<-doneCh

	b.mu.Lock()
	b.publish(Event{Type: EventStopped})
	b.mu.Unlock()
}

// IsRunning reports whether the periodic tick is active.
func (b *Builder) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// tick drains up to maxBatchSize pending transactions by priority and, if
// non-empty, builds and publishes a batch.
func (b *Builder) tick() {
	b.mu.Lock()
	mempool := b.mempool
	maxBatchSize := b.maxBatchSize
	b.mu.Unlock()

	txs := mempool.GetPendingByPriority(maxBatchSize)
	if len(txs) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	batch := b.buildBatchLocked(txs)
	b.publish(Event{Type: EventBatchCreated, Batch: batch})
}

// ForceBatch immediately performs a tick action regardless of the timer.
func (b *Builder) ForceBatch() *Batch {
	b.mu.Lock()
	mempool := b.mempool
	maxBatchSize := b.maxBatchSize
	b.mu.Unlock()

	txs := mempool.GetPendingByPriority(maxBatchSize)
	if len(txs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	batch := b.buildBatchLocked(txs)
	b.publish(Event{Type: EventBatchCreated, Batch: batch})
	return batch
}

func (b *Builder) buildBatchLocked(txs []*chain.Transaction) *Batch {
	b.batchNumber++
	return &Batch{
		ID:           b.idFunc(),
		BatchNumber:  b.batchNumber,
		Timestamp:    b.nowFunc(),
		Transactions: txs,
		MerkleRoot:   chain.MerkleRootForTransactions(txs),
	}
}

// SetBatchInterval updates the tick cadence, re-arming the timer if
// currently running.
func (b *Builder) SetBatchInterval(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	b.mu.Lock()
	running := b.running
	b.interval = interval
	b.mu.Unlock()

	if running {
		b.Stop()
		b.Start()
	}
}

// SetMaxBatchSize updates the per-tick transaction cap.
func (b *Builder) SetMaxBatchSize(n int) {
	if n <= 0 {
		n = DefaultMaxBatchSize
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxBatchSize = n
}

// Reset zeroes batchNumber. A testing aid only.
func (b *Builder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batchNumber = 0
}

// CalculateMerkleRootForBatch exposes the same deterministic computation
// used internally, for external verification.
func CalculateMerkleRootForBatch(txs []*chain.Transaction) string {
	return chain.MerkleRootForTransactions(txs)
}
