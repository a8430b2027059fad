// Package validator wires the crypto, ledger, mempool, batch builder, and
// finality tracker into the single-node pipeline: transactions in, blocks
// out, acknowledgments driving instant finality in between.
package validator

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/nicolocarcagni/fulmine/internal/batch"
	"github.com/nicolocarcagni/fulmine/internal/chain"
	"github.com/nicolocarcagni/fulmine/internal/finality"
	"github.com/nicolocarcagni/fulmine/internal/ledger"
	"github.com/nicolocarcagni/fulmine/internal/mempool"
)

// EventType enumerates the events the orchestrator republishes outward.
type EventType string

const (
	EventBatchCreated    EventType = "batch-created"
	EventInstantFinality EventType = "instant-finality"
	EventBlockCreated    EventType = "block-created"
)

// Event is an outward-facing orchestrator notification.
type Event struct {
	Type  EventType
	Batch *batch.Batch
	Block *chain.Block
	Ack   *finality.InstantFinalityEvent
}

// Subscriber receives orchestrator events. Invoked synchronously.
type Subscriber func(Event)

// Config bundles the tunables for the pipeline's four owned components.
type Config struct {
	ValidatorID      string
	StorePath        string
	GenesisTimestamp int64
	BatchInterval    time.Duration
	MaxBatchSize     int
	TotalValidators  int
	InstantThreshold float64
	TimeoutWindow    time.Duration
	MempoolMaxSize   int
	MempoolExpireMs  int64
}

// Stats mirrors the getValidatorStats/getNetworkStats RPC result.
type Stats struct {
	ValidatorID         string
	IsRunning           bool
	BlockHeight         uint64
	PendingTransactions int
	TotalBatches        int
	FinalizedBatches    int
	FinalityRate        float64
	UptimeMs            int64
}

// Orchestrator owns and coordinates the ledger, mempool, batch builder, and
// finality tracker. All mutation of its own bookkeeping state
// is gated by mu; the owned components each gate their own state.
type Orchestrator struct {
	mu               sync.Mutex
	id               string
	ledger           *ledger.Ledger
	mempool          *mempool.Mempool
	builder          *batch.Builder
	tracker          *finality.Tracker
	pendingBatches   map[string]*batch.Batch
	finalizedBatches map[string]*batch.Batch
	running          bool
	startTime        int64
	subscribers      []Subscriber
	nowFunc          func() int64
}

// New opens the ledger at cfg.StorePath and wires mempool, batch builder,
// and finality tracker according to cfg.
func New(cfg Config) (*Orchestrator, error) {
	led, err := ledger.Open(cfg.StorePath, cfg.GenesisTimestamp)
	if err != nil {
		return nil, fmt.Errorf("validator: init: %w", err)
	}

	mp := mempool.New(cfg.MempoolMaxSize, cfg.MempoolExpireMs, func() int64 { return time.Now().UnixMilli() })
	led.SetMempool(mp)

	builder := batch.New(mp, cfg.BatchInterval, cfg.MaxBatchSize)
	tracker := finality.New(cfg.TotalValidators, cfg.InstantThreshold, cfg.TimeoutWindow)

	o := &Orchestrator{
		id:               cfg.ValidatorID,
		ledger:           led,
		mempool:          mp,
		builder:          builder,
		tracker:          tracker,
		pendingBatches:   make(map[string]*batch.Batch),
		finalizedBatches: make(map[string]*batch.Batch),
		nowFunc:          func() int64 { return time.Now().UnixMilli() },
	}

	builder.Subscribe(o.handleBuilderEvent)
	tracker.Subscribe(o.handleInstantFinality)
	return o, nil
}

// Subscribe registers a subscriber for outward orchestrator events.
func (o *Orchestrator) Subscribe(s Subscriber) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subscribers = append(o.subscribers, s)
}

func (o *Orchestrator) publish(ev Event) {
	for _, s := range o.subscribers {
		s(ev)
	}
}

// Start marks the orchestrator running, starts the batch builder, and
// records the start time.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return
	}
	o.running = true
	o.startTime = o.nowFunc()
	o.builder.Start()
}

// Stop halts the batch builder but keeps all accumulated state.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
	o.builder.Stop()
}

// Shutdown stops the pipeline and closes the ledger store.
func (o *Orchestrator) Shutdown() error {
	o.Stop()
	return o.ledger.Close()
}

// handleBuilderEvent implements the batch-created wiring: register with
// the tracker, self-ack, and republish outward.
func (o *Orchestrator) handleBuilderEvent(ev batch.Event) {
	if ev.Type != batch.EventBatchCreated || ev.Batch == nil {
		return
	}
	b := ev.Batch

	o.mu.Lock()
	o.pendingBatches[b.ID] = b
	id := o.id
	o.mu.Unlock()

	o.tracker.Track(b)
	o.AcknowledgeBatch(b.ID, id)

	o.publish(Event{Type: EventBatchCreated, Batch: b})
}

// handleInstantFinality implements the instant-finality wiring: move the
// batch from pending to finalized and assemble+commit the resulting block.
func (o *Orchestrator) handleInstantFinality(ev finality.InstantFinalityEvent) {
	o.mu.Lock()
	b, ok := o.pendingBatches[ev.BatchID]
	if ok {
		delete(o.pendingBatches, ev.BatchID)
		o.finalizedBatches[ev.BatchID] = b
	}
	id := o.id
	o.mu.Unlock()

	if !ok {
		return
	}

	o.publish(Event{Type: EventInstantFinality, Batch: b, Ack: &ev})

	block := o.createBlockFromBatch(b, id)
	if block != nil {
		o.publish(Event{Type: EventBlockCreated, Batch: b, Block: block})
	}
}

// createBlockFromBatch links a new block to the current tip and commits it
// via the ledger's add_block contract.
func (o *Orchestrator) createBlockFromBatch(b *batch.Batch, validatorID string) *chain.Block {
	tip := o.ledger.GetLatestBlock()
	block := chain.NewBlock(tip.Number+1, o.nowFunc(), tip.Hash, validatorID, b.Transactions)
	if !o.ledger.AddBlock(block) {
		return nil
	}
	return block
}

// AcknowledgeBatch forwards a validator's acknowledgment to the tracker.
func (o *Orchestrator) AcknowledgeBatch(batchID, validatorID string) bool {
	return o.tracker.OnValidatorAck(batchID, validatorID)
}

// AddTransaction accepts tx if its signature verifies, deferring economic
// validation (nonce/balance) to block execution — unlike the ledger's own
// add_transaction, which also checks those.
func (o *Orchestrator) AddTransaction(tx *chain.Transaction) bool {
	if !tx.Verify() {
		return false
	}
	return o.mempool.Add(tx)
}

// GetBalance returns addr's current balance.
func (o *Orchestrator) GetBalance(addr string) *big.Int {
	return o.ledger.GetAccount(addr).Balance
}

// GetAccount returns the full materialized account at addr.
func (o *Orchestrator) GetAccount(addr string) *chain.Account {
	return o.ledger.GetAccount(addr)
}

// GetNonce returns addr's next expected nonce.
func (o *Orchestrator) GetNonce(addr string) uint64 {
	return o.ledger.GetNonce(addr)
}

// GetLatestBlock returns the chain tip.
func (o *Orchestrator) GetLatestBlock() *chain.Block {
	return o.ledger.GetLatestBlock()
}

// GetBlock returns the block at index i, or nil if out of range.
func (o *Orchestrator) GetBlock(i uint64) *chain.Block {
	return o.ledger.GetBlock(i)
}

// GetTransaction looks up a committed transaction by hash, returning the
// block number it was committed in.
func (o *Orchestrator) GetTransaction(hash string) (*chain.Transaction, uint64, bool) {
	return o.ledger.FindTransaction(hash)
}

// GetPendingBatches returns all batches awaiting finality.
func (o *Orchestrator) GetPendingBatches() []*batch.Batch {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*batch.Batch, 0, len(o.pendingBatches))
	for _, b := range o.pendingBatches {
		out = append(out, b)
	}
	return out
}

// GetFinalizedBatches returns all batches that have reached instant
// finality.
func (o *Orchestrator) GetFinalizedBatches() []*batch.Batch {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*batch.Batch, 0, len(o.finalizedBatches))
	for _, b := range o.finalizedBatches {
		out = append(out, b)
	}
	return out
}

// GetBatchAcks returns the finality status (including ack set) for
// batchId.
func (o *Orchestrator) GetBatchAcks(batchID string) finality.Status {
	return o.tracker.GetFinalityStatus(batchID)
}

// GetStats returns aggregate validator statistics.
func (o *Orchestrator) GetStats() Stats {
	o.mu.Lock()
	running := o.running
	startTime := o.startTime
	totalBatches := len(o.pendingBatches) + len(o.finalizedBatches)
	finalizedCount := len(o.finalizedBatches)
	o.mu.Unlock()

	trackerStats := o.tracker.GetStats()
	uptime := int64(0)
	if running {
		uptime = o.nowFunc() - startTime
	}
	return Stats{
		ValidatorID:         o.id,
		IsRunning:           running,
		BlockHeight:         o.ledger.GetLatestBlock().Number,
		PendingTransactions: o.mempool.Size(),
		TotalBatches:        totalBatches,
		FinalizedBatches:    finalizedCount,
		FinalityRate:        trackerStats.FinalityRate,
		UptimeMs:            uptime,
	}
}

// ForceBatch forces an immediate batch tick, bypassing the periodic timer.
func (o *Orchestrator) ForceBatch() *batch.Batch {
	return o.builder.ForceBatch()
}

// ApplyGenesisTransfer exposes the ledger's bootstrap-only funding path:
// never reachable from the RPC or CLI surfaces, which only ever call
// AddTransaction.
func (o *Orchestrator) ApplyGenesisTransfer(to string, amount, fee *big.Int, nonce uint64, timestampMs int64) (*chain.Transaction, error) {
	return o.ledger.ApplyGenesisTransfer(to, amount, fee, nonce, timestampMs)
}
