// Package finality implements the probabilistic instant-finality tracker:
// per-batch acknowledgment sets, threshold detection, confidence/reversal
// math, and timeout bookkeeping.
package finality

import (
	"math"
	"sync"
	"time"

	"github.com/nicolocarcagni/fulmine/internal/batch"
)

// Default finality-tracking parameters.
const (
	DefaultInstantThreshold = 0.20
	DefaultTimeoutWindow    = 10 * time.Millisecond
)

// reversalExponent is chosen so calculateReversalProbability(20) ≈ 0.0081,
// satisfying the anchor constraints p(0)=1, p(100)=0, p(20)<0.01, p(67)<1e-6.
const reversalExponent = 21.6

// State is a FinalityEntry's position in its per-batch state machine.
type State int

const (
	Tracking State = iota
	Finalized
	TimedOut
)

// Entry is the per-batch state held by the tracker.
type Entry struct {
	Batch          *batch.Batch
	AckSet         map[string]struct{}
	StartedAt      int64
	State          State
	TimeToFinality int64
}

// InstantFinalityEvent is emitted the instant a batch crosses threshold.
type InstantFinalityEvent struct {
	BatchID        string
	BatchNumber    uint64
	Confidence     float64
	Validators     []string
	TimeToFinality int64
	Timestamp      int64
}

// Subscriber receives instant-finality events.
type Subscriber func(InstantFinalityEvent)

// Stats is the snapshot returned by Tracker.GetStats.
type Stats struct {
	TrackedBatches   int
	FinalizedBatches int
	FinalityRate     float64
}

// Status is the snapshot returned by Tracker.GetFinalityStatus.
type Status struct {
	AckCount            int
	TotalValidators     int
	Confidence          float64
	ReversalProbability float64
	HasInstantFinality  bool
	Validators          []string
}

// Tracker is the probabilistic finality tracker. All mutation
// is gated by mu, the single logical owner.
type Tracker struct {
	mu               sync.Mutex
	totalValidators  int
	instantThreshold float64
	timeoutWindow    time.Duration
	tracked          map[string]*Entry
	finalized        map[string]struct{}
	subscribers      []Subscriber
	nowFunc          func() int64
	afterFunc        func(d time.Duration, f func())
}

// New constructs a Tracker for totalValidators validators with the given
// instant-ack threshold fraction and timeout window.
func New(totalValidators int, instantThreshold float64, timeoutWindow time.Duration) *Tracker {
	if totalValidators < 1 {
		totalValidators = 1
	}
	if instantThreshold <= 0 || instantThreshold > 1 {
		instantThreshold = DefaultInstantThreshold
	}
	if timeoutWindow <= 0 {
		timeoutWindow = DefaultTimeoutWindow
	}
	return &Tracker{
		totalValidators:  totalValidators,
		instantThreshold: instantThreshold,
		timeoutWindow:    timeoutWindow,
		tracked:          make(map[string]*Entry),
		finalized:        make(map[string]struct{}),
		nowFunc:          func() int64 { return time.Now().UnixMilli() },
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// Subscribe registers a subscriber for instant-finality events.
func (tr *Tracker) Subscribe(s Subscriber) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.subscribers = append(tr.subscribers, s)
}

// Track registers b with an empty ack set and schedules its timeout check.
// Re-tracking an already-tracked batch id is a no-op (DuplicateRejection).
func (tr *Tracker) Track(b *batch.Batch) bool {
	tr.mu.Lock()
	if _, exists := tr.tracked[b.ID]; exists {
		tr.mu.Unlock()
		return false
	}
	entry := &Entry{
		Batch:     b,
		AckSet:    make(map[string]struct{}),
		StartedAt: tr.nowFunc(),
		State:     Tracking,
	}
	tr.tracked[b.ID] = entry
	window := tr.timeoutWindow
	tr.mu.Unlock()

	tr.afterFunc(window, func() { tr.checkTimeout(b.ID) })
	return true
}

func (tr *Tracker) checkTimeout(batchID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	entry, ok := tr.tracked[batchID]
	if !ok || entry.State != Tracking {
		return
	}
	entry.State = TimedOut
}

// thresholdCount returns ceil(totalValidators * instantThreshold).
func (tr *Tracker) thresholdCount() int {
	return int(math.Ceil(float64(tr.totalValidators) * tr.instantThreshold))
}

// OnValidatorAck records validatorId's ack for batchId. Returns true iff
// this ack was the one that crossed the instant-finality threshold.
func (tr *Tracker) OnValidatorAck(batchID, validatorID string) bool {
	tr.mu.Lock()

	entry, ok := tr.tracked[batchID]
	if !ok {
		tr.mu.Unlock()
		return false
	}
	entry.AckSet[validatorID] = struct{}{}

	if entry.State == Finalized || len(entry.AckSet) < tr.thresholdCount() {
		tr.mu.Unlock()
		return false
	}

	now := tr.nowFunc()
	entry.State = Finalized
	entry.TimeToFinality = now - entry.StartedAt
	tr.finalized[batchID] = struct{}{}

	validators := make([]string, 0, len(entry.AckSet))
	for v := range entry.AckSet {
		validators = append(validators, v)
	}
	confidence := float64(len(entry.AckSet)) / float64(tr.totalValidators) * 100
	ev := InstantFinalityEvent{
		BatchID:        batchID,
		BatchNumber:    entry.Batch.BatchNumber,
		Confidence:     confidence,
		Validators:     validators,
		TimeToFinality: entry.TimeToFinality,
		Timestamp:      now,
	}
	subscribers := tr.subscribers
	tr.mu.Unlock()

	for _, s := range subscribers {
		s(ev)
	}
	return true
}

// GetFinalityStatus reports the current ack/confidence snapshot for
// batchId. For an unknown batch it returns a Status with only
// TotalValidators set (no acks, HasInstantFinality false).
func (tr *Tracker) GetFinalityStatus(batchID string) Status {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	entry, ok := tr.tracked[batchID]
	if !ok {
		return Status{TotalValidators: tr.totalValidators}
	}
	validators := make([]string, 0, len(entry.AckSet))
	for v := range entry.AckSet {
		validators = append(validators, v)
	}
	confidence := float64(len(entry.AckSet)) / float64(tr.totalValidators) * 100
	return Status{
		AckCount:            len(entry.AckSet),
		TotalValidators:     tr.totalValidators,
		Confidence:          confidence,
		ReversalProbability: CalculateReversalProbability(confidence),
		HasInstantFinality:  entry.State == Finalized,
		Validators:          validators,
	}
}

// CalculateReversalProbability returns a monotonically non-increasing
// function of confidence percent satisfying p(0)=1, p(100)=0, p(20)<0.01,
// p(67)<1e-6.
func CalculateReversalProbability(confidencePercent float64) float64 {
	if confidencePercent <= 0 {
		return 1
	}
	if confidencePercent >= 100 {
		return 0
	}
	return math.Pow(1-confidencePercent/100, reversalExponent)
}

// SetTotalValidators updates the threshold basis. In-flight entries keep
// their ack sets; subsequent acks may cross the new threshold.
func (tr *Tracker) SetTotalValidators(n int) {
	if n < 1 {
		n = 1
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.totalValidators = n
}

// ClearBatch removes batchId from both the tracked and finalized sets.
func (tr *Tracker) ClearBatch(batchID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	delete(tr.tracked, batchID)
	delete(tr.finalized, batchID)
}

// GetStats returns aggregate tracker statistics.
func (tr *Tracker) GetStats() Stats {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	s := Stats{TrackedBatches: len(tr.tracked), FinalizedBatches: len(tr.finalized)}
	if s.TrackedBatches > 0 {
		s.FinalityRate = float64(s.FinalizedBatches) / float64(s.TrackedBatches) * 100
	}
	return s
}

// GetEntry returns a copy of the tracked entry's state for batchId,
// reporting whether it exists.
func (tr *Tracker) GetEntry(batchID string) (Entry, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	entry, ok := tr.tracked[batchID]
	if !ok {
		return Entry{}, false
	}
	acks := make(map[string]struct{}, len(entry.AckSet))
	for v := range entry.AckSet {
		acks[v] = struct{}{}
	}
	return Entry{
		Batch:          entry.Batch,
		AckSet:         acks,
		StartedAt:      entry.StartedAt,
		State:          entry.State,
		TimeToFinality: entry.TimeToFinality,
	}, true
}
