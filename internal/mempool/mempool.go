// Package mempool implements the fee-priority and per-account nonce-ordered
// transaction pool: dedup, expiration, eviction, and the selection queries
// the micro-batch builder and external callers read from.
package mempool

import (
	"math/big"
	"sort"
	"sync"

	"github.com/nicolocarcagni/fulmine/internal/chain"
)

// DefaultMaxSize is the pool's default capacity.
const DefaultMaxSize = 100_000

// DefaultExpiration is the default time a pending transaction may sit
// unselected before EvictExpired removes it.
const DefaultExpiration = 60_000 // ms

// Stats is the snapshot returned by Mempool.Stats.
type Stats struct {
	Size            int
	MaxSize         int
	AccountCount    int
	AverageFee      int64
	OldestTimestamp int64
	NewestTimestamp int64
}

// Mempool is the pending-transaction pool. All mutation is
// gated by a single mutex — it is the logical owner of its state.
type Mempool struct {
	mu           sync.Mutex
	maxSize      int
	expirationMs int64
	byHash       map[string]*chain.Transaction
	byAccount    map[string]map[string]struct{}
	insertedAt   map[string]int64
	nowFunc      func() int64
}

// New constructs a Mempool with the given capacity and expiration window.
// nowFunc supplies the current time in milliseconds, injected so tests can
// control expiration deterministically.
func New(maxSize int, expirationMs int64, nowFunc func() int64) *Mempool {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if expirationMs <= 0 {
		expirationMs = DefaultExpiration
	}
	return &Mempool{
		maxSize:      maxSize,
		expirationMs: expirationMs,
		byHash:       make(map[string]*chain.Transaction),
		byAccount:    make(map[string]map[string]struct{}),
		insertedAt:   make(map[string]int64),
		nowFunc:      nowFunc,
	}
}

func (m *Mempool) now() int64 {
	if m.nowFunc != nil {
		return m.nowFunc()
	}
	return 0
}

// Add inserts tx, evicting expired and then lowest-fee entries to make
// room if the pool is at capacity. Returns false on duplicate hash or if
// the pool remains full after eviction.
func (m *Mempool) Add(tx *chain.Transaction) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byHash[tx.Hash]; exists {
		return false
	}

	if len(m.byHash) >= m.maxSize {
		m.evictExpiredLocked()
		if len(m.byHash) >= m.maxSize && !m.evictLowestFeeLocked(tx.Fee) {
			return false
		}
	}

	m.insertLocked(tx)
	return true
}

func (m *Mempool) insertLocked(tx *chain.Transaction) {
	m.byHash[tx.Hash] = tx
	m.insertedAt[tx.Hash] = m.now()

	senderAddr, err := tx.SenderAddress()
	if err != nil {
		senderAddr = tx.From
	}
	set, ok := m.byAccount[senderAddr]
	if !ok {
		set = make(map[string]struct{})
		m.byAccount[senderAddr] = set
	}
	set[tx.Hash] = struct{}{}
}

func (m *Mempool) removeLocked(hash string) bool {
	tx, ok := m.byHash[hash]
	if !ok {
		return false
	}
	delete(m.byHash, hash)
	delete(m.insertedAt, hash)

	senderAddr, err := tx.SenderAddress()
	if err != nil {
		senderAddr = tx.From
	}
	if set, ok := m.byAccount[senderAddr]; ok {
		delete(set, hash)
		if len(set) == 0 {
			delete(m.byAccount, senderAddr)
		}
	}
	return true
}

// Remove deletes tx by hash from all indices, reporting whether it existed.
func (m *Mempool) Remove(hash string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(hash)
}

// evictExpiredLocked removes every entry older than the expiration window.
func (m *Mempool) evictExpiredLocked() {
	now := m.now()
	var expired []string
	for hash, ts := range m.insertedAt {
		if now-ts > m.expirationMs {
			expired = append(expired, hash)
		}
	}
	for _, hash := range expired {
		m.removeLocked(hash)
	}
}

// EvictExpired removes every entry older than the expiration window.
func (m *Mempool) EvictExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.byHash)
	m.evictExpiredLocked()
	return before - len(m.byHash)
}

// evictLowestFeeLocked removes the single lowest-fee entry, tie-broken by
// oldest insertion timestamp, but only if incomingFee strictly exceeds it —
// eviction must preserve the most economically valuable tail, not merely
// make room for any arrival. Returns whether an entry was evicted.
func (m *Mempool) evictLowestFeeLocked(incomingFee *big.Int) bool {
	var lowest *chain.Transaction
	var lowestTs int64
	for hash, tx := range m.byHash {
		ts := m.insertedAt[hash]
		if lowest == nil ||
			tx.Fee.Cmp(lowest.Fee) < 0 ||
			(tx.Fee.Cmp(lowest.Fee) == 0 && ts < lowestTs) {
			lowest = tx
			lowestTs = ts
		}
	}
	if lowest == nil || incomingFee.Cmp(lowest.Fee) <= 0 {
		return false
	}
	m.removeLocked(lowest.Hash)
	return true
}

// Size returns the number of pending transactions.
func (m *Mempool) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byHash)
}

func (m *Mempool) snapshotAll() []*chain.Transaction {
	out := make([]*chain.Transaction, 0, len(m.byHash))
	for _, tx := range m.byHash {
		out = append(out, tx)
	}
	return out
}

// GetPendingByPriority returns up to n transactions sorted by fee
// descending, tie-broken by earliest insertion timestamp.
func (m *Mempool) GetPendingByPriority(n int) []*chain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.snapshotAll()
	sort.Slice(all, func(i, j int) bool {
		cmp := all[i].Fee.Cmp(all[j].Fee)
		if cmp != 0 {
			return cmp > 0
		}
		return m.insertedAt[all[i].Hash] < m.insertedAt[all[j].Hash]
	})
	if n > 0 && n < len(all) {
		all = all[:n]
	}
	return all
}

// GetPendingByNonce groups pending transactions by sender, sorts each
// group ascending by nonce, then round-robins across senders collecting
// the next transaction from each until n is reached or all are exhausted.
func (m *Mempool) GetPendingByNonce(n int) []*chain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	queues := m.perSenderQueuesLocked()

	var senders []string
	for addr := range queues {
		senders = append(senders, addr)
	}
	sort.Strings(senders)

	var out []*chain.Transaction
	idx := make(map[string]int, len(senders))
	for {
		progressed := false
		for _, addr := range senders {
			if n > 0 && len(out) >= n {
				return out
			}
			q := queues[addr]
			i := idx[addr]
			if i >= len(q) {
				continue
			}
			out = append(out, q[i])
			idx[addr] = i + 1
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return out
}

// GetForBlock repeatedly picks the highest-fee head across all per-sender
// nonce-ordered queues, advancing that queue, until n transactions are
// selected or all queues are exhausted.
func (m *Mempool) GetForBlock(n int) []*chain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	queues := m.perSenderQueuesLocked()

	var senders []string
	for addr := range queues {
		senders = append(senders, addr)
	}
	sort.Strings(senders)

	idx := make(map[string]int, len(senders))
	var out []*chain.Transaction
	for n <= 0 || len(out) < n {
		bestSender := ""
		var best *chain.Transaction
		for _, addr := range senders {
			q := queues[addr]
			i := idx[addr]
			if i >= len(q) {
				continue
			}
			head := q[i]
			if best == nil || head.Fee.Cmp(best.Fee) > 0 {
				best = head
				bestSender = addr
			}
		}
		if best == nil {
			break
		}
		out = append(out, best)
		idx[bestSender]++
	}
	return out
}

func (m *Mempool) perSenderQueuesLocked() map[string][]*chain.Transaction {
	queues := make(map[string][]*chain.Transaction, len(m.byAccount))
	for addr, hashes := range m.byAccount {
		q := make([]*chain.Transaction, 0, len(hashes))
		for hash := range hashes {
			if tx, ok := m.byHash[hash]; ok {
				q = append(q, tx)
			}
		}
		sort.Slice(q, func(i, j int) bool { return q[i].Nonce < q[j].Nonce })
		queues[addr] = q
	}
	return queues
}

// GetByAccount returns addr's pending transactions sorted by nonce
// ascending.
func (m *Mempool) GetByAccount(addr string) []*chain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	hashes, ok := m.byAccount[addr]
	if !ok {
		return nil
	}
	out := make([]*chain.Transaction, 0, len(hashes))
	for hash := range hashes {
		if tx, ok := m.byHash[hash]; ok {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nonce < out[j].Nonce })
	return out
}

// GetByFeeRange returns every pending transaction with fee in [min, max].
// A nil max means unbounded above. No ordering is guaranteed.
func (m *Mempool) GetByFeeRange(min, max *big.Int) []*chain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*chain.Transaction
	for _, tx := range m.byHash {
		if min != nil && tx.Fee.Cmp(min) < 0 {
			continue
		}
		if max != nil && tx.Fee.Cmp(max) > 0 {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// Stats returns current pool statistics.
func (m *Mempool) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{Size: len(m.byHash), MaxSize: m.maxSize, AccountCount: len(m.byAccount)}
	if len(m.byHash) == 0 {
		return s
	}

	var sumFee int64
	first := true
	for hash, tx := range m.byHash {
		sumFee += tx.Fee.Int64()
		ts := m.insertedAt[hash]
		if first {
			s.OldestTimestamp, s.NewestTimestamp = ts, ts
			first = false
			continue
		}
		if ts < s.OldestTimestamp {
			s.OldestTimestamp = ts
		}
		if ts > s.NewestTimestamp {
			s.NewestTimestamp = ts
		}
	}
	s.AverageFee = sumFee / int64(len(m.byHash))
	return s
}
