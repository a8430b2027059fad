package mempool

import (
	"math/big"
	"testing"

	"github.com/nicolocarcagni/fulmine/internal/chain"
	"github.com/nicolocarcagni/fulmine/internal/crypto"
)

func newTx(t *testing.T, fee int64, nonce uint64, ts int64) *chain.Transaction {
	t.Helper()
	pub, priv, _ := crypto.GenerateKeyPair()
	toPub, _, _ := crypto.GenerateKeyPair()
	tx := chain.NewTransaction(pub, toPub, big.NewInt(1), big.NewInt(fee), nonce, ts)
	if err := tx.Sign(priv); err != nil {
		t.Fatal(err)
	}
	return tx
}

func clockAt(ms int64) func() int64 {
	return func() int64 { return ms }
}

func TestAddRejectsDuplicate(t *testing.T) {
	mp := New(10, 60_000, clockAt(0))
	tx := newTx(t, 10, 0, 1)
	if !mp.Add(tx) {
		t.Fatal("expected first add to succeed")
	}
	if mp.Add(tx) {
		t.Fatal("expected duplicate add to be rejected")
	}
	if mp.Size() != 1 {
		t.Fatalf("size = %d, want 1", mp.Size())
	}
}

func TestAddEvictsLowestFeeWhenFull(t *testing.T) {
	mp := New(2, 60_000, clockAt(0))
	low := newTx(t, 5, 0, 1)
	high := newTx(t, 50, 0, 2)
	mp.Add(low)
	mp.Add(high)

	newest := newTx(t, 100, 0, 3)
	if !mp.Add(newest) {
		t.Fatal("expected add to succeed after evicting lowest fee")
	}
	if mp.Size() != 2 {
		t.Fatalf("size = %d, want 2", mp.Size())
	}
	if _, ok := mp.byHash[low.Hash]; ok {
		t.Fatal("expected lowest-fee transaction to be evicted")
	}
}

func TestAddAtCapacityAllHigherFeeRejected(t *testing.T) {
	mp := New(1, 60_000, clockAt(0))
	existing := newTx(t, 100, 0, 1)
	mp.Add(existing)

	lower := newTx(t, 5, 0, 2)
	if mp.Add(lower) {
		t.Fatal("expected add of lower-fee tx to be rejected when existing fee is higher")
	}
}

func TestRemove(t *testing.T) {
	mp := New(10, 60_000, clockAt(0))
	tx := newTx(t, 10, 0, 1)
	mp.Add(tx)
	if !mp.Remove(tx.Hash) {
		t.Fatal("expected remove to report true")
	}
	if mp.Remove(tx.Hash) {
		t.Fatal("expected second remove to report false")
	}
	if mp.Size() != 0 {
		t.Fatalf("size = %d, want 0", mp.Size())
	}
}

func TestEvictExpired(t *testing.T) {
	now := int64(0)
	mp := New(10, 1_000, func() int64 { return now })
	tx := newTx(t, 10, 0, 1)
	mp.Add(tx)

	now = 2_000
	evicted := mp.EvictExpired()
	if evicted != 1 {
		t.Fatalf("evicted = %d, want 1", evicted)
	}
	if mp.Size() != 0 {
		t.Fatalf("size = %d, want 0", mp.Size())
	}
}

func TestGetPendingByPriority(t *testing.T) {
	mp := New(100, 60_000, clockAt(0))
	fees := []int64{100, 50, 25, 200, 75, 150, 10, 300, 5, 125}
	for i, fee := range fees {
		mp.Add(newTx(t, fee, 0, int64(i)))
	}

	top := mp.GetPendingByPriority(5)
	want := []int64{300, 200, 150, 125, 100}
	if len(top) != len(want) {
		t.Fatalf("got %d results, want %d", len(top), len(want))
	}
	for i, tx := range top {
		if tx.Fee.Int64() != want[i] {
			t.Fatalf("position %d: fee = %d, want %d", i, tx.Fee.Int64(), want[i])
		}
	}
}

func TestGetPendingByPriorityTieBreakByTimestamp(t *testing.T) {
	mp := New(10, 60_000, clockAt(0))
	first := newTx(t, 10, 0, 1)
	mp.nowFunc = clockAt(1)
	mp.Add(first)
	second := newTx(t, 10, 0, 2)
	mp.nowFunc = clockAt(2)
	mp.Add(second)

	ordered := mp.GetPendingByPriority(2)
	if ordered[0].Hash != first.Hash {
		t.Fatal("expected earlier-inserted equal-fee tx to come first")
	}
}

func TestGetByAccountSortedByNonce(t *testing.T) {
	mp := New(10, 60_000, clockAt(0))
	pub, priv, _ := crypto.GenerateKeyPair()
	toPub, _, _ := crypto.GenerateKeyPair()

	mkTx := func(nonce uint64) *chain.Transaction {
		tx := chain.NewTransaction(pub, toPub, big.NewInt(1), big.NewInt(1), nonce, int64(nonce))
		if err := tx.Sign(priv); err != nil {
			t.Fatal(err)
		}
		return tx
	}

	mp.Add(mkTx(2))
	mp.Add(mkTx(0))
	mp.Add(mkTx(1))

	addr, _ := crypto.AddressOf(pub)
	txs := mp.GetByAccount(addr)
	if len(txs) != 3 {
		t.Fatalf("got %d txs, want 3", len(txs))
	}
	for i, tx := range txs {
		if tx.Nonce != uint64(i) {
			t.Fatalf("position %d: nonce = %d, want %d", i, tx.Nonce, i)
		}
	}
}

func TestStats(t *testing.T) {
	mp := New(10, 60_000, clockAt(5))
	mp.Add(newTx(t, 10, 0, 1))
	mp.Add(newTx(t, 20, 0, 2))

	stats := mp.Stats()
	if stats.Size != 2 {
		t.Fatalf("size = %d, want 2", stats.Size)
	}
	if stats.AverageFee != 15 {
		t.Fatalf("averageFee = %d, want 15", stats.AverageFee)
	}
	if stats.AccountCount != 2 {
		t.Fatalf("accountCount = %d, want 2", stats.AccountCount)
	}
}

func TestGetForBlockRespectsNonceOrder(t *testing.T) {
	mp := New(10, 60_000, clockAt(0))
	pub, priv, _ := crypto.GenerateKeyPair()
	toPub, _, _ := crypto.GenerateKeyPair()

	low := chain.NewTransaction(pub, toPub, big.NewInt(1), big.NewInt(5), 0, 1)
	low.Sign(priv)
	high := chain.NewTransaction(pub, toPub, big.NewInt(1), big.NewInt(500), 1, 2)
	high.Sign(priv)

	mp.Add(high)
	mp.Add(low)

	selected := mp.GetForBlock(10)
	if len(selected) != 2 {
		t.Fatalf("got %d txs, want 2", len(selected))
	}
	if selected[0].Nonce != 0 || selected[1].Nonce != 1 {
		t.Fatal("expected nonce 0 before nonce 1 despite lower fee")
	}
}
