package ledger

import (
	"math/big"
	"os"
	"testing"

	"github.com/nicolocarcagni/fulmine/internal/chain"
	"github.com/nicolocarcagni/fulmine/internal/crypto"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	dir, err := os.MkdirTemp("", "fulmine-ledger-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	l, err := Open(dir, 1000)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func fundAccount(t *testing.T, l *Ledger, to string, amount int64) {
	t.Helper()
	if _, err := l.ApplyGenesisTransfer(to, big.NewInt(amount), big.NewInt(0), l.GetNonce(GenesisAddress), 1000); err != nil {
		t.Fatalf("ApplyGenesisTransfer() error: %v", err)
	}
}

// TestGenesisScenario covers the genesis scenario: a fresh ledger starts with
// a single block and the full genesis supply held at GenesisAddress.
func TestGenesisScenario(t *testing.T) {
	l := newTestLedger(t)

	if l.ChainLength() != 1 {
		t.Fatalf("chain length = %d, want 1", l.ChainLength())
	}
	if got := l.GetBalance(GenesisAddress); got.Cmp(GenesisSupply) != 0 {
		t.Fatalf("genesis balance = %s, want %s", got, GenesisSupply)
	}
	if l.GetLatestBlock().Number != 0 {
		t.Fatalf("latest block number = %d, want 0", l.GetLatestBlock().Number)
	}
}

// TestFundAndSpendEndToEnd covers funding then spending: fund an account from
// genesis, then commit a block spending part of that balance.
func TestFundAndSpendEndToEnd(t *testing.T) {
	l := newTestLedger(t)

	pubA, privA, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	pubB, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	addrA, _ := crypto.AddressOf(pubA)
	addrB, _ := crypto.AddressOf(pubB)

	fundAccount(t, l, pubA, 10000)
	if got := l.GetBalance(addrA); got.Cmp(big.NewInt(10000)) != 0 {
		t.Fatalf("funded balance = %s, want 10000", got)
	}

	tx := chain.NewTransaction(pubA, pubB, big.NewInt(1000), big.NewInt(10), 0, 2000)
	if err := tx.Sign(privA); err != nil {
		t.Fatal(err)
	}

	tip := l.GetLatestBlock()
	block := chain.NewBlock(tip.Number+1, 3000, tip.Hash, "validator-1", []*chain.Transaction{tx})
	if !l.AddBlock(block) {
		t.Fatal("expected block to commit")
	}

	if got := l.GetBalance(addrA); got.Cmp(big.NewInt(8990)) != 0 {
		t.Fatalf("sender balance = %s, want 8990", got)
	}
	if got := l.GetBalance(addrB); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("recipient balance = %s, want 1000", got)
	}
	if l.GetNonce(addrA) != 1 {
		t.Fatalf("sender nonce = %d, want 1", l.GetNonce(addrA))
	}
	if l.ChainLength() != 2 {
		t.Fatalf("chain length = %d, want 2", l.ChainLength())
	}

	foundTx, blockNumber, ok := l.FindTransaction(tx.Hash)
	if !ok {
		t.Fatal("expected to find committed transaction")
	}
	if foundTx.Hash != tx.Hash || blockNumber != 1 {
		t.Fatalf("FindTransaction returned wrong block: %+v, %d", foundTx, blockNumber)
	}
}

// TestAddBlockRejectsWrongNonce covers a block whose
// transaction has a nonce mismatching account state must roll back cleanly
// without mutating the chain or balances.
func TestAddBlockRejectsWrongNonce(t *testing.T) {
	l := newTestLedger(t)

	pubA, privA, _ := crypto.GenerateKeyPair()
	pubB, _, _ := crypto.GenerateKeyPair()
	addrA, _ := crypto.AddressOf(pubA)

	fundAccount(t, l, pubA, 10000)
	balanceBefore := l.GetBalance(addrA)

	tx := chain.NewTransaction(pubA, pubB, big.NewInt(1000), big.NewInt(0), 7, 2000)
	if err := tx.Sign(privA); err != nil {
		t.Fatal(err)
	}

	tip := l.GetLatestBlock()
	block := chain.NewBlock(tip.Number+1, 3000, tip.Hash, "validator-1", []*chain.Transaction{tx})
	if l.AddBlock(block) {
		t.Fatal("expected block with wrong nonce to be rejected")
	}
	if l.ChainLength() != 1 {
		t.Fatalf("chain length after rejected block = %d, want 1", l.ChainLength())
	}
	if got := l.GetBalance(addrA); got.Cmp(balanceBefore) != 0 {
		t.Fatalf("balance mutated after rejected block: %s != %s", got, balanceBefore)
	}
}

// TestAddBlockRejectsInsufficientBalance covers an over-spend rejection.
func TestAddBlockRejectsInsufficientBalance(t *testing.T) {
	l := newTestLedger(t)

	pubA, privA, _ := crypto.GenerateKeyPair()
	pubB, _, _ := crypto.GenerateKeyPair()
	addrA, _ := crypto.AddressOf(pubA)

	fundAccount(t, l, pubA, 100)

	tx := chain.NewTransaction(pubA, pubB, big.NewInt(1000), big.NewInt(0), 0, 2000)
	if err := tx.Sign(privA); err != nil {
		t.Fatal(err)
	}

	tip := l.GetLatestBlock()
	block := chain.NewBlock(tip.Number+1, 3000, tip.Hash, "validator-1", []*chain.Transaction{tx})
	if l.AddBlock(block) {
		t.Fatal("expected block with insufficient sender balance to be rejected")
	}
	if got := l.GetBalance(addrA); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("balance mutated after rejected block: %s, want 100", got)
	}
}

func TestAddBlockRejectsBadLinkage(t *testing.T) {
	l := newTestLedger(t)

	tip := l.GetLatestBlock()
	badBlock := chain.NewBlock(tip.Number+2, 2000, tip.Hash, "validator-1", nil)
	if l.AddBlock(badBlock) {
		t.Fatal("expected block with skipped number to be rejected")
	}

	badHashBlock := chain.NewBlock(tip.Number+1, 2000, "not-the-tip-hash", "validator-1", nil)
	if l.AddBlock(badHashBlock) {
		t.Fatal("expected block with wrong previous hash to be rejected")
	}
}

func TestApplyGenesisTransferRejectsBadNonce(t *testing.T) {
	l := newTestLedger(t)
	pubA, _, _ := crypto.GenerateKeyPair()

	if _, err := l.ApplyGenesisTransfer(pubA, big.NewInt(100), big.NewInt(0), 5, 1000); err == nil {
		t.Fatal("expected error for genesis transfer with wrong nonce")
	}
}

func TestApplyGenesisTransferRejectsOverSupply(t *testing.T) {
	l := newTestLedger(t)
	pubA, _, _ := crypto.GenerateKeyPair()

	huge := new(big.Int).Add(GenesisSupply, big.NewInt(1))
	if _, err := l.ApplyGenesisTransfer(pubA, huge, big.NewInt(0), 0, 1000); err == nil {
		t.Fatal("expected error for genesis transfer exceeding supply")
	}
}

func TestAddTransactionRejectsUnsigned(t *testing.T) {
	l := newTestLedger(t)
	pubA, _, _ := crypto.GenerateKeyPair()
	pubB, _, _ := crypto.GenerateKeyPair()

	tx := chain.NewTransaction(pubA, pubB, big.NewInt(1), big.NewInt(0), 0, 1000)
	if l.AddTransaction(tx) {
		t.Fatal("expected unsigned transaction to be rejected")
	}
}

func TestIsChainValidAfterCommit(t *testing.T) {
	l := newTestLedger(t)
	pubA, privA, _ := crypto.GenerateKeyPair()
	pubB, _, _ := crypto.GenerateKeyPair()

	fundAccount(t, l, pubA, 5000)
	tx := chain.NewTransaction(pubA, pubB, big.NewInt(100), big.NewInt(0), 0, 2000)
	if err := tx.Sign(privA); err != nil {
		t.Fatal(err)
	}
	tip := l.GetLatestBlock()
	block := chain.NewBlock(tip.Number+1, 3000, tip.Hash, "validator-1", []*chain.Transaction{tx})
	if !l.AddBlock(block) {
		t.Fatal("expected block to commit")
	}
	if !l.IsChainValid() {
		t.Fatal("expected chain to remain valid after commit")
	}
}
