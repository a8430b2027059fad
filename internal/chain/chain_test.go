package chain

import (
	"math/big"
	"testing"

	"github.com/nicolocarcagni/fulmine/internal/crypto"
)

func newSignedTx(t *testing.T, pub, priv, to string, amount, fee int64, nonce uint64, ts int64) *Transaction {
	t.Helper()
	tx := NewTransaction(pub, to, big.NewInt(amount), big.NewInt(fee), nonce, ts)
	if err := tx.Sign(priv); err != nil {
		t.Fatal(err)
	}
	return tx
}

func TestTransactionSignVerify(t *testing.T) {
	pub, priv, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	toPub, _, _ := crypto.GenerateKeyPair()

	tx := newSignedTx(t, pub, priv, toPub, 100, 1, 0, 1000)
	if !tx.Verify() {
		t.Fatal("expected valid signature")
	}
	if !tx.VerifyHash() {
		t.Fatal("expected consistent hash")
	}
	if !tx.IsValid() {
		t.Fatal("expected valid transaction")
	}
	if got := tx.TotalCost(); got.Cmp(big.NewInt(101)) != 0 {
		t.Fatalf("total cost = %s, want 101", got)
	}
}

func TestTransactionJSONRoundTrip(t *testing.T) {
	pub, priv, _ := crypto.GenerateKeyPair()
	toPub, _, _ := crypto.GenerateKeyPair()
	tx := newSignedTx(t, pub, priv, toPub, 500, 5, 3, 2000)

	data := tx.ToJSON()
	tx2, err := TransactionFromJSON(data)
	if err != nil {
		t.Fatal(err)
	}
	if tx2.Hash != tx.Hash {
		t.Fatalf("hash mismatch after round-trip: %s != %s", tx2.Hash, tx.Hash)
	}
	if !tx2.Verify() {
		t.Fatal("signature should re-verify after round-trip")
	}
}

func TestTransactionInvalidAmount(t *testing.T) {
	pub, priv, _ := crypto.GenerateKeyPair()
	toPub, _, _ := crypto.GenerateKeyPair()
	tx := newSignedTx(t, pub, priv, toPub, 0, 0, 0, 1)
	if tx.IsValid() {
		t.Fatal("zero amount should be invalid")
	}
}

func TestAccountBalanceOps(t *testing.T) {
	a := NewAccount("0xabc")
	a.AddBalance(big.NewInt(100))
	if !a.HasBalance(big.NewInt(100)) {
		t.Fatal("expected sufficient balance")
	}
	if a.SubtractBalance(big.NewInt(150)) {
		t.Fatal("expected underflow to fail")
	}
	if !a.SubtractBalance(big.NewInt(40)) {
		t.Fatal("expected valid subtraction to succeed")
	}
	if a.Balance.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("balance = %s, want 60", a.Balance)
	}
}

func TestAccountSnapshotRestore(t *testing.T) {
	a := NewAccount("0xabc")
	a.AddBalance(big.NewInt(1000))
	a.IncrementNonce()

	snap := a.Snapshot()

	a.SubtractBalance(big.NewInt(1000))
	a.IncrementNonce()

	a.Restore(snap)
	if a.Balance.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("balance after restore = %s, want 1000", a.Balance)
	}
	if a.Nonce != 1 {
		t.Fatalf("nonce after restore = %d, want 1", a.Nonce)
	}
}

func TestGenesisBlockMerkleRoot(t *testing.T) {
	g := NewGenesisBlock(1000)
	want := crypto.Sha256Hex([]byte("0"))
	if g.MerkleRoot != want {
		t.Fatalf("genesis merkle root = %s, want %s", g.MerkleRoot, want)
	}
	if g.PreviousHash != crypto.ZeroHash {
		t.Fatalf("genesis previousHash = %s, want zero hash", g.PreviousHash)
	}
	if !g.VerifyHash() || !g.VerifyMerkleRoot() {
		t.Fatal("genesis block should be internally consistent")
	}
}

func TestBlockParentLinkage(t *testing.T) {
	genesis := NewGenesisBlock(1000)
	child := NewBlock(1, 2000, genesis.Hash, "validator-1", nil)

	if !child.IsValid(genesis) {
		t.Fatal("expected valid child block")
	}

	badNumber := NewBlock(2, 3000, genesis.Hash, "validator-1", nil)
	if badNumber.IsValid(genesis) {
		t.Fatal("expected invalid block number to fail")
	}

	badTimestamp := NewBlock(1, 500, genesis.Hash, "validator-1", nil)
	if badTimestamp.IsValid(genesis) {
		t.Fatal("expected non-increasing timestamp to fail")
	}
}

func TestBlockMerkleProof(t *testing.T) {
	pub, priv, _ := crypto.GenerateKeyPair()
	toPub, _, _ := crypto.GenerateKeyPair()

	txs := []*Transaction{
		newSignedTx(t, pub, priv, toPub, 10, 1, 0, 1),
		newSignedTx(t, pub, priv, toPub, 20, 1, 1, 2),
		newSignedTx(t, pub, priv, toPub, 30, 1, 2, 3),
	}
	block := NewBlock(1, 1000, crypto.ZeroHash, "validator-1", txs)

	middle := txs[1]
	proof, ok := block.GetMerkleProof(middle.Hash)
	if !ok {
		t.Fatal("expected proof for middle transaction")
	}
	if !VerifyMerkleProofAgainst(middle.Hash, proof, block.MerkleRoot) {
		t.Fatal("valid proof should verify")
	}

	proof[0].Hash = crypto.Sha256Hex([]byte("tampered"))
	if VerifyMerkleProofAgainst(middle.Hash, proof, block.MerkleRoot) {
		t.Fatal("tampered proof should not verify")
	}
}

func TestBlockVerifyTransactionsParallel(t *testing.T) {
	pub, priv, _ := crypto.GenerateKeyPair()
	toPub, _, _ := crypto.GenerateKeyPair()
	txs := []*Transaction{
		newSignedTx(t, pub, priv, toPub, 10, 1, 0, 1),
		newSignedTx(t, pub, priv, toPub, 20, 1, 1, 2),
	}
	block := NewBlock(1, 1000, crypto.ZeroHash, "validator-1", txs)
	if !block.VerifyTransactions() {
		t.Fatal("expected all transactions to verify")
	}

	block.Transactions[0].Signature = "00"
	if block.VerifyTransactions() {
		t.Fatal("expected tampered signature to fail verification")
	}
}

func TestBlockJSONRoundTrip(t *testing.T) {
	pub, priv, _ := crypto.GenerateKeyPair()
	toPub, _, _ := crypto.GenerateKeyPair()
	txs := []*Transaction{newSignedTx(t, pub, priv, toPub, 10, 1, 0, 1)}
	block := NewBlock(1, 1000, crypto.ZeroHash, "validator-1", txs)

	data := block.ToJSON()
	block2, err := BlockFromJSON(data)
	if err != nil {
		t.Fatal(err)
	}
	if block2.Hash != block.Hash {
		t.Fatalf("hash mismatch: %s != %s", block2.Hash, block.Hash)
	}
	if !block2.VerifyMerkleRoot() {
		t.Fatal("merkle root should still verify after round-trip")
	}
}
