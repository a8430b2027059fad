package chain

import (
	"strconv"
	"sync"

	"github.com/nicolocarcagni/fulmine/internal/crypto"
)

// Block is an append-only element of the chain.
type Block struct {
	Number       uint64         `json:"number"`
	Timestamp    int64          `json:"timestamp"`
	PreviousHash string         `json:"previousHash"`
	Validator    string         `json:"validator"`
	Transactions []*Transaction `json:"transactions"`
	MerkleRoot   string         `json:"merkleRoot"`
	Hash         string         `json:"hash"`
}

// BlockData is the JSON wire encoding of a Block.
type BlockData struct {
	Number       uint64   `json:"number"`
	Timestamp    int64    `json:"timestamp"`
	Transactions []TxData `json:"transactions"`
	PreviousHash string   `json:"previousHash"`
	Validator    string   `json:"validator"`
	Hash         string   `json:"hash"`
	MerkleRoot   string   `json:"merkleRoot"`
}

// NewBlock builds, merkle-commits, and hashes a block linking to previousHash.
func NewBlock(number uint64, timestampMs int64, previousHash, validator string, txs []*Transaction) *Block {
	b := &Block{
		Number:       number,
		Timestamp:    timestampMs,
		PreviousHash: previousHash,
		Validator:    validator,
		Transactions: txs,
	}
	b.ComputeMerkleRoot()
	b.ComputeHash()
	return b
}

// ComputeMerkleRoot computes and stores the merkle root over the block's
// transaction hashes.
func (b *Block) ComputeMerkleRoot() string {
	b.MerkleRoot = MerkleRootForTransactions(b.Transactions)
	return b.MerkleRoot
}

// MerkleRootForTransactions is the shared computation used by blocks and
// micro-batches alike: empty -> sha256("0"); single ->
// that hash; else the binary hex-concat tree.
func MerkleRootForTransactions(txs []*Transaction) string {
	leaves := make([]string, len(txs))
	for i, tx := range txs {
		leaves[i] = tx.Hash
	}
	return crypto.MerkleRoot(leaves)
}

// ComputeHash computes and stores the block hash over
// number‖timestamp‖merkleRoot‖previousHash‖validator.
func (b *Block) ComputeHash() string {
	b.Hash = crypto.Sha256Hex([]byte(b.preimage()))
	return b.Hash
}

func (b *Block) preimage() string {
	return strconv.FormatUint(b.Number, 10) + int64ToStr(b.Timestamp) + b.MerkleRoot + b.PreviousHash + b.Validator
}

// VerifyHash reports whether the stored hash matches a fresh recomputation.
func (b *Block) VerifyHash() bool {
	return b.Hash == crypto.Sha256Hex([]byte(b.preimage()))
}

// VerifyMerkleRoot reports whether the stored merkle root matches a fresh
// recomputation over the block's current transaction set.
func (b *Block) VerifyMerkleRoot() bool {
	return b.MerkleRoot == MerkleRootForTransactions(b.Transactions)
}

// IsValid checks hash/merkle integrity, and — if parent is non-nil — the
// parent-linkage invariants (number, previousHash, strictly
// increasing timestamp).
func (b *Block) IsValid(parent *Block) bool {
	if !b.VerifyHash() || !b.VerifyMerkleRoot() {
		return false
	}
	for _, tx := range b.Transactions {
		if !tx.IsValid() {
			return false
		}
	}
	if parent == nil {
		return true
	}
	if b.Number != parent.Number+1 {
		return false
	}
	if b.PreviousHash != parent.Hash {
		return false
	}
	if b.Timestamp <= parent.Timestamp {
		return false
	}
	return true
}

// VerifyTransactions verifies every contained transaction's signature in
// parallel, returning true only if all pass.
func (b *Block) VerifyTransactions() bool {
	if len(b.Transactions) == 0 {
		return true
	}
	results := make([]bool, len(b.Transactions))
	var wg sync.WaitGroup
	for i, tx := range b.Transactions {
		wg.Add(1)
		go func(i int, tx *Transaction) {
			defer wg.Done()
			results[i] = tx.Verify()
		}(i, tx)
	}
	wg.Wait()
	for _, ok := range results {
		if !ok {
			return false
		}
	}
	return true
}

// GetMerkleProof returns the sibling-chain proof for the transaction with
// the given hash within this block.
func (b *Block) GetMerkleProof(txHash string) ([]crypto.MerkleProofStep, bool) {
	leaves := make([]string, len(b.Transactions))
	for i, tx := range b.Transactions {
		leaves[i] = tx.Hash
	}
	return crypto.MerkleProof(leaves, txHash)
}

// VerifyMerkleProofAgainst walks txHash up proof and checks it reaches root.
func VerifyMerkleProofAgainst(txHash string, proof []crypto.MerkleProofStep, root string) bool {
	return crypto.VerifyMerkleProof(txHash, proof, root)
}

// ToJSON converts the block to its wire representation.
func (b *Block) ToJSON() BlockData {
	txs := make([]TxData, len(b.Transactions))
	for i, tx := range b.Transactions {
		txs[i] = tx.ToJSON()
	}
	return BlockData{
		Number:       b.Number,
		Timestamp:    b.Timestamp,
		Transactions: txs,
		PreviousHash: b.PreviousHash,
		Validator:    b.Validator,
		Hash:         b.Hash,
		MerkleRoot:   b.MerkleRoot,
	}
}

// BlockFromJSON reconstructs a Block from its wire representation.
func BlockFromJSON(d BlockData) (*Block, error) {
	txs := make([]*Transaction, len(d.Transactions))
	for i, td := range d.Transactions {
		tx, err := TransactionFromJSON(td)
		if err != nil {
			return nil, err
		}
		txs[i] = tx
	}
	return &Block{
		Number:       d.Number,
		Timestamp:    d.Timestamp,
		PreviousHash: d.PreviousHash,
		Validator:    d.Validator,
		Transactions: txs,
		MerkleRoot:   d.MerkleRoot,
		Hash:         d.Hash,
	}, nil
}

// NewGenesisBlock builds the fixed genesis block: number 0,
// no transactions, previousHash all zeros.
func NewGenesisBlock(timestampMs int64) *Block {
	return NewBlock(0, timestampMs, crypto.ZeroHash, "genesis", nil)
}
