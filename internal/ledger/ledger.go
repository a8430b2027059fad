package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/nicolocarcagni/fulmine/internal/chain"
	"github.com/nicolocarcagni/fulmine/internal/crypto"
)

// GenesisPublicKey is the all-zero placeholder Ed25519 public key that
// every genesis-bootstrap transfer claims to be "from" — there is no
// corresponding private key, so ordinary transaction verification must
// never accept it as a sender.
var GenesisPublicKey = crypto.ZeroHash

// GenesisAddress is literally "0x" + 64 zeros — not the SHA-256
// of GenesisPublicKey like every other address. Genesis seeding (on first
// open and in ReplaceChain) creates it, and the bootstrap-only
// ApplyGenesisTransfer path is the only transfer that spends from it; the
// pubkey it nominally corresponds to never has SenderAddress() called on
// it, since genesis transfers bypass the signed-transaction pipeline
// entirely.
var GenesisAddress = "0x" + crypto.ZeroHash

// GenesisSupply is the initial balance minted to GenesisAddress.
var GenesisSupply = big.NewInt(1_000_000_000)

// TxRemover is the narrow interface the ledger uses to evict committed
// transactions from whatever mempool is backing it.
// internal/mempool.Mempool satisfies this.
type TxRemover interface {
	Remove(hash string) bool
}

// Ledger is the account/nonce/balance state machine and hash-chained
// block store.
type Ledger struct {
	mu       sync.Mutex
	store    *Store
	chain    []*chain.Block
	accounts map[string]*chain.Account
	pending  []*chain.Transaction
	mempool  TxRemover
}

// Open opens or initializes a ledger at the given store path, creating the
// genesis block and genesis account on first open.
func Open(storePath string, genesisTimestampMs int64) (*Ledger, error) {
	store, err := OpenStore(storePath)
	if err != nil {
		return nil, err
	}
	l := &Ledger{
		store:    store,
		accounts: make(map[string]*chain.Account),
	}
	if err := l.init(genesisTimestampMs); err != nil {
		store.Close()
		return nil, err
	}
	return l, nil
}

// SetMempool wires the backing mempool used by AddBlock's post-commit
// eviction step. Safe to call once after construction.
func (l *Ledger) SetMempool(m TxRemover) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mempool = m
}

func (l *Ledger) init(genesisTimestampMs int64) error {
	raw, found, err := l.store.GetString(keyLatestBlockNumber)
	if err != nil {
		return fmt.Errorf("ledger: init: %w", err)
	}
	if !found {
		return l.seedGenesis(genesisTimestampMs)
	}

	var latest uint64
	if _, err := fmt.Sscanf(raw, "%d", &latest); err != nil {
		return fmt.Errorf("ledger: corrupt latestBlockNumber %q: %w", raw, err)
	}

	for n := uint64(0); n <= latest; n++ {
		var data chain.BlockData
		found, err := l.store.GetJSON(blockKey(n), &data)
		if err != nil {
			return fmt.Errorf("ledger: loading block %d: %w", n, err)
		}
		if !found {
			return fmt.Errorf("ledger: missing block %d at startup — corrupt store", n)
		}
		b, err := chain.BlockFromJSON(data)
		if err != nil {
			return fmt.Errorf("ledger: decoding block %d: %w", n, err)
		}
		l.chain = append(l.chain, b)
	}

	var addrs []string
	if _, err := l.store.GetJSON(keyAccountsList, &addrs); err != nil {
		return fmt.Errorf("ledger: loading accounts-list: %w", err)
	}
	for _, addr := range addrs {
		var ad chain.AccountData
		found, err := l.store.GetJSON(accountKey(addr), &ad)
		if err != nil {
			return fmt.Errorf("ledger: loading account %s: %w", addr, err)
		}
		if !found {
			continue
		}
		acc, err := chain.AccountFromJSON(ad)
		if err != nil {
			return fmt.Errorf("ledger: decoding account %s: %w", addr, err)
		}
		l.accounts[addr] = acc
	}
	return nil
}

func (l *Ledger) seedGenesis(timestampMs int64) error {
	genesis := chain.NewGenesisBlock(timestampMs)
	l.chain = []*chain.Block{genesis}

	genesisAccount := chain.NewAccount(GenesisAddress)
	genesisAccount.AddBalance(GenesisSupply)
	l.accounts[GenesisAddress] = genesisAccount

	if err := l.store.SetJSON(blockKey(0), genesis.ToJSON()); err != nil {
		return err
	}
	if err := l.store.SetJSON(accountKey(GenesisAddress), genesisAccount.ToJSON()); err != nil {
		return err
	}
	if err := l.store.SetJSON(keyAccountsList, []string{GenesisAddress}); err != nil {
		return err
	}
	return l.store.SetString(keyLatestBlockNumber, "0")
}

// getOrCreateAccount returns the materialized account at addr, creating an
// implicit empty one if unknown.
func (l *Ledger) getOrCreateAccount(addr string) *chain.Account {
	acc, ok := l.accounts[addr]
	if !ok {
		acc = chain.NewAccount(addr)
		l.accounts[addr] = acc
	}
	return acc
}

// GetAccount returns a copy of the account at addr (materializing an empty
// one implicitly, without persisting it).
func (l *Ledger) GetAccount(addr string) *chain.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acc, ok := l.accounts[addr]; ok {
		return acc.Snapshot()
	}
	return chain.NewAccount(addr)
}

// GetBalance returns the balance at addr.
func (l *Ledger) GetBalance(addr string) *big.Int {
	return l.GetAccount(addr).Balance
}

// GetNonce returns the next expected nonce at addr.
func (l *Ledger) GetNonce(addr string) uint64 {
	return l.GetAccount(addr).Nonce
}

// GetLatestBlock returns the chain tip.
func (l *Ledger) GetLatestBlock() *chain.Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.chain[len(l.chain)-1]
}

// GetBlock returns the block at index n, or nil if out of range.
func (l *Ledger) GetBlock(n uint64) *chain.Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n >= uint64(len(l.chain)) {
		return nil
	}
	return l.chain[n]
}

// ChainLength returns the number of blocks, including genesis.
func (l *Ledger) ChainLength() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.chain)
}

// FindTransaction scans committed blocks newest-first for a transaction
// matching hash, returning the transaction and the block number it was
// committed in. Returns (nil, 0, false) if hash is not found.
func (l *Ledger) FindTransaction(hash string) (*chain.Transaction, uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.chain) - 1; i >= 0; i-- {
		b := l.chain[i]
		for _, tx := range b.Transactions {
			if tx.Hash == hash {
				return tx, b.Number, true
			}
		}
	}
	return nil, 0, false
}

// AddTransaction implements the "simple chain" pre-mempool acceptance path
// path: full validation including nonce and balance checks. Returns
// false (never an error) on any rejection — validation, economic, and
// duplicate failures never propagate as errors.
func (l *Ledger) AddTransaction(tx *chain.Transaction) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !tx.IsValid() || !tx.Verify() {
		return false
	}
	for _, pending := range l.pending {
		if pending.Hash == tx.Hash {
			return false
		}
	}

	senderAddr, err := tx.SenderAddress()
	if err != nil {
		return false
	}
	sender := l.getOrCreateAccount(senderAddr)
	if !sender.HasBalance(tx.TotalCost()) {
		return false
	}
	if tx.Nonce != sender.Nonce {
		return false
	}

	l.pending = append(l.pending, tx)
	return true
}

// ApplyGenesisTransfer performs a signature-bypassed transfer from
// GenesisAddress, applied directly to account state and persisted
// immediately — it never enters the mempool or a block, since block
// assembly's VerifyTransactions would reject its deliberately-unsigned
// transaction. Used only during bootstrap/test fixtures, never reachable
// from the RPC or CLI surfaces, which only ever call AddTransaction.
func (l *Ledger) ApplyGenesisTransfer(to string, amount, fee *big.Int, nonce uint64, timestampMs int64) (*chain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx := chain.NewTransaction(GenesisPublicKey, to, amount, fee, nonce, timestampMs)
	if amount.Sign() <= 0 || fee.Sign() < 0 {
		return nil, errors.New("ledger: genesis bootstrap transfer has invalid amount/fee")
	}

	genesis := l.getOrCreateAccount(GenesisAddress)
	if !genesis.HasBalance(tx.TotalCost()) {
		return nil, errors.New("ledger: genesis bootstrap transfer exceeds genesis balance")
	}
	if tx.Nonce != genesis.Nonce {
		return nil, fmt.Errorf("ledger: genesis bootstrap transfer nonce %d != expected %d", tx.Nonce, genesis.Nonce)
	}

	recipientAddr, err := crypto.AddressOf(to)
	if err != nil {
		return nil, fmt.Errorf("ledger: genesis bootstrap transfer: %w", err)
	}
	recipient := l.getOrCreateAccount(recipientAddr)
	genesis.SubtractBalance(tx.TotalCost())
	recipient.AddBalance(tx.Amount)
	genesis.IncrementNonce()

	kv := make(map[string]string)
	genesisJSON, err := marshalJSON(genesis.ToJSON())
	if err != nil {
		return nil, err
	}
	kv[accountKey(GenesisAddress)] = genesisJSON
	recipientJSON, err := marshalJSON(recipient.ToJSON())
	if err != nil {
		return nil, err
	}
	kv[accountKey(recipientAddr)] = recipientJSON

	addrSet := make(map[string]struct{}, len(l.accounts))
	for addr := range l.accounts {
		addrSet[addr] = struct{}{}
	}
	addrs := make([]string, 0, len(addrSet))
	for addr := range addrSet {
		addrs = append(addrs, addr)
	}
	addrsJSON, err := marshalJSON(addrs)
	if err != nil {
		return nil, err
	}
	kv[keyAccountsList] = addrsJSON

	if err := l.store.BatchWrite(kv); err != nil {
		return nil, err
	}
	return tx, nil
}

// PendingCount returns the number of transactions accepted via
// AddTransaction but not yet included in a committed block.
func (l *Ledger) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// AddBlock validates and atomically applies block to the chain:
// linkage checks, cryptographic verification,
// snapshot-execute-rollback semantics, then persistence and mempool
// eviction.
func (l *Ledger) AddBlock(b *chain.Block) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	tip := l.chain[len(l.chain)-1]
	if b.Number != tip.Number+1 {
		return false
	}
	if b.PreviousHash != tip.Hash {
		return false
	}
	if b.Timestamp <= tip.Timestamp {
		return false
	}
	if !b.VerifyHash() || !b.VerifyMerkleRoot() {
		return false
	}
	if !b.VerifyTransactions() {
		return false
	}

	snapshot := make(map[string]*chain.Account, len(l.accounts))
	for addr, acc := range l.accounts {
		snapshot[addr] = acc.Snapshot()
	}

	if !l.executeAll(b.Transactions) {
		l.accounts = snapshot
		return false
	}

	if err := l.persistBlockAndAccounts(b); err != nil {
		l.accounts = snapshot
		return false
	}

	l.chain = append(l.chain, b)
	if l.mempool != nil {
		for _, tx := range b.Transactions {
			l.mempool.Remove(tx.Hash)
		}
	}
	l.pending = filterOutApplied(l.pending, b.Transactions)
	return true
}

// executeAll applies every transaction in order against the current
// in-memory account map, deducting amount+fee from sender and crediting
// amount (not fee — fees are burned) to the receiver. Returns
// false without partial side effects surviving past the caller's rollback.
func (l *Ledger) executeAll(txs []*chain.Transaction) bool {
	for _, tx := range txs {
		senderAddr, err := tx.SenderAddress()
		if err != nil {
			return false
		}
		recipientAddr, err := tx.RecipientAddress()
		if err != nil {
			return false
		}

		sender := l.getOrCreateAccount(senderAddr)
		if tx.Nonce != sender.Nonce {
			return false
		}
		if !sender.HasBalance(tx.TotalCost()) {
			return false
		}
		if !sender.SubtractBalance(tx.TotalCost()) {
			return false
		}
		recipient := l.getOrCreateAccount(recipientAddr)
		recipient.AddBalance(tx.Amount)
		sender.IncrementNonce()
	}
	return true
}

func (l *Ledger) persistBlockAndAccounts(b *chain.Block) error {
	kv := make(map[string]string)

	blockJSON, err := marshalJSON(b.ToJSON())
	if err != nil {
		return err
	}
	kv[blockKey(b.Number)] = blockJSON

	addrSet := make(map[string]struct{}, len(l.accounts))
	for addr := range l.accounts {
		addrSet[addr] = struct{}{}
	}
	addrs := make([]string, 0, len(addrSet))
	for addr := range addrSet {
		addrs = append(addrs, addr)
	}
	accountsListJSON, err := marshalJSON(addrs)
	if err != nil {
		return err
	}
	kv[keyAccountsList] = accountsListJSON

	for addr, acc := range l.accounts {
		accJSON, err := marshalJSON(acc.ToJSON())
		if err != nil {
			return err
		}
		kv[accountKey(addr)] = accJSON
	}

	kv[keyLatestBlockNumber] = fmt.Sprintf("%d", b.Number)

	return l.store.BatchWrite(kv)
}

func marshalJSON(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func filterOutApplied(pending []*chain.Transaction, applied []*chain.Transaction) []*chain.Transaction {
	appliedSet := make(map[string]struct{}, len(applied))
	for _, tx := range applied {
		appliedSet[tx.Hash] = struct{}{}
	}
	out := make([]*chain.Transaction, 0, len(pending))
	for _, tx := range pending {
		if _, ok := appliedSet[tx.Hash]; !ok {
			out = append(out, tx)
		}
	}
	return out
}

// IsChainValid checks that every non-genesis block is correctly linked to
// its predecessor and that all its transactions verify.
func (l *Ledger) IsChainValid() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 1; i < len(l.chain); i++ {
		b := l.chain[i]
		if !b.IsValid(l.chain[i-1]) || !b.VerifyTransactions() {
			return false
		}
	}
	return true
}

// ReplaceChain accepts newChain only if it is strictly longer than the
// current chain and every block validates against its predecessor and
// every contained transaction's signature verifies; on acceptance it
// resets and replays all state from genesis.
func (l *Ledger) ReplaceChain(newChain []*chain.Block) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(newChain) <= len(l.chain) {
		return false
	}
	for i, b := range newChain {
		if i == 0 {
			if !b.VerifyHash() || !b.VerifyMerkleRoot() {
				return false
			}
			continue
		}
		if !b.IsValid(newChain[i-1]) || !b.VerifyTransactions() {
			return false
		}
	}

	l.accounts = make(map[string]*chain.Account)
	genesisAccount := chain.NewAccount(GenesisAddress)
	genesisAccount.AddBalance(GenesisSupply)
	l.accounts[GenesisAddress] = genesisAccount

	for i, b := range newChain {
		if i == 0 {
			continue
		}
		if !l.executeAll(b.Transactions) {
			return false
		}
	}
	l.chain = newChain
	return true
}

// Close releases the underlying store handle.
func (l *Ledger) Close() error {
	return l.store.Close()
}
