// Package chain holds the core data model: Transaction, Account, and
// Block, along with their hashing, signing, and JSON wire encodings.
package chain

import (
	"errors"
	"math/big"

	"github.com/nicolocarcagni/fulmine/internal/crypto"
)

// Transaction is immutable once Hash is populated: the signature is
// deliberately excluded from the hash pre-image so that signing the hash
// stays a pure function of the transaction's economic fields.
//
// From and To are hex-encoded 32-byte Ed25519 public keys, not
// account addresses — the corresponding account address is derived with
// crypto.AddressOf(From) / crypto.AddressOf(To) wherever the ledger needs
// to key its account map.
type Transaction struct {
	From      string   `json:"from"`
	To        string   `json:"to"`
	Amount    *big.Int `json:"-"`
	Fee       *big.Int `json:"-"`
	Nonce     uint64   `json:"nonce"`
	Timestamp int64    `json:"timestamp"`
	Hash      string   `json:"hash"`
	Signature string   `json:"signature"`
}

// TxData is the JSON wire encoding of a Transaction: amount and
// fee are decimal strings so arbitrary-precision values survive JSON.
type TxData struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Nonce     uint64 `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
	Fee       string `json:"fee"`
	Signature string `json:"signature"`
	Hash      string `json:"hash"`
}

// NewTransaction constructs an unsigned, unhashed transaction.
func NewTransaction(from, to string, amount, fee *big.Int, nonce uint64, timestampMs int64) *Transaction {
	tx := &Transaction{
		From:      from,
		To:        to,
		Amount:    new(big.Int).Set(amount),
		Fee:       new(big.Int).Set(fee),
		Nonce:     nonce,
		Timestamp: timestampMs,
	}
	tx.CalculateHash()
	return tx
}

// CalculateHash computes and stores the SHA-256 hash over the canonical
// concatenation from‖to‖amount(decimal)‖nonce‖timestamp‖fee(decimal).
func (tx *Transaction) CalculateHash() string {
	tx.Hash = crypto.Sha256Hex([]byte(tx.preimage()))
	return tx.Hash
}

func (tx *Transaction) preimage() string {
	return tx.From + tx.To + tx.Amount.String() + uintToStr(tx.Nonce) + int64ToStr(tx.Timestamp) + tx.Fee.String()
}

// VerifyHash reports whether the stored hash matches a fresh recomputation.
func (tx *Transaction) VerifyHash() bool {
	return tx.Hash == crypto.Sha256Hex([]byte(tx.preimage()))
}

// Sign signs tx.Hash with the given hex-encoded Ed25519 private key.
func (tx *Transaction) Sign(privateKeyHex string) error {
	sig, err := crypto.Sign(privateKeyHex, hashBytes(tx.Hash))
	if err != nil {
		return err
	}
	tx.Signature = sig
	return nil
}

// Verify checks tx.Signature against tx.From, the sender's raw Ed25519
// public key.
func (tx *Transaction) Verify() bool {
	if tx.Signature == "" {
		return false
	}
	return crypto.Verify(tx.From, tx.Signature, hashBytes(tx.Hash))
}

// IsValid performs the non-cryptographic sanity checks:
// signature present, amount > 0, fee >= 0, addresses non-empty, hash
// consistent. It does not verify the cryptographic signature itself.
func (tx *Transaction) IsValid() bool {
	if tx.From == "" || tx.To == "" {
		return false
	}
	if tx.Amount == nil || tx.Amount.Sign() <= 0 {
		return false
	}
	if tx.Fee == nil || tx.Fee.Sign() < 0 {
		return false
	}
	if tx.Signature == "" {
		return false
	}
	return tx.VerifyHash()
}

// TotalCost returns amount + fee.
func (tx *Transaction) TotalCost() *big.Int {
	return new(big.Int).Add(tx.Amount, tx.Fee)
}

// ToJSON converts the transaction to its wire representation.
func (tx *Transaction) ToJSON() TxData {
	return TxData{
		From:      tx.From,
		To:        tx.To,
		Amount:    tx.Amount.String(),
		Nonce:     tx.Nonce,
		Timestamp: tx.Timestamp,
		Fee:       tx.Fee.String(),
		Signature: tx.Signature,
		Hash:      tx.Hash,
	}
}

// TransactionFromJSON reconstructs a Transaction from its wire representation.
func TransactionFromJSON(d TxData) (*Transaction, error) {
	amount, ok := new(big.Int).SetString(d.Amount, 10)
	if !ok {
		return nil, errors.New("chain: invalid amount")
	}
	fee, ok := new(big.Int).SetString(d.Fee, 10)
	if !ok {
		return nil, errors.New("chain: invalid fee")
	}
	tx := &Transaction{
		From:      d.From,
		To:        d.To,
		Amount:    amount,
		Fee:       fee,
		Nonce:     d.Nonce,
		Timestamp: d.Timestamp,
		Signature: d.Signature,
		Hash:      d.Hash,
	}
	return tx, nil
}

func hashBytes(hexHash string) []byte {
	b, err := hexDecode(hexHash)
	if err != nil {
		return nil
	}
	return b
}

// SenderAddress returns the account address derived from tx.From.
func (tx *Transaction) SenderAddress() (string, error) {
	return crypto.AddressOf(tx.From)
}

// RecipientAddress returns the account address derived from tx.To.
func (tx *Transaction) RecipientAddress() (string, error) {
	return crypto.AddressOf(tx.To)
}
