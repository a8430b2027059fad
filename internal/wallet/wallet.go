// Package wallet provides key generation, BIP-39 mnemonic recovery, and
// scrypt-encrypted-at-rest storage for validator and user keypairs.
package wallet

import (
	"encoding/hex"
	"errors"

	"github.com/tyler-smith/go-bip39"

	"github.com/nicolocarcagni/fulmine/internal/crypto"
)

var errInvalidMnemonic = errors.New("wallet: invalid mnemonic")

// Wallet holds a derived Ed25519 keypair and the mnemonic it came from.
type Wallet struct {
	Mnemonic   string
	PublicKey  string
	PrivateKey string
	Address    string
}

// New generates a fresh 128-bit-entropy (12-word) mnemonic and derives a
// keypair from it.
func New() (*Wallet, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return nil, err
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, err
	}
	return FromMnemonic(mnemonic)
}

// FromMnemonic recovers the wallet deterministically derived from mnemonic.
func FromMnemonic(mnemonic string) (*Wallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, "")
	pub, priv, err := crypto.SeedToKeyPair(seed[:32])
	if err != nil {
		return nil, err
	}
	addr, err := crypto.AddressOf(pub)
	if err != nil {
		return nil, err
	}
	return &Wallet{Mnemonic: mnemonic, PublicKey: pub, PrivateKey: priv, Address: addr}, nil
}

// FromPrivateKeyHex rebuilds a Wallet from a raw hex-encoded Ed25519
// private key, with no mnemonic (CLI `import-wallet` path).
func FromPrivateKeyHex(privateKeyHex string) (*Wallet, error) {
	if _, err := hex.DecodeString(privateKeyHex); err != nil {
		return nil, err
	}
	pub, err := crypto.PublicKeyFromPrivateHex(privateKeyHex)
	if err != nil {
		return nil, err
	}
	addr, err := crypto.AddressOf(pub)
	if err != nil {
		return nil, err
	}
	return &Wallet{PublicKey: pub, PrivateKey: privateKeyHex, Address: addr}, nil
}
