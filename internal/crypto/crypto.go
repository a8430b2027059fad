// Package crypto implements the primitives shared by the transaction,
// block, and merkle-proof machinery: hashing, address derivation, and
// Ed25519 signing.
package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ZeroHash is the 64 zero-hex-char previous-hash used by genesis blocks.
var ZeroHash = strings.Repeat("0", 64)

// Sha256Hex returns the lowercase hex SHA-256 digest of data.
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MerkleRoot computes the binary SHA-256 merkle root over a set of
// hex-encoded leaf hashes, following the wire-format quirk required for
// cross-implementation merkle proofs: an empty set hashes the literal
// string "0"; odd levels duplicate the last hash instead of dropping it;
// parent hashes are computed over the UTF-8 bytes of the concatenated hex
// strings of their children, not over the raw digest bytes.
func MerkleRoot(leaves []string) string {
	if len(leaves) == 0 {
		return Sha256Hex([]byte("0"))
	}
	level := make([]string, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]string, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, Sha256Hex([]byte(level[i]+level[i+1])))
		}
		level = next
	}
	return level[0]
}

// MerkleProofStep is one link of the sibling chain needed to walk a leaf
// hash up to a root.
type MerkleProofStep struct {
	Hash       string `json:"hash"`
	IsRightSib bool   `json:"isRightSibling"`
}

// MerkleProof computes the sibling chain for leafHash within leaves.
// Returns (nil, false) if leafHash is not among leaves.
func MerkleProof(leaves []string, leafHash string) ([]MerkleProofStep, bool) {
	idx := -1
	for i, h := range leaves {
		if h == leafHash {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}

	var proof []MerkleProofStep
	level := make([]string, len(leaves))
	copy(level, leaves)
	pos := idx

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		var sibling string
		var isRight bool
		if pos%2 == 0 {
			sibling = level[pos+1]
			isRight = true
		} else {
			sibling = level[pos-1]
			isRight = false
		}
		proof = append(proof, MerkleProofStep{Hash: sibling, IsRightSib: isRight})

		next := make([]string, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, Sha256Hex([]byte(level[i]+level[i+1])))
		}
		level = next
		pos /= 2
	}
	return proof, true
}

// VerifyMerkleProof walks leafHash up proof and reports whether the
// resulting root matches want.
func VerifyMerkleProof(leafHash string, proof []MerkleProofStep, want string) bool {
	current := leafHash
	for _, step := range proof {
		if step.IsRightSib {
			current = Sha256Hex([]byte(current + step.Hash))
		} else {
			current = Sha256Hex([]byte(step.Hash + current))
		}
	}
	return current == want
}

// AddressOf derives the "0x"-prefixed address from a hex-encoded Ed25519
// public key.
func AddressOf(publicKeyHex string) (string, error) {
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return "", err
	}
	return "0x" + Sha256Hex(pub), nil
}

// Sign signs message with an Ed25519 private key, returning a hex signature.
func Sign(privateKeyHex string, message []byte) (string, error) {
	priv, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return "", err
	}
	if len(priv) != ed25519.PrivateKeySize {
		return "", errors.New("crypto: invalid private key size")
	}
	sig := ed25519.Sign(ed25519.PrivateKey(priv), message)
	return hex.EncodeToString(sig), nil
}

// Verify checks an Ed25519 signature over message under a hex public key.
func Verify(publicKeyHex, signatureHex string, message []byte) bool {
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), message, sig)
}

// GenerateKeyPair creates a fresh Ed25519 keypair, hex-encoded.
func GenerateKeyPair() (publicKeyHex, privateKeyHex string, err error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return "", "", err
	}
	return hex.EncodeToString(pub), hex.EncodeToString(priv), nil
}

// SeedToKeyPair derives an Ed25519 keypair from a 32-byte seed (used by the
// wallet package's BIP-39-derived seeds).
func SeedToKeyPair(seed []byte) (publicKeyHex, privateKeyHex string, err error) {
	if len(seed) != ed25519.SeedSize {
		return "", "", errors.New("crypto: seed must be 32 bytes")
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return hex.EncodeToString(pub), hex.EncodeToString(priv), nil
}

// PublicKeyFromPrivateHex extracts the public key half of a hex-encoded
// 64-byte Ed25519 private key (the format crypto.GenerateKeyPair returns).
func PublicKeyFromPrivateHex(privateKeyHex string) (string, error) {
	priv, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return "", err
	}
	if len(priv) != ed25519.PrivateKeySize {
		return "", errors.New("crypto: invalid private key size")
	}
	pub := ed25519.PrivateKey(priv).Public().(ed25519.PublicKey)
	return hex.EncodeToString(pub), nil
}
