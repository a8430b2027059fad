package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"

	"golang.org/x/crypto/scrypt"
)

const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
)

// encryptedFile is the on-disk JSON envelope for a passphrase-encrypted
// wallet: scrypt-derived key, AES-GCM ciphertext over the wallet's private
// key hex.
type encryptedFile struct {
	Address    string `json:"address"`
	PublicKey  string `json:"publicKey"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// SaveEncrypted writes w to path, encrypting its private key under
// passphrase via scrypt + AES-GCM.
func SaveEncrypted(w *Wallet, path, passphrase string) error {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}

	privBytes, err := hex.DecodeString(w.PrivateKey)
	if err != nil {
		return err
	}
	ciphertext := gcm.Seal(nil, nonce, privBytes, nil)

	enc := encryptedFile{
		Address:    w.Address,
		PublicKey:  w.PublicKey,
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
		Ciphertext: hex.EncodeToString(ciphertext),
	}
	raw, err := json.MarshalIndent(enc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0600)
}

// LoadEncrypted decrypts the wallet file at path under passphrase.
func LoadEncrypted(path, passphrase string) (*Wallet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var enc encryptedFile
	if err := json.Unmarshal(raw, &enc); err != nil {
		return nil, err
	}

	salt, err := hex.DecodeString(enc.Salt)
	if err != nil {
		return nil, err
	}
	nonce, err := hex.DecodeString(enc.Nonce)
	if err != nil {
		return nil, err
	}
	ciphertext, err := hex.DecodeString(enc.Ciphertext)
	if err != nil {
		return nil, err
	}

	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	privBytes, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.New("wallet: wrong passphrase or corrupt wallet file")
	}

	return &Wallet{
		PublicKey:  enc.PublicKey,
		PrivateKey: hex.EncodeToString(privBytes),
		Address:    enc.Address,
	}, nil
}
