// Package ledger implements the chain/account state machine and its
// badger-backed persistent store.
package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger/v3"
)

// Store is the persistent key-value layer backing the ledger: string
// keys, UTF-8 JSON values. It owns no chain logic — Ledger is the state
// machine that reads and writes through it.
type Store struct {
	db *badger.DB
}

func badgerOptions(path string) badger.Options {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.ValueLogFileSize = 16 << 20
	opts.MemTableSize = 8 << 20
	opts.BlockCacheSize = 1 << 20
	opts.NumVersionsToKeep = 1
	opts.VerifyValueChecksum = true
	opts.DetectConflicts = true
	return opts
}

// OpenStore opens (creating if necessary) the badger database at path.
func OpenStore(path string) (*Store, error) {
	db, err := badger.Open(badgerOptions(path))
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to open store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying badger handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Has reports whether key exists.
func (s *Store) Has(key string) (bool, error) {
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// GetString reads a raw string value for key.
func (s *Store) GetString(key string) (string, bool, error) {
	var value string
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		value = string(data)
		found = true
		return nil
	})
	return value, found, err
}

// SetString writes a raw string value for key.
func (s *Store) SetString(key, value string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
}

// GetJSON reads and unmarshals a JSON value, reporting whether it was found.
func (s *Store) GetJSON(key string, out interface{}) (bool, error) {
	raw, found, err := s.GetString(key)
	if err != nil || !found {
		return found, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return true, fmt.Errorf("ledger: corrupt value at key %q: %w", key, err)
	}
	return true, nil
}

// SetJSON marshals and writes a JSON value for key.
func (s *Store) SetJSON(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.SetString(key, string(raw))
}

// BatchWrite writes multiple key/value string pairs atomically.
func (s *Store) BatchWrite(kv map[string]string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for k, v := range kv {
			if err := txn.Set([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

const (
	keyLatestBlockNumber = "latestBlockNumber"
	keyAccountsList      = "accounts-list"
)

func blockKey(n uint64) string {
	return "block-" + strconv.FormatUint(n, 10)
}

func accountKey(addr string) string {
	return "account-" + addr
}
