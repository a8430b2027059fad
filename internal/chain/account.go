package chain

import "math/big"

// Account is the mutable per-address ledger entry. Code and
// Storage are reserved for future contract use; externally-owned accounts
// always carry them empty — there is no VM in this core.
type Account struct {
	Address string            `json:"address"`
	Balance *big.Int          `json:"-"`
	Nonce   uint64            `json:"nonce"`
	Code    string            `json:"code"`
	Storage map[string]string `json:"storage"`
}

// AccountData is the JSON wire encoding of an Account.
type AccountData struct {
	Address string            `json:"address"`
	Balance string            `json:"balance"`
	Nonce   uint64            `json:"nonce"`
	Code    string            `json:"code"`
	Storage map[string]string `json:"storage"`
}

// NewAccount returns an implicit empty account at address, materialized
// on first mutation.
func NewAccount(address string) *Account {
	return &Account{
		Address: address,
		Balance: big.NewInt(0),
		Nonce:   0,
		Storage: make(map[string]string),
	}
}

// AddBalance credits amount to the account.
func (a *Account) AddBalance(amount *big.Int) {
	a.Balance.Add(a.Balance, amount)
}

// SubtractBalance debits amount from the account. Returns false on
// underflow without mutating the account, rather than throwing.
func (a *Account) SubtractBalance(amount *big.Int) bool {
	if a.Balance.Cmp(amount) < 0 {
		return false
	}
	a.Balance.Sub(a.Balance, amount)
	return true
}

// HasBalance reports whether the account can afford amount.
func (a *Account) HasBalance(amount *big.Int) bool {
	return a.Balance.Cmp(amount) >= 0
}

// IncrementNonce advances the account's next-expected-nonce counter.
func (a *Account) IncrementNonce() {
	a.Nonce++
}

// Snapshot returns a deep copy of the account for atomic rollback.
func (a *Account) Snapshot() *Account {
	storage := make(map[string]string, len(a.Storage))
	for k, v := range a.Storage {
		storage[k] = v
	}
	return &Account{
		Address: a.Address,
		Balance: new(big.Int).Set(a.Balance),
		Nonce:   a.Nonce,
		Code:    a.Code,
		Storage: storage,
	}
}

// Restore overwrites a's mutable fields from a previously taken snapshot.
func (a *Account) Restore(snapshot *Account) {
	a.Balance = new(big.Int).Set(snapshot.Balance)
	a.Nonce = snapshot.Nonce
	a.Code = snapshot.Code
	storage := make(map[string]string, len(snapshot.Storage))
	for k, v := range snapshot.Storage {
		storage[k] = v
	}
	a.Storage = storage
}

// ToJSON converts the account to its wire representation.
func (a *Account) ToJSON() AccountData {
	storage := make(map[string]string, len(a.Storage))
	for k, v := range a.Storage {
		storage[k] = v
	}
	return AccountData{
		Address: a.Address,
		Balance: a.Balance.String(),
		Nonce:   a.Nonce,
		Code:    a.Code,
		Storage: storage,
	}
}

// AccountFromJSON reconstructs an Account from its wire representation.
func AccountFromJSON(d AccountData) (*Account, error) {
	balance, ok := new(big.Int).SetString(d.Balance, 10)
	if !ok {
		balance = big.NewInt(0)
	}
	storage := d.Storage
	if storage == nil {
		storage = make(map[string]string)
	}
	return &Account{
		Address: d.Address,
		Balance: balance,
		Nonce:   d.Nonce,
		Code:    d.Code,
		Storage: storage,
	}, nil
}
