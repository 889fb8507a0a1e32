package exchange

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// balanceKey identifies one ledger entry: (asset, account).
type balanceKey struct {
	Asset Asset
	User  common.Address
}

// Ledger is the custodial balance book: (asset, account) -> unsigned amount
// in the asset's smallest indivisible unit. An absent entry is zero and no
// entry is ever negative. Not safe for concurrent use; the engine serializes
// every access behind its own lock.
type Ledger struct {
	balances map[balanceKey]*uint256.Int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[balanceKey]*uint256.Int)}
}

// Balance returns a copy of the (asset, user) balance; zero if absent.
func (l *Ledger) Balance(asset Asset, user common.Address) *uint256.Int {
	if b, ok := l.balances[balanceKey{asset, user}]; ok {
		return new(uint256.Int).Set(b)
	}
	return uint256.NewInt(0)
}

// Set overwrites the (asset, user) balance. Used by the storage layer when
// rebuilding engine state on restart.
func (l *Ledger) Set(asset Asset, user common.Address, amount *uint256.Int) {
	l.balances[balanceKey{asset, user}] = new(uint256.Int).Set(amount)
}

// Entries calls fn for every non-zero balance entry.
func (l *Ledger) Entries(fn func(asset Asset, user common.Address, amount *uint256.Int)) {
	for k, v := range l.balances {
		if !v.IsZero() {
			fn(k.Asset, k.User, new(uint256.Int).Set(v))
		}
	}
}

// canCredit reports whether crediting amount would overflow the entry.
func (l *Ledger) canCredit(asset Asset, user common.Address, amount *uint256.Int) bool {
	cur := l.balances[balanceKey{asset, user}]
	if cur == nil {
		return true
	}
	_, carry := new(uint256.Int).AddOverflow(cur, amount)
	return !carry
}

// credit adds amount to (asset, user) and returns the new balance.
// Returns ErrOverflow if the entry would wrap.
func (l *Ledger) credit(asset Asset, user common.Address, amount *uint256.Int) (*uint256.Int, error) {
	k := balanceKey{asset, user}
	cur := l.balances[k]
	if cur == nil {
		cur = uint256.NewInt(0)
		l.balances[k] = cur
	}
	sum, carry := new(uint256.Int).AddOverflow(cur, amount)
	if carry {
		return nil, ErrOverflow
	}
	cur.Set(sum)
	return new(uint256.Int).Set(cur), nil
}

// debit subtracts amount from (asset, user) and returns the new balance.
// Returns ErrInsufficientFunds if the entry is smaller than amount.
func (l *Ledger) debit(asset Asset, user common.Address, amount *uint256.Int) (*uint256.Int, error) {
	k := balanceKey{asset, user}
	cur := l.balances[k]
	if cur == nil || cur.Lt(amount) {
		return nil, ErrInsufficientFunds
	}
	cur.Sub(cur, amount)
	return new(uint256.Int).Set(cur), nil
}
