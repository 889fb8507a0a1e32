// Package token provides the external asset ledgers the exchange engine
// takes custody from: an ERC20-style fungible token and the platform's
// native-coin book. Both live outside the engine's ledger; the engine only
// talks to them through its transfer interfaces.
package token

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrInvalidRecipient      = errors.New("token: invalid recipient")
)

// Token is an in-memory ERC20-style ledger: balances, allowances, and the
// usual transfer/approve/transferFrom triple. The full supply is minted to
// the deployer at construction.
type Token struct {
	mu sync.Mutex

	name        string
	symbol      string
	decimals    uint8
	totalSupply *uint256.Int
	address     common.Address

	balances   map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int
}

// New deploys a token at the given address and mints the whole supply to
// the deployer.
func New(address common.Address, name, symbol string, decimals uint8, supply *uint256.Int, deployer common.Address) *Token {
	t := &Token{
		name:        name,
		symbol:      symbol,
		decimals:    decimals,
		totalSupply: new(uint256.Int).Set(supply),
		address:     address,
		balances:    make(map[common.Address]*uint256.Int),
		allowances:  make(map[common.Address]map[common.Address]*uint256.Int),
	}
	t.balances[deployer] = new(uint256.Int).Set(supply)
	return t
}

func (t *Token) Name() string            { return t.name }
func (t *Token) Symbol() string          { return t.symbol }
func (t *Token) Decimals() uint8         { return t.decimals }
func (t *Token) Address() common.Address { return t.address }

func (t *Token) TotalSupply() *uint256.Int {
	return new(uint256.Int).Set(t.totalSupply)
}

// BalanceOf returns a copy of owner's balance; zero if absent.
func (t *Token) BalanceOf(owner common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balanceLocked(owner)
}

// Allowance returns how much spender may still pull from owner.
func (t *Token) Allowance(owner, spender common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m := t.allowances[owner]; m != nil {
		if a := m[spender]; a != nil {
			return new(uint256.Int).Set(a)
		}
	}
	return uint256.NewInt(0)
}

// Transfer moves amount from `from` to `to`. The zero address is not a
// valid recipient.
func (t *Token) Transfer(from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transferLocked(from, to, amount)
}

// Approve grants spender the right to pull up to amount from owner.
// Overwrites any previous allowance.
func (t *Token) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if spender == (common.Address{}) {
		return ErrInvalidRecipient
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.allowances[owner]
	if m == nil {
		m = make(map[common.Address]*uint256.Int)
		t.allowances[owner] = m
	}
	m[spender] = new(uint256.Int).Set(amount)
	return nil
}

// TransferFrom moves amount from `from` to `to` on spender's authority,
// consuming spender's allowance. Fails without touching balances if either
// the balance or the allowance is short.
func (t *Token) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.allowances[from]
	if m == nil || m[spender] == nil || m[spender].Lt(amount) {
		return fmt.Errorf("%w: spender %s", ErrInsufficientAllowance, spender.Hex())
	}
	if err := t.transferLocked(from, to, amount); err != nil {
		return err
	}
	m[spender].Sub(m[spender], amount)
	return nil
}

func (t *Token) balanceLocked(owner common.Address) *uint256.Int {
	if b := t.balances[owner]; b != nil {
		return new(uint256.Int).Set(b)
	}
	return uint256.NewInt(0)
}

func (t *Token) transferLocked(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}
	src := t.balances[from]
	if src == nil || src.Lt(amount) {
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, from.Hex())
	}
	dst := t.balances[to]
	if dst == nil {
		dst = uint256.NewInt(0)
		t.balances[to] = dst
	}
	src.Sub(src, amount)
	dst.Add(dst, amount)
	return nil
}
