package token

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BaseLedger is the platform's native-coin book. The engine's custody
// address holds every deposited native unit; users hold the rest.
type BaseLedger struct {
	mu       sync.Mutex
	balances map[common.Address]*uint256.Int
}

func NewBaseLedger() *BaseLedger {
	return &BaseLedger{balances: make(map[common.Address]*uint256.Int)}
}

// Mint credits freshly issued native units to addr. Genesis/test funding.
func (l *BaseLedger) Mint(addr common.Address, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.balances[addr]
	if b == nil {
		b = uint256.NewInt(0)
		l.balances[addr] = b
	}
	b.Add(b, amount)
}

// BalanceOf returns a copy of addr's native balance; zero if absent.
func (l *BaseLedger) BalanceOf(addr common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b := l.balances[addr]; b != nil {
		return new(uint256.Int).Set(b)
	}
	return uint256.NewInt(0)
}

// Transfer moves native units between addresses; fails without mutation if
// the source balance is short.
func (l *BaseLedger) Transfer(from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	src := l.balances[from]
	if src == nil || src.Lt(amount) {
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, from.Hex())
	}
	dst := l.balances[to]
	if dst == nil {
		dst = uint256.NewInt(0)
		l.balances[to] = dst
	}
	src.Sub(src, amount)
	dst.Add(dst, amount)
	return nil
}
