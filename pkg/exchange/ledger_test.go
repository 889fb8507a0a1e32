package exchange

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	testAsset = common.HexToAddress("0x7C0000000000000000000000000000000000E2A9")
	testUser  = common.HexToAddress("0xA100000000000000000000000000000000000000")
)

func TestLedgerAbsentIsZero(t *testing.T) {
	l := NewLedger()
	if !l.Balance(testAsset, testUser).IsZero() {
		t.Error("absent entry not zero")
	}
	if !l.Balance(NativeAsset, testUser).IsZero() {
		t.Error("absent native entry not zero")
	}
}

func TestLedgerCreditDebit(t *testing.T) {
	l := NewLedger()

	bal, err := l.credit(testAsset, testUser, uint256.NewInt(100))
	if err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if !bal.Eq(uint256.NewInt(100)) {
		t.Errorf("balance after credit = %s, want 100", bal.Dec())
	}

	bal, err = l.debit(testAsset, testUser, uint256.NewInt(30))
	if err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if !bal.Eq(uint256.NewInt(70)) {
		t.Errorf("balance after debit = %s, want 70", bal.Dec())
	}
	if !l.Balance(testAsset, testUser).Eq(uint256.NewInt(70)) {
		t.Errorf("stored balance = %s, want 70", l.Balance(testAsset, testUser).Dec())
	}
}

func TestLedgerDebitInsufficient(t *testing.T) {
	l := NewLedger()
	if _, err := l.debit(testAsset, testUser, uint256.NewInt(1)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	l.Set(testAsset, testUser, uint256.NewInt(5))
	if _, err := l.debit(testAsset, testUser, uint256.NewInt(6)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if !l.Balance(testAsset, testUser).Eq(uint256.NewInt(5)) {
		t.Error("failed debit mutated balance")
	}
}

func TestLedgerCreditOverflow(t *testing.T) {
	l := NewLedger()
	max := new(uint256.Int).Not(uint256.NewInt(0))
	l.Set(testAsset, testUser, max)

	if l.canCredit(testAsset, testUser, uint256.NewInt(1)) {
		t.Error("canCredit allowed an overflowing credit")
	}
	if _, err := l.credit(testAsset, testUser, uint256.NewInt(1)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("err = %v, want ErrOverflow", err)
	}
	if !l.Balance(testAsset, testUser).Eq(max) {
		t.Error("failed credit mutated balance")
	}
}

func TestLedgerBalanceIsCopy(t *testing.T) {
	l := NewLedger()
	l.Set(testAsset, testUser, uint256.NewInt(10))

	got := l.Balance(testAsset, testUser)
	got.AddUint64(got, 1)
	if !l.Balance(testAsset, testUser).Eq(uint256.NewInt(10)) {
		t.Error("Balance returned the internal value, not a copy")
	}
}

func TestLedgerEntriesSkipZero(t *testing.T) {
	l := NewLedger()
	l.Set(testAsset, testUser, uint256.NewInt(10))
	l.Set(NativeAsset, testUser, uint256.NewInt(0))

	var n int
	l.Entries(func(asset Asset, user common.Address, amount *uint256.Int) {
		n++
		if asset != testAsset || user != testUser || !amount.Eq(uint256.NewInt(10)) {
			t.Errorf("unexpected entry (%s, %s, %s)", asset.Hex(), user.Hex(), amount.Dec())
		}
	})
	if n != 1 {
		t.Errorf("entries visited = %d, want 1", n)
	}
}
