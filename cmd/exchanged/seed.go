package main

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/ujinpark/dexledger/pkg/exchange"
	"github.com/ujinpark/dexledger/pkg/token"
)

// seedDemo populates a fresh engine with the demo fixtures the UI expects:
// funded users, one cancelled order, three filled orders, and ten open
// orders on each side of the book.
func seedDemo(engine *exchange.Engine, base *token.BaseLedger, ethp *token.Token) error {
	// Fund the demo users.
	base.Mint(userOne, tokens(10))
	base.Mint(userTwo, tokens(10))
	if err := ethp.Transfer(deployer, userTwo, tokens(10_000)); err != nil {
		return fmt.Errorf("fund userTwo: %w", err)
	}

	// userOne deposits native value; userTwo approves and deposits tokens.
	if err := engine.DepositNative(userOne, tokens(1)); err != nil {
		return err
	}
	if err := ethp.Approve(userTwo, engine.Address(), tokens(1000)); err != nil {
		return err
	}
	if err := engine.DepositToken(userTwo, ethp.Address(), tokens(1000)); err != nil {
		return err
	}

	// A cancelled order.
	id, err := engine.MakeOrder(userOne, ethp.Address(), tokens(100), exchange.NativeAsset, fracEther(1, 10))
	if err != nil {
		return err
	}
	if err := engine.CancelOrder(userOne, id); err != nil {
		return err
	}

	// Three filled orders.
	fills := []struct {
		get  *uint256.Int
		give *uint256.Int
	}{
		{tokens(100), fracEther(1, 10)},
		{tokens(50), fracEther(1, 100)},
		{tokens(200), fracEther(15, 100)},
	}
	for _, f := range fills {
		id, err := engine.MakeOrder(userOne, ethp.Address(), f.get, exchange.NativeAsset, f.give)
		if err != nil {
			return err
		}
		if err := engine.FillOrder(userTwo, id); err != nil {
			return err
		}
	}

	// Ten open orders on each side.
	for i := uint64(1); i <= 10; i++ {
		if _, err := engine.MakeOrder(userOne, ethp.Address(), tokens(10*i), exchange.NativeAsset, fracEther(1, 100)); err != nil {
			return err
		}
	}
	for i := uint64(1); i <= 10; i++ {
		if _, err := engine.MakeOrder(userTwo, exchange.NativeAsset, fracEther(1, 100), ethp.Address(), tokens(10*i)); err != nil {
			return err
		}
	}
	return nil
}

// fracEther returns num/den ether in wei, e.g. fracEther(1, 10) = 0.1 ether.
func fracEther(num, den uint64) *uint256.Int {
	wei := new(uint256.Int).Mul(uint256.NewInt(num), uint256.NewInt(1_000_000_000_000_000_000))
	return wei.Div(wei, uint256.NewInt(den))
}
