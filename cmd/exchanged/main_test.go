package main

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/ujinpark/dexledger/params"
	"github.com/ujinpark/dexledger/pkg/exchange"
	"github.com/ujinpark/dexledger/pkg/token"
)

// restartFixture builds the ledgers and engine exactly as a booting node
// does, then restores a prior run's balances into the engine.
func restartFixture(t *testing.T) (*exchange.Engine, *token.BaseLedger, *token.Token) {
	t.Helper()
	cfg := params.Default()
	base := token.NewBaseLedger()
	ethp := token.New(tokenAddr, "EthereumPlus", "ETHP", 18, tokens(1_000_000), deployer)
	engine := exchange.NewEngine(cfg.Engine.FeeAccount, cfg.Engine.FeePercent,
		exchange.WithAddress(cfg.Engine.Address),
		exchange.WithBaseLedger(base),
	)
	if err := engine.RegisterToken(tokenAddr, ethp); err != nil {
		t.Fatalf("register token: %v", err)
	}

	engine.Restore(exchange.State{
		Balances: []exchange.BalanceEntry{
			{Asset: exchange.NativeAsset, User: userOne, Amount: tokens(1)},
			{Asset: tokenAddr, User: userTwo, Amount: tokens(5)},
		},
		Seq: 2,
	})
	return engine, base, ethp
}

func TestRehydrateCustody(t *testing.T) {
	engine, base, ethp := restartFixture(t)

	if err := rehydrateCustody(engine, base, ethp); err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if !base.BalanceOf(engine.Address()).Eq(tokens(1)) {
		t.Errorf("native custody = %s, want %s", base.BalanceOf(engine.Address()).Dec(), tokens(1).Dec())
	}
	if !ethp.BalanceOf(engine.Address()).Eq(tokens(5)) {
		t.Errorf("token custody = %s, want %s", ethp.BalanceOf(engine.Address()).Dec(), tokens(5).Dec())
	}

	// Restored balances must be withdrawable against the re-funded custody.
	if err := engine.WithdrawNative(userOne, tokens(1)); err != nil {
		t.Fatalf("native withdraw after restart: %v", err)
	}
	if err := engine.WithdrawToken(userTwo, tokenAddr, tokens(5)); err != nil {
		t.Fatalf("token withdraw after restart: %v", err)
	}
	if !base.BalanceOf(userOne).Eq(tokens(1)) {
		t.Errorf("userOne native payout = %s, want %s", base.BalanceOf(userOne).Dec(), tokens(1).Dec())
	}
	if !ethp.BalanceOf(userTwo).Eq(tokens(5)) {
		t.Errorf("userTwo token payout = %s, want %s", ethp.BalanceOf(userTwo).Dec(), tokens(5).Dec())
	}
}

func TestWithdrawRestoredWithoutRehydrate(t *testing.T) {
	engine, _, _ := restartFixture(t)

	// Fresh external ledgers hold nothing at the custody address, so the
	// payout must fail even though the engine reports the full balance.
	err := engine.WithdrawNative(userOne, tokens(1))
	if !errors.Is(err, exchange.ErrExternalTransfer) {
		t.Fatalf("err = %v, want ErrExternalTransfer", err)
	}
	if !engine.BalanceOf(exchange.NativeAsset, userOne).Eq(tokens(1)) {
		t.Error("failed withdraw mutated restored balance")
	}
}

func TestRehydrateCustodyUnknownAsset(t *testing.T) {
	engine, base, ethp := restartFixture(t)
	other := common.HexToAddress("0xBEEF000000000000000000000000000000000000")
	engine.Restore(exchange.State{
		Balances: []exchange.BalanceEntry{
			{Asset: other, User: userOne, Amount: uint256.NewInt(1)},
		},
	})

	if err := rehydrateCustody(engine, base, ethp); err == nil {
		t.Fatal("expected error for asset with no external ledger")
	}
}
