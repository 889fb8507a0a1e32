package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/ujinpark/dexledger/params"
	"github.com/ujinpark/dexledger/pkg/api"
	"github.com/ujinpark/dexledger/pkg/exchange"
	"github.com/ujinpark/dexledger/pkg/storage"
	"github.com/ujinpark/dexledger/pkg/token"
	"github.com/ujinpark/dexledger/pkg/util"
)

// Demo fixtures: a single ERC20-style token and two funded users, matching
// the seeded development environment the UI expects.
var (
	tokenAddr = common.HexToAddress("0x7C0000000000000000000000000000000000E2A9")
	deployer  = common.HexToAddress("0xD100000000000000000000000000000000000000")
	userOne   = common.HexToAddress("0xA100000000000000000000000000000000000000")
	userTwo   = common.HexToAddress("0xA200000000000000000000000000000000000000")
)

func main() {
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	// ---- Persistence ----
	store, err := storage.Open(cfg.Node.DBPath)
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", cfg.Node.DBPath, "err", err)
	}
	defer store.Close()

	state, err := store.Load()
	if err != nil {
		sugar.Fatalw("store_load_failed", "err", err)
	}

	// ---- External ledgers ----
	base := token.NewBaseLedger()
	ethp := token.New(tokenAddr, "EthereumPlus", "ETHP", 18, tokens(1_000_000), deployer)

	// ---- Engine ----
	engine := exchange.NewEngine(cfg.Engine.FeeAccount, cfg.Engine.FeePercent,
		exchange.WithAddress(cfg.Engine.Address),
		exchange.WithBaseLedger(base),
		exchange.WithStore(store),
		exchange.WithLogger(sugar),
	)
	if err := engine.RegisterToken(tokenAddr, ethp); err != nil {
		sugar.Fatalw("token_register_failed", "err", err)
	}
	engine.Restore(state)
	if err := rehydrateCustody(engine, base, ethp); err != nil {
		sugar.Fatalw("custody_rehydrate_failed", "err", err)
	}
	sugar.Infow("engine_ready",
		"fee_account", cfg.Engine.FeeAccount.Hex(),
		"fee_percent", cfg.Engine.FeePercent,
		"orders", state.OrderCount)

	// ---- Demo data ----
	if cfg.Node.SeedDemo && state.OrderCount == 0 {
		if err := seedDemo(engine, base, ethp); err != nil {
			sugar.Fatalw("seed_failed", "err", err)
		}
		sugar.Infow("demo_seeded", "orders", engine.OrderCount())
	}

	// ---- API Server ----
	server := api.NewServer(engine, sugar)
	engine.Subscribe(server.EventSink())

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(cfg.Node.APIAddr) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		sugar.Info("shutting down")
	case err := <-errCh:
		sugar.Fatalw("api_server_failed", "err", err)
	}
}

// rehydrateCustody re-funds the custody account in each external ledger
// with the engine's per-asset balance totals. The external ledgers are
// in-memory and start empty on every boot, while restored engine balances
// are claims against custody; without this step every withdrawal of a
// restored balance would be rejected by the external ledger.
func rehydrateCustody(engine *exchange.Engine, base *token.BaseLedger, ethp *token.Token) error {
	totals := make(map[exchange.Asset]*uint256.Int)
	engine.Balances(func(asset exchange.Asset, _ common.Address, amount *uint256.Int) {
		t := totals[asset]
		if t == nil {
			t = uint256.NewInt(0)
			totals[asset] = t
		}
		t.Add(t, amount)
	})

	for asset, total := range totals {
		switch {
		case exchange.IsNative(asset):
			base.Mint(engine.Address(), total)
		case asset == ethp.Address():
			if err := ethp.Transfer(deployer, engine.Address(), total); err != nil {
				return fmt.Errorf("rehydrate %s custody: %w", ethp.Symbol(), err)
			}
		default:
			return fmt.Errorf("rehydrate custody: no external ledger for asset %s", asset.Hex())
		}
	}
	return nil
}

// tokens converts whole token units to the 18-decimal smallest unit.
func tokens(n uint64) *uint256.Int {
	wei := uint256.NewInt(1_000_000_000_000_000_000)
	return new(uint256.Int).Mul(uint256.NewInt(n), wei)
}
