package params

import (
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Engine struct {
	// FeeAccount collects the taker fee on every trade. Fixed for the
	// engine's lifetime.
	FeeAccount common.Address
	// FeePercent is the taker fee in whole percent units.
	FeePercent uint64
	// Address is the engine's custody account in external ledgers.
	Address common.Address
}

type Node struct {
	APIAddr  string
	DBPath   string
	LogFile  string
	SeedDemo bool
}

type Config struct {
	Engine Engine
	Node   Node
}

func Default() Config {
	return Config{
		Engine: Engine{
			FeeAccount: common.HexToAddress("0xFEE0000000000000000000000000000000000000"),
			FeePercent: 10,
			Address:    common.HexToAddress("0xE0C0000000000000000000000000000000000000"),
		},
		Node: Node{
			APIAddr: ":8080",
			DBPath:  "data/exchange.db",
			LogFile: "data/node.log",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment
// variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("FEE_ACCOUNT"); common.IsHexAddress(v) {
		cfg.Engine.FeeAccount = common.HexToAddress(v)
	}
	if v := os.Getenv("FEE_PERCENT"); v != "" {
		if pct, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Engine.FeePercent = pct
		}
	}
	if v := os.Getenv("ENGINE_ADDR"); common.IsHexAddress(v) {
		cfg.Engine.Address = common.HexToAddress(v)
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.Node.APIAddr = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Node.DBPath = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}
	if v := os.Getenv("SEED_DEMO"); v != "" {
		cfg.Node.SeedDemo = v == "true"
	}

	return cfg
}
