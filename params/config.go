package params

import (
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Exchange struct {
	FeeAccount common.Address
	FeePercent int64
	// Deployer receives the full supply of every token minted at boot.
	Deployer common.Address
}

type Node struct {
	ListenAddr string
	DataDir    string
	LogFile    string
}

type Config struct {
	Exchange Exchange
	Node     Node
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			FeeAccount: common.HexToAddress("0xFEE0000000000000000000000000000000000000"),
			FeePercent: 10,
			Deployer:   common.HexToAddress("0xDE00000000000000000000000000000000000001"),
		},
		Node: Node{
			ListenAddr: ":8080",
			DataDir:    "./data",
			LogFile:    "data/dexd.log",
		},
	}
}

// Load reads configuration from a .env file (if present) and environment
// variables. Priority: ENV > .env file > defaults.
func Load(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("FEE_ACCOUNT"); common.IsHexAddress(v) {
		cfg.Exchange.FeeAccount = common.HexToAddress(v)
	}
	if v := os.Getenv("FEE_PERCENT"); v != "" {
		if pct, err := strconv.ParseInt(v, 10, 64); err == nil && pct >= 0 && pct <= 100 {
			cfg.Exchange.FeePercent = pct
		}
	}
	if v := os.Getenv("DEPLOYER"); common.IsHexAddress(v) {
		cfg.Exchange.Deployer = common.HexToAddress(v)
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Node.ListenAddr = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Node.DataDir = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}

	return cfg
}
