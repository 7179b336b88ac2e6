package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// SeaportV11 is the canonical cross-chain deployment of the v1.1 settlement
// contract.
var SeaportV11 = common.HexToAddress("0x00000000006c3852cbEf3e08E8dF289169EdE581")

// Config is the immutable node configuration. Build one with Default or
// LoadFromEnv and pass it around by value.
type Config struct {
	// ChainProvider is the JSON-RPC endpoint; required.
	ChainProvider string
	ChainID       uint64

	Datadir  string
	Hostname string
	Port     int

	// Bootnodes are multiaddrs dialed at startup.
	Bootnodes      []string
	MinConnections int
	MaxConnections int

	// CollectionAddresses are the gossip topics subscribed at start.
	CollectionAddresses []common.Address

	MaxOrders           int
	MaxOrdersPerOfferer int
	MaxOrderStartTime   time.Duration
	MaxOrderEndTime     time.Duration
	MaxOrderHistory     time.Duration

	RevalidateInterval      time.Duration
	RevalidateBlockDistance uint64

	IngestExternalOrders bool
	ExternalAPIBaseURL   string
	ExternalAPIKey       string
	IngestRatePerSecond  float64

	SettlementContractAddress common.Address
	ValidateFeeRecipient      bool
	FeeRecipient              common.Address
	LazyMintAdapterAddress    common.Address

	// ClientMode keeps the node out of the discovery server role.
	ClientMode bool

	APIAddr string
	LogFile string
}

func Default() Config {
	return Config{
		ChainID:                   1,
		Datadir:                   "./datadir",
		Hostname:                  "0.0.0.0",
		Port:                      8998,
		MinConnections:            5,
		MaxConnections:            15,
		MaxOrders:                 100_000,
		MaxOrdersPerOfferer:       100,
		MaxOrderStartTime:         14 * 24 * time.Hour,
		MaxOrderEndTime:           180 * 24 * time.Hour,
		MaxOrderHistory:           7 * 24 * time.Hour,
		RevalidateInterval:        60 * time.Second,
		RevalidateBlockDistance:   25,
		IngestRatePerSecond:       5,
		SettlementContractAddress: SeaportV11,
		ValidateFeeRecipient:      true,
		ClientMode:                true,
		APIAddr:                   ":8080",
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and the
// environment. Priority: environment > .env > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	u64 := func(key string, dst *uint64) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.ParseUint(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}
	flag := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}
	addr := func(key string, dst *common.Address) {
		if v := os.Getenv(key); common.IsHexAddress(v) {
			*dst = common.HexToAddress(v)
		}
	}

	str("CHAIN_PROVIDER", &cfg.ChainProvider)
	u64("CHAIN_ID", &cfg.ChainID)
	str("DATADIR", &cfg.Datadir)
	str("HOSTNAME", &cfg.Hostname)
	num("PORT", &cfg.Port)
	if v := os.Getenv("BOOTNODES"); v != "" {
		cfg.Bootnodes = strings.Split(v, ",")
	}
	num("MIN_CONNECTIONS", &cfg.MinConnections)
	num("MAX_CONNECTIONS", &cfg.MaxConnections)
	if v := os.Getenv("COLLECTION_ADDRESSES"); v != "" {
		for _, s := range strings.Split(v, ",") {
			if common.IsHexAddress(s) {
				cfg.CollectionAddresses = append(cfg.CollectionAddresses, common.HexToAddress(s))
			}
		}
	}
	num("MAX_ORDERS", &cfg.MaxOrders)
	num("MAX_ORDERS_PER_OFFERER", &cfg.MaxOrdersPerOfferer)
	dur("MAX_ORDER_START_TIME", &cfg.MaxOrderStartTime)
	dur("MAX_ORDER_END_TIME", &cfg.MaxOrderEndTime)
	dur("MAX_ORDER_HISTORY", &cfg.MaxOrderHistory)
	dur("REVALIDATE_INTERVAL", &cfg.RevalidateInterval)
	u64("REVALIDATE_BLOCK_DISTANCE", &cfg.RevalidateBlockDistance)
	flag("INGEST_EXTERNAL_ORDERS", &cfg.IngestExternalOrders)
	str("EXTERNAL_API_BASE_URL", &cfg.ExternalAPIBaseURL)
	str("EXTERNAL_API_KEY", &cfg.ExternalAPIKey)
	addr("SETTLEMENT_CONTRACT_ADDRESS", &cfg.SettlementContractAddress)
	flag("VALIDATE_FEE_RECIPIENT", &cfg.ValidateFeeRecipient)
	addr("FEE_RECIPIENT", &cfg.FeeRecipient)
	addr("LAZY_MINT_ADAPTER_ADDRESS", &cfg.LazyMintAdapterAddress)
	flag("CLIENT_MODE", &cfg.ClientMode)
	str("API_ADDR", &cfg.APIAddr)
	str("LOG_FILE", &cfg.LogFile)

	return cfg
}
