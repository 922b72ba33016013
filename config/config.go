package config

import (
	"time"

	"gobridgecore/compressor"
)

type Configuration struct {
	Server ServerConfig `yaml:"server"`
	// EIP-712 signing domain of order signatures
	Domain struct {
		Name              string `yaml:"name"`
		Version           string `yaml:"version"`
		ChainID           uint64 `yaml:"chain_id" envconfig:"chain_id"`
		VerifyingContract string `yaml:"verifying_contract" envconfig:"verifying_contract"`
	} `yaml:"domain"`
	// the base ledger every message originates from
	BaseChainID uint64        `yaml:"base_chain_id" envconfig:"base_chain_id"`
	Chains      []ChainConfig `yaml:"chains" ignored:"true"`
	Optimizer   struct {
		// unset keeps the optimizer defaults
		SizeThreshold       *uint64 `yaml:"size_threshold" envconfig:"size_threshold"`
		EfficiencyFactor    *uint64 `yaml:"efficiency_factor" envconfig:"efficiency_factor"`
		DefaultGasPrice     string  `yaml:"default_gas_price" envconfig:"default_gas_price"`           // wei
		DefaultBlobGasPrice string  `yaml:"default_blob_gas_price" envconfig:"default_blob_gas_price"` // wei
	} `yaml:"optimizer"`
	// compression parameters keyed by data type name
	Compressor map[string]compressor.Params `yaml:"compressor" ignored:"true"`
	APIKeys    []APIKey                     `yaml:"api_keys" ignored:"true"`
	GasOracle  struct {
		Enabled  bool          `yaml:"enabled"`
		Interval time.Duration `yaml:"interval"`
		// address the oracle acts as when updating prices
		Operator string `yaml:"operator"`
	} `yaml:"gas_oracle" envconfig:"gas_oracle"`
}

type ServerConfig struct {
	Port      int    `yaml:"port" envconfig:"port"`
	UseSSL    bool   `yaml:"ssl" envconfig:"ssl"`
	CertFile  string `yaml:"cert_file" envconfig:"cert_file"`
	KeyFile   string `yaml:"key_file" envconfig:"key_file"`
	RedisPort int    `yaml:"redis_port" envconfig:"redis_port"`
	RedisHost string `yaml:"redis_host" envconfig:"redis_host"`
	LogDir    string `yaml:"log_dir" envconfig:"log_dir"`
}

// destination chain config, RPCList is only used by the gas oracle
type ChainConfig struct {
	Name                string   `yaml:"name"`
	ChainID             uint64   `yaml:"chain_id"`
	Category            string   `yaml:"category"`
	BridgeEndpoint      string   `yaml:"bridge_endpoint"`
	RollupContract      string   `yaml:"rollup_contract"`
	VerificationBlocks  uint64   `yaml:"verification_blocks"`
	GasToken            string   `yaml:"gas_token"`
	NativeTokenPriceUSD string   `yaml:"native_token_price_usd"` // decimal, 18 fractional digits
	AvgBlockTime        uint64   `yaml:"avg_block_time"`
	BlobEnabled         bool     `yaml:"blob_enabled"`
	MaxMessageSize      uint64   `yaml:"max_message_size"`
	RPCList             []string `yaml:"rpc_list"`
}

type APIKey struct {
	Key     string   `yaml:"key"`
	Address string   `yaml:"address"`
	Roles   []string `yaml:"roles"`
}

var Config Configuration

// maximum number of EVM RPC retries
const EVM_RETRIES = 3

const (
	defaultPort           = 8080
	defaultRedisPort      = 6379
	defaultLogDir         = "logs"
	defaultOracleInterval = 30 * time.Second
)
