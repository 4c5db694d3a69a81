package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cw-faucet/faucetd/chain/mockchain"
	"github.com/cw-faucet/faucetd/db"
)

const (
	defaultAPIHost        = "0.0.0.0"
	defaultAPIPort        = 8080
	defaultLogLevel       = "info"
	defaultLogOutput      = "stdout"
	defaultDatadir        = ".cw-faucet" // prefixed with the user's home directory
	defaultAddressPrefix  = "wasm"
	defaultDenom          = "uwasm"
	defaultDecimals       = 6
	defaultSymbol         = "WASM"
	defaultGasAmount      = "2000"
	defaultGasLimit       = 200000
	defaultMaxPending     = 10
	defaultRefillCooldown = 30 * time.Minute
)

// Config holds the daemon configuration.
type Config struct {
	Chain   ChainConfig
	Faucet  FaucetConfig
	Refill  RefillConfig
	API     APIConfig
	Log     LogConfig
	DBType  string `mapstructure:"dbType"`
	Datadir string
}

// ChainConfig holds the chain connection and token parameters. All monetary
// values are base-unit integer strings.
type ChainConfig struct {
	Client          string `mapstructure:"client"`          // registered chain client factory
	RpcHost         string `mapstructure:"rpcHost"`         // chain RPC endpoint
	AddressPrefix   string `mapstructure:"addressPrefix"`   // bech32 address prefix
	WalletMnemonic  string `mapstructure:"walletMnemonic"`  // hot wallet mnemonic seed
	GasPrice        string `mapstructure:"gasPrice"`        // gas price, e.g. "0.025uwasm"
	Denom           string `mapstructure:"denom"`           // native denom
	Decimals        uint   `mapstructure:"decimals"`        // display decimals
	Symbol          string `mapstructure:"symbol"`          // display symbol
	IsNativeToken   bool   `mapstructure:"isNativeToken"`   // faucet dispenses the native denom
	ContractAddress string `mapstructure:"contractAddress"` // CW20 token contract (when not native)
	GasAmount       string `mapstructure:"gasAmount"`       // fee amount per transaction
	GasLimit        uint64 `mapstructure:"gasLimit"`        // gas limit per transaction
	MinGasAmount    string `mapstructure:"minGasAmount"`    // processing halts at or below this native balance
}

// FaucetConfig holds the claim pipeline parameters.
type FaucetConfig struct {
	MinAmount           string `mapstructure:"minAmount"`
	MaxAmount           string `mapstructure:"maxAmount"`
	MaxPending          int    `mapstructure:"maxPending"`
	MinBalance          string `mapstructure:"minBalance"`
	LowBalanceThreshold string `mapstructure:"lowBalanceThreshold"`
}

// RefillConfig holds the treasury refill band parameters.
type RefillConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Contract       string        `mapstructure:"contract"`
	Amount         string        `mapstructure:"amount"`
	Threshold      string        `mapstructure:"threshold"`
	OverflowAmount string        `mapstructure:"overflowAmount"`
	Cooldown       time.Duration `mapstructure:"cooldown"`
}

// APIConfig holds the API server parameters.
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// loadConfig loads configuration from flags, environment variables and
// defaults.
func loadConfig() (*Config, error) {
	v := viper.New()

	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		userHomeDir = "."
	}
	defaultDatadirPath := filepath.Join(userHomeDir, defaultDatadir)

	v.SetDefault("chain.client", mockchain.FactoryName)
	v.SetDefault("chain.addressPrefix", defaultAddressPrefix)
	v.SetDefault("chain.denom", defaultDenom)
	v.SetDefault("chain.decimals", defaultDecimals)
	v.SetDefault("chain.symbol", defaultSymbol)
	v.SetDefault("chain.isNativeToken", true)
	v.SetDefault("chain.gasAmount", defaultGasAmount)
	v.SetDefault("chain.gasLimit", defaultGasLimit)
	v.SetDefault("chain.minGasAmount", "0")
	v.SetDefault("faucet.minAmount", "1")
	v.SetDefault("faucet.maxAmount", "1000000000")
	v.SetDefault("faucet.maxPending", defaultMaxPending)
	v.SetDefault("faucet.minBalance", "0")
	v.SetDefault("faucet.lowBalanceThreshold", "0")
	v.SetDefault("refill.cooldown", defaultRefillCooldown)
	v.SetDefault("api.host", defaultAPIHost)
	v.SetDefault("api.port", defaultAPIPort)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.output", defaultLogOutput)
	v.SetDefault("dbType", db.TypePebble)
	v.SetDefault("datadir", defaultDatadirPath)

	flag.String("chain.client", mockchain.FactoryName, "chain client transport to use")
	flag.StringP("chain.rpcHost", "r", "", "chain RPC endpoint")
	flag.String("chain.addressPrefix", defaultAddressPrefix, "bech32 address prefix")
	flag.StringP("chain.walletMnemonic", "m", "", "faucet wallet mnemonic (required)")
	flag.String("chain.gasPrice", "", "gas price (e.g. 0.025uwasm)")
	flag.String("chain.denom", defaultDenom, "native token denom")
	flag.Uint("chain.decimals", defaultDecimals, "token display decimals")
	flag.String("chain.symbol", defaultSymbol, "token display symbol")
	flag.Bool("chain.isNativeToken", true, "dispense the native denom instead of a CW20 token")
	flag.String("chain.contractAddress", "", "CW20 token contract address (when not native)")
	flag.String("chain.gasAmount", defaultGasAmount, "fee amount attached to each transaction")
	flag.Uint64("chain.gasLimit", defaultGasLimit, "gas limit attached to each transaction")
	flag.String("chain.minGasAmount", "0", "stop processing claims at or below this native balance")
	flag.String("faucet.minAmount", "1", "minimum claimable amount")
	flag.String("faucet.maxAmount", "1000000000", "maximum claimable amount")
	flag.Int("faucet.maxPending", defaultMaxPending, "maximum claims awaiting confirmation")
	flag.String("faucet.minBalance", "0", "token balance at or below which the faucet reports out of funds")
	flag.String("faucet.lowBalanceThreshold", "0", "token balance at or below which the faucet warns")
	flag.Bool("refill.enabled", false, "enable the treasury refill controller")
	flag.String("refill.contract", "", "treasury contract address")
	flag.String("refill.amount", "0", "amount withdrawn from the treasury per refill")
	flag.String("refill.threshold", "0", "available balance below which a refill is issued")
	flag.String("refill.overflowAmount", "0", "available balance above which the excess is deposited")
	flag.Duration("refill.cooldown", defaultRefillCooldown, "cooldown between successful refills")
	flag.StringP("api.host", "h", defaultAPIHost, "API host")
	flag.IntP("api.port", "p", defaultAPIPort, "API port")
	flag.StringP("log.level", "l", defaultLogLevel, "log level (debug, info, warn, error)")
	flag.StringP("log.output", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
	flag.String("dbType", db.TypePebble, fmt.Sprintf("database type (%q or %q)", db.TypePebble, db.TypeLevelDB))
	flag.StringP("datadir", "d", defaultDatadirPath, "data directory for the session database")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "faucetd v%s\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: faucetd [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available with the same name as flags,\n")
		fmt.Fprintf(os.Stderr, "  except for dashes (-) and dots (.) which are replaced by underscores (_).\n")
		fmt.Fprintf(os.Stderr, "  For example, FAUCET_CHAIN_WALLETMNEMONIC or FAUCET_API_PORT\n")
	}

	flag.CommandLine.SortFlags = false
	flag.Parse()

	v.SetEnvPrefix("FAUCET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flag.CommandLine); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}

// validateConfig checks the configuration for required values.
func validateConfig(cfg *Config) error {
	if cfg.Chain.WalletMnemonic == "" {
		return fmt.Errorf("chain.walletMnemonic is required")
	}
	if !cfg.Chain.IsNativeToken && cfg.Chain.ContractAddress == "" {
		return fmt.Errorf("chain.contractAddress is required for a non-native token")
	}
	if cfg.Refill.Enabled && cfg.Refill.Contract == "" {
		return fmt.Errorf("refill.contract is required when refill is enabled")
	}
	return nil
}
