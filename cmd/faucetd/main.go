package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cw-faucet/faucetd/chain"
	"github.com/cw-faucet/faucetd/db/metadb"
	"github.com/cw-faucet/faucetd/dispenser"
	"github.com/cw-faucet/faucetd/log"
	"github.com/cw-faucet/faucetd/service"
	"github.com/cw-faucet/faucetd/storage"
	"github.com/cw-faucet/faucetd/types"
	"github.com/cw-faucet/faucetd/wallet"
)

// Version is the build version, set at build time with -ldflags.
var Version = "dev"

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level, cfg.Log.Output)
	log.Infow("starting faucetd", "version", Version)

	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	svcCfg, err := serviceConfig(cfg)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Infow("initializing storage", "datadir", cfg.Datadir, "type", cfg.DBType)
	database, err := metadb.New(cfg.DBType, cfg.Datadir)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	stg := storage.New(database)
	defer stg.Close()

	factory, err := chain.Factory(cfg.Chain.Client)
	if err != nil {
		log.Fatalf("Failed to select chain client: %v", err)
	}

	faucet, err := service.NewFaucet(stg, factory, *svcCfg)
	if err != nil {
		log.Fatalf("Failed to setup faucet service: %v", err)
	}
	if err := faucet.Start(ctx); err != nil {
		log.Fatalf("Failed to start faucet service: %v", err)
	}
	defer faucet.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("received signal, shutting down", "signal", sig.String())
}

// serviceConfig converts the daemon configuration into the service
// configuration, parsing all base-unit amounts.
func serviceConfig(cfg *Config) (*service.Config, error) {
	amounts := map[string]*types.BigInt{}
	for name, value := range map[string]string{
		"chain.gasAmount":            cfg.Chain.GasAmount,
		"chain.minGasAmount":         cfg.Chain.MinGasAmount,
		"faucet.minAmount":           cfg.Faucet.MinAmount,
		"faucet.maxAmount":           cfg.Faucet.MaxAmount,
		"faucet.minBalance":          cfg.Faucet.MinBalance,
		"faucet.lowBalanceThreshold": cfg.Faucet.LowBalanceThreshold,
		"refill.amount":              cfg.Refill.Amount,
		"refill.threshold":           cfg.Refill.Threshold,
		"refill.overflowAmount":      cfg.Refill.OverflowAmount,
	} {
		amount, err := types.BigIntFromString(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		amounts[name] = amount
	}

	return &service.Config{
		Wallet: wallet.Config{
			Chain: chain.Config{
				RPCHost:       cfg.Chain.RpcHost,
				AddressPrefix: cfg.Chain.AddressPrefix,
				Mnemonic:      cfg.Chain.WalletMnemonic,
				GasPrice:      cfg.Chain.GasPrice,
			},
			Denom:               cfg.Chain.Denom,
			Decimals:            cfg.Chain.Decimals,
			Symbol:              cfg.Chain.Symbol,
			IsNativeToken:       cfg.Chain.IsNativeToken,
			ContractAddress:     cfg.Chain.ContractAddress,
			GasAmount:           amounts["chain.gasAmount"],
			GasLimit:            cfg.Chain.GasLimit,
			MinGasAmount:        amounts["chain.minGasAmount"],
			MinBalance:          amounts["faucet.minBalance"],
			LowBalanceThreshold: amounts["faucet.lowBalanceThreshold"],
		},
		Pipeline: dispenser.Config{
			AddressPrefix: cfg.Chain.AddressPrefix,
			MinAmount:     amounts["faucet.minAmount"],
			MaxAmount:     amounts["faucet.maxAmount"],
			MaxPending:    cfg.Faucet.MaxPending,
			MinGasAmount:  amounts["chain.minGasAmount"],
			GasAmount:     amounts["chain.gasAmount"],
		},
		Refill: dispenser.RefillConfig{
			Enabled:        cfg.Refill.Enabled,
			Contract:       cfg.Refill.Contract,
			Denom:          cfg.Chain.Denom,
			Amount:         amounts["refill.amount"],
			Threshold:      amounts["refill.threshold"],
			OverflowAmount: amounts["refill.overflowAmount"],
			Cooldown:       cfg.Refill.Cooldown,
		},
		APIHost: cfg.API.Host,
		APIPort: cfg.API.Port,
	}, nil
}
