// Package service wires the faucet components together and manages their
// lifecycle.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cw-faucet/faucetd/api"
	"github.com/cw-faucet/faucetd/chain"
	"github.com/cw-faucet/faucetd/dispenser"
	"github.com/cw-faucet/faucetd/hub"
	"github.com/cw-faucet/faucetd/log"
	"github.com/cw-faucet/faucetd/status"
	"github.com/cw-faucet/faucetd/storage"
	"github.com/cw-faucet/faucetd/wallet"
)

// Default background intervals. Overridable before Start.
var (
	// WalletRefreshInterval is how often the wallet state is reloaded
	// from the chain.
	WalletRefreshInterval = 30 * time.Second
	// RefillCheckInterval is how often the refill controller is invoked.
	RefillCheckInterval = 60 * time.Second
)

// Config carries the full faucet service configuration.
type Config struct {
	Wallet   wallet.Config
	Pipeline dispenser.Config
	Refill   dispenser.RefillConfig
	APIHost  string
	APIPort  int
}

// FaucetService owns the claim-settlement components and their lifecycle.
type FaucetService struct {
	Storage  *storage.Storage
	Wallet   *wallet.Manager
	Hub      *hub.Hub
	Board    *status.Board
	Pipeline *dispenser.Pipeline
	Refill   *dispenser.RefillController
	API      *api.API

	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// walletQuerier resolves the wallet's read-only chain client at call time,
// since it does not exist until the wallet initializes.
type walletQuerier struct {
	w *wallet.Manager
}

func (q walletQuerier) Tx(ctx context.Context, hash string) (*chain.TxResponse, error) {
	qc := q.w.Querier()
	if qc == nil {
		return nil, wallet.ErrNotReady
	}
	return qc.Tx(ctx, hash)
}

// NewFaucet builds the faucet service: wallet manager, notification hub,
// claim pipeline (restored from storage) and refill controller.
func NewFaucet(stg *storage.Storage, factory chain.ClientFactory, cfg Config) (*FaucetService, error) {
	if stg == nil {
		return nil, fmt.Errorf("missing storage instance")
	}
	if factory == nil {
		return nil, fmt.Errorf("missing chain client factory")
	}

	board := status.NewBoard()
	w := wallet.New(cfg.Wallet, factory, board)
	h := hub.New()
	querier := walletQuerier{w: w}

	pipeline, err := dispenser.New(stg, w, querier, h, cfg.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to create claim pipeline: %w", err)
	}
	refill := dispenser.NewRefillController(cfg.Refill, w, querier, stg, pipeline)

	return &FaucetService{
		Storage:  stg,
		Wallet:   w,
		Hub:      h,
		Board:    board,
		Pipeline: pipeline,
		Refill:   refill,
		cfg:      cfg,
	}, nil
}

// Start launches the wallet manager, the claim pipeline, the refill loop and
// the API server.
func (fs *FaucetService) Start(ctx context.Context) error {
	fs.ctx, fs.cancel = context.WithCancel(ctx)

	fs.Wallet.Start(fs.ctx, WalletRefreshInterval)

	if err := fs.Pipeline.Start(fs.ctx); err != nil {
		return fmt.Errorf("failed to start claim pipeline: %w", err)
	}

	fs.wg.Add(1)
	go func() {
		defer fs.wg.Done()
		ticker := time.NewTicker(RefillCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				// errors are logged by the controller; nothing to do here
				_ = fs.Refill.Invoke(fs.ctx)
			case <-fs.ctx.Done():
				return
			}
		}
	}()

	a, err := api.New(fs.ctx, &api.APIConfig{
		Host:     fs.cfg.APIHost,
		Port:     fs.cfg.APIPort,
		Storage:  fs.Storage,
		Pipeline: fs.Pipeline,
		Hub:      fs.Hub,
		Board:    fs.Board,
	})
	if err != nil {
		return fmt.Errorf("failed to start API: %w", err)
	}
	fs.API = a

	log.Infow("faucet service started")
	return nil
}

// Stop gracefully shuts down the faucet service.
func (fs *FaucetService) Stop() {
	if fs.cancel != nil {
		fs.cancel()
	}
	fs.Pipeline.Stop()
	fs.Wallet.Stop()
	fs.wg.Wait()
	log.Infow("faucet service stopped")
}
