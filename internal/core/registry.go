package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/vovakirdan/relayhub/internal/store"
)

// ChainRegistry tracks enabled destination chains and their base fees.
// Owner checks happen in the Hub before the registry is called.
type ChainRegistry struct {
	ctx     context.Context
	tx      store.HubTx
	globals *store.Globals
}

// Add enables a chain or overwrites its configuration. The enabled-chain
// counter only moves when the chain was not already enabled.
func (r *ChainRegistry) Add(chainID uint32, receiver common.Address, baseFee *uint256.Int) (*store.ChainConfig, error) {
	if receiver == (common.Address{}) {
		return nil, ErrZeroAddress
	}

	prev, err := r.Info(chainID)
	if err != nil {
		return nil, err
	}

	chain := &store.ChainConfig{
		ChainID:  chainID,
		Enabled:  true,
		Receiver: receiver,
		BaseFee:  baseFee.Clone(),
	}
	if err := r.tx.PutChain(r.ctx, chain); err != nil {
		return nil, err
	}
	if !prev.Enabled {
		r.globals.EnabledChains++
	}
	return chain, nil
}

// Disable turns a chain off. Messages already sent to it keep their lifecycle.
func (r *ChainRegistry) Disable(chainID uint32) error {
	chain, err := r.Info(chainID)
	if err != nil {
		return err
	}
	if chain.Enabled && r.globals.EnabledChains > 0 {
		r.globals.EnabledChains--
	}
	chain.Enabled = false
	return r.tx.PutChain(r.ctx, chain)
}

// Info returns the chain configuration, or a disabled zero configuration for
// chains never registered.
func (r *ChainRegistry) Info(chainID uint32) (*store.ChainConfig, error) {
	chain, err := r.tx.Chain(r.ctx, chainID)
	if errors.Is(err, store.ErrNotFound) {
		return &store.ChainConfig{ChainID: chainID, BaseFee: new(uint256.Int)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load chain: %w", err)
	}
	return chain, nil
}

// Fee returns the base fee for a chain whether or not it is enabled.
func (r *ChainRegistry) Fee(chainID uint32) (*uint256.Int, error) {
	chain, err := r.Info(chainID)
	if err != nil {
		return nil, err
	}
	return chain.BaseFee, nil
}

// RequireEnabled returns the chain configuration or ChainNotSupportedError.
func (r *ChainRegistry) RequireEnabled(chainID uint32) (*store.ChainConfig, error) {
	chain, err := r.Info(chainID)
	if err != nil {
		return nil, err
	}
	if !chain.Enabled {
		return nil, ChainNotSupportedError{ChainID: chainID}
	}
	return chain, nil
}
