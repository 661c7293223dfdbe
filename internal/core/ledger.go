package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/vovakirdan/relayhub/internal/store"
)

const (
	bpsDenominator = 10_000

	// RelayerRewardBps is the share of a message fee paid to its relayer.
	RelayerRewardBps = 8_000
	// ChallengerRewardBps is the share of a slashed stake paid to the challenger.
	ChallengerRewardBps = 1_000
)

// bpsShare returns floor(amount * bps / 10000). The remainder stays with the
// caller of bpsShare (the treasury, in every use).
func bpsShare(amount *uint256.Int, bps uint64) *uint256.Int {
	share, _ := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(bps), uint256.NewInt(bpsDenominator))
	return share
}

// payFunc moves value out of the hub within the current command.
type payFunc func(to common.Address, amount *uint256.Int, reason store.PayoutReason, messageID uint64) error

// RelayerLedger tracks relayer stake, activity and counters.
type RelayerLedger struct {
	ctx      context.Context
	tx       store.HubTx
	globals  *store.Globals
	treasury *FeeTreasury
	pay      payFunc
}

// Get returns relayer info, or an inactive zero record for unknown addresses.
func (l *RelayerLedger) Get(addr common.Address) (*store.RelayerInfo, error) {
	info, err := l.tx.Relayer(l.ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return &store.RelayerInfo{Address: addr, Stake: new(uint256.Int)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load relayer: %w", err)
	}
	return info, nil
}

// RequireActive returns relayer info or RelayerNotActiveError.
func (l *RelayerLedger) RequireActive(addr common.Address) (*store.RelayerInfo, error) {
	info, err := l.Get(addr)
	if err != nil {
		return nil, err
	}
	if !info.Active {
		return nil, RelayerNotActiveError{Relayer: addr}
	}
	return info, nil
}

// Register adds value to the caller's stake and activates it. Top-ups are
// allowed; every deposit must meet the minimum on its own.
func (l *RelayerLedger) Register(caller common.Address, value *uint256.Int) (*store.RelayerInfo, error) {
	if value.Lt(l.globals.MinStake) {
		return nil, InsufficientStakeError{
			Required: l.globals.MinStake.Clone(),
			Provided: value.Clone(),
		}
	}

	info, err := l.Get(caller)
	if err != nil {
		return nil, err
	}
	stake, overflow := new(uint256.Int).AddOverflow(info.Stake, value)
	if overflow {
		return nil, invariantf("stake of %s overflows", caller.Hex())
	}
	info.Stake = stake
	info.Active = true

	if err := l.tx.PutRelayer(l.ctx, info); err != nil {
		return nil, err
	}
	return info, nil
}

// Exit deactivates the caller and returns its full stake. The stake is
// zeroed before the transfer; a failed transfer aborts the whole command.
func (l *RelayerLedger) Exit(caller common.Address) (*uint256.Int, error) {
	info, err := l.RequireActive(caller)
	if err != nil {
		return nil, err
	}

	returned := info.Stake
	info.Stake = new(uint256.Int)
	info.Active = false
	if err := l.tx.PutRelayer(l.ctx, info); err != nil {
		return nil, err
	}

	if err := l.pay(caller, returned, store.PayoutStakeReturn, 0); err != nil {
		return nil, err
	}
	return returned, nil
}

// Slash seizes the relayer's whole stake and deactivates it. It returns the
// seized stake and the challenger's share; the remainder is credited to the
// treasury. Paying the challenger is left to the caller.
func (l *RelayerLedger) Slash(relayer common.Address, challengerBps uint64) (stake, challengerReward *uint256.Int, err error) {
	info, err := l.Get(relayer)
	if err != nil {
		return nil, nil, err
	}

	stake = info.Stake
	info.Stake = new(uint256.Int)
	info.Active = false
	info.Slashed++
	if err := l.tx.PutRelayer(l.ctx, info); err != nil {
		return nil, nil, err
	}

	challengerReward = bpsShare(stake, challengerBps)
	remainder := new(uint256.Int).Sub(stake, challengerReward)
	if err := l.treasury.Credit(remainder); err != nil {
		return nil, nil, err
	}
	return stake, challengerReward, nil
}

// Reward pays the relayer its share of base out of the treasury and counts
// the relay. A treasury that cannot cover the share rejects the command
// with TreasuryShortfallError.
func (l *RelayerLedger) Reward(relayer common.Address, rewardBps uint64, base *uint256.Int, messageID uint64) (*uint256.Int, error) {
	reward := bpsShare(base, rewardBps)
	if balance := l.treasury.Balance(); balance.Lt(reward) {
		return nil, TreasuryShortfallError{Required: reward, Available: balance}
	}

	info, err := l.Get(relayer)
	if err != nil {
		return nil, err
	}
	info.TotalRelayed++
	if err := l.tx.PutRelayer(l.ctx, info); err != nil {
		return nil, err
	}

	if err := l.treasury.Debit(reward); err != nil {
		return nil, err
	}
	if err := l.pay(relayer, reward, store.PayoutRelayerReward, messageID); err != nil {
		return nil, err
	}
	return reward, nil
}

// RecordSuccess increments the relayer's successful counter.
func (l *RelayerLedger) RecordSuccess(relayer common.Address) error {
	info, err := l.Get(relayer)
	if err != nil {
		return err
	}
	info.Successful++
	return l.tx.PutRelayer(l.ctx, info)
}
