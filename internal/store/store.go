package store

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrNotFound is returned by lookups when no record exists for the key.
var ErrNotFound = errors.New("record not found")

// MessageStatus is the lifecycle state of a relayed message.
type MessageStatus uint8

const (
	StatusPending MessageStatus = iota
	StatusRelayed
	StatusConfirmed
	StatusFailed
)

func (s MessageStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRelayed:
		return "relayed"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Message represents a submitted cross-chain message.
type Message struct {
	ID               uint64
	Sender           common.Address
	DestinationChain uint32
	Target           common.Address
	Data             []byte
	CreatedAt        uint64 // Unix seconds from the hub clock
	FeePaid          *uint256.Int
	Status           MessageStatus
	Relayer          common.Address // zero until relayed
}

// ChainConfig describes a destination chain.
type ChainConfig struct {
	ChainID  uint32
	Enabled  bool
	Receiver common.Address
	BaseFee  *uint256.Int
}

// RelayerInfo holds a relayer's stake and performance counters.
type RelayerInfo struct {
	Address      common.Address
	Active       bool
	Stake        *uint256.Int
	TotalRelayed uint64
	Successful   uint64
	Slashed      uint64
}

// Challenge is the per-message dispute record opened when a message is relayed.
type Challenge struct {
	MessageID  uint64
	Challenger common.Address
	Deadline   uint64
	Resolved   bool
}

// Globals holds the hub-wide scalars.
type Globals struct {
	Owner           common.Address
	Nonce           uint64
	MinStake        *uint256.Int
	ChallengePeriod uint64
	TreasuryBalance *uint256.Int
	EnabledChains   uint64
}

// PayoutReason tags why value left the hub.
type PayoutReason string

const (
	PayoutRelayerReward    PayoutReason = "relayer_reward"
	PayoutChallengerReward PayoutReason = "challenger_reward"
	PayoutStakeReturn      PayoutReason = "stake_return"
	PayoutFeeWithdrawal    PayoutReason = "fee_withdrawal"
)

// Payout records value credited to an external account.
type Payout struct {
	ID        string
	Recipient common.Address
	Amount    *uint256.Int
	Reason    PayoutReason
	MessageID uint64 // 0 when not tied to a message
	CreatedAt uint64
}

// HubTx exposes hub state inside a single transaction.
// Writes become visible to other transactions only after commit.
type HubTx interface {
	// Globals returns the hub scalars. A fresh store returns zero values.
	Globals(ctx context.Context) (*Globals, error)
	PutGlobals(ctx context.Context, g *Globals) error

	// Message returns ErrNotFound if the id was never assigned.
	Message(ctx context.Context, id uint64) (*Message, error)
	PutMessage(ctx context.Context, msg *Message) error

	// Chain returns ErrNotFound for chains never configured.
	Chain(ctx context.Context, chainID uint32) (*ChainConfig, error)
	PutChain(ctx context.Context, chain *ChainConfig) error

	// Relayer returns ErrNotFound for addresses that never registered.
	Relayer(ctx context.Context, addr common.Address) (*RelayerInfo, error)
	PutRelayer(ctx context.Context, info *RelayerInfo) error

	// Challenge returns ErrNotFound when no challenge was opened for the message.
	Challenge(ctx context.Context, messageID uint64) (*Challenge, error)
	// InsertChallenge fails if a challenge already exists for the message.
	InsertChallenge(ctx context.Context, ch *Challenge) error
	UpdateChallenge(ctx context.Context, ch *Challenge) error
	// ListExpiredChallenges returns ids of unresolved challenges with deadline < now.
	ListExpiredChallenges(ctx context.Context, now uint64, limit int) ([]uint64, error)

	// AddPayout appends a payout record.
	AddPayout(ctx context.Context, p *Payout) error
	// PayoutTotal sums all payouts credited to addr.
	PayoutTotal(ctx context.Context, addr common.Address) (*uint256.Int, error)
}

// HubStore runs functions against hub state with all-or-nothing semantics.
type HubStore interface {
	// Update runs fn in a read-write transaction. The transaction commits only
	// if fn returns nil; any error rolls back every write made by fn.
	Update(ctx context.Context, fn func(tx HubTx) error) error

	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(tx HubTx) error) error
}

// LoginStore handles one-time login nonces for signature authentication.
type LoginStore interface {
	// PutLoginNonce stores a nonce for addr, replacing any previous one.
	PutLoginNonce(ctx context.Context, addr common.Address, nonce string, expiresAt int64) error

	// TakeLoginNonce returns and deletes the nonce for addr.
	// Returns ErrNotFound if none is stored.
	TakeLoginNonce(ctx context.Context, addr common.Address) (nonce string, expiresAt int64, err error)
}

// Store aggregates all storage interfaces.
type Store interface {
	HubStore
	LoginStore

	// Close closes the underlying database connection.
	Close() error
}
