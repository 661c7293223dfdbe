package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// EventKind is a notification the hub emits after a command commits.
type EventKind int

const (
	// EventInitialized reports the owner and parameters set by Initialize.
	EventInitialized EventKind = iota
	// EventMessageSent reports a new pending message.
	EventMessageSent
	// EventMessageRelayed reports a delivery claim and the reward paid.
	EventMessageRelayed
	// EventMessageChallenged reports a successful fraud proof.
	EventMessageChallenged
	// EventMessageFinalized reports a message confirmed after its window.
	EventMessageFinalized
	// EventRelayerRegistered reports a stake deposit.
	EventRelayerRegistered
	// EventRelayerExited reports a stake withdrawal.
	EventRelayerExited
	// EventRelayerSlashed reports a seized stake.
	EventRelayerSlashed
	// EventChainAdded reports a chain enabled or reconfigured.
	EventChainAdded
	// EventChainDisabled reports a chain disabled.
	EventChainDisabled
	// EventFeesWithdrawn reports a treasury withdrawal.
	EventFeesWithdrawn
	// EventOwnershipTransferred reports a new owner.
	EventOwnershipTransferred
)

var eventNames = map[EventKind]string{
	EventInitialized:          "initialized",
	EventMessageSent:          "message_sent",
	EventMessageRelayed:       "message_relayed",
	EventMessageChallenged:    "message_challenged",
	EventMessageFinalized:     "message_finalized",
	EventRelayerRegistered:    "relayer_registered",
	EventRelayerExited:        "relayer_exited",
	EventRelayerSlashed:       "relayer_slashed",
	EventChainAdded:           "chain_added",
	EventChainDisabled:        "chain_disabled",
	EventFeesWithdrawn:        "fees_withdrawn",
	EventOwnershipTransferred: "ownership_transferred",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event describes what happened in the hub. Field meaning depends on Kind:
//
//   - MessageSent: Account=sender, Target=target, Amount=fee, Data=payload
//   - MessageRelayed: Account=relayer, Amount=reward, Deadline=challenge deadline
//   - MessageChallenged: Account=challenger, Target=relayer, Amount=challenger reward
//   - MessageFinalized: Account=relayer
//   - RelayerRegistered: Account=relayer, Amount=deposit
//   - RelayerExited: Account=relayer, Amount=returned stake
//   - RelayerSlashed: Account=relayer, Amount=seized stake
//   - ChainAdded: Target=receiver, Amount=base fee
//   - FeesWithdrawn: Account=owner, Amount=withdrawn
//   - OwnershipTransferred: Account=previous owner, Target=new owner
//   - Initialized: Account=owner, Amount=min stake, Deadline=challenge period
type Event struct {
	Kind      EventKind
	MessageID uint64
	ChainID   uint32
	Account   common.Address
	Target    common.Address
	Amount    *uint256.Int
	Deadline  uint64
	Data      []byte
	Timestamp uint64
}
