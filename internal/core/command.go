package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// CommandKind describes what the caller wants to do.
type CommandKind int

const (
	// CommandInitialize sets the owner, minimum stake and challenge period once.
	CommandInitialize CommandKind = iota
	// CommandSendMessage submits a message with a fee.
	CommandSendMessage
	// CommandConfirmDelivery claims delivery of a pending message.
	CommandConfirmDelivery
	// CommandChallengeMessage disputes a relayed message with a fraud proof.
	CommandChallengeMessage
	// CommandFinalizeMessage confirms a relayed message after its window.
	CommandFinalizeMessage
	// CommandRegisterRelayer deposits stake and activates the caller.
	CommandRegisterRelayer
	// CommandExitRelayer returns the caller's stake and deactivates it.
	CommandExitRelayer
	// CommandAddChain enables or reconfigures a destination chain.
	CommandAddChain
	// CommandDisableChain disables a destination chain.
	CommandDisableChain
	// CommandWithdrawFees pays treasury funds to the owner.
	CommandWithdrawFees
	// CommandTransferOwnership hands the owner role to another address.
	CommandTransferOwnership
)

var commandNames = map[CommandKind]string{
	CommandInitialize:        "initialize",
	CommandSendMessage:       "send_message",
	CommandConfirmDelivery:   "confirm_delivery",
	CommandChallengeMessage:  "challenge_message",
	CommandFinalizeMessage:   "finalize_message",
	CommandRegisterRelayer:   "register_relayer",
	CommandExitRelayer:       "exit_relayer",
	CommandAddChain:          "add_chain",
	CommandDisableChain:      "disable_chain",
	CommandWithdrawFees:      "withdraw_fees",
	CommandTransferOwnership: "transfer_ownership",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return "unknown"
}

// Command represents an operation requested by an authenticated caller.
// Only the fields relevant to Kind are read.
type Command struct {
	Kind   CommandKind
	Caller common.Address
	Value  *uint256.Int // attached value for send/register

	MessageID uint64
	ChainID   uint32
	Target    common.Address
	Data      []byte
	Proof     []byte

	Receiver common.Address
	BaseFee  *uint256.Int
	Amount   *uint256.Int
	NewOwner common.Address

	MinStake        *uint256.Int
	ChallengePeriod uint64
}

// Result is the outcome of a command.
type Result struct {
	MessageID uint64 // set by CommandSendMessage
	Err       error
}
