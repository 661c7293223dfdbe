package core

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/vovakirdan/relayhub/internal/store"
)

// session is the state of one command: its transaction, the globals loaded
// at the start, the components bound to both, and the events to publish
// after commit.
type session struct {
	ctx      context.Context
	tx       store.HubTx
	now      uint64
	globals  *store.Globals
	transfer Transferer
	verifier ProofVerifier
	events   []*Event

	chains     *ChainRegistry
	relayers   *RelayerLedger
	messages   *MessageStore
	challenges *ChallengeManager
	treasury   *FeeTreasury
}

func newSession(ctx context.Context, tx store.HubTx, now uint64, transfer Transferer, verifier ProofVerifier) (*session, error) {
	g, err := tx.Globals(ctx)
	if err != nil {
		return nil, fmt.Errorf("load globals: %w", err)
	}

	s := &session{
		ctx:      ctx,
		tx:       tx,
		now:      now,
		globals:  g,
		transfer: transfer,
		verifier: verifier,
	}
	s.treasury = &FeeTreasury{globals: g}
	s.chains = &ChainRegistry{ctx: ctx, tx: tx, globals: g}
	s.messages = &MessageStore{ctx: ctx, tx: tx, globals: g}
	s.relayers = &RelayerLedger{ctx: ctx, tx: tx, globals: g, treasury: s.treasury, pay: s.pay}
	s.challenges = &ChallengeManager{ctx: ctx, tx: tx, messages: s.messages, ledger: s.relayers, pay: s.pay}
	return s, nil
}

// pay hands value to the transfer primitive. Zero amounts are skipped.
func (s *session) pay(to common.Address, amount *uint256.Int, reason store.PayoutReason, messageID uint64) error {
	if amount.IsZero() {
		return nil
	}
	p := &store.Payout{
		Recipient: to,
		Amount:    amount.Clone(),
		Reason:    reason,
		MessageID: messageID,
		CreatedAt: s.now,
	}
	if err := s.transfer.Transfer(s.ctx, s.tx, p); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return nil
}

func (s *session) emit(ev *Event) {
	ev.Timestamp = s.now
	s.events = append(s.events, ev)
}

func (s *session) initialized() bool {
	return s.globals.Owner != (common.Address{})
}

func (s *session) requireOwner(caller common.Address) error {
	if caller != s.globals.Owner {
		return UnauthorizedError{Caller: caller}
	}
	return nil
}

// flush writes the globals back. It runs last so every component sees the
// same in-memory copy during the command.
func (s *session) flush() error {
	return s.tx.PutGlobals(s.ctx, s.globals)
}

func (s *session) apply(cmd *Command) (Result, error) {
	if cmd.Kind != CommandInitialize && !s.initialized() {
		return Result{}, ErrNotInitialized
	}

	switch cmd.Kind {
	case CommandInitialize:
		return Result{}, s.initialize(cmd)
	case CommandSendMessage:
		id, err := s.sendMessage(cmd)
		return Result{MessageID: id}, err
	case CommandConfirmDelivery:
		return Result{}, s.confirmDelivery(cmd)
	case CommandChallengeMessage:
		return Result{}, s.challengeMessage(cmd)
	case CommandFinalizeMessage:
		return Result{}, s.finalizeMessage(cmd)
	case CommandRegisterRelayer:
		return Result{}, s.registerRelayer(cmd)
	case CommandExitRelayer:
		return Result{}, s.exitRelayer(cmd)
	case CommandAddChain:
		return Result{}, s.addChain(cmd)
	case CommandDisableChain:
		return Result{}, s.disableChain(cmd)
	case CommandWithdrawFees:
		return Result{}, s.withdrawFees(cmd)
	case CommandTransferOwnership:
		return Result{}, s.transferOwnership(cmd)
	default:
		return Result{}, fmt.Errorf("unknown command kind %d", cmd.Kind)
	}
}

func (s *session) initialize(cmd *Command) error {
	if s.initialized() {
		return ErrAlreadyInitialized
	}
	if cmd.Caller == (common.Address{}) {
		return ErrZeroAddress
	}

	s.globals.Owner = cmd.Caller
	s.globals.MinStake = amountOrZero(cmd.MinStake)
	s.globals.ChallengePeriod = cmd.ChallengePeriod

	s.emit(&Event{
		Kind:     EventInitialized,
		Account:  cmd.Caller,
		Amount:   s.globals.MinStake.Clone(),
		Deadline: cmd.ChallengePeriod,
	})
	return nil
}

func (s *session) sendMessage(cmd *Command) (uint64, error) {
	chain, err := s.chains.RequireEnabled(cmd.ChainID)
	if err != nil {
		return 0, err
	}
	value := amountOrZero(cmd.Value)
	if value.Lt(chain.BaseFee) {
		return 0, InsufficientFeeError{Required: chain.BaseFee.Clone(), Provided: value}
	}

	msg, err := s.messages.Create(cmd.Caller, cmd.ChainID, cmd.Target, cmd.Data, value, s.now)
	if err != nil {
		return 0, err
	}
	if err := s.treasury.Credit(value); err != nil {
		return 0, err
	}

	s.emit(&Event{
		Kind:      EventMessageSent,
		MessageID: msg.ID,
		ChainID:   msg.DestinationChain,
		Account:   msg.Sender,
		Target:    msg.Target,
		Amount:    value.Clone(),
		Data:      msg.Data,
	})
	return msg.ID, nil
}

func (s *session) confirmDelivery(cmd *Command) error {
	if _, err := s.relayers.RequireActive(cmd.Caller); err != nil {
		return err
	}
	msg, err := s.messages.Get(cmd.MessageID)
	if err != nil {
		return err
	}
	if msg.Status != store.StatusPending {
		return WrongStatusError{MessageID: msg.ID, Expected: store.StatusPending, Actual: msg.Status}
	}
	if !s.verifier.VerifyExecution(msg, cmd.Proof) {
		return ErrInvalidProof
	}

	msg, err = s.messages.Transition(msg.ID, store.StatusPending, store.StatusRelayed, cmd.Caller)
	if err != nil {
		return err
	}
	ch, err := s.challenges.Open(msg.ID, s.globals.ChallengePeriod, s.now)
	if err != nil {
		return err
	}
	reward, err := s.relayers.Reward(cmd.Caller, RelayerRewardBps, msg.FeePaid, msg.ID)
	if err != nil {
		return err
	}

	s.emit(&Event{
		Kind:      EventMessageRelayed,
		MessageID: msg.ID,
		ChainID:   msg.DestinationChain,
		Account:   cmd.Caller,
		Amount:    reward,
		Deadline:  ch.Deadline,
	})
	return nil
}

func (s *session) challengeMessage(cmd *Command) error {
	if _, err := s.messages.Get(cmd.MessageID); err != nil {
		return err
	}

	verify := func(msg *store.Message) bool {
		return s.verifier.VerifyFraud(msg, cmd.Proof)
	}
	out, err := s.challenges.Challenge(cmd.MessageID, cmd.Caller, s.now, verify)
	if err != nil {
		return err
	}

	s.emit(&Event{
		Kind:      EventMessageChallenged,
		MessageID: out.Message.ID,
		ChainID:   out.Message.DestinationChain,
		Account:   cmd.Caller,
		Target:    out.Message.Relayer,
		Amount:    out.ChallengerReward,
		Deadline:  out.Challenge.Deadline,
	})
	s.emit(&Event{
		Kind:      EventRelayerSlashed,
		MessageID: out.Message.ID,
		Account:   out.Message.Relayer,
		Amount:    out.SlashedStake,
	})
	return nil
}

func (s *session) finalizeMessage(cmd *Command) error {
	if _, err := s.messages.Get(cmd.MessageID); err != nil {
		return err
	}
	msg, err := s.challenges.Finalize(cmd.MessageID, s.now)
	if err != nil {
		return err
	}

	s.emit(&Event{
		Kind:      EventMessageFinalized,
		MessageID: msg.ID,
		ChainID:   msg.DestinationChain,
		Account:   msg.Relayer,
	})
	return nil
}

func (s *session) registerRelayer(cmd *Command) error {
	value := amountOrZero(cmd.Value)
	if _, err := s.relayers.Register(cmd.Caller, value); err != nil {
		return err
	}

	s.emit(&Event{
		Kind:    EventRelayerRegistered,
		Account: cmd.Caller,
		Amount:  value,
	})
	return nil
}

func (s *session) exitRelayer(cmd *Command) error {
	returned, err := s.relayers.Exit(cmd.Caller)
	if err != nil {
		return err
	}

	s.emit(&Event{
		Kind:    EventRelayerExited,
		Account: cmd.Caller,
		Amount:  returned,
	})
	return nil
}

func (s *session) addChain(cmd *Command) error {
	if err := s.requireOwner(cmd.Caller); err != nil {
		return err
	}
	chain, err := s.chains.Add(cmd.ChainID, cmd.Receiver, amountOrZero(cmd.BaseFee))
	if err != nil {
		return err
	}

	s.emit(&Event{
		Kind:    EventChainAdded,
		ChainID: chain.ChainID,
		Account: cmd.Caller,
		Target:  chain.Receiver,
		Amount:  chain.BaseFee.Clone(),
	})
	return nil
}

func (s *session) disableChain(cmd *Command) error {
	if err := s.requireOwner(cmd.Caller); err != nil {
		return err
	}
	if err := s.chains.Disable(cmd.ChainID); err != nil {
		return err
	}

	s.emit(&Event{
		Kind:    EventChainDisabled,
		ChainID: cmd.ChainID,
		Account: cmd.Caller,
	})
	return nil
}

func (s *session) withdrawFees(cmd *Command) error {
	if err := s.requireOwner(cmd.Caller); err != nil {
		return err
	}
	amount := amountOrZero(cmd.Amount)
	if err := s.treasury.Withdraw(amount); err != nil {
		return err
	}
	if err := s.pay(cmd.Caller, amount, store.PayoutFeeWithdrawal, 0); err != nil {
		return err
	}

	s.emit(&Event{
		Kind:    EventFeesWithdrawn,
		Account: cmd.Caller,
		Amount:  amount,
	})
	return nil
}

func (s *session) transferOwnership(cmd *Command) error {
	if err := s.requireOwner(cmd.Caller); err != nil {
		return err
	}
	if cmd.NewOwner == (common.Address{}) {
		return ErrZeroAddress
	}

	prev := s.globals.Owner
	s.globals.Owner = cmd.NewOwner

	s.emit(&Event{
		Kind:    EventOwnershipTransferred,
		Account: prev,
		Target:  cmd.NewOwner,
	})
	return nil
}

func amountOrZero(a *uint256.Int) *uint256.Int {
	if a == nil {
		return new(uint256.Int)
	}
	return a.Clone()
}
