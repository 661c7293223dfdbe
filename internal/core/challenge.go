package core

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/vovakirdan/relayhub/internal/store"
)

// maxDeadline is the largest timestamp the store can order.
const maxDeadline = math.MaxInt64

// ChallengeOutcome describes a successful fraud proof.
type ChallengeOutcome struct {
	Message          *store.Message
	Challenge        *store.Challenge
	SlashedStake     *uint256.Int
	ChallengerReward *uint256.Int
}

// ChallengeManager owns the per-message challenge window.
//
// Timing: a challenge at now == deadline is still accepted (expiry is
// now > deadline) and a finalize at now == deadline is still rejected
// (the window is open while now <= deadline).
type ChallengeManager struct {
	ctx      context.Context
	tx       store.HubTx
	messages *MessageStore
	ledger   *RelayerLedger
	pay      payFunc
}

// Open starts the challenge window for a message entering Relayed.
func (c *ChallengeManager) Open(id uint64, window, now uint64) (*store.Challenge, error) {
	if _, err := c.tx.Challenge(c.ctx, id); err == nil {
		return nil, invariantf("challenge already open for message %d", id)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load challenge: %w", err)
	}

	deadline := uint64(maxDeadline)
	if now <= maxDeadline && window <= maxDeadline-now {
		deadline = now + window
	}

	ch := &store.Challenge{MessageID: id, Deadline: deadline}
	if err := c.tx.InsertChallenge(c.ctx, ch); err != nil {
		return nil, err
	}
	return ch, nil
}

// Get returns the challenge record, or MessageNotFoundError when no window
// was ever opened for id.
func (c *ChallengeManager) Get(id uint64) (*store.Challenge, error) {
	ch, err := c.tx.Challenge(c.ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, MessageNotFoundError{MessageID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("load challenge: %w", err)
	}
	return ch, nil
}

// Challenge resolves the window against the relayer. verify is consulted
// only after every state check has passed.
func (c *ChallengeManager) Challenge(
	id uint64,
	challenger common.Address,
	now uint64,
	verify func(msg *store.Message) bool,
) (*ChallengeOutcome, error) {
	ch, err := c.Get(id)
	if err != nil {
		return nil, err
	}
	if ch.Resolved || now > ch.Deadline {
		return nil, ChallengeExpiredError{MessageID: id, Deadline: ch.Deadline}
	}

	msg, err := c.messages.Get(id)
	if err != nil {
		return nil, err
	}
	if msg.Status != store.StatusRelayed {
		return nil, WrongStatusError{MessageID: id, Expected: store.StatusRelayed, Actual: msg.Status}
	}
	if !verify(msg) {
		return nil, ErrInvalidProof
	}

	ch.Resolved = true
	ch.Challenger = challenger
	if err := c.tx.UpdateChallenge(c.ctx, ch); err != nil {
		return nil, err
	}

	msg, err = c.messages.Transition(id, store.StatusRelayed, store.StatusFailed, common.Address{})
	if err != nil {
		return nil, err
	}

	stake, reward, err := c.ledger.Slash(msg.Relayer, ChallengerRewardBps)
	if err != nil {
		return nil, err
	}
	if err := c.pay(challenger, reward, store.PayoutChallengerReward, id); err != nil {
		return nil, err
	}

	return &ChallengeOutcome{
		Message:          msg,
		Challenge:        ch,
		SlashedStake:     stake,
		ChallengerReward: reward,
	}, nil
}

// Finalize closes the window in the relayer's favour. No value moves: the
// reward was paid when delivery was confirmed.
func (c *ChallengeManager) Finalize(id uint64, now uint64) (*store.Message, error) {
	ch, err := c.Get(id)
	if err != nil {
		return nil, err
	}

	msg, err := c.messages.Get(id)
	if err != nil {
		return nil, err
	}
	if ch.Resolved {
		return nil, WrongStatusError{MessageID: id, Expected: store.StatusRelayed, Actual: msg.Status}
	}
	if now <= ch.Deadline {
		return nil, ChallengeWindowOpenError{MessageID: id, Deadline: ch.Deadline}
	}
	if msg.Status != store.StatusRelayed {
		return nil, WrongStatusError{MessageID: id, Expected: store.StatusRelayed, Actual: msg.Status}
	}

	ch.Resolved = true
	if err := c.tx.UpdateChallenge(c.ctx, ch); err != nil {
		return nil, err
	}

	msg, err = c.messages.Transition(id, store.StatusRelayed, store.StatusConfirmed, common.Address{})
	if err != nil {
		return nil, err
	}
	if err := c.ledger.RecordSuccess(msg.Relayer); err != nil {
		return nil, err
	}
	return msg, nil
}
