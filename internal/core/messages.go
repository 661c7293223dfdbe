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

// transitions lists every legal status move.
var transitions = map[store.MessageStatus][]store.MessageStatus{
	store.StatusPending: {store.StatusRelayed},
	store.StatusRelayed: {store.StatusConfirmed, store.StatusFailed},
}

func allowed(from, to store.MessageStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// MessageStore is the authoritative record of submitted messages.
type MessageStore struct {
	ctx     context.Context
	tx      store.HubTx
	globals *store.Globals
}

// Create assigns the next nonce and stores a pending message.
func (m *MessageStore) Create(
	sender common.Address,
	chainID uint32,
	target common.Address,
	data []byte,
	fee *uint256.Int,
	now uint64,
) (*store.Message, error) {
	if m.globals.Nonce == math.MaxInt64 {
		return nil, invariantf("message nonce exhausted")
	}
	m.globals.Nonce++

	msg := &store.Message{
		ID:               m.globals.Nonce,
		Sender:           sender,
		DestinationChain: chainID,
		Target:           target,
		Data:             append([]byte(nil), data...),
		CreatedAt:        now,
		FeePaid:          fee.Clone(),
		Status:           store.StatusPending,
	}
	if err := m.tx.PutMessage(m.ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Get returns a message or MessageNotFoundError.
func (m *MessageStore) Get(id uint64) (*store.Message, error) {
	msg, err := m.tx.Message(m.ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, MessageNotFoundError{MessageID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("load message: %w", err)
	}
	return msg, nil
}

// Transition moves a message from one status to the next. relayer is
// recorded only when entering Relayed.
func (m *MessageStore) Transition(id uint64, from, to store.MessageStatus, relayer common.Address) (*store.Message, error) {
	msg, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if msg.Status != from {
		return nil, WrongStatusError{MessageID: id, Expected: from, Actual: msg.Status}
	}
	if !allowed(from, to) {
		return nil, invariantf("illegal transition %s -> %s for message %d", from, to, id)
	}

	msg.Status = to
	if to == store.StatusRelayed {
		msg.Relayer = relayer
	}
	if err := m.tx.PutMessage(m.ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
