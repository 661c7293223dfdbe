// Package payout records value leaving the hub.
//
// Payouts follow a pull model: the hub credits a recipient by appending a
// payout row in the same transaction as the state change that caused it.
// Settlement to external accounts reads these rows later.
package payout

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/relayhub/internal/store"
)

// ErrZeroRecipient is returned for payouts addressed to the zero address.
var ErrZeroRecipient = errors.New("payout recipient is the zero address")

// Ledger implements core.Transferer on top of the payouts table.
type Ledger struct {
	log   *zerolog.Logger
	newID func() string
}

// NewLedger creates a payout ledger. logger may be nil.
func NewLedger(logger *zerolog.Logger) *Ledger {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Ledger{log: logger, newID: uuid.NewString}
}

// Transfer appends p within tx. It fails, and so aborts the command, when the
// recipient is the zero address or the row cannot be written.
func (l *Ledger) Transfer(ctx context.Context, tx store.HubTx, p *store.Payout) error {
	if p.Recipient == (common.Address{}) {
		return ErrZeroRecipient
	}
	if p.Amount == nil || p.Amount.IsZero() {
		return nil
	}
	if p.ID == "" {
		p.ID = l.newID()
	}

	if err := tx.AddPayout(ctx, p); err != nil {
		return fmt.Errorf("record payout: %w", err)
	}

	l.log.Debug().
		Str("payout_id", p.ID).
		Str("recipient", p.Recipient.Hex()).
		Str("amount", p.Amount.Dec()).
		Str("reason", string(p.Reason)).
		Uint64("message_id", p.MessageID).
		Msg("payout recorded")
	return nil
}
