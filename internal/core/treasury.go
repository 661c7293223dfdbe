package core

import (
	"github.com/holiman/uint256"

	"github.com/vovakirdan/relayhub/internal/store"
)

// FeeTreasury tracks the protocol fee balance held in the hub globals.
type FeeTreasury struct {
	globals *store.Globals
}

// Balance returns a copy of the current balance.
func (t *FeeTreasury) Balance() *uint256.Int {
	return t.globals.TreasuryBalance.Clone()
}

// Credit adds amount to the balance.
func (t *FeeTreasury) Credit(amount *uint256.Int) error {
	sum, overflow := new(uint256.Int).AddOverflow(t.globals.TreasuryBalance, amount)
	if overflow {
		return invariantf("treasury credit of %s overflows", amount.Dec())
	}
	t.globals.TreasuryBalance = sum
	return nil
}

// Debit subtracts amount from the balance. Callers must never debit more
// than the balance; doing so aborts the command.
func (t *FeeTreasury) Debit(amount *uint256.Int) error {
	if t.globals.TreasuryBalance.Lt(amount) {
		return invariantf("treasury debit of %s exceeds balance %s", amount.Dec(), t.globals.TreasuryBalance.Dec())
	}
	t.globals.TreasuryBalance = new(uint256.Int).Sub(t.globals.TreasuryBalance, amount)
	return nil
}

// Withdraw debits amount for an owner withdrawal. The shortfall is reported
// with the fee-shortfall kind: Required is the request, Provided the balance.
func (t *FeeTreasury) Withdraw(amount *uint256.Int) error {
	if amount.Gt(t.globals.TreasuryBalance) {
		return InsufficientFeeError{
			Required: amount.Clone(),
			Provided: t.globals.TreasuryBalance.Clone(),
		}
	}
	return t.Debit(amount)
}
