package core

import (
	"context"
	"time"

	"github.com/holiman/uint256"

	"github.com/vovakirdan/relayhub/internal/store"
)

// Transferer abstracts the value-transfer primitive for the Hub.
// A transfer must be all-or-nothing: either the full amount reaches the
// recipient or an error is returned. The hub calls Transfer inside the
// command's transaction so implementations that persist through tx commit or
// roll back together with the state change.
type Transferer interface {
	Transfer(ctx context.Context, tx store.HubTx, p *store.Payout) error
}

// ProofVerifier abstracts proof checking. Both methods are pure: they must not
// mutate msg and must return the same answer for the same input.
type ProofVerifier interface {
	// VerifyExecution reports whether proof shows msg was delivered.
	VerifyExecution(msg *store.Message, proof []byte) bool

	// VerifyFraud reports whether proof shows the claimed delivery was false.
	VerifyFraud(msg *store.Message, proof []byte) bool
}

// Metrics receives per-command measurements.
type Metrics interface {
	// CommandCompleted records a command outcome. result is "ok", a domain
	// error code, or "internal".
	CommandCompleted(command string, result string, duration time.Duration)

	// TreasuryBalance records the balance after a committed command.
	TreasuryBalance(balance *uint256.Int)
}

type nopMetrics struct{}

func (nopMetrics) CommandCompleted(string, string, time.Duration) {}
func (nopMetrics) TreasuryBalance(*uint256.Int)                   {}
