package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/relayhub/internal/payout"
	"github.com/vovakirdan/relayhub/internal/proof/prooftest"
	"github.com/vovakirdan/relayhub/internal/store"
	"github.com/vovakirdan/relayhub/internal/store/sqlite"
)

var (
	owner      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	sender     = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	relayer    = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	challenger = common.HexToAddress("0x00000000000000000000000000000000000000a4")
	receiver   = common.HexToAddress("0x00000000000000000000000000000000000000a5")
	stranger   = common.HexToAddress("0x00000000000000000000000000000000000000a6")
	target     = common.HexToAddress("0x00000000000000000000000000000000000000a7")
)

const (
	testChain   uint32 = 10
	startTime   uint64 = 1_000
	testPeriod  uint64 = 3_600
	testBaseFee uint64 = 10
	testStake   uint64 = 100
)

// switchTransferer records payouts through the real ledger until fail is set.
type switchTransferer struct {
	next Transferer
	fail atomic.Bool
}

func (s *switchTransferer) Transfer(ctx context.Context, tx store.HubTx, p *store.Payout) error {
	if s.fail.Load() {
		return errors.New("recipient rejected transfer")
	}
	return s.next.Transfer(ctx, tx, p)
}

type testEnv struct {
	ctx      context.Context
	hub      *Hub
	clock    *ManualClock
	transfer *switchTransferer
}

func newTestEnv(t testing.TB) *testEnv {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := NewManualClock(startTime)
	transfer := &switchTransferer{next: payout.NewLedger(nil)}
	hub, err := NewHub(Deps{
		Store:      st,
		Verifier:   prooftest.Placeholder{},
		Transferer: transfer,
		Clock:      clock,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	return &testEnv{ctx: context.Background(), hub: hub, clock: clock, transfer: transfer}
}

// newReadyEnv returns a hub owned by owner with testChain enabled.
func newReadyEnv(t testing.TB) *testEnv {
	t.Helper()

	env := newTestEnv(t)
	require.NoError(t, env.hub.Initialize(env.ctx, owner, amount(testStake), testPeriod))
	require.NoError(t, env.hub.AddChain(env.ctx, owner, testChain, receiver, amount(testBaseFee)))
	return env
}

func amount(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

func (e *testEnv) send(t testing.TB, fee uint64) uint64 {
	t.Helper()
	id, err := e.hub.SendMessage(e.ctx, sender, testChain, target, []byte("payload"), amount(fee))
	require.NoError(t, err)
	return id
}

// relayed sends a message and has relayer confirm it.
func (e *testEnv) relayed(t testing.TB, fee uint64) uint64 {
	t.Helper()
	id := e.send(t, fee)
	info, err := e.hub.Relayer(e.ctx, relayer)
	require.NoError(t, err)
	if !info.Active {
		require.NoError(t, e.hub.RegisterRelayer(e.ctx, relayer, amount(testStake)))
	}
	require.NoError(t, e.hub.ConfirmDelivery(e.ctx, relayer, id, prooftest.Valid()))
	return id
}

func (e *testEnv) treasury(t testing.TB) uint64 {
	t.Helper()
	info, err := e.hub.Info(e.ctx)
	require.NoError(t, err)
	return info.TreasuryBalance.Uint64()
}

func (e *testEnv) paid(t testing.TB, addr common.Address) uint64 {
	t.Helper()
	total, err := e.hub.PayoutTotal(e.ctx, addr)
	require.NoError(t, err)
	return total.Uint64()
}

func (e *testEnv) status(t testing.TB, id uint64) store.MessageStatus {
	t.Helper()
	msg, err := e.hub.Message(e.ctx, id)
	require.NoError(t, err)
	return msg.Status
}

func requireCode(t testing.TB, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, ErrorCode(err), "unexpected error: %v", err)
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}
