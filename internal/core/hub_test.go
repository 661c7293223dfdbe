package core

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/relayhub/internal/proof/prooftest"
	"github.com/vovakirdan/relayhub/internal/store"
)

func TestRelayRewardSplit(t *testing.T) {
	env := newReadyEnv(t)

	id := env.send(t, 10)
	require.Equal(t, uint64(1), id)
	require.Equal(t, uint64(10), env.treasury(t))
	require.Equal(t, store.StatusPending, env.status(t, id))

	require.NoError(t, env.hub.RegisterRelayer(env.ctx, relayer, amount(testStake)))
	require.NoError(t, env.hub.ConfirmDelivery(env.ctx, relayer, id, prooftest.Valid()))

	require.Equal(t, uint64(2), env.treasury(t))
	require.Equal(t, uint64(8), env.paid(t, relayer))

	msg, err := env.hub.Message(env.ctx, id)
	require.NoError(t, err)
	require.Equal(t, store.StatusRelayed, msg.Status)
	require.Equal(t, relayer, msg.Relayer)

	ch, err := env.hub.Challenge(env.ctx, id)
	require.NoError(t, err)
	require.Equal(t, startTime+testPeriod, ch.Deadline)
	require.False(t, ch.Resolved)

	info, err := env.hub.Relayer(env.ctx, relayer)
	require.NoError(t, err)
	require.Equal(t, uint64(1), info.TotalRelayed)
	require.Equal(t, uint64(0), info.Successful)
}

func TestRewardRoundsDown(t *testing.T) {
	env := newReadyEnv(t)

	id := env.relayed(t, 13)
	require.NotZero(t, id)

	// floor(13 * 8000 / 10000) = 10
	require.Equal(t, uint64(10), env.paid(t, relayer))
	require.Equal(t, uint64(3), env.treasury(t))
}

func TestChallengeSlashesRelayer(t *testing.T) {
	env := newReadyEnv(t)
	id := env.relayed(t, 10)

	require.NoError(t, env.hub.ChallengeMessage(env.ctx, challenger, id, prooftest.Valid()))

	require.Equal(t, store.StatusFailed, env.status(t, id))
	require.Equal(t, uint64(10), env.paid(t, challenger))
	require.Equal(t, uint64(2+90), env.treasury(t))

	info, err := env.hub.Relayer(env.ctx, relayer)
	require.NoError(t, err)
	require.False(t, info.Active)
	require.True(t, info.Stake.IsZero())
	require.Equal(t, uint64(1), info.Slashed)

	ch, err := env.hub.Challenge(env.ctx, id)
	require.NoError(t, err)
	require.True(t, ch.Resolved)
	require.Equal(t, challenger, ch.Challenger)

	// The window is closed once resolved.
	requireCode(t, env.hub.ChallengeMessage(env.ctx, stranger, id, prooftest.Valid()), ErrCodeChallengeExpired)
	env.clock.Advance(testPeriod + 1)
	requireCode(t, env.hub.FinalizeMessage(env.ctx, stranger, id), ErrCodeWrongStatus)
}

func TestChallengeWindowBoundaries(t *testing.T) {
	t.Run("challenge accepted at deadline", func(t *testing.T) {
		env := newReadyEnv(t)
		id := env.relayed(t, 10)

		env.clock.Set(startTime + testPeriod)
		require.NoError(t, env.hub.ChallengeMessage(env.ctx, challenger, id, prooftest.Valid()))
	})

	t.Run("challenge rejected after deadline", func(t *testing.T) {
		env := newReadyEnv(t)
		id := env.relayed(t, 10)

		env.clock.Set(startTime + testPeriod + 1)
		requireCode(t, env.hub.ChallengeMessage(env.ctx, challenger, id, prooftest.Valid()), ErrCodeChallengeExpired)
		require.Equal(t, store.StatusRelayed, env.status(t, id))
	})

	t.Run("finalize rejected at deadline", func(t *testing.T) {
		env := newReadyEnv(t)
		id := env.relayed(t, 10)

		env.clock.Set(startTime + testPeriod)
		requireCode(t, env.hub.FinalizeMessage(env.ctx, stranger, id), ErrCodeChallengeWindowOpen)
	})

	t.Run("finalize accepted after deadline", func(t *testing.T) {
		env := newReadyEnv(t)
		id := env.relayed(t, 10)

		env.clock.Set(startTime + testPeriod + 1)
		require.NoError(t, env.hub.FinalizeMessage(env.ctx, stranger, id))
		require.Equal(t, store.StatusConfirmed, env.status(t, id))

		info, err := env.hub.Relayer(env.ctx, relayer)
		require.NoError(t, err)
		require.Equal(t, uint64(1), info.Successful)

		// Finalizing moves no value.
		require.Equal(t, uint64(2), env.treasury(t))
		require.Equal(t, uint64(8), env.paid(t, relayer))

		requireCode(t, env.hub.FinalizeMessage(env.ctx, stranger, id), ErrCodeWrongStatus)
		requireCode(t, env.hub.ChallengeMessage(env.ctx, challenger, id, prooftest.Valid()), ErrCodeChallengeExpired)
	})
}

func TestChallengeAndFinalizeWithoutWindow(t *testing.T) {
	env := newReadyEnv(t)
	id := env.send(t, 10)

	requireCode(t, env.hub.ChallengeMessage(env.ctx, challenger, id, prooftest.Valid()), ErrCodeMessageNotFound)
	requireCode(t, env.hub.FinalizeMessage(env.ctx, stranger, id), ErrCodeMessageNotFound)
	requireCode(t, env.hub.ChallengeMessage(env.ctx, challenger, 99, prooftest.Valid()), ErrCodeMessageNotFound)

	_, err := env.hub.Challenge(env.ctx, id)
	requireCode(t, err, ErrCodeMessageNotFound)
}

func TestChallengeInvalidProofChangesNothing(t *testing.T) {
	env := newReadyEnv(t)
	id := env.relayed(t, 10)

	requireCode(t, env.hub.ChallengeMessage(env.ctx, challenger, id, prooftest.Invalid()), ErrCodeInvalidProof)

	require.Equal(t, store.StatusRelayed, env.status(t, id))
	info, err := env.hub.Relayer(env.ctx, relayer)
	require.NoError(t, err)
	require.True(t, info.Active)
	require.Equal(t, testStake, info.Stake.Uint64())
}

func TestConfirmDeliveryErrors(t *testing.T) {
	env := newReadyEnv(t)
	id := env.send(t, 10)

	requireCode(t, env.hub.ConfirmDelivery(env.ctx, relayer, id, prooftest.Valid()), ErrCodeRelayerNotActive)

	require.NoError(t, env.hub.RegisterRelayer(env.ctx, relayer, amount(testStake)))
	requireCode(t, env.hub.ConfirmDelivery(env.ctx, relayer, 42, prooftest.Valid()), ErrCodeMessageNotFound)
	requireCode(t, env.hub.ConfirmDelivery(env.ctx, relayer, id, prooftest.Invalid()), ErrCodeInvalidProof)
	require.Equal(t, store.StatusPending, env.status(t, id))
	require.Equal(t, uint64(10), env.treasury(t))

	require.NoError(t, env.hub.ConfirmDelivery(env.ctx, relayer, id, prooftest.Valid()))
	requireCode(t, env.hub.ConfirmDelivery(env.ctx, relayer, id, prooftest.Valid()), ErrCodeWrongStatus)
}

func TestSendMessageFees(t *testing.T) {
	env := newReadyEnv(t)

	_, err := env.hub.SendMessage(env.ctx, sender, 99, target, nil, amount(10))
	requireCode(t, err, ErrCodeChainNotSupported)

	_, err = env.hub.SendMessage(env.ctx, sender, testChain, target, nil, amount(9))
	requireCode(t, err, ErrCodeInsufficientFee)
	var feeErr InsufficientFeeError
	require.True(t, errors.As(err, &feeErr))
	require.Equal(t, uint64(10), feeErr.Required.Uint64())
	require.Equal(t, uint64(9), feeErr.Provided.Uint64())

	// Overpaying is allowed and the whole value goes to the treasury.
	id, err := env.hub.SendMessage(env.ctx, sender, testChain, target, []byte{1, 2}, amount(25))
	require.NoError(t, err)
	msg, err := env.hub.Message(env.ctx, id)
	require.NoError(t, err)
	require.Equal(t, uint64(25), msg.FeePaid.Uint64())
	require.Equal(t, []byte{1, 2}, msg.Data)
	require.Equal(t, startTime, msg.CreatedAt)
	require.Equal(t, uint64(25), env.treasury(t))

	require.NoError(t, env.hub.DisableChain(env.ctx, owner, testChain))
	_, err = env.hub.SendMessage(env.ctx, sender, testChain, target, nil, amount(10))
	requireCode(t, err, ErrCodeChainNotSupported)

	fee, err := env.hub.ChainFee(env.ctx, testChain)
	require.NoError(t, err)
	require.Equal(t, testBaseFee, fee.Uint64())
}

func TestMessageIDsIncrease(t *testing.T) {
	env := newReadyEnv(t)

	for want := uint64(1); want <= 5; want++ {
		require.Equal(t, want, env.send(t, 10))
	}

	// Rejected sends do not consume an id.
	_, err := env.hub.SendMessage(env.ctx, sender, testChain, target, nil, amount(1))
	require.Error(t, err)
	require.Equal(t, uint64(6), env.send(t, 10))

	info, err := env.hub.Info(env.ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(6), info.MessageCount)
}

func TestRelayerStake(t *testing.T) {
	env := newReadyEnv(t)

	requireCode(t, env.hub.RegisterRelayer(env.ctx, relayer, amount(testStake-1)), ErrCodeInsufficientStake)
	requireCode(t, env.hub.ExitRelayer(env.ctx, relayer), ErrCodeRelayerNotActive)

	require.NoError(t, env.hub.RegisterRelayer(env.ctx, relayer, amount(testStake)))
	require.NoError(t, env.hub.RegisterRelayer(env.ctx, relayer, amount(testStake+50)))

	info, err := env.hub.Relayer(env.ctx, relayer)
	require.NoError(t, err)
	require.True(t, info.Active)
	require.Equal(t, uint64(250), info.Stake.Uint64())

	require.NoError(t, env.hub.ExitRelayer(env.ctx, relayer))
	require.Equal(t, uint64(250), env.paid(t, relayer))

	info, err = env.hub.Relayer(env.ctx, relayer)
	require.NoError(t, err)
	require.False(t, info.Active)
	require.True(t, info.Stake.IsZero())

	requireCode(t, env.hub.ExitRelayer(env.ctx, relayer), ErrCodeRelayerNotActive)
}

func TestTransferFailureRollsBack(t *testing.T) {
	t.Run("exit", func(t *testing.T) {
		env := newReadyEnv(t)
		require.NoError(t, env.hub.RegisterRelayer(env.ctx, relayer, amount(testStake)))

		env.transfer.fail.Store(true)
		requireCode(t, env.hub.ExitRelayer(env.ctx, relayer), ErrCodeTransferFailed)

		info, err := env.hub.Relayer(env.ctx, relayer)
		require.NoError(t, err)
		require.True(t, info.Active)
		require.Equal(t, testStake, info.Stake.Uint64())
	})

	t.Run("confirm", func(t *testing.T) {
		env := newReadyEnv(t)
		id := env.send(t, 10)
		require.NoError(t, env.hub.RegisterRelayer(env.ctx, relayer, amount(testStake)))

		env.transfer.fail.Store(true)
		requireCode(t, env.hub.ConfirmDelivery(env.ctx, relayer, id, prooftest.Valid()), ErrCodeTransferFailed)

		require.Equal(t, store.StatusPending, env.status(t, id))
		require.Equal(t, uint64(10), env.treasury(t))
		_, err := env.hub.Challenge(env.ctx, id)
		requireCode(t, err, ErrCodeMessageNotFound)

		info, err := env.hub.Relayer(env.ctx, relayer)
		require.NoError(t, err)
		require.Zero(t, info.TotalRelayed)

		env.transfer.fail.Store(false)
		require.NoError(t, env.hub.ConfirmDelivery(env.ctx, relayer, id, prooftest.Valid()))
	})

	t.Run("challenge", func(t *testing.T) {
		env := newReadyEnv(t)
		id := env.relayed(t, 10)

		env.transfer.fail.Store(true)
		requireCode(t, env.hub.ChallengeMessage(env.ctx, challenger, id, prooftest.Valid()), ErrCodeTransferFailed)

		require.Equal(t, store.StatusRelayed, env.status(t, id))
		require.Equal(t, uint64(2), env.treasury(t))
		info, err := env.hub.Relayer(env.ctx, relayer)
		require.NoError(t, err)
		require.True(t, info.Active)
		require.Zero(t, info.Slashed)
	})
}

func TestWithdrawFees(t *testing.T) {
	env := newReadyEnv(t)
	env.send(t, 10)

	err := env.hub.WithdrawFees(env.ctx, owner, amount(11))
	requireCode(t, err, ErrCodeInsufficientFee)
	var feeErr InsufficientFeeError
	require.True(t, errors.As(err, &feeErr))
	require.Equal(t, uint64(11), feeErr.Required.Uint64())
	require.Equal(t, uint64(10), feeErr.Provided.Uint64())
	require.Equal(t, uint64(10), env.treasury(t))

	requireCode(t, env.hub.WithdrawFees(env.ctx, stranger, amount(1)), ErrCodeUnauthorized)

	require.NoError(t, env.hub.WithdrawFees(env.ctx, owner, amount(10)))
	require.Zero(t, env.treasury(t))
	require.Equal(t, uint64(10), env.paid(t, owner))
}

func TestConfirmRejectedAfterTreasuryDrained(t *testing.T) {
	env := newReadyEnv(t)
	id := env.send(t, 10)
	require.NoError(t, env.hub.RegisterRelayer(env.ctx, relayer, amount(testStake)))
	require.NoError(t, env.hub.WithdrawFees(env.ctx, owner, amount(10)))

	err := env.hub.ConfirmDelivery(env.ctx, relayer, id, prooftest.Valid())
	requireCode(t, err, ErrCodeTreasuryShortfall)
	var shortfall TreasuryShortfallError
	require.True(t, errors.As(err, &shortfall))
	require.Equal(t, uint64(8), shortfall.Required.Uint64())
	require.Zero(t, shortfall.Available.Uint64())

	require.Equal(t, store.StatusPending, env.status(t, id))
	require.Zero(t, env.paid(t, relayer))
	info, err := env.hub.Relayer(env.ctx, relayer)
	require.NoError(t, err)
	require.Zero(t, info.TotalRelayed)

	// Fees from a later message refill the treasury and unblock the first.
	env.send(t, 10)
	require.NoError(t, env.hub.ConfirmDelivery(env.ctx, relayer, id, prooftest.Valid()))
	require.Equal(t, store.StatusRelayed, env.status(t, id))
	require.Equal(t, uint64(2), env.treasury(t))
}

func TestOwnerOnlyOperations(t *testing.T) {
	env := newReadyEnv(t)

	requireCode(t, env.hub.AddChain(env.ctx, stranger, 11, receiver, amount(1)), ErrCodeUnauthorized)
	requireCode(t, env.hub.DisableChain(env.ctx, stranger, testChain), ErrCodeUnauthorized)
	requireCode(t, env.hub.WithdrawFees(env.ctx, stranger, amount(0)), ErrCodeUnauthorized)
	requireCode(t, env.hub.TransferOwnership(env.ctx, stranger, stranger), ErrCodeUnauthorized)

	requireCode(t, env.hub.TransferOwnership(env.ctx, owner, common.Address{}), ErrCodeZeroAddress)
	require.NoError(t, env.hub.TransferOwnership(env.ctx, owner, stranger))

	requireCode(t, env.hub.AddChain(env.ctx, owner, 11, receiver, amount(1)), ErrCodeUnauthorized)
	require.NoError(t, env.hub.AddChain(env.ctx, stranger, 11, receiver, amount(1)))

	info, err := env.hub.Info(env.ctx)
	require.NoError(t, err)
	require.Equal(t, stranger, info.Owner)
}

func TestChainRegistry(t *testing.T) {
	env := newReadyEnv(t)
	enabled := func() uint64 {
		info, err := env.hub.Info(env.ctx)
		require.NoError(t, err)
		return info.EnabledChains
	}
	require.Equal(t, uint64(1), enabled())

	requireCode(t, env.hub.AddChain(env.ctx, owner, 11, common.Address{}, amount(1)), ErrCodeZeroAddress)

	// Reconfiguring an enabled chain does not count it twice.
	require.NoError(t, env.hub.AddChain(env.ctx, owner, testChain, receiver, amount(20)))
	require.Equal(t, uint64(1), enabled())
	fee, err := env.hub.ChainFee(env.ctx, testChain)
	require.NoError(t, err)
	require.Equal(t, uint64(20), fee.Uint64())

	require.NoError(t, env.hub.AddChain(env.ctx, owner, 11, receiver, amount(1)))
	require.Equal(t, uint64(2), enabled())

	require.NoError(t, env.hub.DisableChain(env.ctx, owner, testChain))
	require.Equal(t, uint64(1), enabled())
	require.NoError(t, env.hub.DisableChain(env.ctx, owner, testChain))
	require.NoError(t, env.hub.DisableChain(env.ctx, owner, 99))
	require.Equal(t, uint64(1), enabled())

	chain, err := env.hub.Chain(env.ctx, 12345)
	require.NoError(t, err)
	require.False(t, chain.Enabled)
	require.True(t, chain.BaseFee.IsZero())
}

func TestInitialization(t *testing.T) {
	env := newTestEnv(t)

	info, err := env.hub.Info(env.ctx)
	require.NoError(t, err)
	require.False(t, info.Initialized)

	_, err = env.hub.SendMessage(env.ctx, sender, testChain, target, nil, amount(10))
	require.ErrorIs(t, err, ErrNotInitialized)
	require.ErrorIs(t, env.hub.RegisterRelayer(env.ctx, relayer, amount(1)), ErrNotInitialized)
	require.ErrorIs(t, env.hub.Initialize(env.ctx, common.Address{}, amount(1), 1), ErrZeroAddress)

	require.NoError(t, env.hub.Initialize(env.ctx, owner, amount(testStake), testPeriod))
	requireCode(t, env.hub.Initialize(env.ctx, stranger, amount(1), 1), ErrCodeAlreadyInitialized)

	info, err = env.hub.Info(env.ctx)
	require.NoError(t, err)
	require.True(t, info.Initialized)
	require.Equal(t, owner, info.Owner)
	require.Equal(t, testStake, info.MinStake.Uint64())
	require.Equal(t, testPeriod, info.ChallengePeriod)
}

func TestDeadlineSaturates(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.hub.Initialize(env.ctx, owner, amount(testStake), math.MaxUint64))
	require.NoError(t, env.hub.AddChain(env.ctx, owner, testChain, receiver, amount(testBaseFee)))

	id := env.relayed(t, 10)
	ch, err := env.hub.Challenge(env.ctx, id)
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxInt64), ch.Deadline)
}

func TestExpiredChallenges(t *testing.T) {
	env := newReadyEnv(t)
	first := env.relayed(t, 10)
	env.clock.Advance(10)
	second := env.relayed(t, 10)

	ids, err := env.hub.ExpiredChallenges(env.ctx, 10)
	require.NoError(t, err)
	require.Empty(t, ids)

	env.clock.Set(startTime + testPeriod + 5)
	ids, err = env.hub.ExpiredChallenges(env.ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []uint64{first}, ids)

	env.clock.Set(startTime + testPeriod + 20)
	ids, err = env.hub.ExpiredChallenges(env.ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []uint64{first, second}, ids)

	require.NoError(t, env.hub.FinalizeMessage(env.ctx, stranger, first))
	ids, err = env.hub.ExpiredChallenges(env.ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []uint64{second}, ids)
}

// Value entering the hub (fees and stakes) always equals value held by it
// (treasury and stakes) plus value paid out.
func TestFundsConserved(t *testing.T) {
	env := newReadyEnv(t)
	relayer2 := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	accounts := []common.Address{owner, sender, relayer, relayer2, challenger, stranger}

	var deposited uint64
	check := func() {
		t.Helper()
		held := env.treasury(t)
		for _, a := range accounts {
			info, err := env.hub.Relayer(env.ctx, a)
			require.NoError(t, err)
			held += info.Stake.Uint64()
			held += env.paid(t, a)
		}
		require.Equal(t, deposited, held)
	}

	m1 := env.send(t, 10)
	m2 := env.send(t, 15)
	m3 := env.send(t, 33)
	deposited += 10 + 15 + 33
	check()

	require.NoError(t, env.hub.RegisterRelayer(env.ctx, relayer, amount(100)))
	require.NoError(t, env.hub.RegisterRelayer(env.ctx, relayer2, amount(150)))
	deposited += 100 + 150
	check()

	require.NoError(t, env.hub.ConfirmDelivery(env.ctx, relayer, m1, prooftest.Valid()))
	require.NoError(t, env.hub.ConfirmDelivery(env.ctx, relayer2, m2, prooftest.Valid()))
	require.NoError(t, env.hub.ConfirmDelivery(env.ctx, relayer2, m3, prooftest.Valid()))
	check()

	require.NoError(t, env.hub.ChallengeMessage(env.ctx, challenger, m1, prooftest.Valid()))
	check()

	env.clock.Advance(testPeriod + 1)
	require.NoError(t, env.hub.FinalizeMessage(env.ctx, stranger, m2))
	require.NoError(t, env.hub.FinalizeMessage(env.ctx, stranger, m3))
	require.NoError(t, env.hub.ExitRelayer(env.ctx, relayer2))
	check()

	require.NoError(t, env.hub.WithdrawFees(env.ctx, owner, amount(env.treasury(t))))
	require.Zero(t, env.treasury(t))
	check()
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	env := newReadyEnv(t)

	sub := NewSubscriber("watcher")
	env.hub.Subscribe(sub)
	defer env.hub.Unsubscribe(sub)

	// A rejected command publishes nothing.
	_, err := env.hub.SendMessage(env.ctx, sender, testChain, target, nil, amount(1))
	require.Error(t, err)

	id := env.send(t, 10)
	ev := mustEvent(t, sub.Events, EventMessageSent)
	require.Equal(t, id, ev.MessageID)
	require.Equal(t, sender, ev.Account)
	require.Equal(t, uint64(10), ev.Amount.Uint64())
	require.Equal(t, startTime, ev.Timestamp)

	require.NoError(t, env.hub.RegisterRelayer(env.ctx, relayer, amount(testStake)))
	require.NoError(t, env.hub.ConfirmDelivery(env.ctx, relayer, id, prooftest.Valid()))
	ev = mustEvent(t, sub.Events, EventMessageRelayed)
	require.Equal(t, uint64(8), ev.Amount.Uint64())
	require.Equal(t, startTime+testPeriod, ev.Deadline)

	require.NoError(t, env.hub.ChallengeMessage(env.ctx, challenger, id, prooftest.Valid()))
	ev = mustEvent(t, sub.Events, EventMessageChallenged)
	require.Equal(t, challenger, ev.Account)
	require.Equal(t, relayer, ev.Target)
	ev = mustEvent(t, sub.Events, EventRelayerSlashed)
	require.Equal(t, testStake, ev.Amount.Uint64())
}

func TestRunStopClosesSubscribers(t *testing.T) {
	env := newReadyEnv(t)
	st := env.hub.store

	hub, err := NewHub(Deps{Store: st, Verifier: prooftest.Placeholder{}, Transferer: env.transfer})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	sub := NewSubscriber("s")
	hub.Subscribe(sub)
	cancel()

	select {
	case _, ok := <-sub.Events:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber channel not closed after hub stopped")
	}

	res := hub.Submit(context.Background(), &Command{Kind: CommandFinalizeMessage, Caller: stranger, MessageID: 1})
	require.Error(t, res.Err)
}

func TestNewHubRequiresDeps(t *testing.T) {
	_, err := NewHub(Deps{})
	require.Error(t, err)
}
