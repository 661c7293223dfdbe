package core

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/relayhub/internal/store"
)

// Deps are the collaborators a Hub needs. Store, Verifier and Transferer are
// required; the rest fall back to defaults.
type Deps struct {
	Store      store.HubStore
	Verifier   ProofVerifier
	Transferer Transferer
	Clock      Clock
	Metrics    Metrics
	Logger     *zerolog.Logger
}

// HubInfo is a snapshot of hub-wide state.
type HubInfo struct {
	Initialized     bool
	Owner           common.Address
	MinStake        *uint256.Int
	ChallengePeriod uint64
	TreasuryBalance *uint256.Int
	MessageCount    uint64
	EnabledChains   uint64
}

type request struct {
	ctx   context.Context
	cmd   *Command
	reply chan Result
}

// Hub sequences every state-changing command through a single goroutine.
// Each command runs in one store transaction; events are published only
// after that transaction commits.
type Hub struct {
	store    store.HubStore
	verifier ProofVerifier
	transfer Transferer
	clock    Clock
	metrics  Metrics
	log      *zerolog.Logger

	requests    chan *request
	subscribe   chan *Subscriber
	unsubscribe chan *Subscriber
	done        chan struct{}

	feed *feed
}

// NewHub creates a hub. Call Run to start processing commands.
func NewHub(deps Deps) (*Hub, error) {
	if deps.Store == nil {
		return nil, errors.New("hub: store is required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("hub: proof verifier is required")
	}
	if deps.Transferer == nil {
		return nil, errors.New("hub: transferer is required")
	}

	h := &Hub{
		store:       deps.Store,
		verifier:    deps.Verifier,
		transfer:    deps.Transferer,
		clock:       deps.Clock,
		metrics:     deps.Metrics,
		log:         deps.Logger,
		requests:    make(chan *request),
		subscribe:   make(chan *Subscriber),
		unsubscribe: make(chan *Subscriber),
		done:        make(chan struct{}),
		feed:        newFeed(),
	}
	if h.clock == nil {
		h.clock = NewMonotonicClock(SystemClock{})
	}
	if h.metrics == nil {
		h.metrics = nopMetrics{}
	}
	if h.log == nil {
		nop := zerolog.Nop()
		h.log = &nop
	}
	return h, nil
}

// Run processes commands until ctx is cancelled. It must be called once.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.feed.closeAll()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-h.requests:
			req.reply <- h.execute(req)
		case sub := <-h.subscribe:
			h.feed.add(sub)
		case sub := <-h.unsubscribe:
			h.feed.remove(sub)
		}
	}
}

// Subscribe registers sub for every event committed from now on.
// Events are dropped for subscribers that do not keep up.
func (h *Hub) Subscribe(sub *Subscriber) {
	select {
	case h.subscribe <- sub:
	case <-h.done:
		close(sub.Events)
	}
}

// Unsubscribe removes sub and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	select {
	case h.unsubscribe <- sub:
	case <-h.done:
	}
}

// Submit runs cmd and waits for its outcome.
func (h *Hub) Submit(ctx context.Context, cmd *Command) Result {
	req := &request{ctx: ctx, cmd: cmd, reply: make(chan Result, 1)}

	select {
	case h.requests <- req:
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	case <-h.done:
		return Result{Err: errors.New("hub stopped")}
	}
	return <-req.reply
}

func (h *Hub) execute(req *request) Result {
	start := time.Now()
	now := h.clock.Now()
	cmd := req.cmd

	var (
		res      Result
		events   []*Event
		treasury *uint256.Int
	)
	err := h.store.Update(req.ctx, func(tx store.HubTx) error {
		s, err := newSession(req.ctx, tx, now, h.transfer, h.verifier)
		if err != nil {
			return err
		}
		if res, err = s.apply(cmd); err != nil {
			return err
		}
		if err := s.flush(); err != nil {
			return err
		}
		events = s.events
		treasury = s.globals.TreasuryBalance.Clone()
		return nil
	})

	outcome := "ok"
	if err != nil {
		res = Result{Err: err}
		if outcome = ErrorCode(err); outcome == "" {
			outcome = "internal"
		}
	}
	h.metrics.CommandCompleted(cmd.Kind.String(), outcome, time.Since(start))

	if err != nil {
		ev := h.log.Debug()
		if outcome == "internal" {
			ev = h.log.Error()
		}
		ev.Err(err).
			Str("command", cmd.Kind.String()).
			Str("caller", cmd.Caller.Hex()).
			Str("result", outcome).
			Msg("command rejected")
		return res
	}

	h.log.Info().
		Str("command", cmd.Kind.String()).
		Str("caller", cmd.Caller.Hex()).
		Uint64("message_id", res.MessageID).
		Dur("took", time.Since(start)).
		Msg("command applied")

	h.metrics.TreasuryBalance(treasury)
	for _, ev := range events {
		h.feed.broadcast(ev)
	}
	return res
}

// Initialize sets the caller as owner together with the minimum stake and
// challenge period. It succeeds once.
func (h *Hub) Initialize(ctx context.Context, caller common.Address, minStake *uint256.Int, challengePeriod uint64) error {
	return h.Submit(ctx, &Command{
		Kind:            CommandInitialize,
		Caller:          caller,
		MinStake:        minStake,
		ChallengePeriod: challengePeriod,
	}).Err
}

// SendMessage records a message for chainID paid with value and returns its id.
func (h *Hub) SendMessage(
	ctx context.Context,
	caller common.Address,
	chainID uint32,
	target common.Address,
	data []byte,
	value *uint256.Int,
) (uint64, error) {
	res := h.Submit(ctx, &Command{
		Kind:    CommandSendMessage,
		Caller:  caller,
		ChainID: chainID,
		Target:  target,
		Data:    data,
		Value:   value,
	})
	return res.MessageID, res.Err
}

// ConfirmDelivery claims delivery of a pending message and pays the relayer.
func (h *Hub) ConfirmDelivery(ctx context.Context, caller common.Address, messageID uint64, proof []byte) error {
	return h.Submit(ctx, &Command{
		Kind:      CommandConfirmDelivery,
		Caller:    caller,
		MessageID: messageID,
		Proof:     proof,
	}).Err
}

// ChallengeMessage disputes a relayed message inside its window.
func (h *Hub) ChallengeMessage(ctx context.Context, caller common.Address, messageID uint64, fraudProof []byte) error {
	return h.Submit(ctx, &Command{
		Kind:      CommandChallengeMessage,
		Caller:    caller,
		MessageID: messageID,
		Proof:     fraudProof,
	}).Err
}

// FinalizeMessage confirms a relayed message after its window. Anyone may call it.
func (h *Hub) FinalizeMessage(ctx context.Context, caller common.Address, messageID uint64) error {
	return h.Submit(ctx, &Command{
		Kind:      CommandFinalizeMessage,
		Caller:    caller,
		MessageID: messageID,
	}).Err
}

func (h *Hub) RegisterRelayer(ctx context.Context, caller common.Address, value *uint256.Int) error {
	return h.Submit(ctx, &Command{Kind: CommandRegisterRelayer, Caller: caller, Value: value}).Err
}

func (h *Hub) ExitRelayer(ctx context.Context, caller common.Address) error {
	return h.Submit(ctx, &Command{Kind: CommandExitRelayer, Caller: caller}).Err
}

func (h *Hub) AddChain(ctx context.Context, caller common.Address, chainID uint32, receiver common.Address, baseFee *uint256.Int) error {
	return h.Submit(ctx, &Command{
		Kind:     CommandAddChain,
		Caller:   caller,
		ChainID:  chainID,
		Receiver: receiver,
		BaseFee:  baseFee,
	}).Err
}

func (h *Hub) DisableChain(ctx context.Context, caller common.Address, chainID uint32) error {
	return h.Submit(ctx, &Command{Kind: CommandDisableChain, Caller: caller, ChainID: chainID}).Err
}

func (h *Hub) WithdrawFees(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	return h.Submit(ctx, &Command{Kind: CommandWithdrawFees, Caller: caller, Amount: amount}).Err
}

func (h *Hub) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	return h.Submit(ctx, &Command{Kind: CommandTransferOwnership, Caller: caller, NewOwner: newOwner}).Err
}

// view runs fn against committed state. Reads never see a command halfway.
func (h *Hub) view(ctx context.Context, fn func(s *session) error) error {
	return h.store.View(ctx, func(tx store.HubTx) error {
		s, err := newSession(ctx, tx, h.clock.Now(), nil, nil)
		if err != nil {
			return err
		}
		return fn(s)
	})
}

// Info returns hub-wide state.
func (h *Hub) Info(ctx context.Context) (*HubInfo, error) {
	var info *HubInfo
	err := h.view(ctx, func(s *session) error {
		g := s.globals
		info = &HubInfo{
			Initialized:     s.initialized(),
			Owner:           g.Owner,
			MinStake:        g.MinStake,
			ChallengePeriod: g.ChallengePeriod,
			TreasuryBalance: g.TreasuryBalance,
			MessageCount:    g.Nonce,
			EnabledChains:   g.EnabledChains,
		}
		return nil
	})
	return info, err
}

// Message returns a message or MessageNotFoundError.
func (h *Hub) Message(ctx context.Context, id uint64) (*store.Message, error) {
	var msg *store.Message
	err := h.view(ctx, func(s *session) (err error) {
		msg, err = s.messages.Get(id)
		return err
	})
	return msg, err
}

// Challenge returns the challenge record for a relayed message, or
// MessageNotFoundError when none was opened.
func (h *Hub) Challenge(ctx context.Context, id uint64) (*store.Challenge, error) {
	var ch *store.Challenge
	err := h.view(ctx, func(s *session) (err error) {
		ch, err = s.challenges.Get(id)
		return err
	})
	return ch, err
}

// Chain returns a chain's configuration. Unknown chains come back disabled
// with a zero fee.
func (h *Hub) Chain(ctx context.Context, chainID uint32) (*store.ChainConfig, error) {
	var chain *store.ChainConfig
	err := h.view(ctx, func(s *session) (err error) {
		chain, err = s.chains.Info(chainID)
		return err
	})
	return chain, err
}

// ChainFee returns the configured base fee whether or not the chain is enabled.
func (h *Hub) ChainFee(ctx context.Context, chainID uint32) (*uint256.Int, error) {
	var fee *uint256.Int
	err := h.view(ctx, func(s *session) (err error) {
		fee, err = s.chains.Fee(chainID)
		return err
	})
	return fee, err
}

// Relayer returns relayer info. Unknown addresses come back inactive.
func (h *Hub) Relayer(ctx context.Context, addr common.Address) (*store.RelayerInfo, error) {
	var info *store.RelayerInfo
	err := h.view(ctx, func(s *session) (err error) {
		info, err = s.relayers.Get(addr)
		return err
	})
	return info, err
}

// PayoutTotal sums every payout credited to addr.
func (h *Hub) PayoutTotal(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	var total *uint256.Int
	err := h.store.View(ctx, func(tx store.HubTx) (err error) {
		total, err = tx.PayoutTotal(ctx, addr)
		return err
	})
	return total, err
}

// ExpiredChallenges lists up to limit messages whose window has closed
// without a challenge, oldest deadline first.
func (h *Hub) ExpiredChallenges(ctx context.Context, limit int) ([]uint64, error) {
	var ids []uint64
	err := h.store.View(ctx, func(tx store.HubTx) (err error) {
		ids, err = tx.ListExpiredChallenges(ctx, h.clock.Now(), limit)
		return err
	})
	return ids, err
}
