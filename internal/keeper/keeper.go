// Package keeper finalizes messages whose challenge window closed unchallenged.
package keeper

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Hub is the part of core.Hub the keeper drives.
type Hub interface {
	ExpiredChallenges(ctx context.Context, limit int) ([]uint64, error)
	FinalizeMessage(ctx context.Context, caller common.Address, messageID uint64) error
}

// Counter receives the number of messages finalized per sweep.
type Counter interface {
	KeeperFinalized(n int)
}

// Config controls the sweep.
type Config struct {
	Schedule string         // cron spec, e.g. "@every 30s"
	Caller   common.Address // address recorded as the finalizer
	Batch    int            // max messages per sweep
}

// Keeper runs periodic finalization sweeps.
type Keeper struct {
	hub     Hub
	cfg     Config
	counter Counter
	log     *zerolog.Logger
	cron    *cron.Cron
}

// New creates a keeper. counter and logger may be nil.
func New(hub Hub, cfg Config, counter Counter, logger *zerolog.Logger) (*Keeper, error) {
	if hub == nil {
		return nil, errors.New("keeper: hub is required")
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	cl := cronLogger{log: logger}
	return &Keeper{
		hub:     hub,
		cfg:     cfg,
		counter: counter,
		log:     logger,
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl))),
	}, nil
}

// Start schedules sweeps. They run until Stop is called.
func (k *Keeper) Start(ctx context.Context) error {
	_, err := k.cron.AddFunc(k.cfg.Schedule, func() {
		if _, err := k.Sweep(ctx); err != nil {
			k.log.Error().Err(err).Msg("keeper sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule keeper %q: %w", k.cfg.Schedule, err)
	}

	k.cron.Start()
	k.log.Info().Str("schedule", k.cfg.Schedule).Str("caller", k.cfg.Caller.Hex()).Msg("keeper started")
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (k *Keeper) Stop() {
	<-k.cron.Stop().Done()
}

// Sweep finalizes up to Batch expired messages once. A failure on one message
// is logged and does not stop the sweep. It returns how many were finalized.
func (k *Keeper) Sweep(ctx context.Context) (int, error) {
	ids, err := k.hub.ExpiredChallenges(ctx, k.cfg.Batch)
	if err != nil {
		return 0, fmt.Errorf("list expired challenges: %w", err)
	}

	finalized := 0
	for _, id := range ids {
		if err := k.hub.FinalizeMessage(ctx, k.cfg.Caller, id); err != nil {
			k.log.Warn().Err(err).Uint64("message_id", id).Msg("keeper finalize failed")
			continue
		}
		finalized++
	}

	if k.counter != nil && finalized > 0 {
		k.counter.KeeperFinalized(finalized)
	}
	if len(ids) > 0 {
		k.log.Info().Int("expired", len(ids)).Int("finalized", finalized).Msg("keeper sweep done")
	}
	return finalized, nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log *zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
