package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/vovakirdan/relayhub/internal/auth"
	"github.com/vovakirdan/relayhub/internal/config"
	"github.com/vovakirdan/relayhub/internal/core"
	"github.com/vovakirdan/relayhub/internal/keeper"
	"github.com/vovakirdan/relayhub/internal/metrics"
	"github.com/vovakirdan/relayhub/internal/payout"
	"github.com/vovakirdan/relayhub/internal/proof"
	"github.com/vovakirdan/relayhub/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/relayhub/internal/transport/http"
)

// App wires together store, hub, keeper and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	keeper          *keeper.Keeper
	store           *sqlite.SQLiteStore
	bootstrap       config.Bootstrap
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	attesters, err := parseAddresses(cfg.Attesters)
	if err != nil {
		return nil, fmt.Errorf("attesters: %w", err)
	}
	if len(attesters) == 0 {
		logger.Warn().Msg("no attesters configured, every proof will be rejected")
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	hub, err := core.NewHub(core.Deps{
		Store:      st,
		Verifier:   proof.NewAttester(attesters, logger),
		Transferer: payout.NewLedger(logger),
		Metrics:    collector,
		Logger:     logger,
	})
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("init hub: %w", err), st.Close())
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
	authService := auth.NewService(st, jwtConfig)

	a := &App{
		server:          transporthttp.NewServer(hub, authService, cfg, registry, logger),
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		bootstrap:       cfg.Bootstrap,
		log:             logger,
	}

	if cfg.KeeperEnabled {
		var caller common.Address
		if cfg.KeeperAddress != "" {
			if caller, err = parseAddress(cfg.KeeperAddress); err != nil {
				return nil, multierr.Append(fmt.Errorf("keeper address: %w", err), st.Close())
			}
		}
		a.keeper, err = keeper.New(hub, keeper.Config{
			Schedule: cfg.KeeperSchedule,
			Caller:   caller,
			Batch:    cfg.KeeperBatch,
		}, collector, logger)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("init keeper: %w", err), st.Close())
		}
	}

	return a, nil
}

// Run starts the hub, keeper and HTTP server and blocks until context
// cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go a.hub.Run(hubCtx)

	if err := a.initialize(ctx); err != nil {
		return multierr.Append(err, a.cleanup())
	}

	if a.keeper != nil {
		if err := a.keeper.Start(hubCtx); err != nil {
			return multierr.Append(err, a.cleanup())
		}
	}

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return multierr.Append(err, a.cleanup())
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return multierr.Append(err, a.cleanup())
		}

		return multierr.Append(<-serverErr, a.cleanup())
	}
}

// initialize applies the bootstrap owner to a hub that has none yet.
func (a *App) initialize(ctx context.Context) error {
	if a.bootstrap.Owner == "" {
		return nil
	}

	info, err := a.hub.Info(ctx)
	if err != nil {
		return fmt.Errorf("read hub info: %w", err)
	}
	if info.Initialized {
		a.log.Debug().Str("owner", info.Owner.Hex()).Msg("hub already initialized, skipping bootstrap")
		return nil
	}

	owner, err := parseAddress(a.bootstrap.Owner)
	if err != nil {
		return fmt.Errorf("bootstrap owner: %w", err)
	}
	minStake, err := uint256.FromDecimal(a.bootstrap.MinStake)
	if err != nil {
		return fmt.Errorf("bootstrap min stake %q: %w", a.bootstrap.MinStake, err)
	}

	if err := a.hub.Initialize(ctx, owner, minStake, a.bootstrap.ChallengePeriod); err != nil {
		return fmt.Errorf("bootstrap hub: %w", err)
	}
	a.log.Info().
		Str("owner", owner.Hex()).
		Str("min_stake", minStake.Dec()).
		Uint64("challenge_period", a.bootstrap.ChallengePeriod).
		Msg("hub initialized")
	return nil
}

// cleanup stops the keeper and closes the store.
func (a *App) cleanup() error {
	var err error
	if a.keeper != nil {
		a.keeper.Stop()
	}
	if a.store != nil {
		if closeErr := a.store.Close(); closeErr != nil {
			a.log.Warn().Err(closeErr).Msg("failed to close store")
			err = multierr.Append(err, fmt.Errorf("close store: %w", closeErr))
		} else {
			a.log.Info().Msg("store closed")
		}
	}
	return err
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseAddresses(in []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(in))
	for _, s := range in {
		addr, err := parseAddress(s)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}
