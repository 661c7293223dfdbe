package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/relayhub/internal/config"
)

func newTestApp(t *testing.T, mutate func(*config.Config)) *App {
	t.Helper()

	cfg := config.Default()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "relayhub.db")
	cfg.Addr = "127.0.0.1:0"
	if mutate != nil {
		mutate(&cfg)
	}

	logger := zerolog.Nop()
	a, err := New(&cfg, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.store.Close() })
	return a
}

func TestBootstrapInitializesOnce(t *testing.T) {
	owner := "0x00000000000000000000000000000000000000a1"
	a := newTestApp(t, func(cfg *config.Config) {
		cfg.Bootstrap = config.Bootstrap{Owner: owner, MinStake: "250", ChallengePeriod: 120}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.hub.Run(ctx)

	require.NoError(t, a.initialize(ctx))
	// A second start leaves the existing owner alone.
	require.NoError(t, a.initialize(ctx))

	info, err := a.hub.Info(ctx)
	require.NoError(t, err)
	require.True(t, info.Initialized)
	require.Equal(t, common.HexToAddress(owner), info.Owner)
	require.Equal(t, "250", info.MinStake.Dec())
	require.Equal(t, uint64(120), info.ChallengePeriod)
}

func TestBootstrapSkippedWithoutOwner(t *testing.T) {
	a := newTestApp(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.hub.Run(ctx)

	require.NoError(t, a.initialize(ctx))

	info, err := a.hub.Info(ctx)
	require.NoError(t, err)
	require.False(t, info.Initialized)
}

func TestBootstrapRejectsBadMinStake(t *testing.T) {
	a := newTestApp(t, func(cfg *config.Config) {
		cfg.Bootstrap = config.Bootstrap{Owner: "0x00000000000000000000000000000000000000a1", MinStake: "lots"}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.hub.Run(ctx)

	require.Error(t, a.initialize(ctx))
}

func TestNewRejectsBadAttester(t *testing.T) {
	cfg := config.Default()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "relayhub.db")
	cfg.Attesters = []string{"not-an-address"}

	logger := zerolog.Nop()
	_, err := New(&cfg, &logger)
	require.Error(t, err)
}

func TestNewWiresKeeper(t *testing.T) {
	a := newTestApp(t, func(cfg *config.Config) {
		cfg.KeeperEnabled = true
		cfg.KeeperAddress = "0x00000000000000000000000000000000000000b1"
	})
	require.NotNil(t, a.keeper)
}
