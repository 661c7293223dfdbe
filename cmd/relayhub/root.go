package main

import (
	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagLogLevel string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "relayhub",
		Short:         "optimistic cross-chain message relay hub",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (default $RELAYHUB_CONFIG_DEFAULT_PATH or ./config.yaml)")
	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override configured log level")

	cmd.AddCommand(newServeCmd(), newProofCmd(), newWatchCmd())
	return cmd
}
