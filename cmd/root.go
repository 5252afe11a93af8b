// Package cmd implements the exim-agent command-line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/exim-agent/pkg/config"
	"github.com/ekaya-inc/exim-agent/pkg/logging"
)

// Version is set at build time via ldflags.
var Version = "dev"

type rootOptions struct {
	configPath string
}

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "exim-agent",
		Short: "Natural-language questions over import/export shipment data",
		Long: `exim-agent turns questions about trade shipments into validated SQL Server
queries, runs them with a derived statistics query and narrates the result.
Large results are exported to Excel in the background.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath, "config file (environment only when missing)")

	rootCmd.AddCommand(newServeCommand(opts))
	rootCmd.AddCommand(newAskCommand(opts))
	rootCmd.AddCommand(newSchemaCommand(opts))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// load reads configuration and builds the root logger.
func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath, Version)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}
