package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/exim-agent/pkg/adapters/datasource/mssql"
	"github.com/ekaya-inc/exim-agent/pkg/schema"
)

func newSchemaCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the schema catalog sent to the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			db, err := mssql.Open(cmd.Context(), cfg.MSSQL, logger)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			catalog, err := schema.Load(cmd.Context(), db.DB(), cfg.Pipeline.Tables, logger)
			if err != nil {
				return fmt.Errorf("failed to load schema: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), catalog.Render())
			return err
		},
	}
}
