package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/exim-agent/pkg/config"
	"github.com/ekaya-inc/exim-agent/pkg/models"
)

// exportPollInterval is how often ask checks a background export.
const exportPollInterval = 500 * time.Millisecond

func newAskCommand(opts *rootOptions) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question and print the response envelope",
		Long: `Run a single question through the pipeline and print the JSON response.
When the result is exported, ask waits for the spreadsheet unless --wait=false.`,
		Example: `  exim-agent ask "top 10 importers of zinc in 2023"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return ask(cmd.Context(), cfg, logger, strings.Join(args, " "), wait, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", true, "wait for a background export to finish")
	return cmd
}

func ask(ctx context.Context, cfg *config.Config, logger *zap.Logger, question string, wait bool, out io.Writer) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.close(shutdownCtx)
	}()

	resp := a.agent.Ask(ctx, question, nil)
	if err := printJSON(out, resp); err != nil {
		return err
	}

	if resp.ExportJobID == "" || !wait {
		return nil
	}
	job, err := awaitExport(ctx, a.exports, resp.ExportJobID)
	if err != nil {
		return err
	}
	return printJSON(out, job)
}

type jobGetter interface {
	Get(ctx context.Context, id string) (*models.ExportJob, error)
}

// awaitExport polls the job until it reaches a terminal status.
func awaitExport(ctx context.Context, jobs jobGetter, id string) (*models.ExportJob, error) {
	ticker := time.NewTicker(exportPollInterval)
	defer ticker.Stop()

	for {
		job, err := jobs.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", id, err)
		}
		if job.Done() {
			if job.Status == models.ExportError {
				return job, fmt.Errorf("export %s failed: %s", id, job.Error)
			}
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
