package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/exim-agent/pkg/adapters/datasource/mssql"
	"github.com/ekaya-inc/exim-agent/pkg/apperrors"
	"github.com/ekaya-inc/exim-agent/pkg/config"
	"github.com/ekaya-inc/exim-agent/pkg/intent"
	"github.com/ekaya-inc/exim-agent/pkg/llm"
	"github.com/ekaya-inc/exim-agent/pkg/logging"
	"github.com/ekaya-inc/exim-agent/pkg/models"
	"github.com/ekaya-inc/exim-agent/pkg/prompts"
	tsql "github.com/ekaya-inc/exim-agent/pkg/sql"
)

// completionAttempts is the number of times the query prompt is sent when
// the model returns no content.
const completionAttempts = 2

// Database opens a per-request execution session.
type Database interface {
	Session(ctx context.Context) (*mssql.Session, error)
}

// Exporter starts background spreadsheet exports.
type Exporter interface {
	Start(ctx context.Context, rs *models.ResultSet) (*models.ExportJob, error)
}

// QueryAgent answers trade-data questions: it turns the question into SQL,
// runs it with a derived statistics query and narrates the result.
type QueryAgent interface {
	// Ask never fails. Every outcome, including internal errors, is
	// reported as a response envelope with a user-facing answer.
	Ask(ctx context.Context, question string, history []models.ConversationTurn) *models.Response
}

type queryAgent struct {
	completer llm.Completer
	db        Database
	exporter  Exporter
	insights  *InsightGenerator
	schema    string
	examples  []prompts.Example
	cfg       config.PipelineConfig
	logger    *zap.Logger
}

// NewQueryAgent creates the question-answering pipeline. schemaText is the
// rendered schema catalog embedded in every query prompt.
func NewQueryAgent(
	completer llm.Completer,
	db Database,
	exporter Exporter,
	schemaText string,
	cfg config.PipelineConfig,
	logger *zap.Logger,
) QueryAgent {
	return &queryAgent{
		completer: completer,
		db:        db,
		exporter:  exporter,
		insights:  NewInsightGenerator(completer, logger),
		schema:    schemaText,
		examples:  prompts.DefaultExamples(),
		cfg:       cfg,
		logger:    logger.Named("agent"),
	}
}

var _ QueryAgent = (*queryAgent)(nil)

func (a *queryAgent) Ask(ctx context.Context, question string, history []models.ConversationTurn) *models.Response {
	question = strings.TrimSpace(question)

	if category, reply := intent.Classify(question); category != intent.CategoryNone {
		a.logger.Debug("Answered small talk", zap.String("category", string(category)))
		return models.NewMessageResponse(reply)
	}

	if timeout := a.cfg.RequestTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	resp := a.answer(ctx, question, history)

	a.logger.Info("Question answered",
		zap.String("query_type", string(resp.QueryType)),
		zap.Int("rows", len(resp.Data)),
		zap.Bool("export", resp.ExportJobID != ""),
		zap.Duration("elapsed", time.Since(start)))
	return resp
}

func (a *queryAgent) answer(ctx context.Context, question string, history []models.ConversationTurn) *models.Response {
	prompt, err := prompts.BuildQueryPrompt(prompts.QueryPromptInput{
		Schema:   a.schema,
		History:  history,
		Question: question,
		Examples: a.examples,
	})
	if err != nil {
		a.logger.Error("Failed to build query prompt", zap.Error(err))
		return models.NewMessageResponse(MsgGenericFailure)
	}

	completion, err := a.complete(ctx, prompt)
	if err != nil {
		a.logger.Error("Query completion failed", zap.Error(err))
		return models.NewMessageResponse(deadlineOr(ctx, err, MsgCompletionUnavailable))
	}

	spec, err := llm.ParseQuerySpec(completion.Text)
	if err != nil {
		a.logger.Error("Failed to parse query completion",
			zap.String("completion", logging.TruncateString(completion.Text, 200)),
			zap.Error(err))
		return models.NewMessageResponse(MsgGenericFailure)
	}
	if spec.SQLQuery == "" {
		a.logger.Warn("Completion carried no SQL")
		return models.NewMessageResponse(MsgNoSQL)
	}

	// Year and product-name predicates are rewritten before execution.
	query := tsql.NormalizeProductFilters(tsql.RewriteYearPredicates(spec.SQLQuery))
	resp := &models.Response{
		Answer:       spec.Answer,
		Data:         []models.Row{},
		Query:        query,
		ChartTitle:   spec.ChartTitle,
		QueryType:    spec.QueryType,
		IsTimeSeries: spec.IsTimeSeries,
	}

	session, err := a.db.Session(ctx)
	if err != nil {
		a.logger.Error("Failed to acquire database session", zap.Error(err))
		return a.executionFailure(ctx, resp, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			a.logger.Warn("Failed to release database session", zap.Error(err))
		}
	}()

	result, err := session.Query(ctx, query)
	if err != nil {
		if errors.Is(err, apperrors.ErrStatementRejected) {
			a.logger.Warn("Generated statement rejected",
				zap.String("query", logging.SanitizeQuery(query)),
				zap.Error(err))
		} else {
			a.logger.Error("Generated query failed",
				zap.String("query", logging.SanitizeQuery(query)),
				zap.String("error", logging.SanitizeError(err)))
		}
		return a.executionFailure(ctx, resp, err)
	}
	// The session may have rewritten name predicates on a retry.
	resp.Query = result.SQL

	if result.Len() == 0 {
		resp.Answer = noRowsMessage(question)
		return resp
	}

	stats := a.summarize(ctx, session, result.SQL)
	insight := a.insight(ctx, question, result.Rows, stats)

	// Oversized results are exported; the response carries no rows.
	if result.Len() > a.cfg.ExportThreshold {
		return a.export(ctx, resp, result.ResultSet, insight)
	}

	resp.Answer = joinParagraphs(spec.Answer, insight)
	resp.Data = result.Rows
	return resp
}

// complete sends the prompt, sending it once more when the model returns no
// content or a retryable provider error.
func (a *queryAgent) complete(ctx context.Context, prompt string) (*llm.Completion, error) {
	var lastErr error
	for attempt := 1; attempt <= completionAttempts; attempt++ {
		completion, err := a.completer.Generate(ctx, prompt)
		switch {
		case err == nil && !completion.Empty():
			return completion, nil
		case err == nil:
			lastErr = apperrors.ErrEmptyCompletion
		case ctx.Err() != nil:
			// The request is over; a second attempt cannot finish.
			return nil, err
		case !llm.IsRetryable(err):
			return nil, err
		default:
			lastErr = err
		}
		a.logger.Warn("Completion returned no content",
			zap.Int("attempt", attempt),
			zap.NamedError("cause", lastErr))
	}
	return nil, fmt.Errorf("after %d attempts: %w", completionAttempts, lastErr)
}

// summarize runs the derived statistics query on the request's session.
// Failures are logged and yield nil.
func (a *queryAgent) summarize(ctx context.Context, session *mssql.Session, query string) *models.SummaryStats {
	summary, ok := tsql.DeriveSummary(query)
	if !ok {
		a.logger.Debug("No summary query for statement",
			zap.String("query", logging.SanitizeQuery(query)))
		return nil
	}

	result, err := session.Query(ctx, summary.SQL)
	if err != nil {
		a.logger.Warn("Summary query failed",
			zap.String("table", summary.Table),
			zap.String("error", logging.SanitizeError(err)))
		return nil
	}
	if result.Len() == 0 {
		return nil
	}

	stats, err := models.SummaryStatsFromRow(result.Rows[0], summary.EntityLabel)
	if err != nil {
		a.logger.Warn("Unreadable summary row", zap.Error(err))
		return nil
	}
	return stats
}

// insight is skipped when the request has less than the configured budget
// left, so the narrative never costs the answer itself.
func (a *queryAgent) insight(ctx context.Context, question string, rows []models.Row, stats *models.SummaryStats) string {
	if stats.IsEmpty() {
		return ""
	}
	if deadline, ok := ctx.Deadline(); ok {
		// Too little time left for a second completion round trip.
		if remaining := time.Until(deadline); remaining < a.cfg.InsightMinRemaining() {
			a.logger.Info("Skipping insight, request deadline close",
				zap.Duration("remaining", remaining))
			return ""
		}
	}
	return a.insights.Generate(ctx, question, rows, stats)
}

func (a *queryAgent) export(ctx context.Context, resp *models.Response, rs *models.ResultSet, insight string) *models.Response {
	job, err := a.exporter.Start(ctx, rs)
	if err != nil {
		if errors.Is(err, apperrors.ErrExportCapacity) {
			a.logger.Warn("Export rejected", zap.Int("rows", rs.Len()), zap.Error(err))
			resp.Answer = joinParagraphs(resp.Answer, MsgExportCapacity)
			return resp
		}
		a.logger.Error("Failed to start export", zap.Error(err))
		resp.Answer = MsgGenericFailure
		return resp
	}

	resp.Answer = exportStartedMessage(resp.Answer, insight, rs.Len())
	resp.ExportJobID = job.ID
	return resp
}

func (a *queryAgent) executionFailure(ctx context.Context, resp *models.Response, err error) *models.Response {
	resp.Answer = deadlineOr(ctx, err, MsgExecutionFailed)
	resp.Data = []models.Row{}
	return resp
}

// deadlineOr returns the timeout message when err or ctx reports the
// request deadline, otherwise msg.
func deadlineOr(ctx context.Context, err error, msg string) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return MsgDeadlineExceeded
	}
	return msg
}
