package askdb

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/faucetdb/askdb/internal/llm"
	"github.com/faucetdb/askdb/internal/query"
)

// AskDatabase answers opts.Question against the database behind
// opts.Execute. It is safe for concurrent use; every call owns its timer
// and intermediate values.
//
// When the timeout fires first the call returns "Query timed out after
// <ms>ms" and the in-flight model or executor call keeps running unless
// opts.CancelOnTimeout is set, even if ctx is cancelled afterwards (HTTP
// servers cancel the request context once the handler returns). Cancelling
// ctx while the call is still waiting cancels the in-flight call and
// returns immediately.
func AskDatabase(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()

	p, err := newPipeline(opts, start)
	if err != nil {
		return nil, err
	}

	// Stages keep ctx's values but not its cancellation; only this call
	// decides when to cancel them.
	stageCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				stage := p.current()
				p.logger.Error("ask pipeline panic", "stage", stage, "panic", r)
				done <- outcome{err: &Error{Kind: kindForStage(stage), Stage: stage, Msg: fmt.Sprintf("internal error during %s stage", stage)}}
			}
		}()
		res, err := p.run(stageCtx)
		done <- outcome{res: res, err: err}
	}()

	timer := time.NewTimer(p.opts.Timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		return out.res, out.err
	case <-timer.C:
		stage := p.current()
		if p.opts.CancelOnTimeout {
			cancel()
		}
		p.logger.Warn("ask timed out", "stage", stage, "timeout_ms", p.opts.Timeout.Milliseconds(),
			"cancelled", p.opts.CancelOnTimeout)
		return nil, &Error{
			Kind:  KindTimeout,
			Stage: stage,
			Msg:   fmt.Sprintf("Query timed out after %dms", p.opts.Timeout.Milliseconds()),
		}
	case <-ctx.Done():
		cancel()
		stage := p.current()
		p.logger.Info("ask cancelled", "stage", stage, "error", ctx.Err())
		return nil, &Error{Kind: KindCancelled, Stage: stage, Msg: "query cancelled: " + ctx.Err().Error(), Err: ctx.Err()}
	}
}

// pipeline holds the state of one AskDatabase call.
type pipeline struct {
	opts       Options
	schemaText string
	format     bool
	logger     *slog.Logger
	start      time.Time

	stage      atomic.Value // Stage
	stageStart time.Time    // owned by the pipeline goroutine
}

// CheckQuestion returns the cleaned question, or the input error
// AskDatabase would fail with for it.
func CheckQuestion(question string) (string, error) {
	question, err := query.SanitizeText(question, query.MaxQuestionLength)
	if err != nil {
		return "", inputError(fmt.Sprintf("invalid question: too long (max %d chars)", query.MaxQuestionLength), err)
	}
	if question == "" {
		return "", inputError("question is required", nil)
	}
	return question, nil
}

func newPipeline(opts Options, start time.Time) (*pipeline, error) {
	question, err := CheckQuestion(opts.Question)
	if err != nil {
		return nil, err
	}
	opts.Question = question

	if opts.Schema == nil {
		return nil, inputError("schema is required", nil)
	}
	schemaText := strings.TrimSpace(opts.Schema.SchemaContext())
	if schemaText == "" {
		return nil, inputError("schema is required", nil)
	}

	if opts.Model == nil {
		if strings.TrimSpace(opts.APIKey) == "" {
			return nil, inputError("model is required", nil)
		}
		m, err := llm.New(llm.Config{Provider: opts.Provider, APIKey: opts.APIKey, Model: opts.ModelName})
		if err != nil {
			return nil, inputError(err.Error(), err)
		}
		opts.Model = m
	}
	if opts.Execute == nil {
		return nil, inputError("executor is required", nil)
	}

	if opts.MaxRows <= 0 {
		opts.MaxRows = query.DefaultMaxRows
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	format := true
	if opts.FormatResults != nil {
		format = *opts.FormatResults
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &pipeline{
		opts:       opts,
		schemaText: schemaText,
		format:     format,
		logger:     logger,
		start:      start,
		stageStart: start,
	}
	p.stage.Store(StageIdle)
	return p, nil
}

func (p *pipeline) current() Stage {
	return p.stage.Load().(Stage)
}

// enter records the end of the current stage and moves to next.
func (p *pipeline) enter(next Stage) {
	now := time.Now()
	prev := p.current()
	elapsed := now.Sub(p.stageStart)
	if prev != StageIdle && p.opts.OnStage != nil {
		p.opts.OnStage(prev, elapsed)
	}
	p.logger.Debug("ask stage", "stage", next, "prev", prev, "prev_ms", elapsed.Milliseconds())
	p.stageStart = now
	p.stage.Store(next)
}

func (p *pipeline) fail(err *Error) (*Result, error) {
	p.enter(StageFailed)
	p.logger.Warn("ask failed", "stage", err.Stage, "kind", err.Kind.String(), "error", err.Msg,
		"duration_ms", time.Since(p.start).Milliseconds())
	return nil, err
}

func (p *pipeline) run(ctx context.Context) (*Result, error) {
	p.enter(StageGenerating)
	candidate, err := GenerateSQL(ctx, p.opts.Model, p.opts.Question, p.schemaText, p.opts.Dialect)
	if err != nil {
		return p.fail(&Error{Kind: KindGeneration, Stage: StageGenerating, Msg: "sql generation failed: " + err.Error(), Err: err})
	}

	p.enter(StageValidating)
	if v := query.ValidateSQL(candidate.SQL); !v.Valid {
		return p.fail(&Error{
			Kind:  KindValidation,
			Stage: StageValidating,
			Msg:   "Generated SQL is invalid: " + v.Error,
			SQL:   candidate.SQL,
		})
	}

	p.enter(StageLimiting)
	safeSQL := query.AddLimit(candidate.SQL, p.opts.MaxRows)

	p.enter(StageExecuting)
	rows, err := p.opts.Execute(ctx, safeSQL)
	if err != nil {
		return p.fail(&Error{Kind: KindExecution, Stage: StageExecuting, Msg: "SQL execution failed: " + err.Error(), SQL: safeSQL, Err: err})
	}
	if rows == nil {
		rows = Rows{}
	}

	p.enter(StageFormatting)
	var (
		answer        string
		formatUsage   *llm.Usage
		formatAttempt llm.Usage
	)
	if p.format {
		text, usage, err := FormatResults(ctx, p.opts.Model, p.opts.Question, rows)
		switch {
		case err == nil:
			answer = text
			formatUsage = &usage
		case p.opts.FallbackOnFormatError:
			p.logger.Warn("result formatting failed, using fallback answer", "error", err)
			answer = FallbackAnswer(rows)
			formatAttempt = usage
		default:
			return p.fail(&Error{Kind: KindFormatting, Stage: StageFormatting, Msg: "result formatting failed: " + err.Error(), SQL: safeSQL, Err: err})
		}
	} else {
		answer = FallbackAnswer(rows)
	}

	p.enter(StageDone)
	total := candidate.Usage.Add(formatAttempt)
	if formatUsage != nil {
		total = total.Add(*formatUsage)
	}
	res := &Result{
		SQL:             safeSQL,
		Explanation:     candidate.Explanation,
		Answer:          answer,
		RawData:         rows,
		ExecutionTimeMs: time.Since(p.start).Milliseconds(),
		Usage: UsageReport{
			SQLGeneration: candidate.Usage,
			Formatting:    formatUsage,
			Total:         total,
		},
	}
	p.logger.Info("ask completed", "rows", len(rows), "duration_ms", res.ExecutionTimeMs,
		"input_tokens", total.InputTokens, "output_tokens", total.OutputTokens)
	return res, nil
}

func kindForStage(s Stage) Kind {
	switch s {
	case StageGenerating:
		return KindGeneration
	case StageExecuting:
		return KindExecution
	case StageFormatting:
		return KindFormatting
	default:
		return 0
	}
}
