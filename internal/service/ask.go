package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/faucetdb/askdb/internal/askdb"
	"github.com/faucetdb/askdb/internal/config"
	"github.com/faucetdb/askdb/internal/connector"
	"github.com/faucetdb/askdb/internal/llm"
	"github.com/faucetdb/askdb/internal/model"
	"github.com/faucetdb/askdb/internal/telemetry"
)

// resultRowCeiling caps what the executor will buffer for a single query,
// including statements that carry their own large LIMIT.
const resultRowCeiling = 100_000

// pruneEvery is how many recorded asks pass between history prunes.
const pruneEvery = 100

// ErrNoService is returned when no service was named and no default applies.
var ErrNoService = errors.New("service name is required")

// ErrModelNotConfigured is returned when asks arrive without an LLM provider.
var ErrModelNotConfigured = errors.New("llm provider is not configured")

// AskDefaults are applied to requests that leave a setting unset.
type AskDefaults struct {
	MaxRows               int
	Timeout               time.Duration
	FormatResults         bool
	CancelOnTimeout       bool
	FallbackOnFormatError bool
	DefaultService        string
}

// HistoryOptions controls ask history recording.
type HistoryOptions struct {
	Enabled    bool
	MaxEntries int
}

// AskRequest is one question against a named service.
type AskRequest struct {
	Service  string
	Question string
	// MaxRows overrides AskDefaults.MaxRows when positive.
	MaxRows int
	// FormatResults overrides AskDefaults.FormatResults when set.
	FormatResults *bool
	// RequestID ties log lines and the history record to the caller's request.
	RequestID string
}

// AskService runs questions against catalog services.
type AskService struct {
	catalog  *Catalog
	schemas  *SchemaService
	model    llm.Model
	defaults AskDefaults
	store    *config.Store
	history  HistoryOptions
	logger   *slog.Logger

	recorded atomic.Int64
}

// NewAskService creates an AskService. m may be nil, in which case every
// ask fails with ErrModelNotConfigured. store may be nil to disable history.
func NewAskService(catalog *Catalog, schemas *SchemaService, m llm.Model, defaults AskDefaults, store *config.Store, history HistoryOptions, logger *slog.Logger) *AskService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AskService{
		catalog:  catalog,
		schemas:  schemas,
		model:    m,
		defaults: defaults,
		store:    store,
		history:  history,
		logger:   logger,
	}
}

// ResolveService returns the service a request targets: the named one,
// the configured default, or the only connected service.
func (s *AskService) ResolveService(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name != "" {
		return name, nil
	}
	if s.defaults.DefaultService != "" {
		return s.defaults.DefaultService, nil
	}
	if names := s.catalog.Names(); len(names) == 1 {
		return names[0], nil
	}
	return "", ErrNoService
}

// Ask answers req.Question against the resolved service.
// The question is checked before the service, model or schema is touched.
func (s *AskService) Ask(ctx context.Context, req AskRequest) (*askdb.Result, error) {
	question, err := askdb.CheckQuestion(req.Question)
	if err != nil {
		return nil, err
	}
	req.Question = question

	name, err := s.ResolveService(req.Service)
	if err != nil {
		return nil, err
	}
	if s.model == nil {
		return nil, ErrModelNotConfigured
	}
	conn, err := s.catalog.Connector(name)
	if err != nil {
		return nil, err
	}
	sch, err := s.schemas.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	maxRows := s.defaults.MaxRows
	if req.MaxRows > 0 {
		maxRows = req.MaxRows
	}
	format := s.defaults.FormatResults
	if req.FormatResults != nil {
		format = *req.FormatResults
	}
	logger := s.logger.With("service", name)
	if req.RequestID != "" {
		logger = logger.With("request_id", req.RequestID)
	}

	start := time.Now()
	res, err := askdb.AskDatabase(ctx, askdb.Options{
		Question:              req.Question,
		Schema:                sch,
		Model:                 s.model,
		Execute:               connector.NewExecutor(conn, connector.ExecutorOptions{MaxRows: resultRowCeiling}),
		MaxRows:               maxRows,
		FormatResults:         askdb.Bool(format),
		Timeout:               s.defaults.Timeout,
		Dialect:               conn.Dialect(),
		Logger:                logger,
		CancelOnTimeout:       s.defaults.CancelOnTimeout,
		FallbackOnFormatError: s.defaults.FallbackOnFormatError,
		OnStage: func(stage askdb.Stage, elapsed time.Duration) {
			telemetry.ObserveStage(string(stage), elapsed)
		},
	})
	s.observe(res, err)
	s.record(name, req, res, err, time.Since(start))
	return res, err
}

func (s *AskService) observe(res *askdb.Result, err error) {
	if err != nil {
		kind := askdb.KindOf(err)
		if kind == askdb.KindValidation {
			telemetry.IncrementValidationRejection()
		}
		telemetry.ObserveAsk(strings.ToLower(kind.String()))
		return
	}
	telemetry.ObserveAsk(telemetry.OutcomeSuccess)
	telemetry.ObserveTokens(res.Usage.Total.InputTokens, res.Usage.Total.OutputTokens)
}

// record stores the outcome in the ask history. Storage failures are
// logged and never fail the ask.
func (s *AskService) record(service string, req AskRequest, res *askdb.Result, askErr error, elapsed time.Duration) {
	if s.store == nil || !s.history.Enabled {
		return
	}
	rec := &model.AskRecord{
		RequestID:  req.RequestID,
		Service:    service,
		Question:   req.Question,
		DurationMs: elapsed.Milliseconds(),
	}
	if res != nil {
		rec.SQL = res.SQL
		rec.Answer = res.Answer
		rec.RowCount = len(res.RawData)
		rec.DurationMs = res.ExecutionTimeMs
		rec.InputTokens = res.Usage.Total.InputTokens
		rec.OutputTokens = res.Usage.Total.OutputTokens
	}
	if askErr != nil {
		rec.ErrorCode = askdb.KindOf(askErr).String()
		rec.Error = askErr.Error()
		var ae *askdb.Error
		if errors.As(askErr, &ae) {
			rec.SQL = ae.SQL
		}
	}

	// The request context may already be cancelled; history is written regardless.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.RecordAsk(ctx, rec); err != nil {
		s.logger.Warn("failed to record ask history", "service", service, "error", err)
		return
	}
	if s.history.MaxEntries > 0 && s.recorded.Add(1)%pruneEvery == 0 {
		if n, err := s.store.PruneAsks(ctx, s.history.MaxEntries); err != nil {
			s.logger.Warn("failed to prune ask history", "error", err)
		} else if n > 0 {
			s.logger.Debug("pruned ask history", "removed", n)
		}
	}
}

// Defaults returns the defaults applied to requests.
func (s *AskService) Defaults() AskDefaults { return s.defaults }
