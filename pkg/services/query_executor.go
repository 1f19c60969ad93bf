package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/veridata-labs/veridata-engine/pkg/adapters/datasource"
	"github.com/veridata-labs/veridata-engine/pkg/logging"
	"github.com/veridata-labs/veridata-engine/pkg/models"
	"github.com/veridata-labs/veridata-engine/pkg/sqlcheck"
)

// QueryExecutor runs one read against one database role. Execute
// never returns an error to the caller; every failure is absorbed into
// the result's Success/Error/ErrorKind fields so that test cases fail
// in isolation.
type QueryExecutor interface {
	Execute(ctx context.Context, databaseID, sql string, timeout time.Duration, sampleCap int) *models.QueryExecutionResult
}

// ExecutorConfig holds the executor's defaults.
type ExecutorConfig struct {
	QueryTimeout time.Duration
	SampleCap    int
}

type queryExecutor struct {
	adapters map[string]datasource.Adapter
	cfg      ExecutorConfig
	logger   *zap.Logger
}

// NewQueryExecutor creates an executor over the given adapters, keyed
// by database role.
func NewQueryExecutor(adapters map[string]datasource.Adapter, cfg ExecutorConfig, logger *zap.Logger) QueryExecutor {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 300 * time.Second
	}
	if cfg.SampleCap <= 0 {
		cfg.SampleCap = 50
	}
	return &queryExecutor{
		adapters: adapters,
		cfg:      cfg,
		logger:   logger.Named("executor"),
	}
}

func (e *queryExecutor) Execute(ctx context.Context, databaseID, sql string, timeout time.Duration, sampleCap int) *models.QueryExecutionResult {
	if timeout <= 0 {
		timeout = e.cfg.QueryTimeout
	}
	if sampleCap <= 0 {
		sampleCap = e.cfg.SampleCap
	}

	result := &models.QueryExecutionResult{
		DatabaseID: databaseID,
		SQL:        sql,
		ExecutedAt: time.Now().UTC(),
	}

	// The safety check runs before any database is contacted. Unsafe
	// or unclassifiable statements never dispatch.
	normalized, err := sqlcheck.Vet(sql)
	if err != nil {
		result.Error = err.Error()
		result.ErrorKind = string(ErrKindUnsafeStatement)
		e.logger.Warn("statement rejected",
			zap.String("database_id", databaseID),
			zap.String("sql", logging.SanitizeQuery(sql)),
			zap.Error(err))
		return result
	}
	result.SQL = normalized

	adapter, ok := e.adapters[databaseID]
	if !ok {
		result.Error = "unknown database: " + databaseID
		result.ErrorKind = string(ErrKindConnection)
		return result
	}

	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	out, err := adapter.RunQuery(queryCtx, normalized, sampleCap)
	result.ExecutionTimeMs = float64(time.Since(start).Microseconds()) / 1000.0

	if err != nil {
		result.Error = logging.SanitizeError(err)
		result.ErrorKind = string(classifyExecutionError(queryCtx, err))
		e.logger.Warn("query failed",
			zap.String("database_id", databaseID),
			zap.String("error_kind", result.ErrorKind),
			zap.Float64("elapsed_ms", result.ExecutionTimeMs),
			zap.Error(err))
		return result
	}

	result.Success = true
	result.Columns = out.Columns
	result.SampleRows = out.SampleRows
	result.RowCount = out.RowCount

	e.logger.Debug("query executed",
		zap.String("database_id", databaseID),
		zap.Int64("row_count", result.RowCount),
		zap.Float64("elapsed_ms", result.ExecutionTimeMs))
	return result
}

// classifyExecutionError maps a driver error to the report taxonomy.
func classifyExecutionError(ctx context.Context, err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrKindTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return ErrKindTimeout
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "unexpected eof"),
		strings.Contains(msg, "unreachable"):
		return ErrKindConnection
	default:
		return ErrKindQuery
	}
}
