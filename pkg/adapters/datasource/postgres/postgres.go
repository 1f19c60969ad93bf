// Package postgres implements the datasource adapter on pgx.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/veridata-labs/veridata-engine/pkg/adapters/datasource"
	"github.com/veridata-labs/veridata-engine/pkg/models"
)

func init() {
	datasource.Register("postgres", func(ctx context.Context, cfg *datasource.Config, logger *zap.Logger) (datasource.Adapter, error) {
		return New(ctx, cfg, logger)
	})
}

// Adapter is a PostgreSQL datasource backed by a pgxpool.
type Adapter struct {
	pool       *pgxpool.Pool
	databaseID string
	logger     *zap.Logger
}

// New opens a connection pool and verifies it with a ping.
func New(ctx context.Context, cfg *datasource.Config, logger *zap.Logger) (*Adapter, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections)
	}
	if cfg.MinConnections > 0 {
		poolConfig.MinConns = int32(cfg.MinConnections)
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Adapter{
		pool:       pool,
		databaseID: cfg.DatabaseID,
		logger:     logger.Named("postgres").With(zap.String("database_id", cfg.DatabaseID)),
	}, nil
}

func (a *Adapter) DatabaseID() string { return a.databaseID }
func (a *Adapter) Dialect() string    { return "postgres" }

// RunQuery executes a read, counting every row the query produces
// while retaining at most sampleCap rows.
func (a *Adapter) RunQuery(ctx context.Context, sql string, sampleCap int) (*datasource.QueryOutput, error) {
	rows, err := a.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = string(fd.Name)
	}

	out := &datasource.QueryOutput{Columns: columns}
	for rows.Next() {
		out.RowCount++
		if sampleCap > 0 && len(out.SampleRows) < sampleCap {
			values, err := rows.Values()
			if err != nil {
				return nil, fmt.Errorf("read row values: %w", err)
			}
			row := make(models.Row, len(columns))
			for i, col := range columns {
				row[col] = values[i]
			}
			out.SampleRows = append(out.SampleRows, row)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return out, nil
}

// Ping verifies the database is reachable.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

// Close releases the pool.
func (a *Adapter) Close() error {
	a.pool.Close()
	return nil
}

var _ datasource.Adapter = (*Adapter)(nil)
