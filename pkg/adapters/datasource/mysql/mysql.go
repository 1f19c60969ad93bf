// Package mysql implements the datasource adapter on database/sql
// with the go-sql-driver.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/veridata-labs/veridata-engine/pkg/adapters/datasource"
	"github.com/veridata-labs/veridata-engine/pkg/models"
)

func init() {
	datasource.Register("mysql", func(ctx context.Context, cfg *datasource.Config, logger *zap.Logger) (datasource.Adapter, error) {
		return New(ctx, cfg, logger)
	})
}

// Adapter is a MySQL datasource backed by a database/sql pool.
type Adapter struct {
	db         *sql.DB
	databaseID string
	logger     *zap.Logger
}

// New opens a connection pool and verifies it with a ping.
func New(ctx context.Context, cfg *datasource.Config, logger *zap.Logger) (*Adapter, error) {
	db, err := sql.Open("mysql", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	}
	if cfg.MinConnections > 0 {
		db.SetMaxIdleConns(cfg.MinConnections)
	}
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Adapter{
		db:         db,
		databaseID: cfg.DatabaseID,
		logger:     logger.Named("mysql").With(zap.String("database_id", cfg.DatabaseID)),
	}, nil
}

func (a *Adapter) DatabaseID() string { return a.databaseID }
func (a *Adapter) Dialect() string    { return "mysql" }

// RunQuery executes a read, counting every row while retaining at
// most sampleCap rows.
func (a *Adapter) RunQuery(ctx context.Context, query string, sampleCap int) (*datasource.QueryOutput, error) {
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	out := &datasource.QueryOutput{Columns: columns}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		out.RowCount++
		if sampleCap <= 0 || len(out.SampleRows) >= sampleCap {
			continue
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(models.Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		out.SampleRows = append(out.SampleRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return out, nil
}

// normalizeValue converts driver byte slices to strings so sampled
// rows serialize as text rather than base64.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// Ping verifies the database is reachable.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close releases the pool.
func (a *Adapter) Close() error {
	return a.db.Close()
}

var _ datasource.Adapter = (*Adapter)(nil)
