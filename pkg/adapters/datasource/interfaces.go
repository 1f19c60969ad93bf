// Package datasource defines the adapter contract for the databases a
// validation run reads from, plus a dialect registry the concrete
// drivers register into.
package datasource

import (
	"context"

	"github.com/veridata-labs/veridata-engine/pkg/models"
)

// Config holds what an adapter needs to open its pool.
type Config struct {
	// DatabaseID is the role the connection plays in a run, "source"
	// or "target". It tags every result the adapter produces.
	DatabaseID     string
	Dialect        string
	URL            string
	MaxConnections int
	MinConnections int
}

// QueryOutput is the raw outcome of one read. RowCount is the true
// number of rows the query produced; SampleRows holds at most the
// caller's sample cap.
type QueryOutput struct {
	Columns    []string
	SampleRows []models.Row
	RowCount   int64
}

// Adapter is one database connection pool with query execution and
// schema discovery. Implementations own their pool and must be closed
// when done.
type Adapter interface {
	// DatabaseID returns the role this adapter was opened for.
	DatabaseID() string

	// Dialect returns the SQL dialect, e.g. "postgres".
	Dialect() string

	// RunQuery executes a read and streams the full result, counting
	// every row while retaining at most sampleCap rows as evidence.
	// sampleCap <= 0 retains no rows.
	RunQuery(ctx context.Context, sql string, sampleCap int) (*QueryOutput, error)

	// DiscoverSchema captures a snapshot of the database's tables,
	// columns, primary keys, and row count estimates.
	DiscoverSchema(ctx context.Context) (*models.SchemaSnapshot, error)

	// Ping verifies the database is reachable with valid credentials.
	Ping(ctx context.Context) error

	// Close releases the pool.
	Close() error
}
