package postgres

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veridata-labs/veridata-engine/pkg/models"
)

// DiscoverSchema captures tables, columns, primary keys, and planner
// row estimates for all user tables.
func (a *Adapter) DiscoverSchema(ctx context.Context) (*models.SchemaSnapshot, error) {
	start := time.Now()

	tables, err := a.discoverTables(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := &models.SchemaSnapshot{
		DatabaseID: a.databaseID,
		CapturedAt: time.Now().UTC(),
		Tables:     make([]models.TableInfo, 0, len(tables)),
	}

	for _, tbl := range tables {
		columns, pks, err := a.discoverColumns(ctx, tbl.schema, tbl.name)
		if err != nil {
			return nil, fmt.Errorf("discover columns for %s.%s: %w", tbl.schema, tbl.name, err)
		}
		snapshot.Tables = append(snapshot.Tables, models.TableInfo{
			Name:             tbl.name,
			Columns:          columns,
			PrimaryKeys:      pks,
			RowCountEstimate: tbl.rowEstimate,
		})
	}

	a.logger.Info("schema discovered",
		zap.Int("tables", len(snapshot.Tables)),
		zap.Duration("elapsed", time.Since(start)))

	return snapshot, nil
}

type discoveredTable struct {
	schema      string
	name        string
	rowEstimate int64
}

func (a *Adapter) discoverTables(ctx context.Context) ([]discoveredTable, error) {
	query := `
		SELECT
			t.table_schema,
			t.table_name,
			COALESCE(c.reltuples::bigint, 0) AS row_estimate
		FROM information_schema.tables t
		LEFT JOIN pg_namespace n ON n.nspname = t.table_schema
		LEFT JOIN pg_class c ON c.relname = t.table_name AND c.relnamespace = n.oid
		WHERE t.table_type = 'BASE TABLE'
		  AND t.table_schema NOT IN ('pg_catalog', 'information_schema')
		ORDER BY t.table_schema, t.table_name`

	rows, err := a.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("discover tables: %w", err)
	}
	defer rows.Close()

	var tables []discoveredTable
	for rows.Next() {
		var tbl discoveredTable
		if err := rows.Scan(&tbl.schema, &tbl.name, &tbl.rowEstimate); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		// Negative reltuples means the table was never analyzed.
		if tbl.rowEstimate < 0 {
			tbl.rowEstimate = 0
		}
		tables = append(tables, tbl)
	}
	return tables, rows.Err()
}

func (a *Adapter) discoverColumns(ctx context.Context, schemaName, tableName string) ([]models.ColumnInfo, []string, error) {
	query := `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES' AS nullable,
			c.column_default,
			COALESCE(pk.is_pk, false) AS is_primary
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT a.attname AS column_name, true AS is_pk
			FROM pg_index ix
			JOIN pg_class t ON t.oid = ix.indrelid
			JOIN pg_namespace n ON n.oid = t.relnamespace
			JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
			WHERE ix.indisprimary AND t.relname = $2 AND n.nspname = $1
		) pk ON pk.column_name = c.column_name
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position`

	rows, err := a.pool.Query(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var columns []models.ColumnInfo
	var pks []string
	for rows.Next() {
		var col models.ColumnInfo
		var isPrimary bool
		if err := rows.Scan(&col.Name, &col.DataType, &col.Nullable, &col.Default, &isPrimary); err != nil {
			return nil, nil, fmt.Errorf("scan column row: %w", err)
		}
		columns = append(columns, col)
		if isPrimary {
			pks = append(pks, col.Name)
		}
	}
	return columns, pks, rows.Err()
}
