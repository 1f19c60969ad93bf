package sqlserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/veridata-labs/veridata-engine/pkg/models"
)

// DiscoverSchema captures tables, columns, primary keys, and partition
// row estimates for all user tables.
func (a *Adapter) DiscoverSchema(ctx context.Context) (*models.SchemaSnapshot, error) {
	start := time.Now()

	snapshot := &models.SchemaSnapshot{
		DatabaseID: a.databaseID,
		CapturedAt: time.Now().UTC(),
	}

	tableQuery := `
		SET NOCOUNT ON;
		SELECT
			SCHEMA_NAME(t.schema_id) AS table_schema,
			t.name AS table_name,
			COALESCE(SUM(p.rows), 0) AS row_estimate
		FROM sys.tables t
		LEFT JOIN sys.partitions p ON p.object_id = t.object_id AND p.index_id IN (0, 1)
		WHERE t.is_ms_shipped = 0
		GROUP BY t.schema_id, t.name
		ORDER BY table_schema, table_name`

	rows, err := a.db.QueryContext(ctx, tableQuery)
	if err != nil {
		return nil, fmt.Errorf("discover tables: %w", err)
	}
	defer rows.Close()

	type tableRow struct {
		schema      string
		name        string
		rowEstimate int64
	}
	var tables []tableRow
	for rows.Next() {
		var tr tableRow
		if err := rows.Scan(&tr.schema, &tr.name, &tr.rowEstimate); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		tables = append(tables, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, tr := range tables {
		columns, pks, err := a.discoverColumns(ctx, tr.schema, tr.name)
		if err != nil {
			return nil, fmt.Errorf("discover columns for %s.%s: %w", tr.schema, tr.name, err)
		}
		snapshot.Tables = append(snapshot.Tables, models.TableInfo{
			Name:             tr.name,
			Columns:          columns,
			PrimaryKeys:      pks,
			RowCountEstimate: tr.rowEstimate,
		})
	}

	a.logger.Info("schema discovered",
		zap.Int("tables", len(snapshot.Tables)),
		zap.Duration("elapsed", time.Since(start)))

	return snapshot, nil
}

func (a *Adapter) discoverColumns(ctx context.Context, schemaName, tableName string) ([]models.ColumnInfo, []string, error) {
	query := `
		SET NOCOUNT ON;
		SELECT
			c.COLUMN_NAME,
			c.DATA_TYPE,
			c.IS_NULLABLE,
			c.COLUMN_DEFAULT,
			CASE WHEN pk.COLUMN_NAME IS NOT NULL THEN 1 ELSE 0 END AS is_primary
		FROM INFORMATION_SCHEMA.COLUMNS c
		LEFT JOIN (
			SELECT kcu.COLUMN_NAME
			FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
			JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
				ON kcu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
				AND kcu.TABLE_SCHEMA = tc.TABLE_SCHEMA
			WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
				AND tc.TABLE_SCHEMA = @p1 AND tc.TABLE_NAME = @p2
		) pk ON pk.COLUMN_NAME = c.COLUMN_NAME
		WHERE c.TABLE_SCHEMA = @p1 AND c.TABLE_NAME = @p2
		ORDER BY c.ORDINAL_POSITION`

	rows, err := a.db.QueryContext(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var columns []models.ColumnInfo
	var pks []string
	for rows.Next() {
		var col models.ColumnInfo
		var nullable string
		var isPrimary int
		if err := rows.Scan(&col.Name, &col.DataType, &nullable, &col.Default, &isPrimary); err != nil {
			return nil, nil, fmt.Errorf("scan column row: %w", err)
		}
		col.Nullable = strings.EqualFold(nullable, "YES")
		columns = append(columns, col)
		if isPrimary == 1 {
			pks = append(pks, col.Name)
		}
	}
	return columns, pks, rows.Err()
}
