package mysql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/veridata-labs/veridata-engine/pkg/models"
)

// DiscoverSchema captures tables, columns, primary keys, and row
// estimates from information_schema for the current database.
func (a *Adapter) DiscoverSchema(ctx context.Context) (*models.SchemaSnapshot, error) {
	start := time.Now()

	snapshot := &models.SchemaSnapshot{
		DatabaseID: a.databaseID,
		CapturedAt: time.Now().UTC(),
	}

	tableQuery := `
		SELECT table_name, COALESCE(table_rows, 0)
		FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := a.db.QueryContext(ctx, tableQuery)
	if err != nil {
		return nil, fmt.Errorf("discover tables: %w", err)
	}
	defer rows.Close()

	type tableRow struct {
		name        string
		rowEstimate int64
	}
	var tables []tableRow
	for rows.Next() {
		var tr tableRow
		if err := rows.Scan(&tr.name, &tr.rowEstimate); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		tables = append(tables, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, tr := range tables {
		columns, pks, err := a.discoverColumns(ctx, tr.name)
		if err != nil {
			return nil, fmt.Errorf("discover columns for %s: %w", tr.name, err)
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

func (a *Adapter) discoverColumns(ctx context.Context, tableName string) ([]models.ColumnInfo, []string, error) {
	query := `
		SELECT column_name, data_type, is_nullable, column_default, column_key
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position`

	rows, err := a.db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var columns []models.ColumnInfo
	var pks []string
	for rows.Next() {
		var col models.ColumnInfo
		var nullable, columnKey string
		if err := rows.Scan(&col.Name, &col.DataType, &nullable, &col.Default, &columnKey); err != nil {
			return nil, nil, fmt.Errorf("scan column row: %w", err)
		}
		col.Nullable = strings.EqualFold(nullable, "YES")
		columns = append(columns, col)
		if columnKey == "PRI" {
			pks = append(pks, col.Name)
		}
	}
	return columns, pks, rows.Err()
}
