package models

import (
	"strings"
	"time"
)

// ColumnInfo describes a single column in a captured schema.
type ColumnInfo struct {
	Name     string  `json:"name"`
	DataType string  `json:"data_type"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default,omitempty"`
}

// TableInfo describes a table in a captured schema.
type TableInfo struct {
	Name             string       `json:"name"`
	Columns          []ColumnInfo `json:"columns"`
	PrimaryKeys      []string     `json:"primary_keys,omitempty"`
	RowCountEstimate int64        `json:"row_count_estimate"`
}

// SchemaSnapshot is an immutable, point-in-time description of a
// database's structure. It is captured once per validation run and only
// read afterwards; everything downstream (generation, compilation,
// schema comparison) consumes it as context.
type SchemaSnapshot struct {
	DatabaseID string      `json:"database_id"`
	CapturedAt time.Time   `json:"captured_at"`
	Tables     []TableInfo `json:"tables"`
}

// Table looks up a table by name, case-insensitively. A qualifier
// prefix ("public.orders") on either side is ignored so that generated
// SQL referencing bare table names still resolves.
func (s *SchemaSnapshot) Table(name string) *TableInfo {
	want := normalizeTableName(name)
	for i := range s.Tables {
		if normalizeTableName(s.Tables[i].Name) == want {
			return &s.Tables[i]
		}
	}
	return nil
}

// Column looks up a column by name, case-insensitively.
func (t *TableInfo) Column(name string) *ColumnInfo {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i]
		}
	}
	return nil
}

// ColumnNames returns the table's column names in order.
func (t *TableInfo) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

func normalizeTableName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return strings.Trim(name, `"`)
}
