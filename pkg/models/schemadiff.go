package models

import (
	"fmt"
	"strings"
)

// ColumnMismatch records a column whose definition differs between
// source and target.
type ColumnMismatch struct {
	Column     string `json:"column"`
	SourceType string `json:"source_type"`
	TargetType string `json:"target_type"`
	Detail     string `json:"detail"`
}

// TableDiff describes how one table differs between snapshots.
type TableDiff struct {
	Table               string           `json:"table"`
	ColumnsOnlyInSource []string         `json:"columns_only_in_source,omitempty"`
	ColumnsOnlyInTarget []string         `json:"columns_only_in_target,omitempty"`
	Mismatches          []ColumnMismatch `json:"mismatches,omitempty"`
}

// Identical reports whether the table matched on both sides.
func (d *TableDiff) Identical() bool {
	return len(d.ColumnsOnlyInSource) == 0 && len(d.ColumnsOnlyInTarget) == 0 && len(d.Mismatches) == 0
}

// Summary renders a one-line description of the diff.
func (d *TableDiff) Summary() string {
	if d.Identical() {
		return fmt.Sprintf("table %s: columns match", d.Table)
	}
	var parts []string
	if n := len(d.ColumnsOnlyInSource); n > 0 {
		parts = append(parts, fmt.Sprintf("%d column(s) only in source (%s)", n, strings.Join(d.ColumnsOnlyInSource, ", ")))
	}
	if n := len(d.ColumnsOnlyInTarget); n > 0 {
		parts = append(parts, fmt.Sprintf("%d column(s) only in target (%s)", n, strings.Join(d.ColumnsOnlyInTarget, ", ")))
	}
	if n := len(d.Mismatches); n > 0 {
		parts = append(parts, fmt.Sprintf("%d type/nullability mismatch(es)", n))
	}
	return fmt.Sprintf("table %s: %s", d.Table, strings.Join(parts, "; "))
}

// SchemaComparison is the structural diff of two snapshots.
type SchemaComparison struct {
	TablesOnlyInSource []string    `json:"tables_only_in_source,omitempty"`
	TablesOnlyInTarget []string    `json:"tables_only_in_target,omitempty"`
	TableDiffs         []TableDiff `json:"table_diffs,omitempty"`
}

// Identical reports whether the snapshots matched structurally.
func (c *SchemaComparison) Identical() bool {
	if len(c.TablesOnlyInSource) > 0 || len(c.TablesOnlyInTarget) > 0 {
		return false
	}
	for i := range c.TableDiffs {
		if !c.TableDiffs[i].Identical() {
			return false
		}
	}
	return true
}

// CompareTables diffs one table's column definitions between two
// snapshots' views of it. Column matching is case-insensitive; data
// types are compared as reported by each dialect, so cross-dialect
// runs should expect type mismatches to be advisory.
func CompareTables(source, target *TableInfo) TableDiff {
	diff := TableDiff{Table: source.Name}

	for i := range source.Columns {
		sc := &source.Columns[i]
		tc := target.Column(sc.Name)
		if tc == nil {
			diff.ColumnsOnlyInSource = append(diff.ColumnsOnlyInSource, sc.Name)
			continue
		}
		if !strings.EqualFold(sc.DataType, tc.DataType) {
			diff.Mismatches = append(diff.Mismatches, ColumnMismatch{
				Column:     sc.Name,
				SourceType: sc.DataType,
				TargetType: tc.DataType,
				Detail:     "data type differs",
			})
		} else if sc.Nullable != tc.Nullable {
			diff.Mismatches = append(diff.Mismatches, ColumnMismatch{
				Column:     sc.Name,
				SourceType: sc.DataType,
				TargetType: tc.DataType,
				Detail:     "nullability differs",
			})
		}
	}

	for i := range target.Columns {
		if source.Column(target.Columns[i].Name) == nil {
			diff.ColumnsOnlyInTarget = append(diff.ColumnsOnlyInTarget, target.Columns[i].Name)
		}
	}

	return diff
}

// CompareSnapshots diffs every table present in either snapshot.
func CompareSnapshots(source, target *SchemaSnapshot) *SchemaComparison {
	cmp := &SchemaComparison{}

	for i := range source.Tables {
		st := &source.Tables[i]
		tt := target.Table(st.Name)
		if tt == nil {
			cmp.TablesOnlyInSource = append(cmp.TablesOnlyInSource, st.Name)
			continue
		}
		cmp.TableDiffs = append(cmp.TableDiffs, CompareTables(st, tt))
	}

	for i := range target.Tables {
		if source.Table(target.Tables[i].Name) == nil {
			cmp.TablesOnlyInTarget = append(cmp.TablesOnlyInTarget, target.Tables[i].Name)
		}
	}

	return cmp
}
