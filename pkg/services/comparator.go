package services

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/veridata-labs/veridata-engine/pkg/models"
)

// defaultFloatTolerance is the relative tolerance for float
// aggregation comparisons when the test case does not set one.
const defaultFloatTolerance = 1e-6

// Comparator turns executed query results into a verdict under the
// test case's comparison policy.
type Comparator interface {
	Compare(tc *models.TestCase, sourceResult, targetResult *models.QueryExecutionResult, source, target *models.SchemaSnapshot) (models.TestStatus, string)
}

type comparator struct {
	logger *zap.Logger
}

// NewComparator creates a comparator.
func NewComparator(logger *zap.Logger) Comparator {
	return &comparator{logger: logger.Named("comparator")}
}

func (c *comparator) Compare(tc *models.TestCase, sourceResult, targetResult *models.QueryExecutionResult, source, target *models.SchemaSnapshot) (models.TestStatus, string) {
	policy := tc.Spec.ComparisonPolicy

	// An executor failure on any required side is an error verdict
	// regardless of policy.
	if policy.RequiresSource() || tc.Source != nil {
		if status, msg, failed := requireSuccess(sourceResult, policy.RequiresSource()); failed {
			return status, msg
		}
	}
	if policy.RequiresTarget() || tc.Target != nil {
		if status, msg, failed := requireSuccess(targetResult, policy.RequiresTarget()); failed {
			return status, msg
		}
	}

	switch policy {
	case models.PolicyCount:
		return compareCounts(sourceResult, targetResult, tc.Spec.Expected)
	case models.PolicyData:
		return compareData(sourceResult, targetResult, tc.Spec.Expected)
	case models.PolicyAggregation:
		return compareAggregation(sourceResult, targetResult, tc.Spec.Expected)
	case models.PolicyReferential:
		return compareReferential(targetResult)
	case models.PolicySchema:
		return compareSchema(tc.Spec.Expected.Table, source, target)
	case models.PolicyCustom:
		return compareCustom(sourceResult, targetResult, tc.Spec.Expected)
	default:
		return models.StatusError, fmt.Sprintf("%s: unknown comparison policy %q", ErrKindComparison, policy)
	}
}

// requireSuccess reports (status, message, true) when the result is
// unusable for a side the policy needs.
func requireSuccess(result *models.QueryExecutionResult, required bool) (models.TestStatus, string, bool) {
	if result == nil {
		if required {
			return models.StatusError, fmt.Sprintf("%s: required query result is missing", ErrKindComparison), true
		}
		return "", "", false
	}
	if !result.Success {
		return models.StatusError, result.Error, true
	}
	return "", "", false
}

func compareCounts(source, target *models.QueryExecutionResult, expected models.ExpectedRelation) (models.TestStatus, string) {
	tolerance := int64(0)
	if expected.Tolerance != nil {
		tolerance = int64(*expected.Tolerance)
	}

	diff := source.RowCount - target.RowCount
	if diff < 0 {
		diff = -diff
	}

	if diff <= tolerance {
		return models.StatusPassed, fmt.Sprintf("row counts match: source=%d, target=%d", source.RowCount, target.RowCount)
	}
	return models.StatusFailed, fmt.Sprintf("row count mismatch: source=%d, target=%d (difference %d exceeds tolerance %d)",
		source.RowCount, target.RowCount, diff, tolerance)
}

func compareData(source, target *models.QueryExecutionResult, expected models.ExpectedRelation) (models.TestStatus, string) {
	if source.RowCount != target.RowCount {
		return models.StatusFailed, fmt.Sprintf("row count mismatch: source=%d, target=%d", source.RowCount, target.RowCount)
	}

	keyCols := expected.KeyColumns
	if len(keyCols) == 0 {
		keyCols = source.Columns
	}
	compareCols := expected.CompareColumns
	if len(compareCols) == 0 {
		compareCols = nonKeyColumns(source.Columns, keyCols)
	}

	sourceByKey := indexRowsByKey(source.SampleRows, keyCols)
	targetByKey := indexRowsByKey(target.SampleRows, keyCols)

	var missingInTarget, extraInTarget, valueMismatches int
	for key, srcRow := range sourceByKey {
		tgtRow, ok := targetByKey[key]
		if !ok {
			missingInTarget++
			continue
		}
		if !rowsEqualOn(srcRow, tgtRow, compareCols) {
			valueMismatches++
		}
	}
	for key := range targetByKey {
		if _, ok := sourceByKey[key]; !ok {
			extraInTarget++
		}
	}

	if missingInTarget == 0 && extraInTarget == 0 && valueMismatches == 0 {
		return models.StatusPassed, fmt.Sprintf("data matches on %d compared row(s) (of %d total)", len(sourceByKey), source.RowCount)
	}
	return models.StatusFailed, fmt.Sprintf(
		"data mismatch in compared sample: %d row(s) missing in target, %d extra in target, %d with differing values",
		missingInTarget, extraInTarget, valueMismatches)
}

func compareAggregation(source, target *models.QueryExecutionResult, expected models.ExpectedRelation) (models.TestStatus, string) {
	if len(source.SampleRows) == 0 || len(target.SampleRows) == 0 {
		return models.StatusError, fmt.Sprintf("%s: aggregation query returned no rows (source=%d, target=%d)",
			ErrKindComparison, len(source.SampleRows), len(target.SampleRows))
	}

	tolerance := defaultFloatTolerance
	if expected.Tolerance != nil {
		tolerance = *expected.Tolerance
	}

	srcRow := source.SampleRows[0]
	tgtRow := target.SampleRows[0]

	var mismatches []string
	for _, col := range source.Columns {
		srcVal, tgtVal := srcRow[col], tgtRow[col]
		if !valuesMatch(srcVal, tgtVal, tolerance) {
			mismatches = append(mismatches, fmt.Sprintf("%s: source=%v, target=%v", col, srcVal, tgtVal))
		}
	}

	if len(mismatches) == 0 {
		return models.StatusPassed, "aggregation values match"
	}
	return models.StatusFailed, "aggregation mismatch: " + strings.Join(mismatches, "; ")
}

func compareReferential(target *models.QueryExecutionResult) (models.TestStatus, string) {
	if target.RowCount == 0 {
		return models.StatusPassed, "no orphan rows found"
	}
	return models.StatusFailed, fmt.Sprintf("%d orphan row(s) found", target.RowCount)
}

func compareSchema(table string, source, target *models.SchemaSnapshot) (models.TestStatus, string) {
	if source == nil || target == nil {
		return models.StatusError, fmt.Sprintf("%s: schema snapshots unavailable", ErrKindComparison)
	}

	srcTable := source.Table(table)
	tgtTable := target.Table(table)
	if srcTable == nil || tgtTable == nil {
		return models.StatusError, fmt.Sprintf("%s: table %q missing from a snapshot", ErrKindComparison, table)
	}

	diff := models.CompareTables(srcTable, tgtTable)
	if diff.Identical() {
		return models.StatusPassed, diff.Summary()
	}
	return models.StatusFailed, diff.Summary()
}

func compareCustom(source, target *models.QueryExecutionResult, expected models.ExpectedRelation) (models.TestStatus, string) {
	result := source
	if result == nil {
		result = target
	}
	if result == nil {
		return models.StatusError, fmt.Sprintf("%s: custom policy has no query result", ErrKindComparison)
	}

	actual := customValue(result)

	pass, err := evaluateOperator(actual, expected.Operator, expected.Value)
	if err != nil {
		return models.StatusError, fmt.Sprintf("%s: %v", ErrKindComparison, err)
	}
	if pass {
		return models.StatusPassed, fmt.Sprintf("condition satisfied: %v %s %v", actual, expected.Operator, expected.Value)
	}
	return models.StatusFailed, fmt.Sprintf("condition not satisfied: %v %s %v", actual, expected.Operator, expected.Value)
}

// customValue picks what the custom predicate applies to: a single
// scalar result when the query produced exactly one, else the row
// count.
func customValue(result *models.QueryExecutionResult) float64 {
	if result.RowCount == 1 && len(result.SampleRows) == 1 && len(result.Columns) == 1 {
		if v, ok := toFloat(result.SampleRows[0][result.Columns[0]]); ok {
			return v
		}
	}
	return float64(result.RowCount)
}

func evaluateOperator(actual float64, operator string, value float64) (bool, error) {
	switch strings.TrimSpace(operator) {
	case "==", "=", "":
		return actual == value, nil
	case "!=", "<>":
		return actual != value, nil
	case ">":
		return actual > value, nil
	case ">=":
		return actual >= value, nil
	case "<":
		return actual < value, nil
	case "<=":
		return actual <= value, nil
	default:
		return false, fmt.Errorf("unsupported operator %q in expected relation", operator)
	}
}

func nonKeyColumns(columns, keyCols []string) []string {
	keys := make(map[string]bool, len(keyCols))
	for _, k := range keyCols {
		keys[strings.ToLower(k)] = true
	}
	var out []string
	for _, col := range columns {
		if !keys[strings.ToLower(col)] {
			out = append(out, col)
		}
	}
	return out
}

func indexRowsByKey(rows []models.Row, keyCols []string) map[string]models.Row {
	indexed := make(map[string]models.Row, len(rows))
	for _, row := range rows {
		parts := make([]string, len(keyCols))
		for i, col := range keyCols {
			parts[i] = canonicalValue(row[col])
		}
		indexed[strings.Join(parts, "\x1f")] = row
	}
	return indexed
}

func rowsEqualOn(a, b models.Row, columns []string) bool {
	for _, col := range columns {
		if canonicalValue(a[col]) != canonicalValue(b[col]) {
			return false
		}
	}
	return true
}

// canonicalValue normalizes driver-specific representations so the
// same logical value compares equal across dialects.
func canonicalValue(v any) string {
	if v == nil {
		return "\x00"
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}

// valuesMatch compares aggregation values: integers exactly, floats
// within relative tolerance, everything else canonically as text.
func valuesMatch(a, b any, tolerance float64) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		if af == bf {
			return true
		}
		if isInteger(a) && isInteger(b) {
			return false
		}
		scale := math.Max(math.Abs(af), math.Abs(bf))
		if scale == 0 {
			return false
		}
		return math.Abs(af-bf)/scale <= tolerance
	}
	return canonicalValue(a) == canonicalValue(b)
}

func isInteger(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint32, uint64:
		return true
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
