package services

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/veridata-labs/veridata-engine/pkg/models"
	"github.com/veridata-labs/veridata-engine/pkg/sqlcheck"
)

// TestCaseCompiler validates a spec against the schema snapshots and
// produces an executable test case. Pure and deterministic: the same
// spec and snapshots always compile identically.
type TestCaseCompiler interface {
	Compile(spec models.TestCaseSpec, source, target *models.SchemaSnapshot) (*models.TestCase, error)
}

type testCaseCompiler struct {
	logger *zap.Logger
}

// NewTestCaseCompiler creates a compiler.
func NewTestCaseCompiler(logger *zap.Logger) TestCaseCompiler {
	return &testCaseCompiler{logger: logger.Named("compiler")}
}

func (c *testCaseCompiler) Compile(spec models.TestCaseSpec, source, target *models.SchemaSnapshot) (*models.TestCase, error) {
	policy := spec.ComparisonPolicy
	if !policy.Known() {
		return nil, &CompilationError{
			Kind:   ErrKindComparison,
			Detail: fmt.Sprintf("unknown comparison policy %q", policy),
		}
	}

	if policy == models.PolicySchema {
		return c.compileSchemaCase(spec, source, target)
	}

	if policy.RequiresSource() && spec.SourceSQL == "" {
		return nil, &CompilationError{
			Kind:   ErrKindMissingQuery,
			Detail: fmt.Sprintf("policy %q requires a source query", policy),
		}
	}
	if policy.RequiresTarget() && spec.TargetSQL == "" {
		return nil, &CompilationError{
			Kind:   ErrKindMissingQuery,
			Detail: fmt.Sprintf("policy %q requires a target query", policy),
		}
	}
	if spec.SourceSQL == "" && spec.TargetSQL == "" {
		return nil, &CompilationError{
			Kind:   ErrKindMissingQuery,
			Detail: "at least one of source/target SQL must be present",
		}
	}

	tc := &models.TestCase{Spec: spec}

	if spec.SourceSQL != "" {
		stmt, err := compileStatement(SourceDatabaseID, spec.SourceSQL, source)
		if err != nil {
			return nil, err
		}
		tc.Source = stmt
		tc.Spec.SourceSQL = stmt.SQL
	}
	if spec.TargetSQL != "" {
		stmt, err := compileStatement(TargetDatabaseID, spec.TargetSQL, target)
		if err != nil {
			return nil, err
		}
		tc.Target = stmt
		tc.Spec.TargetSQL = stmt.SQL
	}

	return tc, nil
}

func (c *testCaseCompiler) compileSchemaCase(spec models.TestCaseSpec, source, target *models.SchemaSnapshot) (*models.TestCase, error) {
	table := strings.TrimSpace(spec.Expected.Table)
	if table == "" {
		return nil, &CompilationError{
			Kind:   ErrKindMissingQuery,
			Detail: "schema policy requires expected_relation.table",
		}
	}
	if source.Table(table) == nil {
		return nil, &CompilationError{
			Kind:   ErrKindUnknownReference,
			Detail: fmt.Sprintf("table %q not found in source schema", table),
		}
	}
	if target.Table(table) == nil {
		return nil, &CompilationError{
			Kind:   ErrKindUnknownReference,
			Detail: fmt.Sprintf("table %q not found in target schema", table),
		}
	}
	return &models.TestCase{Spec: spec}, nil
}

// compileStatement vets one side's SQL and checks its table
// references against the snapshot.
func compileStatement(databaseID, sql string, snapshot *models.SchemaSnapshot) (*models.Statement, error) {
	normalized, err := sqlcheck.Vet(sql)
	if err != nil {
		return nil, &CompilationError{
			Kind:   ErrKindUnsafeStatement,
			Detail: fmt.Sprintf("%s query rejected: %v", databaseID, err),
		}
	}

	if err := checkTableReferences(databaseID, normalized, snapshot); err != nil {
		return nil, err
	}

	return &models.Statement{DatabaseID: databaseID, SQL: normalized}, nil
}

// tableRefPattern captures identifiers following FROM or JOIN. It is a
// best-effort static check, not a SQL parser; subqueries and derived
// tables are skipped by the leading-parenthesis exclusion.
var tableRefPattern = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([a-zA-Z_][a-zA-Z0-9_.]*)`)

func checkTableReferences(databaseID, sql string, snapshot *models.SchemaSnapshot) error {
	if snapshot == nil || len(snapshot.Tables) == 0 {
		return nil
	}

	cteNames := collectCTENames(sql)

	for _, match := range tableRefPattern.FindAllStringSubmatch(sql, -1) {
		ref := match[1]
		if cteNames[strings.ToLower(ref)] {
			continue
		}
		if snapshot.Table(ref) == nil {
			return &CompilationError{
				Kind:   ErrKindUnknownReference,
				Detail: fmt.Sprintf("%s query references %q, which is not in the %s schema", databaseID, ref, databaseID),
			}
		}
	}
	return nil
}

// ctePattern captures names bound by WITH ... AS so references to CTEs
// are not mistaken for missing tables.
var ctePattern = regexp.MustCompile(`(?i)\b(?:WITH|,)\s*([a-zA-Z_][a-zA-Z0-9_]*)\s+AS\s*\(`)

func collectCTENames(sql string) map[string]bool {
	names := make(map[string]bool)
	for _, match := range ctePattern.FindAllStringSubmatch(sql, -1) {
		names[strings.ToLower(match[1])] = true
	}
	return names
}
