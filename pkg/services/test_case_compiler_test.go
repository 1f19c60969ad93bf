package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veridata-labs/veridata-engine/pkg/models"
)

func compilerSnapshots() (*models.SchemaSnapshot, *models.SchemaSnapshot) {
	tables := []models.TableInfo{
		{Name: "orders", Columns: []models.ColumnInfo{{Name: "id", DataType: "bigint"}, {Name: "total", DataType: "numeric"}}},
		{Name: "customers", Columns: []models.ColumnInfo{{Name: "id", DataType: "bigint"}}},
	}
	return &models.SchemaSnapshot{DatabaseID: SourceDatabaseID, Tables: tables},
		&models.SchemaSnapshot{DatabaseID: TargetDatabaseID, Tables: tables}
}

func TestCompileCountCase(t *testing.T) {
	c := NewTestCaseCompiler(zap.NewNop())
	source, target := compilerSnapshots()

	spec := models.TestCaseSpec{
		ID:               "tc_1",
		Name:             "orders row count",
		ComparisonPolicy: models.PolicyCount,
		SourceSQL:        "SELECT count(*) FROM orders;",
		TargetSQL:        "SELECT count(*) FROM orders",
	}

	tc, err := c.Compile(spec, source, target)
	require.NoError(t, err)
	require.NotNil(t, tc.Source)
	require.NotNil(t, tc.Target)
	assert.Equal(t, SourceDatabaseID, tc.Source.DatabaseID)
	assert.Equal(t, TargetDatabaseID, tc.Target.DatabaseID)
	assert.Equal(t, "SELECT count(*) FROM orders", tc.Source.SQL, "trailing semicolon is normalized away")
	assert.Equal(t, tc.Source.SQL, tc.Spec.SourceSQL)
}

func TestCompileMissingQuery(t *testing.T) {
	c := NewTestCaseCompiler(zap.NewNop())
	source, target := compilerSnapshots()

	cases := []struct {
		name string
		spec models.TestCaseSpec
	}{
		{"count without source", models.TestCaseSpec{ComparisonPolicy: models.PolicyCount, TargetSQL: "SELECT count(*) FROM orders"}},
		{"count without target", models.TestCaseSpec{ComparisonPolicy: models.PolicyCount, SourceSQL: "SELECT count(*) FROM orders"}},
		{"referential without target", models.TestCaseSpec{ComparisonPolicy: models.PolicyReferential}},
		{"custom with no queries", models.TestCaseSpec{ComparisonPolicy: models.PolicyCustom}},
		{"schema without table", models.TestCaseSpec{ComparisonPolicy: models.PolicySchema}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Compile(tt.spec, source, target)
			var cerr *CompilationError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, ErrKindMissingQuery, cerr.Kind)
		})
	}
}

func TestCompileUnknownReference(t *testing.T) {
	c := NewTestCaseCompiler(zap.NewNop())
	source, target := compilerSnapshots()

	spec := models.TestCaseSpec{
		ComparisonPolicy: models.PolicyCount,
		SourceSQL:        "SELECT count(*) FROM invoices",
		TargetSQL:        "SELECT count(*) FROM orders",
	}

	_, err := c.Compile(spec, source, target)
	var cerr *CompilationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrKindUnknownReference, cerr.Kind)
	assert.Contains(t, cerr.Detail, "invoices")
}

func TestCompileCTEReferencesAreNotUnknown(t *testing.T) {
	c := NewTestCaseCompiler(zap.NewNop())
	source, target := compilerSnapshots()

	spec := models.TestCaseSpec{
		ComparisonPolicy: models.PolicyCount,
		SourceSQL:        "WITH recent AS (SELECT * FROM orders) SELECT count(*) FROM recent",
		TargetSQL:        "SELECT count(*) FROM orders",
	}

	_, err := c.Compile(spec, source, target)
	assert.NoError(t, err)
}

func TestCompileQualifiedAndCasedReferences(t *testing.T) {
	c := NewTestCaseCompiler(zap.NewNop())
	source, target := compilerSnapshots()

	spec := models.TestCaseSpec{
		ComparisonPolicy: models.PolicyCount,
		SourceSQL:        "SELECT count(*) FROM public.Orders",
		TargetSQL:        "SELECT count(*) FROM ORDERS",
	}

	_, err := c.Compile(spec, source, target)
	assert.NoError(t, err)
}

func TestCompileUnsafeStatement(t *testing.T) {
	c := NewTestCaseCompiler(zap.NewNop())
	source, target := compilerSnapshots()

	cases := []string{
		"DELETE FROM orders",
		"SELECT 1; DROP TABLE orders",
		"WITH x AS (UPDATE orders SET total = 0 RETURNING id) SELECT count(*) FROM x",
	}

	for _, sql := range cases {
		spec := models.TestCaseSpec{
			ComparisonPolicy: models.PolicyCustom,
			SourceSQL:        sql,
		}
		_, err := c.Compile(spec, source, target)
		var cerr *CompilationError
		require.ErrorAs(t, err, &cerr, sql)
		assert.Equal(t, ErrKindUnsafeStatement, cerr.Kind, sql)
	}
}

func TestCompileUnknownPolicy(t *testing.T) {
	c := NewTestCaseCompiler(zap.NewNop())
	source, target := compilerSnapshots()

	spec := models.TestCaseSpec{ComparisonPolicy: "fuzzy", SourceSQL: "SELECT 1"}
	_, err := c.Compile(spec, source, target)
	var cerr *CompilationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrKindComparison, cerr.Kind)
}

func TestCompileSchemaCase(t *testing.T) {
	c := NewTestCaseCompiler(zap.NewNop())
	source, target := compilerSnapshots()

	t.Run("table present in both snapshots", func(t *testing.T) {
		spec := models.TestCaseSpec{
			ComparisonPolicy: models.PolicySchema,
			Expected:         models.ExpectedRelation{Table: "orders"},
		}
		tc, err := c.Compile(spec, source, target)
		require.NoError(t, err)
		assert.Nil(t, tc.Source)
		assert.Nil(t, tc.Target)
	})

	t.Run("table missing from target", func(t *testing.T) {
		spec := models.TestCaseSpec{
			ComparisonPolicy: models.PolicySchema,
			Expected:         models.ExpectedRelation{Table: "payments"},
		}
		_, err := c.Compile(spec, source, target)
		var cerr *CompilationError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, ErrKindUnknownReference, cerr.Kind)
	})
}

func TestCompileIsDeterministic(t *testing.T) {
	c := NewTestCaseCompiler(zap.NewNop())
	source, target := compilerSnapshots()

	spec := models.TestCaseSpec{
		ID:               "tc_det",
		ComparisonPolicy: models.PolicyData,
		SourceSQL:        "SELECT id, total FROM orders ORDER BY id;",
		TargetSQL:        "SELECT id, total FROM orders ORDER BY id;",
		Expected:         models.ExpectedRelation{KeyColumns: []string{"id"}},
	}

	first, err := c.Compile(spec, source, target)
	require.NoError(t, err)
	second, err := c.Compile(spec, source, target)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
