package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veridata-labs/veridata-engine/pkg/adapters/datasource"
	"github.com/veridata-labs/veridata-engine/pkg/apperrors"
	"github.com/veridata-labs/veridata-engine/pkg/models"
)

// stubGenerator returns canned specs without touching a model.
type stubGenerator struct {
	specs []models.TestCaseSpec
	err   error
}

func (s *stubGenerator) GenerateTestCases(ctx context.Context, rules string, source, target *models.SchemaSnapshot) ([]models.TestCaseSpec, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.TestCaseSpec, len(s.specs))
	copy(out, s.specs)
	return out, nil
}

func (s *stubGenerator) GenerateSQL(ctx context.Context, description string, schema *models.SchemaSnapshot) (string, error) {
	return "", errors.New("not implemented")
}

type queryStub struct {
	output *datasource.QueryOutput
	delay  time.Duration
}

func orchestratorFixture(t *testing.T, specs []models.TestCaseSpec, queries map[string]queryStub, cfg OrchestratorConfig) (ValidationOrchestrator, *datasource.MockAdapter, *datasource.MockAdapter) {
	t.Helper()

	runQuery := func(ctx context.Context, sql string, sampleCap int) (*datasource.QueryOutput, error) {
		stub, ok := queries[sql]
		if !ok {
			return &datasource.QueryOutput{}, nil
		}
		if stub.delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(stub.delay):
			}
		}
		if stub.output == nil {
			return &datasource.QueryOutput{}, nil
		}
		return stub.output, nil
	}

	tables := []models.TableInfo{
		{Name: "orders", Columns: []models.ColumnInfo{{Name: "id", DataType: "bigint"}, {Name: "total", DataType: "numeric"}}},
		{Name: "customers", Columns: []models.ColumnInfo{{Name: "id", DataType: "bigint"}}},
	}

	source := datasource.NewMockAdapter(SourceDatabaseID)
	source.RunQueryFunc = runQuery
	source.DiscoverSchemaFunc = func(ctx context.Context) (*models.SchemaSnapshot, error) {
		return &models.SchemaSnapshot{DatabaseID: SourceDatabaseID, Tables: tables}, nil
	}
	target := datasource.NewMockAdapter(TargetDatabaseID)
	target.RunQueryFunc = runQuery
	target.DiscoverSchemaFunc = func(ctx context.Context) (*models.SchemaSnapshot, error) {
		return &models.SchemaSnapshot{DatabaseID: TargetDatabaseID, Tables: tables}, nil
	}

	adapters := map[string]datasource.Adapter{SourceDatabaseID: source, TargetDatabaseID: target}
	logger := zap.NewNop()

	orch := NewValidationOrchestrator(
		NewSchemaService(adapters, logger),
		&stubGenerator{specs: specs},
		NewTestCaseCompiler(logger),
		NewQueryExecutor(adapters, ExecutorConfig{}, logger),
		NewComparator(logger),
		cfg,
		logger,
	)
	return orch, source, target
}

func countSpec(id, sql string) models.TestCaseSpec {
	return models.TestCaseSpec{
		ID:               id,
		Name:             id,
		ComparisonPolicy: models.PolicyCount,
		Severity:         models.SeverityCritical,
		SourceSQL:        sql,
		TargetSQL:        sql,
	}
}

func TestRunEndToEnd(t *testing.T) {
	specs := []models.TestCaseSpec{countSpec("orders_count", "SELECT id FROM orders")}
	queries := map[string]queryStub{
		"SELECT id FROM orders": {output: &datasource.QueryOutput{Columns: []string{"id"}, RowCount: 500}},
	}

	orch, _, _ := orchestratorFixture(t, specs, queries, OrchestratorConfig{})

	report, err := orch.Run(context.Background(), "order counts must match", "migration check")
	require.NoError(t, err)

	assert.Equal(t, models.RunPassed, report.OverallStatus)
	assert.Equal(t, 1, report.Summary.Total)
	assert.Equal(t, 1, report.Summary.Passed)
	assert.Equal(t, 100.0, report.Summary.PassRate)
	assert.False(t, report.HasCriticalFailures)
	assert.NotEmpty(t, report.ReportID)
	assert.Equal(t, "migration check", report.Name)

	require.Len(t, report.TestResults, 1)
	result := report.TestResults[0]
	assert.Equal(t, models.StatusPassed, result.Status)
	require.NotNil(t, result.SourceResult)
	require.NotNil(t, result.TargetResult)
	assert.Equal(t, int64(500), result.SourceResult.RowCount)
	assert.Equal(t, int64(500), result.TargetResult.RowCount)
}

func TestRunCriticalOrphansFailTheRun(t *testing.T) {
	specs := []models.TestCaseSpec{
		countSpec("orders_count", "SELECT id FROM orders"),
		{
			ID:               "orphan_orders",
			Name:             "orphan_orders",
			ComparisonPolicy: models.PolicyReferential,
			Severity:         models.SeverityCritical,
			TargetSQL:        "SELECT o.id FROM orders o LEFT JOIN customers c ON o.id = c.id WHERE c.id IS NULL",
		},
	}
	queries := map[string]queryStub{
		"SELECT id FROM orders": {output: &datasource.QueryOutput{Columns: []string{"id"}, RowCount: 500}},
		"SELECT o.id FROM orders o LEFT JOIN customers c ON o.id = c.id WHERE c.id IS NULL": {
			output: &datasource.QueryOutput{Columns: []string{"id"}, RowCount: 3},
		},
	}

	orch, _, _ := orchestratorFixture(t, specs, queries, OrchestratorConfig{})

	report, err := orch.Run(context.Background(), "no orphan orders", "")
	require.NoError(t, err)

	assert.Equal(t, models.RunFailed, report.OverallStatus)
	assert.True(t, report.HasCriticalFailures)
	assert.Equal(t, 1, report.Summary.Passed)
	assert.Equal(t, 1, report.Summary.Failed)
	assert.Equal(t, 50.0, report.Summary.PassRate)

	orphan := report.TestResults[1]
	assert.Equal(t, models.StatusFailed, orphan.Status)
	assert.Contains(t, orphan.Message, "3 orphan row(s)")
}

func TestRunWarningFailureIsPartial(t *testing.T) {
	specs := []models.TestCaseSpec{
		countSpec("orders_count", "SELECT id FROM orders"),
		{
			ID:               "totals_drift",
			Name:             "totals_drift",
			ComparisonPolicy: models.PolicyCount,
			Severity:         models.SeverityWarning,
			SourceSQL:        "SELECT total FROM orders",
			TargetSQL:        "SELECT id FROM customers",
		},
	}
	queries := map[string]queryStub{
		"SELECT id FROM orders":    {output: &datasource.QueryOutput{RowCount: 500}},
		"SELECT total FROM orders": {output: &datasource.QueryOutput{RowCount: 500}},
		"SELECT id FROM customers": {output: &datasource.QueryOutput{RowCount: 400}},
	}

	orch, _, _ := orchestratorFixture(t, specs, queries, OrchestratorConfig{})

	report, err := orch.Run(context.Background(), "rules", "")
	require.NoError(t, err)
	assert.Equal(t, models.RunPartial, report.OverallStatus)
	assert.False(t, report.HasCriticalFailures)
}

func TestRunPreservesSpecOrder(t *testing.T) {
	const n = 20
	specs := make([]models.TestCaseSpec, n)
	queries := make(map[string]queryStub, n)
	for i := 0; i < n; i++ {
		sql := fmt.Sprintf("SELECT id FROM orders WHERE total > %d", i)
		specs[i] = countSpec(fmt.Sprintf("tc_%02d", i), sql)
		// Later test cases finish first.
		queries[sql] = queryStub{
			output: &datasource.QueryOutput{RowCount: int64(i)},
			delay:  time.Duration(n-i) * 2 * time.Millisecond,
		}
	}

	orch, _, _ := orchestratorFixture(t, specs, queries, OrchestratorConfig{Workers: 4})

	report, err := orch.Run(context.Background(), "rules", "")
	require.NoError(t, err)
	require.Len(t, report.TestResults, n)

	for i, result := range report.TestResults {
		assert.Equal(t, fmt.Sprintf("tc_%02d", i), result.TestCaseID, "results must follow spec order")
	}
}

func TestRunIsolatesCompilationFailures(t *testing.T) {
	specs := []models.TestCaseSpec{
		countSpec("good_1", "SELECT id FROM orders"),
		{
			ID:               "bad_sql",
			Name:             "bad_sql",
			ComparisonPolicy: models.PolicyCustom,
			SourceSQL:        "DELETE FROM orders",
		},
		countSpec("good_2", "SELECT id FROM orders"),
	}
	queries := map[string]queryStub{
		"SELECT id FROM orders": {output: &datasource.QueryOutput{RowCount: 10}},
	}

	orch, _, _ := orchestratorFixture(t, specs, queries, OrchestratorConfig{})

	report, err := orch.Run(context.Background(), "rules", "")
	require.NoError(t, err)
	require.Len(t, report.TestResults, 3)

	assert.Equal(t, models.StatusPassed, report.TestResults[0].Status)
	assert.Equal(t, models.StatusError, report.TestResults[1].Status)
	assert.Contains(t, report.TestResults[1].Message, string(ErrKindUnsafeStatement))
	assert.Equal(t, models.StatusPassed, report.TestResults[2].Status)
	assert.Equal(t, models.RunFailed, report.OverallStatus, "a critical compile error fails the run")
}

func TestRunFatalFailures(t *testing.T) {
	t.Run("zero compiled test cases", func(t *testing.T) {
		specs := []models.TestCaseSpec{
			{ID: "bad", ComparisonPolicy: models.PolicyCount, SourceSQL: "SELECT 1"},
		}
		orch, _, _ := orchestratorFixture(t, specs, nil, OrchestratorConfig{})

		_, err := orch.Run(context.Background(), "rules", "")
		assert.ErrorIs(t, err, apperrors.ErrNoTestCases)
	})

	t.Run("generation failure", func(t *testing.T) {
		adapters := map[string]datasource.Adapter{
			SourceDatabaseID: datasource.NewMockAdapter(SourceDatabaseID),
			TargetDatabaseID: datasource.NewMockAdapter(TargetDatabaseID),
		}
		logger := zap.NewNop()
		orch := NewValidationOrchestrator(
			NewSchemaService(adapters, logger),
			&stubGenerator{err: &GenerationError{Detail: "model unavailable"}},
			NewTestCaseCompiler(logger),
			NewQueryExecutor(adapters, ExecutorConfig{}, logger),
			NewComparator(logger),
			OrchestratorConfig{},
			logger,
		)

		_, err := orch.Run(context.Background(), "rules", "")
		var gerr *GenerationError
		assert.ErrorAs(t, err, &gerr)
	})

	t.Run("schema capture failure", func(t *testing.T) {
		failing := datasource.NewMockAdapter(SourceDatabaseID)
		failing.DiscoverSchemaFunc = func(ctx context.Context) (*models.SchemaSnapshot, error) {
			return nil, errors.New("connection refused")
		}
		adapters := map[string]datasource.Adapter{
			SourceDatabaseID: failing,
			TargetDatabaseID: datasource.NewMockAdapter(TargetDatabaseID),
		}
		logger := zap.NewNop()
		orch := NewValidationOrchestrator(
			NewSchemaService(adapters, logger),
			&stubGenerator{specs: []models.TestCaseSpec{countSpec("tc", "SELECT 1")}},
			NewTestCaseCompiler(logger),
			NewQueryExecutor(adapters, ExecutorConfig{}, logger),
			NewComparator(logger),
			OrchestratorConfig{},
			logger,
		)

		_, err := orch.Run(context.Background(), "rules", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "schema")
	})
}

func TestRunTimeoutSkipsUnstartedCases(t *testing.T) {
	specs := []models.TestCaseSpec{
		countSpec("slow_1", "SELECT id FROM orders WHERE total > 1"),
		countSpec("slow_2", "SELECT id FROM orders WHERE total > 2"),
		countSpec("slow_3", "SELECT id FROM orders WHERE total > 3"),
	}
	queries := map[string]queryStub{
		"SELECT id FROM orders WHERE total > 1": {delay: 300 * time.Millisecond},
		"SELECT id FROM orders WHERE total > 2": {delay: 300 * time.Millisecond},
		"SELECT id FROM orders WHERE total > 3": {delay: 300 * time.Millisecond},
	}

	orch, _, _ := orchestratorFixture(t, specs, queries, OrchestratorConfig{
		Workers:    1,
		RunTimeout: 100 * time.Millisecond,
	})

	report, err := orch.Run(context.Background(), "rules", "")
	require.NoError(t, err)
	require.Len(t, report.TestResults, 3)

	var skipped int
	for _, result := range report.TestResults {
		if result.Status == models.StatusSkipped {
			skipped++
			assert.Equal(t, "RunTimeout", result.Message)
		}
	}
	assert.GreaterOrEqual(t, skipped, 1, "cases that never started must be skipped")
	assert.Equal(t, skipped, report.Summary.Skipped)
}

func TestRunProgressEvents(t *testing.T) {
	specs := []models.TestCaseSpec{countSpec("tc", "SELECT id FROM orders")}
	queries := map[string]queryStub{
		"SELECT id FROM orders": {output: &datasource.QueryOutput{RowCount: 5}},
	}

	orch, _, _ := orchestratorFixture(t, specs, queries, OrchestratorConfig{})

	var events []PhaseEvent
	_, err := orch.RunWithProgress(context.Background(), "rules", "", func(e PhaseEvent) {
		events = append(events, e)
	})
	require.NoError(t, err)
	require.NotEmpty(t, events)

	assert.Equal(t, PhasePending, events[0].Phase)
	assert.Equal(t, PhaseDone, events[len(events)-1].Phase)
	assert.Equal(t, 100.0, events[len(events)-1].Percent)

	seen := map[RunPhase]bool{}
	last := -1.0
	for _, e := range events {
		assert.GreaterOrEqual(t, e.Percent, last, "progress must be monotonic")
		last = e.Percent
		seen[e.Phase] = true
	}
	for _, phase := range []RunPhase{PhaseSchemaGathered, PhaseTestCasesGenerated, PhaseCompiled, PhaseExecuting, PhaseAggregated} {
		assert.True(t, seen[phase], "missing phase %s", phase)
	}
}

func TestRunIsRepeatable(t *testing.T) {
	specs := []models.TestCaseSpec{
		countSpec("orders_count", "SELECT id FROM orders"),
		{
			ID:               "no_negatives",
			Name:             "no_negatives",
			ComparisonPolicy: models.PolicyCustom,
			Severity:         models.SeverityWarning,
			SourceSQL:        "SELECT id FROM orders WHERE total < 0",
			Expected:         models.ExpectedRelation{Operator: "==", Value: 0},
		},
	}
	queries := map[string]queryStub{
		"SELECT id FROM orders":                 {output: &datasource.QueryOutput{RowCount: 500}},
		"SELECT id FROM orders WHERE total < 0": {output: &datasource.QueryOutput{RowCount: 0}},
	}

	orch, _, _ := orchestratorFixture(t, specs, queries, OrchestratorConfig{})

	first, err := orch.Run(context.Background(), "rules", "repeat")
	require.NoError(t, err)
	second, err := orch.Run(context.Background(), "rules", "repeat")
	require.NoError(t, err)

	assert.NotEqual(t, first.ReportID, second.ReportID)
	assert.Equal(t, first.OverallStatus, second.OverallStatus)
	assert.Equal(t, first.Summary.Passed, second.Summary.Passed)
	assert.Equal(t, first.Summary.Failed, second.Summary.Failed)
	require.Equal(t, len(first.TestResults), len(second.TestResults))
	for i := range first.TestResults {
		assert.Equal(t, first.TestResults[i].Status, second.TestResults[i].Status)
		assert.Equal(t, first.TestResults[i].Message, second.TestResults[i].Message)
	}
}

func TestAggregateEmptyResults(t *testing.T) {
	o := &validationOrchestrator{logger: zap.NewNop()}

	report := o.aggregate("empty", nil, time.Millisecond)
	assert.Equal(t, 0, report.Summary.Total)
	assert.Equal(t, 0.0, report.Summary.PassRate)
	assert.Equal(t, models.RunPassed, report.OverallStatus)
}
