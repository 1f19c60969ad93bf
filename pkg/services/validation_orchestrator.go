package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/veridata-labs/veridata-engine/pkg/apperrors"
	"github.com/veridata-labs/veridata-engine/pkg/models"
	"github.com/veridata-labs/veridata-engine/pkg/pool"
)

// RunPhase names a state of the orchestration state machine.
type RunPhase string

const (
	PhasePending            RunPhase = "pending"
	PhaseSchemaGathered     RunPhase = "schema_gathered"
	PhaseTestCasesGenerated RunPhase = "test_cases_generated"
	PhaseCompiled           RunPhase = "compiled"
	PhaseExecuting          RunPhase = "executing"
	PhaseAggregated         RunPhase = "aggregated"
	PhaseDone               RunPhase = "done"
	PhaseErrored            RunPhase = "errored"
)

// PhaseEvent is one progress notification. Percent is monotonically
// increasing over a run.
type PhaseEvent struct {
	Phase   RunPhase `json:"phase"`
	Percent float64  `json:"percent_complete"`
	Message string   `json:"message"`
}

// ProgressFunc receives phase events as the run advances. Transport
// (SSE, polling, logging) is the caller's concern.
type ProgressFunc func(PhaseEvent)

// OrchestratorConfig bounds a run.
type OrchestratorConfig struct {
	Workers      int
	QueryTimeout time.Duration
	RunTimeout   time.Duration // 0 disables the run-level timeout
	SampleCap    int
}

// ValidationOrchestrator runs the full pipeline: schema capture, test
// case generation, compilation, bounded concurrent execution,
// comparison, and aggregation into a report.
type ValidationOrchestrator interface {
	// Run executes a validation run end to end, capturing schema
	// snapshots itself.
	Run(ctx context.Context, rules, name string) (*models.ValidationReport, error)

	// RunWithProgress is Run with phase events.
	RunWithProgress(ctx context.Context, rules, name string, onProgress ProgressFunc) (*models.ValidationReport, error)

	// RunWithSnapshots executes a run against already-captured
	// snapshots, the testable core of the pipeline.
	RunWithSnapshots(ctx context.Context, rules, name string, source, target *models.SchemaSnapshot, onProgress ProgressFunc) (*models.ValidationReport, error)
}

type validationOrchestrator struct {
	schemas    SchemaService
	generator  TestCaseGenerator
	compiler   TestCaseCompiler
	executor   QueryExecutor
	comparator Comparator
	workers    *pool.Pool
	cfg        OrchestratorConfig
	logger     *zap.Logger
}

// NewValidationOrchestrator wires the pipeline together.
func NewValidationOrchestrator(
	schemas SchemaService,
	generator TestCaseGenerator,
	compiler TestCaseCompiler,
	executor QueryExecutor,
	comparator Comparator,
	cfg OrchestratorConfig,
	logger *zap.Logger,
) ValidationOrchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	return &validationOrchestrator{
		schemas:    schemas,
		generator:  generator,
		compiler:   compiler,
		executor:   executor,
		comparator: comparator,
		workers:    pool.New(pool.Config{MaxConcurrent: cfg.Workers}, logger),
		cfg:        cfg,
		logger:     logger.Named("orchestrator"),
	}
}

func (o *validationOrchestrator) Run(ctx context.Context, rules, name string) (*models.ValidationReport, error) {
	return o.RunWithProgress(ctx, rules, name, nil)
}

func (o *validationOrchestrator) RunWithProgress(ctx context.Context, rules, name string, onProgress ProgressFunc) (*models.ValidationReport, error) {
	emit(onProgress, PhasePending, 0, "run accepted")

	source, target, err := o.schemas.Snapshots(ctx)
	if err != nil {
		emit(onProgress, PhaseErrored, 100, "schema capture failed")
		return nil, fmt.Errorf("gather schema snapshots: %w", err)
	}

	return o.runPipeline(ctx, rules, name, source, target, onProgress)
}

func (o *validationOrchestrator) RunWithSnapshots(ctx context.Context, rules, name string, source, target *models.SchemaSnapshot, onProgress ProgressFunc) (*models.ValidationReport, error) {
	emit(onProgress, PhasePending, 0, "run accepted")
	if source == nil || target == nil {
		emit(onProgress, PhaseErrored, 100, "schema snapshots unavailable")
		return nil, apperrors.ErrNoSchemaAvailable
	}
	return o.runPipeline(ctx, rules, name, source, target, onProgress)
}

func (o *validationOrchestrator) runPipeline(ctx context.Context, rules, name string, source, target *models.SchemaSnapshot, onProgress ProgressFunc) (*models.ValidationReport, error) {
	start := time.Now()
	if name == "" {
		name = "Validation Run " + uuid.NewString()[:8]
	}

	o.logger.Info("starting validation run",
		zap.String("name", name),
		zap.Int("source_tables", len(source.Tables)),
		zap.Int("target_tables", len(target.Tables)))

	emit(onProgress, PhaseSchemaGathered, 15, fmt.Sprintf("schemas captured: %d source tables, %d target tables",
		len(source.Tables), len(target.Tables)))

	specs, err := o.generator.GenerateTestCases(ctx, rules, source, target)
	if err != nil {
		emit(onProgress, PhaseErrored, 100, "test case generation failed")
		return nil, err
	}
	emit(onProgress, PhaseTestCasesGenerated, 30, fmt.Sprintf("%d test cases generated", len(specs)))

	results := make([]models.TestResult, len(specs))
	var compiled []*models.TestCase
	var compiledIdx []int

	for i, spec := range specs {
		tc, err := o.compiler.Compile(spec, source, target)
		if err != nil {
			// A spec that fails to compile becomes an error result
			// immediately; it never aborts the run.
			results[i] = models.TestResult{
				TestCaseID: spec.ID,
				Name:       spec.Name,
				Status:     models.StatusError,
				Severity:   spec.Severity,
				Message:    err.Error(),
			}
			continue
		}
		compiled = append(compiled, tc)
		compiledIdx = append(compiledIdx, i)
	}

	if len(compiled) == 0 {
		emit(onProgress, PhaseErrored, 100, "no test cases compiled")
		return nil, fmt.Errorf("%w: all %d generated specs failed to compile", apperrors.ErrNoTestCases, len(specs))
	}
	emit(onProgress, PhaseCompiled, 40, fmt.Sprintf("%d of %d test cases compiled", len(compiled), len(specs)))

	runCtx := ctx
	if o.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}

	emit(onProgress, PhaseExecuting, 45, fmt.Sprintf("executing %d test cases", len(compiled)))

	items := make([]pool.Item[models.TestResult], len(compiled))
	for i, tc := range compiled {
		tc := tc
		items[i] = pool.Item[models.TestResult]{
			ID: tc.Spec.ID,
			Execute: func(itemCtx context.Context) (models.TestResult, error) {
				return o.executeTestCase(itemCtx, tc, source, target), nil
			},
		}
	}

	poolResults := pool.Process(runCtx, o.workers, items, func(completed, total int) {
		// Execution spans 45% to 90% of the run.
		percent := 45 + 45*float64(completed)/float64(total)
		emit(onProgress, PhaseExecuting, percent, fmt.Sprintf("%d/%d test cases executed", completed, total))
	})

	for i, pr := range poolResults {
		specIdx := compiledIdx[i]
		if pr.Err != nil {
			// Only a cancelled run reaches here: the item never
			// started before the run-level deadline.
			results[specIdx] = skippedResult(compiled[i])
			continue
		}
		results[specIdx] = pr.Result
	}

	report := o.aggregate(name, results, time.Since(start))
	emit(onProgress, PhaseAggregated, 95, fmt.Sprintf("aggregated %d results", len(results)))

	o.logger.Info("validation run complete",
		zap.String("report_id", report.ReportID),
		zap.String("overall_status", string(report.OverallStatus)),
		zap.Int("passed", report.Summary.Passed),
		zap.Int("total", report.Summary.Total),
		zap.Duration("elapsed", time.Since(start)))

	emit(onProgress, PhaseDone, 100, "run complete")
	return report, nil
}

// executeTestCase runs one test case's queries concurrently and
// compares the results. All failures are absorbed into the returned
// TestResult; nothing propagates to sibling test cases.
func (o *validationOrchestrator) executeTestCase(ctx context.Context, tc *models.TestCase, source, target *models.SchemaSnapshot) models.TestResult {
	start := time.Now()

	if ctx.Err() != nil {
		return skippedResult(tc)
	}

	result := models.TestResult{
		TestCaseID: tc.Spec.ID,
		Name:       tc.Spec.Name,
		Severity:   tc.Spec.Severity,
	}

	var sourceResult, targetResult *models.QueryExecutionResult

	// Source and target reads are independent; run them concurrently.
	g, gctx := errgroup.WithContext(ctx)
	if tc.Source != nil {
		g.Go(func() error {
			sourceResult = o.executor.Execute(gctx, tc.Source.DatabaseID, tc.Source.SQL, o.cfg.QueryTimeout, o.cfg.SampleCap)
			return nil
		})
	}
	if tc.Target != nil {
		g.Go(func() error {
			targetResult = o.executor.Execute(gctx, tc.Target.DatabaseID, tc.Target.SQL, o.cfg.QueryTimeout, o.cfg.SampleCap)
			return nil
		})
	}
	_ = g.Wait() // executor absorbs all failures

	status, message := o.comparator.Compare(tc, sourceResult, targetResult, source, target)

	result.Status = status
	result.Message = message
	result.SourceResult = sourceResult
	result.TargetResult = targetResult
	result.DurationMs = float64(time.Since(start).Microseconds()) / 1000.0
	return result
}

func skippedResult(tc *models.TestCase) models.TestResult {
	return models.TestResult{
		TestCaseID: tc.Spec.ID,
		Name:       tc.Spec.Name,
		Status:     models.StatusSkipped,
		Severity:   tc.Spec.Severity,
		Message:    "RunTimeout",
	}
}

func (o *validationOrchestrator) aggregate(name string, results []models.TestResult, elapsed time.Duration) *models.ValidationReport {
	summary := models.ReportSummary{
		Total:      len(results),
		DurationMs: float64(elapsed.Microseconds()) / 1000.0,
	}

	hasCriticalFailure := false
	hasNonCriticalFailure := false

	for _, r := range results {
		switch r.Status {
		case models.StatusPassed:
			summary.Passed++
		case models.StatusFailed:
			summary.Failed++
		case models.StatusError:
			summary.Errors++
		case models.StatusSkipped:
			summary.Skipped++
		}

		if r.Status == models.StatusFailed || r.Status == models.StatusError {
			if r.Severity == models.SeverityCritical {
				hasCriticalFailure = true
			} else {
				hasNonCriticalFailure = true
			}
		}
	}

	if summary.Total > 0 {
		summary.PassRate = float64(summary.Passed) / float64(summary.Total) * 100
	}

	status := models.RunPassed
	switch {
	case hasCriticalFailure:
		status = models.RunFailed
	case hasNonCriticalFailure:
		status = models.RunPartial
	}

	return &models.ValidationReport{
		ReportID:            uuid.NewString(),
		Name:                name,
		GeneratedAt:         time.Now().UTC(),
		OverallStatus:       status,
		Summary:             summary,
		TestResults:         results,
		HasCriticalFailures: hasCriticalFailure,
	}
}

func emit(onProgress ProgressFunc, phase RunPhase, percent float64, message string) {
	if onProgress != nil {
		onProgress(PhaseEvent{Phase: phase, Percent: percent, Message: message})
	}
}
