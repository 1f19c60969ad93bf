package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veridata-labs/veridata-engine/pkg/llm"
	"github.com/veridata-labs/veridata-engine/pkg/models"
	"github.com/veridata-labs/veridata-engine/pkg/retry"
)

// TestCaseGenerator turns natural-language rules into test case specs
// and ad-hoc descriptions into SQL. It is the only place the engine
// touches a language model.
type TestCaseGenerator interface {
	// GenerateTestCases produces a bounded list of specs for the
	// rules. Failures are fatal to a run and come back as
	// *GenerationError.
	GenerateTestCases(ctx context.Context, rules string, source, target *models.SchemaSnapshot) ([]models.TestCaseSpec, error)

	// GenerateSQL produces one read-only SQL statement for a
	// natural-language description against one database's schema.
	GenerateSQL(ctx context.Context, description string, schema *models.SchemaSnapshot) (string, error)
}

// GeneratorConfig bounds generation output.
type GeneratorConfig struct {
	Temperature  float64
	MaxTestCases int
	// ContextTables limits how many tables are rendered into prompts.
	ContextTables int
}

type testCaseGenerator struct {
	client llm.Client
	cfg    GeneratorConfig
	logger *zap.Logger
}

// NewTestCaseGenerator creates a generator over the given LLM client.
func NewTestCaseGenerator(client llm.Client, cfg GeneratorConfig, logger *zap.Logger) TestCaseGenerator {
	if cfg.MaxTestCases <= 0 {
		cfg.MaxTestCases = 50
	}
	if cfg.ContextTables <= 0 {
		cfg.ContextTables = 30
	}
	return &testCaseGenerator{
		client: client,
		cfg:    cfg,
		logger: logger.Named("generation"),
	}
}

const generationSystemPrompt = `You are an expert QA engineer specializing in data migration validation.
Your task is to translate business rules into concrete test cases with SQL queries
that compare a source database against a target database.

IMPORTANT GUIDELINES:
- Every query must be a single read-only SELECT statement (CTEs allowed). Never emit INSERT, UPDATE, DELETE, or DDL.
- Only reference tables and columns that appear in the provided schemas.
- Handle NULL values explicitly.
- Queries on the two sides must return comparable results.

Return a JSON object:
{
    "test_cases": [
        {
            "name": "Test case name",
            "description": "What this test validates",
            "validation_type": "count|data|aggregation|referential|schema|custom",
            "source_sql": "SELECT ... (omit if not needed)",
            "target_sql": "SELECT ... (omit if not needed)",
            "comparison_policy": "count|data|aggregation|referential|schema|custom",
            "severity": "critical|warning",
            "expected_relation": {
                "tolerance": 0,
                "key_columns": ["id"],
                "compare_columns": ["col1"],
                "operator": "==",
                "value": 0,
                "table": "table_name"
            }
        }
    ]
}

Policy requirements:
- count, data, aggregation: both source_sql and target_sql required.
- referential: target_sql only; the query must return the orphan rows (pass means zero rows).
- schema: no SQL; set expected_relation.table to the table whose structure must match.
- custom: at least one query; expected_relation.operator and value express the pass condition over the row count.`

// generatedCase is the wire shape of one generated test case.
type generatedCase struct {
	Name             string                  `json:"name"`
	Description      string                  `json:"description"`
	ValidationType   string                  `json:"validation_type"`
	SourceSQL        string                  `json:"source_sql"`
	TargetSQL        string                  `json:"target_sql"`
	ComparisonPolicy string                  `json:"comparison_policy"`
	Severity         string                  `json:"severity"`
	Expected         models.ExpectedRelation `json:"expected_relation"`
}

type generatedPayload struct {
	TestCases []generatedCase `json:"test_cases"`
}

func (g *testCaseGenerator) GenerateTestCases(ctx context.Context, rules string, source, target *models.SchemaSnapshot) ([]models.TestCaseSpec, error) {
	prompt := fmt.Sprintf(`Generate test cases to validate the following business rules for a data migration:

BUSINESS RULES:
%s

SOURCE DATABASE SCHEMA:
%s

TARGET DATABASE SCHEMA:
%s

Generate at most %d test cases. Cover the rules as stated; do not invent rules that were not asked for.`,
		rules,
		RenderLLMContext(source, g.cfg.ContextTables),
		RenderLLMContext(target, g.cfg.ContextTables),
		g.cfg.MaxTestCases)

	response, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (string, error) {
		return g.client.GenerateResponse(ctx, prompt, generationSystemPrompt, g.cfg.Temperature)
	})
	if err != nil {
		return nil, &GenerationError{Detail: "test case generation call failed", Cause: err}
	}

	payload, err := llm.ParseJSONResponse[generatedPayload](response)
	if err != nil {
		return nil, &GenerationError{Detail: "test case response was not valid JSON", Cause: err}
	}
	if len(payload.TestCases) == 0 {
		return nil, &GenerationError{Detail: "model returned zero test cases"}
	}

	cases := payload.TestCases
	if len(cases) > g.cfg.MaxTestCases {
		g.logger.Warn("truncating generated test cases",
			zap.Int("generated", len(cases)),
			zap.Int("max", g.cfg.MaxTestCases))
		cases = cases[:g.cfg.MaxTestCases]
	}

	specs := make([]models.TestCaseSpec, 0, len(cases))
	for i, gc := range cases {
		specs = append(specs, g.toSpec(i, gc))
	}

	g.logger.Info("test cases generated",
		zap.Int("count", len(specs)),
		zap.String("model", g.client.Model()))
	return specs, nil
}

func (g *testCaseGenerator) toSpec(index int, gc generatedCase) models.TestCaseSpec {
	name := strings.TrimSpace(gc.Name)
	if name == "" {
		name = fmt.Sprintf("Test Case %d", index+1)
	}

	policy := models.ComparisonPolicy(strings.ToLower(strings.TrimSpace(gc.ComparisonPolicy)))
	if !policy.Known() {
		policy = models.PolicyCustom
	}

	validationType := models.ValidationType(strings.ToLower(strings.TrimSpace(gc.ValidationType)))
	switch validationType {
	case models.ValidationCount, models.ValidationData, models.ValidationAggregation,
		models.ValidationReferential, models.ValidationSchema, models.ValidationCustom:
	default:
		validationType = models.ValidationType(policy)
	}

	severity := models.SeverityCritical
	if strings.EqualFold(gc.Severity, string(models.SeverityWarning)) {
		severity = models.SeverityWarning
	}

	return models.TestCaseSpec{
		ID:               fmt.Sprintf("tc_%s", uuid.NewString()[:8]),
		Name:             name,
		Description:      gc.Description,
		ValidationType:   validationType,
		SourceSQL:        strings.TrimSpace(gc.SourceSQL),
		TargetSQL:        strings.TrimSpace(gc.TargetSQL),
		ComparisonPolicy: policy,
		Severity:         severity,
		Expected:         gc.Expected,
	}
}

const sqlSystemPrompt = `You are an expert SQL developer. Generate a single read-only SELECT query based on the description.
Return ONLY the SQL query, no explanations. Never emit INSERT, UPDATE, DELETE, or DDL.`

func (g *testCaseGenerator) GenerateSQL(ctx context.Context, description string, schema *models.SchemaSnapshot) (string, error) {
	prompt := fmt.Sprintf(`Generate a SQL query for the following:

DESCRIPTION:
%s

DATABASE SCHEMA:
%s

Return only the SQL query.`, description, RenderLLMContext(schema, g.cfg.ContextTables))

	response, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (string, error) {
		return g.client.GenerateResponse(ctx, prompt, sqlSystemPrompt, 0)
	})
	if err != nil {
		return "", &GenerationError{Detail: "SQL generation call failed", Cause: err}
	}

	sql := stripCodeFences(response)
	if sql == "" {
		return "", &GenerationError{Detail: "model returned empty SQL"}
	}
	return sql, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```sql") {
		s = s[len("```sql"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
