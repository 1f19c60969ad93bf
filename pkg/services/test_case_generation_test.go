package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veridata-labs/veridata-engine/pkg/llm"
	"github.com/veridata-labs/veridata-engine/pkg/models"
)

func generatorSnapshots() (*models.SchemaSnapshot, *models.SchemaSnapshot) {
	tables := []models.TableInfo{
		{Name: "orders", Columns: []models.ColumnInfo{{Name: "id", DataType: "bigint"}, {Name: "total", DataType: "numeric"}}, RowCountEstimate: 1200},
	}
	return &models.SchemaSnapshot{DatabaseID: SourceDatabaseID, Tables: tables},
		&models.SchemaSnapshot{DatabaseID: TargetDatabaseID, Tables: tables}
}

const generationResponse = `{
  "test_cases": [
    {
      "name": "Orders row count",
      "description": "Source and target order counts must match",
      "validation_type": "count",
      "source_sql": "SELECT count(*) FROM orders",
      "target_sql": "SELECT count(*) FROM orders",
      "comparison_policy": "count",
      "severity": "critical"
    },
    {
      "name": "Order totals aggregate",
      "validation_type": "aggregation",
      "source_sql": "SELECT sum(total) FROM orders",
      "target_sql": "SELECT sum(total) FROM orders",
      "comparison_policy": "aggregation",
      "severity": "warning"
    }
  ]
}`

func TestGenerateTestCases(t *testing.T) {
	client := llm.NewMockClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		assert.Contains(t, prompt, "orders", "schema context must reach the model")
		assert.Contains(t, prompt, "no negative totals")
		return generationResponse, nil
	}

	g := NewTestCaseGenerator(client, GeneratorConfig{}, zap.NewNop())
	source, target := generatorSnapshots()

	specs, err := g.GenerateTestCases(context.Background(), "no negative totals; counts must match", source, target)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	assert.Equal(t, "Orders row count", specs[0].Name)
	assert.Equal(t, models.PolicyCount, specs[0].ComparisonPolicy)
	assert.Equal(t, models.SeverityCritical, specs[0].Severity)
	assert.True(t, strings.HasPrefix(specs[0].ID, "tc_"))

	assert.Equal(t, models.PolicyAggregation, specs[1].ComparisonPolicy)
	assert.Equal(t, models.SeverityWarning, specs[1].Severity)
}

func TestGenerateTestCasesWrappedInProse(t *testing.T) {
	client := llm.NewMockClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return "Here are the test cases you asked for:\n\n" + generationResponse + "\n\nLet me know if you need more.", nil
	}

	g := NewTestCaseGenerator(client, GeneratorConfig{}, zap.NewNop())
	source, target := generatorSnapshots()

	specs, err := g.GenerateTestCases(context.Background(), "counts must match", source, target)
	require.NoError(t, err)
	assert.Len(t, specs, 2)
}

func TestGenerateTestCasesTruncation(t *testing.T) {
	var cases []string
	for i := 0; i < 10; i++ {
		cases = append(cases, fmt.Sprintf(`{"name": "case %d", "comparison_policy": "custom", "source_sql": "SELECT %d"}`, i, i))
	}
	response := `{"test_cases": [` + strings.Join(cases, ",") + `]}`

	client := llm.NewMockClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return response, nil
	}

	g := NewTestCaseGenerator(client, GeneratorConfig{MaxTestCases: 3}, zap.NewNop())
	source, target := generatorSnapshots()

	specs, err := g.GenerateTestCases(context.Background(), "rules", source, target)
	require.NoError(t, err)
	assert.Len(t, specs, 3)
	assert.Equal(t, "case 0", specs[0].Name)
}

func TestGenerateTestCasesFailures(t *testing.T) {
	source, target := generatorSnapshots()

	t.Run("client error is a generation error", func(t *testing.T) {
		client := llm.NewMockClient()
		client.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
			return "", errors.New("invalid api key")
		}
		g := NewTestCaseGenerator(client, GeneratorConfig{}, zap.NewNop())

		_, err := g.GenerateTestCases(context.Background(), "rules", source, target)
		var gerr *GenerationError
		require.ErrorAs(t, err, &gerr)
	})

	t.Run("malformed JSON is a generation error", func(t *testing.T) {
		client := llm.NewMockClient()
		client.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
			return "I could not produce test cases for that.", nil
		}
		g := NewTestCaseGenerator(client, GeneratorConfig{}, zap.NewNop())

		_, err := g.GenerateTestCases(context.Background(), "rules", source, target)
		var gerr *GenerationError
		require.ErrorAs(t, err, &gerr)
	})

	t.Run("zero test cases is a generation error", func(t *testing.T) {
		client := llm.NewMockClient()
		client.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
			return `{"test_cases": []}`, nil
		}
		g := NewTestCaseGenerator(client, GeneratorConfig{}, zap.NewNop())

		_, err := g.GenerateTestCases(context.Background(), "rules", source, target)
		var gerr *GenerationError
		require.ErrorAs(t, err, &gerr)
	})
}

func TestToSpecDefaults(t *testing.T) {
	g := &testCaseGenerator{cfg: GeneratorConfig{}, logger: zap.NewNop()}

	spec := g.toSpec(4, generatedCase{
		ComparisonPolicy: "approximate",
		Severity:         "info",
		SourceSQL:        "  SELECT 1  ",
	})

	assert.Equal(t, "Test Case 5", spec.Name)
	assert.Equal(t, models.PolicyCustom, spec.ComparisonPolicy, "unknown policies fall back to custom")
	assert.Equal(t, models.SeverityCritical, spec.Severity, "unknown severities default to critical")
	assert.Equal(t, models.ValidationCustom, spec.ValidationType)
	assert.Equal(t, "SELECT 1", spec.SourceSQL)
}

func TestGenerateSQL(t *testing.T) {
	source, _ := generatorSnapshots()

	t.Run("strips code fences", func(t *testing.T) {
		client := llm.NewMockClient()
		client.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
			return "```sql\nSELECT count(*) FROM orders\n```", nil
		}
		g := NewTestCaseGenerator(client, GeneratorConfig{}, zap.NewNop())

		sql, err := g.GenerateSQL(context.Background(), "how many orders are there", source)
		require.NoError(t, err)
		assert.Equal(t, "SELECT count(*) FROM orders", sql)
	})

	t.Run("empty response is a generation error", func(t *testing.T) {
		client := llm.NewMockClient()
		g := NewTestCaseGenerator(client, GeneratorConfig{}, zap.NewNop())

		_, err := g.GenerateSQL(context.Background(), "anything", source)
		var gerr *GenerationError
		require.ErrorAs(t, err, &gerr)
	})
}
