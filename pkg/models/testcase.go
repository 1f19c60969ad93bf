package models

// ValidationType classifies what a test case validates.
type ValidationType string

const (
	ValidationCount       ValidationType = "count"
	ValidationData        ValidationType = "data"
	ValidationAggregation ValidationType = "aggregation"
	ValidationReferential ValidationType = "referential"
	ValidationSchema      ValidationType = "schema"
	ValidationCustom      ValidationType = "custom"
)

// ComparisonPolicy selects how query results turn into a verdict.
type ComparisonPolicy string

const (
	PolicyCount       ComparisonPolicy = "count"
	PolicyData        ComparisonPolicy = "data"
	PolicyAggregation ComparisonPolicy = "aggregation"
	PolicyReferential ComparisonPolicy = "referential"
	PolicySchema      ComparisonPolicy = "schema"
	PolicyCustom      ComparisonPolicy = "custom"
)

// RequiresSource reports whether the policy needs a source-side query.
func (p ComparisonPolicy) RequiresSource() bool {
	switch p {
	case PolicyCount, PolicyData, PolicyAggregation:
		return true
	default:
		return false
	}
}

// RequiresTarget reports whether the policy needs a target-side query.
func (p ComparisonPolicy) RequiresTarget() bool {
	switch p {
	case PolicyCount, PolicyData, PolicyAggregation, PolicyReferential:
		return true
	default:
		return false
	}
}

// UsesQueries reports whether the policy executes SQL at all. The
// schema policy compares snapshots instead.
func (p ComparisonPolicy) UsesQueries() bool {
	return p != PolicySchema
}

// Known reports whether p is one of the supported policies.
func (p ComparisonPolicy) Known() bool {
	switch p {
	case PolicyCount, PolicyData, PolicyAggregation, PolicyReferential, PolicySchema, PolicyCustom:
		return true
	default:
		return false
	}
}

// Severity controls how a failure affects the run's overall status.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// ExpectedRelation parameterizes a comparison policy. Only the fields
// relevant to the test case's policy are set.
type ExpectedRelation struct {
	// Tolerance relaxes count equality (absolute rows) or aggregation
	// equality (relative, defaulting to 1e-6 for floats).
	Tolerance *float64 `json:"tolerance,omitempty"`
	// KeyColumns identify rows for the data policy's multiset match.
	KeyColumns []string `json:"key_columns,omitempty"`
	// CompareColumns restricts which columns the data policy compares;
	// empty means all non-key columns.
	CompareColumns []string `json:"compare_columns,omitempty"`
	// Operator and Value express a custom-policy predicate over the
	// query's row count (or single scalar), e.g. "==" 0, ">" 100.
	Operator string  `json:"operator,omitempty"`
	Value    float64 `json:"value,omitempty"`
	// Table names the table a schema-policy test case compares.
	Table string `json:"table,omitempty"`
}

// TestCaseSpec is the generation output: one intended comparison,
// before compilation. At least one of SourceSQL/TargetSQL must be
// present for query-backed policies; the compiler enforces this.
type TestCaseSpec struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Description      string           `json:"description"`
	ValidationType   ValidationType   `json:"validation_type"`
	SourceSQL        string           `json:"source_sql,omitempty"`
	TargetSQL        string           `json:"target_sql,omitempty"`
	ComparisonPolicy ComparisonPolicy `json:"comparison_policy"`
	Severity         Severity         `json:"severity"`
	Expected         ExpectedRelation `json:"expected_relation"`
}

// Statement is a compiled, safety-checked SQL statement bound to one
// database role.
type Statement struct {
	DatabaseID string `json:"database_id"`
	SQL        string `json:"sql"`
}

// TestCase is a validated, ready-to-run spec. Immutable after
// compilation; the orchestrator never mutates it.
type TestCase struct {
	Spec   TestCaseSpec `json:"spec"`
	Source *Statement   `json:"source,omitempty"`
	Target *Statement   `json:"target,omitempty"`
}
