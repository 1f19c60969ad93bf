package datasource

import (
	"context"

	"github.com/veridata-labs/veridata-engine/pkg/models"
)

// MockAdapter is a configurable mock for testing. Set the function
// fields to control behavior.
type MockAdapter struct {
	ID          string
	DialectName string

	// RunQueryFunc is called when RunQuery is invoked. If nil, an
	// empty output is returned.
	RunQueryFunc func(ctx context.Context, sql string, sampleCap int) (*QueryOutput, error)

	// DiscoverSchemaFunc is called when DiscoverSchema is invoked.
	// If nil, an empty snapshot is returned.
	DiscoverSchemaFunc func(ctx context.Context) (*models.SchemaSnapshot, error)

	// PingFunc is called when Ping is invoked. If nil, Ping succeeds.
	PingFunc func(ctx context.Context) error

	RunQueryCalls []string
}

// NewMockAdapter creates a mock with the given role ID.
func NewMockAdapter(id string) *MockAdapter {
	return &MockAdapter{ID: id, DialectName: "mock"}
}

func (m *MockAdapter) DatabaseID() string { return m.ID }
func (m *MockAdapter) Dialect() string    { return m.DialectName }

func (m *MockAdapter) RunQuery(ctx context.Context, sql string, sampleCap int) (*QueryOutput, error) {
	m.RunQueryCalls = append(m.RunQueryCalls, sql)
	if m.RunQueryFunc != nil {
		return m.RunQueryFunc(ctx, sql, sampleCap)
	}
	return &QueryOutput{}, nil
}

func (m *MockAdapter) DiscoverSchema(ctx context.Context) (*models.SchemaSnapshot, error) {
	if m.DiscoverSchemaFunc != nil {
		return m.DiscoverSchemaFunc(ctx)
	}
	return &models.SchemaSnapshot{DatabaseID: m.ID}, nil
}

func (m *MockAdapter) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

func (m *MockAdapter) Close() error { return nil }

var _ Adapter = (*MockAdapter)(nil)
