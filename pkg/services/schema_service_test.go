package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veridata-labs/veridata-engine/pkg/adapters/datasource"
	"github.com/veridata-labs/veridata-engine/pkg/apperrors"
	"github.com/veridata-labs/veridata-engine/pkg/models"
)

func schemaAdapters(sourceErr, targetErr error) map[string]datasource.Adapter {
	snapshot := func(id string) *models.SchemaSnapshot {
		return &models.SchemaSnapshot{
			DatabaseID: id,
			Tables: []models.TableInfo{
				{Name: "orders", Columns: []models.ColumnInfo{{Name: "id", DataType: "bigint"}}},
			},
		}
	}

	source := datasource.NewMockAdapter(SourceDatabaseID)
	source.DiscoverSchemaFunc = func(ctx context.Context) (*models.SchemaSnapshot, error) {
		if sourceErr != nil {
			return nil, sourceErr
		}
		return snapshot(SourceDatabaseID), nil
	}

	target := datasource.NewMockAdapter(TargetDatabaseID)
	target.DiscoverSchemaFunc = func(ctx context.Context) (*models.SchemaSnapshot, error) {
		if targetErr != nil {
			return nil, targetErr
		}
		return snapshot(TargetDatabaseID), nil
	}

	return map[string]datasource.Adapter{SourceDatabaseID: source, TargetDatabaseID: target}
}

func TestSnapshots(t *testing.T) {
	t.Run("captures both roles", func(t *testing.T) {
		svc := NewSchemaService(schemaAdapters(nil, nil), zap.NewNop())

		source, target, err := svc.Snapshots(context.Background())
		require.NoError(t, err)
		assert.Equal(t, SourceDatabaseID, source.DatabaseID)
		assert.Equal(t, TargetDatabaseID, target.DatabaseID)
	})

	t.Run("either side failing fails the call", func(t *testing.T) {
		svc := NewSchemaService(schemaAdapters(nil, errors.New("connection refused")), zap.NewNop())

		_, _, err := svc.Snapshots(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), TargetDatabaseID)
	})
}

func TestSnapshotUnknownDatabase(t *testing.T) {
	svc := NewSchemaService(schemaAdapters(nil, nil), zap.NewNop())

	_, err := svc.Snapshot(context.Background(), "replica")
	assert.ErrorIs(t, err, apperrors.ErrUnknownDatabase)
}

func TestTestConnections(t *testing.T) {
	adapters := schemaAdapters(nil, nil)
	adapters[TargetDatabaseID].(*datasource.MockAdapter).PingFunc = func(ctx context.Context) error {
		return errors.New("dial tcp: connection refused")
	}

	svc := NewSchemaService(adapters, zap.NewNop())
	results := svc.TestConnections(context.Background())

	require.Len(t, results, 2)
	assert.NoError(t, results[SourceDatabaseID])
	assert.Error(t, results[TargetDatabaseID])
}

func TestRenderLLMContext(t *testing.T) {
	def := "now()"
	snapshot := &models.SchemaSnapshot{
		DatabaseID: SourceDatabaseID,
		Tables: []models.TableInfo{
			{
				Name:             "orders",
				RowCountEstimate: 1200,
				PrimaryKeys:      []string{"id"},
				Columns: []models.ColumnInfo{
					{Name: "id", DataType: "bigint"},
					{Name: "placed_at", DataType: "timestamptz", Nullable: true, Default: &def},
				},
			},
			{Name: "customers"},
			{Name: "payments"},
		},
	}

	t.Run("renders tables, columns, and constraints", func(t *testing.T) {
		out := RenderLLMContext(snapshot, 0)
		assert.Contains(t, out, "Table: orders")
		assert.Contains(t, out, "Approximate rows: 1200")
		assert.Contains(t, out, "id: bigint NOT NULL")
		assert.Contains(t, out, "(PK)")
		assert.Contains(t, out, "placed_at: timestamptz NULL DEFAULT now()")
	})

	t.Run("caps the table list", func(t *testing.T) {
		out := RenderLLMContext(snapshot, 2)
		assert.Contains(t, out, "Showing first 2 tables")
		assert.Contains(t, out, "Table: customers")
		assert.NotContains(t, out, "Table: payments")
	})
}
