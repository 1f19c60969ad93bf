package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/veridata-labs/veridata-engine/pkg/adapters/datasource"
	"github.com/veridata-labs/veridata-engine/pkg/apperrors"
	"github.com/veridata-labs/veridata-engine/pkg/models"
)

// SourceDatabaseID and TargetDatabaseID are the two roles a validation
// run reads from.
const (
	SourceDatabaseID = "source"
	TargetDatabaseID = "target"
)

// SchemaService captures and renders schema snapshots.
type SchemaService interface {
	// Snapshot captures the schema of one database role.
	Snapshot(ctx context.Context, databaseID string) (*models.SchemaSnapshot, error)

	// Snapshots captures source and target concurrently. Either side
	// failing fails the call; a run cannot start without both.
	Snapshots(ctx context.Context) (source, target *models.SchemaSnapshot, err error)

	// CompareSnapshots diffs the two snapshots structurally.
	CompareSnapshots(source, target *models.SchemaSnapshot) *models.SchemaComparison

	// TestConnections pings every configured role and reports one
	// error per unreachable role.
	TestConnections(ctx context.Context) map[string]error
}

type schemaService struct {
	adapters map[string]datasource.Adapter
	logger   *zap.Logger
}

// NewSchemaService creates a schema service over the given adapters,
// keyed by database role.
func NewSchemaService(adapters map[string]datasource.Adapter, logger *zap.Logger) SchemaService {
	return &schemaService{
		adapters: adapters,
		logger:   logger.Named("schema"),
	}
}

func (s *schemaService) Snapshot(ctx context.Context, databaseID string) (*models.SchemaSnapshot, error) {
	adapter, ok := s.adapters[databaseID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownDatabase, databaseID)
	}

	snapshot, err := adapter.DiscoverSchema(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture schema for %s: %w", databaseID, err)
	}

	s.logger.Info("schema snapshot captured",
		zap.String("database_id", databaseID),
		zap.Int("tables", len(snapshot.Tables)))
	return snapshot, nil
}

func (s *schemaService) Snapshots(ctx context.Context) (*models.SchemaSnapshot, *models.SchemaSnapshot, error) {
	var source, target *models.SchemaSnapshot

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		source, err = s.Snapshot(gctx, SourceDatabaseID)
		return err
	})
	g.Go(func() error {
		var err error
		target, err = s.Snapshot(gctx, TargetDatabaseID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return source, target, nil
}

func (s *schemaService) CompareSnapshots(source, target *models.SchemaSnapshot) *models.SchemaComparison {
	return models.CompareSnapshots(source, target)
}

func (s *schemaService) TestConnections(ctx context.Context) map[string]error {
	results := make(map[string]error, len(s.adapters))
	for id, adapter := range s.adapters {
		results[id] = adapter.Ping(ctx)
	}
	return results
}

// RenderLLMContext renders a snapshot as DDL-like text for generation
// prompts. maxTables <= 0 means no limit.
func RenderLLMContext(snapshot *models.SchemaSnapshot, maxTables int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Database: %s\n", snapshot.DatabaseID)
	fmt.Fprintf(&b, "Total tables: %d\n\n", len(snapshot.Tables))

	tables := snapshot.Tables
	if maxTables > 0 && len(tables) > maxTables {
		tables = tables[:maxTables]
		fmt.Fprintf(&b, "(Showing first %d tables)\n", maxTables)
	}

	for i := range tables {
		renderTableSummary(&b, &tables[i])
		b.WriteString("\n")
	}
	return b.String()
}

func renderTableSummary(b *strings.Builder, tbl *models.TableInfo) {
	fmt.Fprintf(b, "Table: %s\n", tbl.Name)
	fmt.Fprintf(b, "  Approximate rows: %d\n", tbl.RowCountEstimate)
	b.WriteString("  Columns:\n")

	pks := make(map[string]bool, len(tbl.PrimaryKeys))
	for _, pk := range tbl.PrimaryKeys {
		pks[strings.ToLower(pk)] = true
	}

	for _, col := range tbl.Columns {
		nullable := "NOT NULL"
		if col.Nullable {
			nullable = "NULL"
		}
		line := fmt.Sprintf("    - %s: %s %s", col.Name, col.DataType, nullable)
		if col.Default != nil {
			line += " DEFAULT " + *col.Default
		}
		if pks[strings.ToLower(col.Name)] {
			line += " (PK)"
		}
		b.WriteString(line + "\n")
	}
}
