package dbexec

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DarshilChauhan1/sql-query-builder-llm/pkg/schemaformat"
)

const postgresColumnsQuery = `
SELECT
	table_name,
	column_name,
	data_type,
	is_nullable,
	character_maximum_length
FROM information_schema.columns
WHERE table_schema = 'public'
ORDER BY table_name, ordinal_position`

// Introspector reads table/column metadata out of a target database so the
// workspace flow can store a schema snapshot.
type Introspector struct {
	registry *Registry
}

func NewIntrospector(registry *Registry) *Introspector {
	return &Introspector{registry: registry}
}

// Snapshot connects to the target database, walks information_schema, and
// returns the serialized table→columns mapping. Like Execute, the connection
// is opened and closed within this call.
func (in *Introspector) Snapshot(ctx context.Context, kind Kind, connString string) (json.RawMessage, error) {
	if kind != KindPostgres {
		return nil, fmt.Errorf("schema introspection not implemented for kind: %s", kind)
	}

	driver, err := in.registry.Driver(kind)
	if err != nil {
		return nil, err
	}

	db, err := driver.Open(connString)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("connect to target database: %w", err)
	}

	rows, err := db.QueryContext(ctx, postgresColumnsQuery)
	if err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}
	defer rows.Close()

	tables := make(map[string][]schemaformat.Column)
	for rows.Next() {
		var (
			table, column, dataType, nullable string
			maxLen                            *int
		)
		if err := rows.Scan(&table, &column, &dataType, &nullable, &maxLen); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		tables[table] = append(tables[table], schemaformat.Column{
			ColumnName:             column,
			DataType:               dataType,
			IsNullable:             nullable,
			CharacterMaximumLength: maxLen,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("target database exposes no tables in schema 'public'")
	}

	snapshot, err := json.Marshal(tables)
	if err != nil {
		return nil, fmt.Errorf("serialize snapshot: %w", err)
	}
	return snapshot, nil
}
