package schemaformat

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Column describes one introspected column of a user table.
type Column struct {
	ColumnName             string `json:"columnName"`
	DataType               string `json:"dataType"`
	IsNullable             string `json:"isNullable"`
	CharacterMaximumLength *int   `json:"characterMaximumLength"`
}

// typeAliases maps verbose information_schema type names to the short forms
// the model is more reliable with.
var typeAliases = map[string]string{
	"character varying":           "VARCHAR",
	"character":                   "CHAR",
	"timestamp without time zone": "TIMESTAMP",
	"timestamp with time zone":    "TIMESTAMPTZ",
	"time without time zone":      "TIME",
	"double precision":            "DOUBLE",
	"integer":                     "INTEGER",
	"bigint":                      "BIGINT",
	"smallint":                    "SMALLINT",
	"boolean":                     "BOOLEAN",
	"numeric":                     "NUMERIC",
	"text":                        "TEXT",
	"uuid":                        "UUID",
	"jsonb":                       "JSONB",
	"json":                        "JSON",
	"date":                        "DATE",
	"bytea":                       "BYTEA",
}

// Format renders a stored schema snapshot as a model-facing text block:
// one section per table with deduplicated columns, then a heuristic
// relationship section derived from *_id column naming.
//
// A snapshot that cannot be decoded yields a diagnostic block instead of an
// error so that generation can still proceed with degraded context.
func Format(raw []byte) string {
	tables, err := decodeSnapshot(raw)
	if err != nil {
		return fmt.Sprintf("-- schema unavailable: %v\n-- generate conservative queries and state your assumptions", err)
	}
	if len(tables) == 0 {
		return "-- schema snapshot is empty"
	}

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString("Table: ")
		b.WriteString(name)
		b.WriteString("\n")
		for _, col := range dedupe(tables[name]) {
			b.WriteString("  - ")
			b.WriteString(col.ColumnName)
			b.WriteString(" (")
			b.WriteString(normalizeType(col))
			if strings.EqualFold(col.IsNullable, "NO") {
				b.WriteString(", NOT NULL")
			} else {
				b.WriteString(", NULLABLE")
			}
			b.WriteString(")\n")
		}
		b.WriteString("\n")
	}

	if rels := inferRelationships(tables, names); len(rels) > 0 {
		b.WriteString("Relationships (inferred from column names):\n")
		for _, rel := range rels {
			b.WriteString("  - ")
			b.WriteString(rel)
			b.WriteString("\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// decodeSnapshot accepts the two shapes the introspection flow has produced
// over time: a plain table→columns map, and a list of single-key objects
// (one per introspected row). Duplicate table keys are merged.
func decodeSnapshot(raw []byte) (map[string][]Column, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("snapshot is empty")
	}

	var asMap map[string][]Column
	if err := json.Unmarshal(raw, &asMap); err == nil {
		return asMap, nil
	}

	var asList []map[string][]Column
	if err := json.Unmarshal(raw, &asList); err != nil {
		return nil, fmt.Errorf("unrecognized snapshot encoding: %w", err)
	}

	merged := make(map[string][]Column)
	for _, entry := range asList {
		for table, cols := range entry {
			merged[table] = append(merged[table], cols...)
		}
	}
	return merged, nil
}

func dedupe(cols []Column) []Column {
	seen := make(map[string]bool, len(cols))
	out := make([]Column, 0, len(cols))
	for _, col := range cols {
		key := strings.ToLower(col.ColumnName)
		if col.ColumnName == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, col)
	}
	return out
}

func normalizeType(col Column) string {
	t := strings.ToLower(strings.TrimSpace(col.DataType))
	name, ok := typeAliases[t]
	if !ok {
		name = strings.ToUpper(col.DataType)
	}
	if col.CharacterMaximumLength != nil && *col.CharacterMaximumLength > 0 {
		return fmt.Sprintf("%s(%d)", name, *col.CharacterMaximumLength)
	}
	return name
}

// inferRelationships guesses foreign keys from columns named <table>_id where
// a table with a matching name exists in the snapshot. Matching is
// case-insensitive and tolerates a trailing "s" on the table name.
func inferRelationships(tables map[string][]Column, names []string) []string {
	lookup := make(map[string]string, len(names))
	for _, name := range names {
		lower := strings.ToLower(name)
		lookup[lower] = name
		lookup[strings.TrimSuffix(lower, "s")] = name
	}

	var rels []string
	for _, name := range names {
		for _, col := range dedupe(tables[name]) {
			colLower := strings.ToLower(col.ColumnName)
			if !strings.HasSuffix(colLower, "_id") || colLower == "_id" {
				continue
			}
			target, ok := lookup[strings.TrimSuffix(colLower, "_id")]
			if !ok || target == name {
				continue
			}
			rels = append(rels, fmt.Sprintf("%s.%s -> %s.id", name, col.ColumnName, target))
		}
	}
	return rels
}
