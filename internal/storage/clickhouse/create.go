// Package clickhouse implements the storage.Repository interfaces on top of
// a ClickHouse server, using the clickhouse-go driver through database/sql.
//
// This file builds ClickHouse DDL for a generic schema.TableDef, using
// backtick identifier quoting and CREATE TABLE IF NOT EXISTS semantics. A
// pre-existing table with an incompatible schema is deliberately not detected
// here; the mismatch surfaces at insert time.
package clickhouse

import (
	"fmt"
	"strings"

	"chferry/internal/schema"
)

// BuildCreateTableSQL builds a deterministic ClickHouse CREATE TABLE
// statement for the given table definition.
//
// Rules:
//   - def.Name must be non-empty and at least one column is required.
//   - Columns render in order as `name` Type; an empty type falls back to
//     String.
//   - Identifiers are backtick-quoted; embedded backticks are escaped.
//   - The statement uses CREATE TABLE IF NOT EXISTS with a MergeTree engine
//     and an empty sort key, matching the flat append-only tables this
//     system creates.
func BuildCreateTableSQL(def schema.TableDef) (string, error) {
	name := strings.TrimSpace(def.Name)
	if name == "" {
		return "", fmt.Errorf("clickhouse ddl: table name must not be empty")
	}
	if len(def.Columns) == 0 {
		return "", fmt.Errorf("clickhouse ddl: at least one column is required")
	}

	cols := make([]string, 0, len(def.Columns))
	for _, c := range def.Columns {
		colName := strings.TrimSpace(c.Name)
		if colName == "" {
			return "", fmt.Errorf("clickhouse ddl: column with empty name in table %s", name)
		}
		typ := c.Type
		if typ == "" {
			typ = schema.TypeString
		}
		cols = append(cols, fmt.Sprintf("%s %s", quoteIdent(colName), typ))
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n) ENGINE = MergeTree() ORDER BY tuple()",
		quoteIdent(name),
		strings.Join(cols, ",\n  "),
	), nil
}

// quoteIdent quotes a single identifier for ClickHouse, e.g.:
//
//	quoteIdent("trips")       => `trips`
//	quoteIdent("weird`name")  => `weird\`name` with the backtick doubled
func quoteIdent(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}

// quoteIdents quotes every identifier in order.
func quoteIdents(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = quoteIdent(id)
	}
	return out
}
