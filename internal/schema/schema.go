// Package schema defines the column model shared by the preview and transfer
// phases: the closed set of storage type tags, the ordered column list a user
// confirms before a transfer, and the synthesis of a target table definition
// from it. The functions here are pure and deterministic, which makes them
// straightforward to test and reuse.
package schema

import (
	"fmt"
	"strings"
)

// TypeTag classifies a column for destination storage purposes. The set is
// intentionally closed and small; anything the inferencer cannot narrow ends
// up as TypeString.
type TypeTag string

const (
	TypeUInt8          TypeTag = "UInt8"   // booleans are stored as 0/1
	TypeInt64          TypeTag = "Int64"
	TypeFloat64        TypeTag = "Float64"
	TypeDate           TypeTag = "Date"
	TypeNullableString TypeTag = "Nullable(String)"
	TypeString         TypeTag = "String"
)

// Column describes a single column in a transfer: a name, unique within the
// transfer and order-significant, and the storage type assigned during the
// preview phase. Once a transfer starts the column list is immutable.
type Column struct {
	Name string  `json:"name"`
	Type TypeTag `json:"type"`
}

// TableDef holds a destination table name and its ordered column list.
// Identifier quoting happens at render time in the storage backend.
type TableDef struct {
	Name    string
	Columns []Column
}

// IsInteger reports whether the tag carries an integer marker (Int*, UInt*).
// Matching on the marker rather than exact tags keeps the coercion policy
// stable if the closed set ever grows a width variant.
func (t TypeTag) IsInteger() bool {
	s := string(t)
	return strings.Contains(s, "Int")
}

// IsFloat reports whether the tag carries a floating-point marker.
func (t TypeTag) IsFloat() bool {
	return strings.Contains(string(t), "Float")
}

// IsDate reports whether the tag carries a date marker. Date-tagged raw values
// pass through coercion unchanged; the destination parses them.
func (t TypeTag) IsDate() bool {
	return strings.Contains(string(t), "Date")
}

// IsNullable reports whether the tag is wrapped in Nullable(...).
func (t TypeTag) IsNullable() bool {
	return strings.HasPrefix(string(t), "Nullable(")
}

// Names returns the ordered column names of the table definition.
func (d TableDef) Names() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Name
	}
	return out
}

// Synthesize derives a target table definition from a confirmed column list.
//
// Rules:
//   - Column order is preserved.
//   - A column with an empty type defaults to TypeString.
//   - Names must be non-empty and unique within the table; violations are
//     configuration errors, reported before any DDL is rendered.
func Synthesize(table string, cols []Column) (TableDef, error) {
	if strings.TrimSpace(table) == "" {
		return TableDef{}, fmt.Errorf("schema: table name must not be empty")
	}
	if len(cols) == 0 {
		return TableDef{}, fmt.Errorf("schema: at least one column is required")
	}

	seen := make(map[string]struct{}, len(cols))
	out := make([]Column, 0, len(cols))
	for _, c := range cols {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return TableDef{}, fmt.Errorf("schema: column with empty name in table %s", table)
		}
		if _, dup := seen[name]; dup {
			return TableDef{}, fmt.Errorf("schema: duplicate column %s in table %s", name, table)
		}
		seen[name] = struct{}{}
		typ := c.Type
		if typ == "" {
			typ = TypeString
		}
		out = append(out, Column{Name: name, Type: typ})
	}

	return TableDef{Name: table, Columns: out}, nil
}

// ParseTag normalizes a loosely-specified type string from a job file or a
// database describe call onto the closed tag set. The mapping is
// case-insensitive and intentionally conservative: anything unrecognized
// falls back to TypeString.
func ParseTag(s string) TypeTag {
	switch v := strings.TrimSpace(s); strings.ToLower(v) {
	case "uint8", "bool", "boolean":
		return TypeUInt8
	case "int64", "int", "integer", "bigint":
		return TypeInt64
	case "float64", "float", "double", "real":
		return TypeFloat64
	case "date":
		return TypeDate
	case "nullable(string)":
		return TypeNullableString
	case "", "string", "text":
		return TypeString
	default:
		// Preserve exact tags coming back from a describe call (e.g. a
		// Nullable wrapper around a non-string type) so round-trips keep the
		// destination's authoritative type.
		return TypeTag(v)
	}
}
