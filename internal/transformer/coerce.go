package transformer

import (
	"fmt"
	"math"
	"strconv"

	"chferry/internal/schema"
)

// InvalidPolicy selects what happens when a raw value fails numeric parsing.
//
// The upstream system this mirrors propagated a NaN sentinel into storage
// instead of rejecting the row; PolicySentinel reproduces that. PolicyNull and
// PolicyReject are stricter alternatives for callers that prefer absence or a
// hard per-field error.
type InvalidPolicy int

const (
	// PolicySentinel propagates math.NaN() for unparseable numeric input.
	PolicySentinel InvalidPolicy = iota
	// PolicyNull stores nil for unparseable numeric input.
	PolicyNull
	// PolicyReject fails the row with a per-field conversion error.
	PolicyReject
)

// FloatResult is the tagged outcome of a permissive float parse: either a
// value or an invalid marker. Callers decide whether invalid propagates.
type FloatResult struct {
	Value float64
	OK    bool
}

// IntResult is the tagged outcome of a permissive integer parse.
type IntResult struct {
	Value int64
	OK    bool
}

// ParseFloatOr parses s as a 64-bit float. It never fails; the OK flag tells
// the caller whether Value is a real parse or should be treated as invalid.
func ParseFloatOr(s string) FloatResult {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return FloatResult{OK: false}
	}
	return FloatResult{Value: f, OK: true}
}

// ParseIntOr parses s as a base-10 64-bit integer. The textual booleans
// "true" and "false" map to 1 and 0 because boolean columns are stored as
// small integers.
func ParseIntOr(s string) IntResult {
	switch s {
	case "true":
		return IntResult{Value: 1, OK: true}
	case "false":
		return IntResult{Value: 0, OK: true}
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return IntResult{OK: false}
	}
	return IntResult{Value: i, OK: true}
}

// Coercer converts one raw positional row into the types demanded by the
// confirmed column list. It is a pure function of its inputs (no I/O) so it
// can run per row at stream cadence.
type Coercer struct {
	Columns []schema.Column
	Policy  InvalidPolicy
}

// Apply coerces row.V in place. row.V must be aligned to c.Columns; columns
// present in the source but absent from the confirmed list never reach here
// (the parser drops them during dest→source mapping).
//
// Rules, in order, per field:
//   - nil or empty string becomes nil regardless of the declared tag.
//   - integer-marked tags parse via ParseIntOr; float-marked via ParseFloatOr.
//     On parse failure the policy decides: NaN sentinel, nil, or a per-field
//     error that fails the row.
//   - date-marked tags pass the raw string through unchanged; the destination
//     is responsible for date parsing.
//   - everything else stays a string.
func (c Coercer) Apply(row *Row) error {
	for i, col := range c.Columns {
		if i >= len(row.V) {
			break
		}
		v := row.V[i]
		if v == nil {
			continue
		}
		s, isStr := v.(string)
		if !isStr {
			continue // already typed (database-sourced rows)
		}
		if s == "" {
			row.V[i] = nil
			continue
		}

		switch {
		case col.Type.IsInteger():
			r := ParseIntOr(s)
			if r.OK {
				row.V[i] = r.Value
				continue
			}
			if err := c.invalid(row, i, col, s); err != nil {
				return err
			}
		case col.Type.IsFloat():
			r := ParseFloatOr(s)
			if r.OK {
				row.V[i] = r.Value
				continue
			}
			if err := c.invalid(row, i, col, s); err != nil {
				return err
			}
		case col.Type.IsDate():
			// pass through; destination parses dates
		default:
			// string-family tags keep the raw value
		}
	}
	return nil
}

func (c Coercer) invalid(row *Row, i int, col schema.Column, raw string) error {
	switch c.Policy {
	case PolicyNull:
		row.V[i] = nil
	case PolicyReject:
		return fmt.Errorf("coerce %s: %q is not %s", col.Name, raw, col.Type)
	default:
		row.V[i] = math.NaN()
	}
	return nil
}
