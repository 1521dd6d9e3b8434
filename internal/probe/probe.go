// Package probe samples the head of a delimited file and assigns a storage
// type tag to each column. It backs the interactive preview phase: the user
// confirms (or edits) the inferred column list before a transfer starts.
//
// Inference is deliberately coarse: rules are evaluated per value in a fixed
// priority order and the column's tag is decided by the first qualifying rule
// observed, not a majority vote. A single anomalous early value can therefore
// mis-tag a column. That behavior is kept on purpose — it mirrors the system
// this one replaces — and the sample window is a tunable rather than a hidden
// constant so callers can widen it when a dataset needs more context.
//
// Database-sourced columns never pass through here; their types come from the
// destination's own describe call, which is authoritative.
package probe

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	csvpkg "chferry/internal/parser/csv"
	"chferry/internal/schema"
)

// DefaultSampleWindow bounds how many data rows inference consults. Rows past
// the window never re-evaluate a column.
const DefaultSampleWindow = 10

// datePrefix matches four digits, dash, two digits, dash, two digits at the
// start of the value. Pre-compiled to avoid recompilation per value.
var datePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// Options controls sampling and parsing of the file head.
type Options struct {
	// Delimiter is the field separator; zero means comma.
	Delimiter rune
	// HasHeader indicates the first row carries column names. Without a
	// header, positional names col_1..col_n are synthesized.
	HasHeader bool
	// SampleWindow overrides DefaultSampleWindow when > 0.
	SampleWindow int
}

// Result is the outcome of probing a file head.
type Result struct {
	// Columns carries one inferred column per source field, in file order.
	Columns []schema.Column
	// Sample holds the raw sampled data rows (at most the sample window),
	// useful for preview rendering.
	Sample [][]string
}

// Probe reads at most the sample window of data rows from r and infers a
// storage type tag per column.
//
// Per-column rule order (first qualifying rule wins):
//  1. a boolean token ("true"/"false") tags UInt8 — booleans are stored as
//     small integers
//  2. a date-like prefix (dddd-dd-dd) tags Date
//  3. all sampled non-empty values numeric tags Float64
//  4. any sampled value empty tags Nullable(String)
//  5. otherwise String
func Probe(r io.Reader, opt Options) (Result, error) {
	delim := opt.Delimiter
	if delim == 0 {
		delim = ','
	}
	window := opt.SampleWindow
	if window <= 0 {
		window = DefaultSampleWindow
	}

	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1 // tolerant; rows are fitted to header width below

	var headers []string
	if opt.HasHeader {
		rec, err := cr.Read()
		if err == io.EOF {
			return Result{}, fmt.Errorf("probe: empty input")
		}
		if err != nil {
			return Result{}, fmt.Errorf("probe: read header: %w", err)
		}
		headers = make([]string, len(rec))
		for i, h := range rec {
			if i == 0 {
				h = csvpkg.StripBOM(h)
			}
			headers[i] = NormalizeName(h)
		}
	}

	var rows [][]string
	for len(rows) < window {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("probe: read sample: %w", err)
		}
		if headers == nil {
			headers = make([]string, len(rec))
			for i := range rec {
				headers[i] = fmt.Sprintf("col_%d", i+1)
			}
		}
		rows = append(rows, fitRow(rec, len(headers)))
	}
	if headers == nil {
		return Result{}, fmt.Errorf("probe: empty input")
	}

	cols := make([]schema.Column, len(headers))
	for i, name := range headers {
		vals := make([]string, len(rows))
		for j, row := range rows {
			vals[j] = row[i]
		}
		cols[i] = schema.Column{Name: name, Type: inferTag(vals)}
	}

	return Result{Columns: cols, Sample: rows}, nil
}

// inferTag applies the ordered rule list to one column's sampled values.
func inferTag(values []string) schema.TypeTag {
	allNumeric := true
	anyEmpty := false
	sawNonEmpty := false

	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			anyEmpty = true
			continue
		}
		// Short-circuit rules: the first boolean or date-like value decides
		// the whole column, however unrepresentative it may be.
		switch v {
		case "true", "false":
			return schema.TypeUInt8
		}
		if datePrefix.MatchString(v) {
			return schema.TypeDate
		}
		sawNonEmpty = true
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			allNumeric = false
		}
	}

	if sawNonEmpty && allNumeric {
		return schema.TypeFloat64
	}
	if anyEmpty {
		return schema.TypeNullableString
	}
	return schema.TypeString
}

// fitRow truncates or pads a record to exactly n fields so downstream
// consumers can rely on stable column indexes. Missing fields stay empty.
func fitRow(row []string, n int) []string {
	if len(row) == n {
		return row
	}
	cp := make([]string, n)
	copy(cp, row)
	return cp
}

// NormalizeName converts arbitrary header text into a lowercase ASCII
// identifier suitable for destination schemas:
//  1. lowercase
//  2. strip accents (NFD → remove Mn → NFC)
//  3. keep [a-z0-9_]; convert space/dash/dot to underscore; drop others
//  4. fall back to "col" if nothing survives
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	ascii, _, _ := transform.String(t, s)

	var b strings.Builder
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "col"
	}
	return name
}
