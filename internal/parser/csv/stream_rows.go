// Package csv streams delimited text into pooled rows aligned to a confirmed
// column order, and renders result sets back out as delimited text. Reading
// never materializes the whole file; one row is in flight per job at a time.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"chferry/internal/transformer"
)

// Options tunes parsing of a delimited source.
type Options struct {
	// HasHeader indicates the first row carries column names. Without a
	// header, target columns map positionally.
	HasHeader bool
	// Comma is the field delimiter; zero means ','.
	Comma rune
	// TrimSpace trims edge whitespace from every cell. Defaults on via
	// DefaultOptions.
	TrimSpace bool
	// LazyQuotes tolerates bare quotes inside fields.
	LazyQuotes bool
	// Normalize maps a raw header cell onto the canonical column name used in
	// the confirmed column list. Nil means identity.
	Normalize func(string) string
}

// DefaultOptions returns the parsing defaults used by the transfer engine:
// comma delimiter, header row expected, whitespace trimmed.
func DefaultOptions() Options {
	return Options{HasHeader: true, Comma: ',', TrimSpace: true}
}

// StreamRows reads delimited text from src and emits pooled rows aligned to
// the target 'columns' order on out. It reuses csv.Reader buffers
// (ReuseRecord=true) and copies cells into row.V[i] as strings or nil.
//
// Header handling:
//   - With a header, the first line is normalized (Options.Normalize, BOM
//     strip) and a dest→source mapping is built: colIx[target] = source
//     index, -1 when the file lacks the column (emitted as nil). Source
//     columns absent from the confirmed list are dropped silently.
//   - Without a header, mapping is positional.
//
// A parse error aborts the stream with a line-tagged error; malformed input
// is a job-level failure, not a soft drop. The caller owns closing out; src
// is closed here.
func StreamRows(
	ctx context.Context,
	src io.ReadCloser,
	columns []string,
	opt Options,
	out chan<- *transformer.Row,
) error {
	defer src.Close()

	comma := opt.Comma
	if comma == 0 {
		comma = ','
	}
	normalize := opt.Normalize
	if normalize == nil {
		normalize = func(s string) string { return s }
	}

	cr := csv.NewReader(src)
	cr.Comma = comma
	cr.ReuseRecord = true
	cr.LazyQuotes = opt.LazyQuotes
	cr.FieldsPerRecord = -1 // rows are fitted via the dest→source mapping

	colIx := make([]int, len(columns)) // colIx[target] = source index, or -1
	for i := range colIx {
		colIx[i] = -1
	}

	line := 0
	read := func() ([]string, error) { line++; return cr.Read() }

	if opt.HasHeader {
		hdr, err := read()
		if err != nil {
			return fmt.Errorf("line %d: read header: %w", line, err)
		}
		srcToIdx := make(map[string]int, len(hdr))
		for i, h := range hdr {
			if i == 0 {
				h = StripBOM(h)
			}
			if opt.TrimSpace {
				h = strings.TrimSpace(h)
			}
			srcToIdx[normalize(h)] = i
		}
		for t, target := range columns {
			if si, ok := srcToIdx[target]; ok {
				colIx[t] = si
			}
		}
	} else {
		for i := range columns {
			colIx[i] = i // positional
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("line %d: csv read: %w", line, err)
		}

		row := transformer.GetRow(len(columns))
		for t := range columns {
			si := colIx[t]
			if si < 0 || si >= len(rec) {
				row.V[t] = nil
				continue
			}
			v := rec[si]
			if opt.TrimSpace {
				v = strings.TrimSpace(v)
			}
			if v == "" {
				row.V[t] = nil
			} else {
				row.V[t] = v
			}
		}

		select {
		case out <- row:
		case <-ctx.Done():
			row.Free()
			return ctx.Err()
		}
	}
}
