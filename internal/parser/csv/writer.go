package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// WriteDelimited renders a header row followed by records as delimited text.
// Every write flushes before returning so the caller can count the output.
func WriteDelimited(w io.Writer, comma rune, header []string, records [][]string) error {
	cw := csv.NewWriter(w)
	if comma != 0 {
		cw.Comma = comma
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, rec := range records {
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write record %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatCell renders one database value as delimited-text cell content.
// NULLs render empty; dates keep the compact date form when they carry no
// time component.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case *string:
		if x == nil {
			return ""
		}
		return *x
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format("2006-01-02 15:04:05")
	case *time.Time:
		if x == nil {
			return ""
		}
		return FormatCell(*x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
