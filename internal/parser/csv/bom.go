package csv

import "strings"

// StripBOM removes a UTF-8 byte order mark from the front of s. Files saved
// by spreadsheet tools often carry one, and it would otherwise end up glued
// to the first header name.
func StripBOM(s string) string {
	return strings.TrimPrefix(s, "\uFEFF")
}
