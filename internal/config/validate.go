// This file adds a lightweight linter/validator for Pipeline values. It
// performs static checks over a decoded Pipeline and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"

	"chferry/internal/schema"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "target.table",
// "columns[1].type"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue in the list is severity error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline performs static validation / linting of a Pipeline.
//
// It does not mutate the pipeline. Instead it returns a slice of Issue values.
// Callers may decide whether to treat warnings as fatal or not.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}

	issues = append(issues, validateConn(p.Database)...)
	issues = append(issues, validateEndpoint("source", p.Source)...)
	issues = append(issues, validateEndpoint("target", p.Target)...)
	issues = append(issues, validateDirection(p)...)
	issues = append(issues, validateColumns(p)...)
	issues = append(issues, validatePolicy(p.InvalidPolicy)...)
	issues = append(issues, validateRuntime(p.Runtime)...)

	return issues
}

func validateConn(c ConnParams) []Issue {
	var issues []Issue

	if strings.TrimSpace(c.Host) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "database.host",
			Message:  "database.host must not be empty",
		})
	}
	if c.Port < 0 || c.Port > 65535 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "database.port",
			Message:  fmt.Sprintf("port %d is outside the valid range", c.Port),
		})
	}
	if c.Password != "" && c.AccessToken != "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "database",
			Message:  "both password and access_token are set; the token wins and the password is ignored",
		})
	}

	return issues
}

func validateEndpoint(role string, e Endpoint) []Issue {
	var issues []Issue

	switch e.Kind {
	case "":
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     role + ".kind",
			Message:  role + ".kind must not be empty",
		})
	case "file":
		if strings.TrimSpace(e.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     role + ".path",
				Message:  "file endpoint requires a non-empty path",
			})
		}
		if len([]rune(e.Delimiter)) > 1 {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     role + ".delimiter",
				Message:  fmt.Sprintf("delimiter %q is longer than one character; only the first is used", e.Delimiter),
			})
		}
	case "database":
		if strings.TrimSpace(e.Table) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     role + ".table",
				Message:  "database endpoint requires a non-empty table",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     role + ".kind",
			Message:  fmt.Sprintf("unknown endpoint kind %q; supported kinds are file and database", e.Kind),
		})
	}

	return issues
}

// validateDirection rejects pairings the engine does not implement. The same
// check runs again inside the engine; flagging it here lets a CLI or the web
// UI fail fast with a pointed message.
func validateDirection(p Pipeline) []Issue {
	s, t := p.Source.Kind, p.Target.Kind
	if s == "" || t == "" || s != t {
		return nil
	}
	return []Issue{{
		Severity: SeverityError,
		Path:     "source.kind",
		Message:  fmt.Sprintf("%s to %s transfers are not supported; one end must be a file and the other a database table", s, t),
	}}
}

func validateColumns(p Pipeline) []Issue {
	var issues []Issue

	if len(p.Columns) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "columns",
			Message:  "a transfer requires a confirmed column list",
		})
	}

	seen := map[string]int{}
	for i, c := range p.Columns {
		path := fmt.Sprintf("columns[%d]", i)
		if strings.TrimSpace(c.Name) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".name",
				Message:  "column name must not be empty",
			})
			continue
		}
		if prev, dup := seen[c.Name]; dup {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".name",
				Message:  fmt.Sprintf("duplicate column %q (also at columns[%d])", c.Name, prev),
			})
		}
		seen[c.Name] = i

		if c.Type == "" {
			continue // synthesizer defaults it
		}
		switch schema.ParseTag(c.Type) {
		case schema.TypeUInt8, schema.TypeInt64, schema.TypeFloat64,
			schema.TypeDate, schema.TypeNullableString, schema.TypeString:
		default:
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     path + ".type",
				Message:  fmt.Sprintf("unrecognized type %q; it is passed to the database verbatim", c.Type),
			})
		}
	}

	return issues
}

func validatePolicy(policy string) []Issue {
	switch policy {
	case "", "sentinel", "null", "reject":
		return nil
	}
	return []Issue{{
		Severity: SeverityError,
		Path:     "invalid_policy",
		Message:  fmt.Sprintf("unknown policy %q; supported values are sentinel, null, reject", policy),
	}}
}

// validateRuntime validates RuntimeConfig for obvious misconfigurations.
func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue

	if r.BatchSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.batch_size",
			Message:  "batch_size must not be negative",
		})
	}
	if r.SampleWindow < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.sample_window",
			Message:  "sample_window must not be negative",
		})
	}

	return issues
}
