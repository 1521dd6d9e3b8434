package transfer

import (
	"chferry/internal/schema"
	"chferry/internal/transformer"
)

// EndpointKind discriminates the two endpoint families a job can connect.
type EndpointKind string

const (
	KindFile     EndpointKind = "file"
	KindDatabase EndpointKind = "database"
)

// Endpoint describes one side of a transfer. Exactly one family of fields is
// meaningful, selected by Kind.
type Endpoint struct {
	Kind EndpointKind `json:"kind" yaml:"kind"`

	// File endpoints. As a source, Path is the delimited file to read; as a
	// target, Path is the directory the export file is written into.
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	Delimiter rune   `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`
	HasHeader bool   `json:"has_header,omitempty" yaml:"has_header,omitempty"`

	// TrimSpace and LazyQuotes tune the delimited reader on file sources.
	// Both default to on when unset; nil distinguishes "unset" from an
	// explicit false.
	TrimSpace  *bool `json:"trim_space,omitempty" yaml:"trim_space,omitempty"`
	LazyQuotes *bool `json:"lazy_quotes,omitempty" yaml:"lazy_quotes,omitempty"`

	// Database endpoints.
	Table string `json:"table,omitempty" yaml:"table,omitempty"`
}

// delimiter returns the endpoint's delimiter, defaulting to comma.
func (e Endpoint) delimiter() rune {
	if e.Delimiter == 0 {
		return ','
	}
	return e.Delimiter
}

func (e Endpoint) trimSpace() bool {
	if e.TrimSpace == nil {
		return true
	}
	return *e.TrimSpace
}

func (e Endpoint) lazyQuotes() bool {
	if e.LazyQuotes == nil {
		return true
	}
	return *e.LazyQuotes
}

// Job is one transfer: a source, a target, and the confirmed column set the
// data moves through. Jobs run at most once; there is no retry and no resume.
type Job struct {
	// Name labels logs and metrics for this run.
	Name   string   `json:"name" yaml:"name"`
	Source Endpoint `json:"source" yaml:"source"`
	Target Endpoint `json:"target" yaml:"target"`

	// Columns is the confirmed schema and must be non-empty. For
	// file→database it is the contract the user approved after probing; for
	// database→file it is the projection exported, confirmed from the
	// table's own describe call.
	Columns []schema.Column `json:"columns,omitempty" yaml:"columns,omitempty"`

	// Policy controls what happens to cells that fail numeric coercion.
	Policy transformer.InvalidPolicy `json:"-" yaml:"-"`

	// DeleteSourceFile marks the source as a one-shot upload: the engine
	// removes the file when the run finishes, whether it succeeded or not.
	DeleteSourceFile bool `json:"delete_source_file,omitempty" yaml:"delete_source_file,omitempty"`
}

// columnNames returns the job's column names in declared order.
func (j Job) columnNames() []string {
	names := make([]string, len(j.Columns))
	for i, c := range j.Columns {
		names[i] = c.Name
	}
	return names
}

// Result summarizes a finished transfer.
type Result struct {
	// Table is the database table the job read from or wrote to.
	Table string `json:"table"`

	// RecordCount is the number of records moved. For loads this is the
	// destination table's row count after the job, reported by the database
	// itself; for exports it is the number of data lines written.
	RecordCount int64 `json:"record_count"`

	// ExportPath is the file written by a database→file job, empty otherwise.
	ExportPath string `json:"export_path,omitempty"`

	Message string `json:"message"`
}
