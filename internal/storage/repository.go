// Package storage defines the narrow interfaces the transfer engine needs
// from a destination database, plus the batched loading loop that drains
// pooled rows into it. Concrete backends live in subpackages; the engine and
// its tests depend only on these interfaces.
package storage

import (
	"context"

	"chferry/internal/schema"
)

// CopyFn abstracts one batched insert. In production it appends to a native
// insert batch; in tests a fake verifies batching behavior.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// BatchWriter inserts one batch of positional rows into a table. Each call is
// one write operation; there is no retry anywhere in the system — a transient
// failure is terminal for the job.
type BatchWriter interface {
	InsertBatch(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
}

// Counter answers the authoritative row count of a destination table. It is a
// separate interface so the "ground truth from the destination" policy can be
// swapped or faked in tests independent of the write path.
type Counter interface {
	CountRows(ctx context.Context, table string) (int64, error)
}

// Creator creates a destination table with create-if-absent semantics. A
// pre-existing table with an incompatible schema is not detected here; it
// fails downstream at insert time.
type Creator interface {
	CreateTable(ctx context.Context, def schema.TableDef) error
}

// Introspector lists tables and describes their columns, both keyed by the
// connection the implementation was opened with. Database-sourced column
// types are authoritative; no inference runs on them.
type Introspector interface {
	ListTables(ctx context.Context) ([]string, error)
	DescribeTable(ctx context.Context, table string) ([]schema.Column, error)
}

// Querier runs the single projection query an export needs and returns every
// row rendered as delimited-text cells. Full-result buffering is a documented
// scoping tradeoff; this interface is the seam where pagination would go.
type Querier interface {
	QueryAll(ctx context.Context, table string, columns []string) ([][]string, error)
}

// Repository is the full destination capability set a backend provides.
type Repository interface {
	BatchWriter
	Counter
	Creator
	Introspector
	Querier
	Ping(ctx context.Context) error
	Close() error
}
