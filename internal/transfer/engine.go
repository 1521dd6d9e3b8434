// Package transfer implements the bidirectional streaming engine between
// delimited files and the database.
//
// A job moves data in one of two supported directions:
//
//   - file→database: stream-parse the file, coerce cells to the confirmed
//     column types, and load in bounded batches. The reported record count is
//     the destination table's own row count after the load.
//   - database→file: run the export query, render the full result as
//     delimited text, and write it to a timestamp-named file in the target
//     directory. The reported count is the number of data lines written.
//
// Anything else (file→file, database→database) is rejected during validation,
// before any file or connection is touched. Jobs run at most once: no
// retries, no resume, no partial-progress bookkeeping.
package transfer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"chferry/internal/datasource"
	"chferry/internal/datasource/file"
	"chferry/internal/datasource/remote"
	"chferry/internal/metrics"
	csvpkg "chferry/internal/parser/csv"
	"chferry/internal/probe"
	"chferry/internal/schema"
	"chferry/internal/storage"
	"chferry/internal/transformer"
)

// DefaultBatchSize caps how many rows accumulate before a flush to the
// database.
const DefaultBatchSize = 10_000

// rowChanBuf is the depth of the channels between pipeline stages.
const rowChanBuf = 64

// Engine runs transfer jobs against one database connection.
type Engine struct {
	Repo storage.Repository
	Log  *slog.Logger

	// BatchSize overrides DefaultBatchSize when > 0.
	BatchSize int

	// Now is the clock used for export filenames; nil means time.Now.
	Now func() time.Time
}

func (e *Engine) log() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

func (e *Engine) batchSize() int {
	if e.BatchSize > 0 {
		return e.BatchSize
	}
	return DefaultBatchSize
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Run executes one job and returns its summary. Validation failures,
// including unsupported directions, are reported before any I/O happens.
func (e *Engine) Run(ctx context.Context, job Job) (*Result, error) {
	if err := e.validate(job); err != nil {
		return nil, err
	}

	start := time.Now()
	var (
		res *Result
		err error
	)
	switch {
	case job.Source.Kind == KindFile && job.Target.Kind == KindDatabase:
		res, err = e.load(ctx, job)
	default: // validate admitted only the two supported pairings
		res, err = e.export(ctx, job)
	}
	metrics.RecordStage(job.Name, "job", err, time.Since(start))
	if err != nil {
		e.log().Error("transfer failed", "job", job.Name, "error", err)
		return nil, err
	}
	e.log().Info("transfer finished",
		"job", job.Name, "table", res.Table, "records", res.RecordCount,
		"duration", time.Since(start).Round(time.Millisecond))
	return res, nil
}

func (e *Engine) validate(job Job) error {
	if e.Repo == nil {
		return fmt.Errorf("no database connection configured")
	}
	for _, ep := range []struct {
		role string
		Endpoint
	}{{"source", job.Source}, {"target", job.Target}} {
		switch ep.Kind {
		case KindFile:
			if ep.Path == "" {
				return fmt.Errorf("%s: file endpoint needs a path", ep.role)
			}
			if ep.role == "target" && remote.IsURL(ep.Path) {
				return fmt.Errorf("target: cannot export to a URL")
			}
		case KindDatabase:
			if ep.Table == "" {
				return fmt.Errorf("%s: database endpoint needs a table", ep.role)
			}
		default:
			return fmt.Errorf("%s: unknown endpoint kind %q", ep.role, ep.Kind)
		}
	}

	srcFile := job.Source.Kind == KindFile
	dstFile := job.Target.Kind == KindFile
	if srcFile == dstFile {
		return fmt.Errorf("%w: %s to %s", ErrUnsupportedDirection, job.Source.Kind, job.Target.Kind)
	}
	if len(job.Columns) == 0 {
		return ErrNoColumns
	}
	return nil
}

// load runs a file→database job: create-if-absent, then parse → coerce →
// batch-insert as a three-stage pipeline. The first failing stage cancels the
// others.
func (e *Engine) load(ctx context.Context, job Job) (*Result, error) {
	table := job.Target.Table
	names := job.columnNames()

	var src datasource.Source = file.NewLocal(job.Source.Path)
	if remote.IsURL(job.Source.Path) {
		src = remote.New(job.Source.Path, remote.Config{})
	} else if job.DeleteSourceFile {
		up := file.NewUploaded(job.Source.Path)
		src = up
		defer func() {
			if cerr := up.Cleanup(); cerr != nil {
				e.log().Warn("could not remove uploaded file",
					"job", job.Name, "path", job.Source.Path, "error", cerr)
			}
		}()
	}

	def := schema.TableDef{Name: table, Columns: job.Columns}
	if err := e.Repo.CreateTable(ctx, def); err != nil {
		return nil, stageErr("create", err)
	}

	coercer := transformer.Coercer{Columns: job.Columns, Policy: job.Policy}

	parsed := make(chan *transformer.Row, rowChanBuf)
	coerced := make(chan *transformer.Row, rowChanBuf)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(parsed)
		rc, err := src.Open(gctx)
		if err != nil {
			return stageErr("open", err)
		}
		opt := csvpkg.Options{
			HasHeader:  job.Source.HasHeader,
			Comma:      job.Source.delimiter(),
			TrimSpace:  job.Source.trimSpace(),
			LazyQuotes: job.Source.lazyQuotes(),
			Normalize:  probe.NormalizeName,
		}
		return stageErr("parse", csvpkg.StreamRows(gctx, rc, names, opt, parsed))
	})

	g.Go(func() error {
		defer close(coerced)
		var read int64
		defer func() { metrics.RecordRows(job.Name, "read", read) }()
		for row := range parsed {
			read++
			if err := coercer.Apply(row); err != nil {
				row.Free()
				return stageErr("coerce", err)
			}
			select {
			case coerced <- row:
			case <-gctx.Done():
				row.Free()
				return gctx.Err()
			}
		}
		return nil
	})

	var inserted int64
	g.Go(func() error {
		n, err := storage.LoadBatches(gctx, names, coerced, e.batchSize(),
			func(ctx context.Context, cols []string, rows [][]any) (int64, error) {
				n, err := e.Repo.InsertBatch(ctx, table, cols, rows)
				if err == nil {
					metrics.RecordBatches(job.Name, 1)
				}
				return n, err
			})
		inserted = n
		return stageErr("load", err)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	metrics.RecordRows(job.Name, "inserted", inserted)

	// The record count reported to the user is the destination's answer, not
	// our own tally. Concurrent writers can legitimately move it.
	count, err := e.Repo.CountRows(ctx, table)
	if err != nil {
		return nil, stageErr("count", err)
	}

	return &Result{
		Table:       table,
		RecordCount: count,
		Message:     fmt.Sprintf("%s now holds %d rows", table, count),
	}, nil
}

// export runs a database→file job. The whole result set is materialized in
// memory before the file is written; large tables trade memory for the
// simplicity of an all-or-nothing export.
func (e *Engine) export(ctx context.Context, job Job) (*Result, error) {
	table := job.Source.Table
	names := job.columnNames()

	records, err := e.Repo.QueryAll(ctx, table, names)
	if err != nil {
		return nil, stageErr("query", err)
	}

	var buf bytes.Buffer
	if err := csvpkg.WriteDelimited(&buf, job.Target.delimiter(), names, records); err != nil {
		return nil, stageErr("render", err)
	}

	path := filepath.Join(job.Target.Path, fmt.Sprintf("export_%d.csv", e.now().UnixNano()))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return nil, stageErr("write", err)
	}

	// Count data lines the same way a user eyeballing the file would: line
	// breaks minus the header's.
	count := int64(strings.Count(buf.String(), "\n")) - 1
	metrics.RecordRows(job.Name, "exported", count)

	return &Result{
		Table:       table,
		RecordCount: count,
		ExportPath:  path,
		Message:     fmt.Sprintf("exported %d rows from %s", count, table),
	}, nil
}
