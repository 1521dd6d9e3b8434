package clickhouse

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"net"
	"reflect"
	"strconv"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"

	csvout "chferry/internal/parser/csv"
	"chferry/internal/schema"
)

// Options holds the connection parameters for one ClickHouse endpoint. The
// credential is either a password or a bearer token; the token is opaque here
// and handed to the driver untouched.
type Options struct {
	Host     string
	Port     int
	Database string
	Username string
	// Password authenticates over the native protocol.
	Password string
	// AccessToken, when set, takes precedence over Password and switches the
	// connection to the HTTP protocol with an Authorization: Bearer header.
	AccessToken string
	// Secure enables TLS.
	Secure bool
}

// Repository is a ClickHouse-backed implementation of storage.Repository.
// Every database call is attempted exactly once; there is no retry policy.
type Repository struct {
	db *sql.DB
}

// driverOptions maps Options onto the clickhouse-go option struct.
func driverOptions(opt Options) *clickhouse.Options {
	out := &clickhouse.Options{
		Addr: []string{net.JoinHostPort(opt.Host, strconv.Itoa(opt.Port))},
		Auth: clickhouse.Auth{
			Database: opt.Database,
			Username: opt.Username,
			Password: opt.Password,
		},
	}
	if opt.AccessToken != "" {
		// Bearer credentials are only carried by the HTTP interface.
		out.Protocol = clickhouse.HTTP
		out.Auth.Password = ""
		out.HttpHeaders = map[string]string{
			"Authorization": "Bearer " + opt.AccessToken,
		}
	}
	if opt.Secure {
		out.TLS = &tls.Config{}
	}
	return out
}

// Open connects to ClickHouse and verifies the connection with one ping.
func Open(ctx context.Context, opt Options) (*Repository, error) {
	db := clickhouse.OpenDB(driverOptions(opt))
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("clickhouse connect %s:%d: %w", opt.Host, opt.Port, err)
	}
	return &Repository{db: db}, nil
}

// Ping verifies the connection is still usable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (r *Repository) Close() error {
	return r.db.Close()
}

// ListTables returns the table names of the connected database, sorted.
func (r *Repository) ListTables(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT name FROM system.tables WHERE database = currentDatabase() ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// DescribeTable returns the table's columns in position order. The returned
// types are authoritative; no inference runs on database-sourced columns.
func (r *Repository) DescribeTable(ctx context.Context, table string) ([]schema.Column, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT name, type FROM system.columns WHERE database = currentDatabase() AND table = ? ORDER BY position",
		table)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", table, err)
	}
	defer rows.Close()

	var out []schema.Column
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, fmt.Errorf("describe %s: %w", table, err)
		}
		out = append(out, schema.Column{Name: name, Type: schema.TypeTag(typ)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("describe %s: table not found", table)
	}
	return out, nil
}

// CreateTable creates the destination table with if-absent semantics.
func (r *Repository) CreateTable(ctx context.Context, def schema.TableDef) error {
	ddl, err := BuildCreateTableSQL(def)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", def.Name, err)
	}
	return nil
}

// InsertBatch writes one batch of positional rows as a single insert. The
// driver buffers appended rows and ships them on commit, so the batch lands
// as one write operation.
func (r *Repository) InsertBatch(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("insert %s: begin: %w", table, err)
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL(table, columns))
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("insert %s: prepare: %w", table, err)
	}
	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			stmt.Close()
			tx.Rollback()
			return 0, fmt.Errorf("insert %s: row %d: %w", table, i+1, err)
		}
	}
	if err := stmt.Close(); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("insert %s: commit: %w", table, err)
	}
	return int64(len(rows)), nil
}

// CountRows returns the destination table's current row count. This is the
// "ground truth from the destination" count: concurrent writers may move it,
// which the transfer engine tolerates by design.
func (r *Repository) CountRows(ctx context.Context, table string) (int64, error) {
	var n uint64
	q := fmt.Sprintf("SELECT count() FROM %s", quoteIdent(table))
	if err := r.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return int64(n), nil
}

// QueryAll runs the export projection and renders every value as a
// delimited-text cell. The full result set is buffered in memory; this is a
// documented scoping tradeoff (no server-side pagination).
func (r *Repository) QueryAll(ctx context.Context, table string, columns []string) ([][]string, error) {
	q := fmt.Sprintf("SELECT %s FROM %s",
		strings.Join(quoteIdents(columns), ", "), quoteIdent(table))
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	cts, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("query %s: column types: %w", table, err)
	}

	var out [][]string
	for rows.Next() {
		scan := make([]any, len(cts))
		for i, ct := range cts {
			scan[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, fmt.Errorf("query %s: scan: %w", table, err)
		}
		rec := make([]string, len(scan))
		for i, v := range scan {
			rec[i] = csvout.FormatCell(deref(v))
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// insertSQL renders the column-qualified insert statement the driver batches
// against.
func insertSQL(table string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s)",
		quoteIdent(table), strings.Join(quoteIdents(columns), ", "))
}

// deref unwraps the pointer(s) produced by reflect-driven scanning; a nil
// pointer becomes nil so NULLs render as empty cells.
func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}
