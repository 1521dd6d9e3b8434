// Engine behavior tests, run against an in-memory repository fake.
//
// Covered:
//   - unsupported directions rejected during validation, before any I/O
//   - file→database: create-if-absent, header mapping, coercion, batching,
//     and the destination-reported record count
//   - uploaded source files removed exactly once, on success and on failure
//   - database→file: timestamp-named export, delimiter handling, and the
//     line-break-derived record count
package transfer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"chferry/internal/schema"
	"chferry/internal/transformer"
)

// fakeRepo implements storage.Repository in memory and records every call.
type fakeRepo struct {
	mu sync.Mutex

	created []schema.TableDef
	batches [][][]any
	cols    []string

	insertErr error
	failAfter int // fail once this many batches have landed; 0 = never

	count    int64
	countErr error

	tables       []string
	describeCols []schema.Column
	describeErr  error

	queryRecords [][]string
	queryErr     error

	calls []string
}

func (f *fakeRepo) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeRepo) InsertBatch(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	f.record("insert")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil && len(f.batches) >= f.failAfter {
		return 0, f.insertErr
	}
	cp := make([][]any, len(rows))
	for i, r := range rows {
		cp[i] = append([]any(nil), r...)
	}
	f.batches = append(f.batches, cp)
	f.cols = columns
	return int64(len(rows)), nil
}

func (f *fakeRepo) CountRows(ctx context.Context, table string) (int64, error) {
	f.record("count")
	return f.count, f.countErr
}

func (f *fakeRepo) CreateTable(ctx context.Context, def schema.TableDef) error {
	f.record("create")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, def)
	return nil
}

func (f *fakeRepo) ListTables(ctx context.Context) ([]string, error) {
	f.record("list")
	return f.tables, nil
}

func (f *fakeRepo) DescribeTable(ctx context.Context, table string) ([]schema.Column, error) {
	f.record("describe")
	return f.describeCols, f.describeErr
}

func (f *fakeRepo) QueryAll(ctx context.Context, table string, columns []string) ([][]string, error) {
	f.record("query")
	return f.queryRecords, f.queryErr
}

func (f *fakeRepo) Ping(ctx context.Context) error { return nil }
func (f *fakeRepo) Close() error                   { return nil }

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp input: %v", err)
	}
	return path
}

var loadColumns = []schema.Column{
	{Name: "id", Type: schema.TypeUInt8},
	{Name: "score", Type: schema.TypeFloat64},
	{Name: "note", Type: schema.TypeNullableString},
}

func TestRunRejectsUnsupportedDirections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source Endpoint
		target Endpoint
	}{
		{
			"file to file",
			Endpoint{Kind: KindFile, Path: "/nonexistent/in.csv"},
			Endpoint{Kind: KindFile, Path: "/nonexistent/out"},
		},
		{
			"database to database",
			Endpoint{Kind: KindDatabase, Table: "a"},
			Endpoint{Kind: KindDatabase, Table: "b"},
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			repo := &fakeRepo{}
			eng := &Engine{Repo: repo}
			_, err := eng.Run(context.Background(), Job{
				Name: "j", Source: tc.source, Target: tc.target,
				Columns: loadColumns,
			})
			if !errors.Is(err, ErrUnsupportedDirection) {
				t.Fatalf("err = %v, want ErrUnsupportedDirection", err)
			}
			if len(repo.calls) != 0 {
				t.Fatalf("repository touched before validation: %v", repo.calls)
			}
		})
	}
}

func TestRunValidationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		job  Job
	}{
		{"file source without path", Job{
			Source:  Endpoint{Kind: KindFile},
			Target:  Endpoint{Kind: KindDatabase, Table: "t"},
			Columns: loadColumns,
		}},
		{"database target without table", Job{
			Source:  Endpoint{Kind: KindFile, Path: "x.csv"},
			Target:  Endpoint{Kind: KindDatabase},
			Columns: loadColumns,
		}},
		{"unknown endpoint kind", Job{
			Source:  Endpoint{Kind: "ftp", Path: "x"},
			Target:  Endpoint{Kind: KindDatabase, Table: "t"},
			Columns: loadColumns,
		}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			eng := &Engine{Repo: &fakeRepo{}}
			if _, err := eng.Run(context.Background(), tc.job); err == nil {
				t.Fatal("expected validation error, got nil")
			}
		})
	}
}

func TestEmptyColumnSelectionFailsBeforeIO(t *testing.T) {
	t.Parallel()

	jobs := map[string]Job{
		"load": {
			Source: Endpoint{Kind: KindFile, Path: "x.csv"},
			Target: Endpoint{Kind: KindDatabase, Table: "t"},
		},
		"export": {
			Source: Endpoint{Kind: KindDatabase, Table: "t"},
			Target: Endpoint{Kind: KindFile, Path: "out"},
		},
	}
	for name, job := range jobs {
		job := job
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			repo := &fakeRepo{}
			eng := &Engine{Repo: repo}
			_, err := eng.Run(context.Background(), job)
			if !errors.Is(err, ErrNoColumns) {
				t.Fatalf("err = %v, want ErrNoColumns", err)
			}
			if len(repo.calls) != 0 {
				t.Fatalf("repo touched before validation finished: %v", repo.calls)
			}
		})
	}
}

func TestLoadHappyPath(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "id,score,note\n1,9.5,hello\n2,8.25,\n3,bad,world\n")
	repo := &fakeRepo{count: 42}
	eng := &Engine{Repo: repo}

	res, err := eng.Run(context.Background(), Job{
		Name:    "people",
		Source:  Endpoint{Kind: KindFile, Path: path, HasHeader: true},
		Target:  Endpoint{Kind: KindDatabase, Table: "people"},
		Columns: loadColumns,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(repo.created) != 1 || repo.created[0].Name != "people" {
		t.Fatalf("created = %+v, want one table 'people'", repo.created)
	}
	if len(repo.batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(repo.batches))
	}
	rows := repo.batches[0]
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0][0] != int64(1) || rows[0][1] != 9.5 || rows[0][2] != "hello" {
		t.Errorf("row 0 = %v", rows[0])
	}
	if rows[1][2] != nil {
		t.Errorf("empty cell should load as NULL, got %v", rows[1][2])
	}
	// "bad" fails float coercion; the default policy stores the sentinel.
	if f, ok := rows[2][1].(float64); !ok || f == f {
		t.Errorf("invalid float should load as NaN, got %v", rows[2][1])
	}

	// The result reports what the destination says, not what we sent.
	if res.RecordCount != 42 {
		t.Errorf("RecordCount = %d, want the destination-reported 42", res.RecordCount)
	}
	if res.Table != "people" {
		t.Errorf("Table = %q", res.Table)
	}
}

func TestLoadParserOptionsFlowThrough(t *testing.T) {
	t.Parallel()

	cols := []schema.Column{
		{Name: "id", Type: schema.TypeUInt8},
		{Name: "note", Type: schema.TypeString},
	}
	content := "id,note\n1,  padded  \n"

	t.Run("default trims", func(t *testing.T) {
		t.Parallel()
		repo := &fakeRepo{}
		eng := &Engine{Repo: repo}
		_, err := eng.Run(context.Background(), Job{
			Source:  Endpoint{Kind: KindFile, Path: writeTemp(t, content), HasHeader: true},
			Target:  Endpoint{Kind: KindDatabase, Table: "t"},
			Columns: cols,
		})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if got := repo.batches[0][0][1]; got != "padded" {
			t.Fatalf("note = %q, want trimmed %q", got, "padded")
		}
	})

	t.Run("trim_space off keeps padding", func(t *testing.T) {
		t.Parallel()
		off := false
		repo := &fakeRepo{}
		eng := &Engine{Repo: repo}
		_, err := eng.Run(context.Background(), Job{
			Source: Endpoint{
				Kind: KindFile, Path: writeTemp(t, content), HasHeader: true,
				TrimSpace: &off,
			},
			Target:  Endpoint{Kind: KindDatabase, Table: "t"},
			Columns: cols,
		})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if got := repo.batches[0][0][1]; got != "  padded  " {
			t.Fatalf("note = %q, want padding preserved", got)
		}
	})
}

func TestLoadBatchBoundaries(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	sb.WriteString("id,score,note\n")
	for i := 0; i < 5; i++ {
		sb.WriteString("1,2.0,x\n")
	}
	path := writeTemp(t, sb.String())

	repo := &fakeRepo{count: 5}
	eng := &Engine{Repo: repo, BatchSize: 2}

	if _, err := eng.Run(context.Background(), Job{
		Name:    "b",
		Source:  Endpoint{Kind: KindFile, Path: path, HasHeader: true},
		Target:  Endpoint{Kind: KindDatabase, Table: "t"},
		Columns: loadColumns,
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := len(repo.batches); got != 3 {
		t.Fatalf("batches = %d, want 3 (2+2+1)", got)
	}
	sizes := []int{len(repo.batches[0]), len(repo.batches[1]), len(repo.batches[2])}
	for i, want := range []int{2, 2, 1} {
		if sizes[i] != want {
			t.Errorf("batch %d size = %d, want %d", i, sizes[i], want)
		}
	}
}

func TestLoadRejectPolicyAborts(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "id,score,note\n1,not_a_number,x\n")
	repo := &fakeRepo{}
	eng := &Engine{Repo: repo}

	_, err := eng.Run(context.Background(), Job{
		Name:    "strict",
		Source:  Endpoint{Kind: KindFile, Path: path, HasHeader: true},
		Target:  Endpoint{Kind: KindDatabase, Table: "t"},
		Columns: loadColumns,
		Policy:  transformer.PolicyReject,
	})
	if err == nil {
		t.Fatal("expected coercion failure, got nil")
	}
	var se *StageError
	if !errors.As(err, &se) || se.Stage != "coerce" {
		t.Fatalf("err = %v, want a coerce stage error", err)
	}
}

func TestLoadInsertErrorIsTerminal(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "id,score,note\n1,1.0,a\n2,2.0,b\n3,3.0,c\n")
	repo := &fakeRepo{insertErr: errors.New("connection reset"), failAfter: 1}
	eng := &Engine{Repo: repo, BatchSize: 1}

	_, err := eng.Run(context.Background(), Job{
		Name:    "flaky",
		Source:  Endpoint{Kind: KindFile, Path: path, HasHeader: true},
		Target:  Endpoint{Kind: KindDatabase, Table: "t"},
		Columns: loadColumns,
	})
	if err == nil {
		t.Fatal("expected insert failure, got nil")
	}
	// One batch landed, the second failed; nothing was retried.
	if got := len(repo.batches); got != 1 {
		t.Fatalf("batches landed = %d, want 1 (no retry)", got)
	}
}

func TestLoadUploadedFileCleanup(t *testing.T) {
	t.Parallel()

	t.Run("removed on success", func(t *testing.T) {
		t.Parallel()
		path := writeTemp(t, "id,score,note\n1,1.0,a\n")
		eng := &Engine{Repo: &fakeRepo{count: 1}}
		if _, err := eng.Run(context.Background(), Job{
			Name:             "up",
			Source:           Endpoint{Kind: KindFile, Path: path, HasHeader: true},
			Target:           Endpoint{Kind: KindDatabase, Table: "t"},
			Columns:          loadColumns,
			DeleteSourceFile: true,
		}); err != nil {
			t.Fatalf("Run: %v", err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("uploaded file still present after success: %v", err)
		}
	})

	t.Run("removed on failure", func(t *testing.T) {
		t.Parallel()
		path := writeTemp(t, "id,score,note\n1,1.0,a\n")
		eng := &Engine{Repo: &fakeRepo{insertErr: errors.New("boom")}}
		if _, err := eng.Run(context.Background(), Job{
			Name:             "up",
			Source:           Endpoint{Kind: KindFile, Path: path, HasHeader: true},
			Target:           Endpoint{Kind: KindDatabase, Table: "t"},
			Columns:          loadColumns,
			DeleteSourceFile: true,
		}); err == nil {
			t.Fatal("expected insert failure")
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("uploaded file still present after failure: %v", err)
		}
	})
}

func TestExportHappyPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo := &fakeRepo{
		queryRecords: [][]string{{"1", "alpha"}, {"2", "beta"}},
	}
	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	eng := &Engine{Repo: repo, Now: func() time.Time { return fixed }}

	res, err := eng.Run(context.Background(), Job{
		Name:   "ex",
		Source: Endpoint{Kind: KindDatabase, Table: "people"},
		Target: Endpoint{Kind: KindFile, Path: dir},
		Columns: []schema.Column{
			{Name: "id", Type: schema.TypeUInt8},
			{Name: "name", Type: schema.TypeString},
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.RecordCount != 2 {
		t.Errorf("RecordCount = %d, want 2", res.RecordCount)
	}
	wantName := "export_1773480413000000000.csv"
	if filepath.Base(res.ExportPath) != wantName {
		t.Errorf("export name = %q, want %q", filepath.Base(res.ExportPath), wantName)
	}
	data, err := os.ReadFile(res.ExportPath)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	want := "id,name\n1,alpha\n2,beta\n"
	if string(data) != want {
		t.Errorf("export content = %q, want %q", data, want)
	}

	if repo.calls[0] != "query" {
		t.Errorf("calls = %v, want the export to start with the projection query", repo.calls)
	}
}

func TestExportEmptyTable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo := &fakeRepo{}
	eng := &Engine{Repo: repo}

	res, err := eng.Run(context.Background(), Job{
		Name:    "empty",
		Source:  Endpoint{Kind: KindDatabase, Table: "t"},
		Target:  Endpoint{Kind: KindFile, Path: dir},
		Columns: []schema.Column{{Name: "id", Type: schema.TypeUInt8}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RecordCount != 0 {
		t.Errorf("RecordCount = %d, want 0 for header-only export", res.RecordCount)
	}
	data, err := os.ReadFile(res.ExportPath)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(data) != "id\n" {
		t.Errorf("export content = %q, want header only", data)
	}
}

func TestExportCustomDelimiter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo := &fakeRepo{queryRecords: [][]string{{"x", "y"}}}
	eng := &Engine{Repo: repo}

	res, err := eng.Run(context.Background(), Job{
		Name:   "semi",
		Source: Endpoint{Kind: KindDatabase, Table: "t"},
		Target: Endpoint{Kind: KindFile, Path: dir, Delimiter: ';'},
		Columns: []schema.Column{
			{Name: "a", Type: schema.TypeString},
			{Name: "b", Type: schema.TypeString},
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, err := os.ReadFile(res.ExportPath)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(data) != "a;b\nx;y\n" {
		t.Errorf("export content = %q", data)
	}
}

func TestExportQueryError(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{queryErr: errors.New("table gone")}
	eng := &Engine{Repo: repo}

	_, err := eng.Run(context.Background(), Job{
		Name:    "q",
		Source:  Endpoint{Kind: KindDatabase, Table: "t"},
		Target:  Endpoint{Kind: KindFile, Path: t.TempDir()},
		Columns: []schema.Column{{Name: "a", Type: schema.TypeString}},
	})
	var se *StageError
	if !errors.As(err, &se) || se.Stage != "query" {
		t.Fatalf("err = %v, want a query stage error", err)
	}
}

func TestLoadFromHTTPSource(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("id,score,note\n1,9.5,hello\n2,8.25,bye\n"))
	}))
	defer srv.Close()

	repo := &fakeRepo{count: 2}
	eng := &Engine{Repo: repo}

	res, err := eng.Run(context.Background(), Job{
		Name:    "fetch",
		Source:  Endpoint{Kind: KindFile, Path: srv.URL + "/people.csv", HasHeader: true},
		Target:  Endpoint{Kind: KindDatabase, Table: "people"},
		Columns: loadColumns,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(repo.batches) != 1 || len(repo.batches[0]) != 2 {
		t.Fatalf("batches = %+v, want one batch of 2 rows", repo.batches)
	}
	if res.RecordCount != 2 {
		t.Errorf("RecordCount = %d, want 2", res.RecordCount)
	}
}

func TestExportToURLRejected(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	eng := &Engine{Repo: repo}

	_, err := eng.Run(context.Background(), Job{
		Name:   "bad-target",
		Source: Endpoint{Kind: KindDatabase, Table: "t"},
		Target: Endpoint{Kind: KindFile, Path: "https://example.com/out"},
	})
	if err == nil || !strings.Contains(err.Error(), "cannot export to a URL") {
		t.Fatalf("err = %v, want URL target rejection", err)
	}
	if len(repo.calls) != 0 {
		t.Fatalf("repo touched during validation: %v", repo.calls)
	}
}

func TestLoadBatchCapDoesNotChangeContent(t *testing.T) {
	t.Parallel()

	const input = "id,score,note\n1,1.5,a\n2,2.5,b\n3,3.5,c\n"

	flatten := func(batches [][][]any) [][]any {
		var out [][]any
		for _, b := range batches {
			out = append(out, b...)
		}
		return out
	}

	run := func(cap int) [][]any {
		repo := &fakeRepo{count: 3}
		eng := &Engine{Repo: repo, BatchSize: cap}
		_, err := eng.Run(context.Background(), Job{
			Name:    "cap",
			Source:  Endpoint{Kind: KindFile, Path: writeTemp(t, input), HasHeader: true},
			Target:  Endpoint{Kind: KindDatabase, Table: "t"},
			Columns: loadColumns,
		})
		if err != nil {
			t.Fatalf("Run with cap %d: %v", cap, err)
		}
		return flatten(repo.batches)
	}

	one, big := run(1), run(10_000)
	if len(one) != 3 || len(big) != 3 {
		t.Fatalf("row counts = %d/%d, want 3/3", len(one), len(big))
	}
	for i := range one {
		for j := range one[i] {
			if one[i][j] != big[i][j] {
				t.Errorf("row %d col %d: cap 1 gave %v, cap 10000 gave %v",
					i, j, one[i][j], big[i][j])
			}
		}
	}
}

func TestReimportAppends(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "id,score,note\n1,1.0,x\n2,2.0,y\n")
	repo := &fakeRepo{count: 4}
	eng := &Engine{Repo: repo}

	job := Job{
		Name:    "again",
		Source:  Endpoint{Kind: KindFile, Path: path, HasHeader: true},
		Target:  Endpoint{Kind: KindDatabase, Table: "t"},
		Columns: loadColumns,
	}
	for i := 0; i < 2; i++ {
		if _, err := eng.Run(context.Background(), job); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	// Table creation is if-absent only, so the second run lands on top of the
	// first instead of replacing it.
	total := 0
	for _, b := range repo.batches {
		total += len(b)
	}
	if total != 4 {
		t.Fatalf("rows landed across both runs = %d, want 4", total)
	}
	if len(repo.created) != 2 {
		t.Fatalf("create-if-absent issued %d times, want 2", len(repo.created))
	}
}
