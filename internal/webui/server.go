// Package webui exposes the HTTP API the browser frontend drives:
// connect to a database, browse tables, upload and probe a delimited file,
// confirm a schema, and run transfers in either direction.
//
// Routes:
//
//	POST /api/connect                → open a connection and remember it
//	GET  /api/tables                 → list tables of the connected database
//	GET  /api/tables/{table}/columns → describe one table
//	POST /api/upload                 → save an uploaded file, probe its types
//	POST /api/transfer               → load a previously uploaded file
//	POST /api/export                 → export a table to a download file
//	GET  /api/exports/{name}         → download a finished export
package webui

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"chferry/internal/storage"
	"chferry/internal/storage/clickhouse"
	"chferry/internal/transfer"
)

// Config controls server behavior.
type Config struct {
	// UploadDir receives uploaded source files; they are deleted after their
	// transfer runs. Defaults to the OS temp dir.
	UploadDir string

	// ExportDir receives generated export files and is served for download.
	// Defaults to the OS temp dir.
	ExportDir string

	// BatchSize overrides the engine default when > 0.
	BatchSize int

	// SampleWindow overrides the probe default when > 0.
	SampleWindow int
}

// openFn abstracts repository construction so tests can inject a fake.
type openFn func(ctx context.Context, opt clickhouse.Options) (storage.Repository, error)

// Server holds the API state: at most one live database connection, shared by
// all requests until the next connect replaces it.
type Server struct {
	cfg  Config
	open openFn

	mu   sync.RWMutex
	repo storage.Repository
}

// NewServer constructs a Server wired to the real database driver.
func NewServer(cfg Config) *Server {
	return &Server{
		cfg: cfg,
		open: func(ctx context.Context, opt clickhouse.Options) (storage.Repository, error) {
			return clickhouse.Open(ctx, opt)
		},
	}
}

// Handler builds the chi router with the standard middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/connect", s.handleConnect)
		r.Get("/tables", s.handleListTables)
		r.Get("/tables/{table}/columns", s.handleDescribeTable)
		r.Post("/upload", s.handleUpload)
		r.Post("/transfer", s.handleTransfer)
		r.Post("/export", s.handleExport)
		r.Get("/exports/{name}", s.handleDownload)
	})

	return r
}

// repository returns the current connection, or nil when none is open.
func (s *Server) repository() storage.Repository {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo
}

// setRepository swaps the live connection, closing the previous one.
func (s *Server) setRepository(repo storage.Repository) {
	s.mu.Lock()
	old := s.repo
	s.repo = repo
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

// engine builds a transfer engine around the current connection.
func (s *Server) engine(repo storage.Repository) *transfer.Engine {
	return &transfer.Engine{Repo: repo, BatchSize: s.cfg.BatchSize}
}

// Close releases the live connection, if any.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repo == nil {
		return nil
	}
	err := s.repo.Close()
	s.repo = nil
	return err
}
