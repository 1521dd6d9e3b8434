package webui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"chferry/internal/config"
	"chferry/internal/logging"
	"chferry/internal/probe"
	"chferry/internal/schema"
	"chferry/internal/storage/clickhouse"
	"chferry/internal/transfer"
)

// maxUploadBytes caps the in-memory portion of multipart parsing; larger
// uploads spill to disk.
const maxUploadBytes = 64 << 20

// ConnectRequest carries the connection form.
type ConnectRequest struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Database    string `json:"database"`
	Username    string `json:"username"`
	Password    string `json:"password,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
	Secure      bool   `json:"secure,omitempty"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "bad_request", "Could not read the connection form.", err)
		return
	}
	if req.Host == "" {
		respondError(w, r, http.StatusBadRequest, "bad_request", "A host is required.", nil)
		return
	}

	repo, err := s.open(r.Context(), clickhouse.Options{
		Host:        req.Host,
		Port:        req.Port,
		Database:    req.Database,
		Username:    req.Username,
		Password:    req.Password,
		AccessToken: req.AccessToken,
		Secure:      req.Secure,
	})
	if err != nil {
		respondError(w, r, http.StatusBadGateway, "connect_failed",
			"Could not connect to the database. Check the host, port, and credentials.", err)
		return
	}
	s.setRepository(repo)

	logging.FromContext(r.Context()).Info("connected", "host", req.Host, "database", req.Database)
	respondJSON(w, http.StatusOK, map[string]string{
		"status":   "connected",
		"database": req.Database,
	})
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	repo := s.repository()
	if repo == nil {
		respondError(w, r, http.StatusConflict, "not_connected", "Connect to a database first.", nil)
		return
	}
	tables, err := repo.ListTables(r.Context())
	if err != nil {
		respondError(w, r, http.StatusBadGateway, "list_failed", "Could not list tables.", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (s *Server) handleDescribeTable(w http.ResponseWriter, r *http.Request) {
	repo := s.repository()
	if repo == nil {
		respondError(w, r, http.StatusConflict, "not_connected", "Connect to a database first.", nil)
		return
	}
	table := chi.URLParam(r, "table")
	cols, err := repo.DescribeTable(r.Context(), table)
	if err != nil {
		respondError(w, r, http.StatusNotFound, "describe_failed",
			fmt.Sprintf("Could not describe table %q.", table), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"table": table, "columns": cols})
}

// UploadResponse returns the stored upload's handle and the probed schema for
// the user to confirm or correct.
type UploadResponse struct {
	UploadID string          `json:"upload_id"`
	Columns  []schema.Column `json:"columns"`
	Sample   [][]string      `json:"sample"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, r, http.StatusBadRequest, "bad_upload", "Could not read the uploaded file.", err)
		return
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "bad_upload", "The form is missing a file.", err)
		return
	}
	defer f.Close()

	id := uuid.NewString() + ".csv"
	path := filepath.Join(s.uploadDir(), id)
	dst, err := os.Create(path)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "store_failed", "Could not store the upload.", err)
		return
	}
	if _, err := io.Copy(dst, f); err != nil {
		dst.Close()
		os.Remove(path)
		respondError(w, r, http.StatusInternalServerError, "store_failed", "Could not store the upload.", err)
		return
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		respondError(w, r, http.StatusInternalServerError, "store_failed", "Could not store the upload.", err)
		return
	}

	opt := probe.Options{
		Delimiter:    formRune(r, "delimiter", ','),
		HasHeader:    formBool(r, "has_header", true),
		SampleWindow: s.sampleWindow(r),
	}
	in, err := os.Open(path)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "probe_failed", "Could not read the upload back.", err)
		return
	}
	defer in.Close()

	res, err := probe.Probe(in, opt)
	if err != nil {
		os.Remove(path)
		respondError(w, r, http.StatusUnprocessableEntity, "probe_failed",
			"Could not infer a schema from the file.", err)
		return
	}

	logging.FromContext(r.Context()).Info("upload probed",
		"upload_id", id, "columns", len(res.Columns), "sample_rows", len(res.Sample))
	respondJSON(w, http.StatusOK, UploadResponse{
		UploadID: id,
		Columns:  res.Columns,
		Sample:   res.Sample,
	})
}

// TransferRequest loads a previously uploaded file into a table using the
// user-confirmed column set.
type TransferRequest struct {
	UploadID      string          `json:"upload_id"`
	Table         string          `json:"table"`
	Delimiter     string          `json:"delimiter,omitempty"`
	HasHeader     *bool           `json:"has_header,omitempty"`
	Columns       []schema.Column `json:"columns"`
	InvalidPolicy string          `json:"invalid_policy,omitempty"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	repo := s.repository()
	if repo == nil {
		respondError(w, r, http.StatusConflict, "not_connected", "Connect to a database first.", nil)
		return
	}

	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "bad_request", "Could not read the transfer request.", err)
		return
	}
	if req.UploadID == "" || req.Table == "" {
		respondError(w, r, http.StatusBadRequest, "bad_request", "An upload_id and a table are required.", nil)
		return
	}
	policy, err := config.ParsePolicy(req.InvalidPolicy)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "bad_request", "Unknown invalid_policy.", err)
		return
	}

	hasHeader := true
	if req.HasHeader != nil {
		hasHeader = *req.HasHeader
	}
	job := transfer.Job{
		Name: "web:" + req.Table,
		Source: transfer.Endpoint{
			Kind: transfer.KindFile,
			// Base() keeps the path inside the upload directory.
			Path:      filepath.Join(s.uploadDir(), filepath.Base(req.UploadID)),
			Delimiter: firstRune(req.Delimiter, ','),
			HasHeader: hasHeader,
		},
		Target:           transfer.Endpoint{Kind: transfer.KindDatabase, Table: req.Table},
		Columns:          req.Columns,
		Policy:           policy,
		DeleteSourceFile: true,
	}

	res, err := s.engine(repo).Run(jobContext(r), job)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, transfer.ErrNoColumns) || errors.Is(err, transfer.ErrUnsupportedDirection) {
			status = http.StatusBadRequest
		}
		respondError(w, r, status, "transfer_failed", "The transfer did not complete.", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// jobContext detaches the job from the request's cancellation: a client that
// disconnects mid-transfer does not stop the run, it only misses the
// response. Request-scoped values (the request ID) stay attached for logging.
func jobContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// ExportRequest exports a table into a downloadable file. Columns is the
// user-confirmed projection, picked from the table's describe response.
type ExportRequest struct {
	Table     string          `json:"table"`
	Delimiter string          `json:"delimiter,omitempty"`
	Columns   []schema.Column `json:"columns"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	repo := s.repository()
	if repo == nil {
		respondError(w, r, http.StatusConflict, "not_connected", "Connect to a database first.", nil)
		return
	}

	var req ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "bad_request", "Could not read the export request.", err)
		return
	}
	if req.Table == "" {
		respondError(w, r, http.StatusBadRequest, "bad_request", "A table is required.", nil)
		return
	}

	job := transfer.Job{
		Name:   "web:" + req.Table,
		Source: transfer.Endpoint{Kind: transfer.KindDatabase, Table: req.Table},
		Target: transfer.Endpoint{
			Kind:      transfer.KindFile,
			Path:      s.exportDir(),
			Delimiter: firstRune(req.Delimiter, ','),
		},
		Columns: req.Columns,
	}
	res, err := s.engine(repo).Run(jobContext(r), job)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, transfer.ErrNoColumns) || errors.Is(err, transfer.ErrUnsupportedDirection) {
			status = http.StatusBadRequest
		}
		respondError(w, r, status, "export_failed", "The export did not complete.", err)
		return
	}

	// Hand the client the download handle rather than a server path.
	respondJSON(w, http.StatusOK, map[string]any{
		"table":        res.Table,
		"record_count": res.RecordCount,
		"file":         filepath.Base(res.ExportPath),
		"message":      res.Message,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(chi.URLParam(r, "name"))
	if !strings.HasPrefix(name, "export_") || !strings.HasSuffix(name, ".csv") {
		respondError(w, r, http.StatusNotFound, "not_found", "No such export.", nil)
		return
	}
	path := filepath.Join(s.exportDir(), name)
	if _, err := os.Stat(path); err != nil {
		respondError(w, r, http.StatusNotFound, "not_found", "No such export.", err)
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(name))
	w.Header().Set("Content-Type", "text/csv")
	http.ServeFile(w, r, path)
}

func (s *Server) uploadDir() string {
	if s.cfg.UploadDir != "" {
		return s.cfg.UploadDir
	}
	return os.TempDir()
}

func (s *Server) exportDir() string {
	if s.cfg.ExportDir != "" {
		return s.cfg.ExportDir
	}
	return os.TempDir()
}

func (s *Server) sampleWindow(r *http.Request) int {
	if v := r.FormValue("sample_window"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return s.cfg.SampleWindow
}

func formRune(r *http.Request, key string, def rune) rune {
	return firstRune(r.FormValue(key), def)
}

func formBool(r *http.Request, key string, def bool) bool {
	if v := r.FormValue(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func firstRune(s string, def rune) rune {
	if s == "" {
		return def
	}
	return []rune(s)[0]
}
