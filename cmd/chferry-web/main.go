// Command chferry-web serves the browser API: connect to a database, upload
// and probe delimited files, confirm schemas, and run transfers.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"chferry/internal/logging"
	"chferry/internal/webui"
)

func main() {
	var (
		addr      string
		uploadDir string
		exportDir string
		logLevel  string
		logFormat string
	)

	flag.StringVar(&addr, "addr", ":8080", "listen address")
	flag.StringVar(&uploadDir, "upload-dir", "", "directory for uploaded files (default: OS temp dir)")
	flag.StringVar(&exportDir, "export-dir", "", "directory for export files (default: OS temp dir)")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	flag.Parse()

	// Load .env file if it exists (overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	logging.Setup(logLevel, logFormat)

	if v := os.Getenv("CHFERRY_WEB_ADDR"); v != "" {
		addr = v
	}

	srv := webui.NewServer(webui.Config{
		UploadDir:    uploadDir,
		ExportDir:    exportDir,
		BatchSize:    envInt("CHFERRY_BATCH_SIZE"),
		SampleWindow: envInt("CHFERRY_SAMPLE_WINDOW"),
	})
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			slog.Error("shutdown failed", "error", err)
		}
	}()

	slog.Info("listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("stopped")
}

func envInt(key string) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}
