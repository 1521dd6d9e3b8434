// Command chferry runs one transfer job from a job file: either loading a
// delimited file into a database table or exporting a table to a file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chferry/internal/config"
	"chferry/internal/logging"
	"chferry/internal/metrics"
	"chferry/internal/metrics/datadog"
	"chferry/internal/metrics/prompush"
	"chferry/internal/storage/clickhouse"
	"chferry/internal/transfer"
)

func main() {
	var (
		jobPath        string
		metricsBackend string
		pushGatewayURL string
		statsdAddr     string
		validate       bool
		logLevel       string
		logFormat      string
	)

	flag.StringVar(&jobPath, "job", "configs/jobs/sample.json", "job file path (.json, .yaml, .yml)")
	flag.StringVar(&metricsBackend, "metrics-backend", "none", "metrics backend to use (pushgateway, datadog, none)")
	flag.StringVar(&pushGatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.StringVar(&statsdAddr, "statsd-addr", "", "DogStatsD address for the datadog backend (overrides env STATSD_ADDR)")
	flag.BoolVar(&validate, "validate", false, "validate the job file and exit")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	flag.Parse()

	logging.Setup(logLevel, logFormat)

	if err := config.LoadDotenv(".env"); err != nil {
		fatalf("load .env: %v", err)
	}

	p, err := config.Load(jobPath)
	if err != nil {
		fatalf("%v", err)
	}
	p.Database.ApplyEnv()

	issues := config.ValidatePipeline(*p)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		fatalf("job file is invalid: %s", jobPath)
	}
	if validate {
		slog.Info("job file is valid", "path", jobPath)
		return
	}

	setupMetrics(metricsBackend, pushGatewayURL, statsdAddr, p.Job)
	defer func() {
		if err := metrics.Flush(); err != nil {
			slog.Warn("metrics flush failed", "error", err)
		}
	}()

	job, err := p.ToJob()
	if err != nil {
		fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := clickhouse.Open(ctx, clickhouse.Options{
		Host:        p.Database.Host,
		Port:        p.Database.Port,
		Database:    p.Database.Database,
		Username:    p.Database.Username,
		Password:    p.Database.Password,
		AccessToken: p.Database.AccessToken,
		Secure:      p.Database.Secure,
	})
	if err != nil {
		fatalf("%v", err)
	}
	defer repo.Close()

	eng := &transfer.Engine{Repo: repo, BatchSize: p.Runtime.BatchSize}

	start := time.Now()
	res, err := eng.Run(ctx, job)
	if err != nil {
		fatalf("%v", err)
	}

	slog.Info("done",
		"job", p.Job,
		"table", res.Table,
		"records", res.RecordCount,
		"export", res.ExportPath,
		"duration", time.Since(start).Truncate(time.Millisecond))
	fmt.Println(res.Message)
}

// setupMetrics installs the selected backend: flag → env → nop default.
func setupMetrics(backend, gatewayURL, statsdAddr, jobName string) {
	if jobName == "" {
		jobName = "chferry"
	}
	switch backend {
	case "pushgateway":
		if gatewayURL == "" {
			gatewayURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gatewayURL == "" {
			gatewayURL = "http://localhost:9091"
		}
		b, err := prompush.NewBackend(jobName, gatewayURL)
		if err != nil {
			slog.Warn("metrics: pushgateway init failed; using nop", "error", err)
			return
		}
		slog.Info("metrics: pushgateway", "url", gatewayURL, "job", jobName)
		metrics.SetBackend(b)

	case "datadog":
		if statsdAddr == "" {
			statsdAddr = os.Getenv("STATSD_ADDR")
		}
		if statsdAddr == "" {
			statsdAddr = "127.0.0.1:8125"
		}
		b, err := datadog.NewBackend(datadog.Config{Addr: statsdAddr, Namespace: "chferry."})
		if err != nil {
			slog.Warn("metrics: datadog init failed; using nop", "error", err)
			return
		}
		slog.Info("metrics: datadog", "addr", statsdAddr)
		metrics.SetBackend(b)

	case "", "none":
		// nop backend remains

	default:
		slog.Warn("metrics: unknown backend; metrics disabled", "backend", backend)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
