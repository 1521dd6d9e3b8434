// Package datadog forwards transfer metrics to a DogStatsD agent.
//
// It adapts metrics.Backend to the official statsd client: labels become
// "key:value" tags, counters map to Count, histograms to Histogram. The rest
// of the project sees only metrics.Backend and can swap this for the
// Pushgateway backend (or none) without changes.
package datadog

import (
	"fmt"

	"chferry/internal/metrics"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// Config selects the agent and how emitted names are prefixed.
type Config struct {
	// Addr is the DogStatsD address, e.g. "127.0.0.1:8125" or
	// "unix:///var/run/dogstatsd.sock". Required.
	Addr string

	// Namespace prefixes every metric name, e.g. "chferry.".
	Namespace string

	// GlobalTags are attached to every metric, e.g. "env:prod".
	GlobalTags []string
}

// Backend emits metrics over DogStatsD. Install it process-wide with
// metrics.SetBackend.
type Backend struct {
	client statsdClient
}

// statsdClient is the subset of *statsd.Client the backend uses; tests
// substitute a recorder.
type statsdClient interface {
	Count(name string, value int64, tags []string, rate float64) error
	Histogram(name string, value float64, tags []string, rate float64) error
	Close() error
}

// NewBackend connects a DogStatsD client per cfg.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("datadog: Addr is required")
	}

	opts := []statsd.Option{}
	if cfg.Namespace != "" {
		opts = append(opts, statsd.WithNamespace(cfg.Namespace))
	}
	if len(cfg.GlobalTags) > 0 {
		opts = append(opts, statsd.WithTags(cfg.GlobalTags))
	}

	c, err := statsd.New(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("datadog: create client: %w", err)
	}
	return &Backend{client: c}, nil
}

// IncCounter implements metrics.Backend. Fractional deltas are truncated;
// the callers only ever pass whole counts.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	_ = b.client.Count(name, int64(delta), labelsToTags(labels), 1)
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	_ = b.client.Histogram(name, value, labelsToTags(labels), 1)
}

// Flush implements metrics.Backend. Closing the client is the statsd
// equivalent of a final flush and is intended for process shutdown.
func (b *Backend) Flush() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

func labelsToTags(lbls metrics.Labels) []string {
	if len(lbls) == 0 {
		return nil
	}
	out := make([]string, 0, len(lbls))
	for k, v := range lbls {
		out = append(out, k+":"+v)
	}
	return out
}
