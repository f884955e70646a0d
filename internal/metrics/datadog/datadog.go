// Package datadog implements a DogStatsD backend for the metrics package.
//
// Counters and histograms go out over UDP to a local Datadog agent; labels
// become statsd tags. The statsd client buffers internally, so Flush must be
// called before process exit or short runs will lose their tail.
package datadog

import (
	"fmt"
	"sort"

	"caseflow/internal/metrics"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// Config holds the DogStatsD connection settings.
type Config struct {
	// Addr is the agent address, e.g. "127.0.0.1:8125".
	Addr string
	// Namespace is prefixed to every metric name.
	Namespace string
	// GlobalTags are attached to every metric.
	GlobalTags []string
}

// Backend sends metrics to a Datadog agent over DogStatsD.
type Backend struct {
	client *statsd.Client
}

// NewBackend dials the DogStatsD agent.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8125"
	}
	opts := []statsd.Option{}
	if cfg.Namespace != "" {
		opts = append(opts, statsd.WithNamespace(cfg.Namespace))
	}
	if len(cfg.GlobalTags) > 0 {
		opts = append(opts, statsd.WithTags(cfg.GlobalTags))
	}
	client, err := statsd.New(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("datadog: dial %s: %w", cfg.Addr, err)
	}
	return &Backend{client: client}, nil
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	_ = b.client.Count(name, int64(delta), labelsToTags(labels), 1)
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	_ = b.client.Histogram(name, value, labelsToTags(labels), 1)
}

// Flush drains the client's buffer to the agent.
func (b *Backend) Flush() error {
	if err := b.client.Flush(); err != nil {
		return fmt.Errorf("datadog: flush: %w", err)
	}
	return nil
}

// Close flushes and tears down the UDP connection.
func (b *Backend) Close() error {
	return b.client.Close()
}

// labelsToTags converts metric labels to statsd "key:value" tags in a stable
// order.
func labelsToTags(labels metrics.Labels) []string {
	if len(labels) == 0 {
		return nil
	}
	tags := make([]string, 0, len(labels))
	for k, v := range labels {
		tags = append(tags, k+":"+v)
	}
	sort.Strings(tags)
	return tags
}
