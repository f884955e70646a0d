package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"caseflow/internal/config"
	"caseflow/internal/metrics"
	"caseflow/internal/metrics/datadog"
	"caseflow/internal/metrics/prompush"
)

// main is the entry point for the caseflow binary. It loads the pipeline
// config, optionally initializes a metrics backend, and runs one procedure
// to completion.
func main() {
	var (
		cfgPath           string
		metricsBackendFlg string
		pushGatewayURLFlg string
		statsdAddrFlg     string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "configs/pipelines/sample.json", "pipeline config JSON path")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "none", "metrics backend to use (pushgateway, datadog, none)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.StringVar(&statsdAddrFlg, "statsd-addr", "", "dogstatsd address for the datadog backend")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	p, err := config.LoadPipeline(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}
	if validate {
		log.Printf("Configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	settings := resolveSettings(p)

	// Decide metrics backend: flag → env → default.
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	jobName := strings.TrimSuffix(filepath.Base(cfgPath), filepath.Ext(cfgPath))
	switch backendName {
	case "pushgateway":
		gwURL := pushGatewayURLFlg
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}
		b, err := prompush.NewBackend(jobName, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
		} else {
			log.Printf("metrics: url=%v, backend=%v, job_name=%v", gwURL, backendName, jobName)
			metrics.SetBackend(b)
			defer func() {
				if err := metrics.Flush(); err != nil {
					log.Printf("metrics: flush error: %v", err)
				}
			}()
		}

	case "datadog":
		addr := statsdAddrFlg
		if addr == "" {
			addr = os.Getenv("DD_AGENT_ADDR")
		}
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       addr,
			Namespace:  "caseflow",
			GlobalTags: []string{"job:" + jobName},
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			metrics.SetBackend(b)
			defer func() {
				if err := metrics.Flush(); err != nil {
					log.Printf("metrics: flush error: %v", err)
				}
				b.Close()
			}()
		}

	case "", "none":
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	ctx := context.Background()
	start := time.Now()

	if *verbose {
		log.Printf("pipeline: source=%s vars=%d filter=%q limit=%d",
			p.Source.Kind, len(p.Dictionary), p.Filter, p.CaseLimit)
	}

	if err := run(ctx, jobName, p, settings, *verbose); err != nil {
		log.Fatalf("%v", err)
	}

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

// resolveSettings layers the pipeline's overrides and the environment over
// the defaults.
func resolveSettings(p *config.Pipeline) config.Settings {
	s := config.DefaultSettings()
	if p.Settings.ScaleMin > 0 {
		s.ScaleMin = p.Settings.ScaleMin
	}
	if p.Settings.WorkspaceBytes > 0 {
		s.WorkspaceBytes = p.Settings.WorkspaceBytes
	}
	if p.Settings.TempDir != "" {
		s.TempDir = p.Settings.TempDir
	}
	if err := s.ApplyEnv(); err != nil {
		fatalf("%v", err)
	}
	return s
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
