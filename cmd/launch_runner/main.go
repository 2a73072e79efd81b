package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/miretskiy/photonlaunch/launcher"
	"github.com/miretskiy/photonlaunch/observability"
)

func main() {
	// Parse command line flags
	configFile := flag.String("config", "", "Path to JSON configuration file (optional, uses the default single-star system if not specified)")
	numPackets := flag.Uint64("packets", 1000000, "Requested packets per segment (scaled by numPacketsMultiplier)")
	segments := flag.Int("segments", 1, "Number of emission segments to run")
	workers := flag.Int("workers", 0, "Launching goroutines (0 = config value, then number of CPUs)")
	chunkSize := flag.Int("chunk", 0, "History indices per work item (0 = config value, then auto)")
	outputFile := flag.String("output", "", "Path to output JSON file (optional, prints to stdout if not specified)")
	verbose := flag.Bool("verbose", false, "Enable verbose logging from the source system")
	traceEnabled := flag.Bool("trace", false, "Export OpenTelemetry spans (see PHOTONLAUNCH_TRACING_* for exporter settings)")
	flag.Parse()

	if *segments < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-config <config.json>] [-packets <n>] [-segments <n>] [-workers <n>] [-chunk <n>] [-output <output.json>] [-verbose] [-trace]\n", os.Args[0])
		os.Exit(1)
	}

	config := launcher.DefaultConfig()
	if *configFile != "" {
		configData, err := os.ReadFile(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
		if err := json.Unmarshal(configData, &config); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing config JSON: %v\n", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logf := func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}

	tracingConfig := observability.TracingConfigFromEnv()
	tracingConfig.Enabled = tracingConfig.Enabled || *traceEnabled
	shutdown, err := observability.InitTracing(ctx, tracingConfig, logf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing tracing: %v\n", err)
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, logf)

	// Validates the configuration as well
	sys, err := launcher.NewSourceSystemFromConfig(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		sys.LogEvent = func(msg string) {
			fmt.Fprintf(os.Stderr, "[LAUNCH] %s\n", msg)
		}
		fmt.Fprintf(os.Stderr, "Verbose logging enabled\n")
	}

	n := sys.NumPackets(*numPackets)
	fmt.Fprintf(os.Stderr, "Launching %d segments of %d packets from %d sources (L = %.6g W, dimension %d)...\n",
		*segments, n, sys.NumSources(), sys.Luminosity(), sys.Dimension())
	startTime := time.Now()

	opts := launcher.SegmentOptions{Workers: *workers, ChunkSize: *chunkSize}
	metrics := launcher.NewMetrics()
	results := make([]*launcher.SegmentResult, 0, *segments)
	for i := 0; i < *segments; i++ {
		result, err := launcher.RunSegment(ctx, sys, n, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Segment %d failed: %v\n", i+1, err)
			break
		}
		metrics.Update(result)
		results = append(results, result)
	}

	elapsed := time.Since(startTime)
	fmt.Fprintf(os.Stderr, "Launched %d packets in %v\n", metrics.TotalPackets, elapsed)

	output, err := json.MarshalIndent(map[string]interface{}{
		"config":   sys.Config(),
		"realTime": elapsed.Seconds(),
		"segments": results,
		"metrics":  metrics,
	}, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling results: %v\n", err)
		os.Exit(1)
	}

	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, output, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output file: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Results written to %s\n", *outputFile)
	} else {
		fmt.Println(string(output))
	}
}
