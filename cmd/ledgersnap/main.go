// Command ledgersnap builds a ledger snapshot from a history archive: the
// current state of the requested accounts and contracts at a checkpoint,
// together with the contract code they run.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/INLOpen/ledgersnap/compressors"
	"github.com/INLOpen/ledgersnap/config"
	"github.com/INLOpen/ledgersnap/core"
	"github.com/INLOpen/ledgersnap/engine"
	"github.com/INLOpen/ledgersnap/hooks"
	"github.com/INLOpen/ledgersnap/hooks/listeners"
	"github.com/INLOpen/ledgersnap/scanner"
	"github.com/INLOpen/ledgersnap/server"
	"github.com/INLOpen/ledgersnap/snapshot"
	"github.com/fatih/color"
	"github.com/stellar/go-stellar-sdk/xdr"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// archiveURLEnv overrides the archive of the configured network.
const archiveURLEnv = "STELLAR_ARCHIVE_URL"

// createLogger creates a slog.Logger based on the provided configuration.
func createLogger(cfg config.LoggingConfig, stdout, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("invalid log level: %s", cfg.Level)
	}

	var output io.Writer
	var closer io.Closer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = stdout
	case "stderr", "":
		output = stderr
	case "file":
		if cfg.File == "" {
			return nil, nil, fmt.Errorf("log output is 'file' but no file path is specified")
		}
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
		}
		output = file
		closer = file // The file handle is the closer.
	case "none":
		output = io.Discard
	default:
		return nil, nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		return nil, nil, fmt.Errorf("invalid log format: %s", cfg.Format)
	}
	return slog.New(handler), closer, nil
}

// initTracerProvider creates and configures an OpenTelemetry TracerProvider.
// It sets up an exporter based on the configuration to send traces to a collector.
func initTracerProvider(cfg config.TracingConfig, logger *slog.Logger) (*sdktrace.TracerProvider, func(), error) {
	if !cfg.Enabled {
		logger.Debug("Distributed tracing is disabled.")
		return sdktrace.NewTracerProvider(), func() {}, nil
	}

	logger.Info("Initializing distributed tracing...", "protocol", cfg.Protocol, "endpoint", cfg.Endpoint)

	ctx := context.Background()
	var exporter sdktrace.SpanExporter
	var err error

	switch strings.ToLower(cfg.Protocol) {
	case "http":
		exporter, err = otlptrace.New(ctx, otlptracehttp.NewClient(otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure()))
	case "grpc":
		exporter, err = otlptrace.New(ctx, otlptracegrpc.NewClient(otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure()))
	default:
		return nil, nil, fmt.Errorf("unsupported tracing protocol: %q", cfg.Protocol)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "ledgersnap"
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	cleanup := func() {
		// Create a context with a timeout to prevent shutdown from hanging.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down tracer provider", "error", err)
		}
	}
	return tp, cleanup, nil
}

// resolveArchiveURL picks the archive: an explicit URL, then the
// environment, then the public archive of the configured network.
func resolveArchiveURL(cfg *config.Config, getenv func(string) string) (string, error) {
	if cfg.Archive.URL != "" {
		return cfg.Archive.URL, nil
	}
	if u := getenv(archiveURLEnv); u != "" {
		return u, nil
	}
	passphrase, ok := core.PassphraseForNetwork(cfg.Archive.Network)
	if !ok {
		return "", fmt.Errorf("%w: unknown network %q, set %s or archive.url", core.ErrArchiveURLNotConfigured, cfg.Archive.Network, archiveURLEnv)
	}
	u, ok := core.DefaultArchiveURL(passphrase)
	if !ok {
		return "", fmt.Errorf("%w: network %q has no public archive, set %s or archive.url", core.ErrArchiveURLNotConfigured, cfg.Archive.Network, archiveURLEnv)
	}
	return u, nil
}

// buildFilter parses the configured addresses and wasm hashes.
func buildFilter(cfg config.FilterConfig) (*scanner.Filter, error) {
	f := scanner.NewFilter()
	for _, a := range cfg.Addresses {
		if err := f.AddAddress(a); err != nil {
			return nil, err
		}
	}
	for _, h := range cfg.WasmHashes {
		if err := f.AddWasmHash(h); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// writeOptions resolves the snapshot format and output compression.
func writeOptions(cfg config.SnapshotConfig) (snapshot.WriteOptions, error) {
	format, err := snapshot.ParseFormat(cfg.Format)
	if err != nil {
		return snapshot.WriteOptions{}, err
	}
	opts := snapshot.WriteOptions{Format: format, Indent: cfg.Indent}
	if name := strings.ToLower(cfg.Compression); name != "" && name != "none" {
		if opts.Compression, err = compressors.Parse(name); err != nil {
			return snapshot.WriteOptions{}, fmt.Errorf("snapshot compression: %w", err)
		}
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) int {
	cfg, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	logger, logCloser, err := createLogger(cfg.Logging, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	if err := snapshotCmd(ctx, cfg, stdout, logger, getenv); err != nil {
		logger.Error("Snapshot failed", "error", err)
		fmt.Fprintf(stderr, "❌ %v\n", err)
		return 1
	}
	return 0
}

func snapshotCmd(ctx context.Context, cfg *config.Config, stdout io.Writer, logger *slog.Logger, getenv func(string) string) error {
	archiveURL, err := resolveArchiveURL(cfg, getenv)
	if err != nil {
		return err
	}
	filter, err := buildFilter(cfg.Filter)
	if err != nil {
		return err
	}
	writeOpts, err := writeOptions(cfg.Snapshot)
	if err != nil {
		return err
	}
	bucketCodec, err := compressors.Parse(cfg.Archive.BucketCompression)
	if err != nil {
		return fmt.Errorf("archive bucket compression: %w", err)
	}
	cacheDir, err := cfg.CacheDir()
	if err != nil {
		return err
	}

	metrics := engine.NewMetrics(cfg.Debug.Enabled, "ledgersnap_")
	if cfg.Debug.Enabled {
		metricSrv := server.NewMetricsServer(&cfg.Debug, logger)
		if _, err := metricSrv.Start(); err != nil {
			logger.Warn("Debug server not started", "error", err)
		} else {
			defer metricSrv.Stop()
		}
	}

	tp, tracerCleanup, err := initTracerProvider(cfg.Tracing, logger)
	if err != nil {
		return err
	}
	defer tracerCleanup()

	hookManager := hooks.NewHookManager(logger)
	useColor := listeners.ColorEnabled(stdout)
	hooks.RegisterAll(hookManager, listeners.NewProgressListener(stdout, useColor), listeners.ProgressEvents...)
	hookManager.Register(hooks.EventPostBucketDownload, listeners.NewSlowDownloadListener(logger, listeners.DownloadThresholds{
		MaxDuration:       config.ParseDuration(cfg.Cache.SlowDownloadThreshold, 2*time.Minute, logger),
		MinBytesPerSecond: cfg.Cache.MinDownloadRate,
	}))
	hooks.RegisterAll(hookManager, listeners.NewScanStatsListener(logger), hooks.EventPostBucketScan, hooks.EventOnCodeDiscovered)

	builder, err := engine.NewBuilder(engine.Options{
		ArchiveURL:          archiveURL,
		CheckpointFrequency: cfg.Archive.CheckpointFrequency,
		BucketCompression:   bucketCodec,
		RequestTimeout:      config.ParseDuration(cfg.Archive.Timeout, 60*time.Second, logger),
		MaxAttempts:         cfg.Archive.Retries + 1,
		RetryInterval:       config.ParseDuration(cfg.Archive.RetryInterval, 500*time.Millisecond, logger),
		CacheDir:            cacheDir,
		Workers:             cfg.Cache.Workers,
		SkipVerify:          !cfg.Cache.VerifyHashes,
		MinFreeBytes:        cfg.Cache.MinFreeBytes,
		UseCheckpointIndex:  cfg.Cache.CheckpointIndex,
		Metrics:             metrics,
		HookManager:         hookManager,
		TracerProvider:      tp,
		Logger:              logger,
	})
	if err != nil {
		return err
	}
	defer builder.Close()

	logger.Info("Using bucket cache", "dir", cacheDir, "archive", archiveURL)
	report, err := builder.Run(ctx, engine.Request{
		Ledger: cfg.Snapshot.Ledger,
		Filter: filter,
		Output: cfg.Snapshot.Out,
		Write:  writeOpts,
	})
	if err != nil {
		return err
	}

	printSummary(stdout, report, useColor)
	return nil
}

// printSummary prints per-kind entry counts and the elapsed time.
func printSummary(w io.Writer, report *engine.Report, useColor bool) {
	types := make([]xdr.LedgerEntryType, 0, len(report.Counts))
	for t := range report.Counts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		fmt.Fprintf(w, "   %-18s %d\n", core.EntryTypeName(t), report.Counts[t])
	}

	done := color.New(color.FgGreen, color.Bold)
	if useColor {
		done.EnableColor()
	} else {
		done.DisableColor()
	}
	done.Fprintf(w, "✅ Completed in %s\n", report.Duration.Round(time.Millisecond))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv)
	stop()
	os.Exit(code)
}
