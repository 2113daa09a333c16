package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-market/config"
	"github.com/aluiziolira/go-scrape-market/models"
	"github.com/aluiziolira/go-scrape-market/parser"
	"github.com/aluiziolira/go-scrape-market/pipeline"
	"github.com/aluiziolira/go-scrape-market/scraper"
	"github.com/aluiziolira/go-scrape-market/source"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const redisStreamMaxLen = 10000

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one batch. Events go to stdout and logs to stderr. The exit
// code is 1 only when the batch could not be processed.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	events := pipeline.NewStreamSink(stdout)
	fail := func(err error) int {
		slog.Error("batch failed", slog.Any("error", err))
		if emitErr := events.Emit(ctx, pipeline.BatchError(err)); emitErr != nil {
			fmt.Fprintf(stderr, "emit error event: %v\n", emitErr)
		}
		return 1
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fail(fmt.Errorf("load .env: %w", err))
	}

	cfg := config.DefaultConfig()
	if err := cfg.FromEnv(); err != nil {
		return fail(fmt.Errorf("invalid environment: %w", err))
	}

	flags := flag.NewFlagSet("scraper", flag.ContinueOnError)
	flags.SetOutput(stderr)
	keywords := flags.String("keywords", "", "Comma-separated search terms, or product identifiers/URLs with --type detail")
	flags.IntVar(&cfg.Limit, "num_products", cfg.Limit, "Records to collect per keyword")
	flags.StringVar(&cfg.Platform, "platform", cfg.Platform, "Marketplace: "+strings.Join(source.Names(), " or "))
	flags.StringVar(&cfg.Mode, "type", cfg.Mode, "listing or detail (aliases: rank, product)")
	flags.IntVar(&cfg.MaxPages, "max-pages", cfg.MaxPages, "Maximum listing pages per keyword")
	flags.IntVar(&cfg.Parallelism, "parallel", cfg.Parallelism, "Keywords processed at once")
	flags.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout")
	flags.IntVar(&cfg.MaxAttempts, "max-retries", cfg.MaxAttempts, "Attempts per request, including the first")
	flags.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Initial backoff after a transient failure")
	flags.DurationVar(&cfg.RetryBackoffMax, "retry-backoff-max", cfg.RetryBackoffMax, "Maximum retry backoff")
	flags.DurationVar(&cfg.BlockedBackoff, "blocked-backoff", cfg.BlockedBackoff, "Backoff step after a challenge page")
	flags.Float64Var(&cfg.Jitter, "jitter", cfg.Jitter, "Random fraction applied to retry backoff")
	flags.Float64Var(&cfg.RequestsPerSecond, "rps", cfg.RequestsPerSecond, "Request rate limit (0 disables)")
	flags.IntVar(&cfg.Burst, "burst", cfg.Burst, "Request rate limit burst")
	flags.DurationVar(&cfg.BlockCooldown, "block-cooldown", cfg.BlockCooldown, "How long a host that keeps serving challenges is left alone (0 disables)")
	flags.StringVar(&cfg.RulesFile, "rules", cfg.RulesFile, "YAML file replacing the marketplace's extraction rules")
	flags.StringVar(&cfg.OutputFile, "output", cfg.OutputFile, "Also export records to this file")
	flags.StringVar(&cfg.OutputFormat, "format", cfg.OutputFormat, "Export format: csv, json, or dual")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flags.StringVar(&cfg.MemcacheAddr, "memcache-addr", cfg.MemcacheAddr, "Share host cool-downs through memcache")
	flags.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Mirror events to a Redis stream")
	flags.StringVar(&cfg.RedisStream, "redis-stream", cfg.RedisStream, "Redis stream name")
	flags.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Enable verbose logging")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return fail(err)
	}

	logger, level := newLogger(stderr, cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg.Platform = strings.ToLower(strings.TrimSpace(cfg.Platform))
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	if err := cfg.Validate(); err != nil {
		return fail(err)
	}
	mode, err := models.ParseMode(cfg.Mode)
	if err != nil {
		return fail(err)
	}
	queries := models.NewQueries(*keywords, mode)
	if len(queries) == 0 {
		return fail(pipeline.ErrNoQueries)
	}

	market, err := source.Lookup(cfg.Platform)
	if err != nil {
		return fail(err)
	}
	var opts []source.Option
	if cfg.RulesFile != "" {
		rules, err := parser.LoadRulesFile(cfg.RulesFile)
		if err != nil {
			return fail(err)
		}
		opts = append(opts, source.WithRules(rules))
	}
	if blocks := newBlockList(cfg); blocks != nil {
		opts = append(opts, source.WithBlockList(blocks))
	}

	metrics := scraper.NewMetrics()
	transport, err := scraper.NewTransport(cfg, metrics)
	if err != nil {
		return fail(fmt.Errorf("initialising transport: %w", err))
	}
	adapter := source.New(market, transport, cfg, metrics, opts...)

	var sink pipeline.Sink = events
	if cfg.RedisAddr != "" {
		redisSink := pipeline.NewRedisSink(cfg.RedisAddr, cfg.RedisStream, redisStreamMaxLen)
		defer redisSink.Close()
		if err := redisSink.Ping(ctx); err != nil {
			slog.Warn("redis unavailable, events go to stdout only", slog.String("addr", cfg.RedisAddr), slog.Any("error", err))
		} else {
			sink = pipeline.MultiSink{events, redisSink}
			slog.Info("mirroring events to redis", slog.String("addr", cfg.RedisAddr), slog.String("stream", cfg.RedisStream))
		}
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	runnerOpts := []pipeline.RunnerOption{pipeline.WithWorkers(cfg.Parallelism)}
	var writer pipeline.RecordWriter
	var exporter *pipeline.Exporter
	if cfg.OutputFile != "" {
		writer, err = pipeline.NewWriter(cfg.OutputFile, cfg.OutputFormat)
		if err != nil {
			return fail(fmt.Errorf("creating writer: %w", err))
		}
		exporter = pipeline.NewExporter(writer, 64)
		exporter.Start(1)
		if cfg.Verbose {
			exporter.StartMetricsReporting(10 * time.Second)
		}
		runnerOpts = append(runnerOpts, pipeline.WithExporter(exporter))
	}

	slog.Info("starting scrape",
		slog.String("platform", cfg.Platform),
		slog.String("type", string(mode)),
		slog.Int("keywords", len(queries)),
		slog.Int("num_products", cfg.Limit),
	)

	code := 0
	summary, err := pipeline.NewRunner(adapter, sink, cfg.Limit, runnerOpts...).Run(ctx, queries)
	if err != nil {
		slog.Error("scrape failed", slog.Any("error", err))
		code = 1
	}

	if exporter != nil {
		if err := exporter.Close(); err != nil {
			slog.Error("export shutdown failed", slog.Any("error", err))
			code = 1
		}
		if summary.RecordCount > 0 {
			if err := writer.Validate(); err != nil {
				slog.Error("output validation failed", slog.Any("error", err))
				code = 1
			}
		}
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(stderr, summary, cfg.OutputFile, exporter)
	return code
}

func newBlockList(cfg *config.Config) scraper.BlockList {
	if cfg.BlockCooldown <= 0 {
		return nil
	}
	if cfg.MemcacheAddr != "" {
		slog.Info("sharing host cool-downs through memcache", slog.String("addr", cfg.MemcacheAddr))
		return scraper.NewMemcacheBlockList(cfg.MemcacheAddr, cfg.BlockCooldown)
	}
	return scraper.NewMemoryBlockList(256, cfg.BlockCooldown)
}

func printSummary(w io.Writer, summary models.RunSummary, outputFile string, exporter *pipeline.Exporter) {
	separator := "--------------------------------------------------"
	duration := summary.EndTime.Sub(summary.StartTime)

	fmt.Fprintln(w, separator)
	fmt.Fprintln(w, "Scrape complete")
	fmt.Fprintf(w, "  Keywords:      %d\n", summary.Queries)
	fmt.Fprintf(w, "  Succeeded:     %d\n", summary.Succeeded)
	fmt.Fprintf(w, "  Failed:        %d\n", summary.Failed)
	fmt.Fprintf(w, "  Records:       %d\n", summary.RecordCount)
	fmt.Fprintf(w, "  Duration:      %v\n", duration.Round(time.Millisecond))
	if exporter != nil {
		snap := exporter.Snapshot()
		fmt.Fprintf(w, "  Exported:      %d\n", snap["written_records"].(int64))
		if rejected, ok := snap["rejected_records"].(map[string]int); ok && len(rejected) > 0 {
			fmt.Fprintf(w, "  Rejected:      %v\n", rejected)
		}
		fmt.Fprintf(w, "  Output file:   %s\n", outputFile)
	}
	fmt.Fprintln(w, separator)
}

func newLogger(w io.Writer, verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
