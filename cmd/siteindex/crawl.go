package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nao1215/siteindex/internal/config"
	"github.com/nao1215/siteindex/internal/crawler"
	"github.com/nao1215/siteindex/internal/database"
	"github.com/nao1215/siteindex/internal/model"
	"github.com/nao1215/siteindex/internal/progress"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <start-url> [db-path]",
		Short: "Crawl a website into a SQLite database",
		Long: `Crawl fetches the start URL and every HTML page on the same host reachable
from it, and stores each page with its components and links.

The database defaults to crawl.sqlite3 in the XDG data directory
(~/.local/share/siteindex on Linux). Its schema is created or verified
before the first request is sent.

Examples:
  # Crawl a site into the default database
  siteindex crawl https://www.example.com/

  # Crawl into a specific file, replacing pages stored by an earlier crawl
  siteindex crawl --policy replace https://www.example.com/ crawl.sqlite3

  # Start from scratch with a gentle request rate
  siteindex crawl --recreate -n 4 --delay 250ms https://www.example.com/

  # Expose Prometheus metrics while crawling
  siteindex crawl --metrics-addr 127.0.0.1:9090 https://www.example.com/`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runCrawlCmd,
	}

	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .siteindex in current or home directory)")

	cmd.Flags().IntP("concurrency", "n", crawler.DefaultMaxConcurrency,
		"Maximum number of pages processed at the same time")
	cmd.Flags().IntP("max-pages", "p", 0,
		"Stop after this many fetches (0 means no limit)")
	cmd.Flags().IntP("depth", "d", 0,
		"Follow links at most this many hops from the start URL (0 means no limit)")
	cmd.Flags().Duration("delay", 0,
		"Minimum time between request starts")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().String("user-agent", crawler.DefaultUserAgent,
		"User-Agent header sent with every request")

	cmd.Flags().String("exclude-path", crawler.DefaultExcludedPathPattern,
		"Regular expression of paths never fetched (empty disables)")
	cmd.Flags().StringSlice("exclude-ext", crawler.DefaultExcludedExtensions,
		"File extensions never fetched")
	cmd.Flags().StringSlice("ignore", nil,
		"Path globs to skip (e.g. /admin/*)")
	cmd.Flags().StringSlice("follow", nil,
		"Only crawl paths matching these globs")
	cmd.Flags().Bool("respect-robots", false,
		"Honour robots.txt")

	cmd.Flags().String("policy", string(database.PolicyInsertOnly),
		"What to do with already stored paths: insert or replace")
	cmd.Flags().Bool("minify", false,
		"Store minified HTML")
	cmd.Flags().Bool("unwrap-external", false,
		"Record the target of external-site redirect links")
	cmd.Flags().Bool("recreate", false,
		"Drop all stored data before crawling")

	cmd.Flags().BoolP("quiet", "q", false,
		"Do not draw the progress bar")
	cmd.Flags().String("metrics-addr", "",
		"Serve Prometheus metrics on this address during the crawl")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildCrawlConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// buildCrawlConfig merges defaults, the configuration file and flags, in
// increasing order of precedence.
func buildCrawlConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.StartURL = args[0]
	if len(args) > 1 {
		cfg.DatabasePath = args[1]
	}

	var err error
	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// An explicitly given file must exist; a missing default file is fine.
	if path := config.FindConfigFile(cfg.ConfigFilePath); path != "" {
		file, err := config.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		host := ""
		if u, err := url.Parse(cfg.StartURL); err == nil {
			host = u.Host
		}
		cfg.Apply(file.ForHost(host))
	} else if cfg.ConfigFilePath != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		if cfg.MaxConcurrency, err = flags.GetInt("concurrency"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("max-pages") {
		if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("depth") {
		if cfg.MaxDepth, err = flags.GetInt("depth"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("delay") {
		if cfg.Delay, err = flags.GetDuration("delay"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("user-agent") {
		if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("exclude-path") {
		if cfg.ExcludedPathPattern, err = flags.GetString("exclude-path"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("exclude-ext") {
		if cfg.ExcludedExtensions, err = flags.GetStringSlice("exclude-ext"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("ignore") {
		if cfg.IgnorePatterns, err = flags.GetStringSlice("ignore"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("follow") {
		if cfg.FollowPatterns, err = flags.GetStringSlice("follow"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("respect-robots") {
		if cfg.RespectRobots, err = flags.GetBool("respect-robots"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("policy") {
		if cfg.DuplicatePolicy, err = flags.GetString("policy"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("minify") {
		if cfg.Minify, err = flags.GetBool("minify"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("unwrap-external") {
		if cfg.UnwrapExternalLinks, err = flags.GetBool("unwrap-external"); err != nil {
			return nil, err
		}
	}

	if cfg.Recreate, err = flags.GetBool("recreate"); err != nil {
		return nil, err
	}
	if cfg.Quiet, err = flags.GetBool("quiet"); err != nil {
		return nil, err
	}
	if cfg.MetricsAddr, err = flags.GetString("metrics-addr"); err != nil {
		return nil, err
	}
	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.JSONLog = getBoolFlag(cmd, "json-log")

	return cfg, nil
}

// runCrawl opens the database, runs one crawl and records it as a crawl
// run. The crawl error, if any, is returned after the run is recorded.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout, stderr io.Writer) error {
	policy, err := database.ParseDuplicatePolicy(cfg.DuplicatePolicy)
	if err != nil {
		return err
	}
	opts := database.DefaultOptions()
	opts.DuplicatePolicy = policy

	db, err := database.Open(cfg.DatabasePath, opts)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if cfg.Recreate {
		if err := db.Reset(ctx); err != nil {
			return fmt.Errorf("failed to recreate database: %w", err)
		}
		logger.Info("database recreated", slog.String("path", cfg.DatabasePath))
	}

	prior, err := db.Count(ctx)
	if err != nil {
		return err
	}
	estimate := progress.EstimateTotal(prior, progress.DefaultEstimate)

	observers := make([]progress.Observer, 0, 2)
	if !cfg.Quiet {
		observers = append(observers, progress.NewTracker(stderr, estimate, progress.WithRedraw()))
	}
	if cfg.MetricsAddr != "" {
		sink, shutdown, err := serveMetrics(cfg.MetricsAddr, logger)
		if err != nil {
			return err
		}
		defer shutdown()
		observers = append(observers, sink)
	}

	run, err := db.StartCrawl(ctx, cfg.StartURL)
	if err != nil {
		return err
	}

	spider := crawler.NewSpider(
		&http.Client{Timeout: cfg.Timeout},
		db,
		crawler.WithMaxConcurrency(cfg.MaxConcurrency),
		crawler.WithMaxPages(cfg.MaxPages),
		crawler.WithMaxDepth(cfg.MaxDepth),
		crawler.WithDelay(cfg.Delay),
		crawler.WithUserAgent(cfg.UserAgent),
		crawler.WithHeaders(cfg.Headers),
		crawler.WithMaxBodySize(cfg.MaxBodySize),
		crawler.WithExcludedPathPattern(cfg.ExcludedPathPattern),
		crawler.WithExcludedExtensions(cfg.ExcludedExtensions),
		crawler.WithIgnorePatterns(cfg.IgnorePatterns),
		crawler.WithFollowPatterns(cfg.FollowPatterns),
		crawler.WithRespectRobots(cfg.RespectRobots),
		crawler.WithParser(crawler.NewParser(
			crawler.WithChromeSelectors(cfg.ChromeSelectors),
			crawler.WithMinify(cfg.Minify),
			crawler.WithUnwrapExternalLinks(cfg.UnwrapExternalLinks, ""),
		)),
		crawler.WithProgress(progress.Multi(observers...), estimate),
		crawler.WithLogger(logger),
	)

	started := time.Now()
	stats, crawlErr := spider.Crawl(ctx, cfg.StartURL)

	run.PagesStored = stats.Accepted
	run.Duplicates = stats.Duplicates
	run.Failures = stats.Failed
	run.Status = crawlStatus(crawlErr)

	// The run is recorded even when ctx was cancelled.
	if err := db.FinishCrawl(context.WithoutCancel(ctx), run); err != nil {
		logger.Error("failed to record crawl run", slog.String("error", err.Error()))
	}

	fmt.Fprintf(stdout, "%s: stored %s pages (%s duplicates, %s failed, %s skipped) in %s\n",
		run.Status,
		humanize.Comma(int64(stats.Accepted)),
		humanize.Comma(int64(stats.Duplicates)),
		humanize.Comma(int64(stats.Failed)),
		humanize.Comma(int64(stats.FilteredOut+stats.Rejected)),
		time.Since(started).Round(time.Millisecond))
	fmt.Fprintf(stdout, "database: %s\n", cfg.DatabasePath)

	if crawlErr != nil {
		return fmt.Errorf("crawl %s: %w", run.Status, crawlErr)
	}
	return nil
}

// crawlStatus maps a Crawl error to the recorded run status.
func crawlStatus(err error) model.CrawlStatus {
	switch {
	case err == nil:
		return model.CrawlStatusComplete
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return model.CrawlStatusCancelled
	default:
		return model.CrawlStatusFailed
	}
}

// serveMetrics registers the crawl metrics on a fresh registry and serves
// them on addr until the returned shutdown function is called.
func serveMetrics(addr string, logger *slog.Logger) (*progress.PrometheusSink, func(), error) {
	reg := prometheus.NewRegistry()
	sink, err := progress.NewPrometheusSink(reg)
	if err != nil {
		return nil, nil, err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", slog.String("error", err.Error()))
		}
	}()
	logger.Info("serving metrics", slog.String("addr", ln.Addr().String()))

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return sink, shutdown, nil
}
