package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alvmarrod/webgraph/internal/config"
	"github.com/alvmarrod/webgraph/internal/content"
	"github.com/alvmarrod/webgraph/internal/crawler"
	"github.com/alvmarrod/webgraph/internal/memory"
	"github.com/alvmarrod/webgraph/internal/metrics"
	"github.com/alvmarrod/webgraph/internal/storage"
	"github.com/alvmarrod/webgraph/internal/version"
)

const (
	reasonCompleted = "completed"
	reasonSignal    = "signal"
)

type rootOptions struct {
	configPath string
	workers    int
}

// NewRootCmd creates the crawler command
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "crawler [flags] <output> <url> [maxDepth]",
		Short: "Crawl a web site and store its link graph",
		Long: `crawler walks a site depth-first from a seed URL, following links and
redirects up to maxDepth levels, and writes the resulting weighted graph of
pages and links to <output>. Outputs ending in .json are written as a JSON
document; anything else is a SQLite database. An existing output is replaced.

The seed, output and depth may instead come from --config or WEBGRAPH_*
environment variables, in which case the positional arguments are omitted.`,
		Version:       version.Version,
		Args:          validateArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseArgs(args)
			if err != nil {
				return err
			}
			overrides.Workers = opts.workers
			return runCrawl(cmd.Context(), opts.configPath, overrides, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "config file (JSON, YAML or TOML)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "concurrent requests (default from config, 1 keeps the crawl order)")

	return cmd
}

func validateArgs(_ *cobra.Command, args []string) error {
	switch len(args) {
	case 0, 2, 3:
		return nil
	}
	return fmt.Errorf("expected <output> <url> [maxDepth], got %d argument(s)", len(args))
}

// parseArgs maps <output> <url> [maxDepth] onto config overrides
func parseArgs(args []string) (config.Overrides, error) {
	var o config.Overrides
	if len(args) == 0 {
		return o, nil
	}
	o.OutputPath = args[0]
	o.SeedURL = args[1]
	if len(args) == 3 {
		depth, err := strconv.Atoi(args[2])
		if err != nil {
			return o, fmt.Errorf("invalid maxDepth %q: %w", args[2], err)
		}
		o.MaxDepth = &depth
	}
	return o, nil
}

func newLogger(level string) (*logrus.Logger, error) {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log_level: %w", err)
	}
	log.SetLevel(lvl)
	return log, nil
}

func runCrawl(ctx context.Context, configPath string, overrides config.Overrides, out io.Writer) error {
	cfg, err := config.LoadConfig(configPath, overrides)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	log.Infof("webgraph v%s starting...", version.Version)
	log.Infof("Configuration loaded: seed=%s, depth=%d, workers=%d",
		cfg.SeedURL, cfg.MaxDepth, cfg.ConcurrentWorkers)

	sink, err := storage.OpenSink(cfg.OutputPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Errorf("Failed to close output: %v", err)
		}
	}()
	log.Infof("Output initialized: %s", cfg.OutputPath)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := storage.CrawlRun{
		CrawlID:   uuid.NewString(),
		SeedURL:   cfg.SeedURL,
		MaxDepth:  cfg.MaxDepth,
		StartedAt: time.Now(),
	}
	tracker := metrics.NewTracker()
	graph := memory.NewGraph()
	transport := crawler.NewCollyTransport(crawler.TransportConfig{
		UserAgent:      cfg.UserAgent,
		ConnectTimeout: cfg.ConnectTimeout(),
		ReadTimeout:    cfg.ReadTimeout(),
	})
	c := crawler.NewCrawler(crawler.Options{
		MaxDepth:            cfg.MaxDepth,
		MaxRedirectionDepth: cfg.MaxRedirectionDepth,
		Workers:             cfg.ConcurrentWorkers,
	}, graph, transport, content.NewScanner(), tracker, log)

	run.TerminationReason = reasonCompleted
	if _, _, err := c.Crawl(ctx, cfg.SeedURL); err != nil {
		if !errors.Is(err, context.Canceled) {
			return err
		}
		log.Warn("Interrupted, saving partial graph")
		run.TerminationReason = reasonSignal
	}
	run.FinishedAt = time.Now()
	stop()

	// the crawl context may already be canceled; the flush must still complete
	if err := graph.Flush(context.Background(), sink, run); err != nil {
		return err
	}

	log.Info("Final stats: " + tracker.LogProgress())
	if err := tracker.WriteToFile(cfg.MetricsPath, run.TerminationReason); err != nil {
		log.Errorf("Failed to write metrics: %v", err)
	} else {
		log.Infof("Metrics written to %s", cfg.MetricsPath)
	}
	if cfg.MetricsTextfile != "" {
		if err := tracker.WriteTextfile(cfg.MetricsTextfile); err != nil {
			log.Errorf("Failed to write metrics textfile: %v", err)
		}
	}

	fmt.Fprintf(out, "Crawl duration: %s\n", formatDuration(run.FinishedAt.Sub(run.StartedAt)))
	return nil
}

// formatDuration renders d as HH:MM:SS.mmm
func formatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d.%03d",
		ms/3_600_000,
		ms/60_000%60,
		ms/1000%60,
		ms%1000,
	)
}
