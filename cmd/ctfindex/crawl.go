package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nao1215/ctfindex/internal/config"
	"github.com/nao1215/ctfindex/internal/database"
	"github.com/nao1215/ctfindex/internal/log"
	"github.com/nao1215/ctfindex/internal/model"
	"github.com/nao1215/ctfindex/internal/pipeline"
	"github.com/nao1215/ctfindex/internal/report"
	"github.com/nao1215/ctfindex/internal/transport"
	"github.com/spf13/cobra"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [site...]",
		Short: "Crawl write-up blogs and export their write-ups",
		Long: `Crawl traverses CTF write-up blogs from their seed pages and collects
every write-up URL below the base URL.

Each write-up is classified into Year, CTF, Category and Title and exported
as a spreadsheet (default), a text summary, Markdown or JSON.

Sites come from, in order of precedence:
- --base-url and --seed flags
- site names given as arguments, looked up in the configuration file
- every site of the configuration file
- the built-in ayweth20 blog

Examples:
  # Crawl the built-in blog into ctf_collection.xlsx
  ctfindex crawl

  # Crawl two configured sites, two at a time
  ctfindex crawl -b 2 ayweth20 myblog

  # Crawl an ad hoc blog and print a summary
  ctfindex crawl --base-url https://blog.example.com \
    --seed https://blog.example.com/2023/404ctf-2023 -f text

  # Crawl through a local SOCKS5 proxy
  ctfindex crawl --proxy 127.0.0.1:9050

  # Write a Markdown report
  ctfindex crawl -f markdown -o report.md

Configuration file (.ctfindex) example:
  sites:
    myblog:
      baseURL: "https://blog.example.com"
      seeds:
        - "https://blog.example.com/2023/404ctf-2023"
      cookie: "session_id=abc123"
      maxPages: 500`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Site flags
	cmd.Flags().String("base-url", "",
		"Crawl an ad hoc site with this base URL instead of configured sites")
	cmd.Flags().StringArray("seed", nil,
		"Seed URL of the ad hoc site (repeatable, default: the base URL)")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .ctfindex in current or home directory, then $XDG_CONFIG_HOME/ctfindex/config.yaml)")

	// Crawl behavior flags
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages to fetch per site (0 = no limit)")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of sites crawled concurrently")
	cmd.Flags().Bool("robots", false,
		"Honour robots.txt of every site")

	// Transport flags
	cmd.Flags().String("proxy", "",
		"Crawl through the SOCKS5 proxy at this address (e.g., 127.0.0.1:9050)")
	cmd.Flags().Bool("tor", false,
		"Start an embedded Tor daemon and crawl through it")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Report flags
	cmd.Flags().StringP("format", "f", config.FormatXLSX,
		"Report format: "+strings.Join(config.Formats, ", "))
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (default: stdout, or "+config.DefaultOutputFile+" for xlsx)")

	// History flags
	cmd.Flags().Bool("no-db", false,
		"Do not save the run to the history database")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.New(cmd.ErrOrStderr(), cfg.Verbose, cfg.LogJSON)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, finishing with partial results...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runCrawl(ctx, cfg, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// getBoolFlag reads a boolean flag from the command or the root's
// persistent flags. It returns false if the flag is not defined.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error
	flags := cmd.Flags()

	if cfg.BaseURL, err = flags.GetString("base-url"); err != nil {
		return nil, err
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Seeds, err = flags.GetStringArray("seed"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.RespectRobots, err = flags.GetBool("robots"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UseEmbeddedTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	if cfg.Format, err = flags.GetString("format"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}

	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.LogJSON = getBoolFlag(cmd, "log-json")

	// If the user named a config file, a missing file is an error.
	// Otherwise the search is best effort.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case explicitConfigPath:
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{
			Sites: make(map[string]config.SiteConfig),
		}
	}

	cfg.Sites = args

	return cfg, nil
}

// runCrawl crawls the configured sites and writes the report.
// Progress goes to status, the report to out unless a file is configured.
//
// A cancelled crawl is not an error: the partial indexes are reported and
// saved like complete ones, with their status saying so.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, out, status io.Writer) error {
	sites, err := cfg.ResolveSites()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger.Info("starting crawl",
		"sites", len(sites),
		"batchSize", cfg.BatchSize,
		"saveToDB", cfg.SaveToDB,
	)

	var db *database.IndexDB
	if cfg.SaveToDB {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())
	}

	client, stop, err := newTransportClient(ctx, cfg, logger, status)
	if err != nil {
		return err
	}
	defer stop()

	bp := pipeline.NewBatchProcessor(
		func(site config.Site) *pipeline.Pipeline {
			return newSitePipeline(client, cfg, site, logger)
		},
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	fmt.Fprintf(status, "Crawling %d site(s) (concurrency: %d)...\n", len(sites), cfg.BatchSize)
	startTime := time.Now()

	indexes := make([]*model.Index, len(sites))
	var mu sync.Mutex
	done := 0
	err = bp.ProcessBatchWithCallback(ctx, sites, func(idx *model.Index, i int) {
		mu.Lock()
		defer mu.Unlock()

		indexes[i] = idx
		done++
		fmt.Fprintf(status, "[%d/%d] %s: %d write-ups (%s)\n",
			done, len(sites), idx.Site, idx.WriteupCount(), idx.Status())

		// Saving uses its own context so that interrupted runs are kept too.
		if err := saveIndex(context.WithoutCancel(ctx), db, idx, logger); err != nil {
			logger.Error("failed to save index", "site", idx.Site, "error", err)
		}
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		fmt.Fprintf(status, "Crawl interrupted, reporting partial results\n")
	} else if err != nil {
		return err
	}

	fmt.Fprintf(status, "Crawl completed in %s\n\n", time.Since(startTime).Round(time.Millisecond))

	if err := writeReport(cfg, indexes, out); err != nil {
		return err
	}

	var siteErrs []error
	for _, idx := range indexes {
		if idx.Error != nil {
			siteErrs = append(siteErrs, fmt.Errorf("site %s: %w", idx.Site, idx.Error))
		}
	}
	return errors.Join(siteErrs...)
}

// newTransportClient returns the client the crawl goes through and a
// function releasing it. With --tor the embedded daemon is started first.
func newTransportClient(ctx context.Context, cfg *config.Config, logger *slog.Logger, status io.Writer) (*transport.Client, func(), error) {
	noop := func() {}

	switch {
	case cfg.UseEmbeddedTor:
		return startEmbeddedTor(ctx, cfg, logger, status)
	case cfg.ProxyAddress != "":
		client, err := transport.NewProxyClient(cfg.ProxyAddress, cfg.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create proxy client: %w", err)
		}
		if err := client.CheckConnection(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("proxy check failed: %w (make sure a SOCKS5 proxy is running at %s)",
				err, cfg.ProxyAddress)
		}
		logger.Info("proxy connection verified", "address", cfg.ProxyAddress)
		return client, noop, nil
	default:
		return transport.NewDirectClient(cfg.Timeout), noop, nil
	}
}

// startEmbeddedTor starts an embedded Tor daemon using tornago and returns a
// client going through it. The returned function stops the daemon.
func startEmbeddedTor(ctx context.Context, cfg *config.Config, logger *slog.Logger, status io.Writer) (*transport.Client, func(), error) {
	fmt.Fprintln(status, "Starting embedded Tor daemon...")
	fmt.Fprintf(status, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embeddedTor := transport.NewEmbeddedTor(
		transport.WithStartupTimeout(cfg.TorStartupTimeout),
	)
	if err := embeddedTor.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	stop := func() {
		logger.Info("stopping embedded Tor daemon...")
		if err := embeddedTor.Stop(); err != nil {
			logger.Error("failed to stop embedded Tor", "error", err)
		}
	}

	client, err := embeddedTor.NewClient(cfg.Timeout)
	if err != nil {
		stop()
		return nil, nil, fmt.Errorf("failed to create Tor client: %w", err)
	}
	if err := client.CheckConnection(ctx).Err(); err != nil {
		stop()
		return nil, nil, fmt.Errorf("embedded Tor proxy check failed: %w", err)
	}

	logger.Info("embedded Tor daemon started", "socksAddr", embeddedTor.SocksAddr())
	fmt.Fprintf(status, "SOCKS proxy: %s\n\n", embeddedTor.SocksAddr())

	return client, stop, nil
}

// newSitePipeline creates the crawl and classify pipeline of one site.
func newSitePipeline(client *transport.Client, cfg *config.Config, site config.Site, logger *slog.Logger) *pipeline.Pipeline {
	siteLogger := logger.With("site", site.Name)
	return pipeline.SitePipeline(client, site.SiteConfig,
		[]pipeline.Option{
			pipeline.WithLogger(siteLogger),
			pipeline.WithContinueOnError(true),
		},
		pipeline.WithPipelineUserAgent(cfg.UserAgent),
		pipeline.WithPipelineMaxBodySize(cfg.MaxBodySize),
		pipeline.WithPipelineStepLogger(siteLogger),
	)
}

// saveIndex stores idx in the history database. A nil db is a no-op.
func saveIndex(ctx context.Context, db *database.IndexDB, idx *model.Index, logger *slog.Logger) error {
	if db == nil {
		return nil
	}

	id, err := db.SaveIndex(ctx, idx)
	if err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}

	logger.Info("index saved to database", "site", idx.Site, "id", id)
	return nil
}

// writeReport writes the indexes in the configured format, to the output
// file if there is one and to out otherwise. The spreadsheet always goes to
// a file, so a text summary is printed to out alongside it.
func writeReport(cfg *config.Config, indexes []*model.Index, out io.Writer) error {
	path := cfg.OutputPath()
	if path == "" {
		return renderReport(cfg, indexes, out, out)
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Cookies and headers never reach the report, but the URLs of
	// private blogs might, so the file is readable by the owner only.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	return writeReportFile(cfg, indexes, f, path, out)
}

// writeReportFile renders the report into f and closes it. The report is
// only announced once the close succeeded.
func writeReportFile(cfg *config.Config, indexes []*model.Index, f io.WriteCloser, path string, out io.Writer) error {
	if err := renderReport(cfg, indexes, f, out); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	fmt.Fprintf(out, "Report written to %s\n", path)
	return nil
}

// renderReport writes indexes to dest in cfg.Format. Spreadsheets also get
// the text summary on out.
func renderReport(cfg *config.Config, indexes []*model.Index, dest, out io.Writer) error {
	writer, err := report.New(cfg.Format, dest, getVersion())
	if err != nil {
		return err
	}
	if cfg.Format == config.FormatXLSX {
		writer = report.NewMultiWriter(writer,
			report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose)))
	}

	if _, err := writer.Write(indexes...); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
