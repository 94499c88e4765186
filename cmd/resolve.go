package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/1F47E/imagery-dater/pkg/batch"
	"github.com/1F47E/imagery-dater/pkg/config"
	"github.com/1F47E/imagery-dater/pkg/input"
	"github.com/1F47E/imagery-dater/pkg/logger"
	"github.com/1F47E/imagery-dater/pkg/oracle"
	"github.com/1F47E/imagery-dater/pkg/resolver"
	"github.com/1F47E/imagery-dater/pkg/rtree"
	"github.com/1F47E/imagery-dater/pkg/sink"
	"github.com/1F47E/imagery-dater/pkg/ui"
)

type resolveOptions struct {
	configPath  string
	logFile     string
	debug       bool
	radius      int
	concurrency int
	chunkSize   int
	mode        string
	timeout     time.Duration
	out         string
	index       string
	postgis     bool
	selector    string
	endpoint    string
	plain       bool
}

func newResolveCmd() *cobra.Command {
	opts := &resolveOptions{}

	cmd := &cobra.Command{
		Use:   "resolve <input.json|input.csv>",
		Short: "Resolve capture timestamps for every location in a file",
		Long: `Read locations with their capture month, resolve each capture timestamp
to the second and save the results as CSV (timestamp, lat, lng).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "Config file path (default "+config.DefaultFile+" if present)")
	f.StringVar(&opts.logFile, "log-file", "", `Log file path, "-" for stderr`)
	f.BoolVar(&opts.debug, "debug", false, "Debug logging")
	f.IntVarP(&opts.radius, "radius", "r", batch.DefaultRadius, "Search radius in meters")
	f.IntVarP(&opts.concurrency, "concurrency", "n", batch.DefaultConcurrency, "Maximum resolutions in flight")
	f.IntVar(&opts.chunkSize, "chunk-size", batch.DefaultConcurrency, "Group size in grouped mode")
	f.StringVar(&opts.mode, "mode", string(batch.ModeGrouped), "Batch mode: grouped or streaming")
	f.DurationVar(&opts.timeout, "timeout", 0, "Timeout per location, 0 disables it")
	f.StringVarP(&opts.out, "out", "o", "", "Output CSV path (default <csv_dir>/<input name>.csv)")
	f.StringVar(&opts.index, "index", "", `Capture index file, "" disables indexing`)
	f.BoolVar(&opts.postgis, "postgis", false, "Also store captures in PostGIS")
	f.StringVar(&opts.selector, "selector", "", "JSONPath selecting the location records")
	f.StringVar(&opts.endpoint, "endpoint", "", "Override the image search endpoint")
	f.BoolVar(&opts.plain, "plain", false, "Plain progress output even on a terminal")

	return cmd
}

// resolveConfig loads the config file and applies the flags that were set.
func resolveConfig(cmd *cobra.Command, opts *resolveOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}

	f := cmd.Flags()
	if f.Changed("radius") {
		cfg.Resolver.RadiusM = opts.radius
	}
	if f.Changed("concurrency") {
		cfg.Batch.Concurrency = opts.concurrency
	}
	if f.Changed("chunk-size") {
		cfg.Batch.ChunkSize = opts.chunkSize
	}
	if f.Changed("mode") {
		cfg.Batch.Mode = opts.mode
	}
	if f.Changed("timeout") {
		cfg.Resolver.QueryTimeout = opts.timeout
	}
	if f.Changed("index") {
		cfg.Index.File = opts.index
	}
	if f.Changed("postgis") {
		cfg.PostGIS.Enabled = opts.postgis
	}
	if f.Changed("selector") {
		cfg.Input.Selector = opts.selector
	}
	if f.Changed("endpoint") {
		cfg.Oracle.Endpoint = opts.endpoint
	}
	if f.Changed("log-file") {
		cfg.Logging.File = opts.logFile
	}
	if opts.debug {
		cfg.Logging.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid settings: %w", err)
	}
	return cfg, nil
}

func runResolve(cmd *cobra.Command, opts *resolveOptions, inputPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		return err
	}

	cleanup, err := logger.Setup(logger.Config{Path: cfg.Logging.File, Debug: cfg.Logging.Debug})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer func() { _ = cleanup() }()
	log := logger.L()

	src, err := input.LoadFile(inputPath, cfg.Input.Selector)
	if err != nil {
		return err
	}
	for _, s := range src.Skipped {
		log.Warn("input.record_skipped", "record", s.Record, "reason", s.Reason)
	}
	fmt.Fprintf(out, "Loaded %d locations from %s", len(src.Queries), inputPath)
	if len(src.Skipped) > 0 {
		fmt.Fprintf(out, " (%d skipped)", len(src.Skipped))
	}
	fmt.Fprintln(out)

	httpClient, err := oracle.NewHTTPClient(cfg.TransportConfig())
	if err != nil {
		return err
	}
	clientOpts := []oracle.Option{
		oracle.WithEndpoint(cfg.Oracle.Endpoint),
		oracle.WithHTTPClient(httpClient),
	}
	if cfg.Oracle.UserAgent != "" {
		clientOpts = append(clientOpts, oracle.WithUserAgent(cfg.Oracle.UserAgent))
	}
	client, err := oracle.NewClient(clientOpts...)
	if err != nil {
		return err
	}

	res := resolver.New(client,
		resolver.WithCallTimeout(cfg.Resolver.CallTimeout),
		resolver.WithLogger(log))

	reporter := ui.New(len(src.Queries), ui.Options{
		Title: "Resolving " + filepath.Base(inputPath),
		Out:   out,
		Plain: opts.plain,
	})

	orch, err := batch.New(res, cfg.BatchConfig(),
		batch.WithProgress(reporter.Report),
		batch.WithLogger(log))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome, runErr := orch.Run(ctx, src.Queries)
	reporter.Done(outcome)

	// Whatever was resolved before an interrupt is still saved.
	if err := saveOutcome(cmd.Context(), out, cfg, opts.out, inputPath, outcome); err != nil {
		return err
	}

	printFailures(out, outcome)

	if runErr != nil {
		return fmt.Errorf("batch interrupted: %w", runErr)
	}
	return nil
}

// printFailures summarizes failed locations by cause and points at the log
// holding the details.
func printFailures(out io.Writer, outcome batch.Outcome) {
	if !outcome.Partial() {
		return
	}

	noImagery := 0
	for _, f := range outcome.Failures {
		if resolver.IsKind(f.Err, resolver.KindResolutionFailed) {
			noImagery++
		}
	}
	fmt.Fprintf(out, "%d locations failed: %d without imagery in their month, %d with other errors\n",
		len(outcome.Failures), noImagery, len(outcome.Failures)-noImagery)

	if logger.IsReady() == nil {
		fmt.Fprintf(out, "Failure details logged to %s\n", logger.Path())
	}
}

func saveOutcome(ctx context.Context, out io.Writer, cfg config.Config, outPath, inputPath string, outcome batch.Outcome) error {
	log := logger.L()

	if outPath == "" {
		name := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
		outPath = filepath.Join(cfg.Output.CSVDir, name+".csv")
	}
	if err := sink.WriteCSVFile(outPath, outcome.Captures); err != nil {
		return fmt.Errorf("failed to save %s: %w", outPath, err)
	}
	fmt.Fprintf(out, "Saved %d captures to %s\n", len(outcome.Captures), outPath)
	log.Info("output.csv_saved", "path", outPath, "captures", len(outcome.Captures), "run_id", outcome.RunID)

	if len(outcome.Captures) == 0 {
		return nil
	}

	if cfg.Index.File != "" {
		index := rtree.NewCaptureIndex()
		added, err := index.MergeFile(cfg.Index.File, outcome.Captures)
		if err != nil {
			return fmt.Errorf("failed to update capture index: %w", err)
		}
		fmt.Fprintf(out, "Added %d new captures to %s (%d total)\n", added, cfg.Index.File, index.Count())
	}

	if cfg.PostGIS.Enabled {
		db, err := sink.NewPostGIS(ctx, cfg.PostGISConfig())
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.InitSchema(ctx); err != nil {
			return err
		}
		if err := db.BulkInsert(ctx, outcome.RunID, outcome.Captures); err != nil {
			return err
		}
		total, err := db.Count(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Stored %d captures in PostGIS (run %s, %d total)\n", len(outcome.Captures), outcome.RunID, total)
	}

	return nil
}
