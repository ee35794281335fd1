// Command flatten removes the ground from LiDAR point clouds.
//
// Usage:
//
//	flatten [flags] <input.pcd | input_dir>
//	flatten -db ledger.db -migrate up|down|status
//
// A directory is searched recursively for files with the configured
// extension and each is written to <input_dir>/flat_output with the suffix
// inserted into its name. A single file is written next to itself. Flags
// override values from -config, which override the built-in defaults.
// With -migrate no input is flattened; the ledger schema is moved up to
// the latest version, rolled back one version, or reported.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/banshee-data/groundflat/internal/config"
	"github.com/banshee-data/groundflat/internal/db"
	"github.com/banshee-data/groundflat/internal/fsutil"
	"github.com/banshee-data/groundflat/internal/lidar/batch"
	"github.com/banshee-data/groundflat/internal/lidar/flatten"
	"github.com/banshee-data/groundflat/internal/lidar/monitor"
	"github.com/banshee-data/groundflat/internal/lidar/storage/sqlite"
	"github.com/banshee-data/groundflat/internal/monitoring"
	"github.com/banshee-data/groundflat/internal/units"
	"github.com/banshee-data/groundflat/internal/version"
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

const usageFormat = "Usage: %s [flags] <input.pcd | input_dir>\n       %s -db <ledger> -migrate up|down|status\n"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// options is the parsed command line.
type options struct {
	ConfigPath  string
	Overrides   *config.TuningConfig // only flags given explicitly
	ShowVersion bool
	Migrate     string // ledger schema action; no Target when set
	Target      string
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("flatten", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, usageFormat, fs.Name(), fs.Name())
		fs.PrintDefaults()
	}

	opts := &options{Overrides: config.EmptyTuningConfig()}
	defaults := config.EmptyTuningConfig()

	fs.StringVar(&opts.ConfigPath, "config", "", "Tuning config file (.json, .yaml or .yml)")
	outDir := fs.String("out", "", "Output directory (default: <input_dir>/flat_output, or next to a single file)")
	suffix := fs.String("suffix", defaults.GetOutputSuffix(), "Suffix inserted before the first '.' of output names")
	ext := fs.String("ext", defaults.GetExtension(), "Input file extension searched in directory mode")
	sectionLen := fs.Float64("section-len", defaults.GetSectionLen(), "Grid cell side length")
	minPoints := fs.Int("min-points", defaults.GetMinPointsPerCell(), "Cells with this many points or fewer get floor 0")
	divisor := fs.Int("percentile-divisor", defaults.GetPercentileDivisor(), "Floor rank is count/divisor (20 ≈ 5th percentile)")
	workers := fs.Int("workers", defaults.GetWorkers(), "Files flattened in parallel")
	verbose := fs.Bool("verbose", defaults.GetVerbose(), "Log per-cell count and floor tables")
	plotDir := fs.String("plot-dir", "", "Write floor plots and reports to this directory")
	dbPath := fs.String("db", "", "SQLite run ledger path (empty disables)")
	logLevel := fs.String("log-level", defaults.GetLogLevel(), "Log level: debug, info, warn, error")
	logFile := fs.String("log-file", "", "Also log to this rotating file")
	fs.BoolVar(&opts.ShowVersion, "version", false, "Print version and exit")
	fs.StringVar(&opts.Migrate, "migrate", "", "Ledger schema action instead of flattening: up, down or status")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	o := opts.Overrides
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "out":
			o.OutputDir = outDir
		case "suffix":
			o.OutputSuffix = suffix
		case "ext":
			o.Extension = ext
		case "section-len":
			o.SectionLen = sectionLen
		case "min-points":
			o.MinPointsPerCell = minPoints
		case "percentile-divisor":
			o.PercentileDivisor = divisor
		case "workers":
			o.Workers = workers
		case "verbose":
			o.Verbose = verbose
		case "plot-dir":
			o.PlotDir = plotDir
		case "db":
			o.DBPath = dbPath
		case "log-level":
			o.LogLevel = logLevel
		case "log-file":
			o.LogFile = logFile
		}
	})

	if opts.ShowVersion {
		return opts, nil
	}
	if opts.Migrate != "" {
		if fs.NArg() != 0 {
			fs.Usage()
			return nil, fmt.Errorf("-migrate takes no input path, got %d", fs.NArg())
		}
		return opts, nil
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, fmt.Errorf("expected exactly one input path, got %d", fs.NArg())
	}
	opts.Target = fs.Arg(0)
	return opts, nil
}

// resolveConfig layers defaults, the config file and flag overrides, then
// validates the result.
func resolveConfig(opts *options) (*config.TuningConfig, error) {
	cfg := config.EmptyTuningConfig()
	if opts.ConfigPath != "" {
		fileCfg, err := config.LoadTuningConfig(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg.Merge(fileCfg)
	}
	cfg.Merge(opts.Overrides)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	if opts.ShowVersion {
		fmt.Fprintf(stdout, "flatten %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return exitOK
	}

	cfg, err := resolveConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailed
	}

	if err := monitoring.Init(cfg.GetLogLevel(), cfg.GetLogFile()); err != nil {
		fmt.Fprintf(stderr, "Error: init logging: %v\n", err)
		return exitFailed
	}
	defer monitoring.Sync()

	if opts.Migrate != "" {
		if err := runMigrate(stdout, cfg.GetDBPath(), opts.Migrate); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailed
		}
		return exitOK
	}

	flattener, err := flatten.NewFlattener(flatten.ConfigFromTuning(cfg))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailed
	}

	fsys := fsutil.OSFileSystem{}
	runner := batch.NewRunner(fsys, flattener)
	runner.Workers = cfg.GetWorkers()
	runner.Suffix = cfg.GetOutputSuffix()

	if dir := cfg.GetPlotDir(); dir != "" {
		runner.Diagnostics = monitor.NewDiagnostics(fsys, dir)
	}
	if path := cfg.GetDBPath(); path != "" {
		ledger, err := db.NewDB(path)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailed
		}
		defer ledger.Close()
		runner.Ledger = sqlite.NewFlattenRunStore(ledger.DB)
	}

	summary, err := flattenTarget(ctx, fsys, runner, cfg, opts.Target)
	fmt.Fprintf(stdout, "Flattened %d files (%s points), %d failed, in %s\n",
		summary.Processed, units.FormatCount(summary.Points), summary.Failed, summary.Elapsed)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailed
	}
	return exitOK
}

// flattenTarget runs the batch over a directory, or a single file when
// target is not a directory.
func flattenTarget(ctx context.Context, fsys fsutil.FileSystem, runner *batch.Runner, cfg *config.TuningConfig, target string) (batch.Summary, error) {
	info, err := fsys.Stat(target)
	if err != nil {
		return batch.Summary{}, fmt.Errorf("input %s: %w", target, err)
	}

	if !info.IsDir() {
		outDir := cfg.GetOutputDir()
		if outDir == "" {
			outDir = filepath.Dir(target)
		}
		return runner.RunFile(ctx, target, batch.OutputPath(target, outDir, runner.Suffix))
	}

	outDir := cfg.GetOutputDir()
	if outDir == "" {
		outDir = filepath.Join(target, batch.DefaultOutputDir)
	}
	runner.OutDir = outDir

	inputs, err := batch.Discover(fsys, target, cfg.GetExtension(), outDir)
	if err != nil {
		return batch.Summary{}, err
	}
	if len(inputs) == 0 {
		monitoring.Logf("No %s files found in %s", cfg.GetExtension(), target)
		return batch.Summary{}, nil
	}
	monitoring.Logf("Found %d %s files in %s", len(inputs), cfg.GetExtension(), target)
	return runner.Run(ctx, inputs)
}
