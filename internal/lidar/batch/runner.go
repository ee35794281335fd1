package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/groundflat/internal/fsutil"
	"github.com/banshee-data/groundflat/internal/lidar/flatten"
	"github.com/banshee-data/groundflat/internal/lidar/monitor"
	"github.com/banshee-data/groundflat/internal/lidar/pcd"
	"github.com/banshee-data/groundflat/internal/lidar/storage/sqlite"
	"github.com/banshee-data/groundflat/internal/monitoring"
	"github.com/banshee-data/groundflat/internal/security"
	"github.com/banshee-data/groundflat/internal/timeutil"
	"github.com/banshee-data/groundflat/internal/units"
)

// ErrOverwriteInput is returned when an output path names its own input.
var ErrOverwriteInput = errors.New("output would overwrite input")

// RunRecorder stores one ledger row per processed file.
// *sqlite.FlattenRunStore satisfies it.
type RunRecorder interface {
	Insert(run *sqlite.FlattenRun) error
}

// DiagnosticsWriter renders per-file plots and reports.
// *monitor.Diagnostics satisfies it.
type DiagnosticsWriter interface {
	Write(input string, res *flatten.Result, points []flatten.Point) ([]string, error)
}

// Runner flattens files on FS. The zero values of the optional fields
// disable the matching feature.
type Runner struct {
	FS        fsutil.FileSystem
	Flattener *flatten.Flattener
	Clock     timeutil.Clock

	// Workers bounds the files in flight. Values below 1 mean 1.
	Workers int
	// OutDir receives outputs in Run. Empty places each output in
	// flat_output next to its input.
	OutDir string
	// Suffix is inserted into output names by OutputPath.
	Suffix string

	Diagnostics DiagnosticsWriter // optional
	Ledger      RunRecorder       // optional
}

// NewRunner returns a Runner with one worker, the default suffix and the
// real clock.
func NewRunner(fsys fsutil.FileSystem, f *flatten.Flattener) *Runner {
	return &Runner{
		FS:        fsys,
		Flattener: f,
		Clock:     timeutil.RealClock{},
		Workers:   1,
		Suffix:    DefaultSuffix,
	}
}

// Summary counts the outcome of a Run.
type Summary struct {
	Processed int // files flattened and written
	Failed    int // files that could not be loaded or written
	Points    int // points adjusted across processed files
	Outputs   []string
	Elapsed   time.Duration
}

// FileError ties a failure to its input file.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string { return e.Path + ": " + e.Err.Error() }
func (e *FileError) Unwrap() error { return e.Err }

// fileOutcome is what processFile learned about one input.
type fileOutcome struct {
	output string
	points int
}

// Run flattens every input, writing each result to OutputPath under the
// output directory. Per-file failures do not stop the batch; they are
// joined into the returned error as *FileError values. Cancelling ctx stops
// new files from starting and Run returns ctx.Err().
func (r *Runner) Run(ctx context.Context, inputs []string) (Summary, error) {
	start := r.clock().Now()
	var (
		mu       sync.Mutex
		summary  Summary
		failures []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, r.Workers))

	for _, in := range inputs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out, err := r.outputFor(in)
			var res fileOutcome
			if err == nil {
				res, err = r.processFile(gctx, in, out)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
					return err
				}
				summary.Failed++
				failures = append(failures, &FileError{Path: in, Err: err})
				return nil
			}
			summary.Processed++
			summary.Points += res.points
			summary.Outputs = append(summary.Outputs, res.output)
			return nil
		})
	}

	waitErr := g.Wait()
	summary.Elapsed = r.clock().Since(start)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	if waitErr != nil {
		return summary, waitErr
	}

	monitoring.Logf("Flattened %d of %d files (%s points) in %s",
		summary.Processed, len(inputs), units.FormatCount(summary.Points), summary.Elapsed)
	if len(failures) > 0 {
		return summary, fmt.Errorf("%d of %d files failed: %w", len(failures), len(inputs), errors.Join(failures...))
	}
	return summary, nil
}

// RunFile flattens a single input into out.
func (r *Runner) RunFile(ctx context.Context, in, out string) (Summary, error) {
	start := r.clock().Now()
	res, err := r.processFile(ctx, in, out)
	summary := Summary{Elapsed: r.clock().Since(start)}
	if err != nil {
		summary.Failed = 1
		return summary, &FileError{Path: in, Err: err}
	}
	summary.Processed = 1
	summary.Points = res.points
	summary.Outputs = []string{res.output}
	return summary, nil
}

func (r *Runner) outputFor(in string) (string, error) {
	dir := r.OutDir
	if dir == "" {
		dir = filepath.Join(filepath.Dir(in), DefaultOutputDir)
	}
	out := OutputPath(in, dir, r.Suffix)
	if err := security.CheckContained(out, dir); err != nil {
		return "", err
	}
	return out, nil
}

func (r *Runner) clock() timeutil.Clock {
	if r.Clock == nil {
		return timeutil.RealClock{}
	}
	return r.Clock
}

// processFile runs LOAD, flatten and PERSIST for one file, then the
// optional diagnostics and ledger hooks. Hook failures are logged only.
func (r *Runner) processFile(ctx context.Context, in, out string) (fileOutcome, error) {
	clk := r.clock()
	started := clk.Now()
	cfg := r.Flattener.Config()
	run := &sqlite.FlattenRun{
		InputPath:         in,
		SectionLen:        cfg.SectionLen,
		MinPointsPerCell:  cfg.MinPointsPerCell,
		PercentileDivisor: cfg.PercentileDivisor,
		StartedUnixNanos:  started.UnixNano(),
	}
	fail := func(err error) (fileOutcome, error) {
		monitoring.Warnf("Failed to flatten %s: %v", in, err)
		run.Status = sqlite.StatusFailed
		run.ErrorMessage = err.Error()
		run.FinishedUnixNanos = clk.Now().UnixNano()
		r.record(run)
		return fileOutcome{}, err
	}

	if filepath.Clean(in) == filepath.Clean(out) {
		return fail(fmt.Errorf("%s: %w", out, ErrOverwriteInput))
	}

	monitoring.Logf("Now flattening %s...", in)
	cloud, err := pcd.ReadFile(r.FS, in, pcd.Options{})
	if err != nil {
		return fail(fmt.Errorf("load: %w", err))
	}
	run.PointCount = len(cloud.Points)
	run.SkippedLines = cloud.Skipped
	monitoring.Logf("Loaded %s data points from %s", units.FormatCount(len(cloud.Points)), in)
	if cloud.Skipped > 0 {
		monitoring.Warnf("Skipped %d malformed lines in %s", cloud.Skipped, in)
	}

	res, err := r.Flattener.Flatten(ctx, cloud.Points)
	if err != nil {
		if ctx.Err() != nil {
			return fileOutcome{}, err
		}
		return fail(fmt.Errorf("flatten: %w", err))
	}
	monitoring.Debugf("Full pointcloud bbox: %s", res.BBox)
	monitoring.Debugf("Grid %dx%d of %s cells, %d estimated", res.Grid.Height, res.Grid.Width,
		units.FormatMetres(res.Grid.SectionLen), res.EstimatedCells)
	if res.NonFinite > 0 {
		monitoring.Warnf("Left %d non-finite points unadjusted in %s", res.NonFinite, in)
	}
	run.GridHeight = res.Grid.Height
	run.GridWidth = res.Grid.Width
	run.EstimatedCells = res.EstimatedCells
	run.BBoxMinX, run.BBoxMinY = res.BBox.MinX, res.BBox.MinY
	run.BBoxMaxX, run.BBoxMaxY = res.BBox.MaxX, res.BBox.MaxY

	if err := r.FS.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fail(fmt.Errorf("create output dir: %w", err))
	}
	if err := pcd.WriteFile(r.FS, out, cloud); err != nil {
		return fail(fmt.Errorf("persist: %w", err))
	}
	run.OutputPath = out
	monitoring.Logf("Computations finished, wrote output to %s in %s", out, clk.Since(started))

	if r.Diagnostics != nil {
		files, err := r.Diagnostics.Write(in, res, cloud.Points)
		if err != nil {
			monitoring.Warnf("Diagnostics for %s failed: %v", in, err)
		} else {
			monitoring.Debugf("Diagnostics for %s: %v", in, files)
		}
	}

	if r.Ledger != nil {
		s := monitor.Summarise(res, cloud.Points)
		if s.EstimatedCells > 0 {
			run.FloorMean = &s.FloorMean
			run.FloorStdDev = &s.FloorStdDev
		}
		if s.Points > 0 {
			run.ZStdDev = &s.ZStdDev
		}
		monitoring.Debugf("%s: %s", in, s)
	}
	run.Status = sqlite.StatusOK
	run.FinishedUnixNanos = clk.Now().UnixNano()
	r.record(run)

	return fileOutcome{output: out, points: len(cloud.Points)}, nil
}

func (r *Runner) record(run *sqlite.FlattenRun) {
	if r.Ledger == nil {
		return
	}
	if err := r.Ledger.Insert(run); err != nil {
		monitoring.Warnf("Failed to record run for %s: %v", run.InputPath, err)
	}
}
