package flatten

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/banshee-data/groundflat/internal/config"
	"github.com/banshee-data/groundflat/internal/monitoring"
)

func mustFlatten(t *testing.T, points []Point, cfg Config) *Result {
	t.Helper()
	res, err := Flatten(points, cfg)
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}
	return res
}

func TestFlatten_ThreePointScenario(t *testing.T) {
	points := []Point{
		{X: 0, Y: 0, Z: 5, Intensity: 10},
		{X: 0, Y: 0, Z: 5, Intensity: 20},
		{X: 0, Y: 0, Z: 15, Intensity: 30},
	}
	cfg := DefaultConfig()
	cfg.MinPointsPerCell = 2

	res := mustFlatten(t, points, cfg)
	if got := res.Floors.At(0, 0); got != 5 {
		t.Errorf("floor = %g, want 5", got)
	}
	if res.EstimatedCells != 1 {
		t.Errorf("EstimatedCells = %d, want 1", res.EstimatedCells)
	}
	if res.Points != 3 {
		t.Errorf("Points = %d, want 3", res.Points)
	}

	want := []Point{
		{Z: 0, Intensity: 10},
		{Z: 0, Intensity: 20},
		{Z: 10, Intensity: 30},
	}
	if diff := cmp.Diff(want, points, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
}

func TestFlatten_EmptyCloud(t *testing.T) {
	res := mustFlatten(t, nil, DefaultConfig())

	if res.BBox != (BoundingBox{}) {
		t.Errorf("bbox = %v, want zero box", res.BBox)
	}
	if res.Grid.Height != 1 || res.Grid.Width != 1 {
		t.Errorf("grid = %dx%d, want 1x1", res.Grid.Height, res.Grid.Width)
	}
	if res.EstimatedCells != 0 {
		t.Errorf("EstimatedCells = %d, want 0", res.EstimatedCells)
	}
	if got := res.Floors.At(0, 0); got != 0 {
		t.Errorf("floor = %g, want 0", got)
	}
}

func TestFlatten_SparseCloudIsUntouched(t *testing.T) {
	points := []Point{
		{X: 3, Y: 4, Z: 12.5, Intensity: 1},
		{X: 55, Y: 41, Z: -3, Intensity: 2},
	}
	want := append([]Point(nil), points...)
	want[1].Z = 3 // magnitude survives the rotation step

	mustFlatten(t, points, DefaultConfig())
	if diff := cmp.Diff(want, points); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
}

func TestFlatten_NonFinitePoints(t *testing.T) {
	// 200 finite heights 0..199 and 20 NaN heights share one cell.
	points := make([]Point, 0, 222)
	for i := range 200 {
		points = append(points, Point{X: 1, Y: 1, Z: float64(i)})
	}
	for range 20 {
		points = append(points, Point{X: 1, Y: 1, Z: math.NaN()})
	}
	points = append(points, Point{X: math.Inf(1), Y: 1, Z: 5}, Point{X: 2, Y: math.NaN(), Z: 5})

	res := mustFlatten(t, points, DefaultConfig())
	if got := res.Floors.At(0, 0); got != 10 {
		t.Errorf("floor = %g, want 10", got)
	}
	if res.NonFinite != 22 {
		t.Errorf("NonFinite = %d, want 22", res.NonFinite)
	}
	if res.Grid.Height != 1 || res.Grid.Width != 1 {
		t.Errorf("grid = %dx%d, want 1x1", res.Grid.Height, res.Grid.Width)
	}

	for i, p := range points[:200] {
		if math.IsNaN(p.Z) || math.Abs(p.Z-math.Abs(float64(i)-10)) > 1e-12 {
			t.Fatalf("point %d: Z = %g, want %g", i, p.Z, math.Abs(float64(i)-10))
		}
	}
	for i, p := range points[200:220] {
		if !math.IsNaN(p.Z) || p.X != 1 || p.Y != 1 {
			t.Errorf("NaN point %d was modified: %+v", i, p)
		}
	}
	if p := points[220]; !math.IsInf(p.X, 1) || p.Z != 5 {
		t.Errorf("infinite point was modified: %+v", p)
	}
}

// slopedPlane samples z = 0.1*x + 2 on an 80x80 unit lattice, giving every
// 20x20 cell 400 points.
func slopedPlane() []Point {
	points := make([]Point, 0, 80*80)
	for x := 0; x < 80; x++ {
		for y := 0; y < 80; y++ {
			points = append(points, Point{X: float64(x), Y: float64(y), Z: 0.1*float64(x) + 2, Intensity: x + y})
		}
	}
	return points
}

func TestFlatten_SlopedPlane(t *testing.T) {
	points := slopedPlane()
	res := mustFlatten(t, points, DefaultConfig())

	if res.Grid.Height != 4 || res.Grid.Width != 4 {
		t.Fatalf("grid = %dx%d, want 4x4", res.Grid.Height, res.Grid.Width)
	}
	if res.EstimatedCells != 16 {
		t.Errorf("EstimatedCells = %d, want 16", res.EstimatedCells)
	}

	// Rank 400/20 = 20 lands on the second x column of each cell.
	for col := 0; col < 4; col++ {
		want := 0.1*float64(20*col+1) + 2
		for row := 0; row < 4; row++ {
			if got := res.Floors.At(row, col); math.Abs(got-want) > 1e-12 {
				t.Errorf("cell (%d,%d): floor = %g, want %g", row, col, got, want)
			}
		}
	}

	// Between cell centres the floor tracks the plane 0.9 below it, with a
	// tilt of atan(2/20) along x and none along y.
	residual := 0.9
	wantZ := math.Hypot(residual, residual*0.1)
	for i, p := range points {
		ox, oy := float64(i/80), float64(i%80)
		if ox < 10 || ox >= 70 {
			continue
		}
		if math.Abs(p.Z-wantZ) > 1e-9 || math.Abs(p.X-(ox+residual*0.1)) > 1e-9 || p.Y != oy {
			t.Fatalf("point %d = %+v, want X %g Y %g Z %g", i, p, ox+residual*0.1, oy, wantZ)
		}
	}
}

func TestFlatten_ReducesHeightSpread(t *testing.T) {
	points := slopedPlane()
	before := zSpread(points)
	mustFlatten(t, points, DefaultConfig())
	after := zSpread(points)

	if !(after < before/4) {
		t.Errorf("spread after flattening %g, before %g", after, before)
	}
}

func zSpread(points []Point) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		lo = math.Min(lo, p.Z)
		hi = math.Max(hi, p.Z)
	}
	return hi - lo
}

func TestFlatten_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero section", Config{SectionLen: 0, MinPointsPerCell: 1, PercentileDivisor: 20}},
		{"NaN section", Config{SectionLen: math.NaN(), MinPointsPerCell: 1, PercentileDivisor: 20}},
		{"negative min points", Config{SectionLen: 1, MinPointsPerCell: -1, PercentileDivisor: 20}},
		{"zero divisor", Config{SectionLen: 1, MinPointsPerCell: 1, PercentileDivisor: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFlattener(tt.cfg)
			if err == nil || !strings.Contains(err.Error(), "invalid flatten config") {
				t.Errorf("expected invalid flatten config error, got %v", err)
			}
		})
	}
}

func TestFlattener_CancelledContextLeavesPointsAlone(t *testing.T) {
	f, err := NewFlattener(DefaultConfig())
	if err != nil {
		t.Fatalf("NewFlattener failed: %v", err)
	}

	points := slopedPlane()
	want := append([]Point(nil), points...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Flatten(ctx, points); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if diff := cmp.Diff(want, points); diff != "" {
		t.Errorf("points changed (-want +got):\n%s", diff)
	}
}

func TestFlattener_VerboseLogsTables(t *testing.T) {
	var logs []string
	orig := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		logs = append(logs, fmt.Sprintf(format, v...))
	})
	defer func() { monitoring.Logf = orig }()

	cfg := DefaultConfig()
	cfg.MinPointsPerCell = 2
	cfg.Verbose = true
	mustFlatten(t, []Point{{Z: 1}, {Z: 2}, {Z: 3}}, cfg)

	joined := strings.Join(logs, "\n")
	for _, want := range []string{"Grid blocks' sizes:", "       3 ", "Ground zs:"} {
		if !strings.Contains(joined, want) {
			t.Errorf("logs missing %q:\n%s", want, joined)
		}
	}
}

func TestResultTables(t *testing.T) {
	res := &Result{Floors: newTestFloors([][]float64{{1.5, 0}, {12.25, 3}})}
	if got := res.CountTable(); got != "       1        1 \n       1        1 \n" {
		t.Errorf("CountTable = %q", got)
	}
	if got := res.FloorTable(); got != "    1.5       0 \n  12.25       3 \n" {
		t.Errorf("FloorTable = %q", got)
	}
}

func TestConfigFromTuning(t *testing.T) {
	sl, mp, div, verbose := 5.0, 10, 4, true
	tests := []struct {
		name string
		in   *config.TuningConfig
		want Config
	}{
		{
			name: "all set",
			in: &config.TuningConfig{
				SectionLen:        &sl,
				MinPointsPerCell:  &mp,
				PercentileDivisor: &div,
				Verbose:           &verbose,
			},
			want: Config{SectionLen: 5, MinPointsPerCell: 10, PercentileDivisor: 4, Verbose: true},
		},
		{name: "empty falls back to defaults", in: config.EmptyTuningConfig(), want: DefaultConfig()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConfigFromTuning(tt.in); got != tt.want {
				t.Errorf("ConfigFromTuning = %+v, want %+v", got, tt.want)
			}
		})
	}
}
