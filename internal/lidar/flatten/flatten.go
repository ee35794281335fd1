package flatten

import (
	"context"
	"fmt"

	"github.com/banshee-data/groundflat/internal/monitoring"
)

// Result describes one completed flatten operation.
type Result struct {
	BBox           BoundingBox
	Grid           Grid
	Floors         *FloorHeightGrid
	Points         int
	NonFinite      int // points with a NaN or infinite coordinate, left as read
	EstimatedCells int
	Config         Config
}

// Flattener runs the flatten pipeline with a fixed Config.
type Flattener struct {
	cfg Config
}

// NewFlattener validates cfg and returns a Flattener.
func NewFlattener(cfg Config) (*Flattener, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flatten config: %w", err)
	}
	return &Flattener{cfg: cfg}, nil
}

// Config returns the tunables in use.
func (f *Flattener) Config() Config {
	return f.cfg
}

// Flatten estimates the ground under points and adjusts every point in
// place. Each stage completes over all points before the next starts; ctx
// is only consulted between stages.
func (f *Flattener) Flatten(ctx context.Context, points []Point) (*Result, error) {
	bbox := ComputeBoundingBox(points)
	monitoring.Debugf("flatten: %d points, bbox %s", len(points), bbox)

	g := NewGrid(f.cfg.SectionLen)
	h, w := g.ComputeDimensions(bbox)
	monitoring.Debugf("flatten: grid %dx%d, section %g", h, w, f.cfg.SectionLen)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bins := BinPoints(points, g)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	floors := EstimateFloors(bins, f.cfg.MinPointsPerCell, f.cfg.PercentileDivisor)
	res := &Result{
		BBox:           bbox,
		Grid:           *g,
		Floors:         floors,
		Points:         len(points),
		NonFinite:      countNonFinite(points),
		EstimatedCells: floors.EstimatedCells(f.cfg.MinPointsPerCell),
		Config:         f.cfg,
	}
	if f.cfg.Verbose {
		monitoring.Logf("Grid blocks' sizes:\n%s", res.CountTable())
		monitoring.Logf("Ground zs:\n%s", res.FloorTable())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	AdjustPoints(points, g, floors)
	monitoring.Debugf("flatten: adjusted %d points, %d/%d cells estimated", len(points), res.EstimatedCells, h*w)
	return res, nil
}

// Flatten runs a single flatten operation with cfg.
func Flatten(points []Point, cfg Config) (*Result, error) {
	f, err := NewFlattener(cfg)
	if err != nil {
		return nil, err
	}
	return f.Flatten(context.Background(), points)
}

func countNonFinite(points []Point) int {
	n := 0
	for _, p := range points {
		if !p.Finite() {
			n++
		}
	}
	return n
}
