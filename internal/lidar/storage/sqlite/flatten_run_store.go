package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Run status values stored in flatten_runs.status.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// ErrRunNotFound is returned by Get when no run has the requested id.
var ErrRunNotFound = errors.New("flatten run not found")

// FlattenRun is one ledger row: a single input file processed by the batch
// runner.
type FlattenRun struct {
	RunID        string `json:"run_id"`
	InputPath    string `json:"input_path"`
	OutputPath   string `json:"output_path,omitempty"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`

	PointCount     int `json:"point_count"`
	SkippedLines   int `json:"skipped_lines"`
	GridHeight     int `json:"grid_height"`
	GridWidth      int `json:"grid_width"`
	EstimatedCells int `json:"estimated_cells"`

	BBoxMinX float64 `json:"bbox_min_x"`
	BBoxMinY float64 `json:"bbox_min_y"`
	BBoxMaxX float64 `json:"bbox_max_x"`
	BBoxMaxY float64 `json:"bbox_max_y"`

	SectionLen        float64 `json:"section_len"`
	MinPointsPerCell  int     `json:"min_points_per_cell"`
	PercentileDivisor int     `json:"percentile_divisor"`

	// Summary statistics; nil when the run failed before flattening.
	FloorMean   *float64 `json:"floor_mean,omitempty"`
	FloorStdDev *float64 `json:"floor_stddev,omitempty"`
	ZStdDev     *float64 `json:"z_stddev,omitempty"`

	StartedUnixNanos  int64 `json:"started_unix_nanos"`
	FinishedUnixNanos int64 `json:"finished_unix_nanos"`
}

// FlattenRunStore provides persistence for flatten runs. It is safe for
// concurrent use by batch workers.
type FlattenRunStore struct {
	db *sql.DB
	mu sync.Mutex // serialises writers on the single sqlite file
}

// NewFlattenRunStore creates a new FlattenRunStore.
func NewFlattenRunStore(db *sql.DB) *FlattenRunStore {
	return &FlattenRunStore{db: db}
}

// Insert records a run. If run.RunID is empty, a new UUID is generated.
// An empty status is stored as "ok".
func (s *FlattenRunStore) Insert(run *FlattenRun) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = StatusOK
	}

	query := `
		INSERT INTO flatten_runs (
			run_id, input_path, output_path, status, error_message,
			point_count, skipped_lines, grid_height, grid_width, estimated_cells,
			bbox_min_x, bbox_min_y, bbox_max_x, bbox_max_y,
			section_len, min_points_per_cell, percentile_divisor,
			floor_mean, floor_stddev, z_stddev,
			started_unix_nanos, finished_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(query,
		run.RunID,
		run.InputPath,
		run.OutputPath,
		run.Status,
		nullString(run.ErrorMessage),
		run.PointCount,
		run.SkippedLines,
		run.GridHeight,
		run.GridWidth,
		run.EstimatedCells,
		run.BBoxMinX,
		run.BBoxMinY,
		run.BBoxMaxX,
		run.BBoxMaxY,
		run.SectionLen,
		run.MinPointsPerCell,
		run.PercentileDivisor,
		nullFloat64(run.FloorMean),
		nullFloat64(run.FloorStdDev),
		nullFloat64(run.ZStdDev),
		run.StartedUnixNanos,
		run.FinishedUnixNanos,
	)
	if err != nil {
		return fmt.Errorf("insert flatten run: %w", err)
	}
	return nil
}

const selectRunColumns = `
	SELECT run_id, input_path, output_path, status, error_message,
	       point_count, skipped_lines, grid_height, grid_width, estimated_cells,
	       bbox_min_x, bbox_min_y, bbox_max_x, bbox_max_y,
	       section_len, min_points_per_cell, percentile_divisor,
	       floor_mean, floor_stddev, z_stddev,
	       started_unix_nanos, finished_unix_nanos
	FROM flatten_runs
`

// Get returns the run with the given id, or ErrRunNotFound.
func (s *FlattenRunStore) Get(runID string) (*FlattenRun, error) {
	row := s.db.QueryRow(selectRunColumns+" WHERE run_id = ?", runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get flatten run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get flatten run %s: %w", runID, err)
	}
	return run, nil
}

// ListRecent returns up to limit runs, most recently started first.
func (s *FlattenRunStore) ListRecent(limit int) ([]*FlattenRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(selectRunColumns+" ORDER BY started_unix_nanos DESC, run_id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list flatten runs: %w", err)
	}
	defer rows.Close()

	var runs []*FlattenRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan flatten run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*FlattenRun, error) {
	r := &FlattenRun{}
	var errMsg sql.NullString
	var floorMean, floorStdDev, zStdDev sql.NullFloat64

	err := row.Scan(
		&r.RunID, &r.InputPath, &r.OutputPath, &r.Status, &errMsg,
		&r.PointCount, &r.SkippedLines, &r.GridHeight, &r.GridWidth, &r.EstimatedCells,
		&r.BBoxMinX, &r.BBoxMinY, &r.BBoxMaxX, &r.BBoxMaxY,
		&r.SectionLen, &r.MinPointsPerCell, &r.PercentileDivisor,
		&floorMean, &floorStdDev, &zStdDev,
		&r.StartedUnixNanos, &r.FinishedUnixNanos,
	)
	if err != nil {
		return nil, err
	}

	if errMsg.Valid {
		r.ErrorMessage = errMsg.String
	}
	r.FloorMean = floatPtr(floorMean)
	r.FloorStdDev = floatPtr(floorStdDev)
	r.ZStdDev = floatPtr(zStdDev)
	return r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat64(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
