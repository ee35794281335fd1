package monitor

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/groundflat/internal/fsutil"
	"github.com/banshee-data/groundflat/internal/lidar/flatten"
	"github.com/banshee-data/groundflat/internal/security"
)

// Diagnostics writes per-file plots and reports into Dir.
type Diagnostics struct {
	FS      fsutil.FileSystem
	Dir     string
	Plotter *FloorPlotter
}

// NewDiagnostics returns a Diagnostics writing to dir on fsys.
func NewDiagnostics(fsys fsutil.FileSystem, dir string) *Diagnostics {
	return &Diagnostics{FS: fsys, Dir: dir, Plotter: NewFloorPlotter()}
}

// Write renders the diagnostics for one flattened input and returns the
// paths written: <stem>_floor.png, <stem>_floor.html, <stem>_z.png and
// <stem>_report.txt, where stem is the sanitised input base name.
func (d *Diagnostics) Write(input string, res *flatten.Result, points []flatten.Point) ([]string, error) {
	if err := d.FS.MkdirAll(d.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plot dir: %w", err)
	}
	stem := security.SanitizeFilename(strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)))
	path := func(suffix string) (string, error) {
		p := filepath.Join(d.Dir, stem+suffix)
		if err := security.CheckContained(p, d.Dir); err != nil {
			return "", err
		}
		return p, nil
	}

	var written []string
	summary := Summarise(res, points)
	title := filepath.Base(input)

	floorPNG, err := path("_floor.png")
	if err != nil {
		return written, err
	}
	if err := d.Plotter.SavePNG(d.FS, floorPNG, res, title); err != nil {
		return written, err
	}
	written = append(written, floorPNG)

	floorHTML, err := path("_floor.html")
	if err != nil {
		return written, err
	}
	var page bytes.Buffer
	if err := RenderFloorHeatmap(&page, res, title); err != nil {
		return written, err
	}
	if err := d.FS.WriteFile(floorHTML, page.Bytes(), 0o644); err != nil {
		return written, fmt.Errorf("write %s: %w", floorHTML, err)
	}
	written = append(written, floorHTML)

	if len(points) > 0 {
		zPNG, err := path("_z.png")
		if err != nil {
			return written, err
		}
		if err := d.Plotter.SaveHistogramPNG(d.FS, zPNG, points, title+" flattened z"); err != nil {
			return written, err
		}
		written = append(written, zPNG)
	}

	report, err := path("_report.txt")
	if err != nil {
		return written, err
	}
	var text bytes.Buffer
	if err := WriteReport(&text, input, res, summary); err != nil {
		return written, err
	}
	if err := d.FS.WriteFile(report, text.Bytes(), 0o644); err != nil {
		return written, fmt.Errorf("write %s: %w", report, err)
	}
	written = append(written, report)
	return written, nil
}
