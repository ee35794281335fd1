// Package monitor renders diagnostics for completed flatten operations.
//
// Responsibilities: PNG plots of the floor grid and of flattened heights
// (gonum/plot), an interactive HTML floor map (go-echarts), summary
// statistics (gonum/stat) and a plain-text per-file report.
// Key types: FloorPlotter, Summary, Diagnostics.
//
// Dependency rule: monitor reads flatten results and never mutates points.
// All output goes through fsutil.FileSystem or a caller-supplied io.Writer.
package monitor
