// Package flatten owns ground-height estimation and removal for a single
// in-memory point cloud.
//
// Responsibilities: bounding box and grid construction, per-cell floor
// height estimation from a low z percentile, and the per-point transform
// that subtracts the interpolated floor and cancels the local tilt.
// Key types: Point, BoundingBox, Grid, FloorHeightGrid, Flattener.
//
// Dependency rule: flatten never performs file, database or network I/O.
// Callers hand it a []Point and persist the mutated slice themselves.
package flatten
