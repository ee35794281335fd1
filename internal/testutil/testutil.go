// Package testutil provides point-cloud fixtures shared by package tests.
//
// It depends on flatten and pcd, so tests inside those two packages build
// their own fixtures instead.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/banshee-data/groundflat/internal/fsutil"
	"github.com/banshee-data/groundflat/internal/lidar/flatten"
	"github.com/banshee-data/groundflat/internal/lidar/pcd"
)

// Lattice returns an n x n grid of points one unit apart starting at the
// origin, with heights from z. Intensity is i+j so rewrites can be checked
// for intensity preservation.
func Lattice(n int, z func(x, y float64) float64) []flatten.Point {
	pts := make([]flatten.Point, 0, n*n)
	for i := range n {
		for j := range n {
			x, y := float64(i), float64(j)
			pts = append(pts, flatten.Point{X: x, Y: y, Z: z(x, y), Intensity: i + j})
		}
	}
	return pts
}

// Flat returns a height function for level ground at h.
func Flat(h float64) func(x, y float64) float64 {
	return func(float64, float64) float64 { return h }
}

// Slope returns a height function rising by dzdx per unit x.
func Slope(h, dzdx float64) func(x, y float64) float64 {
	return func(x, _ float64) float64 { return h + dzdx*x }
}

// WriteCloud writes pts to path on fsys as an ASCII PCD file, creating the
// parent directory.
func WriteCloud(t testing.TB, fsys fsutil.FileSystem, path string, pts []flatten.Point) {
	t.Helper()
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := pcd.WriteFile(fsys, path, pcd.NewCloud(pts, pcd.DataASCII)); err != nil {
		t.Fatalf("write cloud %s: %v", path, err)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
