// Package pcd reads and writes Point Cloud Data files.
//
// Responsibilities: parsing the PCD header, decoding ASCII bodies and
// (through github.com/seqsense/pcdeditor/pcd) binary and binary_compressed
// bodies into flatten.Point values, and re-emitting a cloud with any extra
// per-point fields left untouched.
// Key types: Cloud, Header, Field.
//
// Dependency rule: pcd depends on flatten for the point type and on fsutil
// for file access. It never estimates or modifies geometry.
package pcd
