package pcd

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/groundflat/internal/fsutil"
	"github.com/banshee-data/groundflat/internal/lidar/flatten"
	"github.com/banshee-data/groundflat/internal/monitoring"
)

const asciiCloud = `# .PCD v0.7 - Point Cloud Data file format
VERSION 0.7
FIELDS x y z intensity rgb
SIZE 4 4 4 4 4
TYPE F F F U F
COUNT 1 1 1 1 1
WIDTH 3
HEIGHT 1
VIEWPOINT 0 0 0 1 0 0 0
POINTS 3
DATA ascii
1.5 2.25 -0.75 12 4.2108e+06
-3 4 5.5 200 4.2108e+06
0 0 10 7 1
`

func mustRead(t *testing.T, input []byte) *Cloud {
	t.Helper()
	c, err := Read(bytes.NewReader(input))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	return c
}

func mustWrite(t *testing.T, c *Cloud) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := Write(&buf, c); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	return buf.Bytes()
}

func TestReadASCII(t *testing.T) {
	c := mustRead(t, []byte(asciiCloud))

	want := []flatten.Point{
		{X: 1.5, Y: 2.25, Z: -0.75, Intensity: 12},
		{X: -3, Y: 4, Z: 5.5, Intensity: 200},
		{X: 0, Y: 0, Z: 10, Intensity: 7},
	}
	if diff := cmp.Diff(want, c.Points); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
	if c.Header.Data != DataASCII {
		t.Errorf("Expected DATA ascii, got %q", c.Header.Data)
	}
	if c.Header.Version != "0.7" {
		t.Errorf("Expected version 0.7, got %q", c.Header.Version)
	}
	if c.Header.Points != 3 {
		t.Errorf("Expected POINTS 3, got %d", c.Header.Points)
	}
	if c.Header.Viewpoint != "0 0 0 1 0 0 0" {
		t.Errorf("Unexpected viewpoint %q", c.Header.Viewpoint)
	}
	if len(c.Header.Lines) != 11 {
		t.Errorf("Expected 11 header lines, got %d", len(c.Header.Lines))
	}
	if got := c.Header.Fields[4]; got != (Field{Name: "rgb", Size: 4, Type: 'F', Count: 1}) {
		t.Errorf("Unexpected rgb field %+v", got)
	}
	if c.Skipped != 0 {
		t.Errorf("Expected no skipped lines, got %d", c.Skipped)
	}
}

func TestWriteASCII_Unchanged(t *testing.T) {
	c := mustRead(t, []byte(asciiCloud))
	if got := string(mustWrite(t, c)); got != asciiCloud {
		t.Errorf("Round trip changed the file:\n%s", got)
	}
}

func TestWriteASCII_AdjustedKeepsExtraFields(t *testing.T) {
	c := mustRead(t, []byte(asciiCloud))
	for i := range c.Points {
		c.Points[i].Z = 0.5
		c.Points[i].X += 1
	}

	lines := strings.Split(strings.TrimSuffix(string(mustWrite(t, c)), "\n"), "\n")
	if len(lines) != 14 {
		t.Fatalf("Expected 14 lines, got %d", len(lines))
	}
	want := []string{
		"2.5 2.25 0.5 12 4.2108e+06",
		"-2 4 0.5 200 4.2108e+06",
		"1 0 0.5 7 1",
	}
	if diff := cmp.Diff(want, lines[11:]); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestReadASCII_MalformedLinesSkipped(t *testing.T) {
	input := "VERSION .7\nFIELDS x y z intensity\nDATA ascii\n" +
		"1 2 3 4\n" +
		"1 2 oops 4\n" +
		"5 6 7\n" +
		"-1 -2 -3 9\n" +
		"garbage line\n"

	var skipped []int
	c, err := ReadWithOptions(strings.NewReader(input), Options{
		OnSkip: func(line int, text string, err error) {
			if err == nil {
				t.Errorf("Expected an error for skipped line %d", line)
			}
			skipped = append(skipped, line)
		},
	})
	if err != nil {
		t.Fatalf("ReadWithOptions failed: %v", err)
	}

	if diff := cmp.Diff([]int{5, 6, 8}, skipped); diff != "" {
		t.Errorf("skipped lines mismatch (-want +got):\n%s", diff)
	}
	if c.Skipped != 3 {
		t.Errorf("Expected 3 skipped, got %d", c.Skipped)
	}
	want := []flatten.Point{
		{X: 1, Y: 2, Z: 3, Intensity: 4},
		{X: -1, Y: -2, Z: -3, Intensity: 9},
	}
	if diff := cmp.Diff(want, c.Points); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
}

func TestRead_DefaultSkipLogs(t *testing.T) {
	orig := monitoring.Logf
	defer func() { monitoring.Logf = orig }()
	var logged []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		logged = append(logged, fmt.Sprintf(format, v...))
	})

	c := mustRead(t, []byte("DATA ascii\n1 2 3 4\nbad\n"))
	if len(c.Points) != 1 {
		t.Errorf("Expected 1 point, got %d", len(c.Points))
	}
	if len(logged) != 1 {
		t.Fatalf("Expected 1 log line, got %d", len(logged))
	}
	if !strings.Contains(logged[0], "Error parsing line 3") {
		t.Errorf("Unexpected log line %q", logged[0])
	}
}

func TestReadASCII_Headerless(t *testing.T) {
	input := "1 2 3 4\n-5 6 7 8\n"
	c := mustRead(t, []byte(input))

	want := []flatten.Point{
		{X: 1, Y: 2, Z: 3, Intensity: 4},
		{X: -5, Y: 6, Z: 7, Intensity: 8},
	}
	if diff := cmp.Diff(want, c.Points); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
	if len(c.Header.Lines) != 0 {
		t.Errorf("Expected no header lines, got %v", c.Header.Lines)
	}
	if got := string(mustWrite(t, c)); got != input {
		t.Errorf("Expected %q, got %q", input, got)
	}
}

func TestReadASCII_MissingIntensity(t *testing.T) {
	c := mustRead(t, []byte("FIELDS x y z\nDATA ascii\n1 2 3\r\n4 5 6\n"))
	want := []flatten.Point{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}}
	if diff := cmp.Diff(want, c.Points); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}

	c.Points[0].Intensity = 99
	if got := string(mustWrite(t, c)); !strings.HasSuffix(got, "1 2 3\n4 5 6\n") {
		t.Errorf("Intensity leaked into a cloud without the field:\n%s", got)
	}
}

func TestReadASCII_FloatIntensityTruncates(t *testing.T) {
	c := mustRead(t, []byte("FIELDS x y z intensity\nDATA ascii\n0 0 0 12.7\n"))
	if c.Points[0].Intensity != 12 {
		t.Errorf("Expected intensity 12, got %d", c.Points[0].Intensity)
	}
	if got := string(mustWrite(t, c)); !strings.HasSuffix(got, "0 0 0 12.7\n") {
		t.Errorf("Unchanged intensity token was rewritten:\n%s", got)
	}
}

func TestRead_EmptyInput(t *testing.T) {
	c := mustRead(t, nil)
	if len(c.Points) != 0 {
		t.Errorf("Expected no points, got %d", len(c.Points))
	}
	if c.Header.Data != DataASCII {
		t.Errorf("Expected DATA ascii, got %q", c.Header.Data)
	}
}

func TestRead_HeaderErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"unknown data", "FIELDS x y z\nDATA hex\n", ErrUnsupportedData},
		{"missing z", "FIELDS x y intensity\nDATA ascii\n", ErrMissingField},
		{"bad size", "FIELDS x y z\nSIZE 4 4 3\nDATA ascii\n", ErrBadHeader},
		{"bad type", "FIELDS x y z\nTYPE F F Q\nDATA ascii\n", ErrBadHeader},
		{"bad points", "FIELDS x y z\nPOINTS many\nDATA ascii\n", ErrBadHeader},
		{"binary without size", "FIELDS x y z\nDATA binary\n", ErrBadHeader},
		{"vector x", "FIELDS x y z\nCOUNT 2 1 1\nDATA ascii\n", ErrBadHeader},
		{"huge count", "FIELDS x y z rgb\nCOUNT 1 1 1 9223372036854775807\nDATA ascii\n", ErrBadHeader},
		{"ascii points overflow", "FIELDS x y z\nPOINTS 9223372036854775807\nDATA ascii\n1 2 3\n", ErrBadHeader},
		{"binary points overflow", "FIELDS x y z\nSIZE 4 4 4\nTYPE F F F\nPOINTS 2305843009213693952\nDATA binary\n", ErrBadHeader},
		{"organised overflow", "FIELDS x y z\nWIDTH 1073741824\nHEIGHT 1073741824\nDATA ascii\n", ErrBadHeader},
		{"binary body too large", "FIELDS x y z\nSIZE 8 8 8\nTYPE F F F\nPOINTS 1073741824\nDATA binary\n", ErrBadHeader},
		{"compressed without body", "FIELDS x y z\nSIZE 4 4 4\nTYPE F F F\nPOINTS 2\nDATA binary_compressed\n", ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.input))
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestReadASCII_LargeDeclaredCountWithShortBody(t *testing.T) {
	c := mustRead(t, []byte("FIELDS x y z\nPOINTS 1000000000\nDATA ascii\n1 2 3\n"))
	if len(c.Points) != 1 {
		t.Fatalf("Expected 1 point, got %d", len(c.Points))
	}
	if cap(c.Points) > maxPrealloc {
		t.Errorf("Expected at most %d points reserved, got %d", maxPrealloc, cap(c.Points))
	}
}

func TestWrite_ResizedCloudUpdatesHeader(t *testing.T) {
	input := "VERSION .7\nFIELDS x y z intensity\nWIDTH 1\nHEIGHT 3\nPOINTS 3\nDATA ascii\n" +
		"1 1 1 1\n2 2 2 2\n3 3 3 3\n"
	c := mustRead(t, []byte(input))
	c.Points = c.Points[:2]

	want := "VERSION .7\nFIELDS x y z intensity\nWIDTH 2\nHEIGHT 1\nPOINTS 2\nDATA ascii\n" +
		"1 1 1 1\n2 2 2 2\n"
	if got := string(mustWrite(t, c)); got != want {
		t.Errorf("Expected:\n%s\ngot:\n%s", want, got)
	}
}

func binaryHeader(mode DataMode, points int) string {
	return "# binary test\n" +
		"VERSION .7\n" +
		"FIELDS x y z intensity ring\n" +
		"SIZE 4 4 4 2 1\n" +
		"TYPE F F F U U\n" +
		"COUNT 1 1 1 1 1\n" +
		fmt.Sprintf("WIDTH %d\n", points) +
		"HEIGHT 1\n" +
		"VIEWPOINT 0 0 0 1 0 0 0\n" +
		fmt.Sprintf("POINTS %d\n", points) +
		"DATA " + string(mode) + "\n"
}

type binaryRecord struct {
	X, Y, Z   float32
	Intensity uint16
	Ring      uint8
}

func binaryBody(t *testing.T, recs ...binaryRecord) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, r := range recs {
		if err := binary.Write(&buf, binary.LittleEndian, r); err != nil {
			t.Fatalf("binary.Write failed: %v", err)
		}
	}
	return buf.Bytes()
}

// compressedBody lays the records out one field after another and wraps
// them in literal-only LZF runs, which is a valid binary_compressed body.
func compressedBody(t *testing.T, recs ...binaryRecord) []byte {
	t.Helper()
	var soa bytes.Buffer
	le := binary.LittleEndian
	for _, r := range recs {
		_ = binary.Write(&soa, le, r.X)
	}
	for _, r := range recs {
		_ = binary.Write(&soa, le, r.Y)
	}
	for _, r := range recs {
		_ = binary.Write(&soa, le, r.Z)
	}
	for _, r := range recs {
		_ = binary.Write(&soa, le, r.Intensity)
	}
	for _, r := range recs {
		soa.WriteByte(r.Ring)
	}

	raw := soa.Bytes()
	var lzf bytes.Buffer
	for len(raw) > 0 {
		n := min(len(raw), 32)
		lzf.WriteByte(byte(n - 1))
		lzf.Write(raw[:n])
		raw = raw[n:]
	}

	var out bytes.Buffer
	_ = binary.Write(&out, le, uint32(lzf.Len()))
	_ = binary.Write(&out, le, uint32(soa.Len()))
	out.Write(lzf.Bytes())
	return out.Bytes()
}

var binaryPoints = []binaryRecord{
	{X: 1.5, Y: -2.25, Z: 3, Intensity: 100, Ring: 7},
	{X: 0.5, Y: 0.25, Z: -1, Intensity: 65535, Ring: 31},
}

func TestBinaryRoundTrip(t *testing.T) {
	body := binaryBody(t, binaryPoints...)
	if len(body) != 30 {
		t.Fatalf("Expected 30 body bytes, got %d", len(body))
	}

	c := mustRead(t, append([]byte(binaryHeader(DataBinary, 2)), body...))
	if got := c.Header.RecordSize(); got != 15 {
		t.Errorf("Expected record size 15, got %d", got)
	}
	want := []flatten.Point{
		{X: 1.5, Y: -2.25, Z: 3, Intensity: 100},
		{X: 0.5, Y: 0.25, Z: -1, Intensity: 65535},
	}
	if diff := cmp.Diff(want, c.Points); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}

	for i := range c.Points {
		c.Points[i].Z += 1
	}
	c.Points[1].Intensity = 70000

	again := mustRead(t, mustWrite(t, c))
	if again.Header.Data != DataBinary {
		t.Errorf("Expected DATA binary, got %q", again.Header.Data)
	}
	if again.Points[0].Z != 4 || again.Points[1].Z != 0 {
		t.Errorf("Expected adjusted z 4 and 0, got %v and %v", again.Points[0].Z, again.Points[1].Z)
	}
	if again.Points[1].Intensity != 65535 {
		t.Errorf("Expected U2 intensity to saturate at 65535, got %d", again.Points[1].Intensity)
	}

	ringOff := 14
	if again.raw[ringOff] != 7 || again.raw[15+ringOff] != 31 {
		t.Errorf("Expected ring bytes 7 and 31, got %d and %d", again.raw[ringOff], again.raw[15+ringOff])
	}
}

func TestBinaryCompressedRead(t *testing.T) {
	input := append([]byte(binaryHeader(DataBinaryCompressed, 2)), compressedBody(t, binaryPoints...)...)
	c := mustRead(t, input)

	want := []flatten.Point{
		{X: 1.5, Y: -2.25, Z: 3, Intensity: 100},
		{X: 0.5, Y: 0.25, Z: -1, Intensity: 65535},
	}
	if diff := cmp.Diff(want, c.Points); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}

	c.Points[0].Z = 0
	again := mustRead(t, mustWrite(t, c))
	if again.Points[0].Z != 0 || again.Points[1].Z != -1 {
		t.Errorf("Expected z 0 and -1 after rewrite, got %v and %v", again.Points[0].Z, again.Points[1].Z)
	}
	if again.raw[14] != 7 {
		t.Errorf("Expected ring 7 to survive, got %d", again.raw[14])
	}
}

func TestBinaryCompressedSizeChecks(t *testing.T) {
	good := compressedBody(t, binaryPoints...)

	wrongSize := bytes.Clone(good)
	binary.LittleEndian.PutUint32(wrongSize[4:8], 1<<20)

	shortBlock := good[:len(good)-5]

	tests := []struct {
		name string
		body []byte
		want error
	}{
		{"declared size disagrees with header", wrongSize, ErrBadHeader},
		{"block shorter than its prefix", shortBlock, ErrTruncated},
		{"no prefix", good[:4], ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(bytes.NewReader(append([]byte(binaryHeader(DataBinaryCompressed, 2)), tt.body...)))
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	// A tiny block cannot expand to a huge declared body.
	bomb := make([]byte, 9)
	binary.LittleEndian.PutUint32(bomb[0:4], 1)
	binary.LittleEndian.PutUint32(bomb[4:8], 15*1000)
	if err := checkCompressed(bomb, 15*1000); !errors.Is(err, ErrBadHeader) {
		t.Errorf("Expected ErrBadHeader, got %v", err)
	}
}

func TestBinaryTruncated(t *testing.T) {
	tests := []struct {
		name   string
		points int
		body   []byte
	}{
		{"short body", 2, binaryBody(t, binaryPoints...)[:20]},
		{"declared count far beyond stream", 1_000_000, binaryBody(t, binaryPoints...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(bytes.NewReader(append([]byte(binaryHeader(DataBinary, tt.points)), tt.body...)))
			if !errors.Is(err, ErrTruncated) {
				t.Errorf("Expected ErrTruncated, got %v", err)
			}
		})
	}
}

func TestNewCloudASCII(t *testing.T) {
	c := NewCloud([]flatten.Point{{X: 0.5, Y: 1.25, Z: -2, Intensity: 3}}, DataASCII)

	want := "# .PCD v.7 - Point Cloud Data file format\n" +
		"VERSION .7\n" +
		"FIELDS x y z intensity\n" +
		"SIZE 4 4 4 4\n" +
		"TYPE F F F I\n" +
		"COUNT 1 1 1 1\n" +
		"WIDTH 1\n" +
		"HEIGHT 1\n" +
		"VIEWPOINT 0 0 0 1 0 0 0\n" +
		"POINTS 1\n" +
		"DATA ascii\n" +
		"0.5 1.25 -2 3\n"
	if got := string(mustWrite(t, c)); got != want {
		t.Errorf("Expected:\n%s\ngot:\n%s", want, got)
	}
}

func TestFileRoundTrip_Binary(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	if err := mfs.MkdirAll("/out", 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	points := []flatten.Point{
		{X: 0.5, Y: 1.25, Z: -2, Intensity: 3},
		{X: 10, Y: 20, Z: 30, Intensity: -4},
	}
	if err := WriteFile(mfs, "/out/cloud.pcd", NewCloud(points, DataBinary)); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	got, err := ReadFile(mfs, "/out/cloud.pcd", Options{})
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if diff := cmp.Diff(points, got.Points); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
	if got.Header.Data != DataBinary {
		t.Errorf("Expected DATA binary, got %q", got.Header.Data)
	}
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(fsutil.NewMemoryFileSystem(), "/nope.pcd", Options{})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Expected fs.ErrNotExist, got %v", err)
	}
}

func TestWriteFile_MissingDir(t *testing.T) {
	err := WriteFile(fsutil.NewMemoryFileSystem(), "/no/dir/out.pcd", NewCloud(nil, DataASCII))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Expected fs.ErrNotExist, got %v", err)
	}
}

func TestScalarCodec(t *testing.T) {
	tests := []struct {
		typ  byte
		size int
		in   float64
		want float64
	}{
		{'F', 4, 1.25, 1.25},
		{'F', 8, math.Pi, math.Pi},
		{'I', 1, -5, -5},
		{'I', 1, -200, -128},
		{'I', 2, 40000, 32767},
		{'I', 4, -123456, -123456},
		{'I', 8, -9e15, -9e15},
		{'U', 1, 300, 255},
		{'U', 1, -3, 0},
		{'U', 2, 300, 300},
		{'U', 4, 2.6, 3},
		{'U', 8, 1 << 40, 1 << 40},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%c%d_%g", tt.typ, tt.size, tt.in), func(t *testing.T) {
			b := make([]byte, tt.size)
			encodeScalar(b, tt.typ, tt.size, tt.in)
			if got := decodeScalar(b, tt.typ, tt.size); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}
