package pcd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	pcdeditor "github.com/seqsense/pcdeditor/pcd"

	"github.com/banshee-data/groundflat/internal/lidar/flatten"
	"github.com/banshee-data/groundflat/internal/monitoring"
	"github.com/banshee-data/groundflat/internal/units"
)

// progressEvery is how often, in body lines or records, a load progress
// message is logged at debug level.
const progressEvery = 1_000_000

// maxLineBytes bounds one ASCII body line.
const maxLineBytes = 1 << 20

// maxPrealloc caps how many points are reserved from the header before any
// body line has been read.
const maxPrealloc = 1 << 16

// Cloud is a decoded point cloud. The unexported fields hold each record as
// it was read so that fields other than x, y, z and intensity survive a
// rewrite unchanged.
type Cloud struct {
	Header  Header
	Points  []flatten.Point
	Skipped int

	rows [][]string            // ascii tokens per point
	raw  []byte                // binary records, RecordSize bytes per point
	bin  *pcdeditor.PointCloud // decoded binary cloud, reused when writing
}

// NewCloud wraps in-memory points with a standard header.
func NewCloud(points []flatten.Point, mode DataMode) *Cloud {
	return &Cloud{Header: NewHeader(mode, len(points)), Points: points}
}

// SkipFunc is told about each body line that could not be parsed. line is
// 1-based and counts header lines.
type SkipFunc func(line int, text string, err error)

// Options tune Read.
type Options struct {
	// OnSkip receives malformed lines. Nil logs them through monitoring.Logf.
	OnSkip SkipFunc
}

func logSkip(line int, text string, err error) {
	monitoring.Logf("Error parsing line %d: %v", line, err)
}

// Read decodes a PCD stream, logging malformed lines.
func Read(r io.Reader) (*Cloud, error) {
	return ReadWithOptions(r, Options{})
}

// ReadWithOptions decodes a PCD stream.
//
// Lines before the first one that starts with a digit or '-' are header
// lines; a DATA line ends the header. A file with no header at all is
// read as ASCII x y z intensity.
func ReadWithOptions(r io.Reader, opts Options) (*Cloud, error) {
	onSkip := opts.OnSkip
	if onSkip == nil {
		onSkip = logSkip
	}

	br := bufio.NewReader(r)
	c := &Cloud{}
	lineNo := 0
	var pending string // first body line when the header had no DATA line
	hasPending := false

	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read header: %w", err)
		}
		if line == "" && errors.Is(err, io.EOF) {
			break
		}
		lineNo++
		line = strings.TrimRight(line, "\r\n")

		if startsBody(line) {
			pending, hasPending = line, true
			break
		}
		if perr := c.Header.parseLine(line); perr != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, perr)
		}
		if c.Header.Data != "" || errors.Is(err, io.EOF) {
			break
		}
	}

	if err := c.Header.finish(); err != nil {
		return nil, err
	}

	switch c.Header.Data {
	case DataBinary, DataBinaryCompressed:
		if err := c.readBinary(br); err != nil {
			return nil, err
		}
	default:
		if err := c.readASCII(br, lineNo, pending, hasPending, onSkip); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func startsBody(line string) bool {
	if line == "" {
		return false
	}
	ch := line[0]
	return ch == '-' || (ch >= '0' && ch <= '9')
}

func (c *Cloud) readASCII(br *bufio.Reader, lineNo int, pending string, hasPending bool, onSkip SkipFunc) error {
	h := &c.Header
	cols, width := h.columns()
	xi, yi, zi := cols[h.FieldIndex("x")], cols[h.FieldIndex("y")], cols[h.FieldIndex("z")]
	ii := -1
	if k := h.FieldIndex("intensity"); k >= 0 {
		ii = cols[k]
	}

	if n := min(h.expectedPoints(), maxPrealloc); n > 0 {
		c.Points = make([]flatten.Point, 0, n)
		c.rows = make([][]string, 0, n)
	}

	handle := func(n int, line string) {
		if strings.TrimSpace(line) == "" {
			return
		}
		p, tokens, err := parseASCII(line, width, xi, yi, zi, ii)
		if err != nil {
			c.Skipped++
			onSkip(n, line, err)
			return
		}
		c.Points = append(c.Points, p)
		c.rows = append(c.rows, tokens)
		if len(c.Points)%progressEvery == 0 {
			monitoring.Debugf("Loaded %s lines", units.FormatCount(n))
		}
	}

	if hasPending {
		handle(lineNo, pending)
	}

	sc := bufio.NewScanner(br)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		lineNo++
		handle(lineNo, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read body after line %d: %w", lineNo, err)
	}
	return nil
}

func parseASCII(line string, width, xi, yi, zi, ii int) (flatten.Point, []string, error) {
	tokens := strings.Fields(line)
	if len(tokens) != width {
		return flatten.Point{}, nil, fmt.Errorf("want %d values, got %d", width, len(tokens))
	}
	var p flatten.Point
	var err error
	if p.X, err = strconv.ParseFloat(tokens[xi], 64); err != nil {
		return p, nil, fmt.Errorf("x: %w", err)
	}
	if p.Y, err = strconv.ParseFloat(tokens[yi], 64); err != nil {
		return p, nil, fmt.Errorf("y: %w", err)
	}
	if p.Z, err = strconv.ParseFloat(tokens[zi], 64); err != nil {
		return p, nil, fmt.Errorf("z: %w", err)
	}
	if ii >= 0 {
		v, err := strconv.ParseFloat(tokens[ii], 64)
		if err != nil {
			return p, nil, fmt.Errorf("intensity: %w", err)
		}
		p.Intensity = intensityFrom(v)
	}
	return p, tokens, nil
}

// intensityFrom truncates a decoded intensity towards zero.
func intensityFrom(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(v)
}
