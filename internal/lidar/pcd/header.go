package pcd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DataMode is the value of the DATA header line.
type DataMode string

const (
	DataASCII            DataMode = "ascii"
	DataBinary           DataMode = "binary"
	DataBinaryCompressed DataMode = "binary_compressed"
)

var (
	// ErrUnsupportedData is returned for DATA modes the codec cannot decode.
	ErrUnsupportedData = errors.New("pcd: unsupported DATA mode")
	// ErrMissingField is returned when x, y or z is not declared.
	ErrMissingField = errors.New("pcd: required field missing")
	// ErrTruncated is returned when a binary body is shorter than declared.
	ErrTruncated = errors.New("pcd: truncated binary body")
	// ErrBadHeader is returned for header lines whose values do not parse
	// or declare more data than a cloud may hold.
	ErrBadHeader = errors.New("pcd: malformed header")
)

const (
	// maxPoints bounds POINTS, WIDTH and HEIGHT.
	maxPoints = 1 << 30
	// maxFieldCount bounds a single COUNT entry.
	maxFieldCount = 1 << 16
	// maxBodyBytes bounds the decoded size of a binary body.
	maxBodyBytes = 1 << 32
)

// Field is one FIELDS entry together with its SIZE, TYPE and COUNT.
type Field struct {
	Name  string
	Size  int
	Type  byte // 'F', 'I' or 'U'
	Count int
}

// Header is the parsed PCD header. Lines keeps every header line as read,
// comments included, so Write can reproduce it.
type Header struct {
	Version   string
	Fields    []Field
	Width     int
	Height    int
	Viewpoint string
	Points    int
	Data      DataMode
	Lines     []string
}

var defaultFieldNames = []string{"x", "y", "z", "intensity"}

// FieldIndex returns the position of the named field or -1.
func (h *Header) FieldIndex(name string) int {
	for i, f := range h.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// RecordSize is the byte length of one binary point record.
func (h *Header) RecordSize() int {
	n := 0
	for _, f := range h.Fields {
		n += f.Size * f.Count
	}
	return n
}

// offsets returns the byte offset of each field within a binary record.
func (h *Header) offsets() []int {
	out := make([]int, len(h.Fields))
	off := 0
	for i, f := range h.Fields {
		out[i] = off
		off += f.Size * f.Count
	}
	return out
}

// columns returns the ASCII token index of each field and the total number
// of tokens on a body line.
func (h *Header) columns() ([]int, int) {
	out := make([]int, len(h.Fields))
	col := 0
	for i, f := range h.Fields {
		out[i] = col
		col += f.Count
	}
	return out, col
}

// expectedPoints is POINTS when present, else WIDTH*HEIGHT.
func (h *Header) expectedPoints() int {
	if h.Points > 0 {
		return h.Points
	}
	return h.Width * h.Height
}

// parseLine applies one keyword line to the header. Unknown keywords are
// kept in Lines only.
func (h *Header) parseLine(line string) error {
	h.Lines = append(h.Lines, line)

	tokens := strings.Fields(line)
	if len(tokens) == 0 || strings.HasPrefix(tokens[0], "#") {
		return nil
	}
	key, vals := strings.ToUpper(tokens[0]), tokens[1:]

	switch key {
	case "VERSION":
		h.Version = strings.Join(vals, " ")
	case "FIELDS", "COLUMNS":
		h.ensureFields(len(vals))
		for i, v := range vals {
			h.Fields[i].Name = v
		}
	case "SIZE":
		h.ensureFields(len(vals))
		for i, v := range vals {
			n, err := strconv.Atoi(v)
			if err != nil || (n != 1 && n != 2 && n != 4 && n != 8) {
				return fmt.Errorf("%w: SIZE %q", ErrBadHeader, v)
			}
			h.Fields[i].Size = n
		}
	case "TYPE":
		h.ensureFields(len(vals))
		for i, v := range vals {
			t := strings.ToUpper(v)
			if t != "F" && t != "I" && t != "U" {
				return fmt.Errorf("%w: TYPE %q", ErrBadHeader, v)
			}
			h.Fields[i].Type = t[0]
		}
	case "COUNT":
		h.ensureFields(len(vals))
		for i, v := range vals {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > maxFieldCount {
				return fmt.Errorf("%w: COUNT %q", ErrBadHeader, v)
			}
			h.Fields[i].Count = n
		}
	case "WIDTH", "HEIGHT", "POINTS":
		if len(vals) != 1 {
			return fmt.Errorf("%w: %s needs one value", ErrBadHeader, key)
		}
		n, err := strconv.Atoi(vals[0])
		if err != nil || n < 0 || n > maxPoints {
			return fmt.Errorf("%w: %s %q", ErrBadHeader, key, vals[0])
		}
		switch key {
		case "WIDTH":
			h.Width = n
		case "HEIGHT":
			h.Height = n
		default:
			h.Points = n
		}
	case "VIEWPOINT":
		h.Viewpoint = strings.Join(vals, " ")
	case "DATA":
		if len(vals) != 1 {
			return fmt.Errorf("%w: DATA needs one value", ErrBadHeader)
		}
		h.Data = DataMode(strings.ToLower(vals[0]))
	}
	return nil
}

func (h *Header) ensureFields(n int) {
	for len(h.Fields) < n {
		h.Fields = append(h.Fields, Field{})
	}
}

// finish fills defaults and checks that the header can be decoded.
func (h *Header) finish() error {
	if len(h.Fields) == 0 {
		for _, name := range defaultFieldNames {
			h.Fields = append(h.Fields, Field{Name: name})
		}
	}
	if h.Data == "" {
		h.Data = DataASCII
	}
	for i := range h.Fields {
		f := &h.Fields[i]
		if f.Count == 0 {
			f.Count = 1
		}
		if h.Data == DataASCII {
			if f.Size == 0 {
				f.Size = 4
			}
			if f.Type == 0 {
				f.Type = 'F'
			}
		}
	}

	switch h.Data {
	case DataASCII:
	case DataBinary, DataBinaryCompressed:
		for _, f := range h.Fields {
			if f.Size == 0 || f.Type == 0 {
				return fmt.Errorf("%w: field %q has no SIZE/TYPE", ErrBadHeader, f.Name)
			}
			if f.Type == 'F' && f.Size != 4 && f.Size != 8 {
				return fmt.Errorf("%w: float field %q with SIZE %d", ErrBadHeader, f.Name, f.Size)
			}
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedData, h.Data)
	}

	for _, name := range []string{"x", "y", "z"} {
		i := h.FieldIndex(name)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrMissingField, name)
		}
		if h.Fields[i].Count != 1 {
			return fmt.Errorf("%w: field %s has COUNT %d", ErrBadHeader, name, h.Fields[i].Count)
		}
	}
	if i := h.FieldIndex("intensity"); i >= 0 && h.Fields[i].Count != 1 {
		return fmt.Errorf("%w: field intensity has COUNT %d", ErrBadHeader, h.Fields[i].Count)
	}

	n := h.expectedPoints()
	if n > maxPoints {
		return fmt.Errorf("%w: %d points declared", ErrBadHeader, n)
	}
	if h.Data != DataASCII {
		size := h.RecordSize()
		if size == 0 {
			return fmt.Errorf("%w: zero-length records", ErrBadHeader)
		}
		if n > maxBodyBytes/size {
			return fmt.Errorf("%w: %d points of %d bytes exceed %d bytes", ErrBadHeader, n, size, maxBodyBytes)
		}
	}
	return nil
}

// bodyBytes is the decoded body length of a binary cloud. finish has
// already bounded it.
func (h *Header) bodyBytes() int {
	return h.expectedPoints() * h.RecordSize()
}

// shape keeps the declared WIDTH and HEIGHT while they still describe n
// points; otherwise the cloud becomes unorganised.
func (h *Header) shape(n int) (width, height int) {
	if h.Width > 0 && h.Height > 0 && h.Width*h.Height == n {
		return h.Width, h.Height
	}
	return n, 1
}

// canonical renders the header in the fixed keyword order the binary codec
// expects, describing n points.
func (h *Header) canonical(n int, mode DataMode) string {
	names := make([]string, len(h.Fields))
	sizes := make([]string, len(h.Fields))
	types := make([]string, len(h.Fields))
	counts := make([]string, len(h.Fields))
	for i, f := range h.Fields {
		names[i] = f.Name
		sizes[i] = strconv.Itoa(f.Size)
		types[i] = string(f.Type)
		counts[i] = strconv.Itoa(f.Count)
	}
	width, height := h.shape(n)
	viewpoint := h.Viewpoint
	if len(strings.Fields(viewpoint)) != 7 {
		viewpoint = "0 0 0 1 0 0 0"
	}

	var b strings.Builder
	b.WriteString("VERSION .7\n")
	b.WriteString("FIELDS " + strings.Join(names, " ") + "\n")
	b.WriteString("SIZE " + strings.Join(sizes, " ") + "\n")
	b.WriteString("TYPE " + strings.Join(types, " ") + "\n")
	b.WriteString("COUNT " + strings.Join(counts, " ") + "\n")
	fmt.Fprintf(&b, "WIDTH %d\nHEIGHT %d\n", width, height)
	b.WriteString("VIEWPOINT " + viewpoint + "\n")
	fmt.Fprintf(&b, "POINTS %d\nDATA %s\n", n, mode)
	return b.String()
}

// NewHeader builds a standard header for x y z intensity clouds created in
// memory rather than read from a file.
func NewHeader(mode DataMode, points int) Header {
	h := Header{
		Version: ".7",
		Fields: []Field{
			{Name: "x", Size: 4, Type: 'F', Count: 1},
			{Name: "y", Size: 4, Type: 'F', Count: 1},
			{Name: "z", Size: 4, Type: 'F', Count: 1},
			{Name: "intensity", Size: 4, Type: 'I', Count: 1},
		},
		Width:     points,
		Height:    1,
		Viewpoint: "0 0 0 1 0 0 0",
		Points:    points,
		Data:      mode,
	}
	h.Lines = []string{
		"# .PCD v.7 - Point Cloud Data file format",
		"VERSION .7",
		"FIELDS x y z intensity",
		"SIZE 4 4 4 4",
		"TYPE F F F I",
		"COUNT 1 1 1 1",
		fmt.Sprintf("WIDTH %d", points),
		"HEIGHT 1",
		"VIEWPOINT 0 0 0 1 0 0 0",
		fmt.Sprintf("POINTS %d", points),
		"DATA " + string(mode),
	}
	return h
}
