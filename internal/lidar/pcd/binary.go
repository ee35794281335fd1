package pcd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	pcdeditor "github.com/seqsense/pcdeditor/pcd"

	"github.com/banshee-data/groundflat/internal/lidar/flatten"
	"github.com/banshee-data/groundflat/internal/monitoring"
	"github.com/banshee-data/groundflat/internal/units"
)

// lzfMaxExpansion bounds how much larger than its compressed block a
// binary_compressed body may claim to decode to.
const lzfMaxExpansion = 100

// readBinary hands binary and binary_compressed bodies to pcdeditor and
// reads x, y, z and intensity out of the decoded record buffer. The body is
// read from the stream before anything is sized from the header.
func (c *Cloud) readBinary(br io.Reader) error {
	h := &c.Header
	n := h.expectedPoints()
	want := h.bodyBytes()
	if want == 0 {
		return nil
	}

	var body []byte
	var err error
	if h.Data == DataBinary {
		body, err = io.ReadAll(io.LimitReader(br, int64(want)))
		if err != nil {
			return fmt.Errorf("read binary body: %w", err)
		}
		if len(body) < want {
			return fmt.Errorf("%w: want %d bytes for %d points, got %d", ErrTruncated, want, n, len(body))
		}
	} else {
		body, err = io.ReadAll(io.LimitReader(br, int64(8+want+want/16+64)))
		if err != nil {
			return fmt.Errorf("read compressed body: %w", err)
		}
		if err := checkCompressed(body, want); err != nil {
			return err
		}
	}

	src := io.MultiReader(strings.NewReader(h.canonical(n, h.Data)), bytes.NewReader(body))
	pc, err := pcdeditor.Unmarshal(src)
	if err != nil {
		return fmt.Errorf("decode %s body: %w", h.Data, err)
	}
	if len(pc.Data) < want {
		return fmt.Errorf("%w: decoded %d of %d bytes", ErrTruncated, len(pc.Data), want)
	}
	c.bin = pc
	c.raw = pc.Data[:want]

	size := h.RecordSize()
	offs := h.offsets()
	xf, yf, zf := h.FieldIndex("x"), h.FieldIndex("y"), h.FieldIndex("z")
	inf := h.FieldIndex("intensity")

	c.Points = make([]flatten.Point, n)
	for i := range n {
		rec := c.raw[i*size : (i+1)*size]
		p := &c.Points[i]
		p.X = decodeField(rec, h.Fields[xf], offs[xf])
		p.Y = decodeField(rec, h.Fields[yf], offs[yf])
		p.Z = decodeField(rec, h.Fields[zf], offs[zf])
		if inf >= 0 {
			p.Intensity = intensityFrom(decodeField(rec, h.Fields[inf], offs[inf]))
		}
		if (i+1)%progressEvery == 0 {
			monitoring.Debugf("Loaded %s records", units.FormatCount(i+1))
		}
	}
	return nil
}

// checkCompressed validates the size prefix of a binary_compressed body
// against the header before the block is decompressed.
func checkCompressed(body []byte, want int) error {
	if len(body) < 8 {
		return fmt.Errorf("%w: compressed body has no size prefix", ErrTruncated)
	}
	compressed := int(binary.LittleEndian.Uint32(body[0:4]))
	uncompressed := int(binary.LittleEndian.Uint32(body[4:8]))
	if uncompressed != want {
		return fmt.Errorf("%w: compressed body decodes to %d bytes, header declares %d", ErrBadHeader, uncompressed, want)
	}
	if compressed > len(body)-8 {
		return fmt.Errorf("%w: want %d compressed bytes, got %d", ErrTruncated, compressed, len(body)-8)
	}
	if compressed*lzfMaxExpansion < want {
		return fmt.Errorf("%w: %d compressed bytes cannot hold %d", ErrBadHeader, compressed, want)
	}
	return nil
}

// writeBinary re-encodes every record with the current x, y, z and
// intensity and lets pcdeditor encode the header and body. Bytes of any
// other field are copied from the record that was read.
func (c *Cloud) writeBinary(w io.Writer) error {
	h := &c.Header
	n := len(c.Points)
	size := h.RecordSize()
	offs := h.offsets()
	xf, yf, zf := h.FieldIndex("x"), h.FieldIndex("y"), h.FieldIndex("z")
	inf := h.FieldIndex("intensity")

	data := make([]byte, n*size)
	for i, p := range c.Points {
		rec := data[i*size : (i+1)*size]
		if (i+1)*size <= len(c.raw) {
			copy(rec, c.raw[i*size:(i+1)*size])
		}
		encodeField(rec, h.Fields[xf], offs[xf], p.X)
		encodeField(rec, h.Fields[yf], offs[yf], p.Y)
		encodeField(rec, h.Fields[zf], offs[zf], p.Z)
		if inf >= 0 {
			f := h.Fields[inf]
			if intensityFrom(decodeField(rec, f, offs[inf])) != p.Intensity {
				encodeField(rec, f, offs[inf], float64(p.Intensity))
			}
		}
	}

	pc := c.bin
	if pc == nil {
		var err error
		src := io.MultiReader(strings.NewReader(h.canonical(n, DataBinary)), bytes.NewReader(data))
		if pc, err = pcdeditor.Unmarshal(src); err != nil {
			return fmt.Errorf("build binary cloud: %w", err)
		}
	}
	out := *pc
	out.Width, out.Height = h.shape(n)
	out.Points = n
	out.Data = data

	if err := pcdeditor.Marshal(&out, w); err != nil {
		return fmt.Errorf("write binary body: %w", err)
	}
	if n >= progressEvery {
		monitoring.Debugf("Wrote %s records", units.FormatCount(n))
	}
	return nil
}

func decodeField(rec []byte, f Field, off int) float64 {
	return decodeScalar(rec[off:off+f.Size], f.Type, f.Size)
}

func encodeField(rec []byte, f Field, off int, v float64) {
	encodeScalar(rec[off:off+f.Size], f.Type, f.Size, v)
}
