package pcd

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/groundflat/internal/monitoring"
	"github.com/banshee-data/groundflat/internal/units"
)

// Write encodes c in its header's DATA mode.
//
// ASCII clouds keep their header lines as read, except that WIDTH and
// POINTS are set to the current point count and HEIGHT becomes 1 if that
// count differs from the one declared. Binary and binary_compressed clouds
// are encoded by pcdeditor with a regenerated header.
func Write(w io.Writer, c *Cloud) error {
	bw := bufio.NewWriter(w)
	h := &c.Header

	if h.Data == DataBinary || h.Data == DataBinaryCompressed {
		if err := c.writeBinary(bw); err != nil {
			return err
		}
	} else {
		for _, line := range headerLines(h, len(c.Points)) {
			if _, err := bw.WriteString(line + "\n"); err != nil {
				return fmt.Errorf("write header: %w", err)
			}
		}
		if err := c.writeASCII(bw); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

func headerLines(h *Header, n int) []string {
	resized := n != h.expectedPoints()
	out := make([]string, 0, len(h.Lines))
	for _, line := range h.Lines {
		tokens := strings.Fields(line)
		if len(tokens) == 0 {
			out = append(out, line)
			continue
		}
		switch strings.ToUpper(tokens[0]) {
		case "WIDTH", "POINTS":
			line = tokens[0] + " " + strconv.Itoa(n)
		case "HEIGHT":
			if resized {
				line = tokens[0] + " 1"
			}
		}
		out = append(out, line)
	}
	return out
}

func (c *Cloud) writeASCII(bw *bufio.Writer) error {
	h := &c.Header
	cols, width := h.columns()
	xi, yi, zi := cols[h.FieldIndex("x")], cols[h.FieldIndex("y")], cols[h.FieldIndex("z")]
	ii := -1
	if k := h.FieldIndex("intensity"); k >= 0 {
		ii = cols[k]
	}

	tokens := make([]string, width)
	for i, p := range c.Points {
		if i < len(c.rows) && len(c.rows[i]) == width {
			copy(tokens, c.rows[i])
		} else {
			for j := range tokens {
				tokens[j] = "0"
			}
		}
		tokens[xi] = formatFloat(p.X)
		tokens[yi] = formatFloat(p.Y)
		tokens[zi] = formatFloat(p.Z)
		if ii >= 0 && !sameIntensity(tokens[ii], p.Intensity) {
			tokens[ii] = strconv.Itoa(p.Intensity)
		}
		if _, err := bw.WriteString(strings.Join(tokens, " ") + "\n"); err != nil {
			return fmt.Errorf("write point %d: %w", i, err)
		}
		if (i+1)%progressEvery == 0 {
			monitoring.Debugf("Wrote %s lines", units.FormatCount(i+1))
		}
	}
	return nil
}

// sameIntensity reports whether the original token still decodes to v, in
// which case it is written back verbatim.
func sameIntensity(token string, v int) bool {
	f, err := strconv.ParseFloat(token, 64)
	return err == nil && intensityFrom(f) == v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
