// Package units provides human-readable formatting for counts and lengths
// reported in logs and summaries.
package units

import (
	"fmt"
	"math"
)

// FormatCount renders n with a k/M/G suffix once it reaches a thousand,
// e.g. 1234567 -> "1.2 M". Smaller values are printed as plain integers.
func FormatCount(n int) string {
	abs := math.Abs(float64(n))
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("%.1f G", float64(n)/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.1f M", float64(n)/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.1f k", float64(n)/1e3)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// FormatMetres renders a length in metres with centimetre precision.
func FormatMetres(m float64) string {
	return fmt.Sprintf("%.2f m", m)
}
