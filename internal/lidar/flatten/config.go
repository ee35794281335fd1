package flatten

import (
	"fmt"

	"github.com/banshee-data/groundflat/internal/config"
)

// Defaults match the values the tool has always shipped with.
const (
	DefaultSectionLen        = 20.0
	DefaultMinPointsPerCell  = 100
	DefaultPercentileDivisor = 20
)

// Config holds the tunables of a flatten operation.
type Config struct {
	SectionLen        float64 // Cell side length in cloud units (default: 20)
	MinPointsPerCell  int     // Cells with this many points or fewer get floor 0 (default: 100)
	PercentileDivisor int     // Floor rank is count/PercentileDivisor, 20 ≈ 5th percentile (default: 20)
	Verbose           bool    // Log per-cell count and floor tables
}

// DefaultConfig returns a Config with the standard tunables.
func DefaultConfig() Config {
	return Config{
		SectionLen:        DefaultSectionLen,
		MinPointsPerCell:  DefaultMinPointsPerCell,
		PercentileDivisor: DefaultPercentileDivisor,
	}
}

// ConfigFromTuning builds a Config from a loaded TuningConfig. Unset fields
// fall back to the TuningConfig getters' defaults.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		SectionLen:        cfg.GetSectionLen(),
		MinPointsPerCell:  cfg.GetMinPointsPerCell(),
		PercentileDivisor: cfg.GetPercentileDivisor(),
		Verbose:           cfg.GetVerbose(),
	}
}

// Validate rejects tunables that would divide by zero or index out of range.
func (c Config) Validate() error {
	if !(c.SectionLen > 0) {
		return fmt.Errorf("section length must be positive, got %g", c.SectionLen)
	}
	if c.MinPointsPerCell < 0 {
		return fmt.Errorf("min points per cell must be non-negative, got %d", c.MinPointsPerCell)
	}
	if c.PercentileDivisor < 1 {
		return fmt.Errorf("percentile divisor must be at least 1, got %d", c.PercentileDivisor)
	}
	return nil
}
