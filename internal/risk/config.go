package risk

import "fmt"

const (
	// DefaultLowThreshold is the score at or above which an operation
	// is at least medium risk.
	DefaultLowThreshold = 0.3
	// DefaultHighThreshold is the score at or above which an operation
	// is high risk.
	DefaultHighThreshold = 0.7
	// DefaultBulkThreshold is the document count above which a bulk
	// operation gets the larger scope contribution.
	DefaultBulkThreshold = 10
)

// Config tunes the classifier per deployment.
type Config struct {
	LowThreshold  float64
	HighThreshold float64
	BulkThreshold int

	// SensitivityOverrides wins over the default table per field key.
	// Fields absent from both tables are low sensitivity.
	SensitivityOverrides map[string]Sensitivity
}

// DefaultConfig returns the config with all stock thresholds.
func DefaultConfig() Config {
	return Config{
		LowThreshold:  DefaultLowThreshold,
		HighThreshold: DefaultHighThreshold,
		BulkThreshold: DefaultBulkThreshold,
	}
}

func (c *Config) applyDefaults() {
	if c.LowThreshold == 0 {
		c.LowThreshold = DefaultLowThreshold
	}
	if c.HighThreshold == 0 {
		c.HighThreshold = DefaultHighThreshold
	}
	if c.BulkThreshold == 0 {
		c.BulkThreshold = DefaultBulkThreshold
	}
}

// Validate rejects threshold configurations that cannot produce a
// consistent level ordering.
func (c Config) Validate() error {
	if c.LowThreshold < 0 || c.LowThreshold > 1 {
		return fmt.Errorf("low threshold %.2f out of range [0,1]", c.LowThreshold)
	}
	if c.HighThreshold < 0 || c.HighThreshold > 1 {
		return fmt.Errorf("high threshold %.2f out of range [0,1]", c.HighThreshold)
	}
	if c.LowThreshold > c.HighThreshold {
		return fmt.Errorf("low threshold %.2f exceeds high threshold %.2f", c.LowThreshold, c.HighThreshold)
	}
	if c.BulkThreshold < 0 {
		return fmt.Errorf("bulk threshold %d must be non-negative", c.BulkThreshold)
	}
	for field, s := range c.SensitivityOverrides {
		switch s {
		case SensitivityLow, SensitivityMedium, SensitivityHigh:
		default:
			return fmt.Errorf("invalid sensitivity %q for field %q", s, field)
		}
	}
	return nil
}
