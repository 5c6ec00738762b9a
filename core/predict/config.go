package predict

import (
	"fmt"
	"time"
)

// Padding policies for stations with a short history.
const (
	// PaddingPad repeats the earliest available value up to the window length.
	PaddingPad = "pad"
	// PaddingStrict skips the station.
	PaddingStrict = "strict"
)

// Config controls inference.
type Config struct {
	// Window must match the window length of the trained bundle. Zero accepts
	// whatever the bundle was trained with.
	Window  int           `json:"window"`
	Slot    time.Duration `json:"slot"`
	Padding string        `json:"padding"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Slot == 0 {
		c.Slot = 30 * time.Minute
	}
	if c.Padding == "" {
		c.Padding = PaddingPad
	}
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if c.Window < 0 {
		return fmt.Errorf("window must not be negative")
	}
	if c.Slot <= 0 {
		return fmt.Errorf("slot must be positive")
	}
	switch c.Padding {
	case PaddingPad, PaddingStrict:
	default:
		return fmt.Errorf("unknown padding %q", c.Padding)
	}
	return nil
}
