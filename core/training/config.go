package training

import (
	"errors"
	"time"
)

// Config holds the training hyperparameters.
type Config struct {
	Window       int           `json:"window"`
	Epochs       int           `json:"epochs"`
	LearningRate float64       `json:"learning_rate"`
	Hidden       int           `json:"hidden"`
	Step         time.Duration `json:"step"`
	ThresholdKm  float64       `json:"threshold_km"`
	Seed         uint64        `json:"seed"`
}

// SetDefaults fills unset fields with the production values.
func (c *Config) SetDefaults() {
	if c.Window == 0 {
		c.Window = 4
	}
	if c.Epochs == 0 {
		c.Epochs = 100
	}
	if c.LearningRate == 0 {
		c.LearningRate = 0.005
	}
	if c.Hidden == 0 {
		c.Hidden = 16
	}
	if c.Step == 0 {
		c.Step = time.Hour
	}
	if c.ThresholdKm == 0 {
		c.ThresholdKm = 15
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if c.Window <= 0 {
		return errors.New("window must be positive")
	}
	if c.Epochs <= 0 {
		return errors.New("epochs must be positive")
	}
	if c.LearningRate <= 0 {
		return errors.New("learning_rate must be positive")
	}
	if c.Hidden <= 0 {
		return errors.New("hidden must be positive")
	}
	if c.Step <= 0 {
		return errors.New("step must be positive")
	}
	if c.ThresholdKm <= 0 {
		return errors.New("threshold_km must be positive")
	}
	return nil
}
