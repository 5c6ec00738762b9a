package scheduler

import (
	"errors"
	"time"
)

// Config holds the cron expressions and loop timings.
type Config struct {
	PredictCron  string        `json:"predict_cron"`
	TrainCron    string        `json:"train_cron"`
	PollInterval time.Duration `json:"poll_interval"`
	Backoff      time.Duration `json:"backoff"`
}

// SetDefaults fills unset fields: predict every quarter hour, train daily
// at 02:00, poll every second and back off five seconds after a loop error.
func (c *Config) SetDefaults() {
	if c.PredictCron == "" {
		c.PredictCron = "0,15,30,45 * * * *"
	}
	if c.TrainCron == "" {
		c.TrainCron = "0 2 * * *"
	}
	if c.PollInterval == 0 {
		c.PollInterval = time.Second
	}
	if c.Backoff == 0 {
		c.Backoff = 5 * time.Second
	}
}

// Validate checks the timings. Cron expressions are validated when parsed.
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	if c.Backoff <= 0 {
		return errors.New("backoff must be positive")
	}
	return nil
}
