package monitoring

import (
	"errors"
	"time"

	"github.com/getsentry/sentry-go"

	coremon "github.com/kilianp07/aqforecast/core/monitoring"
)

// Config holds Sentry options. An empty DSN disables reporting.
type Config struct {
	DSN              string  `json:"dsn"`
	Environment      string  `json:"environment"`
	Release          string  `json:"release"`
	SampleRate       float64 `json:"sample_rate"`
	TracesSampleRate float64 `json:"traces_sample_rate"`
	// Tags are attached to every event, e.g. the deployment region.
	Tags map[string]string `json:"tags"`
}

func (c Config) Validate() error {
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return errors.New("sentry.sample_rate must be within [0,1]")
	}
	if c.TracesSampleRate < 0 || c.TracesSampleRate > 1 {
		return errors.New("sentry.traces_sample_rate must be within [0,1]")
	}
	return nil
}

// NewSentryMonitor initializes the Sentry client and returns a Monitor
// backed by a dedicated hub. Without a DSN a no-op monitor is returned.
func NewSentryMonitor(cfg Config) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       cfg.SampleRate,
		TracesSampleRate: cfg.TracesSampleRate,
		ServerName:       "aqforecast",
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, err
	}
	scope := sentry.NewScope()
	scope.SetTags(cfg.Tags)
	return &sentryMonitor{hub: sentry.NewHub(client, scope)}, nil
}

type sentryMonitor struct {
	hub *sentry.Hub
}

func (s *sentryMonitor) withTags(tags map[string]string, fn func(*sentry.Hub)) {
	hub := s.hub.Clone()
	hub.Scope().SetTags(tags)
	fn(hub)
}

func (s *sentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	s.withTags(tags, func(h *sentry.Hub) { h.CaptureException(err) })
}

func (s *sentryMonitor) CapturePanic(v any, tags map[string]string) {
	s.withTags(tags, func(h *sentry.Hub) { h.Recover(v) })
}

func (s *sentryMonitor) Flush(timeout time.Duration) { s.hub.Flush(timeout) }
