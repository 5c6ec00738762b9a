package monitoring

import "time"

// Monitor forwards failures to an error tracker.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	// CapturePanic reports a value recovered from a panic. The caller has
	// already recovered; implementations must not re-panic.
	CapturePanic(v any, tags map[string]string)
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) CapturePanic(any, map[string]string)       {}
func (NopMonitor) Flush(time.Duration)                       {}

var current Monitor = NopMonitor{}

// Init sets the process-wide monitor. A nil monitor restores the no-op one.
func Init(m Monitor) {
	if m == nil {
		m = NopMonitor{}
	}
	current = m
}

// Current returns the process-wide monitor.
func Current() Monitor { return current }

// CaptureException records the error with optional tags.
func CaptureException(err error, tags map[string]string) {
	if err != nil {
		current.CaptureException(err, tags)
	}
}

// Flush waits up to d for buffered reports to be sent.
func Flush(d time.Duration) { current.Flush(d) }
