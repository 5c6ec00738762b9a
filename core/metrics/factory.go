package metrics

import (
	"fmt"

	"github.com/kilianp07/aqforecast/core/factory"
)

var sinkRegistry = factory.NewRegistry[MetricsSink]()

// singleton lists sink types that own process-wide state, such as the
// default Prometheus registerer, and so may appear only once.
var singleton = map[string]bool{"prometheus": true}

// RegisterMetricsSink adds a metrics sink factory identified by name.
func RegisterMetricsSink(name string, f factory.Factory[MetricsSink]) error {
	return sinkRegistry.Register(name, f)
}

// SinkTypes lists the registered sink types.
func SinkTypes() []string { return sinkRegistry.Types() }

// NewMetricsSink builds the configured sinks. No configuration yields a
// NopSink; several are combined into a MultiSink.
func NewMetricsSink(cfgs []factory.ModuleConfig) (MetricsSink, error) {
	seen := map[string]bool{}
	for i, c := range cfgs {
		if singleton[c.Type] && seen[c.Type] {
			return nil, fmt.Errorf("sink %d: %s configured twice", i, c.Type)
		}
		seen[c.Type] = true
	}
	sinks := make([]MetricsSink, 0, len(cfgs))
	for i, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			return nil, fmt.Errorf("sink %d (%s): %w", i, c.Type, err)
		}
		sinks = append(sinks, s)
	}
	switch len(sinks) {
	case 0:
		return NopSink{}, nil
	case 1:
		return sinks[0], nil
	}
	return NewMultiSink(sinks...), nil
}
