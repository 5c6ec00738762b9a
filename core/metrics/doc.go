// Package metrics defines the sink interfaces used to observe training runs,
// predict batches, broker synchronisation and scheduled jobs. Sinks such as
// PromSink and InfluxSink live in infra/metrics and can be combined with
// NewMultiSink. The factory helpers return a MultiSink automatically when
// multiple sinks are configured.
package metrics
