// Package infra groups the adapters that connect the forecasting core to
// the outside world: the observation database, the NGSI-LD broker, metrics
// backends, MQTT alerts and error reporting. Adapters implement interfaces
// declared by the core packages.
package infra
