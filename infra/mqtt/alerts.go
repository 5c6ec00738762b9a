package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/aqforecast/core/events"
	"github.com/kilianp07/aqforecast/infra/logger"
	"github.com/kilianp07/aqforecast/internal/eventbus"
)

// Alert is the payload sent when a forecast crosses the threshold.
type Alert struct {
	AlertID   string    `json:"alert_id"`
	StationID string    `json:"station_id"`
	PM25      float64   `json:"pm25"`
	ValidFrom time.Time `json:"valid_from"`
}

// Publisher is the transport used by the notifier.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Notifier turns forecast batches into MQTT alerts.
type Notifier struct {
	pub       Publisher
	prefix    string
	threshold float64
	log       logger.Logger
}

// NewNotifier creates a Notifier. cfg supplies the topic prefix and threshold.
func NewNotifier(pub Publisher, cfg Config, log logger.Logger) *Notifier {
	cfg.SetDefaults()
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Notifier{pub: pub, prefix: cfg.TopicPrefix, threshold: cfg.AlertThreshold, log: log}
}

// Topic returns the alert topic of a station.
func (n *Notifier) Topic(stationID string) string {
	return n.prefix + "/" + stationID
}

// Notify publishes one alert per published forecast at or above the
// threshold and returns the alerts that were sent.
func (n *Notifier) Notify(b events.ForecastBatch) []Alert {
	var sent []Alert
	for _, r := range b.Results {
		if r.Status != "ok" || r.PM25 < n.threshold {
			continue
		}
		a := Alert{AlertID: uuid.NewString(), StationID: r.StationID, PM25: r.PM25, ValidFrom: r.ValidFrom}
		payload, err := json.Marshal(a)
		if err != nil {
			n.log.Errorf("encode alert for station %s: %v", r.StationID, err)
			continue
		}
		if err := n.pub.Publish(n.Topic(r.StationID), payload); err != nil {
			n.log.Errorf("alert for station %s: %v", r.StationID, err)
			continue
		}
		n.log.Infof("alert %s sent for station %s (%.2f)", a.AlertID, r.StationID, r.PM25)
		sent = append(sent, a)
	}
	return sent
}

// Listen sends alerts for every ForecastBatch published on bus.
func (n *Notifier) Listen(ctx context.Context, bus eventbus.EventBus) <-chan struct{} {
	return eventbus.Consume(ctx, bus, func(ev eventbus.Event) {
		if b, ok := ev.(events.ForecastBatch); ok {
			n.Notify(b)
		}
	})
}
