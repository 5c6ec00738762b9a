package broker

import (
	"errors"
	"math"
	"time"

	"github.com/kilianp07/aqforecast/core/model"
)

const (
	TypeForecast = "AirQualityForecast"
	TypeObserved = "AirQualityObserved"

	// DefaultContext is the JSON-LD context shared by both entity types.
	DefaultContext = "https://smartdatamodels.org/context.jsonld"
	// UnitPM25 is the unit code attached to PM2.5 properties.
	UnitPM25 = "µg/m³"
)

var (
	// ErrConflict is returned by a create that the broker refused because the
	// entity already exists or cannot be processed as a new entity.
	ErrConflict = errors.New("entity already exists")
	// ErrBrokerUnreachable wraps transport failures and an open breaker.
	ErrBrokerUnreachable = errors.New("broker unreachable")
	// ErrBrokerRejected is returned for any other non-success status.
	ErrBrokerRejected = errors.New("broker rejected request")
)

// Entity is a JSON-LD entity payload.
type Entity map[string]any

// ID returns the entity id or an empty string.
func (e Entity) ID() string {
	id, _ := e["id"].(string)
	return id
}

// Type returns the entity type or an empty string.
func (e Entity) Type() string {
	t, _ := e["type"].(string)
	return t
}

// EntityOptions controls how entity ids and contexts are rendered.
type EntityOptions struct {
	IDPrefix   string
	ContextURL string
}

func (o EntityOptions) context() []string {
	if o.ContextURL == "" {
		return []string{DefaultContext}
	}
	return []string{o.ContextURL}
}

// ForecastID returns the id of a station's forecast entity.
func ForecastID(prefix, stationID string) string {
	return "urn:ngsi-ld:" + TypeForecast + ":" + prefix + stationID
}

// ObservedID returns the id of a station's observed entity. It keeps the
// station URN used by the observation tables.
func ObservedID(prefix, stationID string) string {
	return "urn:ngsi-ld:AirQualityStation:" + prefix + stationID
}

// ForecastEntity builds the forecast entity of station st.
func ForecastEntity(st model.Station, f model.Forecast, opts EntityOptions) Entity {
	return Entity{
		"id":                  ForecastID(opts.IDPrefix, st.ID),
		"type":                TypeForecast,
		"location":            location(st),
		"validFrom":           dateTime(f.ValidFrom),
		"validTo":             dateTime(f.ValidTo),
		"forecastedPM25":      property(f.PM25, UnitPM25),
		"observationDateTime": dateTime(f.ObservedAt),
		"@context":            opts.context(),
	}
}

// ObservedEntity builds the observed entity that mirrors the forecast value
// for map consumers reading the live view.
func ObservedEntity(st model.Station, pm25 float64, at time.Time, opts EntityOptions) Entity {
	return Entity{
		"id":           ObservedID(opts.IDPrefix, st.ID),
		"type":         TypeObserved,
		"location":     location(st),
		"dateObserved": dateTime(at),
		"pm25":         property(pm25, UnitPM25),
		"aqi":          map[string]any{"type": "Property", "value": AQI(pm25)},
		"@context":     opts.context(),
	}
}

// AQI is the coarse index shown next to mirrored values.
func AQI(pm25 float64) int {
	return int(math.Trunc(pm25 * 2.5))
}

// MutableFields returns a copy of e without the identity, type and context
// keys. It is the body of an attribute patch.
func MutableFields(e Entity) Entity {
	out := make(Entity, len(e))
	for k, v := range e {
		switch k {
		case "id", "type", "@context":
			continue
		}
		out[k] = v
	}
	return out
}

func location(st model.Station) map[string]any {
	return map[string]any{
		"type": "GeoProperty",
		"value": map[string]any{
			"type":        "Point",
			"coordinates": []float64{st.Lon, st.Lat},
		},
	}
}

func dateTime(t time.Time) map[string]any {
	return map[string]any{
		"type": "Property",
		"value": map[string]any{
			"@type":  "DateTime",
			"@value": t.UTC().Format(time.RFC3339),
		},
	}
}

func property(v float64, unit string) map[string]any {
	return map[string]any{"type": "Property", "value": v, "unitCode": unit}
}
