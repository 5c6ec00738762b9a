package ngsi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/aqforecast/core/broker"
	"github.com/kilianp07/aqforecast/core/model"
)

// fakeBroker mimics the create and attribute patch endpoints of an NGSI-LD
// broker without native upsert.
type fakeBroker struct {
	mu           sync.Mutex
	entities     map[string]map[string]any
	creates      int
	patches      int
	createStatus int // forces the status of create when non zero
	patchStatus  int
	lastPatch    map[string]any
	contentTypes []string
}

func newFakeBroker(t *testing.T) (*fakeBroker, *httptest.Server) {
	fb := &fakeBroker{entities: map[string]map[string]any{}}
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)
	return fb, srv
}

func (b *fakeBroker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contentTypes = append(b.contentTypes, r.Header.Get("Content-Type"))
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	switch {
	case r.Method == http.MethodPost && r.URL.Path == entitiesPath:
		b.creates++
		if b.createStatus != 0 {
			w.WriteHeader(b.createStatus)
			return
		}
		id, _ := body["id"].(string)
		if _, ok := b.entities[id]; ok {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"type":"https://uri.etsi.org/ngsi-ld/errors/AlreadyExists"}`))
			return
		}
		b.entities[id] = body
		w.WriteHeader(http.StatusCreated)
	case r.Method == http.MethodPatch && strings.HasSuffix(r.URL.Path, "/attrs"):
		b.patches++
		b.lastPatch = body
		if b.patchStatus != 0 {
			w.WriteHeader(b.patchStatus)
			return
		}
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, entitiesPath+"/"), "/attrs")
		ent, ok := b.entities[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		for k, v := range body {
			ent[k] = v
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func forecastEntity(pm float64) broker.Entity {
	st := model.Station{ID: "13756", Lat: 10.78, Lon: 106.70}
	from := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	return broker.ForecastEntity(st, model.Forecast{
		StationID: st.ID, PM25: pm, ValidFrom: from, ValidTo: from.Add(30 * time.Minute), ObservedAt: from.Add(-13 * time.Minute),
	}, broker.EntityOptions{IDPrefix: "OWM-"})
}

func newTestClient(t *testing.T, url string, cfg Config) *Client {
	t.Helper()
	cfg.URL = url
	c, err := NewClient(cfg, nil)
	require.NoError(t, err)
	return c
}

func TestUpsertCreatesThenPatches(t *testing.T) {
	fb, srv := newFakeBroker(t)
	c := newTestClient(t, srv.URL, Config{})
	ctx := context.Background()

	out, err := c.Upsert(ctx, forecastEntity(20))
	require.NoError(t, err)
	assert.Equal(t, broker.OutcomeCreated, out)
	assert.Equal(t, 1, fb.creates)
	assert.Equal(t, 0, fb.patches)

	out, err = c.Upsert(ctx, forecastEntity(35.5))
	require.NoError(t, err)
	assert.Equal(t, broker.OutcomeUpdated, out)
	assert.Equal(t, 2, fb.creates, "second call makes exactly one create attempt")
	assert.Equal(t, 1, fb.patches, "second call makes exactly one patch")

	assert.NotContains(t, fb.lastPatch, "id")
	assert.NotContains(t, fb.lastPatch, "type")
	assert.NotContains(t, fb.lastPatch, "@context")
	assert.Equal(t, []string{"application/ld+json", "application/ld+json", "application/json"}, fb.contentTypes)

	stored := fb.entities["urn:ngsi-ld:AirQualityForecast:OWM-13756"]
	assert.Equal(t, 35.5, stored["forecastedPM25"].(map[string]any)["value"])
	assert.Equal(t, "AirQualityForecast", stored["type"])
}

func TestUpsertPatchesOnUnprocessable(t *testing.T) {
	fb, srv := newFakeBroker(t)
	fb.createStatus = http.StatusUnprocessableEntity
	fb.patchStatus = http.StatusNoContent
	c := newTestClient(t, srv.URL, Config{})

	out, err := c.Upsert(context.Background(), forecastEntity(10))
	require.NoError(t, err)
	assert.Equal(t, broker.OutcomeUpdated, out)
	assert.Equal(t, 1, fb.patches)
}

func TestUpsertRejectedWithoutPatch(t *testing.T) {
	fb, srv := newFakeBroker(t)
	fb.createStatus = http.StatusBadRequest
	c := newTestClient(t, srv.URL, Config{})

	out, err := c.Upsert(context.Background(), forecastEntity(10))
	assert.ErrorIs(t, err, broker.ErrBrokerRejected)
	assert.Equal(t, broker.OutcomeFailed, out)
	assert.Equal(t, 0, fb.patches)
}

func TestUpsertFailedPatchIsNotRetried(t *testing.T) {
	fb, srv := newFakeBroker(t)
	fb.createStatus = http.StatusConflict
	fb.patchStatus = http.StatusInternalServerError
	c := newTestClient(t, srv.URL, Config{})

	_, err := c.Upsert(context.Background(), forecastEntity(10))
	assert.ErrorIs(t, err, broker.ErrBrokerRejected)
	assert.Equal(t, 1, fb.creates)
	assert.Equal(t, 1, fb.patches)
}

func TestUpsertUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c := newTestClient(t, url, Config{})

	out, err := c.Upsert(context.Background(), forecastEntity(10))
	assert.ErrorIs(t, err, broker.ErrBrokerUnreachable)
	assert.Equal(t, broker.OutcomeFailed, out)
}

func TestUpsertTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)
	c := newTestClient(t, srv.URL, Config{Timeout: 50 * time.Millisecond})

	_, err := c.Upsert(context.Background(), forecastEntity(10))
	assert.ErrorIs(t, err, broker.ErrBrokerUnreachable)
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	fb, srv := newFakeBroker(t)
	fb.createStatus = http.StatusServiceUnavailable
	c := newTestClient(t, srv.URL, Config{FailureThreshold: 2, OpenTimeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.Upsert(ctx, forecastEntity(10))
		assert.ErrorIs(t, err, broker.ErrBrokerRejected)
	}
	_, err := c.Upsert(ctx, forecastEntity(10))
	assert.ErrorIs(t, err, broker.ErrBrokerUnreachable)
	assert.Equal(t, 2, fb.creates, "open breaker must not reach the broker")
}

func TestConflictsDoNotOpenBreaker(t *testing.T) {
	fb, srv := newFakeBroker(t)
	c := newTestClient(t, srv.URL, Config{FailureThreshold: 1})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := c.Upsert(ctx, forecastEntity(float64(i)))
		require.NoError(t, err)
	}
	assert.Equal(t, 4, fb.creates)
	assert.Equal(t, 3, fb.patches)
}

func TestNewClientValidatesURL(t *testing.T) {
	_, err := NewClient(Config{URL: "not a url"}, nil)
	assert.Error(t, err)
}

func TestUpsertRequiresID(t *testing.T) {
	_, srv := newFakeBroker(t)
	c := newTestClient(t, srv.URL, Config{})
	_, err := c.Upsert(context.Background(), broker.Entity{"type": "x"})
	assert.ErrorIs(t, err, broker.ErrBrokerRejected)
}
