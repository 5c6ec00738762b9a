package runs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kilianp07/aqforecast/core/runlog"
)

type memStore struct {
	recs []runlog.Record
	last runlog.Query
	err  error
}

func (m *memStore) Append(_ context.Context, r runlog.Record) error {
	m.recs = append(m.recs, r)
	return nil
}

func (m *memStore) Query(_ context.Context, q runlog.Query) ([]runlog.Record, error) {
	m.last = q
	if m.err != nil {
		return nil, m.err
	}
	var res []runlog.Record
	for _, r := range m.recs {
		if q.Kind != "" && r.Kind != q.Kind {
			continue
		}
		res = append(res, r)
	}
	return res, nil
}

func (m *memStore) Close() error { return nil }

func newStore() *memStore {
	t0 := time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)
	return &memStore{recs: []runlog.Record{
		{Kind: runlog.KindTrain, RunID: "t1", Timestamp: t0},
		{Kind: runlog.KindPredict, RunID: "p1", Timestamp: t0.Add(time.Minute)},
	}}
}

func serve(h http.Handler, url, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, url, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandler_Query(t *testing.T) {
	st := newStore()
	rr := serve(NewHandler(st, ""), "/api/runs?kind=predict&station=4&start=2025-03-10T00:00:00Z", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var out []runlog.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].RunID != "p1" {
		t.Fatalf("unexpected records %#v", out)
	}
	if st.last.StationID != "4" || st.last.Start.IsZero() || !st.last.End.IsZero() {
		t.Fatalf("query not forwarded: %#v", st.last)
	}
}

func TestHandler_Auth(t *testing.T) {
	h := NewHandler(newStore(), "secret")
	if rr := serve(h, "/api/runs", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
	for _, auth := range []string{"Bearer secre", "Bearer secret2", "Basic secret", "secret"} {
		if rr := serve(h, "/api/runs", auth); rr.Code != http.StatusUnauthorized {
			t.Fatalf("%q: expected 401 got %d", auth, rr.Code)
		}
	}
	if rr := serve(h, "/api/runs", "Bearer secret"); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
}

func TestHandler_BadParams(t *testing.T) {
	h := NewHandler(newStore(), "")
	for _, url := range []string{"/api/runs?start=yesterday", "/api/runs?end=1", "/api/runs?kind=deploy"} {
		if rr := serve(h, url, ""); rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", url, rr.Code)
		}
	}
}

func TestHandler_StoreError(t *testing.T) {
	rr := serve(NewHandler(&memStore{err: errors.New("disk full")}, ""), "/api/runs", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rr.Code)
	}
}

func TestHandler_EmptyIsArray(t *testing.T) {
	rr := serve(NewHandler(&memStore{}, ""), "/api/runs", "")
	if got := rr.Body.String(); got != "[]\n" {
		t.Fatalf("expected empty array, got %q", got)
	}
}
