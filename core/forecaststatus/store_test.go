package forecaststatus

import (
	"context"
	"testing"
	"time"

	"github.com/kilianp07/aqforecast/core/events"
	"github.com/kilianp07/aqforecast/internal/eventbus"
)

var slot = time.Date(2025, 3, 10, 10, 30, 0, 0, time.UTC)

func batch(run string, res ...events.StationForecast) events.ForecastBatch {
	return events.ForecastBatch{RunID: run, Results: res, Time: slot}
}

func TestMemoryStore_ApplyBatch(t *testing.T) {
	s := NewMemoryStore()
	s.ApplyBatch(batch("r1",
		events.StationForecast{StationID: "1", PM25: 12.5, ValidFrom: slot, ValidTo: slot.Add(30 * time.Minute), Status: "ok"},
		events.StationForecast{StationID: "2", Status: "skipped", Reason: "no data"},
	))
	e, ok := s.Get("1")
	if !ok || e.PM25 != 12.5 || e.RunID != "r1" || e.Stale {
		t.Fatalf("unexpected entry %#v", e)
	}
	e, ok = s.Get("2")
	if !ok || e.Status != "skipped" || e.Stale {
		t.Fatalf("skipped station without history should not be stale: %#v", e)
	}
}

func TestMemoryStore_KeepsPreviousOnFailure(t *testing.T) {
	s := NewMemoryStore()
	s.ApplyBatch(batch("r1", events.StationForecast{StationID: "1", PM25: 30, ValidFrom: slot, Status: "ok"}))
	s.ApplyBatch(batch("r2", events.StationForecast{StationID: "1", Status: "skipped", Reason: "too few observations"}))
	e, _ := s.Get("1")
	if !e.Stale || e.PM25 != 30 || e.Status != "skipped" || e.RunID != "r2" {
		t.Fatalf("previous forecast not kept: %#v", e)
	}
}

func TestMemoryStore_Filter(t *testing.T) {
	s := NewMemoryStore()
	s.ApplyBatch(batch("r1",
		events.StationForecast{StationID: "b", PM25: 50, ValidFrom: slot, Status: "ok"},
		events.StationForecast{StationID: "a", PM25: 10, ValidFrom: slot, Status: "ok"},
		events.StationForecast{StationID: "c", PM25: 45, ValidFrom: slot, Status: "publish_failed"},
	))
	out := s.List(Filter{})
	if len(out) != 3 || out[0].StationID != "a" || out[2].StationID != "c" {
		t.Fatalf("list not sorted: %#v", out)
	}
	out = s.List(Filter{MinPM25: 40, Status: "ok"})
	if len(out) != 1 || out[0].StationID != "b" {
		t.Fatalf("filter failed: %#v", out)
	}
}

func TestListen(t *testing.T) {
	bus := eventbus.New()
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	done := Listen(ctx, bus, s)
	bus.Publish(events.TrainingCompleted{RunID: "t"})
	bus.Publish(batch("r1", events.StationForecast{StationID: "7", PM25: 8, ValidFrom: slot, Status: "ok"}))
	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := s.Get("7"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("batch not applied")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}
