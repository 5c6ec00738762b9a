package predict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextSlot(t *testing.T) {
	at := func(h, m, s int) time.Time { return time.Date(2025, 3, 1, h, m, s, 0, time.UTC) }
	cases := []struct {
		name string
		in   time.Time
		slot time.Duration
		want time.Time
	}{
		{"rounds up", at(10, 17, 0), 30 * time.Minute, at(10, 30, 0)},
		{"on boundary advances", at(10, 30, 0), 30 * time.Minute, at(11, 0, 0)},
		{"seconds past boundary", at(10, 30, 1), 30 * time.Minute, at(11, 0, 0)},
		{"quarter hour", at(10, 44, 59), 15 * time.Minute, at(10, 45, 0)},
		{"crosses midnight", at(23, 50, 0), 30 * time.Minute, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NextSlot(tc.in, tc.slot)
			assert.Equal(t, tc.want, got)
			assert.True(t, got.After(tc.in))
		})
	}
}

func TestBatchReportCounters(t *testing.T) {
	var empty BatchReport
	assert.Equal(t, 0.0, empty.FailureRate())

	r := BatchReport{Results: []StationResult{{Status: StatusOK}, {Status: StatusPublishFailed}, {Status: StatusSkipped}, {Status: StatusOK}}}
	assert.Equal(t, 2, r.Succeeded())
	assert.Equal(t, 2, r.Failed())
	assert.Equal(t, 0.5, r.FailureRate())
	assert.Equal(t, "publish_failed", r.Event().Results[1].Status)
}
