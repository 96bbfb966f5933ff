package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings_ShouldRefresh(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(-d)
		return &v
	}

	tests := []struct {
		name        string
		lastRefresh *time.Time
		interval    int
		want        bool
	}{
		{"never refreshed", nil, 30, true},
		{"zero timestamp", &time.Time{}, 30, true},
		{"exactly at interval", at(30 * time.Second), 30, true},
		{"past interval", at(45 * time.Second), 30, true},
		{"just under interval", at(29*time.Second + 999*time.Millisecond), 30, false},
		{"just refreshed", at(0), 30, false},
		{"long interval", at(200 * time.Second), 300, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Settings{LastRefresh: tt.lastRefresh, RefreshIntervalSeconds: tt.interval}
			assert.Equal(t, tt.want, s.ShouldRefresh(now))
		})
	}
}

func TestDefaultSettings(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := DefaultSettings(now)

	assert.Equal(t, 1000, s.MinBase)
	assert.Equal(t, 1500, s.MaxBase)
	assert.Equal(t, 1450, s.CurrentBase)
	assert.Equal(t, 30, s.RefreshIntervalSeconds)
	assert.True(t, s.Enabled)
	require.NotNil(t, s.LastRefresh)
	assert.Equal(t, now, *s.LastRefresh)
	assert.False(t, s.ShouldRefresh(now.Add(10*time.Second)))
}

func TestMidnightUTC(t *testing.T) {
	cairo := time.FixedZone("EET", 2*60*60)
	in := time.Date(2026, 3, 11, 1, 30, 0, 0, cairo) // 2026-03-10 23:30 UTC

	got := MidnightUTC(in)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), got)
}

func TestDailyStats_MarshalJSON(t *testing.T) {
	stats := &DailyStats{
		ID:             4,
		Date:           time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		UniqueVisitors: 12,
		TotalPageViews: 40,
		DisplayedCount: 1312,
	}

	raw, err := json.Marshal(stats)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "2026-03-10", out["date"])
	assert.Equal(t, float64(12), out["unique_visitors"])
	assert.Equal(t, float64(40), out["total_page_views"])
	assert.Equal(t, float64(1312), out["displayed_count"])
}

func TestRateLimitInfo_Remaining(t *testing.T) {
	assert.Equal(t, int64(5), (&RateLimitInfo{RequestCount: 5, Limit: 10}).Remaining())
	assert.Equal(t, int64(0), (&RateLimitInfo{RequestCount: 12, Limit: 10}).Remaining())
}
