package domain

import (
	"encoding/json"
	"time"
)

// Default singleton settings, applied on first access
const (
	DefaultMinBase         = 1000
	DefaultMaxBase         = 1500
	DefaultCurrentBase     = 1450
	DefaultIntervalSeconds = 30
	DefaultEnabled         = true
)

// Recency windows
const (
	ActiveWindow   = 30 * time.Minute
	StaleThreshold = 24 * time.Hour
	WeeklyDays     = 7
)

// Settings is the singleton configuration row of the randomized base count
type Settings struct {
	ID                     int64      `json:"id"`
	MinBase                int        `json:"min_base_count"`
	MaxBase                int        `json:"max_base_count"`
	CurrentBase            int        `json:"current_base_count"`
	LastRefresh            *time.Time `json:"last_update"`
	RefreshIntervalSeconds int        `json:"update_interval"`
	Enabled                bool       `json:"is_active"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// DefaultSettings returns the row inserted when none exists yet
func DefaultSettings(now time.Time) *Settings {
	last := now
	return &Settings{
		ID:                     1,
		MinBase:                DefaultMinBase,
		MaxBase:                DefaultMaxBase,
		CurrentBase:            DefaultCurrentBase,
		LastRefresh:            &last,
		RefreshIntervalSeconds: DefaultIntervalSeconds,
		Enabled:                DefaultEnabled,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// RefreshInterval returns the refresh interval as a duration
func (s *Settings) RefreshInterval() time.Duration {
	return time.Duration(s.RefreshIntervalSeconds) * time.Second
}

// ShouldRefresh reports whether the base count is due for a new draw at now.
// The interval is a minimum staleness bound: exactly one interval elapsed is due.
func (s *Settings) ShouldRefresh(now time.Time) bool {
	if s.LastRefresh == nil || s.LastRefresh.IsZero() {
		return true
	}
	return now.Sub(*s.LastRefresh) >= s.RefreshInterval()
}

// VisitorSession is one tracked visitor, soft-expired by the staleness sweep
type VisitorSession struct {
	ID               int64     `json:"id"`
	SessionKey       string    `json:"session_id"`
	OriginAddress    string    `json:"ip_address"`
	ClientDescriptor string    `json:"user_agent"`
	FirstSeen        time.Time `json:"first_visit"`
	LastSeen         time.Time `json:"last_activity"`
	PageViews        int       `json:"page_views"`
	Active           bool      `json:"is_active"`
}

// DailyStats is the per-day rollup, overwritten on every displayed count read
type DailyStats struct {
	ID             int64     `json:"id"`
	Date           time.Time `json:"-"`
	UniqueVisitors int64     `json:"unique_visitors"`
	TotalPageViews int64     `json:"total_page_views"`
	DisplayedCount int64     `json:"displayed_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DateString returns the stats date as YYYY-MM-DD
func (d *DailyStats) DateString() string {
	return d.Date.Format(DateLayout)
}

// MarshalJSON renders the date as a calendar day
func (d *DailyStats) MarshalJSON() ([]byte, error) {
	type alias DailyStats
	return json.Marshal(&struct {
		*alias
		Date string `json:"date"`
	}{alias: (*alias)(d), Date: d.DateString()})
}

// DateLayout is the calendar date format used for stats rows
const DateLayout = "2006-01-02"

// StatsSnapshot aggregates the counter state for the statistics endpoint
type StatsSnapshot struct {
	Settings            *Settings     `json:"settings"`
	CurrentDisplayCount int64         `json:"current_display_count"`
	ActiveVisitors      int64         `json:"active_visitors"`
	TodayVisitors       int64         `json:"today_visitors"`
	BaseCount           int           `json:"base_count"`
	WeeklyStats         []*DailyStats `json:"weekly_stats"`
}

// RateLimitInfo represents rate limiting information for track requests
type RateLimitInfo struct {
	OriginAddress string        `json:"-"`
	RequestCount  int64         `json:"request_count"`
	Limit         int64         `json:"limit"`
	ResetAt       time.Time     `json:"reset_at"`
	TTL           time.Duration `json:"-"`
	IsAllowed     bool          `json:"is_allowed"`
}

// Remaining returns how many requests are left in the current window
func (r *RateLimitInfo) Remaining() int64 {
	if r.RequestCount >= r.Limit {
		return 0
	}
	return r.Limit - r.RequestCount
}

// MidnightUTC returns the start of the UTC calendar day containing t
func MidnightUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
