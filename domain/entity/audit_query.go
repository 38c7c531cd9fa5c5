package entity

import (
	"fmt"
	"time"
)

const (
	DefaultAuditQueryLimit = 50
	MaxAuditQueryLimit     = 1000

	// HighRiskThreshold is the minimum score counted as a high-risk event.
	HighRiskThreshold = 70
)

// AuditLogFilter narrows audit queries. Zero values mean "any".
type AuditLogFilter struct {
	Type       AuditType
	Action     string
	UserID     string
	EntityType string
	Severity   Severity
	StartDate  *time.Time
	EndDate    *time.Time
	Limit      int
	Offset     int
}

// Normalize applies the default and maximum page size.
func (f AuditLogFilter) Normalize() AuditLogFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultAuditQueryLimit
	}
	if f.Limit > MaxAuditQueryLimit {
		f.Limit = MaxAuditQueryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches reports whether e satisfies every set criterion. Limit and offset are ignored.
func (f AuditLogFilter) Matches(e *AuditLogEntry) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	if f.StartDate != nil && e.Timestamp.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && e.Timestamp.After(*f.EndDate) {
		return false
	}
	return true
}

// AuditLogStats aggregates entries matching a filter.
type AuditLogStats struct {
	Total      int            `json:"total"`
	ByType     map[string]int `json:"byType"`
	BySeverity map[string]int `json:"bySeverity"`
	ByAction   map[string]int `json:"byAction"`
}

func NewAuditLogStats() *AuditLogStats {
	return &AuditLogStats{
		ByType:     map[string]int{},
		BySeverity: map[string]int{},
		ByAction:   map[string]int{},
	}
}

// Add counts one entry.
func (s *AuditLogStats) Add(e *AuditLogEntry) {
	s.Total++
	s.ByType[string(e.Type)]++
	s.BySeverity[string(e.Severity)]++
	s.ByAction[e.Action]++
}

// TimeRange is a lookback window for security insights.
type TimeRange string

const (
	TimeRangeHour  TimeRange = "1h"
	TimeRangeDay   TimeRange = "24h"
	TimeRangeWeek  TimeRange = "7d"
	TimeRangeMonth TimeRange = "30d"
)

// ParseTimeRange accepts 1h, 24h, 7d and 30d. An empty string yields 24h.
func ParseTimeRange(s string) (TimeRange, error) {
	switch TimeRange(s) {
	case "":
		return TimeRangeDay, nil
	case TimeRangeHour, TimeRangeDay, TimeRangeWeek, TimeRangeMonth:
		return TimeRange(s), nil
	}
	return "", fmt.Errorf("unsupported time range %q", s)
}

// Duration returns the lookback length.
func (r TimeRange) Duration() time.Duration {
	switch r {
	case TimeRangeHour:
		return time.Hour
	case TimeRangeWeek:
		return 7 * 24 * time.Hour
	case TimeRangeMonth:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

type ThreatCount struct {
	Action string `json:"action"`
	Count  int    `json:"count"`
}

type SuspiciousIP struct {
	IPAddress     string  `json:"ipAddress"`
	EventCount    int     `json:"eventCount"`
	MeanRiskScore float64 `json:"meanRiskScore"`
}

type UserRiskProfile struct {
	UserID        string  `json:"userId"`
	EventCount    int     `json:"eventCount"`
	MeanRiskScore float64 `json:"meanRiskScore"`
}

// SecurityInsights summarizes security posture over a time range.
type SecurityInsights struct {
	TimeRange        TimeRange         `json:"timeRange"`
	TotalEvents      int               `json:"totalEvents"`
	SecurityEvents   int               `json:"securityEvents"`
	HighRiskEvents   int               `json:"highRiskEvents"`
	TopThreats       []ThreatCount     `json:"topThreats"`
	SuspiciousIPs    []SuspiciousIP    `json:"suspiciousIPs"`
	UserRiskProfiles []UserRiskProfile `json:"userRiskProfiles"`
}
