package usecase

import (
	"sort"

	"github.com/fixora/condoguard/domain/entity"
)

const (
	suspiciousIPMeanRisk   = 30
	suspiciousIPEventCount = 50
	riskyUserMeanRisk      = 40
)

type riskAccumulator struct {
	events  int
	scored  int
	riskSum int
}

func (a *riskAccumulator) add(e *entity.AuditLogEntry) {
	a.events++
	if e.RiskScore != nil {
		a.scored++
		a.riskSum += *e.RiskScore
	}
}

func (a *riskAccumulator) mean() float64 {
	if a.scored == 0 {
		return 0
	}
	return float64(a.riskSum) / float64(a.scored)
}

// insightsAggregator folds entries one at a time so a range never has to be
// held in memory. IP and user profiles only consider security events.
type insightsAggregator struct {
	total    int
	security int
	highRisk int
	threats  map[string]int
	ips      map[string]*riskAccumulator
	users    map[string]*riskAccumulator
}

func newInsightsAggregator() *insightsAggregator {
	return &insightsAggregator{
		threats: map[string]int{},
		ips:     map[string]*riskAccumulator{},
		users:   map[string]*riskAccumulator{},
	}
}

func (g *insightsAggregator) add(e *entity.AuditLogEntry) {
	g.total++
	if e.RiskScore != nil && *e.RiskScore >= entity.HighRiskThreshold {
		g.highRisk++
	}
	if e.Type != entity.AuditTypeSecurityEvent {
		return
	}

	g.security++
	g.threats[e.Action]++
	if e.IPAddress != "" {
		accumulate(g.ips, e.IPAddress, e)
	}
	if e.UserID != "" {
		accumulate(g.users, e.UserID, e)
	}
}

func accumulate(m map[string]*riskAccumulator, key string, e *entity.AuditLogEntry) {
	acc, ok := m[key]
	if !ok {
		acc = &riskAccumulator{}
		m[key] = acc
	}
	acc.add(e)
}

func (g *insightsAggregator) result(tr entity.TimeRange) *entity.SecurityInsights {
	out := &entity.SecurityInsights{
		TimeRange:        tr,
		TotalEvents:      g.total,
		SecurityEvents:   g.security,
		HighRiskEvents:   g.highRisk,
		TopThreats:       []entity.ThreatCount{},
		SuspiciousIPs:    []entity.SuspiciousIP{},
		UserRiskProfiles: []entity.UserRiskProfile{},
	}

	for action, count := range g.threats {
		out.TopThreats = append(out.TopThreats, entity.ThreatCount{Action: action, Count: count})
	}
	sort.Slice(out.TopThreats, func(i, j int) bool {
		a, b := out.TopThreats[i], out.TopThreats[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Action < b.Action
	})

	for ip, acc := range g.ips {
		mean := acc.mean()
		if mean > suspiciousIPMeanRisk || acc.events > suspiciousIPEventCount {
			out.SuspiciousIPs = append(out.SuspiciousIPs, entity.SuspiciousIP{IPAddress: ip, EventCount: acc.events, MeanRiskScore: mean})
		}
	}
	sort.Slice(out.SuspiciousIPs, func(i, j int) bool {
		a, b := out.SuspiciousIPs[i], out.SuspiciousIPs[j]
		if a.MeanRiskScore != b.MeanRiskScore {
			return a.MeanRiskScore > b.MeanRiskScore
		}
		if a.EventCount != b.EventCount {
			return a.EventCount > b.EventCount
		}
		return a.IPAddress < b.IPAddress
	})

	for user, acc := range g.users {
		mean := acc.mean()
		if mean > riskyUserMeanRisk {
			out.UserRiskProfiles = append(out.UserRiskProfiles, entity.UserRiskProfile{UserID: user, EventCount: acc.events, MeanRiskScore: mean})
		}
	}
	sort.Slice(out.UserRiskProfiles, func(i, j int) bool {
		a, b := out.UserRiskProfiles[i], out.UserRiskProfiles[j]
		if a.MeanRiskScore != b.MeanRiskScore {
			return a.MeanRiskScore > b.MeanRiskScore
		}
		return a.UserID < b.UserID
	})

	return out
}
