// Package risk turns detector findings and request context into a bounded
// 0-100 risk score.
package risk

import (
	"time"

	"github.com/fixora/condoguard/application/security/threat"
	"github.com/fixora/condoguard/domain/entity"
	"github.com/fixora/condoguard/domain/valueobject"
)

const (
	validationErrorWeight = 10
	validationErrorCap    = 50

	sqlPresenceWeight = 40
	sqlMatchWeight    = 15

	xssPresenceWeight = 15
	xssMatchWeight    = 20

	pathTraversalWeight = 25
	sensitiveFileWeight = 35

	LargePayloadThreshold = 10000
	largePayloadWeight    = 30

	repeatedFailureWeight = 5
	repeatedFailureCap    = 20

	offHoursWeight = 10
	offHoursStart  = 0
	offHoursEnd    = 5
)

// Signals are the inputs to Score. Every field only ever adds to the score.
type Signals struct {
	ValidationErrors int
	SQLMatches       int
	XSSMatches       int
	PathTraversal    bool
	SensitiveFile    bool
	PayloadLength    int
	RecentFailures   int
	OffHours         bool
}

// Score computes the weighted sum of s clamped to [0,100]. It is pure and
// monotone in every signal.
func Score(s Signals) int {
	score := capped(s.ValidationErrors*validationErrorWeight, validationErrorCap)

	if s.SQLMatches > 0 {
		score += sqlPresenceWeight + s.SQLMatches*sqlMatchWeight
	}
	if s.XSSMatches > 0 {
		score += xssPresenceWeight + s.XSSMatches*xssMatchWeight
	}
	if s.PathTraversal {
		score += pathTraversalWeight
	}
	if s.SensitiveFile {
		score += sensitiveFileWeight
	}
	if s.PayloadLength > LargePayloadThreshold {
		score += largePayloadWeight
	}
	score += capped(s.RecentFailures*repeatedFailureWeight, repeatedFailureCap)
	if s.OffHours {
		score += offHoursWeight
	}

	return *entity.Score(score)
}

// FromFindings counts findings per family. The accumulation is commutative so
// the order of findings never affects the result.
func FromFindings(findings []valueobject.ThreatFinding) Signals {
	var s Signals
	s.Add(findings)
	return s
}

// Add folds more findings into s.
func (s *Signals) Add(findings []valueobject.ThreatFinding) {
	for _, f := range findings {
		switch f.Type {
		case valueobject.ThreatSQL:
			s.SQLMatches++
		case valueobject.ThreatXSS:
			s.XSSMatches++
		case valueobject.ThreatPathTraversal:
			if f.PatternName == threat.URLSensitiveFile {
				s.SensitiveFile = true
			} else {
				s.PathTraversal = true
			}
		}
	}
}

// IsOffHours reports whether t falls in the 00:00-05:00 window of its location.
func IsOffHours(t time.Time) bool {
	h := t.Hour()
	return h >= offHoursStart && h < offHoursEnd
}

func capped(v, limit int) int {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}
