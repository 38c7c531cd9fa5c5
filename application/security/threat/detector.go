// Package threat holds the rule-based detectors for SQL injection, XSS and
// path traversal in request URLs, headers and decoded JSON bodies.
package threat

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/fixora/condoguard/application/security/sanitizer"
	"github.com/fixora/condoguard/domain/entity"
	"github.com/fixora/condoguard/domain/valueobject"
)

// URLFieldPath is the field path used for findings raised on the request URL.
const URLFieldPath = "url"

// Detector is stateless and safe for concurrent use.
type Detector struct {
	url  []Pattern
	sql  []Pattern
	xss  []Pattern
	sigs []string
}

func NewDetector() *Detector {
	return &Detector{
		url:  urlPatterns(),
		sql:  sqlPatterns(),
		xss:  xssPatterns(),
		sigs: scannerSignatures,
	}
}

// URLReport is the outcome of CheckURL.
type URLReport struct {
	Suspicious bool
	Patterns   []string
	Findings   []valueobject.ThreatFinding
}

// CheckURL tests the raw URL and its percent-decoded form against the URL
// patterns, in order. Each pattern is reported at most once.
func (d *Detector) CheckURL(rawURL string) URLReport {
	candidates := []string{rawURL}
	if decoded, err := url.QueryUnescape(rawURL); err == nil && decoded != rawURL {
		candidates = append(candidates, decoded)
	}

	var report URLReport
	for _, p := range d.url {
		for _, c := range candidates {
			if p.Regex.MatchString(c) {
				report.Patterns = append(report.Patterns, p.Name)
				report.Findings = append(report.Findings, valueobject.ThreatFinding{
					Type:        p.Type,
					FieldPath:   URLFieldPath,
					PatternName: p.Name,
				})
				break
			}
		}
	}
	report.Suspicious = len(report.Patterns) > 0
	return report
}

// ScanBody walks a decoded JSON value and tests every string leaf against the
// SQL and XSS families. Findings are sorted by field path, type and pattern.
func (d *Detector) ScanBody(v interface{}) []valueobject.ThreatFinding {
	var findings []valueobject.ThreatFinding
	d.walk(v, "", &findings)
	sort.Slice(findings, func(i, j int) bool { return findings[i].Less(findings[j]) })
	return findings
}

func (d *Detector) walk(v interface{}, path string, out *[]valueobject.ThreatFinding) {
	switch t := v.(type) {
	case string:
		d.scanString(t, sanitizer.LeafPath(path), out)
	case map[string]interface{}:
		for k, val := range t {
			d.walk(val, sanitizer.JoinPath(path, k), out)
		}
	case []interface{}:
		for i, val := range t {
			d.walk(val, sanitizer.JoinPath(path, strconv.Itoa(i)), out)
		}
	}
}

func (d *Detector) scanString(s, path string, out *[]valueobject.ThreatFinding) {
	for _, family := range [][]Pattern{d.sql, d.xss} {
		for _, p := range family {
			if p.Regex.MatchString(s) {
				*out = append(*out, valueobject.ThreatFinding{Type: p.Type, FieldPath: path, PatternName: p.Name})
			}
		}
	}
}

// Classify picks the security action for a set of findings. SQL findings
// take precedence over XSS; both lists stay in the audit details.
// TODO: revisit SQL-over-XSS precedence once consumers of the audit trail
// can handle a combined action.
func Classify(findings []valueobject.ThreatFinding) (entity.SecurityAction, bool) {
	var hasXSS bool
	for _, f := range findings {
		switch f.Type {
		case valueobject.ThreatSQL:
			return entity.ActionSQLInjectionAttempt, true
		case valueobject.ThreatXSS:
			hasXSS = true
		}
	}
	if hasXSS {
		return entity.ActionXSSAttempt, true
	}
	return "", false
}

// Header anomaly reasons.
const (
	ReasonScannerUserAgent  = "scanner_user_agent"
	ReasonMissingHeaders    = "missing_accept_and_user_agent"
	ReasonWildcardAcceptAll = "wildcard_accept_without_html"
)

type HeaderReport struct {
	Suspicious bool
	Reasons    []string
	Signature  string
}

// CheckHeaders flags scanner user agents, requests missing both Accept and
// User-Agent, and a */* Accept header with no HTML preference.
func (d *Detector) CheckHeaders(userAgent, accept string) HeaderReport {
	var report HeaderReport
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	acc := strings.ToLower(strings.TrimSpace(accept))

	for _, sig := range d.sigs {
		if ua != "" && strings.Contains(ua, sig) {
			report.Reasons = append(report.Reasons, ReasonScannerUserAgent)
			report.Signature = sig
			break
		}
	}
	if ua == "" && acc == "" {
		report.Reasons = append(report.Reasons, ReasonMissingHeaders)
	}
	if strings.Contains(acc, "*/*") && !strings.Contains(acc, "html") {
		report.Reasons = append(report.Reasons, ReasonWildcardAcceptAll)
	}
	report.Suspicious = len(report.Reasons) > 0
	return report
}
