package threat

import (
	"regexp"

	"github.com/fixora/condoguard/domain/valueobject"
)

// Pattern is a named detection rule.
type Pattern struct {
	Name  string
	Type  valueobject.ThreatType
	Regex *regexp.Regexp
}

const eventHandlers = `(error|load|click|dblclick|mouseover|mouseout|mouseenter|focus|blur|submit|change|input|keyup|keydown|contextmenu|drag|drop|toggle|animationstart)`

func sqlPatterns() []Pattern {
	return []Pattern{
		{Name: "sql_union_select", Type: valueobject.ThreatSQL,
			Regex: regexp.MustCompile(`(?i)\bunion\b\s+(all\s+)?select\b`)},
		{Name: "sql_insert_into", Type: valueobject.ThreatSQL,
			Regex: regexp.MustCompile(`(?i)\binsert\s+into\b`)},
		{Name: "sql_delete_from", Type: valueobject.ThreatSQL,
			Regex: regexp.MustCompile(`(?i)\bdelete\s+from\b`)},
		{Name: "sql_drop_table", Type: valueobject.ThreatSQL,
			Regex: regexp.MustCompile(`(?i)\bdrop\s+(table|database)\b`)},
		{Name: "sql_exec_xp", Type: valueobject.ThreatSQL,
			Regex: regexp.MustCompile(`(?i)\bexec(ute)?\s+(xp|sp)_\w+`)},
		{Name: "sql_quote_terminator", Type: valueobject.ThreatSQL,
			Regex: regexp.MustCompile(`'\s*(;|--)`)},
		{Name: "sql_tautology", Type: valueobject.ThreatSQL,
			Regex: regexp.MustCompile(`(?i)('\s*or\s*'[^']*'\s*=\s*'|\bor\s+\d+\s*=\s*\d+)`)},
	}
}

func xssPatterns() []Pattern {
	return []Pattern{
		{Name: "xss_script_tag", Type: valueobject.ThreatXSS,
			Regex: regexp.MustCompile(`(?i)<\s*script\b`)},
		{Name: "xss_javascript_uri", Type: valueobject.ThreatXSS,
			Regex: regexp.MustCompile(`(?i)javascript\s*:`)},
		{Name: "xss_event_handler", Type: valueobject.ThreatXSS,
			Regex: regexp.MustCompile(`(?i)\bon` + eventHandlers + `\s*=`)},
		{Name: "xss_iframe_tag", Type: valueobject.ThreatXSS,
			Regex: regexp.MustCompile(`(?i)<\s*iframe\b`)},
	}
}

// URL patterns in evaluation order.
const (
	URLPathTraversal        = "path_traversal"
	URLEncodedPathTraversal = "encoded_path_traversal"
	URLSensitiveFile        = "sensitive_file"
	URLScriptInjection      = "script_injection"
	URLProtocolInjection    = "protocol_injection"
	URLSQLKeywords          = "sql_keywords"
)

func urlPatterns() []Pattern {
	return []Pattern{
		{Name: URLPathTraversal, Type: valueobject.ThreatPathTraversal,
			Regex: regexp.MustCompile(`\.\.[/\\]`)},
		{Name: URLEncodedPathTraversal, Type: valueobject.ThreatPathTraversal,
			Regex: regexp.MustCompile(`(?i)(%2e%2e(%2f|%5c|/|\\)|\.\.(%2f|%5c)|%252e%252e)`)},
		{Name: URLSensitiveFile, Type: valueobject.ThreatPathTraversal,
			Regex: regexp.MustCompile(`(?i)(/etc/(passwd|shadow|group|hosts)|/proc/self/|/\.env\b|/\.git/|\.htaccess|\.htpasswd|web\.config|id_rsa|wp-config\.php)`)},
		{Name: URLScriptInjection, Type: valueobject.ThreatXSS,
			Regex: regexp.MustCompile(`(?i)(<\s*script|javascript\s*:|vbscript\s*:|\bon` + eventHandlers + `\s*=)`)},
		{Name: URLProtocolInjection, Type: valueobject.ThreatXSS,
			Regex: regexp.MustCompile(`(?i)(data:text/html|file://|gopher://|dict://|ldap://)`)},
		{Name: URLSQLKeywords, Type: valueobject.ThreatSQL,
			Regex: regexp.MustCompile(`(?i)(\bunion[\s+]+(all[\s+]+)?select\b|\bselect[\s+].+[\s+]from\b|\binsert[\s+]+into\b|\bdrop[\s+]+table\b|\bdelete[\s+]+from\b|'[\s+]*or[\s+]+\d+=\d+)`)},
	}
}

// Known scanner and non-browser client signatures, matched against a
// lowercased User-Agent.
var scannerSignatures = []string{
	"sqlmap",
	"nikto",
	"nmap",
	"masscan",
	"zap",
	"burp",
	"dirbuster",
	"gobuster",
	"wfuzz",
	"acunetix",
	"nessus",
	"python-requests",
	"curl",
	"wget",
	"libwww-perl",
	"go-http-client",
	"httpclient",
	"scrapy",
}
