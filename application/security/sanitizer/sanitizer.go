// Package sanitizer normalizes untrusted input and redacts sensitive values
// before they reach logs or the audit trail.
package sanitizer

import (
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const (
	MaxStringLength   = 10000
	MaxFilenameLength = 255
)

// Result is the outcome of SanitizeString. Truncated is set when the input
// exceeded MaxStringLength and was cut.
type Result struct {
	Value     string
	Truncated bool
}

var htmlPolicy = bluemonday.UGCPolicy()

// SanitizeString strips control characters, trims whitespace and truncates to
// MaxStringLength runes.
func SanitizeString(s string) Result {
	cleaned := strings.TrimSpace(stripControl(s))
	if utf8.RuneCountInString(cleaned) <= MaxStringLength {
		return Result{Value: cleaned}
	}
	return Result{Value: truncateRunes(cleaned, MaxStringLength), Truncated: true}
}

// SanitizeHTML drops active content (script, iframe, object and embed
// elements, event handler attributes, javascript: URIs) and then applies
// SanitizeString.
func SanitizeHTML(s string) string {
	return SanitizeString(htmlPolicy.Sanitize(s)).Value
}

var filenameReplacer = strings.NewReplacer(
	"/", "", "\\", "", ":", "", "*", "", "?", "",
	"\"", "", "<", "", ">", "", "|", "",
)

// SanitizeFilename removes traversal sequences and reserved filesystem
// characters, strips leading dots and truncates to MaxFilenameLength runes.
func SanitizeFilename(s string) string {
	name := filenameReplacer.Replace(stripControl(s))
	for strings.Contains(name, "..") {
		name = strings.ReplaceAll(name, "..", "")
	}
	name = strings.TrimLeft(strings.TrimSpace(name), ".")
	return truncateRunes(name, MaxFilenameLength)
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7F {
			return -1
		}
		return r
	}, s)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
