package sanitizer

import (
	"net/url"
	"strings"
)

const (
	RedactedMarker = "[REDACTED]"
	MaxDepthMarker = "[MAX_DEPTH]"

	MaxRedactionDepth = 10
	MaxArrayLength    = 100
)

var sensitiveKeys = []string{
	"password",
	"token",
	"secret",
	"key",
	"credential",
	"authorization",
	"cookie",
	"session",
	"jwt",
	"bearer",
	"apikey",
	"privatekey",
	"cardnumber",
	"cvv",
	"ssn",
	"taxid",
	"bankaccount",
}

var keySeparators = strings.NewReplacer("_", "", "-", "", ".", "", " ", "")

// IsSensitiveKey reports whether a field name looks like it holds a secret.
// Matching is case-insensitive and ignores _ - . and space separators, so
// "Card-Number" and "api_key" both match.
func IsSensitiveKey(key string) bool {
	normalized := keySeparators.Replace(strings.ToLower(key))
	for _, s := range sensitiveKeys {
		if strings.Contains(normalized, s) {
			return true
		}
	}
	return false
}

// RedactForLogging returns a deep copy of v with sensitive keys replaced by
// RedactedMarker. Containers nested deeper than MaxRedactionDepth collapse to
// MaxDepthMarker and arrays keep at most MaxArrayLength elements. Applying it
// twice yields the same value as applying it once.
func RedactForLogging(v interface{}) interface{} {
	return redact(v, 0)
}

// RedactMap is RedactForLogging for the common map case.
func RedactMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out, ok := redact(m, 0).(map[string]interface{})
	if !ok {
		return nil
	}
	return out
}

func redact(v interface{}, depth int) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		if depth > MaxRedactionDepth {
			return MaxDepthMarker
		}
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			if IsSensitiveKey(k) {
				out[k] = RedactedMarker
				continue
			}
			out[k] = redact(val, depth+1)
		}
		return out
	case map[string]string:
		if depth > MaxRedactionDepth {
			return MaxDepthMarker
		}
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			if IsSensitiveKey(k) {
				out[k] = RedactedMarker
				continue
			}
			out[k] = val
		}
		return out
	case []interface{}:
		if depth > MaxRedactionDepth {
			return MaxDepthMarker
		}
		n := len(t)
		if n > MaxArrayLength {
			n = MaxArrayLength
		}
		out := make([]interface{}, n)
		for i := 0; i < n; i++ {
			out[i] = redact(t[i], depth+1)
		}
		return out
	case []string:
		if depth > MaxRedactionDepth {
			return MaxDepthMarker
		}
		n := len(t)
		if n > MaxArrayLength {
			n = MaxArrayLength
		}
		out := make([]interface{}, n)
		for i := 0; i < n; i++ {
			out[i] = t[i]
		}
		return out
	default:
		return v
	}
}

// StripNUL removes U+0000 from every string and key in a decoded JSON value.
// PostgreSQL refuses NUL in both text and jsonb columns.
func StripNUL(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return strings.ReplaceAll(t, "\x00", "")
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[strings.ReplaceAll(k, "\x00", "")] = StripNUL(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = StripNUL(val)
		}
		return out
	default:
		return v
	}
}

// RedactQuery replaces the values of sensitive query parameters in a request
// URI with RedactedMarker, keeping parameter order and everything else as sent.
func RedactQuery(requestURI string) string {
	path, query, ok := strings.Cut(requestURI, "?")
	if !ok || query == "" {
		return requestURI
	}

	parts := strings.Split(query, "&")
	for i, part := range parts {
		rawKey, _, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			key = rawKey
		}
		if IsSensitiveKey(key) {
			parts[i] = rawKey + "=" + RedactedMarker
		}
	}
	return path + "?" + strings.Join(parts, "&")
}
