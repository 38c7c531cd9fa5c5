package sanitizer

import (
	"errors"
	"sort"
	"strconv"
)

const (
	MaxNestingDepth = 32

	// RootPath addresses a body that is itself a scalar.
	RootPath = "$"
)

// ErrMalformedStructure is returned when a decoded body nests deeper than MaxNestingDepth.
var ErrMalformedStructure = errors.New("malformed structure: nesting too deep")

// Report describes what SanitizeValue changed.
type Report struct {
	TruncatedFields []string
}

// SanitizeValue walks a decoded JSON value and sanitizes every string leaf.
// The input is not modified.
func SanitizeValue(v interface{}) (interface{}, Report, error) {
	var report Report
	out, err := sanitizeValue(v, "", 0, &report)
	if err != nil {
		return nil, Report{}, err
	}
	sort.Strings(report.TruncatedFields)
	return out, report, nil
}

func sanitizeValue(v interface{}, path string, depth int, report *Report) (interface{}, error) {
	if depth > MaxNestingDepth {
		return nil, ErrMalformedStructure
	}

	switch t := v.(type) {
	case string:
		res := SanitizeString(t)
		if res.Truncated {
			report.TruncatedFields = append(report.TruncatedFields, LeafPath(path))
		}
		return res.Value, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			clean, err := sanitizeValue(val, JoinPath(path, k), depth+1, report)
			if err != nil {
				return nil, err
			}
			out[k] = clean
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			clean, err := sanitizeValue(val, JoinPath(path, strconv.Itoa(i)), depth+1, report)
			if err != nil {
				return nil, err
			}
			out[i] = clean
		}
		return out, nil
	default:
		return v, nil
	}
}

// JoinPath appends a member or index to a dot path.
func JoinPath(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}

// LeafPath returns path, or RootPath when it is empty.
func LeafPath(path string) string {
	if path == "" {
		return RootPath
	}
	return path
}
