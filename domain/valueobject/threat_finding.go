package valueobject

// ThreatType is the pattern family a finding belongs to.
type ThreatType string

const (
	ThreatSQL           ThreatType = "sql"
	ThreatXSS           ThreatType = "xss"
	ThreatPathTraversal ThreatType = "path_traversal"
)

// ThreatFinding is one suspicious pattern occurrence at a field path.
// It is folded into audit details and never stored on its own.
type ThreatFinding struct {
	Type        ThreatType `json:"type"`
	FieldPath   string     `json:"field"`
	PatternName string     `json:"pattern"`
}

// Less orders findings by field path, type, then pattern name.
func (f ThreatFinding) Less(o ThreatFinding) bool {
	if f.FieldPath != o.FieldPath {
		return f.FieldPath < o.FieldPath
	}
	if f.Type != o.Type {
		return f.Type < o.Type
	}
	return f.PatternName < o.PatternName
}
