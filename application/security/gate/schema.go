package gate

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/fixora/condoguard/application/security/sanitizer"
)

const rootField = "(root)"

// Schema is a compiled JSON Schema for a request body.
type Schema struct {
	schema *gojsonschema.Schema

	richText  []string
	filenames []string
}

// CompileSchema compiles a JSON Schema document.
func CompileSchema(doc string) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{schema: s}, nil
}

// MustCompileSchema is CompileSchema for package-level route schemas.
func MustCompileSchema(doc string) *Schema {
	s, err := CompileSchema(doc)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate returns one "field: description" message per violation, in the
// order the validator reports them.
func (s *Schema) Validate(v interface{}) ([]string, error) {
	result, err := s.schema.Validate(gojsonschema.NewGoLoader(v))
	if err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		field := e.Field()
		if field == rootField {
			field = "body"
		}
		msgs = append(msgs, fmt.Sprintf("%s: %s", field, e.Description()))
	}
	return msgs, nil
}

// WithRichText returns a copy of s whose listed fields, as dot paths, are
// cleaned with sanitizer.SanitizeHTML once a body is accepted.
func (s *Schema) WithRichText(fields ...string) *Schema {
	c := *s
	c.richText = append(append([]string(nil), s.richText...), fields...)
	return &c
}

// WithFilenames returns a copy of s whose listed fields are cleaned with
// sanitizer.SanitizeFilename once a body is accepted.
func (s *Schema) WithFilenames(fields ...string) *Schema {
	c := *s
	c.filenames = append(append([]string(nil), s.filenames...), fields...)
	return &c
}

// applyFieldFilters rewrites the declared fields of an accepted body in place.
func (s *Schema) applyFieldFilters(v interface{}) {
	if s == nil {
		return
	}
	for _, f := range s.richText {
		rewriteField(v, f, sanitizer.SanitizeHTML)
	}
	for _, f := range s.filenames {
		rewriteField(v, f, sanitizer.SanitizeFilename)
	}
}

func rewriteField(v interface{}, path string, fn func(string) string) {
	keys := strings.Split(path, ".")
	for i, k := range keys {
		m, ok := v.(map[string]interface{})
		if !ok {
			return
		}
		if i == len(keys)-1 {
			if str, ok := m[k].(string); ok {
				m[k] = fn(str)
			}
			return
		}
		v = m[k]
	}
}
