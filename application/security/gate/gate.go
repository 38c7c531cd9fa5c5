// Package gate accepts or rejects a request body before the handler runs:
// sanitize, schema-validate, threat-detect, score, decide.
package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fixora/condoguard/application/port/inbound"
	"github.com/fixora/condoguard/application/port/outbound"
	"github.com/fixora/condoguard/application/security/pipeline"
	"github.com/fixora/condoguard/application/security/risk"
	"github.com/fixora/condoguard/application/security/sanitizer"
	"github.com/fixora/condoguard/application/security/threat"
	"github.com/fixora/condoguard/domain/entity"
)

const StageName = "validation_gate"

// Rejection reasons, used for logs and metrics only.
const (
	ReasonMalformed = "malformed_payload"
	ReasonSchema    = "schema_violation"
)

// Client-facing messages. They never name the pattern that matched.
const (
	MessageInvalidPayload = "Invalid request payload"
	MessageRejected       = "Request rejected"
	MessageValidation     = "Validation failed"

	errBodyUnprocessable = "request body could not be processed"
	errDisallowedContent = "request contains disallowed content"
)

var errTrailingData = errors.New("unexpected data after JSON value")

type Gate struct {
	detector *threat.Detector
	audit    inbound.AuditLogger
	metrics  outbound.PipelineMetrics
	now      func() time.Time
}

func New(detector *threat.Detector, audit inbound.AuditLogger, metrics outbound.PipelineMetrics) *Gate {
	if metrics == nil {
		metrics = outbound.NoopMetrics{}
	}
	return &Gate{
		detector: detector,
		audit:    audit,
		metrics:  metrics,
		now:      time.Now,
	}
}

func (g *Gate) SetClock(now func() time.Time) { g.now = now }

// Stage returns the gate as a pipeline stage. schema may be nil, in which
// case only sanitization and threat detection apply.
func (g *Gate) Stage(schema *Schema) pipeline.Stage {
	return pipeline.StageFunc{StageName: StageName, Fn: func(ctx context.Context, req *pipeline.Request) (context.Context, *pipeline.Rejection) {
		return g.Check(ctx, req, schema)
	}}
}

// Check runs the gate on req. On success the sanitized body is set on
// req.Body and stored in the returned context.
func (g *Gate) Check(ctx context.Context, req *pipeline.Request, schema *Schema) (context.Context, *pipeline.Rejection) {
	original, err := decodeBody(req)
	if err != nil {
		return ctx, g.rejectMalformed(ctx, req, err)
	}

	clean, report, err := sanitizer.SanitizeValue(original)
	if err != nil {
		return ctx, g.rejectMalformed(ctx, req, err)
	}

	var validationErrors []string
	if schema != nil {
		msgs, err := schema.Validate(clean)
		if err != nil {
			return ctx, g.rejectMalformed(ctx, req, err)
		}
		validationErrors = msgs
	}
	for _, field := range report.TruncatedFields {
		validationErrors = append(validationErrors, fmt.Sprintf("%s: exceeds maximum length of %d characters", field, sanitizer.MaxStringLength))
	}

	findings := g.detector.ScanBody(clean)

	signals := risk.Signals{
		ValidationErrors: len(validationErrors),
		PayloadLength:    len(req.RawBody),
		OffHours:         risk.IsOffHours(g.now()),
	}
	signals.Add(findings)
	score := risk.Score(signals)

	if action, ok := threat.Classify(findings); ok {
		g.metrics.RiskScore(string(action), score)
		g.audit.LogSecurityEvent(ctx, action, score, req.Meta(), map[string]interface{}{
			"attempts":         findings,
			"payload":          sanitizer.RedactForLogging(original),
			"validationErrors": validationErrors,
			"path":             req.Path,
			"method":           req.Method,
		})
		return ctx, &pipeline.Rejection{
			Status:  http.StatusBadRequest,
			Message: MessageRejected,
			Errors:  []string{errDisallowedContent},
			Reason:  string(action),
		}
	}

	if len(validationErrors) > 0 {
		g.metrics.RiskScore(string(entity.ActionMaliciousRequest), score)
		g.audit.LogSecurityEvent(ctx, entity.ActionMaliciousRequest, score, req.Meta(), map[string]interface{}{
			"reason":           ReasonSchema,
			"validationErrors": validationErrors,
			"path":             req.Path,
			"method":           req.Method,
		})
		return ctx, &pipeline.Rejection{
			Status:  http.StatusBadRequest,
			Message: MessageValidation,
			Errors:  validationErrors,
			Reason:  ReasonSchema,
		}
	}

	schema.applyFieldFilters(clean)
	req.Body = clean
	return withBody(ctx, clean), nil
}

func (g *Gate) rejectMalformed(ctx context.Context, req *pipeline.Request, cause error) *pipeline.Rejection {
	score := risk.Score(risk.Signals{ValidationErrors: 1, PayloadLength: len(req.RawBody)})
	g.metrics.RiskScore(string(entity.ActionMaliciousRequest), score)
	g.audit.LogSecurityEvent(ctx, entity.ActionMaliciousRequest, score, req.Meta(), map[string]interface{}{
		"reason":      ReasonMalformed,
		"error":       cause.Error(),
		"path":        req.Path,
		"method":      req.Method,
		"payloadSize": len(req.RawBody),
	})
	return &pipeline.Rejection{
		Status:  http.StatusBadRequest,
		Message: MessageInvalidPayload,
		Errors:  []string{errBodyUnprocessable},
		Reason:  ReasonMalformed,
	}
}

// decodeBody returns req.Body when the transport already decoded it, and
// otherwise parses RawBody as a single JSON value. An empty body is nil.
func decodeBody(req *pipeline.Request) (interface{}, error) {
	if req.Body != nil {
		return req.Body, nil
	}
	if len(bytes.TrimSpace(req.RawBody)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(req.RawBody))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}
	return v, nil
}
