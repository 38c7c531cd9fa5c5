package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fixora/condoguard/application/port/inbound"
	"github.com/fixora/condoguard/application/port/outbound"
	"github.com/fixora/condoguard/application/security/risk"
	"github.com/fixora/condoguard/application/security/sanitizer"
	"github.com/fixora/condoguard/application/security/threat"
	"github.com/fixora/condoguard/domain/entity"
	domainerror "github.com/fixora/condoguard/domain/error"
	"github.com/fixora/condoguard/infrastructure/http/response"
)

const (
	DefaultSlowRequestThreshold = 5 * time.Second

	HeaderAnomalyRisk      = 20
	UnauthorizedAccessRisk = 40
	DataBreachRisk         = 90

	ReasonInspectorPanic = "inspector_panic"
)

// AppHandler is a handler that may return an error. The inspector writes
// the error response and classifies the error for the audit trail.
type AppHandler func(w http.ResponseWriter, r *http.Request) error

type inspectOptions struct {
	leakScan bool
}

type InspectOption func(*inspectOptions)

// WithoutLeakScan disables the response leak scan for routes whose payloads
// legitimately carry sensitive keys, such as the audit query API.
func WithoutLeakScan() InspectOption {
	return func(o *inspectOptions) { o.leakScan = false }
}

type Inspector struct {
	detector      *threat.Detector
	audit         inbound.AuditLogger
	fallback      outbound.AuditFallback
	slowThreshold time.Duration
	trustProxy    bool
	now           func() time.Time
}

func NewInspector(detector *threat.Detector, audit inbound.AuditLogger, fallback outbound.AuditFallback, slowThreshold time.Duration, trustProxy bool) *Inspector {
	if slowThreshold <= 0 {
		slowThreshold = DefaultSlowRequestThreshold
	}
	return &Inspector{
		detector:      detector,
		audit:         audit,
		fallback:      fallback,
		slowThreshold: slowThreshold,
		trustProxy:    trustProxy,
		now:           time.Now,
	}
}

func (in *Inspector) SetClock(now func() time.Time) { in.now = now }

// Wrap inspects h: URL and header checks before, outcome logging and the
// response leak scan after.
func (in *Inspector) Wrap(h AppHandler, opts ...InspectOption) http.Handler {
	o := inspectOptions{leakScan: true}
	for _, opt := range opts {
		opt(&o)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		start := in.now()
		meta := RequestMeta(r, in.trustProxy)

		in.safely(ctx, func() { in.inspectRequest(ctx, r, meta) })

		rw := newResponseWriter(w, o.leakScan)
		defer rw.abortScan()
		err := h(rw, r)
		if err != nil && !rw.wroteHeader {
			response.AppError(rw, err, meta.CorrelationID)
		}
		duration := in.now().Sub(start)

		in.safely(ctx, func() { in.logOutcome(ctx, r, meta, rw.Status(), err, duration) })
		if o.leakScan {
			in.safely(ctx, func() { in.scanResponse(ctx, r, meta, rw) })
		}
	})
}

// WrapHandler inspects a plain http.Handler.
func (in *Inspector) WrapHandler(h http.Handler, opts ...InspectOption) http.Handler {
	return in.Wrap(func(w http.ResponseWriter, r *http.Request) error {
		h.ServeHTTP(w, r)
		return nil
	}, opts...)
}

func (in *Inspector) safely(ctx context.Context, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			in.fallback.Record(ctx, nil, ReasonInspectorPanic, fmt.Errorf("panic: %v", r))
		}
	}()
	fn()
}

func (in *Inspector) inspectRequest(ctx context.Context, r *http.Request, meta inbound.RequestMeta) {
	rawURL := r.URL.RequestURI()
	if report := in.detector.CheckURL(rawURL); report.Suspicious {
		score := risk.Score(risk.FromFindings(report.Findings))
		in.audit.LogSecurityEvent(ctx, entity.ActionSuspiciousActivity, score, meta, map[string]interface{}{
			"patterns": report.Patterns,
			"url":      sanitizer.RedactQuery(rawURL),
			"method":   r.Method,
		})
	}

	if report := in.detector.CheckHeaders(r.UserAgent(), r.Header.Get("Accept")); report.Suspicious {
		details := map[string]interface{}{
			"reasons":   report.Reasons,
			"userAgent": r.UserAgent(),
			"endpoint":  r.URL.Path,
		}
		if report.Signature != "" {
			details["signature"] = report.Signature
		}
		in.audit.LogSecurityEvent(ctx, entity.ActionSuspiciousActivity, HeaderAnomalyRisk, meta, details)
	}
}

func (in *Inspector) logOutcome(ctx context.Context, r *http.Request, meta inbound.RequestMeta, status int, err error, duration time.Duration) {
	failed := err != nil || status >= http.StatusBadRequest
	details := map[string]interface{}{
		"endpoint":   r.URL.Path,
		"method":     r.Method,
		"statusCode": status,
		"durationMs": duration.Milliseconds(),
	}

	outcome := entity.OutcomeSuccess
	if failed {
		outcome = entity.OutcomeFailure
		details["errorClass"], details["errorMessage"] = classifyError(err, status)
	}
	in.audit.LogUserAction(ctx, entity.ActionHTTPRequest, outcome, meta, details)

	if duration > in.slowThreshold {
		in.audit.LogSystemEvent(ctx, entity.ActionSlowRequest, entity.OutcomeSuccess, meta, map[string]interface{}{
			"endpoint":    r.URL.Path,
			"method":      r.Method,
			"durationMs":  duration.Milliseconds(),
			"thresholdMs": in.slowThreshold.Milliseconds(),
		})
	}

	if !failed {
		return
	}
	event := map[string]interface{}{
		"endpoint":   r.URL.Path,
		"method":     r.Method,
		"statusCode": status,
	}
	switch {
	case isAuthorizationFailure(err, status):
		in.audit.LogSecurityEvent(ctx, entity.ActionUnauthorizedAccess, UnauthorizedAccessRisk, meta, event)
	case isValidationFailure(err, status):
		in.audit.LogSecurityEvent(ctx, entity.ActionMaliciousRequest, risk.Score(risk.Signals{ValidationErrors: 1}), meta, event)
	}
}

func classifyError(err error, status int) (string, string) {
	var appErr *domainerror.AppError
	switch {
	case errors.As(err, &appErr):
		return string(appErr.Code), appErr.Message
	case err != nil:
		return fmt.Sprintf("%T", err), err.Error()
	default:
		return "http_" + strconv.Itoa(status), http.StatusText(status)
	}
}

func isAuthorizationFailure(err error, status int) bool {
	if err != nil && domainerror.IsAuthorizationError(err) {
		return true
	}
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

func isValidationFailure(err error, status int) bool {
	if err != nil && domainerror.IsValidationError(err) {
		return true
	}
	return status == http.StatusBadRequest || status == http.StatusUnprocessableEntity
}

func (in *Inspector) scanResponse(ctx context.Context, r *http.Request, meta inbound.RequestMeta, rw *responseWriter) {
	leaked := rw.LeakedFields()
	if len(leaked) == 0 {
		return
	}

	in.audit.LogSecurityEvent(ctx, entity.ActionDataBreachAttempt, DataBreachRisk, meta, map[string]interface{}{
		"leakedFields": leaked,
		"endpoint":     r.URL.Path,
		"method":       r.Method,
		"statusCode":   rw.Status(),
	})
}
