package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixora/condoguard/application/port/inbound"
	"github.com/fixora/condoguard/application/security/securitytest"
	"github.com/fixora/condoguard/application/security/threat"
	"github.com/fixora/condoguard/domain/entity"
	domainerror "github.com/fixora/condoguard/domain/error"
	"github.com/fixora/condoguard/infrastructure/service/logger"
)

func newTestInspector() (*Inspector, *securitytest.AuditRecorder, *logger.FallbackLog) {
	audit := securitytest.NewAuditRecorder()
	fallback := logger.NewFallbackLog(discardLogger(), 16)
	return NewInspector(threat.NewDetector(), audit, fallback, time.Second, false), audit, fallback
}

func browserRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")
	req.Header.Set("Accept", "application/json")
	return req
}

func writeJSONBody(w http.ResponseWriter, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

func TestInspector_LogsSuccessfulRequest(t *testing.T) {
	in, audit, _ := newTestInspector()
	h := in.Wrap(func(w http.ResponseWriter, r *http.Request) error {
		return writeJSONBody(w, map[string]interface{}{"unit": "12A"})
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, browserRequest(http.MethodGet, "/v1/units/12A"))

	require.Equal(t, http.StatusOK, rec.Code)
	records := audit.Records()
	require.Len(t, records, 1)
	assert.Equal(t, entity.AuditTypeUserAction, records[0].Type)
	assert.Equal(t, entity.ActionHTTPRequest, records[0].Action)
	assert.Equal(t, entity.OutcomeSuccess, records[0].Outcome)
	assert.Equal(t, http.StatusOK, records[0].Details["statusCode"])
	assert.Equal(t, "/v1/units/12A", records[0].Details["endpoint"])
}

func TestInspector_AuthorizationFailure(t *testing.T) {
	in, audit, _ := newTestInspector()
	h := in.Wrap(func(w http.ResponseWriter, r *http.Request) error {
		return domainerror.ErrForbidden("admin role required")
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, browserRequest(http.MethodGet, "/v1/admin/audit-logs"))
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := audit.ByAction(entity.ActionHTTPRequest)
	require.Len(t, req, 1)
	assert.Equal(t, entity.OutcomeFailure, req[0].Outcome)
	assert.Equal(t, string(domainerror.ErrCodeForbidden), req[0].Details["errorClass"])

	events := audit.ByAction(string(entity.ActionUnauthorizedAccess))
	require.Len(t, events, 1)
	assert.Equal(t, UnauthorizedAccessRisk, *events[0].RiskScore)
}

func TestInspector_ValidationFailure(t *testing.T) {
	in, audit, _ := newTestInspector()
	h := in.Wrap(func(w http.ResponseWriter, r *http.Request) error {
		return domainerror.ErrInvalidQueryFilter("limit")
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, browserRequest(http.MethodGet, "/v1/admin/audit-logs?limit=x"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	events := audit.ByAction(string(entity.ActionMaliciousRequest))
	require.Len(t, events, 1)
	assert.Equal(t, 10, *events[0].RiskScore)
	assert.Empty(t, audit.ByAction(string(entity.ActionUnauthorizedAccess)))
}

func TestInspector_UnknownErrorIsInternal(t *testing.T) {
	in, audit, _ := newTestInspector()
	h := in.Wrap(func(w http.ResponseWriter, r *http.Request) error {
		return errors.New("pq: connection reset")
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, browserRequest(http.MethodGet, "/v1/units"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
	records := audit.Records()
	require.Len(t, records, 1)
	assert.Equal(t, entity.OutcomeFailure, records[0].Outcome)
}

func TestInspector_SlowRequest(t *testing.T) {
	in, audit, _ := newTestInspector()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	in.SetClock(func() time.Time {
		calls++
		if calls == 1 {
			return base
		}
		return base.Add(3 * time.Second)
	})

	h := in.Wrap(func(w http.ResponseWriter, r *http.Request) error { return nil })
	h.ServeHTTP(httptest.NewRecorder(), browserRequest(http.MethodGet, "/v1/reports"))

	events := audit.ByAction(entity.ActionSlowRequest)
	require.Len(t, events, 1)
	assert.Equal(t, entity.AuditTypeSystemEvent, events[0].Type)
	assert.Equal(t, int64(3000), events[0].Details["durationMs"])
}

func TestInspector_SuspiciousURL(t *testing.T) {
	in, audit, _ := newTestInspector()
	h := in.Wrap(func(w http.ResponseWriter, r *http.Request) error { return nil })
	h.ServeHTTP(httptest.NewRecorder(), browserRequest(http.MethodGet, "/v1/files/../../etc/passwd"))

	events := audit.ByAction(string(entity.ActionSuspiciousActivity))
	require.Len(t, events, 1)
	assert.Equal(t, 60, *events[0].RiskScore)
	assert.ElementsMatch(t, []string{threat.URLPathTraversal, threat.URLSensitiveFile}, events[0].Details["patterns"])
}

func TestInspector_ScannerUserAgent(t *testing.T) {
	in, audit, _ := newTestInspector()
	h := in.Wrap(func(w http.ResponseWriter, r *http.Request) error { return nil })

	req := browserRequest(http.MethodGet, "/v1/units")
	req.Header.Set("User-Agent", "sqlmap/1.7")
	h.ServeHTTP(httptest.NewRecorder(), req)

	events := audit.ByAction(string(entity.ActionSuspiciousActivity))
	require.Len(t, events, 1)
	assert.Equal(t, HeaderAnomalyRisk, *events[0].RiskScore)
	assert.Equal(t, "sqlmap", events[0].Details["signature"])
}

func TestInspector_ResponseLeak(t *testing.T) {
	in, audit, _ := newTestInspector()
	handler := func(w http.ResponseWriter, r *http.Request) error {
		return writeJSONBody(w, map[string]interface{}{
			"data": map[string]interface{}{
				"name":     "Budi",
				"password": "hunter2",
				"token":    "[REDACTED]",
			},
		})
	}

	h := in.Wrap(handler)
	h.ServeHTTP(httptest.NewRecorder(), browserRequest(http.MethodGet, "/v1/residents/1"))

	events := audit.ByAction(string(entity.ActionDataBreachAttempt))
	require.Len(t, events, 1)
	assert.Equal(t, DataBreachRisk, *events[0].RiskScore)
	assert.Equal(t, []string{"data.password"}, events[0].Details["leakedFields"])

	audit2 := securitytest.NewAuditRecorder()
	in.audit = audit2
	in.Wrap(handler, WithoutLeakScan()).ServeHTTP(httptest.NewRecorder(), browserRequest(http.MethodGet, "/v1/residents/1"))
	assert.Empty(t, audit2.ByAction(string(entity.ActionDataBreachAttempt)))
}

func TestInspector_LeakWithoutJSONContentType(t *testing.T) {
	in, audit, _ := newTestInspector()
	h := in.Wrap(func(w http.ResponseWriter, r *http.Request) error {
		_, err := w.Write([]byte(`{"user":{"password":"hunter2"}}`))
		return err
	})
	h.ServeHTTP(httptest.NewRecorder(), browserRequest(http.MethodGet, "/v1/residents/1"))

	events := audit.ByAction(string(entity.ActionDataBreachAttempt))
	require.Len(t, events, 1)
	assert.Equal(t, []string{"user.password"}, events[0].Details["leakedFields"])
}

func TestInspector_LeakInLargeResponse(t *testing.T) {
	pad := strings.Repeat("a", 2<<20)
	bodies := map[string]string{
		"leak first": `{"password":"hunter2","pad":"` + pad + `"}`,
		"leak last":  `[{"pad":"` + pad + `"},{"secret_token":"abc"}]`,
	}
	want := map[string][]string{
		"leak first": {"password"},
		"leak last":  {"1.secret_token"},
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			in, audit, _ := newTestInspector()
			h := in.Wrap(func(w http.ResponseWriter, r *http.Request) error {
				w.Header().Set("Content-Type", "application/json")
				// several writes, as a streaming encoder would do
				for i := 0; i < len(body); i += 64 << 10 {
					end := i + 64<<10
					if end > len(body) {
						end = len(body)
					}
					if _, err := w.Write([]byte(body[i:end])); err != nil {
						return err
					}
				}
				return nil
			})

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, browserRequest(http.MethodGet, "/v1/reports/export"))
			assert.Equal(t, len(body), rec.Body.Len())

			events := audit.ByAction(string(entity.ActionDataBreachAttempt))
			require.Len(t, events, 1)
			assert.Equal(t, want[name], events[0].Details["leakedFields"])
		})
	}
}

func TestInspector_NonJSONBodyNotScanned(t *testing.T) {
	in, audit, _ := newTestInspector()
	h := in.Wrap(func(w http.ResponseWriter, r *http.Request) error {
		_, err := w.Write([]byte("password=hunter2\n"))
		return err
	})
	h.ServeHTTP(httptest.NewRecorder(), browserRequest(http.MethodGet, "/v1/notes.txt"))
	assert.Empty(t, audit.ByAction(string(entity.ActionDataBreachAttempt)))
}

func TestInspector_HandlerPanicReleasesScanner(t *testing.T) {
	in, _, _ := newTestInspector()
	h := in.Wrap(func(w http.ResponseWriter, r *http.Request) error {
		_, _ = w.Write([]byte(`{"partial":`))
		panic("handler failed")
	})
	assert.Panics(t, func() {
		h.ServeHTTP(httptest.NewRecorder(), browserRequest(http.MethodGet, "/v1/units"))
	})
}

func TestInspector_SuspiciousURLRedactsQuery(t *testing.T) {
	in, audit, _ := newTestInspector()
	h := in.Wrap(func(w http.ResponseWriter, r *http.Request) error { return nil })
	h.ServeHTTP(httptest.NewRecorder(), browserRequest(http.MethodGet, "/v1/files/../../etc/passwd?token=abc123&page=2"))

	events := audit.ByAction(string(entity.ActionSuspiciousActivity))
	require.Len(t, events, 1)
	assert.Equal(t, "/v1/files/../../etc/passwd?token=[REDACTED]&page=2", events[0].Details["url"])
}

func TestScanLeaks(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []string
		wantErr bool
	}{
		{"nested array", `{"items":[{"api_key":"abc"},{"name":"x"}]}`, []string{"items.0.api_key"}, false},
		{"redacted ignored", `{"token":"[REDACTED]","user":{"session":{"id":1}}}`, []string{"user.session"}, false},
		{"sensitive array value", `{"cookies":["a","b"],"ok":true}`, []string{"cookies"}, false},
		{"scalar", `"plain"`, []string{}, false},
		{"truncated keeps findings", `{"password":"x","next":`, []string{"password"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScanLeaks(strings.NewReader(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

type panickingAudit struct {
	*securitytest.AuditRecorder
}

func (panickingAudit) LogUserAction(_ context.Context, _ string, _ entity.Outcome, _ inbound.RequestMeta, _ map[string]interface{}) {
	panic("audit store exploded")
}

func TestInspector_AuditPanicGoesToFallback(t *testing.T) {
	in, _, fallback := newTestInspector()
	in.audit = panickingAudit{securitytest.NewAuditRecorder()}

	rec := httptest.NewRecorder()
	in.Wrap(func(w http.ResponseWriter, r *http.Request) error {
		w.WriteHeader(http.StatusAccepted)
		return nil
	}).ServeHTTP(rec, browserRequest(http.MethodPost, "/v1/notes"))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	recent := fallback.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, ReasonInspectorPanic, recent[0].Reason)
}
