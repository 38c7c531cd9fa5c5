package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/fixora/condoguard/application/port/inbound"
	"github.com/fixora/condoguard/application/port/outbound"
	"github.com/fixora/condoguard/application/security/pipeline"
	"github.com/fixora/condoguard/infrastructure/http/response"
	"github.com/fixora/condoguard/infrastructure/service/logger"
)

const (
	ReasonBodyTooLarge   = "body_too_large"
	ReasonBodyUnreadable = "body_unreadable"
)

// RequestMeta is the audit context of r.
func RequestMeta(r *http.Request, trustProxy bool) inbound.RequestMeta {
	return newPipelineRequest(r, trustProxy).Meta()
}

func newPipelineRequest(r *http.Request, trustProxy bool) *pipeline.Request {
	ctx := r.Context()
	req := &pipeline.Request{
		Method:        r.Method,
		Path:          r.URL.Path,
		RawURL:        r.URL.RequestURI(),
		Header:        r.Header,
		ClientIP:      ClientIP(r, trustProxy),
		UserAgent:     r.UserAgent(),
		CorrelationID: CorrelationID(ctx),
		RequestID:     RequestID(ctx),
	}
	if claims := GetUserClaims(ctx); claims != nil {
		userID := claims.UserID
		req.UserID = &userID
		req.SessionID = claims.SessionID
	}
	return req
}

// SecurityMiddleware runs a pipeline chain in front of a handler and turns
// rejections into HTTP responses.
type SecurityMiddleware struct {
	logger       logger.Logger
	metrics      outbound.PipelineMetrics
	maxBodyBytes int64
	trustProxy   bool
}

func NewSecurityMiddleware(log logger.Logger, metrics outbound.PipelineMetrics, maxBodyBytes int64, trustProxy bool) *SecurityMiddleware {
	if metrics == nil {
		metrics = outbound.NoopMetrics{}
	}
	return &SecurityMiddleware{
		logger:       log,
		metrics:      metrics,
		maxBodyBytes: maxBodyBytes,
		trustProxy:   trustProxy,
	}
}

// Guard returns middleware running stages in order. The body is read once,
// handed to the stages, and replayed to the handler.
func (m *SecurityMiddleware) Guard(stages ...pipeline.Stage) func(http.Handler) http.Handler {
	chain := pipeline.NewChain(stages...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := newPipelineRequest(r, m.trustProxy)

			raw, err := m.readBody(w, r)
			if err != nil {
				m.writeRejection(w, r, req, bodyRejection(err))
				return
			}
			req.RawBody = raw

			ctx, rej := chain.Run(r.Context(), req)
			if rej != nil {
				m.writeRejection(w, r, req, rej)
				return
			}

			r = r.WithContext(ctx)
			if raw != nil {
				r.Body = io.NopCloser(bytes.NewReader(raw))
				r.ContentLength = int64(len(raw))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *SecurityMiddleware) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body := r.Body
	if m.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, m.maxBodyBytes)
	}
	defer body.Close()

	return io.ReadAll(body)
}

func bodyRejection(err error) *pipeline.Rejection {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &pipeline.Rejection{
			Status:  http.StatusRequestEntityTooLarge,
			Message: "Request body too large",
			Errors:  []string{"request body exceeds the allowed size"},
			Reason:  ReasonBodyTooLarge,
		}
	}
	return &pipeline.Rejection{
		Status:  http.StatusBadRequest,
		Message: "Invalid request payload",
		Errors:  []string{"request body could not be processed"},
		Reason:  ReasonBodyUnreadable,
	}
}

func (m *SecurityMiddleware) writeRejection(w http.ResponseWriter, r *http.Request, req *pipeline.Request, rej *pipeline.Rejection) {
	m.metrics.Rejection(rej.Reason)
	m.logger.Warn(r.Context(), "request rejected", map[string]interface{}{
		"reason":  rej.Reason,
		"status":  rej.Status,
		"method":  req.Method,
		"path":    req.Path,
		"ip":      req.ClientIP,
		"user_id": req.Meta().UserID,
	})
	response.Rejection(w, rej)
}
