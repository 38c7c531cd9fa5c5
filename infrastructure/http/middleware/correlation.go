package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/fixora/condoguard/infrastructure/service/logger"
)

const (
	CorrelationIDHeader = "X-Correlation-ID"
	RequestIDHeader     = "X-Request-ID"

	maxCorrelationIDLength = 128
)

type requestIDKey struct{}

// CorrelationIDMiddleware ensures every request/response carries a correlation ID
// (upstream value kept when well-formed) and a fresh request ID.
func CorrelationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid := r.Header.Get(CorrelationIDHeader)
		if !validCorrelationID(cid) {
			cid = uuid.NewString()
		}
		rid := uuid.NewString()

		w.Header().Set(CorrelationIDHeader, cid)
		w.Header().Set(RequestIDHeader, rid)

		ctx := logger.WithCorrelationID(r.Context(), cid)
		ctx = context.WithValue(ctx, requestIDKey{}, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validCorrelationID accepts short printable ASCII tokens only.
func validCorrelationID(s string) bool {
	if s == "" || len(s) > maxCorrelationIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= 0x20 || c >= 0x7F {
			return false
		}
	}
	return true
}

func CorrelationID(ctx context.Context) string {
	return logger.CorrelationID(ctx)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
