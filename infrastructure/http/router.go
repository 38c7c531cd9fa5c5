package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fixora/condoguard/application/port/inbound"
	"github.com/fixora/condoguard/application/port/outbound"
	"github.com/fixora/condoguard/application/security/gate"
	"github.com/fixora/condoguard/application/security/pipeline"
	"github.com/fixora/condoguard/application/security/ratelimit"
	"github.com/fixora/condoguard/infrastructure/config"
	"github.com/fixora/condoguard/infrastructure/http/handler"
	"github.com/fixora/condoguard/infrastructure/http/middleware"
	"github.com/fixora/condoguard/infrastructure/http/response"
)

// Dependencies are the collaborators the router composes per route.
type Dependencies struct {
	Audit     inbound.AuditService
	Auth      *middleware.AuthMiddleware
	Security  *middleware.SecurityMiddleware
	Inspector *middleware.Inspector
	Gate      *gate.Gate
	Limiter   *ratelimit.Limiter // nil disables rate limiting
	Metrics   http.Handler       // nil disables the metrics endpoint
	Health    func() map[string]interface{}
}

type router struct {
	deps      Dependencies
	limits    []pipeline.Stage
	unmatched []pipeline.Stage
}

// NewRouter builds the HTTP handler. Every API route runs
// rate limit -> validation gate -> inspector -> auth -> handler, behind the
// correlation, CORS and identity middleware.
func NewRouter(cfg *config.Config, deps Dependencies) http.Handler {
	rt := &router{deps: deps}
	if deps.Limiter != nil {
		rt.limits = []pipeline.Stage{deps.Limiter.AutoStage()}
		rt.unmatched = []pipeline.Stage{deps.Limiter.UnmatchedStage()}
	}

	r := mux.NewRouter()
	// paths reach the inspector as sent, traversal included
	r.SkipClean(true)

	r.HandleFunc("/health", rt.health).Methods(http.MethodGet)
	if deps.Metrics != nil {
		r.Handle(cfg.MetricsPath, deps.Metrics).Methods(http.MethodGet)
	}

	audit := handler.NewAuditHandler(deps.Audit)
	auth := handler.NewAuthHandler(deps.Audit, cfg.TrustProxyHeaders)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Handle("/admin/audit-logs",
		rt.route(deps.Auth.RequireAdmin(audit.ListAuditLogs), nil, middleware.WithoutLeakScan()),
	).Methods(http.MethodGet)
	v1.Handle("/admin/audit-logs/stats",
		rt.route(deps.Auth.RequireAdmin(audit.GetAuditLogStats), nil, middleware.WithoutLeakScan()),
	).Methods(http.MethodGet)
	v1.Handle("/admin/security/insights",
		rt.route(deps.Auth.RequireAdmin(audit.GetSecurityInsights), nil, middleware.WithoutLeakScan()),
	).Methods(http.MethodGet)
	v1.Handle("/auth/login-events",
		rt.route(deps.Auth.RequireRole(auth.RecordLoginEvent, outbound.RoleService, outbound.RoleAdmin), handler.LoginEventSchema),
	).Methods(http.MethodPost)

	r.NotFoundHandler = rt.fallback(func(w http.ResponseWriter, _ *http.Request) {
		response.NotFound(w, "Resource not found")
	})
	r.MethodNotAllowedHandler = rt.fallback(func(w http.ResponseWriter, _ *http.Request) {
		response.MethodNotAllowed(w)
	})

	var h http.Handler = deps.Auth.Identify(r)
	if cfg.CORSEnabled && len(cfg.CORSAllowedOrigins) > 0 {
		h = middleware.CORSMiddleware(h, cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials)
	}
	return middleware.CorrelationIDMiddleware(h)
}

// route wraps h in the security pipeline. A non-nil schema adds the
// validation gate after rate limiting.
func (rt *router) route(h middleware.AppHandler, schema *gate.Schema, opts ...middleware.InspectOption) http.Handler {
	stages := append([]pipeline.Stage{}, rt.limits...)
	if schema != nil {
		stages = append(stages, rt.deps.Gate.Stage(schema))
	}
	return rt.deps.Security.Guard(stages...)(rt.deps.Inspector.Wrap(h, opts...))
}

// fallback keeps unmatched requests under rate limiting and inspection;
// scans of unknown paths are the common case for traversal attempts. All
// unknown paths from one client draw on a single bucket.
func (rt *router) fallback(fn http.HandlerFunc) http.Handler {
	return rt.deps.Security.Guard(rt.unmatched...)(rt.deps.Inspector.WrapHandler(fn))
}

func (rt *router) health(w http.ResponseWriter, _ *http.Request) {
	data := map[string]interface{}{"status": "healthy"}
	if rt.deps.Health != nil {
		for k, v := range rt.deps.Health() {
			data[k] = v
		}
	}
	response.Success(w, http.StatusOK, "OK", data)
}
