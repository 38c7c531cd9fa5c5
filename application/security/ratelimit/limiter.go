// Package ratelimit enforces per-client, per-route fixed-window limits over an
// atomic counter store.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"path"
	"time"

	"github.com/fixora/condoguard/application/port/inbound"
	"github.com/fixora/condoguard/application/port/outbound"
	"github.com/fixora/condoguard/application/security/pipeline"
	"github.com/fixora/condoguard/domain/entity"
)

const (
	StageName = "rate_limit"

	// RiskScore is recorded on rate_limit_exceeded events.
	RiskScore = 50

	// UnmatchedRoute is the route of the bucket shared by every path that
	// matched no registered route.
	UnmatchedRoute = "unmatched"
)

// ErrorHandler is told about counter store failures. The limiter fails open.
type ErrorHandler func(ctx context.Context, err error, fields map[string]interface{})

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Key        string
	Count      int64
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

type Limiter struct {
	store   outbound.CounterStore
	audit   inbound.AuditLogger
	metrics outbound.PipelineMetrics
	onError ErrorHandler
	now     func() time.Time

	classes map[string]RouteClass
	rules   []RouteRule
}

// NewLimiter builds a limiter. classes must contain ClassGeneral; rules
// may be empty.
func NewLimiter(store outbound.CounterStore, audit inbound.AuditLogger, classes map[string]RouteClass, rules []RouteRule) (*Limiter, error) {
	if _, ok := classes[ClassGeneral]; !ok {
		return nil, fmt.Errorf("rate limit classes: %q is required", ClassGeneral)
	}
	for name, c := range classes {
		if c.Name != name {
			return nil, fmt.Errorf("rate limit class %q registered as %q", c.Name, name)
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	for _, r := range rules {
		if _, ok := classes[r.Class]; !ok {
			return nil, fmt.Errorf("rate limit rule %q: unknown class %q", r.Prefix, r.Class)
		}
	}

	return &Limiter{
		store:   store,
		audit:   audit,
		metrics: outbound.NoopMetrics{},
		onError: func(context.Context, error, map[string]interface{}) {},
		now:     time.Now,
		classes: classes,
		rules:   sortRules(rules),
	}, nil
}

func (l *Limiter) SetErrorHandler(h ErrorHandler) { l.onError = h }

func (l *Limiter) SetMetrics(m outbound.PipelineMetrics) { l.metrics = m }

func (l *Limiter) SetClock(now func() time.Time) { l.now = now }

// Class returns the named class, or ClassGeneral when unknown.
func (l *Limiter) Class(name string) RouteClass {
	if c, ok := l.classes[name]; ok {
		return c
	}
	return l.classes[ClassGeneral]
}

// Resolve picks the class for a request path.
func (l *Limiter) Resolve(p string) RouteClass {
	if r, ok := matchRule(l.rules, p); ok {
		return l.Class(r.Class)
	}
	return l.classes[ClassGeneral]
}

// BucketKey is the counter key for a class, route and client.
func BucketKey(class, route, clientKey string) string {
	return fmt.Sprintf("rl:%s:%s:%s", class, route, clientKey)
}

// Allow increments the counter for (class, route, client) and reports whether
// the request is within budget.
func (l *Limiter) Allow(ctx context.Context, class RouteClass, route, clientKey string) (Decision, error) {
	key := BucketKey(class.Name, route, clientKey)
	c, err := l.store.Increment(ctx, key, class.Limit, class.Window)
	if err != nil {
		return Decision{Allowed: true, Key: key, Limit: class.Limit}, fmt.Errorf("increment %s: %w", key, err)
	}

	d := Decision{
		Allowed:   !c.Exceeded(),
		Key:       key,
		Count:     c.Count,
		Limit:     c.Limit,
		Remaining: c.Limit - c.Count,
		ResetAt:   c.ResetAt(),
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = retryAfter(d.ResetAt.Sub(l.now()))
	}
	return d, nil
}

func retryAfter(d time.Duration) time.Duration {
	secs := math.Ceil(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

// Stage limits every request under a fixed class and route.
func (l *Limiter) Stage(className, route string) pipeline.Stage {
	class := l.Class(className)
	return pipeline.StageFunc{StageName: StageName, Fn: func(ctx context.Context, req *pipeline.Request) (context.Context, *pipeline.Rejection) {
		return ctx, l.check(ctx, class, route, req)
	}}
}

// AutoStage resolves the class from the request path and uses the cleaned
// path as the route.
func (l *Limiter) AutoStage() pipeline.Stage {
	return pipeline.StageFunc{StageName: StageName, Fn: func(ctx context.Context, req *pipeline.Request) (context.Context, *pipeline.Rejection) {
		route := path.Clean("/" + req.Path)
		return ctx, l.check(ctx, l.Resolve(route), route, req)
	}}
}

// UnmatchedStage limits requests that matched no route. The class still
// follows the path, but all unknown paths from one client share a bucket.
func (l *Limiter) UnmatchedStage() pipeline.Stage {
	return pipeline.StageFunc{StageName: StageName, Fn: func(ctx context.Context, req *pipeline.Request) (context.Context, *pipeline.Rejection) {
		return ctx, l.check(ctx, l.Resolve(path.Clean("/"+req.Path)), UnmatchedRoute, req)
	}}
}

func (l *Limiter) check(ctx context.Context, class RouteClass, route string, req *pipeline.Request) *pipeline.Rejection {
	d, err := l.Allow(ctx, class, route, req.ClientIP)
	if err != nil {
		l.onError(ctx, err, map[string]interface{}{
			"class": class.Name,
			"route": route,
			"ip":    req.ClientIP,
		})
		return nil
	}
	if d.Allowed {
		return nil
	}

	l.metrics.RiskScore(string(entity.ActionRateLimitExceeded), RiskScore)
	l.audit.LogSecurityEvent(ctx, entity.ActionRateLimitExceeded, RiskScore, req.Meta(), map[string]interface{}{
		"bucket":        d.Key,
		"class":         class.Name,
		"route":         route,
		"method":        req.Method,
		"count":         d.Count,
		"limit":         d.Limit,
		"windowSeconds": int64(class.Window.Seconds()),
	})

	return &pipeline.Rejection{
		Status:     http.StatusTooManyRequests,
		Message:    "Too many requests",
		Errors:     []string{"rate limit exceeded, retry later"},
		RetryAfter: d.RetryAfter,
		Reason:     StageName,
	}
}
