// Package pipeline defines the request descriptor and the ordered stage
// contract that the security checks are composed from.
package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fixora/condoguard/application/port/inbound"
)

// Request is the transport-neutral view of an inbound request.
type Request struct {
	Method    string
	Path      string
	RawURL    string
	Header    http.Header
	RawBody   []byte
	Body      interface{}
	ClientIP  string
	UserAgent string
	UserID    *string

	CorrelationID string
	RequestID     string
	SessionID     string
}

// Meta returns the audit context for this request.
func (r *Request) Meta() inbound.RequestMeta {
	meta := inbound.RequestMeta{
		IPAddress:     r.ClientIP,
		UserAgent:     r.UserAgent,
		CorrelationID: r.CorrelationID,
		RequestID:     r.RequestID,
		SessionID:     r.SessionID,
	}
	if r.UserID != nil {
		meta.UserID = *r.UserID
	}
	return meta
}

// Rejection stops the chain. Message and Errors are sent to the client;
// Reason is only used for logs and metrics.
type Rejection struct {
	Status     int
	Message    string
	Errors     []string
	RetryAfter time.Duration
	Reason     string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("request rejected (%d): %s", r.Status, r.Reason)
}

// Stage is one step of the chain. It returns the context for the next stage
// or a rejection.
type Stage interface {
	Name() string
	Process(ctx context.Context, req *Request) (context.Context, *Rejection)
}

// StageFunc adapts a function to Stage.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context, req *Request) (context.Context, *Rejection)
}

func (s StageFunc) Name() string { return s.StageName }

func (s StageFunc) Process(ctx context.Context, req *Request) (context.Context, *Rejection) {
	return s.Fn(ctx, req)
}

// Chain runs stages in order and stops at the first rejection.
type Chain struct {
	stages []Stage
}

func NewChain(stages ...Stage) *Chain {
	return &Chain{stages: stages}
}

// Then returns a new chain with more stages appended.
func (c *Chain) Then(stages ...Stage) *Chain {
	all := make([]Stage, 0, len(c.stages)+len(stages))
	all = append(all, c.stages...)
	all = append(all, stages...)
	return &Chain{stages: all}
}

func (c *Chain) Names() []string {
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.Name()
	}
	return names
}

func (c *Chain) Run(ctx context.Context, req *Request) (context.Context, *Rejection) {
	for _, s := range c.stages {
		next, rej := s.Process(ctx, req)
		if rej != nil {
			if rej.Reason == "" {
				rej.Reason = s.Name()
			}
			return ctx, rej
		}
		if next != nil {
			ctx = next
		}
	}
	return ctx, nil
}
