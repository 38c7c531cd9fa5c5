package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoBody is returned by Decode when the gate did not run for the request.
var ErrNoBody = errors.New("no validated request body in context")

type bodyKey struct{}

func withBody(ctx context.Context, v interface{}) context.Context {
	return context.WithValue(ctx, bodyKey{}, v)
}

// Body returns the sanitized body stored by the gate.
func Body(ctx context.Context) (interface{}, bool) {
	v := ctx.Value(bodyKey{})
	return v, v != nil
}

// Decode converts the sanitized body into T.
func Decode[T any](ctx context.Context) (T, error) {
	var out T
	v, ok := Body(ctx)
	if !ok {
		return out, ErrNoBody
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("decode body: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode body: %w", err)
	}
	return out, nil
}
