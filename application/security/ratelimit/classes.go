package ratelimit

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	ClassAuth    = "auth"
	ClassPayment = "payment"
	ClassAdmin   = "admin"
	ClassGeneral = "general"
)

// RouteClass is an independently configured (limit, window) pair.
type RouteClass struct {
	Name   string
	Limit  int64
	Window time.Duration
}

func (c RouteClass) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("route class: name is required")
	}
	if c.Limit <= 0 {
		return fmt.Errorf("route class %s: limit must be positive", c.Name)
	}
	if c.Window <= 0 {
		return fmt.Errorf("route class %s: window must be positive", c.Name)
	}
	return nil
}

// DefaultClasses returns the built-in classes.
func DefaultClasses() map[string]RouteClass {
	return map[string]RouteClass{
		ClassAuth:    {Name: ClassAuth, Limit: 10, Window: 15 * time.Minute},
		ClassPayment: {Name: ClassPayment, Limit: 30, Window: time.Minute},
		ClassAdmin:   {Name: ClassAdmin, Limit: 60, Window: time.Minute},
		ClassGeneral: {Name: ClassGeneral, Limit: 100, Window: time.Minute},
	}
}

// RouteRule maps a path prefix to a class. The longest matching prefix wins.
type RouteRule struct {
	Prefix string
	Class  string
}

// DefaultRules returns the built-in path prefix mapping.
func DefaultRules() []RouteRule {
	return []RouteRule{
		{Prefix: "/v1/auth/", Class: ClassAuth},
		{Prefix: "/v1/payments", Class: ClassPayment},
		{Prefix: "/v1/admin/", Class: ClassAdmin},
	}
}

func sortRules(rules []RouteRule) []RouteRule {
	out := append([]RouteRule(nil), rules...)
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].Prefix) > len(out[j].Prefix) })
	return out
}

func matchRule(rules []RouteRule, path string) (RouteRule, bool) {
	for _, r := range rules {
		if strings.HasPrefix(path, r.Prefix) {
			return r, true
		}
	}
	return RouteRule{}, false
}
