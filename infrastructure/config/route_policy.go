package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fixora/condoguard/application/security/ratelimit"
)

// RoutePolicy is the parsed rate limit policy file:
//
//	classes:
//	  payment: {limit: 20, window: 1m}
//	  reports: {limit: 5, window: 10m}
//	rules:
//	  - {prefix: /v1/reports/, class: reports}
type RoutePolicy struct {
	Classes map[string]ratelimit.RouteClass
	Rules   []ratelimit.RouteRule
}

type routePolicyFile struct {
	Classes map[string]struct {
		Limit  int64  `yaml:"limit"`
		Window string `yaml:"window"`
	} `yaml:"classes"`
	Rules []struct {
		Prefix string `yaml:"prefix"`
		Class  string `yaml:"class"`
	} `yaml:"rules"`
}

func LoadRoutePolicy(path string) (*RoutePolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate limit policy: %w", err)
	}
	return ParseRoutePolicy(data)
}

// ParseRoutePolicy decodes a policy document. Unknown keys are rejected.
func ParseRoutePolicy(data []byte) (*RoutePolicy, error) {
	var raw routePolicyFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: parse policy: %v", ErrInvalidRateLimit, err)
	}

	policy := &RoutePolicy{Classes: make(map[string]ratelimit.RouteClass, len(raw.Classes))}
	for name, c := range raw.Classes {
		window, err := time.ParseDuration(c.Window)
		if err != nil {
			return nil, fmt.Errorf("%w: class %s window %q: %v", ErrInvalidRateLimit, name, c.Window, err)
		}
		class := ratelimit.RouteClass{Name: name, Limit: c.Limit, Window: window}
		if err := class.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRateLimit, err)
		}
		policy.Classes[name] = class
	}
	for _, r := range raw.Rules {
		if r.Prefix == "" || r.Class == "" {
			return nil, fmt.Errorf("%w: rule needs prefix and class", ErrInvalidRateLimit)
		}
		policy.Rules = append(policy.Rules, ratelimit.RouteRule{Prefix: r.Prefix, Class: r.Class})
	}
	return policy, nil
}

// Apply adds or overrides classes. Rules from the policy replace the
// built-in rules when any are present.
func (p *RoutePolicy) Apply(classes map[string]ratelimit.RouteClass, rules *[]ratelimit.RouteRule) {
	for name, c := range p.Classes {
		classes[name] = c
	}
	if len(p.Rules) > 0 {
		*rules = append([]ratelimit.RouteRule(nil), p.Rules...)
	}
}
