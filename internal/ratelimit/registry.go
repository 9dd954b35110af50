package ratelimit

import (
	"fmt"

	"github.com/rescale/credvend/internal/cloud"
	"github.com/rescale/credvend/internal/config"
	"github.com/rescale/credvend/internal/logging"
)

// Scope identifies a provider throttle scope.
type Scope string

const (
	ScopeAWS   Scope = "aws"
	ScopeAzure Scope = "azure"
	ScopeGCP   Scope = "gcp"
)

// ScopeConfig holds the limit configuration for a single scope.
type ScopeConfig struct {
	Scope         Scope
	LimitPerSec   float64 // provider quota
	TargetRate    float64 // our rate (requests per second)
	TargetPercent float64
	Burst         int
}

// Registry maps providers to their limiter. A scope with no limiter is
// unthrottled.
type Registry struct {
	configs  map[Scope]ScopeConfig
	limiters map[Scope]*RateLimiter
}

func defaultConfig(scope Scope, limit float64) ScopeConfig {
	target := limit * TargetPercent / 100
	return ScopeConfig{
		Scope:         scope,
		LimitPerSec:   limit,
		TargetRate:    target,
		TargetPercent: TargetPercent,
		Burst:         int(target),
	}
}

// DefaultConfigs returns the per-provider defaults.
func DefaultConfigs() map[Scope]ScopeConfig {
	return map[Scope]ScopeConfig{
		ScopeAWS:   defaultConfig(ScopeAWS, AWSLimitPerSec),
		ScopeAzure: defaultConfig(ScopeAzure, AzureLimitPerSec),
		ScopeGCP:   defaultConfig(ScopeGCP, GCPLimitPerSec),
	}
}

// NewRegistry builds limiters from configuration. With cfg.Enabled false the
// registry throttles nothing.
func NewRegistry(cfg config.RateLimitConfig, logger *logging.Logger) *Registry {
	r := &Registry{
		configs:  DefaultConfigs(),
		limiters: make(map[Scope]*RateLimiter),
	}
	if !cfg.Enabled {
		return r
	}

	overrides := map[Scope]float64{ScopeAWS: cfg.AWS, ScopeAzure: cfg.Azure, ScopeGCP: cfg.GCP}
	for scope, sc := range r.configs {
		override := overrides[scope]
		switch {
		case override < 0:
			continue
		case override > 0:
			sc.TargetRate = override
			sc.TargetPercent = 100 * override / sc.LimitPerSec
			sc.Burst = int(override)
			r.configs[scope] = sc
		}
		r.limiters[scope] = NewRateLimiter(scope, sc.TargetRate, sc.Burst, logger)
	}
	return r
}

// ScopeFor maps a provider to its scope. ProviderNone has no scope.
func ScopeFor(p cloud.Provider) (Scope, bool) {
	switch p {
	case cloud.ProviderAWS:
		return ScopeAWS, true
	case cloud.ProviderAzure:
		return ScopeAzure, true
	case cloud.ProviderGCP:
		return ScopeGCP, true
	}
	return "", false
}

// Limiter returns the limiter for p, or nil when p is unthrottled.
func (r *Registry) Limiter(p cloud.Provider) *RateLimiter {
	scope, ok := ScopeFor(p)
	if !ok {
		return nil
	}
	return r.limiters[scope]
}

// ScopeConfig returns the effective configuration for scope.
func (r *Registry) ScopeConfig(scope Scope) (ScopeConfig, bool) {
	sc, ok := r.configs[scope]
	return sc, ok
}

// ScopeDisplayString describes scope for logging, e.g. "aws (480.00/sec, burst 480)".
func (r *Registry) ScopeDisplayString(scope Scope) string {
	sc, ok := r.configs[scope]
	if !ok {
		return string(scope) + " (unknown scope)"
	}
	if r.limiters[scope] == nil {
		return string(scope) + " (unlimited)"
	}
	return fmt.Sprintf("%s (%.2f/sec, burst %d)", scope, sc.TargetRate, sc.Burst)
}
