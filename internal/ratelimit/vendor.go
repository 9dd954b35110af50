package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/rescale/credvend/internal/cloud"
)

// throttledVendor waits for a token before each identity exchange.
type throttledVendor struct {
	next    cloud.Vendor
	limiter *RateLimiter
}

// throttledProber also forwards Probe, which lists with the minted credential
// and costs no identity exchange.
type throttledProber struct {
	throttledVendor
	prober cloud.Prober
}

// Wrap returns v throttled by the limiter for provider p. When p is
// unthrottled v is returned as is.
func (r *Registry) Wrap(p cloud.Provider, v cloud.Vendor) cloud.Vendor {
	limiter := r.Limiter(p)
	if limiter == nil {
		return v
	}
	tv := throttledVendor{next: v, limiter: limiter}
	if prober, ok := v.(cloud.Prober); ok {
		return &throttledProber{throttledVendor: tv, prober: prober}
	}
	return &tv
}

func (t *throttledVendor) Vend(ctx context.Context, cc cloud.CredentialContext) (*cloud.CredentialResponse, error) {
	start := time.Now()
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, cloud.NewProviderError("ratelimit.Vend",
			fmt.Errorf("%s identity exchange not attempted: rate limit wait: %w", t.limiter.scope, err))
	}
	cloud.TimingLog(nil, "%s rate limit wait: %v", t.limiter.scope, time.Since(start))
	return t.next.Vend(ctx, cc)
}

func (t *throttledProber) Probe(ctx context.Context, cc cloud.CredentialContext, resp *cloud.CredentialResponse) error {
	return t.prober.Probe(ctx, cc, resp)
}

var (
	_ cloud.Vendor = (*throttledVendor)(nil)
	_ cloud.Prober = (*throttledProber)(nil)
)
