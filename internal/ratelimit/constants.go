// Package ratelimit throttles outbound identity exchanges per cloud provider.
package ratelimit

import "time"

// Provider identity endpoints throttle per account or project. A vend burst
// (for example a query planner fanning out over many tables) must not push the
// service into provider-side throttling, which fails every caller at once.
//
// Each scope targets a fraction of the provider quota and allows a burst of
// one second's worth of requests.
const (
	// AWSLimitPerSec is the default STS request quota per account and region.
	AWSLimitPerSec = 600

	// AzureLimitPerSec is a conservative budget for AAD token requests plus
	// Get User Delegation Key calls, both issued on every Azure vend.
	AzureLimitPerSec = 50

	// GCPLimitPerSec is the Security Token Service exchange quota (6000/minute).
	GCPLimitPerSec = 100

	// TargetPercent of each quota used by default
	TargetPercent = 80
)

// Warning thresholds, matching how long a caller can be held before it notices.
const (
	// SlowWaitThreshold - waits longer than this are logged
	SlowWaitThreshold = 2 * time.Second

	// WarnInterval - minimum spacing between "rate limited" warnings per scope
	WarnInterval = 10 * time.Second
)
