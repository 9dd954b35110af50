package constants

import (
	"time"
)

// Credential lifetimes
const (
	// DefaultAWSSessionDuration - lifetime requested from STS for vended AWS sessions (1 hour)
	// STS accepts 900s..43200s for GetFederationToken and 900s..role max for AssumeRole
	DefaultAWSSessionDuration = 1 * time.Hour

	// MinAWSSessionDuration - STS lower bound (15 minutes)
	MinAWSSessionDuration = 15 * time.Minute

	// MaxAWSSessionDuration - STS upper bound for federation tokens (12 hours)
	MaxAWSSessionDuration = 12 * time.Hour

	// DefaultAzureKeyLifetime - validity window requested for the user delegation key (1 hour)
	DefaultAzureKeyLifetime = 1 * time.Hour

	// DefaultAzureSASCeiling - upper bound on the SAS expiry regardless of key validity (1 hour)
	DefaultAzureSASCeiling = 1 * time.Hour

	// MaxAzureKeyLifetime - Azure rejects user delegation keys valid for more than 7 days
	MaxAzureKeyLifetime = 7 * 24 * time.Hour

	// AzureClockSkewAllowance - SAS start time is backdated by this much (5 minutes)
	// so clients with slightly fast clocks can use the token immediately
	AzureClockSkewAllowance = 5 * time.Minute
)

// Provider defaults
const (
	// DefaultAWSRegion - region used for STS when neither config nor environment sets one
	DefaultAWSRegion = "us-east-1"

	// SessionNamePrefix - prefix for STS federated user / role session names
	// STS limits names to 32 characters (federation) and 64 (role sessions)
	SessionNamePrefix = "credvend-"

	// AzureStorageScope - AAD scope for the blob service
	AzureStorageScope = "https://storage.azure.com/.default"

	// GCSReadOnlyScope - OAuth scope granted for SELECT-only requests
	GCSReadOnlyScope = "https://www.googleapis.com/auth/devstorage.read_only"

	// GCSReadWriteScope - OAuth scope granted when UPDATE is requested
	GCSReadWriteScope = "https://www.googleapis.com/auth/devstorage.read_write"
)

// Server settings
const (
	// DefaultServerPort - HTTP listen port when server.port is not set
	DefaultServerPort = 8080

	// APIPathPrefix - route prefix shared with the catalog REST API
	APIPathPrefix = "/api/2.1/unity-catalog"

	// ServerReadHeaderTimeout - guards against slow-loris clients (10 seconds)
	ServerReadHeaderTimeout = 10 * time.Second

	// ServerShutdownTimeout - drain window for in-flight vend calls on SIGTERM (30 seconds)
	// A vend call is bounded by one provider round trip, so 30s covers the slow path
	ServerShutdownTimeout = 30 * time.Second

	// MaxRequestBodyBytes - request bodies are tiny JSON documents (64 KB)
	MaxRequestBodyBytes = 64 * 1024
)

// API and Context Timeouts
const (
	// APIContextTimeout - default timeout for client calls to a running server (30 seconds)
	APIContextTimeout = 30 * time.Second

	// ProviderCallTimeout - per-request bound applied by the server to provider exchanges (60 seconds)
	ProviderCallTimeout = 60 * time.Second
)

// Retry configuration (caller side only, see internal/api)
const (
	// MaxRetries - maximum number of retries for transient errors
	MaxRetries = 4

	// RetryInitialDelay - initial delay before first retry (500ms)
	RetryInitialDelay = 500 * time.Millisecond

	// RetryMaxDelay - maximum delay between retries (10s)
	RetryMaxDelay = 10 * time.Second
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (30 seconds)
	HTTPTLSHandshakeTimeout = 30 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPClientTimeout - overall bound on one provider HTTP exchange (120 seconds)
	// This is the only latency bound on a vend call besides the caller's context
	HTTPClientTimeout = 120 * time.Second
)
