// Package api is the caller-side client for a running credential server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/rescale/credvend/internal/constants"
	"github.com/rescale/credvend/internal/logging"
	"github.com/rescale/credvend/internal/models"
)

// retryLogger implements retryablehttp.LeveledLogger over the shared logger.
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Only errors and warnings are interesting
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

// Options configures a Client.
type Options struct {
	// HTTPClient is the underlying transport (default: a fresh client)
	HTTPClient *nethttp.Client

	// RetryMax bounds retries of transient failures. Default: constants.MaxRetries
	RetryMax int

	Logger *logging.Logger
}

// Client calls the temporary credential endpoints of a credential server.
type Client struct {
	httpClient *nethttp.Client
	baseURL    string
	logger     *logging.Logger
}

// NewClient creates a client for the server at baseURL (scheme://host[:port]).
func NewClient(baseURL string, opts Options) (*Client, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("server URL is empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", baseURL)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	retryClient := retryablehttp.NewClient()
	if opts.HTTPClient != nil {
		retryClient.HTTPClient = opts.HTTPClient
	}
	retryClient.RetryMax = constants.MaxRetries
	if opts.RetryMax > 0 {
		retryClient.RetryMax = opts.RetryMax
	}
	retryClient.RetryWaitMin = constants.RetryInitialDelay
	retryClient.RetryWaitMax = constants.RetryMaxDelay
	retryClient.Logger = &retryLogger{logger: logger}
	// Hand the final response to the caller instead of a generic "giving up" error
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		httpClient: retryClient.StandardClient(),
		baseURL:    baseURL,
		logger:     logger,
	}, nil
}

// GenerateTemporaryTableCredential requests a credential for a table.
func (c *Client) GenerateTemporaryTableCredential(ctx context.Context, tableID, operation string) (*models.GenerateTemporaryTableCredentialResponse, error) {
	var out models.GenerateTemporaryTableCredentialResponse
	req := models.GenerateTemporaryTableCredential{TableID: tableID, Operation: operation}
	if err := c.post(ctx, "/temporary-table-credentials", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateTemporaryVolumeCredential requests a credential for a volume.
func (c *Client) GenerateTemporaryVolumeCredential(ctx context.Context, volumeID, operation string) (*models.GenerateTemporaryVolumeCredentialResponse, error) {
	var out models.GenerateTemporaryVolumeCredentialResponse
	req := models.GenerateTemporaryVolumeCredential{VolumeID: volumeID, Operation: operation}
	if err := c.post(ctx, "/temporary-volume-credentials", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != nethttp.StatusOK {
		return decodeError(resp)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, c.baseURL+constants.APIPathPrefix+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Str("path", path).Err(err).Msg("credential request failed")
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *nethttp.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	apiErr := &Error{StatusCode: resp.StatusCode}
	var er models.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.ErrorCode != "" {
		apiErr.ErrorCode = er.ErrorCode
		apiErr.Message = er.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// StatusOf returns the HTTP status of an API error, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
