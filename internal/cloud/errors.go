package cloud

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes a vending failure.
type Kind string

const (
	// KindPreconditionFailed: the table or volume has no storage location.
	KindPreconditionFailed Kind = "precondition-failed"

	// KindUnsupportedScheme: no vendor exists for the location's scheme.
	KindUnsupportedScheme Kind = "unsupported-scheme"

	// KindProviderError: the cloud identity exchange failed or returned an unusable credential.
	KindProviderError Kind = "provider-error"

	// KindConfigurationMissing: the provider needs a bucket/container entry and there is none.
	KindConfigurationMissing Kind = "configuration-missing"

	// KindInvalidArgument: unparsable location or empty privilege set.
	KindInvalidArgument Kind = "invalid-argument"

	// KindNotFound: the table or volume does not exist.
	KindNotFound Kind = "not-found"
)

// Sentinels for errors.Is matching on kind only.
var (
	ErrPreconditionFailed   = &VendError{Kind: KindPreconditionFailed}
	ErrUnsupportedScheme    = &VendError{Kind: KindUnsupportedScheme}
	ErrProviderError        = &VendError{Kind: KindProviderError}
	ErrConfigurationMissing = &VendError{Kind: KindConfigurationMissing}
	ErrInvalidArgument      = &VendError{Kind: KindInvalidArgument}
	ErrNotFound             = &VendError{Kind: KindNotFound}
)

// VendError is returned by every vending operation.
//
//	err := &VendError{
//		Op:   "azure.Vend",
//		Kind: KindConfigurationMissing,
//		Err:  fmt.Errorf("no ADLS configuration for %s", root),
//	}
type VendError struct {
	// Op is the operation that failed (e.g. "s3.Vend", "services.VendCredentialForTable").
	Op string

	// Kind categorizes the error.
	Kind Kind

	// Err is the underlying cause. Its message is what API callers see.
	Err error
}

func (e *VendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("credvend: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("credvend: %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *VendError) Unwrap() error {
	return e.Err
}

// Is matches another *VendError by Kind (and by Op when the target sets one),
// then falls through to the wrapped error.
func (e *VendError) Is(target error) bool {
	if target == nil {
		return false
	}
	if t, ok := target.(*VendError); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}
	return errors.Is(e.Err, target)
}

// Message is the caller-facing text: the cause without the op/kind decoration.
func (e *VendError) Message() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

// ErrorCode maps the kind onto the catalog API error code.
func (e *VendError) ErrorCode() string {
	switch e.Kind {
	case KindPreconditionFailed:
		return "FAILED_PRECONDITION"
	case KindUnsupportedScheme, KindInvalidArgument:
		return "INVALID_ARGUMENT"
	case KindNotFound:
		return "NOT_FOUND"
	default:
		return "INTERNAL"
	}
}

// KindOf returns the kind of the first VendError in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var ve *VendError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return ""
}

// NewPreconditionFailedError creates a VendError with KindPreconditionFailed.
func NewPreconditionFailedError(op string, err error) *VendError {
	return &VendError{Op: op, Kind: KindPreconditionFailed, Err: err}
}

// NewUnsupportedSchemeError creates a VendError with KindUnsupportedScheme.
func NewUnsupportedSchemeError(op string, err error) *VendError {
	return &VendError{Op: op, Kind: KindUnsupportedScheme, Err: err}
}

// NewProviderError creates a VendError with KindProviderError.
func NewProviderError(op string, err error) *VendError {
	return &VendError{Op: op, Kind: KindProviderError, Err: err}
}

// NewConfigurationMissingError creates a VendError with KindConfigurationMissing.
func NewConfigurationMissingError(op string, err error) *VendError {
	return &VendError{Op: op, Kind: KindConfigurationMissing, Err: err}
}

// NewInvalidArgumentError creates a VendError with KindInvalidArgument.
func NewInvalidArgumentError(op string, err error) *VendError {
	return &VendError{Op: op, Kind: KindInvalidArgument, Err: err}
}

// NewNotFoundError creates a VendError with KindNotFound.
func NewNotFoundError(op string, err error) *VendError {
	return &VendError{Op: op, Kind: KindNotFound, Err: err}
}

// IsNetworkError checks if an error looks network-related.
// Only used to enrich log context; nothing retries on it.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	networkIndicators := []string{
		"connection",    // connection refused, connection reset, etc.
		"timeout",       // i/o timeout, dial timeout, etc.
		"network",       // network unreachable, network error, etc.
		"eof",           // unexpected EOF
		"broken pipe",   // broken pipe
		"tls handshake", // TLS handshake errors
		"no such host",  // DNS
	}

	for _, indicator := range networkIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}

// IsCredentialError checks if an error is authentication/authorization related.
func IsCredentialError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	credentialIndicators := []string{
		"403",                   // HTTP Forbidden
		"401",                   // HTTP Unauthorized
		"unauthorized",          // generic
		"accessdenied",          // AWS
		"invalidclienttokenid",  // AWS
		"signaturedoesnotmatch", // AWS
		"expired",               // expired token/credential
		"invalid_grant",         // OAuth2 (Google, AAD)
		"invalid_client",        // OAuth2 (AAD)
		"aadsts",                // AAD error codes
		"authorizationfailure",  // Azure Storage
	}

	for _, indicator := range credentialIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}

// FailureClass is a short label for provider failures in logs.
func FailureClass(err error) string {
	switch {
	case err == nil:
		return ""
	case IsCredentialError(err):
		return "credential"
	case IsNetworkError(err):
		return "network"
	default:
		return "other"
	}
}
