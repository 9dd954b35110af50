// Package cloud defines the provider-neutral pieces of credential vending:
// the request context, the unified response, the error taxonomy and the
// Vendor interface each cloud provider implements.
package cloud

import "context"

// Vendor exchanges a base identity plus the scoping in a CredentialContext
// for a short-lived credential from one cloud identity provider.
//
// Implementations must be safe for concurrent use. Every call mints a fresh
// credential; nothing is cached between calls.
type Vendor interface {
	Vend(ctx context.Context, cc CredentialContext) (*CredentialResponse, error)
}

// Prober checks that a vended credential actually grants access to the
// location it was scoped to, by listing under the prefix.
type Prober interface {
	Probe(ctx context.Context, cc CredentialContext, resp *CredentialResponse) error
}

// VendorFunc adapts a function to the Vendor interface.
type VendorFunc func(ctx context.Context, cc CredentialContext) (*CredentialResponse, error)

// Vend calls f.
func (f VendorFunc) Vend(ctx context.Context, cc CredentialContext) (*CredentialResponse, error) {
	return f(ctx, cc)
}
