// Package gcs vends downscoped OAuth access tokens for Google Cloud Storage
// buckets.
package gcs

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/auth/credentials"
	"cloud.google.com/go/auth/credentials/downscope"

	"github.com/rescale/credvend/internal/cloud"
	"github.com/rescale/credvend/internal/config"
	"github.com/rescale/credvend/internal/constants"
)

// CredentialsFactory loads the service account behind a bucket entry.
type CredentialsFactory func(keyFile string, scopes []string, client *http.Client) (*auth.Credentials, error)

// Options configures the GCP vendor.
type Options struct {
	// HTTPClient carries OAuth and token exchange requests.
	HTTPClient *http.Client

	// UniverseDomain selects the token exchange endpoint (sts.<domain>).
	// Empty means googleapis.com.
	UniverseDomain string

	// StorageEndpoint overrides the JSON API root used by Probe.
	StorageEndpoint string

	// NewCredentials overrides service account loading (tests).
	NewCredentials CredentialsFactory
}

// Vendor exchanges a configured service account token for one restricted to
// a single bucket prefix. There is no ambient fallback.
type Vendor struct {
	storage *config.StorageConfig
	opts    Options
}

// NewVendor creates a GCP vendor over an immutable storage configuration.
func NewVendor(storage *config.StorageConfig, opts Options) *Vendor {
	if storage == nil {
		storage = config.EmptyStorageConfig()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.NewCredentials == nil {
		opts.NewCredentials = serviceAccountCredentials
	}
	return &Vendor{storage: storage, opts: opts}
}

func serviceAccountCredentials(keyFile string, scopes []string, client *http.Client) (*auth.Credentials, error) {
	return credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsFile: keyFile,
		Scopes:          scopes,
		Client:          client,
	})
}

// Scopes returns the OAuth scope the base token needs.
func Scopes(privileges []cloud.Privilege) []string {
	for _, p := range privileges {
		if p == cloud.PrivilegeUpdate {
			return []string{constants.GCSReadWriteScope}
		}
	}
	return []string{constants.GCSReadOnlyScope}
}

// AccessBoundary builds the single rule limiting a token to bucket and prefix.
// A prefix admits the object named exactly by it and everything below
// "<prefix>/", never a sibling such as "<prefix>2/".
func AccessBoundary(bucket, prefix string, privileges []cloud.Privilege) downscope.AccessBoundaryRule {
	role := "inRole:roles/storage.objectViewer"
	for _, p := range privileges {
		if p == cloud.PrivilegeUpdate {
			role = "inRole:roles/storage.objectAdmin"
		}
	}

	rule := downscope.AccessBoundaryRule{
		AvailableResource:    "//storage.googleapis.com/projects/_/buckets/" + bucket,
		AvailablePermissions: []string{role},
	}
	if prefix != "" {
		object := celQuote("projects/_/buckets/" + bucket + "/objects/" + prefix)
		dir := celQuote("projects/_/buckets/" + bucket + "/objects/" + prefix + "/")
		listDir := celQuote(prefix + "/")
		rule.Condition = &downscope.AvailabilityCondition{
			Expression: fmt.Sprintf(
				"resource.name == %s || resource.name.startsWith(%s) || "+
					"api.getAttribute('storage.googleapis.com/objectListPrefix', '').startsWith(%s)",
				object, dir, listDir),
		}
	}
	return rule
}

// celQuote renders s as a single-quoted CEL string literal.
func celQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

// Vend implements cloud.Vendor.
func (v *Vendor) Vend(ctx context.Context, cc cloud.CredentialContext) (*cloud.CredentialResponse, error) {
	const op = "gcs.Vend"

	if cc.Scheme().Provider() != cloud.ProviderGCP {
		return nil, cloud.NewUnsupportedSchemeError(op, fmt.Errorf("gcs vendor cannot serve %s locations", cc.Scheme()))
	}

	entry, ok := v.storage.GCSBucket(cc.Root())
	if !ok {
		return nil, cloud.NewConfigurationMissingError(op, fmt.Errorf("no GCS configuration for %s", cc.Root()))
	}
	// An empty path would make credential detection fall back to ambient ADC
	if entry.JSONKeyFilePath == "" {
		return nil, cloud.NewConfigurationMissingError(op, fmt.Errorf("gcs.jsonKeyFilePath is empty for %s", cc.Root()))
	}

	base, err := v.opts.NewCredentials(entry.JSONKeyFilePath, Scopes(cc.Privileges()), v.opts.HTTPClient)
	if err != nil {
		return nil, cloud.NewProviderError(op, fmt.Errorf("service account for %s: %w", cc.Root(), err))
	}

	scoped, err := downscope.NewCredentials(&downscope.Options{
		Credentials:    base,
		Rules:          []downscope.AccessBoundaryRule{AccessBoundary(cc.Bucket(), cc.Prefix(), cc.Privileges())},
		Client:         v.opts.HTTPClient,
		UniverseDomain: v.opts.UniverseDomain,
	})
	if err != nil {
		return nil, cloud.NewProviderError(op, fmt.Errorf("downscope %s: %w", cc.Root(), err))
	}

	tok, err := scoped.Token(ctx)
	if err != nil {
		return nil, cloud.NewProviderError(op, fmt.Errorf("downscoped token for %s: %w", cc.Root(), err))
	}

	if tok.Expiry.IsZero() {
		return nil, cloud.NewProviderError(op, fmt.Errorf("downscoped token for %s carries no expiry", cc.Root()))
	}
	return cloud.NewGCPResponse(tok.Value, tok.Expiry), nil
}

// Compile-time interface verification
var (
	_ cloud.Vendor = (*Vendor)(nil)
	_ cloud.Prober = (*Vendor)(nil)
)
