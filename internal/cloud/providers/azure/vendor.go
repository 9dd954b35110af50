// Package azure vends user-delegation SAS tokens for ADLS Gen2 containers.
package azure

import (
	"context"
	"fmt"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"

	"github.com/rescale/credvend/internal/cloud"
	"github.com/rescale/credvend/internal/config"
	"github.com/rescale/credvend/internal/constants"
)

// CredentialFactory builds the service principal identity for a container entry.
type CredentialFactory func(tenantID, clientID, clientSecret string, opts azcore.ClientOptions) (azcore.TokenCredential, error)

// Options configures the Azure vendor.
type Options struct {
	// KeyLifetime is the requested user delegation key validity. Default: 1h, max 7d
	KeyLifetime time.Duration

	// SASCeiling caps the SAS expiry below the key expiry. Default: 1h
	SASCeiling time.Duration

	// HTTPClient carries AAD and blob service requests.
	HTTPClient *nethttp.Client

	// Transport overrides HTTPClient as the azcore transport (tests).
	Transport policy.Transporter

	// NewCredential overrides the client-secret credential (tests).
	NewCredential CredentialFactory
}

// Vendor signs SAS tokens with user delegation keys obtained as the
// container's configured service principal. There is no ambient fallback.
type Vendor struct {
	storage *config.StorageConfig
	opts    Options
	now     func() time.Time
}

// NewVendor creates an Azure vendor over an immutable storage configuration.
func NewVendor(storage *config.StorageConfig, opts Options) *Vendor {
	if storage == nil {
		storage = config.EmptyStorageConfig()
	}
	if opts.KeyLifetime <= 0 {
		opts.KeyLifetime = constants.DefaultAzureKeyLifetime
	}
	if opts.SASCeiling <= 0 {
		opts.SASCeiling = constants.DefaultAzureSASCeiling
	}
	if opts.Transport == nil {
		if opts.HTTPClient != nil {
			opts.Transport = opts.HTTPClient
		} else {
			opts.Transport = nethttp.DefaultClient
		}
	}
	if opts.NewCredential == nil {
		opts.NewCredential = clientSecretCredential
	}
	return &Vendor{storage: storage, opts: opts, now: time.Now}
}

func clientSecretCredential(tenantID, clientID, clientSecret string, opts azcore.ClientOptions) (azcore.TokenCredential, error) {
	return azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, &azidentity.ClientSecretCredentialOptions{
		ClientOptions: opts,
	})
}

// clientOptions routes every SDK call through the shared transport with
// retries disabled.
func (v *Vendor) clientOptions() azcore.ClientOptions {
	return azcore.ClientOptions{
		Transport: v.opts.Transport,
		Retry:     policy.RetryOptions{MaxRetries: -1},
	}
}

// blobServiceURL maps an ADLS endpoint host (acct.dfs.core.windows.net) to
// the blob endpoint that issues user delegation keys.
func blobServiceURL(host string) string {
	return "https://" + strings.Replace(host, ".dfs.", ".blob.", 1) + "/"
}

// Permissions derives SAS permissions from privileges: SELECT is read+list,
// UPDATE is add+create+write+delete.
func Permissions(privileges []cloud.Privilege) sas.ContainerPermissions {
	var perms sas.ContainerPermissions
	for _, p := range privileges {
		switch p {
		case cloud.PrivilegeSelect:
			perms.Read = true
			perms.List = true
		case cloud.PrivilegeUpdate:
			perms.Add = true
			perms.Create = true
			perms.Write = true
			perms.Delete = true
		}
	}
	return perms
}

// Vend implements cloud.Vendor.
func (v *Vendor) Vend(ctx context.Context, cc cloud.CredentialContext) (*cloud.CredentialResponse, error) {
	const op = "azure.Vend"

	if cc.Scheme().Provider() != cloud.ProviderAzure {
		return nil, cloud.NewUnsupportedSchemeError(op, fmt.Errorf("azure vendor cannot serve %s locations", cc.Scheme()))
	}

	entry, ok := v.storage.ADLSContainer(cc.Root())
	if !ok {
		return nil, cloud.NewConfigurationMissingError(op, fmt.Errorf("no ADLS configuration for %s", cc.Root()))
	}
	if entry.TenantID == "" || entry.ClientID == "" || entry.ClientSecret == "" {
		return nil, cloud.NewConfigurationMissingError(op, fmt.Errorf("adls tenantId, clientId and clientSecret must be set for %s", cc.Root()))
	}

	cred, err := v.opts.NewCredential(entry.TenantID, entry.ClientID, entry.ClientSecret, v.clientOptions())
	if err != nil {
		return nil, cloud.NewProviderError(op, fmt.Errorf("service principal for %s: %w", cc.Root(), err))
	}

	client, err := service.NewClient(blobServiceURL(cc.Host()), cred, &service.ClientOptions{
		ClientOptions: v.clientOptions(),
	})
	if err != nil {
		return nil, cloud.NewProviderError(op, fmt.Errorf("blob service client for %s: %w", cc.Account(), err))
	}

	// SAS times have second precision; truncating keeps ExpirationTime equal to se=
	now := v.now().UTC().Truncate(time.Second)
	start := now.Add(-constants.AzureClockSkewAllowance)
	keyExpiry := now.Add(v.opts.KeyLifetime)

	udc, err := client.GetUserDelegationCredential(ctx, service.KeyInfo{
		Start:  to.Ptr(start.Format(sas.TimeFormat)),
		Expiry: to.Ptr(keyExpiry.Format(sas.TimeFormat)),
	}, nil)
	if err != nil {
		return nil, cloud.NewProviderError(op, fmt.Errorf("user delegation key for %s: %w", cc.Account(), err))
	}

	expiry := keyExpiry
	if ceiling := now.Add(v.opts.SASCeiling); ceiling.Before(expiry) {
		expiry = ceiling
	}

	values := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		StartTime:     start,
		ExpiryTime:    expiry,
		Permissions:   to.Ptr(Permissions(cc.Privileges())).String(),
		ContainerName: cc.Bucket(),
		Directory:     cc.Prefix(),
	}

	qp, err := values.SignWithUserDelegation(udc)
	if err != nil {
		return nil, cloud.NewProviderError(op, fmt.Errorf("sign SAS for %s: %w", cc.Root(), err))
	}

	return cloud.NewAzureResponse(qp.Encode(), qp.ExpiryTime()), nil
}

// Compile-time interface verification
var (
	_ cloud.Vendor = (*Vendor)(nil)
	_ cloud.Prober = (*Vendor)(nil)
)
