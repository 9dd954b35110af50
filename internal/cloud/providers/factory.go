// Package providers routes credential requests to the vendor that owns the
// storage location's scheme and builds the full vendor set from configuration.
package providers

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"

	"github.com/rescale/credvend/internal/cloud"
	"github.com/rescale/credvend/internal/cloud/providers/azure"
	"github.com/rescale/credvend/internal/cloud/providers/gcs"
	"github.com/rescale/credvend/internal/cloud/providers/s3"
	"github.com/rescale/credvend/internal/config"
	"github.com/rescale/credvend/internal/logging"
	"github.com/rescale/credvend/internal/ratelimit"
)

var errMissingVendor = errors.New("dispatcher requires an aws, azure and gcp vendor")

// Dispatcher maps a CredentialContext to exactly one vendor by scheme.
// It is safe for concurrent use.
type Dispatcher struct {
	aws    cloud.Vendor
	azure  cloud.Vendor
	gcp    cloud.Vendor
	logger *logging.Logger
}

// NewDispatcher builds a dispatcher over all three vendors. A nil vendor is an error.
func NewDispatcher(aws, azure, gcp cloud.Vendor, logger *logging.Logger) (*Dispatcher, error) {
	if aws == nil || azure == nil || gcp == nil {
		return nil, errMissingVendor
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Dispatcher{aws: aws, azure: azure, gcp: gcp, logger: logger}, nil
}

// NewFromConfig creates the production vendors over one shared HTTP client,
// each throttled by its provider's rate limit.
func NewFromConfig(props *config.Properties, httpClient *nethttp.Client, logger *logging.Logger) (*Dispatcher, error) {
	if props == nil {
		return nil, fmt.Errorf("properties are required")
	}
	if httpClient == nil {
		httpClient = nethttp.DefaultClient
	}

	awsVendor := s3.NewVendor(props.Storage, s3.Options{
		Region:          props.Server.AWSRegion,
		STSEndpoint:     props.Server.STSEndpoint,
		SessionDuration: props.Server.AWSSessionDuration,
		RoleARN:         props.Server.AWSRoleARN,
		HTTPClient:      httpClient,
	})
	azureVendor := azure.NewVendor(props.Storage, azure.Options{
		KeyLifetime: props.Server.AzureKeyLifetime,
		SASCeiling:  props.Server.AzureSASCeiling,
		HTTPClient:  httpClient,
	})
	gcpVendor := gcs.NewVendor(props.Storage, gcs.Options{
		HTTPClient: httpClient,
	})

	limits := ratelimit.NewRegistry(props.Server.RateLimit, logger)
	return NewDispatcher(
		limits.Wrap(cloud.ProviderAWS, awsVendor),
		limits.Wrap(cloud.ProviderAzure, azureVendor),
		limits.Wrap(cloud.ProviderGCP, gcpVendor),
		logger,
	)
}

// vendorFor is the single scheme switch. Every Scheme constant has a case.
func (d *Dispatcher) vendorFor(scheme cloud.Scheme) (cloud.Vendor, bool) {
	switch scheme {
	case cloud.SchemeS3:
		return d.aws, true
	case cloud.SchemeABFS, cloud.SchemeABFSS:
		return d.azure, true
	case cloud.SchemeGS:
		return d.gcp, true
	case cloud.SchemeUnsupported:
		return nil, false
	default:
		return nil, false
	}
}

// Vend mints a credential for cc. The response always has exactly one
// variant matching cc's scheme; anything else is reported as a provider error.
func (d *Dispatcher) Vend(ctx context.Context, cc cloud.CredentialContext) (*cloud.CredentialResponse, error) {
	const op = "providers.Vend"

	vendor, ok := d.vendorFor(cc.Scheme())
	if !ok {
		return nil, cloud.NewUnsupportedSchemeError(op,
			fmt.Errorf("unsupported storage scheme for location %v", cc.Locations()))
	}

	timer := cloud.StartTimer(nil, "vend "+cc.Root())
	resp, err := vendor.Vend(ctx, cc)
	elapsed := timer.StopWithMessage("provider=%s", cc.Scheme().Provider())

	if err != nil {
		d.logger.Warn().
			Str("scheme", cc.Scheme().String()).
			Str("root", cc.Root()).
			Str("kind", string(cloud.KindOf(err))).
			Str("failure_class", cloud.FailureClass(err)).
			Dur("elapsed", elapsed).
			Err(err).
			Msg("Credential vend failed")
		// Vendors return *VendError; anything else is still a provider failure.
		if cloud.KindOf(err) == "" {
			return nil, cloud.NewProviderError(op, err)
		}
		return nil, err
	}

	if verr := resp.Validate(cc.Scheme()); verr != nil {
		d.logger.Error().
			Str("scheme", cc.Scheme().String()).
			Str("root", cc.Root()).
			Err(verr).
			Msg("Vendor returned an unusable credential")
		return nil, cloud.NewProviderError(op, verr)
	}

	d.logger.Info().
		Str("scheme", cc.Scheme().String()).
		Str("root", cc.Root()).
		Str("prefix", cc.Prefix()).
		Strs("privileges", cc.PrivilegeStrings()).
		Int64("expiration_time", resp.ExpirationTime).
		Dur("elapsed", elapsed).
		Msg("Vended temporary credential")

	return resp, nil
}

// Probe checks a vended credential against its location when the scheme's
// vendor supports probing.
func (d *Dispatcher) Probe(ctx context.Context, cc cloud.CredentialContext, resp *cloud.CredentialResponse) error {
	vendor, ok := d.vendorFor(cc.Scheme())
	if !ok {
		return cloud.NewUnsupportedSchemeError("providers.Probe",
			fmt.Errorf("unsupported storage scheme for location %v", cc.Locations()))
	}
	prober, ok := vendor.(cloud.Prober)
	if !ok {
		return fmt.Errorf("%s vendor does not support probing", cc.Scheme().Provider())
	}
	return prober.Probe(ctx, cc, resp)
}

// Compile-time interface verification
var (
	_ cloud.Vendor = (*Dispatcher)(nil)
	_ cloud.Prober = (*Dispatcher)(nil)
)
