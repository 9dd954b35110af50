// Package s3 vends AWS STS session credentials scoped to an S3 bucket prefix.
package s3

import (
	"context"
	"fmt"
	nethttp "net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/google/uuid"

	"github.com/rescale/credvend/internal/cloud"
	"github.com/rescale/credvend/internal/config"
	"github.com/rescale/credvend/internal/constants"
)

// Options configures the AWS vendor.
type Options struct {
	// Region is used when the bucket entry has none. Default: us-east-1
	Region string

	// STSEndpoint overrides the STS endpoint URL (VPC endpoint, LocalStack, tests).
	STSEndpoint string

	// S3Endpoint overrides the S3 endpoint used by Probe. Path-style addressing is used when set.
	S3Endpoint string

	// SessionDuration is the requested session lifetime. Default: 1h
	SessionDuration time.Duration

	// RoleARN is assumed for buckets whose entry names no role. Required when
	// the base identity is itself temporary (session token, instance role),
	// since STS refuses GetFederationToken for such callers.
	RoleARN string

	// HTTPClient is shared by every STS and S3 client the vendor builds.
	HTTPClient *nethttp.Client
}

// Vendor issues STS credentials. Buckets with a configuration entry use its
// static keys as the base identity; all others fall back to the default AWS
// credential chain.
type Vendor struct {
	storage *config.StorageConfig
	opts    Options
	client  aws.HTTPClient

	// sessionName is swapped in tests
	sessionName func() string
}

// NewVendor creates an AWS vendor over an immutable storage configuration.
func NewVendor(storage *config.StorageConfig, opts Options) *Vendor {
	if storage == nil {
		storage = config.EmptyStorageConfig()
	}
	if opts.Region == "" {
		opts.Region = constants.DefaultAWSRegion
	}
	if opts.SessionDuration == 0 {
		opts.SessionDuration = constants.DefaultAWSSessionDuration
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = nethttp.DefaultClient
	}
	return &Vendor{
		storage:     storage,
		opts:        opts,
		client:      sdkHTTPClient(opts.HTTPClient),
		sessionName: newSessionName,
	}
}

// newSessionName returns "credvend-" plus the first 8 hex digits of a random
// UUID. GetFederationToken names are limited to 32 characters.
func newSessionName() string {
	return constants.SessionNamePrefix + uuid.NewString()[:8]
}

// Vend implements cloud.Vendor.
func (v *Vendor) Vend(ctx context.Context, cc cloud.CredentialContext) (*cloud.CredentialResponse, error) {
	const op = "s3.Vend"

	if cc.Scheme() != cloud.SchemeS3 {
		return nil, cloud.NewUnsupportedSchemeError(op, fmt.Errorf("aws vendor cannot serve %s locations", cc.Scheme()))
	}

	policy, err := BuildPolicy(cc.Bucket(), cc.Prefix(), cc.Privileges())
	if err != nil {
		return nil, cloud.NewInvalidArgumentError(op, err)
	}
	policyJSON, err := policy.JSON()
	if err != nil {
		return nil, cloud.NewProviderError(op, err)
	}

	bucketCfg, configured := v.storage.S3Bucket(cc.Root())
	if configured && (bucketCfg.AccessKey == "" || bucketCfg.SecretKey == "") {
		return nil, cloud.NewConfigurationMissingError(op, fmt.Errorf("s3.accessKey and s3.secretKey must be set for %s", cc.Root()))
	}

	cfg, err := v.loadConfig(ctx, bucketCfg, configured)
	if err != nil {
		return nil, cloud.NewProviderError(op, err)
	}

	roleARN := v.opts.RoleARN
	if configured && bucketCfg.RoleARN != "" {
		roleARN = bucketCfg.RoleARN
	}
	if roleARN == "" {
		if cfg.Credentials == nil {
			return nil, cloud.NewProviderError(op, fmt.Errorf("no base AWS credentials for %s", cc.Root()))
		}
		base, err := cfg.Credentials.Retrieve(ctx)
		if err != nil {
			return nil, cloud.NewProviderError(op, fmt.Errorf("base credentials for %s: %w", cc.Root(), err))
		}
		if base.SessionToken != "" {
			return nil, cloud.NewConfigurationMissingError(op, fmt.Errorf(
				"base identity for %s is temporary (%s); set s3.awsRoleArn or aws.roleArn", cc.Root(), base.Source))
		}
	}

	client := sts.NewFromConfig(cfg, func(o *sts.Options) {
		if v.opts.STSEndpoint != "" {
			o.BaseEndpoint = aws.String(v.opts.STSEndpoint)
		}
	})

	duration := aws.Int32(int32(v.opts.SessionDuration / time.Second))
	name := v.sessionName()

	var creds *ststypes.Credentials
	if roleARN != "" {
		out, err := client.AssumeRole(ctx, &sts.AssumeRoleInput{
			RoleArn:         aws.String(roleARN),
			RoleSessionName: aws.String(name),
			Policy:          aws.String(policyJSON),
			DurationSeconds: duration,
		})
		if err != nil {
			return nil, cloud.NewProviderError(op, fmt.Errorf("sts AssumeRole for %s: %w", cc.Root(), err))
		}
		creds = out.Credentials
	} else {
		out, err := client.GetFederationToken(ctx, &sts.GetFederationTokenInput{
			Name:            aws.String(name),
			Policy:          aws.String(policyJSON),
			DurationSeconds: duration,
		})
		if err != nil {
			return nil, cloud.NewProviderError(op, fmt.Errorf("sts GetFederationToken for %s: %w", cc.Root(), err))
		}
		creds = out.Credentials
	}

	if creds == nil || creds.Expiration == nil {
		return nil, cloud.NewProviderError(op, fmt.Errorf("sts returned no credentials for %s", cc.Root()))
	}

	return cloud.NewAWSResponse(
		aws.ToString(creds.AccessKeyId),
		aws.ToString(creds.SecretAccessKey),
		aws.ToString(creds.SessionToken),
		*creds.Expiration,
	), nil
}

// loadConfig resolves the base identity: the configured static keys when
// present, otherwise the default chain (env, shared config, IMDS).
func (v *Vendor) loadConfig(ctx context.Context, bucketCfg config.S3BucketConfig, configured bool) (aws.Config, error) {
	var provider aws.CredentialsProvider
	if configured {
		provider = awscreds.NewStaticCredentialsProvider(bucketCfg.AccessKey, bucketCfg.SecretKey, bucketCfg.SessionToken)
	}
	return v.sdkConfig(ctx, v.region(bucketCfg, configured), provider)
}

// sdkConfig loads an SDK config on the shared transport. A nil provider
// keeps the default credential chain.
func (v *Vendor) sdkConfig(ctx context.Context, region string, provider aws.CredentialsProvider) (aws.Config, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithHTTPClient(v.client),
		// Retries belong to the caller's transport, not to vending
		awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if provider != nil {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(provider))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

func (v *Vendor) region(bucketCfg config.S3BucketConfig, configured bool) string {
	if configured && bucketCfg.Region != "" {
		return bucketCfg.Region
	}
	return v.opts.Region
}

// Compile-time interface verification
var (
	_ cloud.Vendor = (*Vendor)(nil)
	_ cloud.Prober = (*Vendor)(nil)
)
