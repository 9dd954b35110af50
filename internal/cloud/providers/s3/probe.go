package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rescale/credvend/internal/cloud"
)

// Probe lists at most one object under the location's prefix using the
// vended session credentials. A credential whose policy does not cover the
// prefix fails here with AccessDenied.
func (v *Vendor) Probe(ctx context.Context, cc cloud.CredentialContext, resp *cloud.CredentialResponse) error {
	if resp == nil || resp.AWS == nil {
		return fmt.Errorf("no aws credential to probe with")
	}

	bucketCfg, configured := v.storage.S3Bucket(cc.Root())

	cfg, err := v.sdkConfig(ctx, v.region(bucketCfg, configured), awscreds.NewStaticCredentialsProvider(
		resp.AWS.AccessKeyID,
		resp.AWS.SecretAccessKey,
		resp.AWS.SessionToken,
	))
	if err != nil {
		return err
	}

	client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if v.opts.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(v.opts.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	input := &awss3.ListObjectsV2Input{
		Bucket:  aws.String(cc.Bucket()),
		MaxKeys: aws.Int32(1),
	}
	if prefix := cc.Prefix(); prefix != "" {
		input.Prefix = aws.String(prefix + "/")
	}

	if _, err := client.ListObjectsV2(ctx, input); err != nil {
		return fmt.Errorf("list %s with vended credential: %w", cc.Locations()[0], err)
	}
	return nil
}
