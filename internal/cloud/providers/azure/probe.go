package azure

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/rescale/credvend/internal/cloud"
)

// Probe lists at most one blob under the location's prefix using only the
// vended SAS.
func (v *Vendor) Probe(ctx context.Context, cc cloud.CredentialContext, resp *cloud.CredentialResponse) error {
	if resp == nil || resp.Azure == nil {
		return fmt.Errorf("no azure SAS to probe with")
	}

	containerURL := strings.TrimSuffix(blobServiceURL(cc.Host()), "/") + "/" + url.PathEscape(cc.Bucket()) + "?" + resp.Azure.SASToken

	client, err := container.NewClientWithNoCredential(containerURL, &container.ClientOptions{
		ClientOptions: v.clientOptions(),
	})
	if err != nil {
		return fmt.Errorf("container client for %s: %w", cc.Root(), err)
	}

	opts := &container.ListBlobsFlatOptions{MaxResults: to.Ptr(int32(1))}
	if prefix := cc.Prefix(); prefix != "" {
		opts.Prefix = to.Ptr(prefix + "/")
	}

	pager := client.NewListBlobsFlatPager(opts)
	if _, err := pager.NextPage(ctx); err != nil {
		return fmt.Errorf("list %s with vended SAS: %w", cc.Locations()[0], err)
	}
	return nil
}
