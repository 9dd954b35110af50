package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/auth/httptransport"

	"github.com/rescale/credvend/internal/cloud"
)

// DefaultStorageEndpoint is the Cloud Storage JSON API root.
const DefaultStorageEndpoint = "https://storage.googleapis.com"

type staticToken struct{ tok *auth.Token }

func (s staticToken) Token(context.Context) (*auth.Token, error) { return s.tok, nil }

// Probe lists at most one object under the location's prefix with the
// vended token.
func (v *Vendor) Probe(ctx context.Context, cc cloud.CredentialContext, resp *cloud.CredentialResponse) error {
	if resp == nil || resp.GCP == nil {
		return fmt.Errorf("no gcp token to probe with")
	}

	client := &http.Client{Transport: v.opts.HTTPClient.Transport}
	creds := auth.NewCredentials(&auth.CredentialsOptions{
		TokenProvider: staticToken{tok: &auth.Token{Value: resp.GCP.OauthToken, Type: "Bearer"}},
	})
	if err := httptransport.AddAuthorizationMiddleware(client, creds); err != nil {
		return err
	}

	endpoint := v.opts.StorageEndpoint
	if endpoint == "" {
		endpoint = DefaultStorageEndpoint
	}
	q := url.Values{"maxResults": []string{"1"}}
	if prefix := cc.Prefix(); prefix != "" {
		q.Set("prefix", prefix+"/")
	}
	u := strings.TrimSuffix(endpoint, "/") + "/storage/v1/b/" + url.PathEscape(cc.Bucket()) + "/o?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("list %s with vended token: %w", cc.Locations()[0], err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("list %s with vended token: %s: %s", cc.Locations()[0], res.Status, strings.TrimSpace(string(body)))
	}
	return nil
}
