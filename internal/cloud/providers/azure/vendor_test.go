package azure

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/rescale/credvend/internal/cloud"
	"github.com/rescale/credvend/internal/config"
)

const (
	testContainerPath = "abfss://lake@acct.dfs.core.windows.net"
	testTenant        = "tenant-1"
	testClient        = "client-1"
)

// fakeBlobService answers user delegation key and list blob requests in place
// of the blob endpoint.
type fakeBlobService struct {
	mu       sync.Mutex
	requests []*http.Request
	keyStart string
	keyEnd   string
	failKey  bool
}

func (f *fakeBlobService) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	q := req.URL.Query()
	switch {
	case q.Get("comp") == "userdelegationkey":
		if f.failKey {
			return xmlResponse(req, http.StatusForbidden,
				`<?xml version="1.0" encoding="utf-8"?><Error><Code>AuthorizationPermissionMismatch</Code><Message>denied</Message></Error>`), nil
		}
		var info struct {
			Start  string `xml:"Start"`
			Expiry string `xml:"Expiry"`
		}
		body, _ := io.ReadAll(req.Body)
		if err := xml.Unmarshal(body, &info); err != nil {
			return nil, fmt.Errorf("bad KeyInfo body: %w", err)
		}
		f.mu.Lock()
		f.keyStart, f.keyEnd = info.Start, info.Expiry
		f.mu.Unlock()
		key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
		return xmlResponse(req, http.StatusOK, fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<UserDelegationKey>
  <SignedOid>oid-1</SignedOid>
  <SignedTid>%s</SignedTid>
  <SignedStart>%s</SignedStart>
  <SignedExpiry>%s</SignedExpiry>
  <SignedService>b</SignedService>
  <SignedVersion>2020-02-10</SignedVersion>
  <Value>%s</Value>
</UserDelegationKey>`, testTenant, info.Start, info.Expiry, key)), nil

	case q.Get("restype") == "container" && q.Get("comp") == "list":
		if q.Get("sig") == "" {
			return xmlResponse(req, http.StatusForbidden,
				`<?xml version="1.0" encoding="utf-8"?><Error><Code>NoAuthenticationInformation</Code><Message>no sas</Message></Error>`), nil
		}
		return xmlResponse(req, http.StatusOK, `<?xml version="1.0" encoding="utf-8"?>
<EnumerationResults ServiceEndpoint="https://acct.blob.core.windows.net/" ContainerName="lake">
  <Prefix>tables/t1/</Prefix>
  <MaxResults>1</MaxResults>
  <Blobs></Blobs>
  <NextMarker />
</EnumerationResults>`), nil
	}
	return nil, fmt.Errorf("unexpected request %s %s", req.Method, req.URL)
}

func (f *fakeBlobService) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func xmlResponse(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": []string{"application/xml"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

type fakeToken struct{}

func (fakeToken) GetToken(context.Context, policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: "aad-token", ExpiresOn: time.Now().Add(time.Hour)}, nil
}

type credentialRecorder struct {
	calls   int
	tenant  string
	client  string
	failing bool
}

func (r *credentialRecorder) factory(tenantID, clientID, _ string, _ azcore.ClientOptions) (azcore.TokenCredential, error) {
	r.calls++
	r.tenant, r.client = tenantID, clientID
	if r.failing {
		return nil, errors.New("bad secret")
	}
	return fakeToken{}, nil
}

func containerConfig(t *testing.T) *config.StorageConfig {
	t.Helper()
	sc, err := config.NewStorageConfig(nil, []config.ADLSContainerConfig{{
		ContainerPath: testContainerPath,
		TenantID:      testTenant,
		ClientID:      testClient,
		ClientSecret:  "secret",
	}}, nil)
	if err != nil {
		t.Fatalf("NewStorageConfig: %v", err)
	}
	return sc
}

func newTestVendor(t *testing.T, storage *config.StorageConfig, opts Options) (*Vendor, *fakeBlobService, *credentialRecorder) {
	t.Helper()
	fake := &fakeBlobService{}
	rec := &credentialRecorder{}
	opts.Transport = fake
	opts.NewCredential = rec.factory
	v := NewVendor(storage, opts)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return fixed }
	return v, fake, rec
}

func newCC(t *testing.T, location string, privs ...cloud.Privilege) cloud.CredentialContext {
	t.Helper()
	cc, err := cloud.NewContext(location, privs)
	if err != nil {
		t.Fatalf("NewContext(%q): %v", location, err)
	}
	return cc
}

func sasValues(t *testing.T, resp *cloud.CredentialResponse) url.Values {
	t.Helper()
	if resp == nil || resp.Azure == nil {
		t.Fatalf("expected an Azure SAS response, got %+v", resp)
	}
	vals, err := url.ParseQuery(resp.Azure.SASToken)
	if err != nil {
		t.Fatalf("SAS token does not parse: %v", err)
	}
	return vals
}

func TestVend_DirectorySAS(t *testing.T) {
	v, fake, rec := newTestVendor(t, containerConfig(t), Options{})
	cc := newCC(t, testContainerPath+"/tables/t1", cloud.PrivilegeSelect, cloud.PrivilegeUpdate)

	resp, err := v.Vend(context.Background(), cc)
	if err != nil {
		t.Fatalf("Vend failed: %v", err)
	}
	vals := sasValues(t, resp)

	checks := map[string]string{
		"sp":  "racwdl",
		"sr":  "d",
		"sdd": "2",
		"spr": "https",
	}
	for k, want := range checks {
		if got := vals.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
	if vals.Get("sig") == "" {
		t.Error("SAS has no signature")
	}
	if vals.Get("skoid") != "oid-1" || vals.Get("sktid") != testTenant {
		t.Errorf("SAS not tied to the delegation key: skoid=%q sktid=%q", vals.Get("skoid"), vals.Get("sktid"))
	}

	if rec.tenant != testTenant || rec.client != testClient {
		t.Errorf("service principal = %s/%s", rec.tenant, rec.client)
	}
	if fake.keyStart != "2026-03-01T11:55:00Z" {
		t.Errorf("key start = %q, want clock skew allowance applied", fake.keyStart)
	}
	if fake.keyEnd != "2026-03-01T13:00:00Z" {
		t.Errorf("key expiry = %q", fake.keyEnd)
	}
}

func TestVend_ExpirationMatchesSignedExpiry(t *testing.T) {
	v, _, _ := newTestVendor(t, containerConfig(t), Options{})
	resp, err := v.Vend(context.Background(), newCC(t, testContainerPath+"/tables/t1", cloud.PrivilegeSelect))
	if err != nil {
		t.Fatalf("Vend failed: %v", err)
	}
	se, err := time.Parse(sas.TimeFormat, sasValues(t, resp).Get("se"))
	if err != nil {
		t.Fatalf("se does not parse: %v", err)
	}
	if resp.ExpirationTime != se.UnixMilli() {
		t.Errorf("ExpirationTime = %d, se = %d", resp.ExpirationTime, se.UnixMilli())
	}
}

func TestVend_SelectOnlyPermissions(t *testing.T) {
	v, _, _ := newTestVendor(t, containerConfig(t), Options{})
	resp, err := v.Vend(context.Background(), newCC(t, testContainerPath+"/tables/t1", cloud.PrivilegeSelect))
	if err != nil {
		t.Fatalf("Vend failed: %v", err)
	}
	if sp := sasValues(t, resp).Get("sp"); sp != "rl" {
		t.Errorf("sp = %q, want rl", sp)
	}
}

func TestVend_ExpiryIsMinOfKeyAndCeiling(t *testing.T) {
	tests := []struct {
		name    string
		key     time.Duration
		ceiling time.Duration
		want    string
	}{
		{"ceiling below key", 2 * time.Hour, 30 * time.Minute, "2026-03-01T12:30:00Z"},
		{"key below ceiling", 20 * time.Minute, time.Hour, "2026-03-01T12:20:00Z"},
		{"equal", time.Hour, time.Hour, "2026-03-01T13:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _, _ := newTestVendor(t, containerConfig(t), Options{KeyLifetime: tt.key, SASCeiling: tt.ceiling})
			resp, err := v.Vend(context.Background(), newCC(t, testContainerPath+"/d", cloud.PrivilegeSelect))
			if err != nil {
				t.Fatalf("Vend failed: %v", err)
			}
			if se := sasValues(t, resp).Get("se"); se != tt.want {
				t.Errorf("se = %q, want %q", se, tt.want)
			}
		})
	}
}

func TestVend_ContainerRoot(t *testing.T) {
	v, _, _ := newTestVendor(t, containerConfig(t), Options{})
	resp, err := v.Vend(context.Background(), newCC(t, testContainerPath, cloud.PrivilegeSelect))
	if err != nil {
		t.Fatalf("Vend failed: %v", err)
	}
	vals := sasValues(t, resp)
	if vals.Get("sr") != "c" {
		t.Errorf("container-root SAS sr = %q, want c", vals.Get("sr"))
	}
	if vals.Has("sdd") {
		t.Errorf("container-root SAS must not carry sdd, got %q", vals.Get("sdd"))
	}
}

func TestVend_MissingConfiguration(t *testing.T) {
	v, fake, rec := newTestVendor(t, config.EmptyStorageConfig(), Options{})
	_, err := v.Vend(context.Background(), newCC(t, testContainerPath+"/t", cloud.PrivilegeSelect))
	if !errors.Is(err, cloud.ErrConfigurationMissing) {
		t.Fatalf("expected configuration-missing, got %v", err)
	}
	if rec.calls != 0 || fake.count() != 0 {
		t.Errorf("no identity or network call expected, got %d credentials and %d requests", rec.calls, fake.count())
	}
}

func TestVend_EmptyServicePrincipal(t *testing.T) {
	sc, err := config.NewStorageConfig(nil, []config.ADLSContainerConfig{{
		ContainerPath: testContainerPath,
		TenantID:      testTenant,
		ClientID:      testClient,
	}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	v, fake, rec := newTestVendor(t, sc, Options{})
	_, err = v.Vend(context.Background(), newCC(t, testContainerPath+"/t", cloud.PrivilegeSelect))
	if !errors.Is(err, cloud.ErrConfigurationMissing) {
		t.Fatalf("expected configuration-missing, got %v", err)
	}
	if rec.calls != 0 || fake.count() != 0 {
		t.Error("no identity or network call expected")
	}
}

func TestVend_AbfsMatchesAbfssEntry(t *testing.T) {
	v, _, _ := newTestVendor(t, containerConfig(t), Options{})
	resp, err := v.Vend(context.Background(), newCC(t, "abfs://lake@acct.dfs.core.windows.net/t", cloud.PrivilegeSelect))
	if err != nil {
		t.Fatalf("abfs location should use the abfss entry: %v", err)
	}
	sasValues(t, resp)
}

func TestVend_ProviderErrors(t *testing.T) {
	t.Run("delegation key rejected", func(t *testing.T) {
		v, fake, _ := newTestVendor(t, containerConfig(t), Options{})
		fake.failKey = true
		_, err := v.Vend(context.Background(), newCC(t, testContainerPath+"/t", cloud.PrivilegeSelect))
		if !errors.Is(err, cloud.ErrProviderError) {
			t.Fatalf("expected provider-error, got %v", err)
		}
		if fake.count() != 1 {
			t.Errorf("expected a single attempt, got %d", fake.count())
		}
	})

	t.Run("credential construction", func(t *testing.T) {
		v, fake, rec := newTestVendor(t, containerConfig(t), Options{})
		rec.failing = true
		_, err := v.Vend(context.Background(), newCC(t, testContainerPath+"/t", cloud.PrivilegeSelect))
		if !errors.Is(err, cloud.ErrProviderError) {
			t.Fatalf("expected provider-error, got %v", err)
		}
		if fake.count() != 0 {
			t.Error("no blob request expected without an identity")
		}
	})
}

func TestVend_WrongScheme(t *testing.T) {
	v, _, _ := newTestVendor(t, containerConfig(t), Options{})
	_, err := v.Vend(context.Background(), newCC(t, "s3://bucket/t", cloud.PrivilegeSelect))
	if !errors.Is(err, cloud.ErrUnsupportedScheme) {
		t.Fatalf("expected unsupported-scheme, got %v", err)
	}
}

func TestPermissions(t *testing.T) {
	tests := []struct {
		privs []cloud.Privilege
		want  string
	}{
		{[]cloud.Privilege{cloud.PrivilegeSelect}, "rl"},
		{[]cloud.Privilege{cloud.PrivilegeUpdate}, "acwd"},
		{[]cloud.Privilege{cloud.PrivilegeSelect, cloud.PrivilegeUpdate}, "racwdl"},
		{nil, ""},
	}
	for _, tt := range tests {
		p := Permissions(tt.privs)
		if got := p.String(); got != tt.want {
			t.Errorf("Permissions(%v) = %q, want %q", tt.privs, got, tt.want)
		}
	}
}

func TestBlobServiceURL(t *testing.T) {
	if got := blobServiceURL("acct.dfs.core.windows.net"); got != "https://acct.blob.core.windows.net/" {
		t.Errorf("blobServiceURL = %q", got)
	}
	if got := blobServiceURL("acct.blob.core.windows.net"); got != "https://acct.blob.core.windows.net/" {
		t.Errorf("blob host should pass through, got %q", got)
	}
}

func TestProbe(t *testing.T) {
	v, fake, _ := newTestVendor(t, containerConfig(t), Options{})
	cc := newCC(t, testContainerPath+"/tables/t1", cloud.PrivilegeSelect)
	resp, err := v.Vend(context.Background(), cc)
	if err != nil {
		t.Fatalf("Vend failed: %v", err)
	}
	if err := v.Probe(context.Background(), cc, resp); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	last := fake.requests[len(fake.requests)-1]
	if last.URL.Host != "acct.blob.core.windows.net" || last.URL.Path != "/lake" {
		t.Errorf("probe went to %s", last.URL)
	}
	if got := last.URL.Query().Get("prefix"); got != "tables/t1/" {
		t.Errorf("probe prefix = %q", got)
	}
	if last.Header.Get("Authorization") != "" {
		t.Error("probe must authenticate with the SAS only")
	}

	if err := v.Probe(context.Background(), cc, &cloud.CredentialResponse{}); err == nil {
		t.Error("expected error probing without a SAS")
	}
}
