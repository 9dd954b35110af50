package cloud

import (
	"errors"
	"fmt"
	"time"

	"github.com/rescale/credvend/internal/models"
)

// CredentialResponse is the provider-neutral result of a vend call.
// Exactly one of AWS, Azure, GCP is set.
type CredentialResponse struct {
	AWS   *models.AwsCredentials
	Azure *models.AzureUserDelegationSAS
	GCP   *models.GcpOauthToken

	// ExpirationTime is epoch milliseconds, UTC.
	ExpirationTime int64
}

var (
	errNoVariant        = errors.New("provider returned no credential")
	errMultipleVariants = errors.New("provider returned more than one credential variant")
	errNoExpiry         = errors.New("provider returned a credential without an expiration time")
)

// NewAWSResponse builds an AWS-variant response.
func NewAWSResponse(accessKeyID, secretAccessKey, sessionToken string, expiry time.Time) *CredentialResponse {
	return &CredentialResponse{
		AWS: &models.AwsCredentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
			SessionToken:    sessionToken,
		},
		ExpirationTime: expiry.UnixMilli(),
	}
}

// NewAzureResponse builds an Azure-variant response.
func NewAzureResponse(sasToken string, expiry time.Time) *CredentialResponse {
	return &CredentialResponse{
		Azure:          &models.AzureUserDelegationSAS{SASToken: sasToken},
		ExpirationTime: expiry.UnixMilli(),
	}
}

// NewGCPResponse builds a GCP-variant response.
func NewGCPResponse(token string, expiry time.Time) *CredentialResponse {
	return &CredentialResponse{
		GCP:            &models.GcpOauthToken{OauthToken: token},
		ExpirationTime: expiry.UnixMilli(),
	}
}

// Provider reports which variant is populated. ProviderNone means zero or several.
func (r *CredentialResponse) Provider() Provider {
	if r == nil {
		return ProviderNone
	}
	n := 0
	p := ProviderNone
	if r.AWS != nil {
		n++
		p = ProviderAWS
	}
	if r.Azure != nil {
		n++
		p = ProviderAzure
	}
	if r.GCP != nil {
		n++
		p = ProviderGCP
	}
	if n != 1 {
		return ProviderNone
	}
	return p
}

// Expiry returns ExpirationTime as a time.Time.
func (r *CredentialResponse) Expiry() time.Time {
	return time.UnixMilli(r.ExpirationTime).UTC()
}

// Validate checks the response is usable for scheme: one variant, the right
// one, no empty secret fields, and a positive expiry.
func (r *CredentialResponse) Validate(scheme Scheme) error {
	if r == nil {
		return errNoVariant
	}

	count := 0
	for _, set := range []bool{r.AWS != nil, r.Azure != nil, r.GCP != nil} {
		if set {
			count++
		}
	}
	switch {
	case count == 0:
		return errNoVariant
	case count > 1:
		return errMultipleVariants
	}

	if got, want := r.Provider(), scheme.Provider(); got != want {
		return fmt.Errorf("%s credential returned for %s location", got, scheme)
	}

	switch {
	case r.AWS != nil:
		if r.AWS.AccessKeyID == "" || r.AWS.SecretAccessKey == "" || r.AWS.SessionToken == "" {
			return errors.New("aws credential is missing access key, secret or session token")
		}
	case r.Azure != nil:
		if r.Azure.SASToken == "" {
			return errors.New("azure SAS token is empty")
		}
	case r.GCP != nil:
		if r.GCP.OauthToken == "" {
			return errors.New("gcp oauth token is empty")
		}
	}

	if r.ExpirationTime <= 0 {
		return errNoExpiry
	}
	return nil
}

// ToTableResponse reshapes r into the table credential API form.
func (r *CredentialResponse) ToTableResponse() *models.GenerateTemporaryTableCredentialResponse {
	return &models.GenerateTemporaryTableCredentialResponse{
		AwsTempCredentials:     r.AWS,
		AzureUserDelegationSAS: r.Azure,
		GcpOauthToken:          r.GCP,
		ExpirationTime:         r.ExpirationTime,
	}
}

// ToVolumeResponse reshapes r into the volume credential API form.
func (r *CredentialResponse) ToVolumeResponse() *models.GenerateTemporaryVolumeCredentialResponse {
	return &models.GenerateTemporaryVolumeCredentialResponse{
		AwsTempCredentials:     r.AWS,
		AzureUserDelegationSAS: r.Azure,
		GcpOauthToken:          r.GCP,
		ExpirationTime:         r.ExpirationTime,
	}
}
