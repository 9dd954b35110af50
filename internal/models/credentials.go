package models

// TableInfo is the subset of a catalog table needed to vend credentials for it.
type TableInfo struct {
	TableID         string `json:"table_id" yaml:"table_id"`
	Name            string `json:"name" yaml:"name"`
	CatalogName     string `json:"catalog_name" yaml:"catalog_name"`
	SchemaName      string `json:"schema_name" yaml:"schema_name"`
	StorageLocation string `json:"storage_location" yaml:"storage_location"`
}

// FullName returns catalog.schema.name
func (t *TableInfo) FullName() string {
	return t.CatalogName + "." + t.SchemaName + "." + t.Name
}

// VolumeInfo is the subset of a catalog volume needed to vend credentials for it.
type VolumeInfo struct {
	VolumeID        string `json:"volume_id" yaml:"volume_id"`
	Name            string `json:"name" yaml:"name"`
	CatalogName     string `json:"catalog_name" yaml:"catalog_name"`
	SchemaName      string `json:"schema_name" yaml:"schema_name"`
	StorageLocation string `json:"storage_location" yaml:"storage_location"`
}

// FullName returns catalog.schema.name
func (v *VolumeInfo) FullName() string {
	return v.CatalogName + "." + v.SchemaName + "." + v.Name
}

// AwsCredentials are STS session credentials.
type AwsCredentials struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	SessionToken    string `json:"session_token"`
}

// AzureUserDelegationSAS is an encoded SAS query string signed with a user delegation key.
type AzureUserDelegationSAS struct {
	SASToken string `json:"sas_token"`
}

// GcpOauthToken is a downscoped OAuth2 access token.
type GcpOauthToken struct {
	OauthToken string `json:"oauth_token"`
}

// GenerateTemporaryTableCredentialResponse is returned by /temporary-table-credentials.
// Exactly one of the credential fields is set.
type GenerateTemporaryTableCredentialResponse struct {
	AwsTempCredentials     *AwsCredentials         `json:"aws_temp_credentials,omitempty"`
	AzureUserDelegationSAS *AzureUserDelegationSAS `json:"azure_user_delegation_sas,omitempty"`
	GcpOauthToken          *GcpOauthToken          `json:"gcp_oauth_token,omitempty"`
	ExpirationTime         int64                   `json:"expiration_time"`
}

// GenerateTemporaryVolumeCredentialResponse is returned by /temporary-volume-credentials.
// Same shape as the table response; kept as a distinct type to match the API.
type GenerateTemporaryVolumeCredentialResponse struct {
	AwsTempCredentials     *AwsCredentials         `json:"aws_temp_credentials,omitempty"`
	AzureUserDelegationSAS *AzureUserDelegationSAS `json:"azure_user_delegation_sas,omitempty"`
	GcpOauthToken          *GcpOauthToken          `json:"gcp_oauth_token,omitempty"`
	ExpirationTime         int64                   `json:"expiration_time"`
}

// Table operations
const (
	TableOperationRead      = "READ"
	TableOperationReadWrite = "READ_WRITE"
)

// Volume operations
const (
	VolumeOperationRead  = "READ_VOLUME"
	VolumeOperationWrite = "WRITE_VOLUME"
)

// GenerateTemporaryTableCredential is the request body for /temporary-table-credentials.
type GenerateTemporaryTableCredential struct {
	TableID   string `json:"table_id"`
	Operation string `json:"operation,omitempty"`
}

// GenerateTemporaryVolumeCredential is the request body for /temporary-volume-credentials.
type GenerateTemporaryVolumeCredential struct {
	VolumeID  string `json:"volume_id"`
	Operation string `json:"operation,omitempty"`
}

// ErrorResponse is the JSON error body returned by the HTTP API.
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}
