// Package config loads the credvend server.properties file.
//
// The file is a flat Java-style properties document:
//
//	server.port=8080
//	server.catalogFile=etc/conf/catalog.yaml
//	aws.region=us-west-2
//
//	s3.bucketPath.0=s3://bucket-a
//	s3.accessKey.0=AKIA...
//	s3.secretKey.0=...
//	s3.sessionToken.0=
//
//	adls.containerPath.0=abfss://data@acct.dfs.core.windows.net
//	adls.tenantId.0=...
//	adls.clientId.0=...
//	adls.clientSecret.0=...
//
//	gcs.bucketPath.0=gs://bucket-g
//	gcs.jsonKeyFilePath.0=/etc/conf/sa.json
//
//	ratelimit.enabled=true
//	ratelimit.aws.perSecond=50
//
// Indexed groups are scanned from 0 upwards; the scan of a group stops at the
// first index that is missing any of its required keys.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/rescale/credvend/internal/constants"
	"github.com/rescale/credvend/internal/pathutil"
)

// DefaultPropertiesPath is where the server looks when --config is not given.
const DefaultPropertiesPath = "etc/conf/server.properties"

// Properties is the fully parsed configuration.
type Properties struct {
	// Path is the file the properties were read from (empty for defaults)
	Path string

	Server  ServerConfig
	Storage *StorageConfig
}

// ServerConfig contains the scalar (non-indexed) settings.
type ServerConfig struct {
	// Port is the HTTP listen port. Default: 8080
	Port int

	// CatalogFile is the YAML file listing tables and volumes. Empty disables the HTTP entry points.
	CatalogFile string

	// AWSRegion is the STS region when a bucket entry does not set one. Default: us-east-1
	AWSRegion string

	// STSEndpoint overrides the STS endpoint (VPC endpoints, LocalStack). Optional.
	STSEndpoint string

	// AWSRoleARN is assumed for S3 buckets whose entry sets no s3.awsRoleArn.
	// Needed when the base identity carries a session token. Optional.
	AWSRoleARN string

	// AWSSessionDuration is the requested STS session lifetime. Range: 15m..12h, Default: 1h
	AWSSessionDuration time.Duration

	// AzureKeyLifetime is the requested user delegation key lifetime. Range: >0..7d, Default: 1h
	AzureKeyLifetime time.Duration

	// AzureSASCeiling caps the SAS expiry. Default: 1h
	AzureSASCeiling time.Duration

	// Proxy configures outbound connections to cloud identity endpoints.
	Proxy ProxyConfig

	// LogFile enables rotating JSON file logs when set.
	LogFile string

	// LogLevel is one of debug, info, warn, error. Default: info
	LogLevel string

	// RateLimit throttles outbound identity exchanges per provider.
	RateLimit RateLimitConfig
}

// RateLimitConfig caps identity exchanges per second for each provider.
// A zero rate selects the provider default; a negative rate disables limiting
// for that provider.
type RateLimitConfig struct {
	Enabled bool
	AWS     float64
	Azure   float64
	GCP     float64
}

// ProxyConfig describes the outbound proxy.
type ProxyConfig struct {
	// Mode is one of no-proxy (default), system, basic, ntlm
	Mode     string
	Host     string
	Port     int
	User     string
	Password string
	// NoProxy is a comma-separated bypass list (hosts, domains, CIDRs)
	NoProxy string
}

// Configuration errors
var (
	ErrInvalidLocation     = errors.New("storage location must be an absolute URI with a host")
	ErrWrongScheme         = errors.New("storage location has the wrong scheme for this group")
	ErrInvalidPort         = errors.New("server.port must be between 1 and 65535")
	ErrInvalidAWSDuration  = errors.New("credentials.aws.durationSeconds must be between 900 and 43200")
	ErrInvalidAzureKeyLife = errors.New("credentials.azure.keyLifetimeSeconds must be between 1 and 604800")
	ErrInvalidSASCeiling   = errors.New("credentials.azure.sasCeilingSeconds must be positive")
	ErrInvalidProxyMode    = errors.New("proxy.mode must be one of no-proxy, system, basic, ntlm")
)

// NewServerConfig returns a ServerConfig populated with defaults.
func NewServerConfig() ServerConfig {
	return ServerConfig{
		Port:               constants.DefaultServerPort,
		AWSRegion:          constants.DefaultAWSRegion,
		AWSSessionDuration: constants.DefaultAWSSessionDuration,
		AzureKeyLifetime:   constants.DefaultAzureKeyLifetime,
		AzureSASCeiling:    constants.DefaultAzureSASCeiling,
		Proxy:              ProxyConfig{Mode: "no-proxy"},
		LogLevel:           "info",
		RateLimit:          RateLimitConfig{Enabled: true},
	}
}

// Validate checks ranges on the scalar settings.
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.AWSSessionDuration < constants.MinAWSSessionDuration || c.AWSSessionDuration > constants.MaxAWSSessionDuration {
		return ErrInvalidAWSDuration
	}
	if c.AzureKeyLifetime <= 0 || c.AzureKeyLifetime > constants.MaxAzureKeyLifetime {
		return ErrInvalidAzureKeyLife
	}
	if c.AzureSASCeiling <= 0 {
		return ErrInvalidSASCeiling
	}
	switch strings.ToLower(c.Proxy.Mode) {
	case "", "no-proxy", "system", "basic", "ntlm":
	default:
		return ErrInvalidProxyMode
	}
	return nil
}

// Defaults returns properties with default server settings and no storage entries.
func Defaults() *Properties {
	return &Properties{
		Server:  NewServerConfig(),
		Storage: EmptyStorageConfig(),
	}
}

// Load reads and parses a properties file. A missing file is reported with an
// error wrapping os.ErrNotExist so callers can decide whether defaults are acceptable.
func Load(path string) (*Properties, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to read properties %s: %w", path, err)
	}

	f, err := ini.LoadSources(ini.LoadOptions{
		// Secrets may legitimately contain '#' or ';'
		IgnoreInlineComment: true,
		// Keep backslashes in Windows key file paths untouched
		IgnoreContinuation: true,
	}, path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse properties %s: %w", path, err)
	}

	baseDir := filepath.Dir(path)
	props, err := parse(f.Section(ini.DefaultSection), func(p string) (string, error) {
		return resolvePath(p, baseDir)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid properties %s: %w", path, err)
	}
	props.Path = path
	return props, nil
}

// resolvePath anchors relative and ~ paths at baseDir. Absolute paths are
// used exactly as written.
func resolvePath(p, baseDir string) (string, error) {
	if p == "" || filepath.IsAbs(p) {
		return p, nil
	}
	resolved, err := pathutil.Resolve(p, baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", p, err)
	}
	return resolved, nil
}

// LoadBytes parses properties held in memory.
func LoadBytes(data []byte) (*Properties, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment: true,
		IgnoreContinuation:  true,
	}, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse properties: %w", err)
	}
	return parse(f.Section(ini.DefaultSection), nil)
}

// parse builds Properties from the default section. resolve, when non-nil,
// rewrites file paths (catalog, log file, GCS key files).
func parse(sec *ini.Section, resolve func(string) (string, error)) (*Properties, error) {
	if resolve == nil {
		resolve = func(p string) (string, error) { return p, nil }
	}

	server, err := parseServer(sec)
	if err != nil {
		return nil, err
	}
	if server.CatalogFile, err = resolve(server.CatalogFile); err != nil {
		return nil, err
	}
	if server.LogFile, err = resolve(server.LogFile); err != nil {
		return nil, err
	}

	gcs := scanGCS(sec)
	for i := range gcs {
		if gcs[i].JSONKeyFilePath, err = resolve(gcs[i].JSONKeyFilePath); err != nil {
			return nil, err
		}
	}

	storage, err := NewStorageConfig(scanS3(sec), scanADLS(sec), gcs)
	if err != nil {
		return nil, err
	}

	return &Properties{Server: server, Storage: storage}, nil
}

func parseServer(sec *ini.Section) (ServerConfig, error) {
	cfg := NewServerConfig()
	var err error

	if cfg.Port, err = intProp(sec, "server.port", cfg.Port); err != nil {
		return cfg, err
	}
	cfg.CatalogFile = stringProp(sec, "server.catalogFile", cfg.CatalogFile)
	cfg.AWSRegion = stringProp(sec, "aws.region", cfg.AWSRegion)
	cfg.STSEndpoint = stringProp(sec, "aws.stsEndpoint", cfg.STSEndpoint)
	cfg.AWSRoleARN = stringProp(sec, "aws.roleArn", cfg.AWSRoleARN)

	if cfg.AWSSessionDuration, err = secondsProp(sec, "credentials.aws.durationSeconds", cfg.AWSSessionDuration); err != nil {
		return cfg, err
	}
	if cfg.AzureKeyLifetime, err = secondsProp(sec, "credentials.azure.keyLifetimeSeconds", cfg.AzureKeyLifetime); err != nil {
		return cfg, err
	}
	if cfg.AzureSASCeiling, err = secondsProp(sec, "credentials.azure.sasCeilingSeconds", cfg.AzureSASCeiling); err != nil {
		return cfg, err
	}

	cfg.Proxy.Mode = strings.ToLower(stringProp(sec, "proxy.mode", cfg.Proxy.Mode))
	cfg.Proxy.Host = stringProp(sec, "proxy.host", "")
	if cfg.Proxy.Port, err = intProp(sec, "proxy.port", 0); err != nil {
		return cfg, err
	}
	cfg.Proxy.User = stringProp(sec, "proxy.user", "")
	cfg.Proxy.Password = stringProp(sec, "proxy.password", "")
	cfg.Proxy.NoProxy = stringProp(sec, "proxy.noProxy", "")

	cfg.LogFile = stringProp(sec, "log.file", cfg.LogFile)
	cfg.LogLevel = stringProp(sec, "log.level", cfg.LogLevel)

	if cfg.RateLimit.Enabled, err = boolProp(sec, "ratelimit.enabled", cfg.RateLimit.Enabled); err != nil {
		return cfg, err
	}
	if cfg.RateLimit.AWS, err = floatProp(sec, "ratelimit.aws.perSecond", 0); err != nil {
		return cfg, err
	}
	if cfg.RateLimit.Azure, err = floatProp(sec, "ratelimit.azure.perSecond", 0); err != nil {
		return cfg, err
	}
	if cfg.RateLimit.GCP, err = floatProp(sec, "ratelimit.gcp.perSecond", 0); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func scanS3(sec *ini.Section) []S3BucketConfig {
	var out []S3BucketConfig
	for i := 0; ; i++ {
		bucketPath, ok1 := indexed(sec, "s3.bucketPath", i)
		accessKey, ok2 := indexed(sec, "s3.accessKey", i)
		secretKey, ok3 := indexed(sec, "s3.secretKey", i)
		if !ok1 || !ok2 || !ok3 {
			break
		}
		if bucketPath == "" {
			continue
		}
		sessionToken, _ := indexed(sec, "s3.sessionToken", i)
		region, _ := indexed(sec, "s3.region", i)
		roleARN, _ := indexed(sec, "s3.awsRoleArn", i)
		out = append(out, S3BucketConfig{
			BucketPath:   bucketPath,
			AccessKey:    accessKey,
			SecretKey:    secretKey,
			SessionToken: sessionToken,
			Region:       region,
			RoleARN:      roleARN,
		})
	}
	return out
}

func scanADLS(sec *ini.Section) []ADLSContainerConfig {
	var out []ADLSContainerConfig
	for i := 0; ; i++ {
		containerPath, ok1 := indexed(sec, "adls.containerPath", i)
		tenantID, ok2 := indexed(sec, "adls.tenantId", i)
		clientID, ok3 := indexed(sec, "adls.clientId", i)
		clientSecret, ok4 := indexed(sec, "adls.clientSecret", i)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			break
		}
		if containerPath == "" {
			continue
		}
		out = append(out, ADLSContainerConfig{
			ContainerPath: containerPath,
			TenantID:      tenantID,
			ClientID:      clientID,
			ClientSecret:  clientSecret,
		})
	}
	return out
}

func scanGCS(sec *ini.Section) []GCSBucketConfig {
	var out []GCSBucketConfig
	for i := 0; ; i++ {
		bucketPath, ok1 := indexed(sec, "gcs.bucketPath", i)
		keyFile, ok2 := indexed(sec, "gcs.jsonKeyFilePath", i)
		if !ok1 || !ok2 {
			break
		}
		if bucketPath == "" {
			continue
		}
		out = append(out, GCSBucketConfig{
			BucketPath:      bucketPath,
			JSONKeyFilePath: keyFile,
		})
	}
	return out
}

// indexed reads "<prefix>.<i>". The bool reports presence: a key set to an
// empty value still counts, so only a missing key ends a group scan.
func indexed(sec *ini.Section, prefix string, i int) (string, bool) {
	name := prefix + "." + strconv.Itoa(i)
	if !sec.HasKey(name) {
		return "", false
	}
	return strings.TrimSpace(sec.Key(name).String()), true
}

// stringProp reads a scalar key. An environment variable with the exact key
// name takes precedence over the file.
func stringProp(sec *ini.Section, name, def string) string {
	if v, ok := os.LookupEnv(name); ok {
		return strings.TrimSpace(v)
	}
	if sec.HasKey(name) {
		if v := strings.TrimSpace(sec.Key(name).String()); v != "" {
			return v
		}
	}
	return def
}

func intProp(sec *ini.Section, name string, def int) (int, error) {
	raw := stringProp(sec, name, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %q is not an integer", name, raw)
	}
	return v, nil
}

func floatProp(sec *ini.Section, name string, def float64) (float64, error) {
	raw := stringProp(sec, name, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def, fmt.Errorf("%s: %q is not a number", name, raw)
	}
	return v, nil
}

func boolProp(sec *ini.Section, name string, def bool) (bool, error) {
	raw := stringProp(sec, name, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %q is not a boolean", name, raw)
	}
	return v, nil
}

func secondsProp(sec *ini.Section, name string, def time.Duration) (time.Duration, error) {
	raw := stringProp(sec, name, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def, fmt.Errorf("%s: %q is not a number of seconds", name, raw)
	}
	return time.Duration(v) * time.Second, nil
}
