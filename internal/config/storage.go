package config

import (
	"fmt"
	"net/url"
	"strings"
)

// S3BucketConfig is one s3.*.N group from server.properties.
type S3BucketConfig struct {
	BucketPath   string // s3://bucket
	AccessKey    string
	SecretKey    string
	SessionToken string // optional; empty for long-term IAM user keys
	Region       string // optional; falls back to aws.region
	RoleARN      string // optional; when set, vending uses AssumeRole instead of GetFederationToken
}

// ADLSContainerConfig is one adls.*.N group: a service principal allowed to
// request user delegation keys for the container's storage account.
type ADLSContainerConfig struct {
	ContainerPath string // abfss://container@account.dfs.core.windows.net
	TenantID      string
	ClientID      string
	ClientSecret  string
}

// GCSBucketConfig is one gcs.*.N group.
type GCSBucketConfig struct {
	BucketPath      string // gs://bucket
	JSONKeyFilePath string
}

// StorageConfig holds per-bucket and per-container credentials.
//
// It is built once at startup and never mutated afterwards, so concurrent
// lookups from in-flight vend calls need no locking. All lookups are exact
// matches on the normalized storage root (see RootOf).
type StorageConfig struct {
	s3   map[string]S3BucketConfig
	adls map[string]ADLSContainerConfig
	gcs  map[string]GCSBucketConfig
}

// NewStorageConfig builds an immutable StorageConfig from explicit entries.
// Entries whose path cannot be normalized are rejected. A later entry for the
// same root replaces an earlier one, matching how the properties scan behaves.
func NewStorageConfig(s3 []S3BucketConfig, adls []ADLSContainerConfig, gcs []GCSBucketConfig) (*StorageConfig, error) {
	sc := &StorageConfig{
		s3:   make(map[string]S3BucketConfig, len(s3)),
		adls: make(map[string]ADLSContainerConfig, len(adls)),
		gcs:  make(map[string]GCSBucketConfig, len(gcs)),
	}

	for _, b := range s3 {
		root, err := RootOf(b.BucketPath)
		if err != nil {
			return nil, fmt.Errorf("s3 bucket %q: %w", b.BucketPath, err)
		}
		if !strings.HasPrefix(root, "s3://") {
			return nil, fmt.Errorf("s3 bucket %q: %w", b.BucketPath, ErrWrongScheme)
		}
		sc.s3[root] = b
	}

	for _, c := range adls {
		root, err := RootOf(c.ContainerPath)
		if err != nil {
			return nil, fmt.Errorf("adls container %q: %w", c.ContainerPath, err)
		}
		if !strings.HasPrefix(root, "abfss://") {
			return nil, fmt.Errorf("adls container %q: %w", c.ContainerPath, ErrWrongScheme)
		}
		sc.adls[root] = c
	}

	for _, g := range gcs {
		root, err := RootOf(g.BucketPath)
		if err != nil {
			return nil, fmt.Errorf("gcs bucket %q: %w", g.BucketPath, err)
		}
		if !strings.HasPrefix(root, "gs://") {
			return nil, fmt.Errorf("gcs bucket %q: %w", g.BucketPath, ErrWrongScheme)
		}
		sc.gcs[root] = g
	}

	return sc, nil
}

// EmptyStorageConfig returns a configuration with no buckets or containers.
func EmptyStorageConfig() *StorageConfig {
	sc, _ := NewStorageConfig(nil, nil, nil)
	return sc
}

// S3Bucket returns the entry for an s3:// root.
func (sc *StorageConfig) S3Bucket(root string) (S3BucketConfig, bool) {
	b, ok := sc.s3[root]
	return b, ok
}

// ADLSContainer returns the entry for an abfss:// root.
func (sc *StorageConfig) ADLSContainer(root string) (ADLSContainerConfig, bool) {
	c, ok := sc.adls[root]
	return c, ok
}

// GCSBucket returns the entry for a gs:// root.
func (sc *StorageConfig) GCSBucket(root string) (GCSBucketConfig, bool) {
	g, ok := sc.gcs[root]
	return g, ok
}

// Counts returns the number of configured entries per provider.
func (sc *StorageConfig) Counts() (s3, adls, gcs int) {
	return len(sc.s3), len(sc.adls), len(sc.gcs)
}

// S3Buckets returns a copy of all S3 entries keyed by root.
func (sc *StorageConfig) S3Buckets() map[string]S3BucketConfig {
	out := make(map[string]S3BucketConfig, len(sc.s3))
	for k, v := range sc.s3 {
		out[k] = v
	}
	return out
}

// ADLSContainers returns a copy of all ADLS entries keyed by root.
func (sc *StorageConfig) ADLSContainers() map[string]ADLSContainerConfig {
	out := make(map[string]ADLSContainerConfig, len(sc.adls))
	for k, v := range sc.adls {
		out[k] = v
	}
	return out
}

// GCSBuckets returns a copy of all GCS entries keyed by root.
func (sc *StorageConfig) GCSBuckets() map[string]GCSBucketConfig {
	out := make(map[string]GCSBucketConfig, len(sc.gcs))
	for k, v := range sc.gcs {
		out[k] = v
	}
	return out
}

// RootOf reduces a storage location to its configuration key: the lowercased
// scheme, "://", and the authority. abfs and abfss share one key space under
// abfss so either spelling in a request finds the same container entry.
//
//	s3://Bucket-A/dir/obj                          -> s3://Bucket-A
//	abfs://data@acct.dfs.core.windows.net/t1       -> abfss://data@acct.dfs.core.windows.net
func RootOf(location string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(location))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" || u.Host == "" {
		return "", ErrInvalidLocation
	}
	if scheme == "abfs" {
		scheme = "abfss"
	}

	authority := u.Host
	if u.User != nil {
		authority = u.User.Username() + "@" + u.Host
	}
	return scheme + "://" + authority, nil
}
