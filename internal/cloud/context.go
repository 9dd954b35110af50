package cloud

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/rescale/credvend/internal/config"
)

// Scheme is the storage URI scheme of a credential request.
type Scheme int

// The set of schemes is closed. Anything else parses to SchemeUnsupported.
const (
	SchemeUnsupported Scheme = iota
	SchemeS3
	SchemeABFS
	SchemeABFSS
	SchemeGS
)

// SupportedSchemes lists every scheme a vendor exists for.
func SupportedSchemes() []Scheme {
	return []Scheme{SchemeS3, SchemeABFS, SchemeABFSS, SchemeGS}
}

// ParseScheme maps a URI scheme to a Scheme. Matching is case-insensitive.
// s3a and s3n are Hadoop connector aliases and are deliberately not accepted.
func ParseScheme(s string) Scheme {
	switch strings.ToLower(s) {
	case "s3":
		return SchemeS3
	case "abfs":
		return SchemeABFS
	case "abfss":
		return SchemeABFSS
	case "gs":
		return SchemeGS
	default:
		return SchemeUnsupported
	}
}

func (s Scheme) String() string {
	switch s {
	case SchemeS3:
		return "s3"
	case SchemeABFS:
		return "abfs"
	case SchemeABFSS:
		return "abfss"
	case SchemeGS:
		return "gs"
	default:
		return "unsupported"
	}
}

// Provider is the cloud that owns a scheme.
type Provider int

const (
	ProviderNone Provider = iota
	ProviderAWS
	ProviderAzure
	ProviderGCP
)

func (p Provider) String() string {
	switch p {
	case ProviderAWS:
		return "aws"
	case ProviderAzure:
		return "azure"
	case ProviderGCP:
		return "gcp"
	default:
		return "none"
	}
}

// Provider returns the cloud that issues credentials for s.
func (s Scheme) Provider() Provider {
	switch s {
	case SchemeS3:
		return ProviderAWS
	case SchemeABFS, SchemeABFSS:
		return ProviderAzure
	case SchemeGS:
		return ProviderGCP
	default:
		return ProviderNone
	}
}

// Privilege is an action class a credential is scoped to.
type Privilege string

const (
	PrivilegeSelect Privilege = "SELECT"
	PrivilegeUpdate Privilege = "UPDATE"
)

// ParsePrivilege accepts SELECT or UPDATE in any case.
func ParsePrivilege(s string) (Privilege, error) {
	switch Privilege(strings.ToUpper(strings.TrimSpace(s))) {
	case PrivilegeSelect:
		return PrivilegeSelect, nil
	case PrivilegeUpdate:
		return PrivilegeUpdate, nil
	default:
		return "", fmt.Errorf("unknown privilege %q", s)
	}
}

// PrivilegeResolver decides which privileges a credential carries for the
// requested operation ("READ", "READ_WRITE", "READ_VOLUME", ...).
type PrivilegeResolver func(ctx context.Context, operation string) ([]Privilege, error)

// FixedPrivileges returns a resolver that ignores the operation and always
// yields privs.
func FixedPrivileges(privs ...Privilege) PrivilegeResolver {
	fixed := append([]Privilege(nil), privs...)
	return func(context.Context, string) ([]Privilege, error) {
		return append([]Privilege(nil), fixed...), nil
	}
}

// DefaultPrivilegeResolver grants SELECT and UPDATE for every request.
// Access-control evaluation happens upstream of credential vending.
var DefaultPrivilegeResolver = FixedPrivileges(PrivilegeSelect, PrivilegeUpdate)

var (
	errNoPrivileges   = errors.New("at least one privilege is required")
	errNoContainer    = errors.New("abfs location must name a container as container@account")
	errEmptyLocation  = errors.New("storage location is empty")
	errNoSchemeOrHost = errors.New("storage location must be an absolute URI with a host")
)

// CredentialContext describes a single vend request. It is immutable; all
// accessors return copies.
type CredentialContext struct {
	scheme     Scheme
	basePath   string
	root       string
	host       string
	container  string
	privileges []Privilege
	locations  []string
}

// NewContext builds a context for location with the given privileges.
//
// An unsupported scheme still yields a context (Scheme() == SchemeUnsupported)
// so the dispatcher can reject it explicitly. Unparsable locations and empty
// privilege sets fail with KindInvalidArgument.
func NewContext(location string, privileges []Privilege) (CredentialContext, error) {
	const op = "cloud.NewContext"

	location = strings.TrimSpace(location)
	if location == "" {
		return CredentialContext{}, NewInvalidArgumentError(op, errEmptyLocation)
	}

	privs, err := normalizePrivileges(privileges)
	if err != nil {
		return CredentialContext{}, NewInvalidArgumentError(op, err)
	}

	u, err := url.Parse(location)
	if err != nil {
		return CredentialContext{}, NewInvalidArgumentError(op, fmt.Errorf("invalid storage location %q: %w", location, err))
	}
	if u.Scheme == "" {
		return CredentialContext{}, NewInvalidArgumentError(op, fmt.Errorf("%w: %q", errNoSchemeOrHost, location))
	}

	cc := CredentialContext{
		scheme:     ParseScheme(u.Scheme),
		privileges: privs,
		locations:  []string{location},
	}
	if cc.scheme == SchemeUnsupported {
		return cc, nil
	}

	if u.Host == "" {
		return CredentialContext{}, NewInvalidArgumentError(op, fmt.Errorf("%w: %q", errNoSchemeOrHost, location))
	}

	root, err := config.RootOf(location)
	if err != nil {
		return CredentialContext{}, NewInvalidArgumentError(op, err)
	}
	cc.root = root
	cc.host = u.Host

	if cc.scheme.Provider() == ProviderAzure {
		if u.User == nil || u.User.Username() == "" {
			return CredentialContext{}, NewInvalidArgumentError(op, fmt.Errorf("%w: %q", errNoContainer, location))
		}
		cc.container = u.User.Username()
	}

	cc.basePath = u.Path
	if cc.basePath == "" {
		cc.basePath = "/"
	}
	return cc, nil
}

func normalizePrivileges(in []Privilege) ([]Privilege, error) {
	seen := make(map[Privilege]bool, len(in))
	out := make([]Privilege, 0, len(in))
	for _, p := range in {
		if p != PrivilegeSelect && p != PrivilegeUpdate {
			return nil, fmt.Errorf("unknown privilege %q", p)
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, errNoPrivileges
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Scheme returns the request scheme.
func (c CredentialContext) Scheme() Scheme { return c.scheme }

// BasePath is the URI path with scheme and authority stripped ("/" for a bucket root).
func (c CredentialContext) BasePath() string { return c.basePath }

// Root is the configuration key for the location, e.g. "s3://bucket".
func (c CredentialContext) Root() string { return c.root }

// Bucket is the S3/GCS bucket, or the ADLS container.
func (c CredentialContext) Bucket() string {
	if c.scheme.Provider() == ProviderAzure {
		return c.container
	}
	return c.host
}

// Account is the Azure storage account name (empty for other providers).
func (c CredentialContext) Account() string {
	if c.scheme.Provider() != ProviderAzure {
		return ""
	}
	account, _, _ := strings.Cut(c.host, ".")
	return account
}

// Host is the URI host. For ADLS this is the account endpoint host.
func (c CredentialContext) Host() string { return c.host }

// Prefix is BasePath without leading or trailing slashes; empty for a bucket root.
func (c CredentialContext) Prefix() string { return strings.Trim(c.basePath, "/") }

// Privileges returns a sorted copy of the privilege set.
func (c CredentialContext) Privileges() []Privilege {
	return append([]Privilege(nil), c.privileges...)
}

// Has reports whether p is in the privilege set.
func (c CredentialContext) Has(p Privilege) bool {
	for _, q := range c.privileges {
		if q == p {
			return true
		}
	}
	return false
}

// Locations returns the storage URIs the credential must cover.
func (c CredentialContext) Locations() []string {
	return append([]string(nil), c.locations...)
}

// PrivilegeStrings is Privileges as plain strings, for logging.
func (c CredentialContext) PrivilegeStrings() []string {
	out := make([]string, len(c.privileges))
	for i, p := range c.privileges {
		out[i] = string(p)
	}
	return out
}
