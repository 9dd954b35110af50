package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rescale/credvend/internal/catalog"
	"github.com/rescale/credvend/internal/config"
	"github.com/rescale/credvend/internal/ratelimit"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect credvend configuration",
		Long:  `Inspect and check server.properties and the catalog file it references.`,
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigTestCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the effective configuration: server settings plus every configured
S3 bucket, ADLS container and GCS bucket.

Secrets are masked unless --reveal is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			props, err := loadProperties()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			showProperties(out, props, reveal, isTerminal(out))
			return nil
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print secrets in clear text")
	return cmd
}

// secret masks s unless reveal is set. Never prints any portion of a masked value.
func secret(s string, reveal bool) string {
	switch {
	case s == "":
		return "<not set>"
	case reveal:
		return s
	default:
		return fmt.Sprintf("<set (%d chars)>", len(s))
	}
}

func showProperties(w io.Writer, props *config.Properties, reveal, color bool) {
	heading := func(s string) {
		if color {
			fmt.Fprintf(w, "\033[1m%s\033[0m\n", s)
			return
		}
		fmt.Fprintln(w, s)
	}

	srv := props.Server
	heading("Server:")
	fmt.Fprintf(w, "  Port:                %d\n", srv.Port)
	fmt.Fprintf(w, "  Catalog File:        %s\n", orNotSet(srv.CatalogFile))
	fmt.Fprintf(w, "  Log Level:           %s\n", srv.LogLevel)
	fmt.Fprintf(w, "  Log File:            %s\n", orNotSet(srv.LogFile))
	fmt.Fprintln(w)

	heading("Credentials:")
	fmt.Fprintf(w, "  AWS Region:          %s\n", srv.AWSRegion)
	if srv.STSEndpoint != "" {
		fmt.Fprintf(w, "  STS Endpoint:        %s\n", srv.STSEndpoint)
	}
	if srv.AWSRoleARN != "" {
		fmt.Fprintf(w, "  AWS Role ARN:        %s\n", srv.AWSRoleARN)
	}
	fmt.Fprintf(w, "  AWS Session:         %s\n", srv.AWSSessionDuration)
	fmt.Fprintf(w, "  Azure Key Lifetime:  %s\n", srv.AzureKeyLifetime)
	fmt.Fprintf(w, "  Azure SAS Ceiling:   %s\n", srv.AzureSASCeiling)
	fmt.Fprintln(w)

	heading("Proxy:")
	fmt.Fprintf(w, "  Mode:                %s\n", srv.Proxy.Mode)
	if srv.Proxy.Host != "" {
		fmt.Fprintf(w, "  Host:                %s\n", srv.Proxy.Host)
		fmt.Fprintf(w, "  Port:                %d\n", srv.Proxy.Port)
	}
	if srv.Proxy.User != "" {
		fmt.Fprintf(w, "  User:                %s\n", srv.Proxy.User)
		fmt.Fprintf(w, "  Password:            %s\n", secret(srv.Proxy.Password, reveal))
	}
	if srv.Proxy.NoProxy != "" {
		fmt.Fprintf(w, "  No Proxy:            %s\n", srv.Proxy.NoProxy)
	}
	fmt.Fprintln(w)

	heading("Rate Limits:")
	if srv.RateLimit.Enabled {
		limits := ratelimit.NewRegistry(srv.RateLimit, nil)
		for _, scope := range []ratelimit.Scope{ratelimit.ScopeAWS, ratelimit.ScopeAzure, ratelimit.ScopeGCP} {
			fmt.Fprintf(w, "  %s\n", limits.ScopeDisplayString(scope))
		}
	} else {
		fmt.Fprintln(w, "  disabled")
	}
	fmt.Fprintln(w)

	s3Buckets := props.Storage.S3Buckets()
	heading(fmt.Sprintf("S3 Buckets (%d):", len(s3Buckets)))
	for _, root := range sortedKeys(s3Buckets) {
		b := s3Buckets[root]
		fmt.Fprintf(w, "  %s\n", root)
		fmt.Fprintf(w, "    Access Key:        %s\n", secret(b.AccessKey, reveal))
		fmt.Fprintf(w, "    Secret Key:        %s\n", secret(b.SecretKey, reveal))
		fmt.Fprintf(w, "    Session Token:     %s\n", secret(b.SessionToken, reveal))
		if b.Region != "" {
			fmt.Fprintf(w, "    Region:            %s\n", b.Region)
		}
		if b.RoleARN != "" {
			fmt.Fprintf(w, "    Role ARN:          %s\n", b.RoleARN)
		}
	}
	fmt.Fprintln(w)

	containers := props.Storage.ADLSContainers()
	heading(fmt.Sprintf("ADLS Containers (%d):", len(containers)))
	for _, root := range sortedKeys(containers) {
		c := containers[root]
		fmt.Fprintf(w, "  %s\n", root)
		fmt.Fprintf(w, "    Tenant ID:         %s\n", c.TenantID)
		fmt.Fprintf(w, "    Client ID:         %s\n", c.ClientID)
		fmt.Fprintf(w, "    Client Secret:     %s\n", secret(c.ClientSecret, reveal))
	}
	fmt.Fprintln(w)

	gcsBuckets := props.Storage.GCSBuckets()
	heading(fmt.Sprintf("GCS Buckets (%d):", len(gcsBuckets)))
	for _, root := range sortedKeys(gcsBuckets) {
		fmt.Fprintf(w, "  %s\n", root)
		fmt.Fprintf(w, "    Key File:          %s\n", gcsBuckets[root].JSONKeyFilePath)
	}
	fmt.Fprintln(w)

	if props.Path != "" {
		fmt.Fprintf(w, "Properties file: %s\n", props.Path)
	} else {
		fmt.Fprintln(w, "Properties file: (none - using defaults)")
	}
}

func orNotSet(s string) string {
	if s == "" {
		return "<not set>"
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Check configuration files",
		Long: `Parse server.properties and the catalog file, and check that every GCS
key file is readable. No cloud calls are made.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			props, err := loadProperties()
			if err != nil {
				return err
			}
			return checkConfig(cmd.OutOrStdout(), props)
		},
	}

	return cmd
}

func checkConfig(w io.Writer, props *config.Properties) error {
	s3n, adlsn, gcsn := props.Storage.Counts()
	fmt.Fprintf(w, "Properties OK: %d S3 bucket(s), %d ADLS container(s), %d GCS bucket(s)\n", s3n, adlsn, gcsn)

	store, err := catalog.Load(props.Server.CatalogFile)
	if err != nil {
		return err
	}
	tables, volumes := store.Counts()
	fmt.Fprintf(w, "Catalog OK: %d table(s), %d volume(s)\n", tables, volumes)

	var failed int
	buckets := props.Storage.GCSBuckets()
	for _, root := range sortedKeys(buckets) {
		path := buckets[root].JSONKeyFilePath
		if _, err := os.Stat(path); err != nil {
			fmt.Fprintf(w, "  %s: key file %s: %v\n", root, path, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d GCS key file(s) are not readable", failed)
	}

	fmt.Fprintln(w, "Configuration OK")
	return nil
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Show the properties file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := propertiesPath()
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintln(cmd.OutOrStdout(), "  (file does not exist - defaults will be used)")
			}
			return nil
		},
	}

	return cmd
}
