package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescale/credvend/internal/api"
	"github.com/rescale/credvend/internal/cloud"
	"github.com/rescale/credvend/internal/constants"
	"github.com/rescale/credvend/internal/models"
)

type vendOptions struct {
	serverURL string
	volume    bool
	operation string
	readOnly  bool
	verify    bool
	format    string
}

func newVendCmd() *cobra.Command {
	opts := &vendOptions{}

	cmd := &cobra.Command{
		Use:   "vend <location | table-id | volume-id>",
		Short: "Mint a temporary credential",
		Long: `Mint a temporary credential and print it.

Without --server the credential is minted in-process for a storage location
using the configured provider credentials:

  credvend vend s3://lake/sales/orders
  credvend vend --read-only --verify abfss://data@acct.dfs.core.windows.net/raw

With --server the argument is a table id (or a volume id with --volume) and
the request goes to a running "credvend serve":

  credvend vend --server http://localhost:8080 --operation READ 5b1c...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			var (
				resp *models.GenerateTemporaryTableCredentialResponse
				err  error
			)
			if opts.serverURL != "" {
				resp, err = vendRemote(GetContext(), opts, args[0])
			} else {
				resp, err = vendLocal(cmd, opts, args[0])
			}
			if err != nil {
				return err
			}
			return printCredential(cmd.OutOrStdout(), resp, opts.format)
		},
	}

	cmd.Flags().StringVar(&opts.serverURL, "server", "", "Base URL of a running credvend server")
	cmd.Flags().BoolVar(&opts.volume, "volume", false, "Treat the argument as a volume id (requires --server)")
	cmd.Flags().StringVar(&opts.operation, "operation", "", "Operation sent to the server (READ, READ_WRITE, READ_VOLUME, WRITE_VOLUME)")
	cmd.Flags().BoolVar(&opts.readOnly, "read-only", false, "Mint a SELECT-only credential (in-process only)")
	cmd.Flags().BoolVar(&opts.verify, "verify", false, "List the location with the new credential before printing it (in-process only)")
	cmd.Flags().StringVarP(&opts.format, "output", "o", "json", "Output format: json or env")

	return cmd
}

func (o *vendOptions) validate() error {
	if o.format != "json" && o.format != "env" {
		return fmt.Errorf("unsupported output format %q (use json or env)", o.format)
	}
	if o.serverURL == "" {
		if o.volume || o.operation != "" {
			return fmt.Errorf("--volume and --operation require --server")
		}
		return nil
	}
	if o.readOnly || o.verify {
		return fmt.Errorf("--read-only and --verify apply to in-process vending only")
	}
	return nil
}

func vendRemote(ctx context.Context, opts *vendOptions, id string) (*models.GenerateTemporaryTableCredentialResponse, error) {
	client, err := api.NewClient(opts.serverURL, api.Options{Logger: GetLogger()})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, constants.APIContextTimeout)
	defer cancel()

	if !opts.volume {
		return client.GenerateTemporaryTableCredential(ctx, id, opts.operation)
	}
	vr, err := client.GenerateTemporaryVolumeCredential(ctx, id, opts.operation)
	if err != nil {
		return nil, err
	}
	// Same wire shape; print through one path
	return &models.GenerateTemporaryTableCredentialResponse{
		AwsTempCredentials:     vr.AwsTempCredentials,
		AzureUserDelegationSAS: vr.AzureUserDelegationSAS,
		GcpOauthToken:          vr.GcpOauthToken,
		ExpirationTime:         vr.ExpirationTime,
	}, nil
}

func vendLocal(cmd *cobra.Command, opts *vendOptions, location string) (*models.GenerateTemporaryTableCredentialResponse, error) {
	props, err := loadProperties()
	if err != nil {
		return nil, err
	}
	log := GetLogger()

	dispatcher, err := newDispatcher(cmd, props, log)
	if err != nil {
		return nil, err
	}

	privs := []cloud.Privilege{cloud.PrivilegeSelect, cloud.PrivilegeUpdate}
	if opts.readOnly {
		privs = []cloud.Privilege{cloud.PrivilegeSelect}
	}
	cc, err := cloud.NewContext(location, privs)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(GetContext(), constants.ProviderCallTimeout)
	defer cancel()

	resp, err := dispatcher.Vend(ctx, cc)
	if err != nil {
		return nil, err
	}

	if opts.verify {
		if err := dispatcher.Probe(ctx, cc, resp); err != nil {
			return nil, fmt.Errorf("credential was minted but failed verification: %w", err)
		}
		log.Info().Str("root", cc.Root()).Str("prefix", cc.Prefix()).Msg("Credential verified")
	}

	return resp.ToTableResponse(), nil
}

// printCredential writes resp as indented JSON or as shell assignments.
func printCredential(w io.Writer, resp *models.GenerateTemporaryTableCredentialResponse, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	expiry := time.UnixMilli(resp.ExpirationTime).UTC().Format(time.RFC3339)
	switch {
	case resp.AwsTempCredentials != nil:
		fmt.Fprintf(w, "export AWS_ACCESS_KEY_ID=%s\n", resp.AwsTempCredentials.AccessKeyID)
		fmt.Fprintf(w, "export AWS_SECRET_ACCESS_KEY=%s\n", resp.AwsTempCredentials.SecretAccessKey)
		fmt.Fprintf(w, "export AWS_SESSION_TOKEN=%s\n", resp.AwsTempCredentials.SessionToken)
	case resp.AzureUserDelegationSAS != nil:
		fmt.Fprintf(w, "export AZURE_STORAGE_SAS_TOKEN='%s'\n", resp.AzureUserDelegationSAS.SASToken)
	case resp.GcpOauthToken != nil:
		fmt.Fprintf(w, "export CLOUDSDK_AUTH_ACCESS_TOKEN=%s\n", resp.GcpOauthToken.OauthToken)
	default:
		return fmt.Errorf("response carries no credential")
	}
	fmt.Fprintf(w, "# expires %s\n", expiry)
	return nil
}
