package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rescale/credvend/internal/catalog"
	"github.com/rescale/credvend/internal/cloud/providers"
	"github.com/rescale/credvend/internal/config"
	"github.com/rescale/credvend/internal/constants"
	"github.com/rescale/credvend/internal/fips"
	inthttp "github.com/rescale/credvend/internal/http"
	"github.com/rescale/credvend/internal/logging"
	"github.com/rescale/credvend/internal/server"
	"github.com/rescale/credvend/internal/services"
	"github.com/rescale/credvend/internal/version"
)

// newDispatcher builds the shared outbound client and the three vendors.
// A proxy user without a password is prompted for on the command's stdin.
func newDispatcher(cmd *cobra.Command, props *config.Properties, log *logging.Logger) (*providers.Dispatcher, error) {
	if err := promptProxyPassword(&props.Server.Proxy, cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
		return nil, err
	}
	httpClient, err := inthttp.NewClient(props.Server.Proxy, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}
	return providers.NewFromConfig(props, httpClient, log)
}

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the credential vending HTTP API",
		Long: `Run the HTTP API:

  POST ` + constants.APIPathPrefix + `/temporary-table-credentials
  POST ` + constants.APIPathPrefix + `/temporary-volume-credentials
  GET  /healthz

Tables and volumes are resolved through server.catalogFile. The server drains
in-flight requests on SIGINT/SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := fips.Check(); err != nil {
				return err
			}

			props, err := loadProperties()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				props.Server.Port = port
				if err := props.Server.Validate(); err != nil {
					return err
				}
			}

			log := logging.NewLogger("server", logging.Options{LogFile: props.Server.LogFile})
			defer log.Close()
			if !verbose && !debug {
				logging.SetGlobalLevel(logging.ParseLevel(props.Server.LogLevel))
			}

			dispatcher, err := newDispatcher(cmd, props, log)
			if err != nil {
				return err
			}

			store, err := catalog.Load(props.Server.CatalogFile)
			if err != nil {
				return err
			}
			tables, volumes := store.Counts()
			s3n, adlsn, gcsn := props.Storage.Counts()

			log.Info().
				Str("version", version.Version).
				Str("fips", fips.Status()).
				Str("properties", props.Path).
				Int("tables", tables).
				Int("volumes", volumes).
				Int("s3_buckets", s3n).
				Int("adls_containers", adlsn).
				Int("gcs_buckets", gcsn).
				Msg("Starting credvend")

			svc := services.NewCredentialService(dispatcher, nil, log)
			srv := server.New(props.Server.Port, server.NewHandler(store, svc, log), log)
			return srv.Run(GetContext())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides server.port)")
	return cmd
}
