// Package cli provides the command-line interface for credvend.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rescale/credvend/internal/config"
	"github.com/rescale/credvend/internal/fips"
	"github.com/rescale/credvend/internal/logging"
	"github.com/rescale/credvend/internal/version"
)

var (
	// Global flags
	cfgFile string
	verbose bool
	debug   bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "credvend",
		Short: "Temporary cloud storage credentials for catalog tables and volumes",
		Long: `credvend ` + version.Version + ` - Built: ` + version.BuildTime + ` ` + fips.Status() + `
Vends short-lived, path-scoped credentials for table and volume storage:

  s3://      AWS STS session credentials limited by an inline session policy
  abfs(s)://  Azure user delegation SAS for a container or directory
  gs://      GCP OAuth token downscoped by a Credential Access Boundary

Run "credvend serve" to expose the HTTP API, or "credvend vend" for a one-off credential.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultCLILogger()
			if verbose || debug {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to server.properties (default "+config.DefaultPropertiesPath+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ") " + fips.Status()

	completionCmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate a shell completion script for credvend.

  bash:        source <(credvend completion bash)
  zsh:         credvend completion zsh > "${fpath[1]}/_credvend"
  fish:        credvend completion fish > ~/.config/fish/completions/credvend.fish
  powershell:  credvend completion powershell | Out-String | Invoke-Expression`,
	}
	rootCmd.AddCommand(completionCmd)

	completionCmd.AddCommand(&cobra.Command{
		Use:   "bash",
		Short: "Generate bash completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenBashCompletion(cmd.OutOrStdout())
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:   "zsh",
		Short: "Generate zsh completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenZshCompletion(cmd.OutOrStdout())
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:   "fish",
		Short: "Generate fish completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:   "powershell",
		Short: "Generate PowerShell completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenPowerShellCompletion(cmd.OutOrStdout())
		},
	})

	// Replaced by the completion command above
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range sigChan {
			// A closed channel yields nil and ends the loop
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived signal %v, shutting down...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVendCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetContext returns the global CLI context. It is cancelled on SIGINT/SIGTERM.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}

// propertiesPath resolves --config against the default location.
func propertiesPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPropertiesPath
}

// loadProperties reads the properties file. A missing default file falls back
// to built-in defaults with no storage entries; a missing explicit --config is
// an error.
func loadProperties() (*config.Properties, error) {
	path := propertiesPath()
	props, err := config.Load(path)
	if err == nil {
		return props, nil
	}
	if cfgFile == "" && errors.Is(err, os.ErrNotExist) {
		GetLogger().Warn().Str("path", path).Msg("properties file not found, using defaults")
		return config.Defaults(), nil
	}
	return nil, err
}
