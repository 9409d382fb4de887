// Package cli provides the command-line interface for exposerver.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/exposerver/exposerver/internal/config"
	"github.com/exposerver/exposerver/internal/logging"
	"github.com/exposerver/exposerver/internal/version"
)

var (
	// Global flags
	cfgFile   string
	serverURL string
	authFlag  string
	proxyMode string
	proxyHost string
	proxyPort int
	verbose   bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "exposerver",
		Short: "Client for an exposerver file server",
		Long: `exposerver ` + version.Version + ` - Built: ` + version.BuildTime + `
Upload files to an exposerver instance (or S3 / Azure Blob), browse what it
serves and follow its request log.

Every file of an upload starts immediately and in parallel, each with its
own progress bar. Type a file's identifier and press Enter to cancel it,
or press Ctrl+C to cancel them all.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultCLILogger()
			if verbose {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "exposerver URL (overrides EXPOSERVER_URL and config)")
	rootCmd.PersistentFlags().StringVar(&authFlag, "auth", "", "Basic auth credentials as user:pass (overrides EXPOSERVER_AUTH)")
	rootCmd.PersistentFlags().StringVar(&proxyMode, "proxy-mode", "", "Proxy mode: no-proxy, system, basic, ntlm")
	rootCmd.PersistentFlags().StringVar(&proxyHost, "proxy-host", "", "Proxy host")
	rootCmd.PersistentFlags().IntVar(&proxyPort, "proxy-port", 0, "Proxy port")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	rootCmd.AddCommand(newCompletionCmd(rootCmd))
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Loop to handle repeated Ctrl+C while uploads wind down
	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived signal %v, cancelling uploads...\n", sig)
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
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newLogsCmd())
	rootCmd.AddCommand(newLsCmd())
	rootCmd.AddCommand(newMetadataCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newLinkCmd())
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

// GetContext returns the global CLI context, cancelled on Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}

// loadConfig reads the config file and applies environment and flags.
// Missing passwords are prompted for when stdin is a terminal.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	cfg, err := config.LoadConfigCSV(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.MergeWithFlags(serverURL, authFlag, proxyMode, proxyHost, proxyPort)

	if err := promptMissingPasswords(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.DetailedLogging && !verbose {
		logging.SetGlobalLevel(zerolog.DebugLevel)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "exposerver %s (built %s)\n", version.Version, version.BuildTime)
		},
	}
}

func newCompletionCmd(rootCmd *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate a shell completion script",
		Long: `Generate a shell completion script for exposerver.

QUICK TEST (current session only):
  bash:       source <(exposerver completion bash)
  zsh:        source <(exposerver completion zsh)
  fish:       exposerver completion fish | source
  powershell: exposerver completion powershell | Out-String | Invoke-Expression`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return rootCmd.GenBashCompletion(out)
			case "zsh":
				return rootCmd.GenZshCompletion(out)
			case "fish":
				return rootCmd.GenFishCompletion(out, true)
			case "powershell":
				return rootCmd.GenPowerShellCompletion(out)
			default:
				return fmt.Errorf("unsupported shell %q", args[0])
			}
		},
	}
}
