package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/exposerver/exposerver/internal/browse"
	"github.com/exposerver/exposerver/internal/config"
	"github.com/exposerver/exposerver/internal/constants"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage exposerver client configuration",
		Long: `Configuration management commands.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  test  - Test the connection to the server
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.GetDefaultConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup.

Passwords are never written to the file. Set EXPOSERVER_AUTH=user:pass or
answer the prompt when a command needs them.

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()
			out := cmd.OutOrStdout()
			path := configPath()

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			cfg, err := config.LoadConfigCSV(path)
			if err != nil {
				cfg = config.Default()
			}

			fmt.Fprintln(out, "exposerver Configuration Setup")
			fmt.Fprintln(out, "==============================")
			fmt.Fprintln(out)

			reader := bufio.NewReader(cmd.InOrStdin())
			cfg.ServerURL = promptLine(reader, out, "Server URL", cfg.ServerURL)
			cfg.AuthUser = promptLine(reader, out, "Basic auth user (empty for none)", cfg.AuthUser)

			fmt.Fprintln(out)
			answer := strings.ToLower(promptLine(reader, out, "Configure proxy (y/n)", "n"))
			if answer == "y" || answer == "yes" {
				fmt.Fprintln(out, "Proxy modes: no-proxy, system, basic, ntlm")
				cfg.ProxyMode = promptLine(reader, out, "Proxy mode", "system")
				if cfg.ProxyMode == "basic" || cfg.ProxyMode == "ntlm" {
					cfg.ProxyHost = promptLine(reader, out, "Proxy host", cfg.ProxyHost)
					port := promptLine(reader, out, "Proxy port", "8080")
					if v, err := strconv.Atoi(port); err == nil && v > 0 {
						cfg.ProxyPort = v
					}
					cfg.ProxyUser = promptLine(reader, out, "Proxy user (empty for none)", cfg.ProxyUser)
				}
			} else {
				cfg.ProxyMode = "no-proxy"
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := config.SaveConfigCSV(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			logger.Info().Str("path", path).Msg("Configuration saved")

			fmt.Fprintln(out)
			fmt.Fprintf(out, "✓ Configuration saved to: %s\n", path)
			fmt.Fprintln(out, "Test your configuration with: exposerver config test")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the merged configuration from the config file, the environment
(EXPOSERVER_URL, EXPOSERVER_AUTH, HTTPS_PROXY, ...) and command-line flags.

Priority: flags > environment > config file > defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := configPath()

			cfg, err := config.LoadConfigCSV(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg.MergeWithFlags(serverURL, authFlag, proxyMode, proxyHost, proxyPort)

			fmt.Fprintln(out, "Current Configuration")
			fmt.Fprintln(out, "=====================")
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Server:")
			fmt.Fprintf(out, "  URL:       %s\n", cfg.ServerURL)
			if cfg.AuthUser != "" {
				fmt.Fprintf(out, "  Auth user: %s\n", cfg.AuthUser)
				fmt.Fprintf(out, "  Password:  %s\n", secretState(cfg.AuthPassword))
			} else {
				fmt.Fprintln(out, "  Auth:      <none>")
			}
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Proxy Settings:")
			fmt.Fprintf(out, "  Proxy Mode: %s\n", cfg.ProxyMode)
			if cfg.ProxyHost != "" {
				fmt.Fprintf(out, "  Proxy Host: %s\n", cfg.ProxyHost)
				fmt.Fprintf(out, "  Proxy Port: %d\n", cfg.ProxyPort)
			}
			if cfg.NoProxy != "" {
				fmt.Fprintf(out, "  No Proxy:   %s\n", cfg.NoProxy)
			}
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Behaviour:")
			fmt.Fprintf(out, "  Reload delay:      %s\n", cfg.ReloadDelay)
			fmt.Fprintf(out, "  Log poll interval: %s\n", cfg.LogPollInterval)
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Object Storage:")
			fmt.Fprintf(out, "  S3 Region:   %s\n", cfg.S3Region)
			if cfg.S3Endpoint != "" {
				fmt.Fprintf(out, "  S3 Endpoint: %s\n", cfg.S3Endpoint)
			}
			if cfg.AzureAccountURL != "" {
				fmt.Fprintf(out, "  Azure URL:   %s\n", cfg.AzureAccountURL)
			}
			fmt.Fprintln(out)

			fmt.Fprintf(out, "Configuration file: %s\n", path)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintln(out, "  (file does not exist - using defaults)")
			}
			return nil
		},
	}
}

func secretState(s string) string {
	if s == "" {
		return "<not set>"
	}
	return "<set>"
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test the connection to the server",
		Long:  `Fetch the root listing of the configured server to check the URL, credentials and proxy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()
			out := cmd.OutOrStdout()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Server: %s\n", cfg.ServerURL)

			client, err := browse.NewClient(cfg, nil, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(GetContext(), constants.APIContextTimeout)
			defer cancel()

			entries, err := client.List(ctx, "/")
			if err != nil {
				logger.Error().Err(err).Msg("Connection test failed")
				fmt.Fprintln(out, "✗ Connection FAILED")
				fmt.Fprintf(out, "  Error: %v\n", err)
				return fmt.Errorf("connection test failed")
			}

			fmt.Fprintln(out, "✓ Connection SUCCESSFUL")
			fmt.Fprintf(out, "  %d entries served at /\n", len(entries))
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := configPath()
			fmt.Fprintln(out, path)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintln(out, "  (file does not exist)")
			}
			return nil
		},
	}
}
