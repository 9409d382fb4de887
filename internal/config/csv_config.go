package config

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/exposerver/exposerver/internal/constants"
)

// Config represents the exposerver client configuration
type Config struct {
	// Server settings
	ServerURL    string // Base URL of the exposerver instance (e.g. http://host:8000)
	AuthUser     string // HTTP basic auth user (exposerver --auth user:pass)
	AuthPassword string // Runtime only, never persisted

	// Proxy settings
	ProxyMode     string // "no-proxy", "ntlm", "basic", "system"
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string
	NoProxy       string // Comma-separated list of hosts to bypass proxy
	ProxyWarmup   bool

	// Upload behaviour
	ReloadDelay time.Duration // Delay before the listing is told about a new file

	// Log viewer
	LogPollInterval time.Duration

	// Object storage targets
	S3Region              string
	S3Endpoint            string // Custom endpoint for S3-compatible stores (MinIO, Ceph)
	S3AccessKeyID         string // Runtime only; empty uses the default AWS credential chain
	S3SecretAccessKey     string // Runtime only
	AzureAccountURL       string // https://<account>.blob.core.windows.net
	AzureConnectionString string // Runtime only, from AZURE_STORAGE_CONNECTION_STRING

	// Detailed logging toggle (debug level)
	DetailedLogging bool
}

// Default returns a configuration populated with defaults only
func Default() *Config {
	return &Config{
		ServerURL:       "http://localhost:8000",
		ProxyMode:       "no-proxy",
		ReloadDelay:     constants.ListingRefreshDelay,
		LogPollInterval: constants.LogPollInterval,
		S3Region:        "us-east-1",
	}
}

// LoadConfigCSV loads configuration from a CSV file
// CSV format: key,value pairs
func LoadConfigCSV(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // Return defaults if config doesn't exist
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read config CSV: %w", err)
	}

	for i, record := range records {
		if i == 0 {
			// Skip header row if it looks like a header
			if len(record) >= 2 && strings.ToLower(record[0]) == "key" {
				continue
			}
		}

		if len(record) < 2 {
			continue
		}

		key := strings.TrimSpace(strings.ToLower(record[0]))
		value := strings.TrimSpace(record[1])

		switch key {
		case "server_url":
			cfg.ServerURL = value
		case "auth_user":
			cfg.AuthUser = value
		case "auth_password", "proxy_password":
			// SECURITY: passwords are never read from config files.
			// Use EXPOSERVER_AUTH or the secure prompt instead.
			if value != "" {
				log.Printf("[WARN] %s in config file is ignored for security - use EXPOSERVER_AUTH env var or the runtime prompt", key)
			}
		case "proxy_mode":
			cfg.ProxyMode = value
		case "proxy_host":
			cfg.ProxyHost = value
		case "proxy_port":
			if v, err := strconv.Atoi(value); err == nil {
				cfg.ProxyPort = v
			}
		case "proxy_user":
			cfg.ProxyUser = value
		case "no_proxy":
			cfg.NoProxy = value
		case "proxy_warmup":
			cfg.ProxyWarmup = parseBool(value)
		case "reload_delay_ms":
			if v, err := strconv.Atoi(value); err == nil && v >= 0 {
				cfg.ReloadDelay = time.Duration(v) * time.Millisecond
			}
		case "log_poll_ms":
			if v, err := strconv.Atoi(value); err == nil && v > 0 {
				cfg.LogPollInterval = time.Duration(v) * time.Millisecond
			}
		case "s3_region":
			cfg.S3Region = value
		case "s3_endpoint":
			cfg.S3Endpoint = value
		case "azure_account_url":
			cfg.AzureAccountURL = value
		case "detailed_logging":
			cfg.DetailedLogging = parseBool(value)
		}
	}

	return cfg, nil
}

func parseBool(value string) bool {
	return strings.ToLower(value) == "true" || value == "1"
}

// SaveConfigCSV saves configuration to a CSV file
// CSV format: key,value pairs
func SaveConfigCSV(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"key", "value"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	// SECURITY: auth and proxy passwords are intentionally NOT saved
	records := [][]string{
		{"server_url", cfg.ServerURL},
		{"auth_user", cfg.AuthUser},
		{"proxy_mode", cfg.ProxyMode},
		{"proxy_host", cfg.ProxyHost},
		{"proxy_port", strconv.Itoa(cfg.ProxyPort)},
		{"proxy_user", cfg.ProxyUser},
		{"no_proxy", cfg.NoProxy},
		{"proxy_warmup", strconv.FormatBool(cfg.ProxyWarmup)},
		{"reload_delay_ms", strconv.FormatInt(cfg.ReloadDelay.Milliseconds(), 10)},
		{"log_poll_ms", strconv.FormatInt(cfg.LogPollInterval.Milliseconds(), 10)},
		{"s3_region", cfg.S3Region},
		{"s3_endpoint", cfg.S3Endpoint},
		{"azure_account_url", cfg.AzureAccountURL},
		{"detailed_logging", strconv.FormatBool(cfg.DetailedLogging)},
	}

	for _, record := range records {
		// Only write non-empty values to keep file clean
		if record[1] != "" && record[1] != "0" && record[1] != "false" {
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("failed to write record: %w", err)
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

// MergeWithFlags merges config with command-line flags and environment variables
// Priority: flags > environment > config file > defaults
func (c *Config) MergeWithFlags(serverURL, auth, proxyMode, proxyHost string, proxyPort int) {
	// Environment overrides
	if envURL := os.Getenv("EXPOSERVER_URL"); envURL != "" {
		c.ServerURL = envURL
	}
	if envAuth := os.Getenv("EXPOSERVER_AUTH"); envAuth != "" {
		c.setAuth(envAuth)
	}
	if conn := os.Getenv("AZURE_STORAGE_CONNECTION_STRING"); conn != "" {
		c.AzureConnectionString = conn
	}
	if id := os.Getenv("EXPOSERVER_S3_ACCESS_KEY_ID"); id != "" {
		c.S3AccessKeyID = id
		c.S3SecretAccessKey = os.Getenv("EXPOSERVER_S3_SECRET_ACCESS_KEY")
	}
	if envProxy := os.Getenv("HTTPS_PROXY"); envProxy != "" && c.ProxyHost == "" {
		c.parseProxyURL(envProxy)
	}

	// Command-line flags (highest priority)
	if serverURL != "" {
		c.ServerURL = serverURL
	}
	if auth != "" {
		c.setAuth(auth)
	}
	if proxyMode != "" {
		c.ProxyMode = proxyMode
	}
	if proxyHost != "" {
		c.ProxyHost = proxyHost
	}
	if proxyPort > 0 {
		c.ProxyPort = proxyPort
	}

	// Bare host:port means plain HTTP, which is how exposerver listens by default
	if c.ServerURL != "" && !strings.HasPrefix(c.ServerURL, "http") {
		c.ServerURL = "http://" + c.ServerURL
	}
	c.ServerURL = strings.TrimRight(c.ServerURL, "/")
}

// setAuth accepts "user:pass" (the exposerver --auth format) or a bare user
func (c *Config) setAuth(auth string) {
	user, pass, found := strings.Cut(auth, ":")
	c.AuthUser = user
	if found {
		c.AuthPassword = pass
	}
}

// parseProxyURL parses a proxy URL from environment variable
func (c *Config) parseProxyURL(proxyURL string) {
	proxyURL = strings.TrimPrefix(proxyURL, "http://")
	proxyURL = strings.TrimPrefix(proxyURL, "https://")

	parts := strings.Split(proxyURL, ":")
	if len(parts) >= 1 {
		c.ProxyHost = parts[0]
	}
	if len(parts) >= 2 {
		if port, err := strconv.Atoi(strings.TrimRight(parts[1], "/")); err == nil {
			c.ProxyPort = port
		}
	}
	if c.ProxyHost != "" && c.ProxyMode == "no-proxy" {
		c.ProxyMode = "system"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server URL is required (set via EXPOSERVER_URL env var or --server flag)")
	}
	switch c.ProxyMode {
	case "", "no-proxy", "system":
	case "basic", "ntlm":
		if c.ProxyHost == "" {
			return fmt.Errorf("proxy_host is required for proxy mode %q", c.ProxyMode)
		}
	default:
		return fmt.Errorf("unknown proxy mode %q", c.ProxyMode)
	}
	if c.ReloadDelay < 0 {
		return fmt.Errorf("reload_delay_ms must not be negative")
	}
	if c.LogPollInterval <= 0 {
		return fmt.Errorf("log_poll_ms must be positive")
	}
	return nil
}

// ConfigDir is the standard configuration directory name
const ConfigDir = "exposerver"

// getConfigDir returns the platform-appropriate config directory.
// - Windows: %APPDATA%\exposerver
// - Unix: ~/.config/exposerver (XDG standard)
func getConfigDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, ConfigDir)
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", ConfigDir)
	}
	return ""
}

// GetDefaultConfigPath returns the default config file path
func GetDefaultConfigPath() string {
	configDir := getConfigDir()
	if configDir == "" {
		return "config.csv"
	}
	return filepath.Join(configDir, "config.csv")
}
