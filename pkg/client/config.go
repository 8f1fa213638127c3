package client

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultConfigPath is where the client looks for its config file
const DefaultConfigPath = "~/.kindred/config.toml"

// TOMLConfig represents the structure of the client config file
type TOMLConfig struct {
	Server  ServerSection  `toml:"server"`
	Client  ClientSection  `toml:"client"`
	Metrics MetricsSection `toml:"metrics"`
}

type ServerSection struct {
	APIURL string `toml:"api_url"`
	WSURL  string `toml:"ws_url"`
}

type ClientSection struct {
	StatePath     string `toml:"state_path"`
	LogPath       string `toml:"log_path"`
	Notifications bool   `toml:"notifications"`
}

type MetricsSection struct {
	ListenAddr string `toml:"listen_addr"`
}

// DefaultTOMLConfig returns the default TOML configuration
func DefaultTOMLConfig() TOMLConfig {
	return TOMLConfig{
		Server: ServerSection{
			APIURL: "http://localhost:8080/api",
			WSURL:  "ws://localhost:8080/api/ws",
		},
		Client: ClientSection{
			StatePath:     "~/.kindred/state.db",
			LogPath:       "~/.kindred/client.log",
			Notifications: true,
		},
	}
}

// LoadConfig loads configuration from a TOML file, creates default if not found,
// and applies environment variable overrides
func LoadConfig(path string) (TOMLConfig, error) {
	path, err := ExpandPath(path)
	if err != nil {
		return TOMLConfig{}, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		config := DefaultTOMLConfig()
		// A read-only home still gets a working client
		_ = writeDefaultConfig(path)
		return applyEnvOverrides(config), nil
	}

	config := DefaultTOMLConfig()
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return applyEnvOverrides(config), nil
}

// applyEnvOverrides applies environment variable overrides to the config
// Example: KINDRED_API_URL=https://chat.example.com/api
func applyEnvOverrides(config TOMLConfig) TOMLConfig {
	if val := os.Getenv("KINDRED_API_URL"); val != "" {
		config.Server.APIURL = val
	}
	if val := os.Getenv("KINDRED_WS_URL"); val != "" {
		config.Server.WSURL = val
	}
	if val := os.Getenv("KINDRED_STATE_PATH"); val != "" {
		config.Client.StatePath = val
	}
	if val := os.Getenv("KINDRED_LOG_PATH"); val != "" {
		config.Client.LogPath = val
	}
	if val := os.Getenv("KINDRED_NOTIFICATIONS"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			config.Client.Notifications = enabled
		}
	}
	if val := os.Getenv("KINDRED_METRICS_ADDR"); val != "" {
		config.Metrics.ListenAddr = val
	}
	return config
}

// writeDefaultConfig writes the default config to a file with all options documented
func writeDefaultConfig(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	content := `# Kindred Client Configuration
# This file was auto-generated with default values
#
# Environment variables can override these settings:
# KINDRED_API_URL, KINDRED_WS_URL, KINDRED_STATE_PATH, KINDRED_LOG_PATH,
# KINDRED_NOTIFICATIONS, KINDRED_METRICS_ADDR

[server]
# REST API base URL
api_url = "http://localhost:8080/api"

# Live-update websocket endpoint (the session token is appended as ?token=)
ws_url = "ws://localhost:8080/api/ws"

[client]
# Where the session token is kept between runs
state_path = "~/.kindred/state.db"

# Debug log file (the terminal belongs to the UI); empty disables logging
log_path = "~/.kindred/client.log"

# Desktop notification for direct messages outside the conversations view
notifications = true

[metrics]
# Serve Prometheus metrics on this address (e.g. "127.0.0.1:9091")
# Uncomment to enable:
# listen_addr = "127.0.0.1:9091"
`

	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ExpandPath expands a leading ~/ to the user's home directory
func ExpandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}
	return path, nil
}
