// Package config provides configuration loading and management for helix.
//
// Configuration is loaded using Viper, supporting YAML config files and
// environment variable overrides. The defaults work against a local API
// server out of the box; a real deployment sets at least the API base URL,
// the token and the user identity.
//
// Key types:
//   - [Config] is the root configuration container with all settings
//   - [Loader] handles Viper-based configuration loading
//   - [EndpointConfig] maps one operation to an HTTP method and path
//
// Configuration priority (highest to lowest):
//  1. Environment variables (HELIX_ prefix)
//  2. Config file specified by HELIX_CONFIG_PATH
//  3. User config directory (platform-standard):
//     - Linux: ~/.config/helix/config.yaml
//     - macOS: ~/Library/Application Support/helix/config.yaml
//     - Windows: %APPDATA%\helix\config.yaml
//  4. ./config/helix.yaml
//  5. ./helix.yaml
//  6. [DefaultConfig] defaults
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config represents the root configuration structure.
type Config struct {
	// API holds connection settings for the practice-management backend.
	API APIConfig `mapstructure:"api"`

	// Identity is the user recorded against every update.
	Identity IdentityConfig `mapstructure:"identity"`

	// Endpoints maps operation names to their HTTP endpoint.
	// Keys are operation names (e.g., "mark-sent", "ccl-date").
	Endpoints map[string]EndpointConfig `mapstructure:"endpoints"`

	// Notices locates the local notice store.
	Notices NoticesConfig `mapstructure:"notices"`

	// Transitions optionally replaces the default routing table.
	Transitions TransitionsConfig `mapstructure:"transitions"`

	// Logging controls diagnostic output on stderr.
	Logging LoggingConfig `mapstructure:"logging"`

	// Output contains terminal output formatting configuration.
	Output OutputConfig `mapstructure:"output"`
}

// APIConfig contains backend connection settings.
type APIConfig struct {
	// BaseURL is prefixed to every endpoint path.
	// Can be overridden with HELIX_API_URL.
	BaseURL string `mapstructure:"base_url"`

	// Token is sent as a bearer token when non-empty.
	// Can be overridden with HELIX_API_TOKEN.
	Token string `mapstructure:"token"`

	// ResponseHeaderTimeout bounds the wait for response headers.
	// The streamed body itself has no overall deadline.
	ResponseHeaderTimeout time.Duration `mapstructure:"response_header_timeout"`

	// IdleTimeout cancels a stream that produces no data for this long.
	// Zero disables the watchdog.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// IdentityConfig is the acting user. It is sent verbatim in request bodies.
type IdentityConfig struct {
	Email    string `mapstructure:"email"`
	Initials string `mapstructure:"initials"`
}

// EndpointConfig maps one operation to an HTTP endpoint.
type EndpointConfig struct {
	// Method defaults to POST when empty.
	Method string `mapstructure:"method"`

	// Path is a Go template expanded with [EndpointData].
	// Example: "/api/rate-changes/{{.ClientID}}/mark-sent"
	Path string `mapstructure:"path"`
}

// NoticesConfig locates the notice store file.
type NoticesConfig struct {
	// Path is an explicit store path. Empty enables auto-discovery.
	Path string `mapstructure:"path"`
}

// TransitionsConfig points at an optional transition manifest CSV.
type TransitionsConfig struct {
	// ManifestPath replaces the default routing when non-empty.
	ManifestPath string `mapstructure:"manifest_path"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	// Can be overridden with HELIX_LOG_LEVEL.
	Level string `mapstructure:"level"`
}

// OutputConfig contains terminal output formatting configuration.
type OutputConfig struct {
	// TruncateLength is the maximum length of a rendered message.
	// Default: 80
	TruncateLength int `mapstructure:"truncate_length"`

	// Color enables lipgloss styling.
	// Default: true
	Color bool `mapstructure:"color"`
}

// DefaultConfig returns a new [Config] with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:               "http://localhost:8080",
			ResponseHeaderTimeout: 30 * time.Second,
			IdleTimeout:           2 * time.Minute,
		},
		Endpoints: map[string]EndpointConfig{
			"mark-sent": {Method: "POST", Path: "/api/rate-changes/{{.ClientID}}/mark-sent"},
			"mark-na":   {Method: "POST", Path: "/api/rate-changes/{{.ClientID}}/mark-na"},
			"undo":      {Method: "POST", Path: "/api/rate-changes/{{.ClientID}}/undo"},
			"ccl-date":  {Method: "POST", Path: "/api/rate-changes/{{.ClientID}}/ccl-date"},
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
		Output: OutputConfig{
			TruncateLength: 80,
			Color:          true,
		},
	}
}

// EndpointData contains data for endpoint path expansion.
type EndpointData struct {
	// ClientID is the path-escaped client whose notice is being updated.
	// Access in templates with {{.ClientID}}.
	ClientID string
}

// ResolveEndpoint returns the HTTP method and absolute URL for an operation
// against a client.
func (c *Config) ResolveEndpoint(op, clientID string) (string, string, error) {
	ep, ok := c.Endpoints[op]
	if !ok {
		return "", "", fmt.Errorf("no endpoint configured for operation: %s", op)
	}

	path, err := expandTemplate(ep.Path, EndpointData{ClientID: url.PathEscape(clientID)})
	if err != nil {
		return "", "", err
	}

	method := strings.ToUpper(ep.Method)
	if method == "" {
		method = "POST"
	}

	return method, strings.TrimRight(c.API.BaseURL, "/") + path, nil
}
