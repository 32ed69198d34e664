package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/spf13/viper"
)

// ConfigPathEnvVar names an explicit config file.
const ConfigPathEnvVar = "HELIX_CONFIG_PATH"

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"api.base_url":      "HELIX_API_URL",
	"api.token":         "HELIX_API_TOKEN",
	"identity.email":    "HELIX_USER_EMAIL",
	"identity.initials": "HELIX_USER_INITIALS",
	"logging.level":     "HELIX_LOG_LEVEL",
	"notices.path":      "HELIX_NOTICES_PATH",
}

// Loader loads configuration from files and the environment using Viper.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a [Loader] with environment bindings installed.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("HELIX")
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
	return &Loader{v: v}
}

// Load discovers a config file and merges it over [DefaultConfig].
//
// A missing config file is not an error; the defaults and environment
// overrides still apply.
func (l *Loader) Load() (*Config, error) {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return l.LoadFromFile(path)
	}

	if dir, err := os.UserConfigDir(); err == nil {
		l.v.AddConfigPath(filepath.Join(dir, "helix"))
	}
	l.v.SetConfigName("config")

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if path := firstExisting(filepath.Join("config", "helix.yaml"), "helix.yaml"); path != "" {
			return l.LoadFromFile(path)
		}
	}

	return l.unmarshal()
}

// LoadFromFile loads configuration from an explicit file path.
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	cfg := DefaultConfig()
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, nil
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// expandTemplate expands a Go text/template with the given data.
func expandTemplate(tmpl string, data any) (string, error) {
	t, err := template.New("endpoint").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
