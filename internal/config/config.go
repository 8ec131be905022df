// Package config loads bot configuration from a JSON file with
// environment-variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DataDir  string `json:"data_dir" env:"KEENSW_DATA_DIR"`
	LogLevel string `json:"log_level" env:"KEENSW_LOG_LEVEL"`
	// Router.RestrictedPolicy is the profile the chat toggle switches
	// devices into.
	Router struct {
		BaseURI          string `json:"base_uri" env:"KEENETIC_BASE_URI"`
		Login            string `json:"login" env:"KEENETIC_LOGIN"`
		Password         string `json:"password" env:"KEENETIC_PASSWORD"`
		RestrictedPolicy string `json:"restricted_policy" env:"KEENETIC_RESTRICTED_POLICY"`
	} `json:"router"`
	Telegram struct {
		Token string `json:"token" env:"TELEGRAM_BOT_TOKEN"`
	} `json:"telegram"`
	HTTP struct {
		Listen string `json:"listen" env:"KEENSW_HTTP_LISTEN"`
	} `json:"http"`
}

// Load reads the config file at path, writing defaults there first if it
// does not exist, then applies environment overrides (highest
// precedence).
func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".keensw"),
		LogLevel: "info",
	}
	cfg.Router.RestrictedPolicy = "Policy0"
	cfg.HTTP.Listen = "127.0.0.1:8090"

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Save writes the config atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts the config to a generic nested map via its JSON form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues returns all config values as a flat dot-keyed map,
// optionally masking secrets.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue reads one dot-separated key from the config file at path.
func GetValue(path, key string) (any, error) {
	m, err := readFileMap(path)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	val, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return val, nil
}

// SetValue sets one dot-separated key in the config file at path,
// parsing the value as bool, int, or float when it looks like one.
func SetValue(path, key, value string) error {
	m, err := readFileMap(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		m = make(map[string]any)
	}
	flat := Flatten(m)
	flat[key] = parseLiteral(value)

	nested := Unflatten(flat)
	data, err := json.MarshalIndent(nested, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

func readFileMap(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// parseLiteral interprets a CLI-provided value: true/false, integers, and
// floats get their native types, everything else stays a string.
func parseLiteral(value string) any {
	switch value {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}
