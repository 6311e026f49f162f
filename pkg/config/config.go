// Package config layers the gateway's settings: a YAML file supplies
// non-sensitive defaults, and a fixed set of environment variables
// override or supply secrets that should never be committed to disk.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig is read from a YAML file under the user's home directory.
//
// Example (~/.sshgateway/config.yaml):
//
// server:
//   host: 127.0.0.1
//   port: 8088
// vault:
//   path: /home/user/.sshgateway/vault.json
//
// If the config file does not exist, Load returns defaults without error.
// If it exists but cannot be parsed, Load returns an error.
type AppConfig struct {
	Server ServerConfig `yaml:"server"`
	Vault  VaultConfig  `yaml:"vault"`
}

type ServerConfig struct {
	Host *string `yaml:"host"`
	Port *int    `yaml:"port"`
}

type VaultConfig struct {
	Path *string `yaml:"path"`
}

const (
	DefaultHost   = "127.0.0.1"
	DefaultPort   = 8088
	configDirName = ".sshgateway"
)

// DefaultPaths returns the config dir and config file path. SSHGW_CONFIG,
// if set, overrides the config file path outright.
func DefaultPaths() (configDir string, configFile string, err error) {
	if override := strings.TrimSpace(os.Getenv("SSHGW_CONFIG")); override != "" {
		return filepath.Dir(override), override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get user home dir: %w", err)
	}
	configDir = filepath.Join(home, configDirName)
	configFile = filepath.Join(configDir, "config.yaml")
	return configDir, configFile, nil
}

// Load reads the config file at DefaultPaths. If it doesn't exist, it
// returns a default config and nil error.
func Load() (*AppConfig, string, error) {
	_, configFile, err := DefaultPaths()
	if err != nil {
		return nil, "", err
	}

	cfg := &AppConfig{}

	b, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, configFile, nil
		}
		return nil, "", fmt.Errorf("read config file %s: %w", configFile, err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, "", fmt.Errorf("parse yaml config %s: %w", configFile, err)
	}

	host := cfg.Host()
	if strings.TrimSpace(host) == "" {
		return nil, "", fmt.Errorf("invalid server.host (empty) in %s", configFile)
	}

	port := cfg.Port()
	if port < 1 || port > 65535 {
		return nil, "", fmt.Errorf("invalid server.port %d in %s", port, configFile)
	}

	return cfg, configFile, nil
}

// EnsureDefaultConfig writes a default config file if it doesn't already exist.
// It is safe to call on startup.
func EnsureDefaultConfig() (string, error) {
	configDir, configFile, err := DefaultPaths()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configFile); err == nil {
		return configFile, nil
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir %s: %w", configDir, err)
	}

	defaultCfg := AppConfig{Server: ServerConfig{Host: ptr(DefaultHost), Port: ptr(DefaultPort)}}
	b, err := yaml.Marshal(&defaultCfg)
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}

	if err := os.WriteFile(configFile, b, 0o600); err != nil {
		return "", fmt.Errorf("write default config file %s: %w", configFile, err)
	}

	return configFile, nil
}

func (c *AppConfig) Host() string {
	if c == nil || c.Server.Host == nil {
		return DefaultHost
	}
	v := strings.TrimSpace(*c.Server.Host)
	if v == "" {
		return DefaultHost
	}
	return v
}

func (c *AppConfig) Port() int {
	if c == nil || c.Server.Port == nil {
		return DefaultPort
	}
	return *c.Server.Port
}

// VaultPath returns the configured vault file path, defaulting to
// <configDir>/vault.json alongside the YAML config.
func (c *AppConfig) VaultPath(configDir string) string {
	if c != nil && c.Vault.Path != nil && strings.TrimSpace(*c.Vault.Path) != "" {
		return *c.Vault.Path
	}
	return filepath.Join(configDir, "vault.json")
}

func ptr[T any](v T) *T { return &v }

// Runtime is the fully resolved configuration the rest of the gateway
// consumes: YAML-sourced defaults layered with environment overrides for
// everything secret or deployment-specific.
type Runtime struct {
	Host string
	Port int

	ConfigFile string
	VaultPath  string

	AccessPassword  string
	TokenSecret     []byte
	VaultPassphrase string
	Production      bool
}

// LoadRuntime resolves the full configuration: Load() for the YAML file,
// then environment overrides for secrets and deployment-specific values.
func LoadRuntime() (*Runtime, error) {
	cfg, configFile, err := Load()
	if err != nil {
		return nil, err
	}
	configDir := filepath.Dir(configFile)

	rt := &Runtime{
		Host:       cfg.Host(),
		Port:       cfg.Port(),
		ConfigFile: configFile,
		VaultPath:  cfg.VaultPath(configDir),
		Production: strings.EqualFold(strings.TrimSpace(os.Getenv("NODE_ENV")), "production"),
	}

	if v := strings.TrimSpace(os.Getenv("SSHGW_HOST")); v != "" {
		rt.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("SSHGW_PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid SSHGW_PORT %q", v)
		}
		rt.Port = port
	}

	rt.AccessPassword = os.Getenv("ACCESS_PASSWORD")

	if secretHex := strings.TrimSpace(os.Getenv("TOKEN_SECRET")); secretHex != "" {
		rt.TokenSecret = []byte(secretHex)
	} else {
		rt.TokenSecret = randomBytes(32)
	}

	if pass := os.Getenv("VAULT_KEY_PASSPHRASE"); pass != "" {
		rt.VaultPassphrase = pass
	} else {
		rt.VaultPassphrase = hex.EncodeToString(randomBytes(32))
	}

	return rt, nil
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("config: failed to read random bytes: " + err.Error())
	}
	return b
}
