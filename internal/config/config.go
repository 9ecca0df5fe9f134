package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the peersearch node configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Node     NodeConfig     `yaml:"node"`
	Sessions SessionsConfig `yaml:"sessions"`
	Extract  ExtractConfig  `yaml:"extract"`
	Search   SearchConfig   `yaml:"search"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec"`
	ShutdownSec     int      `yaml:"shutdown_timeout_sec"`
	CORSOrigins     []string `yaml:"cors_origins"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis (default: redis)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// PeerConfig is one remote node.
type PeerConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// NodeConfig holds the peer network settings.
type NodeConfig struct {
	Name              string       `yaml:"name"`
	FilterSize        int          `yaml:"filter_size"`
	Peers             []PeerConfig `yaml:"peers"`
	PeerTimeoutMs     int          `yaml:"peer_timeout_ms"`
	SearchTimeoutMs   int          `yaml:"search_timeout_ms"`
	FilterRefreshSec  int          `yaml:"filter_refresh_sec"`
	MaxResultsPerPeer int          `yaml:"max_results_per_peer"`
	PeerConcurrency   int          `yaml:"peer_concurrency"`
	StreamBuffer      int          `yaml:"stream_buffer"`
}

// SessionsConfig holds search session retention settings.
type SessionsConfig struct {
	RetentionSec     int `yaml:"retention_sec"`
	SweepIntervalSec int `yaml:"sweep_interval_sec"`
}

// ExtractConfig holds result extraction settings.
type ExtractConfig struct {
	Workers int `yaml:"workers"`
}

// SearchConfig holds local search pagination settings.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "redis"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Node.Name == "" {
		if host, err := os.Hostname(); err == nil {
			c.Node.Name = host
		}
	}
	if c.Node.FilterSize <= 0 {
		c.Node.FilterSize = 1 << 16
	}
	if c.Node.PeerTimeoutMs <= 0 {
		c.Node.PeerTimeoutMs = 2000
	}
	if c.Node.SearchTimeoutMs <= 0 {
		c.Node.SearchTimeoutMs = 5000
	}
	if c.Node.FilterRefreshSec <= 0 {
		c.Node.FilterRefreshSec = 60
	}
	if c.Node.MaxResultsPerPeer <= 0 {
		c.Node.MaxResultsPerPeer = 20
	}
	if c.Node.PeerConcurrency <= 0 {
		c.Node.PeerConcurrency = 8
	}
	if c.Node.StreamBuffer <= 0 {
		c.Node.StreamBuffer = 64
	}
	if c.Sessions.RetentionSec <= 0 {
		c.Sessions.RetentionSec = 600
	}
	if c.Sessions.SweepIntervalSec <= 0 {
		c.Sessions.SweepIntervalSec = 30
	}
	if c.Extract.Workers <= 0 {
		c.Extract.Workers = runtime.NumCPU()
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 20
	}
	if c.Search.MaxLimit <= 0 {
		c.Search.MaxLimit = 100
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "peersearch:"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Database.Driver != "redis" {
		return fmt.Errorf("database.driver must be \"redis\", got %q", c.Database.Driver)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Node.Name == "" {
		return fmt.Errorf("node.name is required")
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit (%d) exceeds search.max_limit (%d)",
			c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	seen := make(map[string]struct{}, len(c.Node.Peers))
	for i, p := range c.Node.Peers {
		if p.Name == "" || p.URL == "" {
			return fmt.Errorf("node.peers[%d]: name and url are required", i)
		}
		if p.Name == c.Node.Name {
			return fmt.Errorf("node.peers[%d]: %q is this node", i, p.Name)
		}
		if _, ok := seen[p.Name]; ok {
			return fmt.Errorf("node.peers[%d]: duplicate peer %q", i, p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
