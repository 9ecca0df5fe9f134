package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
		Node:     NodeConfig{Name: "node-a"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	cfg.Node.Peers = []PeerConfig{{Name: "node-b", URL: "http://b:8080"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Addrs = []string{}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing database addrs")
	}
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = "valkey"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
	expected := `database.driver must be "redis", got "valkey"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_Peers(t *testing.T) {
	tests := []struct {
		name  string
		peers []PeerConfig
		want  string
	}{
		{"missing url", []PeerConfig{{Name: "node-b"}}, "name and url are required"},
		{"self", []PeerConfig{{Name: "node-a", URL: "http://a"}}, "is this node"},
		{"duplicate", []PeerConfig{
			{Name: "node-b", URL: "http://b"},
			{Name: "node-b", URL: "http://b2"},
		}, "duplicate peer"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Node.Peers = tc.peers
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidate_LimitOrder(t *testing.T) {
	cfg := validConfig()
	cfg.Search.DefaultLimit = 50
	cfg.Search.MaxLimit = 10
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when default limit exceeds max limit")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{Node: NodeConfig{Name: "node-a"}}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Database.Driver != "redis" {
		t.Errorf("expected Driver=redis, got %q", cfg.Database.Driver)
	}
	if cfg.Node.FilterSize != 1<<16 {
		t.Errorf("expected FilterSize=65536, got %d", cfg.Node.FilterSize)
	}
	if cfg.Node.SearchTimeoutMs != 5000 {
		t.Errorf("expected SearchTimeoutMs=5000, got %d", cfg.Node.SearchTimeoutMs)
	}
	if cfg.Node.FilterRefreshSec != 60 {
		t.Errorf("expected FilterRefreshSec=60, got %d", cfg.Node.FilterRefreshSec)
	}
	if cfg.Sessions.RetentionSec != 600 {
		t.Errorf("expected RetentionSec=600, got %d", cfg.Sessions.RetentionSec)
	}
	if cfg.Extract.Workers <= 0 {
		t.Errorf("expected positive Workers, got %d", cfg.Extract.Workers)
	}
	if cfg.Search.DefaultLimit != 20 || cfg.Search.MaxLimit != 100 {
		t.Errorf("expected limits 20/100, got %d/%d", cfg.Search.DefaultLimit, cfg.Search.MaxLimit)
	}
	if cfg.Storage.KeyPrefix != "peersearch:" {
		t.Errorf("expected KeyPrefix='peersearch:', got %q", cfg.Storage.KeyPrefix)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:     HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Database: DatabaseConfig{ReadinessTimeout: 15},
		Node:     NodeConfig{Name: "n", FilterSize: 512, MaxResultsPerPeer: 3},
		Storage:  StorageConfig{KeyPrefix: "custom:"},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Node.FilterSize != 512 || cfg.Node.MaxResultsPerPeer != 3 {
		t.Errorf("node settings overridden: %+v", cfg.Node)
	}
	if cfg.Storage.KeyPrefix != "custom:" {
		t.Errorf("expected KeyPrefix='custom:', got %q", cfg.Storage.KeyPrefix)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("PEERSEARCH_TEST_ADDR", "redis:6379")

	got := string(expandEnvVars([]byte("a: ${PEERSEARCH_TEST_ADDR}\nb: ${PEERSEARCH_TEST_UNSET:-fallback}\nc: ${PEERSEARCH_TEST_UNSET}")))
	want := "a: redis:6379\nb: fallback\nc: "
	if got != want {
		t.Errorf("expandEnvVars:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestLoad_FromConfigDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "config"), 0o750); err != nil {
		t.Fatal(err)
	}
	yaml := `http:
  port: ${PEERSEARCH_TEST_PORT:-9090}
database:
  addrs: ["localhost:6379"]
node:
  name: node-x
  peers:
    - name: node-y
      url: http://node-y:9090
`
	if err := os.WriteFile(filepath.Join(dir, "config", "unittest.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, err := Load("unittest")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("port = %d", cfg.HTTP.Port)
	}
	if cfg.Node.Name != "node-x" || len(cfg.Node.Peers) != 1 || cfg.Node.Peers[0].URL != "http://node-y:9090" {
		t.Errorf("node = %+v", cfg.Node)
	}
	if cfg.Storage.KeyPrefix != "peersearch:" {
		t.Errorf("defaults not applied: %q", cfg.Storage.KeyPrefix)
	}
}
