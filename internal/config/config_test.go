package config

import (
	"os"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	content := `
mcpServers:
  - name: "test-server"
    type: "stdio"
    command: "echo"
    args: ["hello"]
server:
  port: 9090
`
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.MCPServers) != 1 {
		t.Errorf("expected 1 server, got %d", len(cfg.MCPServers))
	}
	if cfg.MCPServers[0].Name != "test-server" {
		t.Errorf("expected name 'test-server', got %s", cfg.MCPServers[0].Name)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	content := `
mcpServers:
  - name: "test-server"
    type: "stdio"
    command: "echo"
server:
  port: 9090
`
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MCPPROXY_SERVER_PORT", "7070")
	t.Setenv("MCPPROXY_SERVER_TRANSPORT", "stdio")

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("expected env override port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Server.Transport != "stdio" {
		t.Errorf("expected env override transport stdio, got %s", cfg.Server.Transport)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	content := `
mcpServers:
  - name: "test-server"
    type: "stdio"
    command: "echo"
`
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.Transport != "http" {
		t.Errorf("expected default transport http, got %s", cfg.Server.Transport)
	}
	if cfg.JSONRPC.Transport != "stdio" {
		t.Errorf("expected default jsonrpc transport stdio, got %s", cfg.JSONRPC.Transport)
	}
}
