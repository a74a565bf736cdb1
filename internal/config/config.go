package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Name    string   `yaml:"name" mapstructure:"name"`
	Type    string   `yaml:"type" mapstructure:"type"` // "stdio", "sse", "http" or "websocket"
	Command string   `yaml:"command,omitempty" mapstructure:"command"`
	Args    []string `yaml:"args,omitempty" mapstructure:"args"`
	URL     string   `yaml:"url,omitempty" mapstructure:"url"`
	Env     []string `yaml:"env,omitempty" mapstructure:"env"`
}

// JSONRPCConfig holds the "jsonrpc" section of the config file, separate
// from the MCP upstream/aggregator configuration above. Load decodes it;
// cmd/jsonrpcd does not read it and always serves over stdio.
type JSONRPCConfig struct {
	Transport string `yaml:"transport" mapstructure:"transport"` // "stdio" or "http"
	Addr      string `yaml:"addr,omitempty" mapstructure:"addr"` // listen address when Transport is "http"
}

type Config struct {
	MCPServers []ServerConfig `yaml:"mcpServers" mapstructure:"mcpServers"`
	Server     struct {
		Port      int    `yaml:"port" mapstructure:"port"`
		Transport string `yaml:"transport" mapstructure:"transport"` // "http" or "stdio"
	} `yaml:"server" mapstructure:"server"`
	JSONRPC JSONRPCConfig `yaml:"jsonrpc" mapstructure:"jsonrpc"`
}

// Load reads configuration from path (YAML, decoded the same way the
// original single-file config was), then layers environment variables
// (optionally loaded from a .env file first) on top. The YAML decode stays
// a plain yaml.v3 decode; viper only owns the override/defaults layer.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var raw map[string]interface{}
	if err := yaml.NewDecoder(f).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	v := viper.New()
	v.SetEnvPrefix("MCPPROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.transport", "http")
	v.SetDefault("jsonrpc.transport", "stdio")

	if err := v.MergeConfigMap(raw); err != nil {
		return nil, fmt.Errorf("failed to merge config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &cfg, nil
}
