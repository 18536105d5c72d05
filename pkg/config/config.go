// Package config loads the orchestrator's configuration document: clients,
// models, MCP servers, toolsets, and the handful of runtime knobs that are
// overridable from the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"mcpflow/pkg/chatmsg"
)

// Config is the fully-resolved configuration document: the JSON file's
// contents with environment overrides applied.
type Config struct {
	ListenAddr string `json:"listen_addr"`
	LogLevel   string `json:"log_level"`
	LogFormat  string `json:"log_format"` // "json" or "text"

	Clients map[string]chatmsg.ClientConfig  `json:"clients"`
	Models  map[string]chatmsg.ModelConfig   `json:"models"`
	Servers map[string]chatmsg.ServerConfig  `json:"servers"`
	Toolsets map[string]chatmsg.ToolsetConfig `json:"toolsets"`

	Discovery chatmsg.ToolDiscoveryConfig `json:"discovery"`

	MaxChatIterations int           `json:"max_chat_iterations"`
	MaxMessages       int           `json:"max_messages"`
	ToolCacheTTL      time.Duration `json:"-"`
	ToolCacheTTLRaw   string        `json:"tool_cache_ttl"`
	ToolResultFormat  string        `json:"tool_result_format"` // result | function_result | function_args_result

	IPAllowlist string `json:"ip_allowlist"`
}

const (
	defaultListenAddr        = ":8080"
	defaultLogLevel          = "info"
	defaultLogFormat         = "text"
	defaultMaxChatIterations = 50
	defaultMaxMessages       = 200
	defaultToolCacheTTL      = 30 * time.Second
	defaultToolResultFormat  = "result"
	defaultMaxSearchResults  = 10
	defaultClientTimeout     = 60
)

// Load reads the configuration document at path and applies environment
// overrides from the real process environment.
func Load(path string) (Config, error) {
	return LoadFromFile(path, os.Getenv)
}

// LoadFromFile reads and validates the configuration document at path,
// then applies overrides from a getenv-like function. Accepting getenv as
// a parameter keeps the loader testable without mutating process state.
func LoadFromFile(path string, getenv func(string) string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, chatmsg.ConfigInvalidError("read config file", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, chatmsg.ConfigInvalidError("parse config file", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg, getenv)

	if err := validate(cfg); err != nil {
		return Config{}, chatmsg.ConfigInvalidError("validate config", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	cfg.ListenAddr = getOrDefault(cfg.ListenAddr, defaultListenAddr)
	cfg.LogLevel = getOrDefault(cfg.LogLevel, defaultLogLevel)
	cfg.LogFormat = getOrDefault(cfg.LogFormat, defaultLogFormat)
	if cfg.MaxChatIterations == 0 {
		cfg.MaxChatIterations = defaultMaxChatIterations
	}
	if cfg.MaxMessages == 0 {
		cfg.MaxMessages = defaultMaxMessages
	}
	if cfg.ToolCacheTTLRaw == "" {
		cfg.ToolCacheTTL = defaultToolCacheTTL
	} else if d, err := time.ParseDuration(cfg.ToolCacheTTLRaw); err == nil {
		cfg.ToolCacheTTL = d
	} else {
		cfg.ToolCacheTTL = defaultToolCacheTTL
	}
	cfg.ToolResultFormat = getOrDefault(cfg.ToolResultFormat, defaultToolResultFormat)
	if cfg.Discovery.MaxSearchResults == 0 {
		cfg.Discovery.MaxSearchResults = defaultMaxSearchResults
	}
	for name, client := range cfg.Clients {
		if client.Timeout == 0 {
			client.Timeout = defaultClientTimeout
			cfg.Clients[name] = client
		}
	}
}

// applyEnvOverrides applies the three environment overrides the external
// interface contract names explicitly (MCP_MAX_CHAT_ITERATIONS,
// MCP_TOOL_CACHE_TTL, and TOOL_RESULT_FORMAT), plus LISTEN_ADDR,
// IP_ALLOWLIST, and a <CLIENT>_API_KEY override per configured client.
func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	if v := getenv("MCP_MAX_CHAT_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxChatIterations = n
		}
	}
	if v := getenv("MCP_TOOL_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ToolCacheTTL = d
		}
	}
	if v := getenv("TOOL_RESULT_FORMAT"); v != "" {
		cfg.ToolResultFormat = v
	}
	if v := getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := getenv("IP_ALLOWLIST"); v != "" {
		cfg.IPAllowlist = v
	}
	for name, client := range cfg.Clients {
		key := strings.ToUpper(sanitizeEnvKey(name)) + "_API_KEY"
		if v := getenv(key); v != "" {
			client.APIKey = v
			cfg.Clients[name] = client
		}
	}
}

func sanitizeEnvKey(name string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)
}

func validate(cfg Config) error {
	var problems []string

	if cfg.MaxChatIterations <= 0 {
		problems = append(problems, "max_chat_iterations must be positive")
	}
	switch cfg.ToolResultFormat {
	case "result", "function_result", "function_args_result":
	default:
		problems = append(problems, fmt.Sprintf(
			"tool_result_format %q is not one of: result, function_result, function_args_result", cfg.ToolResultFormat))
	}
	for name, model := range cfg.Models {
		if _, ok := cfg.Clients[model.Client]; !ok {
			problems = append(problems, fmt.Sprintf("model %q references unknown client %q", name, model.Client))
		}
	}
	for name, toolset := range cfg.Toolsets {
		for server := range toolset.Servers {
			if _, ok := cfg.Servers[server]; !ok {
				problems = append(problems, fmt.Sprintf("toolset %q references unknown server %q", name, server))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

func getOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
