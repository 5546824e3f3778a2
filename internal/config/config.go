// Package config loads and hot-swaps the runtime's process-wide
// configuration. A single root Config value is threaded explicitly into
// constructors; there is no ambient global state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// legacyFilename is the fallback config filename looked up in the
// current working directory when --config is not given and no file
// exists at the workspace root.
const legacyFilename = "slopoverlord.json"

// ProviderConfig configures the model-provider adapter (itself an
// out-of-scope external collaborator; this struct only carries the
// settings the core needs to decide whether a real provider is wired).
type ProviderConfig struct {
	Models []string `koanf:"models"`
	APIKey string   `koanf:"-"` // populated from env, never persisted
}

// Configured reports whether at least one model is configured, which is
// what gates the provider hot-reload scenario in the spec's testable
// properties (an empty Models list means inline replies only).
func (p ProviderConfig) Configured() bool {
	return len(p.Models) > 0
}

// Config is the process-wide configuration snapshot.
type Config struct {
	// WorkspaceRoot is the base directory all relative paths in the
	// persisted layout (agents/, projects/, the embedded SQL file) are
	// resolved against.
	WorkspaceRoot string `koanf:"workspace_root"`

	// DBPath is the embedded SQL engine's database file, resolved
	// relative to WorkspaceRoot unless absolute. ":memory:" selects the
	// in-memory persistence backend instead of opening a file.
	DBPath string `koanf:"db_path"`

	// InlineAttachmentCapBytes is the attachment size above which the
	// session engine records metadata only, no inline content.
	InlineAttachmentCapBytes int64 `koanf:"inline_attachment_cap_bytes"`

	// MaxToolCallsPerMinute rate-limits an agent's tool-invoking actions.
	MaxToolCallsPerMinute int `koanf:"max_tool_calls_per_minute"`

	Provider ProviderConfig `koanf:"provider"`
}

// Defaults returns the baseline configuration before any file or env
// overrides are layered on.
func Defaults() *Config {
	return &Config{
		WorkspaceRoot:            defaultWorkspaceRoot(),
		DBPath:                   "slopoverlord.db",
		InlineAttachmentCapBytes: 2 << 20, // 2 MiB
		MaxToolCallsPerMinute:    30,
		Provider:                 ProviderConfig{Models: nil},
	}
}

func defaultWorkspaceRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".slopoverlord")
	}
	return filepath.Join(home, ".slopoverlord")
}

// ResolvePath resolves a path from the persisted layout against the
// workspace root, leaving absolute paths untouched.
func (c *Config) ResolvePath(p string) string {
	if filepath.IsAbs(p) || p == ":memory:" {
		return p
	}
	return filepath.Join(c.WorkspaceRoot, p)
}

// Load builds a Config by layering, in order: built-in defaults, the
// file at path (or the legacy CWD fallback if path is empty and no file
// exists at the default location), then environment variables.
// Matches leapmux's unwired koanf dependency, actually put to use here.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := Defaults()
	defaultMap := map[string]any{
		"workspace_root":              defaults.WorkspaceRoot,
		"db_path":                     defaults.DBPath,
		"inline_attachment_cap_bytes": defaults.InlineAttachmentCapBytes,
		"max_tool_calls_per_minute":   defaults.MaxToolCallsPerMinute,
	}
	if err := k.Load(confmap.Provider(defaultMap, "."), nil); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	resolvedPath := resolveConfigPath(path, defaults.WorkspaceRoot)
	if resolvedPath != "" {
		if _, err := os.Stat(resolvedPath); err == nil {
			parser := parserFor(resolvedPath)
			if err := k.Load(file.Provider(resolvedPath), parser); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", resolvedPath, err)
			}
		}
	}

	// Environment overrides, e.g. SLOPOVERLORD_WORKSPACE_ROOT sets
	// workspace_root; a double underscore separates nested keys.
	if err := k.Load(env.Provider("SLOPOVERLORD_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "SLOPOVERLORD_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Provider API keys come from dedicated env vars, never the config
	// file or the SLOPOVERLORD_ prefix, so they never round-trip through
	// PUT /v1/config responses.
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}

	return &cfg, nil
}

func resolveConfigPath(explicit, workspaceRoot string) string {
	if explicit != "" {
		return explicit
	}
	atWorkspace := filepath.Join(workspaceRoot, "slopoverlord.json")
	if _, err := os.Stat(atWorkspace); err == nil {
		return atWorkspace
	}
	if _, err := os.Stat(legacyFilename); err == nil {
		return legacyFilename
	}
	return atWorkspace
}

func parserFor(path string) koanf.Parser {
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		return yaml.Parser()
	}
	return json.Parser()
}
