package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables that override config keys,
// e.g. OBJECTAGENT_SQL_PATH for sql.path.
const EnvPrefix = "OBJECTAGENT"

// Config is the objectagent config file. Each backend section is optional;
// a backend is registered only when its section is present. Registration
// order is sql, document, memory.
//
// Viper lowercases map keys, so entity type names are lowercase.
type Config struct {
	Types    map[string]TypeConfig `mapstructure:"types"`
	SQL      *SQLConfig            `mapstructure:"sql"`
	Document *DocumentConfig       `mapstructure:"document"`
	Memory   *MemoryConfig         `mapstructure:"memory"`
}

// BackendConfig holds what every backend section shares. Types restricts the
// backend to the listed entity types; empty means all declared types.
// Capabilities narrows the backend defaults with the capability.FromMap keys.
type BackendConfig struct {
	Types        []string       `mapstructure:"types"`
	Capabilities map[string]any `mapstructure:"capabilities"`
}

// SQLConfig configures the sqlite backend.
type SQLConfig struct {
	BackendConfig `mapstructure:",squash"`
	Path          string `mapstructure:"path"`
	CreateSchema  bool   `mapstructure:"create_schema"`
}

// DocumentConfig configures the document backend.
type DocumentConfig struct {
	BackendConfig `mapstructure:",squash"`
	Workspace     string `mapstructure:"workspace"`
}

// MemoryConfig configures the memory backend.
type MemoryConfig struct {
	BackendConfig `mapstructure:",squash"`
	Fixtures      string `mapstructure:"fixtures"`
}

// LoadConfig reads the YAML config file at path. Relative backend paths are
// resolved against the directory of the config file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range []string{"sql.path", "document.workspace", "memory.fixtures"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config from %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if cfg.SQL != nil {
		cfg.SQL.Path = resolvePath(dir, cfg.SQL.Path)
	}
	if cfg.Document != nil {
		cfg.Document.Workspace = resolvePath(dir, cfg.Document.Workspace)
	}
	if cfg.Memory != nil {
		cfg.Memory.Fixtures = resolvePath(dir, cfg.Memory.Fixtures)
	}
	return &cfg, nil
}

// resolvePath leaves empty, absolute and in-memory sqlite paths alone.
func resolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) || p == ":memory:" || strings.HasPrefix(p, "file:") {
		return p
	}
	return filepath.Join(dir, p)
}
