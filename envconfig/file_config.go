package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// Config represents the TOML configuration structure
type Config struct {
	Server struct {
		Host        string `toml:"host"`
		AllowRemote bool   `toml:"allow_remote"`
	} `toml:"server"`

	Convert struct {
		PropOrder      []string `toml:"prop_order"`
		FetchTimeout   string   `toml:"fetch_timeout"`
		MaxSchemaBytes int64    `toml:"max_schema_bytes"`
		MaxRepeat      int      `toml:"max_repeat"`
	} `toml:"convert"`

	Logging struct {
		Debug  int    `toml:"debug"`
		Format string `toml:"format"`
	} `toml:"logging"`
}

var (
	configOnce sync.Once
	config     *Config
	configPath string
)

// GetConfigPaths returns the list of possible config file paths for the current OS
func GetConfigPaths() []string {
	var paths []string

	if path := os.Getenv("SCHEMA2GRAMMAR_CONFIG"); path != "" {
		paths = append(paths, path)
	}

	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			paths = append(paths, filepath.Join(appData, "schema2grammar", "config.toml"))
		}
		if userProfile := os.Getenv("USERPROFILE"); userProfile != "" {
			paths = append(paths, filepath.Join(userProfile, ".schema2grammar", "config.toml"))
		}
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			paths = append(paths, filepath.Join(xdgConfig, "schema2grammar", "config.toml"))
		}
		home, err := os.UserHomeDir()
		if err == nil {
			paths = append(paths,
				filepath.Join(home, ".config", "schema2grammar", "config.toml"),
				filepath.Join(home, ".schema2grammar", "config.toml"),
			)
		}
	}

	return paths
}

// loadConfigFile loads the first available configuration file
func loadConfigFile(paths []string) (*Config, string, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			var cfg Config
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, "", fmt.Errorf("error parsing config file %s: %w", path, err)
			}
			return &cfg, path, nil
		}
	}
	return nil, "", nil
}

// GetConfigValue returns the value for a given environment variable key from the config file
func GetConfigValue(key string) string {
	configOnce.Do(func() {
		var err error
		config, configPath, err = loadConfigFile(GetConfigPaths())
		if err != nil {
			slog.Warn("failed to load config file", "error", err)
		} else if config != nil {
			slog.Debug("loaded config file", "path", configPath)
		}
	})

	return config.value(key)
}

func (c *Config) value(key string) string {
	if c == nil {
		return ""
	}

	switch key {
	case "SCHEMA2GRAMMAR_HOST":
		return c.Server.Host
	case "SCHEMA2GRAMMAR_ALLOW_REMOTE":
		if c.Server.AllowRemote {
			return "true"
		}
	case "SCHEMA2GRAMMAR_PROP_ORDER":
		return strings.Join(c.Convert.PropOrder, ",")
	case "SCHEMA2GRAMMAR_FETCH_TIMEOUT":
		return c.Convert.FetchTimeout
	case "SCHEMA2GRAMMAR_MAX_SCHEMA_BYTES":
		if c.Convert.MaxSchemaBytes > 0 {
			return strconv.FormatInt(c.Convert.MaxSchemaBytes, 10)
		}
	case "SCHEMA2GRAMMAR_MAX_REPEAT":
		if c.Convert.MaxRepeat > 0 {
			return strconv.Itoa(c.Convert.MaxRepeat)
		}
	case "SCHEMA2GRAMMAR_DEBUG":
		if c.Logging.Debug > 0 {
			return strconv.Itoa(c.Logging.Debug)
		}
	case "SCHEMA2GRAMMAR_LOG_FORMAT":
		return c.Logging.Format
	}

	return ""
}

// GenerateExampleConfig returns a commented example TOML configuration
func GenerateExampleConfig() string {
	return `# schema2grammar configuration file
# Values set in the environment take precedence.

[server]
# Listen address of the grammar service (default: "127.0.0.1:11435")
host = "127.0.0.1:11435"
# Fetch remote $ref documents for API requests (default: false)
allow_remote = false

[convert]
# Property names emitted first, in this order
prop_order = ["id", "name"]
# Timeout for fetching a remote schema (default: "30s")
fetch_timeout = "30s"
# Maximum size of a schema document in bytes (default: 10485760)
max_schema_bytes = 10485760
# Largest array length or pattern repetition count expanded into a grammar (default: 10000)
max_repeat = 10000

[logging]
# 1 for debug logging, 2 for trace logging (default: 0)
debug = 0
# Log record format, "text" or "json" (default: "text")
format = "text"
`
}
