package envconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ollama/schema2grammar/logutil"
)

var ErrInvalidHostPort = errors.New("invalid port specified in SCHEMA2GRAMMAR_HOST")

const (
	defaultHost           = "127.0.0.1"
	defaultPort           = "11435"
	defaultFetchTimeout   = 30 * time.Second
	defaultMaxSchemaBytes = 10 << 20
	defaultMaxRepeat      = 10000
)

var (
	// Set via SCHEMA2GRAMMAR_DEBUG in the environment
	Debug int
	// Set via SCHEMA2GRAMMAR_LOG_FORMAT in the environment
	LogFormat logutil.Format
	// Set via SCHEMA2GRAMMAR_PROP_ORDER in the environment
	PropOrder []string
	// Set via SCHEMA2GRAMMAR_FETCH_TIMEOUT in the environment
	FetchTimeout time.Duration
	// Set via SCHEMA2GRAMMAR_ALLOW_REMOTE in the environment
	AllowRemote bool
	// Set via SCHEMA2GRAMMAR_MAX_SCHEMA_BYTES in the environment
	MaxSchemaBytes int64
	// Set via SCHEMA2GRAMMAR_MAX_REPEAT in the environment
	MaxRepeat int
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"SCHEMA2GRAMMAR_DEBUG":            {"SCHEMA2GRAMMAR_DEBUG", Debug, "Show additional debug information (1 for debug, 2 for trace)"},
		"SCHEMA2GRAMMAR_LOG_FORMAT":       {"SCHEMA2GRAMMAR_LOG_FORMAT", LogFormat, "Log record format, text or json (default text)"},
		"SCHEMA2GRAMMAR_HOST":             {"SCHEMA2GRAMMAR_HOST", "", "Listen address for the grammar service (default 127.0.0.1:11435)"},
		"SCHEMA2GRAMMAR_PROP_ORDER":       {"SCHEMA2GRAMMAR_PROP_ORDER", PropOrder, "Comma separated property names emitted first"},
		"SCHEMA2GRAMMAR_FETCH_TIMEOUT":    {"SCHEMA2GRAMMAR_FETCH_TIMEOUT", FetchTimeout, "Timeout for fetching a remote schema (default 30s)"},
		"SCHEMA2GRAMMAR_ALLOW_REMOTE":     {"SCHEMA2GRAMMAR_ALLOW_REMOTE", AllowRemote, "Allow the grammar service to fetch remote references"},
		"SCHEMA2GRAMMAR_MAX_SCHEMA_BYTES": {"SCHEMA2GRAMMAR_MAX_SCHEMA_BYTES", MaxSchemaBytes, "Maximum size of a schema document (default 10MiB)"},
		"SCHEMA2GRAMMAR_MAX_REPEAT":       {"SCHEMA2GRAMMAR_MAX_REPEAT", MaxRepeat, "Maximum array length or pattern repetition count expanded into a grammar (default 10000)"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// Clean quotes and spaces from the value
func clean(key string) string {
	if v := strings.Trim(os.Getenv(key), "\"' "); v != "" {
		return v
	}
	return strings.Trim(GetConfigValue(key), "\"' ")
}

func init() {
	LoadConfig()
}

func LoadConfig() {
	Debug = 0
	if debug := clean("SCHEMA2GRAMMAR_DEBUG"); debug != "" {
		if n, err := strconv.Atoi(debug); err == nil {
			Debug = n
		} else if b, err := strconv.ParseBool(debug); err == nil {
			if b {
				Debug = 1
			}
		} else {
			Debug = 1
		}
	}

	LogFormat = logutil.FormatText
	switch format := logutil.Format(strings.ToLower(clean("SCHEMA2GRAMMAR_LOG_FORMAT"))); format {
	case "", logutil.FormatText:
	case logutil.FormatJSON:
		LogFormat = format
	default:
		slog.Error("invalid setting, ignoring", "SCHEMA2GRAMMAR_LOG_FORMAT", format)
	}

	PropOrder = nil
	if order := clean("SCHEMA2GRAMMAR_PROP_ORDER"); order != "" {
		for _, name := range strings.Split(order, ",") {
			if name = strings.TrimSpace(name); name != "" {
				PropOrder = append(PropOrder, name)
			}
		}
	}

	FetchTimeout = defaultFetchTimeout
	if timeout := clean("SCHEMA2GRAMMAR_FETCH_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
			FetchTimeout = d
		} else if n, err := strconv.Atoi(timeout); err == nil && n > 0 {
			FetchTimeout = time.Duration(n) * time.Second
		} else {
			slog.Error("invalid setting, ignoring", "SCHEMA2GRAMMAR_FETCH_TIMEOUT", timeout, "error", err)
		}
	}

	AllowRemote = false
	if remote := clean("SCHEMA2GRAMMAR_ALLOW_REMOTE"); remote != "" {
		b, err := strconv.ParseBool(remote)
		if err != nil {
			slog.Error("invalid setting, ignoring", "SCHEMA2GRAMMAR_ALLOW_REMOTE", remote, "error", err)
		}
		AllowRemote = b
	}

	MaxSchemaBytes = defaultMaxSchemaBytes
	if limit := clean("SCHEMA2GRAMMAR_MAX_SCHEMA_BYTES"); limit != "" {
		n, err := strconv.ParseInt(limit, 10, 64)
		if err != nil || n <= 0 {
			slog.Error("invalid setting must be greater than zero", "SCHEMA2GRAMMAR_MAX_SCHEMA_BYTES", limit, "error", err)
		} else {
			MaxSchemaBytes = n
		}
	}

	MaxRepeat = defaultMaxRepeat
	if limit := clean("SCHEMA2GRAMMAR_MAX_REPEAT"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			slog.Error("invalid setting must be greater than zero", "SCHEMA2GRAMMAR_MAX_REPEAT", limit, "error", err)
		} else {
			MaxRepeat = n
		}
	}
}

// LogLevel returns the slog level selected by SCHEMA2GRAMMAR_DEBUG.
func LogLevel() slog.Level {
	switch {
	case Debug >= 2:
		return logutil.LevelTrace
	case Debug == 1:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// Host returns the listen address of the grammar service as host:port.
// Missing parts are filled from the default 127.0.0.1:11435.
func Host() (string, error) {
	host := clean("SCHEMA2GRAMMAR_HOST")
	host = strings.TrimPrefix(strings.TrimPrefix(host, "http://"), "https://")
	host = strings.Trim(host, "/")

	h, port, err := net.SplitHostPort(host)
	if err != nil {
		h, port = defaultHost, defaultPort
		if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
			h = ip.String()
		} else if host != "" {
			h = host
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		return "", ErrInvalidHostPort
	}
	return net.JoinHostPort(h, port), nil
}
