package envconfig

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/schema2grammar/logutil"
)

func TestConfig(t *testing.T) {
	t.Setenv("SCHEMA2GRAMMAR_DEBUG", "")
	LoadConfig()
	require.Equal(t, slog.LevelInfo, LogLevel())

	t.Setenv("SCHEMA2GRAMMAR_DEBUG", "false")
	LoadConfig()
	require.Equal(t, 0, Debug)

	t.Setenv("SCHEMA2GRAMMAR_DEBUG", "1")
	LoadConfig()
	require.Equal(t, slog.LevelDebug, LogLevel())

	t.Setenv("SCHEMA2GRAMMAR_DEBUG", "true")
	LoadConfig()
	require.Equal(t, slog.LevelDebug, LogLevel())

	t.Setenv("SCHEMA2GRAMMAR_DEBUG", "2")
	LoadConfig()
	require.Equal(t, logutil.LevelTrace, LogLevel())
}

func TestLogFormat(t *testing.T) {
	cases := map[string]logutil.Format{
		"":      logutil.FormatText,
		"text":  logutil.FormatText,
		"json":  logutil.FormatJSON,
		"JSON":  logutil.FormatJSON,
		"plain": logutil.FormatText,
	}
	for value, want := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("SCHEMA2GRAMMAR_LOG_FORMAT", value)
			LoadConfig()
			assert.Equal(t, want, LogFormat)
		})
	}
}

func TestMaxRepeat(t *testing.T) {
	cases := map[string]int{
		"":      10000,
		"50":    50,
		"0":     10000,
		"-3":    10000,
		"lots":  10000,
		"20000": 20000,
	}
	for value, want := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("SCHEMA2GRAMMAR_MAX_REPEAT", value)
			LoadConfig()
			assert.Equal(t, want, MaxRepeat)
		})
	}
}

func TestPropOrder(t *testing.T) {
	t.Setenv("SCHEMA2GRAMMAR_PROP_ORDER", " id, name ,,type ")
	LoadConfig()
	assert.Equal(t, []string{"id", "name", "type"}, PropOrder)
}

func TestFetchTimeout(t *testing.T) {
	cases := map[string]time.Duration{
		"":      30 * time.Second,
		"5s":    5 * time.Second,
		"2m":    2 * time.Minute,
		"10":    10 * time.Second,
		"bogus": 30 * time.Second,
		"-1s":   30 * time.Second,
	}
	for value, want := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("SCHEMA2GRAMMAR_FETCH_TIMEOUT", value)
			LoadConfig()
			assert.Equal(t, want, FetchTimeout)
		})
	}
}

func TestMaxSchemaBytes(t *testing.T) {
	t.Setenv("SCHEMA2GRAMMAR_MAX_SCHEMA_BYTES", "1024")
	LoadConfig()
	assert.EqualValues(t, 1024, MaxSchemaBytes)

	t.Setenv("SCHEMA2GRAMMAR_MAX_SCHEMA_BYTES", "0")
	LoadConfig()
	assert.EqualValues(t, 10<<20, MaxSchemaBytes)
}

func TestAllowRemote(t *testing.T) {
	t.Setenv("SCHEMA2GRAMMAR_ALLOW_REMOTE", "1")
	LoadConfig()
	assert.True(t, AllowRemote)

	t.Setenv("SCHEMA2GRAMMAR_ALLOW_REMOTE", "false")
	LoadConfig()
	assert.False(t, AllowRemote)
}

func TestHost(t *testing.T) {
	type testCase struct {
		value  string
		expect string
		err    error
	}

	hostTestCases := map[string]*testCase{
		"only address":        {value: "1.2.3.4", expect: "1.2.3.4:11435"},
		"only port":           {value: ":1234", expect: ":1234"},
		"address and port":    {value: "1.2.3.4:1234", expect: "1.2.3.4:1234"},
		"hostname":            {value: "example.com", expect: "example.com:11435"},
		"hostname and port":   {value: "example.com:1234", expect: "example.com:1234"},
		"zero port":           {value: ":0", expect: ":0"},
		"too large port":      {value: ":66000", err: ErrInvalidHostPort},
		"too small port":      {value: ":-1", err: ErrInvalidHostPort},
		"ipv6 localhost":      {value: "[::1]", expect: "[::1]:11435"},
		"ipv6 no brackets":    {value: "::1", expect: "[::1]:11435"},
		"ipv6 + port":         {value: "[::1]:1337", expect: "[::1]:1337"},
		"scheme":              {value: "http://1.2.3.4:99", expect: "1.2.3.4:99"},
		"extra space":         {value: " 1.2.3.4 ", expect: "1.2.3.4:11435"},
		"extra quotes":        {value: "\"1.2.3.4\"", expect: "1.2.3.4:11435"},
		"extra single quotes": {value: "'1.2.3.4'", expect: "1.2.3.4:11435"},
	}

	for k, v := range hostTestCases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("SCHEMA2GRAMMAR_HOST", v.value)

			host, err := Host()
			require.ErrorIs(t, err, v.err)
			if err == nil {
				assert.Equal(t, v.expect, host)
			}
		})
	}
}

func TestAsMap(t *testing.T) {
	LoadConfig()
	m := AsMap()
	for k, v := range m {
		assert.Equal(t, k, v.Name)
		assert.NotEmpty(t, v.Description, k)
	}
	assert.Len(t, Values(), len(m))
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(GenerateExampleConfig()), 0o644))

	cfg, got, err := loadConfigFile([]string{filepath.Join(dir, "missing.toml"), path})
	require.NoError(t, err)
	require.Equal(t, path, got)

	assert.Equal(t, "127.0.0.1:11435", cfg.value("SCHEMA2GRAMMAR_HOST"))
	assert.Equal(t, "id,name", cfg.value("SCHEMA2GRAMMAR_PROP_ORDER"))
	assert.Equal(t, "30s", cfg.value("SCHEMA2GRAMMAR_FETCH_TIMEOUT"))
	assert.Equal(t, "10485760", cfg.value("SCHEMA2GRAMMAR_MAX_SCHEMA_BYTES"))
	assert.Equal(t, "10000", cfg.value("SCHEMA2GRAMMAR_MAX_REPEAT"))
	assert.Empty(t, cfg.value("SCHEMA2GRAMMAR_ALLOW_REMOTE"))
	assert.Empty(t, cfg.value("SCHEMA2GRAMMAR_DEBUG"))
	assert.Equal(t, "text", cfg.value("SCHEMA2GRAMMAR_LOG_FORMAT"))
	assert.Empty(t, cfg.value("UNKNOWN"))

	var nilConfig *Config
	assert.Empty(t, nilConfig.value("SCHEMA2GRAMMAR_HOST"))
}

func TestConfigFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nhost = 1"), 0o644))

	_, _, err := loadConfigFile([]string{path})
	var perr toml.ParseError
	require.ErrorAs(t, err, &perr)
}

func TestConfigPaths(t *testing.T) {
	t.Setenv("SCHEMA2GRAMMAR_CONFIG", "/tmp/custom.toml")
	paths := GetConfigPaths()
	require.NotEmpty(t, paths)
	assert.Equal(t, "/tmp/custom.toml", paths[0])
}
