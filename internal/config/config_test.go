package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetViper starts each test from the default configuration state.
func resetViper() {
	viper.Reset()
	SetDefaults()
}

func TestLoadDefaults(t *testing.T) {
	resetViper()

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.Debug)
	assert.False(t, cfg.Autoescape)
	assert.Equal(t, "utf-8", cfg.Charset)
	assert.Equal(t, "", cfg.StringIfInvalid)
	assert.Equal(t, []string{"."}, cfg.Dirs)
	assert.Equal(t, []string{".html", ".txt"}, cfg.Extensions)
	assert.Empty(t, cfg.IncludeRoots)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Server.NoReload)
	assert.Equal(t, 300*time.Millisecond, cfg.Server.Debounce)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadOverrides(t *testing.T) {
	resetViper()
	viper.Set("debug", true)
	viper.Set("string_if_invalid", "INVALID")
	viper.Set("dirs", []string{"templates", "shared"})
	viper.Set("server.port", 3000)
	viper.Set("server.no_reload", true)
	viper.Set("log.level", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, "INVALID", cfg.StringIfInvalid)
	assert.Equal(t, []string{"templates", "shared"}, cfg.Dirs)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.True(t, cfg.Server.NoReload)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsBadValues(t *testing.T) {
	testCases := []struct {
		name    string
		key     string
		value   any
		message string
	}{
		{"port too large", "server.port", 70000, "not in valid range"},
		{"port negative", "server.port", -1, "not in valid range"},
		{"host shell metacharacter", "server.host", "localhost;rm -rf", "dangerous character"},
		{"host backtick", "server.host", "host`whoami`", "dangerous character"},
		{"negative debounce", "server.debounce", -time.Second, "debounce must not be negative"},
		{"dir traversal", "dirs", []string{"../outside"}, "path contains traversal"},
		{"dir empty", "dirs", []string{""}, "empty path"},
		{"dir metacharacter", "dirs", []string{"tem|plates"}, "dangerous character"},
		{"extension without dot", "extensions", []string{"html"}, `extension "html" must start with a dot`},
		{"empty charset", "charset", "", "charset must not be empty"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resetViper()
			viper.Set(tc.key, tc.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestValidatePath(t *testing.T) {
	assert.NoError(t, validatePath("templates"))
	assert.NoError(t, validatePath("/abs/templates"))
	assert.NoError(t, validatePath("a/b/c"))
	assert.Error(t, validatePath(""))
	assert.Error(t, validatePath("../up"))
	assert.Error(t, validatePath("a/../../b"))
	assert.Error(t, validatePath("dir;echo"))
	assert.Error(t, validatePath("dir$(cmd)"))
}

func TestValidateServerConfig(t *testing.T) {
	ok := ServerConfig{Host: "0.0.0.0", Port: 9000}
	assert.NoError(t, validateServerConfig(&ok))

	// An empty host means "bind everything" and is allowed.
	empty := ServerConfig{Port: 8080}
	assert.NoError(t, validateServerConfig(&empty))
}
