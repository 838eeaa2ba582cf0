package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv 清空会影响加载结果的环境变量
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvAPIURL, EnvWSURL, EnvSessionPath, EnvSessionKey, EnvHTTPTimeout,
		EnvPingInterval, EnvInsecure, EnvProxy, EnvLogLevel, EnvLogFile,
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultAPIURL, cfg.APIURL)
	assert.Equal(t, "wss://localhost:8000", cfg.WSURL)
	assert.Equal(t, DefaultSessionPath, cfg.Session.Path)
	assert.Equal(t, 10*time.Second, cfg.PingInterval)
	assert.Zero(t, cfg.HTTPTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "tradeweb.yaml", `
api_url: http://127.0.0.1:9000
session:
  path: /tmp/sess
http_timeout: 5s
ping_interval: "3"
insecure: true
log_level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:9000", cfg.APIURL)
	assert.Equal(t, "ws://127.0.0.1:9000", cfg.WSURL, "WS 地址跟随 API 地址")
	assert.Equal(t, "/tmp/sess", cfg.Session.Path)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 3*time.Second, cfg.PingInterval)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_JSONWithExplicitWS(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "tradeweb.json", `{"api_url":"https://api.example.com","ws_url":"wss://stream.example.com"}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wss://stream.example.com", cfg.WSURL)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "tradeweb.yml", "api_url: http://file:1\nlog_level: warn\n")
	t.Setenv(EnvAPIURL, "https://env:2")
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvHTTPTimeout, "1500ms")
	t.Setenv(EnvInsecure, "1")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env:2", cfg.APIURL)
	assert.Equal(t, "wss://env:2", cfg.WSURL)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, 1500*time.Millisecond, cfg.HTTPTimeout)
	assert.True(t, cfg.Insecure)

	hc := cfg.HTTPConfig()
	assert.Equal(t, 1500*time.Millisecond, hc.Timeout)
	assert.True(t, hc.InsecureSkipVerify)
	assert.True(t, cfg.StreamConfig().InsecureSkipVerify)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(writeFile(t, "tradeweb.toml", "api_url = 1"))
	assert.ErrorContains(t, err, "不支持的配置文件格式")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "api_url: ftp://host\n"))
	assert.ErrorContains(t, err, "api_url")

	_, err = Load(writeFile(t, "bad.yaml", "http_timeout: soon\n"))
	assert.ErrorContains(t, err, "http_timeout")

	t.Setenv(EnvWSURL, "http://not-ws")
	_, err = Load("")
	assert.ErrorContains(t, err, "ws_url")
}

func TestDeriveWSURL(t *testing.T) {
	assert.Equal(t, "wss://h:1/x", DeriveWSURL("https://h:1/x"))
	assert.Equal(t, "ws://h", DeriveWSURL("http://h"))
	assert.Equal(t, "ws://h", DeriveWSURL("ws://h"))
}

func TestLoad_SessionKey(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvSessionKey, "abcd")
	_, err := Load("")
	assert.ErrorContains(t, err, "session.key")

	t.Setenv(EnvSessionKey, "0x"+strings.Repeat("ab", 32))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Session.Key)
}
