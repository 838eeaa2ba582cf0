package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	sdkhttp "github.com/betbot/tradeweb/pkg/sdk/http"
	"github.com/betbot/tradeweb/pkg/sdk/websocket"
	"github.com/betbot/tradeweb/pkg/secretstore"
)

const (
	DefaultAPIURL      = "https://localhost:8000"
	DefaultSessionPath = "data/session"
	DefaultLogFile     = "logs/tradecli.log"
)

// 环境变量名
const (
	EnvAPIURL       = "TRADEWEB_API_URL"
	EnvWSURL        = "TRADEWEB_WS_URL"
	EnvSessionPath  = "TRADEWEB_SESSION_PATH"
	EnvSessionKey   = "TRADEWEB_SESSION_KEY"
	EnvHTTPTimeout  = "TRADEWEB_HTTP_TIMEOUT"
	EnvPingInterval = "TRADEWEB_PING_INTERVAL"
	EnvInsecure     = "TRADEWEB_INSECURE"
	EnvProxy        = "TRADEWEB_PROXY"
	EnvLogLevel     = "LOG_LEVEL"
	EnvLogFile      = "LOG_FILE"
)

// SessionConfig 会话令牌存储配置
type SessionConfig struct {
	Path string // badger 目录；为空则令牌只保存在内存中
	Key  string // 加密密钥（hex 或 base64，32 字节），可选
}

// Config 应用配置
type Config struct {
	APIURL       string        // REST 根地址
	WSURL        string        // 订单簿推送根地址，默认从 APIURL 推导
	Session      SessionConfig // 会话存储
	HTTPTimeout  time.Duration // 单次请求超时，0 表示由 context 控制
	PingInterval time.Duration // 订单簿连接心跳间隔
	Insecure     bool          // 跳过 TLS 证书校验（本地自签名证书）
	Proxy        string        // HTTP/WS 代理 URL（可选）
	LogLevel     string        // 日志级别
	LogFile      string        // 日志文件路径（可选）
}

// ConfigFile 配置文件结构（用于 YAML/JSON 解析）
type ConfigFile struct {
	APIURL  string `yaml:"api_url" json:"api_url"`
	WSURL   string `yaml:"ws_url" json:"ws_url"`
	Session struct {
		Path string `yaml:"path" json:"path"`
		Key  string `yaml:"key" json:"key"`
	} `yaml:"session" json:"session"`
	HTTPTimeout  string `yaml:"http_timeout" json:"http_timeout"`   // 例如 "10s"
	PingInterval string `yaml:"ping_interval" json:"ping_interval"` // 例如 "10s"
	Insecure     *bool  `yaml:"insecure" json:"insecure"`
	Proxy        string `yaml:"proxy" json:"proxy"`
	LogLevel     string `yaml:"log_level" json:"log_level"`
	LogFile      string `yaml:"log_file" json:"log_file"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		APIURL:       DefaultAPIURL,
		WSURL:        DeriveWSURL(DefaultAPIURL),
		Session:      SessionConfig{Path: DefaultSessionPath},
		PingInterval: 10 * time.Second,
		LogLevel:     "info",
		LogFile:      DefaultLogFile,
	}
}

// Load 加载配置（优先级：环境变量 > 配置文件 > 默认值），filePath 为空时跳过配置文件
func Load(filePath string) (*Config, error) {
	cfg := Default()

	if filePath != "" {
		configFile, err := loadConfigFile(filePath)
		if err != nil {
			return nil, errors.Wrapf(err, "加载配置文件失败 %s", filePath)
		}
		if err := cfg.applyFile(configFile); err != nil {
			return nil, errors.Wrapf(err, "配置文件 %s", filePath)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	// 未显式配置 WS 地址时跟随 API 地址
	if cfg.WSURL == "" {
		cfg.WSURL = DeriveWSURL(cfg.APIURL)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrap(err, "读取配置文件失败")
	}

	var configFile ConfigFile
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &configFile); err != nil {
			return nil, errors.Wrap(err, "解析 YAML 配置文件失败")
		}
	case ".json":
		if err := json.Unmarshal(data, &configFile); err != nil {
			return nil, errors.Wrap(err, "解析 JSON 配置文件失败")
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}

	return &configFile, nil
}

func (c *Config) applyFile(f *ConfigFile) error {
	wsFromFile := f.WSURL != ""
	if f.APIURL != "" {
		c.APIURL = f.APIURL
		if !wsFromFile {
			c.WSURL = ""
		}
	}
	if wsFromFile {
		c.WSURL = f.WSURL
	}
	c.Session.Path = getValueFromSources(f.Session.Path, c.Session.Path)
	c.Session.Key = getValueFromSources(f.Session.Key, c.Session.Key)
	c.Proxy = getValueFromSources(f.Proxy, c.Proxy)
	c.LogLevel = getValueFromSources(f.LogLevel, c.LogLevel)
	c.LogFile = getValueFromSources(f.LogFile, c.LogFile)
	if f.Insecure != nil {
		c.Insecure = *f.Insecure
	}

	var err error
	if c.HTTPTimeout, err = parseDuration("http_timeout", f.HTTPTimeout, c.HTTPTimeout); err != nil {
		return err
	}
	if c.PingInterval, err = parseDuration("ping_interval", f.PingInterval, c.PingInterval); err != nil {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.APIURL = v
		if os.Getenv(EnvWSURL) == "" {
			c.WSURL = ""
		}
	}
	c.WSURL = getEnv(EnvWSURL, c.WSURL)
	c.Session.Path = getEnv(EnvSessionPath, c.Session.Path)
	c.Session.Key = getEnv(EnvSessionKey, c.Session.Key)
	c.Proxy = getEnv(EnvProxy, c.Proxy)
	c.LogLevel = getEnv(EnvLogLevel, c.LogLevel)
	c.LogFile = getEnv(EnvLogFile, c.LogFile)
	c.Insecure = parseBoolEnv(EnvInsecure, c.Insecure)

	var err error
	if c.HTTPTimeout, err = parseDuration(EnvHTTPTimeout, os.Getenv(EnvHTTPTimeout), c.HTTPTimeout); err != nil {
		return err
	}
	if c.PingInterval, err = parseDuration(EnvPingInterval, os.Getenv(EnvPingInterval), c.PingInterval); err != nil {
		return err
	}
	return nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	if err := checkURL("api_url", c.APIURL, "http", "https"); err != nil {
		return err
	}
	if err := checkURL("ws_url", c.WSURL, "ws", "wss"); err != nil {
		return err
	}
	if c.Proxy != "" {
		if _, err := url.Parse(c.Proxy); err != nil {
			return errors.Wrap(err, "proxy 无效")
		}
	}
	if _, err := secretstore.ParseKey(c.Session.Key); err != nil {
		return errors.Wrap(err, "session.key 无效")
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("http_timeout 不能为负数")
	}
	if c.PingInterval < 0 {
		return fmt.Errorf("ping_interval 不能为负数")
	}
	return nil
}

// HTTPConfig 转换为 REST 客户端配置
func (c *Config) HTTPConfig() *sdkhttp.Config {
	hc := sdkhttp.DefaultConfig()
	hc.Timeout = c.HTTPTimeout
	hc.ProxyURL = c.Proxy
	hc.InsecureSkipVerify = c.Insecure
	return hc
}

// StreamConfig 转换为订单簿推送客户端配置
func (c *Config) StreamConfig() *websocket.Config {
	wc := websocket.DefaultConfig()
	wc.PingInterval = c.PingInterval
	wc.ProxyURL = c.Proxy
	wc.InsecureSkipVerify = c.Insecure
	return wc
}

// DeriveWSURL 从 REST 地址推导 WS 地址：https→wss，http→ws
func DeriveWSURL(apiURL string) string {
	switch {
	case strings.HasPrefix(apiURL, "https://"):
		return "wss://" + strings.TrimPrefix(apiURL, "https://")
	case strings.HasPrefix(apiURL, "http://"):
		return "ws://" + strings.TrimPrefix(apiURL, "http://")
	default:
		return apiURL
	}
}

func checkURL(name, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s 未配置", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrapf(err, "%s 无效", name)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s 无效: %q (需要 %s)", name, raw, strings.Join(schemes, "/"))
}

// getValueFromSources 配置文件值非空时覆盖当前值
func getValueFromSources(configValue, current string) string {
	if configValue != "" {
		return configValue
	}
	return current
}

// parseDuration 支持 "10s" 形式，也支持纯数字（秒）
func parseDuration(name, raw string, defaultValue time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "%s 无效", name)
	}
	return d, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseBoolEnv 解析布尔环境变量
func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
