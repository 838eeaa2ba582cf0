package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/tradeweb/pkg/sdk/apierr"
	"github.com/betbot/tradeweb/pkg/session"
)

// HeaderRequestID 每个请求附带的追踪 ID
const HeaderRequestID = "X-Request-ID"

// Config HTTP 客户端配置
type Config struct {
	// Timeout 单次请求超时；0 表示不设置，由调用方通过 context 控制
	Timeout   time.Duration
	ProxyURL  string
	UserAgent string
	// InsecureSkipVerify 本地开发后端使用自签名证书
	InsecureSkipVerify bool
}

// DefaultConfig 返回默认配置（无超时、无重试）
func DefaultConfig() *Config {
	return &Config{
		UserAgent: "tradeweb-go-sdk",
	}
}

// Request 一次 REST 调用的描述
type Request struct {
	Method       string
	Path         string
	Body         any
	RequiresAuth bool
}

// Client 交易后端 REST 客户端
// 不做任何自动重试：POST 不保证幂等，重试策略交给调用方
type Client struct {
	client *resty.Client
	store  session.Store
	config *Config
	log    *logrus.Entry
}

// NewClient 创建客户端；store 为 nil 时使用内存存储
func NewClient(host string, store session.Store) *Client {
	return NewClientWithConfig(host, store, DefaultConfig())
}

// NewClientWithConfig 使用自定义配置创建客户端
func NewClientWithConfig(host string, store session.Store, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if store == nil {
		store = session.NewMemoryStore()
	}
	host = strings.TrimSuffix(host, "/")

	client := resty.New().
		SetBaseURL(host).
		SetRetryCount(0)
	if config.Timeout > 0 {
		client.SetTimeout(config.Timeout)
	}
	if config.ProxyURL != "" {
		client.SetProxy(config.ProxyURL)
	}
	if config.InsecureSkipVerify {
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec
	}

	return &Client{
		client: client,
		store:  store,
		config: config,
		log:    logrus.WithFields(logrus.Fields{"component": "http", "host": host}),
	}
}

// Session 返回注入的凭证存储
func (c *Client) Session() session.Store {
	return c.store
}

// BaseURL 返回后端地址
func (c *Client) BaseURL() string {
	return c.client.BaseURL
}

// Request 发起一次调用，成功时把 JSON 解码到 out（out 可为 nil）
func (c *Client) Request(ctx context.Context, method, path string, body any, requiresAuth bool, out any) error {
	return c.Do(ctx, Request{
		Method:       method,
		Path:         path,
		Body:         body,
		RequiresAuth: requiresAuth,
	}, out)
}

// Do 执行请求描述
//
//   - 需要认证的请求返回 401：清除 token，返回 *apierr.SessionExpiredError，不解析 body
//   - 其他非 2xx：返回 *apierr.RequestError，原因取自 {"detail": ...}，否则为通用原因
//   - 2xx：解码 JSON，失败返回 *apierr.DecodeError
//   - 网络错误：返回 Status=0 的 *apierr.RequestError
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	method := strings.ToUpper(req.Method)
	switch method {
	case http.MethodGet, http.MethodDelete:
		if req.Body != nil {
			return fmt.Errorf("%s %s: 请求不能携带 body", method, req.Path)
		}
	case http.MethodPost:
	default:
		return fmt.Errorf("unsupported method: %s", req.Method)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	requestID := uuid.NewString()
	rc := c.newRequest(ctx, requestID)
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return errors.Wrapf(err, "序列化请求体失败 %s %s", method, req.Path)
		}
		rc.SetBody(b)
	}
	if req.RequiresAuth {
		if token, ok := c.store.Get(); ok {
			rc.SetAuthToken(token)
		}
	}

	entry := c.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"method":     method,
		"path":       req.Path,
	})

	start := time.Now()
	resp, err := rc.Execute(method, req.Path)
	cost := time.Since(start)
	if err != nil {
		entry.WithField("cost", cost).Warnf("请求失败: %v", err)
		return &apierr.RequestError{
			Method: method,
			Path:   req.Path,
			Reason: "Network error: " + err.Error(),
			Cause:  err,
		}
	}

	status := resp.StatusCode()
	entry.WithFields(logrus.Fields{"status": status, "cost": cost}).Debug("请求完成")

	// 未认证接口（如登录）的 401 是普通业务错误，例如 "Invalid credentials"
	if status == http.StatusUnauthorized && req.RequiresAuth {
		if err := c.store.Clear(); err != nil {
			entry.Errorf("清除 token 失败: %v", err)
		}
		entry.Warn("会话已过期，token 已清除")
		return &apierr.SessionExpiredError{Method: method, Path: req.Path}
	}

	body := resp.Body()
	if !resp.IsSuccess() {
		return &apierr.RequestError{
			Method: method,
			Path:   req.Path,
			Status: status,
			Reason: ParseErrorReason(body),
		}
	}

	return decodeBody(req.Path, body, out)
}

// newRequest 设置本次请求的默认 Header（不改 client 级 Header）
func (c *Client) newRequest(ctx context.Context, requestID string) *resty.Request {
	r := c.client.R().SetContext(ctx)
	r.SetHeader("Content-Type", "application/json")
	r.SetHeader("Accept", "application/json")
	r.SetHeader(HeaderRequestID, requestID)
	if c.config.UserAgent != "" {
		r.SetHeader("User-Agent", c.config.UserAgent)
	}
	return r
}

func decodeBody(path string, body []byte, out any) error {
	trimmed := bytes.TrimSpace(body)
	if out == nil {
		if len(trimmed) > 0 && !json.Valid(trimmed) {
			return &apierr.DecodeError{Path: path, Body: string(body), Cause: errors.New("invalid JSON")}
		}
		return nil
	}
	if len(trimmed) == 0 {
		return &apierr.DecodeError{Path: path, Cause: errors.New("empty body")}
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return &apierr.DecodeError{Path: path, Body: string(body), Cause: err}
	}
	return nil
}

// ParseErrorReason 从错误响应体中提取 detail
// FastAPI 的校验错误 detail 是数组，取第一条的 msg
func ParseErrorReason(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return apierr.ReasonRequestFailed
	}

	var detail string
	if err := json.Unmarshal(payload.Detail, &detail); err == nil && detail != "" {
		return detail
	}

	var list []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &list); err == nil && len(list) > 0 && list[0].Msg != "" {
		return list[0].Msg
	}
	return apierr.ReasonRequestFailed
}
