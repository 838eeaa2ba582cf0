// Package api 交易后端的业务接口
//
// 每个方法对应一个后端端点，全部通过 pkg/sdk/http 的 Client 发出；
// 需要校验的输入（注册、登录、下单）在发请求前校验，失败时不会访问网络。
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/betbot/tradeweb/pkg/cache"
	"github.com/betbot/tradeweb/pkg/sdk/apierr"
	sdkhttp "github.com/betbot/tradeweb/pkg/sdk/http"
	"github.com/betbot/tradeweb/pkg/session"
)

// defaultCancelCacheTTL 撤单结果的缓存时间
const defaultCancelCacheTTL = 5 * time.Minute

// ErrSymbolNotFound FindSymbol 找不到对应 id
var ErrSymbolNotFound = errors.New("Symbol not found")

// Service 业务接口，CLI 依赖它而不是具体实现
type Service interface {
	Register(ctx context.Context, r Registration) (*User, error)
	Login(ctx context.Context, c Credentials) (*Token, error)
	LoginAndStore(ctx context.Context, c Credentials) error
	Logout() error
	GetUserPage(ctx context.Context) (*User, error)

	GetMarket(ctx context.Context) ([]Symbol, error)
	FindSymbol(ctx context.Context, symbolID int) (*Symbol, error)

	GetUserOrders(ctx context.Context) ([]Order, error)
	GetAllOrders(ctx context.Context) ([]Order, error)
	GetTicker(ctx context.Context, symbolID int) ([]Order, error)
	PostNewOrder(ctx context.Context, o NewOrder) (*Order, error)
	CancelActiveOrder(ctx context.Context, orderID int) (*Order, error)

	GetUserTrades(ctx context.Context) ([]Trade, error)
	GetAllTrades(ctx context.Context) ([]Trade, error)
	GetSymbolTrades(ctx context.Context, symbolID int) ([]Trade, error)
}

var _ Service = (*Client)(nil)

// Config 业务客户端配置
type Config struct {
	HTTP           *sdkhttp.Config
	CancelCacheTTL time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		HTTP:           sdkhttp.DefaultConfig(),
		CancelCacheTTL: defaultCancelCacheTTL,
	}
}

// Client 业务客户端
type Client struct {
	http *sdkhttp.Client
	log  *logrus.Entry

	// 同一订单的并发撤单合并为一次 DELETE，成功结果缓存下来
	cancelGroup singleflight.Group
	cancelled   *cache.InMemoryCache[int, Order]
}

// NewClient 创建业务客户端；store 为 nil 时使用内存存储
func NewClient(baseURL string, store session.Store) *Client {
	return NewClientWithConfig(baseURL, store, DefaultConfig())
}

// NewClientWithConfig 使用自定义配置创建业务客户端
func NewClientWithConfig(baseURL string, store session.Store, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	ttl := config.CancelCacheTTL
	if ttl <= 0 {
		ttl = defaultCancelCacheTTL
	}
	return &Client{
		http:      sdkhttp.NewClientWithConfig(baseURL, store, config.HTTP),
		log:       logrus.WithField("component", "api"),
		cancelled: cache.NewInMemoryCache[int, Order](ttl),
	}
}

// Session 返回凭证存储
func (c *Client) Session() session.Store {
	return c.http.Session()
}

// Close 释放后台资源
func (c *Client) Close() {
	c.cancelled.Close()
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.request(ctx, http.MethodGet, path, nil, true, out)
}

// request 会话过期时丢弃撤单缓存，重新登录的可能是另一个用户
func (c *Client) request(ctx context.Context, method, path string, body any, requiresAuth bool, out any) error {
	err := c.http.Request(ctx, method, path, body, requiresAuth, out)
	if apierr.IsSessionExpired(err) {
		c.cancelled.Clear()
	}
	return err
}

// GetMarket 所有可交易股票
func (c *Client) GetMarket(ctx context.Context) ([]Symbol, error) {
	var symbols []Symbol
	if err := c.get(ctx, pathSymbols, &symbols); err != nil {
		return nil, err
	}
	return symbols, nil
}

// FindSymbol 在 GetMarket 的结果中按 id 查找
func (c *Client) FindSymbol(ctx context.Context, symbolID int) (*Symbol, error) {
	symbols, err := c.GetMarket(ctx)
	if err != nil {
		return nil, err
	}
	for i := range symbols {
		if symbols[i].ID == symbolID {
			return &symbols[i], nil
		}
	}
	return nil, fmt.Errorf("%w: id=%d", ErrSymbolNotFound, symbolID)
}

// GetUserTrades 当前用户的成交
func (c *Client) GetUserTrades(ctx context.Context) ([]Trade, error) {
	return c.listTrades(ctx, pathMyTrades)
}

// GetAllTrades 全部成交（后端要求管理员）
func (c *Client) GetAllTrades(ctx context.Context) ([]Trade, error) {
	return c.listTrades(ctx, pathTrades)
}

// GetSymbolTrades 某个股票的成交
func (c *Client) GetSymbolTrades(ctx context.Context, symbolID int) ([]Trade, error) {
	return c.listTrades(ctx, fmt.Sprintf(pathTradesBySymbol, symbolID))
}

func (c *Client) listTrades(ctx context.Context, path string) ([]Trade, error) {
	var trades []Trade
	if err := c.get(ctx, path, &trades); err != nil {
		return nil, err
	}
	return trades, nil
}
