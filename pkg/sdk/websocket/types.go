// Package websocket 提供单个股票的订单簿 WebSocket 客户端
//
// 服务端每次推送的是完整快照（前 5 档买卖盘 + 最新成交价），
// 客户端整体替换本地快照，不做增量合并。
package websocket

import (
	"slices"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

const (
	// orderBookPath 订单簿端点，%d 为 symbol id
	orderBookPath = "/ws/orderbook/%d"

	// 服务端接收循环需要客户端有流量，否则不会进入下一轮推送
	defaultPingInterval = 10 * time.Second

	defaultErrorBufferSize = 16
)

// State 连接状态
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Level 一档价格
type Level struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Snapshot 某个 symbol 的订单簿快照
// Bids 按价格降序，Asks 按价格升序（服务端保证）
type Snapshot struct {
	SymbolID int
	Bids     []Level
	Asks     []Level
	LTP      optional.Option[decimal.Decimal]
}

// emptySnapshot 连接建立前对外暴露的初始快照
func emptySnapshot(symbolID int) Snapshot {
	return Snapshot{
		SymbolID: symbolID,
		Bids:     []Level{},
		Asks:     []Level{},
		LTP:      optional.None[decimal.Decimal](),
	}
}

// IsEmpty 没有任何挂单和成交价
func (s Snapshot) IsEmpty() bool {
	return len(s.Bids) == 0 && len(s.Asks) == 0 && s.LTP.IsNone()
}

// BestBid 最高买价
func (s Snapshot) BestBid() optional.Option[Level] {
	if len(s.Bids) == 0 {
		return optional.None[Level]()
	}
	return optional.Some(s.Bids[0])
}

// BestAsk 最低卖价
func (s Snapshot) BestAsk() optional.Option[Level] {
	if len(s.Asks) == 0 {
		return optional.None[Level]()
	}
	return optional.Some(s.Asks[0])
}

func (s Snapshot) clone() Snapshot {
	s.Bids = slices.Clone(s.Bids)
	s.Asks = slices.Clone(s.Asks)
	return s
}

// message 服务端推送格式
// {"symbol_id": 1, "order_book": {"bids": [...], "asks": [...]}, "ltp": 10.5}
type message struct {
	SymbolID  int `json:"symbol_id"`
	OrderBook struct {
		Bids []Level `json:"bids"`
		Asks []Level `json:"asks"`
	} `json:"order_book"`
	LTP optional.Option[decimal.Decimal] `json:"ltp"`
}

func (m *message) snapshot() Snapshot {
	snap := Snapshot{
		SymbolID: m.SymbolID,
		Bids:     m.OrderBook.Bids,
		Asks:     m.OrderBook.Asks,
		LTP:      m.LTP,
	}
	if snap.Bids == nil {
		snap.Bids = []Level{}
	}
	if snap.Asks == nil {
		snap.Asks = []Level{}
	}
	return snap
}

// Config 客户端配置
type Config struct {
	ProxyURL string // 代理 URL（可选）

	// 心跳设置
	PingInterval time.Duration // 发送 "ping" 文本的间隔，<=0 表示不发送

	ErrorBufferSize int // 错误通道缓冲区大小

	// 连接设置
	ReadBufferSize     int
	WriteBufferSize    int
	HandshakeTimeout   time.Duration
	InsecureSkipVerify bool // 本地开发后端使用自签名证书
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		PingInterval:     defaultPingInterval,
		ErrorBufferSize:  defaultErrorBufferSize,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: 15 * time.Second,
	}
}
