package websocket

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// OrderBookClient 管理一个 symbol 的订单簿连接
//
// 状态机：Closed → Connecting → Open → Closed，任何错误都回到 Closed，不自动重连。
// 同一时间最多一条连接；为另一个 symbol 调用 Open 会先关闭旧连接。
// 每条连接有一个代号（gen），旧连接上迟到的消息按代号丢弃。
type OrderBookClient struct {
	baseURL string
	config  *Config
	log     *logrus.Entry

	mu       sync.Mutex
	state    State
	symbolID int
	snapshot Snapshot
	conn     *websocket.Conn
	gen      uint64
	cancel   context.CancelFunc
	subs     map[*Subscription]struct{}

	errChan chan error
}

// NewOrderBookClient 创建客户端，baseURL 形如 wss://localhost:8000
func NewOrderBookClient(baseURL string) *OrderBookClient {
	return NewOrderBookClientWithConfig(baseURL, DefaultConfig())
}

// NewOrderBookClientWithConfig 使用自定义配置创建客户端
func NewOrderBookClientWithConfig(baseURL string, config *Config) *OrderBookClient {
	if config == nil {
		config = DefaultConfig()
	}
	bufSize := config.ErrorBufferSize
	if bufSize <= 0 {
		bufSize = defaultErrorBufferSize
	}
	return &OrderBookClient{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		config:   config,
		log:      logrus.WithField("component", "orderbook-ws"),
		state:    StateClosed,
		snapshot: emptySnapshot(0),
		subs:     make(map[*Subscription]struct{}),
		errChan:  make(chan error, bufSize),
	}
}

// Open 连接到 symbolID 的订单簿
// 连接建立前 Snapshot() 返回该 symbol 的空快照。ctx 取消时连接随之关闭。
func (c *OrderBookClient) Open(ctx context.Context, symbolID int) error {
	return c.open(ctx, symbolID, nil)
}

// Subscribe 打开连接并注册回调
// onSnapshot 先以空快照调用一次，之后每条被应用的消息调用一次（在读协程上执行）
func (c *OrderBookClient) Subscribe(ctx context.Context, symbolID int, onSnapshot func(Snapshot)) (*Subscription, error) {
	sub := &Subscription{
		client:     c,
		onSnapshot: onSnapshot,
		done:       make(chan struct{}),
	}
	if err := c.open(ctx, symbolID, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (c *OrderBookClient) open(ctx context.Context, symbolID int, sub *Subscription) error {
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.endpoint(symbolID)

	c.mu.Lock()
	var prev *websocket.Conn
	if c.state != StateClosed {
		prev = c.closeLocked("切换 symbol", nil)
	}
	c.gen++
	gen := c.gen
	c.state = StateConnecting
	c.symbolID = symbolID
	c.snapshot = emptySnapshot(symbolID)
	connCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	if sub != nil {
		sub.gen = gen
		c.subs[sub] = struct{}{}
	}
	c.mu.Unlock()
	sendClose(prev)

	if sub != nil {
		sub.deliver(emptySnapshot(symbolID))
	}

	c.log.WithFields(logrus.Fields{"symbol_id": symbolID, "url": endpoint}).Debug("连接订单簿")
	conn, err := c.dial(connCtx, endpoint)
	if err != nil {
		err = fmt.Errorf("连接订单簿失败 (symbol=%d): %w", symbolID, err)
		c.mu.Lock()
		if c.gen == gen {
			c.closeLocked("连接失败", err)
		}
		c.mu.Unlock()
		cancel()
		if sub != nil {
			sub.finish(err)
		}
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		// 建立过程中被 Close 或者被新的 Open 取代
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("连接在建立过程中被关闭 (symbol=%d)", symbolID)
	}
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()

	c.log.WithField("symbol_id", symbolID).Info("订单簿已连接")

	go c.readLoop(conn, gen)
	go c.pingLoop(connCtx, conn, gen)
	go func() {
		<-connCtx.Done()
		c.mu.Lock()
		var stale *websocket.Conn
		if c.gen == gen {
			stale = c.closeLocked("context 已取消", nil)
		}
		c.mu.Unlock()
		sendClose(stale)
	}()
	return nil
}

// Close 关闭当前连接；重复调用无副作用
func (c *OrderBookClient) Close() {
	c.mu.Lock()
	conn := c.closeLocked("主动关闭", nil)
	c.mu.Unlock()
	sendClose(conn)
}

// closeLocked 需要持有 mu
// cause 记录到每个订阅上（正常关闭为 nil）；返回的连接由调用方在释放 mu 之后交给 sendClose
func (c *OrderBookClient) closeLocked(reason string, cause error) *websocket.Conn {
	if c.state == StateClosed {
		return nil
	}
	// 代号前移，旧连接上的读协程之后读到的任何消息都不会被应用
	c.gen++
	c.state = StateClosed
	c.snapshot = emptySnapshot(c.symbolID)

	conn := c.conn
	c.conn = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	for sub := range c.subs {
		sub.finish(cause)
		delete(c.subs, sub)
	}
	c.log.WithFields(logrus.Fields{"symbol_id": c.symbolID, "reason": reason}).Info("订单簿连接已关闭")
	return conn
}

// sendClose 发送关闭帧并断开连接，对端卡住时最多等一秒
func sendClose(conn *websocket.Conn) {
	if conn == nil {
		return
	}
	// WriteControl 可以与其他写操作并发调用
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	conn.Close()
}

// Snapshot 返回当前快照的副本
func (c *OrderBookClient) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.clone()
}

// State 返回连接状态
func (c *OrderBookClient) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SymbolID 返回当前（或最近一次）连接的 symbol
func (c *OrderBookClient) SymbolID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.symbolID
}

// Errors 返回错误通道（传输错误，非阻塞写入，满了丢弃）
// 通道属于整个客户端，可能留有之前连接的错误；单次订阅的结果用 Subscription.Err
func (c *OrderBookClient) Errors() <-chan error {
	return c.errChan
}

func (c *OrderBookClient) endpoint(symbolID int) string {
	return c.baseURL + fmt.Sprintf(orderBookPath, symbolID)
}

func (c *OrderBookClient) dial(ctx context.Context, endpoint string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		ReadBufferSize:   c.config.ReadBufferSize,
		WriteBufferSize:  c.config.WriteBufferSize,
		HandshakeTimeout: c.config.HandshakeTimeout,
	}
	if c.config.ProxyURL != "" {
		proxyURL, err := url.Parse(c.config.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("无效的代理 URL: %w", err)
		}
		dialer.Proxy = http.ProxyURL(proxyURL)
	}
	if c.config.InsecureSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	return conn, err
}

// readLoop 每条连接一个，连接出错或被关闭时退出
func (c *OrderBookClient) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(gen, err)
			return
		}
		c.handleMessage(gen, data)
	}
}

func (c *OrderBookClient) handleReadError(gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen {
		// 主动关闭导致的读错误
		c.mu.Unlock()
		return
	}
	symbolID := c.symbolID
	var cause error
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		cause = fmt.Errorf("订单簿连接中断 (symbol=%d): %w", symbolID, err)
	}
	conn := c.closeLocked("读取错误", cause)
	c.mu.Unlock()
	sendClose(conn)

	if cause == nil {
		c.log.WithField("symbol_id", symbolID).Info("服务端关闭了连接")
		return
	}
	c.log.WithField("symbol_id", symbolID).Warnf("订单簿读取错误: %v", err)
	select {
	case c.errChan <- cause:
	default:
	}
}

// handleMessage 解码并应用一条快照
func (c *OrderBookClient) handleMessage(gen uint64, data []byte) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		// "pong" 之类的文本
		c.log.Debugf("忽略非 JSON 消息: %.50s", trimmed)
		return
	}

	var msg message
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		c.log.Warnf("解析订单簿消息失败: %v, 数据: %.100s", err, trimmed)
		return
	}

	c.mu.Lock()
	if c.gen != gen || c.state != StateOpen {
		c.mu.Unlock()
		return
	}
	if msg.SymbolID != c.symbolID {
		current := c.symbolID
		c.mu.Unlock()
		c.log.WithFields(logrus.Fields{"symbol_id": current, "got": msg.SymbolID}).Debug("丢弃其他 symbol 的消息")
		return
	}
	snap := msg.snapshot()
	c.snapshot = snap
	subs := make([]*Subscription, 0, len(c.subs))
	for sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(snap.clone())
	}
}

// pingLoop 定期发送 "ping" 文本
// 只有本协程写数据帧，关闭帧走 WriteControl
func (c *OrderBookClient) pingLoop(ctx context.Context, conn *websocket.Conn, gen uint64) {
	if c.config.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			current := c.gen == gen
			c.mu.Unlock()
			if !current {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				// 读协程会收到同样的错误并负责关闭
				c.log.Debugf("ping 发送失败: %v", err)
				return
			}
		}
	}
}

// Subscription 一次订阅的句柄
type Subscription struct {
	client     *OrderBookClient
	onSnapshot func(Snapshot)
	gen        uint64
	done       chan struct{}
	once       sync.Once
	err        error
}

// Unsubscribe 关闭该订阅对应的连接；重复调用无副作用
func (s *Subscription) Unsubscribe() {
	c := s.client
	c.mu.Lock()
	var conn *websocket.Conn
	if _, ok := c.subs[s]; ok && c.gen == s.gen {
		conn = c.closeLocked("取消订阅", nil)
	}
	c.mu.Unlock()
	sendClose(conn)
	s.finish(nil)
}

// Done 连接关闭（主动或出错）后关闭
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err 订阅结束的原因；主动关闭或服务端正常关闭时为 nil，Done 关闭前也返回 nil
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *Subscription) deliver(snap Snapshot) {
	if s.onSnapshot == nil {
		return
	}
	select {
	case <-s.done:
		return
	default:
	}
	s.onSnapshot(snap)
}

// finish 只有第一次调用生效，err 在 done 关闭之前写入
func (s *Subscription) finish(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}
