// Package fakebackend 内存版交易后端，按线上接口格式应答
//
// 用于测试和本地联调，没有撮合逻辑；订单状态和成交通过 SetOrderStatus / AddTrade 手动设置。
package fakebackend

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// User 后端用户
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	password string
}

// Symbol 股票
type Symbol struct {
	ID     int    `json:"id"`
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

// Order 订单
type Order struct {
	ID        int     `json:"id"`
	UserID    int     `json:"user_id"`
	SymbolID  int     `json:"symbol_id"`
	Ticker    string  `json:"ticker"`
	Side      string  `json:"side"`
	Quantity  int     `json:"quantity"`
	ExecQty   int     `json:"exec_qty"`
	Price     float64 `json:"price"`
	Type      string  `json:"type"`
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
}

// Trade 成交
type Trade struct {
	ID            int     `json:"id"`
	BuyOrderID    int     `json:"buy_order_id"`
	BuyUserID     int     `json:"buy_user_id"`
	SellOrderID   int     `json:"sell_order_id"`
	SellUserID    int     `json:"sell_user_id"`
	SymbolID      int     `json:"symbol_id"`
	Ticker        string  `json:"ticker"`
	TradePrice    float64 `json:"trade_price"`
	TradeQuantity float64 `json:"trade_quantity"`
	Timestamp     string  `json:"timestamp"`
}

// Option 构造选项
type Option func(*Server)

// WithBroadcastInterval 订单簿定时推送间隔，0 表示只在连接时和 Broadcast 时推送
func WithBroadcastInterval(d time.Duration) Option {
	return func(s *Server) { s.interval = d }
}

// WithoutDefaults 不创建默认股票和管理员
func WithoutDefaults() Option {
	return func(s *Server) { s.noDefaults = true }
}

// Server 内存后端
type Server struct {
	mu      sync.RWMutex
	users   map[string]*User // username -> user
	tokens  map[string]string
	symbols []Symbol
	orders  []*Order
	trades  []Trade
	nextID  map[string]int

	hitsMu sync.Mutex
	hits   map[string]int

	interval   time.Duration
	noDefaults bool

	upgrader websocket.Upgrader
	wsMu     sync.Mutex
	wsConns  map[int]map[*wsConn]struct{}

	stopCh   chan struct{}
	stopOnce sync.Once
	now      func() time.Time
	log      *logrus.Entry
}

// New 创建后端；默认包含 stk1/stk2/stk3 三只股票和 admin1 管理员
func New(opts ...Option) *Server {
	s := &Server{
		users:    make(map[string]*User),
		tokens:   make(map[string]string),
		nextID:   make(map[string]int),
		hits:     make(map[string]int),
		interval: 2 * time.Second,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		wsConns:  make(map[int]map[*wsConn]struct{}),
		stopCh:   make(chan struct{}),
		now:      time.Now,
		log:      logrus.WithField("component", "fakebackend"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if !s.noDefaults {
		s.AddSymbol("stk1", "Stock1")
		s.AddSymbol("stk2", "Stock2")
		s.AddSymbol("stk3", "Stock3")
		s.AddUser("admin1", "admin1@mail.com", "admin1", "admin")
	}
	if s.interval > 0 {
		go s.broadcastLoop()
	}
	return s
}

// Close 断开所有 WebSocket 并停止推送
func (s *Server) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	for _, conns := range s.wsConns {
		for c := range conns {
			c.conn.Close()
		}
	}
	s.wsConns = make(map[int]map[*wsConn]struct{})
}

// Handler 返回 gin 路由
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.countHits)

	r.GET("/", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "API is running!"}) })

	auth := r.Group("/auth")
	auth.POST("/register", s.handleRegister)
	auth.POST("/login", s.handleLogin)
	auth.GET("/me", s.requireUser, s.handleMe)

	r.GET("/symbols", s.requireUser, s.handleSymbols)

	orders := r.Group("/orders", s.requireUser)
	orders.GET("", s.handleAllOrders)
	orders.GET("/me", s.handleMyOrders)
	orders.POST("/new", s.handleNewOrder)
	orders.DELETE("/cancel/:id", s.handleCancel)
	orders.GET("/symbol/:id", s.handleOrdersBySymbol)

	trades := r.Group("/trades")
	trades.GET("", s.requireUser, s.handleAllTrades)
	trades.GET("/me", s.requireUser, s.handleMyTrades)
	trades.GET("/symbol/:id", s.handleTradesBySymbol)

	r.GET("/ws/orderbook/:id", s.handleOrderBookWS)
	return r
}

func (s *Server) countHits(c *gin.Context) {
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	s.hitsMu.Lock()
	s.hits[c.Request.Method+" "+route]++
	s.hitsMu.Unlock()
	c.Next()
}

// Hits 某个路由被请求的次数，route 使用 gin 的模式，例如 "/orders/cancel/:id"
func (s *Server) Hits(method, route string) int {
	s.hitsMu.Lock()
	defer s.hitsMu.Unlock()
	return s.hits[strings.ToUpper(method)+" "+route]
}

func (s *Server) id(kind string) int {
	s.nextID[kind]++
	return s.nextID[kind]
}

func (s *Server) timestamp() string {
	// 与后端一致：不带时区的 UTC 时间
	return s.now().UTC().Format("2006-01-02T15:04:05.000000")
}

// AddUser 直接创建用户，返回 id
func (s *Server) AddUser(username, email, password, role string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(username, email, password, role).ID
}

func (s *Server) addUserLocked(username, email, password, role string) *User {
	u := &User{ID: s.id("user"), Username: username, Email: email, Role: role, password: password}
	s.users[username] = u
	return u
}

// AddSymbol 创建股票，返回 id
func (s *Server) AddSymbol(ticker, name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sym := Symbol{ID: s.id("symbol"), Ticker: ticker, Name: name}
	s.symbols = append(s.symbols, sym)
	return sym.ID
}

// IssueToken 为用户签发 token（跳过登录）
func (s *Server) IssueToken(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := uuid.NewString()
	s.tokens[token] = username
	return token
}

// ExpireSessions 作废所有 token，之后的认证请求返回 401
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]string)
}

// SetOrderStatus 手动修改订单状态
func (s *Server) SetOrderStatus(orderID int, status string, execQty int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID == orderID {
			o.Status = status
			o.ExecQty = execQty
			return true
		}
	}
	return false
}

// AddTrade 记录一笔成交，ID、ticker、时间自动填充
func (s *Server) AddTrade(t Trade) Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.id("trade")
	if t.Ticker == "" {
		if sym, ok := s.symbolLocked(t.SymbolID); ok {
			t.Ticker = sym.Ticker
		}
	}
	if t.Timestamp == "" {
		t.Timestamp = s.timestamp()
	}
	s.trades = append(s.trades, t)
	return t
}

// Orders 返回所有订单的副本
func (s *Server) Orders() []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, *o)
	}
	return out
}

func (s *Server) symbolLocked(id int) (Symbol, bool) {
	for _, sym := range s.symbols {
		if sym.ID == id {
			return sym, true
		}
	}
	return Symbol{}, false
}
