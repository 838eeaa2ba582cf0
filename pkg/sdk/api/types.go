package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Role 用户角色
type Role string

const (
	RoleTrader Role = "trader"
	RoleAdmin  Role = "admin"
)

// User /auth/me、/auth/register 的返回
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role,omitempty"`
}

// IsAdmin 只用于界面上隐藏管理命令，权限以后端为准
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Token 登录返回的凭证
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Symbol 可交易的股票
type Symbol struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
}

// Side 买卖方向（线上格式 B/S）
type Side string

const (
	SideBuy  Side = "B"
	SideSell Side = "S"
)

// Label 便于展示
func (s Side) Label() string {
	switch s {
	case SideBuy, "buy":
		return "Buy"
	case SideSell, "sell":
		return "Sell"
	default:
		return string(s)
	}
}

// OrderType 订单类型（线上格式 L/M）
type OrderType string

const (
	OrderTypeLimit  OrderType = "L"
	OrderTypeMarket OrderType = "M"
)

func (t OrderType) Label() string {
	switch t {
	case OrderTypeLimit:
		return "Limit"
	case OrderTypeMarket:
		return "Market"
	default:
		return string(t)
	}
}

// OrderStatus 订单状态
type OrderStatus string

const (
	StatusPending         OrderStatus = "pending"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	// StatusExecuted 部分后端版本用它表示完全成交
	StatusExecuted  OrderStatus = "executed"
	StatusCancelled OrderStatus = "cancelled"
)

// IsFilled 完全成交；filled 和 executed 都算
func (s OrderStatus) IsFilled() bool {
	return s == StatusFilled || s == StatusExecuted
}

// IsActive 仍在订单簿上
func (s OrderStatus) IsActive() bool {
	return s == StatusPending || s == StatusPartiallyFilled
}

// Cancellable 后端只允许撤销 pending 订单
func (s OrderStatus) Cancellable() bool {
	return s == StatusPending
}

// Order 订单
type Order struct {
	ID        int             `json:"id"`
	UserID    int             `json:"user_id,omitempty"`
	SymbolID  int             `json:"symbol_id"`
	Ticker    string          `json:"ticker"`
	Side      Side            `json:"side"`
	Quantity  int             `json:"quantity"`
	ExecQty   int             `json:"exec_qty"`
	Price     decimal.Decimal `json:"price"`
	Type      OrderType       `json:"type"`
	Status    OrderStatus     `json:"status"`
	Timestamp Timestamp       `json:"timestamp"`
}

// Remaining 未成交数量
func (o Order) Remaining() int {
	if o.ExecQty >= o.Quantity {
		return 0
	}
	return o.Quantity - o.ExecQty
}

// Trade 成交记录
type Trade struct {
	ID            int             `json:"id"`
	SymbolID      int             `json:"symbol_id"`
	Ticker        string          `json:"ticker"`
	BuyOrderID    int             `json:"buy_order_id"`
	SellOrderID   int             `json:"sell_order_id"`
	BuyUserID     int             `json:"buy_user_id"`
	SellUserID    int             `json:"sell_user_id"`
	TradePrice    decimal.Decimal `json:"trade_price"`
	TradeQuantity decimal.Decimal `json:"trade_quantity"`
	Timestamp     Timestamp       `json:"timestamp"`
}

// Registration 注册请求
type Registration struct {
	Username string `json:"username" validate:"username"`
	Email    string `json:"email" validate:"simple_email"`
	Password string `json:"password" validate:"min=6"`
}

// Credentials 登录请求
type Credentials struct {
	Username string `json:"username" validate:"username"`
	Password string `json:"password" validate:"min=6"`
}

// NewOrder 下单请求
// 市价单忽略 Price，发送时固定为 0
type NewOrder struct {
	SymbolID int             `json:"symbol_id" validate:"gt=0"`
	Side     Side            `json:"side" validate:"oneof=B S"`
	Type     OrderType       `json:"type" validate:"oneof=L M"`
	Quantity int             `json:"quantity" validate:"gt=0"`
	Price    decimal.Decimal `json:"price"`
}

// orderRequest /orders/new 的请求体，price 以 JSON 数字发送
type orderRequest struct {
	SymbolID int         `json:"symbol_id"`
	Side     Side        `json:"side"`
	Type     OrderType   `json:"type"`
	Quantity int         `json:"quantity"`
	Price    json.Number `json:"price"`
}

func (o NewOrder) request() orderRequest {
	price := o.Price
	if o.Type == OrderTypeMarket {
		price = decimal.Zero
	}
	return orderRequest{
		SymbolID: o.SymbolID,
		Side:     o.Side,
		Type:     o.Type,
		Quantity: o.Quantity,
		Price:    json.Number(price.String()),
	}
}

// Timestamp 兼容后端不带时区的 ISO 时间（按 UTC 处理）
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp 必须是字符串: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("无法解析 timestamp: %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
