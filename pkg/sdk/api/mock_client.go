package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/betbot/tradeweb/pkg/session"
)

// MockClient is an in-memory Service for testing views and commands.
// It applies the same client-side validation as Client.
type MockClient struct {
	mu sync.RWMutex

	// Response data
	Me      *User
	Token   *Token
	Symbols []Symbol
	Orders  []Order
	Trades  []Trade

	// Session receives the token on LoginAndStore
	Session session.Store

	// Call tracking
	Calls map[string]int

	// Error injection
	ErrorOnNext map[string]error

	nextOrderID int
}

var _ Service = (*MockClient)(nil)

// NewMockClient creates a mock with the default symbols
func NewMockClient() *MockClient {
	return &MockClient{
		Me:    &User{ID: 1, Username: "trader1", Email: "trader1@mail.com", Role: RoleTrader},
		Token: &Token{AccessToken: "mock-token", TokenType: "bearer"},
		Symbols: []Symbol{
			{ID: 1, Name: "Stock1", Ticker: "stk1"},
			{ID: 2, Name: "Stock2", Ticker: "stk2"},
			{ID: 3, Name: "Stock3", Ticker: "stk3"},
		},
		Session:     session.NewMemoryStore(),
		Calls:       make(map[string]int),
		ErrorOnNext: make(map[string]error),
		nextOrderID: 1,
	}
}

func (m *MockClient) trackCall(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls[name]++
	if err, ok := m.ErrorOnNext[name]; ok {
		delete(m.ErrorOnNext, name)
		return err
	}
	return nil
}

// CallCount returns how many times name was called
func (m *MockClient) CallCount(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Calls[name]
}

func (m *MockClient) Register(ctx context.Context, r Registration) (*User, error) {
	if err := ValidateRegistration(r); err != nil {
		return nil, err
	}
	if err := m.trackCall("Register"); err != nil {
		return nil, err
	}
	return &User{ID: 2, Username: r.Username, Email: r.Email, Role: RoleTrader}, nil
}

func (m *MockClient) Login(ctx context.Context, c Credentials) (*Token, error) {
	if err := ValidateUser(c); err != nil {
		return nil, err
	}
	if err := m.trackCall("Login"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t := *m.Token
	return &t, nil
}

func (m *MockClient) LoginAndStore(ctx context.Context, c Credentials) error {
	token, err := m.Login(ctx, c)
	if err != nil {
		return err
	}
	return m.Session.Set(token.AccessToken)
}

func (m *MockClient) Logout() error {
	if err := m.trackCall("Logout"); err != nil {
		return err
	}
	return m.Session.Clear()
}

func (m *MockClient) GetUserPage(ctx context.Context) (*User, error) {
	if err := m.trackCall("GetUserPage"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u := *m.Me
	return &u, nil
}

func (m *MockClient) GetMarket(ctx context.Context) ([]Symbol, error) {
	if err := m.trackCall("GetMarket"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Symbol(nil), m.Symbols...), nil
}

func (m *MockClient) FindSymbol(ctx context.Context, symbolID int) (*Symbol, error) {
	symbols, err := m.GetMarket(ctx)
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

func (m *MockClient) GetUserOrders(ctx context.Context) ([]Order, error) {
	if err := m.trackCall("GetUserOrders"); err != nil {
		return nil, err
	}
	return m.filterOrders(func(o Order) bool { return o.UserID == m.Me.ID }), nil
}

func (m *MockClient) GetAllOrders(ctx context.Context) ([]Order, error) {
	if err := m.trackCall("GetAllOrders"); err != nil {
		return nil, err
	}
	return m.filterOrders(func(Order) bool { return true }), nil
}

func (m *MockClient) GetTicker(ctx context.Context, symbolID int) ([]Order, error) {
	if err := m.trackCall("GetTicker"); err != nil {
		return nil, err
	}
	return m.filterOrders(func(o Order) bool { return o.SymbolID == symbolID }), nil
}

func (m *MockClient) filterOrders(keep func(Order) bool) []Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Order, 0, len(m.Orders))
	for _, o := range m.Orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}

func (m *MockClient) PostNewOrder(ctx context.Context, o NewOrder) (*Order, error) {
	if err := ValidateOrder(o); err != nil {
		return nil, err
	}
	if err := m.trackCall("PostNewOrder"); err != nil {
		return nil, err
	}
	req := o.request()
	price, _ := decimal.NewFromString(req.Price.String())

	m.mu.Lock()
	defer m.mu.Unlock()
	order := Order{
		ID:       m.nextOrderID,
		UserID:   m.Me.ID,
		SymbolID: o.SymbolID,
		Side:     o.Side,
		Quantity: o.Quantity,
		Price:    price,
		Type:     o.Type,
		Status:   StatusPending,
	}
	m.nextOrderID++
	m.Orders = append(m.Orders, order)
	return &order, nil
}

func (m *MockClient) CancelActiveOrder(ctx context.Context, orderID int) (*Order, error) {
	if err := m.trackCall("CancelActiveOrder"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Orders {
		if m.Orders[i].ID == orderID {
			m.Orders[i].Status = StatusCancelled
			o := m.Orders[i]
			return &o, nil
		}
	}
	return nil, fmt.Errorf("Order not found")
}

func (m *MockClient) GetUserTrades(ctx context.Context) ([]Trade, error) {
	if err := m.trackCall("GetUserTrades"); err != nil {
		return nil, err
	}
	return m.filterTrades(func(t Trade) bool { return t.BuyUserID == m.Me.ID || t.SellUserID == m.Me.ID }), nil
}

func (m *MockClient) GetAllTrades(ctx context.Context) ([]Trade, error) {
	if err := m.trackCall("GetAllTrades"); err != nil {
		return nil, err
	}
	return m.filterTrades(func(Trade) bool { return true }), nil
}

func (m *MockClient) GetSymbolTrades(ctx context.Context, symbolID int) ([]Trade, error) {
	if err := m.trackCall("GetSymbolTrades"); err != nil {
		return nil, err
	}
	return m.filterTrades(func(t Trade) bool { return t.SymbolID == symbolID }), nil
}

func (m *MockClient) filterTrades(keep func(Trade) bool) []Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Trade, 0, len(m.Trades))
	for _, t := range m.Trades {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}
