package fakebackend

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const ctxUser = "fakebackend.user"

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

func detail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

// invalid 校验失败，格式与 FastAPI 的 422 一致
func invalid(c *gin.Context, field, msg string) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
		"detail": []gin.H{{"loc": []string{"body", field}, "msg": msg, "type": "value_error"}},
	})
}

func (s *Server) requireUser(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		detail(c, http.StatusUnauthorized, "Not authenticated")
		return
	}
	s.mu.RLock()
	username, found := s.tokens[token]
	var user *User
	if found {
		user = s.users[username]
	}
	s.mu.RUnlock()
	if user == nil {
		detail(c, http.StatusUnauthorized, "Invalid token")
		return
	}
	c.Set(ctxUser, user)
	c.Next()
}

func currentUser(c *gin.Context) *User {
	return c.MustGet(ctxUser).(*User)
}

func pathID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		invalid(c, "id", "value is not a valid integer")
		return 0, false
	}
	return id, true
}

func (s *Server) handleRegister(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalid(c, "body", err.Error())
		return
	}
	switch {
	case !usernamePattern.MatchString(req.Username):
		invalid(c, "username", "string does not match regex")
		return
	case !emailPattern.MatchString(req.Email):
		invalid(c, "email", "value is not a valid email address")
		return
	case len([]rune(req.Password)) < 6:
		invalid(c, "password", "String should have at least 6 characters")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[req.Username]; exists {
		detail(c, http.StatusBadRequest, "Username already registered")
		return
	}
	u := s.addUserLocked(req.Username, req.Email, req.Password, "trader")
	c.JSON(http.StatusOK, u)
}

func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalid(c, "body", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[req.Username]
	if !ok || u.password != req.Password {
		detail(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	token := uuid.NewString()
	s.tokens[token] = u.Username
	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
}

func (s *Server) handleMe(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

func (s *Server) handleSymbols(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c.JSON(http.StatusOK, append([]Symbol{}, s.symbols...))
}

func (s *Server) listOrders(c *gin.Context, keep func(*Order) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, *o)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleAllOrders(c *gin.Context) {
	s.listOrders(c, func(*Order) bool { return true })
}

func (s *Server) handleMyOrders(c *gin.Context) {
	uid := currentUser(c).ID
	s.listOrders(c, func(o *Order) bool { return o.UserID == uid })
}

func (s *Server) handleOrdersBySymbol(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	s.listOrders(c, func(o *Order) bool { return o.SymbolID == id })
}

func (s *Server) handleNewOrder(c *gin.Context) {
	var req struct {
		SymbolID int     `json:"symbol_id"`
		Side     string  `json:"side"`
		Type     string  `json:"type"`
		Quantity int     `json:"quantity"`
		Price    float64 `json:"price"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalid(c, "body", err.Error())
		return
	}
	user := currentUser(c)

	s.mu.Lock()
	sym, ok := s.symbolLocked(req.SymbolID)
	if !ok {
		s.mu.Unlock()
		detail(c, http.StatusNotFound, "Symbol not found")
		return
	}
	o := &Order{
		ID:        s.id("order"),
		UserID:    user.ID,
		SymbolID:  sym.ID,
		Ticker:    sym.Ticker,
		Side:      req.Side,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Type:      req.Type,
		Status:    "pending",
		Timestamp: s.timestamp(),
	}
	s.orders = append(s.orders, o)
	out := *o
	s.mu.Unlock()

	c.JSON(http.StatusOK, out)
}

func (s *Server) handleCancel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	uid := currentUser(c).ID

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID != id || o.UserID != uid {
			continue
		}
		if o.Status != "pending" {
			detail(c, http.StatusBadRequest, "Only pending orders can be cancelled")
			return
		}
		o.Status = "cancelled"
		c.JSON(http.StatusOK, *o)
		return
	}
	detail(c, http.StatusNotFound, "Order not found")
}

func (s *Server) listTrades(c *gin.Context, keep func(Trade) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Trade, 0, len(s.trades))
	for _, t := range s.trades {
		if keep(t) {
			out = append(out, t)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleAllTrades(c *gin.Context) {
	if currentUser(c).Role != "admin" {
		detail(c, http.StatusForbidden, "Not authorized to access all trades")
		return
	}
	s.listTrades(c, func(Trade) bool { return true })
}

func (s *Server) handleMyTrades(c *gin.Context) {
	uid := currentUser(c).ID
	s.listTrades(c, func(t Trade) bool { return t.BuyUserID == uid || t.SellUserID == uid })
}

func (s *Server) handleTradesBySymbol(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	s.listTrades(c, func(t Trade) bool { return t.SymbolID == id })
}
