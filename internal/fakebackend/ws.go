package fakebackend

import (
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// 每边最多推送的档位数
const bookDepth = 5

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(v)
}

// BookLevel 一档（同价格的剩余数量合计）
type BookLevel struct {
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// BookMessage 推送给客户端的完整快照
type BookMessage struct {
	SymbolID  int `json:"symbol_id"`
	OrderBook struct {
		Bids []BookLevel `json:"bids"`
		Asks []BookLevel `json:"asks"`
	} `json:"order_book"`
	LTP *float64 `json:"ltp"`
}

// Snapshot 当前的订单簿快照：只统计未完成的限价单，买盘价格降序，卖盘价格升序
func (s *Server) Snapshot(symbolID int) BookMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bids := map[float64]int{}
	asks := map[float64]int{}
	for _, o := range s.orders {
		if o.SymbolID != symbolID || o.Type != "L" {
			continue
		}
		if o.Status != "pending" && o.Status != "partially_filled" {
			continue
		}
		switch o.Side {
		case "B":
			bids[o.Price] += o.Quantity - o.ExecQty
		case "S":
			asks[o.Price] += o.Quantity - o.ExecQty
		}
	}

	msg := BookMessage{SymbolID: symbolID}
	msg.OrderBook.Bids = levels(bids, true)
	msg.OrderBook.Asks = levels(asks, false)

	for i := len(s.trades) - 1; i >= 0; i-- {
		if s.trades[i].SymbolID == symbolID {
			ltp := s.trades[i].TradePrice
			msg.LTP = &ltp
			break
		}
	}
	return msg
}

func levels(agg map[float64]int, desc bool) []BookLevel {
	out := make([]BookLevel, 0, len(agg))
	for price, qty := range agg {
		out = append(out, BookLevel{Price: price, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	if len(out) > bookDepth {
		out = out[:bookDepth]
	}
	return out
}

func (s *Server) handleOrderBookWS(c *gin.Context) {
	symbolID, ok := pathID(c)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warnf("WebSocket 升级失败: %v", err)
		return
	}
	wc := &wsConn{conn: conn}

	s.wsMu.Lock()
	if s.wsConns[symbolID] == nil {
		s.wsConns[symbolID] = make(map[*wsConn]struct{})
	}
	s.wsConns[symbolID][wc] = struct{}{}
	s.wsMu.Unlock()

	if err := wc.writeJSON(s.Snapshot(symbolID)); err != nil {
		s.drop(symbolID, wc)
		return
	}

	// 客户端的任何消息（例如 "ping"）都只用于保活
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.drop(symbolID, wc)
			return
		}
	}
}

func (s *Server) drop(symbolID int, wc *wsConn) {
	s.wsMu.Lock()
	delete(s.wsConns[symbolID], wc)
	s.wsMu.Unlock()
	wc.conn.Close()
}

// Broadcast 立即向某个股票的所有连接推送当前快照
func (s *Server) Broadcast(symbolID int) {
	s.Send(symbolID, s.Snapshot(symbolID))
}

// Send 向订阅了 symbolID 的连接推送任意内容
func (s *Server) Send(symbolID int, payload any) {
	s.wsMu.Lock()
	conns := make([]*wsConn, 0, len(s.wsConns[symbolID]))
	for wc := range s.wsConns[symbolID] {
		conns = append(conns, wc)
	}
	s.wsMu.Unlock()

	for _, wc := range conns {
		if err := wc.writeJSON(payload); err != nil {
			s.log.Debugf("推送失败: %v", err)
			s.drop(symbolID, wc)
		}
	}
}

// Subscribers 某个股票当前的连接数
func (s *Server) Subscribers(symbolID int) int {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	return len(s.wsConns[symbolID])
}

func (s *Server) broadcastLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.wsMu.Lock()
			ids := make([]int, 0, len(s.wsConns))
			for id := range s.wsConns {
				ids = append(ids, id)
			}
			s.wsMu.Unlock()
			for _, id := range ids {
				s.Broadcast(id)
			}
		}
	}
}
