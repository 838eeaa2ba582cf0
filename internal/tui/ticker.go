package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"github.com/betbot/tradeweb/pkg/sdk/api"
	"github.com/betbot/tradeweb/pkg/sdk/websocket"
)

const (
	orderbookDepth = 5 // 显示订单薄的深度（买五、卖五）
)

var log = logrus.WithField("component", "tui")

var (
	// 样式定义
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)

	bidStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")) // 绿色

	askStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")) // 红色

	priceStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1"))
)

// Streamer 订单簿推送源，*websocket.OrderBookClient 实现了该接口
type Streamer interface {
	Subscribe(ctx context.Context, symbolID int, onSnapshot func(websocket.Snapshot)) (*websocket.Subscription, error)
}

// SnapshotMsg 新的订单簿快照
type SnapshotMsg websocket.Snapshot

// StreamClosedMsg 推送连接已关闭；Err 为 nil 表示正常关闭
type StreamClosedMsg struct {
	Err error
}

// tickMsg 定时器消息
type tickMsg time.Time

// Model ticker 页面状态
type Model struct {
	symbol     api.Symbol
	snap       websocket.Snapshot
	connected  bool
	closed     bool
	err        error
	lastUpdate time.Time
	now        time.Time
}

// NewModel 创建 symbol 的 ticker 页面
func NewModel(symbol api.Symbol) Model {
	return Model{
		symbol: symbol,
		snap:   websocket.Snapshot{SymbolID: symbol.ID},
	}
}

// Snapshot 当前显示的快照
func (m Model) Snapshot() websocket.Snapshot {
	return m.snap
}

func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}

	case SnapshotMsg:
		snap := websocket.Snapshot(msg)
		// 只接受当前 symbol 的快照
		if snap.SymbolID != m.symbol.ID {
			return m, nil
		}
		m.snap = snap
		m.connected = true
		if !snap.IsEmpty() || snap.LTP.IsSome() {
			m.lastUpdate = time.Now()
		}
		return m, nil

	case StreamClosedMsg:
		m.connected = false
		m.closed = true
		m.err = msg.Err
		return m, nil

	case tickMsg:
		m.now = time.Time(msg)
		return m, tickCmd()
	}

	return m, nil
}

func (m Model) View() string {
	var s strings.Builder

	ltp := "--"
	if m.snap.LTP.IsSome() {
		ltp = m.snap.LTP.Unwrap().String()
	}
	header := headerStyle.Render(fmt.Sprintf("%s (%s) | LTP: %s | %s",
		m.symbol.Name, m.symbol.Ticker, ltp, m.status()))
	s.WriteString(header)
	s.WriteString("\n\n")

	asks := renderSide("卖单 (Asks)", askStyle, m.snap.Asks)
	bids := renderSide("买单 (Bids)", bidStyle, m.snap.Bids)
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, borderStyle.Render(bids), "  ", borderStyle.Render(asks)))
	s.WriteString("\n\n")

	if m.closed && m.err != nil {
		s.WriteString(errStyle.Render(fmt.Sprintf("连接已断开: %v", m.err)))
		s.WriteString("\n")
	}

	// 底部提示
	s.WriteString("按 q 退出")
	return s.String()
}

func (m Model) status() string {
	switch {
	case m.closed:
		return "已断开"
	case !m.connected:
		return "正在连接..."
	case m.lastUpdate.IsZero():
		return "等待数据..."
	default:
		now := m.now
		if now.Before(m.lastUpdate) {
			now = m.lastUpdate
		}
		return fmt.Sprintf("数据更新: %v前", now.Sub(m.lastUpdate).Round(time.Second))
	}
}

func renderSide(title string, style lipgloss.Style, levels []websocket.Level) string {
	var s strings.Builder
	s.WriteString(style.Render(title))
	s.WriteString("\n")
	s.WriteString(priceStyle.Render(fmt.Sprintf("%10s  %8s", "Price", "Qty")))
	s.WriteString("\n")
	if len(levels) == 0 {
		s.WriteString("  --\n")
		return s.String()
	}
	for i := 0; i < len(levels) && i < orderbookDepth; i++ {
		lv := levels[i]
		s.WriteString(fmt.Sprintf("%10s  %8s\n", lv.Price.String(), lv.Quantity.String()))
	}
	return s.String()
}

// Commands

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Run 打开 symbol 的订单簿推送并运行 ticker 页面，直到用户退出或 ctx 取消
func Run(ctx context.Context, symbol api.Symbol, stream Streamer, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(NewModel(symbol), opts...)

	// Subscribe 会同步回调空快照，必须在事件循环启动后进行
	go pump(ctx, p.Send, symbol.ID, stream)

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("ticker 页面运行失败: %w", err)
	}
	return nil
}

// pump 把推送转成页面消息，订阅结束时发送 StreamClosedMsg
func pump(ctx context.Context, send func(tea.Msg), symbolID int, stream Streamer) {
	sub, err := stream.Subscribe(ctx, symbolID, func(snap websocket.Snapshot) {
		send(SnapshotMsg(snap))
	})
	if err != nil {
		log.Warnf("订阅订单簿失败: %v", err)
		send(StreamClosedMsg{Err: err})
		return
	}
	defer sub.Unsubscribe()

	select {
	case <-ctx.Done():
		return
	case <-sub.Done():
	}
	send(StreamClosedMsg{Err: sub.Err()})
}
