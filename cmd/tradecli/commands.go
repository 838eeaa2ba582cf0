package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v3"

	"github.com/betbot/tradeweb/pkg/sdk/api"
	"github.com/betbot/tradeweb/pkg/sdk/apierr"
)

func (a *app) command() *cli.Command {
	return &cli.Command{
		Name:      "tradecli",
		Usage:     "股票交易后端命令行客户端",
		Writer:    a.out,
		ErrWriter: a.errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径（.yaml/.yml/.json）",
				Sources: cli.EnvVars("TRADEWEB_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "api-url",
				Usage: "覆盖配置中的后端地址，WS 地址随之推导",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "在终端输出 debug 日志",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "register",
				Usage: "注册新用户",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true},
					&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true},
					&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Required: true, Sources: cli.EnvVars("TRADEWEB_PASSWORD")},
				},
				Action: a.action(a.register),
			},
			{
				Name:  "login",
				Usage: "登录并保存会话",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true, Sources: cli.EnvVars("TRADEWEB_USERNAME")},
					&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Required: true, Sources: cli.EnvVars("TRADEWEB_PASSWORD")},
				},
				Action: a.action(a.login),
			},
			{
				Name:   "logout",
				Usage:  "清除本地会话",
				Action: a.action(a.logout),
			},
			{
				Name:   "me",
				Usage:  "当前用户信息",
				Action: a.action(a.me),
			},
			{
				Name:   "market",
				Usage:  "可交易的股票列表",
				Action: a.action(a.market),
			},
			{
				Name:  "orders",
				Usage: "我的订单（--all 为全部订单，需要管理员）",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "all", Usage: "全部用户的订单"},
					&cli.BoolFlag{Name: "active", Usage: "只显示未完成的订单"},
				},
				Action: a.action(a.orders),
			},
			{
				Name:  "trades",
				Usage: "我的成交（--all 为全部成交，需要管理员）",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "all", Usage: "全部用户的成交"},
					&cli.IntFlag{Name: "symbol", Usage: "只看某个股票的成交"},
				},
				Action: a.action(a.trades),
			},
			{
				Name:      "cancel",
				Usage:     "撤销 pending 订单",
				ArgsUsage: "<orderID>",
				Action:    a.action(a.cancel),
			},
			{
				Name:  "order",
				Usage: "下单",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "symbol", Aliases: []string{"s"}, Required: true},
					&cli.StringFlag{Name: "side", Usage: "B/buy 或 S/sell", Required: true},
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "L/limit 或 M/market", Value: "L"},
					&cli.IntFlag{Name: "qty", Aliases: []string{"q"}, Required: true},
					&cli.StringFlag{Name: "price", Usage: "限价单价格，市价单忽略"},
				},
				Action: a.action(a.order),
			},
			{
				Name:      "book",
				Usage:     "某个股票的订单列表",
				ArgsUsage: "<symbolID>",
				Action:    a.action(a.book),
			},
			{
				Name:      "ticker",
				Usage:     "实时订单簿",
				ArgsUsage: "<symbolID>",
				Action:    a.action(a.ticker),
			},
		},
	}
}

func (a *app) register(ctx context.Context, cmd *cli.Command) error {
	user, err := a.svc.Register(ctx, api.Registration{
		Username: cmd.String("username"),
		Email:    cmd.String("email"),
		Password: cmd.String("password"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "注册成功: %s (id=%d, role=%s)\n", user.Username, user.ID, roleOf(*user))
	return nil
}

func (a *app) login(ctx context.Context, cmd *cli.Command) error {
	username := cmd.String("username")
	if err := a.svc.LoginAndStore(ctx, api.Credentials{
		Username: username,
		Password: cmd.String("password"),
	}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "登录成功: %s\n", username)
	return nil
}

func (a *app) logout(ctx context.Context, cmd *cli.Command) error {
	if err := a.svc.Logout(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "已退出登录")
	return nil
}

func (a *app) me(ctx context.Context, cmd *cli.Command) error {
	user, err := a.svc.GetUserPage(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "ID:       %d\nUsername: %s\nEmail:    %s\nRole:     %s\n",
		user.ID, user.Username, user.Email, roleOf(*user))
	return nil
}

func (a *app) market(ctx context.Context, cmd *cli.Command) error {
	symbols, err := a.svc.GetMarket(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, renderSymbols(symbols))
	return nil
}

func (a *app) orders(ctx context.Context, cmd *cli.Command) error {
	var (
		orders []api.Order
		err    error
	)
	if cmd.Bool("all") {
		orders, err = a.svc.GetAllOrders(ctx)
	} else {
		orders, err = a.svc.GetUserOrders(ctx)
	}
	if err != nil {
		return err
	}
	if cmd.Bool("active") {
		orders = activeOrders(orders)
	}
	fmt.Fprintln(a.out, renderOrders(orders))
	return nil
}

func (a *app) trades(ctx context.Context, cmd *cli.Command) error {
	var (
		trades []api.Trade
		err    error
	)
	symbolID := int(cmd.Int("symbol"))
	switch {
	case symbolID > 0:
		trades, err = a.svc.GetSymbolTrades(ctx, symbolID)
	case cmd.Bool("all"):
		trades, err = a.svc.GetAllTrades(ctx)
	default:
		trades, err = a.svc.GetUserTrades(ctx)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, renderTrades(trades))
	return nil
}

func (a *app) cancel(ctx context.Context, cmd *cli.Command) error {
	id, err := positionalID(cmd, "order_id")
	if err != nil {
		return err
	}
	order, err := a.svc.CancelActiveOrder(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "订单 %d 已撤销 (status=%s)\n", order.ID, order.Status)
	return nil
}

func (a *app) order(ctx context.Context, cmd *cli.Command) error {
	o := api.NewOrder{
		SymbolID: int(cmd.Int("symbol")),
		Side:     parseSide(cmd.String("side")),
		Type:     parseOrderType(cmd.String("type")),
		Quantity: int(cmd.Int("qty")),
	}
	if raw := strings.TrimSpace(cmd.String("price")); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return &apierr.ValidationError{Field: "price", Message: fmt.Sprintf("无效的价格: %q", raw)}
		}
		o.Price = price
	}

	order, err := a.svc.PostNewOrder(ctx, o)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "下单成功: #%d %s %s %d @ %s (%s)\n",
		order.ID, order.Side.Label(), order.Type.Label(), order.Quantity, order.Price.String(), order.Status)
	return nil
}

func (a *app) book(ctx context.Context, cmd *cli.Command) error {
	id, err := positionalID(cmd, "symbol_id")
	if err != nil {
		return err
	}
	symbol, err := a.svc.FindSymbol(ctx, id)
	if err != nil {
		return err
	}
	orders, err := a.svc.GetTicker(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s (%s)\n", symbol.Name, symbol.Ticker)
	fmt.Fprintln(a.out, renderOrders(orders))
	return nil
}

func (a *app) ticker(ctx context.Context, cmd *cli.Command) error {
	id, err := positionalID(cmd, "symbol_id")
	if err != nil {
		return err
	}
	// 先确认 symbol 存在，顺便检查会话
	symbol, err := a.svc.FindSymbol(ctx, id)
	if err != nil {
		return err
	}
	return a.runTicker(ctx, *symbol, a.stream)
}

func positionalID(cmd *cli.Command, field string) (int, error) {
	raw := cmd.Args().First()
	if raw == "" {
		return 0, &apierr.ValidationError{Field: field, Message: "缺少参数 " + cmd.ArgsUsage}
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, &apierr.ValidationError{Field: field, Message: fmt.Sprintf("需要正整数, 收到 %q", raw)}
	}
	return id, nil
}

func parseSide(raw string) api.Side {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "B", "BUY":
		return api.SideBuy
	case "S", "SELL":
		return api.SideSell
	default:
		return api.Side(raw)
	}
}

func parseOrderType(raw string) api.OrderType {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "L", "LIMIT":
		return api.OrderTypeLimit
	case "M", "MARKET":
		return api.OrderTypeMarket
	default:
		return api.OrderType(raw)
	}
}

func activeOrders(orders []api.Order) []api.Order {
	out := make([]api.Order, 0, len(orders))
	for _, o := range orders {
		if o.Status.IsActive() {
			out = append(out, o)
		}
	}
	return out
}

func roleOf(u api.User) api.Role {
	if u.Role == "" {
		return api.RoleTrader
	}
	return u.Role
}
