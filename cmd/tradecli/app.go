package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/betbot/tradeweb/internal/tui"
	"github.com/betbot/tradeweb/pkg/config"
	"github.com/betbot/tradeweb/pkg/logger"
	"github.com/betbot/tradeweb/pkg/sdk/api"
	"github.com/betbot/tradeweb/pkg/sdk/apierr"
	"github.com/betbot/tradeweb/pkg/sdk/websocket"
	"github.com/betbot/tradeweb/pkg/secretstore"
	"github.com/betbot/tradeweb/pkg/session"
	"github.com/betbot/tradeweb/pkg/shutdown"
)

// 退出码
const (
	exitOK             = 0
	exitError          = 1
	exitInvalidInput   = 2
	exitSessionExpired = 3
)

// tickerRunner 打开 ticker 页面，测试中替换掉
type tickerRunner func(ctx context.Context, symbol api.Symbol, stream tui.Streamer) error

type app struct {
	out    io.Writer
	errOut io.Writer

	cfg       *config.Config
	svc       api.Service
	stream    tui.Streamer
	runTicker tickerRunner

	shutdown *shutdown.Manager
}

func newApp(out, errOut io.Writer) *app {
	return &app{
		out:      out,
		errOut:   errOut,
		shutdown: shutdown.NewManager(),
		runTicker: func(ctx context.Context, symbol api.Symbol, stream tui.Streamer) error {
			return tui.Run(ctx, symbol, stream)
		},
	}
}

// run 执行命令并返回退出码
func (a *app) run(ctx context.Context, args []string) int {
	defer a.close()

	err := a.command().Run(ctx, args)
	return a.report(err)
}

func (a *app) report(err error) int {
	switch {
	case err == nil:
		return exitOK
	case apierr.IsSessionExpired(err):
		// 401：token 已被清除，需要重新登录
		fmt.Fprintln(a.errOut, "会话已过期，请先执行: tradecli login")
		return exitSessionExpired
	case apierr.IsValidation(err):
		fmt.Fprintf(a.errOut, "输入无效: %v\n", err)
		return exitInvalidInput
	default:
		fmt.Fprintf(a.errOut, "错误: %v\n", err)
		return exitError
	}
}

// setup 加载配置并创建客户端；测试中 svc 已注入时跳过
func (a *app) setup(cmd *cli.Command) error {
	if a.svc != nil {
		return nil
	}

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	if url := cmd.String("api-url"); url != "" {
		cfg.APIURL = url
		cfg.WSURL = config.DeriveWSURL(url)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg

	logCfg := logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     7,
		Console:    a.errOut,
		// 命令结果和 TUI 占用终端，日志默认只写文件
		NoConsole: !cmd.Bool("verbose"),
	}
	if cmd.Bool("verbose") {
		logCfg.Level = "debug"
	}
	if err := logger.Init(logCfg); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}

	store, err := a.openSession(cfg.Session)
	if err != nil {
		return err
	}

	client := api.NewClientWithConfig(cfg.APIURL, store, &api.Config{HTTP: cfg.HTTPConfig()})
	a.shutdown.Close("api client", func() error { client.Close(); return nil })
	a.svc = client

	stream := websocket.NewOrderBookClientWithConfig(cfg.WSURL, cfg.StreamConfig())
	a.shutdown.Close("orderbook stream", func() error { stream.Close(); return nil })
	a.stream = stream

	logger.WithFields(logrus.Fields{"api": cfg.APIURL, "ws": cfg.WSURL}).Debug("客户端已创建")
	return nil
}

func (a *app) openSession(sc config.SessionConfig) (session.Store, error) {
	if sc.Path == "" {
		return session.NewMemoryStore(), nil
	}
	key, err := secretstore.ParseKey(sc.Key)
	if err != nil {
		return nil, fmt.Errorf("会话密钥无效: %w", err)
	}
	store, err := session.OpenBadger(sc.Path, key)
	if err != nil {
		return nil, fmt.Errorf("打开会话存储失败 %s: %w", sc.Path, err)
	}
	a.shutdown.Close("session store", store.Close)
	return store, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdown.Shutdown(ctx); err != nil {
		logger.Warnf("关闭资源失败: %v", err)
	}
}

// action 在执行命令前完成初始化
func (a *app) action(fn cli.ActionFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		if err := a.setup(cmd); err != nil {
			return err
		}
		return fn(ctx, cmd)
	}
}
