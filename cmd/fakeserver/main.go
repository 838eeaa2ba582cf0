package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/betbot/tradeweb/internal/fakebackend"
	"github.com/betbot/tradeweb/pkg/logger"
	"github.com/betbot/tradeweb/pkg/shutdown"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	getenv := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	var (
		listenAddr = flag.String("listen", getenv("FAKESERVER_LISTEN", ":8000"), "HTTP listen address")
		interval   = flag.Duration("broadcast", 2*time.Second, "order book broadcast interval (0 = only on connect)")
		logLevel   = flag.String("log-level", getenv("LOG_LEVEL", "info"), "log level")
	)
	flag.Parse()

	if err := logger.Init(logger.Config{Level: *logLevel, Console: os.Stdout}); err != nil {
		panic(err)
	}

	backend := fakebackend.New(fakebackend.WithBroadcastInterval(*interval))
	httpSrv := &http.Server{
		Addr:              *listenAddr,
		Handler:           backend.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	mgr := shutdown.NewManager()
	mgr.OnShutdown("http", httpSrv.Shutdown)
	mgr.Close("backend", func() error { backend.Close(); return nil })

	go func() {
		logger.Infof("fake backend listening on %s (admin1/admin1)", *listenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http server error: %v", err)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-stopCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mgr.Shutdown(ctx); err != nil {
		logger.Warnf("shutdown: %v", err)
	}
	logger.Infof("server stopped")
}
