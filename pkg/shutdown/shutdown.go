package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/betbot/tradeweb/pkg/logger"
)

// Handler 关闭处理函数
type Handler func(ctx context.Context) error

type callback struct {
	name    string
	handler Handler
}

// Manager 优雅关闭管理器
// 回调并发执行；Shutdown 只生效一次
type Manager struct {
	callbacks []callback
	mu        sync.Mutex
	done      bool
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{
		callbacks: make([]callback, 0),
	}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	if handler == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback{name: name, handler: handler})
}

// Close 注册一个无参数的关闭函数（例如 io.Closer 的 Close）
func (m *Manager) Close(name string, fn func() error) {
	m.OnShutdown(name, func(context.Context) error { return fn() })
}

// Shutdown 执行所有关闭回调（阻塞调用），返回所有失败的回调错误
// ctx 应该是一个带超时的 context，避免无限等待
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return nil
	}
	m.done = true
	callbacks := m.callbacks
	m.callbacks = nil
	m.mu.Unlock()

	if len(callbacks) == 0 {
		return nil
	}

	logger.Debugf("开始关闭，共 %d 个回调", len(callbacks))

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []error
	)
	wg.Add(len(callbacks))

	// 并发执行所有关闭回调
	for _, cb := range callbacks {
		go func(cb callback) {
			defer wg.Done()
			if err := cb.handler(ctx); err != nil {
				errMu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", cb.name, err))
				errMu.Unlock()
			}
		}(cb)
	}

	// 等待所有回调完成或超时
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Debugf("所有关闭回调已完成")
	case <-ctx.Done():
		logger.Warnf("关闭超时: %v", ctx.Err())
		return ctx.Err()
	}

	errMu.Lock()
	defer errMu.Unlock()
	return errors.Join(errs...)
}
