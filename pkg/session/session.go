// Package session 保存当前登录凭证（bearer token）
//
// Store 以对象形式注入到 HTTP 客户端，不使用全局状态。
// MemoryStore 生命周期与进程相同；BadgerStore 落盘，进程重启后仍然有效。
package session

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/betbot/tradeweb/pkg/secretstore"
)

// tokenKey Badger 中保存 token 的 key
const tokenKey = "session/token"

var log = logrus.WithField("component", "session")

// Store 凭证存储接口
type Store interface {
	// Get 返回 token；ok=false 表示匿名
	Get() (token string, ok bool)
	// Set 保存 token，供后续请求使用
	Set(token string) error
	// Clear 删除 token
	Clear() error
}

// MemoryStore 内存实现
type MemoryStore struct {
	mu    sync.RWMutex
	token string
	set   bool
}

// NewMemoryStore 创建内存存储，可选初始 token
func NewMemoryStore(initial ...string) *MemoryStore {
	s := &MemoryStore{}
	if len(initial) > 0 && initial[0] != "" {
		s.token = initial[0]
		s.set = true
	}
	return s
}

func (s *MemoryStore) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.set
}

func (s *MemoryStore) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.set = true
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.set = false
	return nil
}

// BadgerStore 基于 secretstore 的持久化实现
// 读操作带内存缓存，写操作先落盘再更新缓存
type BadgerStore struct {
	mu     sync.Mutex
	db     *secretstore.Store
	cached string
	loaded bool
	has    bool
}

// OpenBadger 打开（或创建）持久化凭证存储
// encryptionKey 可为 nil（不加密）
func OpenBadger(path string, encryptionKey []byte) (*BadgerStore, error) {
	db, err := secretstore.Open(secretstore.OpenOptions{
		Path:          path,
		EncryptionKey: encryptionKey,
	})
	if err != nil {
		return nil, err
	}
	return NewBadgerStore(db), nil
}

// NewBadgerStore 使用已打开的 secretstore
func NewBadgerStore(db *secretstore.Store) *BadgerStore {
	return &BadgerStore{db: db}
}

func (s *BadgerStore) Get() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		token, found, err := s.db.GetString(tokenKey)
		if err != nil {
			// 读失败按匿名处理，下一次再试
			log.Warnf("读取 token 失败: %v", err)
			return "", false
		}
		s.cached, s.has, s.loaded = token, found && token != "", true
	}
	return s.cached, s.has
}

func (s *BadgerStore) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.SetString(tokenKey, token); err != nil {
		return err
	}
	s.cached, s.has, s.loaded = token, token != "", true
	return nil
}

func (s *BadgerStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// 先清缓存：即使落盘失败，本进程也不会再使用旧 token
	s.cached, s.has, s.loaded = "", false, true
	return s.db.Delete(tokenKey)
}

// Close 关闭底层数据库
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
