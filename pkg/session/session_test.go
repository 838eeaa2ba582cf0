package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/tradeweb/pkg/secretstore"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	_, ok := s.Get()
	assert.False(t, ok, "初始应该是匿名")

	require.NoError(t, s.Set("abc"))
	token, ok := s.Get()
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	require.NoError(t, s.Clear())
	_, ok = s.Get()
	assert.False(t, ok)

	// 重复 Clear 不报错
	require.NoError(t, s.Clear())
}

func TestMemoryStore_Initial(t *testing.T) {
	token, ok := NewMemoryStore("tok").Get()
	assert.True(t, ok)
	assert.Equal(t, "tok", token)

	_, ok = NewMemoryStore("").Get()
	assert.False(t, ok)
}

func TestBadgerStore_InMemory(t *testing.T) {
	db, err := secretstore.Open(secretstore.OpenOptions{InMemory: true})
	require.NoError(t, err)
	s := NewBadgerStore(db)
	defer s.Close()

	_, ok := s.Get()
	assert.False(t, ok)

	require.NoError(t, s.Set("jwt-1"))
	token, ok := s.Get()
	assert.True(t, ok)
	assert.Equal(t, "jwt-1", token)

	require.NoError(t, s.Clear())
	_, ok = s.Get()
	assert.False(t, ok)
}

func TestBadgerStore_SurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "session")

	s, err := OpenBadger(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.Set("persisted"))
	require.NoError(t, s.Close())

	s, err = OpenBadger(dir, nil)
	require.NoError(t, err)
	token, ok := s.Get()
	assert.True(t, ok)
	assert.Equal(t, "persisted", token)

	require.NoError(t, s.Clear())
	require.NoError(t, s.Close())

	s, err = OpenBadger(dir, nil)
	require.NoError(t, err)
	defer s.Close()
	_, ok = s.Get()
	assert.False(t, ok, "Clear 之后重新打开不应该再有 token")
}

func TestBadgerStore_Encrypted(t *testing.T) {
	key, err := secretstore.ParseKey("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	require.NoError(t, err)

	s, err := OpenBadger(filepath.Join(t.TempDir(), "enc"), key)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set("secret"))
	token, ok := s.Get()
	assert.True(t, ok)
	assert.Equal(t, "secret", token)
}
