package secretstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetSetDelete(t *testing.T) {
	s, err := Open(OpenOptions{InMemory: true})
	require.NoError(t, err)
	defer s.Close()

	_, found, err := s.GetString("k")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetString("k", ""))
	v, found, err := s.GetString("k")
	require.NoError(t, err)
	assert.True(t, found, "空值也算存在")
	assert.Equal(t, "", v)

	require.NoError(t, s.SetString("k", "v"))
	v, _, err = s.GetString(" k ")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	require.NoError(t, s.Delete("k"))
	_, found, err = s.GetString("k")
	require.NoError(t, err)
	assert.False(t, found)

	// 删除不存在的 key 不报错
	require.NoError(t, s.Delete("missing"))
}

func TestStore_EmptyKey(t *testing.T) {
	s, err := Open(OpenOptions{InMemory: true})
	require.NoError(t, err)
	defer s.Close()

	assert.Error(t, s.SetString("  ", "v"))
	_, _, err = s.GetString("")
	assert.Error(t, err)
}

func TestStore_NotOpened(t *testing.T) {
	var s *Store
	_, _, err := s.GetString("k")
	assert.Error(t, err)
	assert.NoError(t, s.Close())
}

func TestOpen_PathRequired(t *testing.T) {
	_, err := Open(OpenOptions{})
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	hexKey := strings.Repeat("ab", 32)
	b, err := ParseKey(hexKey)
	require.NoError(t, err)
	assert.Len(t, b, 32)

	b, err = ParseKey("0x" + hexKey)
	require.NoError(t, err)
	assert.Len(t, b, 32)

	// 32 个 0 字节的 base64
	b, err = ParseKey("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")
	require.NoError(t, err)
	assert.Len(t, b, 32)

	b, err = ParseKey("")
	require.NoError(t, err)
	assert.Nil(t, b)

	_, err = ParseKey("abcd")
	assert.Error(t, err)

	_, err = ParseKey("not a key!")
	assert.Error(t, err)
}
