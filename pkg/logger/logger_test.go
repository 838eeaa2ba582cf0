package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_ConsoleAndLevel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Config{Level: "warn", Console: &buf}))

	Infof("不应该输出 %d", 1)
	Warnf("警告 %d", 2)
	WithField("component", "test").Errorf("错误")

	out := buf.String()
	assert.NotContains(t, out, "不应该输出")
	assert.Contains(t, out, "警告 2")
	assert.Contains(t, out, "component=test")
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel(), "全局 logrus 级别同步")
}

func TestInit_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tradecli.log")
	require.NoError(t, Init(Config{Level: "debug", OutputFile: path, NoConsole: true}))
	assert.Equal(t, path, GetCurrentLogFile())

	logrus.WithField("component", "http").Debug("请求完成")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "请求完成")
}

func TestInit_BadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Config{Level: "verbose", Console: &buf}))
	assert.Equal(t, logrus.InfoLevel, Logger.GetLevel())
}
