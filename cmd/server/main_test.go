package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/versionboard/internal/database"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

// TestRunReleasesResourcesOnListenFailure HTTP 端口被占用时返回非零退出码，并关闭模拟器与数据库
func TestRunReleasesResourcesOnListenFailure(t *testing.T) {
	dir := t.TempDir()

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	busyPort := busy.Addr().(*net.TCPAddr).Port

	simAddr := freeAddr(t)
	simPath := filepath.Join(dir, "simulate.yaml")
	require.NoError(t, os.WriteFile(simPath, []byte(fmt.Sprintf(`listen: %s
host_key_path: %s
devices:
  r1:
    hostname: R1
    password: pw
    secret: en
    version: 15.2(4)E7
`, simAddr, filepath.Join(dir, "hostkey.pem"))), 0o644))

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`server:
  host: 127.0.0.1
  port: %d
  simulate_enable: true
inventory:
  path: %s
database:
  sqlite:
    path: %s
simulate:
  path: %s
  addr: %s
log:
  level: error
  output: console
`, busyPort, filepath.Join(dir, "devices.csv"), filepath.Join(dir, "history.db"), simPath, simAddr)), 0o644))

	done := make(chan int, 1)
	go func() { done <- run(cfgPath) }()

	select {
	case code := <-done:
		assert.Equal(t, 1, code)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after listen failure")
	}

	// 模拟器端口已释放
	ln, err := net.Listen("tcp", simAddr)
	require.NoError(t, err, "simulator should be stopped")
	_ = ln.Close()

	// 数据库已关闭
	assert.Error(t, database.Health())
}

// TestRunBadConfig 配置文件不存在时返回 1
func TestRunBadConfig(t *testing.T) {
	assert.Equal(t, 1, run(filepath.Join(t.TempDir(), "missing.yaml")))
}
