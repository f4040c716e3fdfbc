package ssh

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/versionboard/simulate"
)

func startLab(t *testing.T) (string, int) {
	t.Helper()
	srv, err := simulate.Start(&simulate.Config{
		Listen: "127.0.0.1:0",
		Devices: map[string]simulate.DeviceConfig{
			"core-sw-1":  {Hostname: "CORE-SW-1", Password: "cisco", Secret: "enable123", Version: "15.2(4)E7"},
			"edge-rtr-1": {Hostname: "EDGE-RTR-1", Password: "cisco", Version: "15.4(3)M3"},
			"priv-sw":    {Hostname: "PRIV-SW", Password: "cisco", Secret: "x", Version: "12.2(55)SE12", StartEnabled: true},
			"lab-noname": {Hostname: "LAB-NONAME", Password: "cisco", Secret: "enable123", Version: "15.0(2)SE11", OmitHostname: true},
		},
	})
	require.NoError(t, err)
	t.Cleanup(srv.Stop)

	host, port, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return host, p
}

func testDialer() *ShellDialer {
	return NewDialer(&Config{ConnectTimeout: 3 * time.Second, CommandTimeout: 3 * time.Second})
}

func info(host string, port int, user, password string) *ConnectionInfo {
	return &ConnectionInfo{
		Host:     host,
		Port:     port,
		Username: user,
		Password: password,
		Prepare:  []string{"terminal length 0", "terminal width 511"},
	}
}

// TestShellSessionCommands 正常登录、提权并执行命令
func TestShellSessionCommands(t *testing.T) {
	host, port := startLab(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sess, err := testDialer().Open(ctx, info(host, port, "core-sw-1", "cisco"))
	require.NoError(t, err)
	defer sess.Close()

	shell, ok := sess.(*ShellSession)
	require.True(t, ok)
	assert.Equal(t, "CORE-SW-1>", shell.Prompt())

	require.NoError(t, sess.Enable(ctx, "enable123"))
	assert.Equal(t, "CORE-SW-1#", shell.Prompt())

	// 已在特权模式时再次调用直接返回
	require.NoError(t, sess.Enable(ctx, "ignored"))

	out, err := sess.SendCommand(ctx, "show running-config | include hostname")
	require.NoError(t, err)
	assert.Equal(t, "hostname CORE-SW-1", out)

	out, err = sess.SendCommand(ctx, "show version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version 15.2(4)E7,")
	assert.NotContains(t, out, "CORE-SW-1#")

	assert.NoError(t, sess.Close())
	assert.NoError(t, sess.Close(), "重复关闭不应报错")
}

// TestShellSessionEnableWithoutSecret 设备未设置 enable 密码
func TestShellSessionEnableWithoutSecret(t *testing.T) {
	host, port := startLab(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sess, err := testDialer().Open(ctx, info(host, port, "edge-rtr-1", "cisco"))
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.Enable(ctx, ""))
	out, err := sess.SendCommand(ctx, "show running-config | include hostname")
	require.NoError(t, err)
	assert.Equal(t, "hostname EDGE-RTR-1", out)
}

// TestShellSessionStartEnabled 登录即处于特权模式
func TestShellSessionStartEnabled(t *testing.T) {
	host, port := startLab(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sess, err := testDialer().Open(ctx, info(host, port, "priv-sw", "cisco"))
	require.NoError(t, err)
	defer sess.Close()

	assert.Equal(t, "PRIV-SW#", sess.(*ShellSession).Prompt())
	require.NoError(t, sess.Enable(ctx, "wrong"))
}

// TestShellSessionEmptyOutput 过滤结果为空时返回空字符串
func TestShellSessionEmptyOutput(t *testing.T) {
	host, port := startLab(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sess, err := testDialer().Open(ctx, info(host, port, "lab-noname", "cisco"))
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.Enable(ctx, "enable123"))
	out, err := sess.SendCommand(ctx, "show running-config | include hostname")
	require.NoError(t, err)
	assert.Empty(t, out)
}

// TestEnableRejected 错误的 enable 密码返回 PrivilegeError
func TestEnableRejected(t *testing.T) {
	host, port := startLab(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sess, err := testDialer().Open(ctx, info(host, port, "core-sw-1", "cisco"))
	require.NoError(t, err)
	defer sess.Close()

	err = sess.Enable(ctx, "wrong-secret")
	require.Error(t, err)

	var privErr *PrivilegeError
	require.True(t, errors.As(err, &privErr), "应返回 PrivilegeError，实际: %v", err)
	assert.Equal(t, "CORE-SW-1>", privErr.Prompt)
}

// TestOpenBadPassword 认证失败返回握手阶段的 SessionError
func TestOpenBadPassword(t *testing.T) {
	host, port := startLab(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, err := testDialer().Open(ctx, info(host, port, "core-sw-1", "wrong"))
	require.Error(t, err)

	var sessErr *SessionError
	require.True(t, errors.As(err, &sessErr))
	assert.Equal(t, "handshake", sessErr.Op)
}

// TestOpenRefused 端口无人监听时返回拨号阶段的 SessionError
func TestOpenRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	_, err = testDialer().Open(context.Background(), info("127.0.0.1", addr.Port, "core-sw-1", "cisco"))
	require.Error(t, err)

	var sessErr *SessionError
	require.True(t, errors.As(err, &sessErr))
	assert.Equal(t, "dial", sessErr.Op)
	assert.Contains(t, err.Error(), "failed to open session to 127.0.0.1:")
}

// TestConnectionInfoAddress 地址拼接
func TestConnectionInfoAddress(t *testing.T) {
	assert.Equal(t, "10.0.0.1:22", (&ConnectionInfo{Host: "10.0.0.1"}).Address())
	assert.Equal(t, "10.0.0.1:2222", (&ConnectionInfo{Host: "10.0.0.1", Port: 2222}).Address())
	assert.Equal(t, "[2001:db8::1]:22", (&ConnectionInfo{Host: "2001:db8::1"}).Address())
}

// TestStripEchoAndPrompt 去除回显与提示符
func TestStripEchoAndPrompt(t *testing.T) {
	text := "show version\nCisco IOS Software, Version 15.2(4)E7\nuptime\nR1#"
	assert.Equal(t, "Cisco IOS Software, Version 15.2(4)E7\nuptime", stripEchoAndPrompt(text, "show version"))

	text = "\nR1#show version\nline\nR1#"
	assert.Equal(t, "line", stripEchoAndPrompt(text, "show version"))

	assert.Equal(t, "", stripEchoAndPrompt("terminal length 0\nR1#", "terminal length 0"))
}
