package platform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGetCiscoIOS 默认平台已注册且查找不区分大小写
func TestGetCiscoIOS(t *testing.T) {
	p, err := Get("cisco_ios")
	require.NoError(t, err)
	assert.Equal(t, "show running-config | include hostname", p.HostnameCommand)
	assert.Equal(t, "show version", p.VersionCommand)
	assert.Equal(t, "enable", p.EnableCommand)
	assert.Contains(t, p.SessionPrep, "terminal length 0")

	p, err = Get("  Cisco_IOS ")
	require.NoError(t, err)
	assert.Equal(t, "CORE-SW-1", p.ParseHostname("hostname CORE-SW-1"))
	assert.Equal(t, "15.2(4)E7", p.ParseVersion("Version 15.2(4)E7, RELEASE"))
}

// TestGetUnsupported 未注册平台返回 UnsupportedError
func TestGetUnsupported(t *testing.T) {
	_, err := Get("huawei_vrp")
	require.Error(t, err)

	var unsupported *UnsupportedError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "huawei_vrp", unsupported.DeviceType)
	assert.Contains(t, err.Error(), "cisco_ios")
}

// TestRegister 注册新平台
func TestRegister(t *testing.T) {
	Register(Profile{Name: "Test_Platform", VersionCommand: "show ver"})
	t.Cleanup(func() {
		registryMu.Lock()
		delete(registry, "test_platform")
		registryMu.Unlock()
	})

	p, err := Get("test_platform")
	require.NoError(t, err)
	assert.Equal(t, "show ver", p.VersionCommand)
	assert.Contains(t, Names(), "test_platform")
}
