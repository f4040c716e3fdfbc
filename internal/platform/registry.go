// Package platform 维护各设备平台的会话与采集命令配置
package platform

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Profile 平台配置：会话准备命令、特权命令以及两条采集命令与对应解析函数
type Profile struct {
	Name            string
	SessionPrep     []string
	EnableCommand   string
	HostnameCommand string
	VersionCommand  string
	ParseHostname   func(output string) string
	ParseVersion    func(output string) string
}

// UnsupportedError 清单中出现未注册的平台
type UnsupportedError struct {
	DeviceType string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported device type %q (supported: %s)", e.DeviceType, strings.Join(Names(), ", "))
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Profile{}
)

// Register 注册平台配置
func Register(p Profile) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(p.Name)] = p
}

// Get 获取指定平台配置，不存在时返回 *UnsupportedError
func Get(name string) (Profile, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if p, ok := registry[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p, nil
	}
	return Profile{}, &UnsupportedError{DeviceType: name}
}

// Names 返回已注册平台名（排序）
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
