// Package parse 从设备命令输出中提取主机名与软件版本
package parse

import (
	"regexp"
)

// 未匹配时返回的哨兵值
const (
	HostnameNotFound = "Hostname not found"
	VersionNotFound  = "Version not found"
)

var (
	hostnamePattern = regexp.MustCompile(`hostname (\S+)`)
	// 仅匹配 IOS 风格的 主.次(修订)后缀 版本号，例如 15.2(4)E7
	versionPattern = regexp.MustCompile(`Version (\d+\.\d+\(\d+[A-Z]*\)\w*)`)
)

// Hostname 返回输出中第一处 "hostname <token>" 的 token
func Hostname(output string) string {
	if v, ok := firstGroup(hostnamePattern, output); ok {
		return v
	}
	return HostnameNotFound
}

// Version 返回输出中第一处 IOS 版本号
func Version(output string) string {
	if v, ok := firstGroup(versionPattern, output); ok {
		return v
	}
	return VersionNotFound
}

// Found 判断提取值是否为有效结果
func Found(value string) bool {
	return value != HostnameNotFound && value != VersionNotFound
}

func firstGroup(re *regexp.Regexp, s string) (string, bool) {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}
