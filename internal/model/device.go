package model

import (
	"net"
	"strconv"
	"strings"
)

// DeviceTypeCiscoIOS 默认设备平台
const DeviceTypeCiscoIOS = "cisco_ios"

// DefaultSSHPort 默认SSH端口
const DefaultSSHPort = 22

// DeviceRecord 设备清单中的一条连接记录，加载后只读
type DeviceRecord struct {
	DeviceType string `json:"device_type" csv:"device_type,omitempty"`
	IP         string `json:"ip" csv:"ip"`
	Username   string `json:"username" csv:"username"`
	Password   string `json:"-" csv:"password"`
	Secret     string `json:"-" csv:"enable_password"`
}

// Endpoint 解析地址列，支持 host 与 host:port 两种写法
func (r DeviceRecord) Endpoint() (string, int) {
	addr := strings.TrimSpace(r.IP)
	if host, port, err := net.SplitHostPort(addr); err == nil {
		if p, perr := strconv.Atoi(port); perr == nil && p > 0 {
			return host, p
		}
		return host, DefaultSSHPort
	}
	// 裸 IPv6 地址可能带方括号
	return strings.Trim(addr, "[]"), DefaultSSHPort
}
