package simulate

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 实验室模拟器配置
type Config struct {
	// Listen 监听地址，默认 127.0.0.1:0（随机端口）
	Listen      string `mapstructure:"listen"`
	IdleSeconds int    `mapstructure:"idle_seconds"`
	MaxConn     int    `mapstructure:"max_conn"`
	// HostKeyPath 为空时每次启动生成内存 host key
	HostKeyPath string `mapstructure:"host_key_path"`
	// Devices 以登录用户名为键选择模拟设备
	Devices map[string]DeviceConfig `mapstructure:"devices"`
}

// DeviceConfig 模拟的 Cisco IOS 设备
type DeviceConfig struct {
	Hostname string `mapstructure:"hostname"`
	Password string `mapstructure:"password"`
	// Secret 为空时 enable 无需密码
	Secret  string `mapstructure:"secret"`
	Version string `mapstructure:"version"`
	Model   string `mapstructure:"model"`
	// VersionOutput 覆盖 show version 的完整输出
	VersionOutput string `mapstructure:"version_output"`
	// OmitHostname 运行配置中不输出 hostname 行
	OmitHostname bool `mapstructure:"omit_hostname"`
	// StartEnabled 登录后直接处于特权模式
	StartEnabled bool `mapstructure:"start_enabled"`
	// DelayMS 每条命令输出前的延迟
	DelayMS int `mapstructure:"delay_ms"`
}

// LoadConfig 读取模拟器 YAML 配置
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	v.SetDefault("listen", "127.0.0.1:0")
	v.SetDefault("idle_seconds", 300)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read simulate config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal simulate config: %w", err)
	}
	if len(cfg.Devices) == 0 {
		return nil, fmt.Errorf("simulate config %s defines no devices", path)
	}
	return &cfg, nil
}

// device 按用户名查找设备（viper 会将键转为小写）
func (c *Config) device(user string) (DeviceConfig, bool) {
	if d, ok := c.Devices[user]; ok {
		return d, true
	}
	d, ok := c.Devices[strings.ToLower(user)]
	return d, ok
}
