package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// DefaultConcurrent 设备查询工作池的默认容量
const DefaultConcurrent = 50

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Inventory InventoryConfig `mapstructure:"inventory"`
	Collector CollectorConfig `mapstructure:"collector"`
	SSH       SSHConfig       `mapstructure:"ssh"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Report    ReportConfig    `mapstructure:"report"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Simulate  SimulateConfig  `mapstructure:"simulate"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	SimulateEnable bool          `mapstructure:"simulate_enable"`
}

// InventoryConfig 设备清单配置
type InventoryConfig struct {
	// Path CSV 清单文件路径，每次请求重新读取
	Path string `mapstructure:"path"`
	// DeviceType 清单未提供 device_type 列时使用的设备平台
	DeviceType string `mapstructure:"device_type"`
}

// CollectorConfig 采集器配置
type CollectorConfig struct {
	ID string `mapstructure:"id"`
	// Concurrent 同时进行的设备查询数量上限
	Concurrent int `mapstructure:"concurrent"`
}

// SSHConfig SSH配置
type SSHConfig struct {
	// ConnectTimeout 拨号与握手超时；0 表示不限制
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// CommandTimeout 单条命令等待提示符的超时；0 表示不限制
	CommandTimeout    time.Duration `mapstructure:"command_timeout"`
	KeepAliveInterval time.Duration `mapstructure:"keep_alive_interval"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// SQLiteConfig SQLite配置（Path 为空时不记录扫描历史）
type SQLiteConfig struct {
	Path            string        `mapstructure:"path"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ReportConfig 扫描报告归档配置
type ReportConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Backend 存储后端：local | minio
	Backend string            `mapstructure:"backend"`
	Prefix  string            `mapstructure:"prefix"`
	Local   LocalReportConfig `mapstructure:"local"`
}

// LocalReportConfig 本地归档配置
type LocalReportConfig struct {
	BaseDir        string `mapstructure:"base_dir"`
	MkdirIfMissing bool   `mapstructure:"mkdir_if_missing"`
}

// StorageConfig 对象存储配置
type StorageConfig struct {
	Minio MinioConfig `mapstructure:"minio"`
}

// MinioConfig 对象存储配置
type MinioConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Secure    bool   `mapstructure:"secure"`
}

// SimulateConfig 实验室模拟器配置
type SimulateConfig struct {
	Path string `mapstructure:"path"`
	Addr string `mapstructure:"addr"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

var (
	globalConfig *Config
	globalMu     sync.RWMutex
)

// Load 加载配置文件；configPath 为空时按默认目录查找 config.yaml
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	v.SetEnvPrefix("VERSIONBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = replaceEnvVars(config)
	normalize(&config)

	globalMu.Lock()
	globalConfig = &config
	globalMu.Unlock()
	return &config, nil
}

// Default 返回仅包含默认值的配置（不读取文件），用于命令行工具与测试
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	_ = v.Unmarshal(&config)
	normalize(&config)
	return &config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	// 首页同步完成整轮查询，写超时需覆盖最慢设备
	v.SetDefault("server.write_timeout", 10*time.Minute)
	v.SetDefault("server.simulate_enable", false)

	v.SetDefault("inventory.path", "devices.csv")
	v.SetDefault("inventory.device_type", "cisco_ios")

	v.SetDefault("collector.id", "versionboard")
	v.SetDefault("collector.concurrent", DefaultConcurrent)

	v.SetDefault("ssh.connect_timeout", 10*time.Second)
	v.SetDefault("ssh.command_timeout", 10*time.Second)
	v.SetDefault("ssh.keep_alive_interval", time.Duration(0))

	v.SetDefault("database.sqlite.path", "./data/versionboard.db")
	v.SetDefault("database.sqlite.conn_max_lifetime", time.Hour)

	v.SetDefault("report.enabled", false)
	v.SetDefault("report.backend", "local")
	v.SetDefault("report.prefix", "reports")
	v.SetDefault("report.local.base_dir", "./data")
	v.SetDefault("report.local.mkdir_if_missing", true)

	v.SetDefault("simulate.path", "simulate/simulate.yaml")
	v.SetDefault("simulate.addr", "127.0.0.1:22001")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.file_path", "./logs/versionboard.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
}

// normalize 修正越界取值
func normalize(cfg *Config) {
	if cfg.Collector.Concurrent <= 0 {
		cfg.Collector.Concurrent = DefaultConcurrent
	}
	if strings.TrimSpace(cfg.Inventory.DeviceType) == "" {
		cfg.Inventory.DeviceType = "cisco_ios"
	}
	cfg.Report.Backend = strings.ToLower(strings.TrimSpace(cfg.Report.Backend))
	if cfg.Report.Backend == "" {
		cfg.Report.Backend = "local"
	}
}

// replaceEnvVars 替换 ${VAR} 形式的占位值
func replaceEnvVars(config Config) Config {
	config.Collector.ID = expandPlaceholder(config.Collector.ID)
	config.Storage.Minio.AccessKey = expandPlaceholder(config.Storage.Minio.AccessKey)
	config.Storage.Minio.SecretKey = expandPlaceholder(config.Storage.Minio.SecretKey)
	return config
}

func expandPlaceholder(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		envVar := strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}")
		if value := os.Getenv(envVar); value != "" {
			return value
		}
	}
	return s
}

// Get 获取全局配置
func Get() *Config {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalConfig
}

// GetServerAddr 获取服务器地址
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
