package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Serial   SerialConfig   `mapstructure:"serial"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Log      LogConfig      `mapstructure:"log"`
	Security SecurityConfig `mapstructure:"security"`
}

// ServerConfig HTTP控制面配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SerialConfig 串口配置
//
// 波特率、数据位、停止位、校验位由设备型号决定，不在配置中出现。
type SerialConfig struct {
	Driver        string        `mapstructure:"driver"` // tarm | bugst | sim
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	FrameInterval time.Duration `mapstructure:"frame_interval"` // 多帧命令之间的间隔
	Printer       PrinterConfig `mapstructure:"printer"`
	Deposit       DeviceConfig  `mapstructure:"deposit"`
	Dispenser     DeviceConfig  `mapstructure:"dispenser"`
}

// DeviceConfig 单个设备配置
type DeviceConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Port     string `mapstructure:"port"`
	AutoOpen bool   `mapstructure:"auto_open"`
}

// PrinterConfig 打印机配置
type PrinterConfig struct {
	DeviceConfig `mapstructure:",squash"`
	Model        string `mapstructure:"model"` // tgp58 | escpos
}

// LedgerConfig 内存账本配置
type LedgerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	FrameLog      bool          `mapstructure:"frame_log"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	LogLevel      string        `mapstructure:"log_level"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT JWTConfig `mapstructure:"jwt"`
}

// JWTConfig JWT配置，Secret为空时不启用鉴权
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	Issuer      string `mapstructure:"issuer"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化全局配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		var loaded *Config
		v, loaded, err = load(configPath)
		if err != nil {
			return
		}
		mu.Lock()
		cfg = loaded
		mu.Unlock()
	})
	return err
}

// Load 读取一份独立的配置，不影响全局实例
func Load(configPath string) (*Config, error) {
	_, c, err := load(configPath)
	return c, err
}

func load(configPath string) (*viper.Viper, *Config, error) {
	vp := viper.New()
	if configPath != "" {
		vp.SetConfigFile(configPath)
	} else {
		vp.SetConfigName("config")
		vp.SetConfigType("yaml")
		vp.AddConfigPath("./config")
		vp.AddConfigPath(".")
	}

	vp.SetEnvPrefix("KIOSK")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	if err := vp.ReadInConfig(); err != nil {
		// 找不到配置文件时使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
	}

	c := &Config{}
	if err := vp.Unmarshal(c); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	return vp, c, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "5s")

	v.SetDefault("serial.driver", "tarm")
	v.SetDefault("serial.read_timeout", "100ms")
	v.SetDefault("serial.frame_interval", "500ms")
	v.SetDefault("serial.printer.enabled", false)
	v.SetDefault("serial.printer.model", "tgp58")
	v.SetDefault("serial.printer.port", "/dev/ttyUSB0")
	v.SetDefault("serial.printer.auto_open", true)
	v.SetDefault("serial.deposit.enabled", false)
	v.SetDefault("serial.deposit.port", "/dev/ttyUSB1")
	v.SetDefault("serial.deposit.auto_open", true)
	v.SetDefault("serial.dispenser.enabled", false)
	v.SetDefault("serial.dispenser.port", "/dev/ttyUSB2")
	v.SetDefault("serial.dispenser.auto_open", true)

	v.SetDefault("ledger.enabled", true)
	v.SetDefault("ledger.frame_log", true)
	v.SetDefault("ledger.batch_size", 100)
	v.SetDefault("ledger.flush_interval", "2s")
	v.SetDefault("ledger.log_level", "warn")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "kiosk-devices.log")
	v.SetDefault("log.file.max_size", 50)
	v.SetDefault("log.file.max_age", 14)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)

	v.SetDefault("security.jwt.issuer", "kiosk-devices")
	v.SetDefault("security.jwt.expire_hours", 12)
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Serial.Driver {
	case "tarm", "bugst", "sim":
	default:
		return fmt.Errorf("serial.driver: unsupported driver %q", c.Serial.Driver)
	}
	switch c.Serial.Printer.Model {
	case "tgp58", "escpos":
	default:
		return fmt.Errorf("serial.printer.model: unsupported model %q", c.Serial.Printer.Model)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: %d out of range", c.Server.Port)
	}
	return nil
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	if v == nil {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		if err := newCfg.Validate(); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}

		mu.Lock()
		cfg = newCfg
		mu.Unlock()

		if callback != nil {
			callback(newCfg)
		}
	})
	v.WatchConfig()
}
