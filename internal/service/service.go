package service

import (
	"time"

	"github.com/wfunc/kiosk-devices/internal/config"
	"github.com/wfunc/kiosk-devices/internal/repository"
	"github.com/wfunc/kiosk-devices/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config 服务配置
type Config struct {
	JWTSecret     string
	JWTIssuer     string
	TokenExpiry   time.Duration
	FrameLog      bool
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig 默认配置，JWTSecret 为空表示不启用鉴权
func DefaultConfig() *Config {
	return &Config{
		JWTIssuer:     "kiosk-devices",
		TokenExpiry:   12 * time.Hour,
		FrameLog:      true,
		BatchSize:     100,
		FlushInterval: 2 * time.Second,
	}
}

// ConfigFrom 从全局配置生成服务配置
func ConfigFrom(cfg *config.Config) *Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	c.JWTSecret = cfg.Security.JWT.Secret
	if cfg.Security.JWT.Issuer != "" {
		c.JWTIssuer = cfg.Security.JWT.Issuer
	}
	if cfg.Security.JWT.ExpireHours > 0 {
		c.TokenExpiry = time.Duration(cfg.Security.JWT.ExpireHours) * time.Hour
	}
	c.FrameLog = cfg.Ledger.FrameLog
	if cfg.Ledger.BatchSize > 0 {
		c.BatchSize = cfg.Ledger.BatchSize
	}
	if cfg.Ledger.FlushInterval > 0 {
		c.FlushInterval = cfg.Ledger.FlushInterval
	}
	return c
}

// Services 服务集合
type Services struct {
	Ledger *LedgerService
	Frames *FrameLogService // 未启用帧日志时为 nil
	Auth   AuthService
}

// NewServices 创建服务集合；db 为 nil 时只提供鉴权服务
func NewServices(db *gorm.DB, cfg *Config, log *zap.Logger) *Services {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}

	jwtManager := utils.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenExpiry)
	services := &Services{
		Auth: NewAuthService(jwtManager, cfg.JWTSecret != "", log),
	}
	if db == nil {
		return services
	}

	repos := repository.NewManager(db)
	services.Ledger = NewLedgerService(repos.Ledger(), log)
	if cfg.FrameLog {
		services.Frames = NewFrameLogService(repos.FrameLog(), log,
			WithBatchSize(cfg.BatchSize),
			WithFlushInterval(cfg.FlushInterval))
	}
	return services
}

// Close 写完账本与帧日志缓冲
func (s *Services) Close() {
	if s.Ledger != nil {
		s.Ledger.Close()
	}
	if s.Frames != nil {
		s.Frames.Close()
	}
}
