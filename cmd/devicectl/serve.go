package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/wfunc/kiosk-devices/internal/api"
	"github.com/wfunc/kiosk-devices/internal/config"
	"github.com/wfunc/kiosk-devices/internal/database"
	apperrors "github.com/wfunc/kiosk-devices/internal/errors"
	"github.com/wfunc/kiosk-devices/internal/hardware"
	"github.com/wfunc/kiosk-devices/internal/logger"
	"github.com/wfunc/kiosk-devices/internal/service"
	"github.com/wfunc/kiosk-devices/internal/websocket"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 控制面并打开已配置的设备",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Cleanup()

		server := NewServer(cfg)
		if err := server.Start(); err != nil {
			return err
		}
		server.WaitForShutdown()
		return server.Shutdown()
	},
}

// Server 控制面进程
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	manager  *hardware.Manager
	services *service.Services
	hub      *websocket.Hub
	http     *api.Server
	httpErr  <-chan error

	events       <-chan hardware.Event
	eventsCancel func()

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 初始化账本、设备与控制面
func (s *Server) Start() error {
	s.logger.Info("正在启动设备控制服务...",
		zap.String("version", Version),
		zap.String("driver", s.cfg.Serial.Driver))

	if err := s.initLedger(); err != nil {
		return err
	}

	opts := []hardware.Option{hardware.WithLogger(logger.WithModule("hardware"))}
	if s.services.Ledger != nil {
		opts = append(opts, hardware.WithLedger(s.services.Ledger))
	}
	if s.services.Frames != nil {
		opts = append(opts, hardware.WithRecorder(s.services.Frames))
	}
	manager, err := hardware.NewManager(s.cfg.Serial, opts...)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrConfigValidate, "创建设备管理器失败")
	}
	s.manager = manager

	// 先订阅事件，避免丢失自动打开阶段的状态变化
	s.events, s.eventsCancel = manager.Events(256)
	s.hub = websocket.NewHub(manager.Snapshots, logger.WithModule("websocket"))
	go s.hub.Run(s.ctx)
	go s.hub.Pump(s.ctx, s.events)

	if err := manager.Start(s.ctx); err != nil {
		return err
	}

	router := api.NewRouter(api.Deps{
		Devices: manager,
		Auth:    s.services.Auth,
		Ledger:  ledgerReader(s.services),
		Frames:  frameReader(s.services),
		Hub:     s.hub,
		Logger:  logger.WithModule("http"),
		Storage: storageCheck(s.cfg),
	})
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.http = api.NewServer(addr, router, s.cfg.Server.ReadTimeout, s.cfg.Server.WriteTimeout)
	s.httpErr = s.http.Start()

	// 日志级别支持热更新，串口参数需要重启
	config.Watch(func(newCfg *config.Config) {
		previous := logger.Level()
		logger.SetLevel(newCfg.Log.Level)
		s.logger.Info("配置已更新",
			zap.String("log_level", logger.Level()),
			zap.String("previous_level", previous))
	})

	if !s.services.Auth.Enabled() {
		s.logger.Warn("未配置 security.jwt.secret，控制面不做鉴权")
	}
	s.logger.Info("设备控制服务启动成功", zap.String("http", addr))
	return nil
}

func (s *Server) initLedger() error {
	if !s.cfg.Ledger.Enabled {
		s.services = service.NewServices(nil, service.ConfigFrom(s.cfg), logger.WithModule("service"))
		return nil
	}
	if err := database.Init(&s.cfg.Ledger); err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "初始化账本失败")
	}
	s.services = service.NewServices(database.GetDB(), service.ConfigFrom(s.cfg), logger.WithModule("service"))
	return nil
}

// ledgerReader 账本未启用时返回 nil 接口
func ledgerReader(services *service.Services) api.LedgerReader {
	if services.Ledger == nil {
		return nil
	}
	return services.Ledger
}

// storageCheck 账本启用时健康检查探测数据库连接
func storageCheck(cfg *config.Config) func() bool {
	if !cfg.Ledger.Enabled {
		return nil
	}
	return database.IsConnected
}

func frameReader(services *service.Services) api.FrameReader {
	if services.Frames == nil {
		return nil
	}
	return services.Frames
}

// WaitForShutdown 等待退出信号或 HTTP 监听失败
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
	case err, ok := <-s.httpErr:
		if ok {
			s.logger.Error("HTTP控制面异常退出", zap.Error(err))
		}
	}
}

// Shutdown 优雅关闭：先停 HTTP，再关设备，最后写完帧日志
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭...")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var firstErr error
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			s.logger.Error("关闭HTTP控制面失败", zap.Error(err))
			firstErr = err
		}
	}
	if s.manager != nil {
		if err := s.manager.Stop(); err != nil {
			s.logger.Error("关闭设备失败", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if s.eventsCancel != nil {
		s.eventsCancel()
	}
	s.cancel()

	if s.services != nil {
		s.services.Close()
	}
	if s.cfg.Ledger.Enabled {
		if err := database.Close(); err != nil {
			s.logger.Error("关闭账本失败", zap.Error(err))
		}
	}

	s.logger.Info("设备控制服务已关闭")
	return firstErr
}
