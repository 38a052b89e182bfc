package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/kiosk-devices/internal/middleware"
	"github.com/wfunc/kiosk-devices/internal/service"
	"github.com/wfunc/kiosk-devices/internal/utils"
	"github.com/wfunc/kiosk-devices/internal/websocket"
	"go.uber.org/zap"
)

// Deps 路由依赖，Ledger/Frames/Hub/Storage 可为 nil
type Deps struct {
	Devices Devices
	Auth    service.AuthService
	Ledger  LedgerReader
	Frames  FrameReader
	Hub     *websocket.Hub
	Logger  *zap.Logger

	// Storage 账本存储是否可用，未启用账本时为 nil
	Storage func() bool
}

// Router API路由器
type Router struct {
	engine         *gin.Engine
	deps           Deps
	authMiddleware *middleware.AuthMiddleware
	log            *zap.Logger
	startTime      time.Time
}

// NewRouter 创建路由器
func NewRouter(deps Deps) *Router {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Auth == nil {
		deps.Auth = service.NewAuthService(utils.NewJWTManager("", "", 0), false, deps.Logger)
	}

	engine := gin.New()
	engine.Use(middleware.RequestID(), middleware.Recovery(), middleware.Logger())

	r := &Router{
		engine:         engine,
		deps:           deps,
		authMiddleware: middleware.NewAuthMiddleware(deps.Auth),
		log:            deps.Logger,
		startTime:      time.Now(),
	}
	r.setupRoutes()
	return r
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.healthCheck)

	devices := NewDeviceHandler(r.deps.Devices)
	printer := NewPrinterHandler(r.deps.Devices)
	deposit := NewDepositHandler(r.deps.Devices)
	dispenser := NewDispenserHandler(r.deps.Devices)
	ledger := NewLedgerHandler(r.deps.Ledger, r.deps.Frames)

	// 驱动设备的接口只对操作员开放
	operator := r.authMiddleware.RequireRole(utils.RoleOperator)

	v1 := r.engine.Group("/api/v1")
	v1.Use(r.authMiddleware.RequireAuth())
	{
		d := v1.Group("/devices")
		{
			d.GET("", devices.List)
			d.POST("/:device/open", operator, devices.Open)
			d.POST("/:device/close", operator, devices.Close)
			d.GET("/:device/inbound", devices.Inbound)
			d.DELETE("/:device/inbound", operator, devices.ClearInbound)
		}

		p := v1.Group("/printer")
		{
			p.GET("", printer.Get)
			p.POST("/text", operator, printer.PrintText)
			p.POST("/padded", operator, printer.PrintPadded)
			p.POST("/cut", operator, printer.Cut)
			p.POST("/report", operator, printer.Report)
			p.POST("/status", operator, printer.Status)
			p.POST("/firmware", operator, printer.Firmware)
			p.POST("/voucher", operator, printer.Voucher)
			p.POST("/datetime", operator, printer.DateTime)
		}

		dep := v1.Group("/deposit")
		{
			dep.GET("", deposit.Get)
			dep.POST("/confirm", operator, deposit.Confirm)
			dep.POST("/cancel", operator, deposit.Cancel)
			dep.POST("/close", operator, deposit.Close)
			dep.POST("/reopen", operator, deposit.Reopen)
		}

		dis := v1.Group("/dispenser")
		{
			dis.GET("", dispenser.Get)
			dis.POST("/dispense", operator, dispenser.Dispense)
			dis.POST("/status", operator, dispenser.Status)
			dis.POST("/count", operator, dispenser.Count)
			dis.POST("/clear", operator, dispenser.Clear)
		}

		v1.GET("/ledger", ledger.Ledger)
		v1.GET("/frames", ledger.Frames)
		v1.GET("/frames/search", ledger.SearchFrames)
		v1.DELETE("/frames", operator, ledger.CleanupFrames)

		if r.deps.Hub != nil {
			v1.GET("/events", r.deps.Hub.ServeWS)
		}
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	status := http.StatusOK
	state := "healthy"
	if !r.deps.Devices.IsRunning() {
		status = http.StatusServiceUnavailable
		state = "stopped"
	}
	body := gin.H{
		"status":  state,
		"uptime":  time.Since(r.startTime).Truncate(time.Second).String(),
		"devices": r.deps.Devices.Snapshots(),
	}
	if r.deps.Storage != nil {
		if r.deps.Storage() {
			body["storage"] = "connected"
		} else {
			if status == http.StatusOK {
				body["status"] = "degraded"
			}
			status = http.StatusServiceUnavailable
			body["storage"] = "disconnected"
		}
	}
	c.JSON(status, body)
}

// Handler 返回 http.Handler（用于测试）
func (r *Router) Handler() http.Handler {
	return r.engine
}

// Server HTTP控制面服务
type Server struct {
	srv *http.Server
	log *zap.Logger
}

// NewServer 创建HTTP服务
func NewServer(addr string, router *Router, readTimeout, writeTimeout time.Duration) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      router.engine,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
		log: router.log,
	}
}

// Start 在后台监听，返回监听错误通道
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("启动HTTP控制面", zap.String("address", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
