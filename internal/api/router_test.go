package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/kiosk-devices/internal/config"
	"github.com/wfunc/kiosk-devices/internal/hardware"
	"github.com/wfunc/kiosk-devices/internal/repository"
	"github.com/wfunc/kiosk-devices/internal/service"
	"github.com/wfunc/kiosk-devices/internal/utils"
	"github.com/wfunc/kiosk-devices/internal/websocket"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func simSerialConfig() config.SerialConfig {
	return config.SerialConfig{
		Driver:      hardware.DriverSim,
		ReadTimeout: 20 * time.Millisecond,
		Printer: config.PrinterConfig{
			DeviceConfig: config.DeviceConfig{Enabled: true, Port: "/dev/ttyUSB0", AutoOpen: true},
			Model:        string(hardware.DeviceTGP58),
		},
		Deposit:   config.DeviceConfig{Enabled: true, Port: "/dev/ttyUSB1", AutoOpen: true},
		Dispenser: config.DeviceConfig{Enabled: true, Port: "/dev/ttyUSB2", AutoOpen: true},
	}
}

// RouterTestSuite 控制面路由测试套件
type RouterTestSuite struct {
	suite.Suite
	secret   string
	manager  *hardware.Manager
	services *service.Services
	hub      *websocket.Hub
	router   *Router
	cancel   context.CancelFunc
}

func (s *RouterTestSuite) SetupTest() {
	cfg := service.DefaultConfig()
	cfg.JWTSecret = s.secret
	cfg.FlushInterval = time.Hour
	s.services = service.NewServices(repository.SetupTestDB(s.T()), cfg, zap.NewNop())

	sim := hardware.NewSimulator()
	sim.NoteInterval = time.Hour
	sim.DispenseDelay = 10 * time.Millisecond
	m, err := hardware.NewManagerWithOpener(simSerialConfig(), sim,
		hardware.WithLogger(zap.NewNop()),
		hardware.WithFrameInterval(0),
		hardware.WithLedger(s.services.Ledger),
		hardware.WithRecorder(s.services.Frames))
	s.Require().NoError(err)
	s.Require().NoError(m.Start(context.Background()))
	s.manager = m

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.hub = websocket.NewHub(m.Snapshots, zap.NewNop())
	go s.hub.Run(ctx)

	s.router = NewRouter(Deps{
		Devices: m,
		Auth:    s.services.Auth,
		Ledger:  s.services.Ledger,
		Frames:  s.services.Frames,
		Hub:     s.hub,
	})
}

func (s *RouterTestSuite) TearDownTest() {
	s.cancel()
	s.manager.Stop()
	s.services.Close()
}

func (s *RouterTestSuite) request(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.True(t, envelope.Success, w.Body.String())
	if v != nil {
		require.NoError(t, json.Unmarshal(envelope.Data, v))
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) int {
	t.Helper()
	var resp struct {
		Error struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Error.Code
}

// openRouterSuite 未配置密钥，接口不做鉴权
type openRouterSuite struct {
	RouterTestSuite
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(openRouterSuite))
}

func (s *openRouterSuite) TestHealth() {
	w := s.request(http.MethodGet, "/health", nil, "")
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"status":"healthy"`)

	w = s.request(http.MethodGet, "/nowhere", nil, "")
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *openRouterSuite) TestListDevices() {
	w := s.request(http.MethodGet, "/api/v1/devices", nil, "")
	s.Require().Equal(http.StatusOK, w.Code)

	var resp DevicesResponse
	decode(s.T(), w, &resp)
	s.True(resp.Running)
	s.Require().NotNil(resp.Devices.Dispenser)
	s.Equal(hardware.StatusConnected, resp.Devices.Dispenser.Connection)
}

func (s *openRouterSuite) TestOpenCloseAndInbound() {
	w := s.request(http.MethodPost, "/api/v1/devices/dispenser/close", nil, "")
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(hardware.StatusDisconnected, s.manager.Snapshots().Dispenser.Connection)

	// 断开时出钞返回冲突
	w = s.request(http.MethodPost, "/api/v1/dispenser/dispense", gin.H{"amount": 100}, "")
	s.Equal(http.StatusConflict, w.Code)

	w = s.request(http.MethodPost, "/api/v1/devices/dispenser/open", nil, "")
	s.Require().Equal(http.StatusOK, w.Code)

	w = s.request(http.MethodPost, "/api/v1/dispenser/status", nil, "")
	s.Require().Equal(http.StatusOK, w.Code)
	s.Eventually(func() bool {
		sess, err := s.manager.Session(hardware.RoleDispenser)
		return err == nil && sess.Inbound().Len() > 0
	}, time.Second, 10*time.Millisecond)

	w = s.request(http.MethodGet, "/api/v1/devices/dispenser/inbound", nil, "")
	s.Require().Equal(http.StatusOK, w.Code)
	var inbound InboundResponse
	decode(s.T(), w, &inbound)
	s.NotZero(inbound.Length)
	s.NotEmpty(inbound.Hex)

	w = s.request(http.MethodDelete, "/api/v1/devices/dispenser/inbound", nil, "")
	s.Require().Equal(http.StatusOK, w.Code)

	w = s.request(http.MethodPost, "/api/v1/devices/coffee/open", nil, "")
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *openRouterSuite) TestDispenseWritesLedger() {
	w := s.request(http.MethodPost, "/api/v1/dispenser/dispense", gin.H{"amount": 100}, "")
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var resp LedgerResponse
	s.Eventually(func() bool {
		w := s.request(http.MethodGet, "/api/v1/ledger", nil, "")
		if w.Code != http.StatusOK {
			return false
		}
		decode(s.T(), w, &resp)
		return resp.Totals.Dispensed == 100
	}, time.Second, 10*time.Millisecond)
	s.Equal(s.services.Ledger.SessionID(), resp.SessionID)
	s.Equal(int64(-100), resp.Net)

	w = s.request(http.MethodGet, "/api/v1/frames?device=xc100&limit=10", nil, "")
	s.Require().Equal(http.StatusOK, w.Code)
	var frames FramesResponse
	decode(s.T(), w, &frames)
	s.NotEmpty(frames.Frames)
	s.NotZero(frames.Stats.TotalSend)
}

func (s *openRouterSuite) TestFrameSearchAndCleanup() {
	w := s.request(http.MethodPost, "/api/v1/dispenser/status", nil, "")
	s.Require().Equal(http.StatusOK, w.Code)

	var found FrameSearchResponse
	s.Eventually(func() bool {
		w := s.request(http.MethodGet, "/api/v1/frames/search?device=xc100&direction=tx&limit=1", nil, "")
		if w.Code != http.StatusOK {
			return false
		}
		decode(s.T(), w, &found)
		return found.Total > 0
	}, time.Second, 10*time.Millisecond)
	s.Require().Len(found.Frames, 1)
	s.Equal("tx", found.Frames[0].Direction)
	s.Equal("xc100", found.Frames[0].Device)

	w = s.request(http.MethodGet, "/api/v1/frames/search?direction=sideways", nil, "")
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.request(http.MethodDelete, "/api/v1/frames", nil, "")
	s.Equal(http.StatusBadRequest, w.Code)

	// 保留一小时，刚写入的帧不受影响
	w = s.request(http.MethodDelete, "/api/v1/frames?older_than=1h", nil, "")
	s.Require().Equal(http.StatusOK, w.Code)
	var cleaned CleanupResponse
	decode(s.T(), w, &cleaned)
	s.Zero(cleaned.Deleted)

	w = s.request(http.MethodDelete, "/api/v1/frames?older_than=-1m", nil, "")
	s.Require().Equal(http.StatusOK, w.Code)
	decode(s.T(), w, &cleaned)
	s.NotZero(cleaned.Deleted)
}

func (s *openRouterSuite) TestHealthReportsStorage() {
	connected := true
	s.router = NewRouter(Deps{
		Devices: s.manager,
		Storage: func() bool { return connected },
	})

	w := s.request(http.MethodGet, "/health", nil, "")
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"storage":"connected"`)

	connected = false
	w = s.request(http.MethodGet, "/health", nil, "")
	s.Equal(http.StatusServiceUnavailable, w.Code)
	s.Contains(w.Body.String(), `"status":"degraded"`)
	s.Contains(w.Body.String(), `"storage":"disconnected"`)
}

func (s *openRouterSuite) TestDispenseValidation() {
	w := s.request(http.MethodPost, "/api/v1/dispenser/dispense", gin.H{"amount": 10000}, "")
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.request(http.MethodPost, "/api/v1/dispenser/dispense", gin.H{}, "")
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *openRouterSuite) TestPrinterRoutes() {
	w := s.request(http.MethodPost, "/api/v1/printer/text", gin.H{"text": "HELLO", "size": 3}, "")
	s.Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.request(http.MethodPost, "/api/v1/printer/text", gin.H{"text": "HELLO", "size": 7}, "")
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.request(http.MethodPost, "/api/v1/printer/voucher", gin.H{"title": "CASH", "amount": 500}, "")
	s.Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.request(http.MethodPost, "/api/v1/printer/datetime", gin.H{"time": "2024-03-09T14:05:07Z"}, "")
	s.Equal(http.StatusOK, w.Code, w.Body.String())
	w = s.request(http.MethodPost, "/api/v1/printer/datetime", nil, "")
	s.Equal(http.StatusOK, w.Code, w.Body.String())

	for _, path := range []string{"padded", "cut", "report", "status", "firmware"} {
		var body interface{}
		if path == "padded" {
			body = gin.H{"text": "HI"}
		}
		w = s.request(http.MethodPost, "/api/v1/printer/"+path, body, "")
		s.Equal(http.StatusOK, w.Code, path)
	}

	w = s.request(http.MethodGet, "/api/v1/printer", nil, "")
	s.Require().Equal(http.StatusOK, w.Code)
	var state hardware.PrinterState
	decode(s.T(), w, &state)
	s.Equal(hardware.StatusConnected, state.Connection)
}

func (s *openRouterSuite) TestDepositRoutes() {
	for _, path := range []string{"confirm", "cancel", "close", "reopen"} {
		w := s.request(http.MethodPost, "/api/v1/deposit/"+path, nil, "")
		s.Equal(http.StatusOK, w.Code, path)
	}
	w := s.request(http.MethodGet, "/api/v1/deposit", nil, "")
	s.Require().Equal(http.StatusOK, w.Code)
	var state hardware.DepositState
	decode(s.T(), w, &state)
	s.Equal(hardware.DepositIdle, state.Phase)
}

func (s *openRouterSuite) TestEventsWebSocket() {
	srv := httptest.NewServer(s.router.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events"
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg websocket.Message
	s.Require().NoError(conn.ReadJSON(&msg))
	s.Equal(websocket.MessageTypeConnected, msg.Type)
	s.Require().NoError(conn.ReadJSON(&msg))
	s.Equal(websocket.MessageTypeSnapshot, msg.Type)
}

// securedRouterSuite 配置了密钥
type securedRouterSuite struct {
	RouterTestSuite
}

func TestSecuredRouterSuite(t *testing.T) {
	s := new(securedRouterSuite)
	s.secret = "router-secret"
	suite.Run(t, s)
}

func (s *securedRouterSuite) token(role string) string {
	resp, err := s.services.Auth.IssueToken(context.Background(), "tester", role)
	s.Require().NoError(err)
	return resp.Token
}

func (s *securedRouterSuite) TestRequiresToken() {
	w := s.request(http.MethodGet, "/api/v1/devices", nil, "")
	s.Equal(http.StatusUnauthorized, w.Code)

	// 健康检查不需要令牌
	w = s.request(http.MethodGet, "/health", nil, "")
	s.Equal(http.StatusOK, w.Code)
}

func (s *securedRouterSuite) TestServiceRoleIsReadOnly() {
	token := s.token(utils.RoleService)

	w := s.request(http.MethodGet, "/api/v1/dispenser", nil, token)
	s.Equal(http.StatusOK, w.Code)

	w = s.request(http.MethodPost, "/api/v1/dispenser/dispense", gin.H{"amount": 100}, token)
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *securedRouterSuite) TestOperatorCanDrive() {
	w := s.request(http.MethodPost, "/api/v1/dispenser/count", nil, s.token(utils.RoleOperator))
	s.Equal(http.StatusOK, w.Code)
}

func (s *securedRouterSuite) TestFrameCleanupNeedsOperator() {
	w := s.request(http.MethodDelete, "/api/v1/frames?older_than=1h", nil, s.token(utils.RoleService))
	s.Equal(http.StatusForbidden, w.Code)

	w = s.request(http.MethodGet, "/api/v1/frames/search", nil, s.token(utils.RoleService))
	s.Equal(http.StatusOK, w.Code)
}

func TestUnconfiguredDeviceRoutes(t *testing.T) {
	cfg := simSerialConfig()
	cfg.Printer.Enabled = false
	m, err := hardware.NewManagerWithOpener(cfg, hardware.NewSimulator(), hardware.WithLogger(zap.NewNop()))
	require.NoError(t, err)

	r := NewRouter(Deps{Devices: m})
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/printer/cut", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotZero(t, errorCode(t, w))

	// 未启动的管理器
	w = httptest.NewRecorder()
	r.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	// 未启用账本
	w = httptest.NewRecorder()
	r.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ledger", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = httptest.NewRecorder()
	r.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/frames", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
