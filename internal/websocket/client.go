package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 错误定义
var (
	ErrClientNotFound = errors.New("客户端未找到")
	ErrSendBufferFull = errors.New("发送缓冲区已满")
)

// WebSocket配置
const (
	// 写超时
	writeWait = 10 * time.Second

	// 读取pong超时
	pongWait = 60 * time.Second

	// ping发送周期（必须小于pongWait）
	pingPeriod = (pongWait * 9) / 10

	// 最大消息大小
	maxMessageSize = 4 * 1024
)

// Client WebSocket客户端
type Client struct {
	ID       string
	Operator string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte

	mu      sync.RWMutex
	devices map[string]bool // 为空表示订阅全部设备
}

// subscribeRequest subscribe 消息的数据
type subscribeRequest struct {
	Devices []string `json:"devices"`
}

// NewClient 创建新客户端
func NewClient(hub *Hub, conn *websocket.Conn, operator string) *Client {
	return &Client{
		ID:       uuid.New().String(),
		Operator: operator,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
	}
}

// Wants 是否订阅了该设备的事件；不带设备的消息总是发送
func (c *Client) Wants(device string) bool {
	if device == "" {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.devices) == 0 || c.devices[device]
}

// Subscribe 设置订阅的设备，空列表表示全部
func (c *Client) Subscribe(devices []string) {
	set := make(map[string]bool, len(devices))
	for _, d := range devices {
		set[d] = true
	}
	c.mu.Lock()
	c.devices = set
	c.mu.Unlock()
}

// ReadPump 读取消息
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket读取错误",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			return
		}

		if !c.handleMessage(message) {
			return
		}
	}
}

// WritePump 写入消息，每条消息一帧
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub关闭了通道
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理客户端消息，返回 false 表示断开连接
func (c *Client) handleMessage(data []byte) bool {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		c.hub.logger.Warn("无效的WebSocket消息",
			zap.String("client_id", c.ID),
			zap.ByteString("data", data))
		c.sendError("消息格式错误")
		return false
	}

	switch msg.Type {
	case MessageTypePing:
		c.hub.SendToClient(c.ID, newMessage(MessageTypePong, nil))

	case MessageTypePong:
		c.hub.logger.Debug("收到pong", zap.String("client_id", c.ID))

	case MessageTypeSubscribe:
		var req subscribeRequest
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				c.sendError("订阅参数错误")
				return true
			}
		}
		c.Subscribe(req.Devices)
		c.hub.sendSnapshot(c)

	case MessageTypeSnapshot:
		c.hub.sendSnapshot(c)

	default:
		c.hub.logger.Warn("收到不支持的消息类型",
			zap.String("client_id", c.ID),
			zap.String("type", msg.Type))
		c.sendError("不支持的消息类型: " + msg.Type)
	}
	return true
}

// sendError 发送错误消息
func (c *Client) sendError(message string) {
	c.hub.SendToClient(c.ID, newMessage(MessageTypeError, map[string]string{"error": message}))
}
