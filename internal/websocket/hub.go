package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/wfunc/kiosk-devices/internal/hardware"
	"go.uber.org/zap"
)

// Message WebSocket消息
type Message struct {
	Type      string          `json:"type"`             // 消息类型
	Device    string          `json:"device,omitempty"` // printer | deposit | dispenser
	Data      json.RawMessage `json:"data,omitempty"`   // 消息数据
	Timestamp int64           `json:"timestamp"`        // Unix毫秒
}

// MessageType 消息类型
const (
	// 系统消息
	MessageTypeConnected = "connected"
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
	MessageTypeError     = "error"

	// 客户端请求
	MessageTypeSubscribe = "subscribe"
	MessageTypeSnapshot  = "snapshot"

	// 设备事件
	MessageTypeConnection = "connection"
	MessageTypeState      = "state"
)

// SnapshotFunc 返回全部设备的当前快照
type SnapshotFunc func() hardware.Snapshots

// Hub WebSocket连接管理中心
type Hub struct {
	clients   map[string]*Client
	clientsMu sync.RWMutex

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	snapshot SnapshotFunc
	logger   *zap.Logger
}

// NewHub 创建Hub，snapshot 可为 nil
func NewHub(snapshot SnapshotFunc, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		snapshot:   snapshot,
		logger:     logger,
	}
}

// Run 运行Hub，ctx 取消后断开所有客户端
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.clientsMu.Lock()
		for id, client := range h.clients {
			delete(h.clients, id)
			close(client.send)
		}
		h.clientsMu.Unlock()
	}()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-ctx.Done():
			return
		}
	}
}

// Pump 把设备事件转发给所有客户端，直到 events 关闭或 ctx 取消
func (h *Hub) Pump(ctx context.Context, events <-chan hardware.Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			msg, err := EventMessage(ev)
			if err != nil {
				h.logger.Error("序列化设备事件失败", zap.String("device", ev.Device), zap.Error(err))
				continue
			}
			h.Broadcast(msg)
		case <-ctx.Done():
			return
		}
	}
}

// EventMessage 设备事件转为消息
func EventMessage(ev hardware.Event) (*Message, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, err
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	return &Message{
		Type:      ev.Type,
		Device:    ev.Device,
		Data:      data,
		Timestamp: at.UnixMilli(),
	}, nil
}

func newMessage(msgType string, data interface{}) *Message {
	msg := &Message{Type: msgType, Timestamp: time.Now().UnixMilli()}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			msg.Data = raw
		}
	}
	return msg
}

func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket客户端连接",
		zap.String("client_id", client.ID),
		zap.String("operator", client.Operator))

	h.SendToClient(client.ID, newMessage(MessageTypeConnected, map[string]string{"client_id": client.ID}))
	h.sendSnapshot(client)
}

func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.send)
	}
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket客户端断开",
		zap.String("client_id", client.ID),
		zap.String("operator", client.Operator))
}

func (h *Hub) sendSnapshot(client *Client) {
	if h.snapshot == nil {
		return
	}
	h.SendToClient(client.ID, newMessage(MessageTypeSnapshot, h.snapshot()))
}

// broadcastMessage 按订阅过滤后发送
func (h *Hub) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.Error(err))
		return
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for _, client := range h.clients {
		if !client.Wants(message.Device) {
			continue
		}
		select {
		case client.send <- data:
		default:
			h.logger.Warn("客户端发送缓冲区满，丢弃消息",
				zap.String("client_id", client.ID),
				zap.String("type", message.Type))
		}
	}
}

// SendToClient 发送消息给指定客户端
func (h *Hub) SendToClient(clientID string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	client, ok := h.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}

	select {
	case client.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// GetOnlineCount 在线客户端数
func (h *Hub) GetOnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Broadcast 广播消息，Hub 停止后丢弃
func (h *Hub) Broadcast(message *Message) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// Register 注册客户端
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
