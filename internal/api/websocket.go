// internal/api/websocket.go
package api

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Corphon/ScreenplayStudio/internal/services"
	"github.com/Corphon/ScreenplayStudio/internal/utils"
)

const (
	// 客户端必须在该时间内有读写活动
	wsReadTimeout = 60 * time.Second
	// 心跳间隔，必须小于读超时
	wsPingPeriod = 54 * time.Second
	wsWriteWait  = 10 * time.Second
	// 单个客户端发送缓冲区
	wsSendBuffer = 256
	// 单条消息最大字节数
	wsMaxMessageSize = 64 * 1024
)

// 推送给客户端的消息类型
const (
	MessageTypeConnected    = "connected"
	MessageTypeStateChanged = "state:changed"
	MessageTypePagination   = "pagination:changed"
	MessageTypePong         = "pong"
	MessageTypeSessionState = "session:state"
	MessageTypeError        = "error"
	messageTypePing         = "ping"
	messageTypeGetState     = "get_state"
)

// WebSocketConnection 抽象出的连接接口，便于测试
type WebSocketConnection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// WebSocketMessage 客户端与服务端之间的消息
type WebSocketMessage struct {
	Type      string          `json:"type"`
	ScriptID  string          `json:"script_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// WebSocketClient 订阅某个剧本的客户端
type WebSocketClient struct {
	ID        string
	ScriptID  string
	Conn      WebSocketConnection
	Send      chan []byte
	CreatedAt time.Time

	lastActive int64 // unix nano
	closed     int32
	done       chan struct{}
}

// NewWebSocketClient 创建客户端
func NewWebSocketClient(id, scriptID string, conn WebSocketConnection) *WebSocketClient {
	now := time.Now()
	return &WebSocketClient{
		ID:         id,
		ScriptID:   scriptID,
		Conn:       conn,
		Send:       make(chan []byte, wsSendBuffer),
		CreatedAt:  now,
		lastActive: now.UnixNano(),
		done:       make(chan struct{}),
	}
}

// Close 关闭客户端，可重复调用
func (c *WebSocketClient) Close() {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return
	}
	close(c.done)
	if c.Conn != nil {
		c.Conn.Close()
	}
}

// IsClosed 检查客户端是否已关闭
func (c *WebSocketClient) IsClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// Done 客户端关闭时关闭的通道
func (c *WebSocketClient) Done() <-chan struct{} {
	return c.done
}

func (c *WebSocketClient) touch() {
	atomic.StoreInt64(&c.lastActive, time.Now().UnixNano())
}

// LastActive 最近一次收到消息的时间
func (c *WebSocketClient) LastActive() time.Time {
	return time.Unix(0, atomic.LoadInt64(&c.lastActive))
}

// SendMessage 非阻塞发送；缓冲区满或已关闭时返回 false
func (c *WebSocketClient) SendMessage(message []byte) bool {
	if c.IsClosed() {
		return false
	}
	select {
	case c.Send <- message:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// WebSocketManager 按剧本分组管理连接，并把会话和分页变化推送给订阅者
type WebSocketManager struct {
	rooms      map[string]map[*WebSocketClient]struct{}
	mutex      sync.RWMutex
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	stop       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	logger     *utils.Logger
	metrics    *utils.MetricsCollector

	sent    int64
	dropped int64
}

var (
	_ services.StateNotifier      = (*WebSocketManager)(nil)
	_ services.PaginationNotifier = (*WebSocketManager)(nil)
)

// NewWebSocketManager 创建并启动连接管理器
func NewWebSocketManager(metrics *utils.MetricsCollector) *WebSocketManager {
	if metrics == nil {
		metrics = utils.GetMetricsCollector()
	}
	m := &WebSocketManager{
		rooms:      make(map[string]map[*WebSocketClient]struct{}),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient, 64),
		stop:       make(chan struct{}),
		logger:     utils.GetLogger().Named("websocket"),
		metrics:    metrics,
	}
	m.wg.Add(1)
	go m.run()
	return m
}

func (m *WebSocketManager) run() {
	defer m.wg.Done()
	for {
		select {
		case client := <-m.register:
			m.addClient(client)
		case client := <-m.unregister:
			m.removeClient(client)
		case <-m.stop:
			m.closeAll()
			return
		}
	}
}

// Register 登记客户端；管理器已停止时返回 false
func (m *WebSocketManager) Register(client *WebSocketClient) bool {
	select {
	case m.register <- client:
		return true
	case <-m.stop:
		return false
	}
}

// Unregister 注销客户端并关闭连接
func (m *WebSocketManager) Unregister(client *WebSocketClient) {
	select {
	case m.unregister <- client:
	case <-m.stop:
		client.Close()
	}
}

func (m *WebSocketManager) addClient(client *WebSocketClient) {
	m.mutex.Lock()
	room, ok := m.rooms[client.ScriptID]
	if !ok {
		room = make(map[*WebSocketClient]struct{})
		m.rooms[client.ScriptID] = room
	}
	room[client] = struct{}{}
	m.mutex.Unlock()

	m.metrics.IncGauge("websocket_connections")
	m.logger.Info("client connected", map[string]interface{}{
		"client_id": client.ID,
		"script_id": client.ScriptID,
	})
}

func (m *WebSocketManager) removeClient(client *WebSocketClient) {
	m.mutex.Lock()
	room, ok := m.rooms[client.ScriptID]
	_, member := room[client]
	if ok && member {
		delete(room, client)
		if len(room) == 0 {
			delete(m.rooms, client.ScriptID)
		}
	}
	m.mutex.Unlock()

	client.Close()
	if member {
		m.metrics.DecGauge("websocket_connections")
		m.logger.Info("client disconnected", map[string]interface{}{
			"client_id": client.ID,
			"script_id": client.ScriptID,
		})
	}
}

func (m *WebSocketManager) closeAll() {
	m.mutex.Lock()
	rooms := m.rooms
	m.rooms = make(map[string]map[*WebSocketClient]struct{})
	m.mutex.Unlock()

	for _, room := range rooms {
		for client := range room {
			client.Close()
			m.metrics.DecGauge("websocket_connections")
		}
	}
}

// Stop 停止管理器并断开所有客户端
func (m *WebSocketManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	m.wg.Wait()
}

// clients 某个剧本当前的订阅者
func (m *WebSocketManager) clients(scriptID string) []*WebSocketClient {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	room := m.rooms[scriptID]
	list := make([]*WebSocketClient, 0, len(room))
	for client := range room {
		list = append(list, client)
	}
	return list
}

// ClientCount 某个剧本的订阅者数量
func (m *WebSocketManager) ClientCount(scriptID string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms[scriptID])
}

// encodeMessage 序列化一条推送消息
func encodeMessage(messageType, scriptID string, payload interface{}) ([]byte, error) {
	msg := WebSocketMessage{
		Type:      messageType,
		ScriptID:  scriptID,
		Timestamp: time.Now(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Data = data
	}
	return json.Marshal(msg)
}

// BroadcastToScript 向剧本的所有订阅者推送消息。
// 发送缓冲区已满的客户端会被断开。
func (m *WebSocketManager) BroadcastToScript(scriptID, messageType string, payload interface{}) int {
	message, err := encodeMessage(messageType, scriptID, payload)
	if err != nil {
		m.logger.Error("failed to encode websocket message", map[string]interface{}{
			"type":  messageType,
			"error": err.Error(),
		})
		return 0
	}

	delivered := 0
	for _, client := range m.clients(scriptID) {
		if client.SendMessage(message) {
			delivered++
			continue
		}
		atomic.AddInt64(&m.dropped, 1)
		m.metrics.IncrementCounter("websocket_messages_dropped")
		m.logger.Warn("client send buffer full, disconnecting", map[string]interface{}{
			"client_id": client.ID,
			"script_id": scriptID,
		})
		m.Unregister(client)
	}
	atomic.AddInt64(&m.sent, int64(delivered))
	m.metrics.AddCounter("websocket_messages_sent", int64(delivered))
	return delivered
}

// NotifyStateChange 推送会话状态变化
func (m *WebSocketManager) NotifyStateChange(event services.StateChangeEvent) {
	m.BroadcastToScript(event.ScriptID, MessageTypeStateChanged, event)
}

// NotifyPagination 推送分页结果
func (m *WebSocketManager) NotifyPagination(result services.PageResult) {
	m.BroadcastToScript(result.ScriptID, MessageTypePagination, result)
}

// GetStatus 获取连接状态
func (m *WebSocketManager) GetStatus() map[string]interface{} {
	m.mutex.RLock()
	total := 0
	rooms := make(map[string]int, len(m.rooms))
	for scriptID, room := range m.rooms {
		rooms[scriptID] = len(room)
		total += len(room)
	}
	m.mutex.RUnlock()

	return map[string]interface{}{
		"total_connections": total,
		"scripts":           rooms,
		"messages_sent":     atomic.LoadInt64(&m.sent),
		"messages_dropped":  atomic.LoadInt64(&m.dropped),
	}
}
