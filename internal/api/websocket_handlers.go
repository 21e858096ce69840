// internal/api/websocket_handlers.go
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ScriptWebSocket 订阅剧本的会话状态与分页变化
func (h *Handler) ScriptWebSocket(c *gin.Context) {
	scriptID := strings.TrimSpace(c.Param("id"))
	if scriptID == "" {
		h.Response.BadRequest(c, "剧本ID不能为空")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", map[string]interface{}{
			"script_id": scriptID,
			"error":     err.Error(),
		})
		return
	}
	conn.SetReadLimit(wsMaxMessageSize)

	client := NewWebSocketClient(uuid.New().String(), scriptID, conn)
	if !h.Hub.Register(client) {
		conn.Close()
		return
	}

	go h.handleWebSocketWrites(client)

	h.sendToClient(client, MessageTypeConnected, map[string]interface{}{
		"client_id": client.ID,
		"script_id": scriptID,
	})
	// 会话已打开时立即推送当前状态
	if view, err := h.SessionService.Get(scriptID); err == nil {
		h.sendToClient(client, MessageTypeSessionState, view)
	}

	h.handleWebSocketReads(client)
}

// sendToClient 向单个客户端发送消息
func (h *Handler) sendToClient(client *WebSocketClient, messageType string, payload interface{}) {
	message, err := encodeMessage(messageType, client.ScriptID, payload)
	if err != nil {
		return
	}
	client.SendMessage(message)
}

// handleWebSocketReads 读取客户端消息直到连接断开
func (h *Handler) handleWebSocketReads(client *WebSocketClient) {
	defer h.Hub.Unregister(client)

	conn, ok := client.Conn.(*websocket.Conn)
	if ok {
		conn.SetPongHandler(func(string) error {
			client.touch()
			return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		})
	}
	client.Conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

	for {
		_, data, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", map[string]interface{}{
					"client_id": client.ID,
					"error":     err.Error(),
				})
			}
			return
		}
		client.touch()
		client.Conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		h.handleClientMessage(client, data)
	}
}

// handleClientMessage 处理客户端请求
func (h *Handler) handleClientMessage(client *WebSocketClient, data []byte) {
	var msg WebSocketMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.sendToClient(client, MessageTypeError, gin.H{"message": "invalid message format"})
		return
	}

	switch msg.Type {
	case messageTypePing:
		h.sendToClient(client, MessageTypePong, nil)
	case messageTypeGetState:
		view, err := h.SessionService.Get(client.ScriptID)
		if err != nil {
			h.sendToClient(client, MessageTypeError, gin.H{"message": err.Error()})
			return
		}
		h.sendToClient(client, MessageTypeSessionState, view)
	default:
		h.sendToClient(client, MessageTypeError, gin.H{"message": "unknown message type " + msg.Type})
	}
}

// handleWebSocketWrites 把发送队列写入连接，并定期发送心跳
func (h *Handler) handleWebSocketWrites(client *WebSocketClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.Hub.Unregister(client)
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.Hub.Unregister(client)
				return
			}

		case <-client.Done():
			return
		}
	}
}

// GetWebSocketStatus 连接统计
func (h *Handler) GetWebSocketStatus(c *gin.Context) {
	h.Response.Success(c, h.Hub.GetStatus())
}
