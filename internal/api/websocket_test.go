package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Corphon/ScreenplayStudio/internal/lifecycle"
	"github.com/Corphon/ScreenplayStudio/internal/services"
	"github.com/Corphon/ScreenplayStudio/internal/utils"
	"github.com/gorilla/websocket"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestHub(t *testing.T) *WebSocketManager {
	t.Helper()
	hub := NewWebSocketManager(utils.NewMetricsCollector())
	t.Cleanup(hub.Stop)
	return hub
}

func registerClient(t *testing.T, hub *WebSocketManager, id, scriptID string) *WebSocketClient {
	t.Helper()
	client := NewWebSocketClient(id, scriptID, nil)
	if !hub.Register(client) {
		t.Fatal("注册客户端失败")
	}
	return client
}

func TestBroadcastToScript(t *testing.T) {
	hub := newTestHub(t)
	a := registerClient(t, hub, "a", "s1")
	registerClient(t, hub, "b", "s2")
	waitFor(t, func() bool { return hub.ClientCount("s1") == 1 && hub.ClientCount("s2") == 1 }, "客户端未加入")

	if n := hub.BroadcastToScript("s1", MessageTypeStateChanged, map[string]string{"state": "beatsLoaded"}); n != 1 {
		t.Fatalf("应只推送给 s1 的订阅者, 实际 %d 个", n)
	}

	var msg WebSocketMessage
	if err := json.Unmarshal(<-a.Send, &msg); err != nil {
		t.Fatalf("解析消息失败: %v", err)
	}
	if msg.Type != MessageTypeStateChanged || msg.ScriptID != "s1" || !strings.Contains(string(msg.Data), "beatsLoaded") {
		t.Fatalf("消息内容不正确: %+v", msg)
	}

	if n := hub.BroadcastToScript("nobody", MessageTypePagination, nil); n != 0 {
		t.Fatalf("没有订阅者时不应推送, 实际 %d", n)
	}

	status := hub.GetStatus()
	if status["total_connections"] != 2 || status["messages_sent"] != int64(1) {
		t.Fatalf("连接统计不正确: %v", status)
	}
}

func TestSlowClientIsDisconnected(t *testing.T) {
	hub := newTestHub(t)
	slow := registerClient(t, hub, "slow", "s1")
	waitFor(t, func() bool { return hub.ClientCount("s1") == 1 }, "客户端未加入")

	for i := 0; i < wsSendBuffer; i++ {
		slow.Send <- []byte("{}")
	}

	if n := hub.BroadcastToScript("s1", MessageTypeStateChanged, nil); n != 0 {
		t.Fatalf("缓冲区已满时不应送达, 实际 %d", n)
	}
	waitFor(t, func() bool { return hub.ClientCount("s1") == 0 }, "缓冲区已满的客户端应被断开")

	if !slow.IsClosed() {
		t.Fatal("被断开的客户端应已关闭")
	}
	if hub.GetStatus()["messages_dropped"] != int64(1) {
		t.Fatalf("应记录丢弃的消息: %v", hub.GetStatus())
	}
}

func TestHubStop(t *testing.T) {
	hub := NewWebSocketManager(utils.NewMetricsCollector())
	client := registerClient(t, hub, "a", "s1")
	waitFor(t, func() bool { return hub.ClientCount("s1") == 1 }, "客户端未加入")

	hub.Stop()
	hub.Stop()

	if !client.IsClosed() || hub.ClientCount("s1") != 0 {
		t.Fatal("停止后应断开所有客户端")
	}
	if hub.Register(NewWebSocketClient("late", "s1", nil)) {
		t.Fatal("停止后不应再接受客户端")
	}
	if client.SendMessage([]byte("{}")) {
		t.Fatal("已关闭的客户端不应接收消息")
	}
}

func readWSMessage(t *testing.T, conn *websocket.Conn) WebSocketMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WebSocketMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("读取 WebSocket 消息失败: %v", err)
	}
	return msg
}

func TestScriptWebSocket(t *testing.T) {
	r, h := setupTestRouter(t, 0)
	record := createScriptViaAPI(t, r, "WITH_AI")

	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/scripts/" + record.ID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("连接 WebSocket 失败: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("应升级为 WebSocket, 实际 %d", resp.StatusCode)
	}

	if msg := readWSMessage(t, conn); msg.Type != MessageTypeConnected || msg.ScriptID != record.ID {
		t.Fatalf("第一条消息应为 connected: %+v", msg)
	}
	waitFor(t, func() bool { return h.Hub.ClientCount(record.ID) == 1 }, "客户端未加入")

	t.Run("状态变化推送", func(t *testing.T) {
		if _, err := h.SessionService.Perform(context.Background(), record.ID, lifecycle.ActionGenerateBeats, services.ActionRequest{}); err != nil {
			t.Fatalf("生成节拍失败: %v", err)
		}
		msg := readWSMessage(t, conn)
		if msg.Type != MessageTypeStateChanged {
			t.Fatalf("应推送状态变化, 实际 %s", msg.Type)
		}
		var event services.StateChangeEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil || event.Outcome.Action != lifecycle.ActionGenerateBeats {
			t.Fatalf("状态变化内容不正确: %+v %v", event, err)
		}
	})

	t.Run("心跳", func(t *testing.T) {
		conn.WriteJSON(map[string]string{"type": "ping"})
		if msg := readWSMessage(t, conn); msg.Type != MessageTypePong {
			t.Fatalf("ping 应返回 pong, 实际 %s", msg.Type)
		}
	})

	t.Run("查询状态", func(t *testing.T) {
		conn.WriteJSON(map[string]string{"type": "get_state"})
		msg := readWSMessage(t, conn)
		var view services.SessionView
		if msg.Type != MessageTypeSessionState || json.Unmarshal(msg.Data, &view) != nil {
			t.Fatalf("应返回会话状态: %+v", msg)
		}
		if view.Snapshot.State != "beatsLoaded" {
			t.Fatalf("会话状态不正确: %s", view.Snapshot.State)
		}
	})

	t.Run("未知消息", func(t *testing.T) {
		conn.WriteJSON(map[string]string{"type": "dance"})
		if msg := readWSMessage(t, conn); msg.Type != MessageTypeError {
			t.Fatalf("未知消息应返回 error, 实际 %s", msg.Type)
		}
	})

	conn.Close()
	waitFor(t, func() bool { return h.Hub.ClientCount(record.ID) == 0 }, "断开后应注销客户端")
}
