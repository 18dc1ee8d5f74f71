package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gatewatch/pkg/model"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub 把新落库的连接记录实时广播给挂在 /stream 上的 WebSocket 客户端。
// 慢客户端发送缓冲满时直接被踢掉，广播永远不阻塞记录主路径。
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]chan []byte)}
}

// ServeHTTP 升级连接并注册到广播列表。
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 失败时响应已经写出去了
		return
	}
	send := make(chan []byte, sendBuffer)
	h.mu.Lock()
	h.clients[ws] = send
	h.mu.Unlock()

	go h.writeLoop(ws, send)
	go h.readLoop(ws)
}

// Notify 实现 recorder.Notifier。序列化一次，投递给所有客户端；
// 投不进去（缓冲满）的客户端当场摘除。
func (h *Hub) Notify(conn *model.Connection) {
	msg, err := json.Marshal(conn)
	if err != nil {
		return
	}
	h.mu.Lock()
	for ws, send := range h.clients {
		select {
		case send <- msg:
		default:
			delete(h.clients, ws)
			close(send)
			go ws.Close()
		}
	}
	h.mu.Unlock()
}

// Count 返回当前在线的客户端数。
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) writeLoop(ws *websocket.Conn, send chan []byte) {
	defer h.drop(ws)
	for msg := range send {
		_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// readLoop 只消费控制帧、探测断开，收到任何错误就摘除该客户端。
func (h *Hub) readLoop(ws *websocket.Conn) {
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			h.drop(ws)
			return
		}
	}
}

// drop 幂等：只有还挂在列表里的连接才会关一次 send 通道。
func (h *Hub) drop(ws *websocket.Conn) {
	h.mu.Lock()
	if send, ok := h.clients[ws]; ok {
		delete(h.clients, ws)
		close(send)
	}
	h.mu.Unlock()
	_ = ws.Close()
}
