package board

import (
	"groupboard-backend/internal/feed"
	"groupboard-backend/internal/util"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// 跨域由 CORS 配置控制，连接本身需要令牌
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Event 推送给客户端的消息
type Event struct {
	Type   string       `json:"type"` // view、notice 或 closed
	View   *feed.View   `json:"view,omitempty"`
	Notice *feed.Notice `json:"notice,omitempty"`
}

// Stream 通过 WebSocket 推送视图变化和操作提示，直到会话关闭或客户端断开
func (h *SessionHandler) Stream(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	sessionID := c.Param("session")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		util.Logger.Warn("WebSocket 升级失败", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	defer conn.Close()

	// 读循环只处理 pong 和关闭帧
	gone := make(chan struct{})
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(ev Event) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			util.Logger.Debug("推送失败", zap.String("session_id", sessionID), zap.Error(err))
			return false
		}
		return true
	}

	view := s.View()
	if !send(Event{Type: "view", View: &view}) {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	changes := s.Changes()
	notices := s.Notices()
	for {
		select {
		case _, open := <-changes:
			if !open {
				changes = nil
				continue
			}
			// 推送期间会话保持活跃
			h.registry.Get(sessionID, s.Identity().UserID)
			view := s.View()
			if !send(Event{Type: "view", View: &view}) {
				return
			}
		case n, open := <-notices:
			if !open {
				notices = nil
				continue
			}
			if !send(Event{Type: "notice", Notice: &n}) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			h.registry.Get(sessionID, s.Identity().UserID)
		case <-s.Done():
			send(Event{Type: "closed"})
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
				time.Now().Add(writeWait))
			return
		case <-gone:
			return
		}
	}
}
