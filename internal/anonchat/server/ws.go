package server

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// 익명 서비스라 오리진 제한 없이 받는다. 앞단 프록시가 접근을 통제한다.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WSHandler 는 /ws 업그레이드 요청을 받아 소켓 수명 루프를 시작한다.
type WSHandler struct {
	hub    *Hub
	logger *slog.Logger
}

// NewWSHandler 는 WSHandler를 생성한다.
func NewWSHandler(hub *Hub, logger *slog.Logger) *WSHandler {
	return &WSHandler{hub: hub, logger: logger.With("component", "ws")}
}

// ServeHTTP 는 연결을 업그레이드하고 펌프를 돌린다.
// userId 쿼리가 없으면 새 ID를 발급한다. 재접속 클라이언트는 같은 ID를 다시 보낸다.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade_failed", "error", err)
		return
	}

	client := newClient(h.hub, conn, userID, h.logger)
	h.hub.register(client)

	ctx := r.Context()
	if err := h.hub.rooms.Connected(ctx, userID); err != nil {
		h.logger.Warn("connect_touch_failed", "user_id", userID, "error", err)
	}

	h.logger.Info("socket_opened", "user_id", userID, "remote", r.RemoteAddr)

	go client.writePump()
	client.readPump(ctx)
}
