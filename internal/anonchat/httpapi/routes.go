// Package httpapi 는 anonchat의 HTTP 표면을 등록한다.
// 실시간 트래픽은 /ws 하나로 들어오고, 나머지는 운영용 조회 엔드포인트다.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	acredis "github.com/park285/anonchat-go/internal/anonchat/redis"
	"github.com/park285/anonchat-go/internal/anonchat/server"
	"github.com/park285/anonchat-go/internal/common/health"
	"github.com/park285/anonchat-go/internal/common/httputil"
)

const onlineQueryTimeout = 3 * time.Second

// Register 는 HTTP API 라우트를 등록한다.
func Register(
	mux *http.ServeMux,
	wsHandler *server.WSHandler,
	hub *server.Hub,
	sessions *acredis.SessionStore,
	logger *slog.Logger,
) {
	// GET /ws - 웹소켓 업그레이드
	mux.Handle("GET /ws", wsHandler)

	// GET /health - 헬스체크
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		resp := health.Get()
		_ = httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"status":        resp.Status,
			"version":       resp.Version,
			"uptime":        resp.Uptime,
			"goroutines":    resp.Goroutines,
			"local_sockets": hub.LocalCount(),
		})
	})

	// GET /api/anonchat/online - 전체 접속자 수 조회
	mux.HandleFunc("GET /api/anonchat/online", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), onlineQueryTimeout)
		defer cancel()

		count, err := sessions.CountOnline(ctx)
		if err != nil {
			logger.Warn("online_count_failed", "error", err)
			_ = httputil.WriteErrorJSON(w, http.StatusInternalServerError, "count_failed", "failed to count online users")
			return
		}
		_ = httputil.WriteJSON(w, http.StatusOK, map[string]any{"count": count})
	})

	logger.Info("anonchat_http_api_registered")
}
