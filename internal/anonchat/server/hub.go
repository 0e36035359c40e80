// Package server 는 웹소켓 접속과 프레임 디스패치를 담당한다.
// 도메인 판단은 전부 service 계층에 있고 여기는 소켓 수명만 관리한다.
package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	json "github.com/goccy/go-json"

	acconfig "github.com/park285/anonchat-go/internal/anonchat/config"
	"github.com/park285/anonchat-go/internal/anonchat/protocol"
	"github.com/park285/anonchat-go/internal/anonchat/service"
	"github.com/park285/anonchat-go/internal/anonchat/signal"
)

// Hub 는 이 인스턴스에 붙은 소켓들의 레지스트리다.
// 라우터의 LocalDeliverer로 동작하며, 오퍼/앤서 프레임은 ACK 재전송 경로로 보낸다.
type Hub struct {
	instanceID string
	relay      *signal.Relay
	rooms      *service.RoomService
	handler    *Handler
	sig        acconfig.SignalConfig
	logger     *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub 는 Hub를 생성한다. 핸들러는 순환 참조 때문에 나중에 붙인다.
func NewHub(instanceID string, relay *signal.Relay, rooms *service.RoomService, sig acconfig.SignalConfig, logger *slog.Logger) *Hub {
	return &Hub{
		instanceID: instanceID,
		relay:      relay,
		rooms:      rooms,
		sig:        sig,
		logger:     logger.With("component", "hub"),
		clients:    make(map[string]*Client),
	}
}

// SetHandler 는 수신 프레임 디스패처를 연결한다.
func (h *Hub) SetHandler(handler *Handler) { h.handler = handler }

// register 는 소켓을 등록한다. 같은 사용자의 이전 소켓은 닫는다.
func (h *Hub) register(client *Client) {
	h.mu.Lock()
	old, ok := h.clients[client.userID]
	h.clients[client.userID] = client
	h.mu.Unlock()

	if ok && old != client {
		old.stopClient()
	}
}

// unregister 는 소켓이 여전히 현재 소켓일 때만 레지스트리에서 제거한다.
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if h.clients[client.userID] == client {
		delete(h.clients, client.userID)
	}
	h.mu.Unlock()
}

func (h *Hub) client(userID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[userID]
	return c, ok
}

// LocalCount 는 이 인스턴스에 붙은 소켓 수다.
func (h *Hub) LocalCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DeliverLocal 은 라우터가 내려보낸 프레임을 소켓에 쓴다.
// 오퍼/앤서는 전달이 확인돼야 핸드셰이크가 진행되므로 ACK 경로로 분기한다.
func (h *Hub) DeliverLocal(userID string, payload []byte) bool {
	client, ok := h.client(userID)
	if !ok {
		return false
	}

	var msg protocol.ServerMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		h.logger.Warn("relay_frame_invalid", "user_id", userID, "error", err)
		return false
	}

	if msg.Type == protocol.TypeWebRTCOffer || msg.Type == protocol.TypeWebRTCAnswer {
		go h.deliverReliable(client, msg)
		return true
	}
	return client.enqueue(payload)
}

// deliverReliable 은 ACK 재전송으로 프레임을 보내고 결과를 핸드셰이크에 반영한다.
// 오퍼는 pending 마커가 걷히는 순간 재전송을 멈추고, 끝내 전달되지 않으면 방을 해체한다.
func (h *Hub) deliverReliable(client *Client, msg protocol.ServerMessage) {
	ctx := context.Background()

	var alive func(context.Context) bool
	if msg.Type == protocol.TypeWebRTCOffer {
		roomID := msg.RoomID
		alive = func(ctx context.Context) bool {
			pending, err := h.relay.OfferPending(ctx, roomID)
			if err != nil {
				h.logger.Warn("pending_offer_check_failed", "room_id", roomID, "error", err)
				return true
			}
			return pending
		}
	}

	err := client.SendReliable(ctx, msg, alive)
	if errors.Is(err, errDeliveryAbandoned) {
		h.logger.Debug("reliable_delivery_abandoned",
			"user_id", client.userID, "room_id", msg.RoomID, "type", msg.Type)
		return
	}
	if err != nil {
		h.logger.Warn("reliable_delivery_failed",
			"user_id", client.userID, "room_id", msg.RoomID, "type", msg.Type, "error", err)
		if err := h.rooms.CleanupRoom(ctx, client.userID); err != nil {
			h.logger.Error("cleanup_after_delivery_failure", "user_id", client.userID, "error", err)
		}
		return
	}
	if err := h.relay.OnDelivered(ctx, msg.RoomID, msg.Type); err != nil {
		h.logger.Warn("handshake_advance_failed", "room_id", msg.RoomID, "error", err)
	}
}

// Ack 는 클라이언트가 보낸 webrtc_ack를 대기 중인 전송과 연결한다.
func (h *Hub) Ack(userID, ackID string) {
	if client, ok := h.client(userID); ok {
		client.resolveAck(ackID)
	}
}

// Broadcast 는 모든 로컬 소켓에 같은 프레임을 보낸다.
func (h *Hub) Broadcast(msg protocol.ServerMessage) {
	payload, err := protocol.Encode(msg)
	if err != nil {
		h.logger.Error("broadcast_encode_failed", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.enqueue(payload)
	}
}

// disconnect 는 소켓 종료 후의 정리다. 유예 마커를 남겨 재접속 복원을 허용한다.
func (h *Hub) disconnect(ctx context.Context, client *Client) {
	h.unregister(client)
	if err := h.rooms.Disconnected(context.WithoutCancel(ctx), client.userID); err != nil {
		h.logger.Warn("grace_mark_failed", "user_id", client.userID, "error", err)
	}
	h.logger.Info("socket_closed", "user_id", client.userID)
}
