// Package router 는 사용자에게 프레임을 전달한다.
// 소켓이 같은 인스턴스에 있으면 직접, 다른 인스턴스에 있으면 Pub/Sub으로 넘긴다.
package router

import (
	"context"
	"fmt"
	"log/slog"

	json "github.com/goccy/go-json"
	"github.com/valkey-io/valkey-go"

	"github.com/park285/anonchat-go/internal/anonchat/protocol"
	acredis "github.com/park285/anonchat-go/internal/anonchat/redis"
)

// LocalDeliverer 는 이 인스턴스에 연결된 소켓으로 프레임을 내려보낸다.
// 사용자 소켓이 없으면 false를 반환한다.
type LocalDeliverer interface {
	DeliverLocal(userID string, payload []byte) bool
}

// Publisher 는 다른 인스턴스 채널로 프레임을 발행한다.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// ValkeyPublisher 는 Valkey PUBLISH 기반 Publisher 구현이다.
type ValkeyPublisher struct {
	client valkey.Client
}

func NewValkeyPublisher(client valkey.Client) *ValkeyPublisher {
	return &ValkeyPublisher{client: client}
}

func (p *ValkeyPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	cmd := p.client.B().Publish().Channel(channel).Message(string(payload)).Build()
	if err := p.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("publish to %s failed: %w", channel, err)
	}
	return nil
}

// Router 는 connections 해시를 단일 출처로 사용자별 전달 경로를 결정한다.
type Router struct {
	instanceID string
	presence   *acredis.PresenceStore
	publisher  Publisher
	local      LocalDeliverer
	logger     *slog.Logger
}

// New 는 Router를 생성한다.
func New(instanceID string, presence *acredis.PresenceStore, publisher Publisher, local LocalDeliverer, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		instanceID: instanceID,
		presence:   presence,
		publisher:  publisher,
		local:      local,
		logger:     logger,
	}
}

// SendToUser 는 메시지를 대상 사용자에게 전달한다.
// 매핑이 없으면 접속 중 상태일 수 있으므로 로컬 소켓을 한 번 더 확인한다.
// 로컬 매핑인데 소켓이 없으면 죽은 매핑으로 보고 제거한다.
func (r *Router) SendToUser(ctx context.Context, userID string, msg protocol.ServerMessage) error {
	if userID == "" {
		return nil
	}
	payload, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode frame failed: %w", err)
	}
	return r.sendRaw(ctx, userID, payload)
}

func (r *Router) sendRaw(ctx context.Context, userID string, payload []byte) error {
	owner, ok, err := r.presence.Owner(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		// 매핑이 아직 없는 접속 직후 타이밍 폴백
		r.local.DeliverLocal(userID, payload)
		return nil
	}

	if owner == r.instanceID {
		if r.local.DeliverLocal(userID, payload) {
			return nil
		}
		return r.presence.RemoveStale(ctx, userID)
	}

	frame, err := json.Marshal(protocol.RelayFrame{UserID: userID, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode relay frame failed: %w", err)
	}
	return r.publisher.Publish(ctx, acredis.InstanceChannel(owner), frame)
}

// HandleRelayFrame 은 다른 인스턴스가 발행한 프레임을 로컬 소켓으로 내려보낸다.
// 소켓이 이미 사라졌으면 죽은 매핑을 정리한다.
func (r *Router) HandleRelayFrame(ctx context.Context, raw []byte) {
	var frame protocol.RelayFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		r.logger.Warn("relay_frame_decode_failed", "error", err)
		return
	}
	if frame.UserID == "" {
		return
	}
	if r.local.DeliverLocal(frame.UserID, frame.Payload) {
		return
	}
	if err := r.presence.RemoveStale(ctx, frame.UserID); err != nil {
		r.logger.Warn("stale_cleanup_failed", "user_id", frame.UserID, "error", err)
	}
}
