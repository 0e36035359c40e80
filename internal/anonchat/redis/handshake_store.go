package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/park285/anonchat-go/internal/anonchat/config"
	"github.com/park285/anonchat-go/internal/anonchat/model"
	"github.com/park285/anonchat-go/internal/common/kvstore"
	"github.com/park285/anonchat-go/internal/common/valkeyx"
)

// HandshakeStore: 방 단위 WebRTC 핸드셰이크 진행 상태를 저장한다.
// 핸드셰이크 레코드와 pending offer 마커는 같은 TTL로 만료되어
// 실패한 협상이 방 수명보다 오래 남지 않는다.
type HandshakeStore struct {
	records *kvstore.Store[model.Handshake]
	client  valkey.Client
}

func NewHandshakeStore(client valkey.Client, logger *slog.Logger) *HandshakeStore {
	return &HandshakeStore{
		records: kvstore.NewStore[model.Handshake](client, logger, kvstore.Config{
			KeyFunc: handshakeKey,
			TTL:     time.Duration(config.HandshakeTTLSeconds) * time.Second,
		}),
		client: client,
	}
}

// Get: 방의 핸드셰이크 상태를 조회합니다. 없으면 nil을 반환합니다.
func (s *HandshakeStore) Get(ctx context.Context, roomID string) (*model.Handshake, error) {
	return s.records.Load(ctx, roomID)
}

// Save: 핸드셰이크 상태를 저장합니다.
func (s *HandshakeStore) Save(ctx context.Context, roomID string, hs model.Handshake) error {
	return s.records.Save(ctx, roomID, hs)
}

// Clear: 핸드셰이크 상태와 pending offer 마커를 함께 제거합니다.
func (s *HandshakeStore) Clear(ctx context.Context, roomID string) error {
	if err := s.records.Delete(ctx, roomID); err != nil {
		return err
	}
	return valkeyx.DeleteKeys(ctx, s.client, pendingOfferKey(roomID))
}

// MarkPendingOffer: 미응답 offer 마커를 설정합니다.
// 재전송 루프가 이 마커로 아직 offer가 유효한지 판단합니다.
func (s *HandshakeStore) MarkPendingOffer(ctx context.Context, roomID, fromUserID string) error {
	ttl := time.Duration(config.PendingOfferTTLSeconds) * time.Second
	if err := valkeyx.SetStringEX(ctx, s.client, pendingOfferKey(roomID), fromUserID, ttl); err != nil {
		return fmt.Errorf("mark pending offer failed: %w", err)
	}
	return nil
}

// PendingOffer: 미응답 offer의 발신자를 반환합니다. 없으면 ok=false 입니다.
func (s *HandshakeStore) PendingOffer(ctx context.Context, roomID string) (string, bool, error) {
	return valkeyx.GetString(ctx, s.client, pendingOfferKey(roomID))
}

// ClearPendingOffer: answer 수신 확인 시 마커를 제거합니다.
func (s *HandshakeStore) ClearPendingOffer(ctx context.Context, roomID string) error {
	return valkeyx.DeleteKeys(ctx, s.client, pendingOfferKey(roomID))
}
