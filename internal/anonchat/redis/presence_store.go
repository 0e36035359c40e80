package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/park285/anonchat-go/internal/anonchat/config"
	"github.com/park285/anonchat-go/internal/common/valkeyx"
)

// PresenceStore: 사용자와 소켓 보유 인스턴스의 매핑, 재접속 유예 마커를 관리한다.
// connections 해시는 라우터가 프레임을 어느 인스턴스로 보낼지 결정하는 단일 출처다.
type PresenceStore struct {
	client valkey.Client
	logger *slog.Logger
}

func NewPresenceStore(client valkey.Client, logger *slog.Logger) *PresenceStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PresenceStore{client: client, logger: logger}
}

// Register: 사용자 소켓이 이 인스턴스에 연결되었음을 기록합니다.
func (s *PresenceStore) Register(ctx context.Context, userID, instanceID string) error {
	cmd := s.client.B().Hset().Key(ConnectionsHashKey()).FieldValue().FieldValue(userID, instanceID).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("register connection failed: %w", err)
	}
	return nil
}

// Unregister: 연결 해제 시 매핑을 제거합니다.
// 다른 인스턴스에서 이미 재접속한 경우(소유 인스턴스가 다름) 매핑을 건드리지 않습니다.
func (s *PresenceStore) Unregister(ctx context.Context, userID, instanceID string) error {
	owner, ok, err := s.Owner(ctx, userID)
	if err != nil {
		return err
	}
	if ok && owner != instanceID {
		return nil
	}
	cmd := s.client.B().Hdel().Key(ConnectionsHashKey()).Field(userID).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("unregister connection failed: %w", err)
	}
	return nil
}

// Owner: 사용자의 소켓을 보유한 인스턴스 ID를 반환합니다.
func (s *PresenceStore) Owner(ctx context.Context, userID string) (string, bool, error) {
	cmd := s.client.B().Hget().Key(ConnectionsHashKey()).Field(userID).Build()
	resp := s.client.Do(ctx, cmd)
	if err := resp.Error(); err != nil {
		if valkeyx.IsNil(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get connection owner failed: %w", err)
	}
	owner, err := resp.ToString()
	if err != nil {
		return "", false, fmt.Errorf("parse connection owner failed: %w", err)
	}
	return owner, true, nil
}

// Remove: 소유 인스턴스와 무관하게 매핑을 제거합니다. 세션 정리 경로에서 사용됩니다.
func (s *PresenceStore) Remove(ctx context.Context, userID string) error {
	cmd := s.client.B().Hdel().Key(ConnectionsHashKey()).Field(userID).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("remove connection failed: %w", err)
	}
	return nil
}

// RemoveStale: pub/sub 전달 실패로 확인된 죽은 매핑을 제거합니다.
func (s *PresenceStore) RemoveStale(ctx context.Context, userID string) error {
	if err := s.Remove(ctx, userID); err != nil {
		return err
	}
	s.logger.Warn("stale_connection_removed", "user_id", userID)
	return nil
}

// StartGrace: 끊긴 사용자에게 재접속 유예 마커를 설정합니다.
func (s *PresenceStore) StartGrace(ctx context.Context, userID string) error {
	ttl := time.Duration(config.GraceTTLSeconds) * time.Second
	if err := valkeyx.SetStringEX(ctx, s.client, graceKey(userID), "1", ttl); err != nil {
		return fmt.Errorf("set grace marker failed: %w", err)
	}
	return nil
}

// InGrace: 사용자가 재접속 유예 중인지 확인합니다.
func (s *PresenceStore) InGrace(ctx context.Context, userID string) (bool, error) {
	return valkeyx.Exists(ctx, s.client, graceKey(userID))
}

// ClearGrace: 재접속 성공 시 유예 마커를 제거합니다.
func (s *PresenceStore) ClearGrace(ctx context.Context, userID string) error {
	return valkeyx.DeleteKeys(ctx, s.client, graceKey(userID))
}
