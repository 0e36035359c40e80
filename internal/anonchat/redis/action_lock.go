package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/valkey-io/valkey-go"

	acerrors "github.com/park285/anonchat-go/internal/anonchat/errors"
	"github.com/park285/anonchat-go/internal/common/lockutil"
)

// ErrActionInProgress: 같은 사용자의 다른 동작이 이미 처리 중일 때 반환되는 에러
var ErrActionInProgress = errors.New("action in progress")

// ActionLock: 사용자 단위로 매칭 동작(join/skip/leave/report)을 직렬화하는 락 서비스.
// 프로세스 뮤텍스가 아닌 공유 저장소 락이므로 인스턴스가 여러 대여도 동작한다.
type ActionLock struct {
	client valkey.Client
	logger *slog.Logger
	ttl    time.Duration
}

// NewActionLock: 새로운 ActionLock 인스턴스를 생성합니다.
func NewActionLock(client valkey.Client, logger *slog.Logger, ttl time.Duration) *ActionLock {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActionLock{client: client, logger: logger, ttl: ttl}
}

// Acquire: 동작 락을 획득합니다. (SET NX)
// 이미 락이 존재하면 ErrActionInProgress 를 반환합니다.
func (l *ActionLock) Acquire(ctx context.Context, userID string) error {
	ttlSeconds := int64(l.ttl / time.Second)
	if ttlSeconds <= 0 {
		ttlSeconds = 1
	}
	acquired, err := lockutil.TryAcquireSharedLock(ctx, l.client, userLockKey(userID), ttlSeconds)
	if err != nil {
		return fmt.Errorf("set action lock failed: %w", err)
	}
	if !acquired {
		return ErrActionInProgress
	}
	l.logger.Debug("action_lock_acquired", "user_id", userID)
	return nil
}

// Release: 동작 락을 해제합니다.
func (l *ActionLock) Release(ctx context.Context, userID string) error {
	if err := lockutil.ReleaseSharedLock(ctx, l.client, userLockKey(userID)); err != nil {
		return fmt.Errorf("delete action lock failed: %w", err)
	}
	l.logger.Debug("action_lock_released", "user_id", userID)
	return nil
}

// WrapAcquireError: 락 획득 에러를 도메인 에러로 변환합니다.
func WrapAcquireError(userID string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrActionInProgress) {
		return acerrors.BusyError{UserID: userID}
	}
	return err
}
