package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/park285/anonchat-go/internal/anonchat/model"
	cerrors "github.com/park285/anonchat-go/internal/common/errors"
	"github.com/park285/anonchat-go/internal/common/valkeyx"
)

// WaitQueueKey 는 대기 큐 키를 외부에 노출한다. 매칭 엔진의 후보 큐 계산에 사용된다.
func WaitQueueKey(want model.MatchMode, gender, preference model.Gender) string {
	return waitQueueKey(want, gender, preference)
}

// QueueStore 는 대기 큐(sorted set)를 관리한다.
// 점수는 등록 시각(unix ms)이며 오래 기다린 사용자가 먼저 스캔된다.
type QueueStore struct {
	client valkey.Client
	logger *slog.Logger
	ttl    time.Duration
}

// NewQueueStore 는 QueueStore를 생성한다. ttl은 wait_key 보조 키의 수명이다.
func NewQueueStore(client valkey.Client, logger *slog.Logger, ttl time.Duration) *QueueStore {
	return &QueueStore{client: client, logger: logger, ttl: ttl}
}

// Enqueue 는 사용자를 특정 큐와 글로벌 큐에 등록한다.
// 이미 등록된 사용자의 점수는 갱신하지 않아 대기 순서가 유지된다.
func (q *QueueStore) Enqueue(ctx context.Context, userID, specificQueue, globalQueue string, joinedAt time.Time) error {
	score := float64(joinedAt.UnixMilli())

	for _, queue := range []string{specificQueue, globalQueue} {
		if queue == "" {
			continue
		}
		cmd := q.client.B().Zadd().Key(queue).Nx().ScoreMember().ScoreMember(score, userID).Build()
		if err := q.client.Do(ctx, cmd).Error(); err != nil {
			return cerrors.RedisError{Operation: "queue_enqueue", Err: err}
		}
	}

	// 매칭 스크립트가 후보의 특정 큐를 알 수 있도록 기록한다
	if err := valkeyx.SetStringEX(ctx, q.client, waitMembershipKey(userID), specificQueue, q.ttl); err != nil {
		return cerrors.RedisError{Operation: "queue_membership_save", Err: err}
	}

	q.logger.Debug("queue_enqueued", "user_id", userID, "queue", specificQueue)
	return nil
}

// Remove 는 사용자를 주어진 큐들과 wait_key에서 제거한다.
func (q *QueueStore) Remove(ctx context.Context, userID string, queues ...string) error {
	for _, queue := range queues {
		if queue == "" {
			continue
		}
		cmd := q.client.B().Zrem().Key(queue).Member(userID).Build()
		if err := q.client.Do(ctx, cmd).Error(); err != nil {
			return cerrors.RedisError{Operation: "queue_remove", Err: err}
		}
	}

	if err := valkeyx.DeleteKeys(ctx, q.client, waitMembershipKey(userID)); err != nil {
		return cerrors.RedisError{Operation: "queue_membership_delete", Err: err}
	}
	return nil
}

// Size 는 큐의 대기 인원을 반환한다.
func (q *QueueStore) Size(ctx context.Context, queue string) (int64, error) {
	n, err := q.client.Do(ctx, q.client.B().Zcard().Key(queue).Build()).AsInt64()
	if err != nil {
		return 0, cerrors.RedisError{Operation: "queue_size", Err: err}
	}
	return n, nil
}

// IsMember 는 사용자가 큐에 등록돼 있는지 확인한다.
func (q *QueueStore) IsMember(ctx context.Context, queue, userID string) (bool, error) {
	err := q.client.Do(ctx, q.client.B().Zscore().Key(queue).Member(userID).Build()).Error()
	if err != nil {
		if valkeyx.IsNil(err) {
			return false, nil
		}
		return false, cerrors.RedisError{Operation: "queue_is_member", Err: err}
	}
	return true, nil
}

// MembershipQueue 는 사용자가 등록해 둔 특정 큐 키를 조회한다.
func (q *QueueStore) MembershipQueue(ctx context.Context, userID string) (string, bool, error) {
	queue, ok, err := valkeyx.GetString(ctx, q.client, waitMembershipKey(userID))
	if err != nil {
		return "", false, cerrors.RedisError{Operation: "queue_membership_load", Err: err}
	}
	return queue, ok, nil
}
