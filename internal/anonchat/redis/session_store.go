package redis

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/park285/anonchat-go/internal/anonchat/model"
	cerrors "github.com/park285/anonchat-go/internal/common/errors"
	"github.com/park285/anonchat-go/internal/common/kvstore"
	"github.com/park285/anonchat-go/internal/common/valkeyx"
)

// SessionStore 는 사용자 세션 레코드를 관리한다.
// 세션은 하트비트마다 Touch로 갱신되며, TTL이 만료되면 오프라인으로 간주한다.
type SessionStore struct {
	store  *kvstore.Store[model.Session]
	client valkey.Client
	logger *slog.Logger
	ttl    time.Duration
}

// NewSessionStore 는 SessionStore를 생성한다.
func NewSessionStore(client valkey.Client, logger *slog.Logger, ttl time.Duration) *SessionStore {
	return &SessionStore{
		store: kvstore.NewStore[model.Session](client, logger, kvstore.Config{
			KeyFunc: sessionKey,
			TTL:     ttl,
		}),
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// Get 는 세션 레코드를 조회한다. 없으면 nil을 반환한다.
func (s *SessionStore) Get(ctx context.Context, userID string) (*model.Session, error) {
	return s.store.Load(ctx, userID)
}

// Touch 는 세션을 read-merge-write 방식으로 갱신한다.
// 세션이 없으면 새로 만들고, 인스턴스 ID와 타임스탬프를 항상 새로 찍으며 TTL을 연장한다.
// 전이 테이블에 없는 상태 변경은 거부하고 나머지 패치만 반영한다.
func (s *SessionStore) Touch(ctx context.Context, userID, instanceID string, patch model.SessionPatch) (*model.Session, error) {
	current, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	sess := model.Session{State: model.StateIdle, Want: model.ModeChat}
	if current != nil {
		sess = *current
	}

	if patch.State != nil && !sess.State.CanTransition(*patch.State) {
		s.logger.Warn("session_state_rejected",
			"user_id", userID, "from", sess.State, "to", *patch.State)
		patch.State = nil
	}

	applySessionPatch(&sess, patch)
	sess.Instance = instanceID
	sess.Ts = time.Now().UnixMilli()

	if err := s.store.Save(ctx, userID, sess); err != nil {
		return nil, err
	}

	if patch.Interests != nil {
		if err := s.saveInterests(ctx, userID, patch.Interests); err != nil {
			return nil, err
		}
	}
	return &sess, nil
}

// RefreshTTL 는 세션 TTL만 연장한다. (하트비트 경로)
func (s *SessionStore) RefreshTTL(ctx context.Context, userID string) (bool, error) {
	return s.store.RefreshTTL(ctx, userID)
}

// Delete 는 세션과 관심사 집합을 함께 삭제한다.
func (s *SessionStore) Delete(ctx context.Context, userID string) error {
	if err := valkeyx.DeleteKeys(ctx, s.client, sessionKey(userID), interestsKey(userID)); err != nil {
		return cerrors.RedisError{Operation: "session_delete", Err: err}
	}
	return nil
}

// CountOnline 는 살아있는 세션 수를 센다. (SCAN 기반, 근사치)
func (s *SessionStore) CountOnline(ctx context.Context) (int64, error) {
	var count int64
	var cursor uint64
	pattern := sessionKey("*")

	for {
		cmd := s.client.B().Scan().Cursor(cursor).Match(pattern).Count(200).Build()
		entry, err := s.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return 0, cerrors.RedisError{Operation: "session_count_scan", Err: err}
		}
		for _, key := range entry.Elements {
			// 관심사 보조 키는 세션으로 세지 않는다
			if strings.HasSuffix(key, ":interests") {
				continue
			}
			count++
		}
		cursor = entry.Cursor
		if cursor == 0 {
			break
		}
	}
	return count, nil
}

// saveInterests 는 관심사 집합 키를 통째로 교체한다. 세션과 같은 TTL을 공유한다.
func (s *SessionStore) saveInterests(ctx context.Context, userID string, interests []string) error {
	key := interestsKey(userID)
	if err := valkeyx.DeleteKeys(ctx, s.client, key); err != nil {
		return cerrors.RedisError{Operation: "interests_reset", Err: err}
	}

	members := make([]string, 0, len(interests))
	for _, interest := range interests {
		interest = strings.ToLower(strings.TrimSpace(interest))
		if interest == "" {
			continue
		}
		members = append(members, interest)
	}
	if len(members) == 0 {
		return nil
	}

	addCmd := s.client.B().Sadd().Key(key).Member(members...).Build()
	if err := s.client.Do(ctx, addCmd).Error(); err != nil {
		return cerrors.RedisError{Operation: "interests_save", Err: err}
	}

	expireCmd := s.client.B().Expire().Key(key).Seconds(int64(s.ttl.Seconds())).Build()
	if err := s.client.Do(ctx, expireCmd).Error(); err != nil {
		return cerrors.RedisError{Operation: "interests_expire", Err: err}
	}
	return nil
}

func applySessionPatch(sess *model.Session, patch model.SessionPatch) {
	if patch.Want != nil {
		sess.Want = *patch.Want
	}
	if patch.Gender != nil {
		sess.Gender = *patch.Gender
	}
	if patch.Preference != nil {
		sess.Preference = *patch.Preference
	}
	if patch.Interests != nil {
		sess.Interests = patch.Interests
	}
	if patch.Username != nil {
		sess.Username = *patch.Username
	}
	if patch.State != nil {
		sess.State = *patch.State
	}
	if patch.RoomID != nil {
		sess.RoomID = *patch.RoomID
	}
}
