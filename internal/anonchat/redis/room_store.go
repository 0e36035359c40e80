package redis

import (
	"context"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	"github.com/valkey-io/valkey-go"

	acconfig "github.com/park285/anonchat-go/internal/anonchat/config"
	"github.com/park285/anonchat-go/internal/anonchat/model"
	cerrors "github.com/park285/anonchat-go/internal/common/errors"
	"github.com/park285/anonchat-go/internal/common/valkeyx"
)

// RoomStore 는 대화방 해시, 사용자→방 매핑, 방 히스토리를 관리한다.
type RoomStore struct {
	client valkey.Client
	logger *slog.Logger
}

// NewRoomStore 는 RoomStore를 생성한다.
func NewRoomStore(client valkey.Client, logger *slog.Logger) *RoomStore {
	return &RoomStore{client: client, logger: logger}
}

// Get 는 방 레코드를 조회한다. 방이 없거나 만료되었으면 nil을 반환한다.
func (r *RoomStore) Get(ctx context.Context, roomID string) (*model.Room, error) {
	cmd := r.client.B().Hgetall().Key(roomKey(roomID)).Build()
	fields, err := r.client.Do(ctx, cmd).AsStrMap()
	if err != nil {
		return nil, cerrors.RedisError{Operation: "room_get", Err: err}
	}
	if len(fields) == 0 {
		return nil, nil
	}

	room := model.Room{
		ID:        roomID,
		A:         fields["a"],
		B:         fields["b"],
		Mode:      model.RoomMode(fields["mode"]),
		Want:      model.MatchMode(fields["want"]),
		Caller:    fields["caller"],
		Callee:    fields["callee"],
		BotGender: model.Gender(fields["botGender"]),
	}
	return &room, nil
}

// CreateBotRoom 는 봇 방 해시를 만들고 사용자 매핑을 설정한다.
// 사람 방은 매칭 스크립트가 원자적으로 만들기 때문에 여기서는 봇 방만 만든다.
func (r *RoomStore) CreateBotRoom(ctx context.Context, room model.Room, ttl time.Duration) error {
	cmd := r.client.B().Hset().Key(roomKey(room.ID)).FieldValue().
		FieldValue("a", room.A).
		FieldValue("b", room.B).
		FieldValue("mode", string(model.RoomModeBot)).
		FieldValue("want", string(room.Want)).
		FieldValue("botGender", string(room.BotGender)).
		Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return cerrors.RedisError{Operation: "bot_room_create", Err: err}
	}

	expire := r.client.B().Expire().Key(roomKey(room.ID)).Seconds(int64(ttl.Seconds())).Build()
	if err := r.client.Do(ctx, expire).Error(); err != nil {
		return cerrors.RedisError{Operation: "bot_room_expire", Err: err}
	}

	return r.SetUserRoom(ctx, room.A, room.ID)
}

// SetCallRoles 는 통화 방의 caller/callee 역할을 기록한다.
func (r *RoomStore) SetCallRoles(ctx context.Context, roomID, caller, callee string) error {
	cmd := r.client.B().Hset().Key(roomKey(roomID)).FieldValue().
		FieldValue("caller", caller).
		FieldValue("callee", callee).
		Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return cerrors.RedisError{Operation: "room_set_call_roles", Err: err}
	}
	return nil
}

// SetUserRoom 는 사용자→방 매핑을 기록한다. 방과 같은 수명을 가진다.
func (r *RoomStore) SetUserRoom(ctx context.Context, userID, roomID string) error {
	ttl := time.Duration(acconfig.RoomTTLSeconds) * time.Second
	if err := valkeyx.SetStringEX(ctx, r.client, userRoomKey(userID), roomID, ttl); err != nil {
		return cerrors.RedisError{Operation: "user_room_set", Err: err}
	}
	return nil
}

// UserRoom 는 사용자가 참여 중인 방 ID를 조회한다.
func (r *RoomStore) UserRoom(ctx context.Context, userID string) (string, bool, error) {
	roomID, ok, err := valkeyx.GetString(ctx, r.client, userRoomKey(userID))
	if err != nil {
		return "", false, cerrors.RedisError{Operation: "user_room_get", Err: err}
	}
	return roomID, ok, nil
}

// DeleteUserRoom 는 사용자→방 매핑을 삭제한다.
// expectedRoomID가 비어 있지 않으면 매핑이 그 방을 가리킬 때만 삭제한다.
// (새 방 매핑을 이전 방 정리가 지우는 것을 막는다)
func (r *RoomStore) DeleteUserRoom(ctx context.Context, userID, expectedRoomID string) error {
	if expectedRoomID != "" {
		current, ok, err := r.UserRoom(ctx, userID)
		if err != nil {
			return err
		}
		if !ok || current != expectedRoomID {
			return nil
		}
	}
	if err := valkeyx.DeleteKeys(ctx, r.client, userRoomKey(userID)); err != nil {
		return cerrors.RedisError{Operation: "user_room_delete", Err: err}
	}
	return nil
}

// AppendMessage 는 방 히스토리에 메시지를 추가하고 상한을 유지한다.
func (r *RoomStore) AppendMessage(ctx context.Context, roomID string, msg model.RoomMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return cerrors.RedisError{Operation: "room_msg_marshal", Err: err}
	}

	key := roomMsgsKey(roomID)
	push := r.client.B().Lpush().Key(key).Element(string(payload)).Build()
	if err := r.client.Do(ctx, push).Error(); err != nil {
		return cerrors.RedisError{Operation: "room_msg_push", Err: err}
	}

	trim := r.client.B().Ltrim().Key(key).Start(0).Stop(int64(acconfig.RoomHistoryMax - 1)).Build()
	if err := r.client.Do(ctx, trim).Error(); err != nil {
		return cerrors.RedisError{Operation: "room_msg_trim", Err: err}
	}

	expire := r.client.B().Expire().Key(key).Seconds(acconfig.RoomTTLSeconds).Build()
	if err := r.client.Do(ctx, expire).Error(); err != nil {
		return cerrors.RedisError{Operation: "room_msg_expire", Err: err}
	}
	return nil
}

// History 는 방 히스토리를 오래된 순서로 반환한다. limit이 0 이하이면 전체 상한을 사용한다.
func (r *RoomStore) History(ctx context.Context, roomID string, limit int) ([]model.RoomMessage, error) {
	if limit <= 0 || limit > acconfig.RoomHistoryMax {
		limit = acconfig.RoomHistoryMax
	}

	cmd := r.client.B().Lrange().Key(roomMsgsKey(roomID)).Start(0).Stop(int64(limit - 1)).Build()
	raw, err := r.client.Do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, cerrors.RedisError{Operation: "room_history", Err: err}
	}

	// LPUSH는 최신 메시지를 앞에 두므로 역순으로 뒤집는다
	messages := make([]model.RoomMessage, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var msg model.RoomMessage
		if err := json.Unmarshal([]byte(raw[i]), &msg); err != nil {
			return nil, cerrors.RedisError{Operation: "room_history_unmarshal", Err: err}
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Delete 는 방과 부속 키들(히스토리, 핸드셰이크, 오퍼 마커)을 삭제한다.
func (r *RoomStore) Delete(ctx context.Context, roomID string) error {
	err := valkeyx.DeleteKeys(ctx, r.client,
		roomKey(roomID),
		roomMsgsKey(roomID),
		handshakeKey(roomID),
		pendingOfferKey(roomID),
	)
	if err != nil {
		return cerrors.RedisError{Operation: "room_delete", Err: err}
	}
	r.logger.Debug("room_deleted", "room_id", roomID)
	return nil
}

// DeleteClaim 는 매칭 클레임 마커를 삭제한다. (정리 경로)
func (r *RoomStore) DeleteClaim(ctx context.Context, userID string) error {
	if err := valkeyx.DeleteKeys(ctx, r.client, claimKey(userID)); err != nil {
		return cerrors.RedisError{Operation: "claim_delete", Err: err}
	}
	return nil
}
