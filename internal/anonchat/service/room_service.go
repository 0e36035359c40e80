package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/park285/anonchat-go/internal/anonchat/bot"
	"github.com/park285/anonchat-go/internal/anonchat/config"
	acerrors "github.com/park285/anonchat-go/internal/anonchat/errors"
	"github.com/park285/anonchat-go/internal/anonchat/match"
	"github.com/park285/anonchat-go/internal/anonchat/model"
	"github.com/park285/anonchat-go/internal/anonchat/protocol"
	acredis "github.com/park285/anonchat-go/internal/anonchat/redis"
	"github.com/park285/anonchat-go/internal/common/ptr"
)

// RoomService 는 방 수명주기와 세션 정리를 담당한다.
// 연결 종료, 하트비트, 재접속 등 매칭 이후의 모든 흐름이 여기로 모인다.
type RoomService struct {
	instanceID string
	sessions   *acredis.SessionStore
	rooms      *acredis.RoomStore
	engine     *match.Engine
	presence   *acredis.PresenceStore
	bridge     *bot.Bridge
	sender     Sender
	logger     *slog.Logger
}

// NewRoomService 는 RoomService를 생성한다.
func NewRoomService(
	instanceID string,
	sessions *acredis.SessionStore,
	rooms *acredis.RoomStore,
	engine *match.Engine,
	presence *acredis.PresenceStore,
	bridge *bot.Bridge,
	sender Sender,
	logger *slog.Logger,
) *RoomService {
	return &RoomService{
		instanceID: instanceID,
		sessions:   sessions,
		rooms:      rooms,
		engine:     engine,
		presence:   presence,
		bridge:     bridge,
		sender:     sender,
		logger:     logger.With("component", "room_service"),
	}
}

// Authenticate 는 세션을 IDLE로 초기화하고 연결 소유권을 등록한다.
func (s *RoomService) Authenticate(ctx context.Context, userID string) (*model.Session, error) {
	sess, err := s.sessions.Touch(ctx, userID, s.instanceID, model.SessionPatch{
		State:  ptr.Of(model.StateIdle),
		RoomID: ptr.String(""),
	})
	if err != nil {
		return nil, err
	}
	if err := s.presence.Register(ctx, userID, s.instanceID); err != nil {
		return nil, err
	}
	return sess, nil
}

// ResumeSnapshot 은 재접속 시 클라이언트에 돌려보낼 상태 묶음이다.
type ResumeSnapshot struct {
	RoomID          string
	PartnerID       string
	PartnerUserName string
	CallRole        string
	State           model.UserState
	Messages        []protocol.HistoryItem
}

// Resume 은 세션 또는 방 매핑이 남아 있는 사용자의 상태를 복원한다.
// 복원할 상태가 없으면 nil 스냅샷을 반환한다.
func (s *RoomService) Resume(ctx context.Context, userID string, want model.MatchMode) (*ResumeSnapshot, error) {
	sess, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	roomID, hasRoom, err := s.rooms.UserRoom(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess == nil && !hasRoom {
		return nil, nil
	}

	// 통화 모드에서 방이 사라졌다면 복원할 것이 없으므로 흔적을 정리한다
	if !hasRoom && want == model.ModeCall {
		if err := s.CleanupRoom(ctx, userID); err != nil {
			s.logger.Warn("resume_cleanup_failed", "user_id", userID, "error", err)
		}
		return nil, nil
	}

	if _, err := s.sessions.Touch(ctx, userID, s.instanceID, model.SessionPatch{}); err != nil {
		return nil, err
	}
	if err := s.presence.Register(ctx, userID, s.instanceID); err != nil {
		return nil, err
	}

	snap := &ResumeSnapshot{RoomID: roomID, State: model.StateIdle}
	if sess != nil {
		snap.State = sess.State
	} else if hasRoom {
		snap.State = model.StateInRoom
	}

	if hasRoom {
		room, err := s.rooms.Get(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if room != nil {
			snap.PartnerID = room.Partner(userID)
			if room.Caller != "" && room.Callee != "" {
				if room.Caller == userID {
					snap.CallRole = "caller"
				} else {
					snap.CallRole = "callee"
				}
			}
		}
		history, err := s.rooms.History(ctx, roomID, config.RoomHistoryMax)
		if err != nil {
			return nil, err
		}
		snap.Messages = historyItems(roomID, history)
		if snap.PartnerID != "" && !bot.IsBotID(snap.PartnerID) {
			snap.PartnerUserName = s.partnerName(ctx, snap.PartnerID)
		}
	}
	return snap, nil
}

// Heartbeat 는 세션 TTL을 연장하고 상대방의 생존 여부를 점검한다.
// 세션이 이미 만료되었으면 IDLE로 재생성한다.
func (s *RoomService) Heartbeat(ctx context.Context, userID string) error {
	refreshed, err := s.sessions.RefreshTTL(ctx, userID)
	if err != nil {
		return err
	}
	if !refreshed {
		if _, err := s.sessions.Touch(ctx, userID, s.instanceID, model.SessionPatch{}); err != nil {
			return err
		}
	}
	if err := s.presence.Register(ctx, userID, s.instanceID); err != nil {
		return err
	}
	return s.probePartner(ctx, userID)
}

// probePartner 는 방 상대의 세션과 grace 상태를 확인해 죽은 방을 걷어낸다.
func (s *RoomService) probePartner(ctx context.Context, userID string) error {
	roomID, ok, err := s.rooms.UserRoom(ctx, userID)
	if err != nil || !ok {
		return err
	}

	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return s.CleanupRoom(ctx, userID)
	}

	partnerID := room.Partner(userID)
	if partnerID == "" || bot.IsBotID(partnerID) {
		return nil
	}

	partnerSess, err := s.sessions.Get(ctx, partnerID)
	if err != nil {
		return err
	}
	if partnerSess == nil {
		inGrace, err := s.presence.InGrace(ctx, partnerID)
		if err != nil {
			return err
		}
		if !inGrace {
			return s.CleanupRoom(ctx, partnerID)
		}
		return nil
	}

	if partnerSess.State == model.StateIdle || partnerSess.State == model.StateWaiting {
		return s.CleanupUser(ctx, userID)
	}
	return nil
}

// CleanupUser 는 방은 건드리지 않고 사용자의 매칭 흔적만 지운다.
func (s *RoomService) CleanupUser(ctx context.Context, userID string) error {
	if roomID, ok, err := s.rooms.UserRoom(ctx, userID); err == nil && ok {
		s.bridge.CancelLifetime(roomID)
	}

	if err := s.dequeue(ctx, userID); err != nil {
		s.logger.Warn("cleanup_dequeue_failed", "user_id", userID, "error", err)
	}
	if err := s.rooms.DeleteClaim(ctx, userID); err != nil {
		return err
	}
	if err := s.rooms.DeleteUserRoom(ctx, userID, ""); err != nil {
		return err
	}
	_, err := s.sessions.Touch(ctx, userID, s.instanceID, model.SessionPatch{
		State:  ptr.Of(model.StateIdle),
		RoomID: ptr.String(""),
	})
	return err
}

// CleanupRoom 은 연결이 끊긴 사용자의 방을 해체하고 상대에게 알린다.
func (s *RoomService) CleanupRoom(ctx context.Context, userID string) error {
	if err := s.dequeue(ctx, userID); err != nil {
		s.logger.Warn("cleanup_dequeue_failed", "user_id", userID, "error", err)
	}
	if err := s.rooms.DeleteClaim(ctx, userID); err != nil {
		return err
	}

	roomID, ok, err := s.rooms.UserRoom(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		if err := s.presence.Remove(ctx, userID); err != nil {
			return err
		}
		_, err := s.sessions.Touch(ctx, userID, s.instanceID, model.SessionPatch{
			State:  ptr.Of(model.StateIdle),
			RoomID: ptr.String(""),
		})
		return err
	}

	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}

	partnerID := ""
	if room != nil {
		partnerID = room.Partner(userID)

		if room.IsBot() {
			if room.Want == model.ModeCall {
				err = s.bridge.EndCall(ctx, roomID, userID, bot.ReasonDisconnected)
			} else {
				err = s.bridge.EndChat(ctx, roomID, userID, bot.ReasonDisconnected)
			}
			if err != nil {
				s.logger.Warn("cleanup_bot_end_failed", "room_id", roomID, "error", err)
			}
		}
	}

	if err := s.rooms.Delete(ctx, roomID); err != nil {
		return err
	}
	if err := s.rooms.DeleteUserRoom(ctx, userID, ""); err != nil {
		return err
	}

	if partnerID != "" && !bot.IsBotID(partnerID) {
		if err := s.rooms.DeleteUserRoom(ctx, partnerID, ""); err != nil {
			return err
		}
		if err := s.dequeue(ctx, partnerID); err != nil {
			s.logger.Warn("cleanup_partner_dequeue_failed", "user_id", partnerID, "error", err)
		}
		s.send(ctx, partnerID, protocol.ServerMessage{
			Type:   protocol.TypePartnerLeft,
			RoomID: roomID,
			UserID: userID,
		})
		if _, err := s.sessions.Touch(ctx, partnerID, s.instanceID, model.SessionPatch{
			State:  ptr.Of(model.StateIdle),
			RoomID: ptr.String(""),
		}); err != nil {
			return err
		}
	}

	if err := s.presence.Remove(ctx, userID); err != nil {
		return err
	}
	if _, err := s.sessions.Touch(ctx, userID, s.instanceID, model.SessionPatch{
		State:  ptr.Of(model.StateIdle),
		RoomID: ptr.String(""),
	}); err != nil {
		return err
	}
	s.send(ctx, userID, protocol.ServerMessage{Type: protocol.TypePartnerLeft})

	s.logger.Info("room_cleaned", "room_id", roomID, "user_id", userID, "partner_id", partnerID)
	return nil
}

// Leave 는 사용자가 자발적으로 방을 떠나는 흐름이다. skip이면 대기열은 유지한다.
func (s *RoomService) Leave(ctx context.Context, userID, roomID string, skip bool) error {
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if room != nil && room.IsBot() {
		s.bridge.CancelLifetime(roomID)
	}

	if !skip {
		if err := s.dequeue(ctx, userID); err != nil {
			s.logger.Warn("leave_dequeue_failed", "user_id", userID, "error", err)
		}
	}

	if room == nil {
		return acerrors.RoomNotFoundError{RoomID: roomID}
	}

	partnerID := room.Partner(userID)
	if err := s.rooms.Delete(ctx, roomID); err != nil {
		return err
	}
	if err := s.rooms.DeleteUserRoom(ctx, userID, roomID); err != nil {
		return err
	}
	if partnerID != "" {
		if err := s.rooms.DeleteUserRoom(ctx, partnerID, roomID); err != nil {
			return err
		}
		if !bot.IsBotID(partnerID) {
			s.send(ctx, partnerID, protocol.ServerMessage{
				Type:   protocol.TypePartnerLeft,
				RoomID: roomID,
				UserID: userID,
			})
		}
	}
	return nil
}

// Disconnected 는 유예 마커를 남기고 이 인스턴스 소유의 연결 매핑을 지운다.
func (s *RoomService) Disconnected(ctx context.Context, userID string) error {
	if err := s.presence.StartGrace(ctx, userID); err != nil {
		return err
	}
	// 다른 인스턴스로 이미 재접속했다면 소유권 검사가 매핑을 지킨다
	return s.presence.Unregister(ctx, userID, s.instanceID)
}

// Connected 는 유예 마커를 지우고 세션을 갱신한다.
func (s *RoomService) Connected(ctx context.Context, userID string) error {
	if err := s.presence.ClearGrace(ctx, userID); err != nil {
		return err
	}
	_, err := s.sessions.Touch(ctx, userID, s.instanceID, model.SessionPatch{})
	return err
}

// HandleText 는 채팅 메시지를 상대 또는 봇에게 전달하고 히스토리에 남긴다.
func (s *RoomService) HandleText(ctx context.Context, userID string, msg protocol.ClientMessage) error {
	if _, err := s.sessions.Touch(ctx, userID, s.instanceID, model.SessionPatch{}); err != nil {
		return err
	}

	room, err := s.rooms.Get(ctx, msg.RoomID)
	if err != nil {
		return err
	}
	if room == nil {
		return acerrors.RoomNotFoundError{RoomID: msg.RoomID}
	}

	from := msg.From
	if from == "" {
		from = userID
	}
	now := time.Now().UnixMilli()

	if room.IsBot() || bot.IsBotID(room.B) {
		s.send(ctx, userID, protocol.ServerMessage{Type: protocol.TypeTextAck, Seq: msg.Seq, Ts: now})
		return s.bridge.HandleUserMessage(ctx, *room, msg.Body)
	}

	targetID := room.Partner(from)
	s.send(ctx, targetID, protocol.ServerMessage{
		Type:   protocol.TypeText,
		RoomID: msg.RoomID,
		From:   from,
		Body:   msg.Body,
		Seq:    msg.Seq,
		Ts:     now,
	})
	s.send(ctx, userID, protocol.ServerMessage{Type: protocol.TypeTextAck, Seq: msg.Seq, Ts: now})

	return s.rooms.AppendMessage(ctx, msg.RoomID, model.RoomMessage{From: from, Body: msg.Body, Ts: now})
}

// Typing 은 타이핑 상태를 방 상대에게 중계한다.
func (s *RoomService) Typing(ctx context.Context, fromID string, state bool) error {
	roomID, ok, err := s.rooms.UserRoom(ctx, fromID)
	if err != nil || !ok {
		return err
	}
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil || room == nil {
		return err
	}
	partnerID := room.Partner(fromID)
	if partnerID == "" || bot.IsBotID(partnerID) {
		return nil
	}
	s.send(ctx, partnerID, protocol.ServerMessage{Type: protocol.TypeTyping, From: fromID, State: state})
	return nil
}

// PeerMuted 는 음소거 상태를 통화 상대에게 중계한다.
func (s *RoomService) PeerMuted(ctx context.Context, userID, roomID string, muted bool) error {
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil || room == nil {
		return err
	}
	partnerID := room.Partner(userID)
	if partnerID == "" || bot.IsBotID(partnerID) {
		return nil
	}
	s.send(ctx, partnerID, protocol.ServerMessage{Type: protocol.TypePeerMuted, Muted: muted})
	return nil
}

// PartnerInfo 는 방 상대의 표시 이름을 조회해 돌려보낸다.
func (s *RoomService) PartnerInfo(ctx context.Context, userID string) error {
	roomID, ok, err := s.rooms.UserRoom(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return s.CleanupRoom(ctx, userID)
	}
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return s.CleanupRoom(ctx, userID)
	}

	partnerID := room.Partner(userID)
	partnerSess, err := s.sessions.Get(ctx, partnerID)
	if err != nil {
		return err
	}
	if partnerSess == nil {
		s.send(ctx, userID, protocol.ServerMessage{Type: protocol.TypeRoomClosed})
		return nil
	}
	s.send(ctx, userID, protocol.ServerMessage{
		Type:            protocol.TypePartnerInfo,
		PartnerUserName: partnerSess.Username,
	})
	return nil
}

// UpdateInterests 는 관심사 태그를 교체하고 확인 프레임을 보낸다.
func (s *RoomService) UpdateInterests(ctx context.Context, userID string, interests []string) error {
	if interests == nil {
		interests = []string{}
	}
	if _, err := s.sessions.Touch(ctx, userID, s.instanceID, model.SessionPatch{Interests: interests}); err != nil {
		return err
	}
	s.send(ctx, userID, protocol.ServerMessage{
		Type:      protocol.TypeInterestUpdatedOK,
		UserID:    userID,
		Interests: interests,
	})
	return nil
}

// dequeue 는 세션의 프로필 큐와 전역 큐에서 사용자를 제거한다.
func (s *RoomService) dequeue(ctx context.Context, userID string) error {
	sess, err := s.sessions.Get(ctx, userID)
	if err != nil || sess == nil {
		return err
	}
	return s.engine.Dequeue(ctx, userID, *sess)
}

// partnerName 은 상대 세션의 표시 이름을 조회한다. 없으면 빈 문자열.
func (s *RoomService) partnerName(ctx context.Context, partnerID string) string {
	sess, err := s.sessions.Get(ctx, partnerID)
	if err != nil || sess == nil {
		return ""
	}
	return sess.Username
}

// send 는 전달 실패를 경고 로그로만 남긴다. 수신자가 없어도 흐름은 계속된다.
func (s *RoomService) send(ctx context.Context, userID string, msg protocol.ServerMessage) {
	if userID == "" {
		return
	}
	if err := s.sender.SendToUser(ctx, userID, msg); err != nil {
		s.logger.Warn("send_failed", "user_id", userID, "type", msg.Type, "error", err)
	}
}
